// Package ledger validates bids against credits and roster caps and applies
// sales to participant rosters.
package ledger

import (
	"errors"
	"fmt"

	"github.com/mcdev12/fantasta/go/internal/models"
)

// Bid rejection reasons. Callers compare with errors.Is.
var (
	ErrWrongPhase          = errors.New("wrong phase")
	ErrUnknownParticipant  = errors.New("unknown participant")
	ErrRoleCapReached      = errors.New("role cap reached")
	ErrBidTooLow           = errors.New("bid below minimum increment")
	ErrInsufficientCredits = errors.New("insufficient credits")
)

// MinimumBid returns the smallest amount that would be accepted on lot given
// the current leading bid.
func MinimumBid(lot models.Lot, current *models.Bid) int {
	if current != nil {
		return current.Amount + 1
	}
	return lot.BaseValue
}

// ValidateBid checks whether participant may bid amount on lot. It has no side
// effects; a nil error only authorizes the caller to record the bid.
func ValidateBid(participant *models.Participant, lot *models.Lot, current *models.Bid, amount int) error {
	if lot == nil {
		return ErrWrongPhase
	}
	if participant == nil {
		return ErrUnknownParticipant
	}

	held := participant.CountByCategory(lot.Category)
	if held >= lot.Category.Cap() {
		return fmt.Errorf("%w: %d/%d %s", ErrRoleCapReached, held, lot.Category.Cap(), lot.Category)
	}

	floor := lot.BaseValue - 1
	if current != nil {
		floor = current.Amount
	}
	if amount <= floor {
		return fmt.Errorf("%w: %d must exceed %d", ErrBidTooLow, amount, floor)
	}

	if amount > participant.Credits {
		return fmt.Errorf("%w: %d > %d", ErrInsufficientCredits, amount, participant.Credits)
	}
	return nil
}

// Settle closes lot. With a leading bid the buyer is debited and the lot is
// appended to their roster; without one the result is unsold and nothing
// changes.
func Settle(participants *models.ParticipantSet, current *models.Bid, lot models.Lot) models.SaleResult {
	result := models.SaleResult{LotID: lot.ID}
	if current == nil {
		return result
	}

	buyer, ok := participants.Get(current.ParticipantID)
	if !ok || buyer.Credits < current.Amount {
		// the bid was validated against this participant; only a replaced
		// participant set can get here
		return result
	}

	buyer.Credits -= current.Amount
	buyer.Roster = append(buyer.Roster, models.RosterEntry{
		LotID:     lot.ID,
		PricePaid: current.Amount,
		Category:  lot.Category,
	})

	buyerID := buyer.ID
	amount := current.Amount
	result.ParticipantID = &buyerID
	result.Amount = &amount
	return result
}

// InitializeParticipants resets every participant for a new run: credits set to
// initialCredits, rosters cleared, readiness false except for adminID.
func InitializeParticipants(participants *models.ParticipantSet, initialCredits int, adminID string) {
	participants.Each(func(p *models.Participant) {
		p.Credits = initialCredits
		p.Roster = nil
		p.IsReady = p.ID == adminID
	})
}

// PrepareRehearsal resets every participant for a rehearsal run: fixed credits,
// empty rosters and everyone ready.
func PrepareRehearsal(participants *models.ParticipantSet, credits int) {
	participants.Each(func(p *models.Participant) {
		p.Credits = credits
		p.Roster = nil
		p.IsReady = true
	})
}
