package engine

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/mcdev12/fantasta/go/internal/models"
)

// Snapshot is the external projection of the engine state. It is the unit
// exchanged with replication and persisted by the store.
type Snapshot struct {
	Status             models.AuctionStatus `json:"status"`
	Participants       []models.Participant `json:"participants"`
	Lots               []models.Lot         `json:"lots"`
	Queue              []int                `json:"queue"`
	Cursor             int                  `json:"cursor"`
	CurrentBid         *models.Bid          `json:"currentBid"`
	CountdownRemaining int                  `json:"countdownRemaining"`
	LastSale           *models.SaleResult   `json:"lastSale"`
	RehearsalActive    bool                 `json:"rehearsalActive"`
}

// Snapshot returns a deep copy of the current state.
func (e *Engine) Snapshot() Snapshot {
	participants := e.participants.List()
	for i := range participants {
		if participants[i].Roster == nil {
			participants[i].Roster = []models.RosterEntry{}
		}
	}

	s := Snapshot{
		Status:             e.status,
		Participants:       participants,
		Lots:               append([]models.Lot{}, e.lots...),
		Queue:              e.seq.Queue(),
		Cursor:             e.seq.Cursor(),
		CountdownRemaining: e.timer.Remaining(),
		RehearsalActive:    e.rehearsal,
	}
	if e.bid != nil {
		bid := *e.bid
		s.CurrentBid = &bid
	}
	if e.lastSale != nil {
		s.LastSale = copySale(*e.lastSale)
	}
	return s
}

// Restore replaces the whole engine state with s. The snapshot is validated
// first and nothing changes on error. The countdown is left idle; call Rearm
// to resume ticking when this engine is the authority.
func (e *Engine) Restore(s Snapshot) error {
	if err := s.Validate(); err != nil {
		return err
	}

	categories := make(map[string]models.Category, len(s.Lots))
	for _, lot := range s.Lots {
		categories[lot.ID] = lot.Category
	}

	participants := models.NewParticipantSet()
	for _, p := range s.Participants {
		roster := make([]models.RosterEntry, len(p.Roster))
		for i, entry := range p.Roster {
			entry.Category = categories[entry.LotID]
			roster[i] = entry
		}
		p.Roster = roster
		participants.Add(p)
	}

	if err := e.seq.Restore(s.Queue, s.Cursor, len(s.Lots)); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidSnapshot, err)
	}

	e.status = s.Status
	e.participants = participants
	e.lots = append([]models.Lot(nil), s.Lots...)
	e.bid = nil
	if s.CurrentBid != nil {
		bid := *s.CurrentBid
		e.bid = &bid
	}
	e.lastSale = nil
	if s.LastSale != nil {
		e.lastSale = copySale(*s.LastSale)
	}
	e.rehearsal = s.RehearsalActive
	e.timer.Restore(s.CountdownRemaining)
	return nil
}

// Validate checks the snapshot for internal consistency before it is allowed
// to replace engine state.
func (s Snapshot) Validate() error {
	if !s.Status.Valid() {
		return fmt.Errorf("%w: unknown status %q", ErrInvalidSnapshot, s.Status)
	}
	if s.CountdownRemaining < 0 {
		return fmt.Errorf("%w: negative countdown %d", ErrInvalidSnapshot, s.CountdownRemaining)
	}

	lots := make(map[string]models.Category, len(s.Lots))
	for i, lot := range s.Lots {
		if lot.ID == "" {
			return fmt.Errorf("%w: lot %d has no id", ErrInvalidSnapshot, i)
		}
		if _, dup := lots[lot.ID]; dup {
			return fmt.Errorf("%w: duplicate lot id %q", ErrInvalidSnapshot, lot.ID)
		}
		if !lot.Category.Valid() || lot.BaseValue <= 0 {
			return fmt.Errorf("%w: lot %q: category %q base value %d", ErrInvalidSnapshot, lot.ID, lot.Category, lot.BaseValue)
		}
		lots[lot.ID] = lot.Category
	}

	for i, idx := range s.Queue {
		if idx < 0 || idx >= len(s.Lots) {
			return fmt.Errorf("%w: queue entry %d points at lot %d of %d", ErrInvalidSnapshot, i, idx, len(s.Lots))
		}
	}
	if s.Cursor < -1 || s.Cursor >= len(s.Queue) {
		return fmt.Errorf("%w: cursor %d outside queue of %d", ErrInvalidSnapshot, s.Cursor, len(s.Queue))
	}

	participants := make(map[string]struct{}, len(s.Participants))
	for _, p := range s.Participants {
		if p.ID == "" {
			return fmt.Errorf("%w: participant without id", ErrInvalidSnapshot)
		}
		if _, dup := participants[p.ID]; dup {
			return fmt.Errorf("%w: duplicate participant %q", ErrInvalidSnapshot, p.ID)
		}
		participants[p.ID] = struct{}{}
		if p.Credits < 0 {
			return fmt.Errorf("%w: participant %q has negative credits", ErrInvalidSnapshot, p.ID)
		}

		held := make(map[models.Category]int)
		for _, entry := range p.Roster {
			category, ok := lots[entry.LotID]
			if !ok {
				return fmt.Errorf("%w: participant %q holds unknown lot %q", ErrInvalidSnapshot, p.ID, entry.LotID)
			}
			held[category]++
			if held[category] > category.Cap() {
				return fmt.Errorf("%w: participant %q exceeds %s cap", ErrInvalidSnapshot, p.ID, category)
			}
		}
	}

	if s.CurrentBid != nil {
		if _, ok := participants[s.CurrentBid.ParticipantID]; !ok {
			return fmt.Errorf("%w: bid from unknown participant %q", ErrInvalidSnapshot, s.CurrentBid.ParticipantID)
		}
		if s.CurrentBid.Amount <= 0 {
			return fmt.Errorf("%w: bid amount %d", ErrInvalidSnapshot, s.CurrentBid.Amount)
		}
	}
	if s.LastSale != nil && (s.LastSale.ParticipantID == nil) != (s.LastSale.Amount == nil) {
		return fmt.Errorf("%w: last sale must carry both buyer and amount or neither", ErrInvalidSnapshot)
	}
	return nil
}

// DecodeSnapshot parses and validates a snapshot received from outside the
// process. Unknown fields are rejected.
func DecodeSnapshot(data []byte) (Snapshot, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()

	var s Snapshot
	if err := dec.Decode(&s); err != nil {
		return Snapshot{}, fmt.Errorf("%w: %v", ErrInvalidSnapshot, err)
	}
	if err := s.Validate(); err != nil {
		return Snapshot{}, err
	}
	return s, nil
}

func copySale(sale models.SaleResult) *models.SaleResult {
	out := models.SaleResult{LotID: sale.LotID}
	if sale.ParticipantID != nil {
		id := *sale.ParticipantID
		out.ParticipantID = &id
	}
	if sale.Amount != nil {
		amount := *sale.Amount
		out.Amount = &amount
	}
	return &out
}
