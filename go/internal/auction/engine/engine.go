// Package engine is the auction state machine. It composes the ledger, the
// countdown and the sequencer and exposes the command surface used by the
// coordinator.
//
// An Engine is not safe for concurrent use. Exactly one goroutine owns it and
// applies commands and ticks one at a time.
package engine

import (
	"fmt"
	"strings"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"

	"github.com/mcdev12/fantasta/go/internal/auction/countdown"
	"github.com/mcdev12/fantasta/go/internal/auction/events"
	"github.com/mcdev12/fantasta/go/internal/auction/ledger"
	"github.com/mcdev12/fantasta/go/internal/auction/sequencer"
	"github.com/mcdev12/fantasta/go/internal/models"
)

// Engine holds the whole auction state in one record.
type Engine struct {
	status         models.AuctionStatus
	participants   *models.ParticipantSet
	lots           []models.Lot
	seq            *sequencer.Sequencer
	bid            *models.Bid
	lastSale       *models.SaleResult
	rehearsal      bool
	initialCredits int

	timer     *countdown.Countdown
	standard  TimingProfile
	dry       TimingProfile
	dryCredit int

	clock  clockwork.Clock
	events []events.Event
}

// Option configures an Engine.
type Option func(*Engine)

// WithClock sets the clock used to timestamp events.
func WithClock(clock clockwork.Clock) Option {
	return func(e *Engine) {
		e.clock = clock
	}
}

// WithProfiles overrides the standard and rehearsal durations.
func WithProfiles(standard, rehearsal TimingProfile) Option {
	return func(e *Engine) {
		e.standard = standard.valid(StandardProfile)
		e.dry = rehearsal.valid(RehearsalProfile)
	}
}

// WithRehearsalCredits overrides the rehearsal balance.
func WithRehearsalCredits(credits int) Option {
	return func(e *Engine) {
		if credits > 0 {
			e.dryCredit = credits
		}
	}
}

// New creates an engine in SETUP with only the administrator registered.
func New(opts ...Option) *Engine {
	e := &Engine{
		seq:       sequencer.New(),
		standard:  StandardProfile,
		dry:       RehearsalProfile,
		dryCredit: RehearsalCredits,
		clock:     clockwork.NewRealClock(),
	}
	e.timer = countdown.New(e.handleExpiry)
	for _, opt := range opts {
		opt(e)
	}
	e.wipe()
	return e
}

// wipe puts the engine back to its construction state.
func (e *Engine) wipe() {
	e.timer.Cancel()
	e.status = models.AuctionStatusSetup
	e.participants = models.NewParticipantSet()
	e.participants.Add(models.Participant{
		ID:       AdminID,
		Name:     adminName,
		Credits:  DefaultCredits,
		TeamName: adminTeamName,
	})
	e.lots = nil
	e.seq.Reset()
	e.bid = nil
	e.lastSale = nil
	e.rehearsal = false
	e.initialCredits = DefaultCredits
	e.timer.Restore(e.standard.NewLot)
}

func (e *Engine) profile() TimingProfile {
	if e.rehearsal {
		return e.dry
	}
	return e.standard
}

func (e *Engine) wrongPhase(command string) error {
	log.Debug().
		Str("command", command).
		Str("status", string(e.status)).
		Msg("command ignored in current phase")
	return fmt.Errorf("%w: %s not allowed in %s", ErrWrongPhase, command, e.status)
}

// SetLots replaces the lot list and rebuilds the queue in list order. Every
// lot is validated first; on error nothing changes. Lots without an id get
// one generated from their name.
func (e *Engine) SetLots(lots []models.Lot) error {
	if e.status != models.AuctionStatusSetup {
		return e.wrongPhase("set_lots")
	}

	validated := make([]models.Lot, 0, len(lots))
	seen := make(map[string]struct{}, len(lots))
	for i, raw := range lots {
		lot, err := ValidateLot(raw)
		if err != nil {
			return fmt.Errorf("row %d: %w", i+1, err)
		}
		if lot.ID == "" {
			lot.ID = NewLotID(lot.Name)
		}
		if _, dup := seen[lot.ID]; dup {
			return fmt.Errorf("row %d: %w: duplicate id %q", i+1, ErrInvalidLot, lot.ID)
		}
		seen[lot.ID] = struct{}{}
		validated = append(validated, lot)
	}

	if err := e.seq.Build(len(validated)); err != nil {
		return fmt.Errorf("%w: %v", ErrWrongPhase, err)
	}
	e.lots = validated

	log.Info().Int("lot_count", len(validated)).Msg("lot list replaced")
	return nil
}

// AddLot validates lot and appends it to the list and the queue.
func (e *Engine) AddLot(lot models.Lot) (models.Lot, error) {
	if e.status != models.AuctionStatusSetup {
		return models.Lot{}, e.wrongPhase("add_lot")
	}

	lot, err := ValidateLot(lot)
	if err != nil {
		return models.Lot{}, err
	}
	if lot.ID == "" {
		lot.ID = NewLotID(lot.Name)
	}
	for _, existing := range e.lots {
		if existing.ID == lot.ID {
			return models.Lot{}, fmt.Errorf("%w: duplicate id %q", ErrInvalidLot, lot.ID)
		}
	}

	if err := e.seq.Append(len(e.lots)); err != nil {
		return models.Lot{}, fmt.Errorf("%w: %v", ErrWrongPhase, err)
	}
	e.lots = append(e.lots, lot)

	log.Info().
		Str("lot_id", lot.ID).
		Str("category", string(lot.Category)).
		Int("base_value", lot.BaseValue).
		Msg("lot added")
	return lot, nil
}

// AddParticipant registers a new bidder. Legal in SETUP and READY; a
// participant joining in READY receives the initialized credits and is not
// ready.
func (e *Engine) AddParticipant(name string) (models.Participant, error) {
	if e.status != models.AuctionStatusSetup && e.status != models.AuctionStatusReady {
		return models.Participant{}, e.wrongPhase("add_participant")
	}

	name = strings.TrimSpace(name)
	if name == "" {
		return models.Participant{}, fmt.Errorf("%w: name is required", ErrInvalidParticipant)
	}

	credits := DefaultCredits
	if e.status == models.AuctionStatusReady {
		credits = e.initialCredits
	}

	p := models.Participant{
		ID:       NewParticipantID(name),
		Name:     name,
		Credits:  credits,
		TeamName: name + "'s Team",
	}
	e.participants.Add(p)

	log.Info().
		Str("participant_id", p.ID).
		Str("name", p.Name).
		Msg("participant added")
	return p, nil
}

// SetReady marks a participant ready. Only meaningful in READY.
func (e *Engine) SetReady(participantID string) error {
	if e.status != models.AuctionStatusReady {
		return e.wrongPhase("set_ready")
	}
	p, ok := e.participants.Get(participantID)
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownParticipant, participantID)
	}
	p.IsReady = true
	return nil
}

// SetTeamName changes display metadata; legal in any phase.
func (e *Engine) SetTeamName(participantID, teamName string) error {
	p, ok := e.participants.Get(participantID)
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownParticipant, participantID)
	}
	teamName = strings.TrimSpace(teamName)
	if teamName == "" {
		return fmt.Errorf("%w: team name is required", ErrInvalidParticipant)
	}
	p.TeamName = teamName
	return nil
}

// SetPicture changes display metadata; legal in any phase.
func (e *Engine) SetPicture(participantID, pictureRef string) error {
	p, ok := e.participants.Get(participantID)
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownParticipant, participantID)
	}
	p.PictureRef = strings.TrimSpace(pictureRef)
	return nil
}

// Initialize resets every participant to initialCredits and moves to READY.
func (e *Engine) Initialize(initialCredits int) error {
	if e.status != models.AuctionStatusSetup {
		return e.wrongPhase("initialize")
	}
	if initialCredits < 0 {
		return fmt.Errorf("%w: %d", ErrInvalidCredits, initialCredits)
	}

	ledger.InitializeParticipants(e.participants, initialCredits, AdminID)
	e.initialCredits = initialCredits
	e.seq.Rewind()
	e.bid = nil
	e.lastSale = nil
	e.status = models.AuctionStatusReady

	e.emit(events.TypeAuctionInitialized, events.AuctionInitializedPayload{
		InitialCredits:   initialCredits,
		ParticipantCount: e.participants.Len(),
		LotCount:         len(e.lots),
		InitializedAt:    e.clock.Now(),
	})
	log.Info().
		Int("initial_credits", initialCredits).
		Int("participants", e.participants.Len()).
		Msg("auction initialized")
	return nil
}

// Start opens the first lot once every participant is ready.
func (e *Engine) Start() error {
	if e.status != models.AuctionStatusReady {
		return e.wrongPhase("start")
	}
	if !e.participants.AllReady() {
		return fmt.Errorf("%w: %d/%d ready", ErrNotAllReady, e.participants.ReadyCount(), e.participants.Len())
	}
	e.advance()
	return nil
}

// Pause freezes the countdown of the open lot. Only legal while BIDDING.
func (e *Engine) Pause() error {
	if e.status != models.AuctionStatusBidding {
		return e.wrongPhase("pause")
	}
	remaining := e.timer.Pause()
	e.status = models.AuctionStatusPaused

	e.emit(events.TypeAuctionPaused, events.AuctionPausedPayload{
		RemainingSec: remaining,
		PausedAt:     e.clock.Now(),
		Reason:       "paused by administrator",
	})
	return nil
}

// Resume restarts the countdown with the time left at pause.
func (e *Engine) Resume() error {
	if e.status != models.AuctionStatusPaused {
		return e.wrongPhase("resume")
	}
	remaining := e.timer.Remaining()
	e.timer.Resume(remaining)
	e.status = models.AuctionStatusBidding

	e.emit(events.TypeAuctionResumed, events.AuctionResumedPayload{
		RemainingSec: e.timer.Remaining(),
		ResumedAt:    e.clock.Now(),
	})
	return nil
}

// Bid places amount on the open lot for participantID. An accepted bid
// restarts the countdown at the bid-reset duration.
func (e *Engine) Bid(participantID string, amount int) error {
	if e.status != models.AuctionStatusBidding {
		return e.wrongPhase("bid")
	}
	lot, ok := e.seq.Current(e.lots)
	if !ok {
		return e.wrongPhase("bid")
	}

	var participant *models.Participant
	if p, found := e.participants.Get(participantID); found {
		participant = p
	}
	if err := ledger.ValidateBid(participant, &lot, e.bid, amount); err != nil {
		log.Debug().
			Err(err).
			Str("participant_id", participantID).
			Int("amount", amount).
			Msg("bid rejected")
		return err
	}

	e.bid = &models.Bid{ParticipantID: participantID, Amount: amount}
	e.timer.Start(e.profile().BidReset)

	e.emit(events.TypeBidAccepted, events.BidAcceptedPayload{
		LotID:         lot.ID,
		ParticipantID: participantID,
		Amount:        amount,
		AcceptedAt:    e.clock.Now(),
		CountdownSec:  e.timer.Remaining(),
	})
	log.Info().
		Str("lot_id", lot.ID).
		Str("participant_id", participantID).
		Int("amount", amount).
		Msg("bid accepted")
	return nil
}

// Tick advances the countdown by one second. It reports whether the tick was
// applied; ticks while no phase is running are ignored.
func (e *Engine) Tick() bool {
	return e.timer.Tick()
}

// TickAt applies a tick only if it was issued for the current countdown phase.
func (e *Engine) TickAt(epoch uint64) bool {
	return e.timer.TickAt(epoch)
}

// handleExpiry runs when a countdown phase reaches zero: an open lot is
// settled, a finished dwell moves on to the next lot.
func (e *Engine) handleExpiry() {
	switch e.status {
	case models.AuctionStatusBidding:
		e.settle()
	case models.AuctionStatusSold:
		e.advance()
	}
}

func (e *Engine) settle() {
	lot, ok := e.seq.Current(e.lots)
	if !ok {
		e.end()
		return
	}

	result := ledger.Settle(e.participants, e.bid, lot)
	e.lastSale = &result
	e.status = models.AuctionStatusSold
	e.timer.Start(e.profile().Dwell)

	now := e.clock.Now()
	if result.Sold() {
		e.emit(events.TypeLotSold, events.LotSoldPayload{
			LotID:         lot.ID,
			LotName:       lot.Name,
			ParticipantID: *result.ParticipantID,
			Amount:        *result.Amount,
			Rehearsal:     e.rehearsal,
			SoldAt:        now,
		})
		log.Info().
			Str("lot_id", lot.ID).
			Str("participant_id", *result.ParticipantID).
			Int("amount", *result.Amount).
			Msg("lot sold")
		return
	}

	e.emit(events.TypeLotUnsold, events.LotUnsoldPayload{
		LotID:     lot.ID,
		LotName:   lot.Name,
		Rehearsal: e.rehearsal,
		ClosedAt:  now,
	})
	log.Info().Str("lot_id", lot.ID).Msg("lot unsold")
}

// advance opens the next queued lot or ends the run.
func (e *Engine) advance() {
	cursor, ok := e.seq.Advance()
	if !ok {
		e.end()
		return
	}

	e.bid = nil
	e.status = models.AuctionStatusBidding
	e.timer.Start(e.profile().NewLot)

	lot, _ := e.seq.Current(e.lots)
	e.emit(events.TypeLotOpened, events.LotOpenedPayload{
		LotID:        lot.ID,
		LotName:      lot.Name,
		Category:     string(lot.Category),
		BaseValue:    lot.BaseValue,
		Cursor:       cursor,
		OpenedAt:     e.clock.Now(),
		CountdownSec: e.timer.Remaining(),
	})
}

func (e *Engine) end() {
	wasRehearsal := e.rehearsal

	e.timer.Cancel()
	e.status = models.AuctionStatusEnded
	e.seq.Rewind()
	e.bid = nil
	e.rehearsal = false

	sold := 0
	e.participants.Each(func(p *models.Participant) {
		sold += len(p.Roster)
	})
	e.emit(events.TypeAuctionEnded, events.AuctionEndedPayload{
		LotsSold:  sold,
		Rehearsal: wasRehearsal,
		EndedAt:   e.clock.Now(),
	})
	log.Info().
		Int("lots_sold", sold).
		Bool("rehearsal", wasRehearsal).
		Msg("auction ended")
}

// StartRehearsal begins a dry run from SETUP: every participant gets the
// rehearsal credits and is ready, and the first lot opens immediately with
// the rehearsal durations.
func (e *Engine) StartRehearsal() error {
	if e.status != models.AuctionStatusSetup {
		return e.wrongPhase("start_rehearsal")
	}

	ledger.PrepareRehearsal(e.participants, e.dryCredit)
	e.rehearsal = true
	e.seq.Rewind()
	e.bid = nil
	e.lastSale = nil

	e.emit(events.TypeRehearsalStarted, events.RehearsalStartedPayload{
		Credits:   e.dryCredit,
		StartedAt: e.clock.Now(),
	})
	log.Info().Int("credits", e.dryCredit).Msg("rehearsal started")

	e.advance()
	return nil
}

// StopRehearsal clears the rehearsal flag and forces PAUSED. A lot that was
// already sold is left behind: the next lot is queued paused with the
// standard opening window. If the queue is exhausted the run ends instead.
func (e *Engine) StopRehearsal() error {
	if !e.rehearsal {
		return fmt.Errorf("%w: rehearsal not active", ErrWrongPhase)
	}

	wasSold := e.status == models.AuctionStatusSold
	e.timer.Cancel()
	e.rehearsal = false

	e.emit(events.TypeRehearsalStopped, events.RehearsalStoppedPayload{
		StoppedAt: e.clock.Now(),
	})
	log.Info().Str("status", string(e.status)).Msg("rehearsal stopped")

	if wasSold {
		if _, ok := e.seq.Advance(); !ok {
			e.end()
			return nil
		}
		e.bid = nil
		e.timer.Restore(e.standard.NewLot)
	}

	e.status = models.AuctionStatusPaused
	e.emit(events.TypeAuctionPaused, events.AuctionPausedPayload{
		RemainingSec: e.timer.Remaining(),
		PausedAt:     e.clock.Now(),
		Reason:       "rehearsal stopped",
	})
	return nil
}

// Reset wipes participants, lots, queue and results and returns to SETUP.
// Legal in any phase.
func (e *Engine) Reset() error {
	e.wipe()
	e.emit(events.TypeAuctionReset, events.AuctionResetPayload{
		ResetAt: e.clock.Now(),
	})
	log.Info().Msg("auction reset")
	return nil
}

// Rearm restarts the countdown of a BIDDING or SOLD phase with the remaining
// time. It is used when this engine takes authority over restored state.
func (e *Engine) Rearm() {
	if e.timer.Running() {
		return
	}
	switch e.status {
	case models.AuctionStatusBidding, models.AuctionStatusSold:
		e.timer.Start(e.timer.Remaining())
	}
}

// Status returns the current phase.
func (e *Engine) Status() models.AuctionStatus {
	return e.status
}

// Countdown exposes the scheduler so a driver can follow its phases.
func (e *Engine) Countdown() *countdown.Countdown {
	return e.timer
}

// RehearsalActive reports whether the rehearsal profile is in use.
func (e *Engine) RehearsalActive() bool {
	return e.rehearsal
}

// Participant returns a copy of the participant with the given id.
func (e *Engine) Participant(id string) (models.Participant, bool) {
	p, ok := e.participants.Get(id)
	if !ok {
		return models.Participant{}, false
	}
	cp := *p
	cp.Roster = append([]models.RosterEntry(nil), p.Roster...)
	return cp, true
}

// DrainEvents returns the events emitted since the last call.
func (e *Engine) DrainEvents() []events.Event {
	out := e.events
	e.events = nil
	return out
}

func (e *Engine) emit(t events.Type, payload any) {
	ev, err := events.New(t, e.clock.Now(), payload)
	if err != nil {
		log.Error().Err(err).Str("event_type", string(t)).Msg("failed to build event")
		return
	}
	e.events = append(e.events, ev)
}
