package events

import (
	"time"
)

// Event payload types shared between the engine, the coordinator and the sinks

// LotOpenedPayload is the payload for a LotOpened event
type LotOpenedPayload struct {
	LotID        string    `json:"lot_id"`
	LotName      string    `json:"lot_name"`
	Category     string    `json:"category"`
	BaseValue    int       `json:"base_value"`
	Cursor       int       `json:"cursor"`
	OpenedAt     time.Time `json:"opened_at"`
	CountdownSec int       `json:"countdown_sec"`
}

// BidAcceptedPayload is the payload for a BidAccepted event
type BidAcceptedPayload struct {
	LotID         string    `json:"lot_id"`
	ParticipantID string    `json:"participant_id"`
	Amount        int       `json:"amount"`
	AcceptedAt    time.Time `json:"accepted_at"`
	CountdownSec  int       `json:"countdown_sec"`
}

// LotSoldPayload is the payload for a LotSold event
type LotSoldPayload struct {
	LotID         string    `json:"lot_id"`
	LotName       string    `json:"lot_name"`
	ParticipantID string    `json:"participant_id"`
	Amount        int       `json:"amount"`
	Rehearsal     bool      `json:"rehearsal"`
	SoldAt        time.Time `json:"sold_at"`
}

// LotUnsoldPayload is the payload for a LotUnsold event
type LotUnsoldPayload struct {
	LotID     string    `json:"lot_id"`
	LotName   string    `json:"lot_name"`
	Rehearsal bool      `json:"rehearsal"`
	ClosedAt  time.Time `json:"closed_at"`
}

// AuctionInitializedPayload is the payload for an AuctionInitialized event
type AuctionInitializedPayload struct {
	InitialCredits   int       `json:"initial_credits"`
	ParticipantCount int       `json:"participant_count"`
	LotCount         int       `json:"lot_count"`
	InitializedAt    time.Time `json:"initialized_at"`
}

// AuctionPausedPayload is the payload for an AuctionPaused event
type AuctionPausedPayload struct {
	RemainingSec int       `json:"remaining_sec"`
	PausedAt     time.Time `json:"paused_at"`
	Reason       string    `json:"reason"`
}

// AuctionResumedPayload is the payload for an AuctionResumed event
type AuctionResumedPayload struct {
	RemainingSec int       `json:"remaining_sec"`
	ResumedAt    time.Time `json:"resumed_at"`
}

// AuctionEndedPayload is the payload for an AuctionEnded event
type AuctionEndedPayload struct {
	LotsSold  int       `json:"lots_sold"`
	Rehearsal bool      `json:"rehearsal"`
	EndedAt   time.Time `json:"ended_at"`
}

// AuctionResetPayload is the payload for an AuctionReset event
type AuctionResetPayload struct {
	ResetAt time.Time `json:"reset_at"`
}

// RehearsalStartedPayload is the payload for a RehearsalStarted event
type RehearsalStartedPayload struct {
	Credits   int       `json:"credits"`
	StartedAt time.Time `json:"started_at"`
}

// RehearsalStoppedPayload is the payload for a RehearsalStopped event
type RehearsalStoppedPayload struct {
	StoppedAt time.Time `json:"stopped_at"`
}
