// Package events defines the domain events the auction engine emits after
// each state change.
package events

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Type names an auction event
type Type string

const (
	TypeLotOpened          Type = "LotOpened"
	TypeBidAccepted        Type = "BidAccepted"
	TypeLotSold            Type = "LotSold"
	TypeLotUnsold          Type = "LotUnsold"
	TypeAuctionInitialized Type = "AuctionInitialized"
	TypeAuctionPaused      Type = "AuctionPaused"
	TypeAuctionResumed     Type = "AuctionResumed"
	TypeAuctionEnded       Type = "AuctionEnded"
	TypeAuctionReset       Type = "AuctionReset"
	TypeRehearsalStarted   Type = "RehearsalStarted"
	TypeRehearsalStopped   Type = "RehearsalStopped"
)

// Event is the envelope for every engine event
type Event struct {
	ID        string          `json:"id"`
	Type      Type            `json:"type"`
	Timestamp time.Time       `json:"timestamp"`
	Data      json.RawMessage `json:"data"`
}

// New builds an event with a fresh id and the JSON-encoded payload.
func New(t Type, at time.Time, payload any) (Event, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return Event{}, fmt.Errorf("marshal %s payload: %w", t, err)
	}
	return Event{
		ID:        uuid.NewString(),
		Type:      t,
		Timestamp: at,
		Data:      data,
	}, nil
}

// ParsePayload decodes event data into the payload struct for its type
func ParsePayload(event Event) (any, error) {
	switch event.Type {
	case TypeLotOpened:
		return decode[LotOpenedPayload](event)
	case TypeBidAccepted:
		return decode[BidAcceptedPayload](event)
	case TypeLotSold:
		return decode[LotSoldPayload](event)
	case TypeLotUnsold:
		return decode[LotUnsoldPayload](event)
	case TypeAuctionInitialized:
		return decode[AuctionInitializedPayload](event)
	case TypeAuctionPaused:
		return decode[AuctionPausedPayload](event)
	case TypeAuctionResumed:
		return decode[AuctionResumedPayload](event)
	case TypeAuctionEnded:
		return decode[AuctionEndedPayload](event)
	case TypeAuctionReset:
		return decode[AuctionResetPayload](event)
	case TypeRehearsalStarted:
		return decode[RehearsalStartedPayload](event)
	case TypeRehearsalStopped:
		return decode[RehearsalStoppedPayload](event)
	default:
		return nil, fmt.Errorf("unknown event type: %s", event.Type)
	}
}

func decode[T any](event Event) (any, error) {
	var payload T
	if err := json.Unmarshal(event.Data, &payload); err != nil {
		return nil, fmt.Errorf("decode %s: %w", event.Type, err)
	}
	return payload, nil
}
