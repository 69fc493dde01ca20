package gateway

import (
	"encoding/json"

	"github.com/mcdev12/fantasta/go/internal/auction/engine"
)

// MessageType identifies a frame on the auction socket.
type MessageType string

const (
	// server to client
	MessageSnapshot MessageType = "Snapshot"
	MessageResult   MessageType = "CommandResult"
	MessageError    MessageType = "Error"

	// client to server
	MessagePlaceBid MessageType = "PlaceBid"
	MessageSetReady MessageType = "SetReady"
)

// ServerMessage is every frame written to a client.
type ServerMessage struct {
	Type      MessageType      `json:"type"`
	Version   uint64           `json:"version,omitempty"`
	Data      *engine.Snapshot `json:"data,omitempty"`
	RequestID string           `json:"requestId,omitempty"`
	Accepted  *bool            `json:"accepted,omitempty"`
	Reason    string           `json:"reason,omitempty"`
	Code      string           `json:"code,omitempty"`
}

// ClientMessage is a command sent by a bidder over the socket.
type ClientMessage struct {
	Type          MessageType `json:"type"`
	RequestID     string      `json:"requestId,omitempty"`
	ParticipantID string      `json:"participantId,omitempty"`
	Amount        int         `json:"amount,omitempty"`
}

func snapshotMessage(version uint64, s engine.Snapshot) ServerMessage {
	return ServerMessage{Type: MessageSnapshot, Version: version, Data: &s}
}

func encode(m ServerMessage) ([]byte, error) {
	return json.Marshal(m)
}
