package replication

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/mcdev12/fantasta/go/internal/auction/engine"
)

var ErrMalformedEnvelope = errors.New("malformed snapshot envelope")

// Envelope wraps a snapshot with the identity and version of the instance
// that produced it.
type Envelope struct {
	InstanceID  string          `json:"instanceId"`
	Version     uint64          `json:"version"`
	PublishedAt time.Time       `json:"publishedAt"`
	Snapshot    json.RawMessage `json:"snapshot"`
}

// EncodeEnvelope serializes a snapshot for publication.
func EncodeEnvelope(instanceID string, version uint64, at time.Time, snap engine.Snapshot) ([]byte, error) {
	raw, err := json.Marshal(snap)
	if err != nil {
		return nil, fmt.Errorf("marshal snapshot: %w", err)
	}
	data, err := json.Marshal(Envelope{
		InstanceID:  instanceID,
		Version:     version,
		PublishedAt: at.UTC(),
		Snapshot:    raw,
	})
	if err != nil {
		return nil, fmt.Errorf("marshal envelope: %w", err)
	}
	return data, nil
}

// DecodeEnvelope parses an envelope and validates the snapshot inside it.
// Nothing malformed gets past this point.
func DecodeEnvelope(data []byte) (Envelope, engine.Snapshot, error) {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return Envelope{}, engine.Snapshot{}, fmt.Errorf("%w: %v", ErrMalformedEnvelope, err)
	}
	if env.InstanceID == "" {
		return Envelope{}, engine.Snapshot{}, fmt.Errorf("%w: missing instanceId", ErrMalformedEnvelope)
	}
	if len(env.Snapshot) == 0 {
		return Envelope{}, engine.Snapshot{}, fmt.Errorf("%w: missing snapshot", ErrMalformedEnvelope)
	}

	snap, err := engine.DecodeSnapshot(env.Snapshot)
	if err != nil {
		return Envelope{}, engine.Snapshot{}, fmt.Errorf("%w: %w", ErrMalformedEnvelope, err)
	}
	return env, snap, nil
}
