package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"sync/atomic"

	"github.com/rs/zerolog/log"
	"github.com/sqlc-dev/pqtype"

	"github.com/mcdev12/fantasta/go/internal/auction/coordinator"
	"github.com/mcdev12/fantasta/go/internal/auction/engine"
	"github.com/mcdev12/fantasta/go/internal/auction/store/db"
)

// ErrNoSnapshot is returned by Latest when nothing was stored yet.
var ErrNoSnapshot = errors.New("no stored snapshot")

type Querier interface {
	UpsertSnapshot(ctx context.Context, arg db.UpsertSnapshotParams) (int64, error)
	GetSnapshot(ctx context.Context, auctionID string) (db.AuctionSnapshot, error)
	DeleteSnapshot(ctx context.Context, auctionID string) error
}

// Stored is a snapshot read back from the database.
type Stored struct {
	InstanceID string
	Version    uint64
	Snapshot   engine.Snapshot
}

// SnapshotRepository keeps the latest snapshot of one auction.
type SnapshotRepository struct {
	queries    Querier
	auctionID  string
	instanceID string
	disabled   atomic.Bool
}

func NewSnapshotRepository(queries Querier, auctionID, instanceID string) *SnapshotRepository {
	return &SnapshotRepository{
		queries:    queries,
		auctionID:  auctionID,
		instanceID: instanceID,
	}
}

// Save upserts s unless a newer version is already stored. It reports whether
// the row was written.
func (r *SnapshotRepository) Save(ctx context.Context, version uint64, s engine.Snapshot) (bool, error) {
	data, err := json.Marshal(s)
	if err != nil {
		return false, fmt.Errorf("failed to marshal snapshot: %w", err)
	}

	lastSale := pqtype.NullRawMessage{}
	if s.LastSale != nil {
		raw, err := json.Marshal(s.LastSale)
		if err != nil {
			return false, fmt.Errorf("failed to marshal last sale: %w", err)
		}
		lastSale = pqtype.NullRawMessage{RawMessage: raw, Valid: true}
	}

	n, err := r.queries.UpsertSnapshot(ctx, db.UpsertSnapshotParams{
		AuctionID:  r.auctionID,
		InstanceID: r.instanceID,
		Version:    int64(version),
		Status:     string(s.Status),
		Snapshot:   data,
		LastSale:   lastSale,
	})
	if err != nil {
		return false, fmt.Errorf("failed to upsert snapshot: %w", err)
	}
	return n > 0, nil
}

// Latest returns the stored snapshot after validating it like any other
// snapshot received from outside the process.
func (r *SnapshotRepository) Latest(ctx context.Context) (Stored, error) {
	row, err := r.queries.GetSnapshot(ctx, r.auctionID)
	if errors.Is(err, sql.ErrNoRows) {
		return Stored{}, ErrNoSnapshot
	}
	if err != nil {
		return Stored{}, fmt.Errorf("failed to get snapshot: %w", err)
	}
	if row.Version < 0 {
		return Stored{}, fmt.Errorf("%w: negative version %d", engine.ErrInvalidSnapshot, row.Version)
	}

	s, err := engine.DecodeSnapshot(row.Snapshot)
	if err != nil {
		return Stored{}, err
	}
	return Stored{InstanceID: row.InstanceID, Version: uint64(row.Version), Snapshot: s}, nil
}

// Clear removes the stored snapshot.
func (r *SnapshotRepository) Clear(ctx context.Context) error {
	if err := r.queries.DeleteSnapshot(ctx, r.auctionID); err != nil {
		return fmt.Errorf("failed to delete snapshot: %w", err)
	}
	return nil
}

// Enabled is false once a write failed.
func (r *SnapshotRepository) Enabled() bool {
	return !r.disabled.Load()
}

// Run saves the updates this instance produced until ctx is done or the
// coordinator stops. Pending updates are coalesced so only the newest is
// written. The first failure disables persistence; updates keep being drained
// so the coordinator never sees a slow subscriber.
func (r *SnapshotRepository) Run(ctx context.Context, sub coordinator.Subscriber) error {
	return coordinator.Follow(ctx, sub, "store", 64, func(u coordinator.Update) {
		if r.disabled.Load() || u.Origin != r.instanceID {
			return
		}
		if _, err := r.Save(ctx, u.Version, u.Snapshot); err != nil {
			r.disabled.Store(true)
			log.Error().
				Err(err).
				Str("auction_id", r.auctionID).
				Uint64("version", u.Version).
				Msg("snapshot persistence disabled")
		}
	})
}
