package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mcdev12/fantasta/go/internal/auction/coordinator"
	"github.com/mcdev12/fantasta/go/internal/auction/engine"
	"github.com/mcdev12/fantasta/go/internal/auction/events"
	"github.com/mcdev12/fantasta/go/internal/auction/store/db"
	"github.com/mcdev12/fantasta/go/internal/models"
)

type fakeQuerier struct {
	mu      sync.Mutex
	upserts []db.UpsertSnapshotParams
	row     db.AuctionSnapshot
	getErr  error
	err     error
}

func (f *fakeQuerier) UpsertSnapshot(_ context.Context, arg db.UpsertSnapshotParams) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return 0, f.err
	}
	f.upserts = append(f.upserts, arg)
	return 1, nil
}

func (f *fakeQuerier) GetSnapshot(_ context.Context, _ string) (db.AuctionSnapshot, error) {
	return f.row, f.getErr
}

func (f *fakeQuerier) DeleteSnapshot(_ context.Context, _ string) error {
	return f.err
}

func (f *fakeQuerier) versions() []int64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []int64
	for _, u := range f.upserts {
		out = append(out, u.Version)
	}
	return out
}

func soldSnapshot(t *testing.T) engine.Snapshot {
	t.Helper()
	buyer, amount := engine.AdminID, 60
	s := engine.New().Snapshot()
	s.Lots = []models.Lot{{ID: "lotA", Name: "Lot A", Category: models.CategoryAttacker, Group: "Inter", BaseValue: 50}}
	s.LastSale = &models.SaleResult{LotID: "lotA", ParticipantID: &buyer, Amount: &amount}
	require.NoError(t, s.Validate())
	return s
}

func TestSnapshotRepository_Save(t *testing.T) {
	q := &fakeQuerier{}
	repo := NewSnapshotRepository(q, "fantasta", "node-1")

	written, err := repo.Save(context.Background(), 7, engine.New().Snapshot())
	require.NoError(t, err)
	assert.True(t, written)

	written, err = repo.Save(context.Background(), 8, soldSnapshot(t))
	require.NoError(t, err)
	assert.True(t, written)

	require.Len(t, q.upserts, 2)
	first := q.upserts[0]
	assert.Equal(t, "fantasta", first.AuctionID)
	assert.Equal(t, "node-1", first.InstanceID)
	assert.Equal(t, int64(7), first.Version)
	assert.Equal(t, string(models.AuctionStatusSetup), first.Status)
	assert.False(t, first.LastSale.Valid)

	second := q.upserts[1]
	require.True(t, second.LastSale.Valid)
	assert.JSONEq(t, `{"lotId":"lotA","participantId":"admin","amount":60}`, string(second.LastSale.RawMessage))
}

func TestSnapshotRepository_Latest(t *testing.T) {
	s := soldSnapshot(t)
	data, err := json.Marshal(s)
	require.NoError(t, err)

	q := &fakeQuerier{row: db.AuctionSnapshot{AuctionID: "fantasta", InstanceID: "node-1", Version: 12, Snapshot: data}}
	repo := NewSnapshotRepository(q, "fantasta", "node-2")

	got, err := repo.Latest(context.Background())
	require.NoError(t, err)
	assert.Equal(t, uint64(12), got.Version)
	assert.Equal(t, "node-1", got.InstanceID)
	assert.Equal(t, s, got.Snapshot)

	q.getErr = sql.ErrNoRows
	_, err = repo.Latest(context.Background())
	assert.ErrorIs(t, err, ErrNoSnapshot)

	q.getErr = errors.New("connection refused")
	_, err = repo.Latest(context.Background())
	assert.ErrorContains(t, err, "connection refused")

	q.getErr = nil
	q.row.Snapshot = json.RawMessage(`{"status":"BIDDING","bogus":true}`)
	_, err = repo.Latest(context.Background())
	assert.ErrorIs(t, err, engine.ErrInvalidSnapshot)
}

// replaySubscriber hands one batch to each subscription and then closes it,
// as the coordinator does with a subscriber it drops.
type replaySubscriber struct {
	batches [][]coordinator.Update
}

func (f *replaySubscriber) Subscribe(_ context.Context, _ string, outbox chan coordinator.Update) error {
	if len(f.batches) == 0 {
		return coordinator.ErrStopped
	}
	for _, u := range f.batches[0] {
		outbox <- u
	}
	f.batches = f.batches[1:]
	close(outbox)
	return nil
}

func TestSnapshotRepository_RunCoalescesOwnUpdates(t *testing.T) {
	q := &fakeQuerier{}
	repo := NewSnapshotRepository(q, "fantasta", "node-1")

	snap := engine.New().Snapshot()
	sub := &replaySubscriber{batches: [][]coordinator.Update{{
		{Version: 1, Origin: "node-1", Snapshot: snap},
		{Version: 2, Origin: "node-1", Snapshot: snap},
		{Version: 3, Origin: "node-1", Snapshot: snap},
	}}}

	require.NoError(t, repo.Run(context.Background(), sub))
	assert.Equal(t, []int64{3}, q.versions())
}

func TestSnapshotRepository_RunResubscribesWhenDropped(t *testing.T) {
	q := &fakeQuerier{}
	repo := NewSnapshotRepository(q, "fantasta", "node-1")

	snap := engine.New().Snapshot()
	sub := &replaySubscriber{batches: [][]coordinator.Update{
		{{Version: 1, Origin: "node-1", Snapshot: snap}},
		{{Version: 9, Origin: "node-1", Snapshot: snap}},
	}}

	require.NoError(t, repo.Run(context.Background(), sub))
	assert.Equal(t, []int64{1, 9}, q.versions())
}

func TestSnapshotRepository_RunSkipsForeignUpdates(t *testing.T) {
	q := &fakeQuerier{}
	repo := NewSnapshotRepository(q, "fantasta", "node-1")

	sub := &replaySubscriber{batches: [][]coordinator.Update{
		{{Version: 5, Origin: "node-2", Snapshot: engine.New().Snapshot()}},
	}}

	require.NoError(t, repo.Run(context.Background(), sub))
	assert.Empty(t, q.versions())
}

func TestSnapshotRepository_FailureDisables(t *testing.T) {
	q := &fakeQuerier{err: errors.New("disk full")}
	repo := NewSnapshotRepository(q, "fantasta", "node-1")

	sub := &replaySubscriber{batches: [][]coordinator.Update{
		{{Version: 1, Origin: "node-1", Snapshot: engine.New().Snapshot()}},
	}}
	require.NoError(t, repo.Run(context.Background(), sub))
	assert.False(t, repo.Enabled())

	q.err = nil
	sub.batches = [][]coordinator.Update{
		{{Version: 2, Origin: "node-1", Snapshot: engine.New().Snapshot()}},
	}
	require.NoError(t, repo.Run(context.Background(), sub))
	assert.Empty(t, q.versions())
}

type fakeExecer struct {
	mu    sync.Mutex
	calls [][]any
	err   error
}

func (f *fakeExecer) Exec(_ context.Context, _ string, args ...any) (pgconn.CommandTag, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return pgconn.CommandTag{}, f.err
	}
	f.calls = append(f.calls, args)
	return pgconn.NewCommandTag("INSERT 0 1"), nil
}

func (f *fakeExecer) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

func saleEvents(t *testing.T) []events.Event {
	t.Helper()
	at := time.Date(2026, 9, 1, 21, 0, 0, 0, time.UTC)
	sold, err := events.New(events.TypeLotSold, at, events.LotSoldPayload{
		LotID: "lotA", LotName: "Lot A", ParticipantID: "user-alice-1234abcd", Amount: 60, SoldAt: at,
	})
	require.NoError(t, err)
	opened, err := events.New(events.TypeLotOpened, at, events.LotOpenedPayload{LotID: "lotB"})
	require.NoError(t, err)
	unsold, err := events.New(events.TypeLotUnsold, at, events.LotUnsoldPayload{
		LotID: "lotB", LotName: "Lot B", Rehearsal: true, ClosedAt: at,
	})
	require.NoError(t, err)
	return []events.Event{sold, opened, unsold}
}

func TestSalesLog_WritesOutcomes(t *testing.T) {
	exec := &fakeExecer{}
	sales := NewSalesLog(exec, "fantasta", 8)
	evs := saleEvents(t)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		sales.Run(ctx)
	}()

	sales.Enqueue(evs)
	require.Eventually(t, func() bool { return exec.count() == 2 }, time.Second, 5*time.Millisecond)
	cancel()
	<-done

	sold := exec.calls[0]
	assert.Equal(t, evs[0].ID, sold[0])
	assert.Equal(t, "fantasta", sold[1])
	assert.Equal(t, "lotA", sold[2])
	require.NotNil(t, sold[4])
	assert.Equal(t, "user-alice-1234abcd", *sold[4].(*string))
	assert.Equal(t, 60, *sold[5].(*int))
	assert.Equal(t, false, sold[6])

	unsold := exec.calls[1]
	assert.Equal(t, "lotB", unsold[2])
	assert.Nil(t, unsold[4])
	assert.Nil(t, unsold[5])
	assert.Equal(t, true, unsold[6])
}

func TestSalesLog_DropsWhenFull(t *testing.T) {
	sales := NewSalesLog(&fakeExecer{}, "fantasta", 1)
	sales.Enqueue(saleEvents(t))
	assert.Equal(t, int64(1), sales.Dropped())
}

func TestSalesLog_FailureDisables(t *testing.T) {
	exec := &fakeExecer{err: errors.New("relation does not exist")}
	sales := NewSalesLog(exec, "fantasta", 8)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go sales.Run(ctx)

	sales.Enqueue(saleEvents(t))
	require.Eventually(t, func() bool { return !sales.Enabled() }, time.Second, 5*time.Millisecond)

	exec.mu.Lock()
	exec.err = nil
	exec.mu.Unlock()
	sales.Enqueue(saleEvents(t))
	time.Sleep(20 * time.Millisecond)
	assert.Zero(t, exec.count())
}
