package replication

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mcdev12/fantasta/go/internal/auction/coordinator"
	"github.com/mcdev12/fantasta/go/internal/auction/engine"
	"github.com/mcdev12/fantasta/go/internal/models"
)

func biddingSnapshot(t *testing.T) engine.Snapshot {
	t.Helper()
	e := engine.New()
	require.NoError(t, e.SetLots([]models.Lot{
		{ID: "lotA", Name: "Lot A", Category: models.CategoryAttacker, Group: "Inter", BaseValue: 50},
	}))
	require.NoError(t, e.Initialize(500))
	require.NoError(t, e.Start())
	require.NoError(t, e.Bid(engine.AdminID, 60))
	return e.Snapshot()
}

type fakeStream struct {
	msgs []*nats.Msg
	err  error
}

func (f *fakeStream) PublishMsg(_ context.Context, msg *nats.Msg, _ ...jetstream.PublishOpt) (*jetstream.PubAck, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.msgs = append(f.msgs, msg)
	return &jetstream.PubAck{Stream: "AUCTION_SNAPSHOTS", Sequence: uint64(len(f.msgs))}, nil
}

type fakeApplier struct {
	got []coordinator.Remote
	err error
}

func (f *fakeApplier) ApplyRemote(_ context.Context, msg coordinator.Remote) error {
	if f.err != nil {
		return f.err
	}
	f.got = append(f.got, msg)
	return nil
}

func TestEnvelope_RoundTrip(t *testing.T) {
	snap := biddingSnapshot(t)
	at := time.Date(2024, 8, 20, 21, 0, 0, 0, time.UTC)

	data, err := EncodeEnvelope("node-a", 12, at, snap)
	require.NoError(t, err)

	var raw map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(data, &raw))
	assert.ElementsMatch(t, []string{"instanceId", "version", "publishedAt", "snapshot"}, keys(raw))

	env, decoded, err := DecodeEnvelope(data)
	require.NoError(t, err)
	assert.Equal(t, "node-a", env.InstanceID)
	assert.Equal(t, uint64(12), env.Version)
	assert.True(t, env.PublishedAt.Equal(at))
	assert.Equal(t, snap.CurrentBid, decoded.CurrentBid)
	assert.Equal(t, snap.Status, decoded.Status)
}

func keys(m map[string]json.RawMessage) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	return out
}

func TestDecodeEnvelope_Malformed(t *testing.T) {
	tests := []struct {
		name string
		data string
	}{
		{"garbage", `not json`},
		{"no instance", `{"version":1,"snapshot":{}}`},
		{"no snapshot", `{"instanceId":"a","version":1}`},
		{"invalid snapshot", `{"instanceId":"a","version":1,"snapshot":{"status":"LIMBO","cursor":-1}}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := DecodeEnvelope([]byte(tt.data))
			assert.ErrorIs(t, err, ErrMalformedEnvelope)
		})
	}
}

func TestPublisher_PublishesOwnUpdatesOnly(t *testing.T) {
	stream := &fakeStream{}
	cfg := DefaultJetStreamConfig()
	p := NewPublisher(stream, cfg, "node-a", clockwork.NewFakeClock())
	snap := biddingSnapshot(t)

	require.NoError(t, p.Publish(context.Background(), coordinator.Update{Version: 3, Origin: "node-a", Snapshot: snap}))
	require.NoError(t, p.Publish(context.Background(), coordinator.Update{Version: 9, Origin: "node-b", Snapshot: snap}))

	require.Len(t, stream.msgs, 1)
	msg := stream.msgs[0]
	assert.Equal(t, "auction.snapshot", msg.Subject)
	assert.Equal(t, "node-a", msg.Header.Get("Instance-ID"))
	assert.Equal(t, "3", msg.Header.Get("Snapshot-Version"))
	assert.Equal(t, "BIDDING", msg.Header.Get("Auction-Status"))

	env, _, err := DecodeEnvelope(msg.Data)
	require.NoError(t, err)
	assert.Equal(t, uint64(3), env.Version)
}

// replaySubscriber hands one batch to each subscription and then closes it,
// as the coordinator does with a subscriber it drops.
type replaySubscriber struct {
	batches [][]coordinator.Update
	joins   int
}

func (f *replaySubscriber) Subscribe(_ context.Context, _ string, outbox chan coordinator.Update) error {
	f.joins++
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

func TestPublisher_RunSurvivesErrors(t *testing.T) {
	stream := &fakeStream{err: errors.New("nats down")}
	p := NewPublisher(stream, DefaultJetStreamConfig(), "node-a", nil)

	sub := &replaySubscriber{batches: [][]coordinator.Update{
		{{Version: 1, Origin: "node-a", Snapshot: biddingSnapshot(t)}},
	}}
	require.NoError(t, p.Run(context.Background(), sub))
	assert.Empty(t, stream.msgs)
}

func TestPublisher_RunResubscribesAfterDrop(t *testing.T) {
	stream := &fakeStream{}
	p := NewPublisher(stream, DefaultJetStreamConfig(), "node-a", clockwork.NewFakeClock())
	snap := biddingSnapshot(t)

	sub := &replaySubscriber{batches: [][]coordinator.Update{
		{
			{Version: 1, Origin: "node-a", Snapshot: snap},
			{Version: 2, Origin: "node-a", Snapshot: snap},
		},
		{{Version: 70, Origin: "node-a", Snapshot: snap}},
	}}
	require.NoError(t, p.Run(context.Background(), sub))

	assert.Equal(t, 3, sub.joins)
	require.Len(t, stream.msgs, 2)
	assert.Equal(t, "2", stream.msgs[0].Header.Get("Snapshot-Version"))
	assert.Equal(t, "70", stream.msgs[1].Header.Get("Snapshot-Version"))
}

func TestPublisher_RunStopsWithContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	p := NewPublisher(&fakeStream{}, DefaultJetStreamConfig(), "node-a", nil)

	done := make(chan error, 1)
	go func() {
		done <- p.Run(ctx, coordinatorStub{})
	}()
	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("publisher did not stop when ctx was cancelled")
	}
}

// coordinatorStub accepts the subscription and never sends anything.
type coordinatorStub struct{}

func (coordinatorStub) Subscribe(context.Context, string, chan coordinator.Update) error {
	return nil
}

func TestConsumer_Handle(t *testing.T) {
	applier := &fakeApplier{}
	c := &Consumer{config: DefaultJetStreamConfig(), instanceID: "node-b", applier: applier}
	snap := biddingSnapshot(t)
	ctx := context.Background()

	data, err := EncodeEnvelope("node-a", 4, time.Now(), snap)
	require.NoError(t, err)
	require.NoError(t, c.Handle(ctx, data))
	require.Len(t, applier.got, 1)
	assert.Equal(t, "node-a", applier.got[0].InstanceID)
	assert.Equal(t, uint64(4), applier.got[0].Version)

	own, err := EncodeEnvelope("node-b", 5, time.Now(), snap)
	require.NoError(t, err)
	require.NoError(t, c.Handle(ctx, own))
	assert.Len(t, applier.got, 1, "own snapshots are skipped")

	err = c.Handle(ctx, []byte(`{"instanceId":"node-a"}`))
	assert.ErrorIs(t, err, ErrMalformedEnvelope)
	assert.Len(t, applier.got, 1, "malformed snapshots never reach the coordinator")

	applier.err = coordinator.ErrStopped
	err = c.Handle(ctx, data)
	assert.ErrorIs(t, err, coordinator.ErrStopped)
	assert.NotErrorIs(t, err, ErrMalformedEnvelope)
}

func TestConfig_Subjects(t *testing.T) {
	cfg := DefaultJetStreamConfig()
	cfg.SubjectPrefix = "league42"
	assert.Equal(t, "league42.snapshot", cfg.SnapshotSubject())
}
