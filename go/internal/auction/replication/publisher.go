package replication

import (
	"context"
	"fmt"
	"strconv"

	"github.com/jonboulle/clockwork"
	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
	"github.com/rs/zerolog/log"

	"github.com/mcdev12/fantasta/go/internal/auction/coordinator"
)

// StreamPublisher is the part of jetstream.JetStream the publisher uses.
type StreamPublisher interface {
	PublishMsg(ctx context.Context, msg *nats.Msg, opts ...jetstream.PublishOpt) (*jetstream.PubAck, error)
}

// Publisher pushes the authority's snapshots to JetStream.
type Publisher struct {
	js         StreamPublisher
	config     JetStreamConfig
	instanceID string
	clock      clockwork.Clock
}

// NewPublisher creates a publisher for snapshots produced by instanceID.
func NewPublisher(js StreamPublisher, cfg JetStreamConfig, instanceID string, clock clockwork.Clock) *Publisher {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Publisher{js: js, config: cfg, instanceID: instanceID, clock: clock}
}

// EnsureStream creates the snapshot stream, or updates it if its limits drifted.
func EnsureStream(ctx context.Context, js jetstream.JetStream, cfg JetStreamConfig) error {
	sc := jetstream.StreamConfig{
		Name:              cfg.StreamName,
		Description:       "Auction snapshots replicated from the authority",
		Subjects:          []string{fmt.Sprintf("%s.>", cfg.SubjectPrefix)},
		Retention:         jetstream.LimitsPolicy,
		MaxAge:            cfg.MaxAge,
		MaxMsgsPerSubject: cfg.MaxMsgsPerSubject,
		Storage:           jetstream.FileStorage,
		Replicas:          cfg.Replicas,
		Duplicates:        cfg.DuplicateWindow,
	}

	stream, err := js.Stream(ctx, cfg.StreamName)
	if err != nil {
		if _, err = js.CreateStream(ctx, sc); err != nil {
			return fmt.Errorf("create stream: %w", err)
		}
		log.Info().
			Str("stream", cfg.StreamName).
			Msg("created JetStream stream")
		return nil
	}

	info, err := stream.Info(ctx)
	if err != nil {
		return fmt.Errorf("get stream info: %w", err)
	}
	if !isStreamConfigEqual(info.Config, sc) {
		if _, err = js.UpdateStream(ctx, sc); err != nil {
			return fmt.Errorf("update stream: %w", err)
		}
		log.Info().
			Str("stream", cfg.StreamName).
			Msg("updated JetStream stream")
	}
	return nil
}

// Publish sends one update. Updates that originated on another instance are
// not republished.
func (p *Publisher) Publish(ctx context.Context, u coordinator.Update) error {
	if u.Origin != p.instanceID {
		return nil
	}

	data, err := EncodeEnvelope(p.instanceID, u.Version, p.clock.Now(), u.Snapshot)
	if err != nil {
		return err
	}

	subject := p.config.SnapshotSubject()
	version := strconv.FormatUint(u.Version, 10)
	ack, err := p.js.PublishMsg(ctx, &nats.Msg{
		Subject: subject,
		Data:    data,
		Header: nats.Header{
			"Instance-ID":      []string{p.instanceID},
			"Snapshot-Version": []string{version},
			"Auction-Status":   []string{string(u.Snapshot.Status)},
		},
	},
		jetstream.WithMsgID(p.instanceID+"-"+version),
		jetstream.WithExpectStream(p.config.StreamName),
	)
	if err != nil {
		return fmt.Errorf("publish to JetStream: %w", err)
	}

	log.Debug().
		Str("subject", subject).
		Uint64("version", u.Version).
		Uint64("sequence", ack.Sequence).
		Str("stream", ack.Stream).
		Msg("published snapshot")
	return nil
}

// Run publishes this instance's updates until ctx is cancelled or the
// coordinator stops. A backlog is coalesced to the newest snapshot, and a
// subscription dropped for being slow is renewed. Publish failures are logged
// and the loop continues; the next snapshot supersedes the lost one.
func (p *Publisher) Run(ctx context.Context, sub coordinator.Subscriber) error {
	err := coordinator.Follow(ctx, sub, "replication", 64, func(u coordinator.Update) {
		if err := p.Publish(ctx, u); err != nil {
			log.Error().
				Err(err).
				Uint64("version", u.Version).
				Msg("failed to publish snapshot")
		}
	})
	log.Info().Msg("snapshot publisher stopped")
	return err
}

func isStreamConfigEqual(a, b jetstream.StreamConfig) bool {
	return a.Name == b.Name &&
		a.MaxAge == b.MaxAge &&
		a.MaxMsgsPerSubject == b.MaxMsgsPerSubject &&
		a.Replicas == b.Replicas &&
		a.Duplicates == b.Duplicates
}
