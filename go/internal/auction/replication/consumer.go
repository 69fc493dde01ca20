package replication

import (
	"context"
	"errors"
	"fmt"

	"github.com/nats-io/nats.go/jetstream"
	"github.com/rs/zerolog/log"

	"github.com/mcdev12/fantasta/go/internal/auction/coordinator"
)

// Applier receives validated remote snapshots.
type Applier interface {
	ApplyRemote(ctx context.Context, msg coordinator.Remote) error
}

// Consumer feeds snapshots published by other instances into the local
// coordinator. Last snapshot wins; state is never merged.
type Consumer struct {
	js         jetstream.JetStream
	consumer   jetstream.Consumer
	config     JetStreamConfig
	instanceID string
	applier    Applier
}

// NewConsumer creates the durable consumer for this instance.
func NewConsumer(ctx context.Context, js jetstream.JetStream, cfg JetStreamConfig, instanceID string, applier Applier) (*Consumer, error) {
	c := &Consumer{
		js:         js,
		config:     cfg,
		instanceID: instanceID,
		applier:    applier,
	}
	if err := c.ensureConsumer(ctx); err != nil {
		return nil, fmt.Errorf("ensure consumer: %w", err)
	}
	return c, nil
}

func (c *Consumer) name() string {
	return c.config.ConsumerName + "-" + c.instanceID
}

func (c *Consumer) ensureConsumer(ctx context.Context) error {
	stream, err := c.js.Stream(ctx, c.config.StreamName)
	if err != nil {
		return fmt.Errorf("get stream: %w", err)
	}

	consumerConfig := jetstream.ConsumerConfig{
		Name:              c.name(),
		Durable:           c.name(),
		Description:       "Auction snapshot follower",
		FilterSubject:     c.config.SnapshotSubject(),
		DeliverPolicy:     jetstream.DeliverLastPerSubjectPolicy,
		AckPolicy:         jetstream.AckExplicitPolicy,
		MaxDeliver:        c.config.MaxDeliver,
		AckWait:           c.config.AckWait,
		ReplayPolicy:      jetstream.ReplayInstantPolicy,
		InactiveThreshold: c.config.InactiveThreshold,
	}

	consumer, err := stream.CreateOrUpdateConsumer(ctx, consumerConfig)
	if err != nil {
		return fmt.Errorf("create consumer: %w", err)
	}
	log.Info().
		Str("consumer", c.name()).
		Str("stream", c.config.StreamName).
		Msg("JetStream snapshot consumer ready")

	c.consumer = consumer
	return nil
}

// Start consumes snapshots until ctx is cancelled.
func (c *Consumer) Start(ctx context.Context) error {
	log.Info().
		Str("consumer", c.name()).
		Str("subject", c.config.SnapshotSubject()).
		Msg("starting snapshot consumer")

	messageCh := make(chan jetstream.Msg, 64)
	consumeCtx, err := c.consumer.Consume(func(msg jetstream.Msg) {
		select {
		case messageCh <- msg:
		case <-ctx.Done():
			_ = msg.Nak()
		}
	})
	if err != nil {
		return fmt.Errorf("start consumer: %w", err)
	}
	defer consumeCtx.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("snapshot consumer shutting down")
			return nil
		case msg := <-messageCh:
			err := c.Handle(ctx, msg.Data())
			switch {
			case err == nil, errors.Is(err, ErrMalformedEnvelope):
				// malformed snapshots are dropped, redelivery would not fix them
				if ackErr := msg.Ack(); ackErr != nil {
					log.Error().Err(ackErr).Msg("failed to ACK snapshot")
				}
			default:
				if nakErr := msg.Nak(); nakErr != nil {
					log.Error().Err(nakErr).Msg("failed to NAK snapshot")
				}
			}
		}
	}
}

// Handle decodes one message payload and hands it to the applier.
func (c *Consumer) Handle(ctx context.Context, data []byte) error {
	env, snap, err := DecodeEnvelope(data)
	if err != nil {
		log.Warn().Err(err).Msg("rejected malformed snapshot")
		return err
	}
	if env.InstanceID == c.instanceID {
		return nil
	}

	log.Debug().
		Str("remote_instance_id", env.InstanceID).
		Uint64("version", env.Version).
		Str("status", string(snap.Status)).
		Msg("received snapshot")

	if err := c.applier.ApplyRemote(ctx, coordinator.Remote{
		InstanceID: env.InstanceID,
		Version:    env.Version,
		Snapshot:   snap,
	}); err != nil {
		return fmt.Errorf("apply remote snapshot: %w", err)
	}
	return nil
}
