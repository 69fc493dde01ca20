// Package replication carries snapshots from the authority to followers over
// NATS JetStream. The authority publishes every new state; followers consume
// the latest one and replace their local state with it.
package replication

import (
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
	"github.com/rs/zerolog/log"
)

type JetStreamConfig struct {
	URL               string
	StreamName        string
	SubjectPrefix     string
	ConsumerName      string
	MaxReconnects     int
	ReconnectWait     time.Duration
	MaxAge            time.Duration // How long to keep snapshots
	MaxMsgsPerSubject int64
	Replicas          int
	DuplicateWindow   time.Duration
	AckWait           time.Duration
	MaxDeliver        int
	InactiveThreshold time.Duration // Idle consumers are removed by the server
}

func DefaultJetStreamConfig() JetStreamConfig {
	return JetStreamConfig{
		URL:               nats.DefaultURL,
		StreamName:        "AUCTION_SNAPSHOTS",
		SubjectPrefix:     "auction",
		ConsumerName:      "auction-follower",
		MaxReconnects:     -1, // Infinite
		ReconnectWait:     2 * time.Second,
		MaxAge:            24 * time.Hour,
		MaxMsgsPerSubject: 16,
		Replicas:          1,
		DuplicateWindow:   2 * time.Minute,
		AckWait:           10 * time.Second,
		MaxDeliver:        5,
		InactiveThreshold: 10 * time.Minute,
	}
}

// SnapshotSubject is where the authority publishes its state.
func (c JetStreamConfig) SnapshotSubject() string {
	return c.SubjectPrefix + ".snapshot"
}

// Connect opens the NATS connection and JetStream context shared by the
// publisher and the consumer.
func Connect(cfg JetStreamConfig) (*nats.Conn, jetstream.JetStream, error) {
	opts := []nats.Option{
		nats.Name("fantasta-auction"),
		nats.MaxReconnects(cfg.MaxReconnects),
		nats.ReconnectWait(cfg.ReconnectWait),
		nats.DisconnectErrHandler(func(nc *nats.Conn, err error) {
			log.Error().Err(err).Msg("NATS disconnected")
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			log.Info().Str("url", nc.ConnectedUrl()).Msg("NATS reconnected")
		}),
		nats.ErrorHandler(func(nc *nats.Conn, sub *nats.Subscription, err error) {
			log.Error().Err(err).Msg("NATS error")
		}),
	}

	nc, err := nats.Connect(cfg.URL, opts...)
	if err != nil {
		return nil, nil, fmt.Errorf("connect to NATS: %w", err)
	}

	js, err := jetstream.New(nc)
	if err != nil {
		nc.Close()
		return nil, nil, fmt.Errorf("create JetStream context: %w", err)
	}
	return nc, js, nil
}
