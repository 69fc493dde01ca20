package coordinator

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog/log"
)

// Subscriber is the subscription half of the Coordinator.
type Subscriber interface {
	Subscribe(ctx context.Context, id string, outbox chan Update) error
}

// Follow subscribes id and calls fn with every update, skipping straight to
// the newest one when a backlog has built up. When the coordinator drops the
// subscription for being slow, Follow subscribes again. It returns nil once
// ctx is cancelled or the coordinator stops.
func Follow(ctx context.Context, sub Subscriber, id string, buffer int, fn func(Update)) error {
	updates := make(chan Update, buffer)
	if err := sub.Subscribe(ctx, id, updates); err != nil {
		return fmt.Errorf("subscribe %s: %w", id, err)
	}

	for {
		select {
		case <-ctx.Done():
			return nil

		case u, ok := <-updates:
			if ok {
				u, ok = Latest(u, updates)
				fn(u)
			}
			if ok {
				continue
			}

			log.Warn().Str("subscriber_id", id).Msg("subscription closed, resubscribing")
			updates = make(chan Update, buffer)
			if err := sub.Subscribe(ctx, id, updates); err != nil {
				if ctx.Err() != nil || errors.Is(err, ErrStopped) {
					return nil
				}
				return fmt.Errorf("resubscribe %s: %w", id, err)
			}
		}
	}
}

// Latest drains whatever is already queued and returns the newest update.
// ok is false when the channel was closed while draining.
func Latest(u Update, updates <-chan Update) (Update, bool) {
	for {
		select {
		case next, ok := <-updates:
			if !ok {
				return u, false
			}
			u = next
		default:
			return u, true
		}
	}
}
