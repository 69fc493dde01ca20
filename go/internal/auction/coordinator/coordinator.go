// Package coordinator owns the auction engine. A single goroutine applies
// external commands, remote snapshots and countdown ticks one at a time, then
// fans the resulting snapshot out to subscribers.
package coordinator

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"

	"github.com/mcdev12/fantasta/go/internal/auction/countdown"
	"github.com/mcdev12/fantasta/go/internal/auction/engine"
	"github.com/mcdev12/fantasta/go/internal/auction/events"
)

var (
	ErrStopped        = errors.New("coordinator stopped")
	ErrNoAuthority    = errors.New("no authority to forward the command to")
	ErrUnknownCommand = errors.New("unknown command")

	errNotAuthority = errors.New("not the authority")
)

// Role decides whether this instance advances the state machine.
type Role int

const (
	// RoleAuthority runs the countdown and accepts commands.
	RoleAuthority Role = iota
	// RoleFollower mirrors remote snapshots and forwards commands.
	RoleFollower
)

func (r Role) String() string {
	if r == RoleFollower {
		return "follower"
	}
	return "authority"
}

// ParseRole maps a config value to a Role.
func ParseRole(s string) (Role, error) {
	switch s {
	case "", "authority":
		return RoleAuthority, nil
	case "follower":
		return RoleFollower, nil
	}
	return RoleAuthority, fmt.Errorf("unknown role %q", s)
}

// Forwarder sends a command to the authority on behalf of a follower.
type Forwarder interface {
	Forward(ctx context.Context, cmd Command) (Result, error)
}

// EventSink receives the engine events produced by each state change.
// Enqueue is called from the coordinator loop and must not block.
type EventSink interface {
	Enqueue(evs []events.Event)
}

// Config holds the coordinator settings.
type Config struct {
	InstanceID   string
	Role         Role
	Clock        clockwork.Clock
	TickInterval time.Duration
	Forwarder    Forwarder
	Sinks        []EventSink
	// Version seeds the state version, e.g. after restoring a stored snapshot.
	Version uint64
}

// Coordinator is the single writer for one engine.
type Coordinator struct {
	inbox       chan Msg
	engine      *engine.Engine
	driver      *countdown.Driver
	role        Role
	instanceID  string
	authorityID string // instance whose snapshots this one mirrors
	version     uint64
	subscribers map[string]chan Update
	forwarder   Forwarder
	sinks       []EventSink

	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}
}

// New starts the coordinator loop. The loop exits when parent is cancelled
// or Stop is called.
func New(parent context.Context, eng *engine.Engine, cfg Config) *Coordinator {
	if cfg.Clock == nil {
		cfg.Clock = clockwork.NewRealClock()
	}
	ctx, cancel := context.WithCancel(parent)

	c := &Coordinator{
		inbox:       make(chan Msg, 64),
		engine:      eng,
		driver:      countdown.NewDriver(cfg.Clock, cfg.TickInterval),
		role:        cfg.Role,
		instanceID:  cfg.InstanceID,
		version:     cfg.Version,
		subscribers: make(map[string]chan Update),
		forwarder:   cfg.Forwarder,
		sinks:       cfg.Sinks,
		ctx:         ctx,
		cancel:      cancel,
		done:        make(chan struct{}),
	}
	if c.role == RoleAuthority {
		eng.Rearm()
		c.driver.Sync(eng.Countdown())
	}

	go c.loop()
	return c
}

func (c *Coordinator) loop() {
	defer close(c.done)
	for {
		select {
		case <-c.ctx.Done():
			c.shutdown()
			return

		case <-c.driver.C():
			if c.role != RoleAuthority {
				c.driver.Stop()
				break
			}
			if c.engine.TickAt(c.driver.Epoch()) {
				c.driver.Sync(c.engine.Countdown())
				c.changed()
			}

		case m := <-c.inbox:
			switch msg := m.(type) {
			case Submit:
				msg.Reply <- c.submit(msg.Cmd)

			case Join:
				c.subscribers[msg.ID] = msg.Outbox
				c.sendTo(msg.ID, msg.Outbox, c.update())

			case Leave:
				if ch, ok := c.subscribers[msg.ID]; ok {
					close(ch)
					delete(c.subscribers, msg.ID)
				}

			case Remote:
				c.applyRemote(msg)

			case Promote:
				c.promote()

			case GetState:
				msg.Reply <- View{
					Version:        c.version,
					Role:           c.role,
					NumSubscribers: len(c.subscribers),
					Snapshot:       c.engine.Snapshot(),
				}

			case Shutdown:
				c.shutdown()
				return
			}
		}
	}
}

func (c *Coordinator) submit(cmd Command) Reply {
	if c.role != RoleAuthority {
		return Reply{Err: errNotAuthority}
	}

	res, err := Apply(c.engine, cmd)
	c.driver.Sync(c.engine.Countdown())
	if err != nil {
		// rejected commands leave the engine untouched
		return Reply{Result: Result{Version: c.version}, Err: err}
	}

	c.changed()
	res.Version = c.version
	return Reply{Result: res}
}

func (c *Coordinator) applyRemote(msg Remote) {
	if msg.InstanceID == c.instanceID {
		return
	}
	if msg.InstanceID == c.authorityID && msg.Version <= c.version {
		log.Debug().
			Str("remote_instance_id", msg.InstanceID).
			Uint64("remote_version", msg.Version).
			Uint64("version", c.version).
			Msg("ignoring stale snapshot")
		return
	}

	if err := c.engine.Restore(msg.Snapshot); err != nil {
		log.Error().
			Err(err).
			Str("remote_instance_id", msg.InstanceID).
			Msg("rejected remote snapshot")
		return
	}

	if c.role == RoleAuthority {
		log.Warn().
			Str("instance_id", c.instanceID).
			Str("remote_instance_id", msg.InstanceID).
			Uint64("remote_version", msg.Version).
			Msg("snapshot from another authority, stepping down to follower")
		c.role = RoleFollower
	}
	c.driver.Stop()
	// followers never emit their own events
	c.engine.DrainEvents()

	c.authorityID = msg.InstanceID
	c.version = msg.Version
	c.broadcast(Update{Version: c.version, Origin: msg.InstanceID, Snapshot: c.engine.Snapshot()})
}

func (c *Coordinator) promote() {
	if c.role == RoleAuthority {
		return
	}
	c.role = RoleAuthority
	c.authorityID = c.instanceID
	c.engine.Rearm()
	c.driver.Sync(c.engine.Countdown())

	log.Info().
		Str("instance_id", c.instanceID).
		Uint64("version", c.version).
		Msg("promoted to authority")
	c.changed()
}

// changed publishes the new state after a command or tick was applied.
func (c *Coordinator) changed() {
	c.version++

	if evs := c.engine.DrainEvents(); len(evs) > 0 {
		for _, ev := range evs {
			log.Debug().
				Str("event_id", ev.ID).
				Str("event_type", string(ev.Type)).
				Uint64("version", c.version).
				Msg("auction event")
		}
		for _, sink := range c.sinks {
			sink.Enqueue(evs)
		}
	}

	c.broadcast(c.update())
}

func (c *Coordinator) update() Update {
	return Update{Version: c.version, Origin: c.instanceID, Snapshot: c.engine.Snapshot()}
}

func (c *Coordinator) broadcast(u Update) {
	for id, ch := range c.subscribers {
		c.sendTo(id, ch, u)
	}
}

func (c *Coordinator) sendTo(id string, ch chan Update, u Update) {
	select {
	case ch <- u:
	default:
		// subscriber is slow or full, drop it
		log.Warn().Str("subscriber_id", id).Msg("dropping slow subscriber")
		close(ch)
		delete(c.subscribers, id)
	}
}

func (c *Coordinator) shutdown() {
	c.driver.Stop()
	for id, ch := range c.subscribers {
		close(ch)
		delete(c.subscribers, id)
	}
	c.cancel()
}

func (c *Coordinator) send(ctx context.Context, m Msg) error {
	// the loop may not have closed done yet while it shuts down
	if c.ctx.Err() != nil {
		return ErrStopped
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-c.done:
		return ErrStopped
	case c.inbox <- m:
		return nil
	}
}

// Submit applies cmd on the authority. On a follower the command is routed
// through the Forwarder instead of touching local state.
func (c *Coordinator) Submit(ctx context.Context, cmd Command) (Result, error) {
	reply := make(chan Reply, 1)
	if err := c.send(ctx, Submit{Cmd: cmd, Reply: reply}); err != nil {
		return Result{}, err
	}

	var r Reply
	select {
	case <-ctx.Done():
		return Result{}, ctx.Err()
	case <-c.done:
		return Result{}, ErrStopped
	case r = <-reply:
	}

	if !errors.Is(r.Err, errNotAuthority) {
		return r.Result, r.Err
	}
	if c.forwarder == nil {
		return Result{}, ErrNoAuthority
	}
	return c.forwarder.Forward(ctx, cmd)
}

// Subscribe registers outbox for updates. The current state is delivered
// immediately. A subscriber that cannot keep up is dropped and its outbox
// closed.
func (c *Coordinator) Subscribe(ctx context.Context, id string, outbox chan Update) error {
	return c.send(ctx, Join{ID: id, Outbox: outbox})
}

// Unsubscribe removes a subscriber and closes its outbox.
func (c *Coordinator) Unsubscribe(ctx context.Context, id string) error {
	return c.send(ctx, Leave{ID: id})
}

// ApplyRemote hands a snapshot received from another instance to the loop.
func (c *Coordinator) ApplyRemote(ctx context.Context, msg Remote) error {
	return c.send(ctx, msg)
}

// Promote turns this instance into the authority.
func (c *Coordinator) Promote(ctx context.Context) error {
	return c.send(ctx, Promote{})
}

// State returns a consistent view of the coordinator.
func (c *Coordinator) State(ctx context.Context) (View, error) {
	reply := make(chan View, 1)
	if err := c.send(ctx, GetState{Reply: reply}); err != nil {
		return View{}, err
	}
	select {
	case <-ctx.Done():
		return View{}, ctx.Err()
	case <-c.done:
		return View{}, ErrStopped
	case v := <-reply:
		return v, nil
	}
}

// InstanceID identifies this process in replicated snapshots.
func (c *Coordinator) InstanceID() string {
	return c.instanceID
}

// Inbox exposes the raw inbox.
func (c *Coordinator) Inbox() chan<- Msg { return c.inbox }

// Stop shuts the loop down and waits for it to exit.
func (c *Coordinator) Stop() {
	c.cancel()
	<-c.done
}
