// Package countdown owns the per-phase "time remaining" value of the auction.
//
// A Countdown is driven one tick at a time. It does not run its own timer;
// the Driver (or a test) calls Tick once per second. Every Start, Cancel and
// expiry bumps the epoch so ticks issued for an earlier phase can be
// recognised and dropped.
package countdown

// State is the scheduler state.
type State int

const (
	StateIdle State = iota
	StateRunning
)

func (s State) String() string {
	if s == StateRunning {
		return "running"
	}
	return "idle"
}

// Countdown is a single-phase repeating decrement with an expiry callback.
// It is not safe for concurrent use; callers serialize access.
type Countdown struct {
	state     State
	remaining int
	epoch     uint64
	onExpire  func()
}

// New creates an idle countdown. onExpire runs when a running phase reaches zero.
func New(onExpire func()) *Countdown {
	return &Countdown{onExpire: onExpire}
}

// Start cancels any running phase and begins a new one of the given length.
// A non-positive duration expires on the first tick.
func (c *Countdown) Start(seconds int) {
	if seconds < 1 {
		seconds = 1
	}
	c.epoch++
	c.remaining = seconds
	c.state = StateRunning
}

// Tick advances a running phase by one second. At one second remaining it
// fires the expiry callback and goes idle; the callback may start a new phase.
// It reports whether the tick was applied.
func (c *Countdown) Tick() bool {
	if c.state != StateRunning {
		return false
	}
	if c.remaining > 1 {
		c.remaining--
		return true
	}

	c.remaining = 0
	c.state = StateIdle
	c.epoch++
	if c.onExpire != nil {
		c.onExpire()
	}
	return true
}

// TickAt applies a tick only if it was issued for the current epoch.
func (c *Countdown) TickAt(epoch uint64) bool {
	if epoch != c.epoch {
		return false
	}
	return c.Tick()
}

// Cancel stops the running phase without firing expiry. Remaining time is kept.
func (c *Countdown) Cancel() {
	if c.state == StateIdle {
		return
	}
	c.epoch++
	c.state = StateIdle
}

// Pause stops the running phase and returns the time left on it.
func (c *Countdown) Pause() int {
	c.Cancel()
	return c.remaining
}

// Resume restarts with the remaining time captured at Pause.
func (c *Countdown) Resume(remaining int) {
	c.Start(remaining)
}

// Restore sets remaining time without starting a phase. Used when state is
// replaced from a snapshot.
func (c *Countdown) Restore(remaining int) {
	c.Cancel()
	c.remaining = remaining
}

// Remaining returns the seconds left in the current (or last) phase.
func (c *Countdown) Remaining() int {
	return c.remaining
}

// Running reports whether a phase is active.
func (c *Countdown) Running() bool {
	return c.state == StateRunning
}

// State returns the scheduler state.
func (c *Countdown) State() State {
	return c.state
}

// Epoch identifies the current phase.
func (c *Countdown) Epoch() uint64 {
	return c.epoch
}
