package countdown

import (
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"
)

// Clock is the subset of clockwork.Clock the driver needs.
// In production, use clockwork.NewRealClock(). In tests, a FakeClock.
type Clock interface {
	NewTicker(d time.Duration) clockwork.Ticker
}

// Driver turns wall-clock seconds into ticks for one phase at a time. It is
// owned by the single goroutine that owns the Countdown: Sync is called after
// every command and the loop selects on C().
type Driver struct {
	clock    Clock
	interval time.Duration
	ticker   clockwork.Ticker
	epoch    uint64
	armed    bool
}

// NewDriver creates a driver emitting one tick per interval.
func NewDriver(clock Clock, interval time.Duration) *Driver {
	if interval <= 0 {
		interval = time.Second
	}
	return &Driver{clock: clock, interval: interval}
}

// Sync re-arms the ticker when the countdown has moved to a new phase and
// stops it when the countdown is idle. Stopping the old ticker discards any
// tick that was pending for the previous phase.
func (d *Driver) Sync(c *Countdown) {
	if !c.Running() {
		d.Stop()
		return
	}
	if d.armed && d.epoch == c.Epoch() {
		return
	}

	d.Stop()
	d.ticker = d.clock.NewTicker(d.interval)
	d.epoch = c.Epoch()
	d.armed = true

	log.Debug().
		Uint64("epoch", d.epoch).
		Int("remaining", c.Remaining()).
		Msg("countdown ticker armed")
}

// C returns the tick channel of the armed ticker, or nil when idle. Receiving
// from a nil channel blocks forever, so an idle driver never fires in a select.
func (d *Driver) C() <-chan time.Time {
	if !d.armed {
		return nil
	}
	return d.ticker.Chan()
}

// Epoch returns the phase the armed ticker belongs to.
func (d *Driver) Epoch() uint64 {
	return d.epoch
}

// Stop disarms the ticker.
func (d *Driver) Stop() {
	if !d.armed {
		return
	}
	d.ticker.Stop()
	d.ticker = nil
	d.armed = false
}
