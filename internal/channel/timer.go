package channel

import (
	"time"

	"n1sec/internal/wire"
)

// statusTimerPeriod is the channel-status timer cadence, fixed at the
// value the original implementation used (marked there as a placeholder;
// see DESIGN.md for the resolution of this open question).
const statusTimerPeriod = 10 * time.Second

// realTimer adapts time.Timer to the Timer capability.
type realTimer struct{ t *time.Timer }

func (r realTimer) Stop() bool { return r.t.Stop() }

func realTimerFactory(d time.Duration, fn func()) Timer {
	return realTimer{t: time.AfterFunc(d, fn)}
}

// armStatusTimer (re)schedules the periodic ConsistencyStatus broadcast.
// It is one-shot-and-reschedule rather than a repeating ticker, matching
// the source's self-rescheduling Timer(..., 10000, [this]{ ...;
// set_channel_status_timer(); }) shape: that way a re-arm (Activate) or
// disarmStatusTimer can cancel a still-pending fire without racing a
// ticker that has already queued its next tick.
func (c *Channel) armStatusTimer() {
	if c.newTimer == nil {
		return
	}
	if c.statusTimer != nil {
		c.statusTimer.Stop()
	}
	c.statusTimer = c.newTimer(statusTimerPeriod, func() {
		c.onStatusTimerFired()
	})
}

func (c *Channel) disarmStatusTimer() {
	if c.statusTimer != nil {
		c.statusTimer.Stop()
		c.statusTimer = nil
	}
}

// onStatusTimerFired broadcasts a ConsistencyStatus and reschedules
// itself, but only while the channel is still active; an inactive channel
// never rearms (spec §5, §9: the timer is armed by activate()). Every
// member records a ConsistencyCheck event for the sender on receipt, and
// the sender answers its own ConsistencyStatus with a signed
// ConsistencyCheck (dispatch.go handleConsistencyStatus).
func (c *Channel) onStatusTimerFired() {
	if !c.active {
		return
	}
	if payload, err := wire.EncodeConsistencyStatus(); err == nil {
		_ = c.room.SendMessage(payload)
	}
	c.armStatusTimer()
}
