package timers

import (
	"log"
	"time"
)

// TimeTeller can be used to get the current virtual time.
type TimeTeller interface {
	CurrentTime() time.Duration
}

// A VirtualClock tracks the virtual time of one engine. It starts at zero
// and advances only in steps of at most one tick quantum, never backward.
// No wall-clock time is involved.
type VirtualClock struct {
	now     time.Duration
	quantum time.Duration
}

// NewVirtualClock creates a clock at time zero with the given tick quantum.
func NewVirtualClock(quantum time.Duration) *VirtualClock {
	if quantum <= 0 {
		log.Panic("tick quantum must be positive")
	}

	c := new(VirtualClock)
	c.quantum = quantum

	return c
}

// CurrentTime returns the absolute virtual time.
func (c *VirtualClock) CurrentTime() time.Duration {
	return c.now
}

// TickQuantum returns the fixed step granularity of the clock.
func (c *VirtualClock) TickQuantum() time.Duration {
	return c.quantum
}

// step advances the clock by one tick quantum, capped at remaining so that
// a partial final step lands exactly on the requested total. It returns how
// far the clock moved.
func (c *VirtualClock) step(remaining time.Duration) time.Duration {
	step := c.quantum
	if remaining < step {
		step = remaining
	}

	c.now += step

	return step
}
