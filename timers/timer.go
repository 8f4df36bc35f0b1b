package timers

import (
	"fmt"
	"time"
)

// A Handle identifies a timer for as long as its slot stays allocated.
// Handle 0 is never assigned and means "no timer".
type Handle uint32

// InvalidHandle is returned by Create when the timer cannot be created. It
// never addresses a live timer.
const InvalidHandle Handle = 0

// Behavior determines what a timer does after it fires.
type Behavior int

const (
	// SingleShot timers fire once per activation and then deactivate.
	SingleShot Behavior = iota

	// AutoReload timers re-arm for another full period on every firing.
	AutoReload
)

func (b Behavior) String() string {
	switch b {
	case SingleShot:
		return "SingleShot"
	case AutoReload:
		return "AutoReload"
	default:
		return fmt.Sprintf("Behavior(%d)", int(b))
	}
}

// A Callback is invoked when a timer fires. The context is the value the
// timer was created with; the engine never inspects or retains it beyond
// the timer's lifetime.
type Callback func(h Handle, context any)

// NoExpiry is returned by ExpiryTime for a timer that is not active.
const NoExpiry time.Duration = -1

// DefaultTickQuantum is the tick quantum used when none is configured.
const DefaultTickQuantum = 10 * time.Millisecond

// A timerSlot is one entry of the timer table. Slots outlive the timers
// they host; Delete resets the slot for reuse by a later Create.
type timerSlot struct {
	id         string
	handle     Handle
	name       string
	period     time.Duration
	behavior   Behavior
	context    any
	callback   Callback
	allocated  bool
	active     bool
	nextExpiry time.Duration
}
