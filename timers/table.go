package timers

import (
	"log"
	"time"
)

// initialSlotCount is the slot capacity a table starts with. The table
// grows without bound beyond it.
const initialSlotCount = 16

// A TimerTable owns the timer slots and implements every timer operation
// that does not advance time. A handle is the slot index plus one, so
// handle 0 stays free to mean "no timer". Freed slots are recycled by later
// Create calls, which keeps handles dense.
type TimerTable struct {
	timeTeller TimeTeller
	quantum    time.Duration
	slots      []timerSlot
}

// NewTimerTable creates an empty table. Periods are validated against the
// given tick quantum, and activation times are read from the time teller.
func NewTimerTable(timeTeller TimeTeller, quantum time.Duration) *TimerTable {
	if quantum <= 0 {
		log.Panic("tick quantum must be positive")
	}

	t := new(TimerTable)
	t.timeTeller = timeTeller
	t.quantum = quantum
	t.slots = make([]timerSlot, 0, initialSlotCount)

	return t
}

// Create allocates a timer in the first free slot and returns its handle.
// It returns InvalidHandle if the period is not positive or not a whole
// multiple of the tick quantum. The new timer is inactive until Start. A
// nil callback is allowed; such a timer changes state on expiry but invokes
// nothing.
func (t *TimerTable) Create(
	name string,
	period time.Duration,
	behavior Behavior,
	context any,
	callback Callback,
) Handle {
	if period <= 0 || period%t.quantum != 0 {
		return InvalidHandle
	}

	index := t.freeSlotIndex()
	handle := Handle(index + 1)

	t.slots[index] = timerSlot{
		id:        GetIDGenerator().Generate(),
		handle:    handle,
		name:      name,
		period:    period,
		behavior:  behavior,
		context:   context,
		callback:  callback,
		allocated: true,
	}

	return handle
}

func (t *TimerTable) freeSlotIndex() int {
	for i := range t.slots {
		if !t.slots[i].allocated {
			return i
		}
	}

	t.slots = append(t.slots, timerSlot{})

	return len(t.slots) - 1
}

// Delete resets the timer's slot to its unallocated state and frees it for
// reuse. Stale handles to the slot become invalid until a later Create
// recycles it.
func (t *TimerTable) Delete(h Handle) bool {
	s := t.slot(h)
	if s == nil {
		return false
	}

	*s = timerSlot{}

	return true
}

// Start activates the timer for a full period from the current instant,
// regardless of its prior state.
func (t *TimerTable) Start(h Handle) bool {
	s := t.slot(h)
	if s == nil {
		return false
	}

	s.active = true
	s.nextExpiry = t.timeTeller.CurrentTime() + s.period

	return true
}

// Stop deactivates the timer without deleting it. The configuration is
// preserved and a later Start or Reset re-arms it.
func (t *TimerTable) Stop(h Handle) bool {
	s := t.slot(h)
	if s == nil {
		return false
	}

	s.active = false
	s.nextExpiry = 0

	return true
}

// Reset re-arms a full fresh period from the current instant, whether the
// timer was active, inactive, or mid-period. It is equivalent to Start.
func (t *TimerTable) Reset(h Handle) bool {
	return t.Start(h)
}

// ChangePeriod sets a new period and re-arms the timer to expire one new
// period from now, discarding any time elapsed under the old period. The
// new period must be positive and a whole multiple of the tick quantum.
func (t *TimerTable) ChangePeriod(h Handle, period time.Duration) bool {
	s := t.slot(h)
	if s == nil || period <= 0 || period%t.quantum != 0 {
		return false
	}

	s.period = period
	s.active = true
	s.nextExpiry = t.timeTeller.CurrentTime() + period

	return true
}

// SetBehavior updates the single-shot/auto-reload behavior. It does not
// alter the timer's expiry or active state.
func (t *TimerTable) SetBehavior(h Handle, b Behavior) bool {
	s := t.slot(h)
	if s == nil {
		return false
	}

	s.behavior = b

	return true
}

// SetContext replaces the opaque context passed to the timer's callback.
func (t *TimerTable) SetContext(h Handle, context any) bool {
	s := t.slot(h)
	if s == nil {
		return false
	}

	s.context = context

	return true
}

// Name returns the timer's display name.
//
// Name, Period, Behavior, and Context require a live handle. Passing an
// invalid handle is a contract violation and panics.
func (t *TimerTable) Name(h Handle) string {
	return t.mustSlot(h).name
}

// Period returns the timer's period.
func (t *TimerTable) Period(h Handle) time.Duration {
	return t.mustSlot(h).period
}

// Behavior returns the timer's firing behavior.
func (t *TimerTable) Behavior(h Handle) Behavior {
	return t.mustSlot(h).behavior
}

// Context returns the timer's context value.
func (t *TimerTable) Context(h Handle) any {
	return t.mustSlot(h).context
}

// ExpiryTime returns the absolute virtual time at which the timer next
// fires, or NoExpiry if the timer is not active. It never panics.
func (t *TimerTable) ExpiryTime(h Handle) time.Duration {
	s := t.slot(h)
	if s == nil || !s.active {
		return NoExpiry
	}

	return s.nextExpiry
}

// IsActive returns true if the handle addresses a live timer that is
// armed.
func (t *TimerTable) IsActive(h Handle) bool {
	s := t.slot(h)
	return s != nil && s.active
}

// Handles returns the handles of all live timers in slot order.
func (t *TimerTable) Handles() []Handle {
	handles := make([]Handle, 0, len(t.slots))
	for i := range t.slots {
		if t.slots[i].allocated {
			handles = append(handles, t.slots[i].handle)
		}
	}

	return handles
}

// slot returns the slot addressed by h, or nil if h does not address a
// live timer. The returned pointer must not be held across a Create, which
// can grow the table and relocate the slots.
func (t *TimerTable) slot(h Handle) *timerSlot {
	if h == InvalidHandle || int(h) > len(t.slots) {
		return nil
	}

	s := &t.slots[h-1]
	if !s.allocated {
		return nil
	}

	return s
}

func (t *TimerTable) mustSlot(h Handle) *timerSlot {
	s := t.slot(h)
	if s == nil {
		log.Panicf("timer handle %d does not address a live timer", h)
	}

	return s
}
