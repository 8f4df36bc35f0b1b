package timers

import (
	"log"
	"time"
)

// A FiringRecord describes one timer firing. It is the Item carried by the
// firing hook positions.
type FiringRecord struct {
	ID     string
	Handle Handle
	Name   string
	Time   time.Duration
}

// An Engine simulates an RTOS software-timer service against a virtual
// clock, so that timer-dependent code can be tested deterministically.
// Tests create and start timers, then drive time explicitly through
// MoveTimeForward or Tick.
//
// An Engine runs everything to completion on the calling goroutine and is
// not safe for concurrent use. Independent engines are fully isolated and
// can serve parallel test suites.
type Engine struct {
	HookableBase
	*TimerTable

	clock     *VirtualClock
	pendQueue *pendingCallQueue
}

// NewEngine creates an engine with the default tick quantum.
func NewEngine() *Engine {
	e := new(Engine)
	e.clock = NewVirtualClock(DefaultTickQuantum)
	e.TimerTable = NewTimerTable(e.clock, DefaultTickQuantum)
	e.pendQueue = newPendingCallQueue()

	return e
}

// WithTickQuantum replaces the tick quantum. The quantum is fixed for the
// engine's lifetime afterward; calling this once time has moved or timers
// exist is a contract violation.
func (e *Engine) WithTickQuantum(quantum time.Duration) *Engine {
	if e.clock.CurrentTime() > 0 || len(e.TimerTable.slots) > 0 {
		log.Panic("tick quantum must be set before the engine is used")
	}

	e.clock = NewVirtualClock(quantum)
	e.TimerTable = NewTimerTable(e.clock, quantum)

	return e
}

// TickQuantum returns the engine's fixed step granularity.
func (e *Engine) TickQuantum() time.Duration {
	return e.clock.TickQuantum()
}

// CurrentTime returns the engine's absolute virtual time. It starts at
// zero and never decreases.
func (e *Engine) CurrentTime() time.Duration {
	return e.clock.CurrentTime()
}

// PendFunctionCall queues a deferred call that runs at the start of the
// next MoveTimeForward or Tick, before the clock steps and before any timer
// fires. Calls run in the order they were pended. The enqueue itself never
// fails.
func (e *Engine) PendFunctionCall(
	callback PendedCallback,
	context any,
	aux any,
) bool {
	e.pendQueue.push(PendedCall{
		Callback: callback,
		Context:  context,
		Aux:      aux,
	})

	return true
}

// Tick advances virtual time by exactly one tick quantum.
func (e *Engine) Tick() {
	e.MoveTimeForward(e.clock.TickQuantum())
}

// MoveTimeForward advances virtual time by delta. It first drains the
// pended calls, then steps the clock by at most one tick quantum at a time,
// sweeping the timer table after every step. The final step may be shorter
// than a quantum so that the total advance equals delta exactly. Moving
// time backward is a contract violation; a delta of zero drains the pended
// calls and moves nothing.
func (e *Engine) MoveTimeForward(delta time.Duration) {
	if delta < 0 {
		log.Panic("cannot move virtual time backward")
	}

	e.drainPendedCalls()

	remaining := delta
	for remaining > 0 {
		remaining -= e.clock.step(remaining)
		e.fireDueTimers()
	}
}

func (e *Engine) drainPendedCalls() {
	for _, c := range e.pendQueue.takeAll() {
		hookCtx := HookCtx{
			Domain: e,
			Pos:    HookPosBeforePendCall,
			Item:   c,
		}
		e.InvokeHook(hookCtx)

		if c.Callback != nil {
			c.Callback(c.Context, c.Aux)
		}

		hookCtx.Pos = HookPosAfterPendCall
		e.InvokeHook(hookCtx)
	}
}

// fireDueTimers sweeps the table once. The due handles are snapshotted
// first so that callbacks can create, delete, stop, or re-arm timers
// without disturbing the iteration.
func (e *Engine) fireDueTimers() {
	now := e.clock.CurrentTime()
	for _, h := range e.dueHandles(now) {
		e.fire(h, now)
	}
}

func (e *Engine) dueHandles(now time.Duration) []Handle {
	var due []Handle

	for i := range e.TimerTable.slots {
		s := &e.TimerTable.slots[i]
		if s.allocated && s.active && now >= s.nextExpiry {
			due = append(due, s.handle)
		}
	}

	return due
}

// fire runs one timer's firing. An earlier callback in the same sweep may
// have stopped, deleted, or re-armed this timer, so the handle is
// revalidated first. The single-shot deactivation or auto-reload re-arm is
// applied before the callback runs, so whatever the callback does to the
// timer wins over the automatic transition.
func (e *Engine) fire(h Handle, now time.Duration) {
	s := e.TimerTable.slot(h)
	if s == nil || !s.active || now < s.nextExpiry {
		return
	}

	record := FiringRecord{ID: s.id, Handle: h, Name: s.name, Time: now}
	callback := s.callback
	context := s.context

	if s.behavior == AutoReload {
		s.nextExpiry = now + s.period
	} else {
		s.active = false
		s.nextExpiry = 0
	}

	// The slot pointer is dead from here on. Hooks and the callback may
	// grow the table and relocate the slots.
	hookCtx := HookCtx{
		Domain: e,
		Pos:    HookPosBeforeFiring,
		Item:   record,
	}
	e.InvokeHook(hookCtx)

	if callback != nil {
		callback(h, context)
	}

	hookCtx.Pos = HookPosAfterFiring
	e.InvokeHook(hookCtx)
}

// PendedCallCount returns the number of calls waiting for the next drain.
func (e *Engine) PendedCallCount() int {
	return e.pendQueue.len()
}
