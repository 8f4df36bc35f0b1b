package timers

import "container/list"

// A PendedCallback is invoked when a pended function call is drained. The
// auxiliary value is passed through from PendFunctionCall unchanged.
type PendedCallback func(context any, aux any)

// A PendedCall is one deferred invocation waiting for the start of the next
// time advance.
type PendedCall struct {
	Callback PendedCallback
	Context  any
	Aux      any
}

// pendingCallQueue is a FIFO of deferred calls. It is drained exactly once
// at the start of every time advance, before the clock steps and before any
// timer fires.
type pendingCallQueue struct {
	l *list.List
}

func newPendingCallQueue() *pendingCallQueue {
	q := new(pendingCallQueue)
	q.l = list.New()

	return q
}

func (q *pendingCallQueue) push(c PendedCall) {
	q.l.PushBack(c)
}

// takeAll removes and returns every queued call in FIFO order. Calls
// pended while the returned batch executes land in the emptied queue and
// run at the next drain, never within the current one.
func (q *pendingCallQueue) takeAll() []PendedCall {
	calls := make([]PendedCall, 0, q.l.Len())
	for e := q.l.Front(); e != nil; e = e.Next() {
		calls = append(calls, e.Value.(PendedCall))
	}

	q.l.Init()

	return calls
}

func (q *pendingCallQueue) len() int {
	return q.l.Len()
}
