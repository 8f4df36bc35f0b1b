package timers

import (
	"log"
)

// A LogHook is a hook that is responsible for recording information from
// the simulated timer service.
type LogHook interface {
	Hook
}

// LogHookBase provides the common logic for all LogHooks
type LogHookBase struct {
	*log.Logger
}

// FiringLogger is a hook that prints every timer firing
type FiringLogger struct {
	LogHookBase
}

// NewFiringLogger returns a new FiringLogger which will write into the
// logger
func NewFiringLogger(logger *log.Logger) *FiringLogger {
	h := new(FiringLogger)
	h.Logger = logger
	return h
}

// Func writes the firing information into the logger
func (h *FiringLogger) Func(ctx HookCtx) {
	if ctx.Pos != HookPosBeforeFiring {
		return
	}

	record, ok := ctx.Item.(FiringRecord)
	if !ok {
		return
	}

	h.Logger.Printf("%12s, %s, handle %d",
		record.Time, record.Name, record.Handle)
}
