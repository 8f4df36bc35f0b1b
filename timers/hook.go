package timers

// HookPos defines the enum of possible hooking positions
type HookPos struct {
	Name string
}

// HookCtx is the context that holds all the information about the site that
// a hook is triggered
type HookCtx struct {
	Domain Hookable
	Pos    *HookPos
	Item   interface{}
	Detail interface{}
}

// Hookable defines an object that accept Hooks
type Hookable interface {
	// AcceptHook registers a hook
	AcceptHook(hook Hook)
}

// HookPosBeforeFiring triggers right before a due timer's re-arm transition
// and callback run.
var HookPosBeforeFiring = &HookPos{Name: "BeforeFiring"}

// HookPosAfterFiring triggers after a due timer's callback returned.
var HookPosAfterFiring = &HookPos{Name: "AfterFiring"}

// HookPosBeforePendCall triggers before a drained pended call is invoked.
var HookPosBeforePendCall = &HookPos{Name: "BeforePendCall"}

// HookPosAfterPendCall triggers after a drained pended call returned.
var HookPosAfterPendCall = &HookPos{Name: "AfterPendCall"}

// Hook is a short piece of program that can be invoked by a hookable
// object.
type Hook interface {
	// Func determines what to do if hook is invoked.
	Func(ctx HookCtx)
}

// A HookableBase provides some utility function for other type that
// implement the Hookable interface.
type HookableBase struct {
	Hooks []Hook
}

// NewHookableBase creates a HookableBase object
func NewHookableBase() *HookableBase {
	h := new(HookableBase)
	h.Hooks = make([]Hook, 0)
	return h
}

// AcceptHook register a hook
func (h *HookableBase) AcceptHook(hook Hook) {
	h.Hooks = append(h.Hooks, hook)
}

// InvokeHook triggers the register Hooks
func (h *HookableBase) InvokeHook(ctx HookCtx) {
	for _, hook := range h.Hooks {
		hook.Func(ctx)
	}
}
