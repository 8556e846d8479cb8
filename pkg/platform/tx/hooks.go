package tx

import "context"

// Hooks collects callbacks to run once the surrounding transaction commits.
// Side effects that must not leak from a rolled-back command, such as
// forwarding audit events, register here instead of firing inline. A
// transaction body runs on a single goroutine, so no locking is done.
type Hooks struct {
	fns []func()
}

// Add schedules fn to run after commit.
func (h *Hooks) Add(fn func()) {
	h.fns = append(h.fns, fn)
}

// Run fires the collected callbacks in order and clears them. Transaction
// runners call it only after a successful commit; on rollback the callbacks
// are simply dropped.
func (h *Hooks) Run() {
	fns := h.fns
	h.fns = nil
	for _, fn := range fns {
		fn()
	}
}

type hooksKey struct{}

// WithHooks attaches a fresh hook collector to ctx.
func WithHooks(ctx context.Context) (context.Context, *Hooks) {
	h := &Hooks{}
	return context.WithValue(ctx, hooksKey{}, h), h
}

// HooksFrom reports the hook collector carried by ctx, if any.
func HooksFrom(ctx context.Context) (*Hooks, bool) {
	h, ok := ctx.Value(hooksKey{}).(*Hooks)
	return h, ok
}
