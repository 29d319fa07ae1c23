package uselock

import (
	"context"

	"github.com/rs/xid"
)

// Waiter identifies one execution context (a goroutine, a request, a worker)
// across lock operations. Reentrancy and the wait-for graph are keyed by this
// token rather than by any ambient thread identity: two operations see the
// same lock ownership exactly when they carry the same Waiter.
//
// A Waiter must not be shared by execution contexts that can block
// concurrently, or the reentrancy fast path will hand the same lock to both.
type Waiter string

// NewWaiter returns a fresh globally unique waiter token.
func NewWaiter() Waiter {
	return Waiter(xid.New().String())
}

func (w Waiter) String() string {
	return string(w)
}

type waiterContextKey struct{}

// WithWaiter returns a context carrying w. Passing an empty token returns ctx
// unchanged.
func WithWaiter(ctx context.Context, w Waiter) context.Context {
	if w == "" {
		return ctx
	}
	return context.WithValue(ctx, waiterContextKey{}, w)
}

// WaiterFromContext retrieves the waiter token stored on ctx, if any.
func WaiterFromContext(ctx context.Context) (Waiter, bool) {
	if ctx == nil {
		return "", false
	}
	w, ok := ctx.Value(waiterContextKey{}).(Waiter)
	if !ok || w == "" {
		return "", false
	}
	return w, true
}

// EnsureWaiter returns ctx carrying a waiter token, generating and attaching a
// fresh one when absent.
func EnsureWaiter(ctx context.Context) (context.Context, Waiter) {
	if w, ok := WaiterFromContext(ctx); ok {
		return ctx, w
	}
	w := NewWaiter()
	return WithWaiter(ctx, w), w
}
