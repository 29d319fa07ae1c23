package uselock

import (
	"context"
	"fmt"
	"math"

	"pkt.systems/pslog"
)

// MaxUseCount is the largest representable use count. Acquiring past it fails
// with a counter_overflow Failure instead of wrapping.
const MaxUseCount = math.MaxInt32

// Provider supplies and tears down the shared object a Handle guards. The
// handle calls Create lazily on the first acquire; Dispose runs only through
// Handle.Dispose once the embedder has confirmed the handle is idle.
type Provider[S any] interface {
	Create(ctx context.Context) (S, error)
	Dispose(ctx context.Context, obj S) error
}

type staticProvider[S any] struct {
	obj S
}

func (p staticProvider[S]) Create(context.Context) (S, error) {
	return p.obj, nil
}

func (p staticProvider[S]) Dispose(context.Context, S) error {
	return nil
}

// Value wraps an already-constructed object in a Provider whose Dispose is a
// no-op. Useful when the object's lifecycle is managed elsewhere.
func Value[S any](obj S) Provider[S] {
	return staticProvider[S]{obj: obj}
}

// Handle tracks concurrent uses of one shared object behind a reference
// count. All state is mutated only while the handle's Lock is held by the
// mutating waiter, so acquire/release/releaseAll observe a consistent
// sequential history. The lock is taken per operation; the count persists
// across hold periods.
//
// A handle cycles between idle (count 0) and in-use (count > 0) for the life
// of the resource. Disposal of the shared object is the embedder's call, made
// once IsIdle reports true.
type Handle[S any] struct {
	key      string
	lock     *Lock
	provider Provider[S]
	logger   pslog.Logger

	// Guarded by lock ownership.
	useCount int32
	obj      S
	created  bool
}

// NewHandle constructs a handle for the resource identified by key. The
// handle's lock registers against table; pass the process-wide table so
// deadlocks spanning several handles are detected.
func NewHandle[S any](key string, table *WaitTable, provider Provider[S], opts ...Option) *Handle[S] {
	o := newOptions(opts)
	lock := NewLock(key, table, opts...)
	return &Handle[S]{
		key:      lock.Key(),
		lock:     lock,
		provider: provider,
		logger:   o.logger,
	}
}

// Key returns the resource identity this handle guards.
func (h *Handle[S]) Key() string {
	return h.key
}

// Lock exposes the handle's lock so embedders can hold it across several
// handle operations; the operations re-enter it when the context carries the
// owning waiter.
func (h *Handle[S]) Lock() *Lock {
	return h.lock
}

// Acquire increments the use count and returns the shared object, creating it
// on first use. It fails with a deadlock Failure when the lock cannot be
// taken without closing a wait cycle, and with counter_overflow at
// MaxUseCount.
func (h *Handle[S]) Acquire(ctx context.Context) (S, error) {
	var obj S
	err := h.locked(ctx, func(ctx context.Context) error {
		if h.useCount == MaxUseCount {
			return Failure{Code: CodeCounterOverflow, Key: h.key, Detail: fmt.Sprintf("use count is at maximum %d", int32(MaxUseCount))}
		}
		if !h.created {
			created, err := h.provider.Create(ctx)
			if err != nil {
				return fmt.Errorf("create object: %w", err)
			}
			h.obj = created
			h.created = true
			h.loggerFrom(ctx).Debug("handle.object.created", "key", h.key)
		}
		h.useCount++
		h.loggerFrom(ctx).Trace("handle.acquire", "key", h.key, "use_count", h.useCount)
		obj = h.obj
		return nil
	})
	if err != nil {
		var zero S
		return zero, err
	}
	return obj, nil
}

// Release decrements the use count. It returns false when the count is
// already zero: nothing to release, a no-op signal rather than an error.
func (h *Handle[S]) Release(ctx context.Context) (bool, error) {
	released := false
	err := h.locked(ctx, func(ctx context.Context) error {
		if h.useCount == 0 {
			h.loggerFrom(ctx).Debug("handle.release.idle", "key", h.key)
			return nil
		}
		h.useCount--
		released = true
		h.loggerFrom(ctx).Trace("handle.release", "key", h.key, "use_count", h.useCount)
		return nil
	})
	return released, err
}

// ReleaseAll forces the use count to zero regardless of its current value.
// Used when the embedder knows every outstanding use is invalid, such as a
// consumer being torn down.
func (h *Handle[S]) ReleaseAll(ctx context.Context) error {
	return h.locked(ctx, func(ctx context.Context) error {
		if h.useCount != 0 {
			h.loggerFrom(ctx).Debug("handle.release_all", "key", h.key, "dropped_uses", h.useCount)
		}
		h.useCount = 0
		return nil
	})
}

// IsIdle reports whether the use count is zero, read under the lock for a
// consistent snapshot.
func (h *Handle[S]) IsIdle(ctx context.Context) (bool, error) {
	idle := false
	err := h.locked(ctx, func(context.Context) error {
		idle = h.useCount == 0
		return nil
	})
	return idle, err
}

// Count returns the current use count under the lock.
func (h *Handle[S]) Count(ctx context.Context) (int, error) {
	count := 0
	err := h.locked(ctx, func(context.Context) error {
		count = int(h.useCount)
		return nil
	})
	return count, err
}

// Cached returns the shared object without touching the use count. The
// boolean reports whether the object has been created yet.
func (h *Handle[S]) Cached(ctx context.Context) (S, bool, error) {
	var obj S
	created := false
	err := h.locked(ctx, func(context.Context) error {
		obj = h.obj
		created = h.created
		return nil
	})
	return obj, created, err
}

// Dispose tears down the shared object through the provider. It fails with
// lock_misuse while the handle is still in use. Disposing a handle whose
// object was never created is a no-op. After disposal the next Acquire
// creates a fresh object.
func (h *Handle[S]) Dispose(ctx context.Context) error {
	return h.locked(ctx, func(ctx context.Context) error {
		if h.useCount != 0 {
			return Failure{Code: CodeLockMisuse, Key: h.key, Detail: fmt.Sprintf("dispose with %d outstanding uses", h.useCount)}
		}
		if !h.created {
			return nil
		}
		if err := h.provider.Dispose(ctx, h.obj); err != nil {
			return fmt.Errorf("dispose object: %w", err)
		}
		var zero S
		h.obj = zero
		h.created = false
		h.loggerFrom(ctx).Debug("handle.object.disposed", "key", h.key)
		return nil
	})
}

// locked runs fn with the handle's lock held by the context's waiter,
// generating an ephemeral waiter when the context carries none. Without a
// context waiter every call is its own execution context: safe, but not
// reentrant with locks the caller already holds.
func (h *Handle[S]) locked(ctx context.Context, fn func(ctx context.Context) error) error {
	ctx, w := EnsureWaiter(ctx)
	if err := h.lock.acquireAs(ctx, w); err != nil {
		return err
	}
	defer func() {
		_ = h.lock.releaseAs(w)
	}()
	return fn(ctx)
}

func (h *Handle[S]) loggerFrom(ctx context.Context) pslog.Logger {
	if logger := pslog.LoggerFromContext(ctx); logger != nil {
		return logger
	}
	return h.logger
}
