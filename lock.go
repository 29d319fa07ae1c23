package uselock

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"pkt.systems/pslog"
	"pkt.systems/uselock/internal/clock"
)

// Lock is a reentrant, ownership-tracking lock for one resource. At most one
// waiter owns it at a time; the owner may re-acquire without blocking, and a
// matching number of releases fully releases it.
//
// Acquire never blocks unboundedly: it loops over bounded attempts and walks
// the shared WaitTable between attempts, aborting with a deadlock Failure
// when the walk closes a cycle through this lock.
type Lock struct {
	key      string
	table    *WaitTable
	logger   pslog.Logger
	clk      clock.Clock
	interval time.Duration

	sem chan struct{} // exclusion; full while some waiter owns the lock

	mu    sync.Mutex // guards owner and depth
	owner Waiter
	depth int
}

// NewLock constructs a lock for the resource identified by key, registered
// against the supplied wait table. An empty key is replaced with a generated
// UUIDv7 so deadlock reports always name the lock. A nil table gets a private
// one, which confines cycle detection to this lock alone.
func NewLock(key string, table *WaitTable, opts ...Option) *Lock {
	o := newOptions(opts)
	if key == "" {
		key = uuid.Must(uuid.NewV7()).String()
	}
	if table == nil {
		table = NewWaitTable(opts...)
	}
	return &Lock{
		key:      key,
		table:    table,
		logger:   o.logger,
		clk:      o.clk,
		interval: o.attemptInterval,
		sem:      make(chan struct{}, 1),
	}
}

// Key returns the resource identity this lock protects.
func (l *Lock) Key() string {
	return l.key
}

// Owner returns the waiter currently holding the lock. The answer is a
// best-effort snapshot readable without blocking; the cycle walker tolerates
// it going stale immediately.
func (l *Lock) Owner() (Waiter, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.depth == 0 {
		return "", false
	}
	return l.owner, true
}

// TryAcquire makes one bounded attempt to take ownership for w. It returns
// true when acquired (reentrant re-acquisition succeeds immediately), false
// when the timeout elapsed, and ctx.Err() when ctx was cancelled mid-wait.
// A timeout is the normal retry signal, not an error.
func (l *Lock) TryAcquire(ctx context.Context, w Waiter, timeout time.Duration) (bool, error) {
	if w == "" {
		return false, Failure{Code: CodeLockMisuse, Key: l.key, Detail: "empty waiter identity"}
	}
	l.mu.Lock()
	if l.depth > 0 && l.owner == w {
		l.depth++
		l.mu.Unlock()
		return true, nil
	}
	l.mu.Unlock()

	select {
	case l.sem <- struct{}{}:
		// Clear the wait entry before ownership becomes visible. A walker
		// must never observe this waiter as both owning a lock and awaiting
		// one, or it would report a phantom cycle.
		l.table.ClearWaiting(w)
		l.mu.Lock()
		l.owner = w
		l.depth = 1
		l.mu.Unlock()
		return true, nil
	case <-l.clk.After(timeout):
		return false, nil
	case <-ctx.Done():
		return false, ctx.Err()
	}
}

// Acquire takes ownership for the waiter carried on ctx, blocking in bounded
// attempts until acquired, a deadlock cycle is confirmed, or ctx is
// cancelled. The context must carry a waiter token (WithWaiter).
func (l *Lock) Acquire(ctx context.Context) error {
	w, ok := WaiterFromContext(ctx)
	if !ok {
		return Failure{Code: CodeLockMisuse, Key: l.key, Detail: "context carries no waiter identity; attach one with WithWaiter"}
	}
	return l.acquireAs(ctx, w)
}

// Release undoes one Acquire by the waiter carried on ctx.
func (l *Lock) Release(ctx context.Context) error {
	w, ok := WaiterFromContext(ctx)
	if !ok {
		return Failure{Code: CodeLockMisuse, Key: l.key, Detail: "context carries no waiter identity; attach one with WithWaiter"}
	}
	return l.releaseAs(w)
}

func (l *Lock) acquireAs(ctx context.Context, w Waiter) (err error) {
	logger := l.loggerFrom(ctx)
	start := l.clk.Now()
	attempts := 0
	waiting := false
	defer func() {
		if waiting {
			l.table.ClearWaiting(w)
		}
		l.table.metrics.recordAcquire(ctx, l.clk.Now().Sub(start), attempts, err)
	}()

	for {
		attempts++
		acquired, attemptErr := l.TryAcquire(ctx, w, l.interval)
		if attemptErr != nil {
			// Cancellation mid-wait. The wait entry is cleared by the
			// deferred cleanup before the signal propagates.
			logger.Debug("lock.acquire.cancelled",
				"key", l.key,
				"waiter", w,
				"attempts", attempts,
			)
			return attemptErr
		}
		if acquired {
			waiting = false // entry already cleared inside TryAcquire
			logger.Trace("lock.acquire",
				"key", l.key,
				"waiter", w,
				"attempts", attempts,
				"wait_ms", l.clk.Now().Sub(start).Milliseconds(),
			)
			return nil
		}

		// Publish the wait before probing so concurrent walkers can see us,
		// then look for a cycle through this lock. A stale read anywhere in
		// the walk means "no deadlock right now" and we simply retry: a real
		// deadlock is static and will still be there on the next pass.
		l.table.MarkWaiting(w, l)
		waiting = true
		l.table.metrics.recordAttemptTimeout(ctx)

		cycle := l.table.FindCycle(l)
		if containsLock(cycle, l) {
			keys := lockKeys(cycle)
			l.table.metrics.recordDeadlock(ctx, len(cycle))
			logger.Warn("lock.acquire.deadlock",
				"key", l.key,
				"waiter", w,
				"cycle", keys,
			)
			return Failure{
				Code:   CodeDeadlock,
				Key:    l.key,
				Detail: fmt.Sprintf("while acquiring %s", l),
				Cycle:  keys,
			}
		}
	}
}

func (l *Lock) releaseAs(w Waiter) error {
	if w == "" {
		return Failure{Code: CodeLockMisuse, Key: l.key, Detail: "empty waiter identity"}
	}
	l.mu.Lock()
	if l.depth == 0 || l.owner != w {
		l.mu.Unlock()
		return Failure{Code: CodeLockMisuse, Key: l.key, Detail: fmt.Sprintf("release by %s which does not hold the lock", w)}
	}
	l.depth--
	if l.depth > 0 {
		l.mu.Unlock()
		return nil
	}
	l.owner = ""
	l.mu.Unlock()
	<-l.sem
	return nil
}

// HeldBy reports whether w currently owns the lock.
func (l *Lock) HeldBy(w Waiter) bool {
	owner, held := l.Owner()
	return held && owner == w
}

// String renders the lock identity and its current state.
func (l *Lock) String() string {
	if owner, held := l.Owner(); held {
		return fmt.Sprintf("Lock(%s)[Locked by %s]", l.key, owner)
	}
	return fmt.Sprintf("Lock(%s)[Unlocked]", l.key)
}

func (l *Lock) loggerFrom(ctx context.Context) pslog.Logger {
	if logger := pslog.LoggerFromContext(ctx); logger != nil {
		return logger
	}
	return l.logger
}
