package uselock

import "sync"

// WaitTable records which lock each waiter is currently blocked on. It is the
// shared substrate for deadlock detection: every Lock that can participate in
// the same cycle must be constructed against the same table. An embedding
// process creates exactly one at startup and never resets it; tests create
// isolated instances.
//
// Entries are transient. A waiter appears in the table only while it is
// inside a blocked acquisition attempt and is removed on every exit path:
// success, deadlock, or cancellation.
type WaitTable struct {
	metrics *tableMetrics

	mu      sync.RWMutex
	awaited map[Waiter]*Lock
}

// NewWaitTable constructs an empty wait table.
func NewWaitTable(opts ...Option) *WaitTable {
	o := newOptions(opts)
	t := &WaitTable{
		awaited: make(map[Waiter]*Lock),
	}
	t.metrics = newTableMetrics(t, o.meterProvider, o.logger)
	return t
}

// MarkWaiting records that w is blocked trying to acquire l. A waiter has at
// most one outstanding wait; marking again replaces the previous entry.
func (t *WaitTable) MarkWaiting(w Waiter, l *Lock) {
	if w == "" || l == nil {
		return
	}
	t.mu.Lock()
	t.awaited[w] = l
	t.mu.Unlock()
}

// ClearWaiting removes w's wait entry. Clearing an absent entry is a no-op.
func (t *WaitTable) ClearWaiting(w Waiter) {
	t.mu.Lock()
	delete(t.awaited, w)
	t.mu.Unlock()
}

// Awaited returns the lock w is currently blocked on, if any. The answer is a
// best-effort snapshot: the waiter may finish or abandon its attempt
// immediately after the read.
func (t *WaitTable) Awaited(w Waiter) (*Lock, bool) {
	t.mu.RLock()
	l, ok := t.awaited[w]
	t.mu.RUnlock()
	return l, ok
}

// Len returns the number of waiters currently blocked on some lock.
func (t *WaitTable) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.awaited)
}

// FindCycle walks the wait-for graph starting from the lock a waiter is about
// to block on: start's owner, the lock that owner awaits, that lock's owner,
// and so on. It returns the locks forming a cycle when a lock repeats on the
// path, with the non-cycle prefix trimmed off, or nil when the chain ends.
//
// Locks can be released mid-walk, so a missing owner or missing wait entry
// anywhere means "not a deadlock right now". The walk is conservative: it can
// transiently miss a cycle that is still forming, but a non-nil result is
// always a genuine cycle among the locks walked.
func (t *WaitTable) FindCycle(start *Lock) []*Lock {
	if start == nil {
		return nil
	}
	encountered := make(map[*Lock]struct{})
	var path []*Lock
	l := start
	for {
		if _, seen := encountered[l]; seen {
			break
		}
		encountered[l] = struct{}{}
		path = append(path, l)
		owner, held := l.Owner()
		if !held {
			return nil // released while walking
		}
		next, waiting := t.Awaited(owner)
		if !waiting {
			return nil // owner is running, chain ends
		}
		l = next
	}
	for i, candidate := range path {
		if candidate == l {
			return path[i:]
		}
	}
	return nil // unreachable: the repeated lock is always on the path
}

func lockKeys(locks []*Lock) []string {
	if len(locks) == 0 {
		return nil
	}
	keys := make([]string, 0, len(locks))
	for _, l := range locks {
		keys = append(keys, l.Key())
	}
	return keys
}

func containsLock(locks []*Lock, target *Lock) bool {
	for _, l := range locks {
		if l == target {
			return true
		}
	}
	return false
}
