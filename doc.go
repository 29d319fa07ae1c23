// Package uselock provides per-resource reentrant locks that detect
// cross-lock deadlock cycles instead of blocking forever, plus a
// reference-counted handle that tracks concurrent uses of a lazily created
// shared object.
//
// Copyright (C) 2026 Michel Blomgren <https://pkt.systems>
//
// # Locks and waiters
//
// Every blocking operation identifies its caller by a Waiter token. Attach one
// to the context to get reentrancy and deadlock attribution across calls:
//
//	table := uselock.NewWaitTable()
//	lock := uselock.NewLock("orders", table)
//	ctx := uselock.WithWaiter(context.Background(), uselock.NewWaiter())
//	if err := lock.Acquire(ctx); err != nil {
//	    log.Fatal(err)
//	}
//	defer lock.Release(ctx)
//
// A Lock never parks a goroutine indefinitely. Acquisition is a loop of
// bounded attempts (AttemptInterval, default 100ms); after each failed attempt
// the waiter publishes what it is blocked on in the shared WaitTable and walks
// the wait-for graph. When the walk closes a cycle through the awaited lock
// the acquisition aborts with a Failure carrying code "deadlock" and the keys
// of every lock in the cycle.
//
// The WaitTable must be shared by all locks that can participate in the same
// deadlock: an embedding process creates exactly one and hands it to every
// lock and handle it constructs. Tests create isolated tables.
//
// # Reference-counted handles
//
// Handle wraps a shared object behind a use counter. The object is created on
// first acquire by the supplied Provider and handed out to every subsequent
// acquirer until the embedder disposes it:
//
//	handle := uselock.NewHandle("conn/primary", table, provider)
//	obj, err := handle.Acquire(ctx) // count 1
//	if err != nil {
//	    log.Fatal(err)
//	}
//	// ... use obj ...
//	released, err := handle.Release(ctx) // count 0, released == true
//	if idle, _ := handle.IsIdle(ctx); idle {
//	    _ = handle.Dispose(ctx)
//	}
//
// The count is mutated only while the handle's lock is held, so every
// acquire/release observes a consistent sequential history. The lock itself is
// held only for the duration of each operation; the use count persists across
// hold periods.
//
// # Errors
//
// All failures are synchronous Failure values: "deadlock" when a cycle is
// confirmed, "lock_misuse" for releases by a non-owner or disposal of a busy
// handle, and "counter_overflow" when the use count would exceed its maximum.
// A bounded attempt that times out is not an error; it is the internal retry
// signal. Context cancellation during a wait is honored after the waiter's
// table entry is removed, so the cycle walker never chases a phantom waiter.
package uselock
