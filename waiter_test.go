package uselock

import (
	"context"
	"testing"
)

func TestNewWaiterIsUnique(t *testing.T) {
	t.Parallel()

	seen := make(map[Waiter]struct{})
	for i := 0; i < 1000; i++ {
		w := NewWaiter()
		if w == "" {
			t.Fatal("generated waiter must not be empty")
		}
		if _, dup := seen[w]; dup {
			t.Fatalf("duplicate waiter token %s", w)
		}
		seen[w] = struct{}{}
	}
}

func TestWaiterContextRoundTrip(t *testing.T) {
	t.Parallel()

	if _, ok := WaiterFromContext(context.Background()); ok {
		t.Fatal("fresh context must carry no waiter")
	}

	w := NewWaiter()
	ctx := WithWaiter(context.Background(), w)
	got, ok := WaiterFromContext(ctx)
	if !ok || got != w {
		t.Fatalf("expected waiter %s, got %s (ok=%v)", w, got, ok)
	}
}

func TestWithWaiterEmptyTokenIsNoop(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	if got := WithWaiter(ctx, ""); got != ctx {
		t.Fatal("empty token must leave the context unchanged")
	}
}

func TestEnsureWaiter(t *testing.T) {
	t.Parallel()

	ctx, w := EnsureWaiter(context.Background())
	if w == "" {
		t.Fatal("expected generated waiter")
	}
	got, ok := WaiterFromContext(ctx)
	if !ok || got != w {
		t.Fatalf("expected context to carry %s, got %s (ok=%v)", w, got, ok)
	}

	same, again := EnsureWaiter(ctx)
	if again != w {
		t.Fatalf("expected existing waiter %s reused, got %s", w, again)
	}
	if same != ctx {
		t.Fatal("expected context unchanged when waiter already present")
	}
}

func TestWaiterFromNilContext(t *testing.T) {
	t.Parallel()

	if _, ok := WaiterFromContext(nil); ok { //nolint:staticcheck
		t.Fatal("nil context must carry no waiter")
	}
}
