package uselock

import (
	"errors"
	"fmt"
	"testing"
)

func TestFailureError(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		failure Failure
		want    string
	}{
		{
			name:    "code only",
			failure: Failure{Code: CodeLockMisuse},
			want:    "lock_misuse",
		},
		{
			name:    "code and detail",
			failure: Failure{Code: CodeCounterOverflow, Detail: "use count is at maximum"},
			want:    "counter_overflow: use count is at maximum",
		},
		{
			name:    "key included",
			failure: Failure{Code: CodeLockMisuse, Key: "orders", Detail: "release by non-owner"},
			want:    "lock_misuse key=orders: release by non-owner",
		},
		{
			name:    "deadlock cycle rendered",
			failure: Failure{Code: CodeDeadlock, Key: "a", Cycle: []string{"a", "b"}},
			want:    "deadlock key=a [a -> b]",
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := tc.failure.Error(); got != tc.want {
				t.Fatalf("expected %q, got %q", tc.want, got)
			}
		})
	}
}

func TestFailurePredicates(t *testing.T) {
	t.Parallel()

	if !IsDeadlock(Failure{Code: CodeDeadlock}) {
		t.Fatal("IsDeadlock missed a deadlock failure")
	}
	if !IsLockMisuse(Failure{Code: CodeLockMisuse}) {
		t.Fatal("IsLockMisuse missed a misuse failure")
	}
	if !IsCounterOverflow(Failure{Code: CodeCounterOverflow}) {
		t.Fatal("IsCounterOverflow missed an overflow failure")
	}
	if IsDeadlock(Failure{Code: CodeLockMisuse}) {
		t.Fatal("IsDeadlock matched the wrong code")
	}
	if IsDeadlock(nil) || IsLockMisuse(nil) || IsCounterOverflow(nil) {
		t.Fatal("predicates must reject nil errors")
	}
	if IsDeadlock(errors.New("deadlock")) {
		t.Fatal("predicates must reject plain errors")
	}
}

func TestFailurePredicatesUnwrap(t *testing.T) {
	t.Parallel()

	wrapped := fmt.Errorf("acquire resource: %w", Failure{Code: CodeDeadlock, Key: "a"})
	if !IsDeadlock(wrapped) {
		t.Fatal("expected IsDeadlock to unwrap")
	}
	var failure Failure
	if !errors.As(wrapped, &failure) || failure.Key != "a" {
		t.Fatalf("expected wrapped Failure with key, got %+v", failure)
	}
}
