package uselock

import (
	"errors"
	"strings"
)

// Failure codes returned by lock and handle operations.
const (
	// CodeDeadlock marks an acquisition aborted because the wait-for walk
	// closed a cycle through the awaited lock.
	CodeDeadlock = "deadlock"
	// CodeLockMisuse marks a programming error in the embedder: releasing a
	// lock the caller does not own, or disposing a handle still in use.
	CodeLockMisuse = "lock_misuse"
	// CodeCounterOverflow marks a use count that would exceed MaxUseCount.
	CodeCounterOverflow = "counter_overflow"
)

// Failure captures structured error details from lock and handle operations.
// Embedders match on Code via errors.As or the Is* helpers.
type Failure struct {
	Code   string
	Key    string
	Detail string
	// Cycle holds the keys of every lock in a detected deadlock cycle, in
	// walk order. Empty for non-deadlock failures.
	Cycle []string
}

func (f Failure) Error() string {
	msg := f.Code
	if f.Key != "" {
		msg += " key=" + f.Key
	}
	if f.Detail != "" {
		msg += ": " + f.Detail
	}
	if len(f.Cycle) > 0 {
		msg += " [" + strings.Join(f.Cycle, " -> ") + "]"
	}
	return msg
}

// IsDeadlock reports whether err is a Failure with code "deadlock".
func IsDeadlock(err error) bool {
	return hasCode(err, CodeDeadlock)
}

// IsLockMisuse reports whether err is a Failure with code "lock_misuse".
func IsLockMisuse(err error) bool {
	return hasCode(err, CodeLockMisuse)
}

// IsCounterOverflow reports whether err is a Failure with code
// "counter_overflow".
func IsCounterOverflow(err error) bool {
	return hasCode(err, CodeCounterOverflow)
}

func hasCode(err error, code string) bool {
	var failure Failure
	return errors.As(err, &failure) && failure.Code == code
}
