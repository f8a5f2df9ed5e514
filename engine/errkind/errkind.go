// Package errkind defines the typed error kinds of spec.md §7, so callers
// can distinguish them with errors.As instead of string-matching messages.
package errkind

import "fmt"

// Kind names one of the engine's error categories.
type Kind string

const (
	KindBodyFailure          Kind = "body_failure"
	KindBreakUponMisuse      Kind = "break_upon_misuse"
	KindSnapshotReused       Kind = "snapshot_reused"
	KindInvalidStatement     Kind = "invalid_statement"
	KindDeadlock             Kind = "deadlock"
	KindHostPredicateFailure Kind = "host_predicate_failure"
	KindCycleTimeout         Kind = "cycle_timeout"
)

// Error is the common shape of every typed engine error.
type Error struct {
	K       Kind
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.K, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.K, e.Message)
}

func (e *Error) Unwrap() error { return e.Cause }

// Kind reports the error's category.
func (e *Error) Kind() Kind { return e.K }

func new(k Kind, msg string, cause error) *Error {
	return &Error{K: k, Message: msg, Cause: cause}
}

// BodyFailure reports that a b-thread body returned or panicked with an
// error. aborts the program.
func BodyFailure(bthread string, cause error) *Error {
	return new(KindBodyFailure, fmt.Sprintf("bthread %q body failed", bthread), cause)
}

// BreakUponMisuse reports a break-upon handler attempting to suspend.
// aborts the program.
func BreakUponMisuse(bthread string) *Error {
	return new(KindBreakUponMisuse, fmt.Sprintf("bthread %q attempted bsync from a break-upon handler", bthread), nil)
}

// SnapshotReused reports that a caller tried to advance an
// already-triggered snapshot. Recoverable: state is unaffected.
func SnapshotReused() *Error {
	return new(KindSnapshotReused, "snapshot was already advanced once", nil)
}

// InvalidStatement reports a malformed sync statement, e.g. one that both
// requests and blocks the same event (§9 Open Question resolution).
func InvalidStatement(bthread string, cause error) *Error {
	return new(KindInvalidStatement, fmt.Sprintf("bthread %q published an invalid sync statement", bthread), cause)
}

// Deadlock reports that no event was selectable, the program is not in
// daemon mode, and at least one b-thread was genuinely waiting. Not an
// exception: a terminal condition reported through the exit reason.
func Deadlock() *Error {
	return new(KindDeadlock, "no selectable event and at least one bthread is waiting", nil)
}

// HostPredicateFailure reports a user-supplied event-set predicate that
// raised. aborts the program, naming the offending predicate.
func HostPredicateFailure(predicate string, cause error) *Error {
	return new(KindHostPredicateFailure, fmt.Sprintf("host predicate %q raised", predicate), cause)
}

// CycleTimeout reports that a per-cycle wall-clock budget was exceeded.
// aborts the program.
func CycleTimeout(budget string) *Error {
	return new(KindCycleTimeout, fmt.Sprintf("cycle exceeded its %s budget", budget), nil)
}
