// Package bthread implements the b-thread continuation (spec.md §4.3,
// C4/C5): the suspendable body abstraction, its sync statement, and the
// host interface ("bp") bodies and break-upon handlers see.
package bthread

import (
	"fmt"
	"strings"

	"github.com/nmxmxh/bp-runtime/engine/event"
)

// Statement is a b-thread's per-cycle request: what it offers, what it
// would accept, what it forbids, and what would cut it short (spec.md
// §3, §4.2: C3 SyncStatement).
type Statement struct {
	Request   []event.Event
	WaitFor   event.Set
	Block     event.Set
	Interrupt event.Set
	BreakUpon BreakUponFunc
}

// BreakUponFunc runs synchronously in the arbiter's goroutine when an
// interrupt event is selected for this b-thread. It must not block and
// must not attempt to suspend (spec.md §4.3, §5): the Host it receives
// always rejects Sync with BreakUponMisuse.
type BreakUponFunc func(host Host, selected event.Event)

// StatementOption configures a Statement via NewStatement.
type StatementOption func(*Statement)

// WithRequest sets the events this b-thread proposes this cycle.
func WithRequest(events ...event.Event) StatementOption {
	return func(s *Statement) { s.Request = append(s.Request, events...) }
}

// WithWaitFor sets the events this b-thread is willing to resume on.
func WithWaitFor(set event.Set) StatementOption {
	return func(s *Statement) { s.WaitFor = set }
}

// WithBlock sets the events this b-thread forbids.
func WithBlock(set event.Set) StatementOption {
	return func(s *Statement) { s.Block = set }
}

// WithInterrupt sets the events that, if selected, remove this b-thread.
func WithInterrupt(set event.Set) StatementOption {
	return func(s *Statement) { s.Interrupt = set }
}

// WithBreakUpon sets the handler invoked when an interrupt fires.
func WithBreakUpon(fn BreakUponFunc) StatementOption {
	return func(s *Statement) { s.BreakUpon = fn }
}

// NewStatement builds a Statement, defaulting every unset field to
// empty/None per the builder semantics of spec.md §4.2.
func NewStatement(opts ...StatementOption) Statement {
	s := Statement{
		WaitFor:   event.None(),
		Block:     event.None(),
		Interrupt: event.None(),
	}
	for _, opt := range opts {
		opt(&s)
	}
	return s
}

// Validate enforces the invariants the arbiter must check at
// cycle-collection time. Currently this is the §9 Open Question
// resolution: requesting an event a statement also blocks is undefined
// by the source and is treated here as an invalid statement.
func (s Statement) Validate() error {
	for _, req := range s.Request {
		blocked, err := s.Block.Contains(req)
		if err != nil {
			return fmt.Errorf("evaluating block set for requested event %q: %w", req.Name, err)
		}
		if blocked {
			return fmt.Errorf("event %q is both requested and blocked by the same statement", req.Name)
		}
	}
	return nil
}

// String renders the statement for logging.
func (s Statement) String() string {
	names := make([]string, len(s.Request))
	for i, e := range s.Request {
		names[i] = e.String()
	}
	return fmt.Sprintf("request=[%s] waitFor=%s block=%s interrupt=%s",
		strings.Join(names, ","), s.WaitFor, s.Block, s.Interrupt)
}
