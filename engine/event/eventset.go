package event

import "fmt"

// Set is a decidable membership predicate over events. Implementations
// must be pure and safe to query many times per cycle; the only variant
// allowed to fail is HostPredicate, whose failure is surfaced to the
// caller rather than panicking.
type Set interface {
	// Contains reports whether e belongs to the set. An error means a
	// host-supplied predicate failed; the caller must treat membership
	// as false AND propagate the error.
	Contains(e Event) (bool, error)
	// String names the set for logging and error messages.
	String() string
}

type allSet struct{}

func (allSet) Contains(Event) (bool, error) { return true, nil }
func (allSet) String() string               { return "all" }

type noneSet struct{}

func (noneSet) Contains(Event) (bool, error) { return false, nil }
func (noneSet) String() string               { return "none" }

// All returns the set containing every event.
func All() Set { return allSet{} }

// None returns the empty set.
func None() Set { return noneSet{} }

// IsNone reports whether s is exactly the None() set, as opposed to some
// other set that merely happens to be empty. Used by the selection
// strategy to distinguish "this b-thread never asked for anything" from
// "this b-thread is genuinely waiting" when classifying deadlock vs.
// normal termination (spec §4.5, §8 boundary behaviors).
func IsNone(s Set) bool {
	_, ok := s.(noneSet)
	return ok
}

type singleton struct{ e Event }

func (s singleton) Contains(e Event) (bool, error) { return s.e.Equal(e), nil }
func (s singleton) String() string                 { return "{" + s.e.String() + "}" }

// Singleton returns the set containing exactly e.
func Singleton(e Event) Set { return singleton{e: e} }

type enumerated struct{ events []Event }

func (s enumerated) Contains(e Event) (bool, error) { return Contains(s.events, e), nil }
func (s enumerated) String() string                 { return fmt.Sprintf("enumerated(%d)", len(s.events)) }

// Enumerated returns the set containing exactly the listed events.
func Enumerated(events ...Event) Set {
	cp := make([]Event, len(events))
	copy(cp, events)
	return enumerated{events: cp}
}

type allExcept struct{ s Set }

func (a allExcept) Contains(e Event) (bool, error) {
	ok, err := a.s.Contains(e)
	if err != nil {
		return false, err
	}
	return !ok, nil
}
func (a allExcept) String() string { return "allExcept(" + a.s.String() + ")" }

// AllExcept returns the complement of s: every event not in s.
func AllExcept(s Set) Set { return allExcept{s: s} }

// Complement is an alias of AllExcept kept distinct at the type level
// because spec.md's data model lists ALL, NONE, ..., AllExcept and
// Complement as separate variants; both share the same semantics
// (§4.1: AllExcept(s).contains(e) == !s.contains(e)).
func Complement(s Set) Set { return allExcept{s: s} }

type unionSet struct{ sets []Set }

func (u unionSet) Contains(e Event) (bool, error) {
	for _, s := range u.sets {
		ok, err := s.Contains(e)
		if err != nil {
			return false, err
		}
		if ok {
			return true, nil
		}
	}
	return false, nil
}
func (u unionSet) String() string { return fmt.Sprintf("union(%d)", len(u.sets)) }

// Union returns the set containing any event that belongs to at least
// one of sets.
func Union(sets ...Set) Set { return unionSet{sets: sets} }

type intersectionSet struct{ sets []Set }

func (i intersectionSet) Contains(e Event) (bool, error) {
	for _, s := range i.sets {
		ok, err := s.Contains(e)
		if err != nil {
			return false, err
		}
		if !ok {
			return false, nil
		}
	}
	return true, nil
}
func (i intersectionSet) String() string { return fmt.Sprintf("intersection(%d)", len(i.sets)) }

// Intersection returns the set containing events that belong to every
// member of sets.
func Intersection(sets ...Set) Set { return intersectionSet{sets: sets} }

// PredicateFunc is a host-supplied, possibly-failing membership test.
type PredicateFunc func(Event) (bool, error)

type hostPredicate struct {
	name string
	fn   PredicateFunc
}

func (h hostPredicate) Contains(e Event) (bool, error) {
	ok, err := h.fn(e)
	if err != nil {
		return false, fmt.Errorf("host predicate %q failed: %w", h.name, err)
	}
	return ok, nil
}
func (h hostPredicate) String() string { return "predicate(" + h.name + ")" }

// HostPredicate wraps an opaque host-language function as an event set.
// name identifies the predicate in error messages when it fails
// (surfaced by the arbiter as HostPredicateFailure, §7).
func HostPredicate(name string, fn PredicateFunc) Set {
	return hostPredicate{name: name, fn: fn}
}
