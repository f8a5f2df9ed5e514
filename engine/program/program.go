// Package program implements spec.md's C6 (external-event queue) and
// C7 (ProgramSnapshot), plus the host-facing API of §6: registering
// b-threads, enqueueing external events, starting, and advancing.
package program

import (
	"fmt"
	"math/rand"
	"sync"
	"sync/atomic"

	"github.com/nmxmxh/bp-runtime/engine/arbiter"
	"github.com/nmxmxh/bp-runtime/engine/bthread"
	"github.com/nmxmxh/bp-runtime/engine/errkind"
	"github.com/nmxmxh/bp-runtime/engine/event"
	"github.com/nmxmxh/bp-runtime/engine/resource"
	"github.com/nmxmxh/bp-runtime/utils"
)

// Program is a host-owned runtime instance: its own seeded rng, its own
// resource loader, its own auto-id counter, its own listener list — spec.md §9's "replace global mutable state
// with per-program owned resources", grounded on the teacher's
// per-instance coordinator shape (kernel/threads/intelligence/
// coordinator.go's UnifiedIntelligenceCoordinator) rather than the
// process-wide singletons the source relies on.
type Program struct {
	cfg    Config
	log    *utils.Logger
	rng    *rand.Rand
	loader *resource.Loader

	mu         sync.Mutex
	nextAutoID uint64
	pending    []arbiter.Registration
	queued     []event.Event
	global     *Scope

	daemon int32 // atomic bool
}

// Scope is re-exported from engine/bthread so callers of this package
// never need to import it directly just to read globalScope.get.
type Scope = bthread.Scope

// NewScope is re-exported alongside Scope for the same reason.
func NewScope() *Scope { return bthread.NewScope() }

// New constructs a Program bound to no b-threads yet; call
// RegisterBThread for each before Start.
func New(cfg Config) *Program {
	daemon := int32(0)
	if cfg.Daemon {
		daemon = 1
	}
	return &Program{
		cfg:    cfg,
		log:    cfg.Logger,
		rng:    cfg.newRand(),
		loader: resource.New("program-resource-loader", cfg.CycleTimeout),
		global: NewScope(),
		daemon: daemon,
	}
}

// RegisterBThread implements the host-to-engine API of spec.md §6: an
// empty name is auto-generated as "autoadded-<n>" using a per-program
// monotonically increasing counter.
func (p *Program) RegisterBThread(name string, body bthread.Body) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if name == "" {
		p.nextAutoID++
		name = fmt.Sprintf("autoadded-%d", p.nextAutoID)
	}
	p.pending = append(p.pending, arbiter.Registration{Name: name, Body: body})
	return name, nil
}

// EnqueueExternalEvent thread-safely appends e to the external queue
// (spec.md §6, §3: an unconditional append, never a reject/drop — the
// host interface must not suspend either, per spec.md §5, which rules
// out back-pressuring this call by blocking).
func (p *Program) EnqueueExternalEvent(e event.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.queued = append(p.queued, e)
	return nil
}

// IsDaemonMode reports the current daemon flag.
func (p *Program) IsDaemonMode() bool { return atomic.LoadInt32(&p.daemon) == 1 }

// SetDaemonMode toggles the daemon flag.
func (p *Program) SetDaemonMode(daemon bool) {
	v := int32(0)
	if daemon {
		v = 1
	}
	atomic.StoreInt32(&p.daemon, v)
}

// Rand returns the program's seeded pseudorandom source (spec.md §4.3:
// "never the host platform's default random, to preserve replayability").
func (p *Program) Rand() *rand.Rand { return p.rng }

// LoadResource reads path through the circuit-breaker-guarded loader.
func (p *Program) LoadResource(path string) ([]byte, error) { return p.loader.Load(path) }

// Close releases the program's own resources (currently the resource
// loader's pooled HTTP connections). Registered with engine/runner's
// GracefulShutdown so a run drains them on the way out.
func (p *Program) Close() error { return p.loader.Close() }

// Listeners returns the configured lifecycle listeners, so
// engine/runner can find the ones worth registering with its
// GracefulShutdown (those implementing Closer).
func (p *Program) Listeners() []Listener { return p.cfg.Listeners }

// GlobalScope implements bthread.ProgramHost and backs the host-facing
// globalScope.get(name, type) test hook of spec.md §6.
func (p *Program) GlobalScope() *Scope { return p.global }

// Daemon implements bthread.ProgramHost.
func (p *Program) Daemon() bool { return p.IsDaemonMode() }

// SetDaemon implements bthread.ProgramHost.
func (p *Program) SetDaemon(daemon bool) { p.SetDaemonMode(daemon) }

// RegisterPending implements bthread.ProgramHost, the surface a
// running body's registerBThread calls land on.
func (p *Program) RegisterPending(name string, body bthread.Body) (string, error) {
	return p.RegisterBThread(name, body)
}

// EnqueueExternal implements bthread.ProgramHost.
func (p *Program) EnqueueExternal(e event.Event) error { return p.EnqueueExternalEvent(e) }

// TakePending implements arbiter.Host: atomically takes and clears the
// pending-registration list.
func (p *Program) TakePending() []arbiter.Registration {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.pending) == 0 {
		return nil
	}
	out := p.pending
	p.pending = nil
	return out
}

// TakeQueued implements arbiter.Host: atomically takes and clears
// whatever accumulated in the external queue since the last take.
func (p *Program) TakeQueued() []event.Event {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.queued) == 0 {
		return nil
	}
	out := p.queued
	p.queued = nil
	return out
}

// NewScope implements arbiter.Host: every newly started b-thread gets
// its own private scope.
func (p *Program) NewScope() *Scope { return NewScope() }

// listenerNotifier adapts Program's Listener list to arbiter.Notifier.
type listenerNotifier struct{ p *Program }

func (n listenerNotifier) BThreadRemoved(name string) {
	for _, l := range n.p.cfg.Listeners {
		l.BThreadRemoved(name)
	}
}
func (n listenerNotifier) BThreadDone(name string) {
	for _, l := range n.p.cfg.Listeners {
		l.BThreadDone(name)
	}
}
func (n listenerNotifier) BThreadAdded(name string) {
	for _, l := range n.p.cfg.Listeners {
		l.BThreadAdded(name)
	}
}

func (p *Program) notify() arbiter.Notifier { return listenerNotifier{p: p} }

func (p *Program) fireStarted() {
	for _, l := range p.cfg.Listeners {
		l.Started()
	}
}

func (p *Program) fireSuperstepDone(s *Snapshot) {
	for _, l := range p.cfg.Listeners {
		l.SuperstepDone(s)
	}
}

func (p *Program) fireEventSelected(s *Snapshot, e event.Event) {
	for _, l := range p.cfg.Listeners {
		l.EventSelected(s, e)
	}
}

// FireHalted notifies listeners of an abnormal end (error or abort).
// Owned by engine/runner, the top-level driver of a program's
// lifecycle, rather than fired internally by Start/Advance: those can
// fail with recoverable usage errors (SnapshotReused) that must NOT
// read as a halt.
func (p *Program) FireHalted(reason string) {
	for _, l := range p.cfg.Listeners {
		l.Halted(reason)
	}
}

// FireEnded notifies listeners of a normal end (including deadlock,
// which is a terminal exit reason but not a halt per spec.md §7).
func (p *Program) FireEnded() {
	for _, l := range p.cfg.Listeners {
		l.Ended()
	}
}

// Start runs spec.md §4.4's initial variant, producing the first
// snapshot.
func (p *Program) Start() (*Snapshot, error) {
	p.fireStarted()
	res, err := arbiter.Start(p, p.notify())
	if err != nil {
		return nil, err
	}
	s := &Snapshot{handles: res.Handles, queue: res.Queue, daemon: p.IsDaemonMode()}
	p.fireSuperstepDone(s)
	return s, nil
}

// Advance runs one super-step on s with the already-selected event e,
// implementing spec.md §4.4 steps 1-7 and §7's SnapshotReused guard.
func (p *Program) Advance(s *Snapshot, e event.Event) (*Snapshot, error) {
	if s.markTriggered() {
		return nil, errkind.SnapshotReused()
	}
	p.fireEventSelected(s, e)
	res, err := arbiter.Cycle(p, p.notify(), s.handles, e)
	if err != nil {
		return nil, err
	}
	// The still-pending external events carry over, minus the first one
	// equal to the selected event, followed by those enqueued mid-cycle.
	queue := make([]event.Event, 0, len(s.queue)+len(res.Queue))
	consumed := false
	for _, q := range s.queue {
		if !consumed && q.Equal(e) {
			consumed = true
			continue
		}
		queue = append(queue, q)
	}
	queue = append(queue, res.Queue...)
	next := &Snapshot{
		handles: res.Handles,
		queue:   queue,
		daemon:  p.IsDaemonMode(),
	}
	p.fireSuperstepDone(next)
	return next, nil
}
