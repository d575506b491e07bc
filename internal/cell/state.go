package cell

import (
	"fmt"
	"sync"
)

// AnyCell is the type-erased identity of a cell, satisfied structurally by
// every Cell[T]. Observer methods take AnyCell because an observer (e.g. an
// ObserverCellState watching several differently-typed argument cells)
// must be able to receive notifications from cells of any value type.
// AddObserver/RemoveObserver are part of the erased identity, not just
// Key, so a compute cell's dynamic dependency tracker (compute.go) can
// subscribe to newly-discovered argument cells without knowing their
// value type.
type AnyCell interface {
	Key() Key
	AddObserver(o Observer)
	RemoveObserver(o Observer)
}

// Observer receives the two-phase update notifications described in
// spec.md §3/§4.4. Adding the same observer n times requires removing it n
// times before it stops being notified (multiset semantics, invariant 1).
type Observer interface {
	WillUpdate(c AnyCell)
	Update(c AnyCell, didChange bool)
}

// CellState is the type-erased, process-wide runtime state behind a
// stateful cell (spec.md §3 "CellState"). It is both what a StatefulCell
// resolves to through the Registry, and the observer-multiset / init-
// dispose machinery each concrete state (mutable, computed, async, ...)
// builds on.
type CellState interface {
	Disposed() bool
	AddObserver(o Observer)
	RemoveObserver(o Observer)
	NotifyWillUpdate()
	NotifyUpdate(didChange bool)
}

// baseState implements the observer multiset, the init/dispose lifecycle
// (invariant 1: empty multiset iff uninitialized-or-disposed) and the
// will_update/update notification pair (spec.md §4.4), shared by every
// concrete CellState. Go has no virtual dispatch, so subclass-specific
// setup/teardown is supplied as plain closures (onInit/onDispose) rather
// than overridden methods — the idiomatic Go substitute for the
// init()/dispose() template methods in stateful_cell.py.
type baseState struct {
	mu        sync.Mutex
	observers map[Observer]int
	disposed  bool

	notifyCount int

	cell AnyCell
	key  Key

	registry *Registry

	onInit    func()
	onDispose func()
}

// newBaseState wires up a baseState for the owning cell identified by key
// (may be nil for unshared state), reporting c itself to observers on
// notification (spec.md §4.4: "calls will_update(self.cell)").
func newBaseState(registry *Registry, key Key, c AnyCell) baseState {
	return baseState{
		registry: registry,
		key:      key,
		cell:     c,
	}
}

func (b *baseState) Disposed() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.disposed
}

// AddObserver registers o, running onInit the first time the multiset
// becomes non-empty (invariant 1).
func (b *baseState) AddObserver(o Observer) {
	b.mu.Lock()
	if b.disposed {
		b.mu.Unlock()
		panic("cell: AddObserver called on a disposed CellState")
	}
	if b.observers == nil {
		b.observers = make(map[Observer]int)
	}
	first := len(b.observers) == 0
	b.observers[o]++
	onInit := b.onInit
	b.mu.Unlock()

	if first && onInit != nil {
		onInit()
	}
}

// RemoveObserver decrements o's multiplicity, disposing the state once the
// last observer is removed (invariant 1). Removing an observer that was
// never added, or removing past zero, is a no-op.
func (b *baseState) RemoveObserver(o Observer) {
	b.mu.Lock()
	if b.disposed {
		b.mu.Unlock()
		return
	}

	n, ok := b.observers[o]
	if !ok {
		b.mu.Unlock()
		return
	}

	if n > 1 {
		b.observers[o] = n - 1
		b.mu.Unlock()
		return
	}

	delete(b.observers, o)
	last := len(b.observers) == 0
	b.mu.Unlock()

	if last {
		b.dispose()
	}
}

// dispose marks the state disposed, runs onDispose and removes the state
// from its registry (invariant 2: disposed states are never reused).
func (b *baseState) dispose() {
	b.mu.Lock()
	if b.disposed {
		b.mu.Unlock()
		return
	}
	b.disposed = true
	onDispose := b.onDispose
	b.mu.Unlock()

	if onDispose != nil {
		onDispose()
	}
	if b.registry != nil {
		b.registry.remove(b.key)
	}
}

// snapshot returns the distinct observers registered at this instant,
// per invariant 5: notification uses a snapshot taken at notify time, so
// observers added/removed mid-cycle only affect the next cycle.
func (b *baseState) snapshot() []Observer {
	b.mu.Lock()
	defer b.mu.Unlock()

	out := make([]Observer, 0, len(b.observers))
	for o := range b.observers {
		out = append(out, o)
	}
	return out
}

// NotifyWillUpdate increments notifyCount and delivers WillUpdate to a
// snapshot of observers, isolating any panic/error an individual observer
// raises (spec.md §4.4 and §7 "Observer-internal exception").
func (b *baseState) NotifyWillUpdate() {
	b.mu.Lock()
	if b.disposed {
		b.mu.Unlock()
		panic("cell: NotifyWillUpdate called on a disposed CellState")
	}
	b.notifyCount++
	if b.notifyCount <= 0 {
		b.mu.Unlock()
		panic("cell: notify count is not positive after WillUpdate; this indicates an engine bug")
	}
	b.mu.Unlock()

	for _, o := range b.snapshot() {
		safeNotify(func() { o.WillUpdate(b.cell) })
	}
}

// NotifyUpdate decrements notifyCount and delivers Update to a snapshot of
// observers, isolating per-observer panics the same way NotifyWillUpdate
// does.
func (b *baseState) NotifyUpdate(didChange bool) {
	b.mu.Lock()
	if b.disposed {
		b.mu.Unlock()
		panic("cell: NotifyUpdate called on a disposed CellState")
	}
	b.notifyCount--
	if b.notifyCount < 0 {
		b.mu.Unlock()
		panic("cell: notify count went negative; will_update/update calls are unbalanced")
	}
	b.mu.Unlock()

	for _, o := range b.snapshot() {
		safeNotify(func() { o.Update(b.cell, didChange) })
	}
}

// safeNotify runs fn, isolating any panic so one faulty observer cannot
// prevent the others in the same snapshot from being notified (spec.md
// §7). Whether to log, re-raise in debug builds, or swallow silently was
// left an open TODO in original_source/live_cells/stateful_cell.py; this
// engine logs at error level and swallows, which is the least surprising
// choice for a library embedded in a larger application.
func safeNotify(fn func()) {
	defer func() {
		if r := recover(); r != nil {
			logger.Error(fmt.Errorf("%v", r), "panic in cell observer notification")
		}
	}()
	fn()
}
