package cell

import "sync"

// observerCore implements the two-phase barrier from spec.md §4.5
// ("ObserverCellState — the propagation core"), ported directly from
// original_source/live_cells/observer_state.py. A state embedding
// observerCore is simultaneously a CellState (upstream of its own
// observers) and an Observer of its own dependencies.
//
// Go has no virtual dispatch, so the four override points the Python
// class exposes (pre_update, post_update, on_will_update, on_update) are
// plain function fields here, defaulted to the base behaviour and
// reassigned by whichever concrete state needs different behaviour (the
// changes-only variant reassigns didChangeFn; the async cells reassign
// onWillUpdate/onUpdate; the watcher reassigns onUpdate).
type observerCore struct {
	baseState

	mu sync.Mutex

	stale    bool
	updating bool

	changedDependencies int
	didChangeAcc         bool

	preUpdate    func()
	postUpdate   func()
	onWillUpdate func()
	onUpdate     func(didChange bool)

	// didChangeFn reports whether the recomputed value actually differs
	// from the previous one. The base implementation always answers true
	// (spec.md: "did_change... disjunction of did_change from
	// dependencies"); the changes-only variant overrides it to compare
	// cached values.
	didChangeFn func() bool
}

func newObserverCore(registry *Registry, key Key, c AnyCell) observerCore {
	// NOTE: onWillUpdate/onUpdate/didChangeFn are left nil here rather than
	// bound to o.baseState.NotifyWillUpdate/NotifyUpdate: this constructor
	// returns observerCore by value, and a closure bound to a method of a
	// not-yet-relocated embedded field would capture the wrong address
	// once the caller embeds the returned value into its own struct. The
	// WillUpdate/Update methods below fall back to the base behaviour
	// whenever these fields are nil, which is both correct and avoids the
	// footgun.
	return observerCore{
		baseState: newBaseState(registry, key, c),
		stale:     true,
	}
}

// Stale reports whether the cached value must be recomputed before the
// next read (spec.md invariant 3).
func (o *observerCore) Stale() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.stale
}

func (o *observerCore) setStale(v bool) {
	o.mu.Lock()
	o.stale = v
	o.mu.Unlock()
}

// WillUpdate implements the Observer side of the barrier: the first
// will_update of a cycle opens the barrier (pre_update, on_will_update,
// stale=true); subsequent calls in the same cycle just increment the
// pending-dependency counter.
func (o *observerCore) WillUpdate(AnyCell) {
	o.mu.Lock()

	if !o.updating {
		if o.changedDependencies != 0 {
			o.mu.Unlock()
			panic("cell: will_update opened a new cycle with a non-zero changed-dependency count")
		}

		preUpdate := o.preUpdate
		o.updating = true
		o.didChangeAcc = false
		o.changedDependencies = 0
		o.mu.Unlock()

		if preUpdate != nil {
			preUpdate()
		}

		o.mu.Lock()
		onWillUpdate := o.onWillUpdate
		o.stale = true
		o.mu.Unlock()

		if onWillUpdate != nil {
			onWillUpdate()
		} else {
			o.NotifyWillUpdate()
		}

		o.mu.Lock()
	}

	o.changedDependencies++
	o.mu.Unlock()
}

// Update implements the closing half of the barrier: decrements the
// pending count and, once every expected update for this cycle has
// arrived, fires on_update exactly once and clears updating.
func (o *observerCore) Update(_ AnyCell, didChange bool) {
	o.mu.Lock()
	if !o.updating {
		o.mu.Unlock()
		return
	}

	if o.changedDependencies <= 0 {
		o.mu.Unlock()
		panic("cell: update() called with no pending will_update for this cycle")
	}

	o.changedDependencies--
	o.didChangeAcc = o.didChangeAcc || didChange

	if o.changedDependencies != 0 {
		o.mu.Unlock()
		return
	}

	o.stale = o.stale || o.didChangeAcc
	didChangeAcc := o.didChangeAcc
	onUpdate := o.onUpdate
	didChangeFn := o.didChangeFn
	postUpdate := o.postUpdate
	o.mu.Unlock()

	effectiveChange := didChangeAcc
	if didChangeAcc && didChangeFn != nil {
		effectiveChange = didChangeFn()
	}

	if onUpdate != nil {
		onUpdate(effectiveChange)
	} else {
		o.NotifyUpdate(effectiveChange)
	}

	o.mu.Lock()
	o.updating = false
	o.mu.Unlock()

	if didChangeAcc && postUpdate != nil {
		postUpdate()
	}
}
