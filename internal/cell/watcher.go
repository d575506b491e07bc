package cell

import "sync"

// Watcher runs a side-effecting function once on construction and again every
// time one of the cells it reads changes (spec.md §4.9). It is an
// Observer of whatever it reads, never itself observed — nothing sits
// downstream of a watcher — so unlike computeState it never needs its own
// baseState.NotifyUpdate to reach anyone; onUpdate is overridden to just
// rerun the body instead. Grounded on the teacher's
// internal/reactive/effect.go Effect (dependency map, invalidate-then-run,
// OnCleanup), generalized from Effect's ad-hoc global effectStack scheme
// onto the shared observerCore barrier and argSet dependency accumulator
// computeState already uses.
type Watcher struct {
	observerCore

	mu       sync.Mutex
	fn       func()
	args     *argSet
	schedule func(func())
	stopped  bool
}

// Watch runs fn once right away and again whenever any dependency
// changes, recording every cell fn reads via Call() as a dependency. If
// schedule is non-nil, every run, the first one included, is handed to
// schedule as a closure instead of being called directly. The returned
// Watcher must be stopped with Stop to release its subscriptions.
func Watch(registry *Registry, fn func(), schedule func(func())) *Watcher {
	w := &Watcher{fn: fn, args: &argSet{}, schedule: schedule}
	w.observerCore = newObserverCore(registry, nil, w)
	w.onUpdate = func(didChange bool) {
		if didChange {
			w.runAndTrack()
		}
	}

	w.runAndTrack()
	return w
}

func (w *Watcher) trackArgument(c AnyCell) {
	if w.args.Add(c) {
		c.AddObserver(w)
	}
}

func (w *Watcher) runAndTrack() {
	w.mu.Lock()
	stopped := w.stopped
	w.mu.Unlock()
	if stopped {
		return
	}

	run := func() {
		w.mu.Lock()
		stopped := w.stopped
		w.mu.Unlock()
		if stopped {
			return
		}
		WithTracker(w.trackArgument, w.fn)
	}

	if w.schedule != nil {
		w.schedule(run)
	} else {
		run()
	}
}

// Stop unsubscribes the watcher from every cell it currently depends on.
// After Stop returns the watcher body will not run again.
func (w *Watcher) Stop() {
	w.mu.Lock()
	if w.stopped {
		w.mu.Unlock()
		return
	}
	w.stopped = true
	w.mu.Unlock()

	w.args.Each(func(c AnyCell) { c.RemoveObserver(w) })
}
