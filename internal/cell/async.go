package cell

import (
	"context"
	"sync"

	"github.com/elastic/go-concert/ctxtool"
)

// Awaitable is the Go stand-in for a "coroutine" in spec.md §4.10: a cold,
// cancellable unit of asynchronous work.
type Awaitable[T any] func(ctx context.Context) (T, error)

// asyncState is the shared machinery behind both AwaitCell and WaitCell
// (spec.md §4.10): an observerCore — it is the Observer of the argument
// cell(s) supplying its Awaitable — plus a single worker goroutine that
// serializes running the resolved Awaitables according to the
// reset/queue policy.
//
// Unlike computeState, an async cell's dependencies are a fixed, static
// list known at construction (spec.md §4.6's "static argument" variant),
// not discovered dynamically: the argument cell(s) are read synchronously
// by resolve, not from inside the goroutine that executes the Awaitable,
// so there is no cross-goroutine ambient-tracker hazard to manage.
//
// resolve is called synchronously on the triggering goroutine — inside
// start, or inside the observer notification a post-update delivers — so
// it captures the argument's value as of that specific trigger, the way
// original_source's AsyncCellState reads self.arg.value once per trigger
// before scheduling the chained task. Only the (possibly long-running)
// Awaitable resolve returns is deferred to the worker goroutine; this is
// what makes Wait queued's "assignment order" guarantee (spec.md §5)
// hold even when several triggers land before the worker gets to run any
// of them. Grounded on original_source/live_cells/async_state.py
// AsyncCellState, await_cell.py and wait_cell.py; the teacher had nothing
// resembling async integration, so this is built fresh in the teacher's
// idiom (explicit worker loop, mutex-guarded fields, a registry-backed
// task tracker) rather than adapted from a specific teacher file.
type asyncState[T any] struct {
	observerCore

	mu       sync.Mutex
	value    Maybe[T]
	resolve  func() Awaitable[T]
	args     []AnyCell
	registry *Registry

	// reset selects whether a new trigger resets the published value to
	// pending immediately (AwaitCell) or leaves the previous result in
	// place until the new run completes (WaitCell, both variants). queue
	// selects whether an in-flight run is left to complete undisturbed and
	// every trigger gets its own delivered result in assignment order
	// (WaitCell with queuing) or cancelled outright by the next trigger,
	// coalescing any pile-up into a single rerun that delivers only the
	// freshest result (AwaitCell, and WaitCell without queuing — "last
	// result wins"). See trigger's cancellation gate: it cancels unless
	// queue is set, regardless of reset.
	reset bool
	queue bool

	pendingRuns []Awaitable[T]
	runCancel   context.CancelFunc
	wake        chan struct{}
	stopCh      chan struct{}
}

func newAsyncState[T any](registry *Registry, key Key, c AnyCell, args []AnyCell, resolve func() Awaitable[T], reset, queue bool) *asyncState[T] {
	s := &asyncState[T]{
		resolve:  resolve,
		args:     args,
		registry: registry,
		reset:    reset,
		queue:    queue,
		value:    MaybePending[T](),
		wake:     make(chan struct{}, 1),
		stopCh:   make(chan struct{}),
	}
	s.observerCore = newObserverCore(registry, key, c)

	if reset {
		// AwaitCell: propagate the argument's update cycle as usual (the
		// nil onWillUpdate falls back to the base NotifyWillUpdate), but
		// inject the pending Maybe before notify_update so downstream
		// observers see the reset immediately (spec.md §4.10: "inject the
		// pending Maybe before propagating").
		s.onUpdate = func(didChange bool) {
			s.mu.Lock()
			s.value = MaybePending[T]()
			s.mu.Unlock()
			s.setStale(false)
			s.NotifyUpdate(didChange)
			s.trigger()
		}
	} else {
		// Wait cell: suppress propagation during the argument's update
		// cycle entirely — downstream only hears about a new result when
		// the awaitable actually completes (spec.md §4.10).
		s.onWillUpdate = func() {}
		s.onUpdate = func(bool) { s.trigger() }
	}

	s.onInit = s.start
	s.onDispose = s.teardown
	return s
}

func (s *asyncState[T]) start() {
	go s.worker()
	for _, a := range s.args {
		a.AddObserver(s)
	}
	s.trigger()
}

func (s *asyncState[T]) teardown() {
	close(s.stopCh)

	s.mu.Lock()
	if s.runCancel != nil {
		s.runCancel()
	}
	s.mu.Unlock()

	for _, a := range s.args {
		a.RemoveObserver(s)
	}
}

// trigger resolves the argument's current Awaitable synchronously, right
// now, and enqueues it for the worker goroutine.
func (s *asyncState[T]) trigger() {
	aw := s.resolve()

	s.mu.Lock()
	// Both AwaitCell (reset) and Wait last-only (reset=false, queue=false)
	// cancel an outstanding run on a new trigger; only Wait queued
	// (queue=true) lets prior runs finish undisturbed (spec.md §4.10).
	if !s.queue && s.runCancel != nil {
		s.runCancel()
	}
	if s.queue {
		s.pendingRuns = append(s.pendingRuns, aw)
	} else {
		s.pendingRuns = []Awaitable[T]{aw}
	}
	s.mu.Unlock()

	select {
	case s.wake <- struct{}{}:
	default:
	}
}

func (s *asyncState[T]) worker() {
	for {
		select {
		case <-s.stopCh:
			return
		case <-s.wake:
		}

		for {
			s.mu.Lock()
			if len(s.pendingRuns) == 0 {
				s.mu.Unlock()
				break
			}

			var current Awaitable[T]
			if s.queue {
				current = s.pendingRuns[0]
				s.pendingRuns = s.pendingRuns[1:]
			} else {
				current = s.pendingRuns[len(s.pendingRuns)-1]
				s.pendingRuns = nil
			}

			runCtx, runCancel := context.WithCancel(context.Background())
			ctx := ctxtool.MergeContexts(s.registry.ShutdownContext(), runCtx)
			s.runCancel = runCancel
			s.mu.Unlock()

			done, ok := s.registry.TrackTask()
			if !ok {
				runCancel()
				continue
			}

			val, err := current(ctx)
			cancelled := ctx.Err() != nil
			done()
			runCancel()

			select {
			case <-s.stopCh:
				return
			default:
			}

			if cancelled {
				// Superseded by a reset/cancel, or the registry is
				// shutting down: discard silently, whatever superseded
				// this run is already queued.
				continue
			}

			s.deliver(val, err)
		}
	}
}

func (s *asyncState[T]) deliver(val T, err error) {
	var m Maybe[T]
	if err != nil {
		m = MaybeError[T](err)
	} else {
		m = MaybeValue(val)
	}

	s.NotifyWillUpdate()
	s.mu.Lock()
	s.value = m
	s.mu.Unlock()
	s.setStale(false)
	s.NotifyUpdate(true)
}

func (s *asyncState[T]) Value() (T, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.value.Unwrap()
}

// AsyncCell is a cell driven by an Awaitable rather than a compute
// function (spec.md §4.10). Reading it before its first result has
// arrived returns ErrPendingAsyncValue once observed, or
// ErrUninitializedCell if nobody has ever observed it (so resolve has
// never even run).
type AsyncCell[T any] struct {
	statefulCellBase
	args    []AnyCell
	resolve func() Awaitable[T]
	reset   bool
	queue   bool
}

func newAsyncCell[T any](registry *Registry, key Key, args []AnyCell, resolve func() Awaitable[T], reset, queue bool) *AsyncCell[T] {
	return &AsyncCell[T]{
		statefulCellBase: newStatefulCellBase(registry, key),
		args:             args,
		resolve:          resolve,
		reset:            reset,
		queue:            queue,
	}
}

// NewAwaitCell builds an AsyncCell with "reset" semantics (spec.md
// §4.10's AwaitCell): any change to an argument cancels a still-running
// Awaitable and starts a fresh one, and only the latest result is ever
// kept. resolve is called synchronously on every trigger to capture the
// Awaitable to run.
func NewAwaitCell[T any](registry *Registry, key Key, args []AnyCell, resolve func() Awaitable[T]) *AsyncCell[T] {
	return newAsyncCell[T](registry, key, args, resolve, true, false)
}

// NewWaitCell builds an AsyncCell with "wait" semantics (spec.md §4.10's
// WaitCell): a trigger never resets the published value to pending; the
// previous result stays until a new run completes. queue selects whether
// every triggered run is left to finish and delivered in order (true) or
// whether a new trigger cancels the in-flight run, so bursts collapse to
// just the most recent result (false).
func NewWaitCell[T any](registry *Registry, key Key, args []AnyCell, resolve func() Awaitable[T], queue bool) *AsyncCell[T] {
	return newAsyncCell[T](registry, key, args, resolve, false, queue)
}

func (c *AsyncCell[T]) factory() CellState {
	return newAsyncState[T](c.registry, c.key, c, c.args, c.resolve, c.reset, c.queue)
}

func (c *AsyncCell[T]) Value() (T, error) {
	st := c.getState()
	if st == nil {
		var zero T
		return zero, ErrUninitializedCell
	}
	return st.(*asyncState[T]).Value()
}

func (c *AsyncCell[T]) Call() (T, error) {
	track(c)
	return c.Value()
}

func (c *AsyncCell[T]) AddObserver(o Observer) {
	c.statefulCellBase.AddObserver(o, c.factory)
}

func (c *AsyncCell[T]) RemoveObserver(o Observer) {
	c.statefulCellBase.RemoveObserver(o)
}
