package cell

import (
	"context"
	"sync"

	"github.com/elastic/go-concert/unison"
)

// entry pairs a key with the state registered under it. Buckets hold a
// slice rather than a single entry so Hash collisions between unequal
// keys are resolved with Key.Equal, the way a hand-rolled hash map would.
type entry struct {
	key   Key
	state CellState
}

// Registry is the process-wide key -> CellState map described in spec.md
// §3/§4.3 ("StateRegistry"). An entry exists in the registry iff the state
// behind it is not disposed (invariant 2); baseState.dispose removes
// its own entry on the last RemoveObserver.
//
// It also tracks outstanding async tasks (spec.md §4.10) through a
// unison.SafeWaitGroup, so embedding applications and tests can drain
// in-flight await/wait goroutines deterministically via Close, instead of
// leaking them — the teacher's internal/reactive had no such lifecycle
// hook at all.
type Registry struct {
	mu      sync.Mutex
	buckets map[string][]entry

	tasks unison.SafeWaitGroup

	shutdownCtx    context.Context
	shutdownCancel context.CancelFunc
}

// Global is the default, package-wide registry used by every cell
// constructed through the public API. Tests that need isolation construct
// their own *Registry via NewRegistry.
var Global = NewRegistry()

// NewRegistry creates an empty, independent state registry.
func NewRegistry() *Registry {
	ctx, cancel := context.WithCancel(context.Background())
	return &Registry{
		buckets:        make(map[string][]entry),
		shutdownCtx:    ctx,
		shutdownCancel: cancel,
	}
}

// ShutdownContext returns the context cancelled when Close is called. Async
// cell states derive their per-task context from this one (see async.go),
// so a registry shutdown cancels every outstanding await/wait task.
func (r *Registry) ShutdownContext() context.Context {
	return r.shutdownCtx
}

// TrackTask registers a goroutine with the registry's drain barrier. done
// must be called exactly once when the goroutine exits.
func (r *Registry) TrackTask() (done func(), ok bool) {
	if err := r.tasks.Add(1); err != nil {
		return func() {}, false
	}
	return r.tasks.Done, true
}

// Get returns the existing state for key, or constructs one with factory
// and stores it. A nil key means the state is not shared: factory is
// always invoked and the result is never stored, per spec.md §4.3.
func (r *Registry) Get(key Key, factory func() CellState) CellState {
	if key == nil {
		return factory()
	}

	hash := key.Hash()

	r.mu.Lock()
	for _, e := range r.buckets[hash] {
		if e.key.Equal(key) {
			r.mu.Unlock()
			return e.state
		}
	}
	r.mu.Unlock()

	state := factory()

	r.mu.Lock()
	defer r.mu.Unlock()
	for _, e := range r.buckets[hash] {
		if e.key.Equal(key) {
			// Lost a race constructing this state; keep the winner and
			// drop the one we just built (it was never observed so it
			// has no cleanup to run).
			return e.state
		}
	}
	r.buckets[hash] = append(r.buckets[hash], entry{key: key, state: state})
	return state
}

// MaybeGet returns the state registered under key without creating one,
// or nil if no such state exists. Used by the "unobserved" read path
// (spec.md §4.1/§4.8): an unobserved computed cell has no state at all and
// falls back to an ad-hoc compute instead of materializing one.
func (r *Registry) MaybeGet(key Key) CellState {
	if key == nil {
		return nil
	}

	hash := key.Hash()

	r.mu.Lock()
	defer r.mu.Unlock()
	for _, e := range r.buckets[hash] {
		if e.key.Equal(key) {
			return e.state
		}
	}
	return nil
}

// remove deletes the entry for key, called by baseState.dispose.
func (r *Registry) remove(key Key) {
	if key == nil {
		return
	}

	hash := key.Hash()

	r.mu.Lock()
	defer r.mu.Unlock()

	bucket := r.buckets[hash]
	for i, e := range bucket {
		if e.key.Equal(key) {
			r.buckets[hash] = append(bucket[:i], bucket[i+1:]...)
			return
		}
	}
}

// Close cancels the registry's shutdown context, causing every in-flight
// async task to cancel its awaitable, then blocks until all tracked tasks
// have returned or ctx is done.
func (r *Registry) Close(ctx context.Context) error {
	r.shutdownCancel()

	done := make(chan struct{})
	go func() {
		r.tasks.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
