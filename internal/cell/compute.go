package cell

import (
	"fmt"
	"reflect"
	"sync"
)

// sameCell reports whether a and b identify the same logical dependency:
// equal non-nil keys mean shared state (two handles, one cell), otherwise
// cell identity falls back to the handle's own identity.
func sameCell(a, b AnyCell) bool {
	ka, kb := a.Key(), b.Key()
	if ka != nil && kb != nil {
		return ka.Equal(kb)
	}
	return a == b
}

// argSet accumulates the dependencies a dynamic compute discovers, ported
// from original_source/live_cells/dynamic_compute_cell.py's
// DynamicComputeCellState.track_argument: membership is monotonic across
// recomputations — a dependency read once is never pruned, even if a
// later recompute takes a branch that no longer reads it (the Open
// Question decision recorded in SPEC_FULL.md §7/DESIGN.md).
type argSet struct {
	mu    sync.Mutex
	items []AnyCell
}

// Add records c as a dependency, returning true the first time c is seen.
func (s *argSet) Add(c AnyCell) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, it := range s.items {
		if sameCell(it, c) {
			return false
		}
	}
	s.items = append(s.items, c)
	return true
}

func (s *argSet) Each(fn func(AnyCell)) {
	s.mu.Lock()
	items := append([]AnyCell(nil), s.items...)
	s.mu.Unlock()

	for _, it := range items {
		fn(it)
	}
}

// computeState is the CellState behind a dynamic computed cell (spec.md
// §4.6/§4.8): an observerCore that is itself the Observer of every cell
// its compute function calls via Call(). Grounded on the teacher's
// internal/reactive/memo.go Memo[T] — the stale flag and lazy
// recompute-on-Get idea carry over directly — generalized from Memo's
// fixed per-instance Effect onto the shared observerCore barrier so it
// composes with MutableCell and other computed cells through the same
// Observer contract.
type computeState[T any] struct {
	observerCore

	mu       sync.Mutex
	compute  func() T
	hasValue bool
	cached   T
	err      error

	args *argSet

	changesOnly bool
}

func newComputeState[T any](registry *Registry, key Key, c AnyCell, compute func() T, changesOnly bool) *computeState[T] {
	s := &computeState[T]{
		observerCore: newObserverCore(registry, key, c),
		compute:      compute,
		args:         &argSet{},
		changesOnly:  changesOnly,
	}
	s.onInit = func() { s.recomputeAndCache() }
	s.onDispose = func() {
		s.args.Each(func(dep AnyCell) { dep.RemoveObserver(s) })
	}
	if changesOnly {
		// ChangesOnlyState.pre_update in original_source: recompute eagerly
		// inside the update cycle so did_change reflects the actual value
		// comparison, instead of lazily recomputing on the next Value read
		// (which would make did_change always "assume changed").
		s.didChangeFn = s.recomputeAndCompare
	}
	return s
}

func (s *computeState[T]) trackArgument(c AnyCell) {
	if s.args.Add(c) {
		c.AddObserver(s)
	}
}

// recomputeAndCache runs compute under dependency tracking, caches the
// result (or, on a StopCompute signal, the previous value / the supplied
// default) and clears the stale flag.
func (s *computeState[T]) recomputeAndCache() (T, error) {
	var result T
	var resultErr error

	func() {
		defer func() {
			r := recover()
			if r == nil {
				return
			}
			if sc, ok := r.(*StopCompute); ok {
				s.mu.Lock()
				if s.hasValue {
					result, resultErr = s.cached, s.err
				} else if def, ok2 := sc.Default.(T); ok2 {
					result = def
				}
				s.mu.Unlock()
				return
			}
			resultErr = fmt.Errorf("cell: compute panicked: %v", r)
		}()

		WithTracker(s.trackArgument, func() {
			result = s.compute()
		})
	}()

	s.mu.Lock()
	s.cached, s.err, s.hasValue = result, resultErr, true
	s.mu.Unlock()
	s.setStale(false)

	return result, resultErr
}

// recomputeAndCompare is the changes-only didChangeFn override: it
// recomputes immediately and reports whether the result differs from
// what was cached before this call.
func (s *computeState[T]) recomputeAndCompare() bool {
	s.mu.Lock()
	prevVal, prevErr, prevHasValue := s.cached, s.err, s.hasValue
	s.mu.Unlock()

	newVal, newErr := s.recomputeAndCache()

	if !prevHasValue {
		return true
	}
	if (prevErr == nil) != (newErr == nil) {
		return true
	}
	if prevErr != nil {
		return prevErr.Error() != newErr.Error()
	}
	return !reflect.DeepEqual(prevVal, newVal)
}

func (s *computeState[T]) cachedResult() (T, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cached, s.err
}

// Value returns the current result, recomputing first if stale
// (spec.md invariant 3).
func (s *computeState[T]) Value() (T, error) {
	if s.Stale() {
		return s.recomputeAndCache()
	}
	return s.cachedResult()
}

// DynamicComputedCell is a cell whose value is derived from others
// through an arbitrary Go function that discovers its dependencies by
// calling them (spec.md §4.8 "DynamicComputedCell"). When nobody
// observes it, it has no persistent state at all and recomputes fresh on
// every read — the "unobserved" path ported from
// original_source/live_cells/dynamic_compute_cell.py's fallback to a
// bare, untracked compute when the cell has never been activated.
type DynamicComputedCell[T any] struct {
	statefulCellBase
	compute     func() T
	changesOnly bool
}

// NewComputed constructs a dynamic computed cell. changesOnly selects the
// eager-recompute-and-compare variant described above.
func NewComputed[T any](registry *Registry, key Key, compute func() T, changesOnly bool) *DynamicComputedCell[T] {
	return &DynamicComputedCell[T]{
		statefulCellBase: newStatefulCellBase(registry, key),
		compute:          compute,
		changesOnly:      changesOnly,
	}
}

func (c *DynamicComputedCell[T]) factory() CellState {
	return newComputeState[T](c.registry, c.key, c, c.compute, c.changesOnly)
}

func (c *DynamicComputedCell[T]) Value() (T, error) {
	if st := c.getState(); st != nil {
		return st.(*computeState[T]).Value()
	}
	return c.adHocCompute()
}

// adHocCompute runs compute once, with dependency tracking suppressed
// (WithoutTracker) so the transient reads it performs are not mistaken
// for dependencies of whatever computation is tracking *this* cell.
func (c *DynamicComputedCell[T]) adHocCompute() (T, error) {
	var result T
	var resultErr error

	func() {
		defer func() {
			r := recover()
			if r == nil {
				return
			}
			if sc, ok := r.(*StopCompute); ok {
				if def, ok2 := sc.Default.(T); ok2 {
					result = def
				}
				return
			}
			resultErr = fmt.Errorf("cell: compute panicked: %v", r)
		}()

		WithoutTracker(func() {
			result = c.compute()
		})
	}()

	return result, resultErr
}

func (c *DynamicComputedCell[T]) Call() (T, error) {
	track(c)
	return c.Value()
}

func (c *DynamicComputedCell[T]) AddObserver(o Observer) {
	c.statefulCellBase.AddObserver(o, c.factory)
}

func (c *DynamicComputedCell[T]) RemoveObserver(o Observer) {
	c.statefulCellBase.RemoveObserver(o)
}
