package cell

import "sync"

// Cell is the core contract from spec.md §4.1: a value-bearing,
// identity-bearing node that can be observed for changes.
type Cell[T any] interface {
	AnyCell

	// Value returns the current value, or an error if the cell's last
	// computation raised one. Reading Value never records a dependency.
	Value() (T, error)

	// Call returns the same result as Value but, if an ArgumentTracker is
	// active on the calling goroutine, also reports this cell to it as a
	// dependency of the enclosing computation (spec.md §4.1).
	Call() (T, error)
}

// valueState is the subset of CellState that can produce a typed value;
// every concrete state (mutable, compute, async) implements it.
type valueState[T any] interface {
	CellState
	Value() (T, error)
}

// statefulCellBase implements the handle-side half of spec.md §4.3's
// StatefulCell: it caches the last-known state and reacquires it from the
// Registry when the cache is nil or disposed. For an unkeyed cell (key ==
// nil) the "registry" is just the handle itself — ported from
// stateful_cell.py's `_state`/`_ensure_state`/`_get_state` trio, and from
// spec.md's "the handle preserves the initial value across state
// recreations" lifecycle note for unkeyed mutable cells.
type statefulCellBase struct {
	mu       sync.Mutex
	key      Key
	registry *Registry
	local    CellState
}

func newStatefulCellBase(registry *Registry, key Key) statefulCellBase {
	return statefulCellBase{registry: registry, key: key}
}

func (s *statefulCellBase) Key() Key { return s.key }

// ensureState returns the live state, constructing one with factory if
// necessary (used by AddObserver, and by any direct-access path that must
// materialize state).
func (s *statefulCellBase) ensureState(factory func() CellState) CellState {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.key == nil {
		if s.local == nil || s.local.Disposed() {
			s.local = factory()
		}
		return s.local
	}

	st := s.registry.Get(s.key, factory)
	s.local = st
	return st
}

// getState returns the live state if one has been created, or nil
// otherwise — the "unobserved" path used by computed cell Value reads.
func (s *statefulCellBase) getState() CellState {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.key == nil {
		if s.local != nil && !s.local.Disposed() {
			return s.local
		}
		return nil
	}

	st := s.registry.MaybeGet(s.key)
	if st != nil {
		s.local = st
	}
	return st
}

func (s *statefulCellBase) AddObserver(o Observer, factory func() CellState) {
	s.ensureState(factory).AddObserver(o)
}

func (s *statefulCellBase) RemoveObserver(o Observer) {
	if st := s.getState(); st != nil {
		st.RemoveObserver(o)
	}
}

// ConstantCell is an immutable cell holding a fixed value (spec.md §6
// "value(v)"). Its observer methods are no-ops: a constant never changes,
// so it never needs to deliver an update cycle. Two constant cells with
// equal values compare equal, per spec.md §4.1 and
// original_source/live_cells/constant_cell.py.
type ConstantCell[T comparable] struct {
	v T
}

// NewConstant creates a cell holding the fixed value v.
func NewConstant[T comparable](v T) *ConstantCell[T] {
	return &ConstantCell[T]{v: v}
}

func (c *ConstantCell[T]) Value() (T, error) { return c.v, nil }

func (c *ConstantCell[T]) Call() (T, error) {
	track(c)
	return c.v, nil
}

func (c *ConstantCell[T]) AddObserver(Observer)    {}
func (c *ConstantCell[T]) RemoveObserver(Observer) {}

// Key returns a ValueKey derived from the constant's value, so two
// ConstantCells holding equal values are indistinguishable to anything
// keying off identity (e.g. use as a map key, or comparison via
// reflect.DeepEqual of two ConstantCell values is unnecessary — compare
// Equal instead).
func (c *ConstantCell[T]) Key() Key {
	return NewValueKey("constant", c.v)
}

// Equal reports whether other is a constant cell holding the same value.
func (c *ConstantCell[T]) Equal(other *ConstantCell[T]) bool {
	return c.v == other.v
}
