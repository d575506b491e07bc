package cell

import (
	"reflect"
	"sync"
)

// mutableState is the CellState behind a MutableCell (spec.md §4.7). It has
// no upstream dependencies of its own — Set is the only thing that opens a
// will_update/update cycle for its observers. Grounded on the teacher's
// internal/reactive/signal.go Signal[T] (version counter, equals-checker,
// RWMutex-guarded value, Subscribe), adapted onto baseState's observer
// multiset instead of Signal's bespoke observer map, and corrected for the
// REDESIGN FLAG in SPEC_FULL.md §7: will_update fires synchronously on the
// first Set that changes the value, batch or not; only update is deferred.
type mutableState[T any] struct {
	baseState

	mu               sync.Mutex
	value            T
	equalsFn         func(a, b T) bool
	hasPendingUpdate bool
	beforeValue      T
}

func newMutableState[T any](registry *Registry, key Key, c AnyCell, initial T, equalsFn func(a, b T) bool) *mutableState[T] {
	if equalsFn == nil {
		equalsFn = func(a, b T) bool { return reflect.DeepEqual(a, b) }
	}
	return &mutableState[T]{
		baseState: newBaseState(registry, key, c),
		value:     initial,
		equalsFn:  equalsFn,
	}
}

func (s *mutableState[T]) Value() (T, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.value, nil
}

// Set assigns v, notifying observers of a will_update/update cycle. If v
// equals the current value, nothing is assigned and nothing is notified.
// Inside a Batch, will_update is sent only for the cell's first change in
// the batch, the update half is deferred to the outermost flush, and
// didChange is computed against the value the cell held before the batch
// started, not against the immediately-preceding Set within the same
// batch (so A -> B -> A within one batch reports didChange=false).
func (s *mutableState[T]) Set(v T) {
	s.mu.Lock()
	old := s.value
	if s.equalsFn(old, v) {
		s.mu.Unlock()
		return
	}
	pending := s.hasPendingUpdate
	if !pending {
		s.beforeValue = old
	}
	s.mu.Unlock()

	if !pending {
		s.NotifyWillUpdate()
	}

	s.mu.Lock()
	s.value = v
	s.mu.Unlock()

	if registerBatchFlush(s) {
		s.mu.Lock()
		s.hasPendingUpdate = true
		s.mu.Unlock()
		return
	}

	s.NotifyUpdate(!s.equalsFn(old, v))
}

func (s *mutableState[T]) flush() {
	s.mu.Lock()
	before := s.beforeValue
	now := s.value
	s.hasPendingUpdate = false
	s.mu.Unlock()

	s.NotifyUpdate(!s.equalsFn(before, now))
}

// MutableCell is a cell whose value is assigned directly by application
// code (spec.md §4.7 "MutableCell"). It is the only cell kind with a
// public Set method — every other cell kind derives its value from
// observation of its arguments.
type MutableCell[T any] struct {
	statefulCellBase
	initial  T
	equalsFn func(a, b T) bool
}

// NewMutable constructs a mutable cell seeded with initial. A nil key
// means the cell is unshared: its handle is the only way to reach its
// state, and the handle's seed (initial, then the last value Set through
// this handle) is used whenever its state is recreated after disposal
// (spec.md §4.3's unkeyed-cell lifecycle note).
func NewMutable[T any](registry *Registry, key Key, initial T, equalsFn func(a, b T) bool) *MutableCell[T] {
	return &MutableCell[T]{
		statefulCellBase: newStatefulCellBase(registry, key),
		initial:          initial,
		equalsFn:         equalsFn,
	}
}

func (c *MutableCell[T]) factory() CellState {
	return newMutableState[T](c.registry, c.key, c, c.initial, c.equalsFn)
}

func (c *MutableCell[T]) state() *mutableState[T] {
	return c.ensureState(c.factory).(*mutableState[T])
}

func (c *MutableCell[T]) Value() (T, error) {
	return c.state().Value()
}

func (c *MutableCell[T]) Call() (T, error) {
	track(c)
	return c.Value()
}

// Set assigns the cell's value (spec.md §4.7). The assigned value also
// becomes the handle's seed if the state is later recreated.
func (c *MutableCell[T]) Set(v T) {
	c.mu.Lock()
	c.initial = v
	c.mu.Unlock()
	c.state().Set(v)
}

// Update reads the current value, applies fn, and assigns the result —
// a convenience composing Value and Set under no additional guarantee
// of atomicity beyond what Set itself provides.
func (c *MutableCell[T]) Update(fn func(T) T) {
	v, _ := c.Value()
	c.Set(fn(v))
}

func (c *MutableCell[T]) AddObserver(o Observer) {
	c.statefulCellBase.AddObserver(o, c.factory)
}

func (c *MutableCell[T]) RemoveObserver(o Observer) {
	c.statefulCellBase.RemoveObserver(o)
}
