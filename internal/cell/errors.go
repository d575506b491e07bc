package cell

import "errors"

// ErrUninitializedCell is raised when an await/wait cell is read while it
// has no state: before any observer has triggered its first evaluation,
// or after its state was disposed (spec.md §7 "Uninitialized"). Keyed
// mutable and computed cells read without an observer do not return it:
// a mutable cell creates its state on that read, and a computed cell
// computes its value ad hoc.
var ErrUninitializedCell = errors.New("cell: value referenced before the cell was initialized")

// ErrPendingAsyncValue is raised when an await/wait cell is read before
// its awaitable has completed for the first time (spec.md §7 "Pending-async").
var ErrPendingAsyncValue = errors.New("cell: value referenced before the async computation completed")

// StopCompute is the control-flow signal a compute function raises (via
// panic, the Go analogue of Python's raise) to ask the engine to keep the
// cell's previous value instead of the one currently being computed.
// Ported from original_source/live_cells/exceptions.py
// StopComputeException; ground truth for its default-value behaviour is
// DynamicComputeCell.value in dynamic_compute_cell.py: on the very first
// compute, with no previous value yet, the cell is seeded with Default.
type StopCompute struct {
	Default any
}

func (e *StopCompute) Error() string {
	return "cell: stop-compute signal raised outside of a compute function"
}

// raiseStopCompute panics with a *StopCompute signal carrying default as
// the seed value for an as-yet-uncomputed cell. Exposed to callers as
// cells.None; used directly by tests in this package that exercise the
// none-signal without going through the public API.
func raiseStopCompute(default_ any) {
	panic(&StopCompute{Default: default_})
}
