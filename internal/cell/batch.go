package cell

import "sync"

// flusher is implemented by any cell state that can defer its update
// notification to the end of an enclosing batch.
type flusher interface{ flush() }

// batchDepth, batchPending and batchSeen implement the deferred-update
// half of spec.md §4.7. Structurally this keeps the teacher's
// internal/reactive/batch.go shape (package-level depth counter +
// pending-set + single flush pass, deduplicated by identity) but the
// REDESIGN FLAG in SPEC_FULL.md §7 applies: the teacher's flushBatch
// deferred both will_update and update by queuing signals and collecting
// their observers at flush time. Here only NotifyUpdate is ever deferred
// — NotifyWillUpdate fires the instant MutableCell.Set first changes a
// cell, batch or no batch, since spec.md invariant 4 requires the barrier
// to open immediately; a later Set of the same cell in the same batch
// sends no second one.
var (
	batchMu      sync.Mutex
	batchDepth   int
	batchPending []flusher
	batchSeen    map[flusher]bool
)

// registerBatchFlush enrolls f to be flushed once the outermost Batch
// ends. It reports whether a batch is currently active; if not, the
// caller must flush f itself, synchronously.
func registerBatchFlush(f flusher) bool {
	batchMu.Lock()
	defer batchMu.Unlock()

	if batchDepth == 0 {
		return false
	}
	if batchSeen == nil {
		batchSeen = make(map[flusher]bool)
	}
	if !batchSeen[f] {
		batchSeen[f] = true
		batchPending = append(batchPending, f)
	}
	return true
}

func enterBatch() {
	batchMu.Lock()
	batchDepth++
	batchMu.Unlock()
}

func exitBatch() {
	batchMu.Lock()
	batchDepth--
	if batchDepth < 0 {
		batchDepth = 0
	}

	var toFlush []flusher
	if batchDepth == 0 {
		toFlush = batchPending
		batchPending = nil
		batchSeen = nil
	}
	batchMu.Unlock()

	for _, f := range toFlush {
		f.flush()
	}
}

// Batch runs fn with every MutableCell.Set performed inside it coalesced
// into a single update notification per cell, delivered when the
// outermost Batch returns (spec.md §4.7). Nested Batch calls coalesce
// into the outermost one, the way the teacher's nested startBatch/endBatch
// pair does.
func Batch(fn func()) {
	enterBatch()
	defer exitBatch()
	fn()
}

// BatchValue is Batch for a function that returns a value, mirroring the
// teacher's BatchValue helper.
func BatchValue[T any](fn func() T) T {
	enterBatch()
	defer exitBatch()
	return fn()
}
