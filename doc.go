// Package cells is a reactive propagation engine: a dynamic dependency
// graph of value-bearing cells that recompute derived values and notify
// observers through a glitch-free, two-phase update protocol.
//
// A Cell is either a constant (Value), a mutable input (Mutable), a
// derived value recomputed from whichever cells its function calls
// (Computed), or an asynchronous producer driven by a future-valued cell
// (Awaited/Waited). Watch runs a side-effecting function every time the
// cells it reads change. Batch coalesces several Mutable.Set calls into
// one update notification per cell.
package cells

import (
	"context"

	"github.com/go-logr/logr"

	"github.com/livecellgo/cells/internal/cell"
)

// SetLogger installs l as the engine's logger, used to report observer
// panics that would otherwise have nowhere to go. Async task failures
// are not logged; they become the async cell's error value. The default
// is logr.Discard().
func SetLogger(l logr.Logger) {
	cell.SetLogger(l)
}

// Close cancels every outstanding Awaited/Waited task and blocks until
// they have all returned or ctx is done. Applications and tests embedding
// this package should call Close during shutdown so await/wait goroutines
// are drained deterministically instead of leaked.
func Close(ctx context.Context) error {
	return cell.Global.Close(ctx)
}
