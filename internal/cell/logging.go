package cell

import "github.com/go-logr/logr"

// logger is the ambient structured logger for the engine, adapted from the
// teacher's internal/logger (a hand-rolled level+category Printf logger)
// to the interface-based github.com/go-logr/logr used by juju-juju and
// projectcontour-contour, so the engine never dictates a logging backend
// to its embedders. Discarded by default.
var logger logr.Logger = logr.Discard()

// SetLogger installs l as the engine-wide logger. Call once during
// application start-up; the engine itself never logs above V(1)
// (propagation-cycle detail) except for isolated observer panics, which
// are logged at the default (error) level.
func SetLogger(l logr.Logger) {
	logger = l
}
