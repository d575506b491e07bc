package cells

import (
	"github.com/livecellgo/cells/internal/cell"
)

// Cell is a value-bearing, identity-bearing node that can be observed for
// changes (spec.md §4.1).
type Cell[T any] = cell.Cell[T]

// Observer receives the two-phase will_update/update notifications
// delivered around a propagation cycle (spec.md §4.4).
type Observer = cell.Observer

// AnyCell is the type-erased identity of a cell, the argument type of
// Observer's methods.
type AnyCell = cell.AnyCell

// Key identifies a stateful cell; two stateful cells constructed with
// equal, non-nil keys share the same runtime state (spec.md §4.3).
type Key = cell.Key

// Watcher is the handle returned by Watch.
type Watcher = cell.Watcher

// MutableCell is the concrete handle returned by Mutable.
type MutableCell[T any] = cell.MutableCell[T]

// AsyncCell is the concrete handle returned by Awaited, Waited and Wait.
type AsyncCell[T any] = cell.AsyncCell[T]

// Awaitable is a cold, cancellable unit of asynchronous work — the Go
// stand-in for a coroutine (spec.md §4.10).
type Awaitable[T any] = cell.Awaitable[T]

// Sentinel errors (spec.md §7).
var (
	ErrUninitializedCell = cell.ErrUninitializedCell
	ErrPendingAsyncValue = cell.ErrPendingAsyncValue
)

// StopCompute is the control-flow signal raised by None to seed or
// preserve a computed cell's value instead of assigning a freshly
// computed one.
type StopCompute = cell.StopCompute

// Value returns a constant cell holding v. Two constant cells holding
// equal values are interchangeable (spec.md §6 "value(v)").
func Value[T comparable](v T) Cell[T] {
	return cell.NewConstant(v)
}

// MutableOption configures a cell constructed by Mutable.
type MutableOption[T any] func(*mutableConfig[T])

type mutableConfig[T any] struct {
	key    Key
	equals func(a, b T) bool
}

// WithKey gives the constructed cell a shared identity: two cells built
// with equal keys resolve to the same runtime state (spec.md §4.3
// invariant 6).
func WithKey[T any](key Key) MutableOption[T] {
	return func(c *mutableConfig[T]) { c.key = key }
}

// WithEquals overrides the default (reflect.DeepEqual) equality check
// used to decide whether a Set actually changed the cell's value.
func WithEquals[T any](equals func(a, b T) bool) MutableOption[T] {
	return func(c *mutableConfig[T]) { c.equals = equals }
}

// Mutable creates a cell whose value is assigned directly by application
// code via Set (spec.md §4.7 "MutableCell").
func Mutable[T any](initial T, opts ...MutableOption[T]) *MutableCell[T] {
	cfg := &mutableConfig[T]{}
	for _, opt := range opts {
		opt(cfg)
	}
	return cell.NewMutable[T](cell.Global, cfg.key, initial, cfg.equals)
}

// Batch runs fn with every MutableCell.Set inside it coalesced into a
// single update notification per cell, delivered once fn returns
// (spec.md §4.7).
func Batch(fn func()) {
	cell.Batch(fn)
}

// BatchValue is Batch for a function that returns a value.
func BatchValue[T any](fn func() T) T {
	return cell.BatchValue(fn)
}

// ComputedOption configures a cell constructed by Computed.
type ComputedOption func(*computedConfig)

type computedConfig struct {
	key         Key
	changesOnly bool
}

// WithComputedKey gives the constructed computed cell a shared identity.
func WithComputedKey(key Key) ComputedOption {
	return func(c *computedConfig) { c.key = key }
}

// WithChangesOnly makes the computed cell recompute eagerly whenever an
// argument changes and only notify its own observers if the recomputed
// value actually differs from the previous one (spec.md §4.8
// "changes_only").
func WithChangesOnly() ComputedOption {
	return func(c *computedConfig) { c.changesOnly = true }
}

// Computed creates a cell whose value is derived by calling fn, which
// discovers its dependencies dynamically by reading other cells through
// Cell.Call (spec.md §4.8 "DynamicComputedCell").
func Computed[T any](fn func() T, opts ...ComputedOption) Cell[T] {
	cfg := &computedConfig{}
	for _, opt := range opts {
		opt(cfg)
	}
	return cell.NewComputed[T](cell.Global, cfg.key, fn, cfg.changesOnly)
}

// None is called from inside a Computed function to keep the cell's
// previous value (or seed it with default_ if it has none yet) instead
// of assigning whatever the function would otherwise return (spec.md
// §4.8 "none-signal"). It never returns to its caller.
func None[T any](default_ T) T {
	panic(&cell.StopCompute{Default: default_})
}

// WatchOption configures a watcher constructed by Watch.
type WatchOption func(*watchConfig)

type watchConfig struct {
	schedule func(func())
}

// WithSchedule defers when the watcher body actually runs: instead of
// running synchronously inside the propagation cycle that triggered it,
// the body (the first run at construction included) is handed to
// schedule (e.g. a UI event loop's queue, or a
// worker pool), mirroring spec.md §4.9's schedule parameter.
func WithSchedule(schedule func(func())) WatchOption {
	return func(c *watchConfig) { c.schedule = schedule }
}

// Watch runs fn right away (or, with WithSchedule, hands that first run
// to the scheduler) and again every time a cell it reads changes, until
// Stop is called on the returned Watcher (spec.md §4.9).
func Watch(fn func(), opts ...WatchOption) *Watcher {
	cfg := &watchConfig{}
	for _, opt := range opts {
		opt(cfg)
	}
	return cell.Watch(cell.Global, fn, cfg.schedule)
}
