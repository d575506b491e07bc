package cells

import (
	"context"

	"golang.org/x/sync/errgroup"

	"github.com/livecellgo/cells/internal/cell"
)

// Awaited returns a cell that awaits the Awaitable currently held by
// arg, cancelling any outstanding wait and starting over whenever arg's
// value changes (spec.md §4.10 "AwaitCell").
func Awaited[T any](arg Cell[Awaitable[T]]) *AsyncCell[T] {
	key := cell.NewValueKey("awaited", cellIdentity(arg))
	return cell.NewAwaitCell[T](cell.Global, key, []cell.AnyCell{arg}, resolveArg(arg))
}

// Waited returns a cell that awaits the Awaitable currently held by arg
// and keeps its previous result, instead of resetting to pending, while a
// new wait is outstanding (spec.md §4.10 "WaitCell"). queue selects
// whether every triggered run is left to finish and delivered in
// assignment order (true) or whether a change of arg cancels the
// outstanding wait, so bursts collapse to just the most recent result
// (false).
func Waited[T any](arg Cell[Awaitable[T]], queue bool) *AsyncCell[T] {
	key := cell.NewValueKey("waited", cellIdentity(arg), queue)
	return cell.NewWaitCell[T](cell.Global, key, []cell.AnyCell{arg}, resolveArg(arg), queue)
}

// Wait is Waited with queuing disabled — the "last result wins" policy,
// the default spec.md §6 "wait" uses.
func Wait[T any](arg Cell[Awaitable[T]]) *AsyncCell[T] {
	return Waited[T](arg, false)
}

// resolveArg returns a resolver that reads arg's current Awaitable
// synchronously, right when the triggering cycle fires, so a burst of
// assignments each captures its own Awaitable in order (spec.md §5's
// "assignment order" guarantee for Wait queued) rather than all three
// racing to read whatever arg holds once a worker goroutine finally gets
// around to running them.
func resolveArg[T any](arg Cell[Awaitable[T]]) func() Awaitable[T] {
	return func() Awaitable[T] {
		aw, err := arg.Value()
		if err != nil {
			return func(ctx context.Context) (T, error) {
				var zero T
				return zero, err
			}
		}
		return aw
	}
}

// AwaitedAll gathers several same-typed Awaitable-valued cells
// concurrently via golang.org/x/sync/errgroup, mirroring
// original_source's asyncio.gather-based `awaited(*cells)` when every
// argument cell produces the same result type. Cancelling any argument's
// Awaitable, or a failure in any one of them, cancels the others.
func AwaitedAll[T any](args ...Cell[Awaitable[T]]) *AsyncCell[[]T] {
	anyArgs := make([]cell.AnyCell, len(args))
	keyArgs := make([]any, len(args))
	for i, a := range args {
		anyArgs[i] = a
		keyArgs[i] = cellIdentity(a)
	}
	key := cell.NewValueKey("awaited_all", keyArgs...)

	resolve := func() cell.Awaitable[[]T] {
		aws := make([]cell.Awaitable[T], len(args))
		resolveErrs := make([]error, len(args))
		for i, a := range args {
			aws[i], resolveErrs[i] = a.Value()
		}

		return func(ctx context.Context) ([]T, error) {
			for _, err := range resolveErrs {
				if err != nil {
					return nil, err
				}
			}

			results := make([]T, len(args))

			g, gctx := errgroup.WithContext(ctx)
			for i := range args {
				i := i
				aw := aws[i]
				g.Go(func() error {
					v, err := aw(gctx)
					if err != nil {
						return err
					}
					results[i] = v
					return nil
				})
			}

			if err := g.Wait(); err != nil {
				return nil, err
			}
			return results, nil
		}
	}

	return cell.NewAwaitCell[[]T](cell.Global, key, anyArgs, resolve)
}
