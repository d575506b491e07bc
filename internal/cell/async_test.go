package cell

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

// syncObserver is like recordingObserver but lets a test block until a
// given number of Update notifications have arrived, since async
// deliveries happen on a worker goroutine rather than synchronously.
type syncObserver struct {
	ch chan bool
}

func newSyncObserver() *syncObserver { return &syncObserver{ch: make(chan bool, 64)} }

func (o *syncObserver) WillUpdate(AnyCell) {}
func (o *syncObserver) Update(_ AnyCell, didChange bool) {
	o.ch <- didChange
}

func (o *syncObserver) awaitUpdate(t *testing.T) bool {
	t.Helper()
	select {
	case v := <-o.ch:
		return v
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for an async update notification")
		return false
	}
}

func closeRegistry(t *testing.T, reg *Registry) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, reg.Close(ctx))
}

func blockingAwaitable(release <-chan struct{}, result int) Awaitable[int] {
	return func(ctx context.Context) (int, error) {
		select {
		case <-release:
			return result, nil
		case <-ctx.Done():
			return 0, ctx.Err()
		}
	}
}

// fixedAwaitable wraps a never-Set Awaitable in a MutableCell (Awaitable
// is a func type, so it cannot satisfy ConstantCell's comparable
// constraint) purely so it has the AnyCell identity asyncState's
// subscription mechanism expects.
func fixedAwaitable[T any](aw Awaitable[T]) *MutableCell[Awaitable[T]] {
	return NewMutable[Awaitable[T]](NewRegistry(), nil, aw, nil)
}

// resolveArg builds a resolve closure reading arg's current value
// synchronously, mirroring how awaited.go's resolveArg works.
func resolveArgCell[T any](arg *MutableCell[Awaitable[T]]) func() Awaitable[T] {
	return func() Awaitable[T] {
		aw, _ := arg.Value()
		return aw
	}
}

func TestAwaitCell_ResolvesArgumentAwaitable(t *testing.T) {
	reg := NewRegistry()
	defer closeRegistry(t, reg)

	release := make(chan struct{})
	close(release)
	arg := fixedAwaitable(blockingAwaitable(release, 7))

	c := NewAwaitCell[int](reg, nil, []AnyCell{arg}, resolveArgCell(arg))

	obs := newSyncObserver()
	c.AddObserver(obs)
	defer c.RemoveObserver(obs)

	assert.True(t, obs.awaitUpdate(t))
	v, err := c.Value()
	require.NoError(t, err)
	assert.Equal(t, 7, v)
}

func TestAwaitCell_ReadBeforeFirstResultIsPending(t *testing.T) {
	reg := NewRegistry()
	defer closeRegistry(t, reg)

	release := make(chan struct{})
	arg := fixedAwaitable(blockingAwaitable(release, 1))

	c := NewAwaitCell[int](reg, nil, []AnyCell{arg}, resolveArgCell(arg))

	obs := newSyncObserver()
	c.AddObserver(obs)
	defer c.RemoveObserver(obs)

	_, err := c.Value()
	assert.ErrorIs(t, err, ErrPendingAsyncValue)

	close(release)
	obs.awaitUpdate(t)
}

func TestAwaitCell_UnobservedReadIsUninitialized(t *testing.T) {
	reg := NewRegistry()
	defer closeRegistry(t, reg)

	arg := fixedAwaitable(blockingAwaitable(make(chan struct{}), 1))
	c := NewAwaitCell[int](reg, nil, []AnyCell{arg}, resolveArgCell(arg))

	_, err := c.Value()
	assert.ErrorIs(t, err, ErrUninitializedCell)
}

func TestAwaitCell_ArgumentChangeResetsToPendingAndCancelsOutstanding(t *testing.T) {
	reg := NewRegistry()
	defer closeRegistry(t, reg)

	trigger := NewMutable[int](reg, nil, 1, nil)
	cancelled := make(chan struct{}, 1)
	started := make(chan struct{}, 1)
	neverRelease := make(chan struct{})

	resolve := func() Awaitable[string] {
		n, _ := trigger.Value()
		return func(ctx context.Context) (string, error) {
			if n == 1 {
				started <- struct{}{}
				select {
				case <-neverRelease:
					return "first", nil
				case <-ctx.Done():
					cancelled <- struct{}{}
					return "", ctx.Err()
				}
			}
			return "second", nil
		}
	}

	c := NewAwaitCell[string](reg, nil, []AnyCell{trigger}, resolve)

	obs := newSyncObserver()
	c.AddObserver(obs)
	defer c.RemoveObserver(obs)

	// AddObserver's onInit queues the first run (for trigger==1) for the
	// worker goroutine; once started it blocks on neverRelease — no
	// notification has fired yet. A run that is replaced before the worker
	// starts it is dropped rather than cancelled, so wait for it to start.
	select {
	case <-started:
	case <-time.After(2 * time.Second):
		t.Fatal("expected the first run to start")
	}
	_, err := c.Value()
	assert.ErrorIs(t, err, ErrPendingAsyncValue)

	trigger.Set(2)

	// The argument change delivers its own reset-to-pending cycle ...
	assert.True(t, obs.awaitUpdate(t))

	select {
	case <-cancelled:
	case <-time.After(2 * time.Second):
		t.Fatal("expected the outstanding run to be cancelled")
	}

	// ... and the second run's completion delivers the real result.
	assert.True(t, obs.awaitUpdate(t))
	v, err := c.Value()
	require.NoError(t, err)
	assert.Equal(t, "second", v)
}

func TestWaitCell_LastOnly_DeliversOnceUnblocked(t *testing.T) {
	reg := NewRegistry()
	defer closeRegistry(t, reg)

	trigger := NewMutable[int](reg, nil, 1, nil)
	release := make(chan struct{})

	resolve := func() Awaitable[int] {
		n, _ := trigger.Value()
		return func(ctx context.Context) (int, error) {
			select {
			case <-release:
				return n, nil
			case <-ctx.Done():
				return 0, ctx.Err()
			}
		}
	}

	c := NewWaitCell[int](reg, nil, []AnyCell{trigger}, resolve, false)

	obs := newSyncObserver()
	c.AddObserver(obs)
	defer c.RemoveObserver(obs)

	// Wait cells never reset to pending on init, but nothing has
	// completed yet either.
	_, err := c.Value()
	assert.ErrorIs(t, err, ErrPendingAsyncValue)

	close(release)
	assert.True(t, obs.awaitUpdate(t))

	v, err := c.Value()
	require.NoError(t, err)
	assert.Equal(t, 1, v)
}

func TestWaitCell_LastOnly_CancelsSupersededRunAndPreservesPreviousValue(t *testing.T) {
	reg := NewRegistry()
	defer closeRegistry(t, reg)

	trigger := NewMutable[int](reg, nil, 1, nil)
	cancelled := make(chan struct{}, 4)
	started := make(chan struct{}, 4)
	neverRelease := make(chan struct{})
	release := make(chan struct{})
	close(release)

	resolve := func() Awaitable[int] {
		n, _ := trigger.Value()
		return func(ctx context.Context) (int, error) {
			if n == 1 {
				<-release
				return 1, nil
			}
			started <- struct{}{}
			select {
			case <-neverRelease:
				return n, nil
			case <-ctx.Done():
				cancelled <- struct{}{}
				return 0, ctx.Err()
			}
		}
	}

	c := NewWaitCell[int](reg, nil, []AnyCell{trigger}, resolve, false)

	obs := newSyncObserver()
	c.AddObserver(obs)
	defer c.RemoveObserver(obs)

	assert.True(t, obs.awaitUpdate(t)) // the n==1 run completes immediately
	v, _ := c.Value()
	require.Equal(t, 1, v)

	trigger.Set(2) // queues a run that blocks on neverRelease once started

	// A run replaced before the worker starts it is dropped rather than
	// cancelled, so wait until the n==2 run is actually running.
	select {
	case <-started:
	case <-time.After(2 * time.Second):
		t.Fatal("expected the n==2 run to start")
	}

	trigger.Set(3) // supersedes it: must cancel the n==2 run outright

	select {
	case <-cancelled:
	case <-time.After(2 * time.Second):
		t.Fatal("expected the superseded wait-cell run to be cancelled")
	}

	// Last-only never resets to pending: until the n==3 run (which also
	// blocks on neverRelease and will itself be cancelled at registry
	// Close) completes, the previous result is preserved.
	v, err := c.Value()
	require.NoError(t, err)
	assert.Equal(t, 1, v)
}

func TestWaitCell_Queued_DeliversEveryResultInAssignmentOrder(t *testing.T) {
	reg := NewRegistry()
	defer closeRegistry(t, reg)

	trigger := NewMutable[int](reg, nil, 1, nil)
	gate := make(chan struct{})

	resolve := func() Awaitable[int] {
		n, _ := trigger.Value()
		return func(ctx context.Context) (int, error) {
			if n > 1 {
				// Each later run waits for the test to let it through, so
				// the test reads the value each delivery published before
				// the next run replaces it.
				select {
				case <-gate:
				case <-ctx.Done():
					return 0, ctx.Err()
				}
			}
			return n, nil
		}
	}

	c := NewWaitCell[int](reg, nil, []AnyCell{trigger}, resolve, true)

	obs := newSyncObserver()
	c.AddObserver(obs)
	defer c.RemoveObserver(obs)

	obs.awaitUpdate(t)
	v, _ := c.Value()
	require.Equal(t, 1, v)

	trigger.Set(2)
	trigger.Set(3)
	trigger.Set(4)

	var results []int
	for i := 0; i < 3; i++ {
		gate <- struct{}{}
		obs.awaitUpdate(t)
		v, _ := c.Value()
		results = append(results, v)
	}

	assert.Equal(t, []int{2, 3, 4}, results, "queued wait must deliver results in assignment order, not coalesce")
}

func TestAwaited_KeyedBySameArgumentSharesState(t *testing.T) {
	reg := NewRegistry()
	defer closeRegistry(t, reg)

	release := make(chan struct{})
	close(release)
	arg := fixedAwaitable(blockingAwaitable(release, 9))
	key := NewValueKey("awaited-test", "shared")

	a := NewAwaitCell[int](reg, key, []AnyCell{arg}, resolveArgCell(arg))
	b := NewAwaitCell[int](reg, key, []AnyCell{arg}, resolveArgCell(arg))

	obsA := newSyncObserver()
	a.AddObserver(obsA)
	defer a.RemoveObserver(obsA)
	obsA.awaitUpdate(t)

	// b resolves to the same underlying state, so its value is already
	// available without needing its own observer to have fired yet.
	v, err := b.Value()
	require.NoError(t, err)
	assert.Equal(t, 9, v)
}

func TestAwaitCell_DeliversErrorFromAwaitable(t *testing.T) {
	reg := NewRegistry()
	defer closeRegistry(t, reg)

	boom := errors.New("boom")
	arg := fixedAwaitable(func(ctx context.Context) (int, error) {
		return 0, boom
	})

	c := NewAwaitCell[int](reg, nil, []AnyCell{arg}, resolveArgCell(arg))

	obs := newSyncObserver()
	c.AddObserver(obs)
	defer c.RemoveObserver(obs)

	obs.awaitUpdate(t) // the failed run's delivery
	_, err := c.Value()
	assert.ErrorIs(t, err, boom)
}
