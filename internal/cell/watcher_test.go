package cell

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWatch_RunsImmediatelyOnConstruction(t *testing.T) {
	reg := NewRegistry()
	a := NewMutable[int](reg, nil, 1, nil)

	runs := 0
	var seen int
	w := Watch(reg, func() {
		runs++
		seen, _ = a.Call()
	}, nil)
	defer w.Stop()

	assert.Equal(t, 1, runs)
	assert.Equal(t, 1, seen)
}

func TestWatch_RerunsWhenDependencyChanges(t *testing.T) {
	reg := NewRegistry()
	a := NewMutable[int](reg, nil, 1, nil)

	runs := 0
	var seen int
	w := Watch(reg, func() {
		runs++
		seen, _ = a.Call()
	}, nil)
	defer w.Stop()

	a.Set(2)

	assert.Equal(t, 2, runs)
	assert.Equal(t, 2, seen)
}

func TestWatch_StopUnsubscribesFromDependencies(t *testing.T) {
	reg := NewRegistry()
	a := NewMutable[int](reg, nil, 1, nil)

	runs := 0
	w := Watch(reg, func() {
		runs++
		_, _ = a.Call()
	}, nil)

	require.Equal(t, 1, runs)

	w.Stop()
	a.Set(2)

	assert.Equal(t, 1, runs, "a stopped watcher must not rerun")
}

func TestWatch_SwitchesDependenciesDynamically(t *testing.T) {
	reg := NewRegistry()
	useA := NewMutable[bool](reg, nil, true, nil)
	a := NewMutable[int](reg, nil, 1, nil)
	b := NewMutable[int](reg, nil, 100, nil)

	var seen int
	w := Watch(reg, func() {
		if u, _ := useA.Call(); u {
			seen, _ = a.Call()
		} else {
			seen, _ = b.Call()
		}
	}, nil)
	defer w.Stop()

	assert.Equal(t, 1, seen)

	useA.Set(false)
	assert.Equal(t, 100, seen)

	b.Set(200)
	assert.Equal(t, 200, seen)
}

func TestWatch_ScheduleDefersExecution(t *testing.T) {
	reg := NewRegistry()
	a := NewMutable[int](reg, nil, 1, nil)

	var queued []func()
	schedule := func(run func()) {
		queued = append(queued, run)
	}

	runs := 0
	w := Watch(reg, func() {
		runs++
		_, _ = a.Call()
	}, schedule)
	defer w.Stop()

	require.Len(t, queued, 1, "construction should queue the first run rather than executing synchronously")
	assert.Equal(t, 0, runs)

	queued[0]()
	assert.Equal(t, 1, runs)

	a.Set(2)
	require.Len(t, queued, 2)
	assert.Equal(t, 1, runs, "the rerun must wait for the scheduler too")

	queued[1]()
	assert.Equal(t, 2, runs)
}
