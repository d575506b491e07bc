package cell

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingObserver struct {
	willUpdates int
	updates     []bool
}

func (r *recordingObserver) WillUpdate(AnyCell) { r.willUpdates++ }
func (r *recordingObserver) Update(_ AnyCell, didChange bool) {
	r.updates = append(r.updates, didChange)
}

func TestMutableCell_SetNotifiesObservers(t *testing.T) {
	reg := NewRegistry()
	c := NewMutable[int](reg, nil, 1, nil)

	obs := &recordingObserver{}
	c.AddObserver(obs)

	c.Set(2)

	require.Equal(t, 1, obs.willUpdates)
	require.Equal(t, []bool{true}, obs.updates)

	v, err := c.Value()
	require.NoError(t, err)
	assert.Equal(t, 2, v)
}

func TestMutableCell_SetSameValueNotifiesNothing(t *testing.T) {
	reg := NewRegistry()
	c := NewMutable[int](reg, nil, 5, nil)

	obs := &recordingObserver{}
	c.AddObserver(obs)

	c.Set(5)

	require.Equal(t, 0, obs.willUpdates)
	require.Empty(t, obs.updates)
}

func TestMutableCell_BatchDefersUpdateNotOnlyWillUpdate(t *testing.T) {
	reg := NewRegistry()
	c := NewMutable[int](reg, nil, 0, nil)

	obs := &recordingObserver{}
	c.AddObserver(obs)

	Batch(func() {
		c.Set(1)
		assert.Equal(t, 1, obs.willUpdates, "will_update must fire immediately, even inside a batch")
		assert.Empty(t, obs.updates, "update must be deferred until the batch ends")

		c.Set(2)
		assert.Equal(t, 1, obs.willUpdates, "a second Set in the same batch must not open a second cycle")
		assert.Empty(t, obs.updates)
	})

	require.Equal(t, []bool{true}, obs.updates, "only one update should fire for the whole batch")
}

func TestMutableCell_BatchNetChangeComparesAgainstValueBeforeBatch(t *testing.T) {
	reg := NewRegistry()
	c := NewMutable[int](reg, nil, 1, nil)

	obs := &recordingObserver{}
	c.AddObserver(obs)

	Batch(func() {
		c.Set(2)
		c.Set(1) // back to the pre-batch value
	})

	require.Equal(t, []bool{false}, obs.updates, "net-unchanged value across a batch must report didChange=false")
}

func TestMutableCell_NestedBatchCoalescesIntoOutermost(t *testing.T) {
	reg := NewRegistry()
	c := NewMutable[int](reg, nil, 0, nil)

	obs := &recordingObserver{}
	c.AddObserver(obs)

	Batch(func() {
		Batch(func() {
			c.Set(1)
		})
		assert.Empty(t, obs.updates, "inner batch exiting must not flush while the outer batch is still open")
	})

	require.Equal(t, []bool{true}, obs.updates)
}

func TestMutableCell_KeyedCellsShareState(t *testing.T) {
	reg := NewRegistry()
	key := NewValueKey("counter", "x")

	a := NewMutable[int](reg, key, 0, nil)
	b := NewMutable[int](reg, key, 0, nil)

	obs := &recordingObserver{}
	a.AddObserver(obs)

	b.Set(42)

	v, err := a.Value()
	require.NoError(t, err)
	assert.Equal(t, 42, v)
	assert.Equal(t, 1, obs.willUpdates, "b.Set must notify a's observer since they share state")
}

func TestMutableCell_RemovingLastObserverDisposesKeyedState(t *testing.T) {
	reg := NewRegistry()
	key := NewValueKey("disposable", 1)

	a := NewMutable[int](reg, key, 0, nil)
	obs := &recordingObserver{}
	a.AddObserver(obs)
	a.RemoveObserver(obs)

	assert.Nil(t, reg.MaybeGet(key))
}
