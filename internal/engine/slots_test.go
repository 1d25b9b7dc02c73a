package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewSlotTableAllUnused(t *testing.T) {
	tbl := NewSlotTable()
	unused, outstanding := tbl.Counts()
	assert.Equal(t, NumSlots, unused)
	assert.Zero(t, outstanding)
}

func TestAcquireMovesToOutstanding(t *testing.T) {
	tbl := NewSlotTable()
	id, ok := tbl.AcquireUnused()
	require.True(t, ok)
	assert.Equal(t, 0, id)

	unused, outstanding := tbl.Counts()
	assert.Equal(t, NumSlots-1, unused)
	assert.Equal(t, 1, outstanding)

	ts, _, _, isOut := tbl.Outstanding(id)
	assert.True(t, isOut)
	assert.Equal(t, sentinelUnsent, ts)
}

func TestInvariantI1HoldsAcrossOperations(t *testing.T) {
	tbl := NewSlotTable()
	var acquired []int
	for i := 0; i < 100; i++ {
		id, ok := tbl.AcquireUnused()
		require.True(t, ok)
		acquired = append(acquired, id)
	}
	for i, id := range acquired {
		if i%2 == 0 {
			tbl.ReleaseBack(id)
		} else {
			tbl.ReleaseFront(id)
		}
	}
	unused, outstanding := tbl.Counts()
	assert.Equal(t, NumSlots, unused+outstanding)
	assert.Equal(t, NumSlots, unused)
}

func TestAcquireUnusedExhausted(t *testing.T) {
	tbl := NewSlotTable()
	for i := 0; i < NumSlots; i++ {
		_, ok := tbl.AcquireUnused()
		require.True(t, ok)
	}
	_, ok := tbl.AcquireUnused()
	assert.False(t, ok)
}

func TestOldestOutstandingIsFIFOOrder(t *testing.T) {
	tbl := NewSlotTable()
	first, _ := tbl.AcquireUnused()
	tbl.Stamp(first, 100, 0)
	second, _ := tbl.AcquireUnused()
	tbl.Stamp(second, 200, 0)

	id, ts, ok := tbl.OldestOutstanding()
	require.True(t, ok)
	assert.Equal(t, first, id)
	assert.Equal(t, int64(100), ts)
}

func TestReleaseFrontAllowsImmediateReuse(t *testing.T) {
	tbl := NewSlotTable()
	id, _ := tbl.AcquireUnused()
	tbl.ReleaseFront(id)

	nextID, ok := tbl.AcquireUnused()
	require.True(t, ok)
	assert.Equal(t, id, nextID)
}

func TestStampAndSetDesc(t *testing.T) {
	tbl := NewSlotTable()
	id, _ := tbl.AcquireUnused()
	tbl.Stamp(id, 555, 2)
	tbl.SetDesc(id, "example.com A")

	ts, sock, desc, isOut := tbl.Outstanding(id)
	assert.True(t, isOut)
	assert.Equal(t, int64(555), ts)
	assert.Equal(t, 2, sock)
	assert.Equal(t, "example.com A", desc)
}
