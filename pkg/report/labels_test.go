package report

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLabelIndexPlaceholder(t *testing.T) {
	t.Parallel()

	idx := NewLabelIndex()

	assert.True(t, idx.OnlyPlaceholder())
	assert.Equal(t, 1, idx.Len())

	label, ok := idx.LabelOf(PlaceholderLabelID)
	require.True(t, ok)
	assert.Equal(t, PlaceholderLabel, label)

	assert.Equal(t, PlaceholderLabelID, idx.Add(""))
	assert.Equal(t, PlaceholderLabelID, idx.Add(PlaceholderLabel))
	assert.True(t, idx.OnlyPlaceholder())
}

func TestLabelIndexAddAllocatesIncreasingIDs(t *testing.T) {
	t.Parallel()

	idx := NewLabelIndex()

	a := idx.Add("test_a")
	b := idx.Add("test_b")

	assert.Equal(t, 1, a)
	assert.Equal(t, 2, b)
	assert.Equal(t, a, idx.Add("test_a"))
	assert.False(t, idx.OnlyPlaceholder())

	id, ok := idx.IDOf("test_b")
	require.True(t, ok)
	assert.Equal(t, b, id)

	assert.Equal(t, []int{0, 1, 2}, idx.IDs())
}

func TestLabelIndexFromMapResumesAllocation(t *testing.T) {
	t.Parallel()

	idx := LabelIndexFromMap(map[int]string{
		0: "ignored, placeholder wins",
		3: "test_x",
		7: "test_y",
	})

	label, ok := idx.LabelOf(0)
	require.True(t, ok)
	assert.Equal(t, PlaceholderLabel, label)

	assert.Equal(t, []int{0, 3, 7}, idx.IDs())
	assert.Equal(t, 8, idx.Add("test_z"))
}

func TestLabelIndexCloneIsIndependent(t *testing.T) {
	t.Parallel()

	idx := NewLabelIndex()
	idx.Add("test_a")

	clone := idx.Clone()
	clone.Add("test_b")

	assert.Equal(t, 2, idx.Len())
	assert.Equal(t, 3, clone.Len())

	// Allocation cursors stay in sync at clone time, so both hand out the
	// same id for the next unseen label.
	assert.Equal(t, 2, idx.Add("test_b"))
}
