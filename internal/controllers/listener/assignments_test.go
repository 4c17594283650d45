package listener

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAssignments(t *testing.T) {
	a := NewAssignments()

	require.NoError(t, a.Acquire("m1", map[string][]int32{"t": {0, 1}}))
	require.NoError(t, a.Acquire("m2", map[string][]int32{"t": {2}, "other": {0}}))
	assert.Equal(t, 4, a.Len())

	// повторный Acquire своих же партиций не конфликт
	require.NoError(t, a.Acquire("m1", map[string][]int32{"t": {0}}))

	err := a.Acquire("m3", map[string][]int32{"t": {1}})
	require.ErrorIs(t, err, ErrPartitionOverlap)
	assert.Contains(t, err.Error(), "t/1")

	// чужие партиции Release не снимает
	a.Release("m3", map[string][]int32{"t": {0, 1, 2}})
	assert.Equal(t, 4, a.Len())

	a.Release("m1", map[string][]int32{"t": {0, 1}})
	assert.Equal(t, 2, a.Len())
	_, ok := a.Owner("t", 0)
	assert.False(t, ok)

	owner, ok := a.Owner("other", 0)
	require.True(t, ok)
	assert.Equal(t, "m2", owner)
}
