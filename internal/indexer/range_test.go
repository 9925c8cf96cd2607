package indexer

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSplitRange(t *testing.T) {
	got, err := SplitRange(100, 105, 2)
	require.NoError(t, err)
	assert.Equal(t, []BlockRange{
		{From: 100, To: 101},
		{From: 102, To: 103},
		{From: 104, To: 105},
	}, got)
}

func TestSplitRangeUneven(t *testing.T) {
	got, err := SplitRange(0, 4, 3)
	require.NoError(t, err)
	assert.Equal(t, []BlockRange{{From: 0, To: 2}, {From: 3, To: 4}}, got)
	assert.Equal(t, uint64(3), got[0].Blocks())
	assert.Equal(t, uint64(2), got[1].Blocks())
}

func TestSplitRangeNearMaxBlock(t *testing.T) {
	const top = ^uint64(0)
	got, err := SplitRange(top-4, top, 3)
	require.NoError(t, err)
	assert.Equal(t, []BlockRange{{From: top - 4, To: top - 2}, {From: top - 1, To: top}}, got)
}

func TestSplitRangeSingle(t *testing.T) {
	got, err := SplitRange(5, 5, 10)
	require.NoError(t, err)
	assert.Equal(t, []BlockRange{{From: 5, To: 5}}, got)
}

func TestSplitRangeInvalid(t *testing.T) {
	_, err := SplitRange(10, 9, 1)
	assert.Error(t, err)

	_, err = SplitRange(1, 2, 0)
	assert.Error(t, err)
}
