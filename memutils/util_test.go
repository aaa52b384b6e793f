package memutils_test

import (
	"math"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/vkngwrapper/chunkalloc/memutils"
)

func TestCheckPow2(t *testing.T) {
	require.NoError(t, memutils.CheckPow2(1, "one"))
	require.NoError(t, memutils.CheckPow2(uint(64), "sixty-four"))
	require.NoError(t, memutils.CheckPow2(uintptr(4096), "page"))

	require.ErrorIs(t, memutils.CheckPow2(0, "zero"), memutils.PowerOfTwoError)
	require.ErrorIs(t, memutils.CheckPow2(uint(12), "twelve"), memutils.PowerOfTwoError)
}

func TestAlign(t *testing.T) {
	require.Equal(t, 0, memutils.AlignUp(0, 8))
	require.Equal(t, 8, memutils.AlignUp(1, 8))
	require.Equal(t, 8, memutils.AlignUp(8, 8))
	require.Equal(t, 13, memutils.AlignUp(13, 1))

	require.Equal(t, 16, memutils.AlignDown(23, 8))
	require.Equal(t, 24, memutils.AlignDown(24, 8))

	require.Equal(t, 0, memutils.AlignPadding(0x1000, 16))
	require.Equal(t, 3, memutils.AlignPadding(0x1005, 8))
	require.Equal(t, 0, memutils.AlignPadding(0x1005, 1))
}

func TestDetailedStatistics(t *testing.T) {
	var stats memutils.DetailedStatistics
	stats.Clear()
	require.Equal(t, math.MaxInt, stats.FreeRegionSizeMin)

	stats.AddFreeRegion(12)
	stats.AddFreeRegion(4)

	var other memutils.DetailedStatistics
	other.Clear()
	other.ChunkCount = 1
	other.ChunkBytes = 100
	other.AllocationCount = 3
	other.AllocationBytes = 40
	other.AddFreeRegion(30)

	stats.AddDetailedStatistics(&other)
	require.Equal(t, memutils.DetailedStatistics{
		Statistics: memutils.Statistics{
			ChunkCount:      1,
			ChunkBytes:      100,
			AllocationCount: 3,
			AllocationBytes: 40,
		},
		FreeRegionCount:   3,
		FreeBytes:         46,
		FreeRegionSizeMin: 4,
		FreeRegionSizeMax: 30,
	}, stats)
}
