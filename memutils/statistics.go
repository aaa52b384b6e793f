package memutils

import "math"

// Statistics holds the running totals for one or more chunks. ChunkBytes counts the raw chunk
// buffers, header bytes included, while AllocationBytes counts only live payload bytes.
type Statistics struct {
	ChunkCount      int
	AllocationCount int
	ChunkBytes      int
	AllocationBytes int
}

func (s *Statistics) Clear() {
	s.ChunkCount = 0
	s.AllocationCount = 0
	s.ChunkBytes = 0
	s.AllocationBytes = 0
}

func (s *Statistics) AddStatistics(other *Statistics) {
	s.ChunkCount += other.ChunkCount
	s.AllocationCount += other.AllocationCount
	s.ChunkBytes += other.ChunkBytes
	s.AllocationBytes += other.AllocationBytes
}

// DetailedStatistics extends Statistics with a breakdown of the free regions. Chunks do not keep a
// table of live blocks, so live allocations are only reported in aggregate.
type DetailedStatistics struct {
	Statistics
	FreeRegionCount   int
	FreeBytes         int
	FreeRegionSizeMin int
	FreeRegionSizeMax int
}

func (s *DetailedStatistics) Clear() {
	s.Statistics.Clear()
	s.FreeRegionCount = 0
	s.FreeBytes = 0
	s.FreeRegionSizeMin = math.MaxInt
	s.FreeRegionSizeMax = 0
}

func (s *DetailedStatistics) AddFreeRegion(size int) {
	s.FreeRegionCount++
	s.FreeBytes += size

	if size < s.FreeRegionSizeMin {
		s.FreeRegionSizeMin = size
	}

	if size > s.FreeRegionSizeMax {
		s.FreeRegionSizeMax = size
	}
}

func (s *DetailedStatistics) AddDetailedStatistics(other *DetailedStatistics) {
	s.Statistics.AddStatistics(&other.Statistics)
	s.FreeRegionCount += other.FreeRegionCount
	s.FreeBytes += other.FreeBytes

	if other.FreeRegionSizeMin < s.FreeRegionSizeMin {
		s.FreeRegionSizeMin = other.FreeRegionSizeMin
	}

	if other.FreeRegionSizeMax > s.FreeRegionSizeMax {
		s.FreeRegionSizeMax = other.FreeRegionSizeMax
	}
}
