package metadata

import (
	"github.com/launchdarkly/go-jsonstream/v3/jwriter"
	"github.com/vkngwrapper/chunkalloc/memutils"
)

// BlockMetadata represents a single fixed-capacity chunk of memory. It manages the header-prefixed
// blocks carved out of the chunk, allowing payloads to be reserved and released, as well as the
// chunk's free regions to be enumerated and queried.
type BlockMetadata interface {
	// Size retrieves the size in bytes of the managed buffer, headers included
	Size() int

	// Validate performs internal consistency checks on the metadata. These checks walk every free
	// region and so may be expensive. When the implementation is functioning correctly, it should not be
	// possible for this method to return an error, but this may assist in diagnosing issues with the
	// implementation.
	Validate() error
	// AllocationCount returns the number of blocks currently live in the chunk. This number
	// should generally be the number of successful reservations minus the number of successful releases.
	AllocationCount() int
	// FreeRegionsCount returns the number of entries in the chunk's free set. Adjacent free regions are
	// never merged, so two neighbouring free blocks count as two regions.
	FreeRegionsCount() int
	// SumFreeSize returns the total payload capacity of every free block in the chunk. Header bytes
	// are not included.
	SumFreeSize() int
	// MayHaveFreeBlock is a cheap upper-bound check: it returns false only if no free block in the
	// chunk could satisfy a reservation of size bytes.
	MayHaveFreeBlock(size int) bool
	// IsEmpty will return true if this chunk has no live blocks
	IsEmpty() bool

	// VisitFreeRegions will call the provided callback once for each free block in the chunk, in
	// ascending offset order. offset is the offset of the block header and size is its payload capacity.
	VisitFreeRegions(handleRegion func(offset int, size int) error) error

	// AddDetailedStatistics sums this chunk's allocation statistics into the statistics currently present
	// in the provided memutils.DetailedStatistics object.
	AddDetailedStatistics(stats *memutils.DetailedStatistics)
	// AddStatistics sums this chunk's allocation statistics into the statistics currently present in the
	// provided memutils.Statistics object.
	AddStatistics(stats *memutils.Statistics)

	// Clear instantly frees all blocks, leaving a single free block spanning the chunk
	Clear()
	// BlockJsonData populates a json object with information about this chunk. When detailed is true,
	// every free region is listed as well.
	BlockJsonData(json jwriter.ObjectState, detailed bool)

	// Reserve carves a payload of size bytes out of the chunk and returns the payload's offset. The
	// boolean is false, and the chunk unchanged, when no free block can satisfy the request.
	Reserve(size int) (int, bool)
	// Release returns the block whose payload begins at offset to the free set.
	//
	// The implementation must return an error if the offset cannot be the payload of a block in this
	// chunk, or if the block is already free.
	Release(offset int) error
}

// BlockMetadataBase is a simple struct that provides a few shared utilities for BlockMetadata
// implementations in the memutils module.
type BlockMetadataBase struct {
	size int
}

// NewBlockMetadata creates a new BlockMetadataBase for a buffer of size bytes
func NewBlockMetadata(size int) BlockMetadataBase {
	return BlockMetadataBase{
		size: size,
	}
}

// Size returns the size of the chunk in bytes
func (m *BlockMetadataBase) Size() int { return m.size }

func (m *BlockMetadataBase) blockJsonHeader(json jwriter.ObjectState, unusedBytes, allocationCount, unusedRangeCount int) {
	json.Name("TotalBytes").Int(m.Size())
	json.Name("UnusedBytes").Int(unusedBytes)
	json.Name("Allocations").Int(allocationCount)
	json.Name("UnusedRanges").Int(unusedRangeCount)
}
