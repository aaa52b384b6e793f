package metadata

import (
	"math"
	"unsafe"

	"github.com/RoaringBitmap/roaring/v2"
	cerrors "github.com/cockroachdb/errors"
	"github.com/launchdarkly/go-jsonstream/v3/jwriter"
	"github.com/vkngwrapper/chunkalloc/memutils"
)

const noBlock = -1

// Chunk is a fixed-capacity byte buffer that is sub-allocated through an embedded free list. Every
// block in the buffer is a HeaderSize-byte length field followed by its payload; there is no block
// table outside the buffer. The chunk tracks only the header offsets of its free blocks.
//
// Freed blocks are never merged with their neighbours: a released block can only be reused as the
// standalone region it was when it was reserved.
type Chunk struct {
	BlockMetadataBase

	buf  []byte
	base uintptr

	// free holds the header offsets of every free block, ordered by offset
	free *roaring.Bitmap
	// endBlock is the header offset of the largest free block, or noBlock when the chunk is full
	endBlock int

	allocCount int
	allocBytes int
}

var _ BlockMetadata = &Chunk{}

// NewChunk builds a chunk over buf. The chunk takes ownership of buf, which starts out as a
// single free block of len(buf)-HeaderSize payload bytes.
func NewChunk(buf []byte) (*Chunk, error) {
	if len(buf) <= HeaderSize {
		return nil, cerrors.Wrapf(memutils.ErrInvalidChunkSize, "a chunk of %d bytes cannot hold a %d-byte header and a payload", len(buf), HeaderSize)
	}
	if uint64(len(buf)-HeaderSize) > math.MaxUint32 {
		return nil, cerrors.Wrapf(memutils.ErrInvalidChunkSize, "a chunk of %d bytes has more payload than a header can describe", len(buf))
	}

	c := &Chunk{
		BlockMetadataBase: NewBlockMetadata(len(buf)),
		buf:               buf,
		base:              uintptr(unsafe.Pointer(unsafe.SliceData(buf))),
		free:              roaring.New(),
	}
	c.Clear()

	return c, nil
}

// Capacity returns the largest payload a fresh chunk of this size can hand out
func (c *Chunk) Capacity() int {
	return len(c.buf) - HeaderSize
}

// Bytes returns the chunk's underlying buffer
func (c *Chunk) Bytes() []byte {
	return c.buf
}

// Contains reports whether address lies within the chunk's buffer. The upper bound is inclusive: the
// address one past the final byte counts as contained. Payloads always start at least HeaderSize bytes
// after a buffer's first byte, so this cannot route a payload of a neighbouring chunk here.
func (c *Chunk) Contains(address uintptr) bool {
	return c.base <= address && address <= c.base+uintptr(len(c.buf))
}

// Pointer converts a payload offset returned from Reserve into an address within the buffer
func (c *Chunk) Pointer(offset int) unsafe.Pointer {
	return unsafe.Add(unsafe.Pointer(unsafe.SliceData(c.buf)), offset)
}

// Offset converts an address accepted by Contains back into an offset within the buffer
func (c *Chunk) Offset(address uintptr) int {
	return int(address - c.base)
}

func (c *Chunk) header(offset int) int {
	return int(ReadHeader(c.buf, offset))
}

func (c *Chunk) Clear() {
	c.free.Clear()
	WriteHeader(c.buf, 0, uint32(len(c.buf)-HeaderSize))
	c.free.Add(0)
	c.endBlock = 0
	c.allocCount = 0
	c.allocBytes = 0
}

func (c *Chunk) AllocationCount() int {
	return c.allocCount
}

// AllocatedBytes returns the sum of the payload sizes of every live block
func (c *Chunk) AllocatedBytes() int {
	return c.allocBytes
}

func (c *Chunk) FreeRegionsCount() int {
	return int(c.free.GetCardinality())
}

func (c *Chunk) SumFreeSize() int {
	var sum int
	c.free.Iterate(func(offset uint32) bool {
		sum += c.header(int(offset))
		return true
	})
	return sum
}

func (c *Chunk) IsEmpty() bool {
	return c.allocCount == 0
}

// LargestFreeBlock returns the payload capacity of the tracked end block, or 0 if the chunk has no
// free blocks
func (c *Chunk) LargestFreeBlock() int {
	if c.endBlock == noBlock {
		return 0
	}
	return c.header(c.endBlock)
}

func (c *Chunk) MayHaveFreeBlock(size int) bool {
	return c.endBlock != noBlock && size <= c.header(c.endBlock)
}

// Reserve finds the free block with the smallest capacity that can hold size bytes, lowest offset
// first among equals, and converts it into a live block. If the block has room for another header
// after the payload, the remainder is split off as a new free block.
func (c *Chunk) Reserve(size int) (int, bool) {
	if size <= 0 || !c.MayHaveFreeBlock(size) {
		return 0, false
	}

	chosen := noBlock
	chosenSize := 0
	c.free.Iterate(func(offset uint32) bool {
		capacity := c.header(int(offset))
		if capacity >= size && (chosen == noBlock || capacity < chosenSize) {
			chosen = int(offset)
			chosenSize = capacity
		}
		return true
	})

	if chosen == noBlock {
		return 0, false
	}

	splitOffset := chosen + HeaderSize + size
	if !c.free.Contains(uint32(splitOffset)) && chosenSize-HeaderSize >= size {
		WriteHeader(c.buf, splitOffset, uint32(chosenSize-HeaderSize-size))
		c.free.Add(uint32(splitOffset))
	}

	c.free.Remove(uint32(chosen))
	WriteHeader(c.buf, chosen, uint32(size))
	c.allocCount++
	c.allocBytes += size

	if chosen == c.endBlock {
		c.endBlock = c.largestFreeBlockOffset()
	}

	memutils.DebugValidate(c)

	return chosen + HeaderSize, true
}

func (c *Chunk) largestFreeBlockOffset() int {
	largest := noBlock
	largestSize := 0
	c.free.Iterate(func(offset uint32) bool {
		capacity := c.header(int(offset))
		if largest == noBlock || capacity > largestSize {
			largest = int(offset)
			largestSize = capacity
		}
		return true
	})
	return largest
}

// Release puts the block whose payload starts at offset back into the free set. The block keeps the
// size it was reserved with as its capacity.
func (c *Chunk) Release(offset int) error {
	header := offset - HeaderSize
	if header < 0 || offset >= len(c.buf) {
		return cerrors.Wrapf(memutils.ErrOutOfRange, "offset %d in a chunk of %d bytes", offset, len(c.buf))
	}
	if c.allocCount == 0 || c.free.Contains(uint32(header)) {
		return cerrors.Wrapf(memutils.ErrDoubleFree, "block at offset %d", header)
	}

	size := c.header(header)
	if offset+size > len(c.buf) {
		return cerrors.Wrapf(memutils.ErrOutOfRange, "block at offset %d claims %d bytes in a chunk of %d bytes", header, size, len(c.buf))
	}

	if c.endBlock == noBlock || size > c.header(c.endBlock) {
		c.endBlock = header
	}

	c.free.Add(uint32(header))
	c.allocCount--
	c.allocBytes -= size

	memutils.DebugValidate(c)

	return nil
}

func (c *Chunk) VisitFreeRegions(handleRegion func(offset int, size int) error) error {
	var err error
	c.free.Iterate(func(offset uint32) bool {
		err = handleRegion(int(offset), c.header(int(offset)))
		return err == nil
	})
	return err
}

func (c *Chunk) Validate() error {
	if c.allocCount < 0 {
		return cerrors.Errorf("chunk has a negative allocation count %d", c.allocCount)
	}
	if c.allocBytes < 0 || (c.allocCount == 0 && c.allocBytes != 0) {
		return cerrors.Errorf("chunk has %d allocated bytes across %d allocations", c.allocBytes, c.allocCount)
	}

	if c.free.IsEmpty() {
		if c.endBlock != noBlock {
			return cerrors.Errorf("chunk has no free blocks but tracks an end block at offset %d", c.endBlock)
		}
	} else if c.endBlock == noBlock {
		return cerrors.New("chunk has free blocks but does not track an end block")
	} else if !c.free.Contains(uint32(c.endBlock)) {
		return cerrors.Errorf("end block at offset %d is not in the free set", c.endBlock)
	}

	regionEnd := 0
	maxSize := 0
	freeBytes := 0
	err := c.VisitFreeRegions(func(offset int, size int) error {
		if offset < regionEnd {
			return cerrors.Errorf("free block at offset %d overlaps the free block ending at offset %d", offset, regionEnd)
		}

		regionEnd = offset + HeaderSize + size
		if regionEnd > len(c.buf) {
			return cerrors.Errorf("free block at offset %d with capacity %d runs past the end of a chunk of %d bytes", offset, size, len(c.buf))
		}

		freeBytes += HeaderSize + size
		if size > maxSize {
			maxSize = size
		}
		return nil
	})
	if err != nil {
		return err
	}

	if c.endBlock != noBlock && c.header(c.endBlock) != maxSize {
		return cerrors.Errorf("end block at offset %d has capacity %d, but the largest free block has capacity %d", c.endBlock, c.header(c.endBlock), maxSize)
	}

	if freeBytes+c.allocBytes+c.allocCount*HeaderSize > len(c.buf) {
		return cerrors.Errorf("free and allocated blocks add up to more than the %d bytes in the chunk", len(c.buf))
	}

	return nil
}

func (c *Chunk) AddStatistics(stats *memutils.Statistics) {
	stats.ChunkCount++
	stats.ChunkBytes += len(c.buf)
	stats.AllocationCount += c.allocCount
	stats.AllocationBytes += c.allocBytes
}

func (c *Chunk) AddDetailedStatistics(stats *memutils.DetailedStatistics) {
	c.AddStatistics(&stats.Statistics)
	c.free.Iterate(func(offset uint32) bool {
		stats.AddFreeRegion(c.header(int(offset)))
		return true
	})
}

func (c *Chunk) BlockJsonData(json jwriter.ObjectState, detailed bool) {
	c.blockJsonHeader(json, c.SumFreeSize(), c.allocCount, c.FreeRegionsCount())
	json.Name("AllocatedBytes").Int(c.allocBytes)
	json.Name("LargestFreeBlock").Int(c.LargestFreeBlock())

	if !detailed {
		return
	}

	arrayState := json.Name("FreeRegions").Array()
	defer arrayState.End()

	_ = c.VisitFreeRegions(func(offset int, size int) error {
		obj := arrayState.Object()
		defer obj.End()

		obj.Name("Offset").Int(offset)
		obj.Name("Size").Int(size)
		return nil
	})
}
