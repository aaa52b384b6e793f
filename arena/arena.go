package arena

import (
	"context"
	"fmt"
	"reflect"
	"strconv"
	"unsafe"

	"github.com/cockroachdb/errors"
	"github.com/dolthub/swiss"
	"github.com/launchdarkly/go-jsonstream/v3/jwriter"
	"github.com/vkngwrapper/chunkalloc/memutils"
	"github.com/vkngwrapper/chunkalloc/memutils/backing"
	"github.com/vkngwrapper/chunkalloc/memutils/metadata"
	"golang.org/x/exp/slog"
)

// Arena is an append-only pool of fixed-size chunks. Requests are served by the first chunk, in
// creation order, that can satisfy them; when none can, exactly one new chunk is appended. Chunks are
// only returned to the backing when the arena is destroyed.
//
// An Arena is not safe for concurrent use.
type Arena struct {
	logger      *slog.Logger
	backing     backing.Backing
	callbacks   *memoryCallbacks
	createFlags CreateFlags

	chunkSize int
	alignment uint

	chunks      []*chunkBlock
	nextChunkId int
	destroyed   bool

	layouts *swiss.Map[reflect.Type, elementLayout]
	// shared is the reference count behind every Handle attached to this arena
	shared *sharedArena
}

func (a *Arena) ChunkSize() int     { return a.chunkSize }
func (a *Arena) Alignment() uint    { return a.alignment }
func (a *Arena) ChunkCount() int    { return len(a.chunks) }
func (a *Arena) IsDestroyed() bool  { return a.destroyed }
func (a *Arena) Flags() CreateFlags { return a.createFlags }

// MaxAllocationSize is the largest request, in bytes, that a single chunk can satisfy
func (a *Arena) MaxAllocationSize() int {
	return memutils.AlignDown(a.chunkSize, a.alignment) - metadata.HeaderSize
}

// alignedSize rounds size up so that the header following the payload leaves the next payload on the
// arena's alignment
func (a *Arena) alignedSize(size int) int {
	return memutils.AlignUp(size+metadata.HeaderSize, a.alignment) - metadata.HeaderSize
}

func (a *Arena) createChunk() (*chunkBlock, error) {
	size := a.chunkSize
	if a.alignment > 1 {
		size += int(a.alignment) - 1
	}

	memory, err := a.backing.Allocate(size)
	if err != nil {
		return nil, err
	}

	block := &chunkBlock{}
	err = block.Init(a.logger, a.nextChunkId, memory, a.chunkSize, a.alignment)
	if err != nil {
		freeErr := a.backing.Free(memory)
		if freeErr != nil {
			a.logger.Error("error attempting to free chunk memory after initialization failure", slog.Any("error", freeErr))
		}
		return nil, err
	}
	a.nextChunkId++

	a.chunks = append(a.chunks, block)
	a.callbacks.Allocate(block.id, memory)

	a.logger.LogAttrs(context.Background(), slog.LevelDebug, "    Created new chunk",
		slog.Int("chunk.id", block.id),
		slog.Int("ChunkCount", len(a.chunks)),
	)

	return block, nil
}

// Allocate reserves size bytes and returns the address of the payload. It returns nil when size is 0,
// when size exceeds MaxAllocationSize, or when a new chunk was needed and its memory could not be
// obtained. Zero-size and oversized requests never change the arena.
func (a *Arena) Allocate(size int) unsafe.Pointer {
	if size <= 0 || a.destroyed {
		return nil
	}

	size = a.alignedSize(size)
	if size > a.MaxAllocationSize() {
		a.logger.LogAttrs(context.Background(), slog.LevelDebug, "    Request larger than a chunk",
			slog.Int("Size", size),
			slog.Int("ChunkSize", a.chunkSize),
		)
		return nil
	}

	for chunkIndex := 0; chunkIndex < len(a.chunks); chunkIndex++ {
		currentBlock := a.chunks[chunkIndex]
		if currentBlock == nil {
			panic(fmt.Sprintf("a chunk at index %d is unexpectedly nil", chunkIndex))
		}

		offset, ok := currentBlock.chunk.Reserve(size)
		if ok {
			a.logger.LogAttrs(context.Background(), slog.LevelDebug, "    Returned from existing chunk", slog.Int("chunk.id", currentBlock.id))
			return currentBlock.chunk.Pointer(offset)
		}
	}

	newBlock, err := a.createChunk()
	if err != nil {
		a.logger.LogAttrs(context.Background(), slog.LevelError, "failed to create a chunk",
			slog.Int("Size", size),
			slog.Any("error", err),
		)
		return nil
	}

	offset, ok := newBlock.chunk.Reserve(size)
	if !ok {
		return nil
	}

	a.logger.LogAttrs(context.Background(), slog.LevelDebug, "    Returned from new chunk", slog.Int("chunk.id", newBlock.id))
	return newBlock.chunk.Pointer(offset)
}

// Deallocate returns the block at ptr to the first chunk whose buffer contains it. A nil ptr or a size
// of 0 is a no-op. A pointer that no chunk contains is reported with ErrForeignPointer and leaves every
// chunk untouched; with CreateStrictDeallocation or the debug_mem_utils build tag it panics instead.
func (a *Arena) Deallocate(ptr unsafe.Pointer, size int) error {
	if ptr == nil || size == 0 {
		return nil
	}
	if a.destroyed {
		return errors.Wrap(memutils.ErrDestroyed, "cannot deallocate")
	}

	address := uintptr(ptr)
	for chunkIndex := 0; chunkIndex < len(a.chunks); chunkIndex++ {
		currentBlock := a.chunks[chunkIndex]
		if !currentBlock.chunk.Contains(address) {
			continue
		}

		err := currentBlock.chunk.Release(currentBlock.chunk.Offset(address))
		if err != nil {
			return errors.Wrapf(err, "chunk %d", currentBlock.id)
		}

		a.logger.LogAttrs(context.Background(), slog.LevelDebug, "    Freed from chunk", slog.Int("chunk.id", currentBlock.id))
		return nil
	}

	err := errors.Wrapf(memutils.ErrForeignPointer, "address %#x", address)
	if memutils.DebugStrict || a.createFlags&CreateStrictDeallocation != 0 {
		panic(err)
	}

	a.logger.LogAttrs(context.Background(), slog.LevelWarn, "ignoring deallocation of a pointer outside of every chunk",
		slog.String("address", fmt.Sprintf("%#x", address)),
		slog.Int("size", size),
	)
	return err
}

// Destroy returns every chunk's memory to the backing. Chunks that still hold live blocks are logged
// and reported in the returned error, but their memory is freed regardless.
func (a *Arena) Destroy() error {
	if a.destroyed {
		return nil
	}

	var err error
	for _, block := range a.chunks {
		id := block.id
		memory := block.memory

		err = errors.CombineErrors(err, block.Destroy())
		err = errors.CombineErrors(err, a.backing.Free(memory))
		a.callbacks.Free(id, memory)
	}

	a.chunks = nil
	a.destroyed = true
	return err
}

func (a *Arena) Validate() error {
	for _, block := range a.chunks {
		err := block.Validate()
		if err != nil {
			return err
		}
	}

	return nil
}

func (a *Arena) AddStatistics(stats *memutils.Statistics) {
	for _, block := range a.chunks {
		block.chunk.AddStatistics(stats)
	}
}

func (a *Arena) AddDetailedStatistics(stats *memutils.DetailedStatistics) {
	for _, block := range a.chunks {
		block.chunk.AddDetailedStatistics(stats)
	}
}

// CalculateStatistics returns the detailed statistics of every chunk in the arena
func (a *Arena) CalculateStatistics() memutils.DetailedStatistics {
	var stats memutils.DetailedStatistics
	stats.Clear()
	a.AddDetailedStatistics(&stats)
	return stats
}

// BuildStatsString produces a JSON document describing the arena. When detailedMap is true, every free
// region of every chunk is listed.
func (a *Arena) BuildStatsString(detailedMap bool) string {
	writer := jwriter.NewWriter()
	objState := writer.Object()

	stats := a.CalculateStatistics()
	totalObj := objState.Name("Total").Object()
	totalObj.Name("ChunkCount").Int(stats.ChunkCount)
	totalObj.Name("ChunkBytes").Int(stats.ChunkBytes)
	totalObj.Name("AllocationCount").Int(stats.AllocationCount)
	totalObj.Name("AllocationBytes").Int(stats.AllocationBytes)
	totalObj.Name("FreeRegionCount").Int(stats.FreeRegionCount)
	totalObj.Name("FreeBytes").Int(stats.FreeBytes)
	if stats.FreeRegionCount > 0 {
		totalObj.Name("FreeRegionSizeMin").Int(stats.FreeRegionSizeMin)
		totalObj.Name("FreeRegionSizeMax").Int(stats.FreeRegionSizeMax)
	}
	totalObj.End()

	chunksObj := objState.Name("Chunks").Object()
	for _, block := range a.chunks {
		blockObj := chunksObj.Name(strconv.Itoa(block.id)).Object()
		block.chunk.BlockJsonData(blockObj, detailedMap)
		blockObj.End()
	}
	chunksObj.End()

	objState.End()
	return string(writer.Bytes())
}
