package arena

import (
	"context"
	"unsafe"

	"github.com/pkg/errors"
	"github.com/vkngwrapper/chunkalloc/memutils"
	"github.com/vkngwrapper/chunkalloc/memutils/metadata"
	"golang.org/x/exp/slog"
)

type chunkBlock struct {
	id     int
	logger *slog.Logger

	// memory is the full buffer returned from the backing. The chunk's buffer is a window into it,
	// shifted so that payloads land on the arena's alignment.
	memory []byte
	chunk  *metadata.Chunk
}

func (b *chunkBlock) Init(logger *slog.Logger, id int, memory []byte, chunkSize int, alignment uint) error {
	if b.memory != nil {
		panic("attempting to initialize a chunk block that is already in use")
	}

	memutils.DebugCheckPow2(alignment, "alignment")

	padding := 0
	if alignment > 1 {
		address := uintptr(unsafe.Pointer(unsafe.SliceData(memory)))
		padding = memutils.AlignPadding(address+metadata.HeaderSize, alignment)
	}
	if padding+chunkSize > len(memory) {
		return errors.Errorf("chunk %d needs %d bytes after %d bytes of alignment padding, but only %d bytes were provided", id, chunkSize, padding, len(memory))
	}

	chunk, err := metadata.NewChunk(memory[padding : padding+chunkSize : padding+chunkSize])
	if err != nil {
		return err
	}

	b.id = id
	b.logger = logger
	b.memory = memory
	b.chunk = chunk

	return nil
}

func (b *chunkBlock) Destroy() error {
	if b.memory == nil {
		panic("attempting to destroy a chunk block that was never initialized")
	}

	var err error
	if !b.chunk.IsEmpty() {
		b.logger.LogAttrs(context.Background(), slog.LevelError, "[UNRELEASED MEMORY] chunk destroyed with live blocks",
			slog.Int("chunk.id", b.id),
			slog.Int("allocations", b.chunk.AllocationCount()),
			slog.Int("bytes", b.chunk.AllocatedBytes()),
		)
		err = errors.Errorf("%d allocations in chunk %d were not freed before the destruction of the arena", b.chunk.AllocationCount(), b.id)
	}

	b.memory = nil
	b.chunk = nil
	return err
}

func (b *chunkBlock) Validate() error {
	if b.memory == nil || b.chunk == nil {
		return errors.Errorf("chunk %d has no valid memory", b.id)
	}

	return errors.Wrapf(b.chunk.Validate(), "chunk %d", b.id)
}
