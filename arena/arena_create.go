package arena

import (
	"io"
	"reflect"
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/dolthub/swiss"
	"github.com/vkngwrapper/chunkalloc/memutils"
	"github.com/vkngwrapper/chunkalloc/memutils/backing"
	"github.com/vkngwrapper/chunkalloc/memutils/metadata"
	"golang.org/x/exp/slog"
)

// CreateFlags indicate specific arena behaviors to activate or deactivate
type CreateFlags int32

const (
	// CreateStrictDeallocation causes Deallocate to panic when it receives a pointer that does not
	// belong to any chunk in the arena, instead of logging and returning ErrForeignPointer. Arenas built
	// with the debug_mem_utils build tag always behave this way.
	CreateStrictDeallocation CreateFlags = 1 << iota
)

var createFlagsMapping = map[CreateFlags]string{
	CreateStrictDeallocation: "CreateStrictDeallocation",
}

func (f CreateFlags) String() string {
	if f == 0 {
		return "None"
	}

	var names []string
	for flag := CreateFlags(1); flag != 0 && flag <= f; flag <<= 1 {
		if f&flag == 0 {
			continue
		}

		name, ok := createFlagsMapping[flag]
		if !ok {
			name = "Unknown"
		}
		names = append(names, name)
	}

	return strings.Join(names, "|")
}

const (
	// DefaultChunkSize is the value that is used as the ChunkSize when none is provided via
	// CreateOptions. It is equal to 16Kb.
	DefaultChunkSize int = 16 * 1024
	// DefaultAllocationAlignment is the value that is used as the MinAllocationAlignment when none is
	// provided via CreateOptions. It is large enough for any pointer-free Go value on 64-bit platforms.
	DefaultAllocationAlignment uint = 8
)

// CreateOptions contains optional settings when creating an arena
type CreateOptions struct {
	// Flags indicates specific arena behaviors to activate or deactivate
	Flags CreateFlags

	// ChunkSize is the size in bytes of every chunk the arena creates, including the header of the
	// chunk's first block. A single allocation can never be larger than ChunkSize-metadata.HeaderSize.
	ChunkSize int
	// MinAllocationAlignment must be a power of two. Every request is rounded up so that each payload the
	// arena hands out starts on a multiple of this value. 1 disables rounding entirely.
	MinAllocationAlignment uint
	// MinChunkCount is the number of chunks created up front. Defaults to 1.
	MinChunkCount int

	// Backing provides the memory for each chunk. Defaults to backing.Heap.
	Backing backing.Backing

	// MemoryCallbackOptions is an optional set of callbacks that will be executed when the arena
	// creates or frees the memory behind a chunk.
	MemoryCallbackOptions *MemoryCallbackOptions
}

// New creates a new Arena holding MinChunkCount empty chunks
//
// logger - Receives debug output for allocations and warnings for misuse. May be nil.
//
// options - Optional parameters: it is valid to leave all the fields blank
func New(logger *slog.Logger, options CreateOptions) (*Arena, error) {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	arena := &Arena{
		logger:      logger,
		createFlags: options.Flags,
		chunkSize:   options.ChunkSize,
		alignment:   options.MinAllocationAlignment,
		backing:     options.Backing,
		layouts:     swiss.NewMap[reflect.Type, elementLayout](8),
	}
	arena.callbacks = &memoryCallbacks{
		Callbacks: options.MemoryCallbackOptions,
		Arena:     arena,
	}

	if arena.chunkSize == 0 {
		arena.chunkSize = DefaultChunkSize
	}
	if arena.chunkSize <= metadata.HeaderSize {
		return nil, errors.Wrapf(memutils.ErrInvalidChunkSize, "CreateOptions.ChunkSize is %d but must be larger than %d", arena.chunkSize, metadata.HeaderSize)
	}

	if arena.alignment == 0 {
		arena.alignment = DefaultAllocationAlignment
	}
	if err := memutils.CheckPow2(arena.alignment, "CreateOptions.MinAllocationAlignment"); err != nil {
		return nil, err
	}
	if arena.MaxAllocationSize() < 1 {
		return nil, errors.Wrapf(memutils.ErrInvalidChunkSize, "CreateOptions.ChunkSize %d cannot hold any allocation aligned to %d", arena.chunkSize, arena.alignment)
	}

	if arena.backing == nil {
		arena.backing = backing.Heap{}
	}

	minChunkCount := options.MinChunkCount
	if minChunkCount < 1 {
		minChunkCount = 1
	}

	for i := 0; i < minChunkCount; i++ {
		_, err := arena.createChunk()
		if err != nil {
			destroyErr := arena.Destroy()
			if destroyErr != nil {
				logger.Error("error attempting to destroy arena after creation failure", slog.Any("error", destroyErr))
			}
			return nil, err
		}
	}

	logger.Debug("Arena::New",
		slog.Int("ChunkSize", arena.chunkSize),
		slog.Int("Alignment", int(arena.alignment)),
		slog.String("Flags", arena.createFlags.String()),
	)

	return arena, nil
}
