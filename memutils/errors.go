package memutils

import "github.com/pkg/errors"

// PowerOfTwoError is the error returned from CheckPow2 or other methods if the number being tested is not a power of two
var PowerOfTwoError error = errors.New("number must be a power of two")

var (
	// ErrOutOfRange is returned when a payload offset or address does not fall inside the chunk that was
	// asked to release it
	ErrOutOfRange = errors.New("offset is outside of the chunk's payload range")
	// ErrDoubleFree is returned when a block is released while it is already in the chunk's free set
	ErrDoubleFree = errors.New("block is already free")
	// ErrForeignPointer is returned when a pointer is deallocated through an arena that does not own any
	// chunk containing it
	ErrForeignPointer = errors.New("pointer does not belong to any chunk in this arena")
	// ErrInvalidChunkSize is returned when a chunk is created with a buffer that cannot hold a single header,
	// or one whose payload size would not fit in a header
	ErrInvalidChunkSize = errors.New("invalid chunk size")
	// ErrDestroyed is returned when an arena is used after its last handle was released
	ErrDestroyed = errors.New("arena has already been destroyed")
)

var (
	// ErrReleased is returned when a handle is used after Release was called on it
	ErrReleased = errors.New("handle has already been released")
	// ErrPointerElement is returned when a handle is requested for an element type that contains Go
	// pointers. Chunk memory is not scanned by the garbage collector, so such values cannot live there.
	ErrPointerElement = errors.New("element type contains pointers")
	// ErrUnalignedElement is returned when a handle is requested for an element type whose alignment
	// is larger than the arena's allocation alignment
	ErrUnalignedElement = errors.New("element type alignment exceeds the arena alignment")
)
