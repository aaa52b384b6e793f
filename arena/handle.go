package arena

import (
	"math"
	"reflect"
	"sync/atomic"
	"unsafe"

	"github.com/cockroachdb/errors"
	"github.com/vkngwrapper/chunkalloc/memutils"
	"golang.org/x/exp/slog"
)

// sharedArena is the ownership record behind every Handle attached to one Arena. The arena is destroyed
// when the last reference is released.
type sharedArena struct {
	arena *Arena
	refs  atomic.Int32
}

func (s *sharedArena) acquire() {
	s.refs.Add(1)
}

func (s *sharedArena) release() error {
	refs := s.refs.Add(-1)
	if refs < 0 {
		panic("arena reference count dropped below zero")
	}
	if refs == 0 {
		return s.arena.Destroy()
	}

	return nil
}

// Handle is a typed view of a shared Arena. Allocate and Deallocate work in elements of T and forward
// to the arena in bytes. Handles created through Clone or Rebind share the arena of the handle they were
// created from, so memory allocated through one may be deallocated through any other.
//
// T must not contain Go pointers: chunk memory is not scanned by the garbage collector.
type Handle[T any] struct {
	shared   *sharedArena
	layout   elementLayout
	released bool
}

// NewHandle creates a fresh Arena and returns the first handle to it
func NewHandle[T any](logger *slog.Logger, options CreateOptions) (*Handle[T], error) {
	arena, err := New(logger, options)
	if err != nil {
		return nil, err
	}

	handle, err := Attach[T](arena)
	if err != nil {
		destroyErr := arena.Destroy()
		if destroyErr != nil {
			arena.logger.Error("error attempting to destroy arena after handle creation failure", slog.Any("error", destroyErr))
		}
		return nil, err
	}

	return handle, nil
}

// Attach returns a new Handle to arena. Every handle attached to the same arena shares one reference
// count, and the arena is destroyed when all of them have been released.
func Attach[T any](arena *Arena) (*Handle[T], error) {
	if arena.IsDestroyed() {
		return nil, errors.Wrap(memutils.ErrDestroyed, "cannot attach a handle")
	}

	if arena.shared == nil {
		arena.shared = &sharedArena{arena: arena}
	}

	return attach[T](arena.shared)
}

func attach[T any](shared *sharedArena) (*Handle[T], error) {
	layout := shared.arena.layoutFor(reflect.TypeOf((*T)(nil)).Elem())
	if layout.err != nil {
		return nil, layout.err
	}

	shared.acquire()
	return &Handle[T]{
		shared: shared,
		layout: layout,
	}, nil
}

// Rebind returns a handle for elements of U that shares h's arena
func Rebind[U any, T any](h *Handle[T]) (*Handle[U], error) {
	if h.released {
		return nil, errors.Wrap(memutils.ErrReleased, "cannot rebind")
	}

	return attach[U](h.shared)
}

// SameArena reports whether two handles, possibly of different element types, share an arena
func SameArena[T any, U any](a *Handle[T], b *Handle[U]) bool {
	return a.shared == b.shared
}

// Clone returns a new handle sharing h's arena
func (h *Handle[T]) Clone() (*Handle[T], error) {
	if h.released {
		return nil, errors.Wrap(memutils.ErrReleased, "cannot clone")
	}

	h.shared.acquire()
	return &Handle[T]{
		shared: h.shared,
		layout: h.layout,
	}, nil
}

// Release drops this handle's reference to the arena. Releasing the last handle destroys the arena and
// returns any error from Arena.Destroy. Releasing a handle twice does nothing.
func (h *Handle[T]) Release() error {
	if h.released {
		return nil
	}

	h.released = true
	return h.shared.release()
}

// Equal reports whether h and other share an arena
func (h *Handle[T]) Equal(other *Handle[T]) bool {
	return SameArena(h, other)
}

// RefCount returns the number of live handles sharing h's arena
func (h *Handle[T]) RefCount() int {
	return int(h.shared.refs.Load())
}

func (h *Handle[T]) Arena() *Arena {
	return h.shared.arena
}

// maxElements is the largest element count a single chunk can hold
func (h *Handle[T]) maxElements() int {
	if h.layout.size == 0 {
		return math.MaxInt
	}
	return h.shared.arena.MaxAllocationSize() / h.layout.size
}

// Allocate reserves room for n elements of T and returns a pointer to the first one. The memory is not
// zeroed. It returns nil when n is not positive, when T is zero-sized, or when the arena cannot satisfy
// the request.
func (h *Handle[T]) Allocate(n int) *T {
	if h.released || n <= 0 || n > h.maxElements() {
		return nil
	}

	return (*T)(h.shared.arena.Allocate(n * h.layout.size))
}

// AllocateSlice is Allocate returning a slice of length and capacity n
func (h *Handle[T]) AllocateSlice(n int) []T {
	ptr := h.Allocate(n)
	if ptr == nil {
		return nil
	}

	return unsafe.Slice(ptr, n)
}

// Deallocate returns the n elements at p to the arena
func (h *Handle[T]) Deallocate(p *T, n int) error {
	if h.released {
		return errors.Wrap(memutils.ErrReleased, "cannot deallocate")
	}
	if p != nil && n > h.maxElements() {
		return errors.Wrapf(memutils.ErrOutOfRange, "%d elements of %d bytes cannot fit in one chunk", n, h.layout.size)
	}

	return h.shared.arena.Deallocate(unsafe.Pointer(p), n*h.layout.size)
}

// DeallocateSlice returns a slice obtained from AllocateSlice to the arena
func (h *Handle[T]) DeallocateSlice(s []T) error {
	return h.Deallocate(unsafe.SliceData(s), len(s))
}

// Construct stores value at p. It does not touch the arena's bookkeeping.
func (h *Handle[T]) Construct(p *T, value T) {
	*p = value
}

// Destroy resets the value at p to the zero value of T. It does not touch the arena's bookkeeping.
func (h *Handle[T]) Destroy(p *T) {
	var zero T
	*p = zero
}
