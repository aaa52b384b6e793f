// Package backing provides the memory that chunks are carved from.
package backing

//go:generate mockgen -source backing.go -destination mocks/backing.go -package mock_backing

// Backing hands out and takes back the raw buffers that arenas turn into chunks. A buffer returned by
// Allocate is owned by the caller until it is passed back to Free.
type Backing interface {
	Allocate(size int) ([]byte, error)
	Free(buf []byte) error
}

// Heap allocates chunk buffers from the Go heap. Free drops nothing explicitly: the buffer is
// reclaimed by the garbage collector once the arena stops referencing it.
type Heap struct{}

var _ Backing = Heap{}

func (Heap) Allocate(size int) ([]byte, error) {
	return make([]byte, size), nil
}

func (Heap) Free(buf []byte) error {
	return nil
}
