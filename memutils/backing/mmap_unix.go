//go:build unix

package backing

import (
	cerrors "github.com/cockroachdb/errors"
	"golang.org/x/sys/unix"
)

// Mmap allocates chunk buffers as anonymous private mappings outside the Go heap, so large arenas do
// not add to the garbage collector's workload. Buffers must be returned with Free or they leak until
// the process exits.
type Mmap struct{}

var _ Backing = Mmap{}

func (Mmap) Allocate(size int) ([]byte, error) {
	data, err := unix.Mmap(-1, 0, size,
		unix.PROT_READ|unix.PROT_WRITE,
		unix.MAP_ANON|unix.MAP_PRIVATE,
	)
	if err != nil {
		return nil, cerrors.Wrapf(err, "cannot allocate %d bytes via mmap", size)
	}

	return data, nil
}

func (Mmap) Free(buf []byte) error {
	if err := unix.Munmap(buf); err != nil {
		return cerrors.Wrapf(err, "cannot unmap %d bytes", len(buf))
	}

	return nil
}
