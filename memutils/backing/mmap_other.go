//go:build !unix

package backing

import (
	cerrors "github.com/cockroachdb/errors"
)

// Mmap is only available on unix platforms. Elsewhere every allocation fails.
type Mmap struct{}

var _ Backing = Mmap{}

func (Mmap) Allocate(size int) ([]byte, error) {
	return nil, cerrors.Newf("mmap-backed chunks are not supported on this platform (requested %d bytes)", size)
}

func (Mmap) Free(buf []byte) error {
	return nil
}
