package metadata_test

import (
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/vkngwrapper/chunkalloc/memutils/metadata"
)

func TestHeaderRoundTrip(t *testing.T) {
	buf := make([]byte, 16)

	metadata.WriteHeader(buf, 1, 0x01020304)
	require.Equal(t, []byte{0, 0x04, 0x03, 0x02, 0x01, 0, 0, 0}, buf[:8])
	require.Equal(t, uint32(0x01020304), metadata.ReadHeader(buf, 1))

	metadata.WriteHeader(buf, 12, 0xFFFFFFFF)
	require.Equal(t, uint32(0xFFFFFFFF), metadata.ReadHeader(buf, 12))
	require.Equal(t, uint32(0x01020304), metadata.ReadHeader(buf, 1))
}

func TestHeaderOutOfBounds(t *testing.T) {
	buf := make([]byte, 8)

	require.Panics(t, func() {
		metadata.WriteHeader(buf, 6, 1)
	})
	require.Panics(t, func() {
		metadata.ReadHeader(buf, 5)
	})
}
