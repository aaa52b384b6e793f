package metadata

import "encoding/binary"

// HeaderSize is the width in bytes of the length field that prefixes every block in a chunk
const HeaderSize = 4

// ReadHeader reads the block header stored at offset. For a live block the value is the payload size
// that was requested; for a free block it is the payload capacity available after the header.
func ReadHeader(buf []byte, offset int) uint32 {
	return binary.LittleEndian.Uint32(buf[offset : offset+HeaderSize])
}

// WriteHeader stores size in the block header at offset.
func WriteHeader(buf []byte, offset int, size uint32) {
	binary.LittleEndian.PutUint32(buf[offset:offset+HeaderSize], size)
}
