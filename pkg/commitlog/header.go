// Package commitlog reads a write-ahead log laid out as a directory of
// numbered fragment files. Each fragment is a sequence of compressed blocks,
// terminated by a trailer block that records the fragment's final timestamp
// and codec. Fragments without a trailer were left open by a crashed writer
// and are always replayed.
package commitlog

import (
	"bytes"
	"encoding/binary"
	"fmt"
)

// HeaderLength is the fixed encoded size of a BlockHeader. The trailer is a
// header-shaped block of exactly this size at the fragment tail.
const HeaderLength = 24

// Block magics. A header whose magic equals magicTrailer terminates the
// fragment; its length fields carry the trailer timestamp instead.
var (
	magicData    = [10]byte{'C', 'O', 'M', 'M', 'I', 'T', 'D', 'A', 'T', 'A'}
	magicTrailer = [10]byte{'C', 'O', 'M', 'M', 'I', 'T', 'T', 'A', 'I', 'L'}
)

// BlockHeader prefixes every block in a fragment.
//
// Encoded layout, little-endian:
//
//	magic               10 bytes
//	compression type    u16
//	checksum            u32   crc32 (IEEE) of the compressed payload
//	uncompressed length u32
//	compressed length   u32
type BlockHeader struct {
	Magic              [10]byte
	CompressionType    uint16
	Checksum           uint32
	UncompressedLength uint32
	CompressedLength   uint32
}

// newDataHeader builds a header for a data block.
func newDataHeader(ctype uint16, checksum, ulen, zlen uint32) BlockHeader {
	return BlockHeader{
		Magic:              magicData,
		CompressionType:    ctype,
		Checksum:           checksum,
		UncompressedLength: ulen,
		CompressedLength:   zlen,
	}
}

// NewTrailer builds the terminating block-header for a fragment. The
// timestamp is packed into the two length fields (low word in the
// uncompressed length, high word in the compressed length).
func NewTrailer(timestamp uint64, ctype uint16) BlockHeader {
	return BlockHeader{
		Magic:              magicTrailer,
		CompressionType:    ctype,
		UncompressedLength: uint32(timestamp),
		CompressedLength:   uint32(timestamp >> 32),
	}
}

// IsTrailer reports whether the header terminates its fragment.
func (h *BlockHeader) IsTrailer() bool {
	return bytes.Equal(h.Magic[:], magicTrailer[:])
}

// TrailerTimestamp unpacks the timestamp carried by a trailer header.
func (h *BlockHeader) TrailerTimestamp() uint64 {
	return uint64(h.CompressedLength)<<32 | uint64(h.UncompressedLength)
}

// Encode appends the fixed-length encoding of the header to buf.
func (h *BlockHeader) Encode(buf []byte) []byte {
	buf = append(buf, h.Magic[:]...)
	buf = binary.LittleEndian.AppendUint16(buf, h.CompressionType)
	buf = binary.LittleEndian.AppendUint32(buf, h.Checksum)
	buf = binary.LittleEndian.AppendUint32(buf, h.UncompressedLength)
	buf = binary.LittleEndian.AppendUint32(buf, h.CompressedLength)
	return buf
}

// DecodeBlockHeader decodes a header from exactly HeaderLength bytes.
func DecodeBlockHeader(buf []byte) (BlockHeader, error) {
	var h BlockHeader
	if len(buf) < HeaderLength {
		return h, fmt.Errorf("block header: need %d bytes, have %d", HeaderLength, len(buf))
	}
	copy(h.Magic[:], buf[0:10])
	h.CompressionType = binary.LittleEndian.Uint16(buf[10:12])
	h.Checksum = binary.LittleEndian.Uint32(buf[12:16])
	h.UncompressedLength = binary.LittleEndian.Uint32(buf[16:20])
	h.CompressedLength = binary.LittleEndian.Uint32(buf[20:24])
	return h, nil
}

// validMagic reports whether the header carries a known magic.
func (h *BlockHeader) validMagic() bool {
	return bytes.Equal(h.Magic[:], magicData[:]) || h.IsTrailer()
}
