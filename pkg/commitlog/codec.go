package commitlog

import (
	"bytes"
	"fmt"
	"io"

	"github.com/klauspost/compress/snappy"
	"github.com/klauspost/compress/zlib"
)

// Compression type ids, persisted in block headers and trailers.
const (
	CompressionNone   uint16 = 0
	CompressionZlib   uint16 = 1
	CompressionSnappy uint16 = 2
)

// Codec inflates and deflates block payloads. Selection is per fragment
// from the trailer, or per block when the trailer is missing.
type Codec interface {
	// Type returns the codec's compression type id.
	Type() uint16

	// Name returns the codec name for logging and metrics.
	Name() string

	// Inflate decompresses zbuf. expectedLen is the uncompressed length
	// recorded in the block header; a mismatch is a CodecError.
	Inflate(zbuf []byte, expectedLen int) ([]byte, error)

	// Deflate compresses buf for writing.
	Deflate(buf []byte) ([]byte, error)
}

// NewCodec returns the codec for a compression type id.
func NewCodec(ctype uint16) (Codec, error) {
	switch ctype {
	case CompressionNone:
		return noneCodec{}, nil
	case CompressionZlib:
		return zlibCodec{}, nil
	case CompressionSnappy:
		return snappyCodec{}, nil
	default:
		return nil, &CodecError{Reason: fmt.Sprintf("unknown compression type %d", ctype)}
	}
}

type noneCodec struct{}

func (noneCodec) Type() uint16 { return CompressionNone }
func (noneCodec) Name() string { return "none" }

func (noneCodec) Inflate(zbuf []byte, expectedLen int) ([]byte, error) {
	if len(zbuf) != expectedLen {
		return nil, &CodecError{Reason: fmt.Sprintf("stored block length %d does not match header %d", len(zbuf), expectedLen)}
	}
	out := make([]byte, len(zbuf))
	copy(out, zbuf)
	return out, nil
}

func (noneCodec) Deflate(buf []byte) ([]byte, error) {
	out := make([]byte, len(buf))
	copy(out, buf)
	return out, nil
}

type zlibCodec struct{}

func (zlibCodec) Type() uint16 { return CompressionZlib }
func (zlibCodec) Name() string { return "zlib" }

func (zlibCodec) Inflate(zbuf []byte, expectedLen int) ([]byte, error) {
	zr, err := zlib.NewReader(bytes.NewReader(zbuf))
	if err != nil {
		return nil, &CodecError{Reason: "zlib stream header", Err: err}
	}
	defer zr.Close()

	out := make([]byte, 0, expectedLen)
	buf := bytes.NewBuffer(out)
	if _, err := io.Copy(buf, zr); err != nil {
		return nil, &CodecError{Reason: "zlib inflate", Err: err}
	}
	if buf.Len() != expectedLen {
		return nil, &CodecError{Reason: fmt.Sprintf("inflated %d bytes, header says %d", buf.Len(), expectedLen)}
	}
	return buf.Bytes(), nil
}

func (zlibCodec) Deflate(buf []byte) ([]byte, error) {
	var out bytes.Buffer
	zw := zlib.NewWriter(&out)
	if _, err := zw.Write(buf); err != nil {
		zw.Close()
		return nil, &CodecError{Reason: "zlib deflate", Err: err}
	}
	if err := zw.Close(); err != nil {
		return nil, &CodecError{Reason: "zlib deflate close", Err: err}
	}
	return out.Bytes(), nil
}

type snappyCodec struct{}

func (snappyCodec) Type() uint16 { return CompressionSnappy }
func (snappyCodec) Name() string { return "snappy" }

func (snappyCodec) Inflate(zbuf []byte, expectedLen int) ([]byte, error) {
	out, err := snappy.Decode(nil, zbuf)
	if err != nil {
		return nil, &CodecError{Reason: "snappy decode", Err: err}
	}
	if len(out) != expectedLen {
		return nil, &CodecError{Reason: fmt.Sprintf("inflated %d bytes, header says %d", len(out), expectedLen)}
	}
	return out, nil
}

func (snappyCodec) Deflate(buf []byte) ([]byte, error) {
	return snappy.Encode(nil, buf), nil
}
