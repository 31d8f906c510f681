package commitlog

import (
	"fmt"
	"hash/crc32"
	"os"
	"path"
	"strconv"
)

// Writer appends compressed blocks to a single fragment file and seals it
// with a trailer on Close. A fragment left without a trailer (process
// crash) is replayed in full by the reader.
type Writer struct {
	path  string
	f     *os.File
	codec Codec
}

// NewWriter creates the fragment file for the given number inside the log
// directory. The file must not already exist.
func NewWriter(dir string, num uint32, ctype uint16) (*Writer, error) {
	codec, err := NewCodec(ctype)
	if err != nil {
		return nil, err
	}

	p := path.Join(dir, strconv.FormatUint(uint64(num), 10))
	f, err := os.OpenFile(p, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0644)
	if err != nil {
		return nil, err
	}

	return &Writer{path: p, f: f, codec: codec}, nil
}

// Path returns the fragment file path.
func (w *Writer) Path() string { return w.path }

// AppendBlock compresses payload and writes it as one block.
func (w *Writer) AppendBlock(payload []byte) error {
	zbuf, err := w.codec.Deflate(payload)
	if err != nil {
		return err
	}

	header := newDataHeader(w.codec.Type(), crc32.ChecksumIEEE(zbuf),
		uint32(len(payload)), uint32(len(zbuf)))

	buf := make([]byte, 0, HeaderLength+len(zbuf))
	buf = header.Encode(buf)
	buf = append(buf, zbuf...)

	if _, err := w.f.Write(buf); err != nil {
		return fmt.Errorf("write block: %w", err)
	}
	return nil
}

// Close writes the trailer recording the fragment's final timestamp and
// codec, syncs, and closes the file.
func (w *Writer) Close(timestamp uint64) error {
	trailer := NewTrailer(timestamp, w.codec.Type())
	if _, err := w.f.Write(trailer.Encode(nil)); err != nil {
		w.f.Close()
		return fmt.Errorf("write trailer: %w", err)
	}
	if err := w.f.Sync(); err != nil {
		w.f.Close()
		return fmt.Errorf("sync fragment: %w", err)
	}
	return w.f.Close()
}

// Abort closes the file without writing a trailer, leaving the fragment
// unterminated.
func (w *Writer) Abort() error {
	return w.f.Close()
}
