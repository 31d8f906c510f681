package commitlog

import (
	"bufio"
	"io"
	"os"
)

// readaheadSize is the buffer size for sequential fragment reads.
const readaheadSize = 128 * 1024

// Filesystem abstracts the directory and file operations the reader needs,
// so logs can live on a remote broker as well as the local disk.
type Filesystem interface {
	// ReadDir lists the entry names of a directory.
	ReadDir(dir string) ([]string, error)

	// Length returns the size of a file in bytes.
	Length(path string) (int64, error)

	// ReadTail reads the final n bytes of a file.
	ReadTail(path string, n int) ([]byte, error)

	// OpenBuffered opens a file for sequential reading behind a
	// read-ahead buffer of the given size.
	OpenBuffered(path string, bufSize int) (io.ReadCloser, error)
}

// LocalFS implements Filesystem on the local disk.
type LocalFS struct{}

// ReadDir lists the entry names of a directory.
func (LocalFS) ReadDir(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		names = append(names, e.Name())
	}
	return names, nil
}

// Length returns the size of a file in bytes.
func (LocalFS) Length(path string) (int64, error) {
	info, err := os.Stat(path)
	if err != nil {
		return 0, err
	}
	return info.Size(), nil
}

// ReadTail reads the final n bytes of a file.
func (LocalFS) ReadTail(path string, n int) ([]byte, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return nil, err
	}
	off := info.Size() - int64(n)
	if off < 0 {
		off = 0
	}

	buf := make([]byte, n)
	m, err := f.ReadAt(buf, off)
	if err != nil && err != io.EOF {
		return nil, err
	}
	return buf[:m], nil
}

type bufferedFile struct {
	*bufio.Reader
	f *os.File
}

func (b *bufferedFile) Close() error { return b.f.Close() }

// OpenBuffered opens a file for sequential reading behind a read-ahead
// buffer.
func (LocalFS) OpenBuffered(path string, bufSize int) (io.ReadCloser, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	return &bufferedFile{Reader: bufio.NewReaderSize(f, bufSize), f: f}, nil
}
