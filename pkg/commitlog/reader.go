package commitlog

import (
	"hash/crc32"
	"io"

	"github.com/hyperspacedb/hyperspace/internal/logger"
	"github.com/hyperspacedb/hyperspace/pkg/metrics"
)

// Reader replays the blocks of a commit log in (fragment number,
// intra-fragment) order. A reader instance is single-threaded.
//
// Errors are sticky: once a read fails, Err reports it and subsequent
// NextBlock calls resume from the next fragment or return done.
// InitializeRead starts a fresh pass and clears the error.
type Reader struct {
	fs        Filesystem
	dir       string
	fragments []Fragment
	metrics   metrics.CommitLogMetrics

	cutoff   uint64
	cur      int
	rc       io.ReadCloser
	codec    Codec
	gotCodec bool
	err      error

	headerBuf []byte
	zbuf      []byte
}

// NewReader scans the log directory and prepares a reader over its
// fragments. m may be nil.
func NewReader(fs Filesystem, dir string, m metrics.CommitLogMetrics) (*Reader, error) {
	logger.Info("opening commit log", logger.KeyPath, dir)

	fragments, err := scanFragments(fs, dir, m)
	if err != nil {
		return nil, err
	}

	return &Reader{
		fs:        fs,
		dir:       dir,
		fragments: fragments,
		metrics:   m,
		cur:       len(fragments), // not readable until InitializeRead
		headerBuf: make([]byte, HeaderLength),
	}, nil
}

// Fragments returns the scanned fragments in replay order.
func (r *Reader) Fragments() []Fragment {
	return r.fragments
}

// Err returns the sticky error from the current pass, if any.
func (r *Reader) Err() error {
	return r.err
}

// InitializeRead starts a replay pass. Fragments whose trailer timestamp is
// nonzero and strictly less than cutoff hold only already-applied data and
// are skipped.
func (r *Reader) InitializeRead(cutoff uint64) {
	r.closeFragment()
	r.cutoff = cutoff
	r.cur = 0
	r.err = nil
}

// NextBlock returns the next uncompressed block and its header. ok is false
// when the pass is exhausted or a read failed; Err distinguishes the two.
func (r *Reader) NextBlock() ([]byte, BlockHeader, bool) {
	for {
		if r.rc == nil {
			if !r.openNextFragment() {
				return nil, BlockHeader{}, false
			}
		}

		frag := &r.fragments[r.cur]

		n, err := io.ReadFull(r.rc, r.headerBuf)
		if err == io.EOF {
			// Clean end of an unterminated fragment at a block
			// boundary. Not an error; move on.
			r.advance()
			continue
		}
		if err != nil {
			logger.Error("short read of commit log block header",
				logger.KeyFragment, frag.Path, "read", n)
			r.fail(ErrTruncatedLog, "truncated")
			return nil, BlockHeader{}, false
		}

		header, err := DecodeBlockHeader(r.headerBuf)
		if err != nil || !header.validMagic() {
			logger.Error("bad block header in commit log",
				logger.KeyFragment, frag.Path)
			r.fail(ErrTruncatedLog, "truncated")
			return nil, BlockHeader{}, false
		}

		if header.IsTrailer() {
			r.advance()
			continue
		}

		if cap(r.zbuf) < int(header.CompressedLength) {
			r.zbuf = make([]byte, header.CompressedLength)
		}
		zbuf := r.zbuf[:header.CompressedLength]

		if _, err := io.ReadFull(r.rc, zbuf); err != nil {
			logger.Error("short read of commit log block payload",
				logger.KeyFragment, frag.Path)
			r.fail(ErrTruncatedLog, "truncated")
			return nil, BlockHeader{}, false
		}

		if header.Checksum != 0 && crc32.ChecksumIEEE(zbuf) != header.Checksum {
			r.fail(&CodecError{Reason: "block checksum mismatch"}, "codec")
			return nil, BlockHeader{}, false
		}

		// An unterminated fragment never told us its codec; trust the
		// first compressed block header instead.
		if !r.gotCodec && header.CompressionType != CompressionNone {
			codec, err := NewCodec(header.CompressionType)
			if err != nil {
				r.fail(err, "codec")
				return nil, BlockHeader{}, false
			}
			r.codec = codec
			r.gotCodec = true
		}

		block, err := r.codec.Inflate(zbuf, int(header.UncompressedLength))
		if err != nil {
			r.fail(err, "codec")
			return nil, BlockHeader{}, false
		}

		if r.metrics != nil {
			r.metrics.BlockRead(r.codec.Name(), len(block))
		}
		return block, header, true
	}
}

// openNextFragment advances the cursor past fragments below the cutoff and
// opens the next one. Returns false when the pass is exhausted.
func (r *Reader) openNextFragment() bool {
	skipped := 0
	for r.cur < len(r.fragments) {
		ts := r.fragments[r.cur].Timestamp
		if ts == 0 || ts >= r.cutoff {
			break
		}
		r.cur++
		skipped++
	}
	if skipped > 0 && r.metrics != nil {
		r.metrics.FragmentsSkipped(skipped)
	}

	if r.cur >= len(r.fragments) {
		return false
	}

	frag := &r.fragments[r.cur]
	rc, err := r.fs.OpenBuffered(frag.Path, readaheadSize)
	if err != nil {
		r.err = err
		if r.metrics != nil {
			r.metrics.ReadError("io")
		}
		r.cur++
		return false
	}
	r.rc = rc

	if frag.HasTrailer {
		codec, err := NewCodec(frag.Compression)
		if err != nil {
			r.fail(err, "codec")
			return false
		}
		r.codec = codec
		r.gotCodec = true
	} else {
		r.codec = noneCodec{}
		r.gotCodec = false
	}
	return true
}

// advance closes the open fragment and moves the cursor forward.
func (r *Reader) advance() {
	r.closeFragment()
	r.cur++
}

// fail records a sticky error and advances so a later call resumes from the
// next fragment.
func (r *Reader) fail(err error, kind string) {
	r.err = err
	if r.metrics != nil {
		r.metrics.ReadError(kind)
	}
	r.advance()
}

func (r *Reader) closeFragment() {
	if r.rc != nil {
		r.rc.Close()
		r.rc = nil
	}
}

// Close releases the open fragment, if any.
func (r *Reader) Close() {
	r.closeFragment()
}
