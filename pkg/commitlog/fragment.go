package commitlog

import (
	"path"
	"sort"
	"strconv"

	"github.com/hyperspacedb/hyperspace/internal/logger"
	"github.com/hyperspacedb/hyperspace/pkg/metrics"
)

// Fragment describes one numbered log file. Timestamp is zero for
// unterminated fragments (no valid trailer), which are always replayed.
type Fragment struct {
	Num         uint32
	Path        string
	Timestamp   uint64
	Compression uint16
	HasTrailer  bool
}

// FragmentMetadata is the per-fragment summary used by tooling.
type FragmentMetadata struct {
	Num       uint32 `json:"num"`
	Path      string `json:"path"`
	Timestamp uint64 `json:"timestamp"`
	Codec     string `json:"codec"`
}

// scanFragments enumerates a log directory, keeping entries whose names
// parse as decimal integers, sorted ascending by numeric value, and reads
// each fragment's trailer.
//
// Fragments shorter than a block header are skipped entirely. A tail that
// does not decode as a trailer leaves the fragment unterminated: timestamp
// zero and no established codec.
func scanFragments(fs Filesystem, dir string, m metrics.CommitLogMetrics) ([]Fragment, error) {
	names, err := fs.ReadDir(dir)
	if err != nil {
		return nil, err
	}

	fragments := make([]Fragment, 0, len(names))
	for _, name := range names {
		num, err := strconv.ParseUint(name, 10, 32)
		if err != nil {
			logger.Warn("ignoring non-numeric file in commit log directory",
				logger.KeyPath, path.Join(dir, name))
			continue
		}
		fragments = append(fragments, Fragment{
			Num:  uint32(num),
			Path: path.Join(dir, name),
		})
	}

	sort.Slice(fragments, func(i, j int) bool {
		return fragments[i].Num < fragments[j].Num
	})

	kept := fragments[:0]
	for _, frag := range fragments {
		flen, err := fs.Length(frag.Path)
		if err != nil {
			return nil, err
		}
		if flen < HeaderLength {
			logger.Warn("skipping undersized fragment",
				logger.KeyFragment, frag.Path, "length", flen)
			continue
		}

		tail, err := fs.ReadTail(frag.Path, HeaderLength)
		if err != nil {
			return nil, err
		}
		if len(tail) != HeaderLength {
			return nil, ErrResponseTruncated
		}

		header, err := DecodeBlockHeader(tail)
		if err != nil {
			return nil, err
		}

		if header.IsTrailer() {
			frag.HasTrailer = true
			frag.Timestamp = header.TrailerTimestamp()
			frag.Compression = header.CompressionType
		}

		kept = append(kept, frag)
	}

	if m != nil {
		m.FragmentsScanned(len(kept))
	}
	return kept, nil
}

// DumpMetadata scans a log directory and returns per-fragment metadata in
// replay order.
func DumpMetadata(fs Filesystem, dir string) ([]FragmentMetadata, error) {
	fragments, err := scanFragments(fs, dir, nil)
	if err != nil {
		return nil, err
	}

	out := make([]FragmentMetadata, 0, len(fragments))
	for _, frag := range fragments {
		codec := "none"
		if frag.HasTrailer {
			if c, err := NewCodec(frag.Compression); err == nil {
				codec = c.Name()
			}
		}
		out = append(out, FragmentMetadata{
			Num:       frag.Num,
			Path:      frag.Path,
			Timestamp: frag.Timestamp,
			Codec:     codec,
		})
	}
	return out, nil
}
