package commitlog

import (
	"errors"
	"fmt"
)

// ErrTruncatedLog marks a fragment cut short mid-header or mid-payload by a
// torn write. The reader records it and resumes from the next fragment.
var ErrTruncatedLog = errors.New("truncated commit log")

// ErrResponseTruncated marks a trailer read that returned fewer bytes than
// the fragment length promised.
var ErrResponseTruncated = errors.New("short read of fragment trailer")

// CodecError reports a decompression failure or a payload/header mismatch.
type CodecError struct {
	Reason string
	Err    error
}

func (e *CodecError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("codec error: %s: %v", e.Reason, e.Err)
	}
	return "codec error: " + e.Reason
}

func (e *CodecError) Unwrap() error { return e.Err }
