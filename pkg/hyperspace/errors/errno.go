//go:build linux || darwin

package errors

import (
	"errors"

	"golang.org/x/sys/unix"
)

// FromErrno maps an OS error from the backing namespace to a typed *Error.
//
// Mapping:
//
//	ENOTDIR, ENAMETOOLONG, ENOENT -> BadPathname
//	EACCES, EPERM                 -> PermissionDenied
//	EEXIST                        -> FileExists
//	ENOATTR / ENODATA             -> AttrNotFound
//	anything else                 -> IoError
func FromErrno(path string, err error) *Error {
	if err == nil {
		return nil
	}

	var errno unix.Errno
	if !errors.As(err, &errno) {
		return NewIOError(path, err)
	}

	switch errno {
	case unix.ENOTDIR, unix.ENAMETOOLONG, unix.ENOENT:
		return NewBadPathnameError(path, err)
	case unix.EACCES, unix.EPERM:
		return NewPermissionDeniedError(path, err)
	case unix.EEXIST:
		return &Error{Code: ErrFileExists, Message: "file exists", Path: path, Err: err}
	case errnoNoAttr:
		return &Error{Code: ErrAttrNotFound, Message: "attribute not found", Path: path, Err: err}
	default:
		return NewIOError(path, err)
	}
}
