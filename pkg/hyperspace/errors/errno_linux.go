//go:build linux

package errors

import "golang.org/x/sys/unix"

// Linux reports a missing extended attribute as ENODATA.
const errnoNoAttr = unix.ENODATA
