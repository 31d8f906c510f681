//go:build darwin

package errors

import "golang.org/x/sys/unix"

const errnoNoAttr = unix.ENOATTR
