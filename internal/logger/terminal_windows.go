//go:build windows

package logger

// isTerminal reports whether the file descriptor is a terminal.
// Color output is disabled on Windows.
func isTerminal(fd uintptr) bool {
	return false
}
