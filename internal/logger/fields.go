package logger

import "log/slog"

// Standard field keys for structured logging. Use these keys consistently
// across all log statements for log aggregation and querying.
const (
	// Coordination service
	KeySessionID = "session_id" // session identifier
	KeyHandleID  = "handle_id"  // open-handle identifier
	KeyNode      = "node"       // namespace node name (absolute path)
	KeyEventID   = "event_id"   // event identifier
	KeyEventMask = "event_mask" // event mask bits
	KeyLockMode  = "lock_mode"  // lock mode: shared, exclusive
	KeyGen       = "generation" // lock generation counter
	KeyPeer      = "peer"       // client peer address
	KeyFlags     = "flags"      // open flags
	KeyAttr      = "attr"       // extended attribute name
	KeyPath      = "path"       // filesystem path

	// Commit log
	KeyFragment  = "fragment"  // fragment file path
	KeyFragNum   = "frag_num"  // fragment number
	KeyTimestamp = "timestamp" // trailer timestamp (ns)
	KeyCodec     = "codec"     // block compression codec

	// Operation metadata
	KeyError      = "error"       // error message
	KeyDurationMs = "duration_ms" // operation duration in milliseconds
)

// SessionID returns a slog.Attr for a session identifier
func SessionID(id uint64) slog.Attr {
	return slog.Uint64(KeySessionID, id)
}

// HandleID returns a slog.Attr for a handle identifier
func HandleID(id uint64) slog.Attr {
	return slog.Uint64(KeyHandleID, id)
}

// Node returns a slog.Attr for a namespace node name
func Node(name string) slog.Attr {
	return slog.String(KeyNode, name)
}

// EventID returns a slog.Attr for an event identifier
func EventID(id uint64) slog.Attr {
	return slog.Uint64(KeyEventID, id)
}

// Peer returns a slog.Attr for a client peer address
func Peer(addr string) slog.Attr {
	return slog.String(KeyPeer, addr)
}

// Fragment returns a slog.Attr for a commit-log fragment path
func Fragment(path string) slog.Attr {
	return slog.String(KeyFragment, path)
}

// Err returns a slog.Attr for an error
func Err(err error) slog.Attr {
	if err == nil {
		return slog.Attr{}
	}
	return slog.String(KeyError, err.Error())
}
