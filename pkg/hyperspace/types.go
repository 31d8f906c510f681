// Package hyperspace implements the coordination core of the table store: a
// hierarchical namespace backed by a local directory tree, client sessions
// kept alive by lease renewal, advisory locks with FIFO fairness, extended
// attribute storage, and ordered event notifications.
//
// The package exposes its operations through Master. The RPC dispatch layer
// that frames requests and sends responses is an external collaborator; it
// calls Master methods and maps the returned typed errors onto the wire.
package hyperspace

// SessionID identifies a client session. IDs are monotonically allocated and
// never reused within a process lifetime.
type SessionID uint64

// HandleID identifies an open handle scoped to a session.
type HandleID uint64

// EventID identifies an event. Per-session notification delivery is FIFO by
// event id.
type EventID uint64

// Open flags (bitmask).
const (
	OpenFlagRead   uint32 = 0x01
	OpenFlagWrite  uint32 = 0x02
	OpenFlagLock   uint32 = 0x04
	OpenFlagCreate uint32 = 0x08
	OpenFlagExcl   uint32 = 0x10
	OpenFlagTemp   uint32 = 0x20
)

// Event masks (bitmask). A broadcast event reaches only the handles whose
// subscription mask intersects its mask bits; a directed LockGranted event
// reaches the promoted waiter's handle whatever its subscription mask.
const (
	EventMaskAttrSet          uint32 = 0x0001
	EventMaskAttrDel          uint32 = 0x0002
	EventMaskChildNodeAdded   uint32 = 0x0004
	EventMaskChildNodeRemoved uint32 = 0x0008
	EventMaskLockAcquired     uint32 = 0x0010
	EventMaskLockReleased     uint32 = 0x0020
	EventMaskLockGranted      uint32 = 0x0040
)

// LockMode is the mode of an advisory lock on a node.
type LockMode uint32

const (
	LockModeNone      LockMode = 0
	LockModeShared    LockMode = 1
	LockModeExclusive LockMode = 2
)

// String returns the lock mode name.
func (m LockMode) String() string {
	switch m {
	case LockModeNone:
		return "none"
	case LockModeShared:
		return "shared"
	case LockModeExclusive:
		return "exclusive"
	default:
		return "invalid"
	}
}

// LockStatus is the immediate outcome of a Lock call.
type LockStatus int

const (
	// LockStatusGranted means the lock was acquired; the response carries
	// the new lock generation.
	LockStatusGranted LockStatus = iota + 1

	// LockStatusBusy means try_only was set and the lock is held in a
	// conflicting mode.
	LockStatusBusy

	// LockStatusPending means the request was queued; the grant arrives
	// later as a LockGranted event.
	LockStatusPending
)

// String returns the lock status name.
func (s LockStatus) String() string {
	switch s {
	case LockStatusGranted:
		return "granted"
	case LockStatusBusy:
		return "busy"
	case LockStatusPending:
		return "pending"
	default:
		return "invalid"
	}
}

// LockResult is the typed response of a Lock call.
type LockResult struct {
	Status LockStatus

	// Generation is the node's lock generation after the grant. Only
	// meaningful when Status is LockStatusGranted.
	Generation uint64
}
