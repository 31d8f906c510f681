package hyperspace

import (
	"sync"
	"sync/atomic"
)

// Handle is an opaque reference to an open node, scoped to a session.
//
// The handle owns nothing: the session and node it points at live in their
// tables and outlive it. The locked flag is lock-state and is guarded by the
// node's mutex, not by any handle-level lock.
type Handle struct {
	ID        HandleID
	Session   *Session
	Node      *Node
	OpenFlags uint32
	EventMask uint32

	// locked is guarded by Node.mu.
	locked bool
}

// HandleTable is the registry of open handles, strictly by id.
type HandleTable struct {
	nextID  atomic.Uint64
	mu      sync.Mutex
	handles map[HandleID]*Handle
}

// NewHandleTable creates an empty handle table.
func NewHandleTable() *HandleTable {
	return &HandleTable{handles: make(map[HandleID]*Handle)}
}

// AllocateID reserves the next handle id without registering a handle. The
// caller builds and attaches the handle before publishing it with Register,
// so a concurrent lookup never observes a half-initialized handle.
func (t *HandleTable) AllocateID() HandleID {
	return HandleID(t.nextID.Add(1))
}

// Register publishes a fully initialized handle.
func (t *HandleTable) Register(h *Handle) {
	t.mu.Lock()
	t.handles[h.ID] = h
	t.mu.Unlock()
}

// Lookup returns the handle with the given id, or nil.
func (t *HandleTable) Lookup(id HandleID) *Handle {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.handles[id]
}

// Remove unregisters and returns the handle with the given id, or nil.
func (t *HandleTable) Remove(id HandleID) *Handle {
	t.mu.Lock()
	defer t.mu.Unlock()
	h := t.handles[id]
	if h != nil {
		delete(t.handles, id)
	}
	return h
}

// Len returns the number of registered handles.
func (t *HandleTable) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.handles)
}
