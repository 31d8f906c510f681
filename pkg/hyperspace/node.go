package hyperspace

import "sync"

// lockRequest is one entry in a node's pending lock queue. The queue stores
// handle pointers rather than ids so the release path can promote waiters
// without touching the handle table while the node mutex is held.
type lockRequest struct {
	handle *Handle
	mode   LockMode
}

// Node is the in-memory representation of a namespace entry backed by a
// local file or directory.
//
// Node.mu guards the lock state machine, the pending queue and the handle
// attachments. It is the innermost of the table and node mutexes: no
// operation holds two node mutexes at once, and the node map mutex (when
// needed) is taken first. Only a session's own mutex is taken under it, when
// notifications are enqueued.
type Node struct {
	Name string

	// isDir is fixed at node creation and read without locking.
	isDir bool

	mu              sync.Mutex
	fd              int // backing descriptor, -1 when closed
	ephemeral       bool
	lockGeneration  uint64
	currentLockMode LockMode
	exclusiveHandle HandleID // 0 when no exclusive holder
	sharedHandles   map[HandleID]struct{}
	pending         []lockRequest
	handles         map[HandleID]*Handle
}

func newNode(name string) *Node {
	return &Node{
		Name:          name,
		fd:            -1,
		sharedHandles: make(map[HandleID]struct{}),
		handles:       make(map[HandleID]*Handle),
	}
}

// attachHandle records a handle as open on this node. Caller holds n.mu.
func (n *Node) attachHandle(h *Handle) {
	n.handles[h.ID] = h
}

// detachHandle removes a handle attachment. Caller holds n.mu.
func (n *Node) detachHandle(id HandleID) {
	delete(n.handles, id)
}

// referenceCount returns the number of attached handles. Caller holds n.mu.
func (n *Node) referenceCount() int {
	return len(n.handles)
}

// removePending drops every pending lock request owned by the given handle.
// Caller holds n.mu.
func (n *Node) removePending(id HandleID) {
	kept := n.pending[:0]
	for _, req := range n.pending {
		if req.handle.ID != id {
			kept = append(kept, req)
		}
	}
	n.pending = kept
}

// unlocked reports whether no handle holds a lock. Caller holds n.mu.
func (n *Node) unlocked() bool {
	return n.exclusiveHandle == 0 && len(n.sharedHandles) == 0
}

// LockGeneration returns the node's current lock generation.
func (n *Node) LockGeneration() uint64 {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.lockGeneration
}

// CurrentLockMode returns the node's observed lock mode.
func (n *Node) CurrentLockMode() LockMode {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.currentLockMode
}

// HandleCount returns the number of handles attached to the node.
func (n *Node) HandleCount() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.handles)
}

// PendingLockRequests returns the length of the pending lock queue.
func (n *Node) PendingLockRequests() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.pending)
}

// Ephemeral reports whether the node's backing inode was unlinked at
// creation and the entry disappears when its last handle closes.
func (n *Node) Ephemeral() bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.ephemeral
}

// NodeTable is the index of currently-open nodes, keyed by normalized
// absolute name. Its mutex guards only map membership; per-node state is
// guarded by each node's own mutex.
type NodeTable struct {
	mu    sync.Mutex
	nodes map[string]*Node
}

// NewNodeTable creates an empty node table.
func NewNodeTable() *NodeTable {
	return &NodeTable{nodes: make(map[string]*Node)}
}

// Lookup returns the node with the given name, or nil.
func (t *NodeTable) Lookup(name string) *Node {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.nodes[name]
}

// Len returns the number of open nodes.
func (t *NodeTable) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.nodes)
}

// Snapshot returns the open nodes in unspecified order.
func (t *NodeTable) Snapshot() []*Node {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]*Node, 0, len(t.nodes))
	for _, n := range t.nodes {
		out = append(out, n)
	}
	return out
}
