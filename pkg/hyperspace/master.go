package hyperspace

import (
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/hyperspacedb/hyperspace/internal/logger"
	hserrors "github.com/hyperspacedb/hyperspace/pkg/hyperspace/errors"
	"github.com/hyperspacedb/hyperspace/pkg/metrics"
)

// Config holds the coordination service configuration.
type Config struct {
	// BaseDir is the local directory backing the namespace.
	BaseDir string

	// LeaseInterval is how long a session survives without renewal.
	LeaseInterval time.Duration

	// KeepAliveInterval is the period of the keepalive loop.
	KeepAliveInterval time.Duration

	// SyncNotify makes mutating operations block until every target
	// session has acknowledged the events they emitted.
	SyncNotify bool
}

// NotificationPusher is the transport hook the keepalive loop uses to flush
// a session's pending notifications to its client. The RPC shell implements
// it; tests substitute an in-memory pusher.
type NotificationPusher interface {
	PushNotifications(session *Session, notifications []*Notification)
}

// Master exposes the public coordination operations. Each operation
// verifies the caller's session, dispatches to the tables, and returns a
// typed result or a typed error for the RPC shell to map onto the wire.
//
// Lock order, strict: session table -> handle table -> node map -> node.
// The per-session mutex is disjoint and may be taken after any of them. No
// operation holds two node mutexes simultaneously.
type Master struct {
	cfg      Config
	store    *Store
	sessions *SessionTable
	handles  *HandleTable
	nodes    *NodeTable
	metrics  metrics.CoordinationMetrics

	instanceID  uuid.UUID
	startedAt   time.Time
	nextEventID atomic.Uint64
}

// NewMaster creates the facade over an opened store. metrics may be nil.
func NewMaster(cfg Config, store *Store, m metrics.CoordinationMetrics) *Master {
	master := &Master{
		cfg:        cfg,
		store:      store,
		sessions:   NewSessionTable(cfg.LeaseInterval),
		handles:    NewHandleTable(),
		nodes:      NewNodeTable(),
		metrics:    m,
		instanceID: uuid.New(),
		startedAt:  time.Now(),
	}
	logger.Info("hyperspace master ready",
		"instance_id", master.instanceID.String(),
		logger.KeyGen, store.Generation(),
		logger.KeyPath, store.BaseDir())
	return master
}

// InstanceID returns the server instance identifier.
func (m *Master) InstanceID() uuid.UUID { return m.instanceID }

// Generation returns the store's instance generation.
func (m *Master) Generation() uint32 { return m.store.Generation() }

// Uptime returns the time since the master was constructed.
func (m *Master) Uptime() time.Duration { return time.Since(m.startedAt) }

// Sessions returns the session table.
func (m *Master) Sessions() *SessionTable { return m.sessions }

// Nodes returns the node table.
func (m *Master) Nodes() *NodeTable { return m.nodes }

// Handles returns the handle table.
func (m *Master) Handles() *HandleTable { return m.handles }

func (m *Master) allocEventID() EventID {
	return EventID(m.nextEventID.Add(1))
}

// lookupSession resolves a session id or fails with ExpiredSession.
func (m *Master) lookupSession(id SessionID) (*Session, error) {
	s := m.sessions.Lookup(id)
	if s == nil || s.Expired() {
		return nil, hserrors.NewExpiredSessionError(uint64(id))
	}
	return s, nil
}

// lookupHandle resolves a handle id or fails with InvalidHandle.
func (m *Master) lookupHandle(id HandleID) (*Handle, error) {
	h := m.handles.Lookup(id)
	if h == nil {
		return nil, hserrors.NewInvalidHandleError(uint64(id))
	}
	return h, nil
}

// CreateSession registers a session for the given peer address and returns
// its id.
func (m *Master) CreateSession(peer string) SessionID {
	s := m.sessions.Create(peer, time.Now())
	logger.Info("session created", logger.KeySessionID, uint64(s.ID), logger.KeyPeer, peer)
	if m.metrics != nil {
		m.metrics.SessionCreated()
		m.metrics.SetActiveSessions(m.sessions.Len())
	}
	return s.ID
}

// RenewLease extends the session's lease by the configured interval.
func (m *Master) RenewLease(sid SessionID) error {
	return m.sessions.Renew(sid, time.Now())
}

// Mkdir creates a directory node. The parent's open handles receive a
// ChildAdded event.
func (m *Master) Mkdir(sid SessionID, name string) error {
	defer m.observe("mkdir", time.Now())
	if _, err := m.lookupSession(sid); err != nil {
		return err
	}
	name = NormalizeName(name)
	if err := ValidateName(name); err != nil {
		return err
	}

	logger.Debug("mkdir", logger.KeySessionID, uint64(sid), logger.KeyNode, name)

	if err := m.store.Mkdir(name); err != nil {
		return err
	}

	evs := m.notifyParent(name, EventChildAdded, EventMaskChildNodeAdded)
	m.waitEvents(evs)
	return nil
}

// Delete removes a file or directory node. The parent's open handles
// receive a ChildRemoved event.
func (m *Master) Delete(sid SessionID, name string) error {
	defer m.observe("delete", time.Now())
	if _, err := m.lookupSession(sid); err != nil {
		return err
	}
	name = NormalizeName(name)
	if err := ValidateName(name); err != nil {
		return err
	}

	logger.Debug("delete", logger.KeySessionID, uint64(sid), logger.KeyNode, name)

	if err := m.store.Remove(name); err != nil {
		return err
	}

	evs := m.notifyParent(name, EventChildRemoved, EventMaskChildNodeRemoved)
	m.waitEvents(evs)
	return nil
}

// Exists reports whether the named node exists in the backing namespace. It
// never touches the node table.
func (m *Master) Exists(sid SessionID, name string) (bool, error) {
	defer m.observe("exists", time.Now())
	if _, err := m.lookupSession(sid); err != nil {
		return false, err
	}
	name = NormalizeName(name)
	if err := ValidateName(name); err != nil {
		return false, err
	}
	return m.store.Exists(name)
}

// Open opens (and possibly creates) a node and returns a new handle on it.
// created reports whether the backing entry was created by this call.
func (m *Master) Open(sid SessionID, name string, flags, eventMask uint32) (HandleID, bool, error) {
	defer m.observe("open", time.Now())
	session, err := m.lookupSession(sid)
	if err != nil {
		return 0, false, err
	}
	name = NormalizeName(name)
	if err := ValidateName(name); err != nil {
		return 0, false, err
	}

	logger.Debug("open",
		logger.KeySessionID, uint64(sid), logger.KeyNode, name,
		logger.KeyFlags, flags, logger.KeyEventMask, eventMask)

	m.nodes.mu.Lock()

	node := m.nodes.nodes[name]
	if node != nil && flags&OpenFlagCreate != 0 && flags&OpenFlagExcl != 0 {
		m.nodes.mu.Unlock()
		return 0, false, hserrors.NewFileExistsError(name, "mode=CREATE|EXCL")
	}

	existed, isDir, err := m.store.Stat(name)
	if err != nil {
		m.nodes.mu.Unlock()
		return 0, false, err
	}

	created := false

	needOpen := node == nil
	if node != nil {
		node.mu.Lock()
		needOpen = node.fd < 0
		nonEphemeral := !node.ephemeral
		node.mu.Unlock()

		if needOpen && flags&OpenFlagTemp != 0 && existed && nonEphemeral {
			m.nodes.mu.Unlock()
			return 0, false, hserrors.NewFileExistsError(name,
				"unable to open TEMP file because it exists and is permanent")
		}
	}

	if needOpen {
		oflags := openRDWR
		if existed && isDir {
			oflags = openRDONLY
		}
		if flags&OpenFlagCreate != 0 {
			oflags |= openCREAT
		}
		if flags&OpenFlagExcl != 0 {
			oflags |= openEXCL
		}

		fd, err := m.store.OpenEntry(name, oflags)
		if err != nil {
			m.nodes.mu.Unlock()
			return 0, false, err
		}

		if node == nil {
			node = newNode(name)
			node.isDir = isDir

			gen, found, err := m.store.ReadLockGeneration(name, fd)
			if err != nil {
				m.store.CloseEntry(fd)
				m.nodes.mu.Unlock()
				return 0, false, err
			}
			if !found {
				gen = 1
				if err := m.store.WriteLockGeneration(name, fd, gen); err != nil {
					m.store.CloseEntry(fd)
					m.nodes.mu.Unlock()
					return 0, false, err
				}
			}
			node.lockGeneration = gen

			if flags&OpenFlagTemp != 0 {
				node.ephemeral = true
				if err := m.store.Unlink(name); err != nil {
					m.store.CloseEntry(fd)
					m.nodes.mu.Unlock()
					return 0, false, err
				}
			}
			m.nodes.nodes[name] = node
		}

		node.mu.Lock()
		node.fd = fd
		node.mu.Unlock()

		if !existed {
			created = true
		}
	}

	hid := m.handles.AllocateID()
	h := &Handle{
		ID:        hid,
		Session:   session,
		Node:      node,
		OpenFlags: flags,
		EventMask: eventMask,
	}

	session.addHandle(hid)

	var evs []*Event
	if created {
		evs = m.notifyParentLocked(name, EventChildAdded, EventMaskChildNodeAdded)
	}

	node.mu.Lock()
	node.attachHandle(h)
	node.mu.Unlock()

	m.nodes.mu.Unlock()

	m.handles.Register(h)
	m.updateGauges()
	m.waitEvents(evs)

	return hid, created, nil
}

// Close destroys a handle. Any lock it holds is released first; if the node
// loses its last handle the backing descriptor is closed, and ephemeral
// nodes disappear from the table with a ChildRemoved event to the parent.
func (m *Master) Close(sid SessionID, hid HandleID) error {
	defer m.observe("close", time.Now())
	if _, err := m.lookupSession(sid); err != nil {
		return err
	}

	h := m.handles.Remove(hid)
	if h == nil {
		return hserrors.NewInvalidHandleError(uint64(hid))
	}

	logger.Debug("close", logger.KeySessionID, uint64(sid), logger.KeyHandleID, uint64(hid))

	h.Session.removeHandle(hid)
	evs := m.destroyHandle(h)
	m.updateGauges()
	m.waitEvents(evs)
	return nil
}

// AttrSet stores an extended attribute on the handle's node and emits an
// AttrSet event to the node's subscribed handles.
func (m *Master) AttrSet(sid SessionID, hid HandleID, attr string, value []byte) error {
	defer m.observe("attr_set", time.Now())
	if _, err := m.lookupSession(sid); err != nil {
		return err
	}
	h, err := m.lookupHandle(hid)
	if err != nil {
		return err
	}

	node := h.Node
	node.mu.Lock()
	if err := m.store.SetAttr(node.Name, node.fd, attr, value); err != nil {
		node.mu.Unlock()
		return err
	}
	ev := newNamedEvent(m.allocEventID(), EventMaskAttrSet, EventAttrSet, attr)
	m.deliverToNode(node, ev)
	node.mu.Unlock()

	m.waitEvents([]*Event{ev})
	return nil
}

// AttrGet reads an extended attribute from the handle's node.
func (m *Master) AttrGet(sid SessionID, hid HandleID, attr string) ([]byte, error) {
	defer m.observe("attr_get", time.Now())
	if _, err := m.lookupSession(sid); err != nil {
		return nil, err
	}
	h, err := m.lookupHandle(hid)
	if err != nil {
		return nil, err
	}

	node := h.Node
	node.mu.Lock()
	defer node.mu.Unlock()
	return m.store.GetAttr(node.Name, node.fd, attr)
}

// AttrDel removes an extended attribute from the handle's node and emits an
// AttrDel event.
func (m *Master) AttrDel(sid SessionID, hid HandleID, attr string) error {
	defer m.observe("attr_del", time.Now())
	if _, err := m.lookupSession(sid); err != nil {
		return err
	}
	h, err := m.lookupHandle(hid)
	if err != nil {
		return err
	}

	node := h.Node
	node.mu.Lock()
	if err := m.store.DelAttr(node.Name, node.fd, attr); err != nil {
		node.mu.Unlock()
		return err
	}
	ev := newNamedEvent(m.allocEventID(), EventMaskAttrDel, EventAttrDel, attr)
	m.deliverToNode(node, ev)
	node.mu.Unlock()

	m.waitEvents([]*Event{ev})
	return nil
}

// Lock requests an advisory lock through the handle. The call never blocks:
// conflicting non-try requests are queued and the grant arrives later as a
// directed LockGranted event.
func (m *Master) Lock(sid SessionID, hid HandleID, mode LockMode, tryOnly bool) (LockResult, error) {
	defer m.observe("lock", time.Now())
	if _, err := m.lookupSession(sid); err != nil {
		return LockResult{}, err
	}
	h, err := m.lookupHandle(hid)
	if err != nil {
		return LockResult{}, err
	}

	if mode != LockModeShared && mode != LockModeExclusive {
		return LockResult{}, hserrors.NewProtocolError("invalid lock mode")
	}
	if h.OpenFlags&OpenFlagLock == 0 {
		return LockResult{}, hserrors.NewModeRestrictionError("handle not open for locking")
	}
	if h.OpenFlags&OpenFlagWrite == 0 {
		return LockResult{}, hserrors.NewModeRestrictionError("handle not open for writing")
	}

	node := h.Node
	if node.isDir {
		return LockResult{}, hserrors.NewModeRestrictionError("cannot lock a directory handle")
	}

	logger.Debug("lock",
		logger.KeySessionID, uint64(sid), logger.KeyHandleID, uint64(hid),
		logger.KeyNode, node.Name, logger.KeyLockMode, mode.String(), "try_only", tryOnly)

	node.mu.Lock()

	if node.currentLockMode == LockModeExclusive ||
		(node.currentLockMode == LockModeShared && mode == LockModeExclusive) {
		if tryOnly {
			node.mu.Unlock()
			return LockResult{Status: LockStatusBusy}, nil
		}
		node.pending = append(node.pending, lockRequest{handle: h, mode: mode})
		node.mu.Unlock()
		if m.metrics != nil {
			m.metrics.LockQueued(mode.String())
		}
		return LockResult{Status: LockStatusPending}, nil
	}

	if node.currentLockMode == LockModeShared && len(node.pending) > 0 {
		// A shared request behind queued waiters queues too, preserving
		// FIFO fairness so an earlier exclusive waiter is never starved.
		node.pending = append(node.pending, lockRequest{handle: h, mode: mode})
		node.mu.Unlock()
		if m.metrics != nil {
			m.metrics.LockQueued(mode.String())
		}
		return LockResult{Status: LockStatusPending}, nil
	}

	// Grant. Joining an existing shared hold is not a mode transition:
	// the holders already know the node is shared-held, so no event is
	// emitted and the generation is not bumped again.
	transition := !(mode == LockModeShared && len(node.sharedHandles) > 0)

	if transition {
		node.lockGeneration++
		if err := m.store.WriteLockGeneration(node.Name, node.fd, node.lockGeneration); err != nil {
			node.lockGeneration--
			node.mu.Unlock()
			return LockResult{}, err
		}
	}
	node.currentLockMode = mode
	m.lockHandle(h, mode)

	gen := node.lockGeneration

	var evs []*Event
	if transition {
		ev := newLockAcquiredEvent(m.allocEventID(), mode)
		m.deliverToNode(node, ev)
		evs = append(evs, ev)
	}
	node.mu.Unlock()

	if m.metrics != nil {
		m.metrics.LockGranted(mode.String(), false)
	}
	m.waitEvents(evs)

	return LockResult{Status: LockStatusGranted, Generation: gen}, nil
}

// Release gives up the lock held through the handle and promotes pending
// waiters in FIFO order.
func (m *Master) Release(sid SessionID, hid HandleID) error {
	defer m.observe("release", time.Now())
	if _, err := m.lookupSession(sid); err != nil {
		return err
	}
	h, err := m.lookupHandle(hid)
	if err != nil {
		return err
	}

	logger.Debug("release", logger.KeySessionID, uint64(sid), logger.KeyHandleID, uint64(hid))

	evs := m.releaseLock(h)
	m.waitEvents(evs)
	return nil
}

// AcknowledgeNotifications consumes the session's queued notifications with
// event ids up to and including upTo, waking any wait_for_notify senders.
func (m *Master) AcknowledgeNotifications(sid SessionID, upTo EventID) error {
	s := m.sessions.Lookup(sid)
	if s == nil {
		return hserrors.NewExpiredSessionError(uint64(sid))
	}
	n := s.acknowledgeUpTo(upTo)
	if n > 0 && m.metrics != nil {
		m.metrics.NotificationsAcked(n)
	}
	return nil
}

// RemoveExpiredSessions expires every session past its lease, destroying
// its handles (which releases locks, removes queued waiters and tears down
// ephemeral nodes). Returns the number of sessions expired.
func (m *Master) RemoveExpiredSessions(now time.Time) int {
	count := 0
	for {
		s := m.sessions.ExpireNext(now)
		if s == nil {
			break
		}
		count++

		logger.Info("expiring session",
			logger.KeySessionID, uint64(s.ID), logger.KeyPeer, s.Peer)

		// Drop the session's queued waiters first, so releasing one of
		// its held locks cannot promote another of its own handles.
		for _, hid := range s.handleIDs() {
			if h := m.handles.Lookup(hid); h != nil {
				h.Node.mu.Lock()
				h.Node.removePending(hid)
				h.Node.mu.Unlock()
			}
		}

		for _, hid := range s.handleIDs() {
			h := m.handles.Remove(hid)
			if h == nil {
				logger.Warn("expired session handle not registered",
					logger.KeySessionID, uint64(s.ID), logger.KeyHandleID, uint64(hid))
				continue
			}
			s.removeHandle(hid)
			m.destroyHandle(h)
		}

		// Acknowledge whatever the dead client never will, so
		// wait_for_notify senders are not stranded.
		s.ackAll()

		if m.metrics != nil {
			m.metrics.SessionExpired()
		}
	}
	if count > 0 {
		m.updateGauges()
	}
	return count
}

// lockHandle attaches the handle to the holder set for mode.
// Caller holds the node mutex.
func (m *Master) lockHandle(h *Handle, mode LockMode) {
	if mode == LockModeShared {
		h.Node.sharedHandles[h.ID] = struct{}{}
	} else {
		h.Node.exclusiveHandle = h.ID
	}
	h.locked = true
}

// releaseLock removes the handle from the holder sets and, when the node
// becomes unlocked, emits LockReleased and promotes pending waiters:
// either exactly one exclusive waiter, or the contiguous shared prefix of
// the queue, with a single generation bump for the whole transition.
// Returns the emitted events for wait_for_notify callers.
func (m *Master) releaseLock(h *Handle) []*Event {
	node := h.Node
	node.mu.Lock()

	if !h.locked {
		node.mu.Unlock()
		return nil
	}

	if node.exclusiveHandle != 0 {
		if node.exclusiveHandle != h.ID {
			logger.Error("exclusive holder mismatch",
				logger.KeyNode, node.Name, logger.KeyHandleID, uint64(h.ID))
			panic("hyperspace: exclusive lock holder does not match releasing handle")
		}
		node.exclusiveHandle = 0
	} else {
		delete(node.sharedHandles, h.ID)
	}
	h.locked = false

	var evs []*Event

	if !node.unlocked() {
		// Other shared holders remain; the observed mode is unchanged
		// and no waiter can be promoted yet.
		node.mu.Unlock()
		return nil
	}

	ev := newLockReleasedEvent(m.allocEventID())
	m.deliverToNode(node, ev)
	evs = append(evs, ev)

	node.currentLockMode = LockModeNone

	if len(node.pending) > 0 {
		var granted []lockRequest
		nextMode := node.pending[0].mode

		if nextMode == LockModeExclusive {
			granted = append(granted, node.pending[0])
			node.pending = node.pending[1:]
		} else {
			for len(node.pending) > 0 && node.pending[0].mode == LockModeShared {
				granted = append(granted, node.pending[0])
				node.pending = node.pending[1:]
			}
		}

		if len(granted) > 0 {
			node.lockGeneration++
			if err := m.store.WriteLockGeneration(node.Name, node.fd, node.lockGeneration); err != nil {
				// The in-memory generation stays ahead; the next
				// successful grant persists a larger value.
				logger.Error("failed to persist lock generation",
					logger.KeyNode, node.Name, logger.Err(err))
			}
			node.currentLockMode = nextMode

			for _, req := range granted {
				m.lockHandle(req.handle, nextMode)
				gev := newLockGrantedEvent(m.allocEventID(), nextMode, node.lockGeneration)
				m.deliverToHandle(req.handle, gev)
				evs = append(evs, gev)
				if m.metrics != nil {
					m.metrics.LockGranted(nextMode.String(), true)
				}
			}

			aev := newLockAcquiredEvent(m.allocEventID(), nextMode)
			m.deliverToNode(node, aev)
			evs = append(evs, aev)
		}
	}

	node.mu.Unlock()
	return evs
}

// destroyHandle detaches the handle from its node after releasing any lock
// state, closing the backing descriptor and removing ephemeral nodes when
// the last handle goes away. Returns emitted events.
func (m *Master) destroyHandle(h *Handle) []*Event {
	evs := m.releaseLock(h)

	node := h.Node

	m.nodes.mu.Lock()

	node.mu.Lock()
	node.removePending(h.ID)
	node.detachHandle(h.ID)
	last := node.referenceCount() == 0
	closeFd := -1
	ephemeral := false
	if last {
		closeFd = node.fd
		node.fd = -1
		ephemeral = node.ephemeral
	}
	node.mu.Unlock()

	if last {
		if closeFd >= 0 {
			if err := m.store.CloseEntry(closeFd); err != nil {
				logger.Warn("failed to close node descriptor",
					logger.KeyNode, node.Name, logger.Err(err))
			}
		}
		if ephemeral {
			delete(m.nodes.nodes, node.Name)
			evs = append(evs, m.notifyParentLocked(node.Name, EventChildRemoved, EventMaskChildNodeRemoved)...)
		}
	}

	m.nodes.mu.Unlock()
	return evs
}

// deliverToNode enqueues a notification for the event into every session
// owning a handle on the node whose mask matches. Caller holds the node
// mutex; the outstanding counter is incremented before each enqueue so an
// early acknowledgement cannot race a later WaitForAcks.
func (m *Master) deliverToNode(node *Node, ev *Event) int {
	count := 0
	for id, h := range node.handles {
		if h.EventMask&ev.Mask == 0 {
			continue
		}
		ev.retain()
		h.Session.addNotification(&Notification{HandleID: id, Event: ev})
		count++
	}
	if count > 0 && m.metrics != nil {
		m.metrics.NotificationsEnqueued(count)
	}
	return count
}

// deliverToHandle enqueues exactly one directed notification.
func (m *Master) deliverToHandle(h *Handle, ev *Event) {
	ev.retain()
	h.Session.addNotification(&Notification{HandleID: h.ID, Event: ev})
	if m.metrics != nil {
		m.metrics.NotificationsEnqueued(1)
	}
}

// notifyParent emits a named event to the open parent of name, taking the
// node map lock itself.
func (m *Master) notifyParent(name string, kind EventKind, mask uint32) []*Event {
	m.nodes.mu.Lock()
	defer m.nodes.mu.Unlock()
	return m.notifyParentLocked(name, kind, mask)
}

// notifyParentLocked is notifyParent with the node map lock already held.
// Only the parent's node mutex is taken; never two node mutexes at once.
func (m *Master) notifyParentLocked(name string, kind EventKind, mask uint32) []*Event {
	parentName, child, ok := splitParent(name)
	if !ok {
		return nil
	}
	parent := m.nodes.nodes[parentName]
	if parent == nil {
		return nil
	}

	ev := newNamedEvent(m.allocEventID(), mask, kind, child)

	parent.mu.Lock()
	n := m.deliverToNode(parent, ev)
	parent.mu.Unlock()

	if n == 0 {
		return nil
	}
	return []*Event{ev}
}

// waitEvents blocks until the given events are fully acknowledged, when
// synchronous notification is configured.
func (m *Master) waitEvents(evs []*Event) {
	if !m.cfg.SyncNotify {
		return
	}
	for _, ev := range evs {
		ev.WaitForAcks()
	}
}

func (m *Master) observe(op string, start time.Time) {
	if m.metrics != nil {
		m.metrics.RecordOperation(op, time.Since(start), "")
	}
}

func (m *Master) updateGauges() {
	if m.metrics == nil {
		return
	}
	m.metrics.SetActiveSessions(m.sessions.Len())
	m.metrics.SetOpenNodes(m.nodes.Len())
	m.metrics.SetOpenHandles(m.handles.Len())
}
