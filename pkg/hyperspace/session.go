package hyperspace

import (
	"sync"
	"time"

	hserrors "github.com/hyperspacedb/hyperspace/pkg/hyperspace/errors"
)

// Session is a logical client connection kept alive by lease renewal.
//
// The session's own mutex guards its handle set and notification queue. It is
// disjoint from the table mutexes and may be taken after any of them, never
// before.
type Session struct {
	ID   SessionID
	Peer string

	mu            sync.Mutex
	leaseDeadline time.Time
	expired       bool
	handles       map[HandleID]struct{}
	notifications []*Notification // FIFO by event id
}

func newSession(id SessionID, peer string, lease time.Duration, now time.Time) *Session {
	return &Session{
		ID:            id,
		Peer:          peer,
		leaseDeadline: now.Add(lease),
		handles:       make(map[HandleID]struct{}),
	}
}

// renewLease moves the lease deadline forward. Returns false if the session
// has already expired; an expired session never transitions back.
func (s *Session) renewLease(lease time.Duration, now time.Time) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.expired {
		return false
	}
	s.leaseDeadline = now.Add(lease)
	return true
}

// expire marks the session expired. Idempotent.
func (s *Session) expire() {
	s.mu.Lock()
	s.expired = true
	s.mu.Unlock()
}

// Expired reports whether the session has been expired.
func (s *Session) Expired() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.expired
}

// LeaseDeadline returns the current lease deadline.
func (s *Session) LeaseDeadline() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.leaseDeadline
}

func (s *Session) addHandle(id HandleID) {
	s.mu.Lock()
	s.handles[id] = struct{}{}
	s.mu.Unlock()
}

func (s *Session) removeHandle(id HandleID) {
	s.mu.Lock()
	delete(s.handles, id)
	s.mu.Unlock()
}

// handleIDs returns a snapshot of the session's handle ids.
func (s *Session) handleIDs() []HandleID {
	s.mu.Lock()
	defer s.mu.Unlock()
	ids := make([]HandleID, 0, len(s.handles))
	for id := range s.handles {
		ids = append(ids, id)
	}
	return ids
}

// HandleCount returns the number of handles owned by the session.
func (s *Session) HandleCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.handles)
}

// addNotification enqueues a notification, keeping the queue ordered by
// event id. Operations on different nodes allocate ids and enqueue
// concurrently, so a notification may arrive after one with a larger id; it
// is inserted before it.
func (s *Session) addNotification(n *Notification) {
	s.mu.Lock()
	i := len(s.notifications)
	for i > 0 && s.notifications[i-1].Event.ID > n.Event.ID {
		i--
	}
	s.notifications = append(s.notifications, nil)
	copy(s.notifications[i+1:], s.notifications[i:])
	s.notifications[i] = n
	s.mu.Unlock()
}

// PendingNotifications returns a snapshot of the unacknowledged
// notifications in delivery order.
func (s *Session) PendingNotifications() []*Notification {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.notifications) == 0 {
		return nil
	}
	out := make([]*Notification, len(s.notifications))
	copy(out, s.notifications)
	return out
}

// acknowledgeUpTo consumes every queued notification whose event id is at
// most upTo, acknowledging each event. Returns the number consumed.
func (s *Session) acknowledgeUpTo(upTo EventID) int {
	s.mu.Lock()
	var acked []*Notification
	i := 0
	for ; i < len(s.notifications); i++ {
		if s.notifications[i].Event.ID > upTo {
			break
		}
		acked = append(acked, s.notifications[i])
	}
	s.notifications = s.notifications[i:]
	s.mu.Unlock()

	for _, n := range acked {
		n.Event.Ack()
	}
	return len(acked)
}

// ackAll acknowledges every queued notification. Used when a session is
// expired and its client will never acknowledge.
func (s *Session) ackAll() int {
	s.mu.Lock()
	pending := s.notifications
	s.notifications = nil
	s.mu.Unlock()

	for _, n := range pending {
		n.Event.Ack()
	}
	return len(pending)
}

// SessionTable is the registry of client sessions.
//
// Expiry scans for the session with the smallest lease deadline; renewals may
// arrive in any order, so the scan recomputes the minimum on every call
// rather than maintaining a heap.
type SessionTable struct {
	mu       sync.Mutex
	nextID   SessionID
	lease    time.Duration
	sessions map[SessionID]*Session
}

// NewSessionTable creates a session table with the given lease interval.
func NewSessionTable(lease time.Duration) *SessionTable {
	return &SessionTable{
		lease:    lease,
		sessions: make(map[SessionID]*Session),
	}
}

// Create registers a new session for the given peer address.
func (t *SessionTable) Create(peer string, now time.Time) *Session {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.nextID++
	s := newSession(t.nextID, peer, t.lease, now)
	t.sessions[s.ID] = s
	return s
}

// Lookup returns the session with the given id, or nil.
func (t *SessionTable) Lookup(id SessionID) *Session {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.sessions[id]
}

// Renew extends the session's lease. Returns ExpiredSession for unknown or
// already-expired sessions.
func (t *SessionTable) Renew(id SessionID, now time.Time) error {
	t.mu.Lock()
	s := t.sessions[id]
	t.mu.Unlock()

	if s == nil || !s.renewLease(t.lease, now) {
		return hserrors.NewExpiredSessionError(uint64(id))
	}
	return nil
}

// ExpireNext removes and returns the session with the smallest lease
// deadline that is at or before now, marking it expired. Returns nil when no
// session is due.
func (t *SessionTable) ExpireNext(now time.Time) *Session {
	t.mu.Lock()

	var victim *Session
	for _, s := range t.sessions {
		if s.LeaseDeadline().After(now) {
			continue
		}
		if victim == nil || s.LeaseDeadline().Before(victim.LeaseDeadline()) {
			victim = s
		}
	}
	if victim != nil {
		delete(t.sessions, victim.ID)
	}
	t.mu.Unlock()

	if victim != nil {
		victim.expire()
	}
	return victim
}

// Len returns the number of active sessions.
func (t *SessionTable) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.sessions)
}

// Snapshot returns the active sessions in unspecified order.
func (t *SessionTable) Snapshot() []*Session {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]*Session, 0, len(t.sessions))
	for _, s := range t.sessions {
		out = append(out, s)
	}
	return out
}
