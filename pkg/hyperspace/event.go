package hyperspace

import "sync"

// EventKind discriminates the event payload variants.
type EventKind int

const (
	EventChildAdded EventKind = iota + 1
	EventChildRemoved
	EventAttrSet
	EventAttrDel
	EventLockAcquired
	EventLockGranted
	EventLockReleased
)

// String returns the event kind name.
func (k EventKind) String() string {
	switch k {
	case EventChildAdded:
		return "child_added"
	case EventChildRemoved:
		return "child_removed"
	case EventAttrSet:
		return "attr_set"
	case EventAttrDel:
		return "attr_del"
	case EventLockAcquired:
		return "lock_acquired"
	case EventLockGranted:
		return "lock_granted"
	case EventLockReleased:
		return "lock_released"
	default:
		return "invalid"
	}
}

// Event is a monotonically numbered namespace event. The same Event instance
// is shared by every Notification that references it; Outstanding tracks how
// many of those notifications have yet to be acknowledged (one per matching
// handle, so a session with two matching handles counts twice).
type Event struct {
	ID   EventID
	Mask uint32
	Kind EventKind

	// Name is the child or attribute name for named events
	// (ChildAdded, ChildRemoved, AttrSet, AttrDel).
	Name string

	// Mode is set for LockAcquired and LockGranted events.
	Mode LockMode

	// Generation is set for LockGranted events.
	Generation uint64

	mu          sync.Mutex
	outstanding int
	waiters     chan struct{} // closed when outstanding drops back to zero
}

func newNamedEvent(id EventID, mask uint32, kind EventKind, name string) *Event {
	return &Event{ID: id, Mask: mask, Kind: kind, Name: name}
}

func newLockAcquiredEvent(id EventID, mode LockMode) *Event {
	return &Event{ID: id, Mask: EventMaskLockAcquired, Kind: EventLockAcquired, Mode: mode}
}

func newLockGrantedEvent(id EventID, mode LockMode, generation uint64) *Event {
	return &Event{ID: id, Mask: EventMaskLockGranted, Kind: EventLockGranted, Mode: mode, Generation: generation}
}

func newLockReleasedEvent(id EventID) *Event {
	return &Event{ID: id, Mask: EventMaskLockReleased, Kind: EventLockReleased}
}

// retain records one more notification of this event that must be
// acknowledged.
// Called under the node mutex before the notification is enqueued, so the
// counter is nonzero before any recipient can acknowledge.
func (e *Event) retain() {
	e.mu.Lock()
	e.outstanding++
	e.mu.Unlock()
}

// Ack records one acknowledgement and wakes waiters when the last
// outstanding notification has been acknowledged.
func (e *Event) Ack() {
	e.mu.Lock()
	if e.outstanding > 0 {
		e.outstanding--
		if e.outstanding == 0 && e.waiters != nil {
			close(e.waiters)
			e.waiters = nil
		}
	}
	e.mu.Unlock()
}

// Outstanding returns the number of unacknowledged notifications.
func (e *Event) Outstanding() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.outstanding
}

// WaitForAcks blocks until every enqueued notification of this event has
// been acknowledged. Returns immediately when nothing is outstanding.
func (e *Event) WaitForAcks() {
	e.mu.Lock()
	if e.outstanding == 0 {
		e.mu.Unlock()
		return
	}
	if e.waiters == nil {
		e.waiters = make(chan struct{})
	}
	ch := e.waiters
	e.mu.Unlock()
	<-ch
}

// Notification pairs an event with the handle it was observed through. It is
// enqueued on the handle's owning session and consumed on acknowledgement.
type Notification struct {
	HandleID HandleID
	Event    *Event
}
