// Package metrics defines the observability interfaces for the hyperspace
// daemon. Implementations are optional: passing nil disables collection with
// zero overhead. The prometheus subpackage provides the production
// implementation.
package metrics

import "time"

// CoordinationMetrics provides observability for the coordination core:
// sessions, handles, nodes, locks and event delivery.
type CoordinationMetrics interface {
	// SessionCreated records a new session.
	SessionCreated()

	// SessionExpired records a session torn down by lease expiry.
	SessionExpired()

	// SetActiveSessions sets the active session gauge.
	SetActiveSessions(n int)

	// SetOpenNodes sets the open node gauge.
	SetOpenNodes(n int)

	// SetOpenHandles sets the open handle gauge.
	SetOpenHandles(n int)

	// LockGranted records a lock grant with its mode ("shared",
	// "exclusive") and whether it was an immediate grant or a promotion
	// from the pending queue.
	LockGranted(mode string, promoted bool)

	// LockQueued records a request parked on a pending queue.
	LockQueued(mode string)

	// NotificationsEnqueued records notifications fanned out to sessions.
	NotificationsEnqueued(n int)

	// NotificationsAcked records acknowledged notifications.
	NotificationsAcked(n int)

	// RecordOperation records a completed facade operation with its
	// duration and outcome ("" for success, the error code name
	// otherwise).
	RecordOperation(op string, duration time.Duration, errorCode string)
}
