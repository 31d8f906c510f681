package hyperspace

import (
	"context"
	"time"

	"github.com/hyperspacedb/hyperspace/internal/logger"
)

// KeepaliveService is the periodic driver of the coordination core. Each
// tick it expires sessions past their lease (cascading handle teardown) and
// flushes every session's pending notifications to the transport.
//
// Acknowledgements flow back through Master.AcknowledgeNotifications as the
// RPC shell receives them from clients; they decrement the per-event
// outstanding counters and wake wait_for_notify senders.
type KeepaliveService struct {
	master   *Master
	pusher   NotificationPusher
	interval time.Duration
}

// NewKeepaliveService creates the keepalive driver. pusher may be nil, in
// which case notifications accumulate until acknowledged out of band (used
// in tests).
func NewKeepaliveService(master *Master, pusher NotificationPusher, interval time.Duration) *KeepaliveService {
	return &KeepaliveService{
		master:   master,
		pusher:   pusher,
		interval: interval,
	}
}

// Run drives ticks until the context is cancelled.
func (k *KeepaliveService) Run(ctx context.Context) {
	logger.Info("keepalive service started", "interval", k.interval.String())

	ticker := time.NewTicker(k.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			logger.Info("keepalive service stopped")
			return
		case now := <-ticker.C:
			k.Tick(now)
		}
	}
}

// Tick runs one keepalive round at the given time. Exposed so tests can
// drive the service deterministically.
func (k *KeepaliveService) Tick(now time.Time) {
	if n := k.master.RemoveExpiredSessions(now); n > 0 {
		logger.Debug("expired sessions", "count", n)
	}

	if k.pusher == nil {
		return
	}

	for _, s := range k.master.Sessions().Snapshot() {
		pending := s.PendingNotifications()
		if len(pending) == 0 {
			continue
		}
		k.pusher.PushNotifications(s, pending)
	}
}
