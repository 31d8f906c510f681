// Package prometheus implements the metrics interfaces on top of
// prometheus/client_golang collectors.
package prometheus

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// CoordinationMetrics is the prometheus implementation of
// metrics.CoordinationMetrics.
type CoordinationMetrics struct {
	sessionsCreated prometheus.Counter
	sessionsExpired prometheus.Counter
	activeSessions  prometheus.Gauge
	openNodes       prometheus.Gauge
	openHandles     prometheus.Gauge
	locksGranted    *prometheus.CounterVec
	locksQueued     *prometheus.CounterVec
	notifsEnqueued  prometheus.Counter
	notifsAcked     prometheus.Counter
	opDuration      *prometheus.HistogramVec
}

// NewCoordinationMetrics registers and returns coordination collectors.
func NewCoordinationMetrics(reg prometheus.Registerer) *CoordinationMetrics {
	m := &CoordinationMetrics{
		sessionsCreated: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "hyperspace_sessions_created_total",
			Help: "Total sessions created.",
		}),
		sessionsExpired: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "hyperspace_sessions_expired_total",
			Help: "Total sessions torn down by lease expiry.",
		}),
		activeSessions: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "hyperspace_active_sessions",
			Help: "Sessions currently holding a lease.",
		}),
		openNodes: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "hyperspace_open_nodes",
			Help: "Nodes currently open in the node table.",
		}),
		openHandles: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "hyperspace_open_handles",
			Help: "Handles currently registered.",
		}),
		locksGranted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "hyperspace_locks_granted_total",
			Help: "Lock grants by mode and grant path.",
		}, []string{"mode", "path"}),
		locksQueued: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "hyperspace_locks_queued_total",
			Help: "Lock requests parked on a pending queue, by mode.",
		}, []string{"mode"}),
		notifsEnqueued: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "hyperspace_notifications_enqueued_total",
			Help: "Notifications fanned out to session queues.",
		}),
		notifsAcked: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "hyperspace_notifications_acked_total",
			Help: "Notifications acknowledged by clients.",
		}),
		opDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "hyperspace_operation_duration_seconds",
			Help:    "Facade operation latency by operation and outcome.",
			Buckets: prometheus.DefBuckets,
		}, []string{"op", "error"}),
	}

	reg.MustRegister(
		m.sessionsCreated, m.sessionsExpired, m.activeSessions,
		m.openNodes, m.openHandles, m.locksGranted, m.locksQueued,
		m.notifsEnqueued, m.notifsAcked, m.opDuration,
	)
	return m
}

func (m *CoordinationMetrics) SessionCreated() { m.sessionsCreated.Inc() }
func (m *CoordinationMetrics) SessionExpired() { m.sessionsExpired.Inc() }

func (m *CoordinationMetrics) SetActiveSessions(n int) { m.activeSessions.Set(float64(n)) }
func (m *CoordinationMetrics) SetOpenNodes(n int)      { m.openNodes.Set(float64(n)) }
func (m *CoordinationMetrics) SetOpenHandles(n int)    { m.openHandles.Set(float64(n)) }

func (m *CoordinationMetrics) LockGranted(mode string, promoted bool) {
	path := "immediate"
	if promoted {
		path = "promoted"
	}
	m.locksGranted.WithLabelValues(mode, path).Inc()
}

func (m *CoordinationMetrics) LockQueued(mode string) {
	m.locksQueued.WithLabelValues(mode).Inc()
}

func (m *CoordinationMetrics) NotificationsEnqueued(n int) {
	m.notifsEnqueued.Add(float64(n))
}

func (m *CoordinationMetrics) NotificationsAcked(n int) {
	m.notifsAcked.Add(float64(n))
}

func (m *CoordinationMetrics) RecordOperation(op string, duration time.Duration, errorCode string) {
	m.opDuration.WithLabelValues(op, errorCode).Observe(duration.Seconds())
}

// CommitLogMetrics is the prometheus implementation of
// metrics.CommitLogMetrics.
type CommitLogMetrics struct {
	fragmentsScanned prometheus.Counter
	fragmentsSkipped prometheus.Counter
	blocksRead       *prometheus.CounterVec
	bytesInflated    prometheus.Counter
	readErrors       *prometheus.CounterVec
}

// NewCommitLogMetrics registers and returns commit-log collectors.
func NewCommitLogMetrics(reg prometheus.Registerer) *CommitLogMetrics {
	m := &CommitLogMetrics{
		fragmentsScanned: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "commitlog_fragments_scanned_total",
			Help: "Fragments discovered in log directories.",
		}),
		fragmentsSkipped: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "commitlog_fragments_skipped_total",
			Help: "Fragments skipped by the replay cutoff.",
		}),
		blocksRead: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "commitlog_blocks_read_total",
			Help: "Blocks decompressed, by codec.",
		}, []string{"codec"}),
		bytesInflated: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "commitlog_bytes_inflated_total",
			Help: "Total uncompressed payload bytes produced.",
		}),
		readErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "commitlog_read_errors_total",
			Help: "Reader errors by kind.",
		}, []string{"kind"}),
	}

	reg.MustRegister(
		m.fragmentsScanned, m.fragmentsSkipped, m.blocksRead,
		m.bytesInflated, m.readErrors,
	)
	return m
}

func (m *CommitLogMetrics) FragmentsScanned(n int) { m.fragmentsScanned.Add(float64(n)) }
func (m *CommitLogMetrics) FragmentsSkipped(n int) { m.fragmentsSkipped.Add(float64(n)) }

func (m *CommitLogMetrics) BlockRead(codec string, uncompressedBytes int) {
	m.blocksRead.WithLabelValues(codec).Inc()
	m.bytesInflated.Add(float64(uncompressedBytes))
}

func (m *CommitLogMetrics) ReadError(kind string) {
	m.readErrors.WithLabelValues(kind).Inc()
}
