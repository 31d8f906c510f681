package hyperspace

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// recordingPusher captures keepalive notification flushes.
type recordingPusher struct {
	mu     sync.Mutex
	pushes map[SessionID][][]*Notification
}

func newRecordingPusher() *recordingPusher {
	return &recordingPusher{pushes: make(map[SessionID][][]*Notification)}
}

func (p *recordingPusher) PushNotifications(session *Session, notifications []*Notification) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.pushes[session.ID] = append(p.pushes[session.ID], notifications)
}

func (p *recordingPusher) pushCount(id SessionID) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.pushes[id])
}

func (p *recordingPusher) lastPush(id SessionID) []*Notification {
	p.mu.Lock()
	defer p.mu.Unlock()
	batches := p.pushes[id]
	if len(batches) == 0 {
		return nil
	}
	return batches[len(batches)-1]
}

func TestKeepaliveExpiresSessionAndHandsOffLock(t *testing.T) {
	t.Parallel()
	m := newTestMaster(t)

	s1 := m.CreateSession("dying")
	s2 := m.CreateSession("waiting")

	h1, _, err := m.Open(s1, "/c", lockFlags|OpenFlagCreate, 0)
	require.NoError(t, err)
	h2, _, err := m.Open(s2, "/c", lockFlags, EventMaskLockGranted)
	require.NoError(t, err)

	res, err := m.Lock(s1, h1, LockModeExclusive, false)
	require.NoError(t, err)
	require.Equal(t, LockStatusGranted, res.Status)
	g0 := res.Generation

	res, err = m.Lock(s2, h2, LockModeExclusive, false)
	require.NoError(t, err)
	require.Equal(t, LockStatusPending, res.Status)

	// Keep s2 alive well past the tick time; s1 never renews.
	require.NoError(t, m.Sessions().Renew(s2, time.Now().Add(10*time.Minute)))

	keepalive := NewKeepaliveService(m, nil, time.Second)
	keepalive.Tick(time.Now().Add(2 * time.Minute))

	assert.Nil(t, m.Sessions().Lookup(s1))
	require.NotNil(t, m.Sessions().Lookup(s2))

	node := m.Nodes().Lookup("/c")
	require.NotNil(t, node)
	assert.Equal(t, LockModeExclusive, node.CurrentLockMode())
	assert.Equal(t, g0+1, node.LockGeneration())
	assert.Equal(t, g0+1, diskLockGeneration(t, m, "/c"))
	assert.Contains(t, eventKinds(m.Sessions().Lookup(s2)), EventLockGranted)

	// The dead session's handles are gone.
	assert.Nil(t, m.Handles().Lookup(h1))
}

func TestKeepaliveRemovesExpiredWaiterFromQueue(t *testing.T) {
	t.Parallel()
	m := newTestMaster(t)

	holder := m.CreateSession("holder")
	waiter := m.CreateSession("waiter")

	hh, _, err := m.Open(holder, "/w", lockFlags|OpenFlagCreate, 0)
	require.NoError(t, err)
	wh, _, err := m.Open(waiter, "/w", lockFlags, 0)
	require.NoError(t, err)

	_, err = m.Lock(holder, hh, LockModeExclusive, false)
	require.NoError(t, err)
	res, err := m.Lock(waiter, wh, LockModeExclusive, false)
	require.NoError(t, err)
	require.Equal(t, LockStatusPending, res.Status)

	require.NoError(t, m.Sessions().Renew(holder, time.Now().Add(10*time.Minute)))

	m.RemoveExpiredSessions(time.Now().Add(2 * time.Minute))

	// The dead waiter no longer sits in the pending queue, so releasing
	// leaves the node unlocked.
	node := m.Nodes().Lookup("/w")
	assert.Equal(t, 0, node.PendingLockRequests())

	require.NoError(t, m.Release(holder, hh))
	assert.Equal(t, LockModeNone, node.CurrentLockMode())
}

func TestKeepalivePushesPendingNotifications(t *testing.T) {
	t.Parallel()
	m := newTestMaster(t)

	pusher := newRecordingPusher()
	keepalive := NewKeepaliveService(m, pusher, time.Second)

	watcher := m.CreateSession("watcher")
	actor := m.CreateSession("actor")

	_, _, err := m.Open(watcher, "/", OpenFlagRead, EventMaskChildNodeAdded)
	require.NoError(t, err)
	require.NoError(t, m.Mkdir(actor, "/child"))

	keepalive.Tick(time.Now())
	require.Equal(t, 1, pusher.pushCount(watcher))

	batch := pusher.lastPush(watcher)
	require.Len(t, batch, 1)
	assert.Equal(t, EventChildAdded, batch[0].Event.Kind)

	// Unacknowledged notifications are flushed again next tick.
	keepalive.Tick(time.Now())
	assert.Equal(t, 2, pusher.pushCount(watcher))

	// After acknowledgement the queue drains and pushes stop.
	require.NoError(t, m.AcknowledgeNotifications(watcher, batch[0].Event.ID))
	keepalive.Tick(time.Now())
	assert.Equal(t, 2, pusher.pushCount(watcher))
	assert.Equal(t, 0, batch[0].Event.Outstanding())
}

func TestKeepaliveRunStopsOnCancel(t *testing.T) {
	t.Parallel()
	m := newTestMaster(t)

	keepalive := NewKeepaliveService(m, nil, 5*time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		keepalive.Run(ctx)
		close(done)
	}()

	time.Sleep(20 * time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("keepalive loop did not stop on context cancellation")
	}
}
