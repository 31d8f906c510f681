package hyperspace

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEventAckWakesWaiter(t *testing.T) {
	t.Parallel()

	ev := newLockReleasedEvent(1)
	ev.retain()
	ev.retain()
	require.Equal(t, 2, ev.Outstanding())

	done := make(chan struct{})
	go func() {
		ev.WaitForAcks()
		close(done)
	}()

	ev.Ack()
	select {
	case <-done:
		t.Fatal("waiter woke before all acknowledgements")
	case <-time.After(20 * time.Millisecond):
	}

	ev.Ack()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("waiter not woken after final acknowledgement")
	}
	assert.Equal(t, 0, ev.Outstanding())
}

func TestEventWaitWithNoRecipients(t *testing.T) {
	t.Parallel()

	ev := newLockAcquiredEvent(2, LockModeShared)

	done := make(chan struct{})
	go func() {
		ev.WaitForAcks()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("wait with zero outstanding must return immediately")
	}
}

func TestEventExtraAckIgnored(t *testing.T) {
	t.Parallel()

	ev := newLockReleasedEvent(3)
	ev.retain()
	ev.Ack()
	ev.Ack() // no underflow
	assert.Equal(t, 0, ev.Outstanding())
}
