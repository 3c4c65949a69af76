package session

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestNextDeadlineWithBackoffGrowsExponentially(t *testing.T) {
	base := time.Now()
	d0 := nextDeadlineWithBackoff(base, 0, time.Second)
	d1 := nextDeadlineWithBackoff(base, 1, time.Second)
	d2 := nextDeadlineWithBackoff(base, 2, time.Second)

	require.Equal(t, 2*time.Second, d0.Sub(base))
	require.Equal(t, 4*time.Second, d1.Sub(base))
	require.Equal(t, 8*time.Second, d2.Sub(base))
}

func TestRetryQueueDueReschedulesUntilMaxRetries(t *testing.T) {
	q := newRetryQueue(2)
	now := time.Now()
	q.schedule(now, 5, []Segment{{FrameID: 5}}, time.Second)

	// First scan before the deadline: nothing due yet.
	retransmit, dropped := q.due(now, time.Second)
	require.Empty(t, retransmit)
	require.Empty(t, dropped)

	// Advance past the first deadline (now + 1s*2^1 = now+2s).
	t1 := now.Add(2 * time.Second)
	retransmit, dropped = q.due(t1, time.Second)
	require.Len(t, retransmit, 1)
	require.Empty(t, dropped)
	require.Equal(t, 1, q.len())

	// Advance past the second deadline (t1 + 1s*2^2 = t1+4s).
	t2 := t1.Add(4 * time.Second)
	retransmit, dropped = q.due(t2, time.Second)
	require.Len(t, retransmit, 1)
	require.Empty(t, dropped)

	// A third due scan exceeds maxRetries (2): the frame is dropped.
	t3 := t2.Add(8 * time.Second)
	retransmit, dropped = q.due(t3, time.Second)
	require.Empty(t, retransmit)
	require.Equal(t, []FrameID{5}, dropped)
	require.Equal(t, 0, q.len())
}

func TestRetryQueueAckRemovesFrame(t *testing.T) {
	q := newRetryQueue(3)
	now := time.Now()
	q.schedule(now, 1, []Segment{{FrameID: 1}}, time.Second)
	q.schedule(now, 2, []Segment{{FrameID: 2}}, time.Second)
	require.Equal(t, 2, q.len())

	q.ack(1)
	require.Equal(t, 1, q.len())

	retransmit, dropped := q.due(now.Add(time.Hour), time.Second)
	require.Len(t, retransmit, 1)
	require.Empty(t, dropped)
}

func TestRetryQueueOrdersByDeadline(t *testing.T) {
	q := newRetryQueue(1)
	now := time.Now()
	// Schedule frame 2 first with a longer delay, then frame 1 with a
	// shorter one; once frame 1's deadline has passed due() returns it,
	// and frame 2 does not fire before its own deadline.
	q.schedule(now, 2, []Segment{{FrameID: 2}}, 10*time.Second)
	q.schedule(now, 1, []Segment{{FrameID: 1}}, time.Second)

	retransmit, dropped := q.due(now.Add(3*time.Second), time.Second)
	require.Empty(t, dropped)
	require.Len(t, retransmit, 1)
	require.Equal(t, FrameID(1), retransmit[0][0].FrameID)
}
