package session

import (
	"container/heap"
	"time"
)

// backoffFactor is the exponential retry backoff multiplier (spec.md
// section 4.H: "backoff = 2.0").
const backoffFactor = 2.0

// nextDeadlineWithBackoff computes the absolute deadline for retry attempt
// n (0-indexed), mirroring the teacher's clock-injected deadline helpers:
// now + baseDelay * backoff^(n+1).
func nextDeadlineWithBackoff(now time.Time, n int, baseDelay time.Duration) time.Time {
	scale := 1.0
	for i := 0; i < n+1; i++ {
		scale *= backoffFactor
	}
	return now.Add(time.Duration(float64(baseDelay) * scale))
}

// retriedFrame tracks one outstanding, possibly-retried frame awaiting
// acknowledgement.
type retriedFrame struct {
	frameID    FrameID
	retryCount int
	maxRetries int
	deadline   time.Time
	segments   []Segment
	index      int // heap.Interface bookkeeping
}

// next advances the retry count and returns whether a further retry is
// still permitted; the caller is responsible for recomputing the deadline
// with nextDeadlineWithBackoff and re-pushing.
func (f *retriedFrame) next() bool {
	if f.retryCount >= f.maxRetries {
		return false
	}
	f.retryCount++
	return true
}

// retryHeap is a min-heap of retriedFrame ordered by deadline, the Go
// expression of the Rust original's BinaryHeap<RetriedFrameId> retry
// queue (spec.md section 4.H).
type retryHeap []*retriedFrame

func (h retryHeap) Len() int { return len(h) }
func (h retryHeap) Less(i, j int) bool {
	return h[i].deadline.Before(h[j].deadline)
}
func (h retryHeap) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
	h[i].index = i
	h[j].index = j
}

func (h *retryHeap) Push(x any) {
	f := x.(*retriedFrame)
	f.index = len(*h)
	*h = append(*h, f)
}

func (h *retryHeap) Pop() any {
	old := *h
	n := len(old)
	f := old[n-1]
	old[n-1] = nil
	f.index = -1
	*h = old[:n-1]
	return f
}

// retryQueue wraps retryHeap with the operations the session needs:
// scheduling a frame, popping everything due by a given time, and
// removing a frame once it is acknowledged.
type retryQueue struct {
	h      retryHeap
	byID   map[FrameID]*retriedFrame
	maxRet int
}

func newRetryQueue(maxRetries int) *retryQueue {
	q := &retryQueue{byID: make(map[FrameID]*retriedFrame), maxRet: maxRetries}
	heap.Init(&q.h)
	return q
}

// schedule enqueues segments for a freshly sent frame at its first retry
// deadline.
func (q *retryQueue) schedule(now time.Time, frameID FrameID, segments []Segment, baseDelay time.Duration) {
	f := &retriedFrame{
		frameID:    frameID,
		retryCount: 0,
		maxRetries: q.maxRet,
		deadline:   nextDeadlineWithBackoff(now, 0, baseDelay),
		segments:   segments,
	}
	heap.Push(&q.h, f)
	q.byID[frameID] = f
}

// ack removes frameID from the retry queue, called once its ack arrives.
func (q *retryQueue) ack(frameID FrameID) {
	f, ok := q.byID[frameID]
	if !ok {
		return
	}
	delete(q.byID, frameID)
	if f.index >= 0 && f.index < len(q.h) {
		heap.Remove(&q.h, f.index)
	}
}

// due pops every frame whose deadline has passed, reschedules those that
// still have retries left at the next backoff deadline, and returns
// (retransmit, dropped) where dropped frames exceeded maxRetries.
func (q *retryQueue) due(now time.Time, baseDelay time.Duration) (retransmit [][]Segment, dropped []FrameID) {
	for q.h.Len() > 0 && !q.h[0].deadline.After(now) {
		f := heap.Pop(&q.h).(*retriedFrame)
		if !f.next() {
			delete(q.byID, f.frameID)
			dropped = append(dropped, f.frameID)
			continue
		}
		f.deadline = nextDeadlineWithBackoff(now, f.retryCount, baseDelay)
		heap.Push(&q.h, f)
		retransmit = append(retransmit, f.segments)
	}
	return retransmit, dropped
}

func (q *retryQueue) len() int { return q.h.Len() }
