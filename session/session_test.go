package session

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func testConfig() Config {
	cfg := DefaultConfig(100)
	cfg.MaxRetries = 2
	cfg.BaseRetryDelay = time.Millisecond
	cfg.StallTimeout = 50 * time.Millisecond
	cfg.FlowControlWindow = 4
	cfg.MaxConsecutiveDrops = 3
	return cfg
}

type capturingTransmit struct {
	mu   sync.Mutex
	sent []Segment
	fail bool
}

func (c *capturingTransmit) send(seg Segment) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.fail {
		return errTransmitFailed
	}
	c.sent = append(c.sent, seg)
	return nil
}

func (c *capturingTransmit) segments() []Segment {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]Segment, len(c.sent))
	copy(out, c.sent)
	return out
}

var errTransmitFailed = errors.New("transmit failed")

func mustSeqFlags(n int, end bool) SeqFlags {
	f, err := NewSeqFlags(n, end)
	if err != nil {
		panic(err)
	}
	return f
}

func TestSessionWriteTransmitsSegmentsAndSchedulesRetry(t *testing.T) {
	tx := &capturingTransmit{}
	s := New(testConfig(), tx.send)

	require.NoError(t, s.Write([]byte("hello world, this is a short message"), false))

	sent := tx.segments()
	require.NotEmpty(t, sent)
	require.Equal(t, FrameID(1), sent[0].FrameID)
	require.Equal(t, 1, s.retries.len())
	require.Equal(t, 1, s.inFlight)
}

func TestSessionReceiveSegmentDeliversInOrder(t *testing.T) {
	tx := &capturingTransmit{}
	s := New(testConfig(), tx.send)

	s.ReceiveSegment(Segment{FrameID: 1, SeqFlags: mustSeqFlags(1, false), SeqIdx: 0, Data: []byte("abc")}, time.Now())

	select {
	case d := <-s.Deliveries():
		require.Equal(t, FrameID(1), d.FrameID)
		require.Equal(t, []byte("abc"), d.Data)
	default:
		t.Fatal("expected a delivery")
	}
}

func TestSessionWriteMarksFinalSegmentEndOfSession(t *testing.T) {
	tx := &capturingTransmit{}
	s := New(testConfig(), tx.send)

	require.NoError(t, s.Write([]byte("goodbye"), true))

	sent := tx.segments()
	require.NotEmpty(t, sent)
	require.True(t, sent[len(sent)-1].SeqFlags.End())
}

func TestSessionReceiveAckClearsRetryQueue(t *testing.T) {
	tx := &capturingTransmit{}
	s := New(testConfig(), tx.send)

	require.NoError(t, s.Write([]byte("payload"), false))
	require.Equal(t, 1, s.inFlight)

	s.ReceiveAck(AckBitmap{BaseFrameID: 1, Bits: 1})

	require.Equal(t, 0, s.inFlight)
	require.Equal(t, 0, s.retries.len())
}

func TestSessionWriteRejectsWhenClosed(t *testing.T) {
	tx := &capturingTransmit{}
	s := New(testConfig(), tx.send)
	s.mu.Lock()
	s.state = StateClosed
	s.mu.Unlock()

	err := s.Write([]byte("x"), false)
	require.ErrorIs(t, err, ErrSessionClosed)
}

func TestSessionWriteRejectsWhenFlowControlWindowFull(t *testing.T) {
	tx := &capturingTransmit{}
	cfg := testConfig()
	cfg.FlowControlWindow = 1
	s := New(cfg, tx.send)

	require.NoError(t, s.Write([]byte("first"), false))
	err := s.Write([]byte("second"), false)
	require.Error(t, err)
}

func TestSessionScanOnceDropsFrameAfterExhaustingRetries(t *testing.T) {
	tx := &capturingTransmit{}
	cfg := testConfig()
	cfg.MaxRetries = 1
	s := New(cfg, tx.send)

	require.NoError(t, s.Write([]byte("x"), false))

	now := time.Now()
	// First scan: retry #1 fires.
	s.scanOnce(now.Add(time.Second))
	require.Equal(t, StateActive, s.State())

	// Second scan past the next backoff deadline: retries exhausted,
	// frame dropped, session degraded.
	s.scanOnce(now.Add(time.Hour))
	require.Equal(t, StateDegraded, s.State())
	require.Equal(t, 0, s.inFlight)
}
