package session

import (
	"fmt"
	"sync"
	"time"

	"github.com/btcsuite/btclog"
	"github.com/lightningnetwork/lnd/ticker"
)

// log is the package-scoped logger, wired in via UseLogger the same way
// every other package in this module exposes one.
var log = btclog.Disabled

// UseLogger installs a logger for the session package.
func UseLogger(l btclog.Logger) {
	log = l
}

// Config bounds one session's framing, retry, and flow-control behavior.
type Config struct {
	MaxSegmentSize int
	MaxRetries     int
	BaseRetryDelay time.Duration
	StallTimeout   time.Duration
	RetryScan      time.Duration
	// FlowControlWindow caps the number of frames the sender may have
	// outstanding (sent but not yet acknowledged) at once.
	FlowControlWindow int
	// MaxConsecutiveDrops closes the session once this many frames in a
	// row are dropped after exhausting their retries (spec.md section
	// 4.H: "on N consecutive drops the session is closed").
	MaxConsecutiveDrops int
}

// DefaultConfig mirrors the defaults implied by spec.md section 4.H and
// the packet payload budget: MaxSegmentSize leaves room for a frame
// header (frame id + seq len + seq idx) inside one Sphinx application
// payload.
func DefaultConfig(payloadSize int) Config {
	return Config{
		MaxSegmentSize:      payloadSize - 6,
		MaxRetries:          5,
		BaseRetryDelay:      500 * time.Millisecond,
		StallTimeout:        3 * time.Second,
		RetryScan:           100 * time.Millisecond,
		FlowControlWindow:   64,
		MaxConsecutiveDrops: 8,
	}
}

// Degraded is set once a frame exhausts its retries; the session is
// still usable but has lost data. Closed means the session has given up
// after MaxConsecutiveDrops.
type State int

const (
	StateActive State = iota
	StateDegraded
	StateClosed
)

// ErrSessionClosed is returned by Write once the session has given up.
var ErrSessionClosed = fmt.Errorf("session: closed after too many consecutive frame drops")

// Transmit is the outbound side's sink: send one segment as a single
// packet toward the session's peer. The session layer neither knows nor
// cares how the packet gets there (Sphinx encoding, SURB attachment, and
// wire delivery are the caller's concern, composed in at the top-level
// node).
type Transmit func(seg Segment) error

// Session multiplexes one reliable byte stream over single-packet
// datagrams: outbound segmentation, selective retransmission, inbound
// reassembly, and ack-bitmap exchange (spec.md section 4.H).
type Session struct {
	cfg Config

	mu          sync.Mutex
	state       State
	nextFrameID FrameID
	inFlight    int
	retries     *retryQueue
	consecutive int
	transmit    Transmit

	reassembler *Reassembler
	ackWindow   *ackWindow

	tkr      ticker.Ticker
	quit     chan struct{}
	wg       sync.WaitGroup
	deliverC chan Delivery
}

// New builds a session ready to send and receive; callers must call
// Start to begin the retry/stall-timeout scan loop and Close to tear it
// down.
func New(cfg Config, transmit Transmit) *Session {
	return &Session{
		cfg:         cfg,
		nextFrameID: 1,
		retries:     newRetryQueue(cfg.MaxRetries),
		transmit:    transmit,
		reassembler: NewReassembler(cfg.StallTimeout),
		ackWindow:   newAckWindow(),
		tkr:         ticker.New(cfg.RetryScan),
		quit:        make(chan struct{}),
		deliverC:    make(chan Delivery, 256),
	}
}

// Deliveries returns the channel on which reassembled frames (and
// surfaced gaps) are published in frame_id order.
func (s *Session) Deliveries() <-chan Delivery {
	return s.deliverC
}

// Start begins the periodic retry-deadline and stall-timeout scan.
func (s *Session) Start() {
	s.tkr.Resume()
	s.wg.Add(1)
	go s.scanLoop()
}

// Close stops the scan loop; safe to call once.
func (s *Session) Close() {
	close(s.quit)
	s.tkr.Stop()
	s.wg.Wait()
}

func (s *Session) scanLoop() {
	defer s.wg.Done()
	for {
		select {
		case now := <-s.tkr.Ticks():
			s.scanOnce(now)
		case <-s.quit:
			return
		}
	}
}

func (s *Session) scanOnce(now time.Time) {
	s.mu.Lock()
	retransmit, dropped := s.retries.due(now, s.cfg.BaseRetryDelay)
	for range dropped {
		s.inFlight--
		s.consecutive++
		if s.state == StateActive {
			s.state = StateDegraded
			log.Warnf("session: frame dropped after exhausting retries, marking degraded")
		}
	}
	if s.consecutive >= s.cfg.MaxConsecutiveDrops {
		s.state = StateClosed
		log.Errorf("session: closing after %d consecutive frame drops", s.consecutive)
	}
	stateClosed := s.state == StateClosed
	s.mu.Unlock()

	for _, segs := range retransmit {
		for _, seg := range segs {
			if err := s.transmit(seg); err != nil {
				log.Warnf("session: retransmit of frame %d failed: %v", seg.FrameID, err)
			}
		}
	}

	for _, d := range s.reassembler.Tick(now) {
		s.publish(d)
	}

	if stateClosed {
		log.Infof("session: scan loop stopping, session closed")
	}
}

// Write segments data into a fresh frame and transmits it, scheduling
// retransmission. Returns ErrSessionClosed if the session has given up.
// Set end when this write is the last one this session will ever make, so
// its final segment's seq_flags end bit tells the peer's reassembler to
// treat the frame as closing the stream.
func (s *Session) Write(data []byte, end bool) error {
	s.mu.Lock()
	if s.state == StateClosed {
		s.mu.Unlock()
		return ErrSessionClosed
	}
	if s.inFlight >= s.cfg.FlowControlWindow {
		s.mu.Unlock()
		return fmt.Errorf("session: flow control window full")
	}

	frameID := s.nextFrameID
	s.nextFrameID++
	wrapped := s.nextFrameID == 0
	s.mu.Unlock()

	segments, err := SegmentFrame(data, s.cfg.MaxSegmentSize, frameID, end)
	if err != nil {
		return err
	}

	s.mu.Lock()
	s.retries.schedule(time.Now(), frameID, segments, s.cfg.BaseRetryDelay)
	s.inFlight++
	s.mu.Unlock()

	for _, seg := range segments {
		if err := s.transmit(seg); err != nil {
			return fmt.Errorf("session: transmit frame %d: %w", frameID, err)
		}
	}

	if wrapped {
		// The 32-bit frame id space is exhausted: spec.md section 4.H
		// requires closing and reopening under a fresh pseudonym before
		// wraparound, so mark degraded to push the caller toward that.
		s.mu.Lock()
		s.state = StateDegraded
		s.mu.Unlock()
		log.Warnf("session: frame id space exhausted, session must be reopened")
	}

	return nil
}

// ReceiveSegment ingests one inbound segment, acknowledging it in the
// receiver's ack window and publishing any now-deliverable frames.
func (s *Session) ReceiveSegment(seg Segment, now time.Time) {
	s.ackWindow.mark(seg.FrameID)
	for _, d := range s.reassembler.Add(seg, now) {
		s.publish(d)
	}
}

// ReceiveAck applies a peer's ack bitmap, removing every acknowledged
// frame from the retry queue.
func (s *Session) ReceiveAck(ack AckBitmap) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id := range s.retries.byID {
		if ack.Acked(id) {
			s.retries.ack(id)
			s.inFlight--
			s.consecutive = 0
		}
	}
}

// PendingAck returns the ack bitmap to piggyback on the next outgoing
// packet toward this session's peer.
func (s *Session) PendingAck() AckBitmap {
	return s.ackWindow.snapshot()
}

// State returns the session's current health state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *Session) publish(d Delivery) {
	select {
	case s.deliverC <- d:
	case <-s.quit:
	}
}
