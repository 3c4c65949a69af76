package session

import "time"

// pendingFrame accumulates segments for one not-yet-complete inbound
// frame.
type pendingFrame struct {
	seqLen uint8
	end    bool
	have   []bool
	data   [][]byte
	n      int
}

func newPendingFrame(flags SeqFlags) *pendingFrame {
	seqLen := uint8(flags.Len())
	return &pendingFrame{
		seqLen: seqLen,
		end:    flags.End(),
		have:   make([]bool, seqLen),
		data:   make([][]byte, seqLen),
	}
}

func (p *pendingFrame) add(seg Segment) {
	if int(seg.SeqIdx) >= int(p.seqLen) || p.have[seg.SeqIdx] {
		return
	}
	p.have[seg.SeqIdx] = true
	p.data[seg.SeqIdx] = seg.Data
	p.n++
}

func (p *pendingFrame) complete() bool {
	return p.n == int(p.seqLen)
}

func (p *pendingFrame) assemble() []byte {
	total := 0
	for _, d := range p.data {
		total += len(d)
	}
	out := make([]byte, 0, total)
	for _, d := range p.data {
		out = append(out, d...)
	}
	return out
}

// Reassembler collects incoming segments into complete frames and
// releases them to the application strictly in frame_id order (spec.md
// section 4.H: "completed frames are released ... in frame_id order").
// A complete frame that arrives out of order is held until its
// predecessor(s) arrive or a stall timeout expires, at which point the
// stalled frame id is surfaced to the caller as a gap so the application
// can make progress instead of stalling forever on a dropped datagram.
type Reassembler struct {
	stallTimeout time.Duration

	next      FrameID // next frame id expected to be released
	pending   map[FrameID]*pendingFrame
	complete  map[FrameID]completedFrame
	blockedAt time.Time // when r.next first became the head with a later frame already complete
}

// completedFrame is a fully reassembled frame awaiting in-order release.
type completedFrame struct {
	data []byte
	end  bool
}

// NewReassembler builds a reassembler expecting frame ids starting at 1
// (frame id 0 is reserved, spec.md section 3), surfacing a gap if the
// next expected frame hasn't completed within stallTimeout of the oldest
// waiting completed frame.
func NewReassembler(stallTimeout time.Duration) *Reassembler {
	return &Reassembler{
		stallTimeout: stallTimeout,
		next:         1,
		pending:      make(map[FrameID]*pendingFrame),
		complete:     make(map[FrameID]completedFrame),
	}
}

// Delivery is one frame released to the application, either with data or
// as a surfaced gap (Gap == true, Data == nil) once the stall timeout on
// a missing predecessor expires. End marks the session's final frame.
type Delivery struct {
	FrameID FrameID
	Data    []byte
	Gap     bool
	End     bool
}

// Add ingests one received segment and returns every frame now ready for
// in-order delivery (possibly none, possibly several if later frames were
// already complete and waiting on this one).
func (r *Reassembler) Add(seg Segment, now time.Time) []Delivery {
	p, ok := r.pending[seg.FrameID]
	if !ok {
		if _, already := r.complete[seg.FrameID]; already {
			return nil
		}
		p = newPendingFrame(seg.SeqFlags)
		r.pending[seg.FrameID] = p
	}
	p.add(seg)

	if p.complete() {
		r.complete[seg.FrameID] = completedFrame{data: p.assemble(), end: p.end}
		delete(r.pending, seg.FrameID)
	}

	return r.drain(now)
}

// Tick re-checks the stall timeout without ingesting a new segment,
// returning any frames that can now be released (including gaps).
func (r *Reassembler) Tick(now time.Time) []Delivery {
	return r.drain(now)
}

// drain releases every frame at r.next in order, and if r.next itself is
// not yet complete but has been outstanding longer than stallTimeout
// while a later frame already completed, surfaces it as a gap and skips
// past it.
func (r *Reassembler) drain(now time.Time) []Delivery {
	var out []Delivery
	for {
		if cf, ok := r.complete[r.next]; ok {
			out = append(out, Delivery{FrameID: r.next, Data: cf.data, End: cf.end})
			delete(r.complete, r.next)
			r.next++
			r.blockedAt = time.Time{}
			continue
		}

		if !r.hasLaterComplete() {
			r.blockedAt = time.Time{}
			break
		}
		if r.blockedAt.IsZero() {
			r.blockedAt = now
			break
		}
		if now.Sub(r.blockedAt) < r.stallTimeout {
			break
		}

		delete(r.pending, r.next)
		out = append(out, Delivery{FrameID: r.next, Gap: true})
		r.next++
		r.blockedAt = time.Time{}
	}
	return out
}

// hasLaterComplete reports whether some frame id greater than r.next has
// already fully reassembled, meaning r.next is the thing standing between
// the application and forward progress.
func (r *Reassembler) hasLaterComplete() bool {
	for id := range r.complete {
		if id > r.next {
			return true
		}
	}
	return false
}
