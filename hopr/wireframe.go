package hopr

import (
	"encoding/binary"
	"fmt"

	"github.com/hoprnet/hopr-relay/session"
)

// Reserved application tags (spec.md section 6: "Tags 0..=15 are
// reserved"). Only ping and session-start are named by spec.md directly;
// tagSessionData is this node's own choice of where session frames and
// ack bitmaps ride within the reserved range, since spec.md names no tag
// for steady-state session traffic.
const (
	tagPing         uint64 = 0
	tagSessionStart uint64 = 1
	tagSessionData  uint64 = 2
	tagUndefined    uint64 = 15
)

const tagSize = 8

// splitTag peels the 8-byte big-endian tag prefix spec.md section 6
// defines for every decoded application payload.
func splitTag(payload []byte) (uint64, []byte, error) {
	if len(payload) < tagSize {
		return 0, nil, fmt.Errorf("hopr: payload shorter than tag prefix")
	}
	return binary.BigEndian.Uint64(payload[:tagSize]), payload[tagSize:], nil
}

func prependTag(tag uint64, body []byte) []byte {
	out := make([]byte, tagSize+len(body))
	binary.BigEndian.PutUint64(out[:tagSize], tag)
	copy(out[tagSize:], body)
	return out
}

// sessionStartPayload is the tag-1 control payload spec.md section 6
// names: `{session_id, initial_window, return_paths_count,
// keepalive_interval_ms}`, prefixed here with the pseudonym the reply
// path (and every subsequent session-data frame) is keyed under.
type sessionStartPayload struct {
	Pseudonym           [10]byte
	SessionID           uint64
	InitialWindow       uint32
	ReturnPathsCount    uint8
	KeepaliveIntervalMs uint32
}

const sessionStartWireSize = 10 + 8 + 4 + 1 + 4

func marshalSessionStart(p sessionStartPayload) []byte {
	out := make([]byte, sessionStartWireSize)
	off := 0
	copy(out[off:], p.Pseudonym[:])
	off += 10
	binary.BigEndian.PutUint64(out[off:], p.SessionID)
	off += 8
	binary.BigEndian.PutUint32(out[off:], p.InitialWindow)
	off += 4
	out[off] = p.ReturnPathsCount
	off++
	binary.BigEndian.PutUint32(out[off:], p.KeepaliveIntervalMs)
	return out
}

func unmarshalSessionStart(b []byte) (sessionStartPayload, error) {
	if len(b) != sessionStartWireSize {
		return sessionStartPayload{}, fmt.Errorf("hopr: bad session-start payload length %d", len(b))
	}
	var p sessionStartPayload
	off := 0
	copy(p.Pseudonym[:], b[off:off+10])
	off += 10
	p.SessionID = binary.BigEndian.Uint64(b[off:])
	off += 8
	p.InitialWindow = binary.BigEndian.Uint32(b[off:])
	off += 4
	p.ReturnPathsCount = b[off]
	off++
	p.KeepaliveIntervalMs = binary.BigEndian.Uint32(b[off:])
	return p, nil
}

const (
	sessionDataKindSegment uint8 = 0
	sessionDataKindAck     uint8 = 1
)

// sessionDataEnvelope wraps a session.Segment or session.AckBitmap for
// the steady-state session-data tag, demultiplexed by pseudonym+session
// id at the ingress loop.
type sessionDataEnvelope struct {
	Pseudonym [10]byte
	SessionID uint64
	Kind      uint8
	Body      []byte
}

const sessionDataHeaderSize = 10 + 8 + 1

func marshalSessionDataEnvelope(e sessionDataEnvelope) []byte {
	out := make([]byte, sessionDataHeaderSize+len(e.Body))
	off := 0
	copy(out[off:], e.Pseudonym[:])
	off += 10
	binary.BigEndian.PutUint64(out[off:], e.SessionID)
	off += 8
	out[off] = e.Kind
	off++
	copy(out[off:], e.Body)
	return out
}

func unmarshalSessionDataEnvelope(b []byte) (sessionDataEnvelope, error) {
	if len(b) < sessionDataHeaderSize {
		return sessionDataEnvelope{}, fmt.Errorf("hopr: session-data envelope too short")
	}
	var e sessionDataEnvelope
	off := 0
	copy(e.Pseudonym[:], b[off:off+10])
	off += 10
	e.SessionID = binary.BigEndian.Uint64(b[off:])
	off += 8
	e.Kind = b[off]
	off++
	e.Body = b[off:]
	return e, nil
}

const segmentHeaderSize = 4 + 1 + 1

// marshalSegment writes a session.Segment per the exact wire layout
// spec.md section 6 gives: `{frame_id: u32 be, seq_flags: u8, seq_idx:
// u8, data}`.
func marshalSegment(seg session.Segment) []byte {
	out := make([]byte, segmentHeaderSize+len(seg.Data))
	binary.BigEndian.PutUint32(out[0:4], uint32(seg.FrameID))
	out[4] = byte(seg.SeqFlags)
	out[5] = seg.SeqIdx
	copy(out[segmentHeaderSize:], seg.Data)
	return out
}

func unmarshalSegment(b []byte) (session.Segment, error) {
	if len(b) < segmentHeaderSize {
		return session.Segment{}, fmt.Errorf("hopr: segment shorter than header")
	}
	data := make([]byte, len(b)-segmentHeaderSize)
	copy(data, b[segmentHeaderSize:])
	return session.Segment{
		FrameID:  session.FrameID(binary.BigEndian.Uint32(b[0:4])),
		SeqFlags: session.SeqFlags(b[4]),
		SeqIdx:   b[5],
		Data:     data,
	}, nil
}

const ackBitmapWireSize = 4 + 8

func marshalAckBitmap(a session.AckBitmap) []byte {
	out := make([]byte, ackBitmapWireSize)
	binary.BigEndian.PutUint32(out[0:4], uint32(a.BaseFrameID))
	binary.BigEndian.PutUint64(out[4:12], a.Bits)
	return out
}

func unmarshalAckBitmap(b []byte) (session.AckBitmap, error) {
	if len(b) != ackBitmapWireSize {
		return session.AckBitmap{}, fmt.Errorf("hopr: bad ack bitmap length %d", len(b))
	}
	return session.AckBitmap{
		BaseFrameID: session.FrameID(binary.BigEndian.Uint32(b[0:4])),
		Bits:        binary.BigEndian.Uint64(b[4:12]),
	}, nil
}
