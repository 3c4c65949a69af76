package hopr

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/hoprnet/hopr-relay/session"
)

func TestSplitTagPrependTagRoundTrip(t *testing.T) {
	payload := prependTag(tagSessionData, []byte("hello"))

	tag, body, err := splitTag(payload)
	require.NoError(t, err)
	require.Equal(t, tagSessionData, tag)
	require.Equal(t, []byte("hello"), body)
}

func TestSplitTagTooShort(t *testing.T) {
	_, _, err := splitTag([]byte{1, 2, 3})
	require.Error(t, err)
}

func TestSessionStartPayloadRoundTrip(t *testing.T) {
	p := sessionStartPayload{
		SessionID:           42,
		InitialWindow:       1024,
		ReturnPathsCount:    3,
		KeepaliveIntervalMs: 5000,
	}
	copy(p.Pseudonym[:], []byte("abcdefghij"))

	got, err := unmarshalSessionStart(marshalSessionStart(p))
	require.NoError(t, err)
	require.Equal(t, p, got)
}

func TestUnmarshalSessionStartBadLength(t *testing.T) {
	_, err := unmarshalSessionStart([]byte{1, 2, 3})
	require.Error(t, err)
}

func TestSessionDataEnvelopeRoundTrip(t *testing.T) {
	e := sessionDataEnvelope{
		SessionID: 7,
		Kind:      sessionDataKindAck,
		Body:      []byte("ack-body"),
	}
	copy(e.Pseudonym[:], []byte("0123456789"))

	got, err := unmarshalSessionDataEnvelope(marshalSessionDataEnvelope(e))
	require.NoError(t, err)
	require.Equal(t, e, got)
}

func TestUnmarshalSessionDataEnvelopeTooShort(t *testing.T) {
	_, err := unmarshalSessionDataEnvelope([]byte{1, 2})
	require.Error(t, err)
}

func TestSegmentRoundTrip(t *testing.T) {
	flags, err := session.NewSeqFlags(3, true)
	require.NoError(t, err)

	seg := session.Segment{
		FrameID:  99,
		SeqFlags: flags,
		SeqIdx:   2,
		Data:     []byte("segment payload"),
	}

	got, err := unmarshalSegment(marshalSegment(seg))
	require.NoError(t, err)
	require.Equal(t, seg, got)
}

func TestUnmarshalSegmentTooShort(t *testing.T) {
	_, err := unmarshalSegment([]byte{1, 2})
	require.Error(t, err)
}

func TestAckBitmapRoundTrip(t *testing.T) {
	a := session.AckBitmap{BaseFrameID: 17, Bits: 0xF0F0F0F0F0F0F0F0}

	got, err := unmarshalAckBitmap(marshalAckBitmap(a))
	require.NoError(t, err)
	require.Equal(t, a, got)
}

func TestUnmarshalAckBitmapBadLength(t *testing.T) {
	_, err := unmarshalAckBitmap([]byte{1, 2, 3})
	require.Error(t, err)
}
