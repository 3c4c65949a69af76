package hopr

import (
	"fmt"

	"github.com/hoprnet/hopr-relay/ack"
	"github.com/hoprnet/hopr-relay/hoprcrypto"
)

// ackDatagramSize is the wire length of an acknowledgement datagram:
// the combined half-key challenge this ack resolves, the revealed
// half-key share, and an ed25519 signature over both so a relay can't be
// fed a forged acknowledgement by anyone but the peer it actually
// forwarded to (spec.md section 6 describes the wire type's rough shape
// as "34 B half-key share + 64 B signature"; the Challenge is carried
// explicitly here since the acknowledgement registry's Resolve looks up
// pending entries by Challenge, not by half-key share alone — see
// DESIGN.md).
const ackDatagramSize = hoprcrypto.HalfKeyChallengeSize + hoprcrypto.HalfKeySize + 64

func marshalAckDatagram(a ack.Acknowledgement, sig []byte) []byte {
	out := make([]byte, ackDatagramSize)
	off := 0
	copy(out[off:], a.Challenge.Bytes())
	off += hoprcrypto.HalfKeyChallengeSize
	copy(out[off:], a.KeyShare[:])
	off += hoprcrypto.HalfKeySize
	copy(out[off:], sig)
	return out
}

func unmarshalAckDatagram(b []byte) (ack.Acknowledgement, []byte, error) {
	if len(b) != ackDatagramSize {
		return ack.Acknowledgement{}, nil, fmt.Errorf("hopr: bad acknowledgement datagram length %d", len(b))
	}
	off := 0
	challenge, err := hoprcrypto.ParseHalfKeyChallenge(b[off : off+hoprcrypto.HalfKeyChallengeSize])
	if err != nil {
		return ack.Acknowledgement{}, nil, err
	}
	off += hoprcrypto.HalfKeyChallengeSize
	var share hoprcrypto.HalfKey
	copy(share[:], b[off:off+hoprcrypto.HalfKeySize])
	off += hoprcrypto.HalfKeySize
	sig := make([]byte, 64)
	copy(sig, b[off:])
	return ack.Acknowledgement{Challenge: challenge, KeyShare: share}, sig, nil
}

func signedAckMessage(a ack.Acknowledgement) []byte {
	out := make([]byte, hoprcrypto.HalfKeyChallengeSize+hoprcrypto.HalfKeySize)
	copy(out, a.Challenge.Bytes())
	copy(out[hoprcrypto.HalfKeyChallengeSize:], a.KeyShare[:])
	return out
}
