package packet

import (
	"crypto/rand"
	"crypto/subtle"

	"github.com/hoprnet/hopr-relay/hoprcrypto"
	"github.com/hoprnet/hopr-relay/ticket"
)

// DecodedKind classifies the result of Decode.
type DecodedKind int

const (
	// KindFinal: this node is the packet's final destination; Payload
	// holds the recovered application plaintext.
	KindFinal DecodedKind = iota
	// KindForwarded: this node is a relay; call Reencode with a fresh
	// ticket to produce the OutgoingPacket for NextHop.
	KindForwarded
)

// Decoded is the result of successfully decoding one packet layer.
type Decoded struct {
	Kind DecodedKind

	// Tag is the replay-filter tag for this hop's shared secret; the
	// caller must check-and-insert it into the replay filter (component
	// D) before acting on anything else in Decoded, and must do so
	// before relaying or delivering (spec.md section 8: "a replayed
	// packet tag is rejected before any relay or delivery effect").
	Tag [hoprcrypto.TagSize]byte

	// OwnKeyShare is this hop's deterministic contribution to the
	// acknowledgement for the ticket it just consumed (nil for
	// KindFinal, which has no ticket to acknowledge).
	OwnKeyShare *hoprcrypto.HalfKey

	// Ticket is the signed ticket this hop received, parsed from the
	// packet but not verified by Decode; nil for KindFinal.
	Ticket *ticket.SignedTicket

	// NextHop is who to forward to, valid only for KindForwarded.
	NextHop PeerID

	// Payload is the recovered application plaintext, valid only for
	// KindFinal.
	Payload []byte

	// remaining carries the partially-peeled body/header state needed
	// by Reencode; opaque to callers.
	remaining decodedRemainder
}

type decodedRemainder struct {
	ephemeralQueue [MaxHops][32]byte
	fieldQueue     [MaxHops][hopFieldSize]byte
	body           []byte
}

// Decode peels exactly one onion layer using key's static private key,
// classifying the result as Final or Forwarded. It never mutates its
// input; replay/ticket side effects are the caller's responsibility once
// it has inspected Decoded.Tag.
func Decode(data [PacketWireSize]byte, key *hoprcrypto.OffchainKey) (Decoded, error) {
	var ephemeralQueue [MaxHops][32]byte
	var fieldQueue [MaxHops][hopFieldSize]byte
	off := 0
	for i := range ephemeralQueue {
		copy(ephemeralQueue[i][:], data[off:off+32])
		off += 32
	}
	for i := range fieldQueue {
		copy(fieldQueue[i][:], data[off:off+hopFieldSize])
		off += hopFieldSize
	}
	var issuerEph [32]byte
	copy(issuerEph[:], data[off:off+32])
	off += 32
	var ticketWire [ticket.WireSize]byte
	copy(ticketWire[:], data[off:off+ticket.WireSize])
	off += ticket.WireSize
	body := make([]byte, PayloadSize)
	copy(body, data[off:off+PayloadSize])

	shared, err := key.SharedSecretWithPoint(ephemeralQueue[0])
	if err != nil {
		return Decoded{}, err
	}

	tag, err := hoprcrypto.PacketTag(shared)
	if err != nil {
		return Decoded{}, err
	}

	fieldKs, err := hoprcrypto.DeriveKeystream(shared, hopFieldSize)
	if err != nil {
		return Decoded{}, err
	}
	var plain [hopFieldSize]byte
	for i := range plain {
		plain[i] = fieldQueue[0][i] ^ fieldKs[i]
	}

	expectedMAC, err := hoprcrypto.ComputeMAC(shared, plain[:21])
	if err != nil {
		return Decoded{}, err
	}
	if subtle.ConstantTimeCompare(expectedMAC[:], plain[21:37]) != 1 {
		return Decoded{}, ErrInvalidMAC
	}

	bodyKs, err := hoprcrypto.DeriveKeystream(shared, PayloadSize)
	if err != nil {
		return Decoded{}, err
	}
	for i := range body {
		body[i] ^= bodyKs[i]
	}

	flag := plain[0]
	var nextHopID PeerID
	copy(nextHopID[:], plain[1:21])

	// Shift both onion queues left, dropping hop 0's now-consumed
	// entries and padding the tail so the packet stays fixed-size on
	// forwarding.
	var remEphemeral [MaxHops][32]byte
	var remField [MaxHops][hopFieldSize]byte
	copy(remEphemeral[:MaxHops-1], ephemeralQueue[1:])
	copy(remField[:MaxHops-1], fieldQueue[1:])
	if err := rand.Read(remEphemeral[MaxHops-1][:]); err != nil {
		return Decoded{}, err
	}
	if _, err := rand.Read(remField[MaxHops-1][:]); err != nil {
		return Decoded{}, err
	}

	if flag == hopFlagFinal {
		return Decoded{
			Kind:    KindFinal,
			Tag:     tag,
			Payload: trimPadding(body),
		}, nil
	}

	st, err := ticket.UnmarshalFixed(ticketWire[:])
	if err != nil {
		return Decoded{}, ErrInvalidTicket
	}

	// This hop's acknowledgement half-key share comes from a dedicated
	// exchange against the issuer's ticket ephemeral key, not from the
	// onion queue's shared secret: the onion queue was populated
	// entirely by the original sender, so a hop has no way to recompute
	// what a *relay* minting a fresh ticket derived independently (see
	// mintTicket for the corresponding issuer-side derivation).
	ackSecret, err := key.SharedSecretWithPoint(issuerEph)
	if err != nil {
		return Decoded{}, err
	}
	ackShare := deriveAckKeyShare(ackSecret)

	return Decoded{
		Kind:        KindForwarded,
		Tag:         tag,
		OwnKeyShare: &ackShare,
		Ticket:      &st,
		NextHop:     nextHopID,
		remaining: decodedRemainder{
			ephemeralQueue: remEphemeral,
			fieldQueue:     remField,
			body:           body,
		},
	}, nil
}

// trimPadding drops the zero tail a final hop's recovered plaintext
// carries beyond the caller's original payload length. Callers that
// embed length-prefixed application framing (component H's session
// layer) do not need this; it exists for direct/NoAck sends where the
// payload has no other length delimiter.
func trimPadding(body []byte) []byte {
	i := len(body)
	for i > 0 && body[i-1] == 0 {
		i--
	}
	return body[:i]
}

// Reencode builds the OutgoingPacket a relay hands to NextHop, embedding
// a freshly minted ticket for that hop. remainingHops is how many
// forward-hops stand between NextHop and the final destination, as
// recovered from the ticket this relay just redeemed for itself
// (ticket.PathPosition) rather than carried anywhere in the wire format
// (spec.md section 4.C). Must only be called on a Decoded with
// Kind == KindForwarded.
func Reencode(d Decoded, issuer TicketIssuer, nextHopPub hoprcrypto.OffchainPublicKey, remainingHops uint8) (OutgoingPacket, error) {
	if d.Kind != KindForwarded {
		return OutgoingPacket{}, ErrInvalidState
	}

	own, err := hoprcrypto.GenerateHalfKey()
	if err != nil {
		return OutgoingPacket{}, err
	}
	m, err := mintTicket(nextHopPub, own, remainingHops, issuer)
	if err != nil {
		return OutgoingPacket{}, err
	}

	var out OutgoingPacket
	out.NextHop = d.NextHop
	out.AckChallenge = m.ackChallenge
	out.IssuedHalfKey = &own

	rem := d.remaining
	off := 0
	for _, e := range rem.ephemeralQueue {
		copy(out.Data[off:], e[:])
		off += 32
	}
	for _, f := range rem.fieldQueue {
		copy(out.Data[off:], f[:])
		off += hopFieldSize
	}
	copy(out.Data[off:], m.issuerEph[:])
	off += 32
	copy(out.Data[off:], m.wire[:])
	off += ticket.WireSize
	copy(out.Data[off:], rem.body)

	return out, nil
}

// EncodeWithSurb builds an OutgoingPacket from a previously stored Surb,
// masking payload with the SURB's body keystream. The caller (session
// layer or ack path) supplies payload already framed/sized as needed;
// it must not exceed PayloadSize.
func EncodeWithSurb(s Surb, payload []byte) (OutgoingPacket, error) {
	if len(payload) > PayloadSize {
		return OutgoingPacket{}, ErrPayloadTooLarge
	}
	mask, err := s.BodyMask()
	if err != nil {
		return OutgoingPacket{}, err
	}
	body := make([]byte, PayloadSize)
	copy(body, payload)
	for i := range body {
		body[i] ^= mask[i]
	}

	var out OutgoingPacket
	out.NextHop = s.FirstHop
	off := 0
	for _, e := range s.EphemeralPubKeys {
		copy(out.Data[off:], e[:])
		off += 32
	}
	for _, f := range s.EncryptedFields {
		copy(out.Data[off:], f[:])
		off += hopFieldSize
	}
	copy(out.Data[off:], s.TicketIssuerEph[:])
	off += 32
	copy(out.Data[off:], s.Ticket[:])
	off += ticket.WireSize
	copy(out.Data[off:], body)

	return out, nil
}
