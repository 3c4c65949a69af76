package packet

import (
	"crypto/rand"
	"fmt"

	"github.com/hoprnet/hopr-relay/hoprcrypto"
	"github.com/hoprnet/hopr-relay/ticket"
)

// PacketWireSize is the fixed total length of every packet on the wire:
// the cleartext onion ephemeral-key queue, the onion-encrypted
// routing-info queue, the ticket issuer's ephemeral DH key (see
// mintTicket), one embedded ticket, and the encrypted body.
const PacketWireSize = MaxHops*32 + HeaderSize + 32 + ticket.WireSize + PayloadSize

// TicketIssuer mints the ticket a relay embeds for whichever hop it is
// about to forward to, hiding the channel/amount/win-probability policy
// (ticket.Tracker plus a channel-graph lookup) from the packet codec.
// remainingHops is how many forward-hops stand between nextHop and the
// final destination, used to scale the minted ticket's amount (spec.md
// section 4.C); remainingHops == 1 means nextHop is itself the final
// destination.
type TicketIssuer interface {
	IssueTicket(nextHop hoprcrypto.OffchainPublicKey, remainingHops uint8, challenge hoprcrypto.HalfKeyChallenge) (ticket.SignedTicket, error)
}

// SurbOpener is what a SURB's creator keeps locally, keyed by
// (pseudonym, surb_id), to unmask a reply body once it arrives
// (spec.md section 4.F).
type SurbOpener struct {
	Pseudonym [10]byte
	SurbID    [8]byte
	Secret    [32]byte
}

// OutgoingPacket is the result of Encode: the raw bytes to hand to
// NextHop, plus the acknowledgement challenge the sender (or relay) must
// watch for before considering the ticket it just spent as won or lost.
// IssuedHalfKey is the issuer's own half of that challenge (nil when no
// ticket was minted, e.g. a single-hop direct send): the caller must
// reveal it to NextHop via a companion acknowledgement once the packet
// has been handed off, since NextHop's half alone cannot produce the
// response its ticket needs to redeem.
type OutgoingPacket struct {
	NextHop       PeerID
	AckChallenge  hoprcrypto.HalfKeyChallenge
	IssuedHalfKey *hoprcrypto.HalfKey
	Data          [PacketWireSize]byte
}

// Encode builds an outgoing packet. For Routing.Kind == RoutingSurb, it
// delegates to EncodeWithSurb using the caller-supplied reply block
// (fetched from the SURB store, component F) and returns no openers,
// since a reply carries no further embedded return paths. Otherwise it
// builds an explicit forward path (RoutingForward or RoutingNoAck): the
// first hop in Routing.Hops is who the caller must physically send Data
// to, and Routing.Hops must end with the final destination. Non-empty
// ReturnPaths are built into embedded SURBs appended after the
// application payload in the body, and their openers are returned for
// the caller to store.
func Encode(routing Routing, payload []byte, issuer TicketIssuer) (OutgoingPacket, []SurbOpener, error) {
	if routing.Kind == RoutingSurb {
		if routing.Surb == nil {
			return OutgoingPacket{}, nil, ErrInvalidState
		}
		out, err := EncodeWithSurb(*routing.Surb, payload)
		return out, nil, err
	}

	hops := routing.Hops
	if len(hops) == 0 || len(hops) > MaxHops {
		return OutgoingPacket{}, nil, ErrTooManyHops
	}

	body, openers, err := buildBody(routing, payload, issuer)
	if err != nil {
		return OutgoingPacket{}, nil, err
	}

	var ephemeralQueue [MaxHops][32]byte
	var fieldQueue [MaxHops][hopFieldSize]byte
	var ticketWire [ticket.WireSize]byte
	var issuerEph [32]byte
	var ackChallenge hoprcrypto.HalfKeyChallenge
	var issuedHalfKey hoprcrypto.HalfKey
	haveTicket := false

	own, err := hoprcrypto.GenerateHalfKey()
	if err != nil {
		return OutgoingPacket{}, nil, err
	}

	for i, hopPub := range hops {
		ephPriv, ephPub, err := generateEphemeral()
		if err != nil {
			return OutgoingPacket{}, nil, err
		}
		shared, err := ephPriv.SharedSecret(hopPub)
		if err != nil {
			return OutgoingPacket{}, nil, fmt.Errorf("packet: shared secret: %w", err)
		}

		bodyKs, err := hoprcrypto.DeriveKeystream(shared, PayloadSize)
		if err != nil {
			return OutgoingPacket{}, nil, err
		}
		for j := range body {
			body[j] ^= bodyKs[j]
		}

		flag := hopFlagForward
		var nextHopID PeerID
		if i == len(hops)-1 {
			flag = hopFlagFinal
		} else {
			nextHopID = DerivePeerID(hops[i+1])
		}

		var plain [hopFieldSize]byte
		plain[0] = flag
		copy(plain[1:21], nextHopID[:])
		mac, err := hoprcrypto.ComputeMAC(shared, plain[:21])
		if err != nil {
			return OutgoingPacket{}, nil, err
		}
		copy(plain[21:37], mac[:])

		// A ticket is only embedded when hop 0 has further relaying to do
		// (len(hops) > 1): a single-hop packet's sole hop is the final
		// destination, not a relay, and needs no incentive.
		if i == 0 && len(hops) > 1 {
			m, err := mintTicket(hopPub, own, uint8(len(hops)), issuer)
			if err != nil {
				return OutgoingPacket{}, nil, err
			}
			ticketWire = m.wire
			issuerEph = m.issuerEph
			ackChallenge = m.ackChallenge
			issuedHalfKey = own
			haveTicket = true
		}

		fieldKs, err := hoprcrypto.DeriveKeystream(shared, hopFieldSize)
		if err != nil {
			return OutgoingPacket{}, nil, err
		}
		var field [hopFieldSize]byte
		for j := range plain {
			field[j] = plain[j] ^ fieldKs[j]
		}

		ephemeralQueue[i] = ephPub
		fieldQueue[i] = field
	}

	for i := len(hops); i < MaxHops; i++ {
		if _, err := rand.Read(ephemeralQueue[i][:]); err != nil {
			return OutgoingPacket{}, nil, err
		}
		if _, err := rand.Read(fieldQueue[i][:]); err != nil {
			return OutgoingPacket{}, nil, err
		}
	}

	var out OutgoingPacket
	out.NextHop = DerivePeerID(hops[0])
	out.AckChallenge = ackChallenge
	if haveTicket {
		out.IssuedHalfKey = &issuedHalfKey
	}
	off := 0
	for _, e := range ephemeralQueue {
		copy(out.Data[off:], e[:])
		off += 32
	}
	for _, f := range fieldQueue {
		copy(out.Data[off:], f[:])
		off += hopFieldSize
	}
	copy(out.Data[off:], issuerEph[:])
	off += 32
	copy(out.Data[off:], ticketWire[:])
	off += ticket.WireSize
	copy(out.Data[off:], body)

	return out, openers, nil
}

// buildBody assembles the plaintext body: the application payload
// followed by any embedded SURBs, zero-padded to PayloadSize.
func buildBody(routing Routing, payload []byte, issuer TicketIssuer) ([]byte, []SurbOpener, error) {
	if len(payload) > PayloadSize {
		return nil, nil, ErrPayloadTooLarge
	}
	body := make([]byte, PayloadSize)
	off := copy(body, payload)

	var openers []SurbOpener
	for _, rp := range routing.ReturnPaths {
		s, err := buildSurb(rp.Hops, issuer)
		if err != nil {
			return nil, nil, fmt.Errorf("packet: building embedded surb: %w", err)
		}
		enc := s.MarshalBinary()
		if off+len(enc) > PayloadSize {
			return nil, nil, fmt.Errorf("%w: embedded surb does not fit remaining payload", ErrPayloadTooLarge)
		}
		off += copy(body[off:], enc)
		openers = append(openers, SurbOpener{
			Pseudonym: rp.Pseudonym,
			SurbID:    rp.SurbID,
			Secret:    s.CombinedSecret,
		})
	}

	return body, openers, nil
}
