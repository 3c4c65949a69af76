package packet

import (
	"crypto/rand"
	"fmt"

	"github.com/hoprnet/hopr-relay/hoprcrypto"
	"github.com/hoprnet/hopr-relay/ticket"
)

// SurbWireSize is the serialized length of a Surb, small enough to embed
// inline in a packet body alongside application data (spec.md section
// 4.B: "emits a reply-opener ... to insert into the SURB store").
const SurbWireSize = 20 + MaxHops*32 + MaxHops*hopFieldSize + 32 + ticket.WireSize + 32

// Surb is a single-use reply block: everything needed to send one packet
// back along a path chosen by the SURB's creator, without the user of
// the SURB learning the path or needing to perform any key exchange
// (spec.md section 4.B / 4.F).
//
// The header and first-hop ticket are fully precomputed at creation time
// (the creator pays for the return path's first leg up front, since it
// is the one that benefits from receiving the reply; downstream hops
// mint their own tickets at forward time same as ordinary relaying, see
// Reencode). CombinedSecret is the XOR of every hop's raw per-hop shared
// secret: a replier derives a keystream from it on the fly with
// hoprcrypto.DeriveKeystream to mask the body, and the creator derives
// the identical keystream from the same stored secret to unmask the
// reply it receives. Storing the 32-byte secret rather than a
// precomputed full-length mask keeps a Surb small enough to fit in a
// single packet body.
type Surb struct {
	FirstHop         PeerID
	EphemeralPubKeys [MaxHops][32]byte
	EncryptedFields  [MaxHops][hopFieldSize]byte
	TicketIssuerEph  [32]byte
	Ticket           [ticket.WireSize]byte
	CombinedSecret   [32]byte
}

// BodyMask derives the keystream a replier XORs into its plaintext, or a
// creator XORs into a received reply body to recover it.
func (s Surb) BodyMask() ([]byte, error) {
	return hoprcrypto.DeriveKeystream(s.CombinedSecret[:], PayloadSize)
}

// buildSurb constructs a Surb for a return path, minting a ticket for
// the first hop via issuer exactly as an outgoing forward packet would,
// and folding every hop's raw shared secret into CombinedSecret.
func buildSurb(hops []hoprcrypto.OffchainPublicKey, issuer TicketIssuer) (Surb, error) {
	if len(hops) == 0 || len(hops) > MaxHops {
		return Surb{}, ErrTooManyHops
	}

	var s Surb
	var combined [32]byte

	own, err := hoprcrypto.GenerateHalfKey()
	if err != nil {
		return Surb{}, err
	}

	for i, hopPub := range hops {
		ephPriv, ephPub, err := generateEphemeral()
		if err != nil {
			return Surb{}, err
		}
		shared, err := ephPriv.SharedSecret(hopPub)
		if err != nil {
			return Surb{}, fmt.Errorf("packet: surb shared secret: %w", err)
		}
		for j := 0; j < 32 && j < len(shared); j++ {
			combined[j] ^= shared[j]
		}

		flag := hopFlagForward
		var nextHopID PeerID
		if i == len(hops)-1 {
			flag = hopFlagFinal
		} else {
			nextHopID = DerivePeerID(hops[i+1])
		}

		fieldKs, err := hoprcrypto.DeriveKeystream(shared, hopFieldSize)
		if err != nil {
			return Surb{}, err
		}
		var plain [hopFieldSize]byte
		plain[0] = flag
		copy(plain[1:21], nextHopID[:])
		mac, err := hoprcrypto.ComputeMAC(shared, plain[:21])
		if err != nil {
			return Surb{}, err
		}
		copy(plain[21:37], mac[:])

		// Only the first hop's ticket is precomputed (and only when it
		// has further relaying to do): downstream hops mint their own
		// ticket for the next hop at forward time, off their own
		// channels, exactly as with an ordinary forwarded packet (see
		// decode.go's Reencode).
		if i == 0 && len(hops) > 1 {
			m, err := mintTicket(hopPub, own, uint8(len(hops)), issuer)
			if err != nil {
				return Surb{}, err
			}
			s.Ticket = m.wire
			s.TicketIssuerEph = m.issuerEph
		}

		var field [hopFieldSize]byte
		for j := range plain {
			field[j] = plain[j] ^ fieldKs[j]
		}

		s.EphemeralPubKeys[i] = ephPub
		s.EncryptedFields[i] = field
	}

	for i := len(hops); i < MaxHops; i++ {
		if _, err := rand.Read(s.EphemeralPubKeys[i][:]); err != nil {
			return Surb{}, err
		}
		if _, err := rand.Read(s.EncryptedFields[i][:]); err != nil {
			return Surb{}, err
		}
	}

	s.FirstHop = DerivePeerID(hops[0])
	s.CombinedSecret = combined
	return s, nil
}

// MarshalBinary serializes a Surb to its fixed SurbWireSize encoding.
func (s Surb) MarshalBinary() []byte {
	out := make([]byte, 0, SurbWireSize)
	out = append(out, s.FirstHop[:]...)
	for _, e := range s.EphemeralPubKeys {
		out = append(out, e[:]...)
	}
	for _, f := range s.EncryptedFields {
		out = append(out, f[:]...)
	}
	out = append(out, s.TicketIssuerEph[:]...)
	out = append(out, s.Ticket[:]...)
	out = append(out, s.CombinedSecret[:]...)
	return out
}

// UnmarshalSurb parses the fixed encoding produced by MarshalBinary.
func UnmarshalSurb(b []byte) (Surb, error) {
	if len(b) != SurbWireSize {
		return Surb{}, fmt.Errorf("packet: bad surb length %d", len(b))
	}
	var s Surb
	off := 0
	copy(s.FirstHop[:], b[off:off+20])
	off += 20
	for i := range s.EphemeralPubKeys {
		copy(s.EphemeralPubKeys[i][:], b[off:off+32])
		off += 32
	}
	for i := range s.EncryptedFields {
		copy(s.EncryptedFields[i][:], b[off:off+hopFieldSize])
		off += hopFieldSize
	}
	copy(s.TicketIssuerEph[:], b[off:off+32])
	off += 32
	copy(s.Ticket[:], b[off:off+ticket.WireSize])
	off += ticket.WireSize
	copy(s.CombinedSecret[:], b[off:off+32])
	return s, nil
}
