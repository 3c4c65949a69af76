package ticket

import (
	"encoding/binary"
	"math/big"

	goerrors "github.com/go-errors/errors"
	"github.com/hoprnet/hopr-relay/hoprcrypto"
)

// WireSize is the fixed on-wire encoding length of a signed ticket, used
// so the packet codec can embed a ticket as a constant-size field.
// Amount is truncated to a 12-byte big-endian unsigned integer, enough
// for wei-scale values without making the packet a variable size.
const WireSize = 32 + 12 + 8 + 4 + 4 + 8 + hoprcrypto.HalfKeyChallengeSize + 65

// MarshalFixed encodes a signed ticket into the packet wire format.
func (st SignedTicket) MarshalFixed() ([WireSize]byte, error) {
	var out [WireSize]byte
	off := 0

	copy(out[off:], st.Ticket.ChannelID[:])
	off += 32

	amt := st.Ticket.Amount.Bytes()
	if len(amt) > 12 {
		return out, goerrors.Errorf("ticket: amount exceeds 12-byte wire width")
	}
	copy(out[off+12-len(amt):off+12], amt)
	off += 12

	binary.BigEndian.PutUint64(out[off:], st.Ticket.Index)
	off += 8
	binary.BigEndian.PutUint32(out[off:], st.Ticket.IndexOffset)
	off += 4
	binary.BigEndian.PutUint32(out[off:], st.Ticket.ChannelEpoch)
	off += 4
	binary.BigEndian.PutUint64(out[off:], st.Ticket.EncodedWinProb)
	off += 8

	copy(out[off:], st.Ticket.Challenge.Bytes())
	off += hoprcrypto.HalfKeyChallengeSize

	copy(out[off:], st.Signature[:])
	off += 65

	return out, nil
}

// UnmarshalFixed parses the fixed wire encoding produced by MarshalFixed.
func UnmarshalFixed(b []byte) (SignedTicket, error) {
	if len(b) != WireSize {
		return SignedTicket{}, goerrors.Errorf("ticket: bad wire length %d", len(b))
	}
	var st SignedTicket
	off := 0
	copy(st.Ticket.ChannelID[:], b[off:off+32])
	off += 32

	st.Ticket.Amount = new(big.Int).SetBytes(b[off : off+12])
	off += 12

	st.Ticket.Index = binary.BigEndian.Uint64(b[off:])
	off += 8
	st.Ticket.IndexOffset = binary.BigEndian.Uint32(b[off:])
	off += 4
	st.Ticket.ChannelEpoch = binary.BigEndian.Uint32(b[off:])
	off += 4
	st.Ticket.EncodedWinProb = binary.BigEndian.Uint64(b[off:])
	off += 8

	ch, err := hoprcrypto.ParseHalfKeyChallenge(b[off : off+hoprcrypto.HalfKeyChallengeSize])
	if err != nil {
		return SignedTicket{}, goerrors.Errorf("ticket: parsing challenge: %w", err)
	}
	st.Ticket.Challenge = ch
	off += hoprcrypto.HalfKeyChallengeSize

	copy(st.Signature[:], b[off:off+65])
	off += 65

	return st, nil
}
