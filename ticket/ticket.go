// Package ticket implements the probabilistic payment ticket lifecycle:
// creation, canonical (de)serialization, verification, acknowledgement,
// aggregation, and the per-channel balance bookkeeping that backs it
// (spec.md section 4.C).
package ticket

import (
	"bytes"
	"math/big"
	"sync"
	"time"

	goerrors "github.com/go-errors/errors"
	"github.com/hoprnet/hopr-relay/hoprcrypto"
	"github.com/lightningnetwork/lnd/tlv"
)

// ChannelID identifies a payment channel: the hash of (source, destination).
type ChannelID [32]byte

// DeriveChannelID computes the channel id for an ordered (source,
// destination) pair.
func DeriveChannelID(source, destination hoprcrypto.Address) ChannelID {
	var buf bytes.Buffer
	buf.Write(source[:])
	buf.Write(destination[:])
	tag := hoprcrypto.TicketHash(buf.Bytes())
	return ChannelID(tag)
}

// Ticket is the unsigned, canonical form of a probabilistic payment
// ticket (spec.md section 3).
type Ticket struct {
	ChannelID       ChannelID
	Amount          *big.Int
	Index           uint64
	IndexOffset     uint32
	ChannelEpoch    uint32
	EncodedWinProb  uint64
	Challenge       hoprcrypto.HalfKeyChallenge
}

// SignedTicket pairs a ticket with the channel source's signature over
// its canonical encoding.
type SignedTicket struct {
	Ticket    Ticket
	Signature [65]byte // secp256k1 recoverable signature, see hoprcrypto.OnchainKey.Sign
}

// canonicalBytes returns the deterministic TLV encoding signed over and
// hashed for the winning-probability check. Using lnd's tlv.Stream gives
// `parse(serialize(t)) == t` by construction (spec.md section 8).
func (t Ticket) canonicalBytes() ([]byte, error) {
	amountBytes := t.Amount.Bytes()
	var amountLen = uint64(len(amountBytes))

	var buf bytes.Buffer
	records := []tlv.Record{
		tlv.MakePrimitiveRecord(0, &t.ChannelID),
		tlv.MakeDynamicRecord(1, &amountBytes, &amountLen, tlvEncodeBytes, tlvDecodeBytes),
		tlv.MakePrimitiveRecord(2, &t.Index),
		tlv.MakePrimitiveRecord(3, &t.IndexOffset),
		tlv.MakePrimitiveRecord(4, &t.ChannelEpoch),
		tlv.MakePrimitiveRecord(5, &t.EncodedWinProb),
		tlv.MakePrimitiveRecord(6, &t.Challenge),
	}
	stream, err := tlv.NewStream(records...)
	if err != nil {
		return nil, goerrors.Errorf("ticket: building tlv stream: %w", err)
	}
	if err := stream.Encode(&buf); err != nil {
		return nil, goerrors.Errorf("ticket: encoding canonical bytes: %w", err)
	}
	return buf.Bytes(), nil
}

func tlvEncodeBytes(w interface{ Write([]byte) (int, error) }, val interface{}, buf *[8]byte) error {
	v := val.(*[]byte)
	_, err := w.Write(*v)
	return err
}

func tlvDecodeBytes(r interface{ Read([]byte) (int, error) }, val interface{}, buf *[8]byte, l uint64) error {
	v := val.(*[]byte)
	out := make([]byte, l)
	if _, err := r.Read(out); err != nil {
		return err
	}
	*v = out
	return nil
}

// Hash returns the canonical commitment hash of the ticket, used by the
// winning-probability evaluation.
func (t Ticket) Hash() ([32]byte, error) {
	b, err := t.canonicalBytes()
	if err != nil {
		return [32]byte{}, err
	}
	return hoprcrypto.TicketHash(b), nil
}

// Sign produces a SignedTicket over the ticket's canonical bytes.
func Sign(t Ticket, key *hoprcrypto.OnchainKey) (SignedTicket, error) {
	b, err := t.canonicalBytes()
	if err != nil {
		return SignedTicket{}, err
	}
	digest := hoprcrypto.TicketHash(b)
	sig := key.Sign(digest)
	var st SignedTicket
	st.Ticket = t
	copy(st.Signature[:], sig)
	return st, nil
}

// Status is the lifecycle state of a locally-stored acknowledged ticket
// (spec.md section 4.C).
type Status int

const (
	// Untouched: acknowledged and winning, not yet submitted for
	// redemption (or reverted here after a redemption timeout).
	Untouched Status = iota
	// BeingRedeemed: a redemption action has been submitted; TxHash may
	// be unset while the action queue hasn't yet produced one.
	BeingRedeemed
	// BeingAggregated: folded into an in-flight aggregation request and
	// temporarily excluded from redemption/further aggregation.
	BeingAggregated
	// Redeemed: the chain has confirmed the redemption log.
	Redeemed
	// Rejected: failed verification on receipt, never stored as winning.
	Rejected
	// Neglected: acknowledged as losing, or as winning against a
	// channel that is no longer payable (see DESIGN.md Open Question 1).
	Neglected
)

func (s Status) String() string {
	switch s {
	case Untouched:
		return "Untouched"
	case BeingRedeemed:
		return "BeingRedeemed"
	case BeingAggregated:
		return "BeingAggregated"
	case Redeemed:
		return "Redeemed"
	case Rejected:
		return "Rejected"
	case Neglected:
		return "Neglected"
	default:
		return "Unknown"
	}
}

// RedeemableTicket is a winning, acknowledged ticket tracked locally.
type RedeemableTicket struct {
	Signed   SignedTicket
	Response hoprcrypto.Response
	Opening  [32]byte
	Status   Status
	TxHash   *[32]byte
}

// ChannelStatus mirrors spec.md section 3's channel status enum.
type ChannelStatus int

const (
	Closed ChannelStatus = iota
	Open
	PendingToClose
)

// Channel is the local bookkeeping view of a payment channel. The
// authoritative copy lives in the indexer projection (component K); the
// ticket tracker keeps its own mirror plus in-flight (pending) amounts
// that the indexer doesn't know about yet.
type Channel struct {
	ID           ChannelID
	Balance      *big.Int
	Epoch        uint32
	TicketIndex  uint64
	Status       ChannelStatus
	ClosureTime  *time.Time

	mu      sync.Mutex
	pending *big.Int // sum of unredeemed winning + in-flight tickets
}

func newChannel(id ChannelID) *Channel {
	return &Channel{
		ID:      id,
		Balance: big.NewInt(0),
		Status:  Closed,
		pending: big.NewInt(0),
	}
}

func (c *Channel) pendingAmount() *big.Int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return new(big.Int).Set(c.pending)
}

func (c *Channel) addPending(amount *big.Int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.pending.Add(c.pending, amount)
}

func (c *Channel) subPending(amount *big.Int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.pending.Sub(c.pending, amount)
	if c.pending.Sign() < 0 {
		c.pending.SetInt64(0)
	}
}

// nextIndex atomically increments and returns the channel's ticket index,
// serialized per spec.md section 5 ("the tracker holds the channel under
// a per-channel lock for the create -> mark-pending sequence").
func (c *Channel) nextIndex() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.TicketIndex++
	return c.TicketIndex
}
