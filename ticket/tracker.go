package ticket

import (
	"math/big"
	"sync"
	"time"

	goerrors "github.com/go-errors/errors"
	"github.com/hoprnet/hopr-relay/hoprcrypto"
)

var (
	// ErrChannelNotFound is returned when a channel id has no local
	// bookkeeping entry (the indexer hasn't seen an OpenChannel log yet).
	ErrChannelNotFound = goerrors.Errorf("ticket: channel not found")
	// ErrChannelNotOpen is returned when minting against a channel that
	// isn't in the Open state.
	ErrChannelNotOpen = goerrors.Errorf("ticket: channel not open")
	// ErrInsufficientBalance is returned when a new ticket's amount would
	// exceed the channel's balance net of already-pending tickets.
	ErrInsufficientBalance = goerrors.Errorf("ticket: insufficient channel balance")
	// ErrZeroWinProb rejects a ticket minted with a zero win probability,
	// which could never be redeemed.
	ErrZeroWinProb = goerrors.Errorf("ticket: zero win probability")
	// ErrStaleEpoch rejects a ticket whose channel epoch doesn't match
	// the current on-chain epoch (the channel was closed and reopened).
	ErrStaleEpoch = goerrors.Errorf("ticket: stale channel epoch")
	// ErrReplayedIndex rejects a ticket index at or below one already seen.
	ErrReplayedIndex = goerrors.Errorf("ticket: non-increasing index")
	// ErrBadSignature rejects a ticket whose signature doesn't verify
	// against the channel's recorded source address.
	ErrBadSignature = goerrors.Errorf("ticket: signature does not verify")
	// ErrAlreadyAggregating rejects a second aggregation request for a
	// ticket range already folded into one.
	ErrAlreadyAggregating = goerrors.Errorf("ticket: already being aggregated")
)

// Tracker owns the local view of payment channel balances and the
// lifecycle of acknowledged tickets. One Tracker instance is shared by
// the packet codec (minting outgoing tickets) and the node's
// acknowledgement/redemption machinery (spec.md section 4.C and 5).
type Tracker struct {
	mu       sync.RWMutex
	channels map[ChannelID]*Channel
	// sourceOf records, for each channel, the onchain address expected
	// to have signed its tickets (populated from indexer projections).
	sourceOf map[ChannelID]hoprcrypto.Address
}

// NewTracker constructs an empty tracker; channels are registered as the
// indexer observes OpenChannel / ChannelUpdated logs via SyncChannel.
func NewTracker() *Tracker {
	return &Tracker{
		channels: make(map[ChannelID]*Channel),
		sourceOf: make(map[ChannelID]hoprcrypto.Address),
	}
}

// SyncChannel updates (or creates) the tracker's mirror of a channel from
// an indexer projection. Called on every OpenChannel/ChannelUpdated log.
func (t *Tracker) SyncChannel(id ChannelID, source hoprcrypto.Address, balance *big.Int, epoch uint32, status ChannelStatus, closure *time.Time) {
	t.mu.Lock()
	defer t.mu.Unlock()
	c, ok := t.channels[id]
	if !ok {
		c = newChannel(id)
		t.channels[id] = c
	}
	c.mu.Lock()
	c.Balance = new(big.Int).Set(balance)
	c.Epoch = epoch
	c.Status = status
	c.ClosureTime = closure
	c.mu.Unlock()
	t.sourceOf[id] = source
}

func (t *Tracker) channel(id ChannelID) (*Channel, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	c, ok := t.channels[id]
	if !ok {
		return nil, ErrChannelNotFound
	}
	return c, nil
}

// CreateMultihopTicket mints a signed ticket against channel, scaling
// its amount by how many forward-hops remain between the hop it is
// minted for and the final destination (spec.md section 4.C:
// "amount = unit_price * inverse(win_prob) * (remaining_hops - 1)"),
// serializing index allocation under the channel's own lock so
// concurrent mints from different forwarded packets never reuse an
// index (spec.md section 8: "ticket indices issued for a channel are
// strictly increasing"). remainingHops == 1 mints a zero-amount ticket:
// the next hop is the final destination and needs no relay incentive.
func (t *Tracker) CreateMultihopTicket(
	id ChannelID,
	key *hoprcrypto.OnchainKey,
	remainingHops uint8,
	unitPrice *big.Int,
	winProb float64,
	challenge hoprcrypto.HalfKeyChallenge,
) (SignedTicket, error) {
	if winProb <= 0 {
		return SignedTicket{}, ErrZeroWinProb
	}
	amount := MultihopAmount(unitPrice, winProb, remainingHops)
	c, err := t.channel(id)
	if err != nil {
		return SignedTicket{}, err
	}
	c.mu.Lock()
	if c.Status != Open {
		c.mu.Unlock()
		return SignedTicket{}, ErrChannelNotOpen
	}
	available := new(big.Int).Sub(c.Balance, c.pending)
	if available.Cmp(amount) < 0 {
		c.mu.Unlock()
		return SignedTicket{}, ErrInsufficientBalance
	}
	c.TicketIndex++
	idx := c.TicketIndex
	epoch := c.Epoch
	c.pending.Add(c.pending, amount)
	c.mu.Unlock()

	tk := Ticket{
		ChannelID:      id,
		Amount:         new(big.Int).Set(amount),
		Index:          idx,
		IndexOffset:    1,
		ChannelEpoch:   epoch,
		EncodedWinProb: hoprcrypto.EncodeWinProb(winProb),
		Challenge:      challenge,
	}
	return Sign(tk, key)
}

// VerifyUnacknowledged checks a received ticket's signature, epoch,
// index monotonicity, and balance coverage before any acknowledgement is
// sent (spec.md section 4.C / 8). It does not yet know whether the
// ticket wins; that is decided in OnAcknowledgement once the
// relayer's half-key is available.
func (t *Tracker) VerifyUnacknowledged(st SignedTicket) error {
	c, err := t.channel(st.Ticket.ChannelID)
	if err != nil {
		return err
	}
	t.mu.RLock()
	source, ok := t.sourceOf[st.Ticket.ChannelID]
	t.mu.RUnlock()
	if !ok {
		return ErrChannelNotFound
	}

	digest, err := st.Ticket.Hash()
	if err != nil {
		return err
	}
	if !verifyRecoverable(source, digest, st.Signature) {
		return ErrBadSignature
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if st.Ticket.ChannelEpoch != c.Epoch {
		return ErrStaleEpoch
	}
	if st.Ticket.Index <= c.TicketIndex {
		return ErrReplayedIndex
	}
	available := new(big.Int).Sub(c.Balance, c.pending)
	if available.Cmp(st.Ticket.Amount) < 0 {
		return ErrInsufficientBalance
	}
	c.TicketIndex = st.Ticket.Index
	c.pending.Add(c.pending, st.Ticket.Amount)
	return nil
}

// OnAcknowledgement evaluates a verified ticket's winning status once the
// redemption response is known, storing it as Untouched (winning) or
// releasing its pending-balance hold (losing). A winning ticket whose
// channel is no longer Open is stored as Neglected and its hold released.
func (t *Tracker) OnAcknowledgement(st SignedTicket, response hoprcrypto.Response, opening [32]byte) (*RedeemableTicket, error) {
	c, err := t.channel(st.Ticket.ChannelID)
	if err != nil {
		return nil, err
	}
	ok, err := response.Verify(st.Ticket.Challenge)
	if err != nil {
		return nil, err
	}
	if !ok {
		c.subPending(st.Ticket.Amount)
		return nil, goerrors.Errorf("ticket: response does not satisfy challenge")
	}

	hash, err := st.Ticket.Hash()
	if err != nil {
		return nil, err
	}
	wins := hoprcrypto.EvaluateWinProb(hash, response, opening, st.Ticket.EncodedWinProb)
	if !wins {
		c.subPending(st.Ticket.Amount)
		return &RedeemableTicket{Signed: st, Response: response, Opening: opening, Status: Neglected}, nil
	}

	c.mu.Lock()
	open := c.Status == Open
	c.mu.Unlock()
	if !open {
		c.subPending(st.Ticket.Amount)
		return &RedeemableTicket{Signed: st, Response: response, Opening: opening, Status: Neglected}, nil
	}

	return &RedeemableTicket{Signed: st, Response: response, Opening: opening, Status: Untouched}, nil
}

// MarkRedeeming transitions a winning ticket to BeingRedeemed once its
// redemption action has been submitted to the action queue.
func (t *Tracker) MarkRedeeming(r *RedeemableTicket) {
	r.Status = BeingRedeemed
}

// MarkTimedOut reverts a BeingRedeemed ticket back to Untouched after the
// action queue's confirmation deadline elapses without a log (spec.md
// section 5: "BeingRedeemed -> Untouched on timeout").
func (t *Tracker) MarkTimedOut(r *RedeemableTicket) {
	if r.Status == BeingRedeemed {
		r.Status = Untouched
	}
}

// MarkRedeemed finalizes a ticket once the indexer observes its
// TicketRedeemed log, releasing its pending-balance hold.
func (t *Tracker) MarkRedeemed(r *RedeemableTicket, txHash [32]byte) error {
	c, err := t.channel(r.Signed.Ticket.ChannelID)
	if err != nil {
		return err
	}
	c.subPending(r.Signed.Ticket.Amount)
	r.Status = Redeemed
	r.TxHash = &txHash
	return nil
}

// MarkNeglected is used when a channel closes while a winning ticket is
// still Untouched/BeingRedeemed and can no longer be redeemed (DESIGN.md
// Open Question 1).
func (t *Tracker) MarkNeglected(r *RedeemableTicket) {
	r.Status = Neglected
}

// Aggregate folds a contiguous, same-epoch range of winning tickets into
// a single higher-value ticket request, rejecting ranges that cross a
// channel epoch boundary, overlap an in-flight aggregation, or leave a gap
// between one ticket's index range and the next ticket's index.
func Aggregate(tickets []*RedeemableTicket) ([]*RedeemableTicket, *big.Int, error) {
	if len(tickets) == 0 {
		return nil, nil, goerrors.Errorf("ticket: empty aggregation range")
	}
	epoch := tickets[0].Signed.Ticket.ChannelEpoch
	total := big.NewInt(0)
	for i, tk := range tickets {
		if tk.Status == BeingAggregated {
			return nil, nil, ErrAlreadyAggregating
		}
		if tk.Signed.Ticket.ChannelEpoch != epoch {
			return nil, nil, ErrStaleEpoch
		}
		if i > 0 {
			prev := tickets[i-1].Signed.Ticket
			if tk.Signed.Ticket.Index != prev.Index+uint64(prev.IndexOffset) {
				return nil, nil, goerrors.Errorf("ticket: aggregation range is not contiguous")
			}
		}
		total.Add(total, tk.Signed.Ticket.Amount)
	}
	for _, tk := range tickets {
		tk.Status = BeingAggregated
	}
	return tickets, total, nil
}

// verifyRecoverable checks a recoverable secp256k1 signature against an
// expected onchain address by recovering the public key and re-deriving
// its address, rather than requiring the verifier to hold the signer's
// public key directly.
func verifyRecoverable(expected hoprcrypto.Address, digest [32]byte, sig [65]byte) bool {
	addr, ok := hoprcrypto.RecoverAddress(digest, sig)
	if !ok {
		return false
	}
	return addr == expected
}
