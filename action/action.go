// Package action implements the single-consumer FIFO that serializes
// every on-chain operation a node issues — ticket redemption, channel
// funding and closure, withdrawals, identity announcements — against an
// indexer-derived expectation model (spec.md section 4.J).
package action

import (
	"encoding/hex"
	"math/big"
	"time"

	"github.com/hoprnet/hopr-relay/hoprcrypto"
	"github.com/hoprnet/hopr-relay/ticket"
)

// Kind tags the variant of an Action (spec.md section 3: "Action: tagged
// variant {RedeemTicket, FundChannel, CloseChannel(Init|Finalize),
// Withdraw, Announce, RegisterSafe}").
type Kind int

const (
	RedeemTicket Kind = iota
	FundChannel
	CloseChannelInit
	CloseChannelFinalize
	Withdraw
	Announce
	RegisterSafe
)

func (k Kind) String() string {
	switch k {
	case RedeemTicket:
		return "RedeemTicket"
	case FundChannel:
		return "FundChannel"
	case CloseChannelInit:
		return "CloseChannelInit"
	case CloseChannelFinalize:
		return "CloseChannelFinalize"
	case Withdraw:
		return "Withdraw"
	case Announce:
		return "Announce"
	case RegisterSafe:
		return "RegisterSafe"
	default:
		return "Unknown"
	}
}

// Action is one on-chain operation awaiting submission. Exactly the
// fields relevant to its Kind are populated; the rest are zero.
type Action struct {
	Kind Kind

	// RedeemTicket
	Redeemable *ticket.RedeemableTicket

	// FundChannel
	Destination hoprcrypto.Address
	Amount      *big.Int

	// CloseChannelInit / CloseChannelFinalize
	ChannelID ticket.ChannelID

	// Withdraw
	WithdrawTo     hoprcrypto.Address
	WithdrawAmount *big.Int

	// Announce
	OffchainPub hoprcrypto.OffchainPublicKey

	// RegisterSafe
	SafeAddress hoprcrypto.Address

	// Timeout bounds how long the queue waits for this action's
	// IndexerExpectation to resolve before failing it.
	Timeout time.Duration
}

// TxHash identifies a submitted transaction; kept opaque (not assumed to
// be any particular chain's hash width) since the chain client is an
// external collaborator (spec.md section 1, "Out of scope").
type TxHash [32]byte

// Confirmation is delivered to the caller's PendingAction once the
// action resolves, one way or another.
type Confirmation struct {
	TxHash TxHash
	Err    error
}

// PayloadGenerator turns an Action into an opaque transaction payload
// ready for submission; the encoding is chain-specific and lives outside
// this module (spec.md section 1).
type PayloadGenerator interface {
	GeneratePayload(a Action) ([]byte, error)
}

// TransactionExecutor submits an opaque payload and returns immediately
// with a transaction hash, or a submission error.
type TransactionExecutor interface {
	Submit(payload []byte) (TxHash, error)
}

// Expectation is a predicate over the indexer's log stream plus a
// deadline; the indexer resolves it when a matching event is observed
// (spec.md section 3/4.J/4.K).
type Expectation struct {
	LogTopic  string
	KeyFields map[string]string
	TimeoutAt time.Time
}

// logTopic maps an Action's Kind to the contract event name the indexer
// will observe once the submitted transaction confirms. Withdraw has no
// entry: it bypasses expectation registration entirely (pollWithdraw).
func (k Kind) logTopic() string {
	switch k {
	case RedeemTicket:
		return "TicketRedeemed"
	case FundChannel:
		return "ChannelFunded"
	case CloseChannelInit:
		return "ChannelClosureInitiated"
	case CloseChannelFinalize:
		return "ChannelClosed"
	case Announce:
		return "Announced"
	case RegisterSafe:
		return "SafeRegistered"
	default:
		return k.String()
	}
}

// expectation builds the predicate the queue registers with the indexer
// while awaiting confirmation of a, keyed on whichever identifying field
// distinguishes this action's log event from another action's.
func (a Action) expectation() Expectation {
	exp := Expectation{
		LogTopic:  a.Kind.logTopic(),
		TimeoutAt: time.Now().Add(a.Timeout),
	}
	switch a.Kind {
	case RedeemTicket:
		if a.Redeemable != nil {
			exp.KeyFields = map[string]string{"channel_id": hex.EncodeToString(a.Redeemable.Signed.Ticket.ChannelID[:])}
		}
	case FundChannel:
		exp.KeyFields = map[string]string{"destination": hex.EncodeToString(a.Destination[:])}
	case CloseChannelInit, CloseChannelFinalize:
		exp.KeyFields = map[string]string{"channel_id": hex.EncodeToString(a.ChannelID[:])}
	case Announce:
		exp.KeyFields = map[string]string{"offchain_pub": hex.EncodeToString(a.OffchainPub.Bytes())}
	case RegisterSafe:
		exp.KeyFields = map[string]string{"safe_address": hex.EncodeToString(a.SafeAddress[:])}
	}
	return exp
}

// ExpectationRegistrar is the indexer-facing interface the queue uses to
// await on-chain confirmation of a submitted action.
type ExpectationRegistrar interface {
	// Register enqueues exp and returns a channel that receives exactly
	// one TxHash once a matching log is observed, or is closed without a
	// value if exp's deadline passes first.
	Register(exp Expectation) <-chan TxHash
}

// Depth reports confirmation depth for a transaction, used only by
// Withdraw's direct-poll bypass (spec.md section 4.J: "Submission of
// Withdraw bypasses the expectation step and polls the RPC layer
// directly for confirmation depth").
type Depth interface {
	ConfirmationDepth(tx TxHash) (int, error)
}
