package hopr

import (
	"math/big"
	"time"

	"github.com/hoprnet/hopr-relay/action"
	"github.com/hoprnet/hopr-relay/internal/chain"
	"github.com/hoprnet/hopr-relay/internal/store"
	"github.com/hoprnet/hopr-relay/internal/wire"

	"github.com/hoprnet/hopr-relay/hoprcrypto"
	"github.com/hoprnet/hopr-relay/session"
	"github.com/hoprnet/hopr-relay/surbbalancer"
)

// TicketPolicy bounds the per-hop unit price and win probability this
// node mints into tickets it issues as a relay (spec.md section 4.C's
// CreateMultihopTicket inputs, fixed per deployment rather than
// negotiated per packet). A minted ticket's actual amount scales with
// how many forward-hops remain to the final destination: see
// ticket.MultihopAmount.
type TicketPolicy struct {
	UnitPrice *big.Int
	WinProb   float64
}

// DefaultTicketPolicy mints small, near-certain-win tickets, the
// conservative default a relay falls back to absent an explicit policy.
func DefaultTicketPolicy() TicketPolicy {
	return TicketPolicy{
		UnitPrice: big.NewInt(100),
		WinProb:   1.0,
	}
}

// Config wires a Node to its identity, policy, and external
// collaborators (spec.md section 6: WireTransport, Repository,
// ChainClient, plus the action queue's PayloadGenerator/
// TransactionExecutor/Depth, all out of this module's scope and supplied
// by the embedder).
type Config struct {
	Identity *hoprcrypto.OffchainKey
	Onchain  *hoprcrypto.OnchainKey

	Ticket TicketPolicy

	Transport wire.Transport
	Chain     chain.Client
	Repo      store.Repository

	PayloadGen     action.PayloadGenerator
	TxExecutor     action.TransactionExecutor
	ConfirmDepth   action.Depth
	RequiredDepth  int
	ActionTimeout  time.Duration

	ReplayFilterCapacity uint

	SessionConfig  func(payloadSize int) session.Config
	BalancerConfig surbbalancer.Config

	// PerPeerEgressDepth bounds each peer's outbound queue (spec.md
	// section 4.L: "bounded channels (capacity 1024 per direction per
	// peer)").
	PerPeerEgressDepth int

	// CryptoWorkers bounds concurrent CPU-bound Sphinx operations
	// (decode/reencode/encode) across all peers (spec.md section 5:
	// "offloaded to a bounded blocking-work pool").
	CryptoWorkers int64

	// GracefulShutdownDeadline bounds how long Stop waits for egress
	// queues to drain before aborting (spec.md section 5, default 10s).
	GracefulShutdownDeadline time.Duration

	AckTTL      time.Duration
	AckSweep    time.Duration
}

// DefaultConfig fills every timing/sizing default spec.md section 5
// names, leaving Identity/Onchain/Transport/Chain/Repo/PayloadGen/
// TxExecutor/ConfirmDepth for the caller to supply.
func DefaultConfig() Config {
	return Config{
		Ticket:                   DefaultTicketPolicy(),
		RequiredDepth:            1,
		ActionTimeout:            60 * time.Second,
		ReplayFilterCapacity:     1 << 20,
		SessionConfig:            session.DefaultConfig,
		BalancerConfig:           surbbalancer.DefaultConfig(),
		PerPeerEgressDepth:       1024,
		CryptoWorkers:            8,
		GracefulShutdownDeadline: 10 * time.Second,
		AckTTL:                   30 * time.Second,
		AckSweep:                 5 * time.Second,
	}
}
