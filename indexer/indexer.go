// Package indexer applies a finalized contract log stream to the node's
// in-memory projections — channel/account state, the channel graph, and
// registered action expectations — exactly as specified for the Indexer
// State component (spec.md section 4.K). It owns no concrete chain or
// storage backend; both are external collaborators (internal/chain,
// internal/store).
package indexer

import (
	"context"
	"math/big"
	"sync"
	"time"

	"github.com/btcsuite/btclog"
	goerrors "github.com/go-errors/errors"

	"github.com/hoprnet/hopr-relay/action"
	"github.com/hoprnet/hopr-relay/hoprcrypto"
	"github.com/hoprnet/hopr-relay/internal/chain"
	"github.com/hoprnet/hopr-relay/internal/store"
	"github.com/hoprnet/hopr-relay/routing"
	"github.com/hoprnet/hopr-relay/ticket"
)

var log = btclog.Disabled

// UseLogger installs a logger for the indexer package.
func UseLogger(l btclog.Logger) {
	log = l
}

// ErrChecksumMismatch is returned by Apply when a log for a block before
// the last applied one arrives and is not in the recently-seen cache, so
// the rolling checksum recovered from checkpoint state can no longer be
// trusted, indicating silent corruption in the repository (spec.md section
// 7: "Indexer corruption (log checksum mismatch) is fatal").
var ErrChecksumMismatch = goerrors.Errorf("indexer: log checksum mismatch, repository corruption suspected")

// CheckpointEvery is how many applied blocks elapse between checkpoint
// writes to the Repository.
const CheckpointEvery = 100

// recentLogCacheSize bounds the recently-seen-log-identifier membership
// cache guarding against double-application if the chain client
// redelivers a log already applied (e.g. after a stream reconnect).
const recentLogCacheSize = 4096

// accountRecord is the indexer's cached offchain<->onchain key mapping
// for one announced node (spec.md section 3: "Key mapping (offchain <->
// onchain) is announced on-chain and cached; both directions must be
// queryable").
type accountRecord struct {
	Address     hoprcrypto.Address
	OffchainPub hoprcrypto.OffchainPublicKey
	Multiaddrs  []string
}

// Indexer consumes an ordered finalized-log stream and applies each log
// as a pure state transition into the tracker, graph, and account
// projections, resolving registered expectations as matching logs arrive.
type Indexer struct {
	tracker *ticket.Tracker
	graph   *routing.Graph
	repo    store.Repository

	mu               sync.RWMutex
	accountsByOn     map[hoprcrypto.Address]accountRecord
	accountsByOff    map[hoprcrypto.OffchainPublicKey]accountRecord
	lastBlock        uint64
	blocksSinceCkpt  int
	checksum         [32]byte

	seen *recentLogCache

	expectations *expectationRegistry
}

// New builds an Indexer projecting onto tracker and graph, checkpointing
// through repo.
func New(tracker *ticket.Tracker, graph *routing.Graph, repo store.Repository) *Indexer {
	return &Indexer{
		tracker:       tracker,
		graph:         graph,
		repo:          repo,
		accountsByOn:  make(map[hoprcrypto.Address]accountRecord),
		accountsByOff: make(map[hoprcrypto.OffchainPublicKey]accountRecord),
		seen:          newRecentLogCache(recentLogCacheSize),
		expectations:  newExpectationRegistry(),
	}
}

// Register implements action.ExpectationRegistrar, handing the action
// queue a channel that resolves once a matching log is observed or is
// closed once exp's deadline passes.
func (ix *Indexer) Register(exp action.Expectation) <-chan action.TxHash {
	return ix.expectations.register(exp)
}

// Run replays from the last checkpoint (or genesis) and then applies the
// chain client's finalized log stream until ctx is canceled.
func (ix *Indexer) Run(ctx context.Context, client chain.Client) error {
	from := uint64(0)
	if cp, ok, err := ix.repo.LoadCheckpoint(ctx); err != nil {
		return goerrors.Errorf("indexer: loading checkpoint: %w", err)
	} else if ok {
		from = cp.BlockNumber + 1
		ix.mu.Lock()
		ix.lastBlock = cp.BlockNumber
		ix.checksum = cp.Checksum
		ix.mu.Unlock()
		log.Infof("indexer: resuming from block %d", from)
	}

	logs, err := client.LogStream(ctx, from)
	if err != nil {
		return goerrors.Errorf("indexer: opening log stream: %w", err)
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case l, ok := <-logs:
			if !ok {
				return nil
			}
			if err := ix.Apply(ctx, l); err != nil {
				return err
			}
		}
	}
}

// Apply applies one finalized log as a pure state transition, expiring
// stale expectations, resolving matching ones, and checkpointing every
// CheckpointEvery blocks. Idempotent against a redelivered log already
// seen (tracked via the recently-seen membership cache).
func (ix *Indexer) Apply(ctx context.Context, l chain.Log) error {
	id := logIdentifierOf(l)
	if ix.seen.contains(id) {
		log.Debugf("indexer: ignoring redelivered log %s at block %d", l.Topic, l.BlockNumber)
		return nil
	}

	ix.mu.RLock()
	last := ix.lastBlock
	ix.mu.RUnlock()
	if last != 0 && l.BlockNumber < last {
		// A log for a block strictly before our last-applied one arrived
		// outside the recently-seen cache's lifetime: either the
		// checkpoint the repository handed back on restart was
		// corrupted, or the chain client is misbehaving. Either way the
		// rolling checksum can no longer be trusted.
		return ErrChecksumMismatch
	}
	ix.seen.add(id)

	ix.applyProjection(l)

	ix.mu.Lock()
	ix.checksum = chainChecksum(ix.checksum, l)
	if l.BlockNumber != ix.lastBlock {
		ix.blocksSinceCkpt++
	}
	ix.lastBlock = l.BlockNumber
	shouldCheckpoint := ix.blocksSinceCkpt >= CheckpointEvery
	blockNum, checksum := ix.lastBlock, ix.checksum
	if shouldCheckpoint {
		ix.blocksSinceCkpt = 0
	}
	ix.mu.Unlock()

	ix.expectations.resolve(l, time.Now())

	if shouldCheckpoint {
		if err := ix.repo.SaveCheckpoint(ctx, store.Checkpoint{BlockNumber: blockNum, Checksum: checksum}); err != nil {
			return goerrors.Errorf("indexer: saving checkpoint: %w", err)
		}
	}
	return nil
}

// applyProjection routes one log to the projection(s) it updates. Unknown
// topics are logged and otherwise ignored: a new contract event the
// indexer doesn't yet understand must never halt the stream.
func (ix *Indexer) applyProjection(l chain.Log) {
	switch l.Topic {
	case "ChannelOpened", "ChannelFunded", "ChannelUpdated":
		ix.applyChannelUpdate(l)
	case "ChannelClosureInitiated":
		ix.applyChannelStatus(l, ticket.PendingToClose)
	case "ChannelClosed":
		ix.applyChannelClosed(l)
	case "TicketRedeemed":
		// Balance bookkeeping for a redeemed ticket is driven by the
		// ticket.Tracker directly from the action queue's confirmation
		// (MarkRedeemed); the log here only needs to resolve the
		// expectation, handled uniformly below.
	case "Announced":
		ix.applyAnnouncement(l)
	case "SafeRegistered":
		// Safe registration has no local projection beyond resolving the
		// awaiting expectation; the safe address itself is read through
		// the external ChainClient's Query when needed.
	default:
		log.Debugf("indexer: unrecognized log topic %q at block %d", l.Topic, l.BlockNumber)
	}
}

func (ix *Indexer) applyChannelUpdate(l chain.Log) {
	id, ok := channelIDField(l, "channel_id")
	if !ok {
		return
	}
	source, sok := addressField(l, "source")
	dest, dok := addressField(l, "destination")
	if !sok || !dok {
		return
	}
	balance := bigIntField(l, "balance")
	epoch := uint32Field(l, "epoch")
	status := ticket.Open

	ix.tracker.SyncChannel(id, source, balance, epoch, status, nil)
	ix.graph.UpsertChannel(routing.Edge{
		ChannelID: id,
		From:      peerIDForAddress(ix, source),
		To:        peerIDForAddress(ix, dest),
		Status:    status,
		Balance:   balance,
	})
}

func (ix *Indexer) applyChannelStatus(l chain.Log, status ticket.ChannelStatus) {
	id, ok := channelIDField(l, "channel_id")
	if !ok {
		return
	}
	source, sok := addressField(l, "source")
	if !sok {
		return
	}
	balance := bigIntField(l, "balance")
	epoch := uint32Field(l, "epoch")
	ix.tracker.SyncChannel(id, source, balance, epoch, status, nil)
}

func (ix *Indexer) applyChannelClosed(l chain.Log) {
	id, ok := channelIDField(l, "channel_id")
	if !ok {
		return
	}
	source, sok := addressField(l, "source")
	if !sok {
		return
	}
	epoch := uint32Field(l, "epoch")
	ix.tracker.SyncChannel(id, source, big.NewInt(0), epoch, ticket.Closed, nil)
	ix.graph.RemoveChannel(peerIDForAddress(ix, source), id)
}

func (ix *Indexer) applyAnnouncement(l chain.Log) {
	addr, ok := addressField(l, "address")
	if !ok {
		return
	}
	pub, err := hoprcrypto.ParseOffchainPublicKey(l.Fields["offchain_pub"])
	if err != nil {
		log.Warnf("indexer: malformed announcement at block %d: %v", l.BlockNumber, err)
		return
	}
	rec := accountRecord{Address: addr, OffchainPub: pub}

	ix.mu.Lock()
	ix.accountsByOn[addr] = rec
	ix.accountsByOff[pub] = rec
	ix.mu.Unlock()

	ix.graph.UpsertNode(routing.Node{
		ID:        peerIDFromPublicKey(pub),
		PublicKey: pub,
		Address:   addr,
	})
}

// peerIDForAddress resolves the graph vertex id for an onchain address
// via the cached announcement mapping, falling back to the zero id if
// the address hasn't announced yet (the edge is still recorded; it just
// can't be routed through until the announcement arrives).
func peerIDForAddress(ix *Indexer, addr hoprcrypto.Address) routing.NodeID {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	if rec, ok := ix.accountsByOn[addr]; ok {
		return peerIDFromPublicKey(rec.OffchainPub)
	}
	return routing.NodeID{}
}

// ResolveOffchain returns the offchain public key announced for an
// onchain address, satisfying the bidirectional key-mapping lookup
// spec.md section 3 requires.
func (ix *Indexer) ResolveOffchain(addr hoprcrypto.Address) (hoprcrypto.OffchainPublicKey, bool) {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	rec, ok := ix.accountsByOn[addr]
	return rec.OffchainPub, ok
}

// ResolveOnchain returns the onchain address announced for an offchain
// public key.
func (ix *Indexer) ResolveOnchain(pub hoprcrypto.OffchainPublicKey) (hoprcrypto.Address, bool) {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	rec, ok := ix.accountsByOff[pub]
	return rec.Address, ok
}

// LastBlock returns the last block number this indexer has applied.
func (ix *Indexer) LastBlock() uint64 {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	return ix.lastBlock
}

// Checksum returns the current rolling log checksum, for comparison
// against an independently computed value (e.g. a peer indexer at the
// same block height) as an out-of-band corruption check.
func (ix *Indexer) Checksum() [32]byte {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	return ix.checksum
}
