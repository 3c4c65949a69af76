// Package hopr wires every lower-level component (crypto, packet codec,
// ticket tracker, replay filter, acknowledgement engine, SURB store,
// channel graph, session layer, SURB balancer, action queue, indexer)
// into one running node: the ingress/egress loops, the session
// multiplexer, and the public API a caller embeds this module through
// (spec.md section 4.L).
package hopr

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	goerrors "github.com/go-errors/errors"
	"github.com/hashicorp/go-multierror"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"github.com/hoprnet/hopr-relay/ack"
	"github.com/hoprnet/hopr-relay/action"
	"github.com/hoprnet/hopr-relay/indexer"
	"github.com/hoprnet/hopr-relay/internal/wire"
	"github.com/hoprnet/hopr-relay/packet"
	"github.com/hoprnet/hopr-relay/replay"
	"github.com/hoprnet/hopr-relay/routing"
	"github.com/hoprnet/hopr-relay/surb"
	"github.com/hoprnet/hopr-relay/surbbalancer"
	"github.com/hoprnet/hopr-relay/ticket"
)

// errNodeStopped is returned by egress enqueue once Stop has begun.
var errNodeStopped = goerrors.Errorf("hopr: node is shutting down")

// Node is the running HOPR relay/mixnet endpoint: one per process,
// built by New and driven by Start/Stop (spec.md section 4.L, grounded
// on the teacher's central `server` struct and its atomic started/
// shutdown flags).
type Node struct {
	started  int32
	shutdown int32

	cfg    Config
	selfID packet.PeerID

	tracker  *ticket.Tracker
	graph    *routing.Graph
	replay   *replay.Filter
	acks     *ack.Registry
	surbs    *surb.Store
	balancer *surbbalancer.Balancer
	actions  *action.Queue
	indexer  *indexer.Indexer
	issuer   *ticketIssuer

	sessions *sessionMux

	egressMu sync.Mutex
	egress   map[packet.PeerID]*egressQueue

	cryptoSem *semaphore.Weighted

	quit chan struct{}
	wg   sync.WaitGroup
	eg   *errgroup.Group
	egCtx context.Context
}

// New builds a Node from cfg; it does not start any loop until Start is
// called.
func New(cfg Config) *Node {
	self := cfg.Identity.Public()
	selfID := packet.DerivePeerID(self)

	tracker := ticket.NewTracker()
	graph := routing.NewGraph()
	surbs := surb.NewStore(4096)

	n := &Node{
		cfg:      cfg,
		selfID:   selfID,
		tracker:  tracker,
		graph:    graph,
		acks:     ack.NewRegistry(tracker),
		surbs:    surbs,
		cryptoSem: semaphore.NewWeighted(cfg.CryptoWorkers),
		egress:   make(map[packet.PeerID]*egressQueue),
		quit:     make(chan struct{}),
	}
	n.issuer = newTicketIssuer(selfID, cfg.Onchain, tracker, graph, cfg.Ticket)
	n.indexer = indexer.New(tracker, graph, cfg.Repo)
	n.actions = action.New(cfg.PayloadGen, cfg.TxExecutor, n.indexer, cfg.ConfirmDepth, cfg.RequiredDepth)
	n.balancer = surbbalancer.New(cfg.BalancerConfig, n.emitKeepAlive)
	n.sessions = newSessionMux(n)

	return n
}

// Start launches the replay filter, indexer replay, action queue, SURB
// balancer, acknowledgement sweep, and ingress loop. Safe to call once.
func (n *Node) Start(ctx context.Context) error {
	if !atomic.CompareAndSwapInt32(&n.started, 0, 1) {
		return nil
	}

	f, err := replay.New(n.cfg.ReplayFilterCapacity)
	if err != nil {
		return err
	}
	n.replay = f

	n.eg, n.egCtx = errgroup.WithContext(ctx)

	n.actions.Start()
	n.balancer.Start()

	n.eg.Go(func() error {
		return n.indexer.Run(n.egCtx, n.cfg.Chain)
	})

	n.eg.Go(n.ackSweepLoop)
	n.eg.Go(n.ingressLoop)

	log.Infof("hopr: node %x started", n.selfID)
	return nil
}

// Stop drains every egress queue within GracefulShutdownDeadline, then
// halts every subsystem loop. Safe to call once; returns the aggregate
// of any subsystem loop errors (spec.md section 5: every loop observes
// a shutdown signal and drains its outbound queue before aborting).
func (n *Node) Stop() error {
	if !atomic.CompareAndSwapInt32(&n.shutdown, 0, 1) {
		return nil
	}
	close(n.quit)

	n.drainEgress(n.cfg.GracefulShutdownDeadline)

	n.balancer.Close()
	n.actions.Stop()
	n.sessions.closeAll()

	var result *multierror.Error
	if n.eg != nil {
		if err := n.eg.Wait(); err != nil {
			result = multierror.Append(result, err)
		}
	}
	n.wg.Wait()

	log.Infof("hopr: node %x stopped", n.selfID)
	return result.ErrorOrNil()
}

func (n *Node) ackSweepLoop() error {
	t := time.NewTicker(n.cfg.AckSweep)
	defer t.Stop()
	for {
		select {
		case <-n.quit:
			return nil
		case <-n.egCtx.Done():
			return nil
		case now := <-t.C:
			if removed := n.acks.Sweep(now); removed > 0 {
				log.Debugf("hopr: swept %d expired acknowledgements", removed)
			}
		}
	}
}

// acquireCrypto bounds concurrent CPU-bound Sphinx work across every
// peer (spec.md section 5).
func (n *Node) acquireCrypto(ctx context.Context) error {
	return n.cryptoSem.Acquire(ctx, 1)
}

func (n *Node) releaseCrypto() {
	n.cryptoSem.Release(1)
}

// transportSend is the shared egress primitive every outbound path
// (forwarded packets, session segments, acks, keep-alives) funnels
// through: enqueue onto the destination peer's bounded channel,
// spinning up its drain goroutine on first use.
func (n *Node) transportSend(peer packet.PeerID, datagram wire.Datagram) error {
	return n.egressFor(peer).enqueue(datagram)
}
