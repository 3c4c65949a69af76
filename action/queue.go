package action

import (
	"time"

	goerrors "github.com/go-errors/errors"

	"github.com/btcsuite/btclog"
	"github.com/lightningnetwork/lnd/queue"
)

var (
	log             = btclog.Disabled
	errTimeout      = goerrors.New("action: timed out awaiting confirmation")
	errQueueStopped = goerrors.New("action: queue stopped while polling")
)

// UseLogger installs a logger for the action package.
func UseLogger(l btclog.Logger) {
	log = l
}

// request couples a submitted Action to the Confirmation future its
// caller awaits, the same plexPacket-style request/reply-channel shape
// the teacher's htlcswitch uses for pendingPayment/ChanClose.
type request struct {
	action Action
	result chan Confirmation
}

// PendingAction is the caller-held future for one submitted Action.
type PendingAction struct {
	result <-chan Confirmation
}

// Wait blocks until the action resolves.
func (p *PendingAction) Wait() Confirmation {
	return <-p.result
}

// Queue is the single-consumer FIFO action processor (spec.md section
// 4.J). Built on lnd's ConcurrentQueue rather than a hand-rolled
// channel+slice so an unbounded burst of submissions (e.g. redeeming an
// aggregated run of tickets at once) never blocks the submitting
// goroutines.
type Queue struct {
	gen           PayloadGenerator
	exec          TransactionExecutor
	expect        ExpectationRegistrar
	depth         Depth
	requiredDepth int

	cq   *queue.ConcurrentQueue
	quit chan struct{}
}

// New builds a Queue; requiredDepth is how many confirmations Withdraw
// polls for before resolving.
func New(gen PayloadGenerator, exec TransactionExecutor, expect ExpectationRegistrar, depth Depth, requiredDepth int) *Queue {
	return &Queue{
		gen:           gen,
		exec:          exec,
		expect:        expect,
		depth:         depth,
		requiredDepth: requiredDepth,
		cq:            queue.NewConcurrentQueue(64),
		quit:          make(chan struct{}),
	}
}

// Start begins the consumer loop.
func (q *Queue) Start() {
	q.cq.Start()
	go q.consume()
}

// Stop halts the consumer loop; actions still queued are not processed
// and their PendingAction never resolves.
func (q *Queue) Stop() {
	close(q.quit)
	q.cq.Stop()
}

// Submit enqueues an action and returns a future for its eventual
// Confirmation. Actions are processed strictly in submission order
// (spec.md section 4.J: "actions are executed in submission order per
// queue").
func (q *Queue) Submit(a Action) *PendingAction {
	result := make(chan Confirmation, 1)
	q.cq.ChanIn() <- &request{action: a, result: result}
	return &PendingAction{result: result}
}

func (q *Queue) consume() {
	for {
		select {
		case item, ok := <-q.cq.ChanOut():
			if !ok {
				return
			}
			req := item.(*request)
			req.result <- q.process(req.action)
		case <-q.quit:
			return
		}
	}
}

// process runs one action through payload generation, submission, and
// confirmation, per spec.md section 4.J's four-step sequence. Withdraw
// takes the direct-poll bypass instead of registering an expectation.
func (q *Queue) process(a Action) Confirmation {
	payload, err := q.gen.GeneratePayload(a)
	if err != nil {
		return Confirmation{Err: err}
	}

	tx, err := q.exec.Submit(payload)
	if err != nil {
		log.Warnf("action: submission of %s failed: %v", a.Kind, err)
		return Confirmation{Err: err}
	}

	if a.Kind == Withdraw {
		return q.pollWithdraw(tx)
	}

	return q.awaitExpectation(a, tx)
}

func (q *Queue) awaitExpectation(a Action, tx TxHash) Confirmation {
	exp := a.expectation()
	ch := q.expect.Register(exp)

	timer := time.NewTimer(time.Until(exp.TimeoutAt))
	defer timer.Stop()

	select {
	case resolved, ok := <-ch:
		if !ok {
			log.Warnf("action: %s timed out awaiting indexer expectation", a.Kind)
			return Confirmation{TxHash: tx, Err: errTimeout}
		}
		return Confirmation{TxHash: resolved}
	case <-timer.C:
		return Confirmation{TxHash: tx, Err: errTimeout}
	}
}

// pollWithdrawInterval is how often the direct-poll bypass checks
// confirmation depth.
const pollWithdrawInterval = 2 * time.Second

func (q *Queue) pollWithdraw(tx TxHash) Confirmation {
	t := time.NewTicker(pollWithdrawInterval)
	defer t.Stop()

	for range t.C {
		depth, err := q.depth.ConfirmationDepth(tx)
		if err != nil {
			return Confirmation{TxHash: tx, Err: err}
		}
		if depth >= q.requiredDepth {
			return Confirmation{TxHash: tx}
		}
		select {
		case <-q.quit:
			return Confirmation{TxHash: tx, Err: errQueueStopped}
		default:
		}
	}
	return Confirmation{TxHash: tx, Err: errQueueStopped}
}
