package action

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type fakeGen struct {
	fail bool
}

func (f *fakeGen) GeneratePayload(a Action) ([]byte, error) {
	if f.fail {
		return nil, errTimeout
	}
	return []byte(a.Kind.String()), nil
}

type fakeExec struct {
	tx TxHash
}

func (f *fakeExec) Submit(payload []byte) (TxHash, error) {
	return f.tx, nil
}

type fakeRegistrar struct {
	ch chan TxHash
}

func (f *fakeRegistrar) Register(exp Expectation) <-chan TxHash {
	return f.ch
}

type fakeDepth struct {
	depths []int
	i      int
}

func (f *fakeDepth) ConfirmationDepth(tx TxHash) (int, error) {
	d := f.depths[f.i]
	if f.i < len(f.depths)-1 {
		f.i++
	}
	return d, nil
}

func TestQueueResolvesOnMatchingExpectation(t *testing.T) {
	reg := &fakeRegistrar{ch: make(chan TxHash, 1)}
	reg.ch <- TxHash{1, 2, 3}

	q := New(&fakeGen{}, &fakeExec{tx: TxHash{1, 2, 3}}, reg, &fakeDepth{}, 1)
	q.Start()
	defer q.Stop()

	pending := q.Submit(Action{Kind: FundChannel, Timeout: time.Second})
	conf := pending.Wait()
	require.NoError(t, conf.Err)
	require.Equal(t, TxHash{1, 2, 3}, conf.TxHash)
}

func TestQueueTimesOutWhenExpectationNeverResolves(t *testing.T) {
	reg := &fakeRegistrar{ch: make(chan TxHash)} // never sends

	q := New(&fakeGen{}, &fakeExec{tx: TxHash{9}}, reg, &fakeDepth{}, 1)
	q.Start()
	defer q.Stop()

	pending := q.Submit(Action{Kind: FundChannel, Timeout: 10 * time.Millisecond})
	conf := pending.Wait()
	require.Error(t, conf.Err)
}

func TestQueuePropagatesPayloadGenerationError(t *testing.T) {
	reg := &fakeRegistrar{ch: make(chan TxHash, 1)}
	q := New(&fakeGen{fail: true}, &fakeExec{}, reg, &fakeDepth{}, 1)
	q.Start()
	defer q.Stop()

	pending := q.Submit(Action{Kind: Announce, Timeout: time.Second})
	conf := pending.Wait()
	require.Error(t, conf.Err)
}

func TestQueueWithdrawBypassesExpectationAndPolls(t *testing.T) {
	reg := &fakeRegistrar{ch: make(chan TxHash)} // never used by Withdraw
	depth := &fakeDepth{depths: []int{0, 1, 3}}

	q := New(&fakeGen{}, &fakeExec{tx: TxHash{7}}, reg, depth, 3)
	q.Start()
	defer q.Stop()

	pending := q.Submit(Action{Kind: Withdraw, Timeout: time.Second})
	conf := pending.Wait()
	require.NoError(t, conf.Err)
	require.Equal(t, TxHash{7}, conf.TxHash)
}

func TestQueuePreservesSubmissionOrder(t *testing.T) {
	reg := &fakeRegistrar{ch: make(chan TxHash, 8)}
	for i := 0; i < 3; i++ {
		reg.ch <- TxHash{byte(i)}
	}

	q := New(&fakeGen{}, &fakeExec{}, reg, &fakeDepth{}, 1)
	q.Start()
	defer q.Stop()

	var pendings []*PendingAction
	for i := 0; i < 3; i++ {
		pendings = append(pendings, q.Submit(Action{Kind: RedeemTicket, Timeout: time.Second}))
	}

	for i, p := range pendings {
		conf := p.Wait()
		require.NoError(t, conf.Err)
		require.Equal(t, TxHash{byte(i)}, conf.TxHash)
	}
}
