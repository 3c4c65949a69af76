package indexer

import (
	"encoding/hex"
	"sync"
	"time"

	"github.com/hoprnet/hopr-relay/action"
	"github.com/hoprnet/hopr-relay/internal/chain"
)

// pendingExpectation is one action.Expectation awaiting a matching log,
// paired with the channel its registrant is blocked reading from.
type pendingExpectation struct {
	exp action.Expectation
	ch  chan action.TxHash
}

// expectationRegistry tracks every outstanding action.Expectation and
// resolves or expires them as logs are applied, implementing
// action.ExpectationRegistrar for the Indexer (spec.md section 4.J/4.K).
type expectationRegistry struct {
	mu      sync.Mutex
	pending []*pendingExpectation
}

func newExpectationRegistry() *expectationRegistry {
	return &expectationRegistry{}
}

func (r *expectationRegistry) register(exp action.Expectation) <-chan action.TxHash {
	ch := make(chan action.TxHash, 1)
	r.mu.Lock()
	r.pending = append(r.pending, &pendingExpectation{exp: exp, ch: ch})
	r.mu.Unlock()
	return ch
}

// resolve checks every pending expectation against l, sending l's
// transaction hash to and removing any that match, and closing (without
// a value) any whose deadline has passed. Called once per applied log;
// awaiting callers that already timed out according to their own local
// timer simply find the channel closed with nothing to read, which is
// equivalent from their perspective.
func (r *expectationRegistry) resolve(l chain.Log, now time.Time) {
	r.mu.Lock()
	defer r.mu.Unlock()

	remaining := r.pending[:0]
	for _, p := range r.pending {
		switch {
		case matches(p.exp, l):
			p.ch <- action.TxHash(l.TxHash)
			close(p.ch)
		case now.After(p.exp.TimeoutAt):
			close(p.ch)
		default:
			remaining = append(remaining, p)
		}
	}
	r.pending = remaining
}

// matches reports whether log l satisfies exp: its topic equals exp's,
// and every key/value pair in exp.KeyFields is present (as a hex string)
// in l's fields.
func matches(exp action.Expectation, l chain.Log) bool {
	if exp.LogTopic != l.Topic {
		return false
	}
	for k, want := range exp.KeyFields {
		got, ok := l.Fields[k]
		if !ok || hex.EncodeToString(got) != want {
			return false
		}
	}
	return true
}
