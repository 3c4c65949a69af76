// Package ack implements the PendingAcknowledgement registry: the
// bookkeeping a node keeps between minting/forwarding a ticket and later
// receiving the acknowledgement that releases its redemption response.
package ack

import (
	"fmt"
	"sync"
	"time"

	"github.com/hoprnet/hopr-relay/hoprcrypto"
	"github.com/hoprnet/hopr-relay/packet"
	"github.com/hoprnet/hopr-relay/ticket"
)

// Acknowledgement is what arrives back along the path: the revealed half-key
// share for a previously issued challenge.
type Acknowledgement struct {
	Challenge hoprcrypto.HalfKeyChallenge
	KeyShare  hoprcrypto.HalfKey
}

// Role distinguishes why a node is waiting on a given challenge.
type Role int

const (
	// WaitingAsSender: this node originated the packet the challenge was
	// issued for; on resolution it only needs to know the ack arrived
	// (used by Session for SURB accounting and by probing), not a ticket
	// response.
	WaitingAsSender Role = iota
	// WaitingAsRelayer: this node received a ticket from the previous hop
	// on a packet it forwards; on resolution the revealed share combines
	// with its own to produce the ticket's redemption response.
	WaitingAsRelayer
)

// pendingEntry is the internal bookkeeping kept per outstanding challenge.
type pendingEntry struct {
	role Role

	// WaitingAsSender only.
	senderDone chan struct{}

	// WaitingAsRelayer only.
	unacked     ticket.SignedTicket
	ownKeyShare hoprcrypto.HalfKey
	previousHop packet.PeerID

	expiresAt time.Time
}

// ResolvedEntry is what resolve() hands back once an acknowledgement
// arrives for a registered challenge.
type ResolvedEntry struct {
	Role        Role
	PreviousHop packet.PeerID

	// Response is populated only for Role == WaitingAsRelayer.
	Response ticket.RedeemableTicket
}

var (
	// ErrNotFound is returned by resolve when no live entry matches the
	// acknowledgement's challenge (already resolved, expired, or never
	// registered).
	ErrNotFound = fmt.Errorf("ack: no pending entry for challenge")
)

// Registry is the PendingAcknowledgement store (spec.md section 4.E),
// safe for concurrent use.
type Registry struct {
	mu      sync.Mutex
	entries map[hoprcrypto.HalfKeyChallenge]*pendingEntry
	tracker *ticket.Tracker
}

// NewRegistry builds an empty registry; tracker resolves winning/losing
// tickets once a relayer's acknowledgement share arrives.
func NewRegistry(tracker *ticket.Tracker) *Registry {
	return &Registry{
		entries: make(map[hoprcrypto.HalfKeyChallenge]*pendingEntry),
		tracker: tracker,
	}
}

// RegisterAsSender records that this node is waiting for the acknowledgement
// of a packet it originated. done is closed when Resolve observes the
// matching acknowledgement.
func (r *Registry) RegisterAsSender(challenge hoprcrypto.HalfKeyChallenge, ttl time.Duration) (done <-chan struct{}) {
	r.mu.Lock()
	defer r.mu.Unlock()

	ch := make(chan struct{})
	r.registerLocked(challenge, &pendingEntry{
		role:       WaitingAsSender,
		senderDone: ch,
		expiresAt:  time.Now().Add(ttl),
	})
	return ch
}

// RegisterAsRelayer records that this node received unacked from
// previousHop on a packet it forwards, holds ownKeyShare as its own half
// of unacked's challenge, and is waiting for previousHop's acknowledgement
// share to arrive so it can redeem unacked.
func (r *Registry) RegisterAsRelayer(
	challenge hoprcrypto.HalfKeyChallenge,
	unacked ticket.SignedTicket,
	ownKeyShare hoprcrypto.HalfKey,
	previousHop packet.PeerID,
	ttl time.Duration,
) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.registerLocked(challenge, &pendingEntry{
		role:        WaitingAsRelayer,
		unacked:     unacked,
		ownKeyShare: ownKeyShare,
		previousHop: previousHop,
		expiresAt:   time.Now().Add(ttl),
	})
}

// registerLocked implements the replace-only-if-expired rule (spec.md
// section 4.E): a second register for an existing, still-live challenge is
// a programming error upstream (challenge collisions are probabilistically
// negligible), so it is ignored rather than silently overwritten; an
// existing but expired entry is replaced.
func (r *Registry) registerLocked(challenge hoprcrypto.HalfKeyChallenge, e *pendingEntry) {
	if existing, ok := r.entries[challenge]; ok && time.Now().Before(existing.expiresAt) {
		return
	}
	r.entries[challenge] = e
}

// Resolve processes an incoming acknowledgement. For WaitingAsSender it
// closes the caller's done channel and returns a sender-role ResolvedEntry.
// For WaitingAsRelayer it combines the revealed share with the entry's own
// share, hands the resulting response to the ticket tracker via
// OnAcknowledgement, and returns the RedeemableTicket. Returns ErrNotFound
// if no live entry matches ack.Challenge.
func (r *Registry) Resolve(a Acknowledgement) (ResolvedEntry, error) {
	r.mu.Lock()
	e, ok := r.entries[a.Challenge]
	if ok {
		delete(r.entries, a.Challenge)
	}
	r.mu.Unlock()

	if !ok || time.Now().After(e.expiresAt) {
		return ResolvedEntry{}, ErrNotFound
	}

	switch e.role {
	case WaitingAsSender:
		close(e.senderDone)
		return ResolvedEntry{Role: WaitingAsSender}, nil

	case WaitingAsRelayer:
		opening := hoprcrypto.DeriveOpening(a.KeyShare)
		response := hoprcrypto.CombineHalfKeys(e.ownKeyShare, a.KeyShare)
		redeemable, err := r.tracker.OnAcknowledgement(e.unacked, response, opening)
		if err != nil {
			return ResolvedEntry{}, fmt.Errorf("ack: resolving ticket: %w", err)
		}
		return ResolvedEntry{
			Role:        WaitingAsRelayer,
			PreviousHop: e.previousHop,
			Response:    *redeemable,
		}, nil

	default:
		return ResolvedEntry{}, fmt.Errorf("ack: unknown role %d", e.role)
	}
}

// Sweep removes expired entries, returning the number removed. Intended to
// be called periodically by the owning node's housekeeping loop rather
// than on every Register/Resolve, so a burst of short-lived entries
// doesn't pay an eviction scan per call.
func (r *Registry) Sweep(now time.Time) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	removed := 0
	for k, e := range r.entries {
		if now.After(e.expiresAt) {
			delete(r.entries, k)
			removed++
		}
	}
	return removed
}

// Len reports the number of live (possibly expired-but-unswept) entries.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.entries)
}
