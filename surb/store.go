// Package surb implements the SURB store: the bounded, per-pseudonym
// cache of single-use reply blocks and their openers that a node keeps
// between emitting a SURB to a peer and later receiving the reply it
// unlocks.
package surb

import (
	"container/list"
	"fmt"
	"sync"

	"github.com/hoprnet/hopr-relay/packet"
)

// DefaultCapacityPerPseudonym bounds how many outstanding SURBs a single
// pseudonym may have stored at once (spec.md section 4.F: "Capacity
// bounded per pseudonym to prevent memory exhaustion").
const DefaultCapacityPerPseudonym = 256

// Key identifies a stored SURB.
type Key struct {
	Pseudonym [10]byte
	SurbID    [8]byte
}

// entry is the per-pseudonym LRU's list payload.
type entry struct {
	key    Key
	opener packet.SurbOpener
	full   *packet.Surb
}

// pseudonymBucket is a capacity-bounded LRU of SURBs for one pseudonym,
// built on container/list: the stdlib list is exactly the doubly-linked
// structure an LRU needs, and pairing it with a map is the standard Go
// idiom for this (no pack dependency improves on it — decred/dcrd/lru is
// a bare recently-used-values set with no eviction notification, so it
// cannot keep a paired opener payload map in sync on its own evictions;
// see DESIGN.md).
type pseudonymBucket struct {
	capacity int
	order    *list.List // front = most recently used
	index    map[Key]*list.Element
}

func newPseudonymBucket(capacity int) *pseudonymBucket {
	return &pseudonymBucket{
		capacity: capacity,
		order:    list.New(),
		index:    make(map[Key]*list.Element),
	}
}

func (b *pseudonymBucket) insert(e entry) {
	if el, ok := b.index[e.key]; ok {
		b.order.Remove(el)
		delete(b.index, e.key)
	}
	el := b.order.PushFront(e)
	b.index[e.key] = el

	for b.order.Len() > b.capacity {
		oldest := b.order.Back()
		if oldest == nil {
			break
		}
		b.order.Remove(oldest)
		delete(b.index, oldest.Value.(entry).key)
	}
}

// pop removes and returns the entry for key, if present (consume-on-use).
func (b *pseudonymBucket) pop(key Key) (entry, bool) {
	el, ok := b.index[key]
	if !ok {
		return entry{}, false
	}
	b.order.Remove(el)
	delete(b.index, key)
	return el.Value.(entry), true
}

// popFront removes and returns the most recently inserted entry that
// holds a full Surb, if any, regardless of its key. Opener-only entries
// are skipped and stay stored.
func (b *pseudonymBucket) popFront() (entry, bool) {
	for el := b.order.Front(); el != nil; el = el.Next() {
		e := el.Value.(entry)
		if e.full == nil {
			continue
		}
		b.order.Remove(el)
		delete(b.index, e.key)
		return e, true
	}
	return entry{}, false
}

// Store is the SURB store (spec.md section 4.F), safe for concurrent use.
type Store struct {
	mu       sync.Mutex
	capacity int
	buckets  map[[10]byte]*pseudonymBucket
}

// NewStore builds an empty store where every pseudonym gets capacity slots.
func NewStore(capacity int) *Store {
	if capacity <= 0 {
		capacity = DefaultCapacityPerPseudonym
	}
	return &Store{
		capacity: capacity,
		buckets:  make(map[[10]byte]*pseudonymBucket),
	}
}

func (s *Store) bucketLocked(pseudonym [10]byte) *pseudonymBucket {
	b, ok := s.buckets[pseudonym]
	if !ok {
		b = newPseudonymBucket(s.capacity)
		s.buckets[pseudonym] = b
	}
	return b
}

// InsertReplyOpener stores the opener for a SURB this node just embedded
// in an outgoing packet, keyed by (pseudonym, surb_id). Inserting over an
// existing key replaces it; reaching the pseudonym's capacity evicts the
// least recently inserted/used entry.
func (s *Store) InsertReplyOpener(pseudonym [10]byte, surbID [8]byte, opener packet.SurbOpener) {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := Key{Pseudonym: pseudonym, SurbID: surbID}
	s.bucketLocked(pseudonym).insert(entry{key: key, opener: opener})
}

// InsertFullSurb stores a complete, ready-to-send Surb (rather than just
// its opener) for later retrieval by the Session layer when it wants to
// reply using RoutingSurb. Consumed the same way as an opener via
// PopFullSurb.
func (s *Store) InsertFullSurb(pseudonym [10]byte, surbID [8]byte, full packet.Surb) {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := Key{Pseudonym: pseudonym, SurbID: surbID}
	s.bucketLocked(pseudonym).insert(entry{key: key, full: &full})
}

// ErrNotFound is returned when no SURB is stored for the given key.
var ErrNotFound = fmt.Errorf("surb: not found")

// PopReplyOpener consumes and returns the opener stored for
// (pseudonym, surb_id); a SURB is single-use by construction, so a second
// pop for the same key returns ErrNotFound.
func (s *Store) PopReplyOpener(pseudonym [10]byte, surbID [8]byte) (packet.SurbOpener, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.buckets[pseudonym]
	if !ok {
		return packet.SurbOpener{}, ErrNotFound
	}
	e, ok := b.pop(Key{Pseudonym: pseudonym, SurbID: surbID})
	if !ok {
		return packet.SurbOpener{}, ErrNotFound
	}
	return e.opener, nil
}

// PopFullSurb consumes and returns a full Surb previously stored with
// InsertFullSurb.
func (s *Store) PopFullSurb(pseudonym [10]byte, surbID [8]byte) (packet.Surb, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.buckets[pseudonym]
	if !ok || b == nil {
		return packet.Surb{}, ErrNotFound
	}
	e, ok := b.pop(Key{Pseudonym: pseudonym, SurbID: surbID})
	if !ok || e.full == nil {
		return packet.Surb{}, ErrNotFound
	}
	return *e.full, nil
}

// PopAnyFullSurb consumes and returns whichever full Surb was most
// recently stored for pseudonym, without the caller needing to know its
// surb id in advance. Used by a session responder, which only knows the
// initiator's pseudonym and must reply using whatever the initiator has
// most recently kept the SURB pool topped up with (spec.md section 4.F's
// SURB balancer).
func (s *Store) PopAnyFullSurb(pseudonym [10]byte) (packet.Surb, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.buckets[pseudonym]
	if !ok {
		return packet.Surb{}, ErrNotFound
	}
	e, ok := b.popFront()
	if !ok || e.full == nil {
		return packet.Surb{}, ErrNotFound
	}
	return *e.full, nil
}

// Len reports how many SURBs are stored for pseudonym.
func (s *Store) Len(pseudonym [10]byte) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.buckets[pseudonym]
	if !ok {
		return 0
	}
	return b.order.Len()
}
