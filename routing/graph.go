// Package routing implements the channel graph and path selector: an
// in-memory directed graph of payment channels the indexer (component K)
// keeps current via copy-on-write snapshots, and a cost-function path
// search used to pick relay paths for outgoing Sphinx packets.
package routing

import (
	"bytes"
	"math/big"
	"sync/atomic"
	"time"

	"golang.org/x/exp/maps"
	"golang.org/x/exp/slices"

	"github.com/hoprnet/hopr-relay/hoprcrypto"
	"github.com/hoprnet/hopr-relay/packet"
	"github.com/hoprnet/hopr-relay/ticket"
)

// NodeID identifies a graph vertex: the wire peer-id of an offchain
// identity key, the same value packet.DerivePeerID produces.
type NodeID = packet.PeerID

// Node is a graph vertex: a known peer identity plus its onchain address
// (needed to derive channel ids) and a human-readable alias for logs and
// hoprctl output.
type Node struct {
	ID        NodeID
	PublicKey hoprcrypto.OffchainPublicKey
	Address   hoprcrypto.Address
	Alias     string
}

// QualityObservation is the per-edge QoS state the cost function reads
// (spec.md section 4.G).
type QualityObservation struct {
	// Connected is the immediate-peer QoS: whether this node currently
	// has a live connection to the edge's source.
	Connected bool
	// LatencyEMA is the immediate-peer QoS latency estimate.
	LatencyEMA time.Duration

	// IntermediateCapacity reports whether the edge has a usable
	// capacity indicator at all (a missing observation, e.g. for a
	// freshly opened channel never probed, prunes the edge at any
	// non-terminal position).
	IntermediateCapacity bool
	// IntermediateScore is the intermediate QoS score in [0,1].
	IntermediateScore float64

	// ProbeSuccessRate is the average probe success rate observed for
	// this edge, in [0,1].
	ProbeSuccessRate float64
}

// Edge is a directed payment channel between two nodes.
type Edge struct {
	ChannelID ticket.ChannelID
	From, To  NodeID
	Status    ticket.ChannelStatus
	Balance   *big.Int
	Quality   QualityObservation
}

// Snapshot is an immutable view of the graph at one point in time; safe
// to read concurrently from multiple path searches without locking.
type Snapshot struct {
	nodes     map[NodeID]*Node
	adjacency map[NodeID][]*Edge
}

// Node looks up a vertex by id.
func (s *Snapshot) Node(id NodeID) (*Node, bool) {
	n, ok := s.nodes[id]
	return n, ok
}

// EdgesFrom returns the outgoing edges of id, or nil if it has none.
func (s *Snapshot) EdgesFrom(id NodeID) []*Edge {
	return s.adjacency[id]
}

// ForEachNode calls cb for every vertex in deterministic (id-sorted)
// order, stopping at the first error; used by hoprctl's graph dump and by
// tests that need reproducible output from a map-backed snapshot.
func (s *Snapshot) ForEachNode(cb func(*Node) error) error {
	ids := maps.Keys(s.nodes)
	slices.SortFunc(ids, func(a, b NodeID) bool {
		return bytes.Compare(a[:], b[:]) < 0
	})
	for _, id := range ids {
		if err := cb(s.nodes[id]); err != nil {
			return err
		}
	}
	return nil
}

// ForEachChannel calls cb for every edge in deterministic
// (from-id-sorted) order, stopping at the first error.
func (s *Snapshot) ForEachChannel(cb func(*Edge) error) error {
	ids := maps.Keys(s.adjacency)
	slices.SortFunc(ids, func(a, b NodeID) bool {
		return bytes.Compare(a[:], b[:]) < 0
	})
	for _, id := range ids {
		for _, e := range s.adjacency[id] {
			if err := cb(e); err != nil {
				return err
			}
		}
	}
	return nil
}

func newSnapshot() *Snapshot {
	return &Snapshot{
		nodes:     make(map[NodeID]*Node),
		adjacency: make(map[NodeID][]*Edge),
	}
}

func (s *Snapshot) clone() *Snapshot {
	out := newSnapshot()
	for id, n := range s.nodes {
		cp := *n
		out.nodes[id] = &cp
	}
	for id, edges := range s.adjacency {
		cp := make([]*Edge, len(edges))
		for i, e := range edges {
			ecp := *e
			cp[i] = &ecp
		}
		out.adjacency[id] = cp
	}
	return out
}

// Graph is the indexer's published view of the channel topology: a single
// atomic pointer to an immutable Snapshot, replaced wholesale on every
// write so path searches never observe a partially applied update
// (spec.md section 9: copy-on-write graph snapshot publishing).
type Graph struct {
	current atomic.Pointer[Snapshot]
}

// NewGraph builds an empty graph.
func NewGraph() *Graph {
	g := &Graph{}
	g.current.Store(newSnapshot())
	return g
}

// Current returns the graph's current snapshot.
func (g *Graph) Current() *Snapshot {
	return g.current.Load()
}

// UpsertNode adds or replaces a node announcement.
func (g *Graph) UpsertNode(n Node) {
	next := g.current.Load().clone()
	cp := n
	next.nodes[n.ID] = &cp
	g.current.Store(next)
}

// UpsertChannel adds a new directed edge or replaces an existing one with
// the same ChannelID/From/To, called by the indexer on OpenChannel and
// ChannelUpdated log events.
func (g *Graph) UpsertChannel(e Edge) {
	next := g.current.Load().clone()
	edges := next.adjacency[e.From]
	cp := e
	replaced := false
	for i, existing := range edges {
		if existing.ChannelID == e.ChannelID && existing.To == e.To {
			edges[i] = &cp
			replaced = true
			break
		}
	}
	if !replaced {
		edges = append(edges, &cp)
	}
	next.adjacency[e.From] = edges
	g.current.Store(next)
}

// RemoveChannel drops the edge for a closed channel.
func (g *Graph) RemoveChannel(from NodeID, id ticket.ChannelID) {
	next := g.current.Load().clone()
	edges := next.adjacency[from]
	for i, e := range edges {
		if e.ChannelID == id {
			next.adjacency[from] = append(edges[:i], edges[i+1:]...)
			break
		}
	}
	g.current.Store(next)
}

// UpdateQuality replaces the quality observation on an existing edge,
// called as probe results and connection state changes arrive.
func (g *Graph) UpdateQuality(from, to NodeID, id ticket.ChannelID, q QualityObservation) {
	next := g.current.Load().clone()
	for _, e := range next.adjacency[from] {
		if e.ChannelID == id && e.To == to {
			e.Quality = q
			break
		}
	}
	g.current.Store(next)
}
