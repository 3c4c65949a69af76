package routing

import (
	"fmt"
	"time"
)

// CostFn computes the cost of extending a path through one more edge.
// accumulated is the running cost carried in from every earlier edge in
// the candidate path, position is the 0-indexed position of this edge,
// and length is the total number of relay hops requested (so the last
// edge sits at position == length, i.e. there are length+1 edges total:
// one per relay plus the final edge into the destination). A negative
// return value marks the edge (and therefore the whole candidate path)
// as pruned.
type CostFn func(accumulated float64, q QualityObservation, position, length int) float64

// HoprCost is the default path cost function (spec.md section 4.G): the
// first edge requires immediate-peer connectivity and intermediate
// capacity, the last edge requires immediate-peer connectivity and a
// positive probe success rate, and every edge in between requires only
// intermediate capacity. Passing cost forward multiplicatively means a
// full path's cost is the product of its edges' per-hop scores.
func HoprCost(accumulated float64, q QualityObservation, position, length int) float64 {
	switch {
	case position == 0:
		if q.Connected && q.IntermediateCapacity {
			return accumulated * q.IntermediateScore
		}
		return -accumulated
	case position == length:
		if q.Connected && q.ProbeSuccessRate > 0 {
			return accumulated * q.ProbeSuccessRate
		}
		return -accumulated
	default:
		if q.IntermediateCapacity {
			return accumulated * q.IntermediateScore
		}
		return -accumulated
	}
}

// LoopbackCost is the cost function used for loopback paths (spec.md
// section 4.G: "a loopback variant allows the last edge to be omitted"):
// the first edge keeps HoprCost's connectivity-plus-capacity rule, and
// every later edge, including what would otherwise be the terminal one, is
// evaluated with the intermediate-only rule, since a loopback path never
// has a distinct final destination to re-check connectivity against.
func LoopbackCost(accumulated float64, q QualityObservation, position, length int) float64 {
	if position == 0 {
		if q.Connected && q.IntermediateCapacity {
			return accumulated * q.IntermediateScore
		}
		return -accumulated
	}
	if q.IntermediateCapacity {
		return accumulated * q.IntermediateScore
	}
	return -accumulated
}

// ErrNoPath is returned when no simple path of the requested length
// connects source to destination under cost.
var ErrNoPath = fmt.Errorf("routing: no path found")

// candidate tracks one complete path found during the search.
type candidate struct {
	edges   []*Edge
	cost    float64
	latency time.Duration
}

// FindPath returns the lowest-total-cost simple path of exactly relayHops
// intermediate edges from source to destination (relayHops+1 edges in
// total), breaking ties by the shortest summed immediate-peer latency
// along the path. relayHops == 0 yields the direct source->destination
// edge, if one exists.
func FindPath(snap *Snapshot, source, destination NodeID, relayHops int, cost CostFn) ([]*Edge, error) {
	if relayHops < 0 {
		return nil, fmt.Errorf("routing: negative relay hop count")
	}
	length := relayHops
	totalEdges := relayHops + 1

	var best *candidate
	visited := map[NodeID]bool{source: true}
	path := make([]*Edge, 0, totalEdges)

	var search func(current NodeID, accCost float64, accLatency time.Duration, position int)
	search = func(current NodeID, accCost float64, accLatency time.Duration, position int) {
		if position == totalEdges {
			if current != destination {
				return
			}
			if best == nil || accCost < best.cost ||
				(accCost == best.cost && accLatency < best.latency) {
				cp := make([]*Edge, len(path))
				copy(cp, path)
				best = &candidate{edges: cp, cost: accCost, latency: accLatency}
			}
			return
		}

		for _, e := range snap.EdgesFrom(current) {
			if e.To == destination && position != totalEdges-1 {
				// The destination may only appear as the final node.
				continue
			}
			if e.To != destination && visited[e.To] {
				continue
			}

			next := cost(accCost, e.Quality, position, length)
			if next < 0 {
				continue
			}

			path = append(path, e)
			visited[e.To] = true
			search(e.To, next, accLatency+e.Quality.LatencyEMA, position+1)
			visited[e.To] = false
			path = path[:len(path)-1]
		}
	}

	search(source, 1.0, 0, 0)

	if best == nil {
		return nil, ErrNoPath
	}
	return best.edges, nil
}

// FindLoopbackPath returns a path of relayHops+1 edges (relayHops relays)
// from source back to source, using LoopbackCost so the final edge is not held to the
// destination-connectivity rule (there being no distinct destination).
func FindLoopbackPath(snap *Snapshot, source NodeID, relayHops int) ([]*Edge, error) {
	if relayHops < 1 {
		return nil, fmt.Errorf("routing: loopback path needs at least one relay hop")
	}
	return FindPath(snap, source, source, relayHops, LoopbackCost)
}
