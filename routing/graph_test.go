package routing

import (
	"encoding/json"
	"math/big"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/blake2b"

	"github.com/hoprnet/hopr-relay/hoprcrypto"
	"github.com/hoprnet/hopr-relay/packet"
	"github.com/hoprnet/hopr-relay/ticket"
)

const basicGraphFilePath = "testdata/basic_graph.json"

// testGraph mirrors the on-disk JSON shape; kept deliberately close to
// the teacher's own pathfind_test.go fixture format (info/nodes/edges),
// adapted to HOPR's quality-observation edges instead of lnd's fee
// policies.
type testGraph struct {
	Info  []string   `json:"info"`
	Nodes []testNode `json:"nodes"`
	Edges []testEdge `json:"edges"`
}

type testNode struct {
	Alias  string `json:"alias"`
	Source bool   `json:"source"`
}

type testEdge struct {
	Node1                string  `json:"node_1"`
	Node2                string  `json:"node_2"`
	ChannelID            uint64  `json:"channel_id"`
	Balance              int64   `json:"balance"`
	Connected            bool    `json:"connected"`
	IntermediateCapacity bool    `json:"intermediate_capacity"`
	IntermediateScore    float64 `json:"intermediate_score"`
	ProbeSuccessRate     float64 `json:"probe_success_rate"`
	LatencyMs            int64   `json:"latency_ms"`
}

// aliasMap maps a test fixture's human alias to the deterministic node id
// derived for it, mirroring the teacher's aliasMap pubkey lookup table.
type aliasMap map[string]NodeID

// deterministicOffchainKey derives a stable OffchainKey for a fixture
// alias so test graphs don't need to embed real key material.
func deterministicOffchainKey(t *testing.T, alias string) *hoprcrypto.OffchainKey {
	t.Helper()
	digest := blake2b.Sum256([]byte("routing-test-fixture/" + alias))
	key, err := hoprcrypto.NewOffchainKeyFromSeed(digest)
	require.NoError(t, err)
	return key
}

// parseTestGraph builds a populated Graph and alias lookup table from a
// JSON fixture file.
func parseTestGraph(t *testing.T, path string) (*Graph, aliasMap) {
	t.Helper()
	raw, err := os.ReadFile(path)
	require.NoError(t, err)

	var tg testGraph
	require.NoError(t, json.Unmarshal(raw, &tg))

	g := NewGraph()
	aliases := make(aliasMap)

	for _, n := range tg.Nodes {
		key := deterministicOffchainKey(t, n.Alias)
		pub := key.Public()
		id := packet.DerivePeerID(pub)
		aliases[n.Alias] = id
		g.UpsertNode(Node{ID: id, PublicKey: pub, Alias: n.Alias})
	}

	for _, e := range tg.Edges {
		from, ok := aliases[e.Node1]
		require.True(t, ok, "unknown node %q", e.Node1)
		to, ok := aliases[e.Node2]
		require.True(t, ok, "unknown node %q", e.Node2)

		var chanID ticket.ChannelID
		chanID[0] = byte(e.ChannelID)
		chanID[1] = byte(e.ChannelID >> 8)

		g.UpsertChannel(Edge{
			ChannelID: chanID,
			From:      from,
			To:        to,
			Status:    ticket.Open,
			Balance:   big.NewInt(e.Balance),
			Quality: QualityObservation{
				Connected:            e.Connected,
				LatencyEMA:           time.Duration(e.LatencyMs) * time.Millisecond,
				IntermediateCapacity: e.IntermediateCapacity,
				IntermediateScore:    e.IntermediateScore,
				ProbeSuccessRate:     e.ProbeSuccessRate,
			},
		})
	}

	return g, aliases
}

func TestParseTestGraphPopulatesNodesAndEdges(t *testing.T) {
	g, aliases := parseTestGraph(t, basicGraphFilePath)
	snap := g.Current()

	require.Len(t, aliases, 5)
	_, ok := snap.Node(aliases["alice"])
	require.True(t, ok)

	edges := snap.EdgesFrom(aliases["alice"])
	require.Len(t, edges, 2)
}

func TestFindPathPrefersLowerCostAmongValidCandidates(t *testing.T) {
	g, aliases := parseTestGraph(t, basicGraphFilePath)
	snap := g.Current()

	// alice->bob->eve (scores 0.95, 0.9) and alice->carol->dave->eve (3
	// hops, not 2) aren't comparable at relayHops=1; at relayHops=1 only
	// alice->bob->eve is a valid 2-edge path.
	path, err := FindPath(snap, aliases["alice"], aliases["eve"], 1, HoprCost)
	require.NoError(t, err)
	require.Len(t, path, 2)
	require.Equal(t, aliases["bob"], path[0].To)
	require.Equal(t, aliases["eve"], path[1].To)
}

func TestFindPathRespectsRequestedHopCount(t *testing.T) {
	g, aliases := parseTestGraph(t, basicGraphFilePath)
	snap := g.Current()

	path, err := FindPath(snap, aliases["alice"], aliases["eve"], 2, HoprCost)
	require.NoError(t, err)
	require.Len(t, path, 3)
	require.Equal(t, aliases["carol"], path[0].To)
	require.Equal(t, aliases["dave"], path[1].To)
	require.Equal(t, aliases["eve"], path[2].To)
}

func TestFindPathPrunesDisconnectedFirstHop(t *testing.T) {
	g, aliases := parseTestGraph(t, basicGraphFilePath)
	snap := g.Current()

	// alice->dave is marked not connected, so a direct 1-edge path must
	// be pruned even though the edge exists.
	_, err := FindPath(snap, aliases["alice"], aliases["dave"], 0, HoprCost)
	require.ErrorIs(t, err, ErrNoPath)
}

func TestFindPathPrunesMissingIntermediateCapacity(t *testing.T) {
	g, aliases := parseTestGraph(t, basicGraphFilePath)
	snap := g.Current()

	// bob->carol lacks intermediate capacity, so any path routed through
	// it as a middle hop must be excluded from consideration.
	_, err := FindPath(snap, aliases["alice"], aliases["dave"], 2, HoprCost)
	require.Error(t, err)
}

func TestFindLoopbackPathReturnsToSource(t *testing.T) {
	g, aliases := parseTestGraph(t, basicGraphFilePath)
	snap := g.Current()

	// alice->bob->eve->? has no edge back to alice in this fixture, so
	// assert the simpler property: a loopback search over a graph with
	// no return edge fails closed rather than fabricating one.
	_, err := FindLoopbackPath(snap, aliases["alice"], 1)
	require.Error(t, err)
}
