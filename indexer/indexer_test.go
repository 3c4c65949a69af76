package indexer

import (
	"context"
	"encoding/binary"
	"encoding/hex"
	"math/big"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/hoprnet/hopr-relay/action"
	"github.com/hoprnet/hopr-relay/hoprcrypto"
	"github.com/hoprnet/hopr-relay/internal/chain"
	"github.com/hoprnet/hopr-relay/internal/store"
	"github.com/hoprnet/hopr-relay/routing"
	"github.com/hoprnet/hopr-relay/ticket"
)

// fakeRepository is an in-memory store.Repository stub for tests.
type fakeRepository struct {
	cp    store.Checkpoint
	saved bool
}

func (r *fakeRepository) SaveCheckpoint(ctx context.Context, cp store.Checkpoint) error {
	r.cp = cp
	r.saved = true
	return nil
}

func (r *fakeRepository) LoadCheckpoint(ctx context.Context) (store.Checkpoint, bool, error) {
	if !r.saved {
		return store.Checkpoint{}, false, nil
	}
	return r.cp, true, nil
}

func (r *fakeRepository) PutChannel(ctx context.Context, c store.ChannelRecord) error { return nil }
func (r *fakeRepository) PutAccount(ctx context.Context, a store.AccountRecord) error { return nil }
func (r *fakeRepository) PutAlias(ctx context.Context, alias string, addr hoprcrypto.Address) error {
	return nil
}
func (r *fakeRepository) ResolveAlias(ctx context.Context, alias string) (hoprcrypto.Address, bool, error) {
	return hoprcrypto.Address{}, false, nil
}

func testIndexer() (*Indexer, *ticket.Tracker, *routing.Graph, *fakeRepository) {
	tr := ticket.NewTracker()
	g := routing.NewGraph()
	repo := &fakeRepository{}
	return New(tr, g, repo), tr, g, repo
}

func addr(b byte) hoprcrypto.Address {
	var a hoprcrypto.Address
	a[0] = b
	return a
}

func channelID(b byte) ticket.ChannelID {
	var id ticket.ChannelID
	id[0] = b
	return id
}

func offchainPub(b byte) hoprcrypto.OffchainPublicKey {
	raw := make([]byte, 64)
	raw[0] = b
	pub, err := hoprcrypto.ParseOffchainPublicKey(raw)
	if err != nil {
		panic(err)
	}
	return pub
}

func u32Bytes(v uint32) []byte {
	b := make([]byte, 4)
	binary.BigEndian.PutUint32(b, v)
	return b
}

func channelOpenedLog(block uint64, id ticket.ChannelID, source, dest hoprcrypto.Address) chain.Log {
	return chain.Log{
		BlockNumber: block,
		TxHash:      chain.TxHash{byte(block)},
		Topic:       "ChannelOpened",
		Fields: map[string][]byte{
			"channel_id":  id[:],
			"source":      source[:],
			"destination": dest[:],
			"balance":     big.NewInt(1000).Bytes(),
			"epoch":       u32Bytes(1),
		},
	}
}

func TestApplyChannelOpenedUpdatesTrackerAndGraph(t *testing.T) {
	ix, tr, g, _ := testIndexer()

	source := addr(1)
	dest := addr(2)
	id := channelID(7)

	// announce both endpoints first so the graph can resolve peer ids
	require.NoError(t, ix.Apply(context.Background(), chain.Log{
		BlockNumber: 1,
		TxHash:      chain.TxHash{1},
		Topic:       "Announced",
		Fields: map[string][]byte{
			"address":      source[:],
			"offchain_pub": offchainPub(1).Bytes(),
		},
	}))
	require.NoError(t, ix.Apply(context.Background(), chain.Log{
		BlockNumber: 2,
		TxHash:      chain.TxHash{2},
		Topic:       "Announced",
		Fields: map[string][]byte{
			"address":      dest[:],
			"offchain_pub": offchainPub(2).Bytes(),
		},
	}))

	require.NoError(t, ix.Apply(context.Background(), channelOpenedLog(3, id, source, dest)))

	_ = tr // channel bookkeeping is private to the ticket package; verified via the graph below
	snap := g.Current()
	from := peerIDFromPublicKey(offchainPub(1))
	edges := snap.EdgesFrom(from)
	require.Len(t, edges, 1)
	require.Equal(t, id, edges[0].ChannelID)
	require.Equal(t, ticket.Open, edges[0].Status)
}

func TestApplyAnnouncementUpdatesBidirectionalMapping(t *testing.T) {
	ix, _, _, _ := testIndexer()

	a := addr(9)
	pub := offchainPub(9)

	require.NoError(t, ix.Apply(context.Background(), chain.Log{
		BlockNumber: 1,
		TxHash:      chain.TxHash{1},
		Topic:       "Announced",
		Fields: map[string][]byte{
			"address":      a[:],
			"offchain_pub": pub.Bytes(),
		},
	}))

	gotPub, ok := ix.ResolveOffchain(a)
	require.True(t, ok)
	require.Equal(t, pub, gotPub)

	gotAddr, ok := ix.ResolveOnchain(pub)
	require.True(t, ok)
	require.Equal(t, a, gotAddr)
}

func TestApplyIgnoresRedeliveredLog(t *testing.T) {
	ix, _, _, _ := testIndexer()

	l := channelOpenedLog(1, channelID(1), addr(1), addr(2))
	require.NoError(t, ix.Apply(context.Background(), l))
	first := ix.Checksum()

	require.NoError(t, ix.Apply(context.Background(), l))
	require.Equal(t, first, ix.Checksum())
	require.Equal(t, uint64(1), ix.LastBlock())
}

func TestApplyRejectsOutOfOrderLog(t *testing.T) {
	ix, _, _, _ := testIndexer()

	require.NoError(t, ix.Apply(context.Background(), channelOpenedLog(10, channelID(1), addr(1), addr(2))))

	stale := channelOpenedLog(5, channelID(2), addr(3), addr(4))
	err := ix.Apply(context.Background(), stale)
	require.ErrorIs(t, err, ErrChecksumMismatch)
}

func TestApplyResolvesMatchingExpectation(t *testing.T) {
	ix, _, _, _ := testIndexer()

	dest := addr(5)
	exp := action.Expectation{
		LogTopic:  "ChannelFunded",
		KeyFields: map[string]string{"destination": hex.EncodeToString(dest[:])},
		TimeoutAt: time.Now().Add(time.Minute),
	}
	ch := ix.Register(exp)

	l := chain.Log{
		BlockNumber: 1,
		TxHash:      chain.TxHash{0xaa},
		Topic:       "ChannelFunded",
		Fields: map[string][]byte{
			"destination": dest[:],
		},
	}
	require.NoError(t, ix.Apply(context.Background(), l))

	select {
	case tx, ok := <-ch:
		require.True(t, ok)
		require.Equal(t, action.TxHash(l.TxHash), tx)
	default:
		t.Fatal("expectation channel had nothing to read")
	}
}

func TestApplyClosesExpiredExpectationWithoutResolving(t *testing.T) {
	ix, _, _, _ := testIndexer()

	exp := action.Expectation{
		LogTopic:  "ChannelFunded",
		KeyFields: map[string]string{"destination": hex.EncodeToString(addr(6)[:])},
		TimeoutAt: time.Now().Add(-time.Second),
	}
	ch := ix.Register(exp)

	unrelated := chain.Log{
		BlockNumber: 1,
		TxHash:      chain.TxHash{1},
		Topic:       "Announced",
		Fields: map[string][]byte{
			"address":      addr(1)[:],
			"offchain_pub": offchainPub(1).Bytes(),
		},
	}
	require.NoError(t, ix.Apply(context.Background(), unrelated))

	select {
	case _, ok := <-ch:
		require.False(t, ok)
	default:
		t.Fatal("expired expectation's channel should already be closed")
	}
}

func TestApplyCheckpointsEveryCheckpointEveryBlocks(t *testing.T) {
	ix, _, _, repo := testIndexer()

	for i := uint64(1); i < CheckpointEvery; i++ {
		require.NoError(t, ix.Apply(context.Background(), channelOpenedLog(i, channelID(byte(i)), addr(1), addr(2))))
	}
	require.False(t, repo.saved)

	require.NoError(t, ix.Apply(context.Background(), channelOpenedLog(CheckpointEvery, channelID(0xff), addr(1), addr(2))))
	require.True(t, repo.saved)
	require.Equal(t, uint64(CheckpointEvery), repo.cp.BlockNumber)
	require.Equal(t, ix.Checksum(), repo.cp.Checksum)
}

func TestRunResumesFromSavedCheckpoint(t *testing.T) {
	ix, _, _, repo := testIndexer()
	repo.cp = store.Checkpoint{BlockNumber: 41, Checksum: [32]byte{0x01}}
	repo.saved = true

	logs := make(chan chain.Log, 1)
	logs <- channelOpenedLog(42, channelID(1), addr(1), addr(2))
	close(logs)

	client := &fakeChainClient{logs: logs}

	require.NoError(t, ix.Run(context.Background(), client))
	require.Equal(t, uint64(42), ix.LastBlock())
	require.Equal(t, uint64(42), client.fromBlock)
}

type fakeChainClient struct {
	logs      chan chain.Log
	fromBlock uint64
}

func (c *fakeChainClient) SubmitTx(ctx context.Context, payload []byte) (chain.TxHash, error) {
	return chain.TxHash{}, nil
}

func (c *fakeChainClient) Confirm(ctx context.Context, tx chain.TxHash) (chain.Receipt, error) {
	return chain.Receipt{}, nil
}

func (c *fakeChainClient) LogStream(ctx context.Context, fromBlock uint64) (<-chan chain.Log, error) {
	c.fromBlock = fromBlock
	return c.logs, nil
}

func (c *fakeChainClient) Query(ctx context.Context, address hoprcrypto.Address, method string, args []byte) ([]byte, error) {
	return nil, nil
}

