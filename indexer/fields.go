package indexer

import (
	"encoding/binary"
	"math/big"

	"github.com/hoprnet/hopr-relay/hoprcrypto"
	"github.com/hoprnet/hopr-relay/internal/chain"
	"github.com/hoprnet/hopr-relay/packet"
	"github.com/hoprnet/hopr-relay/routing"
	"github.com/hoprnet/hopr-relay/ticket"
)

// peerIDFromPublicKey derives a graph vertex id from an announced
// offchain public key, the same derivation the packet codec uses for
// next-hop routing.
func peerIDFromPublicKey(pub hoprcrypto.OffchainPublicKey) routing.NodeID {
	return packet.DerivePeerID(pub)
}

func channelIDField(l chain.Log, key string) (ticket.ChannelID, bool) {
	b, ok := l.Fields[key]
	if !ok || len(b) != len(ticket.ChannelID{}) {
		return ticket.ChannelID{}, false
	}
	var id ticket.ChannelID
	copy(id[:], b)
	return id, true
}

func addressField(l chain.Log, key string) (hoprcrypto.Address, bool) {
	b, ok := l.Fields[key]
	if !ok || len(b) != len(hoprcrypto.Address{}) {
		return hoprcrypto.Address{}, false
	}
	var a hoprcrypto.Address
	copy(a[:], b)
	return a, true
}

func bigIntField(l chain.Log, key string) *big.Int {
	b, ok := l.Fields[key]
	if !ok {
		return big.NewInt(0)
	}
	return new(big.Int).SetBytes(b)
}

func uint32Field(l chain.Log, key string) uint32 {
	b, ok := l.Fields[key]
	if !ok || len(b) != 4 {
		return 0
	}
	return binary.BigEndian.Uint32(b)
}
