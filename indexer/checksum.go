package indexer

import (
	"encoding/binary"
	"sort"

	blake256 "github.com/decred/dcrd/crypto/blake256"

	"github.com/hoprnet/hopr-relay/internal/chain"
)

// logIdentifier uniquely identifies one log's position in the chain
// (block, transaction, and log index within it), used by the
// recently-seen cache to detect redelivery.
type logIdentifier [44]byte

func logIdentifierOf(l chain.Log) logIdentifier {
	var id logIdentifier
	binary.BigEndian.PutUint64(id[0:8], l.BlockNumber)
	copy(id[8:40], l.TxHash[:])
	binary.BigEndian.PutUint32(id[40:44], l.LogIndex)
	return id
}

// chainChecksum folds one log into the rolling checksum chain: a
// blake256 hash of the previous checksum concatenated with the log's
// canonicalized bytes. A divergence anywhere in repository-held
// checkpoint state breaks every checksum computed after it, exactly the
// property a corruption guard needs (spec.md section 4.K: "A log-checksum
// ... guards against silent corruption in the repository").
func chainChecksum(prev [32]byte, l chain.Log) [32]byte {
	h := blake256.New()
	h.Write(prev[:])
	h.Write(canonicalLogBytes(l))
	var out [32]byte
	copy(out[:], h.Sum(nil))
	return out
}

// canonicalLogBytes deterministically encodes a log's identifying and
// payload fields, sorting field keys so the same log always hashes to
// the same bytes regardless of map iteration order.
func canonicalLogBytes(l chain.Log) []byte {
	keys := make([]string, 0, len(l.Fields))
	for k := range l.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var buf []byte
	var tmp8 [8]byte
	binary.BigEndian.PutUint64(tmp8[:], l.BlockNumber)
	buf = append(buf, tmp8[:]...)
	buf = append(buf, l.TxHash[:]...)
	var tmp4 [4]byte
	binary.BigEndian.PutUint32(tmp4[:], l.LogIndex)
	buf = append(buf, tmp4[:]...)
	buf = append(buf, []byte(l.Topic)...)
	for _, k := range keys {
		buf = append(buf, []byte(k)...)
		buf = append(buf, l.Fields[k]...)
	}
	return buf
}

