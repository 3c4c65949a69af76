// Package chain names the external on-chain collaborator the core wires
// against but never implements: EVM contract ABIs, RPC transport, and
// transaction signing live entirely outside this module (spec.md section
// 1, "On-chain contract ABIs and EVM RPC transport").
package chain

import (
	"context"

	"github.com/hoprnet/hopr-relay/hoprcrypto"
)

// TxHash identifies a submitted transaction, opaque to the core.
type TxHash [32]byte

// Receipt reports the outcome of a submitted transaction once the chain
// client has observed it included in a block.
type Receipt struct {
	TxHash        TxHash
	BlockNumber   uint64
	Success       bool
	FailureReason string
}

// Log is one finalized contract event, canonicalized into the fields the
// indexer (component K) needs to apply a state transition; concrete
// topic/field decoding from raw RPC logs happens in the ChainClient
// implementation, not here.
type Log struct {
	BlockNumber uint64
	TxHash      TxHash
	LogIndex    uint32
	Topic       string
	Fields      map[string][]byte
}

// Client is the external collaborator submitting transactions and
// streaming finalized logs (spec.md section 6: "ChainClient: submit_tx,
// confirm, log_stream, query").
type Client interface {
	SubmitTx(ctx context.Context, payload []byte) (TxHash, error)
	Confirm(ctx context.Context, tx TxHash) (Receipt, error)

	// LogStream streams finalized logs from fromBlock onward until ctx is
	// canceled or the returned channel is closed by the client.
	LogStream(ctx context.Context, fromBlock uint64) (<-chan Log, error)

	// Query performs a read-only contract call.
	Query(ctx context.Context, address hoprcrypto.Address, method string, args []byte) ([]byte, error)
}
