// Package store names the external persistence collaborator the core
// wires against but never implements: the SQL/ORM backend lives entirely
// outside this module (spec.md section 1, "The SQL/ORM persistence
// layer").
package store

import (
	"context"
	"math/big"
	"time"

	"github.com/hoprnet/hopr-relay/hoprcrypto"
	"github.com/hoprnet/hopr-relay/ticket"
)

// Checkpoint is the indexer's durable progress marker: the last
// finalized block fully applied, and a rolling checksum over every log
// applied up to and including it (spec.md section 4.K).
type Checkpoint struct {
	BlockNumber uint64
	Checksum    [32]byte
}

// ChannelRecord is the persisted mirror of one payment channel.
type ChannelRecord struct {
	ID          ticket.ChannelID
	Source      hoprcrypto.Address
	Destination hoprcrypto.Address
	Balance     *big.Int
	Epoch       uint32
	Status      ticket.ChannelStatus
	ClosureTime *time.Time
}

// AccountRecord is the persisted mirror of one announced node identity.
type AccountRecord struct {
	Address     hoprcrypto.Address
	OffchainPub hoprcrypto.OffchainPublicKey
	Multiaddrs  []string
}

// Repository is the external collaborator providing typed CRUD over
// channels, accounts, and indexer checkpoints, plus a settings table for
// human-assigned peer aliases (spec.md section 6: "Repository: typed CRUD
// for channels, accounts, tickets, logs, settings (aliases). Transactions
// scoped per logical database (index/tickets/peers)"). A concrete
// implementation (SQL-backed or otherwise) lives outside this module.
type Repository interface {
	SaveCheckpoint(ctx context.Context, cp Checkpoint) error
	LoadCheckpoint(ctx context.Context) (Checkpoint, bool, error)

	PutChannel(ctx context.Context, c ChannelRecord) error
	PutAccount(ctx context.Context, a AccountRecord) error

	PutAlias(ctx context.Context, alias string, addr hoprcrypto.Address) error
	ResolveAlias(ctx context.Context, alias string) (hoprcrypto.Address, bool, error)
}
