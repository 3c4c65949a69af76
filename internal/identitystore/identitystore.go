// Package identitystore persists a node's dual offchain/onchain identity
// keypair to a local file, shared by cmd/hoprd (which generates and runs
// with it) and cmd/hoprctl (which only needs to read it back for
// display). Not the external store.Repository collaborator: this is
// local key material, not channel/account/checkpoint state.
package identitystore

import (
	"crypto/ed25519"
	"encoding/json"
	"fmt"
	"os"

	"github.com/hoprnet/hopr-relay/hoprcrypto"
)

type file struct {
	OffchainSeed [ed25519.SeedSize]byte `json:"offchain_seed"`
	OnchainKey   [32]byte               `json:"onchain_key"`
}

// LoadOrCreate reads path's keystore, generating and persisting a fresh
// identity if no file exists yet.
func LoadOrCreate(path string) (*hoprcrypto.OffchainKey, *hoprcrypto.OnchainKey, error) {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return generateAndSave(path)
	}
	return Load(path)
}

// Load reads an existing keystore file without creating one.
func Load(path string) (*hoprcrypto.OffchainKey, *hoprcrypto.OnchainKey, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, nil, fmt.Errorf("identitystore: reading keystore: %w", err)
	}
	var f file
	if err := json.Unmarshal(raw, &f); err != nil {
		return nil, nil, fmt.Errorf("identitystore: parsing keystore: %w", err)
	}

	offchain, err := hoprcrypto.NewOffchainKeyFromSeed(f.OffchainSeed)
	if err != nil {
		return nil, nil, fmt.Errorf("identitystore: reconstructing offchain key: %w", err)
	}
	onchain := hoprcrypto.NewOnchainKeyFromBytes(f.OnchainKey)

	return offchain, onchain, nil
}

func generateAndSave(path string) (*hoprcrypto.OffchainKey, *hoprcrypto.OnchainKey, error) {
	offchain, err := hoprcrypto.GenerateOffchainKey()
	if err != nil {
		return nil, nil, fmt.Errorf("identitystore: generating offchain key: %w", err)
	}
	onchain, err := hoprcrypto.GenerateOnchainKey()
	if err != nil {
		return nil, nil, fmt.Errorf("identitystore: generating onchain key: %w", err)
	}

	f := file{
		OffchainSeed: offchain.Seed(),
		OnchainKey:   onchain.Bytes(),
	}
	raw, err := json.MarshalIndent(f, "", "  ")
	if err != nil {
		return nil, nil, err
	}
	if err := os.WriteFile(path, raw, 0600); err != nil {
		return nil, nil, fmt.Errorf("identitystore: writing keystore: %w", err)
	}

	return offchain, onchain, nil
}
