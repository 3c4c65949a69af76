// Package hoprcrypto implements the cryptographic capabilities consumed by
// the packet codec and ticket tracker: dual offchain identity keys,
// onchain (secp256k1) keys, PRG/MAC primitives, and the group-element
// commitment/response scheme used for acknowledgement challenges.
package hoprcrypto

import (
	"crypto/ed25519"
	"crypto/rand"
	"fmt"

	"github.com/decred/dcrd/dcrec/secp256k1/v4"
	"github.com/decred/dcrd/dcrec/secp256k1/v4/ecdsa"
	"golang.org/x/crypto/blake2b"
	"golang.org/x/crypto/curve25519"
)

// OffchainKeySize is the length in bytes of the x25519 point used for
// Sphinx shared-secret derivation (one half of the 64-byte serialized
// OffchainPublicKey).
const OffchainKeySize = 32

// OffchainKey is the dual-use identity keypair used as a peer identity on
// the wire: an Ed25519 signing key plus an X25519 Diffie-Hellman scalar
// derived from the same seed.
type OffchainKey struct {
	seed    [ed25519.SeedSize]byte
	signPub ed25519.PublicKey
	signSec ed25519.PrivateKey
	dhPub   [OffchainKeySize]byte
	dhSec   [OffchainKeySize]byte
}

// GenerateOffchainKey creates a fresh dual-use identity keypair.
func GenerateOffchainKey() (*OffchainKey, error) {
	var seed [ed25519.SeedSize]byte
	if _, err := rand.Read(seed[:]); err != nil {
		return nil, fmt.Errorf("hoprcrypto: generating offchain seed: %w", err)
	}
	return NewOffchainKeyFromSeed(seed)
}

// NewOffchainKeyFromSeed deterministically derives the dual keypair from a
// 32-byte seed: the seed is used directly as the Ed25519 seed, and its
// BLAKE2b digest is clamped into an X25519 scalar. Keeping both keys
// derived from one seed lets an announcement carry a single secret.
func NewOffchainKeyFromSeed(seed [ed25519.SeedSize]byte) (*OffchainKey, error) {
	signSec := ed25519.NewKeyFromSeed(seed[:])
	signPub := signSec.Public().(ed25519.PublicKey)

	dhSeed := blake2b.Sum256(append([]byte("hopr/offchain/x25519"), seed[:]...))
	var dhSec [OffchainKeySize]byte
	copy(dhSec[:], dhSeed[:])
	clampScalar(&dhSec)

	var dhPub [OffchainKeySize]byte
	pub, err := curve25519.X25519(dhSec[:], curve25519.Basepoint)
	if err != nil {
		return nil, fmt.Errorf("hoprcrypto: deriving x25519 public key: %w", err)
	}
	copy(dhPub[:], pub)

	return &OffchainKey{
		seed:    seed,
		signPub: signPub,
		signSec: signSec,
		dhPub:   dhPub,
		dhSec:   dhSec,
	}, nil
}

func clampScalar(s *[32]byte) {
	s[0] &= 248
	s[31] &= 127
	s[31] |= 64
}

// Public returns the peer-identity form of this key: the concatenation of
// the Ed25519 verification key and the X25519 DH public point.
func (k *OffchainKey) Public() OffchainPublicKey {
	var pub OffchainPublicKey
	copy(pub.sign[:], k.signPub)
	pub.dh = k.dhPub
	return pub
}

// Seed returns the 32-byte seed NewOffchainKeyFromSeed needs to
// reconstruct this keypair, letting a node persist its offchain identity
// across restarts.
func (k *OffchainKey) Seed() [ed25519.SeedSize]byte {
	return k.seed
}

// Sign produces an Ed25519 signature over msg.
func (k *OffchainKey) Sign(msg []byte) []byte {
	return ed25519.Sign(k.signSec, msg)
}

// SharedSecret performs the X25519 Diffie-Hellman exchange against a
// remote offchain public key, yielding the per-hop Sphinx shared secret.
func (k *OffchainKey) SharedSecret(remote OffchainPublicKey) ([]byte, error) {
	return curve25519.X25519(k.dhSec[:], remote.dh[:])
}

// SharedSecretWithPoint performs the same exchange against a bare X25519
// point rather than a full OffchainPublicKey, used on the receiving end
// of a Sphinx hop to derive the shared secret from a packet's per-hop
// ephemeral public key.
func (k *OffchainKey) SharedSecretWithPoint(point [OffchainKeySize]byte) ([]byte, error) {
	return curve25519.X25519(k.dhSec[:], point[:])
}

// OffchainPublicKey is the 64-byte wire form of a peer identity: a 32-byte
// Ed25519 verification key followed by a 32-byte X25519 DH point.
type OffchainPublicKey struct {
	sign [ed25519.PublicKeySize]byte
	dh   [OffchainKeySize]byte
}

// Bytes returns the 64-byte wire encoding.
func (p OffchainPublicKey) Bytes() []byte {
	out := make([]byte, ed25519.PublicKeySize+OffchainKeySize)
	copy(out, p.sign[:])
	copy(out[ed25519.PublicKeySize:], p.dh[:])
	return out
}

// DHPoint returns the X25519 point used for shared-secret derivation.
func (p OffchainPublicKey) DHPoint() [OffchainKeySize]byte {
	return p.dh
}

// ParseOffchainPublicKey parses the 64-byte wire form produced by Bytes.
func ParseOffchainPublicKey(b []byte) (OffchainPublicKey, error) {
	var pub OffchainPublicKey
	if len(b) != ed25519.PublicKeySize+OffchainKeySize {
		return pub, fmt.Errorf("hoprcrypto: bad offchain public key length %d", len(b))
	}
	copy(pub.sign[:], b[:ed25519.PublicKeySize])
	copy(pub.dh[:], b[ed25519.PublicKeySize:])
	return pub, nil
}

// Verify checks an Ed25519 signature produced by the matching OffchainKey.
func (p OffchainPublicKey) Verify(msg, sig []byte) bool {
	return ed25519.Verify(ed25519.PublicKey(p.sign[:]), msg, sig)
}

// OnchainKey is the secp256k1 keypair whose address is the on-chain
// identity used for payment-channel accounting.
type OnchainKey struct {
	priv *secp256k1.PrivateKey
}

// GenerateOnchainKey creates a fresh secp256k1 keypair.
func GenerateOnchainKey() (*OnchainKey, error) {
	priv, err := secp256k1.GeneratePrivateKey()
	if err != nil {
		return nil, fmt.Errorf("hoprcrypto: generating onchain key: %w", err)
	}
	return &OnchainKey{priv: priv}, nil
}

// NewOnchainKeyFromBytes reconstructs a keypair from a previously
// generated 32-byte secp256k1 scalar, letting a node persist its onchain
// identity across restarts instead of generating a fresh one every time.
func NewOnchainKeyFromBytes(b [32]byte) *OnchainKey {
	return &OnchainKey{priv: secp256k1.PrivKeyFromBytes(b[:])}
}

// Bytes returns the raw 32-byte scalar for persistence.
func (k *OnchainKey) Bytes() [32]byte {
	var out [32]byte
	copy(out[:], k.priv.Serialize())
	return out
}

// Address derives the 20-byte on-chain address as the last 20 bytes of
// the BLAKE2b-256 hash of the uncompressed public point. EVM chains take
// the same tail of a Keccak-256 hash, so the result is not an EVM address.
func (k *OnchainKey) Address() Address {
	return addressFromPubKey(k.priv.PubKey())
}

// Sign produces a recoverable secp256k1 signature over a 32-byte digest.
func (k *OnchainKey) Sign(digest [32]byte) []byte {
	return ecdsa.SignCompact(k.priv, digest[:], false)
}

// RecoverAddress recovers the signer's address from a recoverable
// secp256k1 signature over digest, used to verify ticket signatures
// without the verifier needing to have stored the signer's public key.
func RecoverAddress(digest [32]byte, sig [65]byte) (Address, bool) {
	pub, _, err := ecdsa.RecoverCompact(sig[:], digest[:])
	if err != nil {
		return Address{}, false
	}
	return addressFromPubKey(pub), true
}

// Address is the 20-byte on-chain identity of a node or safe.
type Address [20]byte

func addressFromPubKey(pub *secp256k1.PublicKey) Address {
	digest := blake2b.Sum256(pub.SerializeUncompressed()[1:])
	var addr Address
	copy(addr[:], digest[len(digest)-20:])
	return addr
}

// String renders the address as 0x-prefixed hex.
func (a Address) String() string {
	const hexdigits = "0123456789abcdef"
	out := make([]byte, 2+len(a)*2)
	out[0], out[1] = '0', 'x'
	for i, b := range a {
		out[2+i*2] = hexdigits[b>>4]
		out[3+i*2] = hexdigits[b&0xf]
	}
	return string(out)
}
