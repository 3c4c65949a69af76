package packet

import (
	"crypto/rand"
	"fmt"

	"github.com/hoprnet/hopr-relay/hoprcrypto"
	"github.com/hoprnet/hopr-relay/ticket"
	"golang.org/x/crypto/curve25519"
)

// ephemeralKey is a one-shot X25519 keypair generated per hop during
// Encode, distinct from the long-lived dual-use hoprcrypto.OffchainKey
// identity keys.
type ephemeralKey struct {
	priv [32]byte
}

func generateEphemeral() (ephemeralKey, [32]byte, error) {
	var priv [32]byte
	if _, err := rand.Read(priv[:]); err != nil {
		return ephemeralKey{}, [32]byte{}, fmt.Errorf("packet: generating ephemeral key: %w", err)
	}
	priv[0] &= 248
	priv[31] &= 127
	priv[31] |= 64

	pubSlice, err := curve25519.X25519(priv[:], curve25519.Basepoint)
	if err != nil {
		return ephemeralKey{}, [32]byte{}, fmt.Errorf("packet: deriving ephemeral public key: %w", err)
	}
	var pub [32]byte
	copy(pub[:], pubSlice)
	return ephemeralKey{priv: priv}, pub, nil
}

// SharedSecret performs the hop-side-equivalent DH: a raw X25519 exchange
// against a peer's DH point, the same value the hop itself will derive
// via its own static private key and this ephemeral public key.
func (e ephemeralKey) SharedSecret(remote hoprcrypto.OffchainPublicKey) ([]byte, error) {
	dh := remote.DHPoint()
	return curve25519.X25519(e.priv[:], dh[:])
}

// deriveAckKeyShare computes the acknowledgement half-key a hop will
// later reveal to whoever minted its ticket: a deterministic function of
// the shared secret, independently derivable by both the issuer (who
// knows the secret from its ephemeral private key) and the hop itself
// (who derives the identical secret via its static private key).
func deriveAckKeyShare(sharedSecret []byte) hoprcrypto.HalfKey {
	ks, _ := hoprcrypto.DeriveKeystream(append([]byte("hopr/ack-key-share"), sharedSecret...), hoprcrypto.HalfKeySize)
	var hk hoprcrypto.HalfKey
	copy(hk[:], ks)
	return hk
}

// mintedTicket bundles a freshly issued ticket with the issuer's
// ephemeral public key, which must travel alongside it on the wire.
type mintedTicket struct {
	wire         [ticket.WireSize]byte
	issuerEph    [32]byte
	ackChallenge hoprcrypto.HalfKeyChallenge
}

// mintTicket issues a ticket for nextHop using a dedicated, one-shot DH
// exchange between a fresh ephemeral key and nextHop's static public
// key. This is deliberately independent of the onion layer's own
// ephemeral-key queue: that queue is populated entirely by the
// originating sender, so a mid-path relay re-minting a ticket for the
// hop after it has no way to derive that hop's shared secret from it (it
// never held the private half of the entry the sender prepared for that
// position). A dedicated exchange lets any issuer - sender or relay -
// establish a fresh shared secret with the very next hop on demand.
func mintTicket(nextHop hoprcrypto.OffchainPublicKey, own hoprcrypto.HalfKey, remainingHops uint8, issuer TicketIssuer) (mintedTicket, error) {
	ephPriv, ephPub, err := generateEphemeral()
	if err != nil {
		return mintedTicket{}, err
	}
	secret, err := ephPriv.SharedSecret(nextHop)
	if err != nil {
		return mintedTicket{}, fmt.Errorf("packet: ticket ephemeral shared secret: %w", err)
	}
	ackShare := deriveAckKeyShare(secret)
	challenge, err := hoprcrypto.CombineChallenges(own.Challenge(), ackShare.Challenge())
	if err != nil {
		return mintedTicket{}, err
	}
	st, err := issuer.IssueTicket(nextHop, remainingHops, challenge)
	if err != nil {
		return mintedTicket{}, err
	}
	wire, err := st.MarshalFixed()
	if err != nil {
		return mintedTicket{}, err
	}
	var m mintedTicket
	m.wire = wire
	m.issuerEph = ephPub
	m.ackChallenge = challenge
	return m, nil
}
