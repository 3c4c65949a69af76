package hoprcrypto

import (
	"crypto/subtle"
	"fmt"

	blake256 "github.com/decred/dcrd/crypto/blake256"
	"golang.org/x/crypto/blake2b"
	"golang.org/x/crypto/chacha20"
)

// TagSize is the length of a per-hop MAC / packet tag.
const TagSize = 16

// DeriveKeystream produces a length-preserving keystream from a shared
// secret, used as the Sphinx PRG for XOR-masking header fields and as a
// stream layer over the packet body. The per-hop ChaCha20 nonce is fixed
// (all-zero) since each shared secret is used to derive exactly one
// keystream instance.
func DeriveKeystream(sharedSecret []byte, length int) ([]byte, error) {
	key := blake2b.Sum256(append([]byte("hopr/prg"), sharedSecret...))
	var nonce [chacha20.NonceSize]byte
	c, err := chacha20.NewUnauthenticatedCipher(key[:], nonce[:])
	if err != nil {
		return nil, fmt.Errorf("hoprcrypto: building keystream cipher: %w", err)
	}
	out := make([]byte, length)
	c.XORKeyStream(out, out)
	return out, nil
}

// XORKeystream derives a keystream of len(dst) and XORs it with src into
// dst in one pass; dst and src may alias.
func XORKeystream(sharedSecret []byte, dst, src []byte) error {
	ks, err := DeriveKeystream(sharedSecret, len(src))
	if err != nil {
		return err
	}
	for i := range src {
		dst[i] = src[i] ^ ks[i]
	}
	return nil
}

// ComputeMAC computes a keyed BLAKE2b MAC over data, truncated to TagSize.
func ComputeMAC(key, data []byte) ([TagSize]byte, error) {
	h, err := blake2b.New(TagSize, key)
	if err != nil {
		return [TagSize]byte{}, fmt.Errorf("hoprcrypto: building MAC: %w", err)
	}
	h.Write(data)
	var out [TagSize]byte
	copy(out[:], h.Sum(nil))
	return out, nil
}

// VerifyMAC recomputes the MAC and compares it against tag in constant time.
func VerifyMAC(key, data []byte, tag [TagSize]byte) (bool, error) {
	got, err := ComputeMAC(key, data)
	if err != nil {
		return false, err
	}
	return subtle.ConstantTimeCompare(got[:], tag[:]) == 1, nil
}

// PacketTag derives the 16-byte replay-filter tag from a per-hop shared
// secret: a keyed hash distinct from the per-hop MAC key so that a replay
// tag never collides with a header MAC.
func PacketTag(sharedSecret []byte) ([TagSize]byte, error) {
	h, err := blake2b.New(TagSize, []byte("hopr/packet-tag"))
	if err != nil {
		return [TagSize]byte{}, err
	}
	h.Write(sharedSecret)
	var out [TagSize]byte
	copy(out[:], h.Sum(nil))
	return out, nil
}

// TicketHash computes the canonical commitment hash of a ticket's signed
// byte encoding, used as the left-hand input to the winning-probability
// evaluation. blake256 (already part of the teacher's dependency set for
// Decred-style chain hashing) is used here rather than blake2b so the
// ticket-hash domain is cryptographically distinct from the MAC/tag domain.
func TicketHash(ticketBytes []byte) [32]byte {
	return blake256.Sum256(ticketBytes)
}

// EvaluateWinProb returns true iff the keyed hash of
// (ticketHash || response || opening), interpreted as a big-endian
// unsigned integer, falls below the ticket's encoded win-probability
// threshold. winProbThreshold is the 8-byte big-endian fixed-point value
// produced by EncodeWinProb.
func EvaluateWinProb(ticketHash [32]byte, response Response, opening [32]byte, winProbThreshold uint64) bool {
	h, _ := blake2b.New256([]byte("hopr/win-prob"))
	h.Write(ticketHash[:])
	h.Write(response[:])
	h.Write(opening[:])
	digest := h.Sum(nil)

	// Compare the first 8 bytes of the digest against the threshold as
	// an unsigned 64-bit integer.
	var v uint64
	for i := 0; i < 8; i++ {
		v = v<<8 | uint64(digest[i])
	}
	return v < winProbThreshold
}

// DeriveOpening computes the VRF-like opening value folded into
// EvaluateWinProb from a revealed acknowledgement half-key share (spec.md
// section 3: "opening derived from acknowledgement"). Binding the opening
// to the share rather than letting either party pick it independently is
// what keeps the winning probability fair: neither the ticket issuer (who
// fixes response at redemption time) nor the relayer (who reveals ackShare
// only after already being committed to the ticket) can bias it after the
// fact.
func DeriveOpening(ackShare HalfKey) [32]byte {
	h, _ := blake2b.New256([]byte("hopr/ticket-opening"))
	h.Write(ackShare[:])
	var out [32]byte
	copy(out[:], h.Sum(nil))
	return out
}

// WinProbFixedPointBits is the width of the fixed-point mantissa used to
// encode `encoded_win_prob` (spec.md section 3) before it is widened to a
// full 64-bit threshold comparable against a hash prefix.
const WinProbFixedPointBits = 56

// EncodeWinProb converts a probability in [0,1] into the 64-bit threshold
// compared against in EvaluateWinProb, preserving 56 bits of mantissa
// precision. A probability of exactly 1.0 yields the maximum threshold
// (every ticket wins, per spec.md section 8's boundary behavior); 0.0
// yields zero (rejected by callers before reaching this function, see
// ticket.ErrZeroWinProb).
func EncodeWinProb(p float64) uint64 {
	if p >= 1.0 {
		return ^uint64(0)
	}
	if p <= 0.0 {
		return 0
	}
	mantissa := uint64(p * float64(uint64(1)<<WinProbFixedPointBits))
	return mantissa << (64 - WinProbFixedPointBits)
}
