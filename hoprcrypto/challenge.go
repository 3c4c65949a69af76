package hoprcrypto

import (
	"crypto/rand"
	"fmt"

	"github.com/decred/dcrd/dcrec/secp256k1/v4"
)

// HalfKeySize is the length of a half-key share scalar.
const HalfKeySize = 32

// HalfKey is a half-key share: a secp256k1 scalar released by a hop upon
// successful forwarding (or held by the sender), which combines with the
// counterpart share to form a ticket's redemption response.
type HalfKey [HalfKeySize]byte

// GenerateHalfKey samples a fresh random half-key share.
func GenerateHalfKey() (HalfKey, error) {
	var hk HalfKey
	if _, err := rand.Read(hk[:]); err != nil {
		return hk, fmt.Errorf("hoprcrypto: generating half-key: %w", err)
	}
	return hk, nil
}

func (hk HalfKey) scalar() *secp256k1.ModNScalar {
	var s secp256k1.ModNScalar
	s.SetByteSlice(hk[:])
	return &s
}

// Challenge commits to this half-key as an EC point G*hk, serialized
// compressed (33 bytes).
func (hk HalfKey) Challenge() HalfKeyChallenge {
	var pt secp256k1.JacobianPoint
	secp256k1.ScalarBaseMultNonConst(hk.scalar(), &pt)
	pt.ToAffine()
	pub := secp256k1.NewPublicKey(&pt.X, &pt.Y)
	var c HalfKeyChallenge
	copy(c[:], pub.SerializeCompressed())
	return c
}

// HalfKeyChallengeSize is the length of a compressed EC point.
const HalfKeyChallengeSize = 33

// HalfKeyChallenge is the public commitment to a HalfKey: G*halfkey.
type HalfKeyChallenge [HalfKeyChallengeSize]byte

// Bytes returns the compressed point encoding.
func (c HalfKeyChallenge) Bytes() []byte { return c[:] }

// ParseHalfKeyChallenge validates and wraps a compressed EC point read
// off the wire.
func ParseHalfKeyChallenge(b []byte) (HalfKeyChallenge, error) {
	var c HalfKeyChallenge
	if len(b) != HalfKeyChallengeSize {
		return c, fmt.Errorf("hoprcrypto: bad half-key challenge length %d", len(b))
	}
	if _, err := secp256k1.ParsePubKey(b); err != nil {
		return c, fmt.Errorf("hoprcrypto: invalid half-key challenge point: %w", err)
	}
	copy(c[:], b)
	return c, nil
}

// point decompresses the stored bytes back into an EC point.
func (c HalfKeyChallenge) point() (*secp256k1.JacobianPoint, error) {
	pub, err := secp256k1.ParsePubKey(c[:])
	if err != nil {
		return nil, fmt.Errorf("hoprcrypto: parsing half-key challenge: %w", err)
	}
	var pt secp256k1.JacobianPoint
	pub.AsJacobian(&pt)
	return &pt, nil
}

// CombineChallenges additively combines two public half-key challenges
// into the ticket's stored `challenge` group element: Commit(a) + Commit(b)
// == Commit(a+b mod n). Point addition (not XOR) is used deliberately: the
// verification check `G^response == challenge` only holds when Response
// below combines shares the same way the challenge was combined, and EC
// scalar multiplication does not distribute over XOR.
func CombineChallenges(a, b HalfKeyChallenge) (HalfKeyChallenge, error) {
	pa, err := a.point()
	if err != nil {
		return HalfKeyChallenge{}, err
	}
	pb, err := b.point()
	if err != nil {
		return HalfKeyChallenge{}, err
	}
	var sum secp256k1.JacobianPoint
	secp256k1.AddNonConst(pa, pb, &sum)
	sum.ToAffine()
	pub := secp256k1.NewPublicKey(&sum.X, &sum.Y)
	var out HalfKeyChallenge
	copy(out[:], pub.SerializeCompressed())
	return out, nil
}

// ResponseSize is the length of a combined ticket-redemption response.
const ResponseSize = 32

// Response is the combined scalar `ownShare + ackShare mod n` that
// redeems a winning ticket; it must satisfy `G*response == ticket.Challenge`.
type Response [ResponseSize]byte

// CombineHalfKeys combines the sender's own half-key share with the
// acknowledgement's revealed half-key share into a redemption response.
func CombineHalfKeys(own, ack HalfKey) Response {
	var sum secp256k1.ModNScalar
	sum.Add2(own.scalar(), ack.scalar())
	var r Response
	b := sum.Bytes()
	copy(r[:], b[:])
	return r
}

// Verify checks that G*response equals the given challenge.
func (r Response) Verify(challenge HalfKeyChallenge) (bool, error) {
	var s secp256k1.ModNScalar
	s.SetByteSlice(r[:])
	var pt secp256k1.JacobianPoint
	secp256k1.ScalarBaseMultNonConst(&s, &pt)
	pt.ToAffine()
	pub := secp256k1.NewPublicKey(&pt.X, &pt.Y)

	var want [HalfKeyChallengeSize]byte
	copy(want[:], pub.SerializeCompressed())
	return want == challenge, nil
}
