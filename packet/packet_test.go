package packet

import (
	"math/big"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/hoprnet/hopr-relay/hoprcrypto"
	"github.com/hoprnet/hopr-relay/ticket"
)

// stubIssuer mints an always-winning ticket (unit price 10) against whatever
// channel id the caller already expects to exist, mirroring how a real
// TicketIssuer (routing lookup + ticket.Tracker) would behave from the
// packet codec's point of view.
type stubIssuer struct {
	tracker *ticket.Tracker
	key     *hoprcrypto.OnchainKey
	chanID  ticket.ChannelID
}

func (s *stubIssuer) IssueTicket(nextHop hoprcrypto.OffchainPublicKey, remainingHops uint8, challenge hoprcrypto.HalfKeyChallenge) (ticket.SignedTicket, error) {
	return s.tracker.CreateMultihopTicket(s.chanID, s.key, remainingHops, big.NewInt(10), 1.0, challenge)
}

func newStubIssuer(t *testing.T) *stubIssuer {
	t.Helper()
	tracker := ticket.NewTracker()
	source, err := hoprcrypto.GenerateOnchainKey()
	require.NoError(t, err)
	dest, err := hoprcrypto.GenerateOnchainKey()
	require.NoError(t, err)
	chanID := ticket.DeriveChannelID(source.Address(), dest.Address())
	tracker.SyncChannel(chanID, source.Address(), big.NewInt(1_000_000), 1, ticket.Open, nil)
	return &stubIssuer{tracker: tracker, key: source, chanID: chanID}
}

func genOffchainKey(t *testing.T) *hoprcrypto.OffchainKey {
	t.Helper()
	k, err := hoprcrypto.GenerateOffchainKey()
	require.NoError(t, err)
	return k
}

func TestEncodeDecodeDirectSendIsFinal(t *testing.T) {
	destKey := genOffchainKey(t)
	issuer := newStubIssuer(t)

	routing := Routing{Kind: RoutingForward, Hops: []hoprcrypto.OffchainPublicKey{destKey.Public()}}
	payload := []byte("hello hopr")

	out, openers, err := Encode(routing, payload, issuer)
	require.NoError(t, err)
	require.Empty(t, openers)

	decoded, err := Decode(out.Data, destKey)
	require.NoError(t, err)
	require.Equal(t, KindFinal, decoded.Kind)
	require.Equal(t, payload, decoded.Payload)
}

func TestEncodeDecodeTwoHopForwardsWithTicket(t *testing.T) {
	relayKey := genOffchainKey(t)
	destKey := genOffchainKey(t)
	issuer := newStubIssuer(t)

	routing := Routing{Kind: RoutingForward, Hops: []hoprcrypto.OffchainPublicKey{
		relayKey.Public(),
		destKey.Public(),
	}}
	payload := []byte("onion payload")

	out, _, err := Encode(routing, payload, issuer)
	require.NoError(t, err)
	require.Equal(t, DerivePeerID(relayKey.Public()), out.NextHop)

	atRelay, err := Decode(out.Data, relayKey)
	require.NoError(t, err)
	require.Equal(t, KindForwarded, atRelay.Kind)
	require.NotNil(t, atRelay.Ticket)
	require.NotNil(t, atRelay.OwnKeyShare)
	require.Equal(t, DerivePeerID(destKey.Public()), atRelay.NextHop)

	forwardIssuer := newStubIssuer(t)
	remainingHops := ticket.PathPosition(atRelay.Ticket.Ticket.Amount, big.NewInt(10), 1.0)
	reencoded, err := Reencode(atRelay, forwardIssuer, destKey.Public(), remainingHops)
	require.NoError(t, err)
	require.Equal(t, atRelay.NextHop, reencoded.NextHop)

	atDest, err := Decode(reencoded.Data, destKey)
	require.NoError(t, err)
	require.Equal(t, KindFinal, atDest.Kind)
	require.Equal(t, payload, atDest.Payload)
}

func TestDecodeRejectsTamperedMAC(t *testing.T) {
	destKey := genOffchainKey(t)
	issuer := newStubIssuer(t)

	routing := Routing{Kind: RoutingForward, Hops: []hoprcrypto.OffchainPublicKey{destKey.Public()}}
	out, _, err := Encode(routing, []byte("x"), issuer)
	require.NoError(t, err)

	out.Data[MaxHops*32] ^= 0xff // flip a bit inside the first routing-info field

	_, err = Decode(out.Data, destKey)
	require.ErrorIs(t, err, ErrInvalidMAC)
}

func TestEncodeRejectsTooManyHops(t *testing.T) {
	issuer := newStubIssuer(t)
	hops := make([]hoprcrypto.OffchainPublicKey, MaxHops+1)
	for i := range hops {
		hops[i] = genOffchainKey(t).Public()
	}
	_, _, err := Encode(Routing{Kind: RoutingForward, Hops: hops}, []byte("x"), issuer)
	require.ErrorIs(t, err, ErrTooManyHops)
}

func TestEncodeDecodeWithSurb(t *testing.T) {
	relayKey := genOffchainKey(t)
	destKey := genOffchainKey(t)
	issuer := newStubIssuer(t)

	s, err := buildSurb([]hoprcrypto.OffchainPublicKey{relayKey.Public(), destKey.Public()}, issuer)
	require.NoError(t, err)

	reply := []byte("reply payload")
	out, err := EncodeWithSurb(s, reply)
	require.NoError(t, err)
	require.Equal(t, s.FirstHop, out.NextHop)

	atRelay, err := Decode(out.Data, relayKey)
	require.NoError(t, err)
	require.Equal(t, KindForwarded, atRelay.Kind)

	forwardIssuer := newStubIssuer(t)
	remainingHops := ticket.PathPosition(atRelay.Ticket.Ticket.Amount, big.NewInt(10), 1.0)
	reencoded, err := Reencode(atRelay, forwardIssuer, destKey.Public(), remainingHops)
	require.NoError(t, err)

	atDest, err := Decode(reencoded.Data, destKey)
	require.NoError(t, err)
	require.Equal(t, KindFinal, atDest.Kind)

	mask, err := s.BodyMask()
	require.NoError(t, err)
	unmasked := make([]byte, len(atDest.Payload))
	for i := range unmasked {
		unmasked[i] = atDest.Payload[i] ^ mask[i]
	}
	require.Equal(t, reply, trimPadding(unmasked))
}
