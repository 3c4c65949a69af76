package ack

import (
	"math/big"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/hoprnet/hopr-relay/hoprcrypto"
	"github.com/hoprnet/hopr-relay/packet"
	"github.com/hoprnet/hopr-relay/ticket"
)

func TestRegisterAsSenderResolvesOnMatchingAck(t *testing.T) {
	r := NewRegistry(ticket.NewTracker())

	own, err := hoprcrypto.GenerateHalfKey()
	require.NoError(t, err)
	challenge := own.Challenge()

	done := r.RegisterAsSender(challenge, time.Minute)

	share, err := hoprcrypto.GenerateHalfKey()
	require.NoError(t, err)

	resolved, err := r.Resolve(Acknowledgement{Challenge: challenge, KeyShare: share})
	require.NoError(t, err)
	require.Equal(t, WaitingAsSender, resolved.Role)

	select {
	case <-done:
	default:
		t.Fatal("expected done channel to be closed")
	}
}

func TestResolveUnknownChallengeReturnsNotFound(t *testing.T) {
	r := NewRegistry(ticket.NewTracker())
	share, err := hoprcrypto.GenerateHalfKey()
	require.NoError(t, err)

	var bogus hoprcrypto.HalfKeyChallenge
	_, err = r.Resolve(Acknowledgement{Challenge: bogus, KeyShare: share})
	require.ErrorIs(t, err, ErrNotFound)
}

func TestRegisterAsRelayerCombinesSharesAndRedeems(t *testing.T) {
	tr := ticket.NewTracker()

	source, err := hoprcrypto.GenerateOnchainKey()
	require.NoError(t, err)
	dest, err := hoprcrypto.GenerateOnchainKey()
	require.NoError(t, err)

	chID := ticket.DeriveChannelID(source.Address(), dest.Address())
	tr.SyncChannel(chID, source.Address(), big.NewInt(1_000_000), 1, ticket.Open, nil)

	own, err := hoprcrypto.GenerateHalfKey()
	require.NoError(t, err)
	ackShare, err := hoprcrypto.GenerateHalfKey()
	require.NoError(t, err)
	challenge, err := hoprcrypto.CombineChallenges(own.Challenge(), ackShare.Challenge())
	require.NoError(t, err)

	signed, err := tr.CreateMultihopTicket(chID, source, 3, big.NewInt(100), 1.0, challenge)
	require.NoError(t, err)

	r := NewRegistry(tr)
	prevHop := packet.PeerID{0xaa}
	r.RegisterAsRelayer(challenge, signed, own, prevHop, time.Minute)

	resolved, err := r.Resolve(Acknowledgement{Challenge: challenge, KeyShare: ackShare})
	require.NoError(t, err)
	require.Equal(t, WaitingAsRelayer, resolved.Role)
	require.Equal(t, prevHop, resolved.PreviousHop)
	require.Equal(t, ticket.Untouched, resolved.Response.Status)
}

func TestRegisterDoesNotReplaceLiveEntry(t *testing.T) {
	r := NewRegistry(ticket.NewTracker())

	own, err := hoprcrypto.GenerateHalfKey()
	require.NoError(t, err)
	challenge := own.Challenge()

	first := r.RegisterAsSender(challenge, time.Minute)
	_ = r.RegisterAsSender(challenge, time.Minute)

	share, err := hoprcrypto.GenerateHalfKey()
	require.NoError(t, err)
	_, err = r.Resolve(Acknowledgement{Challenge: challenge, KeyShare: share})
	require.NoError(t, err)

	select {
	case <-first:
	default:
		t.Fatal("expected original registration's channel to be the one resolved")
	}
}

func TestSweepRemovesExpiredEntries(t *testing.T) {
	r := NewRegistry(ticket.NewTracker())
	own, err := hoprcrypto.GenerateHalfKey()
	require.NoError(t, err)
	challenge := own.Challenge()

	r.RegisterAsSender(challenge, -time.Second)
	require.Equal(t, 1, r.Len())

	removed := r.Sweep(time.Now())
	require.Equal(t, 1, removed)
	require.Equal(t, 0, r.Len())
}
