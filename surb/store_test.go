package surb

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/hoprnet/hopr-relay/packet"
)

func TestInsertAndPopReplyOpener(t *testing.T) {
	s := NewStore(4)
	var pseudonym [10]byte
	pseudonym[0] = 1
	var surbID [8]byte
	surbID[0] = 2

	opener := packet.SurbOpener{Pseudonym: pseudonym, SurbID: surbID, Secret: [32]byte{9}}
	s.InsertReplyOpener(pseudonym, surbID, opener)
	require.Equal(t, 1, s.Len(pseudonym))

	got, err := s.PopReplyOpener(pseudonym, surbID)
	require.NoError(t, err)
	require.Equal(t, opener, got)
	require.Equal(t, 0, s.Len(pseudonym))
}

func TestPopIsConsumeOnUse(t *testing.T) {
	s := NewStore(4)
	var pseudonym [10]byte
	var surbID [8]byte
	s.InsertReplyOpener(pseudonym, surbID, packet.SurbOpener{})

	_, err := s.PopReplyOpener(pseudonym, surbID)
	require.NoError(t, err)

	_, err = s.PopReplyOpener(pseudonym, surbID)
	require.ErrorIs(t, err, ErrNotFound)
}

func TestPopAnyFullSurbReturnsMostRecent(t *testing.T) {
	s := NewStore(4)
	var pseudonym [10]byte

	var id0, id1 [8]byte
	id0[0], id1[0] = 0, 1
	s.InsertFullSurb(pseudonym, id0, packet.Surb{CombinedSecret: [32]byte{1}})
	s.InsertFullSurb(pseudonym, id1, packet.Surb{CombinedSecret: [32]byte{2}})

	got, err := s.PopAnyFullSurb(pseudonym)
	require.NoError(t, err)
	require.Equal(t, [32]byte{2}, got.CombinedSecret)
	require.Equal(t, 1, s.Len(pseudonym))
}

func TestPopAnyFullSurbNotFound(t *testing.T) {
	s := NewStore(4)
	var pseudonym [10]byte

	_, err := s.PopAnyFullSurb(pseudonym)
	require.ErrorIs(t, err, ErrNotFound)
}

func TestCapacityEvictsLeastRecentlyUsed(t *testing.T) {
	s := NewStore(2)
	var pseudonym [10]byte

	var id0, id1, id2 [8]byte
	id0[0], id1[0], id2[0] = 0, 1, 2

	s.InsertReplyOpener(pseudonym, id0, packet.SurbOpener{})
	s.InsertReplyOpener(pseudonym, id1, packet.SurbOpener{})
	s.InsertReplyOpener(pseudonym, id2, packet.SurbOpener{})

	require.Equal(t, 2, s.Len(pseudonym))
	_, err := s.PopReplyOpener(pseudonym, id0)
	require.ErrorIs(t, err, ErrNotFound, "oldest entry should have been evicted")

	_, err = s.PopReplyOpener(pseudonym, id1)
	require.NoError(t, err)
	_, err = s.PopReplyOpener(pseudonym, id2)
	require.NoError(t, err)
}

func TestDistinctPseudonymsAreIndependent(t *testing.T) {
	s := NewStore(1)
	var p1, p2 [10]byte
	p1[0], p2[0] = 1, 2
	var surbID [8]byte

	s.InsertReplyOpener(p1, surbID, packet.SurbOpener{})
	s.InsertReplyOpener(p2, surbID, packet.SurbOpener{})

	require.Equal(t, 1, s.Len(p1))
	require.Equal(t, 1, s.Len(p2))
}

func TestInsertAndPopFullSurb(t *testing.T) {
	s := NewStore(4)
	var pseudonym [10]byte
	var surbID [8]byte

	full := packet.Surb{CombinedSecret: [32]byte{7}}
	s.InsertFullSurb(pseudonym, surbID, full)

	got, err := s.PopFullSurb(pseudonym, surbID)
	require.NoError(t, err)
	require.Equal(t, full, got)
}

func TestPopFullSurbNotFound(t *testing.T) {
	s := NewStore(4)
	var pseudonym [10]byte
	var surbID [8]byte
	_, err := s.PopFullSurb(pseudonym, surbID)
	require.ErrorIs(t, err, ErrNotFound)
}
