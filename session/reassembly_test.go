package session

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func segs(frameID FrameID, parts ...string) []Segment {
	flags, err := NewSeqFlags(len(parts), false)
	if err != nil {
		panic(err)
	}
	out := make([]Segment, len(parts))
	for i, p := range parts {
		out[i] = Segment{FrameID: frameID, SeqFlags: flags, SeqIdx: uint8(i), Data: []byte(p)}
	}
	return out
}

func TestReassemblerDeliversSingleSegmentFrameImmediately(t *testing.T) {
	r := NewReassembler(time.Second)
	now := time.Now()

	out := r.Add(segs(1, "hello")[0], now)
	require.Len(t, out, 1)
	require.Equal(t, FrameID(1), out[0].FrameID)
	require.Equal(t, []byte("hello"), out[0].Data)
	require.False(t, out[0].Gap)
}

func TestReassemblerHoldsPartialFrame(t *testing.T) {
	r := NewReassembler(time.Second)
	now := time.Now()

	parts := segs(1, "ab", "cd")
	out := r.Add(parts[0], now)
	require.Empty(t, out)

	out = r.Add(parts[1], now)
	require.Len(t, out, 1)
	require.Equal(t, []byte("abcd"), out[0].Data)
}

func TestReassemblerDeliversInFrameIDOrder(t *testing.T) {
	r := NewReassembler(time.Second)
	now := time.Now()

	// Frame 2 arrives fully before frame 1; it must be held back.
	out := r.Add(segs(2, "two")[0], now)
	require.Empty(t, out)

	out = r.Add(segs(1, "one")[0], now)
	require.Len(t, out, 2)
	require.Equal(t, FrameID(1), out[0].FrameID)
	require.Equal(t, []byte("one"), out[0].Data)
	require.Equal(t, FrameID(2), out[1].FrameID)
	require.Equal(t, []byte("two"), out[1].Data)
}

func TestReassemblerSurfacesGapAfterStallTimeout(t *testing.T) {
	r := NewReassembler(2 * time.Second)
	now := time.Now()

	// Frame 2 completes while frame 1 never arrives.
	out := r.Add(segs(2, "two")[0], now)
	require.Empty(t, out)

	// Before the stall timeout elapses, nothing is released.
	out = r.Tick(now.Add(time.Second))
	require.Empty(t, out)

	// After the stall timeout, frame 1 is surfaced as a gap and frame 2
	// follows immediately.
	out = r.Tick(now.Add(3 * time.Second))
	require.Len(t, out, 2)
	require.Equal(t, FrameID(1), out[0].FrameID)
	require.True(t, out[0].Gap)
	require.Nil(t, out[0].Data)
	require.Equal(t, FrameID(2), out[1].FrameID)
	require.Equal(t, []byte("two"), out[1].Data)
}

func TestReassemblerPropagatesEndOfSessionFlag(t *testing.T) {
	r := NewReassembler(time.Second)
	now := time.Now()

	flags, err := NewSeqFlags(1, true)
	require.NoError(t, err)
	seg := Segment{FrameID: 1, SeqFlags: flags, SeqIdx: 0, Data: []byte("bye")}

	out := r.Add(seg, now)
	require.Len(t, out, 1)
	require.True(t, out[0].End)
}

func TestReassemblerIgnoresDuplicateSegment(t *testing.T) {
	r := NewReassembler(time.Second)
	now := time.Now()

	parts := segs(1, "ab", "cd")
	r.Add(parts[0], now)
	r.Add(parts[0], now) // duplicate of the same segment index
	out := r.Add(parts[1], now)
	require.Len(t, out, 1)
	require.Equal(t, []byte("abcd"), out[0].Data)
}
