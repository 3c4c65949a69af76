package session

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSegmentIntoSplitsDataCorrectly(t *testing.T) {
	data := []byte{0xde, 0xad, 0xbe, 0xef, 0xca, 0xfe, 0xba, 0xbe}

	segments, err := SegmentFrame(data, 3, 1, false)
	require.NoError(t, err)
	require.Len(t, segments, 3)

	require.Equal(t, []byte{0xde, 0xad, 0xbe}, segments[0].Data)
	require.Equal(t, uint8(0), segments[0].SeqIdx)
	require.Equal(t, 3, segments[0].SeqFlags.Len())
	require.False(t, segments[0].SeqFlags.End())
	require.Equal(t, FrameID(1), segments[0].FrameID)

	require.Equal(t, []byte{0xef, 0xca, 0xfe}, segments[1].Data)
	require.Equal(t, uint8(1), segments[1].SeqIdx)

	require.Equal(t, []byte{0xba, 0xbe}, segments[2].Data)
	require.Equal(t, uint8(2), segments[2].SeqIdx)
}

func TestSegmentIntoMarksEndOfSessionOnFinalFrame(t *testing.T) {
	segments, err := SegmentFrame([]byte("bye"), 100, 3, true)
	require.NoError(t, err)
	require.Len(t, segments, 1)
	require.True(t, segments[0].SeqFlags.End())
	require.Equal(t, 1, segments[0].SeqFlags.Len())
}

func TestSegmentIntoRejectsZeroFrameID(t *testing.T) {
	_, err := SegmentFrame([]byte("x"), 10, 0, false)
	require.ErrorIs(t, err, ErrInvalidFrameID)
}

func TestSegmentIntoRejectsZeroMaxSegmentSize(t *testing.T) {
	_, err := SegmentFrame([]byte("x"), 0, 1, false)
	require.ErrorIs(t, err, ErrEmptyMaxSegmentSize)
}

func TestSegmentIntoRejectsOversizedData(t *testing.T) {
	data := make([]byte, MaxSegmentsPerFrame*2+1)
	_, err := SegmentFrame(data, 2, 1, false)
	require.ErrorIs(t, err, ErrDataTooLong)
}

func TestSegmentIntoSingleChunkWhenDataFits(t *testing.T) {
	segments, err := SegmentFrame([]byte("short"), 100, 7, false)
	require.NoError(t, err)
	require.Len(t, segments, 1)
	require.Equal(t, 1, segments[0].SeqFlags.Len())
	require.Equal(t, []byte("short"), segments[0].Data)
}

func TestNewSeqFlagsRejectsOutOfRangeCount(t *testing.T) {
	_, err := NewSeqFlags(0, false)
	require.Error(t, err)
	_, err = NewSeqFlags(MaxSegmentsPerFrame+1, false)
	require.Error(t, err)
}
