package replay

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/hoprnet/hopr-relay/hoprcrypto"
)

func randomTag(t *testing.T, seed byte) [hoprcrypto.TagSize]byte {
	t.Helper()
	var tag [hoprcrypto.TagSize]byte
	for i := range tag {
		tag[i] = seed + byte(i)
	}
	return tag
}

func TestCheckAndSetFirstInsertNotPresent(t *testing.T) {
	f, err := New(1000)
	require.NoError(t, err)

	tag := randomTag(t, 1)
	present, err := f.CheckAndSet(tag)
	require.NoError(t, err)
	require.False(t, present)
}

func TestCheckAndSetDetectsDuplicate(t *testing.T) {
	f, err := New(1000)
	require.NoError(t, err)

	tag := randomTag(t, 2)
	_, err = f.CheckAndSet(tag)
	require.NoError(t, err)

	present, err := f.CheckAndSet(tag)
	require.NoError(t, err)
	require.True(t, present)
}

func TestCheckAndSetDistinctTagsDontCollideTrivially(t *testing.T) {
	f, err := New(1000)
	require.NoError(t, err)

	for i := byte(0); i < 50; i++ {
		present, err := f.CheckAndSet(randomTag(t, i*7))
		require.NoError(t, err)
		require.False(t, present, "tag %d reported present on first insert", i)
	}
}

func TestCapacityResetAllowsContinuedOperation(t *testing.T) {
	f, err := New(4)
	require.NoError(t, err)

	for i := byte(0); i < 10; i++ {
		_, err := f.CheckAndSet(randomTag(t, i*11))
		require.NoError(t, err)
	}
	require.LessOrEqual(t, f.count, f.capacity)
}

func TestNewRejectsZeroCapacity(t *testing.T) {
	_, err := New(0)
	require.Error(t, err)
}
