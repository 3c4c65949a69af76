package surbbalancer

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func testPseudonym(b byte) Pseudonym {
	var p Pseudonym
	p[0] = b
	return p
}

func TestSurbsToAttachMaxesOutUnknownPseudonym(t *testing.T) {
	cfg := DefaultConfig()
	bal := New(cfg, func(Pseudonym, int) error { return nil })

	require.Equal(t, cfg.MaxSurbsPerPacket, bal.SurbsToAttach(testPseudonym(1)))
}

func TestSurbsToAttachConvergesTowardTarget(t *testing.T) {
	cfg := DefaultConfig()
	cfg.TargetPoolSize = 16
	cfg.MaxSurbsPerPacket = 4
	bal := New(cfg, func(Pseudonym, int) error { return nil })

	p := testPseudonym(2)
	bal.ReportPoolSize(p, 15) // already near target: small deficit

	got := bal.SurbsToAttach(p)
	require.GreaterOrEqual(t, got, 0)
	require.LessOrEqual(t, got, cfg.MaxSurbsPerPacket)
}

func TestSurbsToAttachReturnsZeroAtOrAboveTarget(t *testing.T) {
	cfg := DefaultConfig()
	bal := New(cfg, func(Pseudonym, int) error { return nil })

	p := testPseudonym(3)
	bal.ReportPoolSize(p, 100) // far above target

	require.Equal(t, 0, bal.SurbsToAttach(p))
}

func TestSurbsToAttachCapsAtMaxPerPacket(t *testing.T) {
	cfg := DefaultConfig()
	cfg.TargetPoolSize = 1000
	cfg.MaxSurbsPerPacket = 4
	bal := New(cfg, func(Pseudonym, int) error { return nil })

	p := testPseudonym(4)
	bal.ReportPoolSize(p, 0)

	require.Equal(t, cfg.MaxSurbsPerPacket, bal.SurbsToAttach(p))
}

func TestAlwaysMaxOutSurbsIgnoresEMA(t *testing.T) {
	cfg := DefaultConfig()
	cfg.AlwaysMaxOutSurbs = true
	cfg.MaxSurbsPerPacket = 7
	bal := New(cfg, func(Pseudonym, int) error { return nil })

	p := testPseudonym(5)
	bal.ReportPoolSize(p, 1000) // would otherwise yield 0

	require.Equal(t, 7, bal.SurbsToAttach(p))
}

func TestScanOnceEmitsKeepAliveBelowLowWatermark(t *testing.T) {
	cfg := DefaultConfig()
	cfg.LowWatermark = 4

	var emitted []Pseudonym
	bal := New(cfg, func(p Pseudonym, surbs int) error {
		emitted = append(emitted, p)
		require.Equal(t, cfg.MaxSurbsPerPacket, surbs)
		return nil
	})

	p := testPseudonym(6)
	bal.ReportPoolSize(p, 1) // below low watermark

	bal.scanOnce()

	require.Equal(t, []Pseudonym{p}, emitted)
}

func TestScanOnceSkipsPseudonymsAboveLowWatermark(t *testing.T) {
	cfg := DefaultConfig()
	cfg.LowWatermark = 4

	var emitted []Pseudonym
	bal := New(cfg, func(p Pseudonym, surbs int) error {
		emitted = append(emitted, p)
		return nil
	})

	p := testPseudonym(7)
	bal.ReportPoolSize(p, 10) // comfortably above low watermark

	bal.scanOnce()

	require.Empty(t, emitted)
}

func TestForgetRemovesPseudonymState(t *testing.T) {
	cfg := DefaultConfig()
	bal := New(cfg, func(Pseudonym, int) error { return nil })

	p := testPseudonym(8)
	bal.ReportPoolSize(p, 2)
	bal.Forget(p)

	// With state forgotten, the pseudonym is "unknown" again and maxes
	// out rather than reporting the stale low estimate.
	require.Equal(t, cfg.MaxSurbsPerPacket, bal.SurbsToAttach(p))
}
