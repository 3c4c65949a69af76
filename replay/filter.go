// Package replay implements the packet-tag replay filter: a capacity-bounded
// Bloom filter that a hop consults before doing anything else with a
// decoded packet (forwarding, acknowledging, delivering) so a duplicated
// packet has no further effect.
package replay

import (
	"crypto/rand"
	"fmt"
	"math"
	"sync"

	"github.com/bits-and-blooms/bitset"
	"github.com/btcsuite/btclog"
	"golang.org/x/crypto/blake2b"

	"github.com/hoprnet/hopr-relay/hoprcrypto"
)

// log is the package-wide sublogger, set via UseLogger the way every
// teacher subsystem wires its own btclog.Logger.
var log = btclog.Disabled

// UseLogger sets the package-wide logger used for capacity-reset warnings.
func UseLogger(l btclog.Logger) {
	log = l
}

// falsePositiveRate is the target false-positive rate the filter is sized
// for at construction (spec.md section 4.D: p = 1e-5).
const falsePositiveRate = 1e-5

// Filter is a Bloom filter over packet tags (hoprcrypto.TagSize bytes
// each). It is safe for concurrent use.
type Filter struct {
	mu sync.Mutex

	capacity uint
	m        uint // bit array size
	k        uint // number of hash functions
	seed     [16]byte
	bits     *bitset.BitSet
	count    uint
}

// New builds a Filter sized for capacity expected insertions at the
// package's target false-positive rate, with a random per-instance seed so
// two nodes never derive identical bit patterns from the same tags.
func New(capacity uint) (*Filter, error) {
	if capacity == 0 {
		return nil, fmt.Errorf("replay: capacity must be positive")
	}
	var seed [16]byte
	if _, err := rand.Read(seed[:]); err != nil {
		return nil, fmt.Errorf("replay: seeding filter: %w", err)
	}
	m, k := estimateParameters(capacity, falsePositiveRate)
	return &Filter{
		capacity: capacity,
		m:        m,
		k:        k,
		seed:     seed,
		bits:     bitset.New(m),
	}, nil
}

// estimateParameters computes the standard Bloom filter sizing formulas:
// m = -n*ln(p)/(ln(2)^2) bits, k = (m/n)*ln(2) hash functions. bitset only
// provides the bit array itself, not this arithmetic, so it lives here.
func estimateParameters(n uint, p float64) (m uint, k uint) {
	nf := float64(n)
	mf := math.Ceil(-nf * math.Log(p) / (math.Ln2 * math.Ln2))
	kf := math.Ceil(mf / nf * math.Ln2)
	if kf < 1 {
		kf = 1
	}
	return uint(mf), uint(kf)
}

// CheckAndSet reports whether tag was already present, inserting it
// either way. On reaching its sized capacity the filter resets itself
// (fresh bit array, freshly drawn random seed) and logs at warn: keys
// rotate frequently relative to N, so a reset's false-negative window is
// an accepted tradeoff (spec.md section 4.D).
func (f *Filter) CheckAndSet(tag [hoprcrypto.TagSize]byte) (wasPresent bool, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.count >= f.capacity {
		log.Warnf("replay filter reached capacity %d, resetting", f.capacity)
		f.bits = bitset.New(f.m)
		f.count = 0
		if _, err := rand.Read(f.seed[:]); err != nil {
			return false, fmt.Errorf("replay: reseeding filter: %w", err)
		}
	}

	h1, h2, err := f.doubleHash(tag)
	if err != nil {
		return false, err
	}

	present := true
	positions := make([]uint, f.k)
	for i := uint(0); i < f.k; i++ {
		pos := (h1 + i*h2) % f.m
		positions[i] = pos
		if !f.bits.Test(pos) {
			present = false
		}
	}
	if present {
		return true, nil
	}

	for _, pos := range positions {
		f.bits.Set(pos)
	}
	f.count++
	return false, nil
}

// doubleHash derives two independent 64-bit values from tag using a single
// keyed BLAKE2b digest, per Kirsch-Mitzenmacher: g_i(x) = h1(x) + i*h2(x).
func (f *Filter) doubleHash(tag [hoprcrypto.TagSize]byte) (h1, h2 uint, err error) {
	mac, err := blake2b.New(32, f.seed[:])
	if err != nil {
		return 0, 0, fmt.Errorf("replay: building hash: %w", err)
	}
	mac.Write(tag[:])
	sum := mac.Sum(nil)

	h1 = uint(beUint64(sum[0:8]))
	h2 = uint(beUint64(sum[8:16]))
	if h2 == 0 {
		h2 = 1
	}
	return h1, h2, nil
}

func beUint64(b []byte) uint64 {
	var v uint64
	for _, c := range b {
		v = v<<8 | uint64(c)
	}
	return v
}
