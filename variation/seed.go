package variation

import (
	"math/rand/v2"
	"sync/atomic"

	"github.com/cespare/xxhash/v2"
)

// SeedFactory derives independent random streams from one run seed. Named
// streams depend only on the seed and the name, so the order in which
// components ask for them does not matter. Next hands out sequential seeds
// for callers that consume in a fixed declared order.
type SeedFactory struct {
	seed uint64
	next atomic.Uint64
}

// NewSeedFactory returns a factory rooted at seed.
func NewSeedFactory(seed uint64) *SeedFactory {
	return &SeedFactory{seed: seed}
}

// Seed returns the root seed.
func (f *SeedFactory) Seed() uint64 { return f.seed }

// StreamSeed returns the seed Stream(name) would use.
func (f *SeedFactory) StreamSeed(name string) uint64 {
	return splitmix64(f.seed ^ xxhash.Sum64String(name))
}

// Stream returns a fresh PCG stream for name.
func (f *SeedFactory) Stream(name string) *rand.Rand {
	s := f.StreamSeed(name)
	return rand.New(rand.NewPCG(s, splitmix64(s)))
}

// Next returns the next sequential seed.
func (f *SeedFactory) Next() uint64 {
	n := f.next.Add(1)
	return splitmix64(f.seed + n*0x9e3779b97f4a7c15)
}

// splitmix64 is the SplitMix64 output mix.
func splitmix64(x uint64) uint64 {
	x += 0x9e3779b97f4a7c15
	x = (x ^ (x >> 30)) * 0xbf58476d1ce4e5b9
	x = (x ^ (x >> 27)) * 0x94d049bb133111eb
	return x ^ (x >> 31)
}

// runSeed mixes a master seed with a combination index and repetition.
func runSeed(master int64, index, repetition int) uint64 {
	s := splitmix64(uint64(master))
	s = splitmix64(s ^ uint64(index))
	return splitmix64(s ^ uint64(repetition)<<32)
}
