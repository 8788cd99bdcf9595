package variation

import (
	"iter"
	"sort"
)

// Variation is one fully resolved assignment of scenario parameters. It has
// no mutators; every accessor returns a copy.
type Variation struct {
	index      int
	repetition int
	masterSeed int64
	params     Params
	seeds      map[string]uint64
}

// Index is the position of the combination within the resolved set.
func (v Variation) Index() int { return v.index }

// Repetition is the 0-based pass over the combination set.
func (v Variation) Repetition() int { return v.repetition }

// MasterSeed is the master seed this combination was resolved under.
func (v Variation) MasterSeed() int64 { return v.masterSeed }

// Params returns a copy of the bound parameters.
func (v Variation) Params() Params { return v.params.clone() }

// Get returns one parameter value.
func (v Variation) Get(name string) (string, bool) { return v.params.Get(name) }

// Seed returns the seed used by random variable name.
func (v Variation) Seed(name string) (uint64, bool) {
	s, ok := v.seeds[name]
	return s, ok
}

// Seeds returns a copy of the per-variable seeds of random variables.
func (v Variation) Seeds() map[string]uint64 {
	out := make(map[string]uint64, len(v.seeds))
	for k, s := range v.seeds {
		out[k] = s
	}
	return out
}

// SeedNames returns the random variable names in sorted order.
func (v Variation) SeedNames() []string {
	names := make([]string, 0, len(v.seeds))
	for k := range v.seeds {
		names = append(names, k)
	}
	sort.Strings(names)
	return names
}

// RunSeed is the root seed of this run, derived from the master seed, the
// combination index and the repetition.
func (v Variation) RunSeed() uint64 { return runSeed(v.masterSeed, v.index, v.repetition) }

// SeedFactory returns a fresh factory rooted at RunSeed.
func (v Variation) SeedFactory() *SeedFactory { return NewSeedFactory(v.RunSeed()) }

// Sequence is the restartable, ordered list of variations produced by
// Resolve. The combination set is delivered Repetitions times.
type Sequence struct {
	combos      []Variation
	repetitions int
	pos         int
}

// Len is the total number of runs, combinations × repetitions.
func (s *Sequence) Len() int { return len(s.combos) * s.repetitions }

// Combinations is the number of distinct parameter assignments.
func (s *Sequence) Combinations() int { return len(s.combos) }

// Repetitions is how many passes the sequence makes.
func (s *Sequence) Repetitions() int { return s.repetitions }

// At returns the i-th run. It panics if i is out of range.
func (s *Sequence) At(i int) Variation {
	if i < 0 || i >= s.Len() {
		panic("variation: index out of range")
	}
	v := s.combos[i%len(s.combos)]
	v.repetition = i / len(s.combos)
	return v
}

// Next returns the next run and false once the sequence is exhausted.
func (s *Sequence) Next() (Variation, bool) {
	if s.pos >= s.Len() {
		return Variation{}, false
	}
	v := s.At(s.pos)
	s.pos++
	return v, true
}

// Reset restarts Next from the first run.
func (s *Sequence) Reset() { s.pos = 0 }

// All iterates every run with its ordinal, independently of Next.
func (s *Sequence) All() iter.Seq2[int, Variation] {
	return func(yield func(int, Variation) bool) {
		for i := 0; i < s.Len(); i++ {
			if !yield(i, s.At(i)) {
				return
			}
		}
	}
}
