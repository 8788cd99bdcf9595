// Package variation expands a scenario's looping variables into the
// deterministic sequence of parameter assignments that a sweep runs.
package variation

import (
	"context"
	"fmt"
	"math/rand/v2"
	"slices"
	"strings"

	"github.com/signalsfoundry/swarm-simulator/internal/logging"
)

// DefaultMasterSeedName names the master-seed variable when the scenario
// does not declare one.
const DefaultMasterSeedName = "seed"

// DefaultMaxVariations bounds the combination set of one scenario.
const DefaultMaxVariations = 1_000_000

// Scenario is the already-parsed variable tree of a scenario.
type Scenario struct {
	Variables []LoopingVariable
	// MasterSeed may be constant, ranged or enumerated with integer values.
	// Nil means a constant 1.
	MasterSeed *LoopingVariable
	// Repetitions is how many passes the sequence makes. Zero means 1.
	Repetitions int
}

type options struct {
	log           logging.Logger
	maxVariations int
}

// Option customizes Resolve.
type Option func(*options)

// WithLogger logs resolution progress at debug level.
func WithLogger(l logging.Logger) Option {
	return func(o *options) { o.log = logging.OrNoop(l) }
}

// WithMaxVariations overrides DefaultMaxVariations.
func WithMaxVariations(n int) Option {
	return func(o *options) { o.maxVariations = n }
}

// Resolve expands sc into its variation sequence. Resolving the same
// scenario twice yields identical sequences. Every failure is a
// *ConfigError.
func Resolve(sc Scenario, opts ...Option) (*Sequence, error) {
	o := options{log: logging.Noop(), maxVariations: DefaultMaxVariations}
	for _, opt := range opts {
		opt(&o)
	}
	if sc.Repetitions < 0 {
		return nil, &ConfigError{Err: fmt.Errorf("%w: negative repetitions %d", ErrInvalidVariable, sc.Repetitions)}
	}
	reps := sc.Repetitions
	if reps == 0 {
		reps = 1
	}

	g, err := buildGraph(sc)
	if err != nil {
		return nil, err
	}
	order, err := g.topoOrder()
	if err != nil {
		return nil, err
	}
	masters, err := masterSeeds(sc.MasterSeed)
	if err != nil {
		return nil, err
	}

	var combos []Variation
	for _, m := range masters {
		seeds := drawSeeds(sc.Variables, m)
		set, err := expand(sc.Variables, order, seeds, o.maxVariations-len(combos))
		if err != nil {
			return nil, err
		}
		for _, p := range set {
			combos = append(combos, Variation{
				index:      len(combos),
				masterSeed: m,
				params:     p,
				seeds:      seeds,
			})
		}
	}

	names := make([]string, len(order))
	for i, idx := range order {
		names[i] = sc.Variables[idx].Name
	}
	o.log.Debug(context.Background(), "scenario resolved",
		logging.Any("order", names),
		logging.Int("master_seeds", len(masters)),
		logging.Int("combinations", len(combos)),
		logging.Int("repetitions", reps),
	)
	return &Sequence{combos: combos, repetitions: reps}, nil
}

// graph is the variable dependency graph. Edges run from a dependency to
// its dependents; both lists are kept in declaration order.
type graph struct {
	vars       []LoopingVariable
	index      map[string]int
	deps       [][]int
	dependents [][]int
}

func buildGraph(sc Scenario) (*graph, error) {
	g := &graph{vars: sc.Variables, index: make(map[string]int, len(sc.Variables))}
	masterName := DefaultMasterSeedName
	if sc.MasterSeed != nil && sc.MasterSeed.Name != "" {
		masterName = sc.MasterSeed.Name
	}

	for i := range sc.Variables {
		v := &sc.Variables[i]
		if err := v.validate(); err != nil {
			return nil, configErr(v, err)
		}
		if _, dup := g.index[v.Name]; dup || v.Name == masterName {
			return nil, configErr(v, fmt.Errorf("%w: %q", ErrDuplicateVariable, v.Name))
		}
		g.index[v.Name] = i
	}

	g.deps = make([][]int, len(sc.Variables))
	g.dependents = make([][]int, len(sc.Variables))
	for i := range sc.Variables {
		v := &sc.Variables[i]
		seen := make(map[int]bool)
		add := func(j int) {
			if !seen[j] {
				seen[j] = true
				g.deps[i] = append(g.deps[i], j)
			}
		}
		for _, name := range v.DependsOn {
			j, ok := g.index[name]
			if !ok {
				return nil, configErr(v, fmt.Errorf("%w: %q", ErrMissingDependency, name))
			}
			add(j)
		}
		for _, tmpl := range v.templates() {
			for _, ph := range placeholders(tmpl) {
				j, ok := g.index[ph.name]
				if !ok {
					if ph.hasDefault {
						continue
					}
					return nil, configErr(v, fmt.Errorf("%w: %q has no default", ErrMissingDependency, ph.name))
				}
				add(j)
			}
		}
	}
	for i, deps := range g.deps {
		for _, j := range deps {
			g.dependents[j] = append(g.dependents[j], i)
		}
	}
	for j := range g.dependents {
		slices.Sort(g.dependents[j])
	}
	return g, nil
}

// topoOrder runs Kahn's algorithm. The ready queue starts with the
// dependency-free variables in declaration order and dependents are enqueued
// in declaration order as their last dependency is emitted.
func (g *graph) topoOrder() ([]int, error) {
	indeg := make([]int, len(g.vars))
	for i, deps := range g.deps {
		indeg[i] = len(deps)
	}
	queue := make([]int, 0, len(g.vars))
	for i, d := range indeg {
		if d == 0 {
			queue = append(queue, i)
		}
	}
	order := make([]int, 0, len(g.vars))
	for len(queue) > 0 {
		n := queue[0]
		queue = queue[1:]
		order = append(order, n)
		for _, m := range g.dependents[n] {
			indeg[m]--
			if indeg[m] == 0 {
				queue = append(queue, m)
			}
		}
	}
	if len(order) == len(g.vars) {
		return order, nil
	}

	var stuck []string
	first := -1
	for i, d := range indeg {
		if d > 0 {
			stuck = append(stuck, g.vars[i].Name)
			if first < 0 {
				first = i
			}
		}
	}
	return nil, configErr(&g.vars[first],
		fmt.Errorf("%w: unresolved %s", ErrCyclicDependency, strings.Join(stuck, ", ")))
}

// masterSeeds resolves the master-seed variable to its integer values.
func masterSeeds(mv *LoopingVariable) ([]int64, error) {
	if mv == nil {
		return []int64{1}, nil
	}
	v := *mv
	if v.Name == "" {
		v.Name = DefaultMasterSeedName
	}
	if v.Kind == Random {
		return nil, configErr(&v, fmt.Errorf("%w: master seed cannot be random", ErrInvalidMasterSeed))
	}
	if err := v.validate(); err != nil {
		return nil, configErr(&v, err)
	}
	vals, err := v.values(func(string) (string, bool) { return "", false }, 0)
	if err != nil {
		return nil, configErr(&v, err)
	}
	out := make([]int64, len(vals))
	for i, s := range vals {
		n, err := parseInteger(s)
		if err != nil {
			return nil, configErr(&v, fmt.Errorf("%w: %q is not an integer", ErrInvalidMasterSeed, s))
		}
		out[i] = n
	}
	return out, nil
}

// drawSeeds assigns a seed to every random variable. Unfixed seeds are drawn
// from the master stream in declaration order.
func drawSeeds(vars []LoopingVariable, master int64) map[string]uint64 {
	rng := rand.New(rand.NewPCG(uint64(master), 0))
	seeds := make(map[string]uint64)
	for i := range vars {
		v := &vars[i]
		if v.Kind != Random {
			continue
		}
		if v.Seed != nil {
			seeds[v.Name] = *v.Seed
			continue
		}
		seeds[v.Name] = rng.Uint64()
	}
	return seeds
}

// expand builds the ordered Cartesian product in topological order. A
// variable with one value extends every partial map in place; one with n
// values replaces each partial map with n clones.
func expand(vars []LoopingVariable, order []int, seeds map[string]uint64, limit int) ([]Params, error) {
	maps := []Params{{}}
	for _, idx := range order {
		v := &vars[idx]
		next := make([]Params, 0, len(maps))
		for _, m := range maps {
			vals, err := v.values(m.lookup, seeds[v.Name])
			if err != nil {
				return nil, configErr(v, err)
			}
			if len(vals) == 1 {
				m.set(v.Name, vals[0])
				next = append(next, m)
				continue
			}
			for _, val := range vals {
				c := m.clone()
				c.set(v.Name, val)
				next = append(next, c)
			}
			if len(next) > limit {
				return nil, configErr(v, fmt.Errorf("%w: more than %d", ErrTooManyVariations, limit))
			}
		}
		maps = next
	}
	if len(maps) > limit {
		return nil, &ConfigError{Err: fmt.Errorf("%w: more than %d", ErrTooManyVariations, limit)}
	}
	return maps, nil
}
