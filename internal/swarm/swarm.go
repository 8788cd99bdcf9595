package swarm

import (
	"fmt"

	"github.com/signalsfoundry/swarm-simulator/core"
	"github.com/signalsfoundry/swarm-simulator/rf"
)

// Swarm is a set of Beacons registered with one executive.
type Swarm struct {
	Agents []*Beacon

	samples      uint64
	neighbourSum float64
}

// Summary aggregates agent counters over a run.
type Summary struct {
	Agents int
	Sent   uint64
	Heard  uint64
	Missed uint64
	// MeanNeighbours is the per-agent neighbour count averaged over every
	// completed step.
	MeanNeighbours float64
}

// Build registers count Beacons with exec, each with radio ID i+1 on
// engine, and samples neighbour counts after every step.
func Build(exec *core.Executive, engine *rf.Engine, cfg Config, count int) (*Swarm, error) {
	if count < 0 {
		return nil, fmt.Errorf("swarm count must be >= 0, got %d", count)
	}
	s := &Swarm{Agents: make([]*Beacon, 0, count)}
	for i := 0; i < count; i++ {
		b := NewBeacon(engine, rf.RadioID(i+1), cfg)
		if _, err := exec.Register(b); err != nil {
			return nil, fmt.Errorf("register agent %d: %w", i, err)
		}
		s.Agents = append(s.Agents, b)
	}
	exec.AddStepListener(s.sample)
	return s, nil
}

func (s *Swarm) sample(float64) {
	if len(s.Agents) == 0 {
		return
	}
	total := 0
	for _, b := range s.Agents {
		total += len(b.neighbours)
	}
	s.samples++
	s.neighbourSum += float64(total) / float64(len(s.Agents))
}

// Summary returns the aggregated counters.
func (s *Swarm) Summary() Summary {
	out := Summary{Agents: len(s.Agents)}
	for _, b := range s.Agents {
		st := b.Stats()
		out.Sent += st.Sent
		out.Heard += st.Heard
		out.Missed += st.Missed
	}
	if s.samples > 0 {
		out.MeanNeighbours = s.neighbourSum / float64(s.samples)
	}
	return out
}
