package node

import (
	"fmt"

	"github.com/rs/zerolog"

	"github.com/tfl-research/simtfl"
	"github.com/tfl-research/simtfl/chain"
	"github.com/tfl-research/simtfl/finality"
	"github.com/tfl-research/simtfl/network"
	"github.com/tfl-research/simtfl/sim"
)

// Simulation wires a scheduler, a network of committee nodes, the block
// universe, and the finality set into one runnable scenario. It is the
// surface consumed by demo and reporting collaborators.
type Simulation struct {
	cfg      simtfl.Config
	sched    *sim.Scheduler
	net      *network.Network
	universe *chain.Store
	final    *finality.Set
	trace    *simtfl.Trace
}

func NewSimulation(cfg simtfl.Config, logger zerolog.Logger) (*Simulation, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	latency, err := network.LatencyFromConfig(cfg)
	if err != nil {
		return nil, err
	}

	sched := sim.New(logger)
	trace := simtfl.NewTrace(logger)
	rng := network.NewRand(cfg.RandomSeed)
	net := network.New(sched, rng, latency, cfg.LossProbability, trace, logger)
	universe := chain.NewStore()
	final, err := finality.NewSet(sched, universe, cfg.CommitteeSize, cfg.QuorumFraction, trace, logger)
	if err != nil {
		return nil, err
	}

	s := &Simulation{
		cfg:      cfg,
		sched:    sched,
		net:      net,
		universe: universe,
		final:    final,
		trace:    trace,
	}
	for i := 0; i < cfg.CommitteeSize; i++ {
		n, err := NewNode(cfg, universe, final, trace)
		if err != nil {
			return nil, err
		}
		net.AddNode(n)
	}
	return s, nil
}

// Run starts every node and advances the simulation to the given time. Node
// processes never terminate on their own, so an end time is required.
func (s *Simulation) Run(until simtfl.Time) error {
	return s.net.RunUntil(until)
}

func (s *Simulation) Scheduler() *sim.Scheduler { return s.sched }

func (s *Simulation) Network() *network.Network { return s.net }

func (s *Simulation) Universe() *chain.Store { return s.universe }

// Finality exposes the run's finality set for external reporting.
func (s *Simulation) Finality() *finality.Set { return s.final }

// Trace exposes the run's event trace for external reporting.
func (s *Simulation) Trace() *simtfl.Trace { return s.trace }
