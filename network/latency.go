package network

import (
	"errors"
	"math/rand"

	"github.com/seehuhn/mt19937"

	"github.com/tfl-research/simtfl"
)

// Latency samples a per-message propagation delay. Implementations must be
// pure functions of the rng state so runs stay reproducible.
type Latency interface {
	Sample(rng *rand.Rand) simtfl.Duration
}

type fixedLatency simtfl.Duration

func (d fixedLatency) Sample(*rand.Rand) simtfl.Duration {
	return simtfl.Duration(d)
}

// FixedLatency delays every message by exactly d.
func FixedLatency(d simtfl.Duration) Latency {
	return fixedLatency(d)
}

// UniformLatency delays each message by an independent draw from
// [Min, Max], both ends inclusive.
type UniformLatency struct {
	Min, Max simtfl.Duration
}

func (u UniformLatency) Sample(rng *rand.Rand) simtfl.Duration {
	return u.Min + simtfl.Duration(rng.Int63n(int64(u.Max-u.Min)+1))
}

// LatencyFromConfig builds the sampler selected by the configuration.
func LatencyFromConfig(cfg simtfl.Config) (Latency, error) {
	switch cfg.Latency {
	case simtfl.LatencyFixed:
		return FixedLatency(cfg.FixedDelay), nil
	case simtfl.LatencyUniform:
		return UniformLatency{Min: cfg.MinDelay, Max: cfg.MaxDelay}, nil
	default:
		return nil, errors.New("unknown latency kind")
	}
}

// NewRand returns a Mersenne-Twister rand seeded for reproducibility. All
// stochastic choices of a run (latency draws, loss decisions) come from one
// such source, consumed in event-loop order.
func NewRand(seed int64) *rand.Rand {
	mt := mt19937.New()
	mt.Seed(seed)
	return rand.New(mt)
}
