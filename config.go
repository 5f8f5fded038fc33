package simtfl

import "errors"

// LatencyKind selects the per-message propagation delay sampler.
type LatencyKind string

const (
	LatencyFixed   LatencyKind = "fixed"
	LatencyUniform LatencyKind = "uniform"
)

// Config is the recognized configuration surface of a simulation run.
type Config struct {
	// CommitteeSize is the number of voters; it is also the number of nodes.
	CommitteeSize int `mapstructure:"committee-size"`
	// QuorumFraction is the finalization threshold in (0, 1].
	QuorumFraction float64 `mapstructure:"quorum-fraction"`
	// Latency selects the per-channel delay sampler.
	Latency LatencyKind `mapstructure:"latency"`
	// FixedDelay is the delay for LatencyFixed.
	FixedDelay Duration `mapstructure:"fixed-delay"`
	// MinDelay and MaxDelay bound the delay for LatencyUniform.
	MinDelay Duration `mapstructure:"min-delay"`
	MaxDelay Duration `mapstructure:"max-delay"`
	// LossProbability is the per-message drop chance in [0, 1).
	LossProbability float64 `mapstructure:"loss-probability"`
	// RandomSeed makes runs reproducible.
	RandomSeed int64 `mapstructure:"random-seed"`
	// BlockInterval is the cadence of block production per node.
	BlockInterval Duration `mapstructure:"block-interval"`
	// TrailingDepth is how far behind its tip a node votes to finalize.
	TrailingDepth uint64 `mapstructure:"trailing-depth"`
}

func DefaultConfig() Config {
	return Config{
		CommitteeSize:   3,
		QuorumFraction:  2.0 / 3.0,
		Latency:         LatencyFixed,
		FixedDelay:      1,
		BlockInterval:   10,
		TrailingDepth:   2,
		LossProbability: 0,
		RandomSeed:      1,
	}
}

func (cfg Config) Validate() error {
	if cfg.CommitteeSize <= 0 {
		return errors.New("committee size must be > 0")
	}
	if cfg.QuorumFraction <= 0 || cfg.QuorumFraction > 1 {
		return errors.New("quorum fraction must be in (0, 1]")
	}
	switch cfg.Latency {
	case LatencyFixed:
		if cfg.FixedDelay < 0 {
			return errors.New("fixed delay must be >= 0")
		}
	case LatencyUniform:
		if cfg.MinDelay < 0 || cfg.MaxDelay < cfg.MinDelay {
			return errors.New("invalid uniform delay bounds")
		}
	default:
		return errors.New("unknown latency kind")
	}
	if cfg.LossProbability < 0 || cfg.LossProbability >= 1 {
		return errors.New("loss probability must be in [0, 1)")
	}
	if cfg.BlockInterval <= 0 {
		return errors.New("block interval must be > 0")
	}
	return nil
}
