package finality

import (
	"bytes"
	"errors"
	"fmt"
	"math"
	"slices"

	"github.com/rs/zerolog"

	"github.com/tfl-research/simtfl"
	"github.com/tfl-research/simtfl/chain"
	"github.com/tfl-research/simtfl/sim"
)

var (
	ErrDuplicatedVote     = errors.New("duplicated vote")
	ErrNotCommitteeMember = errors.New("voter is not a committee member")
	ErrUnknownTarget      = errors.New("vote target is not a known block")
)

// SafetyViolationError reports that finalizing Conflicting would break the
// single-chain invariant established by Finalized. It is always fatal: it
// means either a bug in the state machine or a protocol counterexample worth
// reporting.
type SafetyViolationError struct {
	Finalized   *chain.Block
	Conflicting *chain.Block
}

func (e *SafetyViolationError) Error() string {
	return fmt.Sprintf("safety violation: block %s at height %d conflicts with finalized %s at height %d",
		e.Conflicting, e.Conflicting.Height(), e.Finalized, e.Finalized.Height())
}

// Status tracks a candidate block through the finality state machine.
type Status int

const (
	StatusProposed Status = iota
	StatusVoting
	StatusFinalized
	StatusSuperseded
)

func (st Status) String() string {
	switch st {
	case StatusProposed:
		return "Proposed"
	case StatusVoting:
		return "Voting"
	case StatusFinalized:
		return "Finalized"
	case StatusSuperseded:
		return "Superseded"
	default:
		return "Unknown"
	}
}

// Set aggregates committee votes for a single simulation run and decides the
// finalized prefix. A vote for a block endorses all of its ancestors; once a
// block's support reaches the quorum threshold it and its ancestors become
// Finalized, and every other known block at a height at or below it becomes
// Superseded. The Finalized blocks always form a single chain regardless of
// message delay, reordering, or loss.
type Set struct {
	sched    *sim.Scheduler
	universe *chain.Store

	committee int
	threshold int

	votes   []Vote
	seen    map[voteKey]struct{}
	support map[chain.BlockHash]map[simtfl.NodeID]struct{}
	status  map[chain.BlockHash]Status

	// lastFinal is the deepest finalized block; genesis is finalized by
	// definition.
	lastFinal *chain.Block

	trace  *simtfl.Trace
	logger zerolog.Logger
}

func NewSet(
	sched *sim.Scheduler,
	universe *chain.Store,
	committeeSize int,
	quorumFraction float64,
	trace *simtfl.Trace,
	logger zerolog.Logger,
) (*Set, error) {
	if committeeSize <= 0 {
		return nil, errors.New("committee size must be > 0")
	}
	if quorumFraction <= 0 || quorumFraction > 1 {
		return nil, errors.New("quorum fraction must be in (0, 1]")
	}
	return &Set{
		sched:     sched,
		universe:  universe,
		committee: committeeSize,
		threshold: quorumThreshold(committeeSize, quorumFraction),
		seen:      make(map[voteKey]struct{}),
		support:   make(map[chain.BlockHash]map[simtfl.NodeID]struct{}),
		status: map[chain.BlockHash]Status{
			universe.Genesis().Hash(): StatusFinalized,
		},
		lastFinal: universe.Genesis(),
		trace:     trace,
		logger:    logger,
	}, nil
}

// quorumThreshold is the least vote count at or above committee * fraction.
// The epsilon guards against the product landing just above an integer it is
// mathematically equal to.
func quorumThreshold(committee int, fraction float64) int {
	return int(math.Ceil(float64(committee)*fraction - 1e-9))
}

// Threshold returns the number of votes required to finalize a block.
func (f *Set) Threshold() int {
	return f.threshold
}

// Committee returns the number of voters.
func (f *Set) Committee() int {
	return f.committee
}

// LastFinal returns the deepest finalized block.
func (f *Set) LastFinal() *chain.Block {
	return f.lastFinal
}

// FinalizedHeight returns the height of the finalized prefix. It never
// decreases over a run.
func (f *Set) FinalizedHeight() simtfl.Height {
	return f.lastFinal.Height()
}

// Votes returns every accepted vote in arrival order.
func (f *Set) Votes() []Vote {
	return f.votes
}

// Status returns the state of the candidate block with the given hash.
func (f *Set) Status(h chain.BlockHash) Status {
	if st, ok := f.status[h]; ok {
		return st
	}
	if _, ok := f.support[h]; ok {
		return StatusVoting
	}
	return StatusProposed
}

// Statuses returns the per-block status of every block in the universe, for
// external reporting.
func (f *Set) Statuses() map[chain.BlockHash]Status {
	out := make(map[chain.BlockHash]Status, f.universe.Len())
	for b := range f.universe.All() {
		out[b.Hash()] = f.Status(b.Hash())
	}
	return out
}

// AddVote records a vote and advances the state machine. Duplicated votes and
// votes from outside the committee are rejected without effect. A
// *SafetyViolationError is returned if the vote would finalize a block
// conflicting with the already finalized chain.
func (f *Set) AddVote(v Vote) error {
	if v.Voter < 0 || int(v.Voter) >= f.committee {
		return fmt.Errorf("%w: %d", ErrNotCommitteeMember, v.Voter)
	}
	target, ok := f.universe.Get(v.Target)
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownTarget, v.Target)
	}
	key := voteKey{voter: v.Voter, target: v.Target}
	if _, dup := f.seen[key]; dup {
		return ErrDuplicatedVote
	}
	f.seen[key] = struct{}{}
	f.votes = append(f.votes, v)

	// A vote for height h implicitly endorses every ancestor.
	for b := range chain.Ancestors(target) {
		set, ok := f.support[b.Hash()]
		if !ok {
			set = make(map[simtfl.NodeID]struct{})
			f.support[b.Hash()] = set
		}
		set[v.Voter] = struct{}{}
	}

	f.trace.Add(f.sched.Now(), v.Voter, simtfl.TraceVote,
		fmt.Sprintf("for %s at height %d (%d/%d)", target, target.Height(), len(f.support[v.Target]), f.threshold))

	// The highest newly quorate block in the target's ancestry; its
	// ancestors hold a superset of its support, so finalizing it finalizes a
	// consistent prefix.
	var candidate *chain.Block
	for b := range chain.Ancestors(target) {
		if len(f.support[b.Hash()]) >= f.threshold {
			candidate = b
			break
		}
	}
	if candidate == nil || candidate == f.lastFinal {
		return nil
	}
	return f.finalize(candidate)
}

func (f *Set) finalize(candidate *chain.Block) error {
	if f.status[candidate.Hash()] == StatusSuperseded || !chain.IsAncestor(f.lastFinal, candidate) {
		if chain.IsAncestor(candidate, f.lastFinal) {
			// Already part of the finalized prefix.
			return nil
		}
		return &SafetyViolationError{Finalized: f.lastFinal, Conflicting: candidate}
	}

	for b := range chain.Ancestors(candidate) {
		if f.status[b.Hash()] == StatusFinalized {
			break
		}
		f.status[b.Hash()] = StatusFinalized
		f.trace.Add(f.sched.Now(), b.Producer(), simtfl.TraceFinalize,
			fmt.Sprintf("block %s at height %d", b, b.Height()))
	}
	f.lastFinal = candidate

	// Everything at or below the finalized height that is not on the
	// finalized chain can never be finalized now. The universe is a map, so
	// sort the sweep to keep trace output reproducible.
	var losers []*chain.Block
	for b := range f.universe.All() {
		if b.Height() > candidate.Height() {
			continue
		}
		if st := f.status[b.Hash()]; st == StatusFinalized || st == StatusSuperseded {
			continue
		}
		if chain.IsAncestor(b, candidate) {
			continue
		}
		losers = append(losers, b)
	}
	slices.SortFunc(losers, func(a, b *chain.Block) int {
		if a.Height() != b.Height() {
			return int(a.Height()) - int(b.Height())
		}
		ah, bh := a.Hash(), b.Hash()
		return bytes.Compare(ah[:], bh[:])
	})
	for _, b := range losers {
		f.status[b.Hash()] = StatusSuperseded
		f.trace.Add(f.sched.Now(), b.Producer(), simtfl.TraceSupersede,
			fmt.Sprintf("block %s at height %d", b, b.Height()))
	}

	f.logger.Info().
		Stringer("block", candidate).
		Uint64("height", uint64(candidate.Height())).
		Msg("finalized prefix advanced")
	return nil
}
