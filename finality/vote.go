package finality

import (
	"fmt"

	"github.com/tfl-research/simtfl"
	"github.com/tfl-research/simtfl/chain"
)

// Vote is one committee member's suggestion of a trailing finalization point.
// Height records the voter's chain height at the time of voting. Votes are
// immutable once cast.
type Vote struct {
	Voter  simtfl.NodeID
	Target chain.BlockHash
	Height simtfl.Height
}

func (v Vote) String() string {
	return fmt.Sprintf("vote by %d for %s at height %d", v.Voter, v.Target, v.Height)
}

// voteKey identifies a (voter, target) pair for duplicate detection. A voter
// may vote for many targets over a run as finalization trails the tip, but
// only once per target.
type voteKey struct {
	voter  simtfl.NodeID
	target chain.BlockHash
}
