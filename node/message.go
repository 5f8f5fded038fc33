package node

import (
	"fmt"

	"github.com/tfl-research/simtfl/chain"
	"github.com/tfl-research/simtfl/finality"
)

// BlockMsg announces a newly produced block.
type BlockMsg struct {
	Block *chain.Block
}

func (m BlockMsg) String() string {
	return fmt.Sprintf("block %s at height %d", m.Block, m.Block.Height())
}

// VoteMsg carries a finality vote.
type VoteMsg struct {
	Vote finality.Vote
}

func (m VoteMsg) String() string {
	return m.Vote.String()
}

// msgKey identifies a message for gossip dedupe, so each node echoes a given
// message at most once.
func msgKey(msg any) (string, bool) {
	switch m := msg.(type) {
	case BlockMsg:
		return fmt.Sprintf("b:%x", m.Block.Hash()), true
	case VoteMsg:
		return fmt.Sprintf("v:%d:%x", m.Vote.Voter, m.Vote.Target), true
	default:
		return "", false
	}
}
