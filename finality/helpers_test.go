package finality

import (
	"io"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/tfl-research/simtfl"
	"github.com/tfl-research/simtfl/chain"
	"github.com/tfl-research/simtfl/sim"
)

func testLogger() zerolog.Logger {
	return zerolog.New(io.Discard)
}

func newTestSet(t *testing.T, committee int, fraction float64) (*chain.Store, *Set, *simtfl.Trace) {
	t.Helper()
	store := chain.NewStore()
	trace := simtfl.NewTrace(testLogger())
	set, err := NewSet(sim.New(testLogger()), store, committee, fraction, trace, testLogger())
	require.NoError(t, err)
	return store, set, trace
}

// grow produces n blocks on top of parent and returns them tip-last.
func grow(t *testing.T, store *chain.Store, parent *chain.Block, n int) []*chain.Block {
	t.Helper()
	out := make([]*chain.Block, 0, n)
	for i := 0; i < n; i++ {
		b, err := store.Produce(parent.Hash(), 0)
		require.NoError(t, err)
		out = append(out, b)
		parent = b
	}
	return out
}

func vote(voter simtfl.NodeID, b *chain.Block) Vote {
	return Vote{Voter: voter, Target: b.Hash(), Height: b.Height()}
}
