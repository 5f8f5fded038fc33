package chain

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// extend produces n blocks on top of parent and returns them tip-last.
func extend(t *testing.T, s *Store, parent *Block, n int) []*Block {
	t.Helper()
	out := make([]*Block, 0, n)
	for i := 0; i < n; i++ {
		b, err := s.Produce(parent.Hash(), 0)
		require.NoError(t, err)
		out = append(out, b)
		parent = b
	}
	return out
}

func TestStore_GenesisIsKnownFromTheStart(t *testing.T) {
	s := NewStore()

	g := s.Genesis()
	assert.True(t, g.IsGenesis())
	assert.Zero(t, g.Height())
	assert.Nil(t, g.Parent())
	assert.Equal(t, 1, s.Len())

	got, ok := s.Get(g.Hash())
	require.True(t, ok)
	assert.Same(t, g, got)
}

func TestStore_ProduceLinksToParent(t *testing.T) {
	s := NewStore()

	b, err := s.Produce(s.Genesis().Hash(), 2)
	require.NoError(t, err)
	assert.Same(t, s.Genesis(), b.Parent())
	assert.EqualValues(t, 1, b.Height())
	assert.EqualValues(t, 2, b.Producer())
	assert.Equal(t, 2, s.Len())
}

func TestStore_ProduceRejectsUnknownParent(t *testing.T) {
	s := NewStore()

	_, err := s.Produce(BlockHash{0xde, 0xad}, 0)
	assert.ErrorIs(t, err, ErrInvalidParent)
	assert.Equal(t, 1, s.Len())
}

func TestStore_SameParentTwiceYieldsDistinctBlocks(t *testing.T) {
	s := NewStore()

	a, err := s.Produce(s.Genesis().Hash(), 0)
	require.NoError(t, err)
	b, err := s.Produce(s.Genesis().Hash(), 0)
	require.NoError(t, err)

	assert.NotEqual(t, a.Hash(), b.Hash())
	assert.Equal(t, 3, s.Len())
}

func TestBlock_AncestorsWalkBackToGenesis(t *testing.T) {
	s := NewStore()
	blocks := extend(t, s, s.Genesis(), 4)
	tip := blocks[len(blocks)-1]

	var heights []uint64
	for b := range Ancestors(tip) {
		heights = append(heights, uint64(b.Height()))
	}
	assert.Equal(t, []uint64{4, 3, 2, 1, 0}, heights)

	// The sequence is restartable.
	count := 0
	for range Ancestors(tip) {
		count++
	}
	assert.Equal(t, 5, count)
}

func TestBlock_AncestorAt(t *testing.T) {
	s := NewStore()
	blocks := extend(t, s, s.Genesis(), 5)
	tip := blocks[len(blocks)-1]

	assert.Same(t, tip, AncestorAt(tip, 5))
	assert.Same(t, blocks[1], AncestorAt(tip, 2))
	assert.Same(t, s.Genesis(), AncestorAt(tip, 0))
	assert.Nil(t, AncestorAt(tip, 6))
}

func TestBlock_IsAncestorAcrossForks(t *testing.T) {
	s := NewStore()
	trunk := extend(t, s, s.Genesis(), 3)
	branch := extend(t, s, trunk[0], 3)

	assert.True(t, IsAncestor(trunk[0], trunk[2]))
	assert.True(t, IsAncestor(trunk[0], branch[2]))
	assert.True(t, IsAncestor(trunk[2], trunk[2]))
	assert.False(t, IsAncestor(trunk[1], branch[2]))
	assert.False(t, IsAncestor(branch[0], trunk[2]))
}

func TestBlock_CommonAncestor(t *testing.T) {
	s := NewStore()
	trunk := extend(t, s, s.Genesis(), 4)
	branch := extend(t, s, trunk[1], 1)

	assert.Same(t, trunk[1], CommonAncestor(trunk[3], branch[0]))
	assert.Same(t, trunk[1], CommonAncestor(branch[0], trunk[3]))
	assert.Same(t, trunk[2], CommonAncestor(trunk[2], trunk[3]))
	assert.Same(t, s.Genesis(), CommonAncestor(s.Genesis(), trunk[3]))
}

func TestView_LearnAdoptsLongerChains(t *testing.T) {
	s := NewStore()
	blocks := extend(t, s, s.Genesis(), 2)

	v := NewView(s.Genesis())
	assert.Same(t, s.Genesis(), v.Tip())

	learned := v.Learn(blocks[0])
	assert.Equal(t, []*Block{blocks[0]}, learned)
	assert.Same(t, blocks[0], v.Tip())

	v.Learn(blocks[1])
	assert.Same(t, blocks[1], v.Tip())
}

func TestView_TiesKeepTheCurrentTip(t *testing.T) {
	s := NewStore()
	a, err := s.Produce(s.Genesis().Hash(), 0)
	require.NoError(t, err)
	b, err := s.Produce(s.Genesis().Hash(), 1)
	require.NoError(t, err)

	v := NewView(s.Genesis())
	v.Learn(a)
	v.Learn(b)

	assert.Same(t, a, v.Tip())
	assert.True(t, v.Knows(b.Hash()))
}

func TestView_LearnIsIdempotent(t *testing.T) {
	s := NewStore()
	b, err := s.Produce(s.Genesis().Hash(), 0)
	require.NoError(t, err)

	v := NewView(s.Genesis())
	require.NotNil(t, v.Learn(b))
	assert.Nil(t, v.Learn(b))
}

func TestView_OrphansReplayWhenParentArrives(t *testing.T) {
	s := NewStore()
	blocks := extend(t, s, s.Genesis(), 3)

	v := NewView(s.Genesis())
	// Children arrive before their parent.
	assert.Nil(t, v.Learn(blocks[2]))
	assert.Nil(t, v.Learn(blocks[1]))
	assert.False(t, v.Knows(blocks[2].Hash()))
	assert.Same(t, s.Genesis(), v.Tip())

	// Learning the missing link replays the whole parked subtree.
	learned := v.Learn(blocks[0])
	assert.Equal(t, []*Block{blocks[0], blocks[1], blocks[2]}, learned)
	assert.Same(t, blocks[2], v.Tip())
}

func TestView_OrphanReplayCrossesForks(t *testing.T) {
	s := NewStore()
	trunk := extend(t, s, s.Genesis(), 2)
	branch, err := s.Produce(trunk[0].Hash(), 1)
	require.NoError(t, err)

	v := NewView(s.Genesis())
	assert.Nil(t, v.Learn(trunk[1]))
	assert.Nil(t, v.Learn(branch))

	learned := v.Learn(trunk[0])
	assert.Len(t, learned, 3)
	assert.True(t, v.Knows(trunk[1].Hash()))
	assert.True(t, v.Knows(branch.Hash()))
	assert.Same(t, trunk[1], v.Tip())
}
