package chain

import (
	"errors"
	"iter"

	"github.com/tfl-research/simtfl"
)

var ErrInvalidParent = errors.New("parent block is not known")

// Store is the universe of blocks known to a simulation run. Every block
// reachable from any tip leads back to the store's single genesis block. The
// store is mutated only from within the scheduler's event loop.
type Store struct {
	blocks  map[BlockHash]*Block
	genesis *Block
	nonce   uint64
}

func NewStore() *Store {
	g := &Block{
		hash:     hashBlock(BlockHash{}, -1, 0, 0),
		height:   0,
		producer: -1,
	}
	return &Store{
		blocks:  map[BlockHash]*Block{g.hash: g},
		genesis: g,
	}
}

func (s *Store) Genesis() *Block {
	return s.genesis
}

func (s *Store) Get(h BlockHash) (*Block, bool) {
	b, ok := s.blocks[h]
	return b, ok
}

func (s *Store) Len() int {
	return len(s.blocks)
}

// Produce constructs a block extending parent. It fails with ErrInvalidParent
// if the parent is not already in the universe.
func (s *Store) Produce(parent BlockHash, producer simtfl.NodeID) (*Block, error) {
	p, ok := s.blocks[parent]
	if !ok {
		return nil, ErrInvalidParent
	}
	s.nonce++
	b := &Block{
		hash:     hashBlock(parent, producer, p.height+1, s.nonce),
		parent:   p,
		height:   p.height + 1,
		producer: producer,
	}
	s.blocks[b.hash] = b
	return b, nil
}

// All returns every known block in no particular order.
func (s *Store) All() iter.Seq[*Block] {
	return func(yield func(*Block) bool) {
		for _, b := range s.blocks {
			if !yield(b) {
				return
			}
		}
	}
}

// View is one node's window onto the universe: the set of blocks the node has
// learned plus its current fork choice. Multiple views may disagree on the
// tip while sharing the same underlying blocks.
type View struct {
	known map[BlockHash]*Block
	tip   *Block

	// orphans parks blocks whose parent has not been learned yet, keyed by
	// the missing parent. Varying network latency can deliver a child first.
	orphans map[BlockHash][]*Block
}

func NewView(genesis *Block) *View {
	return &View{
		known:   map[BlockHash]*Block{genesis.Hash(): genesis},
		tip:     genesis,
		orphans: make(map[BlockHash][]*Block),
	}
}

// Tip returns the node's current fork choice.
func (v *View) Tip() *Block {
	return v.tip
}

// Knows reports whether the node has learned the block.
func (v *View) Knows(h BlockHash) bool {
	_, ok := v.known[h]
	return ok
}

// Learn records b in the view, replaying any orphans that were waiting for
// it, and reevaluates the fork choice: longest chain by height seen so far,
// keeping the current tip on ties. It returns the blocks newly adopted into
// the view (b and any replayed orphans), or nil if b was already known or is
// itself an orphan for now.
func (v *View) Learn(b *Block) []*Block {
	if v.Knows(b.Hash()) {
		return nil
	}
	if !b.IsGenesis() && !v.Knows(b.Parent().Hash()) {
		v.orphans[b.Parent().Hash()] = append(v.orphans[b.Parent().Hash()], b)
		return nil
	}

	learned := []*Block{b}
	v.accept(b)
	// A newly learned block may unlock a whole parked subtree.
	for i := 0; i < len(learned); i++ {
		parent := learned[i]
		children := v.orphans[parent.Hash()]
		delete(v.orphans, parent.Hash())
		for _, c := range children {
			v.accept(c)
			learned = append(learned, c)
		}
	}
	return learned
}

func (v *View) accept(b *Block) {
	v.known[b.Hash()] = b
	if b.Height() > v.tip.Height() {
		v.tip = b
	}
}
