package chain

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"iter"

	"github.com/tfl-research/simtfl"
)

// BlockHash is the unique identifier of a block.
type BlockHash [32]byte

func (h BlockHash) String() string {
	return hex.EncodeToString(h[:4])
}

// Block is an immutable record linked to its parent. A chain is the
// persistent, shareable structure formed by following parent links; blocks
// never change after construction.
type Block struct {
	hash     BlockHash
	parent   *Block
	height   simtfl.Height
	producer simtfl.NodeID
}

func (b *Block) Hash() BlockHash { return b.hash }

// Parent returns the parent block, or nil for genesis.
func (b *Block) Parent() *Block { return b.parent }

func (b *Block) Height() simtfl.Height { return b.height }

func (b *Block) Producer() simtfl.NodeID { return b.producer }

func (b *Block) IsGenesis() bool { return b.parent == nil }

func (b *Block) String() string {
	return b.hash.String()
}

// hashBlock derives a block's identifier. The store nonce distinguishes
// otherwise identical (parent, producer, height) triples, which occur when a
// producer extends the same parent more than once across a run.
func hashBlock(parent BlockHash, producer simtfl.NodeID, height simtfl.Height, nonce uint64) BlockHash {
	var buf [24]byte
	binary.BigEndian.PutUint64(buf[0:], uint64(producer))
	binary.BigEndian.PutUint64(buf[8:], uint64(height))
	binary.BigEndian.PutUint64(buf[16:], nonce)
	h := sha256.New()
	h.Write(parent[:])
	h.Write(buf[:])
	var out BlockHash
	h.Sum(out[:0])
	return out
}

// Ancestors returns the block itself followed by each ancestor down to
// genesis. The sequence is finite (chains are rooted trees) and restartable.
func Ancestors(b *Block) iter.Seq[*Block] {
	return func(yield func(*Block) bool) {
		for cur := b; cur != nil; cur = cur.parent {
			if !yield(cur) {
				return
			}
		}
	}
}

// AncestorAt returns b's ancestor at the given height, or nil if the height
// exceeds b's own.
func AncestorAt(b *Block, height simtfl.Height) *Block {
	if height > b.height {
		return nil
	}
	cur := b
	for cur.height > height {
		cur = cur.parent
	}
	return cur
}

// IsAncestor reports whether anc is b or an ancestor of b.
func IsAncestor(anc, b *Block) bool {
	return AncestorAt(b, anc.height) == anc
}

// CommonAncestor walks both ancestor chains to the first shared block. Two
// blocks from the same store always share at least genesis.
func CommonAncestor(a, b *Block) *Block {
	if a.height > b.height {
		a = AncestorAt(a, b.height)
	} else if b.height > a.height {
		b = AncestorAt(b, a.height)
	}
	for a != b {
		a = a.parent
		b = b.parent
	}
	return a
}
