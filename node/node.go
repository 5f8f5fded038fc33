package node

import (
	"errors"
	"fmt"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/rs/zerolog"

	"github.com/tfl-research/simtfl"
	"github.com/tfl-research/simtfl/chain"
	"github.com/tfl-research/simtfl/finality"
	"github.com/tfl-research/simtfl/network"
	"github.com/tfl-research/simtfl/sim"
)

// seenCacheSize bounds the gossip dedupe cache per node.
const seenCacheSize = 4096

// Node is a committee member: it takes producer turns in round-robin slots,
// gossips blocks and votes it sees for the first time, follows the
// longest-chain fork choice, and votes to finalize the block trailing its tip
// by the configured depth.
type Node struct {
	cfg      simtfl.Config
	universe *chain.Store
	final    *finality.Set
	trace    *simtfl.Trace

	ctx    network.Context
	view   *chain.View
	seen   *lru.Cache[string, struct{}]
	logger zerolog.Logger
}

func NewNode(
	cfg simtfl.Config,
	universe *chain.Store,
	final *finality.Set,
	trace *simtfl.Trace,
) (*Node, error) {
	seen, err := lru.New[string, struct{}](seenCacheSize)
	if err != nil {
		return nil, err
	}
	return &Node{
		cfg:      cfg,
		universe: universe,
		final:    final,
		trace:    trace,
		view:     chain.NewView(universe.Genesis()),
		seen:     seen,
	}, nil
}

// Init is called by the network when the node is added.
func (n *Node) Init(ctx network.Context) {
	n.ctx = ctx
	n.logger = ctx.Logger
}

// leaderForSlot rotates block production round-robin over the committee.
func (n *Node) leaderForSlot(slot int64) simtfl.NodeID {
	return simtfl.NodeID((slot - 1) % int64(n.cfg.CommitteeSize))
}

// Run spawns the production schedule and then handles incoming messages
// sequentially for the rest of the run.
func (n *Node) Run(p *sim.Proc) (any, error) {
	p.Spawn(fmt.Sprintf("producer-%d", n.ctx.ID), n.produce)
	return nil, network.ReceiveLoop(p, n.ctx.Inbox, n.handle)
}

// produce waits out each block interval and, on the node's slots, extends the
// current tip.
func (n *Node) produce(p *sim.Proc) (any, error) {
	for slot := int64(1); ; slot++ {
		if err := p.Sleep(n.cfg.BlockInterval); err != nil {
			return nil, err
		}
		if n.leaderForSlot(slot) != n.ctx.ID {
			continue
		}
		b, err := n.universe.Produce(n.view.Tip().Hash(), n.ctx.ID)
		if err != nil {
			return nil, err
		}
		n.trace.Add(p.Now(), n.ctx.ID, simtfl.TraceProduce,
			fmt.Sprintf("block %s at height %d", b, b.Height()))
		n.view.Learn(b)
		msg := BlockMsg{Block: b}
		if key, ok := msgKey(msg); ok {
			n.seen.Add(key, struct{}{})
		}
		n.ctx.Net.Broadcast(n.ctx.ID, msg)
		if err := n.maybeVote(p); err != nil {
			return nil, err
		}
	}
}

func (n *Node) handle(p *sim.Proc, from simtfl.NodeID, msg any) error {
	if key, ok := msgKey(msg); ok {
		if _, dup := n.seen.Get(key); dup {
			return nil
		}
		n.seen.Add(key, struct{}{})
	}
	n.trace.Add(p.Now(), n.ctx.ID, simtfl.TraceHandle, fmt.Sprintf("from %d: %v", from, msg))

	// Echo first-seen messages to every other node so gossip survives loss.
	n.ctx.Net.Broadcast(n.ctx.ID, msg)

	switch m := msg.(type) {
	case BlockMsg:
		return n.handleBlock(p, m.Block)
	case VoteMsg:
		return n.handleVote(m.Vote)
	default:
		n.logger.Warn().Type("msg", msg).Msg("unhandled message")
		return nil
	}
}

func (n *Node) handleBlock(p *sim.Proc, b *chain.Block) error {
	before := n.view.Tip()
	n.view.Learn(b)
	if tip := n.view.Tip(); tip != before {
		n.trace.Add(p.Now(), n.ctx.ID, simtfl.TraceAdopt,
			fmt.Sprintf("tip %s at height %d", tip, tip.Height()))
	}
	return n.maybeVote(p)
}

func (n *Node) handleVote(v finality.Vote) error {
	if err := n.final.AddVote(v); err != nil {
		if errors.Is(err, finality.ErrDuplicatedVote) {
			return nil
		}
		return err
	}
	return nil
}

// maybeVote casts a finality vote for the block trailing the tip by the
// configured depth, once per target.
func (n *Node) maybeVote(p *sim.Proc) error {
	tip := n.view.Tip()
	if tip.Height() <= simtfl.Height(n.cfg.TrailingDepth) {
		return nil
	}
	target := chain.AncestorAt(tip, tip.Height()-simtfl.Height(n.cfg.TrailingDepth))
	v := finality.Vote{Voter: n.ctx.ID, Target: target.Hash(), Height: tip.Height()}
	if err := n.final.AddVote(v); err != nil {
		if errors.Is(err, finality.ErrDuplicatedVote) {
			return nil
		}
		return err
	}
	msg := VoteMsg{Vote: v}
	if key, ok := msgKey(msg); ok {
		n.seen.Add(key, struct{}{})
	}
	n.ctx.Net.Broadcast(n.ctx.ID, msg)
	return nil
}
