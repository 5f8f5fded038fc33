package network

import (
	"io"

	"github.com/rs/zerolog"

	"github.com/tfl-research/simtfl"
	"github.com/tfl-research/simtfl/sim"
)

func testLogger() zerolog.Logger {
	return zerolog.New(io.Discard)
}

type recorded struct {
	from simtfl.NodeID
	msg  any
	at   simtfl.Time
}

// sequentialReceiver handles each message in arrival order; handling one
// message takes 3 time units and blocks the next.
type sequentialReceiver struct {
	ctx     Context
	handled []recorded
}

func (n *sequentialReceiver) Init(ctx Context) { n.ctx = ctx }

func (n *sequentialReceiver) Run(p *sim.Proc) (any, error) {
	return nil, ReceiveLoop(p, n.ctx.Inbox, func(p *sim.Proc, from simtfl.NodeID, msg any) error {
		n.handled = append(n.handled, recorded{from: from, msg: msg, at: p.Now()})
		return p.Sleep(3)
	})
}

// concurrentReceiver records each message when it arrives and handles it in a
// child process, so handling never blocks later arrivals.
type concurrentReceiver struct {
	ctx     Context
	handled []recorded
}

func (n *concurrentReceiver) Init(ctx Context) { n.ctx = ctx }

func (n *concurrentReceiver) Run(p *sim.Proc) (any, error) {
	return nil, ReceiveLoop(p, n.ctx.Inbox, func(p *sim.Proc, from simtfl.NodeID, msg any) error {
		n.handled = append(n.handled, recorded{from: from, msg: msg, at: p.Now()})
		p.Spawn("handler", func(p *sim.Proc) (any, error) {
			return nil, p.Sleep(3)
		})
		return nil
	})
}

// scriptedSender exercises sends, a delay override, and a broadcast on a
// fixed schedule.
type scriptedSender struct {
	ctx Context
}

func (n *scriptedSender) Init(ctx Context) { n.ctx = ctx }

func (n *scriptedSender) Run(p *sim.Proc) (any, error) {
	// Messages 0, 1, 2 sent at times 0, 1, 2.
	for i := 0; i < 3; i++ {
		n.ctx.Net.Send(n.ctx.ID, 0, i)
		if err := p.Sleep(1); err != nil {
			return nil, err
		}
	}
	// Message 3 overrides the propagation delay: sent at 3, received at 14.
	n.ctx.Net.SendDelayed(n.ctx.ID, 0, 3, 11)
	if err := p.Sleep(1); err != nil {
		return nil, err
	}
	// Message 4 broadcast at 4, received at 5.
	n.ctx.Net.Broadcast(n.ctx.ID, 4)
	return nil, nil
}

// broadcastingSender broadcasts one payload per time unit.
type broadcastingSender struct {
	ctx   Context
	count int
}

func (n *broadcastingSender) Init(ctx Context) { n.ctx = ctx }

func (n *broadcastingSender) Run(p *sim.Proc) (any, error) {
	for i := 0; i < n.count; i++ {
		n.ctx.Net.Broadcast(n.ctx.ID, i)
		if err := p.Sleep(1); err != nil {
			return nil, err
		}
	}
	return nil, nil
}

// sinkReceiver consumes everything and remembers nothing but the count.
type sinkReceiver struct {
	ctx  Context
	seen int
}

func (n *sinkReceiver) Init(ctx Context) { n.ctx = ctx }

func (n *sinkReceiver) Run(p *sim.Proc) (any, error) {
	return nil, ReceiveLoop(p, n.ctx.Inbox, func(*sim.Proc, simtfl.NodeID, any) error {
		n.seen++
		return nil
	})
}
