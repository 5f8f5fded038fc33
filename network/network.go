package network

import (
	"fmt"
	"math/rand"

	"github.com/rs/zerolog"

	"github.com/tfl-research/simtfl"
	"github.com/tfl-research/simtfl/sim"
)

// Envelope wraps a message in flight with its sender.
type Envelope struct {
	From simtfl.NodeID
	Msg  any
}

// Context carries everything a node needs, injected when the node is added to
// the network. Nothing is ambient: components that need scheduling services
// hold an explicit scheduler reference.
type Context struct {
	ID     simtfl.NodeID
	Sched  *sim.Scheduler
	Net    *Network
	Inbox  *sim.Channel
	Logger zerolog.Logger
}

// Node is a participant in the simulated network. Init is called once when
// the node is added; Run is spawned as the node's main process.
type Node interface {
	Init(ctx Context)
	Run(p *sim.Proc) (any, error)
}

type peer struct {
	node  Node
	inbox *sim.Channel
	task  *sim.Task
}

// Network simulates point-to-point and broadcast message passing with
// configurable latency and loss. Each node owns an inbox channel; a broadcast
// is N independent sends with independently sampled latency, so recipients
// observe realistic reordering and skew.
type Network struct {
	sched   *sim.Scheduler
	rng     *rand.Rand
	latency Latency
	loss    float64
	trace   *simtfl.Trace
	logger  zerolog.Logger

	peers []*peer
}

func New(
	sched *sim.Scheduler,
	rng *rand.Rand,
	latency Latency,
	loss float64,
	trace *simtfl.Trace,
	logger zerolog.Logger,
) *Network {
	return &Network{
		sched:   sched,
		rng:     rng,
		latency: latency,
		loss:    loss,
		trace:   trace,
		logger:  logger,
	}
}

func (n *Network) NumNodes() int {
	return len(n.peers)
}

func (n *Network) Node(id simtfl.NodeID) Node {
	return n.peers[id].node
}

// Task returns the running main process of the node, or nil before Start.
func (n *Network) Task(id simtfl.NodeID) *sim.Task {
	return n.peers[id].task
}

// AddNode registers node under the next available ident and initializes it.
func (n *Network) AddNode(node Node) simtfl.NodeID {
	id := simtfl.NodeID(len(n.peers))
	opts := []sim.ChannelOption{
		sim.WithDelay(func() simtfl.Duration { return n.latency.Sample(n.rng) }),
	}
	if n.loss > 0 {
		opts = append(opts, sim.WithDrop(func() bool { return n.rng.Float64() < n.loss }))
	}
	inbox := sim.NewChannel(n.sched, opts...)
	n.peers = append(n.peers, &peer{node: node, inbox: inbox})
	node.Init(Context{
		ID:     id,
		Sched:  n.sched,
		Net:    n,
		Inbox:  inbox,
		Logger: n.logger.With().Int("node", int(id)).Logger(),
	})
	return id
}

// Send enqueues msg for delivery to the target node after the sampled
// propagation delay. Sending is instantaneous for the sender.
func (n *Network) Send(from, to simtfl.NodeID, msg any) {
	n.trace.Add(n.sched.Now(), from, simtfl.TraceSend, fmt.Sprintf("to %d: %v", to, msg))
	if !n.peers[to].inbox.Send(Envelope{From: from, Msg: msg}) {
		n.trace.Add(n.sched.Now(), from, simtfl.TraceDrop, fmt.Sprintf("to %d: %v", to, msg))
	}
}

// SendDelayed is Send with an explicit propagation delay overriding the
// configured sampler.
func (n *Network) SendDelayed(from, to simtfl.NodeID, msg any, delay simtfl.Duration) {
	n.trace.Add(n.sched.Now(), from, simtfl.TraceSend, fmt.Sprintf("to %d with delay %d: %v", to, delay, msg))
	if !n.peers[to].inbox.SendAfter(Envelope{From: from, Msg: msg}, delay) {
		n.trace.Add(n.sched.Now(), from, simtfl.TraceDrop, fmt.Sprintf("to %d: %v", to, msg))
	}
}

// Broadcast sends msg to every other node, each delivery with its own
// independently sampled delay and loss decision.
func (n *Network) Broadcast(from simtfl.NodeID, msg any) {
	n.trace.Add(n.sched.Now(), from, simtfl.TraceBroadcast, fmt.Sprintf("to *: %v", msg))
	for id := range n.peers {
		if simtfl.NodeID(id) == from {
			continue
		}
		if !n.peers[id].inbox.Send(Envelope{From: from, Msg: msg}) {
			n.trace.Add(n.sched.Now(), from, simtfl.TraceDrop, fmt.Sprintf("to %d: %v", id, msg))
		}
	}
}

// Start spawns the main process of every node. A given network should only be
// started once.
func (n *Network) Start() {
	for id, pr := range n.peers {
		n.trace.Add(n.sched.Now(), simtfl.NodeID(id), simtfl.TraceStart, fmt.Sprintf("%T", pr.node))
		pr.task = n.sched.Spawn(fmt.Sprintf("node-%d", id), pr.node.Run)
	}
}

// RunAll starts every node and runs the scheduler until the calendar drains.
func (n *Network) RunAll() error {
	n.Start()
	return n.sched.Run()
}

// RunUntil starts every node and runs the scheduler up to the given time.
func (n *Network) RunUntil(until simtfl.Time) error {
	n.Start()
	return n.sched.RunUntil(until)
}

// HandlerFunc processes one delivered message.
type HandlerFunc func(p *sim.Proc, from simtfl.NodeID, msg any) error

// ReceiveLoop handles inbox messages sequentially: messages arriving while
// the handler is suspended queue up and are handled in arrival order. It only
// returns on handler failure, so callers typically bound the run with
// RunUntil.
func ReceiveLoop(p *sim.Proc, inbox *sim.Channel, handle HandlerFunc) error {
	for {
		env := inbox.Recv(p).(Envelope)
		if err := handle(p, env.From, env.Msg); err != nil {
			return err
		}
	}
}
