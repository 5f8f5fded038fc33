package sim

import (
	"fmt"

	"github.com/tfl-research/simtfl"
)

// DelayFunc samples the propagation delay for one message.
type DelayFunc func() simtfl.Duration

// DropFunc decides whether one message is lost. A lost message is never
// enqueued; the receiver simply never resumes for it.
type DropFunc func() bool

// Channel is an ordered delivery point between tasks. Messages become
// available after the channel's configured delay, in arrival-time order, so a
// varying delay can reorder them relative to send order. All mutation happens
// inside the scheduler's event loop.
type Channel struct {
	sched *Scheduler
	delay DelayFunc
	drop  DropFunc

	queue []any
	recvq []*receiver
}

type receiver struct {
	task     *Task
	msg      any
	timeout  *Event
	timedOut bool
}

type ChannelOption func(*Channel)

// WithDelay configures the per-message propagation delay sampler.
func WithDelay(fn DelayFunc) ChannelOption {
	return func(c *Channel) { c.delay = fn }
}

// WithDrop configures the per-message loss decision.
func WithDrop(fn DropFunc) ChannelOption {
	return func(c *Channel) { c.drop = fn }
}

func NewChannel(s *Scheduler, opts ...ChannelOption) *Channel {
	c := &Channel{sched: s}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Send enqueues msg for delivery after the configured delay. It reports
// whether the message was enqueued; false means it was dropped. Sending never
// suspends the caller.
func (c *Channel) Send(msg any) bool {
	if c.drop != nil && c.drop() {
		return false
	}
	var d simtfl.Duration
	if c.delay != nil {
		d = c.delay()
	}
	if d < 0 {
		d = 0
	}
	c.sched.schedule(c.sched.now+d, func() { c.arrive(msg) })
	return true
}

// SendAfter is Send with an explicit propagation delay overriding the
// configured sampler. The loss decision still applies.
func (c *Channel) SendAfter(msg any, d simtfl.Duration) bool {
	if c.drop != nil && c.drop() {
		return false
	}
	if d < 0 {
		d = 0
	}
	c.sched.schedule(c.sched.now+d, func() { c.arrive(msg) })
	return true
}

func (c *Channel) arrive(msg any) {
	if len(c.recvq) > 0 {
		r := c.recvq[0]
		c.recvq = c.recvq[1:]
		r.msg = msg
		if r.timeout != nil {
			r.timeout.Cancel()
		}
		c.sched.dispatch(r.task)
		return
	}
	c.queue = append(c.queue, msg)
}

// Pending returns the number of arrived, not yet received messages.
func (c *Channel) Pending() int {
	return len(c.queue)
}

// Recv suspends until a message is available and returns it. Waiting
// receivers are served in the order they started waiting.
func (c *Channel) Recv(p *Proc) any {
	if len(c.queue) > 0 {
		msg := c.queue[0]
		c.queue = c.queue[1:]
		return msg
	}
	r := &receiver{task: p.task}
	c.recvq = append(c.recvq, r)
	p.task.park()
	return r.msg
}

// RecvTimeout races a receive against a timeout of duration d. It returns
// (msg, true) if a message arrived first and (nil, false) if the timeout won.
// Protocol logic uses this to express "wait, but give up after a round".
func (c *Channel) RecvTimeout(p *Proc, d simtfl.Duration) (any, bool, error) {
	if d < 0 {
		return nil, false, fmt.Errorf("%w: receive timeout %d", ErrInvalidDelay, d)
	}
	if len(c.queue) > 0 {
		msg := c.queue[0]
		c.queue = c.queue[1:]
		return msg, true, nil
	}
	r := &receiver{task: p.task}
	c.recvq = append(c.recvq, r)
	r.timeout = c.sched.schedule(c.sched.now+d, func() {
		c.unregister(r)
		r.timedOut = true
		c.sched.dispatch(p.task)
	})
	p.task.park()
	if r.timedOut {
		return nil, false, nil
	}
	return r.msg, true, nil
}

func (c *Channel) unregister(r *receiver) {
	for i, cand := range c.recvq {
		if cand == r {
			c.recvq = append(c.recvq[:i], c.recvq[i+1:]...)
			return
		}
	}
}
