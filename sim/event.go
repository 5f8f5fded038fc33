package sim

import (
	"github.com/tfl-research/simtfl"
)

// Event is a pending entry on the scheduler's calendar. Events are ordered by
// (time, insertion sequence) so that events scheduled for the same simulated
// time run in the order they were scheduled.
type Event struct {
	time      simtfl.Time
	seq       uint64
	fn        func()
	cancelled bool
}

// Time returns the simulated time at which the event is due.
func (e *Event) Time() simtfl.Time {
	return e.time
}

// Cancel marks the event so the scheduler skips it. Cancelling an event that
// already ran has no effect.
func (e *Event) Cancel() {
	e.cancelled = true
}

// eventQueue is a binary heap of events implementing container/heap.
type eventQueue []*Event

func (q eventQueue) Len() int { return len(q) }

func (q eventQueue) Less(i, j int) bool {
	if q[i].time != q[j].time {
		return q[i].time < q[j].time
	}
	return q[i].seq < q[j].seq
}

func (q eventQueue) Swap(i, j int) { q[i], q[j] = q[j], q[i] }

func (q *eventQueue) Push(x any) {
	*q = append(*q, x.(*Event))
}

func (q *eventQueue) Pop() any {
	old := *q
	n := len(old)
	ev := old[n-1]
	old[n-1] = nil
	*q = old[:n-1]
	return ev
}
