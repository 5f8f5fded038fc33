package sim

import (
	"container/heap"
	"errors"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/tfl-research/simtfl"
)

var ErrInvalidDelay = errors.New("invalid delay")

// Scheduler maintains the global simulated-time calendar and runs tasks
// cooperatively in timestamp order. All apparent concurrency is interleaving
// of suspended tasks at scheduler-chosen time points; at most one task
// executes at any moment, so shared state needs no locking.
type Scheduler struct {
	logger zerolog.Logger

	now   simtfl.Time
	seq   uint64
	queue eventQueue

	// yield is signalled by the running task when it suspends or terminates,
	// handing control back to the event loop.
	yield chan struct{}

	tasks   []*Task
	failure *ProcessFailure
}

func New(logger zerolog.Logger) *Scheduler {
	return &Scheduler{
		logger: logger,
		yield:  make(chan struct{}),
	}
}

// Now returns the current simulated time.
func (s *Scheduler) Now() simtfl.Time {
	return s.now
}

// After schedules fn to run after the given delay and returns the calendar
// entry so the caller may cancel it. A negative delay is a programmer error.
func (s *Scheduler) After(delay simtfl.Duration, fn func()) (*Event, error) {
	if delay < 0 {
		return nil, fmt.Errorf("%w: %d", ErrInvalidDelay, delay)
	}
	return s.schedule(s.now+delay, fn), nil
}

// Tasks returns the master registry of every task ever spawned on this
// scheduler, in spawn order.
func (s *Scheduler) Tasks() []*Task {
	return s.tasks
}

func (s *Scheduler) schedule(at simtfl.Time, fn func()) *Event {
	ev := &Event{time: at, seq: s.seq, fn: fn}
	s.seq++
	heap.Push(&s.queue, ev)
	return ev
}

// Run executes events in timestamp order until the calendar is empty.
// It returns the failure of the first task whose failure nothing awaited.
func (s *Scheduler) Run() error {
	return s.run(0, false)
}

// RunUntil behaves like Run but stops once the next event would be later than
// until, advancing the clock to until. Tasks still waiting at that point are
// abandoned in the Suspended state; no cancellation is delivered.
func (s *Scheduler) RunUntil(until simtfl.Time) error {
	return s.run(until, true)
}

func (s *Scheduler) run(until simtfl.Time, bounded bool) error {
	for s.queue.Len() > 0 {
		ev := heap.Pop(&s.queue).(*Event)
		if ev.cancelled {
			continue
		}
		if bounded && ev.time > until {
			// Leave the event pending in case the caller resumes the run.
			heap.Push(&s.queue, ev)
			break
		}
		s.now = ev.time
		ev.fn()
		if s.failure != nil {
			return s.failure
		}
	}
	if bounded && until > s.now {
		s.now = until
	}
	return nil
}

// dispatch hands control to t and blocks until it suspends or terminates.
// It must only be called while the event loop (or the single running task)
// holds control.
func (s *Scheduler) dispatch(t *Task) {
	if t.state == StateFinished || t.state == StateFailed {
		return
	}
	t.state = StateRunning
	t.resume <- struct{}{}
	<-s.yield
}

func (s *Scheduler) finish(t *Task, result any, err error) {
	t.result = result
	if err != nil {
		t.err = err
		t.state = StateFailed
		s.logger.Debug().Str("task", t.name).Err(err).Msg("task failed")
		if !t.awaited && len(t.waiters) == 0 {
			// Nothing will ever consume this failure; abort the run.
			if s.failure == nil {
				s.failure = &ProcessFailure{Task: t.name, Err: err}
			}
		}
	} else {
		t.state = StateFinished
		s.logger.Debug().Str("task", t.name).Msg("task finished")
	}
	for _, w := range t.waiters {
		s.schedule(s.now, func() { s.dispatch(w) })
	}
	t.waiters = nil
}
