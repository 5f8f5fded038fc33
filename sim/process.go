package sim

import (
	"fmt"

	"github.com/tfl-research/simtfl"
)

// State tracks a task through its lifecycle.
type State int

const (
	StatePending State = iota
	StateRunning
	StateSuspended
	StateFinished
	StateFailed
)

func (st State) String() string {
	switch st {
	case StatePending:
		return "Pending"
	case StateRunning:
		return "Running"
	case StateSuspended:
		return "Suspended"
	case StateFinished:
		return "Finished"
	case StateFailed:
		return "Failed"
	default:
		return "Unknown"
	}
}

// ProcessFailure is the failure of a task, propagated to whatever awaits it.
type ProcessFailure struct {
	Task string
	Err  error
}

func (e *ProcessFailure) Error() string {
	return fmt.Sprintf("process %q failed: %v", e.Task, e.Err)
}

func (e *ProcessFailure) Unwrap() error {
	return e.Err
}

// Body is the code of a task. It runs on its own goroutine but only while the
// scheduler has dispatched it; every blocking operation goes through the Proc
// suspension primitives. A body that performs no suspending operation should
// call Skip once so the scheduler accounts for it uniformly.
type Body func(p *Proc) (any, error)

// Task is the handle to a spawned process. The scheduler keeps the master
// registry; a parent that must await a child keeps its *Task.
type Task struct {
	name  string
	sched *Scheduler

	state  State
	result any
	err    error

	// resume is signalled by the scheduler to let the goroutine run.
	resume  chan struct{}
	waiters []*Task
	awaited bool
}

func (t *Task) Name() string { return t.name }

func (t *Task) State() State { return t.state }

// Result returns the task's value and failure once it has terminated.
func (t *Task) Result() (any, error) {
	return t.result, t.joinErr()
}

func (t *Task) joinErr() error {
	if t.err == nil {
		return nil
	}
	return &ProcessFailure{Task: t.name, Err: t.err}
}

// park suspends the calling task until the scheduler dispatches it again.
// Must be called from the task's own goroutine.
func (t *Task) park() {
	t.state = StateSuspended
	t.sched.yield <- struct{}{}
	<-t.resume
}

// Spawn registers a new task and schedules its start at the current simulated
// time. The task does not run before the scheduler reaches that event.
func (s *Scheduler) Spawn(name string, body Body) *Task {
	t := &Task{
		name:   name,
		sched:  s,
		state:  StatePending,
		resume: make(chan struct{}),
	}
	s.tasks = append(s.tasks, t)

	go func() {
		<-t.resume
		result, err := runBody(&Proc{task: t, sched: s}, body)
		s.finish(t, result, err)
		s.yield <- struct{}{}
	}()

	s.schedule(s.now, func() { s.dispatch(t) })
	return t
}

// runBody invokes body, converting a panic into a task failure so an
// invariant violation propagates instead of tearing down the whole run
// unreported.
func runBody(p *Proc, body Body) (result any, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return body(p)
}

// Proc is the capability handed to a running task body. All suspension goes
// through it: timeout wait, child wait, and channel receive.
type Proc struct {
	task  *Task
	sched *Scheduler
}

// Scheduler returns the scheduler driving this process.
func (p *Proc) Scheduler() *Scheduler { return p.sched }

// Now returns the current simulated time.
func (p *Proc) Now() simtfl.Time { return p.sched.now }

// Spawn starts a child task. The child runs interleaved with its parent; use
// Join to wait for it.
func (p *Proc) Spawn(name string, body Body) *Task {
	return p.sched.Spawn(name, body)
}

// Sleep suspends the process for the given duration of simulated time.
func (p *Proc) Sleep(d simtfl.Duration) error {
	if d < 0 {
		return fmt.Errorf("%w: sleep %d", ErrInvalidDelay, d)
	}
	t := p.task
	t.sched.schedule(t.sched.now+d, func() { t.sched.dispatch(t) })
	t.park()
	return nil
}

// Skip yields control for zero simulated time. A body with no other
// suspension point calls this once.
func (p *Proc) Skip() error {
	return p.Sleep(0)
}

// Join suspends until t terminates, returning its result or propagating its
// failure as a *ProcessFailure.
func (p *Proc) Join(t *Task) (any, error) {
	t.awaited = true
	if t.state == StateFinished || t.state == StateFailed {
		return t.result, t.joinErr()
	}
	t.waiters = append(t.waiters, p.task)
	p.task.park()
	return t.result, t.joinErr()
}
