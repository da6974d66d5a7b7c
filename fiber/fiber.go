// Package fiber provides the lightweight, explicitly-terminated task
// primitive the rest of the core is built from, and a Supervisor that
// cascades termination over a keyed set of such tasks. It generalizes two
// things the teacher keeps separate: the chDie/close-once shutdown signal
// every cluster.agent owns, and the callback registry session.Lifetime uses
// to notify interested parties when a session closes.
package fiber

import (
	"sync"

	"github.com/nano-kit/transporter/terrors"
)

// State is a Fiber's lifecycle stage. The only legal transition is
// Active -> Terminated, exactly once.
type State int32

const (
	// Active is the state every Fiber is born in.
	Active State = iota
	// Terminated is the terminal state; Done() is closed when it is
	// reached.
	Terminated
)

// Fiber is a task with an id, a monotonic Active->Terminated transition, and
// a Done channel that closes exactly once on termination — the Go
// equivalent of the specification's {id, state, stateChange} triple, with
// Done() standing in for a completing stateChange stream.
type Fiber struct {
	id string

	mu    sync.Mutex
	state State
	done  chan struct{}
	once  sync.Once
	hooks []func()
}

// New creates an Active Fiber identified by id.
func New(id string) *Fiber {
	return &Fiber{
		id:    id,
		state: Active,
		done:  make(chan struct{}),
	}
}

// ID returns the Fiber's identifier.
func (f *Fiber) ID() string { return f.id }

// State returns the Fiber's current lifecycle stage.
func (f *Fiber) State() State {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.state
}

// Done returns a channel that is closed exactly once, when the Fiber
// transitions to Terminated. Reading from an already-terminated Fiber's
// Done channel returns immediately, matching a completed stream.
func (f *Fiber) Done() <-chan struct{} { return f.done }

// OnTerminate registers hook to run when the Fiber terminates. If the Fiber
// has already terminated, hook runs synchronously before OnTerminate
// returns. Hooks run in registration order, on whichever goroutine calls
// Terminate (or OnTerminate, for a fiber already terminated).
func (f *Fiber) OnTerminate(hook func()) {
	f.mu.Lock()
	if f.state == Terminated {
		f.mu.Unlock()
		hook()
		return
	}
	f.hooks = append(f.hooks, hook)
	f.mu.Unlock()
}

// Terminate transitions the Fiber to Terminated, idempotently: a second and
// subsequent call is a no-op. Registered hooks run exactly once, in
// registration order, before Terminate returns.
func (f *Fiber) Terminate() {
	f.mu.Lock()
	if f.state == Terminated {
		f.mu.Unlock()
		return
	}
	f.state = Terminated
	hooks := f.hooks
	f.hooks = nil
	f.mu.Unlock()

	for _, h := range hooks {
		h()
	}
	f.once.Do(func() { close(f.done) })
}

// Supervisor is a Fiber that additionally owns a keyed set of observed child
// fibers. Observing a child that later terminates on its own auto-removes
// it; terminating the Supervisor terminates every still-observed child (in
// registration order) and then itself.
type Supervisor struct {
	*Fiber

	mu    sync.Mutex
	tasks map[string]*Fiber
	order []string
}

// NewSupervisor creates an Active Supervisor identified by id.
func NewSupervisor(id string) *Supervisor {
	return &Supervisor{
		Fiber: New(id),
		tasks: make(map[string]*Fiber),
	}
}

// Observe registers task under its own id. It returns terrors.ErrTerminated
// if the Supervisor has already terminated, and terrors.ErrUniqueTaskID if
// another live task already holds that id.
func (s *Supervisor) Observe(task *Fiber) error {
	s.mu.Lock()
	if s.State() == Terminated {
		s.mu.Unlock()
		return terrors.ErrTerminated
	}
	if _, dup := s.tasks[task.ID()]; dup {
		s.mu.Unlock()
		return terrors.ErrUniqueTaskID
	}
	s.tasks[task.ID()] = task
	s.order = append(s.order, task.ID())
	s.mu.Unlock()

	task.OnTerminate(func() { s.remove(task.ID()) })
	return nil
}

func (s *Supervisor) remove(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.tasks[id]; !ok {
		return
	}
	delete(s.tasks, id)
	for i, o := range s.order {
		if o == id {
			s.order = append(s.order[:i], s.order[i+1:]...)
			break
		}
	}
}

// Count returns the number of currently-observed, not-yet-terminated tasks.
func (s *Supervisor) Count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.tasks)
}

// Task looks up a still-observed task by id.
func (s *Supervisor) Task(id string) (*Fiber, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tasks[id]
	return t, ok
}

// Terminate terminates every currently-observed task, in the order they
// were first observed, then terminates the Supervisor itself. Idempotent.
func (s *Supervisor) Terminate() {
	s.mu.Lock()
	if s.State() == Terminated {
		s.mu.Unlock()
		return
	}
	ordered := make([]*Fiber, 0, len(s.order))
	for _, id := range s.order {
		if t, ok := s.tasks[id]; ok {
			ordered = append(ordered, t)
		}
	}
	s.mu.Unlock()

	for _, t := range ordered {
		t.Terminate()
	}
	s.Fiber.Terminate()
}
