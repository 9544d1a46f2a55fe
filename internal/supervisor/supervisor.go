package supervisor

import (
	"context"
	"errors"
	"sync"
	"time"
)

// EventObserver is notified of every lifecycle transition, primarily
// for structured logging at the composition root.
type EventObserver func(childName string, state ChildState, err error)

// Supervisor starts a fixed, ordered set of children and restarts any
// child that fails on its own, escalating to a full-group stop if one
// child restarts more than maxRestarts times within restartWindow.
type Supervisor struct {
	children []Child

	mu sync.Mutex
	states map[string]ChildState
	restarts map[string][]time.Time
	escalated bool

	observer EventObserver
	now func() time.Time

	cancel context.CancelFunc
	done chan struct{}
}

// New constructs a Supervisor for children. Run launches them in the
// given slice order, each in its own goroutine, without waiting for one
// to be running before launching the next; Stop cancels all of them at
// once through one shared context, not in reverse order.
func New(children []Child, observer EventObserver) *Supervisor {
	return &Supervisor{
		children: children,
		states: make(map[string]ChildState, len(children)),
		restarts: make(map[string][]time.Time, len(children)),
		observer: observer,
		now: time.Now,
	}
}

// Run launches every child in slice order and blocks until ctx is
// cancelled, a child escalates (group stop), or Stop is called.
func (s *Supervisor) Run(ctx context.Context) {
	runCtx, cancel := context.WithCancel(ctx)
	s.mu.Lock()
	s.cancel = cancel
	s.done = make(chan struct{})
	s.mu.Unlock()

	var wg sync.WaitGroup
	for _, child := range s.children {
		wg.Add(1)
		go func(c Child) {
			defer wg.Done()
			s.superviseChild(runCtx, cancel, c)
		}(child)
	}

	wg.Wait()
	close(s.done)
}

// Stop cancels every supervised child and waits for Run to return.
func (s *Supervisor) Stop() {
	s.mu.Lock()
	cancel := s.cancel
	done := s.done
	s.mu.Unlock()
	if cancel == nil {
		return
	}
	cancel()
	if done != nil {
		<-done
	}
}

// State reports a child's last observed lifecycle state.
func (s *Supervisor) State(name string) ChildState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.states[name]
}

// Escalated reports whether any child tripped the restart-storm escalation.
func (s *Supervisor) Escalated() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.escalated
}

func (s *Supervisor) setState(name string, state ChildState, err error) {
	s.mu.Lock()
	s.states[name] = state
	s.mu.Unlock()
	if s.observer != nil {
		s.observer(name, state, err)
	}
}

// superviseChild runs c.Start repeatedly, restarting on failure until
// groupCancel is invoked (by this child's own escalation, a sibling's
// escalation, or the parent context being cancelled).
func (s *Supervisor) superviseChild(ctx context.Context, groupCancel context.CancelFunc, c Child) {
	for {
		s.setState(c.Name, ChildRunning, nil)
		err := c.Start(ctx)

		if ctx.Err() != nil || errors.Is(err, context.Canceled) {
			s.setState(c.Name, ChildStopped, nil)
			return
		}

		s.setState(c.Name, ChildFailed, err)

		if s.recordRestartLocked(c.Name) {
			s.mu.Lock()
			s.escalated = true
			s.mu.Unlock()
			s.setState(c.Name, ChildFailed, errRestartStormEscalated)
			groupCancel()
			return
		}

		s.setState(c.Name, ChildRestarting, nil)

		select {
		case <-ctx.Done():
			s.setState(c.Name, ChildStopped, nil)
			return
		case <-time.After(restartBackoff):
		}
	}
}

// recordRestartLocked appends a restart timestamp for name, evicts
// entries older than restartWindow, and reports whether the child has
// now exceeded maxRestarts within the window.
func (s *Supervisor) recordRestartLocked(name string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	cutoff := now.Add(-restartWindow)
	kept := s.restarts[name][:0]
	for _, t := range s.restarts[name] {
		if t.After(cutoff) {
			kept = append(kept, t)
		}
	}
	kept = append(kept, now)
	s.restarts[name] = kept

	return len(kept) > maxRestarts
}

var errRestartStormEscalated = errors.New("supervisor: restart storm escalated, group stopping")

// restartBackoff separates consecutive restart attempts for the same
// child so a persistently-failing child doesn't spin the CPU while its
// restarts are still accumulating toward the escalation threshold.
const restartBackoff = 50 * time.Millisecond
