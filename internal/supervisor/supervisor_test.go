package supervisor

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func TestSupervisorStartsAllChildren(t *testing.T) {
	var started int32
	children := make([]Child, 3)
	for i := range children {
		children[i] = Child{
			Name: StartupOrder[i],
			Start: func(ctx context.Context) error {
				atomic.AddInt32(&started, 1)
				<-ctx.Done()
				return ctx.Err()
			},
		}
	}

	sup := New(children, nil)
	ctx, cancel := context.WithCancel(context.Background())

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		sup.Run(ctx)
	}()

	waitForCondition(t, func() bool { return atomic.LoadInt32(&started) == 3 })
	cancel()
	wg.Wait()
}

func TestSupervisorRestartsFailedChildWithoutDisturbingSiblings(t *testing.T) {
	var failingAttempts int32
	var stableAttempts int32

	children := []Child{
		{
			Name: "flaky",
			Start: func(ctx context.Context) error {
				n := atomic.AddInt32(&failingAttempts, 1)
				if n < 3 {
					return errors.New("boom")
				}
				<-ctx.Done()
				return ctx.Err()
			},
		},
		{
			Name: "stable",
			Start: func(ctx context.Context) error {
				atomic.AddInt32(&stableAttempts, 1)
				<-ctx.Done()
				return ctx.Err()
			},
		},
	}

	sup := New(children, nil)
	ctx, cancel := context.WithCancel(context.Background())
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		sup.Run(ctx)
	}()

	waitForCondition(t, func() bool { return atomic.LoadInt32(&failingAttempts) >= 3 })
	cancel()
	wg.Wait()

	if atomic.LoadInt32(&stableAttempts) != 1 {
		t.Fatalf("expected the stable sibling to start exactly once, got %d", stableAttempts)
	}
	if sup.Escalated() {
		t.Fatal("expected no escalation for a child that eventually recovers")
	}
}

func TestSupervisorEscalatesAfterRestartStorm(t *testing.T) {
	children := []Child{
		{
			Name: "always-fails",
			Start: func(ctx context.Context) error {
				return errors.New("permanent failure")
			},
		},
	}

	sup := New(children, nil)
	ctx := context.Background()

	done := make(chan struct{})
	go func() {
		sup.Run(ctx)
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("expected the supervisor to escalate and return on its own")
	}

	if !sup.Escalated() {
		t.Fatal("expected escalation after more than maxRestarts restarts within the window")
	}
}

func TestSupervisorStopCancelsChildren(t *testing.T) {
	children := []Child{
		{
			Name: "a",
			Start: func(ctx context.Context) error {
				<-ctx.Done()
				return ctx.Err()
			},
		},
	}
	sup := New(children, nil)

	done := make(chan struct{})
	go func() {
		sup.Run(context.Background())
		close(done)
	}()

	waitForCondition(t, func() bool { return sup.State("a") == ChildRunning })
	sup.Stop()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("expected Stop to cause Run to return")
	}
}

func waitForCondition(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatal("condition not met before deadline")
}
