package refresh

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatal("condition not met before deadline")
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestManager_InitialRunAndTicks(t *testing.T) {
	clock := clockwork.NewFakeClock()
	mgr := NewManager(30*time.Second, Options{Clock: clock})

	var runs atomic.Int64
	mgr.Add("count", func(ctx context.Context) error {
		runs.Add(1)
		return nil
	})

	ctx, cancel := context.WithCancel(context.Background())
	mgr.Start(ctx)

	waitFor(t, func() bool { return runs.Load() == 1 && !mgr.LastRun().IsZero() && !mgr.running.Load() })

	if err := clock.BlockUntilContext(ctx, 1); err != nil {
		t.Fatalf("ticker never registered: %v", err)
	}
	clock.Advance(30 * time.Second)
	waitFor(t, func() bool { return runs.Load() == 2 && !mgr.running.Load() })

	clock.Advance(30 * time.Second)
	waitFor(t, func() bool { return runs.Load() == 3 })

	cancel()
	mgr.Stop()
}

func TestManager_FailureDoesNotStopLoop(t *testing.T) {
	clock := clockwork.NewFakeClock()
	mgr := NewManager(time.Minute, Options{Clock: clock})

	var failing, healthy atomic.Int64
	mgr.Add("failing", func(ctx context.Context) error {
		failing.Add(1)
		return errors.New("model unreachable")
	})
	mgr.Add("healthy", func(ctx context.Context) error {
		healthy.Add(1)
		return nil
	})

	ctx, cancel := context.WithCancel(context.Background())
	mgr.Start(ctx)

	waitFor(t, func() bool { return healthy.Load() == 1 && !mgr.running.Load() })
	if err := clock.BlockUntilContext(ctx, 1); err != nil {
		t.Fatalf("ticker never registered: %v", err)
	}
	clock.Advance(time.Minute)
	waitFor(t, func() bool { return healthy.Load() == 2 })

	if failing.Load() != 2 {
		t.Errorf("expected failing task to run twice, got %d", failing.Load())
	}

	cancel()
	mgr.Stop()
}

func TestManager_SkipsOverlappingRuns(t *testing.T) {
	mgr := NewManager(time.Minute, Options{Clock: clockwork.NewFakeClock()})

	started := make(chan struct{})
	release := make(chan struct{})
	mgr.Add("slow", func(ctx context.Context) error {
		close(started)
		<-release
		return nil
	})

	done := make(chan bool)
	go func() { done <- mgr.RunOnce(context.Background()) }()
	<-started

	if mgr.RunOnce(context.Background()) {
		t.Error("expected overlapping run to be skipped")
	}

	close(release)
	if !<-done {
		t.Error("expected first run to complete")
	}
}

func TestManager_CancelStopsLoop(t *testing.T) {
	mgr := NewManager(time.Minute, Options{Clock: clockwork.NewFakeClock()})

	mgr.Add("wait", func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	})

	ctx, cancel := context.WithCancel(context.Background())
	mgr.Start(ctx)
	cancel()

	done := make(chan struct{})
	go func() {
		mgr.Stop()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("manager.Stop() timed out - possible goroutine leak")
	}
}

func TestNewManager_IntervalBounds(t *testing.T) {
	tests := []struct {
		in   time.Duration
		want time.Duration
	}{
		{0, DefaultInterval},
		{time.Second, MinInterval},
		{time.Hour, MaxInterval},
		{45 * time.Second, 45 * time.Second},
	}
	for _, tt := range tests {
		if got := NewManager(tt.in, Options{}).Interval(); got != tt.want {
			t.Errorf("NewManager(%s).Interval() = %s, want %s", tt.in, got, tt.want)
		}
	}
}
