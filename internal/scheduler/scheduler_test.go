package scheduler

import (
	"context"
	"sync/atomic"
	"testing"
	"time"
)

func TestScheduleOnceFires(t *testing.T) {
	s := New()
	defer s.Stop()

	fired := make(chan struct{})
	s.ScheduleOnce(StallCheckJob("a1"), 10*time.Millisecond, func(ctx context.Context) {
		close(fired)
	})

	select {
	case <-fired:
	case <-time.After(time.Second):
		t.Fatal("job did not fire")
	}

	// The entry is removed once it has run.
	time.Sleep(20 * time.Millisecond)
	if s.Pending(StallCheckJob("a1")) {
		t.Error("job still pending after firing")
	}
}

func TestScheduleOnceReplaces(t *testing.T) {
	s := New()
	defer s.Stop()

	var first, second atomic.Int32

	id := StallCheckJob("a2")
	s.ScheduleOnce(id, 30*time.Millisecond, func(ctx context.Context) {
		first.Add(1)
	})
	s.ScheduleOnce(id, 10*time.Millisecond, func(ctx context.Context) {
		second.Add(1)
	})

	time.Sleep(100 * time.Millisecond)

	if first.Load() != 0 {
		t.Error("replaced job still fired")
	}
	if second.Load() != 1 {
		t.Errorf("replacement fired %d times, want 1", second.Load())
	}
}

func TestCancel(t *testing.T) {
	s := New()
	defer s.Stop()

	var fired atomic.Int32

	id := StallCheckJob("a3")
	s.ScheduleOnce(id, 20*time.Millisecond, func(ctx context.Context) {
		fired.Add(1)
	})
	s.Cancel(id)

	if s.Pending(id) {
		t.Error("cancelled job still pending")
	}

	time.Sleep(50 * time.Millisecond)
	if fired.Load() != 0 {
		t.Error("cancelled job fired")
	}
}

func TestCancelUnknownIsNoop(t *testing.T) {
	s := New()
	defer s.Stop()

	s.Cancel(StallCheckJob("missing"))
}

func TestStopWaitsForFiringJobs(t *testing.T) {
	for i := 0; i < 50; i++ {
		s := New()

		var ranAfterStop atomic.Int32
		stopped := make(chan struct{})

		// Zero delay maximizes the window where a callback is between
		// its liveness check and its handler when Stop runs.
		s.ScheduleOnce(StallCheckJob("race"), 0, func(ctx context.Context) {
			select {
			case <-stopped:
				ranAfterStop.Add(1)
			default:
			}
		})

		s.Stop()
		close(stopped)

		if ranAfterStop.Load() != 0 {
			t.Fatal("handler still running after Stop returned")
		}
	}
}

func TestScheduleEvery(t *testing.T) {
	s := New()

	var runs atomic.Int32
	s.ScheduleEvery(OutboxDrainJob, 10*time.Millisecond, func(ctx context.Context) {
		runs.Add(1)
	})

	time.Sleep(55 * time.Millisecond)
	s.Stop()

	got := runs.Load()
	if got < 2 {
		t.Errorf("periodic job ran %d times, want at least 2", got)
	}

	// No more runs after Stop.
	time.Sleep(30 * time.Millisecond)
	if runs.Load() != got {
		t.Error("periodic job ran after Stop")
	}
}
