package host

import (
	"context"
	"sync/atomic"
	"testing"
	"time"
)

type countingSteppable struct {
	steps atomic.Int64
}

func (s *countingSteppable) Step(_ context.Context) error {
	s.steps.Add(1)
	return nil
}

func TestTickClockStepsRegisteredUnits(t *testing.T) {
	clock := NewTickClock(time.Millisecond, 1, nil)
	if err := clock.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
	defer clock.Stop()

	unit := &countingSteppable{}
	clock.Register("u1", unit)
	if err := clock.Sleep(context.Background(), 20*time.Millisecond); err != nil {
		t.Fatalf("sleep: %v", err)
	}
	if unit.steps.Load() == 0 {
		t.Fatal("expected unit to be stepped during suspension")
	}

	clock.Deregister("u1")
	settled := unit.steps.Load()
	if err := clock.Sleep(context.Background(), 10*time.Millisecond); err != nil {
		t.Fatalf("sleep: %v", err)
	}
	// A tick snapshot taken before deregistration may still land once.
	if unit.steps.Load() > settled+1 {
		t.Fatalf("deregistered unit kept stepping: %d -> %d", settled, unit.steps.Load())
	}
}

func TestTickClockSleepHonorsDuration(t *testing.T) {
	clock := NewTickClock(time.Millisecond, 1, nil)

	start := time.Now()
	if err := clock.Sleep(context.Background(), 30*time.Millisecond); err != nil {
		t.Fatalf("sleep: %v", err)
	}
	if elapsed := time.Since(start); elapsed < 30*time.Millisecond {
		t.Fatalf("sleep returned early: %v", elapsed)
	}
}

func TestTickClockSleepScalesByMultiplier(t *testing.T) {
	clock := NewTickClock(time.Millisecond, 4, nil)

	start := time.Now()
	if err := clock.Sleep(context.Background(), 40*time.Millisecond); err != nil {
		t.Fatalf("sleep: %v", err)
	}
	elapsed := time.Since(start)
	if elapsed < 10*time.Millisecond {
		t.Fatalf("sleep returned before scaled duration: %v", elapsed)
	}
	if elapsed > 35*time.Millisecond {
		t.Fatalf("multiplier not applied, slept %v for 40ms virtual", elapsed)
	}
}

func TestTickClockSleepCancellation(t *testing.T) {
	clock := NewTickClock(time.Millisecond, 1, nil)
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() {
		done <- clock.Sleep(ctx, time.Minute)
	}()
	cancel()

	select {
	case err := <-done:
		if err == nil {
			t.Fatal("expected cancellation error")
		}
	case <-time.After(time.Second):
		t.Fatal("sleep did not observe cancellation")
	}
}

func TestTickClockDoubleStartFails(t *testing.T) {
	clock := NewTickClock(time.Millisecond, 1, nil)
	if err := clock.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
	defer clock.Stop()

	if err := clock.Start(context.Background()); err == nil {
		t.Fatal("expected second start to fail")
	}
}
