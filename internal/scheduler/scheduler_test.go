package scheduler

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

func TestNextCycleAligned(t *testing.T) {
	s := New(Options{Interval: time.Hour, AlignToStart: true}, zerolog.Nop())

	now := time.Date(2026, 8, 27, 12, 17, 30, 0, time.UTC)
	next := s.nextCycle(now)
	want := time.Date(2026, 8, 27, 13, 0, 0, 0, time.UTC)
	if !next.Equal(want) {
		t.Fatalf("expected aligned next cycle %s, got %s", want, next)
	}

	// Exactly on the boundary still moves forward.
	onBoundary := time.Date(2026, 8, 27, 13, 0, 0, 0, time.UTC)
	next = s.nextCycle(onBoundary)
	if !next.Equal(onBoundary.Add(time.Hour)) {
		t.Fatalf("boundary time should schedule the following cycle, got %s", next)
	}
}

func TestNextCycleUnaligned(t *testing.T) {
	s := New(Options{Interval: 30 * time.Minute}, zerolog.Nop())
	now := time.Date(2026, 8, 27, 12, 17, 0, 0, time.UTC)
	if next := s.nextCycle(now); !next.Equal(now.Add(30 * time.Minute)) {
		t.Fatalf("unaligned scheduler should add the interval, got %s", next)
	}
}

func TestRunStopsOnContextCancel(t *testing.T) {
	s := New(Options{Interval: 10 * time.Millisecond}, zerolog.Nop())

	ctx, cancel := context.WithCancel(context.Background())
	var calls atomic.Int32

	done := make(chan error, 1)
	go func() {
		done <- s.Run(ctx, func(ctx context.Context, cycle time.Time) error {
			if calls.Add(1) >= 2 {
				cancel()
			}
			return nil
		})
	}()

	select {
	case err := <-done:
		if err == nil {
			t.Fatal("run should return the context error")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("scheduler did not stop after cancel")
	}
	if calls.Load() < 2 {
		t.Fatalf("expected at least 2 cycles, got %d", calls.Load())
	}
}

func TestNewPanicsOnNonPositiveInterval(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Fatal("zero interval should panic")
		}
	}()
	New(Options{}, zerolog.Nop())
}
