package scheduler

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseIntervalDuration(t *testing.T) {
	tests := []struct {
		in   string
		want time.Duration
		ok   bool
	}{
		{"5m", 5 * time.Minute, true},
		{"1h", time.Hour, true},
		{"1d", 24 * time.Hour, true},
		{"2w", 14 * 24 * time.Hour, true},
		{" 15M ", 15 * time.Minute, true},
		{"", 0, false},
		{"m", 0, false},
		{"0m", 0, false},
		{"-5m", 0, false},
		{"5x", 0, false},
		{"abc", 0, false},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, ok := ParseIntervalDuration(tt.in)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestNextWakeAlignsToBoundary(t *testing.T) {
	s := &AlignedScheduler{Interval: 5 * time.Minute, Offset: 5 * time.Second}
	now := time.Date(2025, 6, 2, 14, 32, 17, 0, time.UTC)

	wakeAt, wait := s.nextWake(now)

	assert.Equal(t, time.Date(2025, 6, 2, 14, 35, 5, 0, time.UTC), wakeAt)
	assert.Equal(t, wakeAt.Sub(now), wait)
}

func TestNextWakeOnExactBoundary(t *testing.T) {
	s := &AlignedScheduler{Interval: time.Minute}
	now := time.Date(2025, 6, 2, 14, 30, 0, 0, time.UTC)

	wakeAt, _ := s.nextWake(now)

	// A tick landing exactly on a boundary schedules the next one.
	assert.Equal(t, time.Date(2025, 6, 2, 14, 31, 0, 0, time.UTC), wakeAt)
}

func TestStartRunImmediatelyAndCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	s := NewAlignedScheduler(ctx, time.Hour, 0)
	s.RunImmediately = true

	ran := make(chan struct{}, 1)
	done := make(chan struct{})
	go func() {
		s.Start(func() { ran <- struct{}{} })
		close(done)
	}()

	select {
	case <-ran:
	case <-time.After(2 * time.Second):
		t.Fatal("immediate run never fired")
	}

	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("scheduler did not stop on cancel")
	}
}

func TestStartRejectsInvalidInterval(t *testing.T) {
	s := NewAlignedScheduler(context.Background(), 0, 0)
	finished := make(chan struct{})
	go func() {
		s.Start(func() { t.Error("task must not run") })
		close(finished)
	}()
	select {
	case <-finished:
	case <-time.After(time.Second):
		t.Fatal("scheduler with zero interval should return at once")
	}
	require.NotNil(t, s)
}
