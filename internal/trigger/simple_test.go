package trigger

import (
	"testing"
	"time"
)

func TestSimpleTrigger_RepeatZeroPastStart(t *testing.T) {
	tk, jk := newTestKey("simple-zero")
	s := NewSimple(tk, jk, time.Time{}, 0, 0) // startTime = Go's zero value, far in the past

	got := s.GetFireTimeAfter(nil)
	if got != nil {
		t.Fatalf("expected nil, got %v", got)
	}
}

func TestSimpleTrigger_RepeatSequence(t *testing.T) {
	tk, jk := newTestKey("simple-seq")
	start := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	s := NewSimple(tk, jk, start, 3, time.Hour)

	first := s.ComputeFirstFireTime(nil)
	if first == nil || !first.Equal(start) {
		t.Fatalf("expected first fire at start, got %v", first)
	}

	var fires []time.Time
	fires = append(fires, *first)
	for i := 0; i < 3; i++ {
		s.Triggered(nil)
		next := s.GetNextFireTime()
		if next == nil {
			break
		}
		fires = append(fires, *next)
	}
	if len(fires) != 4 {
		t.Fatalf("expected 4 total fires (1 + 3 repeats), got %d: %v", len(fires), fires)
	}
	s.Triggered(nil)
	if s.GetNextFireTime() != nil {
		t.Fatal("expected schedule exhausted after repeatCount+1 fires")
	}
}
