package trigger

import (
	"testing"
	"time"

	"github.com/coriolis-sched/coriolis/internal/domain"
)

func newTestKey(name string) (domain.TriggerKey, domain.JobKey) {
	return domain.NewTriggerKey(name, ""), domain.NewJobKey("job-"+name, "")
}

func occurrences(t *testing.T, tr *CustomCalendar, n int) []time.Time {
	t.Helper()
	first := tr.ComputeFirstFireTime(nil)
	if first == nil {
		t.Fatal("expected a first fire time")
	}
	out := []time.Time{*first}
	for len(out) < n {
		tr.Triggered(nil)
		next := tr.GetNextFireTime()
		if next == nil {
			break
		}
		out = append(out, *next)
	}
	return out
}

func TestCustomCalendar_WeeklyScenario(t *testing.T) {
	tk, jk := newTestKey("weekly")
	start := time.Date(2024, 7, 15, 5, 0, 0, 0, time.UTC)
	tr := NewCustomCalendar(tk, jk, start, domain.IntervalWeek, 1, time.UTC)
	tr.ByDay = "SU,WE,TH,SA"
	tr.RepeatCount = 2

	got := occurrences(t, tr, 5)
	want := []string{"2024-07-17", "2024-07-18", "2024-07-20", "2024-07-21", "2024-07-24"}
	if len(got) != len(want) {
		t.Fatalf("got %d occurrences, want %d: %v", len(got), len(want), got)
	}
	for i, g := range got {
		if g.Format("2006-01-02") != want[i] {
			t.Fatalf("occurrence %d: got %s, want %s", i, g.Format("2006-01-02"), want[i])
		}
	}
}

func TestCustomCalendar_MonthlyByMonthDay31(t *testing.T) {
	tk, jk := newTestKey("monthly31")
	start := time.Date(2024, 7, 15, 10, 0, 0, 0, time.UTC)
	tr := NewCustomCalendar(tk, jk, start, domain.IntervalMonth, 1, time.UTC)
	tr.ByMonthDay = "31"
	tr.RepeatCount = domain.RepeatIndefinitely

	got := occurrences(t, tr, 3)
	want := []string{"2024-07-31", "2024-08-31", "2024-10-31"}
	for i, g := range got {
		if g.Format("2006-01-02") != want[i] {
			t.Fatalf("occurrence %d: got %s, want %s", i, g.Format("2006-01-02"), want[i])
		}
	}
}

func TestCustomCalendar_YearlyByDay(t *testing.T) {
	tk, jk := newTestKey("yearly")
	start := time.Date(2024, 4, 15, 5, 0, 0, 0, time.UTC)
	tr := NewCustomCalendar(tk, jk, start, domain.IntervalYear, 1, time.UTC)
	tr.ByMonth = 5
	tr.ByDay = "2WE,3FR,5SU,-1MO"
	tr.RepeatCount = domain.RepeatIndefinitely

	got := occurrences(t, tr, 3)
	want := []string{"2024-05-08", "2024-05-17", "2024-05-27"}
	for i, g := range got {
		if g.Format("2006-01-02") != want[i] {
			t.Fatalf("occurrence %d: got %s, want %s", i, g.Format("2006-01-02"), want[i])
		}
	}
}

func TestMisfire_CustomCalendarDoNothing(t *testing.T) {
	tk, jk := newTestKey("misfire")
	start := time.Now().Add(-48 * time.Hour)
	tr := NewCustomCalendar(tk, jk, start, domain.IntervalDay, 1, time.UTC)
	tr.RepeatCount = domain.RepeatIndefinitely
	tr.SetMisfireInstruction(domain.MisfireDoNothing)

	past := time.Now().Add(-2 * time.Hour)
	tr.setNextFireTime(&past)

	tr.UpdateAfterMisfire(nil)

	next := tr.GetNextFireTime()
	if next == nil {
		t.Fatal("expected a next fire time after misfire recovery")
	}
	if !next.After(time.Now()) {
		t.Fatalf("expected next fire time strictly after now, got %v", next)
	}
}
