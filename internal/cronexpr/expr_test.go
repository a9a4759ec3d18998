package cronexpr

import (
	"testing"
	"time"
)

func mustParse(t *testing.T, expr string) *Expression {
	t.Helper()
	e, err := Parse(expr)
	if err != nil {
		t.Fatalf("parse %q: %v", expr, err)
	}
	return e
}

func TestNext_EveryMinute(t *testing.T) {
	e := mustParse(t, "0 * * * * ?")
	from := time.Date(2024, 1, 1, 10, 30, 15, 0, time.UTC)
	got := e.Next(from, time.UTC)
	want := time.Date(2024, 1, 1, 10, 31, 0, 0, time.UTC)
	if !got.Equal(want) {
		t.Fatalf("got %v, want %v", got, want)
	}
}

func TestNext_DailyAtNoon(t *testing.T) {
	e := mustParse(t, "0 0 12 * * ?")
	from := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	got := e.Next(from, time.UTC)
	want := time.Date(2024, 3, 2, 12, 0, 0, 0, time.UTC)
	if !got.Equal(want) {
		t.Fatalf("got %v, want %v", got, want)
	}
}

func TestNext_LastDayOfMonth(t *testing.T) {
	e := mustParse(t, "0 0 0 L * ?")
	got := e.Next(time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC), time.UTC)
	want := time.Date(2024, 2, 29, 0, 0, 0, 0, time.UTC) // 2024 is a leap year
	if !got.Equal(want) {
		t.Fatalf("got %v, want %v", got, want)
	}
}

func TestNext_NearestWeekdayToThe15th(t *testing.T) {
	// 2024-06-15 is a Saturday; nearest weekday is Friday the 14th.
	e := mustParse(t, "0 0 0 15W * ?")
	got := e.Next(time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC), time.UTC)
	want := time.Date(2024, 6, 14, 0, 0, 0, 0, time.UTC)
	if !got.Equal(want) {
		t.Fatalf("got %v, want %v", got, want)
	}
}

func TestNext_NthWeekday(t *testing.T) {
	// second Wednesday of every month; Wednesday = 3 in 0=Sun convention.
	e := mustParse(t, "0 0 9 ? * 3#2")
	got := e.Next(time.Date(2024, 7, 1, 0, 0, 0, 0, time.UTC), time.UTC)
	want := time.Date(2024, 7, 10, 9, 0, 0, 0, time.UTC)
	if !got.Equal(want) {
		t.Fatalf("got %v, want %v", got, want)
	}
}

func TestNext_LastWeekdayOfMonth(t *testing.T) {
	// last Friday (5) of the month.
	e := mustParse(t, "0 0 17 ? * 5L")
	got := e.Next(time.Date(2024, 8, 1, 0, 0, 0, 0, time.UTC), time.UTC)
	want := time.Date(2024, 8, 30, 17, 0, 0, 0, time.UTC)
	if !got.Equal(want) {
		t.Fatalf("got %v, want %v", got, want)
	}
}

func TestParse_RejectsBothDayFieldsSpecified(t *testing.T) {
	if _, err := Parse("0 0 0 1 * 1"); err == nil {
		t.Fatal("expected error when both day-of-month and day-of-week are specified")
	}
}

func TestParse_RejectsNeitherDayFieldWildcarded(t *testing.T) {
	if _, err := Parse("0 0 0 * * *"); err == nil {
		t.Fatal("expected error when neither day field is \"?\"")
	}
}

func TestParse_YearField(t *testing.T) {
	e := mustParse(t, "0 0 0 1 1 ? 2030")
	got := e.Next(time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC), time.UTC)
	want := time.Date(2030, 1, 1, 0, 0, 0, 0, time.UTC)
	if !got.Equal(want) {
		t.Fatalf("got %v, want %v", got, want)
	}
}

func TestNext_MonotonicSequence(t *testing.T) {
	e := mustParse(t, "0 */15 * * * ?")
	from := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	prev := from
	for i := 0; i < 50; i++ {
		next := e.Next(prev, time.UTC)
		if !next.After(prev) {
			t.Fatalf("sequence not monotonic at step %d: %v -> %v", i, prev, next)
		}
		prev = next
	}
}
