package calendar

import (
	"testing"
	"time"
)

func TestAnnual_ExcludesFixedDate(t *testing.T) {
	c := NewAnnual("new year")
	c.SetDayExcluded(time.January, 1, true)

	if c.IsTimeIncluded(time.Date(2025, 1, 1, 9, 0, 0, 0, time.UTC)) {
		t.Fatal("expected January 1 excluded")
	}
	if !c.IsTimeIncluded(time.Date(2025, 1, 2, 9, 0, 0, 0, time.UTC)) {
		t.Fatal("expected January 2 included")
	}
	if c.IsTimeIncluded(time.Date(2026, 1, 1, 9, 0, 0, 0, time.UTC)) {
		t.Fatal("expected January 1 excluded every year")
	}
}

func TestMonthly_ExcludesDayNumber(t *testing.T) {
	c := NewMonthly("paydays")
	c.SetDayExcluded(15, true)

	if c.IsTimeIncluded(time.Date(2025, 3, 15, 0, 0, 0, 0, time.UTC)) {
		t.Fatal("expected the 15th excluded")
	}
	if !c.IsTimeIncluded(time.Date(2025, 4, 14, 0, 0, 0, 0, time.UTC)) {
		t.Fatal("expected the 14th included")
	}
}

func TestWeekly_DefaultExcludesWeekends(t *testing.T) {
	c := NewWeekly("business days")
	if c.IsTimeIncluded(time.Date(2025, 6, 7, 0, 0, 0, 0, time.UTC)) { // Saturday
		t.Fatal("expected Saturday excluded by default")
	}
	if !c.IsTimeIncluded(time.Date(2025, 6, 9, 0, 0, 0, 0, time.UTC)) { // Monday
		t.Fatal("expected Monday included")
	}
}

func TestDaily_ExcludesWindow(t *testing.T) {
	c, err := NewDaily("maintenance", "02:00:00", "02:30:00")
	if err != nil {
		t.Fatal(err)
	}
	if c.IsTimeIncluded(time.Date(2025, 1, 1, 2, 15, 0, 0, time.UTC)) {
		t.Fatal("expected 02:15 excluded")
	}
	if !c.IsTimeIncluded(time.Date(2025, 1, 1, 3, 0, 0, 0, time.UTC)) {
		t.Fatal("expected 03:00 included")
	}
}

func TestDaily_WrapsMidnight(t *testing.T) {
	c, err := NewDaily("overnight", "22:00:00", "06:00:00")
	if err != nil {
		t.Fatal(err)
	}
	if !c.IsTimeIncluded(time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)) {
		t.Fatal("expected noon included")
	}
	if c.IsTimeIncluded(time.Date(2025, 1, 1, 23, 0, 0, 0, time.UTC)) {
		t.Fatal("expected 23:00 excluded")
	}
	if c.IsTimeIncluded(time.Date(2025, 1, 1, 1, 0, 0, 0, time.UTC)) {
		t.Fatal("expected 01:00 excluded")
	}
}

func TestHoliday_ExcludesExplicitDate(t *testing.T) {
	c := NewHoliday("thanksgiving")
	c.AddExcludedDate(time.Date(2025, 11, 27, 0, 0, 0, 0, time.UTC))

	if c.IsTimeIncluded(time.Date(2025, 11, 27, 10, 0, 0, 0, time.UTC)) {
		t.Fatal("expected the date excluded")
	}
	if !c.IsTimeIncluded(time.Date(2026, 11, 27, 10, 0, 0, 0, time.UTC)) {
		t.Fatal("expected the date not excluded the following year")
	}
}

func TestCron_ExcludesOnlyTheMatchingSecond(t *testing.T) {
	c, err := NewCron("lunch break", "0 0 12 * * ?", time.UTC)
	if err != nil {
		t.Fatal(err)
	}
	if c.IsTimeIncluded(time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)) {
		t.Fatal("expected noon itself excluded")
	}
	if !c.IsTimeIncluded(time.Date(2025, 6, 1, 12, 0, 1, 0, time.UTC)) {
		t.Fatal("expected one second after noon still included")
	}
}

func TestChaining_Conjunction(t *testing.T) {
	weekly := NewWeekly("weekends")
	holiday := NewHoliday("holidays")
	holiday.AddExcludedDate(time.Date(2025, 7, 4, 0, 0, 0, 0, time.UTC)) // a Friday
	holiday.SetBaseCalendar(weekly)

	if holiday.IsTimeIncluded(time.Date(2025, 7, 4, 9, 0, 0, 0, time.UTC)) {
		t.Fatal("expected July 4th excluded via holiday")
	}
	if holiday.IsTimeIncluded(time.Date(2025, 7, 5, 9, 0, 0, 0, time.UTC)) { // Saturday
		t.Fatal("expected Saturday excluded via chained weekly base")
	}
	if !holiday.IsTimeIncluded(time.Date(2025, 7, 7, 9, 0, 0, 0, time.UTC)) { // Monday
		t.Fatal("expected Monday included")
	}
}
