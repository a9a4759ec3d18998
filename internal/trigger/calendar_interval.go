package trigger

import (
	"fmt"
	"time"

	"github.com/coriolis-sched/coriolis/internal/domain"
)

// CalendarInterval fires every N calendar units (not fixed durations):
// "every 1 month" lands on the same day-of-month even across months of
// different lengths, unlike Simple's fixed time.Duration interval. When the
// target month is too short, the date is clamped to its last day (Jan 31 ->
// Feb 28); each step counts from the previous fire time, so the clamped day
// carries forward (Jan 31, Feb 28, Mar 28).
type CalendarInterval struct {
	Base
	RepeatInterval     int
	RepeatIntervalUnit domain.IntervalUnit
	// PreserveHourOfDayAcrossDST keeps the clock-hour stable across a
	// spring-forward/fall-back transition instead of preserving the
	// elapsed-duration instant.
	PreserveHourOfDayAcrossDST bool
	SkipDayIfHourDoesNotExist  bool
	TimesTriggered             int
}

func NewCalendarInterval(key domain.TriggerKey, jobKey domain.JobKey, start time.Time, interval int, unit domain.IntervalUnit) *CalendarInterval {
	c := &CalendarInterval{Base: NewBase(key, jobKey), RepeatInterval: interval, RepeatIntervalUnit: unit}
	c.SetStartTime(start)
	return c
}

func (c *CalendarInterval) Validate() error {
	if c.RepeatInterval <= 0 {
		return fmt.Errorf("trigger: calendar interval trigger repeat interval must be positive")
	}
	switch c.RepeatIntervalUnit {
	case domain.IntervalSecond, domain.IntervalMinute, domain.IntervalHour,
		domain.IntervalDay, domain.IntervalWeek, domain.IntervalMonth, domain.IntervalYear:
		return nil
	default:
		return fmt.Errorf("trigger: unknown interval unit %q", c.RepeatIntervalUnit)
	}
}

func (c *CalendarInterval) advance(t time.Time) time.Time {
	switch c.RepeatIntervalUnit {
	case domain.IntervalSecond:
		return t.Add(time.Duration(c.RepeatInterval) * time.Second)
	case domain.IntervalMinute:
		return t.Add(time.Duration(c.RepeatInterval) * time.Minute)
	case domain.IntervalHour:
		return t.Add(time.Duration(c.RepeatInterval) * time.Hour)
	case domain.IntervalDay:
		return c.advanceDays(t, c.RepeatInterval)
	case domain.IntervalWeek:
		return c.advanceDays(t, 7*c.RepeatInterval)
	case domain.IntervalMonth, domain.IntervalYear:
		months := c.RepeatInterval
		if c.RepeatIntervalUnit == domain.IntervalYear {
			months *= 12
		}
		next := t.AddDate(0, months, 0)
		if next.Day() != t.Day() {
			// t's day-of-month does not exist in the target month and AddDate
			// rolled over into the month after; step back to the last day.
			next = next.AddDate(0, 0, -next.Day())
		}
		return c.pinHour(t, next)
	default:
		return t
	}
}

// advanceDays steps forward by a fixed number of 24-hour days. Without
// PreserveHourOfDayAcrossDST this is a literal elapsed-time Add, so a
// spring-forward/fall-back day shifts the visible local hour by the DST
// offset change — Quartz's default, duration-based semantics. With the
// flag set, want's hour/minute/second is re-pinned onto the result
// instead, so the schedule always fires at the same wall-clock time.
func (c *CalendarInterval) advanceDays(t time.Time, days int) time.Time {
	next := t.Add(time.Duration(days) * 24 * time.Hour)
	if !c.PreserveHourOfDayAcrossDST {
		return next
	}
	return c.pinHour(t, next)
}

// pinHour re-stamps want's wall-clock hour/minute/second onto next's
// calendar date. If that exact local time does not exist (a
// spring-forward gap) and SkipDayIfHourDoesNotExist is set, the date is
// advanced a day at a time until it does, bounded to a week so a
// pathological zone transition can't spin forever.
func (c *CalendarInterval) pinHour(want, next time.Time) time.Time {
	hour, min, sec := want.Hour(), want.Minute(), want.Second()
	for i := 0; i < 7; i++ {
		candidate := time.Date(next.Year(), next.Month(), next.Day(), hour, min, sec, next.Nanosecond(), next.Location())
		if candidate.Hour() == hour || !c.SkipDayIfHourDoesNotExist {
			return candidate
		}
		next = next.AddDate(0, 0, 1)
	}
	return next
}

func (c *CalendarInterval) nextCandidate(after time.Time) *time.Time {
	t := c.advance(after)
	if c.afterEndTime(t) {
		return nil
	}
	return &t
}

func (c *CalendarInterval) ComputeFirstFireTime(cal domain.Calendar) *time.Time {
	t := c.GetStartTime()
	first := &t
	first = skipExcluded(cal, first, c.nextCandidate)
	c.setNextFireTime(first)
	return first
}

func (c *CalendarInterval) Triggered(cal domain.Calendar) {
	c.TimesTriggered++
	c.SetPreviousFireTime(c.GetNextFireTime())
	next := c.GetNextFireTime()
	if next == nil {
		return
	}
	candidate := c.nextCandidate(*next)
	candidate = skipExcluded(cal, candidate, c.nextCandidate)
	c.setNextFireTime(candidate)
}

// GetFireTimeAfter is pure: a nil argument means "now".
func (c *CalendarInterval) GetFireTimeAfter(after *time.Time) *time.Time {
	ref := time.Now()
	if after != nil {
		ref = *after
	}
	t := c.GetStartTime()
	if !ref.After(t) {
		if c.afterEndTime(t) {
			return nil
		}
		return &t
	}
	for !t.After(ref) {
		n := c.advance(t)
		if !n.After(t) {
			break // degenerate interval, avoid an infinite loop
		}
		t = n
	}
	if c.afterEndTime(t) {
		return nil
	}
	return &t
}

func (c *CalendarInterval) GetFinalFireTime() *time.Time {
	if c.GetEndTime() == nil {
		return nil
	}
	t := c.GetStartTime()
	var last *time.Time
	for !c.afterEndTime(t) {
		v := t
		last = &v
		t = c.advance(t)
	}
	return last
}

func (c *CalendarInterval) UpdateAfterMisfire(cal domain.Calendar) {
	instr := c.GetMisfireInstruction()
	if instr == domain.MisfireInstructionIgnore {
		return
	}
	if instr == domain.MisfireInstructionSmartPolicy {
		instr = domain.MisfireFireOnceNow
	}
	switch instr {
	case domain.MisfireFireOnceNow:
		now := time.Now()
		c.setNextFireTime(&now)
	case domain.MisfireDoNothing:
		next := c.GetFireTimeAfter(nil)
		c.setNextFireTime(next)
	}
}

func (c *CalendarInterval) UpdateWithNewCalendar(cal domain.Calendar, misfireThreshold time.Duration) {
	next := c.GetFireTimeAfter(c.GetPreviousFireTime())
	for next != nil && cal != nil && !cal.IsTimeIncluded(*next) {
		next = c.GetFireTimeAfter(next)
		if next != nil && next.Year() > domain.FarFutureYear {
			next = nil
			break
		}
	}
	if next != nil && c.GetPreviousFireTime() != nil {
		misfireTime := time.Now().Add(-misfireThreshold)
		if next.Before(misfireTime) {
			c.UpdateAfterMisfire(cal)
			return
		}
	}
	c.setNextFireTime(next)
}

func (c *CalendarInterval) MayFireAgain() bool {
	return c.GetNextFireTime() != nil
}

func (c *CalendarInterval) GetScheduleBuilder() domain.ScheduleBuilder {
	return &CalendarIntervalScheduleBuilder{
		interval: c.RepeatInterval, unit: c.RepeatIntervalUnit,
		key: c.Key_, jobKey: c.JobKey_, start: c.GetStartTime(),
	}
}

// CalendarIntervalScheduleBuilder reproduces a CalendarInterval trigger's
// schedule parameters.
type CalendarIntervalScheduleBuilder struct {
	interval int
	unit     domain.IntervalUnit
	key      domain.TriggerKey
	jobKey   domain.JobKey
	start    time.Time
}

func (b *CalendarIntervalScheduleBuilder) WithInterval(n int, unit domain.IntervalUnit) *CalendarIntervalScheduleBuilder {
	b.interval = n
	b.unit = unit
	return b
}

func (b *CalendarIntervalScheduleBuilder) Build() domain.Trigger {
	return NewCalendarInterval(b.key, b.jobKey, b.start, b.interval, b.unit)
}
