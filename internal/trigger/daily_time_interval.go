package trigger

import (
	"fmt"
	"time"

	"github.com/coriolis-sched/coriolis/internal/domain"
)

// TimeOfDay is a wall-clock time with no date component.
type TimeOfDay struct {
	Hour, Minute, Second int
}

func (t TimeOfDay) onDate(d time.Time, loc *time.Location) time.Time {
	return time.Date(d.Year(), d.Month(), d.Day(), t.Hour, t.Minute, t.Second, 0, loc)
}

// DailyTimeInterval fires every RepeatInterval (RepeatIntervalUnit of
// second/minute/hour) within a daily [StartTimeOfDay, EndTimeOfDay) window,
// restricted to DaysOfWeek, repeating every day the window is open.
type DailyTimeInterval struct {
	Base
	RepeatInterval     int
	RepeatIntervalUnit domain.IntervalUnit
	StartTimeOfDay     TimeOfDay
	EndTimeOfDay       TimeOfDay
	DaysOfWeek         map[time.Weekday]bool
	Location           *time.Location
	// RepeatCount bounds how many individual fires (not daily windows) follow
	// the first one before going terminal, same convention as
	// Simple/CustomCalendar:
	// domain.RepeatIndefinitely means never stop.
	RepeatCount    int
	TimesTriggered int
}

func NewDailyTimeInterval(key domain.TriggerKey, jobKey domain.JobKey, start time.Time, interval int, unit domain.IntervalUnit, startTOD, endTOD TimeOfDay) *DailyTimeInterval {
	d := &DailyTimeInterval{
		Base: NewBase(key, jobKey), RepeatInterval: interval, RepeatIntervalUnit: unit,
		StartTimeOfDay: startTOD, EndTimeOfDay: endTOD, Location: time.UTC,
		RepeatCount: domain.RepeatIndefinitely,
		DaysOfWeek: map[time.Weekday]bool{
			time.Sunday: true, time.Monday: true, time.Tuesday: true, time.Wednesday: true,
			time.Thursday: true, time.Friday: true, time.Saturday: true,
		},
	}
	d.SetStartTime(start)
	return d
}

func (d *DailyTimeInterval) Validate() error {
	if d.RepeatInterval <= 0 {
		return fmt.Errorf("trigger: daily time interval trigger repeat interval must be positive")
	}
	switch d.RepeatIntervalUnit {
	case domain.IntervalSecond, domain.IntervalMinute, domain.IntervalHour:
	default:
		return fmt.Errorf("trigger: daily time interval trigger unit must be second, minute or hour")
	}
	if len(d.DaysOfWeek) == 0 {
		return fmt.Errorf("trigger: daily time interval trigger needs at least one day of week")
	}
	if d.RepeatCount < 0 && d.RepeatCount != domain.RepeatIndefinitely {
		return fmt.Errorf("trigger: daily time interval trigger repeat count must be >= 0 or RepeatIndefinitely")
	}
	return nil
}

func (d *DailyTimeInterval) terminal() bool {
	return d.RepeatCount != domain.RepeatIndefinitely && d.TimesTriggered > d.RepeatCount
}

func (d *DailyTimeInterval) stepDuration() time.Duration {
	switch d.RepeatIntervalUnit {
	case domain.IntervalSecond:
		return time.Duration(d.RepeatInterval) * time.Second
	case domain.IntervalMinute:
		return time.Duration(d.RepeatInterval) * time.Minute
	default:
		return time.Duration(d.RepeatInterval) * time.Hour
	}
}

// nextCandidate finds the first valid instant strictly after `after`: the
// same day's window if another step fits, otherwise the window start of
// the next eligible day.
func (d *DailyTimeInterval) nextCandidate(after time.Time) *time.Time {
	loc := d.Location
	day := after.In(loc)
	step := d.stepDuration()

	windowStart := d.StartTimeOfDay.onDate(day, loc)
	windowEnd := d.EndTimeOfDay.onDate(day, loc)

	if after.Before(windowStart) && d.DaysOfWeek[day.Weekday()] {
		if d.afterEndTime(windowStart) {
			return nil
		}
		return &windowStart
	}

	if !after.Before(windowStart) && after.Before(windowEnd) && d.DaysOfWeek[day.Weekday()] {
		cand := after.Add(step)
		if cand.Before(windowEnd) {
			if d.afterEndTime(cand) {
				return nil
			}
			return &cand
		}
	}

	for i := 1; i <= 7; i++ {
		nextDay := day.AddDate(0, 0, i)
		if !d.DaysOfWeek[nextDay.Weekday()] {
			continue
		}
		start := d.StartTimeOfDay.onDate(nextDay, loc)
		if d.afterEndTime(start) {
			return nil
		}
		return &start
	}
	return nil
}

func (d *DailyTimeInterval) ComputeFirstFireTime(cal domain.Calendar) *time.Time {
	start := d.GetStartTime()
	var first *time.Time
	windowStart := d.StartTimeOfDay.onDate(start, d.Location)
	if !start.After(windowStart) && d.DaysOfWeek[start.Weekday()] {
		first = &windowStart
	} else {
		first = d.nextCandidate(start)
	}
	first = skipExcluded(cal, first, d.nextCandidate)
	d.setNextFireTime(first)
	return first
}

func (d *DailyTimeInterval) Triggered(cal domain.Calendar) {
	d.TimesTriggered++
	d.SetPreviousFireTime(d.GetNextFireTime())
	if d.terminal() {
		d.setNextFireTime(nil)
		return
	}
	next := d.GetNextFireTime()
	if next == nil {
		return
	}
	candidate := d.nextCandidate(*next)
	candidate = skipExcluded(cal, candidate, d.nextCandidate)
	d.setNextFireTime(candidate)
}

// GetFireTimeAfter is pure: a nil argument means "now".
func (d *DailyTimeInterval) GetFireTimeAfter(after *time.Time) *time.Time {
	if d.terminal() {
		return nil
	}
	ref := time.Now()
	if after != nil {
		ref = *after
	}
	from := d.GetStartTime()
	if ref.After(from) {
		from = ref
	}
	return d.nextCandidate(from)
}

// GetFinalFireTime always returns nil: the last fire time is not computed,
// even when endTime or RepeatCount bounds the schedule (afterEndTime and
// terminal only stop later fires from being produced).
func (d *DailyTimeInterval) GetFinalFireTime() *time.Time {
	return nil
}

func (d *DailyTimeInterval) UpdateAfterMisfire(cal domain.Calendar) {
	instr := d.GetMisfireInstruction()
	if instr == domain.MisfireInstructionIgnore {
		return
	}
	if instr == domain.MisfireInstructionSmartPolicy {
		instr = domain.MisfireFireOnceNow
	}
	switch instr {
	case domain.MisfireFireOnceNow:
		now := time.Now()
		d.setNextFireTime(&now)
	case domain.MisfireDoNothing:
		next := d.GetFireTimeAfter(nil)
		d.setNextFireTime(next)
	}
}

func (d *DailyTimeInterval) UpdateWithNewCalendar(cal domain.Calendar, misfireThreshold time.Duration) {
	next := d.GetFireTimeAfter(d.GetPreviousFireTime())
	for next != nil && cal != nil && !cal.IsTimeIncluded(*next) {
		next = d.GetFireTimeAfter(next)
		if next != nil && next.Year() > domain.FarFutureYear {
			next = nil
			break
		}
	}
	if next != nil && d.GetPreviousFireTime() != nil {
		misfireTime := time.Now().Add(-misfireThreshold)
		if next.Before(misfireTime) {
			d.UpdateAfterMisfire(cal)
			return
		}
	}
	d.setNextFireTime(next)
}

func (d *DailyTimeInterval) MayFireAgain() bool {
	return d.GetNextFireTime() != nil
}

func (d *DailyTimeInterval) GetScheduleBuilder() domain.ScheduleBuilder {
	return &DailyTimeIntervalScheduleBuilder{
		interval: d.RepeatInterval, unit: d.RepeatIntervalUnit,
		startTOD: d.StartTimeOfDay, endTOD: d.EndTimeOfDay, daysOfWeek: d.DaysOfWeek,
		repeatCount: d.RepeatCount, key: d.Key_, jobKey: d.JobKey_, start: d.GetStartTime(),
	}
}

// DailyTimeIntervalScheduleBuilder reproduces a DailyTimeInterval trigger's
// schedule parameters.
type DailyTimeIntervalScheduleBuilder struct {
	interval    int
	unit        domain.IntervalUnit
	startTOD    TimeOfDay
	endTOD      TimeOfDay
	daysOfWeek  map[time.Weekday]bool
	repeatCount int
	key         domain.TriggerKey
	jobKey      domain.JobKey
	start       time.Time
}

func (b *DailyTimeIntervalScheduleBuilder) OnDaysOfWeek(days ...time.Weekday) *DailyTimeIntervalScheduleBuilder {
	b.daysOfWeek = make(map[time.Weekday]bool, len(days))
	for _, d := range days {
		b.daysOfWeek[d] = true
	}
	return b
}

func (b *DailyTimeIntervalScheduleBuilder) WithRepeatCount(n int) *DailyTimeIntervalScheduleBuilder {
	b.repeatCount = n
	return b
}

func (b *DailyTimeIntervalScheduleBuilder) RepeatForever() *DailyTimeIntervalScheduleBuilder {
	b.repeatCount = domain.RepeatIndefinitely
	return b
}

func (b *DailyTimeIntervalScheduleBuilder) Build() domain.Trigger {
	t := NewDailyTimeInterval(b.key, b.jobKey, b.start, b.interval, b.unit, b.startTOD, b.endTOD)
	if b.daysOfWeek != nil {
		t.DaysOfWeek = b.daysOfWeek
	}
	t.RepeatCount = b.repeatCount
	return t
}
