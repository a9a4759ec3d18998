package trigger

import (
	"fmt"
	"strings"
	"time"

	"github.com/coriolis-sched/coriolis/internal/domain"
	"github.com/teambition/rrule-go"
)

// customCalendarCount bounds the RRULE evaluator's per-query work. It does
// not limit how many times the trigger itself may fire — that is
// RepeatCount's job — it only keeps one getFireTimeAfter call cheap.
const customCalendarCount = 500

// CustomCalendar fires on an RRULE-style recurrence built from its fields
// rather than a hand-typed RRULE string, so storage round-trips through the
// same fields a form would present (spec.md §4.2.5).
type CustomCalendar struct {
	Base
	IntervalUnit domain.IntervalUnit // Day, Week, Month or Year
	Interval     int
	ByMonth      int    // 0 means unset
	ByMonthDay   string // kept as a string throughout; never parsed as an int
	ByDay        string // e.g. "MO,1MO,-1FR,SU"
	RepeatCount  int

	// timeZone is set once at construction; nothing mutates it afterward.
	timeZone       *time.Location
	timesTriggered int
}

func NewCustomCalendar(key domain.TriggerKey, jobKey domain.JobKey, start time.Time, unit domain.IntervalUnit, interval int, loc *time.Location) *CustomCalendar {
	if loc == nil {
		loc = time.UTC
	}
	c := &CustomCalendar{Base: NewBase(key, jobKey), IntervalUnit: unit, Interval: interval, RepeatCount: domain.RepeatIndefinitely, timeZone: loc}
	c.SetStartTime(start)
	return c
}

func (c *CustomCalendar) Validate() error {
	if c.Interval < 1 {
		return fmt.Errorf("trigger: custom calendar trigger interval must be >= 1")
	}
	switch c.IntervalUnit {
	case domain.IntervalYear:
		if c.ByMonth == 0 {
			return fmt.Errorf("trigger: yearly custom calendar trigger requires byMonth")
		}
		if c.ByDay == "" && c.ByMonthDay == "" {
			return fmt.Errorf("trigger: yearly custom calendar trigger requires byDay or byMonthDay")
		}
	case domain.IntervalMonth:
		if c.ByDay == "" && c.ByMonthDay == "" {
			return fmt.Errorf("trigger: monthly custom calendar trigger requires byDay or byMonthDay")
		}
	case domain.IntervalWeek:
		if c.ByDay == "" {
			return fmt.Errorf("trigger: weekly custom calendar trigger requires byDay")
		}
	case domain.IntervalDay:
		// no additional BY* rule required
	default:
		return fmt.Errorf("trigger: custom calendar trigger interval unit must be Day, Week, Month or Year")
	}
	if c.RepeatCount < 0 && c.RepeatCount != domain.RepeatIndefinitely {
		return fmt.Errorf("trigger: custom calendar trigger repeat count must be >= 0 or RepeatIndefinitely")
	}
	return nil
}

// rruleString builds "FREQ=...;INTERVAL=...;BYMONTH=...;BYMONTHDAY=...;BYDAY=...;COUNT=500".
func (c *CustomCalendar) rruleString() string {
	freq := map[domain.IntervalUnit]string{
		domain.IntervalDay:   "DAILY",
		domain.IntervalWeek:  "WEEKLY",
		domain.IntervalMonth: "MONTHLY",
		domain.IntervalYear:  "YEARLY",
	}[c.IntervalUnit]

	parts := []string{"FREQ=" + freq, fmt.Sprintf("INTERVAL=%d", c.Interval)}
	if c.ByMonth > 0 {
		parts = append(parts, fmt.Sprintf("BYMONTH=%d", c.ByMonth))
	}
	if c.ByMonthDay != "" {
		parts = append(parts, "BYMONTHDAY="+c.ByMonthDay)
	}
	if c.ByDay != "" {
		parts = append(parts, "BYDAY="+c.ByDay)
	}
	parts = append(parts, fmt.Sprintf("COUNT=%d", customCalendarCount))
	return strings.Join(parts, ";")
}

// advanceStart moves start forward by whole interval-sized periods so it
// lands as close to "after" as possible without exceeding it, bounding how
// much work the RRULE evaluator has to do per query.
func (c *CustomCalendar) advanceStart(start, after time.Time) time.Time {
	if !after.After(start) {
		return start
	}

	switch c.IntervalUnit {
	case domain.IntervalDay:
		n := int(after.Sub(start).Hours()/24) / c.Interval
		return stepBack(start, after, func(k int) time.Time { return start.AddDate(0, 0, k*c.Interval) }, n)
	case domain.IntervalWeek:
		n := int(after.Sub(start).Hours()/(24*7)) / c.Interval
		return stepBack(start, after, func(k int) time.Time { return start.AddDate(0, 0, k*c.Interval*7) }, n)
	case domain.IntervalMonth:
		months := (after.Year()-start.Year())*12 + int(after.Month()-start.Month())
		n := months / c.Interval
		return stepBack(start, after, func(k int) time.Time { return start.AddDate(0, k*c.Interval, 0) }, n)
	case domain.IntervalYear:
		n := (after.Year() - start.Year()) / c.Interval
		return stepBack(start, after, func(k int) time.Time { return start.AddDate(k*c.Interval, 0, 0) }, n)
	default:
		return start
	}
}

// stepBack corrects an estimated step count k so that step(k) <= after <
// step(k+1), since calendar-arithmetic estimates (month/year lengths vary)
// can overshoot or undershoot by one step.
func stepBack(start, after time.Time, step func(int) time.Time, k int) time.Time {
	if k < 0 {
		k = 0
	}
	for step(k).After(after) && k > 0 {
		k--
	}
	for !step(k+1).After(after) {
		k++
	}
	return step(k)
}

func (c *CustomCalendar) buildRule(dtstart time.Time) (*rrule.RRule, error) {
	rule, err := rrule.StrToRRule(c.rruleString())
	if err != nil {
		return nil, fmt.Errorf("trigger: invalid custom calendar recurrence: %w", err)
	}
	rule.DTStart(dtstart.In(c.timeZone))
	return rule, nil
}

func (c *CustomCalendar) terminal() bool {
	return c.RepeatCount != domain.RepeatIndefinitely && c.timesTriggered > c.RepeatCount
}

// GetFireTimeAfter is pure: a nil argument means "now".
func (c *CustomCalendar) GetFireTimeAfter(after *time.Time) *time.Time {
	if c.terminal() {
		return nil
	}

	afterTime := time.Now()
	if after != nil {
		afterTime = *after
	}
	if c.afterEndTime(afterTime) {
		return nil
	}

	start := c.advanceStart(c.GetStartTime(), afterTime)
	rule, err := c.buildRule(start)
	if err != nil {
		return nil
	}

	next := rule.After(afterTime.In(c.timeZone), false)
	if next.IsZero() {
		return nil
	}
	next = next.In(c.timeZone)
	if c.afterEndTime(next) {
		return nil
	}
	return &next
}

func (c *CustomCalendar) ComputeFirstFireTime(cal domain.Calendar) *time.Time {
	start := c.GetStartTime().Add(-time.Second)
	first := c.GetFireTimeAfter(&start)
	first = skipExcluded(cal, first, func(after time.Time) *time.Time { return c.GetFireTimeAfter(&after) })
	c.setNextFireTime(first)
	return first
}

func (c *CustomCalendar) Triggered(cal domain.Calendar) {
	c.timesTriggered++
	c.SetPreviousFireTime(c.GetNextFireTime())
	if c.terminal() {
		c.setNextFireTime(nil)
		return
	}
	next := c.GetNextFireTime()
	if next == nil {
		return
	}
	candidate := c.GetFireTimeAfter(next)
	candidate = skipExcluded(cal, candidate, func(after time.Time) *time.Time { return c.GetFireTimeAfter(&after) })
	c.setNextFireTime(candidate)
}

func (c *CustomCalendar) GetFinalFireTime() *time.Time {
	if c.RepeatCount == domain.RepeatIndefinitely && c.GetEndTime() == nil {
		return nil
	}
	cursor := c.GetStartTime().Add(-time.Second)
	var last *time.Time
	n := 0
	for {
		if c.RepeatCount != domain.RepeatIndefinitely && n > c.RepeatCount {
			break
		}
		next := c.GetFireTimeAfter(&cursor)
		if next == nil {
			break
		}
		last = next
		cursor = *next
		n++
	}
	return last
}

func (c *CustomCalendar) UpdateAfterMisfire(cal domain.Calendar) {
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
		now := time.Now()
		next := c.GetFireTimeAfter(&now)
		c.setNextFireTime(next)
	}
}

func (c *CustomCalendar) UpdateWithNewCalendar(cal domain.Calendar, misfireThreshold time.Duration) {
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

// TimesTriggered, SetTimesTriggered and TimeZone expose otherwise-private
// state for store rehydration.
func (c *CustomCalendar) TimesTriggered() int      { return c.timesTriggered }
func (c *CustomCalendar) SetTimesTriggered(n int)  { c.timesTriggered = n }
func (c *CustomCalendar) TimeZone() *time.Location { return c.timeZone }

func (c *CustomCalendar) MayFireAgain() bool {
	return c.GetNextFireTime() != nil
}

func (c *CustomCalendar) GetScheduleBuilder() domain.ScheduleBuilder {
	return &CustomCalendarScheduleBuilder{
		unit: c.IntervalUnit, interval: c.Interval, byMonth: c.ByMonth,
		byMonthDay: c.ByMonthDay, byDay: c.ByDay, repeatCount: c.RepeatCount,
		loc: c.timeZone, key: c.Key_, jobKey: c.JobKey_, start: c.GetStartTime(),
	}
}

// CustomCalendarScheduleBuilder reproduces a CustomCalendar trigger's
// schedule parameters.
type CustomCalendarScheduleBuilder struct {
	unit        domain.IntervalUnit
	interval    int
	byMonth     int
	byMonthDay  string
	byDay       string
	repeatCount int
	loc         *time.Location
	key         domain.TriggerKey
	jobKey      domain.JobKey
	start       time.Time
}

func (b *CustomCalendarScheduleBuilder) WithByMonth(m int) *CustomCalendarScheduleBuilder {
	b.byMonth = m
	return b
}

func (b *CustomCalendarScheduleBuilder) WithByMonthDay(s string) *CustomCalendarScheduleBuilder {
	b.byMonthDay = s
	return b
}

func (b *CustomCalendarScheduleBuilder) WithByDay(s string) *CustomCalendarScheduleBuilder {
	b.byDay = s
	return b
}

func (b *CustomCalendarScheduleBuilder) WithRepeatCount(n int) *CustomCalendarScheduleBuilder {
	b.repeatCount = n
	return b
}

func (b *CustomCalendarScheduleBuilder) Build() domain.Trigger {
	c := NewCustomCalendar(b.key, b.jobKey, b.start, b.unit, b.interval, b.loc)
	c.ByMonth = b.byMonth
	c.ByMonthDay = b.byMonthDay
	c.ByDay = b.byDay
	c.RepeatCount = b.repeatCount
	return c
}
