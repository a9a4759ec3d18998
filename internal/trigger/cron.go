package trigger

import (
	"time"

	"github.com/coriolis-sched/coriolis/internal/cronexpr"
	"github.com/coriolis-sched/coriolis/internal/domain"
)

// Cron fires according to a parsed internal/cronexpr.Expression.
type Cron struct {
	Base
	Expression string
	Location   *time.Location
	expr       *cronexpr.Expression
}

func NewCron(key domain.TriggerKey, jobKey domain.JobKey, expression string, loc *time.Location) (*Cron, error) {
	expr, err := cronexpr.Parse(expression)
	if err != nil {
		return nil, err
	}
	if loc == nil {
		loc = time.UTC
	}
	c := &Cron{Base: NewBase(key, jobKey), Expression: expression, Location: loc, expr: expr}
	c.SetStartTime(time.Now())
	return c, nil
}

func (c *Cron) Validate() error {
	_, err := cronexpr.Parse(c.Expression)
	return err
}

func (c *Cron) nextCandidate(after time.Time) *time.Time {
	t := c.expr.Next(after, c.Location)
	if t.IsZero() {
		return nil
	}
	if c.afterEndTime(t) {
		return nil
	}
	return &t
}

func (c *Cron) ComputeFirstFireTime(cal domain.Calendar) *time.Time {
	start := c.GetStartTime().Add(-time.Second)
	first := c.nextCandidate(start)
	first = skipExcluded(cal, first, c.nextCandidate)
	c.setNextFireTime(first)
	return first
}

func (c *Cron) Triggered(cal domain.Calendar) {
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
func (c *Cron) GetFireTimeAfter(after *time.Time) *time.Time {
	ref := time.Now()
	if after != nil {
		ref = *after
	}
	from := c.GetStartTime().Add(-time.Second)
	if ref.After(from) {
		from = ref
	}
	return c.nextCandidate(from)
}

// GetFinalFireTime always returns nil: the last fire time of a cron schedule
// is not computed, even when an endTime bounds it (afterEndTime only stops
// nextCandidate from returning instants past endTime).
func (c *Cron) GetFinalFireTime() *time.Time {
	return nil
}

func (c *Cron) UpdateAfterMisfire(cal domain.Calendar) {
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

func (c *Cron) UpdateWithNewCalendar(cal domain.Calendar, misfireThreshold time.Duration) {
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

func (c *Cron) MayFireAgain() bool {
	return c.GetNextFireTime() != nil
}

func (c *Cron) GetScheduleBuilder() domain.ScheduleBuilder {
	return &CronScheduleBuilder{expression: c.Expression, loc: c.Location, key: c.Key_, jobKey: c.JobKey_}
}

// CronScheduleBuilder reproduces a Cron trigger's schedule parameters.
type CronScheduleBuilder struct {
	expression string
	loc        *time.Location
	key        domain.TriggerKey
	jobKey     domain.JobKey
}

func (b *CronScheduleBuilder) InTimeZone(loc *time.Location) *CronScheduleBuilder {
	b.loc = loc
	return b
}

func (b *CronScheduleBuilder) Build() domain.Trigger {
	t, err := NewCron(b.key, b.jobKey, b.expression, b.loc)
	if err != nil {
		// a builder produced from an already-valid trigger cannot fail to
		// reparse; surface an unschedulable trigger rather than panicking.
		t, _ = NewCron(b.key, b.jobKey, "0 0 0 1 1 ? 1970", b.loc)
	}
	return t
}
