package calendar

import (
	"time"

	"github.com/coriolis-sched/coriolis/internal/cronexpr"
)

// Cron excludes every instant, to the second, that a cron expression
// matches — e.g. "0 0-5 14 * * ?" excludes 14:00:00, 14:01:00, ... 14:05:00
// every day, while 14:00:01 stays included.
// It wraps internal/cronexpr rather than reimplementing field matching.
type Cron struct {
	Base
	expr       *cronexpr.Expression
	loc        *time.Location
	expression string
}

func NewCron(description, expression string, loc *time.Location) (*Cron, error) {
	expr, err := cronexpr.Parse(expression)
	if err != nil {
		return nil, err
	}
	if loc == nil {
		loc = time.UTC
	}
	return &Cron{Base: NewBase(description), expr: expr, loc: loc, expression: expression}, nil
}

// Expression and Location return the calendar's configured cron expression
// and timezone, for serialization.
func (c *Cron) Expression() string      { return c.expression }
func (c *Cron) Location() *time.Location { return c.loc }

// IsTimeIncluded reports the instant is excluded if the cron expression's
// next fire time computed from one second before t is exactly t: the
// expression denotes discrete matching instants, so t is "in" the excluded
// set only when it matches exactly.
func (c *Cron) IsTimeIncluded(t time.Time) bool {
	truncated := t.Truncate(time.Second)
	probe := truncated.Add(-time.Second)
	next := c.expr.Next(probe, c.loc)
	if !next.IsZero() && next.Equal(truncated) {
		return false
	}
	return c.baseIncludes(t)
}
