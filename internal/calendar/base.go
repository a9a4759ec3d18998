// Package calendar implements the exclusion calendars that triggers
// consult when computing fire times (spec.md §4.1): a calendar answers
// "is this instant included" and triggers skip excluded instants when
// advancing. Each type wraps an optional base calendar so calendars chain
// by conjunction, mirroring Quartz's BaseCalendar composition.
package calendar

import (
	"time"

	"github.com/coriolis-sched/coriolis/internal/domain"
)

// Base gives every concrete calendar the base-calendar chaining and
// description storage so each type only implements IsTimeIncluded itself.
type Base struct {
	base        domain.Calendar
	description string
}

// NewBase returns a Base with no parent calendar.
func NewBase(description string) Base {
	return Base{description: description}
}

func (b *Base) GetBaseCalendar() domain.Calendar { return b.base }

func (b *Base) SetBaseCalendar(base domain.Calendar) { b.base = base }

func (b *Base) Description() string { return b.description }

// baseIncludes reports whether the parent chain, if any, includes t.
// Concrete calendars AND this with their own check, so the chain vetoes
// by conjunction: an instant is included only if every link agrees.
func (b *Base) baseIncludes(t time.Time) bool {
	if b.base == nil {
		return true
	}
	return b.base.IsTimeIncluded(t)
}
