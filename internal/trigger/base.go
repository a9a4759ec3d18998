// Package trigger implements the five schedule variants that compute a
// job's fire-time stream (spec.md §4.2): Simple, Cron, CalendarInterval,
// DailyTimeInterval and CustomCalendar. Each variant embeds Base for the
// fields and accessors every domain.Trigger shares, and implements the
// schedule-specific fire-time math itself.
package trigger

import (
	"time"

	"github.com/coriolis-sched/coriolis/internal/domain"
)

// Base holds every field domain.Trigger exposes that is not specific to a
// schedule variant.
type Base struct {
	Key_    domain.TriggerKey
	JobKey_ domain.JobKey

	startTime time.Time
	endTime   *time.Time

	nextFireTime *time.Time
	prevFireTime *time.Time

	Priority_ int

	MisfireInstruction_ domain.MisfireInstruction
	CalendarName_       string
	State_              domain.TriggerState

	Description string
}

// DefaultPriority is the priority assigned when none is set explicitly.
const DefaultPriority = 5

// NewBase returns a Base ready for a concrete trigger to embed.
func NewBase(key domain.TriggerKey, jobKey domain.JobKey) Base {
	return Base{
		Key_:      key,
		JobKey_:   jobKey,
		Priority_: DefaultPriority,
		State_:    domain.TriggerStateWaiting,
	}
}

func (b *Base) Key() domain.TriggerKey { return b.Key_ }
func (b *Base) JobKey() domain.JobKey  { return b.JobKey_ }

func (b *Base) GetStartTime() time.Time    { return b.startTime }
func (b *Base) SetStartTime(t time.Time)   { b.startTime = t }
func (b *Base) GetEndTime() *time.Time     { return b.endTime }
func (b *Base) SetEndTime(t *time.Time)    { b.endTime = t }

func (b *Base) GetNextFireTime() *time.Time { return b.nextFireTime }
func (b *Base) setNextFireTime(t *time.Time) { b.nextFireTime = t }

// SetNextFireTime is exported only for store rehydration: reconstructing a
// trigger loaded from persistence must restore its already-computed
// nextFireTime verbatim rather than recompute it via ComputeFirstFireTime.
func (b *Base) SetNextFireTime(t *time.Time) { b.nextFireTime = t }

func (b *Base) GetPreviousFireTime() *time.Time  { return b.prevFireTime }
func (b *Base) SetPreviousFireTime(t *time.Time) { b.prevFireTime = t }

func (b *Base) GetPriority() int    { return b.Priority_ }
func (b *Base) SetPriority(p int)   { b.Priority_ = p }

func (b *Base) GetMisfireInstruction() domain.MisfireInstruction { return b.MisfireInstruction_ }
func (b *Base) SetMisfireInstruction(m domain.MisfireInstruction) { b.MisfireInstruction_ = m }

func (b *Base) CalendarName() string        { return b.CalendarName_ }
func (b *Base) SetCalendarName(name string) { b.CalendarName_ = name }

func (b *Base) State() domain.TriggerState     { return b.State_ }
func (b *Base) SetState(s domain.TriggerState) { b.State_ = s }

// withinValidRange reports whether t is within [startTime, endTime] (end
// unbounded if nil).
func (b *Base) withinValidRange(t time.Time) bool {
	if t.Before(b.startTime) {
		return false
	}
	if b.endTime != nil && t.After(*b.endTime) {
		return false
	}
	return true
}

// afterEndTime reports whether t is strictly past the trigger's window.
func (b *Base) afterEndTime(t time.Time) bool {
	return b.endTime != nil && t.After(*b.endTime)
}

// skipExcluded advances candidate past any instant a calendar excludes, by
// asking the schedule's own "next after" function for the one that follows.
// next must be a pure function computing the schedule's next candidate
// after a given instant, ignoring the calendar entirely.
func skipExcluded(cal domain.Calendar, candidate *time.Time, next func(after time.Time) *time.Time) *time.Time {
	for candidate != nil && cal != nil && !cal.IsTimeIncluded(*candidate) {
		candidate = next(*candidate)
	}
	return candidate
}
