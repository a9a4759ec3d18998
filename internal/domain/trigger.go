package domain

import "time"

// Trigger is the common contract every schedule variant implements
// (Simple, Cron, CalendarInterval, DailyTimeInterval, CustomCalendar). It
// is intentionally small: schedule-specific parameters live on the
// concrete type, not on this interface.
type Trigger interface {
	Key() TriggerKey
	JobKey() JobKey

	GetStartTime() time.Time
	SetStartTime(t time.Time)
	GetEndTime() *time.Time
	SetEndTime(t *time.Time)

	GetNextFireTime() *time.Time
	GetPreviousFireTime() *time.Time
	SetPreviousFireTime(t *time.Time)

	GetPriority() int
	SetPriority(p int)

	GetMisfireInstruction() MisfireInstruction
	SetMisfireInstruction(m MisfireInstruction)

	CalendarName() string
	SetCalendarName(name string)

	State() TriggerState
	SetState(s TriggerState)

	// ComputeFirstFireTime must be called exactly once before first use.
	// It sets and returns nextFireTime.
	ComputeFirstFireTime(cal Calendar) *time.Time

	// Triggered is called on fire: advances previousFireTime <- nextFireTime
	// and computes the next nextFireTime, skipping excluded instants.
	Triggered(cal Calendar)

	// GetFireTimeAfter is pure: returns the next valid instant strictly
	// greater than after (nil means "now"), or nil if exhausted.
	GetFireTimeAfter(after *time.Time) *time.Time

	// GetFinalFireTime returns the last fire time the schedule will ever
	// produce, or nil if unbounded. Cron and DailyTimeInterval always return
	// nil, and Simple returns nil whenever its repeat count is indefinite,
	// even when an endTime bounds the schedule.
	GetFinalFireTime() *time.Time

	// UpdateAfterMisfire interprets the misfire instruction and mutates
	// nextFireTime accordingly.
	UpdateAfterMisfire(cal Calendar)

	// UpdateWithNewCalendar recomputes nextFireTime from previousFireTime,
	// skipping excluded instants.
	UpdateWithNewCalendar(cal Calendar, misfireThreshold time.Duration)

	// Validate rejects nonsensical parameterisations.
	Validate() error

	// GetScheduleBuilder returns a builder that reproduces this schedule.
	GetScheduleBuilder() ScheduleBuilder

	// MayFireAgain reports whether GetNextFireTime() could ever return
	// non-nil again.
	MayFireAgain() bool
}

// ScheduleBuilder reproduces the schedule-specific fields of a Trigger.
// Concrete builders live in internal/trigger.
type ScheduleBuilder interface {
	Build() Trigger
}

// FarFutureYear is the guard year UpdateWithNewCalendar bails out past, to
// avoid looping forever when a calendar excludes nearly everything.
const FarFutureYear = 2299
