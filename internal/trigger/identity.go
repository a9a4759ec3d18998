package trigger

import (
	"time"

	"github.com/coriolis-sched/coriolis/internal/domain"
)

// Identifiable is implemented by every schedule builder in this package so
// internal/jobbuilder can stamp the shared key/jobKey/start fields onto
// whichever variant TriggerBuilder.WithSchedule was given, without either
// package needing to know the other variant's concrete type.
type Identifiable interface {
	WithTriggerIdentity(key domain.TriggerKey, jobKey domain.JobKey, start time.Time)
}

func (b *SimpleScheduleBuilder) WithTriggerIdentity(key domain.TriggerKey, jobKey domain.JobKey, start time.Time) {
	b.key, b.jobKey, b.start = key, jobKey, start
}

func (b *CronScheduleBuilder) WithTriggerIdentity(key domain.TriggerKey, jobKey domain.JobKey, start time.Time) {
	b.key, b.jobKey = key, jobKey
}

func (b *CalendarIntervalScheduleBuilder) WithTriggerIdentity(key domain.TriggerKey, jobKey domain.JobKey, start time.Time) {
	b.key, b.jobKey, b.start = key, jobKey, start
}

func (b *DailyTimeIntervalScheduleBuilder) WithTriggerIdentity(key domain.TriggerKey, jobKey domain.JobKey, start time.Time) {
	b.key, b.jobKey, b.start = key, jobKey, start
}

func (b *CustomCalendarScheduleBuilder) WithTriggerIdentity(key domain.TriggerKey, jobKey domain.JobKey, start time.Time) {
	b.key, b.jobKey, b.start = key, jobKey, start
}
