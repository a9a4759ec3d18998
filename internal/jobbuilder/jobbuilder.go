// Package jobbuilder provides the fluent DSL for constructing JobDetail and
// trigger values, mirroring Quartz's JobBuilder/TriggerBuilder pair.
package jobbuilder

import (
	"time"

	"github.com/coriolis-sched/coriolis/internal/domain"
	"github.com/coriolis-sched/coriolis/internal/trigger"
)

// JobBuilder constructs a domain.JobDetail.
type JobBuilder struct {
	detail domain.JobDetail
}

func NewJob(jobType string) *JobBuilder {
	return &JobBuilder{detail: domain.JobDetail{
		JobType: jobType,
		JobData: domain.JobDataMap{},
	}}
}

func (b *JobBuilder) WithIdentity(name, group string) *JobBuilder {
	b.detail.Key = domain.NewJobKey(name, group)
	return b
}

func (b *JobBuilder) WithDescription(d string) *JobBuilder {
	b.detail.Description = d
	return b
}

func (b *JobBuilder) StoreDurably() *JobBuilder {
	b.detail.Durable = true
	return b
}

func (b *JobBuilder) DisallowConcurrentExecution() *JobBuilder {
	b.detail.ConcurrentExecutionDisallowed = true
	return b
}

func (b *JobBuilder) PersistJobDataAfterExecution() *JobBuilder {
	b.detail.PersistJobDataAfterExecution = true
	return b
}

func (b *JobBuilder) RequestRecovery() *JobBuilder {
	b.detail.RequestsRecovery = true
	return b
}

func (b *JobBuilder) UsingJobData(key string, value any) *JobBuilder {
	b.detail.JobData[key] = value
	return b
}

func (b *JobBuilder) Build() *domain.JobDetail {
	return b.detail.Clone()
}

// TriggerBuilder is the entry point for building any concrete trigger
// variant; ForJob/WithIdentity/StartAt configure the shared fields, and
// WithSchedule accepts any of the per-variant schedule builders in this
// package's sibling trigger package.
type TriggerBuilder struct {
	key       domain.TriggerKey
	jobKey    domain.JobKey
	startTime time.Time
	endTime   *time.Time
	priority  int
	schedule  domain.ScheduleBuilder
}

func NewTrigger() *TriggerBuilder {
	return &TriggerBuilder{priority: trigger.DefaultPriority, startTime: time.Now()}
}

func (b *TriggerBuilder) WithIdentity(name, group string) *TriggerBuilder {
	b.key = domain.NewTriggerKey(name, group)
	return b
}

func (b *TriggerBuilder) ForJob(key domain.JobKey) *TriggerBuilder {
	b.jobKey = key
	return b
}

func (b *TriggerBuilder) StartAt(t time.Time) *TriggerBuilder {
	b.startTime = t
	return b
}

func (b *TriggerBuilder) StartNow() *TriggerBuilder {
	b.startTime = time.Now()
	return b
}

func (b *TriggerBuilder) EndAt(t time.Time) *TriggerBuilder {
	b.endTime = &t
	return b
}

func (b *TriggerBuilder) WithPriority(p int) *TriggerBuilder {
	b.priority = p
	return b
}

// WithSchedule accepts any of the per-variant schedule builders
// (SimpleScheduleBuilder, CronScheduleBuilder, CalendarIntervalScheduleBuilder,
// DailyTimeIntervalScheduleBuilder, CustomCalendarScheduleBuilder).
func (b *TriggerBuilder) WithSchedule(sched domain.ScheduleBuilder) *TriggerBuilder {
	b.schedule = sched
	return b
}

// Build stamps the shared key/jobKey/start fields onto the schedule builder,
// constructs the concrete trigger, then applies the shared window/priority.
func (b *TriggerBuilder) Build() domain.Trigger {
	if id, ok := b.schedule.(trigger.Identifiable); ok {
		id.WithTriggerIdentity(b.key, b.jobKey, b.startTime)
	}
	t := b.schedule.Build()
	t.SetStartTime(b.startTime)
	t.SetEndTime(b.endTime)
	t.SetPriority(b.priority)
	return t
}
