// Package listener implements the registration-order fan-out of
// scheduler/job/trigger lifecycle events (spec.md §4.6). Listeners are
// called synchronously, in the order they were added; a panic in one
// listener does not stop the remaining ones from being notified.
package listener

import (
	"log/slog"
	"time"

	"github.com/coriolis-sched/coriolis/internal/domain"
)

// JobListener observes a single job execution's lifecycle.
type JobListener interface {
	Name() string
	JobToBeExecuted(ctx *JobExecutionContext)
	JobExecutionVetoed(ctx *JobExecutionContext)
	JobWasExecuted(ctx *JobExecutionContext, err error)
}

// TriggerListener observes a single trigger's lifecycle.
type TriggerListener interface {
	Name() string
	TriggerFired(ctx *JobExecutionContext)
	// VetoJobExecution returning true prevents the job from running this fire.
	VetoJobExecution(ctx *JobExecutionContext) bool
	TriggerMisfired(trig domain.Trigger)
	TriggerComplete(trig domain.Trigger, instruction domain.CompletionInstruction)
}

// SchedulerListener observes scheduler-wide lifecycle events.
type SchedulerListener interface {
	Name() string
	SchedulerStarted()
	SchedulerShuttingDown()
	JobScheduled(trig domain.Trigger)
	JobUnscheduled(key domain.TriggerKey)
	SchedulerError(msg string, err error)
}

// JobExecutionContext is handed to every job/trigger listener callback and
// to the job itself; its shape mirrors domain.TriggerFiredBundle plus the
// instance identity of the firing scheduler.
type JobExecutionContext struct {
	Trigger       domain.Trigger
	Job           *domain.JobDetail
	FireTime      time.Time
	ScheduledTime time.Time
	PrevFireTime  *time.Time
	NextFireTime  *time.Time
	Recovering    bool
	// RecoveringKey is the key of the trigger whose firing is being
	// recovered; zero value unless Recovering is true.
	RecoveringKey domain.TriggerKey
	JobRunTime    time.Duration
	Result        any
}

// Multiplexer fans out to every registered listener in the order it was
// added to that category.
type Multiplexer struct {
	log              *slog.Logger
	schedulerListeners []SchedulerListener
	jobListeners       []JobListener
	triggerListeners   []TriggerListener
}

func NewMultiplexer(log *slog.Logger) *Multiplexer {
	return &Multiplexer{log: log}
}

func (m *Multiplexer) AddSchedulerListener(l SchedulerListener) { m.schedulerListeners = append(m.schedulerListeners, l) }
func (m *Multiplexer) AddJobListener(l JobListener)             { m.jobListeners = append(m.jobListeners, l) }
func (m *Multiplexer) AddTriggerListener(l TriggerListener)     { m.triggerListeners = append(m.triggerListeners, l) }

// safeCall recovers a panic anywhere inside fn, including a panicking
// Name(), so one broken listener never stops the rest of the chain.
func (m *Multiplexer) safeCall(fn func()) {
	defer func() {
		if r := recover(); r != nil {
			m.log.Error("listener panicked", "panic", r)
		}
	}()
	fn()
}

func (m *Multiplexer) SchedulerStarted() {
	for _, l := range m.schedulerListeners {
		l := l
		m.safeCall(l.SchedulerStarted)
	}
}

func (m *Multiplexer) SchedulerShuttingDown() {
	for _, l := range m.schedulerListeners {
		l := l
		m.safeCall(l.SchedulerShuttingDown)
	}
}

func (m *Multiplexer) JobScheduled(trig domain.Trigger) {
	for _, l := range m.schedulerListeners {
		l := l
		m.safeCall(func() { l.JobScheduled(trig) })
	}
}

func (m *Multiplexer) JobUnscheduled(key domain.TriggerKey) {
	for _, l := range m.schedulerListeners {
		l := l
		m.safeCall(func() { l.JobUnscheduled(key) })
	}
}

func (m *Multiplexer) SchedulerError(msg string, err error) {
	for _, l := range m.schedulerListeners {
		l := l
		m.safeCall(func() { l.SchedulerError(msg, err) })
	}
}

// TriggerFired notifies trigger listeners in order; if any vetoes
// execution, the remaining trigger listeners still get TriggerFired, but
// job listeners are told the run was vetoed instead of executed.
func (m *Multiplexer) TriggerFired(ctx *JobExecutionContext) (vetoed bool) {
	for _, l := range m.triggerListeners {
		l := l
		m.safeCall(func() { l.TriggerFired(ctx) })
	}
	for _, l := range m.triggerListeners {
		l := l
		m.safeCall(func() {
			if l.VetoJobExecution(ctx) {
				vetoed = true
			}
		})
	}
	return vetoed
}

func (m *Multiplexer) TriggerMisfired(trig domain.Trigger) {
	for _, l := range m.triggerListeners {
		l := l
		m.safeCall(func() { l.TriggerMisfired(trig) })
	}
}

func (m *Multiplexer) TriggerComplete(trig domain.Trigger, instruction domain.CompletionInstruction) {
	for _, l := range m.triggerListeners {
		l := l
		m.safeCall(func() { l.TriggerComplete(trig, instruction) })
	}
}

func (m *Multiplexer) JobToBeExecuted(ctx *JobExecutionContext) {
	for _, l := range m.jobListeners {
		l := l
		m.safeCall(func() { l.JobToBeExecuted(ctx) })
	}
}

func (m *Multiplexer) JobExecutionVetoed(ctx *JobExecutionContext) {
	for _, l := range m.jobListeners {
		l := l
		m.safeCall(func() { l.JobExecutionVetoed(ctx) })
	}
}

func (m *Multiplexer) JobWasExecuted(ctx *JobExecutionContext, err error) {
	for _, l := range m.jobListeners {
		l := l
		m.safeCall(func() { l.JobWasExecuted(ctx, err) })
	}
}
