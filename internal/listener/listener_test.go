package listener

import (
	"log/slog"
	"testing"

	"github.com/coriolis-sched/coriolis/internal/domain"
)

type recordingSchedulerListener struct {
	name   string
	events *[]string
}

func (l *recordingSchedulerListener) Name() string { return l.name }
func (l *recordingSchedulerListener) SchedulerStarted() {
	*l.events = append(*l.events, l.name+":started")
}
func (l *recordingSchedulerListener) SchedulerShuttingDown() {}
func (l *recordingSchedulerListener) JobScheduled(trig domain.Trigger)    {}
func (l *recordingSchedulerListener) JobUnscheduled(key domain.TriggerKey) {}
func (l *recordingSchedulerListener) SchedulerError(msg string, err error) {}

func TestMultiplexer_FansOutInRegistrationOrder(t *testing.T) {
	var events []string
	m := NewMultiplexer(slog.Default())
	m.AddSchedulerListener(&recordingSchedulerListener{name: "first", events: &events})
	m.AddSchedulerListener(&recordingSchedulerListener{name: "second", events: &events})

	m.SchedulerStarted()

	if len(events) != 2 || events[0] != "first:started" || events[1] != "second:started" {
		t.Fatalf("unexpected event order: %v", events)
	}
}

type panickingSchedulerListener struct{}

func (panickingSchedulerListener) Name() string             { panic("boom") }
func (panickingSchedulerListener) SchedulerStarted()         { panic("boom") }
func (panickingSchedulerListener) SchedulerShuttingDown()    {}
func (panickingSchedulerListener) JobScheduled(domain.Trigger)   {}
func (panickingSchedulerListener) JobUnscheduled(domain.TriggerKey) {}
func (panickingSchedulerListener) SchedulerError(string, error) {}

func TestMultiplexer_SurvivesAPanickingListener(t *testing.T) {
	var events []string
	m := NewMultiplexer(slog.Default())
	m.AddSchedulerListener(&recordingSchedulerListener{name: "before", events: &events})
	m.AddSchedulerListener(panickingSchedulerListener{})
	m.AddSchedulerListener(&recordingSchedulerListener{name: "after", events: &events})

	m.SchedulerStarted()
	if len(events) != 2 || events[0] != "before:started" || events[1] != "after:started" {
		t.Fatalf("expected both non-panicking listeners to run despite the panic, got %v", events)
	}
}
