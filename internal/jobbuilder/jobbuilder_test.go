package jobbuilder

import (
	"testing"
	"time"

	"github.com/coriolis-sched/coriolis/internal/domain"
	"github.com/coriolis-sched/coriolis/internal/trigger"
)

func TestJobBuilder_Build(t *testing.T) {
	job := NewJob("send-email").
		WithIdentity("welcome-email", "notifications").
		WithDescription("sends the welcome email").
		DisallowConcurrentExecution().
		UsingJobData("template", "welcome").
		Build()

	if job.Key.Name != "welcome-email" || job.Key.Group != "notifications" {
		t.Fatalf("unexpected key: %+v", job.Key)
	}
	if !job.ConcurrentExecutionDisallowed {
		t.Fatal("expected concurrent execution disallowed")
	}
	if job.JobData["template"] != "welcome" {
		t.Fatalf("unexpected job data: %+v", job.JobData)
	}
}

func TestTriggerBuilder_Simple(t *testing.T) {
	start := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	tr := NewTrigger().
		WithIdentity("every-hour", "").
		ForJob(domain.NewJobKey("job1", "")).
		StartAt(start).
		WithSchedule((&trigger.SimpleScheduleBuilder{}).WithInterval(time.Hour).RepeatForever()).
		Build()

	if tr.Key().Name != "every-hour" {
		t.Fatalf("unexpected trigger key: %+v", tr.Key())
	}
	if !tr.GetStartTime().Equal(start) {
		t.Fatalf("unexpected start time: %v", tr.GetStartTime())
	}
	simple, ok := tr.(*trigger.Simple)
	if !ok {
		t.Fatalf("expected *trigger.Simple, got %T", tr)
	}
	if simple.RepeatCount != domain.RepeatIndefinitely {
		t.Fatalf("expected RepeatIndefinitely, got %d", simple.RepeatCount)
	}
}
