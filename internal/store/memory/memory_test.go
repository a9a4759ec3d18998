package memory

import (
	"context"
	"testing"
	"time"

	"github.com/coriolis-sched/coriolis/internal/domain"
	"github.com/coriolis-sched/coriolis/internal/trigger"
)

func testKey(name string) (domain.JobKey, domain.TriggerKey) {
	return domain.NewJobKey(name, ""), domain.NewTriggerKey(name, "")
}

func TestAcquireFireComplete(t *testing.T) {
	ctx := context.Background()
	s := New()

	jobKey, trigKey := testKey("job1")
	job := &domain.JobDetail{Key: jobKey, JobType: "noop"}
	trig := trigger.NewSimple(trigKey, jobKey, time.Now().Add(-time.Second), 0, 0)

	if err := s.StoreJobAndTrigger(ctx, job, trig); err != nil {
		t.Fatal(err)
	}

	acquired, err := s.AcquireNextTriggers(ctx, time.Now(), 10, time.Minute)
	if err != nil {
		t.Fatal(err)
	}
	if len(acquired) != 1 {
		t.Fatalf("expected 1 acquired trigger, got %d", len(acquired))
	}

	results, err := s.TriggersFired(ctx, acquired)
	if err != nil {
		t.Fatal(err)
	}
	if len(results) != 1 || results[0].Bundle == nil {
		t.Fatalf("expected a successful fire bundle, got %+v", results)
	}

	state, _ := s.GetTriggerState(ctx, trigKey)
	if state != domain.TriggerStateComplete {
		t.Fatalf("expected trigger COMPLETE after its only fire, got %s", state)
	}

	if err := s.TriggeredJobComplete(ctx, results[0].Bundle.Trigger, results[0].Bundle.Job, domain.CompletionNoInstruction); err != nil {
		t.Fatal(err)
	}
}

func TestConcurrentDisallowedBlocksSiblings(t *testing.T) {
	ctx := context.Background()
	s := New()

	jobKey := domain.NewJobKey("exclusive", "")
	job := &domain.JobDetail{Key: jobKey, JobType: "noop", ConcurrentExecutionDisallowed: true}
	if err := s.StoreJob(ctx, job, true); err != nil {
		t.Fatal(err)
	}

	t1 := trigger.NewSimple(domain.NewTriggerKey("t1", ""), jobKey, time.Now().Add(-time.Minute), domain.RepeatIndefinitely, time.Hour)
	t2 := trigger.NewSimple(domain.NewTriggerKey("t2", ""), jobKey, time.Now().Add(-time.Minute), domain.RepeatIndefinitely, time.Hour)
	if err := s.StoreTrigger(ctx, t1, true); err != nil {
		t.Fatal(err)
	}
	if err := s.StoreTrigger(ctx, t2, true); err != nil {
		t.Fatal(err)
	}

	acquired, err := s.AcquireNextTriggers(ctx, time.Now(), 10, time.Minute)
	if err != nil {
		t.Fatal(err)
	}
	if len(acquired) != 2 {
		t.Fatalf("expected both triggers acquired (blocking happens at fire time), got %d", len(acquired))
	}

	results, err := s.TriggersFired(ctx, acquired[:1])
	if err != nil {
		t.Fatal(err)
	}
	if results[0].Bundle == nil {
		t.Fatalf("expected first trigger to fire successfully")
	}

	otherKey := t1.Key()
	if acquired[0].Key() == t1.Key() {
		otherKey = t2.Key()
	}
	state, _ := s.GetTriggerState(ctx, otherKey)
	if state != domain.TriggerStateBlocked {
		t.Fatalf("expected sibling trigger BLOCKED, got %s", state)
	}
}

func TestPauseResumeTriggerGroup(t *testing.T) {
	ctx := context.Background()
	s := New()

	jobKey, trigKey := testKey("paused")
	job := &domain.JobDetail{Key: jobKey, JobType: "noop"}
	trig := trigger.NewSimple(trigKey, jobKey, time.Now(), domain.RepeatIndefinitely, time.Hour)
	if err := s.StoreJobAndTrigger(ctx, job, trig); err != nil {
		t.Fatal(err)
	}

	if err := s.PauseTriggerGroup(ctx, domain.DefaultGroup); err != nil {
		t.Fatal(err)
	}
	state, _ := s.GetTriggerState(ctx, trigKey)
	if state != domain.TriggerStatePaused {
		t.Fatalf("expected PAUSED, got %s", state)
	}

	if err := s.ResumeTriggerGroup(ctx, domain.DefaultGroup); err != nil {
		t.Fatal(err)
	}
	state, _ = s.GetTriggerState(ctx, trigKey)
	if state != domain.TriggerStateWaiting {
		t.Fatalf("expected WAITING after resume, got %s", state)
	}
}
