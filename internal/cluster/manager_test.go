package cluster

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/coriolis-sched/coriolis/internal/clock"
	"github.com/coriolis-sched/coriolis/internal/domain"
	"github.com/coriolis-sched/coriolis/internal/listener"
	"github.com/coriolis-sched/coriolis/internal/store/memory"
	"github.com/coriolis-sched/coriolis/internal/trigger"
)

func discardLog() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// TestCluster_FailoverRecovery drives spec.md §8 scenario 6: instance A
// holds a FiredTrigger for a recovery-requesting job and goes silent; once
// instance B's manager observes A's checkin trailing by more than
// checkinInterval plus the clock-skew allowance, it must restore A's trigger to WAITING, schedule a
// one-shot recovery trigger carrying A's original fire time, and delete
// A's SchedulerState/FiredTrigger rows.
func TestCluster_FailoverRecovery(t *testing.T) {
	ctx := context.Background()
	const instanceA = "instance-a"
	store := memory.NewWithInstance(instanceA)

	jobKey := domain.NewJobKey("recoverable-job", "")
	trigKey := domain.NewTriggerKey("recoverable-trigger", "")
	job := &domain.JobDetail{Key: jobKey, JobType: "noop", RequestsRecovery: true, ConcurrentExecutionDisallowed: true}
	// repeatCount > 0 so the trigger still has a next fire time after this
	// firing and lands in EXECUTING rather than COMPLETE, matching a job
	// that's genuinely still in flight when its instance goes dark.
	trig := trigger.NewSimple(trigKey, jobKey, time.Now().Add(-time.Minute), 5, time.Hour)
	if err := store.StoreJobAndTrigger(ctx, job, trig); err != nil {
		t.Fatal(err)
	}

	acquired, err := store.AcquireNextTriggers(ctx, time.Now(), 10, time.Minute)
	if err != nil {
		t.Fatal(err)
	}
	if len(acquired) != 1 {
		t.Fatalf("expected to acquire the one due trigger, got %d", len(acquired))
	}
	if _, err := store.TriggersFired(ctx, acquired); err != nil {
		t.Fatal(err)
	}

	if err := store.Checkin(ctx, instanceA, 5*time.Second); err != nil {
		t.Fatal(err)
	}

	state, err := store.GetTriggerState(ctx, trigKey)
	if err != nil {
		t.Fatal(err)
	}
	if state != domain.TriggerStateExecuting {
		t.Fatalf("expected the acquired trigger to be EXECUTING before failover, got %s", state)
	}

	listeners := listener.NewMultiplexer(discardLog())
	fakeClock := clock.NewFixed(time.Now().Add(time.Hour))
	mgr := New(store, listeners, Config{InstanceName: "instance-b", CheckinInterval: 5 * time.Second, MaxClockSkew: time.Second}, discardLog(), WithClock(fakeClock))

	mgr.reapStaleInstances(ctx)

	states, err := store.GetSchedulerStates(ctx)
	if err != nil {
		t.Fatal(err)
	}
	for _, st := range states {
		if st.InstanceName == instanceA {
			t.Fatalf("expected instance-a's scheduler state to be deleted after failover, still present: %+v", st)
		}
	}

	state, err = store.GetTriggerState(ctx, trigKey)
	if err != nil {
		t.Fatal(err)
	}
	if state != domain.TriggerStateWaiting {
		t.Fatalf("expected the orphaned trigger to be restored to WAITING, got %s", state)
	}

	keys, err := store.GetTriggerKeys(ctx, domain.RecoveringJobsGroup)
	if err != nil {
		t.Fatal(err)
	}
	if len(keys) != 1 {
		t.Fatalf("expected exactly one recovery trigger to be scheduled, got %d", len(keys))
	}
	orig, ok := domain.ParseRecoveryTriggerName(keys[0].Name)
	if !ok || orig != trigKey {
		t.Fatalf("expected the recovery trigger to encode the original trigger key %v, got %v (ok=%v)", trigKey, orig, ok)
	}
}

func TestCluster_HealthyPeerIsNotReaped(t *testing.T) {
	ctx := context.Background()
	store := memory.New()
	if err := store.Checkin(ctx, "instance-a", 5*time.Second); err != nil {
		t.Fatal(err)
	}

	listeners := listener.NewMultiplexer(discardLog())
	fakeClock := clock.NewFixed(time.Now().Add(time.Second))
	mgr := New(store, listeners, Config{InstanceName: "instance-b", CheckinInterval: 5 * time.Second, MaxClockSkew: time.Second}, discardLog(), WithClock(fakeClock))

	mgr.reapStaleInstances(ctx)

	states, err := store.GetSchedulerStates(ctx)
	if err != nil {
		t.Fatal(err)
	}
	var found bool
	for _, st := range states {
		if st.InstanceName == "instance-a" {
			found = true
		}
	}
	if !found {
		t.Fatal("expected a recently-checked-in peer to survive a reap pass")
	}
}
