package engine

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/coriolis-sched/coriolis/internal/domain"
	"github.com/coriolis-sched/coriolis/internal/jobfactory"
	"github.com/coriolis-sched/coriolis/internal/listener"
	"github.com/coriolis-sched/coriolis/internal/store/memory"
	"github.com/coriolis-sched/coriolis/internal/threadpool"
	"github.com/coriolis-sched/coriolis/internal/trigger"
)

func discardLog() *slog.Logger {
	return slog.New(slog.NewTextHandler(discardWriter{}, nil))
}

type discardWriter struct{}

func (discardWriter) Write(p []byte) (int, error) { return len(p), nil }

func testKey(name string) (domain.JobKey, domain.TriggerKey) {
	return domain.NewJobKey(name, ""), domain.NewTriggerKey(name, "")
}

// countingJob records how many times Execute ran and, optionally, asks to
// refire immediately a fixed number of times before succeeding.
type countingJob struct {
	runs        int32
	refiresLeft int32
}

func (j *countingJob) Execute(ctx context.Context, jec *jobfactory.ExecutionContext) error {
	atomic.AddInt32(&j.runs, 1)
	if atomic.LoadInt32(&j.refiresLeft) > 0 {
		atomic.AddInt32(&j.refiresLeft, -1)
		return &domain.JobExecutionError{RefireImmediately: true}
	}
	return nil
}

func registryWith(jobType string, job jobfactory.Job) *jobfactory.Registry {
	r := jobfactory.NewRegistry()
	r.Register(jobType, func() jobfactory.Job { return job })
	return r
}

// runOneCycle drives a single acquire/fire/dispatch pass synchronously by
// calling the store directly, bypassing SchedulerThread.Run's sleep/wait
// logic — the unit under test here is executeOne's pipeline, not the loop
// timing (covered separately by TestWaitUntilWokenByBroadcast).
func runOneCycle(t *testing.T, s *SchedulerThread, store *memory.Store) {
	t.Helper()
	ctx := context.Background()
	acquired, err := store.AcquireNextTriggers(ctx, time.Now().Add(time.Hour), 10, time.Hour)
	if err != nil {
		t.Fatalf("acquire: %v", err)
	}
	results, err := store.TriggersFired(ctx, acquired)
	if err != nil {
		t.Fatalf("triggers fired: %v", err)
	}
	var wg sync.WaitGroup
	for _, res := range results {
		if res.Bundle == nil {
			continue
		}
		bundle := res.Bundle
		wg.Add(1)
		go func() {
			defer wg.Done()
			s.executeOne(ctx, bundle)
		}()
	}
	wg.Wait()
}

func TestExecuteOne_RunsJobAndCompletesTrigger(t *testing.T) {
	store := memory.New()
	jobKey, trigKey := testKey("job1")
	job := &domain.JobDetail{Key: jobKey, JobType: "noop"}
	trig := trigger.NewSimple(trigKey, jobKey, time.Now().Add(-time.Second), 0, 0)
	if err := store.StoreJobAndTrigger(context.Background(), job, trig); err != nil {
		t.Fatal(err)
	}

	cj := &countingJob{}
	factory := registryWith("noop", cj)
	pool := threadpool.New(2)
	defer pool.Shutdown(true)
	listeners := listener.NewMultiplexer(discardLog())
	s := New(store, pool, factory, listeners, DefaultConfig("test-instance"), discardLog())

	runOneCycle(t, s, store)

	if atomic.LoadInt32(&cj.runs) != 1 {
		t.Fatalf("expected job to run once, ran %d times", cj.runs)
	}
	state, err := store.GetTriggerState(context.Background(), trigKey)
	if err != nil {
		t.Fatal(err)
	}
	if state != domain.TriggerStateComplete {
		t.Fatalf("expected trigger COMPLETE after its only fire, got %s", state)
	}
}

// vetoingListener vetoes every trigger fire and records whether the job
// itself ever ran, distinguishing a veto from a normal completion.
type vetoingListener struct{ vetoed int32 }

func (vetoingListener) Name() string                                  { return "vetoer" }
func (vetoingListener) TriggerFired(ctx *listener.JobExecutionContext) {}
func (v *vetoingListener) VetoJobExecution(ctx *listener.JobExecutionContext) bool {
	atomic.AddInt32(&v.vetoed, 1)
	return true
}
func (vetoingListener) TriggerMisfired(trig domain.Trigger)                               {}
func (vetoingListener) TriggerComplete(trig domain.Trigger, instr domain.CompletionInstruction) {}

func TestExecuteOne_VetoSkipsJobExecution(t *testing.T) {
	store := memory.New()
	jobKey, trigKey := testKey("job1")
	job := &domain.JobDetail{Key: jobKey, JobType: "noop"}
	trig := trigger.NewSimple(trigKey, jobKey, time.Now().Add(-time.Second), 0, 0)
	if err := store.StoreJobAndTrigger(context.Background(), job, trig); err != nil {
		t.Fatal(err)
	}

	cj := &countingJob{}
	factory := registryWith("noop", cj)
	pool := threadpool.New(2)
	defer pool.Shutdown(true)
	listeners := listener.NewMultiplexer(discardLog())
	veto := &vetoingListener{}
	listeners.AddTriggerListener(veto)
	s := New(store, pool, factory, listeners, DefaultConfig("test-instance"), discardLog())

	runOneCycle(t, s, store)

	if atomic.LoadInt32(&cj.runs) != 0 {
		t.Fatalf("expected vetoed job to never run, ran %d times", cj.runs)
	}
	if atomic.LoadInt32(&veto.vetoed) != 1 {
		t.Fatalf("expected veto to be consulted once, got %d", veto.vetoed)
	}
}

func TestExecuteOne_RefireImmediatelyReexecutesInPlace(t *testing.T) {
	store := memory.New()
	jobKey, trigKey := testKey("job1")
	job := &domain.JobDetail{Key: jobKey, JobType: "flaky"}
	trig := trigger.NewSimple(trigKey, jobKey, time.Now().Add(-time.Second), 0, 0)
	if err := store.StoreJobAndTrigger(context.Background(), job, trig); err != nil {
		t.Fatal(err)
	}

	cj := &countingJob{refiresLeft: 3}
	factory := registryWith("flaky", cj)
	pool := threadpool.New(2)
	defer pool.Shutdown(true)
	listeners := listener.NewMultiplexer(discardLog())
	s := New(store, pool, factory, listeners, DefaultConfig("test-instance"), discardLog())

	runOneCycle(t, s, store)

	if atomic.LoadInt32(&cj.runs) != 4 {
		t.Fatalf("expected 3 refires plus the final success, 4 total runs, got %d", cj.runs)
	}
}

func TestExecuteOne_RefireImmediatelyIsBounded(t *testing.T) {
	store := memory.New()
	jobKey, trigKey := testKey("job1")
	job := &domain.JobDetail{Key: jobKey, JobType: "alwaysRefire"}
	trig := trigger.NewSimple(trigKey, jobKey, time.Now().Add(-time.Second), 0, 0)
	if err := store.StoreJobAndTrigger(context.Background(), job, trig); err != nil {
		t.Fatal(err)
	}

	cj := &countingJob{refiresLeft: 1000}
	factory := registryWith("alwaysRefire", cj)
	pool := threadpool.New(2)
	defer pool.Shutdown(true)
	listeners := listener.NewMultiplexer(discardLog())
	s := New(store, pool, factory, listeners, DefaultConfig("test-instance"), discardLog())

	runOneCycle(t, s, store)

	// maxImmediateRefires = 10 attempts beyond the first, so 11 total runs.
	if got := atomic.LoadInt32(&cj.runs); got != 11 {
		t.Fatalf("expected the refire loop to stop after 11 runs, got %d", got)
	}
}

func TestMisfireHandler_RepairsOverdueWaitingTrigger(t *testing.T) {
	store := memory.New()
	jobKey, trigKey := testKey("job1")
	job := &domain.JobDetail{Key: jobKey, JobType: "noop"}
	start := time.Now().Add(-time.Hour)
	// 100 one-minute repeats from an hour ago still leave repeats after now,
	// so RescheduleNextWithRemainingCount has a later slot to move to.
	trig := trigger.NewSimple(trigKey, jobKey, start, 100, time.Minute)
	trig.SetMisfireInstruction(domain.MisfireSimpleRescheduleNextWithRemainingCount)
	if err := store.StoreJobAndTrigger(context.Background(), job, trig); err != nil {
		t.Fatal(err)
	}

	listeners := listener.NewMultiplexer(discardLog())
	var misfired int32
	listeners.AddTriggerListener(&countingTriggerListener{onMisfire: &misfired})

	h := NewMisfireHandler(store, listeners, time.Second, time.Minute, 20, discardLog())
	hasMore, err := h.runOnce(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if hasMore {
		t.Fatalf("expected a single overdue trigger to fit in one batch")
	}
	if atomic.LoadInt32(&misfired) != 1 {
		t.Fatalf("expected TriggerMisfired to fire once, got %d", misfired)
	}

	repaired, err := store.RetrieveTrigger(context.Background(), trigKey)
	if err != nil {
		t.Fatal(err)
	}
	next := repaired.GetNextFireTime()
	if next == nil {
		t.Fatal("expected a repaired trigger to still have a next fire time")
	}
	if next.Before(time.Now().Add(-time.Minute)) {
		t.Fatalf("expected misfire repair to move nextFireTime forward, got %v", next)
	}
}

type countingTriggerListener struct{ onMisfire *int32 }

func (countingTriggerListener) Name() string                                        { return "counter" }
func (countingTriggerListener) TriggerFired(ctx *listener.JobExecutionContext)       {}
func (countingTriggerListener) VetoJobExecution(ctx *listener.JobExecutionContext) bool { return false }
func (l *countingTriggerListener) TriggerMisfired(trig domain.Trigger) {
	atomic.AddInt32(l.onMisfire, 1)
}
func (countingTriggerListener) TriggerComplete(trig domain.Trigger, instr domain.CompletionInstruction) {
}

func TestWaitUntilWokenByBroadcast(t *testing.T) {
	store := memory.New()
	pool := threadpool.New(1)
	defer pool.Shutdown(true)
	listeners := listener.NewMultiplexer(discardLog())
	s := New(store, pool, jobfactory.NewRegistry(), listeners, DefaultConfig("test-instance"), discardLog())

	done := make(chan struct{})
	go func() {
		s.waitUntil(context.Background(), time.Now().Add(time.Hour))
		close(done)
	}()

	select {
	case <-done:
		t.Fatal("waitUntil returned before the deadline and before any notify")
	case <-time.After(50 * time.Millisecond):
	}

	s.Resume() // Resume calls broadcastLocked, which should wake the waiter.

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("waitUntil did not wake up after broadcast")
	}
}
