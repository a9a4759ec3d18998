// Package engine implements the single scheduler thread pseudo-cycle
// (spec.md §4.5) and the job execution pipeline (spec.md §4.6): acquire
// due triggers, wait until each is actually due, hand firings to a bounded
// worker pool, and run every job through the listener ordering guarantee.
package engine

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/coriolis-sched/coriolis/internal/clock"
	"github.com/coriolis-sched/coriolis/internal/jobfactory"
	"github.com/coriolis-sched/coriolis/internal/jobstore"
	"github.com/coriolis-sched/coriolis/internal/listener"
	"github.com/coriolis-sched/coriolis/internal/metrics"
	"github.com/coriolis-sched/coriolis/internal/threadpool"
)

// Config tunes the scheduling loop; every field except TriggerFireAheadTime
// maps directly onto a quartz.* configuration key.
type Config struct {
	InstanceName string

	// BatchTriggerAcquisitionMaxCount caps how many triggers one
	// acquireNextTriggers call may claim, regardless of idle pool capacity.
	BatchTriggerAcquisitionMaxCount int
	// BatchTriggerAcquisitionFireAheadTimeWindow lets acquisition reach
	// past "now" by this much, so a thin trickle of triggers can still be
	// batched together.
	BatchTriggerAcquisitionFireAheadTimeWindow time.Duration
	// TriggerFireAheadTime bounds how close to its actual fire time an
	// acquired trigger must get before triggersFired is called on it.
	TriggerFireAheadTime time.Duration
	// IdleWaitTime is the longest the loop ever sleeps with nothing to do.
	IdleWaitTime time.Duration
}

// DefaultConfig mirrors the teacher's envDefault style for numeric knobs.
func DefaultConfig(instanceName string) Config {
	return Config{
		InstanceName:                    instanceName,
		BatchTriggerAcquisitionMaxCount: 1,
		BatchTriggerAcquisitionFireAheadTimeWindow: 0,
		TriggerFireAheadTime:                       0,
		IdleWaitTime:                                30 * time.Second,
	}
}

// SchedulerThread drives one instance's acquire/fire/dispatch cycle. Exactly
// one runs per process; cluster coordination across instances happens
// entirely through the store's named row locks (spec.md §5).
type SchedulerThread struct {
	store   jobstore.Store
	pool    *threadpool.Pool
	factory jobfactory.Factory
	clock   clock.Provider
	log     *slog.Logger
	cfg     Config

	listeners *listener.Multiplexer

	mu          sync.Mutex
	paused      bool
	plannedWake time.Time
	wake        chan struct{}

	stopped chan struct{}
}

func New(store jobstore.Store, pool *threadpool.Pool, factory jobfactory.Factory, listeners *listener.Multiplexer, cfg Config, log *slog.Logger) *SchedulerThread {
	if cfg.BatchTriggerAcquisitionMaxCount < 1 {
		cfg.BatchTriggerAcquisitionMaxCount = 1
	}
	if cfg.IdleWaitTime <= 0 {
		cfg.IdleWaitTime = 30 * time.Second
	}
	return &SchedulerThread{
		store:     store,
		pool:      pool,
		factory:   factory,
		clock:     clock.System{},
		log:       log.With("component", "scheduler"),
		cfg:       cfg,
		listeners: listeners,
		wake:      make(chan struct{}),
		stopped:   make(chan struct{}),
	}
}

// Pause stops the loop from acquiring new triggers until Resume is called.
// In-flight firings already dispatched to the pool run to completion.
func (s *SchedulerThread) Pause() {
	s.mu.Lock()
	s.paused = true
	s.mu.Unlock()
}

func (s *SchedulerThread) Resume() {
	s.mu.Lock()
	s.paused = false
	s.mu.Unlock()
	s.broadcastLocked()
}

// Notify implements the "new trigger earlier than planned" preemption:
// storing a trigger whose nextFireTime precedes the loop's current planned
// wake pokes it to re-plan immediately instead of oversleeping.
func (s *SchedulerThread) Notify(nextFireTime time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.plannedWake.IsZero() || nextFireTime.Before(s.plannedWake) {
		s.broadcastLocked()
	}
}

// broadcastLocked wakes every current waiter. Caller must hold s.mu.
func (s *SchedulerThread) broadcastLocked() {
	close(s.wake)
	s.wake = make(chan struct{})
}

// Run executes the pseudo-cycle until ctx is cancelled. It never returns an
// error: failures are reported to SchedulerListener.SchedulerError and the
// loop retries after a short backoff.
func (s *SchedulerThread) Run(ctx context.Context) {
	s.listeners.SchedulerStarted()
	defer func() {
		s.listeners.SchedulerShuttingDown()
		close(s.stopped)
	}()

	for ctx.Err() == nil {
		s.mu.Lock()
		paused := s.paused
		s.mu.Unlock()
		if paused {
			s.waitUntil(ctx, s.clock.Now().Add(s.cfg.IdleWaitTime))
			continue
		}

		available := s.pool.BlockForAvailableThreads(ctx)
		if ctx.Err() != nil {
			return
		}
		batch := available
		if batch > s.cfg.BatchTriggerAcquisitionMaxCount {
			batch = s.cfg.BatchTriggerAcquisitionMaxCount
		}

		now := s.clock.Now()
		acquireStart := s.clock.Now()
		triggers, err := s.store.AcquireNextTriggers(ctx, now.Add(s.cfg.IdleWaitTime), batch, s.cfg.BatchTriggerAcquisitionFireAheadTimeWindow)
		metrics.TriggerAcquireLatency.Observe(s.clock.Now().Sub(acquireStart).Seconds())
		if err != nil {
			s.listeners.SchedulerError("acquire next triggers", err)
			s.waitUntil(ctx, s.clock.Now().Add(time.Second))
			continue
		}

		if len(triggers) == 0 {
			wake := now.Add(s.cfg.IdleWaitTime)
			s.setPlannedWake(wake)
			s.waitUntil(ctx, wake)
			continue
		}

		for _, t := range triggers {
			if fire := t.GetNextFireTime(); fire != nil {
				s.waitUntilFireAhead(ctx, *fire)
			}
		}
		if ctx.Err() != nil {
			return
		}

		results, err := s.store.TriggersFired(ctx, triggers)
		if err != nil {
			s.listeners.SchedulerError("triggers fired", err)
			continue
		}

		for _, res := range results {
			if res.Bundle == nil {
				continue
			}
			bundle := res.Bundle
			s.pool.RunInThread(func() { s.executeOne(ctx, bundle) })
		}
	}
}

// Stopped is closed once Run has returned.
func (s *SchedulerThread) Stopped() <-chan struct{} { return s.stopped }

func (s *SchedulerThread) setPlannedWake(t time.Time) {
	s.mu.Lock()
	s.plannedWake = t
	s.mu.Unlock()
}

// waitUntil blocks until until, ctx is cancelled, or Notify/Resume
// broadcasts — whichever comes first. It replaces a classic condition
// variable with a channel that is closed (and replaced) on broadcast, which
// composes with select/ctx without a dedicated waiter goroutine per call.
func (s *SchedulerThread) waitUntil(ctx context.Context, until time.Time) {
	s.mu.Lock()
	ch := s.wake
	s.mu.Unlock()

	d := time.Until(until)
	if d < 0 {
		d = 0
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
	case <-timer.C:
	case <-ch:
	}
}

// waitUntilFireAhead blocks until fireTime - now <= TriggerFireAheadTime.
func (s *SchedulerThread) waitUntilFireAhead(ctx context.Context, fireTime time.Time) {
	deadline := fireTime.Add(-s.cfg.TriggerFireAheadTime)
	if until := deadline.Sub(s.clock.Now()); until > 0 {
		s.waitUntil(ctx, deadline)
	}
}

