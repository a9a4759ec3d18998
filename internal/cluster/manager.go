// Package cluster implements the cross-instance failover half of cluster
// coordination (spec.md §4.3 "Cluster recovery", §8 scenario 6): each
// instance periodically checks in and scans for peers that stopped, then
// claims a dead peer's in-flight work. It knows nothing about trigger
// acquisition or job execution — that is internal/engine's concern.
package cluster

import (
	"context"
	"log/slog"
	"time"

	"github.com/coriolis-sched/coriolis/internal/clock"
	"github.com/coriolis-sched/coriolis/internal/jobstore"
	"github.com/coriolis-sched/coriolis/internal/listener"
	"github.com/coriolis-sched/coriolis/internal/metrics"
)

// Config tunes how aggressively the manager checks in and reaps peers.
type Config struct {
	InstanceName string
	// CheckinInterval is how often this instance refreshes its own
	// SchedulerState row and scans for stale peers.
	CheckinInterval time.Duration
	// MaxClockSkew pads the checkinInterval staleness threshold to
	// absorb drift between instances' clocks.
	MaxClockSkew time.Duration
}

// DefaultConfig mirrors the teacher's envDefault style for numeric knobs.
func DefaultConfig(instanceName string) Config {
	return Config{
		InstanceName:    instanceName,
		CheckinInterval: 7500 * time.Millisecond,
		MaxClockSkew:    2 * time.Second,
	}
}

// Manager runs one goroutine per scheduler process: it heartbeats this
// instance's SchedulerState row and, on the same tick, claims any peer
// whose checkin has gone silent for more than its checkin interval plus
// MaxClockSkew.
type Manager struct {
	store     jobstore.Store
	listeners *listener.Multiplexer
	clock     clock.Provider
	log       *slog.Logger
	cfg       Config
}

// Option configures a Manager at construction.
type Option func(*Manager)

// WithClock overrides the wall clock used to evaluate peer staleness; only
// tests need this.
func WithClock(c clock.Provider) Option {
	return func(m *Manager) { m.clock = c }
}

func New(store jobstore.Store, listeners *listener.Multiplexer, cfg Config, log *slog.Logger, opts ...Option) *Manager {
	if cfg.CheckinInterval <= 0 {
		cfg.CheckinInterval = 7500 * time.Millisecond
	}
	m := &Manager{
		store:     store,
		listeners: listeners,
		clock:     clock.System{},
		log:       log.With("component", "cluster_manager"),
		cfg:       cfg,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Run checks in and reaps stale peers every CheckinInterval until ctx is
// cancelled. It never returns an error: failures are reported via
// SchedulerListener.SchedulerError and retried on the next tick.
func (m *Manager) Run(ctx context.Context) {
	ticker := time.NewTicker(m.cfg.CheckinInterval)
	defer ticker.Stop()

	m.tick(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.tick(ctx)
		}
	}
}

func (m *Manager) tick(ctx context.Context) {
	if err := m.store.Checkin(ctx, m.cfg.InstanceName, m.cfg.CheckinInterval); err != nil {
		m.listeners.SchedulerError("cluster checkin", err)
	}
	m.reapStaleInstances(ctx)
}

// reapStaleInstances claims every peer whose last checkin trails now by
// more than its own declared checkin interval plus MaxClockSkew.
func (m *Manager) reapStaleInstances(ctx context.Context) {
	states, err := m.store.GetSchedulerStates(ctx)
	if err != nil {
		m.listeners.SchedulerError("list scheduler states", err)
		return
	}

	now := m.clock.Now()
	for _, st := range states {
		metrics.ClusterCheckinAge.WithLabelValues(st.InstanceName).Set(now.Sub(st.LastCheckinTime).Seconds())
		if st.InstanceName == m.cfg.InstanceName {
			continue
		}
		interval := st.CheckinInterval
		if interval <= 0 {
			interval = m.cfg.CheckinInterval
		}
		threshold := interval + m.cfg.MaxClockSkew
		if now.Sub(st.LastCheckinTime) <= threshold {
			continue
		}

		if err := m.store.RecoverSchedulerState(ctx, st.InstanceName); err != nil {
			m.listeners.SchedulerError("recover stale instance", err)
			continue
		}
		if err := m.store.DeleteSchedulerState(ctx, st.InstanceName); err != nil {
			m.listeners.SchedulerError("delete stale scheduler state", err)
			continue
		}
		metrics.ClusterInstancesReapedTotal.Inc()
		m.log.Warn("claimed stale instance", "instance", st.InstanceName, "silent_for", now.Sub(st.LastCheckinTime))
	}
}
