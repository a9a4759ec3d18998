package engine

import (
	"context"
	"log/slog"
	"time"

	"github.com/coriolis-sched/coriolis/internal/domain"
	"github.com/coriolis-sched/coriolis/internal/jobstore"
	"github.com/coriolis-sched/coriolis/internal/listener"
	"github.com/coriolis-sched/coriolis/internal/metrics"
)

// MisfireHandler periodically scans for triggers that fell more than
// MisfireThreshold behind their nextFireTime and repairs them via
// Trigger.UpdateAfterMisfire (spec.md §4.3), matching the teacher's
// one-ticker-per-concern style (Dispatcher/Reaper each own a time.Ticker).
type MisfireHandler struct {
	store            jobstore.Store
	listeners        *listener.Multiplexer
	log              *slog.Logger
	interval         time.Duration
	misfireThreshold time.Duration
	maxBatchSize     int
}

func NewMisfireHandler(store jobstore.Store, listeners *listener.Multiplexer, interval, misfireThreshold time.Duration, maxBatchSize int, log *slog.Logger) *MisfireHandler {
	if maxBatchSize < 1 {
		maxBatchSize = 20
	}
	return &MisfireHandler{
		store:            store,
		listeners:        listeners,
		log:              log.With("component", "misfire_handler"),
		interval:         interval,
		misfireThreshold: misfireThreshold,
		maxBatchSize:     maxBatchSize,
	}
}

func (h *MisfireHandler) Run(ctx context.Context) {
	ticker := time.NewTicker(h.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			h.runUntilDry(ctx)
		}
	}
}

// runUntilDry processes misfire batches back-to-back while the store
// reports more remain, so a backlog drains within one tick instead of
// waiting one full interval per batch.
func (h *MisfireHandler) runUntilDry(ctx context.Context) {
	for {
		hasMore, err := h.runOnce(ctx)
		if err != nil {
			h.listeners.SchedulerError("misfire scan", err)
			return
		}
		if !hasMore || ctx.Err() != nil {
			return
		}
	}
}

func (h *MisfireHandler) runOnce(ctx context.Context) (bool, error) {
	triggers, hasMore, err := h.store.FindMisfiredTriggers(ctx, h.misfireThreshold, h.maxBatchSize)
	if err != nil {
		return false, err
	}
	for _, trig := range triggers {
		var cal domain.Calendar
		if name := trig.CalendarName(); name != "" {
			var calErr error
			cal, calErr = h.store.RetrieveCalendar(ctx, name)
			if calErr != nil && calErr != domain.ErrCalendarNotFound {
				h.listeners.SchedulerError("load calendar for misfire repair", calErr)
				continue
			}
		}
		trig.UpdateAfterMisfire(cal)
		if _, err := h.store.ReplaceTrigger(ctx, trig.Key(), trig); err != nil {
			h.listeners.SchedulerError("persist misfire repair", err)
			continue
		}
		h.listeners.TriggerMisfired(trig)
		metrics.MisfiresHandledTotal.Inc()
	}
	if len(triggers) > 0 {
		h.log.Info("handled misfired triggers", "count", len(triggers), "has_more", hasMore)
	}
	return hasMore, nil
}
