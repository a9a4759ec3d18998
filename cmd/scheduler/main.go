package main

import (
	"context"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/coriolis-sched/coriolis/config"
	"github.com/coriolis-sched/coriolis/internal/cluster"
	"github.com/coriolis-sched/coriolis/internal/engine"
	"github.com/coriolis-sched/coriolis/internal/jobfactory"
	"github.com/coriolis-sched/coriolis/internal/jobs"
	"github.com/coriolis-sched/coriolis/internal/listener"
	ctxlog "github.com/coriolis-sched/coriolis/internal/log"
	"github.com/coriolis-sched/coriolis/internal/metrics"
	"github.com/coriolis-sched/coriolis/internal/store/postgres"
	"github.com/coriolis-sched/coriolis/internal/threadpool"
	"github.com/lmittmann/tint"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	logger := newLogger(cfg.Env, cfg.SlogLevel())

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	instanceID := cfg.InstanceID
	if instanceID == "AUTO" {
		instanceID = resolveAutoInstanceID()
	}
	instanceName := cfg.InstanceName + "-" + instanceID

	pool, err := postgres.NewPool(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("db: %v", err)
	}
	defer pool.Close()

	store, err := postgres.New(ctx, pool, cfg.InstanceName, instanceName)
	if err != nil {
		log.Fatalf("store: %v", err)
	}
	logger.Info("db connected", "instance", instanceName)

	metrics.Register()

	registry := jobfactory.NewRegistry()
	jobs.RegisterHTTPJob(registry, logger)

	listeners := listener.NewMultiplexer(logger)

	// A crashed instance's ACQUIRED/EXECUTING triggers from a previous run
	// of THIS instance name must be repaired before the scheduling loop
	// starts claiming new work, same as the teacher's reaper runs once at
	// startup before the worker loop begins.
	if err := store.RecoverSchedulerState(ctx, instanceName); err != nil {
		logger.Error("startup recovery", "error", err)
	}

	workerPool := threadpool.New(cfg.ThreadCount)
	defer workerPool.Shutdown(true)

	engineCfg := engine.Config{
		InstanceName:                               instanceName,
		BatchTriggerAcquisitionMaxCount:             cfg.BatchAcquisitionMaxCount,
		BatchTriggerAcquisitionFireAheadTimeWindow:  cfg.BatchAcquisitionFireAheadWindow(),
		IdleWaitTime:                                cfg.IdleWaitTime(),
	}
	schedThread := engine.New(store, workerPool, registry, listeners, engineCfg, logger)

	const misfireScanInterval = 10 * time.Second
	misfireHandler := engine.NewMisfireHandler(store, listeners, misfireScanInterval, cfg.MisfireThreshold(), cfg.MaxMisfiresToHandleAtATime, logger)

	go schedThread.Run(ctx)
	go misfireHandler.Run(ctx)

	if cfg.Clustered {
		clusterCfg := cluster.Config{
			InstanceName:    instanceName,
			CheckinInterval: cfg.ClusterCheckinInterval(),
			MaxClockSkew:    2 * time.Second,
		}
		clusterMgr := cluster.New(store, listeners, clusterCfg, logger)
		go clusterMgr.Run(ctx)
	}

	<-ctx.Done()
	logger.Info("scheduler shutting down")
	<-schedThread.Stopped()
	logger.Info("scheduler shut down")
}

func resolveAutoInstanceID() string {
	host, err := os.Hostname()
	if err != nil || host == "" {
		host = "unknown"
	}
	return host + "-" + time.Now().UTC().Format("150405.000")
}

func newLogger(env string, level slog.Level) *slog.Logger {
	var inner slog.Handler
	if env == "local" {
		inner = tint.NewHandler(os.Stdout, &tint.Options{
			Level:      level,
			TimeFormat: time.Kitchen,
		})
	} else {
		inner = slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
			Level: level,
		})
	}
	return slog.New(ctxlog.NewContextHandler(inner))
}
