package main

import (
	"context"
	"errors"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/coriolis-sched/coriolis/config"
	"github.com/coriolis-sched/coriolis/internal/health"
	ctxlog "github.com/coriolis-sched/coriolis/internal/log"
	"github.com/coriolis-sched/coriolis/internal/metrics"
	"github.com/coriolis-sched/coriolis/internal/store/postgres"
	httptransport "github.com/coriolis-sched/coriolis/internal/transport/http"
	"github.com/coriolis-sched/coriolis/internal/transport/http/handler"
	"github.com/lmittmann/tint"
	"github.com/prometheus/client_golang/prometheus"
)

// cmd/server is the admin surface: read/control access to the scheduler
// core's shared Postgres store for operators, alongside one or more
// cmd/scheduler processes. It never runs the scheduling loop itself.
func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config error: %v", err)
	}

	logger := newLogger(cfg.Env, cfg.SlogLevel())

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)

	pool, err := postgres.NewPool(ctx, cfg.DatabaseURL)
	if err != nil {
		stop()
		log.Fatalf("db: %v", err)
	}
	defer pool.Close()

	instanceName := cfg.InstanceName + "-admin"
	store, err := postgres.New(ctx, pool, cfg.InstanceName, instanceName)
	if err != nil {
		stop()
		log.Fatalf("store: %v", err)
	}

	metrics.Register()
	checker := health.NewChecker(pool, store, instanceName, logger, prometheus.DefaultRegisterer)

	adminHandler := handler.NewAdminHandler(store, logger)
	healthHandler := handler.NewHealthHandler(checker)

	srv := http.Server{
		Addr:    ":" + cfg.Port,
		Handler: httptransport.NewRouter(adminHandler, healthHandler, logger),
	}

	metricsSrv := metrics.NewServer(":" + cfg.MetricsPort)

	go func() {
		logger.Info("server started", "port", cfg.Port)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("server: %v", err)
		}
	}()

	go func() {
		logger.Info("metrics server started", "port", cfg.MetricsPort)
		if err := metricsSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("metrics server", "error", err)
		}
	}()

	<-ctx.Done()
	stop()
	logger.Info("shutting down...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown", "error", err)
	}
	if err := metricsSrv.Shutdown(shutdownCtx); err != nil {
		logger.Error("metrics server shutdown", "error", err)
	}
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
