package config

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/go-playground/validator/v10"
)

// Config maps the quartz.* configuration namespace (spec.md §6.4) onto
// environment variables, in the teacher's env+validator style.
type Config struct {
	Env  string `env:"ENV" envDefault:"local" validate:"required,oneof=local staging production"`
	Port string `env:"PORT" envDefault:"8080" validate:"required"`

	DatabaseURL string `env:"DATABASE_URL,required" validate:"required"`

	// InstanceName is quartz.scheduler.instanceName. InstanceID, when left
	// "AUTO", is resolved at startup to an identifier derived from the
	// hostname and the process start time (quartz.scheduler.instanceId).
	InstanceName string `env:"SCHEDULER_INSTANCE_NAME" envDefault:"coriolis"`
	InstanceID   string `env:"SCHEDULER_INSTANCE_ID" envDefault:"AUTO"`

	// ThreadCount is quartz.threadPool.threadCount: the worker pool size.
	ThreadCount int `env:"THREAD_POOL_THREAD_COUNT" envDefault:"10" validate:"min=1,max=1000"`

	// Clustered is quartz.jobStore.clustered: whether internal/cluster.Manager
	// runs checkin/failover at all.
	Clustered bool `env:"JOBSTORE_CLUSTERED" envDefault:"true"`
	// ClusterCheckinIntervalMillis is quartz.jobStore.clusterCheckinInterval.
	ClusterCheckinIntervalMillis int64 `env:"JOBSTORE_CLUSTER_CHECKIN_INTERVAL_MS" envDefault:"7500" validate:"min=1000"`

	// MisfireThresholdMillis is quartz.jobStore.misfireThreshold: how far
	// past its scheduled fire time a trigger may run before it is
	// considered misfired.
	MisfireThresholdMillis int64 `env:"JOBSTORE_MISFIRE_THRESHOLD_MS" envDefault:"60000" validate:"min=0"`
	// AcquireTriggersWithinLock is quartz.jobStore.acquireTriggersWithinLock.
	AcquireTriggersWithinLock bool `env:"JOBSTORE_ACQUIRE_TRIGGERS_WITHIN_LOCK" envDefault:"false"`
	// MaxMisfiresToHandleAtATime is quartz.jobStore.maxMisfiresToHandleAtATime.
	MaxMisfiresToHandleAtATime int `env:"JOBSTORE_MAX_MISFIRES_AT_A_TIME" envDefault:"20" validate:"min=1"`

	// BatchAcquisitionMaxCount is
	// quartz.scheduler.batchTriggerAcquisitionMaxCount.
	BatchAcquisitionMaxCount int `env:"SCHEDULER_BATCH_ACQUISITION_MAX_COUNT" envDefault:"1" validate:"min=1"`
	// BatchAcquisitionFireAheadWindowMillis is
	// quartz.scheduler.batchTriggerAcquisitionFireAheadTimeWindow.
	BatchAcquisitionFireAheadWindowMillis int64 `env:"SCHEDULER_BATCH_ACQUISITION_FIRE_AHEAD_MS" envDefault:"0" validate:"min=0"`
	// IdleWaitTimeMillis is quartz.scheduler.idleWaitTime.
	IdleWaitTimeMillis int64 `env:"SCHEDULER_IDLE_WAIT_TIME_MS" envDefault:"30000" validate:"min=100"`

	MetricsPort string `env:"METRICS_PORT" envDefault:"9090"`
	LogLevel    string `env:"LOG_LEVEL" envDefault:"info" validate:"required,oneof=debug info warn error"`
}

func Load() (*Config, error) {
	cfg := &Config{}

	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}

	if err := validator.New().Struct(cfg); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return cfg, nil
}

// SlogLevel converts the LOG_LEVEL string to a slog.Level.
func (c *Config) SlogLevel() slog.Level {
	switch c.LogLevel {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func (c *Config) ClusterCheckinInterval() time.Duration {
	return time.Duration(c.ClusterCheckinIntervalMillis) * time.Millisecond
}

func (c *Config) MisfireThreshold() time.Duration {
	return time.Duration(c.MisfireThresholdMillis) * time.Millisecond
}

func (c *Config) BatchAcquisitionFireAheadWindow() time.Duration {
	return time.Duration(c.BatchAcquisitionFireAheadWindowMillis) * time.Millisecond
}

func (c *Config) IdleWaitTime() time.Duration {
	return time.Duration(c.IdleWaitTimeMillis) * time.Millisecond
}
