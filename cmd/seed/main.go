// seed inserts a handful of example jobs and triggers into the local dev
// database, covering the cron and one-shot schedule shapes.
// Run: go run ./cmd/seed
package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/coriolis-sched/coriolis/internal/domain"
	"github.com/coriolis-sched/coriolis/internal/jobbuilder"
	"github.com/coriolis-sched/coriolis/internal/jobs"
	"github.com/coriolis-sched/coriolis/internal/store/postgres"
	"github.com/coriolis-sched/coriolis/internal/trigger"
)

type jobSpec struct {
	name   string
	url    string
	method string
}

var webhookJobs = []jobSpec{
	{"seed-post-001", "https://httpbin.org/post", "POST"},
	{"seed-post-002", "https://httpbin.org/post", "POST"},
	{"seed-get-001", "https://httpbin.org/get", "GET"},
	{"seed-500-001", "https://httpbin.org/status/500", "POST"},
	{"seed-404-001", "https://httpbin.org/status/404", "GET"},
}

func main() {
	ctx := context.Background()

	dbURL := os.Getenv("DATABASE_URL")
	if dbURL == "" {
		log.Fatal("DATABASE_URL is not set — run: direnv allow")
	}

	pool, err := postgres.NewPool(ctx, dbURL)
	if err != nil {
		log.Fatalf("db connect: %v", err)
	}
	defer pool.Close()

	store, err := postgres.New(ctx, pool, "coriolis", "coriolis-seed")
	if err != nil {
		log.Fatalf("store init: %v", err)
	}

	var jobsCreated, triggersCreated int

	// Five one-shot webhook jobs, each fired once about a minute from now.
	startAt := time.Now().Add(time.Minute)
	for _, spec := range webhookJobs {
		jobKey := domain.NewJobKey(spec.name, domain.DefaultGroup)
		job := jobbuilder.NewJob(jobs.HTTPJobType).
			WithIdentity(spec.name, domain.DefaultGroup).
			WithDescription(fmt.Sprintf("%s %s", spec.method, spec.url)).
			UsingJobData("url", spec.url).
			UsingJobData("method", spec.method).
			UsingJobData("timeout_seconds", 30).
			Build()

		if err := store.StoreJob(ctx, job, true); err != nil {
			log.Fatalf("store job %s: %v", spec.name, err)
		}
		jobsCreated++

		trig := trigger.NewSimple(
			domain.NewTriggerKey(spec.name+"-trigger", domain.DefaultGroup),
			jobKey, startAt, 0, 0,
		)
		if err := store.StoreTrigger(ctx, trig, true); err != nil {
			log.Fatalf("store trigger for %s: %v", spec.name, err)
		}
		triggersCreated++
	}

	// One recurring heartbeat job, every 5 minutes via cron.
	heartbeatKey := domain.NewJobKey("heartbeat", domain.DefaultGroup)
	heartbeatJob := jobbuilder.NewJob(jobs.HTTPJobType).
		WithIdentity("heartbeat", domain.DefaultGroup).
		WithDescription("periodic GET against httpbin").
		DisallowConcurrentExecution().
		UsingJobData("url", "https://httpbin.org/get").
		UsingJobData("method", "GET").
		UsingJobData("timeout_seconds", 10).
		Build()
	if err := store.StoreJob(ctx, heartbeatJob, true); err != nil {
		log.Fatalf("store heartbeat job: %v", err)
	}
	jobsCreated++

	cronTrig, err := trigger.NewCron(
		domain.NewTriggerKey("heartbeat-trigger", domain.DefaultGroup),
		heartbeatKey, "0 */5 * * * ?", time.UTC,
	)
	if err != nil {
		log.Fatalf("build heartbeat cron trigger: %v", err)
	}
	if err := store.StoreTrigger(ctx, cronTrig, true); err != nil {
		log.Fatalf("store heartbeat trigger: %v", err)
	}
	triggersCreated++

	fmt.Println("Seed complete")
	fmt.Println()
	fmt.Printf("  Jobs created:     %d\n", jobsCreated)
	fmt.Printf("  Triggers created: %d\n", triggersCreated)
	fmt.Printf("  One-shots fire at: %s\n", startAt.Format(time.RFC3339))
	fmt.Println("  heartbeat fires every 5 minutes")
	fmt.Println()
	fmt.Println("Start cmd/scheduler to begin executing them, and cmd/server")
	fmt.Println("to inspect state via the admin HTTP surface.")
}
