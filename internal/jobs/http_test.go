package jobs

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/coriolis-sched/coriolis/internal/domain"
	"github.com/coriolis-sched/coriolis/internal/jobfactory"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestHTTPJob_SuccessfulResponse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	job := NewHTTPJob(discardLogger())
	jec := &jobfactory.ExecutionContext{
		JobDetail:     &domain.JobDetail{Key: domain.NewJobKey("webhook", "")},
		MergedJobData: domain.JobDataMap{"url": srv.URL, "method": http.MethodGet},
	}
	if err := job.Execute(context.Background(), jec); err != nil {
		t.Fatalf("expected success, got %v", err)
	}
}

func TestHTTPJob_ServerErrorRequestsRefire(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	job := NewHTTPJob(discardLogger())
	jec := &jobfactory.ExecutionContext{
		JobDetail:     &domain.JobDetail{Key: domain.NewJobKey("webhook", "")},
		MergedJobData: domain.JobDataMap{"url": srv.URL, "method": http.MethodGet},
	}
	err := job.Execute(context.Background(), jec)
	if err == nil {
		t.Fatal("expected an error for a 500 response")
	}
	jobErr, ok := err.(*domain.JobExecutionError)
	if !ok {
		t.Fatalf("expected *domain.JobExecutionError, got %T", err)
	}
	if !jobErr.RefireImmediately {
		t.Fatal("expected a 5xx response to request an immediate refire")
	}
}

func TestHTTPJob_MissingURLIsExecutionError(t *testing.T) {
	job := NewHTTPJob(discardLogger())
	jec := &jobfactory.ExecutionContext{
		JobDetail:     &domain.JobDetail{Key: domain.NewJobKey("webhook", "")},
		MergedJobData: domain.JobDataMap{},
	}
	if err := job.Execute(context.Background(), jec); err == nil {
		t.Fatal("expected an error when url is missing")
	}
}
