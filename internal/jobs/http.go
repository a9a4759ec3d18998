// Package jobs provides jobfactory.Job implementations that ship with the
// scheduler core. HTTPJob is registered under the "http" job type and
// fires a webhook the way the teacher's own worker did, generalized from a
// fixed job row to an arbitrary JobDataMap payload.
package jobs

import (
	"context"
	"crypto/tls"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/coriolis-sched/coriolis/internal/domain"
	"github.com/coriolis-sched/coriolis/internal/jobfactory"
	"github.com/coriolis-sched/coriolis/internal/requestid"
)

// HTTPJobType is the jobfactory.Registry key for HTTPJob.
const HTTPJobType = "http"

// HTTPJob fires a webhook described by its JobDataMap: "url" (required),
// "method" (default POST), "headers" (map[string]string), "body" (string),
// "timeout_seconds" (default 30).
type HTTPJob struct {
	client *http.Client
	logger *slog.Logger
}

// NewHTTPJob builds an HTTPJob with connection pooling tuned the way the
// teacher's executor was: generous idle-conn reuse, a conservative overall
// client timeout as a safety net behind the per-call context timeout.
func NewHTTPJob(logger *slog.Logger) *HTTPJob {
	return &HTTPJob{
		client: &http.Client{
			Timeout: 5 * time.Minute,
			Transport: &http.Transport{
				TLSClientConfig: &tls.Config{
					MinVersion: tls.VersionTLS12,
				},
				MaxIdleConns:        100,
				MaxIdleConnsPerHost: 10,
				IdleConnTimeout:     90 * time.Second,
				DialContext: (&net.Dialer{
					Timeout:   10 * time.Second,
					KeepAlive: 30 * time.Second,
				}).DialContext,
			},
			CheckRedirect: func(_ *http.Request, via []*http.Request) error {
				if len(via) >= 10 {
					return fmt.Errorf("stopped after 10 redirects")
				}
				return nil
			},
		},
		logger: logger.With("component", "http_job"),
	}
}

// RegisterHTTPJob wires HTTPJob into a jobfactory.Registry under
// HTTPJobType, sharing one HTTPJob (and its connection pool) across every
// firing.
func RegisterHTTPJob(reg *jobfactory.Registry, logger *slog.Logger) {
	job := NewHTTPJob(logger)
	reg.Register(HTTPJobType, func() jobfactory.Job { return job })
}

func (j *HTTPJob) Execute(ctx context.Context, jec *jobfactory.ExecutionContext) error {
	url, _ := jec.MergedJobData["url"].(string)
	if url == "" {
		return &domain.JobExecutionError{Err: fmt.Errorf("http job: %s: missing \"url\" in job data", jec.JobDetail.Key)}
	}
	method, _ := jec.MergedJobData["method"].(string)
	if method == "" {
		method = http.MethodPost
	}
	timeoutSeconds, _ := jec.MergedJobData["timeout_seconds"].(int)
	if timeoutSeconds <= 0 {
		timeoutSeconds = 30
	}

	reqCtx, cancel := context.WithTimeout(ctx, time.Duration(timeoutSeconds)*time.Second)
	defer cancel()

	var bodyReader io.Reader
	if body, ok := jec.MergedJobData["body"].(string); ok && body != "" {
		bodyReader = strings.NewReader(body)
	}

	req, err := http.NewRequestWithContext(reqCtx, method, url, bodyReader)
	if err != nil {
		return &domain.JobExecutionError{Err: fmt.Errorf("http job: build request: %w", err)}
	}
	if headers, ok := jec.MergedJobData["headers"].(map[string]string); ok {
		for k, v := range headers {
			req.Header.Set(k, v)
		}
	}

	reqID := requestid.New()
	req.Header.Set("X-Request-ID", reqID)
	reqCtx = requestid.WithRequestID(reqCtx, reqID)

	start := time.Now()
	j.logger.InfoContext(reqCtx, "sending request", "job", jec.JobDetail.Key.String(), "method", method, "url", url)

	resp, err := j.client.Do(req)
	if err != nil {
		j.logger.ErrorContext(reqCtx, "request failed", "job", jec.JobDetail.Key.String(), "error", err, "duration", time.Since(start))
		return &domain.JobExecutionError{Err: fmt.Errorf("http job: do request: %w", err), RefireImmediately: false}
	}
	defer func() { _ = resp.Body.Close() }()
	_, _ = io.Copy(io.Discard, resp.Body)

	duration := time.Since(start)
	j.logger.InfoContext(reqCtx, "received response", "job", jec.JobDetail.Key.String(), "status", resp.StatusCode, "duration", duration)

	if resp.StatusCode >= 500 {
		return &domain.JobExecutionError{Err: fmt.Errorf("http job: server error status %d", resp.StatusCode), RefireImmediately: true}
	}
	if resp.StatusCode >= 400 {
		return &domain.JobExecutionError{Err: fmt.Errorf("http job: client error status %d", resp.StatusCode)}
	}
	return nil
}
