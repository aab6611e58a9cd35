package main

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/prometheus/client_golang/prometheus"

	appconfig "github.com/wolfman30/woundcare-opportunities/internal/config"
	"github.com/wolfman30/woundcare-opportunities/internal/observability/metrics"
	"github.com/wolfman30/woundcare-opportunities/internal/worker"
	"github.com/wolfman30/woundcare-opportunities/pkg/logging"
)

func TestOpsRouterExposesMetrics(t *testing.T) {
	registry := prometheus.NewRegistry()
	m := metrics.NewOpportunityMetrics(registry)
	m.ObservePipelineRun("success")

	handler := opsRouter(registry, nil)

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rr.Code)
	}
	if !strings.Contains(rr.Body.String(), "pipeline_runs_total") {
		t.Fatalf("expected pipeline counter to be exported, got %s", rr.Body.String())
	}
}

func TestOpsRouterHealth(t *testing.T) {
	registry := prometheus.NewRegistry()

	rr := httptest.NewRecorder()
	opsRouter(registry, nil).ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}

	failing := func(context.Context) error { return errors.New("down") }
	rr = httptest.NewRecorder()
	opsRouter(registry, failing).ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if rr.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", rr.Code)
	}
}

func TestBuildQueue(t *testing.T) {
	logger := logging.NewWithWriter("error", "text", io.Discard)

	queue, jobs, err := buildQueue(&appconfig.Config{UseMemoryQueue: true}, aws.Config{}, logger)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, ok := queue.(*worker.MemoryQueue); !ok {
		t.Fatalf("expected MemoryQueue, got %T", queue)
	}
	if _, ok := jobs.(worker.NoopJobStore); !ok {
		t.Fatalf("expected NoopJobStore, got %T", jobs)
	}

	if _, _, err := buildQueue(&appconfig.Config{}, aws.Config{}, logger); err == nil {
		t.Fatal("expected error without a queue URL")
	}

	cfg := &appconfig.Config{
		OpportunityQueueURL:  "http://localhost:4566/000000000000/opportunity-jobs",
		OpportunityJobsTable: "opportunity_jobs",
	}
	queue, jobs, err = buildQueue(cfg, aws.Config{Region: "us-east-1"}, logger)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, ok := queue.(*worker.SQSQueue); !ok {
		t.Fatalf("expected SQSQueue, got %T", queue)
	}
	if _, ok := jobs.(*worker.DynamoJobStore); !ok {
		t.Fatalf("expected DynamoJobStore, got %T", jobs)
	}
}

func TestSplitSubjects(t *testing.T) {
	got := splitSubjects(" p-1, ,p-2,")
	if len(got) != 2 || got[0] != "p-1" || got[1] != "p-2" {
		t.Fatalf("unexpected subjects: %v", got)
	}
	if splitSubjects("") != nil {
		t.Fatal("expected nil for empty input")
	}
}
