package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/wolfman30/woundcare-opportunities/cmd/mainconfig"
	"github.com/wolfman30/woundcare-opportunities/internal/app/bootstrap"
	appconfig "github.com/wolfman30/woundcare-opportunities/internal/config"
	"github.com/wolfman30/woundcare-opportunities/internal/events"
	"github.com/wolfman30/woundcare-opportunities/internal/observability/metrics"
	"github.com/wolfman30/woundcare-opportunities/internal/worker"
	"github.com/wolfman30/woundcare-opportunities/pkg/logging"
)

func main() {
	enqueue := flag.String("enqueue", "", "comma-separated subject ids to enqueue at startup")
	flag.Parse()

	// A missing .env is normal outside local development.
	_ = godotenv.Load()

	cfg := appconfig.Load()
	logger := logging.NewWithWriter(cfg.LogLevel, cfg.LogFormat, os.Stdout)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger, splitSubjects(*enqueue)); err != nil {
		logger.Error("opportunity worker failed", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *appconfig.Config, logger *logging.Logger, seed []string) error {
	awsCfg, err := mainconfig.LoadAWSConfig(ctx, cfg)
	if err != nil {
		return fmt.Errorf("load AWS config: %w", err)
	}

	registry := prometheus.NewRegistry()
	oppMetrics := metrics.NewOpportunityMetrics(registry)

	pool, err := bootstrap.BuildPool(ctx, cfg, logger)
	if err != nil {
		return err
	}
	if pool != nil {
		defer pool.Close()
	}

	redisClient := bootstrap.BuildRedisClient(ctx, cfg, logger, true)
	if redisClient != nil {
		defer redisClient.Close()
	}

	rt, err := bootstrap.BuildService(ctx, cfg, bootstrap.Dependencies{
		AWS:     &awsCfg,
		Pool:    pool,
		Redis:   redisClient,
		Metrics: oppMetrics,
	}, logger)
	if err != nil {
		return err
	}
	defer func() {
		if err := rt.Close(); err != nil {
			logger.Warn("failed to close runtime", "error", err)
		}
	}()

	go rt.Rules.Watch(ctx, cfg.RuleCatalogReloadInterval)

	queue, jobs, err := buildQueue(cfg, awsCfg, logger)
	if err != nil {
		return err
	}

	if len(seed) > 0 {
		publisher := worker.NewPublisher(queue, jobs, logger)
		for _, subjectID := range seed {
			job, err := publisher.Enqueue(ctx, worker.IdentifyJob{SubjectID: subjectID})
			if err != nil {
				return err
			}
			logger.Info("seed job enqueued", "job_id", job.ID, "subject_id", subjectID)
		}
	}

	if rt.Outbox != nil && cfg.OpportunityEventsQueueURL != "" {
		eventsQueue := worker.NewSQSQueue(sqs.NewFromConfig(awsCfg), cfg.OpportunityEventsQueueURL)
		deliverer := events.NewDeliverer(rt.Outbox, events.NewQueuePublisher(eventsQueue), logger)
		go deliverer.Start(ctx)
		logger.Info("outbox delivery enabled")
	}

	w := worker.NewWorker(rt.Service, queue, jobs, logger,
		worker.WithWorkerCount(cfg.WorkerCount),
		worker.WithDefaultFilters(cfg.DefaultMinConfidence, cfg.DefaultResultLimit),
	)
	w.Start(ctx)

	srv := &http.Server{
		Addr:         cfg.MetricsAddr,
		Handler:      opsRouter(registry, poolPinger(pool)),
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
	}
	go func() {
		logger.Info("ops server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("ops server error", "error", err)
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down opportunity worker...")

	doneCtx, doneCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer doneCancel()

	if err := srv.Shutdown(doneCtx); err != nil {
		logger.Error("ops server forced to shutdown", "error", err)
	}

	waitCh := make(chan struct{})
	go func() {
		w.Wait()
		close(waitCh)
	}()

	select {
	case <-waitCh:
		logger.Info("opportunity worker stopped")
	case <-doneCtx.Done():
		logger.Error("opportunity worker shutdown timed out", "error", doneCtx.Err())
	}
	return nil
}

func buildQueue(cfg *appconfig.Config, awsCfg aws.Config, logger *logging.Logger) (worker.Queue, worker.JobStore, error) {
	if cfg.UseMemoryQueue {
		logger.Warn("using in-memory job queue; jobs are lost on restart")
		return worker.NewMemoryQueue(0), worker.NoopJobStore{}, nil
	}
	if cfg.OpportunityQueueURL == "" {
		return nil, nil, errors.New("OPPORTUNITY_QUEUE_URL is required unless USE_MEMORY_QUEUE is set")
	}

	queue := worker.NewSQSQueue(sqs.NewFromConfig(awsCfg), cfg.OpportunityQueueURL)
	if cfg.OpportunityJobsTable == "" {
		return queue, worker.NoopJobStore{}, nil
	}
	return queue, worker.NewDynamoJobStore(dynamodb.NewFromConfig(awsCfg), cfg.OpportunityJobsTable, logger), nil
}

func splitSubjects(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
