package worker

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/wolfman30/woundcare-opportunities/internal/opportunity"
	"github.com/wolfman30/woundcare-opportunities/pkg/logging"
)

var tracer = otel.Tracer("woundcare.internal.worker")

// Identifier runs the identification pipeline for one subject.
type Identifier interface {
	IdentifyOpportunities(ctx context.Context, subjectID string, opts opportunity.IdentifyOptions) opportunity.IdentifyResult
}

// Worker consumes identification jobs from the queue and runs the pipeline.
type Worker struct {
	identifier Identifier
	queue      Queue
	jobs       JobUpdater
	logger     *logging.Logger

	cfg workerConfig
	wg  sync.WaitGroup
}

type workerConfig struct {
	workers          int
	receiveWaitSecs  int
	receiveBatchSize int

	// applied when a job leaves its own filter at zero
	minConfidence float64
	resultLimit   int
}

const (
	defaultWorkerCount   = 2
	defaultWaitSeconds   = 2
	defaultBatchSize     = 5
	maxWaitSeconds       = 20
	maxReceiveBatchSize  = 10
	deleteTimeoutSeconds = 5
)

// WorkerOption customizes worker behavior.
type WorkerOption func(*workerConfig)

// WithWorkerCount sets the number of concurrent consumer goroutines.
func WithWorkerCount(count int) WorkerOption {
	return func(cfg *workerConfig) {
		if count > 0 {
			cfg.workers = count
		}
	}
}

// WithReceiveWaitSeconds sets the SQS long-poll wait duration.
func WithReceiveWaitSeconds(seconds int) WorkerOption {
	return func(cfg *workerConfig) {
		if seconds < 0 {
			return
		}
		if seconds > maxWaitSeconds {
			seconds = maxWaitSeconds
		}
		cfg.receiveWaitSecs = seconds
	}
}

// WithReceiveBatchSize sets how many messages are requested per receive.
func WithReceiveBatchSize(size int) WorkerOption {
	return func(cfg *workerConfig) {
		if size <= 0 {
			return
		}
		if size > maxReceiveBatchSize {
			size = maxReceiveBatchSize
		}
		cfg.receiveBatchSize = size
	}
}

// WithDefaultFilters sets the confidence floor and result limit used for jobs
// that do not carry their own.
func WithDefaultFilters(minConfidence float64, limit int) WorkerOption {
	return func(cfg *workerConfig) {
		if minConfidence > 0 && minConfidence <= 1 {
			cfg.minConfidence = minConfidence
		}
		if limit > 0 {
			cfg.resultLimit = limit
		}
	}
}

// NewWorker wires a worker. A nil job updater disables status tracking.
func NewWorker(identifier Identifier, queue Queue, jobs JobUpdater, logger *logging.Logger, opts ...WorkerOption) *Worker {
	if identifier == nil {
		panic("worker: identifier cannot be nil")
	}
	if queue == nil {
		panic("worker: queue cannot be nil")
	}
	if jobs == nil {
		jobs = NoopJobStore{}
	}
	if logger == nil {
		logger = logging.Default()
	}

	return &Worker{
		identifier: identifier,
		queue:      queue,
		jobs:       jobs,
		logger:     logger,
		cfg:        newWorkerConfig(opts),
	}
}

func newWorkerConfig(opts []WorkerOption) workerConfig {
	cfg := workerConfig{
		workers:          defaultWorkerCount,
		receiveWaitSecs:  defaultWaitSeconds,
		receiveBatchSize: defaultBatchSize,
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	return cfg
}

// NewBatchHandler wires a worker with no queue of its own. It serves
// HandleSQSEvent, where Lambda owns receiving and deleting. Only filter
// options have an effect.
func NewBatchHandler(identifier Identifier, jobs JobUpdater, logger *logging.Logger, opts ...WorkerOption) *Worker {
	if identifier == nil {
		panic("worker: identifier cannot be nil")
	}
	if jobs == nil {
		jobs = NoopJobStore{}
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Worker{identifier: identifier, jobs: jobs, logger: logger, cfg: newWorkerConfig(opts)}
}

func (w *Worker) identifyOptions(job IdentifyJob) opportunity.IdentifyOptions {
	opts := opportunity.IdentifyOptions{
		ForceRefresh:  job.ForceRefresh,
		Categories:    job.Categories,
		MinConfidence: job.MinConfidence,
		Limit:         job.Limit,
		ActorID:       job.RequestedBy,
	}
	if opts.MinConfidence <= 0 {
		opts.MinConfidence = w.cfg.minConfidence
	}
	if opts.Limit <= 0 {
		opts.Limit = w.cfg.resultLimit
	}
	return opts
}

// Start launches worker goroutines until ctx is cancelled.
func (w *Worker) Start(ctx context.Context) {
	if w.queue == nil {
		w.logger.Error("worker has no queue; use HandleSQSEvent instead")
		return
	}
	for i := 0; i < w.cfg.workers; i++ {
		w.wg.Add(1)
		go w.run(ctx, i+1)
	}
}

// Wait blocks until all worker goroutines exit.
func (w *Worker) Wait() {
	w.wg.Wait()
}

func (w *Worker) run(ctx context.Context, workerID int) {
	defer w.wg.Done()
	w.logger.Debug("opportunity worker started", "worker_id", workerID)

	backoff := time.Second

	for {
		select {
		case <-ctx.Done():
			w.logger.Debug("opportunity worker stopping", "worker_id", workerID)
			return
		default:
		}

		messages, err := w.queue.Receive(ctx, w.cfg.receiveBatchSize, w.cfg.receiveWaitSecs)
		if err != nil {
			if errors.Is(err, context.Canceled) || ctx.Err() != nil {
				return
			}
			w.logger.Error("failed to receive identification jobs", "error", err, "worker_id", workerID)
			select {
			case <-ctx.Done():
				return
			case <-time.After(backoff):
			}
			if backoff < 5*time.Second {
				backoff *= 2
			}
			continue
		}
		backoff = time.Second

		for _, msg := range messages {
			w.handleMessage(ctx, msg)
		}
	}
}

// errRetry marks a job whose pipeline run failed; its message stays on the
// queue so the visibility timeout redelivers it.
var errRetry = errors.New("worker: identification failed")

func (w *Worker) handleMessage(ctx context.Context, msg Message) {
	if err := w.process(ctx, msg.ID, msg.Body); errors.Is(err, errRetry) {
		return
	}
	w.deleteMessage(context.Background(), msg.ReceiptHandle)
}

// process runs one job body. It returns errRetry when the message should be
// redelivered and nil when it is finished, including undecodable bodies.
func (w *Worker) process(ctx context.Context, messageID, body string) error {
	job, err := decodeJob(body)
	if err != nil {
		w.logger.Error("failed to decode identification job", "error", err, "msg_id", messageID)
		return nil
	}
	if job.SubjectID == "" {
		w.logger.Warn("identification job missing subject id", "job_id", job.ID, "msg_id", messageID)
		w.markFailed(ctx, job, "subject id required")
		return nil
	}

	ctx, span := tracer.Start(ctx, "worker.process",
		trace.WithSpanKind(trace.SpanKindConsumer),
		trace.WithAttributes(
			attribute.String("woundcare.job_id", job.ID),
			attribute.String("woundcare.subject_id", job.SubjectID),
		),
	)
	defer span.End()

	w.logger.Info("worker processing job", "job_id", job.ID, "subject_id", job.SubjectID, "msg_id", messageID)

	result := w.identifier.IdentifyOpportunities(ctx, job.SubjectID, w.identifyOptions(job))
	if !result.Success {
		w.logger.Warn("identification job failed", "job_id", job.ID, "subject_id", job.SubjectID, "error", result.Error)
		span.SetStatus(codes.Error, result.Error)
		w.markFailed(ctx, job, result.Error)
		return errRetry
	}

	if job.TrackStatus {
		ids := make([]string, 0, len(result.Opportunities))
		for _, opp := range result.Opportunities {
			ids = append(ids, opp.ID)
		}
		err := w.jobs.MarkCompleted(ctx, job.ID, &JobResult{
			OpportunityIDs: ids,
			ContextDigest:  result.ContextDigest,
			Limited:        result.Limited,
			Cached:         result.Cached,
		})
		if err != nil {
			w.logger.Error("failed to update job status", "error", err, "job_id", job.ID)
		}
	}

	w.logger.Info("identification job completed",
		"job_id", job.ID,
		"subject_id", job.SubjectID,
		"opportunities", len(result.Opportunities),
		"cached", result.Cached,
	)
	return nil
}

func (w *Worker) markFailed(ctx context.Context, job IdentifyJob, reason string) {
	if !job.TrackStatus || job.ID == "" {
		return
	}
	if err := w.jobs.MarkFailed(ctx, job.ID, reason); err != nil {
		w.logger.Error("failed to update job status", "error", err, "job_id", job.ID)
	}
}

func (w *Worker) deleteMessage(ctx context.Context, receiptHandle string) {
	if receiptHandle == "" {
		return
	}

	deleteCtx, cancel := context.WithTimeout(ctx, deleteTimeoutSeconds*time.Second)
	defer cancel()

	if err := w.queue.Delete(deleteCtx, receiptHandle); err != nil {
		w.logger.Error("failed to delete identification job", "error", err)
	}
}
