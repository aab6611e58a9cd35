package worker

import (
	"context"
	"fmt"
	"strings"

	"github.com/wolfman30/woundcare-opportunities/pkg/logging"
)

// Publisher enqueues identification jobs for asynchronous processing.
type Publisher struct {
	queue  Queue
	jobs   JobRecorder
	logger *logging.Logger
}

// NewPublisher creates a queue-backed publisher. jobs may be nil, in which
// case status tracking is disabled for every enqueued job.
func NewPublisher(queue Queue, jobs JobRecorder, logger *logging.Logger) *Publisher {
	if queue == nil {
		panic("worker: queue cannot be nil")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Publisher{queue: queue, jobs: jobs, logger: logger}
}

// Enqueue publishes an identification job and returns it with its assigned ID.
func (p *Publisher) Enqueue(ctx context.Context, job IdentifyJob) (IdentifyJob, error) {
	job.SubjectID = strings.TrimSpace(job.SubjectID)
	if job.SubjectID == "" {
		return IdentifyJob{}, fmt.Errorf("worker: subject id required")
	}
	job.TrackStatus = p.jobs != nil

	job, body, err := encodeJob(job)
	if err != nil {
		return IdentifyJob{}, err
	}

	if job.TrackStatus {
		if err := p.jobs.PutPending(ctx, &JobRecord{JobID: job.ID, SubjectID: job.SubjectID}); err != nil {
			return IdentifyJob{}, err
		}
	}

	if err := p.queue.Send(ctx, body); err != nil {
		return IdentifyJob{}, fmt.Errorf("worker: failed to enqueue job: %w", err)
	}

	p.logger.Debug("identification job enqueued", "job_id", job.ID, "subject_id", job.SubjectID)
	return job, nil
}
