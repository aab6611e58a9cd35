package worker

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
)

// Queue is the transport identification jobs travel over.
type Queue interface {
	Send(ctx context.Context, body string) error
	Receive(ctx context.Context, maxMessages int, waitSeconds int) ([]Message, error)
	Delete(ctx context.Context, receiptHandle string) error
}

// Message is a single received queue entry.
type Message struct {
	ID            string
	Body          string
	ReceiptHandle string
}

// IdentifyJob asks the worker to run identification for one subject.
type IdentifyJob struct {
	ID            string   `json:"id"`
	SubjectID     string   `json:"subject_id"`
	ForceRefresh  bool     `json:"force_refresh,omitempty"`
	Categories    []string `json:"categories,omitempty"`
	MinConfidence float64  `json:"min_confidence,omitempty"`
	Limit         int      `json:"limit,omitempty"`
	RequestedBy   string   `json:"requested_by,omitempty"`
	TrackStatus   bool     `json:"track_status"`
}

func encodeJob(job IdentifyJob) (IdentifyJob, string, error) {
	if job.ID == "" {
		job.ID = uuid.NewString()
	}

	body, err := json.Marshal(job)
	if err != nil {
		return IdentifyJob{}, "", fmt.Errorf("worker: failed to encode job: %w", err)
	}

	return job, string(body), nil
}

func decodeJob(body string) (IdentifyJob, error) {
	var job IdentifyJob
	if err := json.Unmarshal([]byte(body), &job); err != nil {
		return IdentifyJob{}, fmt.Errorf("worker: failed to decode job: %w", err)
	}
	return job, nil
}
