package worker

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/wolfman30/woundcare-opportunities/pkg/logging"
)

const jobTTL = 24 * time.Hour

// JobStatus represents the lifecycle of an identification job.
type JobStatus string

const (
	JobStatusPending   JobStatus = "pending"
	JobStatusCompleted JobStatus = "completed"
	JobStatusFailed    JobStatus = "failed"
)

// ErrJobNotFound indicates the requested job ID does not exist.
var ErrJobNotFound = errors.New("worker: job not found")

type dynamoAPI interface {
	PutItem(context.Context, *dynamodb.PutItemInput, ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	UpdateItem(context.Context, *dynamodb.UpdateItemInput, ...func(*dynamodb.Options)) (*dynamodb.UpdateItemOutput, error)
	GetItem(context.Context, *dynamodb.GetItemInput, ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
}

// JobResult is the outcome persisted for a completed job.
type JobResult struct {
	OpportunityIDs []string `dynamodbav:"opportunityIds,omitempty" json:"opportunityIds,omitempty"`
	ContextDigest  string   `dynamodbav:"contextDigest,omitempty" json:"contextDigest,omitempty"`
	Limited        bool     `dynamodbav:"limited" json:"limited"`
	Cached         bool     `dynamodbav:"cached" json:"cached"`
}

// JobRecord captures the persisted state of an identification request.
type JobRecord struct {
	JobID        string     `dynamodbav:"jobId" json:"jobId"`
	Status       JobStatus  `dynamodbav:"status" json:"status"`
	SubjectID    string     `dynamodbav:"subjectId" json:"subjectId"`
	Result       *JobResult `dynamodbav:"result,omitempty" json:"result,omitempty"`
	ErrorMessage string     `dynamodbav:"errorMessage,omitempty" json:"errorMessage,omitempty"`
	CreatedAt    string     `dynamodbav:"createdAt" json:"createdAt"`
	UpdatedAt    string     `dynamodbav:"updatedAt" json:"updatedAt"`
	ExpiresAt    int64      `dynamodbav:"expiresAt,omitempty" json:"-"`
}

type JobRecorder interface {
	PutPending(ctx context.Context, job *JobRecord) error
	GetJob(ctx context.Context, jobID string) (*JobRecord, error)
}

type JobUpdater interface {
	MarkCompleted(ctx context.Context, jobID string, result *JobResult) error
	MarkFailed(ctx context.Context, jobID string, errMsg string) error
}

// JobStore records and updates jobs.
type JobStore interface {
	JobRecorder
	JobUpdater
}

// DynamoJobStore persists job records to DynamoDB with a 24h TTL.
type DynamoJobStore struct {
	client    dynamoAPI
	tableName string
	logger    *logging.Logger
	now       func() time.Time
}

var (
	_ JobStore = (*DynamoJobStore)(nil)
	_ JobStore = NoopJobStore{}
)

// NewDynamoJobStore builds a store backed by the provided DynamoDB client.
func NewDynamoJobStore(client dynamoAPI, tableName string, logger *logging.Logger) *DynamoJobStore {
	if client == nil {
		panic("worker: dynamodb client cannot be nil")
	}
	if tableName == "" {
		panic("worker: table name cannot be empty")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &DynamoJobStore{
		client:    client,
		tableName: tableName,
		logger:    logger,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// PutPending inserts a new pending job record.
func (s *DynamoJobStore) PutPending(ctx context.Context, job *JobRecord) error {
	if job == nil {
		return errors.New("worker: job cannot be nil")
	}
	now := s.now()
	job.Status = JobStatusPending
	job.CreatedAt = now.Format(time.RFC3339Nano)
	job.UpdatedAt = job.CreatedAt
	if job.ExpiresAt == 0 {
		job.ExpiresAt = now.Add(jobTTL).Unix()
	}

	item, err := attributevalue.MarshalMap(job)
	if err != nil {
		return fmt.Errorf("worker: failed to marshal job: %w", err)
	}

	_, err = s.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName:           aws.String(s.tableName),
		Item:                item,
		ConditionExpression: aws.String("attribute_not_exists(jobId)"),
	})
	if err != nil {
		return fmt.Errorf("worker: failed to persist job: %w", err)
	}
	return nil
}

// MarkCompleted records the job outcome.
func (s *DynamoJobStore) MarkCompleted(ctx context.Context, jobID string, result *JobResult) error {
	if jobID == "" {
		return errors.New("worker: jobID required")
	}
	if result == nil {
		result = &JobResult{}
	}
	resultAttr, err := attributevalue.Marshal(result)
	if err != nil {
		return fmt.Errorf("worker: failed to marshal result: %w", err)
	}

	return s.updateJob(ctx, jobID,
		map[string]types.AttributeValue{
			":status":  &types.AttributeValueMemberS{Value: string(JobStatusCompleted)},
			":result":  resultAttr,
			":error":   &types.AttributeValueMemberS{Value: ""},
			":updated": &types.AttributeValueMemberS{Value: s.now().Format(time.RFC3339Nano)},
		},
		"SET #status = :status, #result = :result, #error = :error, #updated = :updated",
	)
}

// MarkFailed updates a job to the failed state.
func (s *DynamoJobStore) MarkFailed(ctx context.Context, jobID string, errMsg string) error {
	if jobID == "" {
		return errors.New("worker: jobID required")
	}
	return s.updateJob(ctx, jobID,
		map[string]types.AttributeValue{
			":status":  &types.AttributeValueMemberS{Value: string(JobStatusFailed)},
			":result":  &types.AttributeValueMemberNULL{Value: true},
			":error":   &types.AttributeValueMemberS{Value: errMsg},
			":updated": &types.AttributeValueMemberS{Value: s.now().Format(time.RFC3339Nano)},
		},
		"SET #status = :status, #result = :result, #error = :error, #updated = :updated",
	)
}

// GetJob fetches a job by ID.
func (s *DynamoJobStore) GetJob(ctx context.Context, jobID string) (*JobRecord, error) {
	if jobID == "" {
		return nil, errors.New("worker: jobID required")
	}
	out, err := s.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: aws.String(s.tableName),
		Key: map[string]types.AttributeValue{
			"jobId": &types.AttributeValueMemberS{Value: jobID},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("worker: failed to fetch job: %w", err)
	}
	if out.Item == nil {
		return nil, ErrJobNotFound
	}

	var job JobRecord
	if err := attributevalue.UnmarshalMap(out.Item, &job); err != nil {
		return nil, fmt.Errorf("worker: failed to decode job: %w", err)
	}
	return &job, nil
}

func (s *DynamoJobStore) updateJob(ctx context.Context, jobID string, values map[string]types.AttributeValue, expr string) error {
	_, err := s.client.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName: aws.String(s.tableName),
		Key: map[string]types.AttributeValue{
			"jobId": &types.AttributeValueMemberS{Value: jobID},
		},
		UpdateExpression: aws.String(expr),
		ExpressionAttributeNames: map[string]string{
			"#status":  "status",
			"#result":  "result",
			"#error":   "errorMessage",
			"#updated": "updatedAt",
		},
		ExpressionAttributeValues: values,
	})
	if err != nil {
		s.logger.Error("failed to update job", "job_id", jobID, "error", err)
		return fmt.Errorf("worker: failed to update job: %w", err)
	}
	return nil
}

// NoopJobStore discards job status updates. Used when no table is configured.
type NoopJobStore struct{}

func (NoopJobStore) PutPending(context.Context, *JobRecord) error { return nil }

func (NoopJobStore) GetJob(context.Context, string) (*JobRecord, error) {
	return nil, ErrJobNotFound
}

func (NoopJobStore) MarkCompleted(context.Context, string, *JobResult) error { return nil }

func (NoopJobStore) MarkFailed(context.Context, string, string) error { return nil }
