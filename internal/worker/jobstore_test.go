package worker

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/wolfman30/woundcare-opportunities/pkg/logging"
)

func TestDynamoJobStore_PutPendingPersistsDefaults(t *testing.T) {
	mock := &mockDynamo{}
	store := NewDynamoJobStore(mock, "opportunity_jobs", logging.Default())

	job := &JobRecord{JobID: "job-123", SubjectID: "p-1"}
	if err := store.PutPending(context.Background(), job); err != nil {
		t.Fatalf("PutPending returned error: %v", err)
	}
	if mock.putInput == nil {
		t.Fatalf("expected PutItem to be called")
	}

	var stored JobRecord
	if err := attributevalue.UnmarshalMap(mock.putInput.Item, &stored); err != nil {
		t.Fatalf("failed to unmarshal stored job: %v", err)
	}
	if stored.Status != JobStatusPending {
		t.Fatalf("expected status pending, got %s", stored.Status)
	}
	if stored.SubjectID != "p-1" {
		t.Fatalf("expected subject id to persist, got %q", stored.SubjectID)
	}
	if stored.CreatedAt == "" || stored.UpdatedAt == "" {
		t.Fatal("expected timestamps to be populated")
	}
	if stored.ExpiresAt <= time.Now().Unix() {
		t.Fatal("expected TTL to be in the future")
	}
	if expr := mock.putInput.ConditionExpression; expr == nil || *expr != "attribute_not_exists(jobId)" {
		t.Fatalf("expected condition expression to prevent overwrites, got %v", expr)
	}
}

func TestDynamoJobStore_PutPendingNilJob(t *testing.T) {
	store := NewDynamoJobStore(&mockDynamo{}, "opportunity_jobs", logging.Default())
	if err := store.PutPending(context.Background(), nil); err == nil {
		t.Fatal("expected error when job is nil")
	}
}

func TestDynamoJobStore_MarkCompletedAliasesReservedNames(t *testing.T) {
	mock := &mockDynamo{}
	store := NewDynamoJobStore(mock, "opportunity_jobs", logging.Default())

	err := store.MarkCompleted(context.Background(), "job-123", &JobResult{OpportunityIDs: []string{"o-1"}, ContextDigest: "abc"})
	if err != nil {
		t.Fatalf("MarkCompleted returned error: %v", err)
	}
	if len(mock.updateInputs) != 1 {
		t.Fatalf("expected 1 update call, got %d", len(mock.updateInputs))
	}

	update := mock.updateInputs[0]
	names := update.ExpressionAttributeNames
	if names["#result"] != "result" || names["#error"] != "errorMessage" || names["#status"] != "status" {
		t.Fatalf("expected reserved attribute names to be aliased, got %v", names)
	}

	values := update.ExpressionAttributeValues
	if status := values[":status"].(*types.AttributeValueMemberS).Value; status != string(JobStatusCompleted) {
		t.Fatalf("expected completed status, got %s", status)
	}
	if _, ok := values[":result"].(*types.AttributeValueMemberM); !ok {
		t.Fatalf("expected marshalled result attribute, got %T", values[":result"])
	}
}

func TestDynamoJobStore_MarkFailedSetsNullResult(t *testing.T) {
	mock := &mockDynamo{}
	store := NewDynamoJobStore(mock, "opportunity_jobs", logging.Default())

	if err := store.MarkFailed(context.Background(), "job-123", "boom"); err != nil {
		t.Fatalf("MarkFailed returned error: %v", err)
	}

	update := mock.updateInputs[0]
	if _, ok := update.ExpressionAttributeValues[":result"].(*types.AttributeValueMemberNULL); !ok {
		t.Fatalf("expected result to be set to NULL, got %T", update.ExpressionAttributeValues[":result"])
	}
	if msg := update.ExpressionAttributeValues[":error"].(*types.AttributeValueMemberS).Value; msg != "boom" {
		t.Fatalf("expected error message boom, got %q", msg)
	}
}

func TestDynamoJobStore_MarkCompletedPropagatesError(t *testing.T) {
	mock := &mockDynamo{updateErr: errors.New("dynamo failed")}
	store := NewDynamoJobStore(mock, "opportunity_jobs", logging.Default())

	err := store.MarkCompleted(context.Background(), "job-1", nil)
	if err == nil || !strings.Contains(err.Error(), "dynamo failed") {
		t.Fatalf("expected dynamo error, got %v", err)
	}
}

func TestDynamoJobStore_GetJob(t *testing.T) {
	mock := &mockDynamo{
		getOutput: &dynamodb.GetItemOutput{
			Item: map[string]types.AttributeValue{
				"jobId":     &types.AttributeValueMemberS{Value: "job-42"},
				"status":    &types.AttributeValueMemberS{Value: string(JobStatusPending)},
				"subjectId": &types.AttributeValueMemberS{Value: "p-9"},
			},
		},
	}
	store := NewDynamoJobStore(mock, "opportunity_jobs", logging.Default())

	job, err := store.GetJob(context.Background(), "job-42")
	if err != nil {
		t.Fatalf("expected success, got %v", err)
	}
	if job.JobID != "job-42" || job.Status != JobStatusPending || job.SubjectID != "p-9" {
		t.Fatalf("unexpected job result: %#v", job)
	}
}

func TestDynamoJobStore_GetJobNotFound(t *testing.T) {
	store := NewDynamoJobStore(&mockDynamo{getOutput: &dynamodb.GetItemOutput{}}, "opportunity_jobs", logging.Default())

	if _, err := store.GetJob(context.Background(), "job-42"); !errors.Is(err, ErrJobNotFound) {
		t.Fatalf("expected ErrJobNotFound, got %v", err)
	}
	if _, err := store.GetJob(context.Background(), ""); err == nil {
		t.Fatal("expected error for empty jobID")
	}
}

type mockDynamo struct {
	putInput     *dynamodb.PutItemInput
	putErr       error
	updateInputs []*dynamodb.UpdateItemInput
	updateErr    error
	getOutput    *dynamodb.GetItemOutput
	getErr       error
}

func (m *mockDynamo) PutItem(ctx context.Context, input *dynamodb.PutItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error) {
	m.putInput = input
	return &dynamodb.PutItemOutput{}, m.putErr
}

func (m *mockDynamo) UpdateItem(ctx context.Context, input *dynamodb.UpdateItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.UpdateItemOutput, error) {
	m.updateInputs = append(m.updateInputs, input)
	if m.updateErr != nil {
		return nil, m.updateErr
	}
	return &dynamodb.UpdateItemOutput{}, nil
}

func (m *mockDynamo) GetItem(ctx context.Context, input *dynamodb.GetItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error) {
	if m.getErr != nil {
		return nil, m.getErr
	}
	if m.getOutput == nil {
		return &dynamodb.GetItemOutput{}, nil
	}
	return m.getOutput, nil
}
