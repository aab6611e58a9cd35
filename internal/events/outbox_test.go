package events

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	pgxmock "github.com/pashagolub/pgxmock/v4"

	"github.com/wolfman30/woundcare-opportunities/pkg/logging"
)

func TestOutboxStoreFlow(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("failed to create pgx mock: %v", err)
	}
	defer mock.Close()

	store := newOutboxStoreWithExec(mock)

	mock.ExpectExec("INSERT INTO outbox").WithArgs(pgxmock.AnyArg(), "p-1", TypeOpportunityActionTaken, pgxmock.AnyArg()).WillReturnResult(pgxmock.NewResult("INSERT", 1))
	if _, err := store.Insert(context.Background(), "p-1", TypeOpportunityActionTaken, map[string]string{"foo": "bar"}); err != nil {
		t.Fatalf("insert failed: %v", err)
	}

	now := time.Now().UTC()
	id := uuid.New()
	rows := pgxmock.NewRows([]string{"id", "subject_id", "type", "payload", "created_at"}).AddRow(id, "p-1", TypeOpportunityActionTaken, []byte("{\"foo\":\"bar\"}"), now)
	mock.ExpectQuery("SELECT id").WithArgs(int32(10)).WillReturnRows(rows)

	entries, err := store.FetchPending(context.Background(), 10)
	if err != nil {
		t.Fatalf("fetch pending failed: %v", err)
	}
	if len(entries) != 1 || entries[0].ID != id || entries[0].SubjectID != "p-1" {
		t.Fatalf("unexpected entries: %#v", entries)
	}

	mock.ExpectExec("UPDATE outbox").WithArgs(id).WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	ok, err := store.MarkDelivered(context.Background(), id)
	if err != nil {
		t.Fatalf("mark delivered failed: %v", err)
	}
	if !ok {
		t.Fatal("expected mark delivered to report success")
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestInsertTxJoinsTransaction(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("failed to create pgx mock: %v", err)
	}
	defer mock.Close()

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO outbox").WithArgs(pgxmock.AnyArg(), "p-1", TypeOpportunityDismissed, pgxmock.AnyArg()).WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectRollback()

	tx, err := mock.Begin(context.Background())
	if err != nil {
		t.Fatalf("begin failed: %v", err)
	}
	if _, err := InsertTx(context.Background(), tx, "p-1", TypeOpportunityDismissed, OpportunityDismissedV1{OpportunityID: "o-1"}); err != nil {
		t.Fatalf("insert failed: %v", err)
	}
	if err := tx.Rollback(context.Background()); err != nil {
		t.Fatalf("rollback failed: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestInsertRejectsUnmarshalablePayload(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("failed to create pgx mock: %v", err)
	}
	defer mock.Close()

	if _, err := newOutboxStoreWithExec(mock).Insert(context.Background(), "p-1", "x", map[string]any{"ch": make(chan int)}); err == nil {
		t.Fatal("expected marshal error")
	}
}

type memoryPending struct {
	entries   []OutboxEntry
	delivered []uuid.UUID
}

func (m *memoryPending) FetchPending(context.Context, int32) ([]OutboxEntry, error) {
	return m.entries, nil
}

func (m *memoryPending) MarkDelivered(_ context.Context, id uuid.UUID) (bool, error) {
	m.delivered = append(m.delivered, id)
	return true, nil
}

type recordingSender struct {
	bodies []string
	failOn int
}

func (r *recordingSender) Send(_ context.Context, body string) error {
	r.bodies = append(r.bodies, body)
	if r.failOn > 0 && len(r.bodies) == r.failOn {
		return errors.New("queue unavailable")
	}
	return nil
}

func TestDelivererPublishesToQueue(t *testing.T) {
	first, second := uuid.New(), uuid.New()
	store := &memoryPending{entries: []OutboxEntry{
		{ID: first, SubjectID: "p-1", Type: TypeOpportunityActionTaken, Payload: json.RawMessage(`{"action_type":"order_product"}`)},
		{ID: second, SubjectID: "p-2", Type: TypeOpportunityDismissed, Payload: json.RawMessage(`{}`)},
	}}
	sender := &recordingSender{failOn: 2}
	d := &Deliverer{store: store, handler: NewQueuePublisher(sender), logger: logging.Default(), batchSize: 10}

	d.drain(context.Background())

	if len(sender.bodies) != 2 {
		t.Fatalf("expected two publish attempts, got %d", len(sender.bodies))
	}
	if len(store.delivered) != 1 || store.delivered[0] != first {
		t.Fatalf("only the successful entry should be marked delivered: %v", store.delivered)
	}

	var env Envelope
	if err := json.Unmarshal([]byte(sender.bodies[0]), &env); err != nil {
		t.Fatalf("invalid envelope: %v", err)
	}
	if env.Type != TypeOpportunityActionTaken || env.SubjectID != "p-1" || env.ID != first.String() {
		t.Fatalf("unexpected envelope: %#v", env)
	}
}

func TestQueuePublisherRequiresSender(t *testing.T) {
	if err := NewQueuePublisher(nil).Handle(context.Background(), OutboxEntry{}); err == nil {
		t.Fatal("expected error without sender")
	}
}
