package opportunity

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	pgxmock "github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wolfman30/woundcare-opportunities/internal/events"
)

const testOppID = "6f1c1f0e-5d1e-4f57-9a38-6a7d1c3e2b10"

var opportunityRowColumns = []string{
	"id", "subject_id", "rule_id", "rule_version", "category", "type", "priority",
	"confidence", "composite_score", "status", "action_count", "last_action_at",
	"identified_at", "updated_at", "version", "payload",
}

func opportunityRows(status string, actionCount int) *pgxmock.Rows {
	now := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	payload := []byte(`{"title":"Infection","actions":[{"type":"schedule_assessment","priority":"high","description":"assess"}],"evidence":["infection_risk 0.80 >= 0.70"],"cost_impact":{"expected_savings":12000,"intervention_cost":1500},"pathway":{},"source":"rule"}`)
	return pgxmock.NewRows(opportunityRowColumns).AddRow(
		testOppID, "p-1", "r-1", "2025.06.1", "wound_care", "infection_management", 10,
		0.975, 0.8, status, actionCount, (*time.Time)(nil),
		now, now, 1, payload,
	)
}

func TestPostgresStoreUpsert(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	identified := time.Date(2025, 5, 1, 0, 0, 0, 0, time.UTC)
	lastAction := time.Date(2025, 5, 20, 0, 0, 0, 0, time.UTC)
	mock.ExpectQuery("INSERT INTO opportunities").
		WithArgs(pgxmock.AnyArg(), "p-1", "r-1", "", "wound_care", "infection_management", 8,
			0.0, 0.0, "identified", pgxmock.AnyArg()).
		WillReturnRows(pgxmock.NewRows([]string{"id", "status", "action_count", "last_action_at", "identified_at", "updated_at", "version"}).
			AddRow(testOppID, "action_taken", 2, &lastAction, identified, time.Now(), 4))

	got, err := NewPostgresStore(mock).Upsert(context.Background(), storedOpp("p-1", "r-1"))
	require.NoError(t, err)

	assert.Equal(t, testOppID, got.ID)
	assert.Equal(t, StatusActionTaken, got.Status)
	assert.Equal(t, 2, got.ActionCount)
	require.NotNil(t, got.LastActionAt)
	assert.Equal(t, identified, got.IdentifiedAt)
	assert.Equal(t, 4, got.Version)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStoreGet(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()
	store := NewPostgresStore(mock)

	mock.ExpectQuery("SELECT .* FROM opportunities WHERE id").WithArgs(testOppID).WillReturnRows(opportunityRows("identified", 0))
	got, err := store.Get(context.Background(), testOppID)
	require.NoError(t, err)
	assert.Equal(t, "Infection", got.Title)
	assert.True(t, got.Offers("schedule_assessment"))
	assert.Equal(t, 12000.0, got.CostImpact.ExpectedSavings)

	mock.ExpectQuery("SELECT .* FROM opportunities WHERE id").WithArgs(testOppID).WillReturnError(pgx.ErrNoRows)
	_, err = store.Get(context.Background(), testOppID)
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = store.Get(context.Background(), "not-a-uuid")
	assert.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStoreTransactionCommits(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	now := time.Now()
	mock.ExpectBegin()
	mock.ExpectQuery("SELECT .* FOR UPDATE").WithArgs(testOppID).WillReturnRows(opportunityRows("identified", 0))
	mock.ExpectQuery("UPDATE opportunities").
		WithArgs(testOppID, "action_taken", 1, pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnRows(pgxmock.NewRows([]string{"updated_at", "version"}).AddRow(now, 2))
	mock.ExpectExec("INSERT INTO opportunity_actions").
		WithArgs(pgxmock.AnyArg(), testOppID, "schedule_assessment", pgxmock.AnyArg(), pgxmock.AnyArg(), "nurse-1", pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectExec("INSERT INTO outbox").
		WithArgs(pgxmock.AnyArg(), "p-1", events.TypeOpportunityActionTaken, pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectCommit()

	err = NewPostgresStore(mock).WithinTx(context.Background(), testOppID, func(tx Tx) error {
		opp := tx.Opportunity()
		opp.Status = StatusActionTaken
		opp.ActionCount++
		opp.LastActionAt = &now
		if err := tx.Save(context.Background(), opp); err != nil {
			return err
		}
		assert.Equal(t, 2, tx.Opportunity().Version)
		if err := tx.AppendAction(context.Background(), ActionRecord{ActionType: "schedule_assessment", ActorID: "nurse-1", CreatedAt: now}); err != nil {
			return err
		}
		return tx.Emit(context.Background(), events.TypeOpportunityActionTaken, map[string]string{"opportunity_id": testOppID})
	})
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStoreTransactionRollsBack(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT .* FOR UPDATE").WithArgs(testOppID).WillReturnRows(opportunityRows("identified", 0))
	mock.ExpectRollback()

	handlerErr := errors.New("order service unavailable")
	err = NewPostgresStore(mock).WithinTx(context.Background(), testOppID, func(tx Tx) error {
		return handlerErr
	})
	require.ErrorIs(t, err, handlerErr)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStoreTransactionNotFound(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT .* FOR UPDATE").WithArgs(testOppID).WillReturnError(pgx.ErrNoRows)
	mock.ExpectRollback()

	err = NewPostgresStore(mock).WithinTx(context.Background(), testOppID, func(tx Tx) error {
		t.Fatal("fn must not run")
		return nil
	})
	require.ErrorIs(t, err, ErrNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStoreListActions(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	created := time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC)
	mock.ExpectQuery("SELECT id, opportunity_id, action_type").WithArgs(testOppID).WillReturnRows(
		pgxmock.NewRows([]string{"id", "opportunity_id", "action_type", "input", "result", "actor_id", "created_at"}).
			AddRow("a-1", testOppID, "order_product", []byte(`{"skus":["AG-FOAM"]}`), []byte(`{"reference_id":"ORD-1"}`), "nurse-1", created),
	)

	records, err := NewPostgresStore(mock).ListActions(context.Background(), testOppID)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "ORD-1", records[0].Result["reference_id"])
	assert.Equal(t, []any{"AG-FOAM"}, records[0].Input["skus"])
	require.NoError(t, mock.ExpectationsWereMet())
}
