package opportunity

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wolfman30/woundcare-opportunities/internal/rules"
)

func storedOpp(subject, ruleID string) Opportunity {
	return Opportunity{
		SubjectID: subject,
		RuleID:    ruleID,
		Category:  "wound_care",
		Type:      "infection_management",
		Priority:  8,
		Title:     "Infection",
		Actions:   []rules.Action{{Type: rules.ActionScheduleAssessment}},
		Status:    StatusIdentified,
	}
}

func TestMemoryStoreUpsertKeepsIdentity(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	first, err := store.Upsert(ctx, storedOpp("p-1", "r-1"))
	require.NoError(t, err)
	require.NotEmpty(t, first.ID)
	assert.Equal(t, 1, first.Version)

	require.NoError(t, store.WithinTx(ctx, first.ID, func(tx Tx) error {
		opp := tx.Opportunity()
		opp.Status = StatusActionTaken
		opp.ActionCount = 3
		return tx.Save(ctx, opp)
	}))

	refreshed := storedOpp("p-1", "r-1")
	refreshed.Title = "Updated title"
	second, err := store.Upsert(ctx, refreshed)
	require.NoError(t, err)

	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, StatusActionTaken, second.Status)
	assert.Equal(t, 3, second.ActionCount)
	assert.Equal(t, first.IdentifiedAt, second.IdentifiedAt)
	assert.Equal(t, "Updated title", second.Title)
	assert.Equal(t, 3, second.Version)

	all, err := store.ListBySubject(ctx, "p-1")
	require.NoError(t, err)
	assert.Len(t, all, 1)
}

func TestMemoryStoreRollsBackOnError(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	opp, err := store.Upsert(ctx, storedOpp("p-1", "r-1"))
	require.NoError(t, err)

	boom := errors.New("boom")
	err = store.WithinTx(ctx, opp.ID, func(tx Tx) error {
		changed := tx.Opportunity()
		changed.Status = StatusActionTaken
		changed.ActionCount = 1
		require.NoError(t, tx.Save(ctx, changed))
		require.NoError(t, tx.AppendAction(ctx, ActionRecord{ActionType: "schedule_assessment"}))
		require.NoError(t, tx.Emit(ctx, "x", map[string]string{}))
		return boom
	})
	require.ErrorIs(t, err, boom)

	got, err := store.Get(ctx, opp.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusIdentified, got.Status)
	assert.Zero(t, got.ActionCount)

	actions, err := store.ListActions(ctx, opp.ID)
	require.NoError(t, err)
	assert.Empty(t, actions)
	assert.Empty(t, store.Events())
}

func TestMemoryStoreSerializesTransactions(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	opp, err := store.Upsert(ctx, storedOpp("p-1", "r-1"))
	require.NoError(t, err)

	const workers = 50
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = store.WithinTx(ctx, opp.ID, func(tx Tx) error {
				o := tx.Opportunity()
				o.ActionCount++
				if err := tx.Save(ctx, o); err != nil {
					return err
				}
				return tx.AppendAction(ctx, ActionRecord{ActionType: "schedule_assessment"})
			})
		}()
	}
	wg.Wait()

	got, err := store.Get(ctx, opp.ID)
	require.NoError(t, err)
	assert.Equal(t, workers, got.ActionCount)

	actions, err := store.ListActions(ctx, opp.ID)
	require.NoError(t, err)
	assert.Len(t, actions, workers)
}

func TestMemoryStoreUnknownID(t *testing.T) {
	store := NewMemoryStore()
	_, err := store.Get(context.Background(), "nope")
	assert.ErrorIs(t, err, ErrNotFound)

	err = store.WithinTx(context.Background(), "nope", func(Tx) error { return nil })
	assert.ErrorIs(t, err, ErrNotFound)
}
