package opportunity

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/wolfman30/woundcare-opportunities/internal/events"
	"github.com/wolfman30/woundcare-opportunities/internal/products"
	"github.com/wolfman30/woundcare-opportunities/internal/rules"
)

// PgxPool is satisfied by *pgxpool.Pool and pgxmock pools.
type PgxPool interface {
	Begin(ctx context.Context) (pgx.Tx, error)
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// PostgresStore persists opportunities in Postgres. Action transactions lock
// the opportunity row with SELECT ... FOR UPDATE.
type PostgresStore struct {
	pool PgxPool
}

func NewPostgresStore(pool PgxPool) *PostgresStore {
	if pool == nil {
		panic("opportunity: pgx pool required")
	}
	return &PostgresStore{pool: pool}
}

// opportunityPayload holds the descriptive fields stored in the payload column.
type opportunityPayload struct {
	Title           string             `json:"title"`
	Description     string             `json:"description"`
	Actions         []rules.Action     `json:"actions"`
	Evidence        []string           `json:"evidence"`
	PotentialImpact *rules.Impact      `json:"potential_impact,omitempty"`
	Recommendations []products.Product `json:"recommendations,omitempty"`
	CostImpact      CostImpact         `json:"cost_impact"`
	Pathway         Pathway            `json:"pathway"`
	Citations       []Citation         `json:"citations,omitempty"`
	RiskMitigation  []string           `json:"risk_mitigation,omitempty"`
	Source          string             `json:"source"`
}

func payloadOf(opp Opportunity) ([]byte, error) {
	data, err := json.Marshal(opportunityPayload{
		Title:           opp.Title,
		Description:     opp.Description,
		Actions:         opp.Actions,
		Evidence:        opp.Evidence,
		PotentialImpact: opp.PotentialImpact,
		Recommendations: opp.Recommendations,
		CostImpact:      opp.CostImpact,
		Pathway:         opp.Pathway,
		Citations:       opp.Citations,
		RiskMitigation:  opp.RiskMitigation,
		Source:          opp.Source,
	})
	if err != nil {
		return nil, fmt.Errorf("opportunity: marshal payload: %w", err)
	}
	return data, nil
}

const opportunityColumns = `id, subject_id, rule_id, rule_version, category, type, priority,
	confidence, composite_score, status, action_count, last_action_at,
	identified_at, updated_at, version, payload`

func scanOpportunity(row pgx.Row) (Opportunity, error) {
	var (
		opp     Opportunity
		status  string
		payload []byte
	)
	err := row.Scan(
		&opp.ID, &opp.SubjectID, &opp.RuleID, &opp.RuleVersion, &opp.Category, &opp.Type, &opp.Priority,
		&opp.Confidence, &opp.CompositeScore, &status, &opp.ActionCount, &opp.LastActionAt,
		&opp.IdentifiedAt, &opp.UpdatedAt, &opp.Version, &payload,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Opportunity{}, ErrNotFound
		}
		return Opportunity{}, fmt.Errorf("opportunity: scan: %w", err)
	}
	opp.Status = Status(status)

	var p opportunityPayload
	if len(payload) > 0 {
		if err := json.Unmarshal(payload, &p); err != nil {
			return Opportunity{}, fmt.Errorf("opportunity: decode payload: %w", err)
		}
	}
	opp.Title = p.Title
	opp.Description = p.Description
	opp.Actions = p.Actions
	opp.Evidence = p.Evidence
	opp.PotentialImpact = p.PotentialImpact
	opp.Recommendations = p.Recommendations
	opp.CostImpact = p.CostImpact
	opp.Pathway = p.Pathway
	opp.Citations = p.Citations
	opp.RiskMitigation = p.RiskMitigation
	opp.Source = p.Source
	return opp, nil
}

func (s *PostgresStore) Upsert(ctx context.Context, opp Opportunity) (Opportunity, error) {
	payload, err := payloadOf(opp)
	if err != nil {
		return Opportunity{}, err
	}
	if opp.Status == "" {
		opp.Status = StatusIdentified
	}
	query := `
		INSERT INTO opportunities (id, subject_id, rule_id, rule_version, category, type, priority,
			confidence, composite_score, status, payload)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		ON CONFLICT (subject_id, rule_id)
		DO UPDATE SET rule_version = EXCLUDED.rule_version,
			category = EXCLUDED.category,
			type = EXCLUDED.type,
			priority = EXCLUDED.priority,
			confidence = EXCLUDED.confidence,
			composite_score = EXCLUDED.composite_score,
			payload = EXCLUDED.payload,
			updated_at = now(),
			version = opportunities.version + 1
		RETURNING id, status, action_count, last_action_at, identified_at, updated_at, version
	`
	var status string
	err = s.pool.QueryRow(ctx, query,
		uuid.NewString(), opp.SubjectID, opp.RuleID, opp.RuleVersion, opp.Category, opp.Type, opp.Priority,
		opp.Confidence, opp.CompositeScore, string(opp.Status), payload,
	).Scan(&opp.ID, &status, &opp.ActionCount, &opp.LastActionAt, &opp.IdentifiedAt, &opp.UpdatedAt, &opp.Version)
	if err != nil {
		return Opportunity{}, fmt.Errorf("opportunity: upsert: %w", err)
	}
	opp.Status = Status(status)
	return opp, nil
}

func (s *PostgresStore) Get(ctx context.Context, id string) (Opportunity, error) {
	if _, err := uuid.Parse(id); err != nil {
		return Opportunity{}, ErrNotFound
	}
	row := s.pool.QueryRow(ctx, `SELECT `+opportunityColumns+` FROM opportunities WHERE id = $1`, id)
	return scanOpportunity(row)
}

func (s *PostgresStore) ListBySubject(ctx context.Context, subjectID string) ([]Opportunity, error) {
	query := `SELECT ` + opportunityColumns + `
		FROM opportunities
		WHERE subject_id = $1
		ORDER BY composite_score DESC, priority DESC, rule_id`
	rows, err := s.pool.Query(ctx, query, subjectID)
	if err != nil {
		return nil, fmt.Errorf("opportunity: list: %w", err)
	}
	defer rows.Close()

	var out []Opportunity
	for rows.Next() {
		opp, err := scanOpportunity(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, opp)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("opportunity: list: %w", err)
	}
	return out, nil
}

func (s *PostgresStore) ListActions(ctx context.Context, opportunityID string) ([]ActionRecord, error) {
	query := `
		SELECT id, opportunity_id, action_type, input, result, actor_id, created_at
		FROM opportunity_actions
		WHERE opportunity_id = $1
		ORDER BY created_at, id
	`
	rows, err := s.pool.Query(ctx, query, opportunityID)
	if err != nil {
		return nil, fmt.Errorf("opportunity: list actions: %w", err)
	}
	defer rows.Close()

	var out []ActionRecord
	for rows.Next() {
		var (
			rec           ActionRecord
			input, result []byte
		)
		if err := rows.Scan(&rec.ID, &rec.OpportunityID, &rec.ActionType, &input, &result, &rec.ActorID, &rec.CreatedAt); err != nil {
			return nil, fmt.Errorf("opportunity: scan action: %w", err)
		}
		if err := decodeMap(input, &rec.Input); err != nil {
			return nil, err
		}
		if err := decodeMap(result, &rec.Result); err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

func decodeMap(data []byte, out *map[string]any) error {
	if len(data) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("opportunity: decode action payload: %w", err)
	}
	return nil
}

func (s *PostgresStore) WithinTx(ctx context.Context, id string, fn func(Tx) error) (err error) {
	if _, perr := uuid.Parse(id); perr != nil {
		return ErrNotFound
	}
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("opportunity: begin: %w", err)
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback(ctx)
		}
	}()

	row := tx.QueryRow(ctx, `SELECT `+opportunityColumns+` FROM opportunities WHERE id = $1 FOR UPDATE`, id)
	opp, err := scanOpportunity(row)
	if err != nil {
		return err
	}

	if err := fn(&pgTx{tx: tx, opp: opp}); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("opportunity: commit: %w", err)
	}
	committed = true
	return nil
}

type pgTx struct {
	tx  pgx.Tx
	opp Opportunity
}

func (t *pgTx) Opportunity() Opportunity { return t.opp }

func (t *pgTx) Save(ctx context.Context, opp Opportunity) error {
	payload, err := payloadOf(opp)
	if err != nil {
		return err
	}
	query := `
		UPDATE opportunities
		SET status = $2, action_count = $3, last_action_at = $4, payload = $5,
			updated_at = now(), version = version + 1
		WHERE id = $1
		RETURNING updated_at, version
	`
	var (
		updatedAt time.Time
		version   int
	)
	if err := t.tx.QueryRow(ctx, query, t.opp.ID, string(opp.Status), opp.ActionCount, opp.LastActionAt, payload).Scan(&updatedAt, &version); err != nil {
		return fmt.Errorf("opportunity: save: %w", err)
	}
	opp.ID = t.opp.ID
	opp.UpdatedAt = updatedAt
	opp.Version = version
	t.opp = opp
	return nil
}

func (t *pgTx) AppendAction(ctx context.Context, rec ActionRecord) error {
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	input, err := json.Marshal(rec.Input)
	if err != nil {
		return fmt.Errorf("opportunity: marshal action input: %w", err)
	}
	result, err := json.Marshal(rec.Result)
	if err != nil {
		return fmt.Errorf("opportunity: marshal action result: %w", err)
	}
	query := `
		INSERT INTO opportunity_actions (id, opportunity_id, action_type, input, result, actor_id, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`
	if _, err := t.tx.Exec(ctx, query, rec.ID, t.opp.ID, rec.ActionType, input, result, rec.ActorID, rec.CreatedAt); err != nil {
		return fmt.Errorf("opportunity: append action: %w", err)
	}
	return nil
}

func (t *pgTx) Emit(ctx context.Context, eventType string, payload any) error {
	_, err := events.InsertTx(ctx, t.tx, t.opp.SubjectID, eventType, payload)
	return err
}
