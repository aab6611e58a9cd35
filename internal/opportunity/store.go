package opportunity

import "context"

// Store persists opportunities and their action log.
type Store interface {
	// Upsert inserts or refreshes the opportunity keyed by (SubjectID, RuleID).
	// An existing row keeps its id, status, counters and IdentifiedAt.
	Upsert(ctx context.Context, opp Opportunity) (Opportunity, error)
	Get(ctx context.Context, id string) (Opportunity, error)
	ListBySubject(ctx context.Context, subjectID string) ([]Opportunity, error)
	ListActions(ctx context.Context, opportunityID string) ([]ActionRecord, error)
	// WithinTx locks the opportunity and runs fn. Writes made through the Tx
	// commit only when fn returns nil.
	WithinTx(ctx context.Context, id string, fn func(Tx) error) error
}

// Tx is the view of a locked opportunity inside WithinTx.
type Tx interface {
	Opportunity() Opportunity
	Save(ctx context.Context, opp Opportunity) error
	AppendAction(ctx context.Context, rec ActionRecord) error
	Emit(ctx context.Context, eventType string, payload any) error
}
