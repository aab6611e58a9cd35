package events

import "time"

// Event types written to the outbox.
const (
	TypeOpportunityActionTaken = "opportunity.action_taken.v1"
	TypeOpportunityDismissed   = "opportunity.dismissed.v1"
	TypeOpportunitiesIdentified = "opportunity.identified.v1"
)

type OpportunityActionTakenV1 struct {
	EventID       string         `json:"event_id"`
	OpportunityID string         `json:"opportunity_id"`
	SubjectID     string         `json:"subject_id"`
	RuleID        string         `json:"rule_id"`
	ActionID      string         `json:"action_id"`
	ActionType    string         `json:"action_type"`
	ActorID       string         `json:"actor_id,omitempty"`
	Result        map[string]any `json:"result,omitempty"`
	ActionCount   int            `json:"action_count"`
	OccurredAt    time.Time      `json:"occurred_at"`
}

type OpportunityDismissedV1 struct {
	EventID       string    `json:"event_id"`
	OpportunityID string    `json:"opportunity_id"`
	SubjectID     string    `json:"subject_id"`
	RuleID        string    `json:"rule_id"`
	Reason        string    `json:"reason,omitempty"`
	ActorID       string    `json:"actor_id,omitempty"`
	OccurredAt    time.Time `json:"occurred_at"`
}

type OpportunitiesIdentifiedV1 struct {
	EventID        string    `json:"event_id"`
	SubjectID      string    `json:"subject_id"`
	OpportunityIDs []string  `json:"opportunity_ids"`
	ContextDigest  string    `json:"context_digest"`
	Limited        bool      `json:"limited"`
	OccurredAt     time.Time `json:"occurred_at"`
}
