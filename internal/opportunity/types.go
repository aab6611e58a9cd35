package opportunity

import (
	"errors"
	"time"

	"github.com/wolfman30/woundcare-opportunities/internal/products"
	"github.com/wolfman30/woundcare-opportunities/internal/rules"
)

var (
	ErrNotFound       = errors.New("opportunity: not found")
	ErrInvalidAction  = errors.New("opportunity: invalid action")
	ErrTerminalStatus = errors.New("opportunity: status is terminal")
)

// Status is the lifecycle state of an opportunity.
type Status string

const (
	StatusIdentified  Status = "identified"
	StatusActionTaken Status = "action_taken"
	StatusCompleted   Status = "completed"
	StatusDismissed   Status = "dismissed"
)

// Terminal reports whether no further actions are accepted.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusDismissed
}

// ActionDismiss is the record type written when an opportunity is dismissed.
const ActionDismiss = "dismiss"

// SourceEnhancement marks candidates contributed by the enhancement step.
const SourceEnhancement = "enhancement"

type CostImpact struct {
	ExpectedSavings  float64 `json:"expected_savings"`
	InterventionCost float64 `json:"intervention_cost"`
	ROIWindow        string  `json:"roi_window,omitempty"`
}

type Pathway struct {
	ID    string   `json:"id,omitempty"`
	Name  string   `json:"name,omitempty"`
	Steps []string `json:"steps,omitempty"`
}

type Citation struct {
	Title string `json:"title"`
	URL   string `json:"url"`
}

// Opportunity is a triggered rule enriched, scored and persisted for a subject.
// At most one exists per (SubjectID, RuleID).
type Opportunity struct {
	ID              string             `json:"id"`
	SubjectID       string             `json:"subject_id"`
	RuleID          string             `json:"rule_id"`
	RuleVersion     string             `json:"rule_version"`
	Category        string             `json:"category"`
	Type            string             `json:"type"`
	Priority        int                `json:"priority"`
	Title           string             `json:"title"`
	Description     string             `json:"description"`
	Actions         []rules.Action     `json:"actions"`
	Confidence      float64            `json:"confidence"`
	Evidence        []string           `json:"evidence"`
	PotentialImpact *rules.Impact      `json:"potential_impact,omitempty"`
	Recommendations []products.Product `json:"recommendations,omitempty"`
	CostImpact      CostImpact         `json:"cost_impact"`
	Pathway         Pathway            `json:"pathway"`
	Citations       []Citation         `json:"citations,omitempty"`
	RiskMitigation  []string           `json:"risk_mitigation,omitempty"`
	CompositeScore  float64            `json:"composite_score"`
	Source          string             `json:"source"`
	Status          Status             `json:"status"`
	ActionCount     int                `json:"action_count"`
	LastActionAt    *time.Time         `json:"last_action_at,omitempty"`
	IdentifiedAt    time.Time          `json:"identified_at"`
	UpdatedAt       time.Time          `json:"updated_at"`
	Version         int                `json:"version"`
}

// Offers reports whether actionType is one of the opportunity's recorded actions.
func (o Opportunity) Offers(actionType string) bool {
	for _, a := range o.Actions {
		if string(a.Type) == actionType {
			return true
		}
	}
	return false
}

// ValidActions lists the recorded action types in order.
func (o Opportunity) ValidActions() []string {
	out := make([]string, 0, len(o.Actions))
	for _, a := range o.Actions {
		out = append(out, string(a.Type))
	}
	return out
}

// ActionRecord is an append-only log entry for one executed action.
type ActionRecord struct {
	ID            string         `json:"id"`
	OpportunityID string         `json:"opportunity_id"`
	ActionType    string         `json:"action_type"`
	Input         map[string]any `json:"input,omitempty"`
	Result        map[string]any `json:"result,omitempty"`
	ActorID       string         `json:"actor_id,omitempty"`
	CreatedAt     time.Time      `json:"created_at"`
}

type IdentifyOptions struct {
	ForceRefresh  bool
	Categories    []string
	MinConfidence float64
	Limit         int
	ActorID       string
}

type Summary struct {
	Total                int            `json:"total"`
	ByCategory           map[string]int `json:"by_category"`
	ByPriority           map[string]int `json:"by_priority"`
	AverageConfidence    float64        `json:"average_confidence"`
	TotalExpectedSavings float64        `json:"total_expected_savings"`
}

// IdentifyResult is returned by IdentifyOpportunities. Success is false only
// when the pipeline itself failed; Error then carries a safe message.
type IdentifyResult struct {
	Success       bool          `json:"success"`
	Error         string        `json:"error,omitempty"`
	SubjectID     string        `json:"subject_id"`
	Opportunities []Opportunity `json:"opportunities"`
	Summary       Summary       `json:"summary"`
	Insights      []string      `json:"insights,omitempty"`
	ContextDigest string        `json:"context_digest"`
	Limited       bool          `json:"limited"`
	GeneratedAt   time.Time     `json:"generated_at"`
	Cached        bool          `json:"cached"`
}

type ActionRequest struct {
	ActionType string         `json:"action_type"`
	Input      map[string]any `json:"input,omitempty"`
	ActorID    string         `json:"actor_id,omitempty"`
}

// Result codes carried by a failed ActionResult.
const (
	CodeNotFound       = "not_found"
	CodeInvalidAction  = "invalid_action"
	CodeTerminalStatus = "terminal_status"
	CodeActionFailed   = "action_failed"
	CodeInternal       = "internal_error"
)

type ActionResult struct {
	Success     bool          `json:"success"`
	Error       string        `json:"error,omitempty"`
	Code        string        `json:"code,omitempty"`
	Opportunity *Opportunity  `json:"opportunity,omitempty"`
	Record      *ActionRecord `json:"record,omitempty"`
}
