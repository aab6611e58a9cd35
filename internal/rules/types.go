package rules

import (
	"fmt"

	"gopkg.in/yaml.v3"
)

// Operator compares a context metric against a rule value.
type Operator string

const (
	OpGT  Operator = "gt"
	OpGTE Operator = "gte"
	OpLT  Operator = "lt"
	OpLTE Operator = "lte"
	OpEQ  Operator = "eq"
	OpNE  Operator = "ne"
)

func (o Operator) Valid() bool {
	switch o {
	case OpGT, OpGTE, OpLT, OpLTE, OpEQ, OpNE:
		return true
	}
	return false
}

// Compare applies the operator. Unknown operators never match.
func (o Operator) Compare(actual, expected float64) bool {
	switch o {
	case OpGT:
		return actual > expected
	case OpGTE:
		return actual >= expected
	case OpLT:
		return actual < expected
	case OpLTE:
		return actual <= expected
	case OpEQ:
		return actual == expected
	case OpNE:
		return actual != expected
	}
	return false
}

func (o Operator) Symbol() string {
	switch o {
	case OpGT:
		return ">"
	case OpGTE:
		return ">="
	case OpLT:
		return "<"
	case OpLTE:
		return "<="
	case OpEQ:
		return "=="
	case OpNE:
		return "!="
	}
	return string(o)
}

// ActionType names an action an opportunity can offer.
type ActionType string

const (
	ActionOrderProduct       ActionType = "order_product"
	ActionScheduleAssessment ActionType = "schedule_assessment"
	ActionReferSpecialist    ActionType = "refer_specialist"
	ActionUpdateCarePlan     ActionType = "update_care_plan"
	ActionEnrollProgram      ActionType = "enroll_program"
	ActionDocumentGap        ActionType = "document_gap"
)

func (a ActionType) Valid() bool {
	switch a {
	case ActionOrderProduct, ActionScheduleAssessment, ActionReferSpecialist,
		ActionUpdateCarePlan, ActionEnrollProgram, ActionDocumentGap:
		return true
	}
	return false
}

// Condition is one clause of a rule. The set of implementations is closed;
// the evaluator switches over them exhaustively.
type Condition interface {
	Kind() string
	condition()
}

// Condition kinds as written in catalog documents.
const (
	KindDiagnosis   = "diagnosis"
	KindRisk        = "risk_threshold"
	KindGap         = "gap_present"
	KindWound       = "wound"
	KindUtilization = "utilization"
	KindQuality     = "quality"
	KindPayer       = "payer"
)

// DiagnosisMatch is satisfied by any condition whose code or category is listed.
type DiagnosisMatch struct {
	Codes      []string `yaml:"codes" json:"codes,omitempty"`
	Categories []string `yaml:"categories" json:"categories,omitempty"`
}

// RiskThreshold is satisfied when Risk[Metric] >= Threshold.
type RiskThreshold struct {
	Metric    string  `yaml:"metric" json:"metric"`
	Threshold float64 `yaml:"threshold" json:"threshold"`
}

// GapPresent is satisfied when the gap bucket is non-empty.
type GapPresent struct {
	GapType string `yaml:"gap_type" json:"gap_type"`
}

// WoundCharacteristic is satisfied when a single wound meets every criterion set.
type WoundCharacteristic struct {
	WoundTypes      []string `yaml:"wound_types" json:"wound_types,omitempty"`
	MinAreaCm2      float64  `yaml:"min_area_cm2" json:"min_area_cm2,omitempty"`
	MinDurationDays int      `yaml:"min_duration_days" json:"min_duration_days,omitempty"`
	HealingStatus   []string `yaml:"healing_status" json:"healing_status,omitempty"`
}

type UtilizationThreshold struct {
	Metric   string   `yaml:"metric" json:"metric"`
	Operator Operator `yaml:"operator" json:"operator"`
	Value    float64  `yaml:"value" json:"value"`
}

type QualityComparison struct {
	Metric   string   `yaml:"metric" json:"metric"`
	Operator Operator `yaml:"operator" json:"operator"`
	Value    float64  `yaml:"value" json:"value"`
}

// PayerMatch matches the primary payer name or plan type, case-insensitively.
type PayerMatch struct {
	Payers    []string `yaml:"payers" json:"payers,omitempty"`
	PlanTypes []string `yaml:"plan_types" json:"plan_types,omitempty"`
}

// UnknownCondition keeps an unrecognised clause so the rule loads but never fires.
type UnknownCondition struct {
	Type string `json:"type"`
}

func (DiagnosisMatch) Kind() string       { return KindDiagnosis }
func (RiskThreshold) Kind() string        { return KindRisk }
func (GapPresent) Kind() string           { return KindGap }
func (WoundCharacteristic) Kind() string  { return KindWound }
func (UtilizationThreshold) Kind() string { return KindUtilization }
func (QualityComparison) Kind() string    { return KindQuality }
func (PayerMatch) Kind() string           { return KindPayer }
func (u UnknownCondition) Kind() string   { return u.Type }

func (DiagnosisMatch) condition()       {}
func (RiskThreshold) condition()        {}
func (GapPresent) condition()           {}
func (WoundCharacteristic) condition()  {}
func (UtilizationThreshold) condition() {}
func (QualityComparison) condition()    {}
func (PayerMatch) condition()           {}
func (UnknownCondition) condition()     {}

// ActionTemplate is copied onto every opportunity the rule produces.
type ActionTemplate struct {
	Type        ActionType     `yaml:"type" json:"type"`
	Priority    string         `yaml:"priority" json:"priority"`
	Description string         `yaml:"description" json:"description"`
	Params      map[string]any `yaml:"params" json:"params,omitempty"`
}

// Impact describes the expected benefit of acting on an opportunity.
type Impact struct {
	CostSavings string `yaml:"cost_savings" json:"cost_savings,omitempty"`
	ImpactRange string `yaml:"impact_range" json:"impact_range,omitempty"`
	Timeframe   string `yaml:"timeframe" json:"timeframe,omitempty"`
	Metric      string `yaml:"metric" json:"metric,omitempty"`
}

// Rule maps a set of conditions onto an opportunity.
type Rule struct {
	ID                  string
	Version             string
	Category            string
	Type                string
	Title               string
	Priority            int
	Conditions          []Condition
	Actions             []ActionTemplate
	DescriptionTemplate string
	Impact              *Impact
}

type ruleDocument struct {
	ID          string           `yaml:"id"`
	Version     string           `yaml:"version"`
	Category    string           `yaml:"category"`
	Type        string           `yaml:"type"`
	Title       string           `yaml:"title"`
	Priority    int              `yaml:"priority"`
	Conditions  []yaml.Node      `yaml:"conditions"`
	Actions     []ActionTemplate `yaml:"actions"`
	Description string           `yaml:"description"`
	Impact      *Impact          `yaml:"impact"`
}

func (r *Rule) UnmarshalYAML(value *yaml.Node) error {
	var doc ruleDocument
	if err := value.Decode(&doc); err != nil {
		return err
	}
	conditions := make([]Condition, 0, len(doc.Conditions))
	for i := range doc.Conditions {
		c, err := decodeCondition(&doc.Conditions[i])
		if err != nil {
			return fmt.Errorf("rule %q condition %d: %w", doc.ID, i, err)
		}
		conditions = append(conditions, c)
	}
	*r = Rule{
		ID:                  doc.ID,
		Version:             doc.Version,
		Category:            doc.Category,
		Type:                doc.Type,
		Title:               doc.Title,
		Priority:            doc.Priority,
		Conditions:          conditions,
		Actions:             doc.Actions,
		DescriptionTemplate: doc.Description,
		Impact:              doc.Impact,
	}
	return nil
}

func decodeCondition(node *yaml.Node) (Condition, error) {
	var head struct {
		Type string `yaml:"type"`
	}
	if err := node.Decode(&head); err != nil {
		return nil, err
	}
	switch head.Type {
	case KindDiagnosis:
		return decodeAs[DiagnosisMatch](node)
	case KindRisk:
		return decodeAs[RiskThreshold](node)
	case KindGap:
		return decodeAs[GapPresent](node)
	case KindWound:
		return decodeAs[WoundCharacteristic](node)
	case KindUtilization:
		return decodeAs[UtilizationThreshold](node)
	case KindQuality:
		return decodeAs[QualityComparison](node)
	case KindPayer:
		return decodeAs[PayerMatch](node)
	default:
		return UnknownCondition{Type: head.Type}, nil
	}
}

func decodeAs[T Condition](node *yaml.Node) (Condition, error) {
	var c T
	if err := node.Decode(&c); err != nil {
		return nil, err
	}
	return c, nil
}
