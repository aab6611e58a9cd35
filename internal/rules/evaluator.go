package rules

import (
	"fmt"
	"sort"
	"strings"

	"github.com/wolfman30/woundcare-opportunities/internal/patientctx"
	"github.com/wolfman30/woundcare-opportunities/pkg/logging"
)

// Fixed confidences for matched conditions.
const (
	confidenceExactCode   = 1.0
	confidenceCategory    = 0.9
	confidenceWound       = 0.95
	confidenceUtilization = 0.9
	confidenceQuality     = 0.85
	confidencePayer       = 1.0
)

// SourceRule marks candidates produced by the catalog.
const SourceRule = "rule"

// Action is a concrete action offered on a candidate.
type Action struct {
	Type        ActionType     `json:"type"`
	Priority    string         `json:"priority"`
	Description string         `json:"description"`
	Details     map[string]any `json:"details,omitempty"`
}

// Candidate is a triggered rule before enrichment and ranking.
type Candidate struct {
	RuleID      string   `json:"rule_id"`
	RuleVersion string   `json:"rule_version"`
	Category    string   `json:"category"`
	Type        string   `json:"type"`
	Title       string   `json:"title"`
	Priority    int      `json:"priority"`
	Description string   `json:"description"`
	Actions     []Action `json:"actions"`
	Confidence  float64  `json:"confidence"`
	Evidence    []string `json:"evidence"`
	Impact      *Impact  `json:"impact,omitempty"`
	Source      string   `json:"source"`
}

// HasAction reports whether the candidate offers the action type.
func (c Candidate) HasAction(t ActionType) bool {
	for _, a := range c.Actions {
		if a.Type == t {
			return true
		}
	}
	return false
}

// RuleSet supplies rules to the evaluator.
type RuleSet interface {
	Rules() []Rule
}

// Evaluator matches rules against snapshots.
type Evaluator struct {
	rules  RuleSet
	logger *logging.Logger
}

func NewEvaluator(rules RuleSet, logger *logging.Logger) *Evaluator {
	if logger == nil {
		logger = logging.Default()
	}
	return &Evaluator{rules: rules, logger: logger}
}

// Evaluate returns a candidate for every rule whose conditions all hold,
// ordered by priority, then confidence, then rule id.
func (e *Evaluator) Evaluate(snap patientctx.Snapshot) []Candidate {
	vars := TemplateVars(snap)
	var out []Candidate
	for _, rule := range e.rules.Rules() {
		if c, ok := e.evaluateRule(rule, snap, vars); ok {
			out = append(out, c)
		}
	}
	SortCandidates(out)
	return out
}

// SortCandidates orders candidates by priority desc, confidence desc, rule id asc.
func SortCandidates(cs []Candidate) {
	sort.SliceStable(cs, func(i, j int) bool {
		if cs[i].Priority != cs[j].Priority {
			return cs[i].Priority > cs[j].Priority
		}
		if cs[i].Confidence != cs[j].Confidence {
			return cs[i].Confidence > cs[j].Confidence
		}
		return cs[i].RuleID < cs[j].RuleID
	})
}

// EvaluateRule checks a single rule.
func (e *Evaluator) EvaluateRule(rule Rule, snap patientctx.Snapshot) (Candidate, bool) {
	return e.evaluateRule(rule, snap, TemplateVars(snap))
}

func (e *Evaluator) evaluateRule(rule Rule, snap patientctx.Snapshot, vars map[string]string) (c Candidate, ok bool) {
	defer func() {
		if r := recover(); r != nil {
			e.logger.Error("rule evaluation failed", "rule_id", rule.ID, "subject_id", snap.SubjectID, "error", fmt.Sprint(r))
			c, ok = Candidate{}, false
		}
	}()

	if len(rule.Conditions) == 0 {
		return Candidate{}, false
	}
	total := 0.0
	evidence := make([]string, 0, len(rule.Conditions))
	for _, cond := range rule.Conditions {
		m := evaluateCondition(cond, snap)
		if !m.matched {
			return Candidate{}, false
		}
		total += m.confidence
		evidence = append(evidence, m.evidence)
	}

	c = Candidate{
		RuleID:      rule.ID,
		RuleVersion: rule.Version,
		Category:    rule.Category,
		Type:        rule.Type,
		Title:       rule.Title,
		Priority:    rule.Priority,
		Description: strings.TrimSpace(RenderTemplate(rule.DescriptionTemplate, vars)),
		Confidence:  total / float64(len(rule.Conditions)),
		Evidence:    evidence,
		Impact:      rule.Impact,
		Source:      SourceRule,
	}
	c.Actions = make([]Action, 0, len(rule.Actions))
	for _, tmpl := range rule.Actions {
		c.Actions = append(c.Actions, buildAction(tmpl, snap, c))
	}
	return c, true
}

type match struct {
	matched    bool
	confidence float64
	evidence   string
}

func evaluateCondition(cond Condition, snap patientctx.Snapshot) match {
	switch c := cond.(type) {
	case DiagnosisMatch:
		return matchDiagnosis(c, snap)
	case RiskThreshold:
		score := snap.Risk[c.Metric]
		if score < c.Threshold {
			return match{}
		}
		return match{
			matched:    true,
			confidence: min(score+0.2, 1.0),
			evidence:   fmt.Sprintf("%s %.2f >= %.2f", c.Metric, score, c.Threshold),
		}
	case GapPresent:
		gaps := snap.CareGaps[c.GapType]
		if len(gaps) == 0 {
			return match{}
		}
		codes := make([]string, 0, len(gaps))
		for _, g := range gaps {
			codes = append(codes, g.Code)
		}
		return match{
			matched:    true,
			confidence: min(0.7+0.1*float64(len(gaps)), 1.0),
			evidence:   fmt.Sprintf("%d %s care gap(s): %s", len(gaps), c.GapType, strings.Join(codes, ", ")),
		}
	case WoundCharacteristic:
		return matchWound(c, snap)
	case UtilizationThreshold:
		return matchMetric(c.Metric, c.Operator, c.Value, snap.Utilization, confidenceUtilization)
	case QualityComparison:
		return matchMetric(c.Metric, c.Operator, c.Value, snap.Quality, confidenceQuality)
	case PayerMatch:
		return matchPayer(c, snap)
	case UnknownCondition:
		return match{}
	}
	return match{}
}

func matchDiagnosis(c DiagnosisMatch, snap patientctx.Snapshot) match {
	for _, fact := range snap.Conditions {
		if containsFold(c.Codes, fact.Code) {
			return match{matched: true, confidence: confidenceExactCode, evidence: fmt.Sprintf("diagnosis %s %s", fact.Code, fact.Display)}
		}
	}
	for _, fact := range snap.Conditions {
		if containsFold(c.Categories, fact.Category) {
			return match{matched: true, confidence: confidenceCategory, evidence: fmt.Sprintf("diagnosis category %s (%s)", fact.Category, fact.Code)}
		}
	}
	return match{}
}

// matchWound requires one wound to meet every configured criterion. Criteria
// left unset do not constrain the wound, healing status included.
func matchWound(c WoundCharacteristic, snap patientctx.Snapshot) match {
	for _, w := range snap.Wounds {
		if len(c.WoundTypes) > 0 && !containsFold(c.WoundTypes, w.Type) {
			continue
		}
		if c.MinAreaCm2 > 0 && w.AreaCm2() < c.MinAreaCm2 {
			continue
		}
		days := w.DurationDays(snap.BuiltAt)
		if c.MinDurationDays > 0 && days < c.MinDurationDays {
			continue
		}
		if len(c.HealingStatus) > 0 && !containsFold(c.HealingStatus, w.HealingStatus) {
			continue
		}
		return match{
			matched:    true,
			confidence: confidenceWound,
			evidence:   fmt.Sprintf("%s at %s: %.1f cm², %d days, %s", w.Type, w.Location, w.AreaCm2(), days, w.HealingStatus),
		}
	}
	return match{}
}

// matchMetric compares a metric that must be present in values.
func matchMetric(metric string, op Operator, want float64, values map[string]float64, confidence float64) match {
	got, ok := values[metric]
	if !ok || !op.Compare(got, want) {
		return match{}
	}
	return match{
		matched:    true,
		confidence: confidence,
		evidence:   fmt.Sprintf("%s %.1f %s %.1f", metric, got, op.Symbol(), want),
	}
}

// matchPayer requires every configured list to match the primary coverage.
func matchPayer(c PayerMatch, snap patientctx.Snapshot) match {
	if snap.Payer.PrimaryName == "" && snap.Payer.PrimaryPlanType == "" {
		return match{}
	}
	if len(c.Payers) > 0 && !containsFold(c.Payers, snap.Payer.PrimaryName) {
		return match{}
	}
	if len(c.PlanTypes) > 0 && !containsFold(c.PlanTypes, snap.Payer.PrimaryPlanType) {
		return match{}
	}
	return match{
		matched:    true,
		confidence: confidencePayer,
		evidence:   fmt.Sprintf("primary payer %s (%s)", snap.Payer.PrimaryName, snap.Payer.PrimaryPlanType),
	}
}

func containsFold(list []string, v string) bool {
	if v == "" {
		return false
	}
	for _, item := range list {
		if strings.EqualFold(item, v) {
			return true
		}
	}
	return false
}
