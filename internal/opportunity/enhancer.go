package opportunity

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/wolfman30/woundcare-opportunities/internal/llm"
	"github.com/wolfman30/woundcare-opportunities/internal/patientctx"
	"github.com/wolfman30/woundcare-opportunities/internal/rules"
)

const maxEnhancementConfidence = 0.8

// Enhancement is what the external step adds to the rule results.
type Enhancement struct {
	Candidates []rules.Candidate
	Insights   []string
}

// Enhancer is a best-effort step. Callers fall back to rule results on error.
type Enhancer interface {
	Enhance(ctx context.Context, snap patientctx.Snapshot, candidates []rules.Candidate) (Enhancement, error)
}

const enhancementSystemPrompt = `You review wound-care opportunity findings for one patient.
You receive a de-identified clinical summary and the opportunities already found by rules.
Suggest at most three additional opportunities that the rules missed, and up to three short insights.
Use only these opportunity types: %s.
Use only these action types: order_product, schedule_assessment, refer_specialist, update_care_plan, enroll_program, document_gap.
Reply with a single JSON object and nothing else:
{"insights": ["..."], "opportunities": [{"type": "...", "category": "...", "title": "...", "description": "...", "priority": 1-10, "confidence": 0.0-1.0, "evidence": ["..."], "actions": [{"type": "...", "description": "..."}]}]}`

// LLMEnhancer asks a language model for opportunities the rules missed.
type LLMEnhancer struct {
	client     llm.Client
	model      string
	timeout    time.Duration
	knownTypes map[string]bool
}

type EnhancerOption func(*LLMEnhancer)

func WithEnhancementTimeout(d time.Duration) EnhancerOption {
	return func(e *LLMEnhancer) {
		if d > 0 {
			e.timeout = d
		}
	}
}

func WithEnhancementModel(model string) EnhancerOption {
	return func(e *LLMEnhancer) { e.model = model }
}

// WithKnownTypes restricts which opportunity types suggestions may use.
func WithKnownTypes(types ...string) EnhancerOption {
	return func(e *LLMEnhancer) {
		if len(types) == 0 {
			return
		}
		e.knownTypes = make(map[string]bool, len(types))
		for _, t := range types {
			e.knownTypes[t] = true
		}
	}
}

func NewLLMEnhancer(client llm.Client, opts ...EnhancerOption) *LLMEnhancer {
	e := &LLMEnhancer{
		client:     client,
		timeout:    8 * time.Second,
		knownTypes: make(map[string]bool, len(costImpactByType)),
	}
	for t := range costImpactByType {
		e.knownTypes[t] = true
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// enhancementSummary is the de-identified view sent to the model.
type enhancementSummary struct {
	Age         int                `json:"age,omitempty"`
	Limited     bool               `json:"limited"`
	Conditions  []string           `json:"condition_categories"`
	Wounds      []enhancementWound `json:"open_wounds"`
	Risk        map[string]float64 `json:"risk"`
	CareGaps    []string           `json:"care_gaps"`
	Utilization map[string]float64 `json:"utilization"`
	Quality     map[string]float64 `json:"quality"`
	PlanType    string             `json:"plan_type,omitempty"`
	Existing    []string           `json:"existing_opportunity_types"`
}

type enhancementWound struct {
	Type          string  `json:"type"`
	AreaCm2       float64 `json:"area_cm2"`
	DurationDays  int     `json:"duration_days"`
	HealingStatus string  `json:"healing_status,omitempty"`
	Infected      bool    `json:"infected"`
}

type enhancementReply struct {
	Insights      []string `json:"insights"`
	Opportunities []struct {
		Type        string   `json:"type"`
		Category    string   `json:"category"`
		Title       string   `json:"title"`
		Description string   `json:"description"`
		Priority    int      `json:"priority"`
		Confidence  float64  `json:"confidence"`
		Evidence    []string `json:"evidence"`
		Actions     []struct {
			Type        string `json:"type"`
			Description string `json:"description"`
		} `json:"actions"`
	} `json:"opportunities"`
}

func (e *LLMEnhancer) Enhance(ctx context.Context, snap patientctx.Snapshot, candidates []rules.Candidate) (Enhancement, error) {
	if e == nil || e.client == nil {
		return Enhancement{}, errors.New("opportunity: enhancer not configured")
	}
	ctx, span := tracer.Start(ctx, "opportunity.enhance")
	defer span.End()
	span.SetAttributes(attribute.String("woundcare.subject_id", snap.SubjectID))

	ctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	summary, err := json.Marshal(summarizeForEnhancement(snap, candidates))
	if err != nil {
		return Enhancement{}, fmt.Errorf("opportunity: encode enhancement summary: %w", err)
	}
	resp, err := e.client.Complete(ctx, llm.Request{
		Model:       e.model,
		System:      []string{fmt.Sprintf(enhancementSystemPrompt, strings.Join(e.typeList(), ", "))},
		Messages:    []llm.Message{{Role: llm.RoleUser, Content: string(summary)}},
		MaxTokens:   1024,
		Temperature: 0.2,
	})
	if err != nil {
		span.RecordError(err)
		return Enhancement{}, fmt.Errorf("opportunity: enhancement call: %w", err)
	}

	reply, err := parseEnhancementReply(resp.Text)
	if err != nil {
		span.RecordError(err)
		return Enhancement{}, err
	}
	return e.toEnhancement(reply, candidates), nil
}

func (e *LLMEnhancer) typeList() []string {
	out := make([]string, 0, len(e.knownTypes))
	for t := range e.knownTypes {
		out = append(out, t)
	}
	sort.Strings(out)
	return out
}

// toEnhancement keeps suggestions of a known type not already covered by a rule.
func (e *LLMEnhancer) toEnhancement(reply enhancementReply, candidates []rules.Candidate) Enhancement {
	seen := make(map[string]bool, len(candidates))
	for _, c := range candidates {
		seen[c.Type] = true
	}

	out := Enhancement{}
	for _, insight := range reply.Insights {
		if s := strings.TrimSpace(insight); s != "" {
			out.Insights = append(out.Insights, s)
		}
	}
	for _, s := range reply.Opportunities {
		if !e.knownTypes[s.Type] || seen[s.Type] || strings.TrimSpace(s.Title) == "" {
			continue
		}
		seen[s.Type] = true

		priority := s.Priority
		if priority < 1 || priority > 10 {
			priority = 5
		}
		c := rules.Candidate{
			RuleID:      "enhancement:" + s.Type,
			RuleVersion: SourceEnhancement,
			Category:    s.Category,
			Type:        s.Type,
			Title:       s.Title,
			Priority:    priority,
			Description: s.Description,
			Confidence:  min(clamp01(s.Confidence), maxEnhancementConfidence),
			Evidence:    s.Evidence,
			Source:      SourceEnhancement,
		}
		if c.Category == "" {
			c.Category = "enhancement"
		}
		for _, a := range s.Actions {
			t := rules.ActionType(a.Type)
			if !t.Valid() {
				continue
			}
			c.Actions = append(c.Actions, rules.Action{Type: t, Priority: "medium", Description: a.Description})
		}
		out.Candidates = append(out.Candidates, c)
	}
	return out
}

func summarizeForEnhancement(snap patientctx.Snapshot, candidates []rules.Candidate) enhancementSummary {
	s := enhancementSummary{
		Age:         snap.Demographics.Age,
		Limited:     snap.Limited,
		Risk:        snap.Risk,
		Utilization: snap.Utilization,
		Quality:     snap.Quality,
		PlanType:    snap.Payer.PrimaryPlanType,
	}
	categories := map[string]bool{}
	for _, c := range snap.Conditions {
		if c.Category != "" && !categories[c.Category] {
			categories[c.Category] = true
			s.Conditions = append(s.Conditions, c.Category)
		}
	}
	sort.Strings(s.Conditions)
	for _, w := range snap.OpenWounds() {
		s.Wounds = append(s.Wounds, enhancementWound{
			Type:          w.Type,
			AreaCm2:       w.AreaCm2(),
			DurationDays:  w.DurationDays(snap.BuiltAt),
			HealingStatus: w.HealingStatus,
			Infected:      w.Infected,
		})
	}
	for _, gaps := range snap.CareGaps {
		for _, g := range gaps {
			s.CareGaps = append(s.CareGaps, g.Code)
		}
	}
	sort.Strings(s.CareGaps)
	for _, c := range candidates {
		s.Existing = append(s.Existing, c.Type)
	}
	return s
}

// parseEnhancementReply decodes the outermost JSON object in text, which
// tolerates code fences and stray prose around it.
func parseEnhancementReply(text string) (enhancementReply, error) {
	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start < 0 || end <= start {
		return enhancementReply{}, errors.New("opportunity: enhancement reply has no JSON object")
	}
	var reply enhancementReply
	if err := json.Unmarshal([]byte(text[start:end+1]), &reply); err != nil {
		return enhancementReply{}, fmt.Errorf("opportunity: decode enhancement reply: %w", err)
	}
	return reply, nil
}
