package opportunity

import (
	"math"
	"sort"
	"strconv"
	"strings"
)

// Composite score weights.
const (
	weightPriority   = 0.30
	weightConfidence = 0.20
	weightCost       = 0.20
	weightClinical   = 0.20
	weightEase       = 0.10
)

const (
	defaultEase           = 0.5
	defaultClinicalImpact = 0.5
)

var easeByAction = map[string]float64{
	"document_gap":        0.9,
	"update_care_plan":    0.8,
	"schedule_assessment": 0.7,
	"order_product":       0.6,
	"enroll_program":      0.5,
	"refer_specialist":    0.4,
}

type PrioritizeOptions struct {
	Categories    []string
	MinConfidence float64
	Limit         int
}

// Prioritize filters, scores and ranks opportunities. The sort is stable, so
// equal scores keep their input order. The input slice is not modified.
func Prioritize(opps []Opportunity, opts PrioritizeOptions) []Opportunity {
	var allowed map[string]bool
	if len(opts.Categories) > 0 {
		allowed = make(map[string]bool, len(opts.Categories))
		for _, c := range opts.Categories {
			allowed[c] = true
		}
	}

	out := make([]Opportunity, 0, len(opps))
	for _, o := range opps {
		if allowed != nil && !allowed[o.Category] {
			continue
		}
		if o.Confidence < opts.MinConfidence {
			continue
		}
		o.CompositeScore = CompositeScore(o)
		out = append(out, o)
	}

	sort.SliceStable(out, func(i, j int) bool {
		return out[i].CompositeScore > out[j].CompositeScore
	})
	if opts.Limit > 0 && len(out) > opts.Limit {
		out = out[:opts.Limit]
	}
	return out
}

// CompositeScore weighs priority, confidence, cost impact, clinical impact
// and ease of implementation. Every term is clamped to [0,1].
func CompositeScore(o Opportunity) float64 {
	impactRange := ""
	if o.PotentialImpact != nil {
		impactRange = o.PotentialImpact.ImpactRange
	}
	return weightPriority*clamp01(float64(o.Priority)/10) +
		weightConfidence*clamp01(o.Confidence) +
		weightCost*NormalizedCostImpact(o.CostImpact.ExpectedSavings, o.CostImpact.InterventionCost) +
		weightClinical*clamp01(ParseImpactRange(impactRange)) +
		weightEase*clamp01(EaseOfImplementation(o.ValidActions()))
}

// NormalizedCostImpact is the ROI ratio scaled by a tenth and clamped to [0,1].
// A non-positive cost scores 1 when there are savings and 0 otherwise.
func NormalizedCostImpact(savings, cost float64) float64 {
	if math.IsNaN(savings) || math.IsNaN(cost) {
		return 0
	}
	if cost <= 0 {
		if savings > 0 {
			return 1
		}
		return 0
	}
	return clamp01(((savings - cost) / cost) / 10)
}

// EaseOfImplementation averages the ease table over the action types.
func EaseOfImplementation(actionTypes []string) float64 {
	if len(actionTypes) == 0 {
		return defaultEase
	}
	total := 0.0
	for _, t := range actionTypes {
		if v, ok := easeByAction[t]; ok {
			total += v
		} else {
			total += defaultEase
		}
	}
	return total / float64(len(actionTypes))
}

// ParseImpactRange turns "40-60%" into 0.5 and "25%" into 0.25. Bare numbers
// up to 1 are taken as fractions. Anything unparseable yields 0.5.
func ParseImpactRange(s string) float64 {
	s = strings.TrimSpace(s)
	if s == "" {
		return defaultClinicalImpact
	}
	percent := strings.Contains(s, "%")
	s = strings.ReplaceAll(s, "%", "")

	var values []float64
	for _, part := range strings.Split(s, "-") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		v, err := strconv.ParseFloat(part, 64)
		if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
			return defaultClinicalImpact
		}
		values = append(values, v)
	}
	if len(values) == 0 || len(values) > 2 {
		return defaultClinicalImpact
	}

	mid := values[0]
	if len(values) == 2 {
		mid = (values[0] + values[1]) / 2
	}
	if percent || mid > 1 {
		mid /= 100
	}
	return clamp01(mid)
}

func clamp01(v float64) float64 {
	switch {
	case math.IsNaN(v):
		return 0
	case v < 0:
		return 0
	case v > 1:
		return 1
	}
	return v
}
