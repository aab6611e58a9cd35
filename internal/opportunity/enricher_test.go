package opportunity

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wolfman30/woundcare-opportunities/internal/patientctx"
	"github.com/wolfman30/woundcare-opportunities/internal/products"
	"github.com/wolfman30/woundcare-opportunities/internal/rules"
)

var testNow = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

func woundSnapshot() patientctx.Snapshot {
	return patientctx.Snapshot{
		SubjectID:    "p-1",
		BuiltAt:      testNow,
		Demographics: patientctx.Demographics{Age: 72},
		Conditions:   []patientctx.ClinicalFact{{Code: "E11.621", Category: "diabetic_foot_ulcer"}},
		Wounds: []patientctx.Wound{{
			ID: "w-1", Type: "diabetic_foot_ulcer", LengthCm: 4, WidthCm: 3,
			Exudate: "heavy", HealingStatus: "stalled", Infected: true,
			OnsetDate: testNow.AddDate(0, 0, -60), AssessedAt: testNow.AddDate(0, 0, -2),
		}},
		Risk: map[string]float64{
			patientctx.RiskInfection:   0.8,
			patientctx.RiskNonHealing:  0.55,
			patientctx.RiskReadmission: 0.2,
		},
		CareGaps:    map[string][]patientctx.CareGap{},
		Quality:     map[string]float64{},
		Utilization: map[string]float64{},
	}
}

func candidate(ruleID, oppType string, actions ...rules.ActionType) rules.Candidate {
	c := rules.Candidate{
		RuleID:     ruleID,
		Category:   "wound_care",
		Type:       oppType,
		Title:      ruleID,
		Priority:   8,
		Confidence: 0.9,
		Evidence:   []string{"evidence"},
		Source:     rules.SourceRule,
	}
	for _, a := range actions {
		c.Actions = append(c.Actions, rules.Action{Type: a})
	}
	return c
}

func TestEnrichAddsProductsOnlyForOrderActions(t *testing.T) {
	order := candidate("order", "infection_management", rules.ActionOrderProduct, rules.ActionScheduleAssessment)
	order.Actions[0].Details = map[string]any{"product_categories": []string{"antimicrobial_dressing", "alginate"}}
	noOrder := candidate("no-order", "infection_management", rules.ActionScheduleAssessment)

	opps := NewEnricher(products.DefaultCatalog()).Enrich([]rules.Candidate{order, noOrder}, woundSnapshot())
	require.Len(t, opps, 2)

	require.NotEmpty(t, opps[0].Recommendations)
	assert.Equal(t, "antimicrobial_dressing", opps[0].Recommendations[0].Category)
	assert.Empty(t, opps[1].Recommendations)
}

func TestEnrichAttachesStaticTables(t *testing.T) {
	opp := NewEnricher(nil).Enrich([]rules.Candidate{candidate("r", "offloading", rules.ActionOrderProduct)}, woundSnapshot())[0]

	assert.Equal(t, CostImpact{ExpectedSavings: 7000, InterventionCost: 800, ROIWindow: "12 weeks"}, opp.CostImpact)
	assert.Equal(t, "dfu-offloading", opp.Pathway.ID)
	assert.NotEmpty(t, opp.Citations)
	assert.Equal(t, StatusIdentified, opp.Status)
	assert.Equal(t, "p-1", opp.SubjectID)
	assert.Empty(t, opp.Recommendations, "nil recommender yields no products")
}

func TestEnrichUnknownTypeHasZeroImpact(t *testing.T) {
	opp := NewEnricher(nil).Enrich([]rules.Candidate{candidate("r", "teleportation")}, woundSnapshot())[0]

	assert.Equal(t, CostImpact{}, opp.CostImpact)
	assert.Equal(t, Pathway{}, opp.Pathway)
}

func TestEnrichRiskMitigationOrder(t *testing.T) {
	opp := NewEnricher(nil).Enrich([]rules.Candidate{candidate("r", "infection_management")}, woundSnapshot())[0]

	require.Len(t, opp.RiskMitigation, 2)
	assert.Contains(t, opp.RiskMitigation[0], patientctx.RiskInfection)
	assert.Contains(t, opp.RiskMitigation[1], patientctx.RiskNonHealing)
}

func TestEnrichIsDeterministic(t *testing.T) {
	e := NewEnricher(products.DefaultCatalog())
	cands := []rules.Candidate{candidate("a", "infection_management", rules.ActionOrderProduct), candidate("b", "care_coordination")}
	assert.Equal(t, e.Enrich(cands, woundSnapshot()), e.Enrich(cands, woundSnapshot()))
}
