package opportunity

import (
	"fmt"
	"sort"

	"github.com/wolfman30/woundcare-opportunities/internal/patientctx"
	"github.com/wolfman30/woundcare-opportunities/internal/products"
	"github.com/wolfman30/woundcare-opportunities/internal/rules"
)

// costImpactByType holds the expected savings and intervention cost per
// opportunity type, in USD per episode.
var costImpactByType = map[string]CostImpact{
	"infection_management":      {ExpectedSavings: 12000, InterventionCost: 1500, ROIWindow: "30 days"},
	"specialist_referral":       {ExpectedSavings: 45000, InterventionCost: 2500, ROIWindow: "90 days"},
	"advanced_wound_therapy":    {ExpectedSavings: 9000, InterventionCost: 3500, ROIWindow: "12 weeks"},
	"offloading":                {ExpectedSavings: 7000, InterventionCost: 800, ROIWindow: "12 weeks"},
	"negative_pressure_therapy": {ExpectedSavings: 6000, InterventionCost: 2800, ROIWindow: "8 weeks"},
	"vascular_assessment":       {ExpectedSavings: 2500, InterventionCost: 300, ROIWindow: "14 days"},
	"compression_therapy":       {ExpectedSavings: 4500, InterventionCost: 600, ROIWindow: "12 weeks"},
	"follow_up_visit":           {ExpectedSavings: 1200, InterventionCost: 150, ROIWindow: "14 days"},
	"treatment_plan_review":     {ExpectedSavings: 3500, InterventionCost: 400, ROIWindow: "4 weeks"},
	"care_coordination":         {ExpectedSavings: 7500, InterventionCost: 900, ROIWindow: "90 days"},
	"remote_monitoring":         {ExpectedSavings: 8000, InterventionCost: 1200, ROIWindow: "30 days"},
	"diabetes_management":       {ExpectedSavings: 3000, InterventionCost: 500, ROIWindow: "90 days"},
	"preventive_screening":      {ExpectedSavings: 2000, InterventionCost: 120, ROIWindow: "12 months"},
	"chronic_care_management":   {ExpectedSavings: 1200, InterventionCost: 480, ROIWindow: "12 months"},
}

var pathwayByType = map[string]Pathway{
	"infection_management": {
		ID: "wound-infection", Name: "Wound infection management",
		Steps: []string{"Obtain tissue culture", "Start topical antimicrobial dressing", "Assess need for systemic antibiotics", "Reassess within 72 hours"},
	},
	"specialist_referral": {
		ID: "limb-preservation", Name: "Limb preservation",
		Steps: []string{"Urgent specialist referral", "Vascular imaging", "Imaging for osteomyelitis", "Multidisciplinary review"},
	},
	"advanced_wound_therapy": {
		ID: "advanced-therapy", Name: "Advanced wound therapy",
		Steps: []string{"Confirm 4 weeks of standard care", "Debride to viable tissue", "Apply cellular or collagen product", "Measure weekly"},
	},
	"offloading": {
		ID: "dfu-offloading", Name: "Diabetic foot ulcer offloading",
		Steps: []string{"Fit total contact cast or walker", "Educate on adherence", "Check skin at every visit"},
	},
	"negative_pressure_therapy": {
		ID: "npwt", Name: "Negative pressure wound therapy",
		Steps: []string{"Verify no untreated osteomyelitis", "Apply NPWT", "Change dressing three times weekly", "Reassess at 4 weeks"},
	},
	"vascular_assessment": {
		ID: "vascular-workup", Name: "Vascular assessment",
		Steps: []string{"Ankle-brachial index", "Toe pressures if ABI is non-compressible", "Refer when ABI < 0.9"},
	},
	"compression_therapy": {
		ID: "venous-compression", Name: "Venous leg ulcer compression",
		Steps: []string{"Confirm ABI >= 0.8", "Apply multilayer compression", "Review weekly"},
	},
	"follow_up_visit": {
		ID: "wound-follow-up", Name: "Wound follow-up",
		Steps: []string{"Schedule reassessment", "Measure and photograph wound"},
	},
	"treatment_plan_review": {
		ID: "plan-review", Name: "Treatment plan review",
		Steps: []string{"Review area trajectory", "Rule out infection and ischemia", "Escalate therapy"},
	},
	"care_coordination": {
		ID: "transitional-care", Name: "Transitional care",
		Steps: []string{"Assign care coordinator", "Reconcile medications", "Arrange outpatient wound visits"},
	},
	"remote_monitoring": {
		ID: "rpm", Name: "Remote patient monitoring",
		Steps: []string{"Enroll in monitoring", "Weekly wound photos", "Escalation protocol"},
	},
	"diabetes_management": {
		ID: "glycemic-control", Name: "Glycemic control",
		Steps: []string{"Order HbA1c", "Review medications", "Refer to diabetes education"},
	},
	"preventive_screening": {
		ID: "foot-screening", Name: "Diabetic foot screening",
		Steps: []string{"Monofilament exam", "Pulse check", "Footwear review"},
	},
	"chronic_care_management": {
		ID: "ccm", Name: "Chronic care management",
		Steps: []string{"Obtain consent", "Build care plan", "Monthly check-in"},
	},
}

var citationsByCategory = map[string][]Citation{
	"wound_care": {
		{Title: "IWGDF Guidelines on the prevention and management of diabetes-related foot disease", URL: "https://iwgdfguidelines.org/guidelines-2023/"},
		{Title: "Wound Healing Society guidelines", URL: "https://woundheal.org/"},
	},
	"diagnostics": {
		{Title: "ADA Standards of Care in Diabetes: Retinopathy, neuropathy and foot care", URL: "https://diabetesjournals.org/care/issue"},
	},
	"quality": {
		{Title: "Wound Healing Society guidelines", URL: "https://woundheal.org/"},
	},
	"care_coordination": {
		{Title: "CMS Chronic Care Management Services", URL: "https://www.cms.gov/outreach-and-education/medicare-learning-network-mln/mlnproducts/downloads/chroniccaremanagement.pdf"},
	},
	"chronic_disease": {
		{Title: "ADA Standards of Care in Diabetes", URL: "https://diabetesjournals.org/care/issue"},
	},
	"preventive": {
		{Title: "IWGDF Guidelines on the prevention and management of diabetes-related foot disease", URL: "https://iwgdfguidelines.org/guidelines-2023/"},
	},
}

var mitigationByRisk = map[string]string{
	patientctx.RiskInfection:   "Monitor for spreading erythema, odor or fever; escalate promptly",
	patientctx.RiskNonHealing:  "Track weekly area reduction; escalate if under 40% at 4 weeks",
	patientctx.RiskReadmission: "Confirm follow-up within 7 days of any discharge",
	patientctx.RiskAmputation:  "Expedite vascular and podiatry evaluation",
	patientctx.RiskDiabetes:    "Tighten glycemic targets with the primary care team",
	patientctx.RiskVascular:    "Avoid high compression until perfusion is confirmed",
}

// Enricher attaches recommendations, cost impact, pathways, citations and
// risk guidance to rule candidates. It performs no I/O.
type Enricher struct {
	products products.Recommender
}

func NewEnricher(rec products.Recommender) *Enricher {
	return &Enricher{products: rec}
}

// CostImpactFor returns the table entry for an opportunity type, zero if unknown.
func CostImpactFor(oppType string) CostImpact {
	return costImpactByType[oppType]
}

// PathwayFor returns the clinical pathway for an opportunity type, empty if unknown.
func PathwayFor(oppType string) Pathway {
	return pathwayByType[oppType]
}

func (e *Enricher) Enrich(candidates []rules.Candidate, snap patientctx.Snapshot) []Opportunity {
	out := make([]Opportunity, 0, len(candidates))
	for _, c := range candidates {
		out = append(out, e.enrichOne(c, snap))
	}
	return out
}

func (e *Enricher) enrichOne(c rules.Candidate, snap patientctx.Snapshot) Opportunity {
	opp := Opportunity{
		SubjectID:       snap.SubjectID,
		RuleID:          c.RuleID,
		RuleVersion:     c.RuleVersion,
		Category:        c.Category,
		Type:            c.Type,
		Priority:        c.Priority,
		Title:           c.Title,
		Description:     c.Description,
		Actions:         c.Actions,
		Confidence:      c.Confidence,
		Evidence:        c.Evidence,
		PotentialImpact: c.Impact,
		CostImpact:      CostImpactFor(c.Type),
		Pathway:         PathwayFor(c.Type),
		Citations:       citationsByCategory[c.Category],
		RiskMitigation:  riskMitigation(snap),
		Source:          c.Source,
		Status:          StatusIdentified,
	}
	if opp.Source == "" {
		opp.Source = rules.SourceRule
	}
	if e.products != nil && c.HasAction(rules.ActionOrderProduct) {
		opp.Recommendations = e.products.Recommend(profileFor(c, snap))
	}
	return opp
}

func profileFor(c rules.Candidate, snap patientctx.Snapshot) products.Profile {
	var p products.Profile
	if w, ok := snap.PrimaryWound(); ok {
		p.WoundType = w.Type
		p.AreaCm2 = w.AreaCm2()
		p.Exudate = w.Exudate
		p.Infected = w.Infected
	}
	for _, a := range c.Actions {
		if a.Type == rules.ActionOrderProduct {
			p.Categories = stringList(a.Details["product_categories"])
			break
		}
	}
	return p
}

// riskMitigation lists guidance for every elevated risk, highest first.
func riskMitigation(snap patientctx.Snapshot) []string {
	type scored struct {
		name  string
		score float64
	}
	var elevated []scored
	for name, score := range snap.Risk {
		if score >= 0.5 {
			if _, ok := mitigationByRisk[name]; ok {
				elevated = append(elevated, scored{name, score})
			}
		}
	}
	sort.Slice(elevated, func(i, j int) bool {
		if elevated[i].score != elevated[j].score {
			return elevated[i].score > elevated[j].score
		}
		return elevated[i].name < elevated[j].name
	})
	out := make([]string, 0, len(elevated))
	for _, r := range elevated {
		out = append(out, fmt.Sprintf("%s (%.2f): %s", r.name, r.score, mitigationByRisk[r.name]))
	}
	return out
}

func stringList(v any) []string {
	switch t := v.(type) {
	case []string:
		return t
	case []any:
		out := make([]string, 0, len(t))
		for _, item := range t {
			if s, ok := item.(string); ok {
				out = append(out, s)
			}
		}
		return out
	case string:
		return []string{t}
	}
	return nil
}
