package patientctx

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/wolfman30/woundcare-opportunities/internal/emr"
)

func TestPendingStrategiesAreUnavailable(t *testing.T) {
	for _, s := range []RiskStrategy{PendingStrategy{Metric: RiskDiabetes}, PendingStrategy{Metric: RiskVascular}} {
		score, ok := s.Score(ClinicalData{Now: testNow})
		assert.False(t, ok, s.Name())
		assert.Equal(t, 0.0, score, s.Name())
	}
}

func TestRiskStrategiesWithoutData(t *testing.T) {
	empty := ClinicalData{Now: testNow}
	for _, s := range DefaultRiskStrategies() {
		_, ok := s.Score(empty)
		assert.False(t, ok, "%s should be unavailable without data", s.Name())
	}
}

func TestNonHealingRisk(t *testing.T) {
	d := ClinicalData{
		Now:        testNow,
		Conditions: []ClinicalFact{{Category: "diabetes"}},
		Measurements: []ClinicalFact{
			{Code: emr.LOINCAnkleBrachial, Value: 0.7, Date: daysAgo(30)},
			{Code: emr.LOINCHbA1c, Value: 9, Date: daysAgo(10)},
			{Code: emr.LOINCAlbumin, Value: 3.0, Date: daysAgo(10)},
		},
		Wounds: []Wound{{Type: "diabetic_foot_ulcer", OnsetDate: daysAgo(100), HealingStatus: "stalled"}},
	}
	score, ok := nonHealingRisk(d)
	assert.True(t, ok)
	assert.Equal(t, 1.0, score)
}

func TestReadmissionRiskCaps(t *testing.T) {
	var encounters []emr.Encounter
	for i := 0; i < 10; i++ {
		encounters = append(encounters, emr.Encounter{Class: "inpatient", Start: daysAgo(10 + i)})
	}
	score, ok := readmissionRisk(ClinicalData{Now: testNow, Encounters: encounters})
	assert.True(t, ok)
	assert.InDelta(t, 0.45, score, 1e-9)
}

func TestWoundDuration(t *testing.T) {
	w := Wound{AssessedAt: daysAgo(5)}
	assert.Equal(t, 5, w.DurationDays(testNow))
	w.OnsetDate = daysAgo(45)
	assert.Equal(t, 45, w.DurationDays(testNow))
	assert.Equal(t, 0, Wound{}.DurationDays(testNow))
	assert.Equal(t, 0, Wound{OnsetDate: testNow.Add(time.Hour)}.DurationDays(testNow))
}

func TestGapDetectors(t *testing.T) {
	tests := []struct {
		name string
		fn   GapFunc
		data ClinicalData
		want int
	}{
		{"hba1c recent", hba1cOverdue, ClinicalData{Now: testNow, Conditions: []ClinicalFact{{Category: "diabetes"}}, Measurements: []ClinicalFact{{Code: emr.LOINCHbA1c, Date: daysAgo(30)}}}, 0},
		{"hba1c stale", hba1cOverdue, ClinicalData{Now: testNow, Conditions: []ClinicalFact{{Category: "diabetes"}}, Measurements: []ClinicalFact{{Code: emr.LOINCHbA1c, Date: daysAgo(91)}}}, 1},
		{"hba1c not diabetic", hba1cOverdue, ClinicalData{Now: testNow}, 0},
		{"abi missing", vascularAssessmentMissing, ClinicalData{Now: testNow, Wounds: []Wound{{Type: "venous_leg_ulcer"}}}, 1},
		{"abi not needed for pressure ulcer", vascularAssessmentMissing, ClinicalData{Now: testNow, Wounds: []Wound{{Type: "pressure_ulcer"}}}, 0},
		{"reassessment overdue per wound", woundReassessmentOverdue, ClinicalData{Now: testNow, Wounds: []Wound{{AssessedAt: daysAgo(15)}, {AssessedAt: daysAgo(30)}, {AssessedAt: daysAgo(3)}}}, 2},
		{"healed wound ignored", woundReassessmentOverdue, ClinicalData{Now: testNow, Wounds: []Wound{{AssessedAt: daysAgo(30), HealingStatus: "healed"}}}, 0},
		{"foot exam overdue", footExamOverdue, ClinicalData{Now: testNow, Conditions: []ClinicalFact{{Category: "diabetes"}}}, 1},
		{"one ED visit", frequentEDUse, ClinicalData{Now: testNow, Encounters: []emr.Encounter{{Class: "emergency", Start: daysAgo(5)}}}, 0},
		{"two ED visits", frequentEDUse, ClinicalData{Now: testNow, Encounters: []emr.Encounter{{Class: "emergency", Start: daysAgo(5)}, {Class: "emergency", Start: daysAgo(89)}}}, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Len(t, tt.fn.Detect(tt.data), tt.want)
		})
	}
}
