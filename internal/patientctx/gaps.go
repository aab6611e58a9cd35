package patientctx

import (
	"fmt"

	"github.com/wolfman30/woundcare-opportunities/internal/emr"
)

// GapDetector inspects clinical data and reports zero or more care gaps.
type GapDetector interface {
	Detect(ClinicalData) []CareGap
}

// GapFunc adapts a function to GapDetector.
type GapFunc func(ClinicalData) []CareGap

func (f GapFunc) Detect(d ClinicalData) []CareGap { return f(d) }

// DefaultGapDetectors returns the built-in detectors.
func DefaultGapDetectors() []GapDetector {
	return []GapDetector{
		GapFunc(hba1cOverdue),
		GapFunc(vascularAssessmentMissing),
		GapFunc(woundReassessmentOverdue),
		GapFunc(footExamOverdue),
		GapFunc(frequentEDUse),
	}
}

var lowerExtremityWounds = map[string]bool{
	"diabetic_foot_ulcer": true,
	"venous_leg_ulcer":    true,
	"arterial_ulcer":      true,
}

func isDiabetic(d ClinicalData) bool {
	return d.hasCategory("diabetes", "diabetic_foot_ulcer")
}

func hba1cOverdue(d ClinicalData) []CareGap {
	if !isDiabetic(d) || d.measuredSince(emr.LOINCHbA1c, d.Now.AddDate(0, 0, -90)) {
		return nil
	}
	return []CareGap{{
		Type:        GapDiagnostic,
		Code:        "hba1c_overdue",
		Description: "No HbA1c result in the last 90 days",
	}}
}

func vascularAssessmentMissing(d ClinicalData) []CareGap {
	if d.measuredSince(emr.LOINCAnkleBrachial, d.Now.AddDate(-1, 0, 0)) {
		return nil
	}
	for _, w := range d.openWounds() {
		if lowerExtremityWounds[w.Type] {
			return []CareGap{{
				Type:        GapDiagnostic,
				Code:        "abi_missing",
				Description: fmt.Sprintf("No ankle-brachial index on record for %s", w.Type),
			}}
		}
	}
	return nil
}

func woundReassessmentOverdue(d ClinicalData) []CareGap {
	var gaps []CareGap
	cutoff := d.Now.AddDate(0, 0, -14)
	for _, w := range d.openWounds() {
		if w.AssessedAt.IsZero() || w.AssessedAt.Before(cutoff) {
			gaps = append(gaps, CareGap{
				Type:        GapFollowUp,
				Code:        "wound_reassessment_overdue",
				Description: fmt.Sprintf("%s at %s not assessed in 14 days", w.Type, w.Location),
			})
		}
	}
	return gaps
}

func footExamOverdue(d ClinicalData) []CareGap {
	if !isDiabetic(d) || d.measuredSince(emr.LOINCFootExam, d.Now.AddDate(-1, 0, 0)) {
		return nil
	}
	return []CareGap{{
		Type:        GapPreventive,
		Code:        "diabetic_foot_exam",
		Description: "No comprehensive diabetic foot exam in the last 12 months",
	}}
}

func frequentEDUse(d ClinicalData) []CareGap {
	visits := d.encountersSince("emergency", d.Now.AddDate(0, 0, -90))
	if visits < 2 {
		return nil
	}
	return []CareGap{{
		Type:        GapCareCoordination,
		Code:        "frequent_ed_use",
		Description: fmt.Sprintf("%d emergency visits in the last 90 days", visits),
	}}
}
