package patientctx

import (
	"time"

	"github.com/wolfman30/woundcare-opportunities/internal/emr"
)

// ClinicalData is the subset of the snapshot that risk strategies and gap
// detectors read.
type ClinicalData struct {
	Now          time.Time
	Demographics Demographics
	Conditions   []ClinicalFact
	Measurements []ClinicalFact
	Wounds       []Wound
	Encounters   []emr.Encounter
}

func (d ClinicalData) hasCategory(categories ...string) bool {
	for _, c := range d.Conditions {
		for _, want := range categories {
			if c.Category == want {
				return true
			}
		}
	}
	return false
}

// latest returns the most recent measurement with the LOINC code.
func (d ClinicalData) latest(code string) (ClinicalFact, bool) {
	var (
		best  ClinicalFact
		found bool
	)
	for _, m := range d.Measurements {
		if m.Code != code {
			continue
		}
		if !found || m.Date.After(best.Date) {
			best, found = m, true
		}
	}
	return best, found
}

func (d ClinicalData) measuredSince(code string, since time.Time) bool {
	m, ok := d.latest(code)
	return ok && !m.Date.Before(since)
}

func (d ClinicalData) openWounds() []Wound {
	out := make([]Wound, 0, len(d.Wounds))
	for _, w := range d.Wounds {
		if w.Open() {
			out = append(out, w)
		}
	}
	return out
}

func (d ClinicalData) encountersSince(class string, since time.Time) int {
	n := 0
	for _, e := range d.Encounters {
		if class != "" && e.Class != class {
			continue
		}
		if !e.Start.Before(since) {
			n++
		}
	}
	return n
}

// RiskStrategy computes one named risk score. A false second return means
// the inputs needed for the score were unavailable; the builder records 0.
type RiskStrategy interface {
	Name() string
	Score(ClinicalData) (float64, bool)
}

// RiskFunc adapts a function to RiskStrategy.
type RiskFunc struct {
	Metric string
	Fn     func(ClinicalData) (float64, bool)
}

func (r RiskFunc) Name() string                         { return r.Metric }
func (r RiskFunc) Score(d ClinicalData) (float64, bool) { return r.Fn(d) }

// PendingStrategy is a named score with no agreed formula yet. It always
// reports unavailable so rules keyed on it never fire on a made-up value.
type PendingStrategy struct {
	Metric string
}

func (p PendingStrategy) Name() string                       { return p.Metric }
func (p PendingStrategy) Score(ClinicalData) (float64, bool) { return 0, false }

// DefaultRiskStrategies returns the built-in scores.
func DefaultRiskStrategies() []RiskStrategy {
	return []RiskStrategy{
		RiskFunc{Metric: RiskInfection, Fn: infectionRisk},
		RiskFunc{Metric: RiskNonHealing, Fn: nonHealingRisk},
		RiskFunc{Metric: RiskReadmission, Fn: readmissionRisk},
		RiskFunc{Metric: RiskAmputation, Fn: amputationRisk},
		PendingStrategy{Metric: RiskDiabetes},
		PendingStrategy{Metric: RiskVascular},
	}
}

func infectionRisk(d ClinicalData) (float64, bool) {
	wounds := d.openWounds()
	if len(wounds) == 0 && len(d.Conditions) == 0 {
		return 0, false
	}
	score := 0.0
	var infected, large, chronic bool
	for _, w := range wounds {
		infected = infected || w.Infected
		large = large || w.AreaCm2() >= 10
		chronic = chronic || w.DurationDays(d.Now) > 30
	}
	if infected || d.hasCategory("cellulitis", "osteomyelitis") {
		score += 0.3
	}
	if large {
		score += 0.1
	}
	if chronic {
		score += 0.1
	}
	if d.hasCategory("diabetes", "diabetic_foot_ulcer") {
		score += 0.2
	}
	if d.hasCategory("immunocompromised") {
		score += 0.15
	}
	if wbc, ok := d.latest(emr.LOINCWBC); ok && wbc.Value > 11 {
		score += 0.15
	}
	if crp, ok := d.latest(emr.LOINCCRP); ok && crp.Value > 10 {
		score += 0.1
	}
	return clamp01(score), true
}

func nonHealingRisk(d ClinicalData) (float64, bool) {
	wounds := d.openWounds()
	if len(wounds) == 0 {
		return 0, false
	}
	score := 0.0
	longest := 0
	var stalled bool
	for _, w := range wounds {
		if days := w.DurationDays(d.Now); days > longest {
			longest = days
		}
		stalled = stalled || w.HealingStatus == "stalled" || w.HealingStatus == "deteriorating"
	}
	if d.hasCategory("diabetes", "diabetic_foot_ulcer") {
		score += 0.25
	}
	abi, hasABI := d.latest(emr.LOINCAnkleBrachial)
	if d.hasCategory("peripheral_arterial_disease") || (hasABI && abi.Value < 0.9) {
		score += 0.25
	}
	if longest >= 30 {
		score += 0.2
	}
	if longest >= 90 {
		score += 0.1
	}
	if stalled {
		score += 0.2
	}
	if a1c, ok := d.latest(emr.LOINCHbA1c); ok && a1c.Value > 8 {
		score += 0.1
	}
	if alb, ok := d.latest(emr.LOINCAlbumin); ok && alb.Value < 3.5 {
		score += 0.1
	}
	return clamp01(score), true
}

func readmissionRisk(d ClinicalData) (float64, bool) {
	if len(d.Encounters) == 0 && len(d.Conditions) == 0 {
		return 0, false
	}
	admits := d.encountersSince("inpatient", d.Now.AddDate(-1, 0, 0))
	ed := d.encountersSince("emergency", d.Now.AddDate(0, 0, -90))
	score := min(0.15*float64(admits), 0.45) + min(0.1*float64(ed), 0.3)
	if d.hasCategory("heart_failure") {
		score += 0.1
	}
	if d.hasCategory("chronic_kidney_disease") {
		score += 0.1
	}
	if d.Demographics.Age >= 75 {
		score += 0.1
	}
	return clamp01(score), true
}

func amputationRisk(d ClinicalData) (float64, bool) {
	dfu := d.hasCategory("diabetic_foot_ulcer")
	for _, w := range d.openWounds() {
		if w.Type == "diabetic_foot_ulcer" {
			dfu = true
		}
	}
	if !dfu {
		return 0, false
	}
	score := 0.3
	abi, hasABI := d.latest(emr.LOINCAnkleBrachial)
	if d.hasCategory("peripheral_arterial_disease") || (hasABI && abi.Value < 0.9) {
		score += 0.3
	}
	if d.hasCategory("osteomyelitis") {
		score += 0.3
	}
	for _, w := range d.openWounds() {
		if w.Infected {
			score += 0.1
			break
		}
	}
	return clamp01(score), true
}
