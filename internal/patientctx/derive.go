package patientctx

import (
	"sort"
	"strings"
	"time"

	"github.com/wolfman30/woundcare-opportunities/internal/emr"
)

func ageAt(birth, now time.Time) int {
	if birth.IsZero() || now.Before(birth) {
		return 0
	}
	age := now.Year() - birth.Year()
	if now.YearDay() < birth.YearDay() {
		age--
	}
	return age
}

func isActiveCondition(status string) bool {
	switch strings.ToLower(status) {
	case "", "active", "recurrence", "relapse":
		return true
	default:
		return false
	}
}

func conditionFacts(conditions []emr.Condition) []ClinicalFact {
	out := make([]ClinicalFact, 0, len(conditions))
	for _, c := range conditions {
		if !isActiveCondition(c.ClinicalStatus) {
			continue
		}
		category := c.Category
		if category == "" {
			category = emr.CategoryForCode(c.Code)
		}
		out = append(out, ClinicalFact{
			Code:     c.Code,
			Display:  c.Display,
			Category: category,
			Severity: c.Severity,
			Date:     c.OnsetDate,
		})
	}
	return out
}

func measurementFacts(observations []emr.Observation) []ClinicalFact {
	out := make([]ClinicalFact, 0, len(observations))
	for _, o := range observations {
		out = append(out, ClinicalFact{
			Code:     o.Code,
			Display:  o.Display,
			Category: o.Category,
			Value:    o.Value,
			Unit:     o.Unit,
			Date:     o.EffectiveAt,
		})
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Date.After(out[j].Date) })
	return out
}

// groupWounds collapses assessments of the same wound (type and location)
// into one Wound carrying the latest measurements. The baseline area is taken
// from the most recent assessment at least three weeks older than the latest.
func groupWounds(assessments []emr.WoundAssessment) []Wound {
	byKey := make(map[string][]emr.WoundAssessment)
	var order []string
	for _, a := range assessments {
		key := strings.ToLower(a.WoundType) + "|" + strings.ToLower(a.Location)
		if _, ok := byKey[key]; !ok {
			order = append(order, key)
		}
		byKey[key] = append(byKey[key], a)
	}

	out := make([]Wound, 0, len(order))
	for _, key := range order {
		group := byKey[key]
		sort.SliceStable(group, func(i, j int) bool { return group[i].AssessedAt.After(group[j].AssessedAt) })
		latest := group[0]
		w := Wound{
			ID:            latest.ID,
			Type:          latest.WoundType,
			Location:      latest.Location,
			LengthCm:      latest.LengthCm,
			WidthCm:       latest.WidthCm,
			DepthCm:       latest.DepthCm,
			Exudate:       latest.Exudate,
			HealingStatus: latest.HealingStatus,
			Infected:      latest.Infected,
			OnsetDate:     latest.OnsetDate,
			AssessedAt:    latest.AssessedAt,
			Assessments:   len(group),
		}
		for _, prev := range group[1:] {
			if w.OnsetDate.IsZero() && !prev.OnsetDate.IsZero() {
				w.OnsetDate = prev.OnsetDate
			}
			if w.BaselineArea == 0 && latest.AssessedAt.Sub(prev.AssessedAt) >= 21*24*time.Hour {
				w.BaselineArea = prev.LengthCm * prev.WidthCm
			}
		}
		out = append(out, w)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].AreaCm2() > out[j].AreaCm2() })
	return out
}

func payerInfo(coverages []emr.Coverage, now time.Time) PayerInfo {
	active := make([]emr.Coverage, 0, len(coverages))
	for _, c := range coverages {
		if c.Active(now) {
			active = append(active, c)
		}
	}
	sort.SliceStable(active, func(i, j int) bool { return active[i].Primary && !active[j].Primary })
	info := PayerInfo{Coverages: active}
	if len(active) > 0 {
		info.PrimaryName = active[0].PayerName
		info.PrimaryPlanType = active[0].PlanType
	}
	return info
}

func utilization(encounters []emr.Encounter, now time.Time) map[string]float64 {
	d := ClinicalData{Now: now, Encounters: encounters}
	yearAgo := now.AddDate(-1, 0, 0)
	woundVisits := 0
	for _, e := range encounters {
		if e.Start.Before(now.AddDate(0, 0, -30)) {
			continue
		}
		if strings.Contains(strings.ToLower(e.Reason), "wound") || strings.Contains(strings.ToLower(e.Reason), "ulcer") {
			woundVisits++
		}
	}
	return map[string]float64{
		UtilEDVisits90d:        float64(d.encountersSince("emergency", now.AddDate(0, 0, -90))),
		UtilInpatientAdmits12m: float64(d.encountersSince("inpatient", yearAgo)),
		UtilWoundVisits30d:     float64(woundVisits),
		UtilTotalEncounters12m: float64(d.encountersSince("", yearAgo)),
	}
}

// quality only reports metrics whose inputs exist; an absent key means unknown.
func quality(d ClinicalData) map[string]float64 {
	out := make(map[string]float64)
	if a1c, ok := d.latest(emr.LOINCHbA1c); ok {
		out[QualityHbA1cLatest] = a1c.Value
	}
	open := d.openWounds()
	if len(open) == 0 {
		return out
	}
	primary := open[0]
	for _, w := range open[1:] {
		if w.AreaCm2() > primary.AreaCm2() {
			primary = w
		}
	}
	if primary.BaselineArea > 0 {
		out[QualityWoundAreaReduced] = (primary.BaselineArea - primary.AreaCm2()) / primary.BaselineArea * 100
	}
	var lastAssessed time.Time
	for _, w := range open {
		if w.AssessedAt.After(lastAssessed) {
			lastAssessed = w.AssessedAt
		}
	}
	if !lastAssessed.IsZero() {
		out[QualityDaysSinceAssessed] = float64(int(d.Now.Sub(lastAssessed).Hours() / 24))
	}
	return out
}
