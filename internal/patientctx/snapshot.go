package patientctx

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"math"
	"sort"
	"time"

	"github.com/wolfman30/woundcare-opportunities/internal/emr"
)

// SourceStatus records how a sub-fetch ended.
type SourceStatus string

const (
	SourceOK       SourceStatus = "ok"
	SourceFailed   SourceStatus = "failed"
	SourceNotFound SourceStatus = "not_found"
	SourceSkipped  SourceStatus = "skipped"
)

// Care gap buckets.
const (
	GapDiagnostic       = "diagnostic"
	GapFollowUp         = "follow_up"
	GapPreventive       = "preventive"
	GapCareCoordination = "care_coordination"
)

// Risk metric names.
const (
	RiskInfection   = "infection_risk"
	RiskNonHealing  = "non_healing_risk"
	RiskReadmission = "readmission_risk"
	RiskAmputation  = "amputation_risk"
	RiskDiabetes    = "diabetes_risk"
	RiskVascular    = "vascular_risk"
)

// Utilization and quality metric names.
const (
	UtilEDVisits90d          = "ed_visits_90d"
	UtilInpatientAdmits12m   = "inpatient_admissions_12m"
	UtilWoundVisits30d       = "wound_visits_30d"
	UtilTotalEncounters12m   = "total_encounters_12m"
	QualityHbA1cLatest       = "hba1c_latest"
	QualityWoundAreaReduced  = "wound_area_reduction_pct"
	QualityDaysSinceAssessed = "days_since_last_assessment"
)

// Snapshot is the per-request aggregate of facts about one subject. It is
// built fresh by Builder and must be treated as read-only afterwards.
type Snapshot struct {
	SubjectID    string                  `json:"subject_id"`
	BuiltAt      time.Time               `json:"built_at"`
	Limited      bool                    `json:"limited"`
	Partial      bool                    `json:"partial"`
	Demographics Demographics            `json:"demographics"`
	Conditions   []ClinicalFact          `json:"conditions"`
	Measurements []ClinicalFact          `json:"measurements"`
	Wounds       []Wound                 `json:"wounds"`
	Risk         map[string]float64      `json:"risk"`
	CareGaps     map[string][]CareGap    `json:"care_gaps"`
	Payer        PayerInfo               `json:"payer"`
	Quality      map[string]float64      `json:"quality"`
	Utilization  map[string]float64      `json:"utilization"`
	Sources      map[string]SourceStatus `json:"sources"`
}

type Demographics struct {
	Age       int       `json:"age"`
	Gender    string    `json:"gender"`
	BirthDate time.Time `json:"birth_date"`
}

// ClinicalFact is a condition or a measurement in a uniform shape.
type ClinicalFact struct {
	Code     string    `json:"code"`
	Display  string    `json:"display,omitempty"`
	Category string    `json:"category"`
	Severity string    `json:"severity,omitempty"`
	Value    float64   `json:"value,omitempty"`
	Unit     string    `json:"unit,omitempty"`
	Date     time.Time `json:"date"`
}

// Wound is the latest assessment of one wound plus its earlier baseline area.
type Wound struct {
	ID            string    `json:"id"`
	Type          string    `json:"type"`
	Location      string    `json:"location"`
	LengthCm      float64   `json:"length_cm"`
	WidthCm       float64   `json:"width_cm"`
	DepthCm       float64   `json:"depth_cm"`
	Exudate       string    `json:"exudate,omitempty"`
	HealingStatus string    `json:"healing_status"`
	Infected      bool      `json:"infected"`
	OnsetDate     time.Time `json:"onset_date"`
	AssessedAt    time.Time `json:"assessed_at"`
	BaselineArea  float64   `json:"baseline_area_cm2,omitempty"`
	Assessments   int       `json:"assessments"`
}

// AreaCm2 is length x width.
func (w Wound) AreaCm2() float64 {
	return w.LengthCm * w.WidthCm
}

// DurationDays counts whole days since onset, falling back to the assessment date.
func (w Wound) DurationDays(now time.Time) int {
	start := w.OnsetDate
	if start.IsZero() {
		start = w.AssessedAt
	}
	if start.IsZero() || now.Before(start) {
		return 0
	}
	return int(now.Sub(start).Hours() / 24)
}

// Open reports whether the wound has not healed.
func (w Wound) Open() bool {
	return w.HealingStatus != "healed"
}

type CareGap struct {
	Type        string `json:"type"`
	Code        string `json:"code"`
	Description string `json:"description"`
}

type PayerInfo struct {
	PrimaryName     string         `json:"primary_name"`
	PrimaryPlanType string         `json:"primary_plan_type"`
	Coverages       []emr.Coverage `json:"coverages"`
}

// Minimal returns the limited-data snapshot used when a build cannot proceed.
func Minimal(subjectID string, builtAt time.Time) Snapshot {
	return Snapshot{
		SubjectID:   subjectID,
		BuiltAt:     builtAt,
		Limited:     true,
		Risk:        map[string]float64{},
		CareGaps:    map[string][]CareGap{},
		Quality:     map[string]float64{},
		Utilization: map[string]float64{},
		Sources:     map[string]SourceStatus{},
	}
}

// PrimaryWound returns the largest open wound.
func (s Snapshot) PrimaryWound() (Wound, bool) {
	var (
		best  Wound
		found bool
	)
	for _, w := range s.Wounds {
		if !w.Open() {
			continue
		}
		if !found || w.AreaCm2() > best.AreaCm2() {
			best = w
			found = true
		}
	}
	return best, found
}

// OpenWounds returns wounds that are not healed.
func (s Snapshot) OpenWounds() []Wound {
	out := make([]Wound, 0, len(s.Wounds))
	for _, w := range s.Wounds {
		if w.Open() {
			out = append(out, w)
		}
	}
	return out
}

// MaxRisk returns the highest risk score and its metric name.
func (s Snapshot) MaxRisk() (string, float64) {
	names := make([]string, 0, len(s.Risk))
	for name := range s.Risk {
		names = append(names, name)
	}
	sort.Strings(names)
	var (
		bestName  string
		bestScore float64
	)
	for _, name := range names {
		if s.Risk[name] > bestScore {
			bestName, bestScore = name, s.Risk[name]
		}
	}
	return bestName, bestScore
}

// RiskLevel buckets the highest risk score into high, moderate or low.
func (s Snapshot) RiskLevel() string {
	_, score := s.MaxRisk()
	switch {
	case score >= 0.7:
		return "high"
	case score >= 0.4:
		return "moderate"
	default:
		return "low"
	}
}

// HasCategory reports whether any condition carries the category.
func (s Snapshot) HasCategory(categories ...string) bool {
	for _, c := range s.Conditions {
		for _, want := range categories {
			if c.Category == want {
				return true
			}
		}
	}
	return false
}

// GapCount returns the number of gaps in a bucket.
func (s Snapshot) GapCount(gapType string) int {
	return len(s.CareGaps[gapType])
}

// Digest is the hex SHA-256 of the snapshot's JSON form with BuiltAt cleared,
// so two builds over identical data produce the same digest.
func (s Snapshot) Digest() string {
	s.BuiltAt = time.Time{}
	raw, err := json.Marshal(s)
	if err != nil {
		return ""
	}
	sum := sha256.Sum256(raw)
	return hex.EncodeToString(sum[:])
}

func clamp01(v float64) float64 {
	if math.IsNaN(v) {
		return 0
	}
	return math.Max(0, math.Min(1, v))
}
