package emr

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned when the data source has no record of the subject.
var ErrNotFound = errors.New("emr: not found")

// ClinicalDataProvider is the read-only interface to a patient's clinical record.
type ClinicalDataProvider interface {
	// GetPatient retrieves demographics for a patient
	GetPatient(ctx context.Context, patientID string) (*Patient, error)

	// ListConditions retrieves active and historical diagnoses
	ListConditions(ctx context.Context, patientID string) ([]Condition, error)

	// ListObservations retrieves labs, vitals and other measurements
	ListObservations(ctx context.Context, patientID string) ([]Observation, error)

	// ListEncounters retrieves visits and admissions
	ListEncounters(ctx context.Context, patientID string) ([]Encounter, error)

	// ListWoundAssessments retrieves structured wound measurements
	ListWoundAssessments(ctx context.Context, patientID string) ([]WoundAssessment, error)
}

// CoverageProvider is the read-only interface to payer/coverage data.
type CoverageProvider interface {
	ListCoverage(ctx context.Context, patientID string) ([]Coverage, error)
}

// Patient represents a patient's demographic record
type Patient struct {
	ID        string    `json:"id"`
	FirstName string    `json:"first_name"`
	LastName  string    `json:"last_name"`
	BirthDate time.Time `json:"birth_date"`
	Gender    string    `json:"gender"` // "male", "female", "other", "unknown"
}

// Condition represents a diagnosis on the patient's problem list
type Condition struct {
	Code           string    `json:"code"`   // ICD-10 code, e.g. "E11.621"
	System         string    `json:"system"` // code system URL
	Display        string    `json:"display"`
	Category       string    `json:"category"` // e.g. "diabetes", "pressure_ulcer"
	Severity       string    `json:"severity"` // "mild", "moderate", "severe"
	ClinicalStatus string    `json:"clinical_status"`
	OnsetDate      time.Time `json:"onset_date"`
}

// Observation represents a single numeric measurement
type Observation struct {
	Code        string    `json:"code"` // LOINC code
	Display     string    `json:"display"`
	Category    string    `json:"category"` // "laboratory", "vital-signs", "exam"
	Value       float64   `json:"value"`
	Unit        string    `json:"unit"`
	EffectiveAt time.Time `json:"effective_at"`
}

// Encounter represents a visit or admission
type Encounter struct {
	ID     string    `json:"id"`
	Class  string    `json:"class"` // "ambulatory", "emergency", "inpatient", "home"
	Start  time.Time `json:"start"`
	End    time.Time `json:"end"`
	Reason string    `json:"reason"`
}

// WoundAssessment represents one measurement of a wound
type WoundAssessment struct {
	ID            string    `json:"id"`
	WoundType     string    `json:"wound_type"` // "diabetic_foot_ulcer", "venous_leg_ulcer", "pressure_ulcer", ...
	Location      string    `json:"location"`
	LengthCm      float64   `json:"length_cm"`
	WidthCm       float64   `json:"width_cm"`
	DepthCm       float64   `json:"depth_cm"`
	Exudate       string    `json:"exudate"` // "none", "light", "moderate", "heavy"
	OnsetDate     time.Time `json:"onset_date"`
	AssessedAt    time.Time `json:"assessed_at"`
	HealingStatus string    `json:"healing_status"` // "improving", "stalled", "deteriorating", "healed"
	Infected      bool      `json:"infected"`
}

// Coverage represents an insurance coverage record
type Coverage struct {
	PayerID     string    `json:"payer_id"`
	PayerName   string    `json:"payer_name"`
	PlanType    string    `json:"plan_type"` // "medicare", "medicare_advantage", "medicaid", "commercial"
	Status      string    `json:"status"`
	Primary     bool      `json:"primary"`
	PeriodStart time.Time `json:"period_start"`
	PeriodEnd   time.Time `json:"period_end"`
}

// Active reports whether the coverage is active at t.
func (c Coverage) Active(t time.Time) bool {
	if c.Status != "" && c.Status != "active" {
		return false
	}
	if !c.PeriodStart.IsZero() && t.Before(c.PeriodStart) {
		return false
	}
	if !c.PeriodEnd.IsZero() && t.After(c.PeriodEnd) {
		return false
	}
	return true
}
