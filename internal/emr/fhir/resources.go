package fhir

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/wolfman30/woundcare-opportunities/internal/emr"
)

// FHIR R4 resource models, limited to the fields the context builder reads.

// Bundle represents a FHIR Bundle resource (search results container)
type Bundle struct {
	ResourceType string `json:"resourceType"`
	Type         string `json:"type"`
	Total        int    `json:"total"`
	Entry        []struct {
		Resource json.RawMessage `json:"resource"`
	} `json:"entry"`
}

// CodeableConcept represents a coded value with optional text
type CodeableConcept struct {
	Coding []Coding `json:"coding,omitempty"`
	Text   string   `json:"text,omitempty"`
}

// Coding represents a specific code from a code system
type Coding struct {
	System  string `json:"system,omitempty"`
	Code    string `json:"code,omitempty"`
	Display string `json:"display,omitempty"`
}

// Reference represents a reference to another FHIR resource
type Reference struct {
	Reference string `json:"reference,omitempty"`
	Display   string `json:"display,omitempty"`
}

// Period is a start/end datetime pair
type Period struct {
	Start string `json:"start,omitempty"`
	End   string `json:"end,omitempty"`
}

// Quantity is a measured amount
type Quantity struct {
	Value *float64 `json:"value,omitempty"`
	Unit  string   `json:"unit,omitempty"`
}

type HumanName struct {
	Family string   `json:"family,omitempty"`
	Given  []string `json:"given,omitempty"`
}

type Patient struct {
	ResourceType string      `json:"resourceType"`
	ID           string      `json:"id"`
	Name         []HumanName `json:"name,omitempty"`
	Gender       string      `json:"gender,omitempty"`
	BirthDate    string      `json:"birthDate,omitempty"` // YYYY-MM-DD
}

type Condition struct {
	ResourceType   string            `json:"resourceType"`
	ID             string            `json:"id"`
	ClinicalStatus *CodeableConcept  `json:"clinicalStatus,omitempty"`
	Category       []CodeableConcept `json:"category,omitempty"`
	Severity       *CodeableConcept  `json:"severity,omitempty"`
	Code           CodeableConcept   `json:"code"`
	OnsetDateTime  string            `json:"onsetDateTime,omitempty"`
}

type ObservationComponent struct {
	Code                 CodeableConcept  `json:"code"`
	ValueQuantity        *Quantity        `json:"valueQuantity,omitempty"`
	ValueString          string           `json:"valueString,omitempty"`
	ValueCodeableConcept *CodeableConcept `json:"valueCodeableConcept,omitempty"`
	ValueBoolean         *bool            `json:"valueBoolean,omitempty"`
	ValueDateTime        string           `json:"valueDateTime,omitempty"`
}

type Observation struct {
	ResourceType      string                 `json:"resourceType"`
	ID                string                 `json:"id"`
	Category          []CodeableConcept      `json:"category,omitempty"`
	Code              CodeableConcept        `json:"code"`
	BodySite          *CodeableConcept       `json:"bodySite,omitempty"`
	EffectiveDateTime string                 `json:"effectiveDateTime,omitempty"`
	ValueQuantity     *Quantity              `json:"valueQuantity,omitempty"`
	Component         []ObservationComponent `json:"component,omitempty"`
}

type Encounter struct {
	ResourceType string            `json:"resourceType"`
	ID           string            `json:"id"`
	Class        Coding            `json:"class"`
	Period       Period            `json:"period"`
	ReasonCode   []CodeableConcept `json:"reasonCode,omitempty"`
}

type Coverage struct {
	ResourceType string           `json:"resourceType"`
	ID           string           `json:"id"`
	Status       string           `json:"status"`
	Type         *CodeableConcept `json:"type,omitempty"`
	Payor        []Reference      `json:"payor,omitempty"`
	Period       Period           `json:"period"`
	Order        int              `json:"order,omitempty"`
}

// Component codes used on wound-assessment observations besides the LOINC size codes.
const (
	componentWoundType     = "wound-type"
	componentHealingStatus = "healing-status"
	componentExudate       = "exudate"
	componentInfected      = "infected"
	componentOnset         = "wound-onset"
)

func parsePatient(p Patient) *emr.Patient {
	out := &emr.Patient{
		ID:        p.ID,
		Gender:    p.Gender,
		BirthDate: parseDate(p.BirthDate),
	}
	if len(p.Name) > 0 {
		out.LastName = p.Name[0].Family
		if len(p.Name[0].Given) > 0 {
			out.FirstName = p.Name[0].Given[0]
		}
	}
	return out
}

func parseCondition(c Condition) emr.Condition {
	code := firstCoding(c.Code)
	out := emr.Condition{
		Code:      code.Code,
		System:    code.System,
		Display:   firstNonEmpty(code.Display, c.Code.Text),
		Category:  emr.CategoryForCode(code.Code),
		OnsetDate: parseDate(c.OnsetDateTime),
	}
	if c.Severity != nil {
		out.Severity = strings.ToLower(firstNonEmpty(firstCoding(*c.Severity).Display, c.Severity.Text))
	}
	if c.ClinicalStatus != nil {
		out.ClinicalStatus = firstCoding(*c.ClinicalStatus).Code
	}
	return out
}

func parseObservation(o Observation) (emr.Observation, bool) {
	if o.ValueQuantity == nil || o.ValueQuantity.Value == nil {
		return emr.Observation{}, false
	}
	code := firstCoding(o.Code)
	category := ""
	if len(o.Category) > 0 {
		category = firstCoding(o.Category[0]).Code
	}
	return emr.Observation{
		Code:        code.Code,
		Display:     firstNonEmpty(code.Display, o.Code.Text),
		Category:    category,
		Value:       *o.ValueQuantity.Value,
		Unit:        o.ValueQuantity.Unit,
		EffectiveAt: parseDate(o.EffectiveDateTime),
	}, true
}

func parseWoundAssessment(o Observation) emr.WoundAssessment {
	out := emr.WoundAssessment{
		ID:         o.ID,
		AssessedAt: parseDate(o.EffectiveDateTime),
	}
	if o.BodySite != nil {
		out.Location = firstNonEmpty(o.BodySite.Text, firstCoding(*o.BodySite).Display)
	}
	for _, comp := range o.Component {
		switch firstCoding(comp.Code).Code {
		case emr.LOINCWoundLength:
			out.LengthCm = quantityValue(comp.ValueQuantity)
		case emr.LOINCWoundWidth:
			out.WidthCm = quantityValue(comp.ValueQuantity)
		case emr.LOINCWoundDepth:
			out.DepthCm = quantityValue(comp.ValueQuantity)
		case componentWoundType:
			out.WoundType = componentText(comp)
		case componentHealingStatus:
			out.HealingStatus = componentText(comp)
		case componentExudate:
			out.Exudate = componentText(comp)
		case componentInfected:
			out.Infected = comp.ValueBoolean != nil && *comp.ValueBoolean
		case componentOnset:
			out.OnsetDate = parseDate(comp.ValueDateTime)
		}
	}
	return out
}

func parseEncounter(e Encounter) emr.Encounter {
	out := emr.Encounter{
		ID:    e.ID,
		Class: normalizeEncounterClass(e.Class.Code),
		Start: parseDate(e.Period.Start),
		End:   parseDate(e.Period.End),
	}
	if len(e.ReasonCode) > 0 {
		out.Reason = firstNonEmpty(e.ReasonCode[0].Text, firstCoding(e.ReasonCode[0]).Display)
	}
	return out
}

func parseCoverage(c Coverage) emr.Coverage {
	out := emr.Coverage{
		Status:      c.Status,
		Primary:     c.Order <= 1,
		PeriodStart: parseDate(c.Period.Start),
		PeriodEnd:   parseDate(c.Period.End),
	}
	if len(c.Payor) > 0 {
		out.PayerName = c.Payor[0].Display
		out.PayerID = extractIDFromReference(c.Payor[0].Reference)
	}
	if c.Type != nil {
		out.PlanType = strings.ToLower(firstNonEmpty(firstCoding(*c.Type).Code, c.Type.Text))
	}
	return out
}

// normalizeEncounterClass maps HL7 v3 ActCode values onto the coarse classes used downstream.
func normalizeEncounterClass(code string) string {
	switch strings.ToUpper(code) {
	case "EMER":
		return "emergency"
	case "IMP", "ACUTE", "NONAC":
		return "inpatient"
	case "HH":
		return "home"
	case "AMB", "VR":
		return "ambulatory"
	default:
		return strings.ToLower(code)
	}
}

func componentText(comp ObservationComponent) string {
	if comp.ValueString != "" {
		return comp.ValueString
	}
	if comp.ValueCodeableConcept != nil {
		return firstNonEmpty(firstCoding(*comp.ValueCodeableConcept).Code, comp.ValueCodeableConcept.Text)
	}
	return ""
}

func quantityValue(q *Quantity) float64 {
	if q == nil || q.Value == nil {
		return 0
	}
	return *q.Value
}

func firstCoding(cc CodeableConcept) Coding {
	if len(cc.Coding) == 0 {
		return Coding{}
	}
	return cc.Coding[0]
}

// parseDate accepts FHIR date, dateTime and instant values.
func parseDate(value string) time.Time {
	value = strings.TrimSpace(value)
	if value == "" {
		return time.Time{}
	}
	for _, layout := range []string{time.RFC3339Nano, time.RFC3339, "2006-01-02T15:04:05", "2006-01-02", "2006-01", "2006"} {
		if t, err := time.Parse(layout, value); err == nil {
			return t.UTC()
		}
	}
	return time.Time{}
}

// extractIDFromReference extracts the ID from a FHIR reference like "Organization/123"
func extractIDFromReference(reference string) string {
	if idx := strings.LastIndex(reference, "/"); idx >= 0 {
		return reference[idx+1:]
	}
	return reference
}

func firstNonEmpty(values ...string) string {
	for _, value := range values {
		if strings.TrimSpace(value) != "" {
			return value
		}
	}
	return ""
}
