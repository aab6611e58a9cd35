package rules

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/wolfman30/woundcare-opportunities/internal/patientctx"
)

// Template variables available to rule descriptions.
const (
	VarPatientAge    = "patient_age"
	VarWoundType     = "wound_type"
	VarRiskLevel     = "risk_level"
	VarPayerName     = "payer_name"
	VarWoundArea     = "wound_area"
	VarWoundDuration = "wound_duration"
)

var placeholder = regexp.MustCompile(`\{\{\s*([a-z_]+)\s*\}\}`)

// RenderTemplate substitutes {{name}} placeholders from vars. Unknown
// placeholders are left untouched.
func RenderTemplate(tmpl string, vars map[string]string) string {
	return placeholder.ReplaceAllStringFunc(tmpl, func(m string) string {
		name := placeholder.FindStringSubmatch(m)[1]
		if v, ok := vars[name]; ok {
			return v
		}
		return m
	})
}

// TemplateVars derives the fixed variable map from a snapshot.
func TemplateVars(snap patientctx.Snapshot) map[string]string {
	vars := map[string]string{
		VarPatientAge:    "unknown",
		VarWoundType:     "wound",
		VarRiskLevel:     snap.RiskLevel(),
		VarPayerName:     "unknown payer",
		VarWoundArea:     "0.0",
		VarWoundDuration: "0",
	}
	if snap.Demographics.Age > 0 {
		vars[VarPatientAge] = strconv.Itoa(snap.Demographics.Age)
	}
	if snap.Payer.PrimaryName != "" {
		vars[VarPayerName] = snap.Payer.PrimaryName
	}
	if w, ok := snap.PrimaryWound(); ok {
		if w.Type != "" {
			vars[VarWoundType] = humanize(w.Type)
		}
		vars[VarWoundArea] = fmt.Sprintf("%.1f", w.AreaCm2())
		vars[VarWoundDuration] = strconv.Itoa(w.DurationDays(snap.BuiltAt))
	}
	return vars
}

func humanize(s string) string {
	return strings.ReplaceAll(s, "_", " ")
}
