package rules

import (
	"sort"
	"strings"

	"github.com/wolfman30/woundcare-opportunities/internal/patientctx"
)

var urgencyByRisk = map[string]struct {
	label string
	days  int
}{
	"high":     {"urgent", 2},
	"moderate": {"soon", 7},
	"low":      {"routine", 30},
}

var specialtyByWound = map[string]string{
	"diabetic_foot_ulcer": "podiatry",
	"venous_leg_ulcer":    "vascular_surgery",
	"arterial_ulcer":      "vascular_surgery",
	"pressure_ulcer":      "wound_care",
	"surgical_wound":      "general_surgery",
}

// buildAction copies the template and fills in details derived from the
// snapshot. Template params take precedence over derived values.
func buildAction(tmpl ActionTemplate, snap patientctx.Snapshot, c Candidate) Action {
	details := make(map[string]any, len(tmpl.Params)+3)
	primary, hasWound := snap.PrimaryWound()

	switch tmpl.Type {
	case ActionOrderProduct:
		categories := productCategories(primary, hasWound)
		if extra, ok := tmpl.Params["product_categories"]; ok {
			categories = mergeCategories(toStrings(extra), categories)
		}
		details["product_categories"] = categories
		if hasWound {
			details["wound_type"] = primary.Type
			details["wound_area_cm2"] = primary.AreaCm2()
		}
	case ActionScheduleAssessment:
		u := urgencyByRisk[snap.RiskLevel()]
		details["urgency"] = u.label
		details["within_days"] = u.days
	case ActionReferSpecialist:
		specialty := "wound_care"
		if hasWound {
			if s, ok := specialtyByWound[primary.Type]; ok {
				specialty = s
			}
		}
		details["specialty"] = specialty
		details["reason"] = strings.Join(c.Evidence, "; ")
	case ActionUpdateCarePlan:
		details["focus_areas"] = focusAreas(snap)
	case ActionEnrollProgram:
		details["program_id"] = c.Type
	case ActionDocumentGap:
		var codes []string
		gapType, _ := tmpl.Params["gap_type"].(string)
		for bucket, gaps := range snap.CareGaps {
			if gapType != "" && bucket != gapType {
				continue
			}
			for _, g := range gaps {
				codes = append(codes, g.Code)
			}
		}
		sort.Strings(codes)
		details["gaps"] = codes
	}

	for k, v := range tmpl.Params {
		if k == "product_categories" {
			continue
		}
		details[k] = v
	}

	return Action{
		Type:        tmpl.Type,
		Priority:    tmpl.Priority,
		Description: tmpl.Description,
		Details:     details,
	}
}

func productCategories(w patientctx.Wound, ok bool) []string {
	if !ok {
		return []string{"foam"}
	}
	var out []string
	if w.Infected {
		out = append(out, "antimicrobial_dressing")
	}
	switch w.Exudate {
	case "heavy":
		out = append(out, "alginate")
	case "moderate":
		out = append(out, "foam")
	case "light", "none":
		out = append(out, "hydrocolloid")
	}
	switch w.Type {
	case "diabetic_foot_ulcer":
		out = append(out, "offloading")
	case "venous_leg_ulcer":
		out = append(out, "compression")
	}
	if len(out) == 0 {
		out = append(out, "foam")
	}
	return out
}

func focusAreas(snap patientctx.Snapshot) []string {
	var out []string
	for _, gaps := range snap.CareGaps {
		for _, g := range gaps {
			out = append(out, g.Code)
		}
	}
	for name, score := range snap.Risk {
		if score >= 0.5 {
			out = append(out, name)
		}
	}
	sort.Strings(out)
	return out
}

// mergeCategories returns first followed by any entries of second not already present.
func mergeCategories(first, second []string) []string {
	seen := make(map[string]bool, len(first)+len(second))
	out := make([]string, 0, len(first)+len(second))
	for _, list := range [][]string{first, second} {
		for _, v := range list {
			if !seen[v] {
				seen[v] = true
				out = append(out, v)
			}
		}
	}
	return out
}

func toStrings(v any) []string {
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
