package emr

import "strings"

// icd10Categories maps ICD-10 prefixes to the clinical categories used by rules.
// Longer prefixes are listed first so the most specific match wins.
var icd10Categories = []struct {
	prefix   string
	category string
}{
	{"E11.62", "diabetic_foot_ulcer"},
	{"E08", "diabetes"},
	{"E09", "diabetes"},
	{"E10", "diabetes"},
	{"E11", "diabetes"},
	{"E13", "diabetes"},
	{"L89", "pressure_ulcer"},
	{"L97", "chronic_ulcer"},
	{"L98.4", "chronic_ulcer"},
	{"I83", "venous_insufficiency"},
	{"I87.2", "venous_insufficiency"},
	{"I70", "peripheral_arterial_disease"},
	{"I73.9", "peripheral_arterial_disease"},
	{"L03", "cellulitis"},
	{"M86", "osteomyelitis"},
	{"I50", "heart_failure"},
	{"N18", "chronic_kidney_disease"},
	{"E66", "obesity"},
	{"D84", "immunocompromised"},
	{"Z79.52", "immunocompromised"},
}

// CategoryForCode derives a clinical category from an ICD-10 code. Unknown codes
// return an empty string.
func CategoryForCode(code string) string {
	code = strings.ToUpper(strings.TrimSpace(code))
	if code == "" {
		return ""
	}
	for _, entry := range icd10Categories {
		if strings.HasPrefix(code, entry.prefix) {
			return entry.category
		}
	}
	return ""
}

// LOINC codes for observations the context builder understands.
const (
	LOINCHbA1c           = "4548-4"
	LOINCWBC             = "6690-2"
	LOINCAnkleBrachial   = "76497-7"
	LOINCAlbumin         = "1751-7"
	LOINCBMI             = "39156-5"
	LOINCFootExam        = "91161-0"
	LOINCWoundLength     = "39126-8"
	LOINCWoundWidth      = "39125-0"
	LOINCWoundDepth      = "39127-6"
	LOINCCRP             = "1988-5"

	// CategoryWoundAssessment is the observation category carrying wound measurements.
	CategoryWoundAssessment = "wound-assessment"
)
