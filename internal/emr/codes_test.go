package emr

import "testing"

func TestCategoryForCode(t *testing.T) {
	tests := []struct {
		code string
		want string
	}{
		{"E11.621", "diabetic_foot_ulcer"},
		{"e11.9", "diabetes"},
		{"L89.154", "pressure_ulcer"},
		{"I83.009", "venous_insufficiency"},
		{"I70.234", "peripheral_arterial_disease"},
		{"Z00.00", ""},
		{"", ""},
	}
	for _, tt := range tests {
		t.Run(tt.code, func(t *testing.T) {
			if got := CategoryForCode(tt.code); got != tt.want {
				t.Fatalf("CategoryForCode(%q) = %q, want %q", tt.code, got, tt.want)
			}
		})
	}
}
