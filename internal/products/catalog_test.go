package products

import "testing"

func skus(ps []Product) []string {
	out := make([]string, 0, len(ps))
	for _, p := range ps {
		out = append(out, p.SKU)
	}
	return out
}

func TestRecommend(t *testing.T) {
	catalog := DefaultCatalog()
	tests := []struct {
		name    string
		profile Profile
		want    []string
	}{
		{
			name:    "infected heavy dfu",
			profile: Profile{WoundType: "diabetic_foot_ulcer", AreaCm2: 12, Exudate: "heavy", Infected: true, Categories: []string{"antimicrobial_dressing", "alginate", "offloading"}},
			want:    []string{"AG-FOAM", "PHMB-GAUZE", "ALG-CA-4", "TCC-KIT", "OFF-BOOT"},
		},
		{
			name:    "antimicrobials withheld when not infected",
			profile: Profile{WoundType: "pressure_ulcer", AreaCm2: 4, Exudate: "light", Categories: []string{"antimicrobial_dressing", "foam"}},
			want:    []string{"FOAM-4X4"},
		},
		{
			name:    "offloading only for dfu",
			profile: Profile{WoundType: "venous_leg_ulcer", Categories: []string{"offloading", "compression"}},
			want:    []string{"COMP-4L"},
		},
		{
			name:    "npwt needs a large wound",
			profile: Profile{WoundType: "surgical_wound", AreaCm2: 6, Categories: []string{"npwt"}},
			want:    nil,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := skus(catalog.Recommend(tt.profile))
			if len(got) != len(tt.want) {
				t.Fatalf("Recommend() = %v, want %v", got, tt.want)
			}
			for i := range got {
				if got[i] != tt.want[i] {
					t.Fatalf("Recommend() = %v, want %v", got, tt.want)
				}
			}
		})
	}
}

func TestRecommendIsDeterministic(t *testing.T) {
	catalog := DefaultCatalog()
	p := Profile{WoundType: "diabetic_foot_ulcer", AreaCm2: 20, Exudate: "moderate"}
	first := skus(catalog.Recommend(p))
	for i := 0; i < 5; i++ {
		again := skus(catalog.Recommend(p))
		if len(again) != len(first) {
			t.Fatalf("non-deterministic result: %v vs %v", again, first)
		}
		for j := range again {
			if again[j] != first[j] {
				t.Fatalf("non-deterministic result: %v vs %v", again, first)
			}
		}
	}
}
