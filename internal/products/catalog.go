package products

import (
	"sort"
	"strings"
)

// Profile is the clinical picture a recommendation is made for.
type Profile struct {
	WoundType  string
	AreaCm2    float64
	Exudate    string
	Infected   bool
	Categories []string
}

// Product is an orderable wound-care item.
type Product struct {
	SKU         string   `json:"sku"`
	Name        string   `json:"name"`
	Category    string   `json:"category"`
	HCPCS       string   `json:"hcpcs,omitempty"`
	WoundTypes  []string `json:"-"`
	MinAreaCm2  float64  `json:"-"`
	MaxAreaCm2  float64  `json:"-"`
	Exudate     []string `json:"-"`
	ForInfected bool     `json:"-"`
	Rank        int      `json:"-"`
}

// Recommender returns candidate products for a profile.
type Recommender interface {
	Recommend(Profile) []Product
}

// StaticCatalog is an in-process product list.
type StaticCatalog struct {
	products []Product
}

func NewStaticCatalog(products []Product) *StaticCatalog {
	return &StaticCatalog{products: products}
}

// DefaultCatalog returns the bundled wound-care formulary.
func DefaultCatalog() *StaticCatalog {
	return NewStaticCatalog([]Product{
		{SKU: "FOAM-4X4", Name: "Silicone bordered foam 4x4", Category: "foam", HCPCS: "A6212", MaxAreaCm2: 16, Exudate: []string{"light", "moderate"}, Rank: 1},
		{SKU: "FOAM-6X6", Name: "Silicone bordered foam 6x6", Category: "foam", HCPCS: "A6213", MinAreaCm2: 16, MaxAreaCm2: 48, Exudate: []string{"light", "moderate"}, Rank: 2},
		{SKU: "ALG-CA-4", Name: "Calcium alginate 4x4", Category: "alginate", HCPCS: "A6196", Exudate: []string{"moderate", "heavy"}, Rank: 1},
		{SKU: "HCOL-4", Name: "Hydrocolloid 4x4", Category: "hydrocolloid", HCPCS: "A6234", MaxAreaCm2: 16, Exudate: []string{"none", "light"}, Rank: 1},
		{SKU: "COLL-MTX", Name: "Collagen wound matrix", Category: "collagen", HCPCS: "A6021", Rank: 1},
		{SKU: "AG-FOAM", Name: "Silver antimicrobial foam", Category: "antimicrobial_dressing", HCPCS: "A6212", ForInfected: true, Rank: 1},
		{SKU: "PHMB-GAUZE", Name: "PHMB antimicrobial gauze", Category: "antimicrobial_dressing", HCPCS: "A6222", ForInfected: true, Rank: 2},
		{SKU: "NPWT-KIT", Name: "Negative pressure wound therapy kit", Category: "npwt", HCPCS: "E2402", MinAreaCm2: 10, Rank: 1},
		{SKU: "COMP-4L", Name: "Four-layer compression system", Category: "compression", HCPCS: "A6545", WoundTypes: []string{"venous_leg_ulcer"}, Rank: 1},
		{SKU: "TCC-KIT", Name: "Total contact cast kit", Category: "offloading", HCPCS: "L4631", WoundTypes: []string{"diabetic_foot_ulcer"}, Rank: 1},
		{SKU: "OFF-BOOT", Name: "Removable offloading walker", Category: "offloading", HCPCS: "L4361", WoundTypes: []string{"diabetic_foot_ulcer"}, Rank: 2},
	})
}

// Recommend filters by category (when given), wound type, area, exudate and
// infection, ordered by the profile's category order then rank then SKU.
func (c *StaticCatalog) Recommend(p Profile) []Product {
	categoryOrder := make(map[string]int, len(p.Categories))
	for i, cat := range p.Categories {
		if _, ok := categoryOrder[cat]; !ok {
			categoryOrder[cat] = i
		}
	}

	var out []Product
	for _, prod := range c.products {
		if len(categoryOrder) > 0 {
			if _, ok := categoryOrder[prod.Category]; !ok {
				continue
			}
		}
		if !prod.fits(p) {
			continue
		}
		out = append(out, prod)
	}
	sort.SliceStable(out, func(i, j int) bool {
		ci, cj := categoryOrder[out[i].Category], categoryOrder[out[j].Category]
		if ci != cj {
			return ci < cj
		}
		if out[i].Rank != out[j].Rank {
			return out[i].Rank < out[j].Rank
		}
		return out[i].SKU < out[j].SKU
	})
	return out
}

func (prod Product) fits(p Profile) bool {
	if len(prod.WoundTypes) > 0 && !containsFold(prod.WoundTypes, p.WoundType) {
		return false
	}
	if prod.ForInfected && !p.Infected {
		return false
	}
	if p.AreaCm2 > 0 {
		if prod.MinAreaCm2 > 0 && p.AreaCm2 < prod.MinAreaCm2 {
			return false
		}
		if prod.MaxAreaCm2 > 0 && p.AreaCm2 > prod.MaxAreaCm2 {
			return false
		}
	}
	if len(prod.Exudate) > 0 && p.Exudate != "" && !containsFold(prod.Exudate, p.Exudate) {
		return false
	}
	return true
}

func containsFold(list []string, v string) bool {
	for _, item := range list {
		if strings.EqualFold(item, v) {
			return true
		}
	}
	return false
}
