package classifier

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"shopdesk/internal/types"
)

// Floor scores. The general fallback's floor is higher than the other
// categories' floors so that a message matching nothing lands on general,
// while any real phrase match (or sticky bonus) outranks it.
const (
	generalFloor  = 0.05
	categoryFloor = 0.01
)

// DefaultTable returns the compiled-in phrase table. Phrases are curated for
// the retail support domain in English and Hungarian (the webshops served).
// Returned as a fresh slice so callers can't mutate the baked-in table.
func DefaultTable() []CategoryProfile {
	return []CategoryProfile{
		{
			Category: types.CategoryProductLookup,
			Floor:    categoryFloor,
			Phrases: []WeightedPhrase{
				{Text: "price", Weight: 0.8},
				{Text: "how much", Weight: 0.9},
				{Text: "in stock", Weight: 0.9},
				{Text: "available", Weight: 0.6},
				{Text: "product", Weight: 0.5},
				{Text: "spec", Weight: 0.4},
				{Text: "ár", Weight: 0.8},
				{Text: "mennyibe kerül", Weight: 0.9},
				{Text: "termék", Weight: 0.5},
				{Text: "raktáron", Weight: 0.9},
				{Text: "kapható", Weight: 0.6},
			},
		},
		{
			Category: types.CategoryOrderStatus,
			Floor:    categoryFloor,
			Phrases: []WeightedPhrase{
				{Text: "order", Weight: 0.7},
				{Text: "where is my", Weight: 0.8},
				{Text: "tracking", Weight: 0.9},
				{Text: "shipment", Weight: 0.8},
				{Text: "delivery", Weight: 0.7},
				{Text: "shipped", Weight: 0.7},
				{Text: "rendelés", Weight: 0.9},
				{Text: "hol a", Weight: 0.5},
				{Text: "csomag", Weight: 0.8},
				{Text: "szállítás", Weight: 0.7},
				{Text: "futár", Weight: 0.7},
			},
		},
		{
			Category: types.CategoryRecommendations,
			Floor:    categoryFloor,
			Phrases: []WeightedPhrase{
				{Text: "recommend", Weight: 0.9},
				{Text: "suggest", Weight: 0.8},
				{Text: "which one", Weight: 0.6},
				{Text: "best for", Weight: 0.7},
				{Text: "similar", Weight: 0.6},
				{Text: "ajánl", Weight: 0.9},
				{Text: "melyik", Weight: 0.6},
				{Text: "hasonló", Weight: 0.6},
			},
		},
		{
			Category: types.CategoryPromotions,
			Floor:    categoryFloor,
			Phrases: []WeightedPhrase{
				{Text: "discount", Weight: 0.9},
				{Text: "coupon", Weight: 0.9},
				{Text: "promo", Weight: 0.8},
				{Text: "sale", Weight: 0.7},
				{Text: "deal", Weight: 0.6},
				{Text: "voucher", Weight: 0.8},
				{Text: "kedvezmény", Weight: 0.9},
				{Text: "kupon", Weight: 0.9},
				{Text: "akció", Weight: 0.8},
			},
		},
		{
			Category: types.CategoryGeneral,
			Floor:    generalFloor,
			Phrases: []WeightedPhrase{
				{Text: "help", Weight: 0.5},
				{Text: "question", Weight: 0.4},
				{Text: "hello", Weight: 0.3},
				{Text: "hi ", Weight: 0.2},
				{Text: "segítség", Weight: 0.5},
				{Text: "kérdés", Weight: 0.4},
				{Text: "szia", Weight: 0.3},
			},
		},
	}
}

// tableFile is the YAML layout of a curated phrase table.
type tableFile struct {
	Categories []CategoryProfile `yaml:"categories"`
}

// LoadTable reads a curated phrase table from a YAML file. Profiles without
// an explicit floor get the standard category floor; the general category
// keeps its higher fallback floor.
func LoadTable(path string) ([]CategoryProfile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read phrase table: %w", err)
	}

	var tf tableFile
	if err := yaml.Unmarshal(data, &tf); err != nil {
		return nil, fmt.Errorf("failed to parse phrase table: %w", err)
	}
	if len(tf.Categories) == 0 {
		return nil, fmt.Errorf("phrase table %s defines no categories", path)
	}

	hasGeneral := false
	for i := range tf.Categories {
		p := &tf.Categories[i]
		if p.Category == "" {
			return nil, fmt.Errorf("phrase table %s has a profile without a category name", path)
		}
		if p.Category == types.CategoryGeneral {
			hasGeneral = true
			if p.Floor <= 0 {
				p.Floor = generalFloor
			}
		} else if p.Floor <= 0 {
			p.Floor = categoryFloor
		}
	}

	// The fallback must always be rankable.
	if !hasGeneral {
		tf.Categories = append(tf.Categories, CategoryProfile{
			Category: types.CategoryGeneral,
			Floor:    generalFloor,
		})
	}

	return tf.Categories, nil
}
