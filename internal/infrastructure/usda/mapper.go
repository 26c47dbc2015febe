package usda

import (
	"strconv"
	"strings"

	"github.com/foodbase/etl/internal/domain"
)

// descriptiveFields are the metadata keys copied into FoodMatch fields rather than Metadata
var descriptiveFields = map[string]bool{
	domain.ColRecordID:    true,
	domain.ColProductID:   true,
	domain.ColName:        true,
	domain.ColServingSize: true,
	domain.ColIngredients: true,
}

// MapToFoodMatch converts a vector store hit carrying food table metadata into a FoodMatch
func MapToFoodMatch(hit domain.VectorMatch) domain.FoodMatch {
	match := domain.FoodMatch{
		RecordID:    hit.Metadata[domain.ColRecordID],
		ProductID:   hit.Metadata[domain.ColProductID],
		Name:        hit.Metadata[domain.ColName],
		ServingSize: hit.Metadata[domain.ColServingSize],
		Ingredients: hit.Metadata[domain.ColIngredients],
		Macros:      extractMacros(hit.Metadata),
		Score:       hit.Score,
	}
	if match.RecordID == "" {
		match.RecordID = hit.ID
	}
	if match.Name == "" {
		match.Name = hit.Text
	}

	for k, v := range hit.Metadata {
		if descriptiveFields[k] {
			continue
		}
		if match.Metadata == nil {
			match.Metadata = make(map[string]string)
		}
		match.Metadata[k] = v
	}
	return match
}

// extractMacros extracts the key macronutrients from food table metadata
func extractMacros(metadata map[string]string) domain.Macros {
	return domain.Macros{
		Calories:      FindNutrientValue(metadata, domain.LabelEnergyKcal),
		Protein:       FindNutrientValue(metadata, domain.LabelProtein),
		Carbohydrates: FindNutrientValue(metadata, domain.LabelCarbohydrate),
		TotalFat:      FindNutrientValue(metadata, domain.LabelTotalFat),
	}
}

// FindNutrientValue finds a nutrient value by column label. Labels match
// regardless of whitespace, so "ENERGY (KCAL)" finds a column written as
// "ENERGY(KCAL)". Missing or non-numeric values return nil.
func FindNutrientValue(metadata map[string]string, label string) *float64 {
	want := canonicalLabel(label)
	for k, raw := range metadata {
		if canonicalLabel(k) != want {
			continue
		}
		v, err := strconv.ParseFloat(strings.TrimSpace(raw), 64)
		if err != nil {
			return nil
		}
		return &v
	}
	return nil
}

func canonicalLabel(label string) string {
	return strings.ToUpper(strings.Join(strings.Fields(label), ""))
}
