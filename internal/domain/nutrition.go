package domain

import (
	"strconv"
	"strings"
)

// NutrientDefinition describes one nutrient of the USDA nutrient table
type NutrientDefinition struct {
	ID   OptionalID
	Name string
	Unit string
}

// Label returns the column label "<NAME> (<UNIT>)" identifying the nutrient
func (n NutrientDefinition) Label() string {
	return NutrientLabel(n.Name, n.Unit)
}

// NutrientLabel builds an upper-cased "<NAME> (<UNIT>)" label
func NutrientLabel(name, unit string) string {
	return strings.ToUpper(strings.TrimSpace(name)) + " (" + strings.ToUpper(strings.TrimSpace(unit)) + ")"
}

// UnmappedNutrientLabel is the column label used for a nutrient id with no definition
func UnmappedNutrientLabel(nutrientID int64) string {
	return strconv.FormatInt(nutrientID, 10)
}

// LabelUnit extracts the unit token from the trailing parenthetical of a label,
// e.g. "PROTEIN (G)" -> "G". Labels without a parenthetical yield the whole label.
func LabelUnit(label string) string {
	unit := label
	if i := strings.LastIndex(label, "("); i >= 0 {
		unit = label[i+1:]
	}
	return strings.TrimSpace(strings.ReplaceAll(unit, ")", ""))
}

// FoodNutrientMeasurement is one raw (food, nutrient, amount) row
type FoodNutrientMeasurement struct {
	RecordID   int64
	NutrientID int64
	Amount     float64
}

// NutrientStat is the mean of the raw measurements for one (food, nutrient) pair
type NutrientStat struct {
	Mean  float64
	Count int
}

// Well-known nutrient labels used when presenting search results
const (
	LabelEnergyKcal   = "ENERGY (KCAL)"
	LabelProtein      = "PROTEIN (G)"
	LabelCarbohydrate = "CARBOHYDRATE, BY DIFFERENCE (G)"
	LabelTotalFat     = "TOTAL LIPID (FAT) (G)"
)

// Macros contains the key macronutrients of a food per serving basis of the dataset
type Macros struct {
	Calories      *float64 `json:"calories,omitempty"`
	Protein       *float64 `json:"protein,omitempty"`       // grams
	Carbohydrates *float64 `json:"carbohydrates,omitempty"` // grams
	TotalFat      *float64 `json:"totalFat,omitempty"`      // grams
}

// FoodMatch is one food record returned by a similarity search
type FoodMatch struct {
	RecordID    string            `json:"recordId"`
	ProductID   string            `json:"productId,omitempty"`
	Name        string            `json:"name"`
	ServingSize string            `json:"servingSize,omitempty"`
	Ingredients string            `json:"ingredients,omitempty"`
	Macros      Macros            `json:"macros"`
	Score       float32           `json:"score"`
	Metadata    map[string]string `json:"metadata,omitempty"`
}

// SearchRequest represents a food search request
type SearchRequest struct {
	Query string `json:"query" binding:"required"`
	Limit int    `json:"limit,omitempty"`
}

// SearchResponse is the result of a food search
type SearchResponse struct {
	Query   string      `json:"query"`
	Matches []FoodMatch `json:"matches"`
	Source  string      `json:"source"` // "VectorStore" or "Cache"
}
