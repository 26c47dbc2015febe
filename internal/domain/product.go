package domain

import (
	"path/filepath"
	"strconv"
	"strings"
)

// OptionalID is a numeric source identifier that may have failed to parse
type OptionalID struct {
	Value int64
	Valid bool
}

// ID returns a valid OptionalID
func ID(v int64) OptionalID {
	return OptionalID{Value: v, Valid: true}
}

// ParseID parses a source identifier, returning an invalid OptionalID instead of an error.
// Values such as "1234.0" (written by spreadsheet tools) are accepted when integral.
func ParseID(raw string) OptionalID {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return OptionalID{}
	}
	if v, err := strconv.ParseInt(raw, 10, 64); err == nil {
		return ID(v)
	}
	f, err := strconv.ParseFloat(raw, 64)
	if err != nil || f != float64(int64(f)) {
		return OptionalID{}
	}
	return ID(int64(f))
}

// String renders the identifier, or "" when missing
func (id OptionalID) String() string {
	if !id.Valid {
		return ""
	}
	return strconv.FormatInt(id.Value, 10)
}

// BrandedFoodRecord is one submitted revision of a branded product label
type BrandedFoodRecord struct {
	RecordID    OptionalID // fdc_id, unique per revision
	ProductID   string     // gtin_upc, shared by all revisions of a product
	Ingredients string
	ServingSize string // formatted "<size> <UNIT>", empty when missing
	BrandOwner  string
	Category    string
}

// FoodDescription holds the human-readable name of a food record
type FoodDescription struct {
	RecordID OptionalID
	Name     string
}

// SourceFiles locates the four USDA source tables on disk
type SourceFiles struct {
	BrandedFood  string
	Food         string
	Nutrient     string
	FoodNutrient string
}

// SourceTableNames are the file names of the source tables inside the USDA archive
var SourceTableNames = []string{"branded_food.csv", "food.csv", "nutrient.csv", "food_nutrient.csv"}

// SourceFilesIn returns the default source table locations inside dir
func SourceFilesIn(dir string) SourceFiles {
	return SourceFiles{
		BrandedFood:  filepath.Join(dir, "branded_food.csv"),
		Food:         filepath.Join(dir, "food.csv"),
		Nutrient:     filepath.Join(dir, "nutrient.csv"),
		FoodNutrient: filepath.Join(dir, "food_nutrient.csv"),
	}
}
