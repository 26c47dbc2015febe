// Package csvtable reads the USDA source tables and reads/writes the
// denormalized food table as delimited text.
package csvtable

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"log"
	"math"
	"os"
	"strconv"
	"strings"

	"github.com/foodbase/etl/internal/domain"
)

// cancellation is checked every ctxCheckInterval rows
const ctxCheckInterval = 50000

// tableSchema lists the source fields a table must (and may) provide
type tableSchema struct {
	name     string
	required []string
	optional []string
}

var (
	brandedFoodSchema = tableSchema{
		name:     "branded_food",
		required: []string{"fdc_id", "gtin_upc", "ingredients", "serving_size", "serving_size_unit"},
		optional: []string{"brand_owner", "branded_food_category"},
	}
	foodSchema = tableSchema{
		name:     "food",
		required: []string{"fdc_id", "description"},
	}
	nutrientSchema = tableSchema{
		name:     "nutrient",
		required: []string{"id", "name", "unit_name"},
	}
	foodNutrientSchema = tableSchema{
		name:     "food_nutrient",
		required: []string{"fdc_id", "nutrient_id", "amount"},
	}
)

// Loader reads USDA source tables, keeping only the fields used downstream
type Loader struct {
	enableDebugLogging bool
}

// NewLoader creates a new source table loader
func NewLoader(enableDebugLogging bool) *Loader {
	return &Loader{enableDebugLogging: enableDebugLogging}
}

// ReadBrandedFoods loads branded_food.csv
func (l *Loader) ReadBrandedFoods(ctx context.Context, path string) ([]domain.BrandedFoodRecord, error) {
	var records []domain.BrandedFoodRecord
	err := l.scan(ctx, path, brandedFoodSchema, func(r projectedRow) {
		records = append(records, domain.BrandedFoodRecord{
			RecordID:    domain.ParseID(r.get("fdc_id")),
			ProductID:   cleanText(r.get("gtin_upc")),
			Ingredients: cleanText(r.get("ingredients")),
			ServingSize: FormatServingSize(r.get("serving_size"), r.get("serving_size_unit")),
			BrandOwner:  cleanText(r.get("brand_owner")),
			Category:    cleanText(r.get("branded_food_category")),
		})
	})
	if err != nil {
		return nil, err
	}
	log.Printf("[LOADER] %s: %d branded food records", path, len(records))
	return records, nil
}

// ReadFoods loads food.csv
func (l *Loader) ReadFoods(ctx context.Context, path string) ([]domain.FoodDescription, error) {
	var foods []domain.FoodDescription
	err := l.scan(ctx, path, foodSchema, func(r projectedRow) {
		foods = append(foods, domain.FoodDescription{
			RecordID: domain.ParseID(r.get("fdc_id")),
			Name:     cleanText(r.get("description")),
		})
	})
	if err != nil {
		return nil, err
	}
	log.Printf("[LOADER] %s: %d food descriptions", path, len(foods))
	return foods, nil
}

// ReadNutrients loads nutrient.csv
func (l *Loader) ReadNutrients(ctx context.Context, path string) ([]domain.NutrientDefinition, error) {
	var nutrients []domain.NutrientDefinition
	err := l.scan(ctx, path, nutrientSchema, func(r projectedRow) {
		nutrients = append(nutrients, domain.NutrientDefinition{
			ID:   domain.ParseID(r.get("id")),
			Name: strings.TrimSpace(r.get("name")),
			Unit: strings.TrimSpace(r.get("unit_name")),
		})
	})
	if err != nil {
		return nil, err
	}
	log.Printf("[LOADER] %s: %d nutrient definitions", path, len(nutrients))
	return nutrients, nil
}

// ReadFoodNutrients loads food_nutrient.csv. Rows whose record id fails keep are
// discarded while streaming; rows with unparseable ids or amounts are skipped.
func (l *Loader) ReadFoodNutrients(ctx context.Context, path string, keep func(recordID int64) bool) ([]domain.FoodNutrientMeasurement, error) {
	var (
		measurements []domain.FoodNutrientMeasurement
		unusable     int
		filtered     int
	)
	err := l.scan(ctx, path, foodNutrientSchema, func(r projectedRow) {
		recordID := domain.ParseID(r.get("fdc_id"))
		nutrientID := domain.ParseID(r.get("nutrient_id"))
		amount, ok := parseNumber(r.get("amount"))
		if !recordID.Valid || !nutrientID.Valid || !ok {
			unusable++
			if l.enableDebugLogging {
				log.Printf("[LOADER] %s line %d: unusable measurement %q/%q/%q", path, r.line, r.get("fdc_id"), r.get("nutrient_id"), r.get("amount"))
			}
			return
		}
		if keep != nil && !keep(recordID.Value) {
			filtered++
			return
		}
		measurements = append(measurements, domain.FoodNutrientMeasurement{
			RecordID:   recordID.Value,
			NutrientID: nutrientID.Value,
			Amount:     amount,
		})
	})
	if err != nil {
		return nil, err
	}
	log.Printf("[LOADER] %s: %d measurements kept, %d filtered, %d unusable", path, len(measurements), filtered, unusable)
	return measurements, nil
}

// projectedRow exposes the schema fields of one source row
type projectedRow struct {
	record []string
	index  map[string]int
	line   int
}

// get returns the named field, or "" when the column or the cell is absent
func (r projectedRow) get(field string) string {
	i, ok := r.index[field]
	if !ok || i >= len(r.record) {
		return ""
	}
	return r.record[i]
}

// scan streams path row by row, calling fn with each projected row
func (l *Loader) scan(ctx context.Context, path string, schema tableSchema, fn func(projectedRow)) error {
	file, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("%w: %s: %w", domain.ErrMalformedTable, schema.name, err)
	}
	defer file.Close()

	reader := newReader(file)
	header, err := reader.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return fmt.Errorf("%w: %s: %s has no header row", domain.ErrMalformedTable, schema.name, path)
		}
		return fmt.Errorf("%w: %s header: %w", domain.ErrMalformedTable, schema.name, err)
	}

	index, err := projectHeader(header, schema)
	if err != nil {
		return fmt.Errorf("%s: %w", path, err)
	}

	line := 1
	for {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			return nil
		}
		line++
		if err != nil {
			return fmt.Errorf("%w: %s line %d: %w", domain.ErrMalformedTable, schema.name, line, err)
		}
		if line%ctxCheckInterval == 0 {
			if err := ctx.Err(); err != nil {
				return err
			}
		}
		fn(projectedRow{record: record, index: index, line: line})
	}
}

// projectHeader maps schema fields to header positions. Matching ignores case,
// surrounding whitespace and a UTF-8 byte order mark.
func projectHeader(header []string, schema tableSchema) (map[string]int, error) {
	positions := make(map[string]int, len(header))
	for i, h := range header {
		name := strings.ToLower(strings.TrimSpace(strings.TrimPrefix(h, "\ufeff")))
		if _, dup := positions[name]; !dup {
			positions[name] = i
		}
	}

	index := make(map[string]int, len(schema.required)+len(schema.optional))
	for _, field := range schema.required {
		i, ok := positions[field]
		if !ok {
			return nil, fmt.Errorf("%w: %q in %s table", domain.ErrMissingColumn, field, schema.name)
		}
		index[field] = i
	}
	for _, field := range schema.optional {
		if i, ok := positions[field]; ok {
			index[field] = i
		}
	}
	return index, nil
}

func newReader(r io.Reader) *csv.Reader {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.LazyQuotes = true
	reader.ReuseRecord = true
	return reader
}

// cleanText trims and upper-cases a source text field
func cleanText(s string) string {
	return strings.ToUpper(strings.TrimSpace(s))
}

// parseNumber parses a finite float
func parseNumber(raw string) (float64, bool) {
	v, err := strconv.ParseFloat(strings.TrimSpace(raw), 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, false
	}
	return v, true
}

// FormatServingSize joins a serving size amount, rounded to 2 decimals, with its
// upper-cased unit: ("28", "g") -> "28.0 G". Missing amount or unit yields "".
func FormatServingSize(size, unit string) string {
	v, ok := parseNumber(size)
	unit = cleanText(unit)
	if !ok || unit == "" {
		return ""
	}
	return FormatNumber(Round2(v)) + " " + unit
}

// Round2 rounds to two decimal places
func Round2(v float64) float64 {
	return math.Round(v*100) / 100
}

// FormatNumber renders a float the way the published dataset does: shortest
// representation, always with a fractional part ("12" -> "12.0").
func FormatNumber(v float64) string {
	s := strconv.FormatFloat(v, 'f', -1, 64)
	if !strings.ContainsAny(s, ".eE") {
		s += ".0"
	}
	return s
}
