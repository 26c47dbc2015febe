package usecase

import (
	"context"
	"log"
	"math"
	"sort"
	"strings"

	"github.com/foodbase/etl/internal/domain"
)

// DenormalizeOptions controls the optional steps of the denormalizer
type DenormalizeOptions struct {
	ChunkSize          int  // rows per text normalization chunk
	RequireIngredients bool // drop rows without an ingredient list
	IncludeBrandFields bool // add brand owner and category columns
}

// DenormalizeStats counts what each step of the denormalizer removed
type DenormalizeStats struct {
	Foods              int // reconciled branded foods in
	MissingDescription int // no row in the food table
	MissingNutrients   int // no nutrient values after the pivot
	MissingIngredients int
	CellsOverThreshold int
	InvalidServingSize int // missing or expressed in IU
	Incomplete         int // no record id or name after normalization
	Chunks             int
	Rows               int // rows in the final table
	NutrientColumns    int
}

// Denormalizer joins reconciled foods, their names and their nutrient values
// into one sanitized wide table
type Denormalizer struct {
	thresholds *Thresholds
	normalizer *TextNormalizer
	opts       DenormalizeOptions
}

// NewDenormalizer creates a new denormalizer
func NewDenormalizer(thresholds *Thresholds, normalizer *TextNormalizer, opts DenormalizeOptions) *Denormalizer {
	if opts.ChunkSize <= 0 {
		opts.ChunkSize = 100000
	}
	return &Denormalizer{
		thresholds: thresholds,
		normalizer: normalizer,
		opts:       opts,
	}
}

// Denormalize builds the final food table
func (d *Denormalizer) Denormalize(ctx context.Context, foods []domain.BrandedFoodRecord, descriptions []domain.FoodDescription, matrix *NutrientMatrix) (*domain.FoodTable, *DenormalizeStats, error) {
	stats := &DenormalizeStats{Foods: len(foods)}

	table := &domain.FoodTable{Columns: d.columns(matrix.Labels)}
	nutrientCols := table.ColumnsWithRole(domain.RoleNutrient)
	stats.NutrientColumns = len(nutrientCols)

	names := make(map[int64]string, len(descriptions))
	for _, desc := range descriptions {
		if !desc.RecordID.Valid {
			continue
		}
		if _, dup := names[desc.RecordID.Value]; !dup {
			names[desc.RecordID.Value] = desc.Name
		}
	}

	ordered := make([]domain.BrandedFoodRecord, 0, len(foods))
	for _, food := range foods {
		if food.RecordID.Valid {
			ordered = append(ordered, food)
		}
	}
	sort.SliceStable(ordered, func(i, j int) bool {
		return ordered[i].RecordID.Value < ordered[j].RecordID.Value
	})

	for _, food := range ordered {
		id := food.RecordID.Value
		name, ok := names[id]
		if !ok {
			stats.MissingDescription++
			continue
		}
		if !matrix.Has(id) {
			stats.MissingNutrients++
			continue
		}
		if d.opts.RequireIngredients && food.Ingredients == "" {
			stats.MissingIngredients++
			continue
		}

		row := domain.FoodRow{Cells: make([]domain.Cell, len(table.Columns))}
		for i, col := range table.Columns {
			if col.Role == domain.RoleNutrient {
				if stat, ok := matrix.Stat(id, col.Label); ok {
					row.Cells[i] = domain.NumberCell(stat.Mean)
				}
				continue
			}
			row.Cells[i] = domain.TextCell(descriptiveValue(col.Label, food, name))
		}

		if !validServingSize(food.ServingSize) {
			stats.InvalidServingSize++
			continue
		}
		table.Rows = append(table.Rows, row)
	}

	stats.CellsOverThreshold = d.thresholds.Apply(table)

	if err := d.normalizeRows(ctx, table, stats); err != nil {
		return nil, nil, err
	}

	for i := range table.Columns {
		table.Columns[i].Label = d.normalizer.NormalizeText(table.Columns[i].Label)
	}

	stats.Rows = len(table.Rows)
	log.Printf("[DENORMALIZE] %d foods -> %d rows x %d nutrients (no description %d, no nutrients %d, no ingredients %d, bad serving size %d, incomplete %d, %d cells over threshold)",
		stats.Foods, stats.Rows, stats.NutrientColumns, stats.MissingDescription, stats.MissingNutrients,
		stats.MissingIngredients, stats.InvalidServingSize, stats.Incomplete, stats.CellsOverThreshold)
	return table, stats, nil
}

// columns lays out the identifier and descriptive columns followed by the nutrient labels
func (d *Denormalizer) columns(labels []string) []domain.Column {
	leading := []string{domain.ColRecordID, domain.ColProductID, domain.ColName, domain.ColServingSize, domain.ColIngredients}
	if d.opts.IncludeBrandFields {
		leading = append(leading, domain.ColBrandOwner, domain.ColCategory)
	}

	cols := make([]domain.Column, 0, len(leading)+len(labels))
	for _, label := range leading {
		cols = append(cols, domain.StandardColumn(label))
	}
	for _, label := range labels {
		cols = append(cols, domain.Column{Label: label, Role: domain.RoleNutrient})
	}
	return cols
}

// normalizeRows cleans text cells chunk by chunk, then drops incomplete rows
func (d *Denormalizer) normalizeRows(ctx context.Context, table *domain.FoodTable, stats *DenormalizeStats) error {
	textCols := make([]int, 0, len(table.Columns))
	for i, col := range table.Columns {
		if col.IsText() {
			textCols = append(textCols, i)
		}
	}
	idCol := table.ColumnIndex(domain.ColRecordID)
	nameCol := table.ColumnIndex(domain.ColName)

	kept := table.Rows[:0]
	for start := 0; start < len(table.Rows); start += d.opts.ChunkSize {
		if err := ctx.Err(); err != nil {
			return err
		}
		end := min(start+d.opts.ChunkSize, len(table.Rows))
		stats.Chunks++

		for _, row := range table.Rows[start:end] {
			for _, i := range textCols {
				if table.Columns[i].LongForm {
					row.Cells[i] = domain.TextCell(d.normalizer.NormalizeLongText(row.Cells[i].Text))
				} else {
					row.Cells[i] = domain.TextCell(d.normalizer.NormalizeText(row.Cells[i].Text))
				}
			}
			if !row.Cells[idCol].Valid || !row.Cells[nameCol].Valid {
				stats.Incomplete++
				continue
			}
			kept = append(kept, row)
		}
	}
	table.Rows = kept
	return nil
}

func descriptiveValue(label string, food domain.BrandedFoodRecord, name string) string {
	switch label {
	case domain.ColRecordID:
		return food.RecordID.String()
	case domain.ColProductID:
		return food.ProductID
	case domain.ColName:
		return name
	case domain.ColServingSize:
		return food.ServingSize
	case domain.ColIngredients:
		return food.Ingredients
	case domain.ColBrandOwner:
		return food.BrandOwner
	case domain.ColCategory:
		return food.Category
	}
	return ""
}

// validServingSize rejects missing serving sizes and those measured in
// international units, which cannot be compared with mass or volume
func validServingSize(servingSize string) bool {
	return servingSize != "" && !strings.Contains(servingSize, "IU")
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
