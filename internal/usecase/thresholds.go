package usecase

import (
	"strings"

	"github.com/foodbase/etl/internal/domain"
)

// Thresholds holds the plausibility ceilings for nutrient values. Ceilings are
// looked up by exact column label first, then by the unit token of the label.
// A Thresholds value is never modified after construction.
type Thresholds struct {
	byLabel map[string]float64
	byUnit  map[string]float64
}

// DefaultThresholds returns the ceilings applied to USDA branded food data
func DefaultThresholds() *Thresholds {
	return NewThresholds(
		map[string]float64{
			"VITAMIN A, IU (IU)": 333333,
			"VITAMIN D (D2 + D3), INTERNATIONAL UNITS (IU)": 4000000,
			"VITAMIN E (LABEL ENTRY PRIMARILY) (IU)":        1493,
			domain.LabelEnergyKcal:                          900,
			"ENERGY (KJ)":                                   3766,
		},
		map[string]float64{
			"G":  100,
			"MG": 100000,
			"UG": 100000000,
		},
	)
}

// NewThresholds builds a threshold table from label and unit ceilings. The maps are copied.
func NewThresholds(byLabel, byUnit map[string]float64) *Thresholds {
	t := &Thresholds{
		byLabel: make(map[string]float64, len(byLabel)),
		byUnit:  make(map[string]float64, len(byUnit)),
	}
	for k, v := range byLabel {
		t.byLabel[strings.ToUpper(k)] = v
	}
	for k, v := range byUnit {
		t.byUnit[strings.ToUpper(k)] = v
	}
	return t
}

// Lookup returns the ceiling for a nutrient column label
func (t *Thresholds) Lookup(label string) (float64, bool) {
	if ceiling, ok := t.byLabel[label]; ok {
		return ceiling, true
	}
	ceiling, ok := t.byUnit[domain.LabelUnit(label)]
	return ceiling, ok
}

// Apply nulls nutrient cells above their ceiling and rounds the remaining
// nutrient cells to two decimals. It returns the number of cells nulled.
// Applying it to its own output changes nothing.
func (t *Thresholds) Apply(table *domain.FoodTable) int {
	nulled := 0
	for _, i := range table.ColumnsWithRole(domain.RoleNutrient) {
		ceiling, bounded := t.Lookup(table.Columns[i].Label)
		for _, row := range table.Rows {
			cell := row.Cells[i]
			if !cell.Valid {
				continue
			}
			if bounded && cell.Num > ceiling {
				row.Cells[i] = domain.Missing()
				nulled++
				continue
			}
			row.Cells[i] = domain.NumberCell(round2(cell.Num))
		}
	}
	return nulled
}
