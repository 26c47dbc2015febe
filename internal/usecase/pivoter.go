package usecase

import (
	"log"
	"sort"

	"github.com/foodbase/etl/internal/domain"
)

// NutrientMatrix is the wide form of the nutrient measurements: one entry per
// food record, one column per nutrient label. Absent pairs are missing values.
type NutrientMatrix struct {
	Labels []string // alphabetical
	Values map[int64]map[string]domain.NutrientStat

	UnmappedDropped   int // measurements without a nutrient definition
	CollisionsDropped int // measurements whose label belongs to a lower nutrient id
	Averaged          int // (record, nutrient) pairs built from more than one measurement
}

// Stat returns the averaged value of label for a record
func (m *NutrientMatrix) Stat(recordID int64, label string) (domain.NutrientStat, bool) {
	row, ok := m.Values[recordID]
	if !ok {
		return domain.NutrientStat{}, false
	}
	stat, ok := row[label]
	return stat, ok
}

// Has reports whether the matrix holds any value for recordID
func (m *NutrientMatrix) Has(recordID int64) bool {
	_, ok := m.Values[recordID]
	return ok
}

// Pivoter turns long-form measurements into a NutrientMatrix
type Pivoter struct {
	keepUnmapped       bool
	enableDebugLogging bool
}

// NewPivoter creates a new pivoter. When keepUnmapped is set, measurements of
// nutrients missing from the definition table are kept under their numeric id.
func NewPivoter(keepUnmapped, enableDebugLogging bool) *Pivoter {
	return &Pivoter{keepUnmapped: keepUnmapped, enableDebugLogging: enableDebugLogging}
}

type measurementKey struct {
	recordID   int64
	nutrientID int64
}

type accumulator struct {
	sum   float64
	count int
}

// Pivot averages duplicate (record, nutrient) measurements and spreads them into columns
func (p *Pivoter) Pivot(measurements []domain.FoodNutrientMeasurement, definitions []domain.NutrientDefinition) *NutrientMatrix {
	labels := p.resolveLabels(definitions)

	groups := make(map[measurementKey]*accumulator, len(measurements))
	for _, m := range measurements {
		key := measurementKey{recordID: m.RecordID, nutrientID: m.NutrientID}
		acc, ok := groups[key]
		if !ok {
			acc = &accumulator{}
			groups[key] = acc
		}
		acc.sum += m.Amount
		acc.count++
	}

	matrix := &NutrientMatrix{Values: make(map[int64]map[string]domain.NutrientStat)}
	used := make(map[string]struct{})
	for key, acc := range groups {
		label, ok := labels[key.nutrientID]
		switch {
		case ok && label == "":
			matrix.CollisionsDropped += acc.count
			continue
		case !ok && !p.keepUnmapped:
			matrix.UnmappedDropped += acc.count
			continue
		case !ok:
			label = domain.UnmappedNutrientLabel(key.nutrientID)
		}

		row, exists := matrix.Values[key.recordID]
		if !exists {
			row = make(map[string]domain.NutrientStat)
			matrix.Values[key.recordID] = row
		}
		row[label] = domain.NutrientStat{Mean: acc.sum / float64(acc.count), Count: acc.count}
		used[label] = struct{}{}
		if acc.count > 1 {
			matrix.Averaged++
		}
	}

	matrix.Labels = make([]string, 0, len(used))
	for label := range used {
		matrix.Labels = append(matrix.Labels, label)
	}
	sort.Strings(matrix.Labels)

	log.Printf("[PIVOT] %d measurements -> %d foods x %d nutrients (%d pairs averaged, %d unmapped dropped, %d colliding dropped)",
		len(measurements), len(matrix.Values), len(matrix.Labels), matrix.Averaged, matrix.UnmappedDropped, matrix.CollisionsDropped)
	return matrix
}

// resolveLabels maps nutrient ids to column labels. When several ids share a
// label the lowest id owns it; the others map to "".
func (p *Pivoter) resolveLabels(definitions []domain.NutrientDefinition) map[int64]string {
	owner := make(map[string]int64, len(definitions))
	for _, def := range definitions {
		if !def.ID.Valid {
			continue
		}
		label := def.Label()
		if id, ok := owner[label]; !ok || def.ID.Value < id {
			owner[label] = def.ID.Value
		}
	}

	labels := make(map[int64]string, len(definitions))
	for _, def := range definitions {
		if !def.ID.Valid {
			continue
		}
		label := def.Label()
		if owner[label] != def.ID.Value {
			log.Printf("[PIVOT] Warning: nutrient %d shares label %q with nutrient %d, its values are dropped", def.ID.Value, label, owner[label])
			labels[def.ID.Value] = ""
			continue
		}
		labels[def.ID.Value] = label
	}
	return labels
}
