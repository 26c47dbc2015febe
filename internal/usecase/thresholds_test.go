package usecase

import (
	"testing"

	"github.com/foodbase/etl/internal/domain"
)

func TestThresholdsLookup(t *testing.T) {
	th := DefaultThresholds()

	tests := []struct {
		label string
		want  float64
		found bool
	}{
		{"VITAMIN A, IU (IU)", 333333, true},
		{"VITAMIN D (D2 + D3), INTERNATIONAL UNITS (IU)", 4000000, true},
		{"VITAMIN E (LABEL ENTRY PRIMARILY) (IU)", 1493, true},
		{"ENERGY (KCAL)", 900, true},
		{"ENERGY (KJ)", 3766, true},
		{"PROTEIN (G)", 100, true},
		{"SODIUM, NA (MG)", 100000, true},
		{"VITAMIN B-12 (UG)", 100000000, true},
		{"VITAMIN C, TOTAL ASCORBIC ACID (IU)", 0, false},
		{"1234", 0, false},
	}

	for _, tt := range tests {
		t.Run(tt.label, func(t *testing.T) {
			got, ok := th.Lookup(tt.label)
			if ok != tt.found {
				t.Fatalf("Lookup(%q) found = %v, want %v", tt.label, ok, tt.found)
			}
			if got != tt.want {
				t.Errorf("Lookup(%q) = %v, want %v", tt.label, got, tt.want)
			}
		})
	}
}

func thresholdTable() *domain.FoodTable {
	return &domain.FoodTable{
		Columns: []domain.Column{
			domain.StandardColumn(domain.ColRecordID),
			domain.StandardColumn("VITAMIN A, IU (IU)"),
			domain.StandardColumn("PROTEIN (G)"),
			domain.StandardColumn("ENERGY (KCAL)"),
		},
		Rows: []domain.FoodRow{
			{Cells: []domain.Cell{domain.TextCell("1"), domain.NumberCell(500000), domain.NumberCell(12.344), domain.NumberCell(250)}},
			{Cells: []domain.Cell{domain.TextCell("2"), domain.NumberCell(1000), domain.NumberCell(150), domain.Missing()}},
			{Cells: []domain.Cell{domain.TextCell("3"), domain.NumberCell(-3), domain.NumberCell(99.999), domain.NumberCell(900)}},
		},
	}
}

func TestThresholdsApply(t *testing.T) {
	table := thresholdTable()
	nulled := DefaultThresholds().Apply(table)

	if nulled != 2 {
		t.Errorf("nulled = %d, want 2", nulled)
	}

	row := table.Rows[0]
	if table.Value(row, "VITAMIN A, IU (IU)").Valid {
		t.Error("vitamin A above 333333 should be missing")
	}
	if got := table.Value(row, "PROTEIN (G)").Num; got != 12.34 {
		t.Errorf("protein = %v, want 12.34", got)
	}
	if got := table.Value(row, "ENERGY (KCAL)").Num; got != 250 {
		t.Errorf("energy = %v, want 250", got)
	}
	if table.Value(row, domain.ColRecordID).Text != "1" {
		t.Error("identifier cells must be untouched")
	}

	if table.Value(table.Rows[1], "PROTEIN (G)").Valid {
		t.Error("protein above 100 g should be missing")
	}
	if got := table.Value(table.Rows[2], "VITAMIN A, IU (IU)").Num; got != -3 {
		t.Errorf("negative values have no lower bound, got %v", got)
	}
	if got := table.Value(table.Rows[2], "ENERGY (KCAL)").Num; got != 900 {
		t.Errorf("value equal to the ceiling is kept, got %v", got)
	}
}

func TestThresholdsApply_Idempotent(t *testing.T) {
	th := DefaultThresholds()
	once := thresholdTable()
	th.Apply(once)

	twice := thresholdTable()
	th.Apply(twice)
	if n := th.Apply(twice); n != 0 {
		t.Errorf("second pass nulled %d cells, want 0", n)
	}

	for r := range once.Rows {
		for c := range once.Columns {
			if once.Rows[r].Cells[c] != twice.Rows[r].Cells[c] {
				t.Errorf("row %d col %d: %+v after one pass, %+v after two", r, c, once.Rows[r].Cells[c], twice.Rows[r].Cells[c])
			}
		}
	}
}

func TestNewThresholds_CopiesInput(t *testing.T) {
	labels := map[string]float64{"X (G)": 1}
	th := NewThresholds(labels, nil)
	labels["X (G)"] = 1000

	if got, _ := th.Lookup("X (G)"); got != 1 {
		t.Errorf("Lookup = %v, want 1", got)
	}
}
