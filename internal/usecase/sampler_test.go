package usecase

import (
	"reflect"
	"testing"

	"github.com/foodbase/etl/internal/domain"
)

// sampleTable builds a table whose rows have the given number of missing nutrient cells
func sampleTable(missing ...int) *domain.FoodTable {
	table := &domain.FoodTable{Columns: []domain.Column{
		domain.StandardColumn(domain.ColRecordID),
		domain.StandardColumn("A(G)"),
		domain.StandardColumn("B(G)"),
		domain.StandardColumn("C(G)"),
	}}
	for i, m := range missing {
		cells := []domain.Cell{domain.TextCell(string(rune('a' + i)))}
		for j := 0; j < 3; j++ {
			if j < m {
				cells = append(cells, domain.Missing())
			} else {
				cells = append(cells, domain.NumberCell(1))
			}
		}
		table.Rows = append(table.Rows, domain.FoodRow{Cells: cells})
	}
	return table
}

func recordIDs(table *domain.FoodTable) []string {
	ids := make([]string, len(table.Rows))
	for i, row := range table.Rows {
		ids[i] = table.Value(row, domain.ColRecordID).Text
	}
	return ids
}

func TestMostPopulated(t *testing.T) {
	table := sampleTable(2, 0, 3, 0, 1)

	tests := []struct {
		name string
		n    int
		want []string
	}{
		{"top two keep table order on ties", 2, []string{"b", "d"}},
		{"top three", 3, []string{"b", "d", "e"}},
		{"n larger than table", 10, []string{"b", "d", "e", "a", "c"}},
		{"zero", 0, []string{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := recordIDs(NewSampler().MostPopulated(table, tt.n))
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("MostPopulated(%d) = %v, want %v", tt.n, got, tt.want)
			}
		})
	}
}

func TestMostPopulated_CopiesRows(t *testing.T) {
	table := sampleTable(0)
	out := NewSampler().MostPopulated(table, 1)
	out.Rows[0].Cells[1] = domain.Missing()

	if !table.Rows[0].Cells[1].Valid {
		t.Error("sample shares cells with the source table")
	}
}

func TestRandomSample(t *testing.T) {
	table := sampleTable(0, 0, 0, 0, 0, 0, 0, 0)
	sampler := NewSampler()

	first := recordIDs(sampler.RandomSample(table, 3, 42))
	second := recordIDs(sampler.RandomSample(table, 3, 42))
	if !reflect.DeepEqual(first, second) {
		t.Errorf("same seed gave %v and %v", first, second)
	}
	if len(first) != 3 {
		t.Fatalf("len = %d, want 3", len(first))
	}
	for i := 1; i < len(first); i++ {
		if first[i-1] >= first[i] {
			t.Errorf("sample %v is not in table order", first)
		}
	}

	all := recordIDs(sampler.RandomSample(table, 100, 7))
	if !reflect.DeepEqual(all, recordIDs(table)) {
		t.Errorf("oversized sample = %v, want every row in order", all)
	}
}
