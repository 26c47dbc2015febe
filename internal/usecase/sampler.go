package usecase

import (
	"math/rand/v2"
	"sort"

	"github.com/foodbase/etl/internal/domain"
)

// Sampler picks subsets of a food table for inspection and small uploads
type Sampler struct{}

// NewSampler creates a new sampler
func NewSampler() *Sampler {
	return &Sampler{}
}

// MostPopulated returns the n rows with the fewest missing nutrient cells.
// Rows with equal counts keep their table order.
func (s *Sampler) MostPopulated(table *domain.FoodTable, n int) *domain.FoodTable {
	idx := make([]int, len(table.Rows))
	missing := make([]int, len(table.Rows))
	for i, row := range table.Rows {
		idx[i] = i
		missing[i] = table.MissingNutrients(row)
	}
	sort.SliceStable(idx, func(a, b int) bool {
		return missing[idx[a]] < missing[idx[b]]
	})
	return subset(table, idx[:clamp(n, len(idx))])
}

// RandomSample returns n rows chosen uniformly with a seeded generator, so the
// same seed always yields the same rows. Rows keep their table order.
func (s *Sampler) RandomSample(table *domain.FoodTable, n int, seed uint64) *domain.FoodTable {
	rng := rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))
	idx := rng.Perm(len(table.Rows))[:clamp(n, len(table.Rows))]
	sort.Ints(idx)
	return subset(table, idx)
}

func subset(table *domain.FoodTable, idx []int) *domain.FoodTable {
	out := &domain.FoodTable{
		Columns: append([]domain.Column(nil), table.Columns...),
		Rows:    make([]domain.FoodRow, len(idx)),
	}
	for i, j := range idx {
		out.Rows[i] = domain.FoodRow{Cells: append([]domain.Cell(nil), table.Rows[j].Cells...)}
	}
	return out
}

func clamp(n, size int) int {
	if n < 0 {
		return 0
	}
	return min(n, size)
}
