package usecase

import (
	"log"
	"sort"

	"github.com/foodbase/etl/internal/domain"
)

// Reconciler collapses product revisions into one current record per product
type Reconciler struct {
	enableDebugLogging bool
}

// NewReconciler creates a new reconciler
func NewReconciler(enableDebugLogging bool) *Reconciler {
	return &Reconciler{enableDebugLogging: enableDebugLogging}
}

// ReconcileBrandedFoods keeps, for every product id, the record with the highest
// record id. Records without a record id are dropped. Records without a product
// id are kept as-is and never merged with each other. The result is ordered by
// record id ascending.
func (r *Reconciler) ReconcileBrandedFoods(records []domain.BrandedFoodRecord) []domain.BrandedFoodRecord {
	latest := make(map[string]domain.BrandedFoodRecord, len(records))
	var (
		singletons []domain.BrandedFoodRecord
		noRecordID int
	)

	for _, rec := range records {
		if !rec.RecordID.Valid {
			noRecordID++
			continue
		}
		if rec.ProductID == "" {
			singletons = append(singletons, rec)
			continue
		}
		current, seen := latest[rec.ProductID]
		if !seen || rec.RecordID.Value > current.RecordID.Value {
			if seen && r.enableDebugLogging {
				log.Printf("[RECONCILE] Product %s: record %d supersedes %d", rec.ProductID, rec.RecordID.Value, current.RecordID.Value)
			}
			latest[rec.ProductID] = rec
		}
	}

	out := make([]domain.BrandedFoodRecord, 0, len(latest)+len(singletons))
	for _, rec := range latest {
		out = append(out, rec)
	}
	out = append(out, singletons...)
	sort.Slice(out, func(i, j int) bool {
		return out[i].RecordID.Value < out[j].RecordID.Value
	})

	log.Printf("[RECONCILE] %d records -> %d products (%d without product id, %d without record id dropped)",
		len(records), len(out), len(singletons), noRecordID)
	return out
}

// RetainedIDs returns the set of record ids present in records
func (r *Reconciler) RetainedIDs(records []domain.BrandedFoodRecord) map[int64]struct{} {
	ids := make(map[int64]struct{}, len(records))
	for _, rec := range records {
		if rec.RecordID.Valid {
			ids[rec.RecordID.Value] = struct{}{}
		}
	}
	return ids
}

// FilterFoods keeps the food descriptions whose record id is retained
func (r *Reconciler) FilterFoods(foods []domain.FoodDescription, retained map[int64]struct{}) []domain.FoodDescription {
	out := make([]domain.FoodDescription, 0, len(retained))
	for _, f := range foods {
		if !f.RecordID.Valid {
			continue
		}
		if _, ok := retained[f.RecordID.Value]; ok {
			out = append(out, f)
		}
	}
	log.Printf("[RECONCILE] %d of %d food descriptions retained", len(out), len(foods))
	return out
}
