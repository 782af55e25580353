package inventory

import (
	"sort"

	"github.com/shopspring/decimal"
)

// Reconcile compares balances against journal sums. A record without movements must be
// zero; journal sums without a record are reported with a zero record quantity.
func Reconcile(records []Record, sums map[Key]decimal.Decimal) []Drift {
	seen := make(map[Key]struct{}, len(records))
	drifts := []Drift{}
	for _, rec := range records {
		k := Key{WarehouseID: rec.WarehouseID, ProductID: rec.ProductID}
		seen[k] = struct{}{}
		journal := sums[k]
		if !rec.Qty.Equal(journal) {
			drifts = append(drifts, Drift{Key: k, RecordQty: rec.Qty, JournalQty: journal})
		}
	}
	for k, sum := range sums {
		if _, ok := seen[k]; ok || sum.IsZero() {
			continue
		}
		drifts = append(drifts, Drift{Key: k, RecordQty: decimal.Zero, JournalQty: sum})
	}
	sort.Slice(drifts, func(i, j int) bool {
		if drifts[i].WarehouseID != drifts[j].WarehouseID {
			return drifts[i].WarehouseID < drifts[j].WarehouseID
		}
		return drifts[i].ProductID < drifts[j].ProductID
	})
	return drifts
}
