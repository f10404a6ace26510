package fifo

import "stockledger/internal/domain/ledger"

// Aggregate folds warehouse-wise results into warehouse-less keys.
//
// Layers are concatenated in warehouse order; their relative order across
// warehouses carries no meaning for ageing. The lot tag of the key is kept,
// so results computed at item+warehouse+lot fold to item+lot and never merge
// across lots.
func Aggregate(results map[ledger.GroupKey]*QueueResult) map[ledger.GroupKey]*QueueResult {
	out := make(map[ledger.GroupKey]*QueueResult)
	for _, key := range SortedKeys(results) {
		r := results[key]
		folded := key.WithoutWarehouse()

		agg, ok := out[folded]
		if !ok {
			agg = &QueueResult{Key: folded}
			out[folded] = agg
		}
		agg.Layers = append(agg.Layers, r.Layers...)
		agg.QtyAfterTransaction += r.QtyAfterTransaction
		agg.HasDiscreteUnits = agg.HasDiscreteUnits || r.HasDiscreteUnits
	}
	return out
}
