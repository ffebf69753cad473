package contextstore

import "sort"

// Aggregator derives merged latest-result-per-operation views from the store.
// Views are computed on demand and never persisted.
type Aggregator struct {
	store *Store
}

// NewAggregator creates an aggregator over the given store.
func NewAggregator(store *Store) *Aggregator {
	return &Aggregator{store: store}
}

// ForLead returns operation → latest payload for one lead. Operations with no
// record in scope are absent; an empty scope yields an empty map, never an
// error.
func (a *Aggregator) ForLead(leadID string) map[string]any {
	return a.merge(a.store.PointersForLead(leadID))
}

// ForCompany returns operation → latest payload for one company.
func (a *Aggregator) ForCompany(company string) map[string]any {
	return a.merge(a.store.PointersForCompany(company))
}

// merge loads the pointed-to records and keeps, per operation, the payload
// with the highest sequence number. Error-marked payloads participate like
// any other: a failed fetch is visible data, not a hole.
func (a *Aggregator) merge(ptrs []Pointer) map[string]any {
	out := make(map[string]any)
	if len(ptrs) == 0 {
		return out
	}

	// Pointer order is write order for live stores; after a Rebuild the
	// slice is already seq-sorted. Sorting here keeps both paths identical.
	sorted := make([]Pointer, len(ptrs))
	copy(sorted, ptrs)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Seq < sorted[j].Seq })

	addrs := make([]string, len(sorted))
	for i, p := range sorted {
		addrs[i] = p.Address
	}
	for _, rec := range a.store.Read(addrs) {
		if rec.Result == nil {
			continue
		}
		out[rec.Operation] = rec.Result
	}
	return out
}
