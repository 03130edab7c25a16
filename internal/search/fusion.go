package search

// Merger combines the backend and store result lists into one page.
type Merger interface {
	Merge(backend, stored []*Result) []*Result
}

// ConcatMerger appends store results after backend results. There is no
// cross-source re-ranking; an entry present in both lists (same owner and
// path) is kept once, in its backend position.
type ConcatMerger struct{}

// Merge implements Merger.
func (ConcatMerger) Merge(backend, stored []*Result) []*Result {
	merged := make([]*Result, 0, len(backend)+len(stored))
	seen := make(map[string]struct{}, len(backend))

	for _, r := range backend {
		seen[r.Path] = struct{}{}
		merged = append(merged, r)
	}
	for _, r := range stored {
		if _, dup := seen[r.Path]; dup {
			continue
		}
		merged = append(merged, r)
	}
	return merged
}
