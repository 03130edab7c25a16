package search

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/Aman-CERP/unifind/internal/store"
)

func results(source string, ps ...string) []*Result {
	out := make([]*Result, len(ps))
	for i, p := range ps {
		out[i] = &Result{Entry: &store.Entry{Path: p}, Source: source}
	}
	return out
}

func TestConcatMerger_Order(t *testing.T) {
	// Given: backend [A, B] and store [C, D]
	backend := results(SourceBackend, "A", "B")
	stored := results(SourceStore, "C", "D")

	// When: merged
	merged := ConcatMerger{}.Merge(backend, stored)

	// Then: backend order is kept and store results follow
	assert.Equal(t, []string{"A", "B", "C", "D"}, paths(merged))
}

func TestConcatMerger_DropsDuplicatePaths(t *testing.T) {
	backend := results(SourceBackend, "drive://x", "A")
	stored := results(SourceStore, "drive://x", "C")

	merged := ConcatMerger{}.Merge(backend, stored)

	assert.Equal(t, []string{"drive://x", "A", "C"}, paths(merged))
	assert.Equal(t, SourceBackend, merged[0].Source)
}

func TestConcatMerger_EmptyInputs(t *testing.T) {
	assert.Empty(t, ConcatMerger{}.Merge(nil, nil))
	assert.Equal(t, []string{"C"}, paths(ConcatMerger{}.Merge(nil, results(SourceStore, "C"))))
	assert.Equal(t, []string{"A"}, paths(ConcatMerger{}.Merge(results(SourceBackend, "A"), nil)))
}
