// Package search answers name queries over the unified index. A query fans
// out to the full-text backend, which holds local entries, and to the index
// store, which holds cloud entries; the two result lists are merged and
// paginated together.
package search

import (
	"context"

	"github.com/Aman-CERP/unifind/internal/store"
)

// Default and maximum page sizes.
const (
	DefaultLimit = 10
	MaxLimit     = 100
)

// Searcher runs owner-scoped name queries.
type Searcher interface {
	Search(ctx context.Context, q Query) (*Response, error)
}

// Query is one search request.
type Query struct {
	// OwnerID scopes every result to one user. Required.
	OwnerID string

	// Text is matched against entry names by prefix and fuzzily. Required.
	Text string

	// Limit is the page size (default: 10, max: 100).
	Limit int

	// Offset skips results in each source.
	Offset int

	// Service restricts results to one storage type. Empty means all.
	Service store.StorageType

	// FileType restricts results to one family: folder, document, image,
	// video, audio, archive, code. Empty means all.
	FileType string
}

// Result is one matching entry and the source that produced it.
type Result struct {
	*store.Entry

	// Source is "backend" for full-text matches and "store" for cloud
	// entries matched in the index store.
	Source string `json:"source"`
}

// Result sources.
const (
	SourceBackend = "backend"
	SourceStore   = "store"
)

// Response is one page of results.
type Response struct {
	Results []*Result `json:"results"`
	Offset  int       `json:"offset"`
	Limit   int       `json:"limit"`

	// HasMore is an estimate: true when a full page came back.
	HasMore bool `json:"has_more"`
}
