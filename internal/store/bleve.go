package store

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/analysis/analyzer/custom"
	"github.com/blevesearch/bleve/v2/analysis/analyzer/keyword"
	"github.com/blevesearch/bleve/v2/analysis/token/edgengram"
	"github.com/blevesearch/bleve/v2/analysis/token/lowercase"
	regexptokenizer "github.com/blevesearch/bleve/v2/analysis/tokenizer/regexp"
	"github.com/blevesearch/bleve/v2/analysis/tokenizer/single"
	"github.com/blevesearch/bleve/v2/mapping"
	"github.com/blevesearch/bleve/v2/search/query"
)

const (
	nameTokenizerName  = "name_tokenizer"
	nameEdgeFilterName = "name_edge_1_20"

	// NameFullAnalyzer lowercases the whole name as one token.
	NameFullAnalyzer = "name_full"
	// NameTermsAnalyzer splits names on anything that is not a letter or digit.
	NameTermsAnalyzer = "name_terms"
	// NamePrefixAnalyzer emits front edge n-grams of every name term.
	NamePrefixAnalyzer = "name_prefix"

	// maxEdgeGram is the longest prefix stored in the name_prefix field.
	maxEdgeGram = 20
)

// nameTermPattern must match the tokenizer regexp so query terms line up
// with indexed terms.
var nameTermPattern = regexp.MustCompile(`[\p{L}\p{N}]+`)

// storedFields are loaded back into Entry values on every hit.
var storedFields = []string{
	"owner_id", "name", "path", "storage_type", "is_folder",
	"account_id", "cloud_object_id", "mime_type", "last_modified",
}

// BleveConfig tunes ranking of the name query.
type BleveConfig struct {
	PrefixBoost float64
	FuzzyBoost  float64
}

// DefaultBleveConfig favours prefix matches over typo-tolerant ones.
func DefaultBleveConfig() BleveConfig {
	return BleveConfig{PrefixBoost: 2.0, FuzzyBoost: 1.0}
}

// BleveBackend implements SearchBackend on a Bleve index.
type BleveBackend struct {
	mu        sync.RWMutex
	index     bleve.Index
	path      string
	config    BleveConfig
	closed    bool
	recreated bool
}

// Verify interface implementation at compile time
var _ SearchBackend = (*BleveBackend)(nil)

// entryDoc is the document shape indexed for every entry.
type entryDoc struct {
	OwnerID       string `json:"owner_id"`
	Name          string `json:"name"`
	NameTerms     string `json:"name_terms"`
	NamePrefix    string `json:"name_prefix"`
	Path          string `json:"path"`
	StorageType   string `json:"storage_type"`
	IsFolder      bool   `json:"is_folder"`
	AccountID     string `json:"account_id,omitempty"`
	CloudObjectID string `json:"cloud_object_id,omitempty"`
	MimeType      string `json:"mime_type,omitempty"`
	LastModified  string `json:"last_modified,omitempty"`
}

// DocID is the search document id for an owner's path.
func DocID(ownerID, path string) string {
	return ownerID + "\x00" + path
}

// validateIndexIntegrity checks that an existing index has parseable metadata.
func validateIndexIntegrity(path string) error {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil
	}

	metaPath := filepath.Join(path, "index_meta.json")
	data, err := os.ReadFile(metaPath)
	if os.IsNotExist(err) {
		return fmt.Errorf("index_meta.json missing (corrupted index)")
	}
	if err != nil {
		return fmt.Errorf("cannot read index_meta.json: %w", err)
	}
	if len(data) == 0 {
		return fmt.Errorf("index_meta.json is empty (corrupted)")
	}
	var meta map[string]any
	if err := json.Unmarshal(data, &meta); err != nil {
		return fmt.Errorf("index_meta.json is corrupt: %w", err)
	}
	return nil
}

func isCorruptionError(err error) bool {
	if err == nil {
		return false
	}
	errStr := err.Error()
	return strings.Contains(errStr, "unexpected end of JSON") ||
		strings.Contains(errStr, "error parsing mapping JSON") ||
		strings.Contains(errStr, "failed to load segment") ||
		strings.Contains(errStr, "error opening bolt") ||
		err == bleve.ErrorIndexMetaCorrupt
}

// NewBleveBackend opens or creates the search index at path.
// An empty path creates an in-memory index for tests.
// A corrupted on-disk index is cleared and recreated; Recreated then reports
// true so the caller can rebuild it from the Index Store.
func NewBleveBackend(path string, config BleveConfig) (*BleveBackend, error) {
	if config.PrefixBoost <= 0 || config.FuzzyBoost <= 0 {
		config = DefaultBleveConfig()
	}

	indexMapping, err := buildIndexMapping()
	if err != nil {
		return nil, fmt.Errorf("failed to create index mapping: %w", err)
	}

	b := &BleveBackend{path: path, config: config}

	if path == "" {
		b.index, err = bleve.NewMemOnly(indexMapping)
		if err != nil {
			return nil, fmt.Errorf("failed to create in-memory index: %w", err)
		}
		return b, nil
	}

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("failed to create directory for %s: %w", path, err)
	}

	if validErr := validateIndexIntegrity(path); validErr != nil {
		slog.Warn("search_index_corrupted",
			slog.String("path", path),
			slog.String("error", validErr.Error()))
		if err := os.RemoveAll(path); err != nil {
			return nil, fmt.Errorf("search index corrupted at %s and cannot remove: %w (original error: %v)", path, err, validErr)
		}
		b.recreated = true
	}

	idx, err := bleve.Open(path)
	switch {
	case err == bleve.ErrorIndexPathDoesNotExist:
		idx, err = bleve.New(path, indexMapping)
		b.recreated = true
	case err != nil && isCorruptionError(err):
		slog.Warn("search_index_open_failed",
			slog.String("path", path),
			slog.String("error", err.Error()))
		if removeErr := os.RemoveAll(path); removeErr != nil {
			return nil, fmt.Errorf("search index corrupted, cannot clear: %w (original: %v)", removeErr, err)
		}
		idx, err = bleve.New(path, indexMapping)
		b.recreated = true
	}
	if err != nil {
		return nil, fmt.Errorf("failed to create/open search index: %w", err)
	}

	b.index = idx
	if b.recreated {
		slog.Info("search_index_created", slog.String("path", path))
	}
	return b, nil
}

// Recreated reports whether the index was created empty on open, either
// fresh or after clearing corruption.
func (b *BleveBackend) Recreated() bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.recreated
}

func buildIndexMapping() (*mapping.IndexMappingImpl, error) {
	im := bleve.NewIndexMapping()

	if err := im.AddCustomTokenizer(nameTokenizerName, map[string]any{
		"type":   regexptokenizer.Name,
		"regexp": nameTermPattern.String(),
	}); err != nil {
		return nil, fmt.Errorf("failed to add name tokenizer: %w", err)
	}

	if err := im.AddCustomTokenFilter(nameEdgeFilterName, map[string]any{
		"type": edgengram.Name,
		"back": false,
		"min":  float64(1),
		"max":  float64(maxEdgeGram),
	}); err != nil {
		return nil, fmt.Errorf("failed to add edge ngram filter: %w", err)
	}

	analyzers := map[string]map[string]any{
		NameFullAnalyzer: {
			"type":          custom.Name,
			"tokenizer":     single.Name,
			"token_filters": []string{lowercase.Name},
		},
		NameTermsAnalyzer: {
			"type":          custom.Name,
			"tokenizer":     nameTokenizerName,
			"token_filters": []string{lowercase.Name},
		},
		NamePrefixAnalyzer: {
			"type":          custom.Name,
			"tokenizer":     nameTokenizerName,
			"token_filters": []string{lowercase.Name, nameEdgeFilterName},
		},
	}
	for name, cfg := range analyzers {
		if err := im.AddCustomAnalyzer(name, cfg); err != nil {
			return nil, fmt.Errorf("failed to add analyzer %s: %w", name, err)
		}
	}

	doc := bleve.NewDocumentStaticMapping()

	keywordField := func(store, index bool) *mapping.FieldMapping {
		f := bleve.NewTextFieldMapping()
		f.Analyzer = keyword.Name
		f.Store = store
		f.Index = index
		f.IncludeInAll = false
		f.IncludeTermVectors = false
		return f
	}
	analyzedField := func(analyzer string, store bool) *mapping.FieldMapping {
		f := bleve.NewTextFieldMapping()
		f.Analyzer = analyzer
		f.Store = store
		f.IncludeInAll = false
		f.IncludeTermVectors = false
		return f
	}

	doc.AddFieldMappingsAt("owner_id", keywordField(true, true))
	doc.AddFieldMappingsAt("storage_type", keywordField(true, true))
	doc.AddFieldMappingsAt("path", keywordField(true, true))
	doc.AddFieldMappingsAt("account_id", keywordField(true, false))
	doc.AddFieldMappingsAt("cloud_object_id", keywordField(true, false))
	doc.AddFieldMappingsAt("mime_type", keywordField(true, false))
	doc.AddFieldMappingsAt("last_modified", keywordField(true, false))
	doc.AddFieldMappingsAt("name", analyzedField(NameFullAnalyzer, true))
	doc.AddFieldMappingsAt("name_terms", analyzedField(NameTermsAnalyzer, false))
	doc.AddFieldMappingsAt("name_prefix", analyzedField(NamePrefixAnalyzer, false))

	folder := bleve.NewBooleanFieldMapping()
	folder.Store = true
	folder.IncludeInAll = false
	doc.AddFieldMappingsAt("is_folder", folder)

	im.DefaultMapping = doc
	im.DefaultAnalyzer = keyword.Name
	return im, nil
}

// Ping reports whether the index is open and readable.
func (b *BleveBackend) Ping(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.closed {
		return fmt.Errorf("search index is closed")
	}
	if _, err := b.index.DocCount(); err != nil {
		return fmt.Errorf("search index unreadable: %w", err)
	}
	return nil
}

// Index adds or replaces entries as a single batch.
func (b *BleveBackend) Index(ctx context.Context, entries []*Entry) error {
	if len(entries) == 0 {
		return nil
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return fmt.Errorf("search index is closed")
	}

	batch := b.index.NewBatch()
	for _, e := range entries {
		if err := batch.Index(DocID(e.OwnerID, e.Path), toDoc(e)); err != nil {
			return fmt.Errorf("failed to add %s to batch: %w", e.Path, err)
		}
	}

	if err := ctx.Err(); err != nil {
		return err
	}
	if err := b.index.Batch(batch); err != nil {
		return fmt.Errorf("failed to index batch: %w", err)
	}
	return nil
}

func toDoc(e *Entry) entryDoc {
	d := entryDoc{
		OwnerID:       e.OwnerID,
		Name:          e.Name,
		NameTerms:     e.Name,
		NamePrefix:    e.Name,
		Path:          e.Path,
		StorageType:   string(e.StorageType),
		IsFolder:      e.IsFolder,
		AccountID:     e.AccountID,
		CloudObjectID: e.CloudObjectID,
		MimeType:      e.MimeType,
	}
	if !e.LastModified.IsZero() {
		d.LastModified = e.LastModified.UTC().Format(time.RFC3339Nano)
	}
	return d
}

// Search runs the owner-scoped prefix plus fuzzy name query.
func (b *BleveBackend) Search(ctx context.Context, q BackendQuery) ([]*Entry, error) {
	text := strings.TrimSpace(q.Text)
	if text == "" {
		return nil, nil
	}
	if q.Limit <= 0 {
		q.Limit = 10
	}

	conjuncts := []query.Query{
		b.buildNameQuery(text),
		termQuery("owner_id", q.OwnerID),
	}
	if len(q.Types) > 0 {
		types := make([]query.Query, 0, len(q.Types))
		for _, t := range q.Types {
			types = append(types, termQuery("storage_type", string(t)))
		}
		conjuncts = append(conjuncts, bleve.NewDisjunctionQuery(types...))
	}
	if q.FoldersOnly || q.FilesOnly {
		folder := bleve.NewBoolFieldQuery(q.FoldersOnly)
		folder.SetField("is_folder")
		conjuncts = append(conjuncts, folder)
	}

	req := bleve.NewSearchRequestOptions(bleve.NewConjunctionQuery(conjuncts...), q.Limit, q.Offset, false)
	req.Fields = storedFields
	req.SortBy([]string{"-_score", "name", "_id"})

	b.mu.RLock()
	idx, closed := b.index, b.closed
	b.mu.RUnlock()
	if closed {
		return nil, fmt.Errorf("search index is closed")
	}

	res, err := idx.SearchInContext(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("search failed: %w", err)
	}

	out := make([]*Entry, 0, len(res.Hits))
	for _, hit := range res.Hits {
		out = append(out, fromFields(hit.Fields))
	}
	return out, nil
}

// buildNameQuery matches the whole name by prefix, or every query term by
// prefix (edge n-grams) or by bounded edit distance.
func (b *BleveBackend) buildNameQuery(text string) query.Query {
	lower := strings.ToLower(text)

	whole := bleve.NewPrefixQuery(lower)
	whole.SetField("name")
	whole.SetBoost(b.config.PrefixBoost * 2)

	terms := nameTermPattern.FindAllString(lower, -1)
	if len(terms) == 0 {
		return whole
	}

	perTerm := make([]query.Query, 0, len(terms))
	for _, t := range terms {
		var prefix query.Query
		if utf8.RuneCountInString(t) <= maxEdgeGram {
			tq := bleve.NewTermQuery(t)
			tq.SetField("name_prefix")
			tq.SetBoost(b.config.PrefixBoost)
			prefix = tq
		} else {
			pq := bleve.NewPrefixQuery(t)
			pq.SetField("name_terms")
			pq.SetBoost(b.config.PrefixBoost)
			prefix = pq
		}

		alternatives := []query.Query{prefix}
		if fuzz := fuzziness(t); fuzz > 0 {
			fq := bleve.NewFuzzyQuery(t)
			fq.SetField("name_terms")
			fq.SetFuzziness(fuzz)
			fq.SetBoost(b.config.FuzzyBoost)
			alternatives = append(alternatives, fq)
		}
		perTerm = append(perTerm, bleve.NewDisjunctionQuery(alternatives...))
	}

	var allTerms query.Query = perTerm[0]
	if len(perTerm) > 1 {
		allTerms = bleve.NewConjunctionQuery(perTerm...)
	}
	return bleve.NewDisjunctionQuery(whole, allTerms)
}

// fuzziness scales the allowed edit distance with term length so short
// queries do not match everything.
func fuzziness(term string) int {
	switch n := utf8.RuneCountInString(term); {
	case n <= 2:
		return 0
	case n <= 5:
		return 1
	default:
		return 2
	}
}

func termQuery(field, value string) query.Query {
	tq := bleve.NewTermQuery(value)
	tq.SetField(field)
	return tq
}

func fromFields(fields map[string]any) *Entry {
	str := func(k string) string {
		if v, ok := fields[k].(string); ok {
			return v
		}
		return ""
	}
	e := &Entry{
		OwnerID:       str("owner_id"),
		Name:          str("name"),
		Path:          str("path"),
		StorageType:   StorageType(str("storage_type")),
		AccountID:     str("account_id"),
		CloudObjectID: str("cloud_object_id"),
		MimeType:      str("mime_type"),
	}
	if v, ok := fields["is_folder"].(bool); ok {
		e.IsFolder = v
	}
	if ts := str("last_modified"); ts != "" {
		if t, err := time.Parse(time.RFC3339Nano, ts); err == nil {
			e.LastModified = t
		}
	}
	return e
}

// Count returns the number of indexed documents.
func (b *BleveBackend) Count() (uint64, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		return 0, fmt.Errorf("search index is closed")
	}
	return b.index.DocCount()
}

// Close closes the index. Idempotent.
func (b *BleveBackend) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil
	}
	b.closed = true
	return b.index.Close()
}
