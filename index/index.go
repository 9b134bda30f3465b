// Package index implements the semantic index over chromem-go, an
// embedded pure-Go vector database.
package index

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"

	chromem "github.com/philippgille/chromem-go"
	"go.uber.org/zap"

	"github.com/DarioTortorici/cinetech/core"
)

const collectionName = "movies"

// Config bounds index behavior.
type Config struct {
	// Path persists the store on disk; empty keeps it in memory.
	Path string

	// Dimensions is the embedding size every document and query must
	// match. A mismatch is a configuration error, not a request failure.
	Dimensions int

	// MaxK bounds the k accepted by Search.
	MaxK int

	// OverfetchFactor multiplies the fetch size when filters are applied
	// client-side (chromem cannot filter on genres or year ranges
	// natively).
	OverfetchFactor int

	// OverfetchAttempts bounds fetch-size enlargement before accepting a
	// smaller-than-k result.
	OverfetchAttempts int
}

// Filters narrows search results. Zero values mean "no constraint".
type Filters struct {
	Genre   string
	YearMin int
	YearMax int
}

func (f *Filters) empty() bool {
	return f == nil || (f.Genre == "" && f.YearMin == 0 && f.YearMax == 0)
}

func (f *Filters) matches(doc core.Document) bool {
	if f == nil {
		return true
	}
	if f.Genre != "" {
		found := false
		for _, g := range doc.Genres {
			if strings.EqualFold(g, f.Genre) {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	if f.YearMin != 0 && doc.Year < f.YearMin {
		return false
	}
	if f.YearMax != 0 && doc.Year > f.YearMax {
		return false
	}
	return true
}

// Index wraps a chromem collection of movie documents.
type Index struct {
	db     *chromem.DB
	col    *chromem.Collection
	cfg    Config
	logger *zap.Logger
}

// New opens (or creates) the movie collection.
func New(cfg Config, logger *zap.Logger) (*Index, error) {
	if cfg.Dimensions <= 0 {
		return nil, fmt.Errorf("index dimensions must be positive, got %d", cfg.Dimensions)
	}
	if cfg.MaxK <= 0 {
		cfg.MaxK = 20
	}
	if cfg.OverfetchFactor < 1 {
		cfg.OverfetchFactor = 3
	}
	if cfg.OverfetchAttempts < 1 {
		cfg.OverfetchAttempts = 3
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	var db *chromem.DB
	var err error
	if cfg.Path != "" {
		db, err = chromem.NewPersistentDB(cfg.Path, false)
		if err != nil {
			return nil, fmt.Errorf("open persistent store: %w", err)
		}
	} else {
		db = chromem.NewDB()
	}

	col, err := db.GetOrCreateCollection(collectionName, nil, nil)
	if err != nil {
		return nil, fmt.Errorf("open collection: %w", err)
	}

	return &Index{db: db, col: col, cfg: cfg, logger: logger}, nil
}

// Dimensions returns the configured embedding size.
func (i *Index) Dimensions() int { return i.cfg.Dimensions }

// MaxK returns the configured result-set bound.
func (i *Index) MaxK() int { return i.cfg.MaxK }

// Count returns the number of ingested documents.
func (i *Index) Count() int { return i.col.Count() }

// Add ingests documents with precomputed embeddings. Documents are
// immutable once ingested. A dimensionality mismatch fails the whole
// batch before anything is written.
func (i *Index) Add(ctx context.Context, docs []core.Document) error {
	for _, doc := range docs {
		if len(doc.Embedding) != i.cfg.Dimensions {
			return fmt.Errorf("document %s embedding has %d dimensions, index requires %d",
				doc.ID, len(doc.Embedding), i.cfg.Dimensions)
		}
	}
	for _, doc := range docs {
		if err := i.col.AddDocument(ctx, chromem.Document{
			ID:        doc.ID,
			Content:   doc.Overview,
			Embedding: doc.Embedding,
			Metadata:  encodeMetadata(doc),
		}); err != nil {
			return fmt.Errorf("%w: add document %s: %v", core.ErrRetrievalUnavailable, doc.ID, err)
		}
	}
	i.logger.Info("documents ingested", zap.Int("count", len(docs)), zap.Int("total", i.col.Count()))
	return nil
}

// Search returns up to k results ordered by similarity descending, ties
// broken by document id ascending. Filters are applied client-side with
// over-fetching; fewer than k qualifying documents is not an error.
func (i *Index) Search(ctx context.Context, queryVector []float32, k int, filters *Filters) ([]core.RetrievalResult, error) {
	if k <= 0 {
		return nil, fmt.Errorf("k must be positive, got %d", k)
	}
	if k > i.cfg.MaxK {
		return nil, fmt.Errorf("k %d exceeds maximum %d", k, i.cfg.MaxK)
	}
	if len(queryVector) != i.cfg.Dimensions {
		return nil, fmt.Errorf("query vector has %d dimensions, index requires %d",
			len(queryVector), i.cfg.Dimensions)
	}

	total := i.col.Count()
	if total == 0 {
		return nil, nil
	}

	if filters.empty() {
		results, err := i.query(ctx, queryVector, min(k, total))
		if err != nil {
			return nil, err
		}
		return rank(results, k), nil
	}

	// Client-side filtering: over-fetch, filter, enlarge on shortfall.
	fetch := min(k*i.cfg.OverfetchFactor, total)
	for attempt := 1; ; attempt++ {
		results, err := i.query(ctx, queryVector, fetch)
		if err != nil {
			return nil, err
		}

		qualified := results[:0]
		for _, r := range results {
			if filters.matches(r.Document) {
				qualified = append(qualified, r)
			}
		}

		if len(qualified) >= k || fetch >= total || attempt >= i.cfg.OverfetchAttempts {
			if len(qualified) < k {
				i.logger.Debug("filtered search returned fewer than k",
					zap.Int("k", k), zap.Int("qualified", len(qualified)), zap.Int("fetched", fetch))
			}
			return rank(qualified, k), nil
		}
		fetch = min(fetch*i.cfg.OverfetchFactor, total)
	}
}

// Get returns a single document by id.
func (i *Index) Get(ctx context.Context, id string) (core.Document, error) {
	doc, err := i.col.GetByID(ctx, id)
	if err != nil {
		return core.Document{}, fmt.Errorf("%w: %s", core.ErrNotFound, id)
	}
	return decodeDocument(doc.ID, doc.Content, doc.Metadata, doc.Embedding), nil
}

func (i *Index) query(ctx context.Context, queryVector []float32, n int) ([]core.RetrievalResult, error) {
	raw, err := i.col.QueryEmbedding(ctx, queryVector, n, nil, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", core.ErrRetrievalUnavailable, err)
	}

	results := make([]core.RetrievalResult, 0, len(raw))
	for _, r := range raw {
		results = append(results, core.RetrievalResult{
			Document:   decodeDocument(r.ID, r.Content, r.Metadata, r.Embedding),
			Similarity: r.Similarity,
		})
	}
	return results, nil
}

// rank sorts by similarity descending with deterministic id tie-break,
// truncates to k and assigns ranks.
func rank(results []core.RetrievalResult, k int) []core.RetrievalResult {
	sort.SliceStable(results, func(a, b int) bool {
		if results[a].Similarity != results[b].Similarity {
			return results[a].Similarity > results[b].Similarity
		}
		return results[a].Document.ID < results[b].Document.ID
	})
	if len(results) > k {
		results = results[:k]
	}
	for idx := range results {
		results[idx].Rank = idx + 1
	}
	return results
}

func encodeMetadata(doc core.Document) map[string]string {
	return map[string]string{
		"title":    doc.Title,
		"genres":   strings.Join(doc.Genres, ", "),
		"director": doc.Director,
		"cast":     strings.Join(doc.Cast, ", "),
		"year":     strconv.Itoa(doc.Year),
		"rating":   strconv.FormatFloat(doc.Rating, 'f', 1, 64),
	}
}

func decodeDocument(id, content string, metadata map[string]string, embedding []float32) core.Document {
	year, _ := strconv.Atoi(metadata["year"])
	rating, _ := strconv.ParseFloat(metadata["rating"], 64)
	return core.Document{
		ID:        id,
		Title:     metadata["title"],
		Overview:  content,
		Genres:    splitList(metadata["genres"]),
		Director:  metadata["director"],
		Cast:      splitList(metadata["cast"]),
		Year:      year,
		Rating:    rating,
		Embedding: embedding,
	}
}

func splitList(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ", ")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
