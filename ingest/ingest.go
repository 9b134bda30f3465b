// Package ingest loads movie documents into the semantic index. The
// batch normally comes from an offline job as a JSON file with
// precomputed embeddings; documents without embeddings are embedded
// here before loading.
package ingest

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/goccy/go-json"
	"go.uber.org/zap"

	"github.com/DarioTortorici/cinetech/core"
	"github.com/DarioTortorici/cinetech/embedder"
	"github.com/DarioTortorici/cinetech/index"
	"github.com/DarioTortorici/cinetech/tmdb"
)

// Ingestor embeds and loads document batches.
type Ingestor struct {
	index     *index.Index
	embedder  embedder.Embedder
	batchSize int
	logger    *zap.Logger
}

// New creates an ingestor. The embedder and index dimensionalities must
// already agree; the mismatch check here is the startup guarantee that
// no per-request dimension error can occur later.
func New(idx *index.Index, emb embedder.Embedder, batchSize int, logger *zap.Logger) (*Ingestor, error) {
	if emb.Dimensions() != idx.Dimensions() {
		return nil, fmt.Errorf("embedder produces %d dimensions but index requires %d",
			emb.Dimensions(), idx.Dimensions())
	}
	if batchSize <= 0 {
		batchSize = 64
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Ingestor{index: idx, embedder: emb, batchSize: batchSize, logger: logger}, nil
}

// LoadFile reads a JSON document batch from disk.
func LoadFile(path string) ([]core.Document, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read document batch: %w", err)
	}
	var docs []core.Document
	if err := json.Unmarshal(data, &docs); err != nil {
		return nil, fmt.Errorf("decode document batch: %w", err)
	}
	return docs, nil
}

// Run embeds documents that lack vectors and loads everything into the
// index. Embedding batches are atomic; a failed batch aborts ingestion.
func (g *Ingestor) Run(ctx context.Context, docs []core.Document) error {
	var pending []int
	for i := range docs {
		if len(docs[i].Embedding) == 0 {
			pending = append(pending, i)
		}
	}

	for start := 0; start < len(pending); start += g.batchSize {
		end := min(start+g.batchSize, len(pending))
		chunk := pending[start:end]

		texts := make([]string, len(chunk))
		for j, di := range chunk {
			texts[j] = TextRepresentation(docs[di])
		}

		vectors, err := g.embedder.EmbedBatch(ctx, texts)
		if err != nil {
			return fmt.Errorf("embed batch %d-%d: %w", start, end, err)
		}
		for j, di := range chunk {
			docs[di].Embedding = vectors[j]
		}
	}

	if err := g.index.Add(ctx, docs); err != nil {
		return err
	}
	g.logger.Info("ingestion complete",
		zap.Int("documents", len(docs)), zap.Int("embedded", len(pending)))
	return nil
}

// TextRepresentation builds the rich text embedded for a movie.
func TextRepresentation(doc core.Document) string {
	return fmt.Sprintf("Title: %s. Genres: %s. Director: %s. Main cast: %s. Year: %d. Overview: %s",
		doc.Title,
		strings.Join(doc.Genres, ", "),
		doc.Director,
		strings.Join(doc.Cast, ", "),
		doc.Year,
		doc.Overview,
	)
}

// FetchFromTMDB builds a document batch from the metadata provider's
// top-rated listing, enriched with details and credits. Movies whose
// detail or credit fetch fails are skipped, not fatal.
func FetchFromTMDB(ctx context.Context, client *tmdb.Client, numMovies int, logger *zap.Logger) ([]core.Document, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	var docs []core.Document
	for page := 1; len(docs) < numMovies; page++ {
		listing, err := client.TopRated(ctx, page)
		if err != nil {
			return docs, fmt.Errorf("fetch top rated page %d: %w", page, err)
		}
		if len(listing) == 0 {
			break
		}

		for _, movie := range listing {
			if len(docs) >= numMovies {
				break
			}
			details, err := client.Lookup(ctx, movie.ID)
			if err != nil {
				logger.Warn("skipping movie: details fetch failed",
					zap.Int("movie_id", movie.ID), zap.Error(err))
				continue
			}
			credits, err := client.MovieCredits(ctx, movie.ID)
			if err != nil {
				logger.Warn("skipping movie: credits fetch failed",
					zap.Int("movie_id", movie.ID), zap.Error(err))
				continue
			}

			docs = append(docs, core.Document{
				ID:       strconv.Itoa(details.ID),
				Title:    details.Title,
				Overview: details.Overview,
				Genres:   details.GenreNames(),
				Director: strings.Join(credits.Directors, ", "),
				Cast:     credits.Cast,
				Year:     details.Year(),
				Rating:   details.VoteAverage,
			})
		}
	}
	return docs, nil
}
