package ingest_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/DarioTortorici/cinetech/core"
	"github.com/DarioTortorici/cinetech/embedder"
	"github.com/DarioTortorici/cinetech/embedder/mock"
	"github.com/DarioTortorici/cinetech/index"
	"github.com/DarioTortorici/cinetech/ingest"
)

func newTestIndex(t *testing.T, dims int) *index.Index {
	t.Helper()
	idx, err := index.New(index.Config{Dimensions: dims, MaxK: 10}, nil)
	if err != nil {
		t.Fatal(err)
	}
	return idx
}

func TestNewRejectsDimensionMismatch(t *testing.T) {
	idx := newTestIndex(t, 8)

	if _, err := ingest.New(idx, mock.New(16), 0, nil); err == nil {
		t.Error("mismatched dimensionalities must fail at construction")
	}
	if _, err := ingest.New(idx, mock.New(8), 0, nil); err != nil {
		t.Errorf("matching dimensionalities must succeed: %v", err)
	}
}

func TestRunEmbedsAndLoads(t *testing.T) {
	idx := newTestIndex(t, 8)
	ing, err := ingest.New(idx, mock.New(8), 2, nil)
	if err != nil {
		t.Fatal(err)
	}

	docs := []core.Document{
		{ID: "1", Title: "Alien", Overview: "Space horror."},
		{ID: "2", Title: "Heat", Overview: "Crime saga."},
		{ID: "3", Title: "Paddington", Overview: "A bear in London."},
	}
	if err := ing.Run(context.Background(), docs); err != nil {
		t.Fatalf("run: %v", err)
	}
	if idx.Count() != 3 {
		t.Errorf("expected 3 documents indexed, got %d", idx.Count())
	}

	got, err := idx.Get(context.Background(), "2")
	if err != nil {
		t.Fatal(err)
	}
	if got.Title != "Heat" {
		t.Errorf("document mangled: %+v", got)
	}
}

func TestRunSkipsPreEmbeddedDocuments(t *testing.T) {
	idx := newTestIndex(t, 4)
	emb := &countingEmbedder{inner: mock.New(4)}
	ing, err := ingest.New(idx, emb, 10, nil)
	if err != nil {
		t.Fatal(err)
	}

	pre, _ := emb.Embed(context.Background(), "already embedded")
	emb.calls = 0

	docs := []core.Document{
		{ID: "1", Title: "A", Embedding: pre},
		{ID: "2", Title: "B"},
	}
	if err := ing.Run(context.Background(), docs); err != nil {
		t.Fatal(err)
	}
	if emb.batchTexts != 1 {
		t.Errorf("only the unembedded document should be embedded, got %d", emb.batchTexts)
	}
}

func TestRunAbortsOnEmbeddingFailure(t *testing.T) {
	idx := newTestIndex(t, 4)
	emb := &countingEmbedder{inner: mock.New(4), failAfter: 1}
	ing, err := ingest.New(idx, emb, 1, nil)
	if err != nil {
		t.Fatal(err)
	}

	docs := []core.Document{
		{ID: "1", Title: "A"},
		{ID: "2", Title: "B"},
	}
	err = ing.Run(context.Background(), docs)
	if !errors.Is(err, core.ErrEmbeddingUnavailable) {
		t.Fatalf("expected embedding failure to surface, got %v", err)
	}
	if idx.Count() != 0 {
		t.Errorf("a failed ingestion must not partially load the index, count=%d", idx.Count())
	}
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "movies.json")
	body := `[{"id":"1","title":"Alien","genres":["Horror"],"year":1979}]`
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}

	docs, err := ingest.LoadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if len(docs) != 1 || docs[0].Title != "Alien" || docs[0].Year != 1979 {
		t.Errorf("batch decoded wrong: %+v", docs)
	}

	if _, err := ingest.LoadFile(filepath.Join(t.TempDir(), "missing.json")); err == nil {
		t.Error("missing batch file must error")
	}
}

func TestTextRepresentation(t *testing.T) {
	doc := core.Document{
		Title:    "Blade Runner",
		Overview: "A blade runner must pursue replicants.",
		Genres:   []string{"Sci-Fi", "Thriller"},
		Director: "Ridley Scott",
		Cast:     []string{"Harrison Ford"},
		Year:     1982,
	}
	text := ingest.TextRepresentation(doc)
	for _, want := range []string{"Blade Runner", "Sci-Fi, Thriller", "Ridley Scott", "Harrison Ford", "1982"} {
		if !strings.Contains(text, want) {
			t.Errorf("representation missing %q: %s", want, text)
		}
	}
}

// countingEmbedder counts texts embedded via batches and can fail after
// a number of batch calls.
type countingEmbedder struct {
	inner      embedder.Embedder
	calls      int
	batchTexts int
	failAfter  int
}

func (c *countingEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	return c.inner.Embed(ctx, text)
}

func (c *countingEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	c.calls++
	if c.failAfter > 0 && c.calls > c.failAfter {
		return nil, core.ErrEmbeddingUnavailable
	}
	c.batchTexts += len(texts)
	return c.inner.EmbedBatch(ctx, texts)
}

func (c *countingEmbedder) Dimensions() int { return c.inner.Dimensions() }
