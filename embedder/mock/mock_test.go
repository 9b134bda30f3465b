package mock_test

import (
	"context"
	"math"
	"testing"

	"github.com/DarioTortorici/cinetech/embedder/mock"
)

func TestDeterministic(t *testing.T) {
	emb := mock.New(16)
	ctx := context.Background()

	a, err := emb.Embed(ctx, "gritty space horror")
	if err != nil {
		t.Fatal(err)
	}
	b, err := emb.Embed(ctx, "gritty space horror")
	if err != nil {
		t.Fatal(err)
	}
	for i := range a {
		if a[i] != b[i] {
			t.Fatalf("same text must embed identically, differs at %d", i)
		}
	}

	c, _ := emb.Embed(ctx, "lighthearted musical")
	same := true
	for i := range a {
		if a[i] != c[i] {
			same = false
			break
		}
	}
	if same {
		t.Error("different texts should not collide")
	}
}

func TestDimensionsAndNorm(t *testing.T) {
	emb := mock.New(32)

	vec, err := emb.Embed(context.Background(), "some text")
	if err != nil {
		t.Fatal(err)
	}
	if len(vec) != 32 {
		t.Fatalf("expected 32 dimensions, got %d", len(vec))
	}
	if emb.Dimensions() != 32 {
		t.Errorf("Dimensions() reports %d", emb.Dimensions())
	}

	var norm float64
	for _, v := range vec {
		norm += float64(v) * float64(v)
	}
	if math.Abs(math.Sqrt(norm)-1) > 1e-5 {
		t.Errorf("embedding should be unit length, got %f", math.Sqrt(norm))
	}
}

func TestEmbedBatchMatchesEmbed(t *testing.T) {
	emb := mock.New(8)
	ctx := context.Background()

	texts := []string{"one", "two", "three"}
	vecs, err := emb.EmbedBatch(ctx, texts)
	if err != nil {
		t.Fatal(err)
	}
	if len(vecs) != len(texts) {
		t.Fatalf("expected %d vectors, got %d", len(texts), len(vecs))
	}
	single, _ := emb.Embed(ctx, "two")
	for i := range single {
		if vecs[1][i] != single[i] {
			t.Fatal("batch embedding must match single embedding")
		}
	}
}
