package vectorindex

import (
	"context"
	"testing"

	"github.com/cloudwego/eino/components/embedding"
)

// fakeEmbedder returns a deterministic embedding derived from text length,
// just distinct enough for chromem-go's cosine search to rank sensibly in
// these tests without a real model.
type fakeEmbedder struct{}

var _ embedding.Embedder = fakeEmbedder{}

func (fakeEmbedder) EmbedStrings(ctx context.Context, texts []string, opts ...embedding.Option) ([][]float64, error) {
	out := make([][]float64, len(texts))
	for i, t := range texts {
		v := make([]float64, 8)
		for j := range v {
			v[j] = float64((len(t)+j)%7) + 0.1
		}
		out[i] = v
	}
	return out, nil
}

func TestUpsertQueryDelete(t *testing.T) {
	ctx := context.Background()
	idx, err := Open(ctx, t.TempDir(), fakeEmbedder{})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}

	if err := idx.Upsert(ctx, "git.status", "show working tree status", nil); err != nil {
		t.Fatalf("Upsert: %v", err)
	}
	if idx.Count() != 1 {
		t.Fatalf("expected count 1, got %d", idx.Count())
	}

	results, err := idx.Query(ctx, "status", 5)
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	if len(results) != 1 || results[0].ID != "git.status" {
		t.Fatalf("unexpected query results: %v", results)
	}

	if err := idx.Delete(ctx, "git.status"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if idx.Count() != 0 {
		t.Fatalf("expected count 0 after delete, got %d", idx.Count())
	}
}

func TestQueryEmptyIndex(t *testing.T) {
	ctx := context.Background()
	idx, err := Open(ctx, t.TempDir(), fakeEmbedder{})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	results, err := idx.Query(ctx, "anything", 5)
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	if results != nil {
		t.Fatalf("expected nil results for empty index, got %v", results)
	}
}
