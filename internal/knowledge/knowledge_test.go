package knowledge

import (
	"context"
	"testing"

	"github.com/cloudwego/eino/components/embedding"
)

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

func openStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(context.Background(), t.TempDir(), fakeEmbedder{}, 0.6)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	return s
}

func TestLookupFiltersByDomain(t *testing.T) {
	ctx := context.Background()
	s := openStore(t)

	if err := s.Upsert(ctx, Entry{ID: "lesson-1", Domain: "harvested_insight", Title: "retry on 429", Content: "rate limits need exponential backoff"}); err != nil {
		t.Fatalf("Upsert: %v", err)
	}
	if err := s.Upsert(ctx, Entry{ID: "note-1", Domain: "scratch", Title: "retry on 429", Content: "rate limits need exponential backoff"}); err != nil {
		t.Fatalf("Upsert: %v", err)
	}

	results, err := s.Lookup(ctx, "rate limit backoff", "harvested_insight", 3)
	if err != nil {
		t.Fatalf("Lookup: %v", err)
	}
	if len(results) != 1 {
		t.Fatalf("expected 1 result, got %d: %+v", len(results), results)
	}
	if results[0].Title != "retry on 429" {
		t.Fatalf("unexpected result: %+v", results[0])
	}
}

func TestLookupRespectsK(t *testing.T) {
	ctx := context.Background()
	s := openStore(t)

	for i := 0; i < 5; i++ {
		id := "lesson-" + string(rune('a'+i))
		if err := s.Upsert(ctx, Entry{ID: id, Domain: "harvested_insight", Title: id, Content: "shared failure pattern across skills"}); err != nil {
			t.Fatalf("Upsert: %v", err)
		}
	}

	results, err := s.Lookup(ctx, "shared failure pattern", "harvested_insight", 2)
	if err != nil {
		t.Fatalf("Lookup: %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("expected 2 results, got %d", len(results))
	}
}

func TestDeleteRemovesFromLookup(t *testing.T) {
	ctx := context.Background()
	s := openStore(t)

	if err := s.Upsert(ctx, Entry{ID: "lesson-1", Domain: "harvested_insight", Title: "t", Content: "unique payload text"}); err != nil {
		t.Fatalf("Upsert: %v", err)
	}
	if err := s.Delete(ctx, "lesson-1"); err != nil {
		t.Fatalf("Delete: %v", err)
	}

	results, err := s.Lookup(ctx, "unique payload text", "harvested_insight", 3)
	if err != nil {
		t.Fatalf("Lookup: %v", err)
	}
	if len(results) != 0 {
		t.Fatalf("expected no results after delete, got %+v", results)
	}
}

func TestOpenReloadsPersistedEntries(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	s1, err := Open(ctx, dir, fakeEmbedder{}, 0.6)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if err := s1.Upsert(ctx, Entry{ID: "lesson-1", Domain: "harvested_insight", Title: "t", Content: "persisted across restarts"}); err != nil {
		t.Fatalf("Upsert: %v", err)
	}

	s2, err := Open(ctx, dir, fakeEmbedder{}, 0.6)
	if err != nil {
		t.Fatalf("reopen Open: %v", err)
	}
	results, err := s2.Lookup(ctx, "persisted across restarts", "harvested_insight", 3)
	if err != nil {
		t.Fatalf("Lookup: %v", err)
	}
	if len(results) != 1 {
		t.Fatalf("expected the entry to survive reopen, got %d results", len(results))
	}
}
