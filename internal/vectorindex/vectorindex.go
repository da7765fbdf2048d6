// Package vectorindex wraps chromem-go for the dense half of the
// Holographic Index's hybrid search.
package vectorindex

import (
	"context"
	"path/filepath"

	"github.com/cloudwego/eino/components/embedding"
	chromem "github.com/philippgille/chromem-go"

	"github.com/corvid-labs/skillkernel/internal/kernelerr"
)

const collectionName = "skillkernel_commands"

// Result is a single semantic search hit.
type Result struct {
	ID         string
	Content    string
	Similarity float32
	Metadata   map[string]string
}

// Index wraps a persistent chromem-go collection.
type Index struct {
	db         *chromem.DB
	collection *chromem.Collection
}

// Open opens (creating if needed) a persistent vector index under dir. The
// embedder is bridged from Eino's [][]float64 to chromem-go's []float32.
func Open(ctx context.Context, dir string, embedder embedding.Embedder) (*Index, error) {
	vectorDir := filepath.Join(dir, "vectors")
	db, err := chromem.NewPersistentDB(vectorDir, false)
	if err != nil {
		return nil, kernelerr.Wrap(kernelerr.IndexUnavailable, err, "open vector index at %q", vectorDir)
	}

	ef := bridgeEmbedder(ctx, embedder)
	col, err := db.GetOrCreateCollection(collectionName, nil, ef)
	if err != nil {
		return nil, kernelerr.Wrap(kernelerr.IndexUnavailable, err, "get or create collection")
	}

	return &Index{db: db, collection: col}, nil
}

// Upsert adds or replaces the vector entry for id.
func (idx *Index) Upsert(ctx context.Context, id, content string, meta map[string]string) error {
	if err := idx.collection.Add(ctx, []string{id}, nil, []map[string]string{meta}, []string{content}); err != nil {
		return kernelerr.Wrap(kernelerr.IndexUnavailable, err, "upsert %q", id)
	}
	return nil
}

// Delete removes id from the vector index, if present.
func (idx *Index) Delete(ctx context.Context, id string) error {
	if err := idx.collection.Delete(ctx, nil, nil, id); err != nil {
		return kernelerr.Wrap(kernelerr.IndexUnavailable, err, "delete %q", id)
	}
	return nil
}

// Query performs a semantic search and returns the top nResults matches.
func (idx *Index) Query(ctx context.Context, queryText string, nResults int) ([]Result, error) {
	count := idx.collection.Count()
	if count == 0 {
		return nil, nil
	}
	if nResults > count {
		nResults = count
	}

	results, err := idx.collection.Query(ctx, queryText, nResults, nil, nil)
	if err != nil {
		return nil, kernelerr.Wrap(kernelerr.IndexUnavailable, err, "query")
	}

	out := make([]Result, len(results))
	for i, r := range results {
		out[i] = Result{ID: r.ID, Content: r.Content, Similarity: r.Similarity, Metadata: r.Metadata}
	}
	return out, nil
}

// Count returns the number of entries currently in the index.
func (idx *Index) Count() int {
	return idx.collection.Count()
}

// bridgeEmbedder adapts an Eino Embedder ([][]float64) to chromem-go's
// EmbeddingFunc ([]float32).
func bridgeEmbedder(ctx context.Context, embedder embedding.Embedder) chromem.EmbeddingFunc {
	return func(embedCtx context.Context, text string) ([]float32, error) {
		if embedCtx == context.Background() {
			embedCtx = ctx
		}
		vectors, err := embedder.EmbedStrings(embedCtx, []string{text})
		if err != nil {
			return nil, kernelerr.Wrap(kernelerr.InferenceFailure, err, "embed text")
		}
		if len(vectors) == 0 || len(vectors[0]) == 0 {
			return nil, kernelerr.New(kernelerr.InferenceFailure, "embed text: empty result")
		}

		f64 := vectors[0]
		f32 := make([]float32, len(f64))
		for i, v := range f64 {
			f32[i] = float32(v)
		}
		return f32, nil
	}
}
