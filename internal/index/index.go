// Package index is the Holographic Index: a hybrid vector+BM25 search over
// every loaded skill's commands, fused with a configurable weight.
package index

import (
	"context"
	"fmt"
	"sort"

	"github.com/cloudwego/eino/components/embedding"

	"github.com/corvid-labs/skillkernel/internal/bm25"
	"github.com/corvid-labs/skillkernel/internal/events"
	"github.com/corvid-labs/skillkernel/internal/vectorindex"
)

// DefaultAlpha is the default fusion weight favoring vector similarity
// over keyword search in the hybrid ranking.
const DefaultAlpha = 0.6

// Hit is one fused search result.
type Hit struct {
	ID    string
	Score float64
}

// Index combines a BM25 keyword index with a vector similarity index.
type Index struct {
	keyword *bm25.Index
	vector  *vectorindex.Index
	alpha   float64
	bus     *events.Bus
}

// Open creates a Holographic Index backed by a persistent vector store
// under dir and an in-memory BM25 index. alpha must be in [0,1]; values
// outside the range are clamped.
func Open(ctx context.Context, dir string, embedder embedding.Embedder, alpha float64, bus *events.Bus) (*Index, error) {
	v, err := vectorindex.Open(ctx, dir, embedder)
	if err != nil {
		return nil, err
	}
	if alpha < 0 {
		alpha = 0
	}
	if alpha > 1 {
		alpha = 1
	}
	return &Index{keyword: bm25.New(), vector: v, alpha: alpha, bus: bus}, nil
}

// Upsert (re)indexes text (and its metadata) under id in both the keyword
// and vector indices.
func (idx *Index) Upsert(ctx context.Context, id string, text string, meta map[string]any) error {
	idx.keyword.Upsert(id, text)
	if err := idx.vector.Upsert(ctx, id, text, stringMeta(meta)); err != nil {
		return err
	}
	idx.publish(events.EventIndexUpserted, id)
	return nil
}

// Delete removes id from both indices.
func (idx *Index) Delete(ctx context.Context, id string) error {
	idx.keyword.Delete(id)
	if err := idx.vector.Delete(ctx, id); err != nil {
		return err
	}
	idx.publish(events.EventIndexDeleted, id)
	return nil
}

// IDs returns every id currently in the keyword index. Upsert and Delete
// write the keyword index first, so after a failed vector write the two
// indices differ and this list follows the keyword side.
func (idx *Index) IDs(ctx context.Context) ([]string, error) {
	return idx.keyword.IDs(), nil
}

// Search fuses BM25 and vector similarity scores:
// score = alpha*vectorScore + (1-alpha)*keywordScore, both normalized to
// [0,1] before fusion.
func (idx *Index) Search(ctx context.Context, query string, topK int) ([]Hit, error) {
	if topK <= 0 {
		return nil, nil
	}

	fetchLimit := topK * 2
	if fetchLimit <= 0 {
		fetchLimit = topK
	}

	keywordResults := idx.keyword.Search(query, fetchLimit)
	vectorResults, err := idx.vector.Query(ctx, query, fetchLimit)
	if err != nil {
		return nil, err
	}

	type scored struct {
		keyword float64
		vector  float64
	}
	merged := make(map[string]*scored)

	var maxKeyword float64
	for _, r := range keywordResults {
		if r.Score > maxKeyword {
			maxKeyword = r.Score
		}
	}
	for _, r := range keywordResults {
		norm := 0.0
		if maxKeyword > 0 {
			norm = r.Score / maxKeyword
		}
		merged[r.ID] = &scored{keyword: norm}
	}

	for _, r := range vectorResults {
		sim := (float64(r.Similarity) + 1) / 2 // cosine [-1,1] -> [0,1]
		if s, ok := merged[r.ID]; ok {
			s.vector = sim
		} else {
			merged[r.ID] = &scored{vector: sim}
		}
	}

	hits := make([]Hit, 0, len(merged))
	for id, s := range merged {
		fused := idx.alpha*s.vector + (1-idx.alpha)*s.keyword
		hits = append(hits, Hit{ID: id, Score: fused})
	}

	sort.Slice(hits, func(i, j int) bool {
		if hits[i].Score != hits[j].Score {
			return hits[i].Score > hits[j].Score
		}
		return hits[i].ID < hits[j].ID
	})
	if len(hits) > topK {
		hits = hits[:topK]
	}
	return hits, nil
}

func (idx *Index) publish(t events.EventType, id string) {
	if idx.bus == nil {
		return
	}
	e := events.NewTypedEvent(events.SourceIndex, events.IndexUpsertedPayload{ID: id})
	e.Type = t
	idx.bus.Publish(e)
}

func stringMeta(meta map[string]any) map[string]string {
	if meta == nil {
		return nil
	}
	out := make(map[string]string, len(meta))
	for k, v := range meta {
		out[k] = fmt.Sprintf("%v", v)
	}
	return out
}
