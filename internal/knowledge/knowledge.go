// Package knowledge is the KnowledgeStore collaborator: a domain-tagged
// lookup the Router consults for "harvested_insight" lessons. It is opaque
// to the core beyond that one slice — callers never see entries outside the
// domain they asked for.
package knowledge

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"sync"

	"github.com/cloudwego/eino/components/embedding"

	"github.com/corvid-labs/skillkernel/internal/index"
	"github.com/corvid-labs/skillkernel/internal/kernelerr"
)

// Entry is one stored knowledge item.
type Entry struct {
	ID       string            `json:"id"`
	Domain   string            `json:"domain"`
	Title    string            `json:"title"`
	Content  string            `json:"content"`
	Metadata map[string]string `json:"metadata,omitempty"`
}

// Result is one lookup hit: an entry plus its fused search score.
type Result struct {
	Title    string
	Content  string
	Score    float64
	Metadata map[string]string
}

// Store is the KnowledgeStore: entries are hybrid-searchable via the same
// BM25+vector Index the skill command registry uses, with a domain filter
// applied on top of the fused ranking. Entry bodies (title/content/metadata)
// persist as a single atomically-written JSON file beside the index, the
// same FileStore-by-rename idiom the Feedback Store uses.
type Store struct {
	path string
	idx  *index.Index

	mu      sync.Mutex
	entries map[string]Entry
}

// Open loads entries.json (if present) inside dir and wires a hybrid Index
// over its current contents.
func Open(ctx context.Context, dir string, embedder embedding.Embedder, alpha float64) (*Store, error) {
	idx, err := index.Open(ctx, filepath.Join(dir, "vectors"), embedder, alpha, nil)
	if err != nil {
		return nil, err
	}
	s := &Store{path: filepath.Join(dir, "entries.json"), idx: idx, entries: make(map[string]Entry)}
	if err := s.load(ctx); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Store) load(ctx context.Context) error {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return kernelerr.Wrap(kernelerr.Runtime, err, "read knowledge store %q", s.path)
	}
	var entries map[string]Entry
	if err := json.Unmarshal(data, &entries); err != nil {
		return kernelerr.Wrap(kernelerr.Runtime, err, "parse knowledge store %q", s.path)
	}
	for id, e := range entries {
		if err := s.idx.Upsert(ctx, id, e.Title+"\n"+e.Content, nil); err != nil {
			return err
		}
	}
	s.entries = entries
	return nil
}

func (s *Store) save() error {
	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return kernelerr.Wrap(kernelerr.Runtime, err, "create knowledge store dir")
	}
	data, err := json.MarshalIndent(s.entries, "", "  ")
	if err != nil {
		return kernelerr.Wrap(kernelerr.Runtime, err, "marshal knowledge store")
	}
	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return kernelerr.Wrap(kernelerr.Runtime, err, "write knowledge store tmp file")
	}
	if err := os.Rename(tmp, s.path); err != nil {
		return kernelerr.Wrap(kernelerr.Runtime, err, "rename knowledge store into place")
	}
	return nil
}

// Upsert indexes (or re-indexes) an entry, atomically persisting the entry
// body alongside the index update.
func (s *Store) Upsert(ctx context.Context, e Entry) error {
	if err := s.idx.Upsert(ctx, e.ID, e.Title+"\n"+e.Content, nil); err != nil {
		return err
	}
	s.mu.Lock()
	s.entries[e.ID] = e
	err := s.save()
	s.mu.Unlock()
	return err
}

// Delete removes an entry from both the index and the persisted body.
func (s *Store) Delete(ctx context.Context, id string) error {
	if err := s.idx.Delete(ctx, id); err != nil {
		return err
	}
	s.mu.Lock()
	delete(s.entries, id)
	err := s.save()
	s.mu.Unlock()
	return err
}

// Lookup hybrid-searches for query, returning up to k entries restricted to
// domain. Searches a wider candidate window than k since the domain filter
// is applied after fusion, not before.
func (s *Store) Lookup(ctx context.Context, query, domain string, k int) ([]Result, error) {
	if k <= 0 {
		return nil, nil
	}
	hits, err := s.idx.Search(ctx, query, k*4)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	results := make([]Result, 0, k)
	for _, h := range hits {
		e, ok := s.entries[h.ID]
		if !ok || e.Domain != domain {
			continue
		}
		results = append(results, Result{Title: e.Title, Content: e.Content, Score: h.Score, Metadata: e.Metadata})
		if len(results) == k {
			break
		}
	}
	return results, nil
}
