// Package bm25 implements Okapi BM25 keyword scoring, the sparse half of
// the Holographic Index's hybrid search.
package bm25

import (
	"math"
	"sort"
	"strings"
)

const (
	k1 = 1.2
	b  = 0.75
)

// Document is one scoreable unit — a skill command's indexed text.
type Document struct {
	ID   string
	Text string
}

// Result is one scored match.
type Result struct {
	ID    string
	Score float64
}

// Index is an in-memory Okapi BM25 index. Upsert and Delete update the
// per-document term counts and the corpus-wide document frequencies
// incrementally; nothing is rebuilt wholesale.
type Index struct {
	docs     map[string][]string // id -> tokenized text
	docLen   map[string]int
	avgLen   float64
	docFreq  map[string]int // term -> number of documents containing it
	totalDoc int
}

// New creates an empty BM25 index.
func New() *Index {
	return &Index{
		docs:    make(map[string][]string),
		docLen:  make(map[string]int),
		docFreq: make(map[string]int),
	}
}

// Upsert (re)indexes a document under id, replacing any prior version.
func (idx *Index) Upsert(id, text string) {
	idx.Delete(id)

	tokens := Tokenize(text)
	idx.docs[id] = tokens
	idx.docLen[id] = len(tokens)
	idx.totalDoc++

	seen := make(map[string]bool, len(tokens))
	for _, t := range tokens {
		if seen[t] {
			continue
		}
		seen[t] = true
		idx.docFreq[t]++
	}

	idx.recomputeAvgLen()
}

// Delete removes a document from the index, if present.
func (idx *Index) Delete(id string) {
	tokens, ok := idx.docs[id]
	if !ok {
		return
	}
	seen := make(map[string]bool, len(tokens))
	for _, t := range tokens {
		if seen[t] {
			continue
		}
		seen[t] = true
		idx.docFreq[t]--
		if idx.docFreq[t] <= 0 {
			delete(idx.docFreq, t)
		}
	}
	delete(idx.docs, id)
	delete(idx.docLen, id)
	idx.totalDoc--
	idx.recomputeAvgLen()
}

func (idx *Index) recomputeAvgLen() {
	if idx.totalDoc == 0 {
		idx.avgLen = 0
		return
	}
	var total int
	for _, l := range idx.docLen {
		total += l
	}
	idx.avgLen = float64(total) / float64(idx.totalDoc)
}

// Search scores every indexed document against query and returns the top
// limit results, descending by score. Documents scoring zero are omitted.
func (idx *Index) Search(query string, limit int) []Result {
	if limit <= 0 {
		return nil
	}

	queryTerms := Tokenize(query)
	if len(queryTerms) == 0 || idx.totalDoc == 0 {
		return nil
	}

	var results []Result
	for id, tokens := range idx.docs {
		score := idx.scoreDoc(id, tokens, queryTerms)
		if score <= 0 {
			continue
		}
		results = append(results, Result{ID: id, Score: score})
	}

	sort.Slice(results, func(i, j int) bool {
		if results[i].Score != results[j].Score {
			return results[i].Score > results[j].Score
		}
		return results[i].ID < results[j].ID
	})
	if len(results) > limit {
		results = results[:limit]
	}
	return results
}

func (idx *Index) scoreDoc(id string, tokens []string, queryTerms []string) float64 {
	termCount := make(map[string]int, len(tokens))
	for _, t := range tokens {
		termCount[t]++
	}

	docLen := float64(idx.docLen[id])
	var score float64
	for _, term := range queryTerms {
		freq, ok := termCount[term]
		if !ok {
			continue
		}
		df := idx.docFreq[term]
		if df == 0 {
			continue
		}
		idf := math.Log(1 + (float64(idx.totalDoc)-float64(df)+0.5)/(float64(df)+0.5))
		tf := float64(freq)
		denom := tf + k1*(1-b+b*(docLen/idx.avgLen))
		score += idf * (tf * (k1 + 1)) / denom
	}
	return score
}

// IDs returns every indexed document id, unordered.
func (idx *Index) IDs() []string {
	ids := make([]string, 0, len(idx.docs))
	for id := range idx.docs {
		ids = append(ids, id)
	}
	return ids
}

// Tokenize splits s into lowercase, punctuation-stripped words of more
// than one character.
func Tokenize(s string) []string {
	words := strings.Fields(strings.ToLower(s))
	result := make([]string, 0, len(words))
	for _, w := range words {
		w = strings.Trim(w, ".,;:!?\"'()[]{}")
		if len(w) > 1 {
			result = append(result, w)
		}
	}
	return result
}
