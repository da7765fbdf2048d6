// Package feedback is the Feedback & Reinforcement Store: a persisted map
// from (normalized query, skill) to a confidence score, decayed on every
// read, that biases future routing decisions.
package feedback

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/corvid-labs/skillkernel/internal/kernelerr"
)

const (
	// DefaultDecayRate is applied multiplicatively every time a score is
	// read, not on a background timer.
	DefaultDecayRate = 0.99
	// DefaultFloor is the score below which an entry is purged rather than
	// kept around indefinitely.
	DefaultFloor = 0.01
)

// Store is a nested normalized_query -> skill_id -> score map, persisted as
// a single JSON file via atomic tmp+rename.
type Store struct {
	path      string
	decayRate float64
	floor     float64

	mu   sync.Mutex
	data map[string]map[string]float64
}

// Open loads path if it exists, or starts with an empty store.
func Open(path string, decayRate, floor float64) (*Store, error) {
	s := &Store{
		path:      path,
		decayRate: decayRate,
		floor:     floor,
		data:      make(map[string]map[string]float64),
	}
	if err := s.load(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Store) load() error {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return kernelerr.Wrap(kernelerr.Runtime, err, "read feedback store %q", s.path)
	}
	var m map[string]map[string]float64
	if err := json.Unmarshal(data, &m); err != nil {
		return kernelerr.Wrap(kernelerr.Runtime, err, "parse feedback store %q", s.path)
	}
	s.data = m
	return nil
}

func (s *Store) save() error {
	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return kernelerr.Wrap(kernelerr.Runtime, err, "create feedback store dir")
	}
	data, err := json.MarshalIndent(s.data, "", "  ")
	if err != nil {
		return kernelerr.Wrap(kernelerr.Runtime, err, "marshal feedback store")
	}
	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return kernelerr.Wrap(kernelerr.Runtime, err, "write feedback store tmp file")
	}
	if err := os.Rename(tmp, s.path); err != nil {
		return kernelerr.Wrap(kernelerr.Runtime, err, "rename feedback store into place")
	}
	return nil
}

// Normalize lowercases and collapses whitespace in a query, the canonical
// key form both Record and Boost use.
func Normalize(query string) string {
	return strings.Join(strings.Fields(strings.ToLower(query)), " ")
}

// Record reinforces (success) or penalizes (failure) the score for a
// (query, skill) pair, clamped to [-1, 1], and persists the store.
func (s *Store) Record(query, skill string, success bool) error {
	key := Normalize(query)

	s.mu.Lock()
	defer s.mu.Unlock()

	skills, ok := s.data[key]
	if !ok {
		skills = make(map[string]float64)
		s.data[key] = skills
	}

	score := skills[skill]
	if success {
		score += 0.1
	} else {
		score -= 0.1
	}
	score = clamp(score, -1, 1)
	skills[skill] = score

	return s.save()
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// Boost returns the current score for (query, skill), applying the
// multiplicative per-read decay first. An entry that decays below floor is
// purged and Boost returns 0. Every call decays and persists the value, so
// repeated reads compound: a routing pass that reads the same (query, skill)
// pair for several candidate commands decays it once per read.
func (s *Store) Boost(query, skill string) float64 {
	key := Normalize(query)

	s.mu.Lock()
	defer s.mu.Unlock()

	skills, ok := s.data[key]
	if !ok {
		return 0
	}
	score, ok := skills[skill]
	if !ok {
		return 0
	}

	score *= s.decayRate
	if abs(score) < s.floor {
		delete(skills, skill)
		if len(skills) == 0 {
			delete(s.data, key)
		}
		_ = s.save()
		return 0
	}

	skills[skill] = score
	_ = s.save()
	return score
}

func abs(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}

// BoostAll returns the skill->score map for query without mutating
// anything, for read-only inspection.
func (s *Store) BoostAll(query string) map[string]float64 {
	key := Normalize(query)

	s.mu.Lock()
	defer s.mu.Unlock()

	skills, ok := s.data[key]
	if !ok {
		return nil
	}
	out := make(map[string]float64, len(skills))
	for k, v := range skills {
		out[k] = v
	}
	return out
}
