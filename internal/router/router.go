// Package router is the Semantic Router: it turns a free-text query into a
// RoutingResult by fusing hybrid search, feedback-store reinforcement, and
// one Inference.complete call, then bands the result into a dispatch
// decision by confidence.
package router

import (
	"context"
	"encoding/json"
	"sort"
	"strings"
	"sync"

	"github.com/corvid-labs/skillkernel/internal/contextbuilder"
	"github.com/corvid-labs/skillkernel/internal/events"
	"github.com/corvid-labs/skillkernel/internal/feedback"
	"github.com/corvid-labs/skillkernel/internal/index"
	"github.com/corvid-labs/skillkernel/internal/inference"
	"github.com/corvid-labs/skillkernel/internal/kernelerr"
	"github.com/corvid-labs/skillkernel/internal/knowledge"
	"github.com/corvid-labs/skillkernel/internal/manifest"
	"github.com/corvid-labs/skillkernel/internal/sniffer"
)

const (
	// DefaultTopK is the hybrid search candidate window before feedback
	// re-sorting.
	DefaultTopK = 10
	// DefaultConfidenceDispatch is the band at or above which a candidate
	// is dispatched without caution.
	DefaultConfidenceDispatch = 0.8
	// DefaultConfidenceCaution is the band at or above which a candidate is
	// still dispatched, but flagged for the Agent's caution.
	DefaultConfidenceCaution = 0.5
	// ClarifyCommand is the synthetic target_command returned when no
	// candidate clears DefaultConfidenceCaution.
	ClarifyCommand = "clarify"

	lessonDomain = "harvested_insight"
	lessonK      = 3
)

// SkillLister resolves the currently-loaded skill set; satisfied by
// *registry.Registry.
type SkillLister interface {
	All() []*manifest.Skill
}

// RoutingResult is the Router's sole output: the target skill/command,
// the Mission Brief text handed to
// the Agent, a confidence in [0,1], the model's stated reasoning, whether
// this result came from the LRU cache, the environment snapshot taken
// during routing, and any lesson titles consulted.
type RoutingResult struct {
	TargetSkill   string
	TargetCommand string
	TaskBrief     string
	Confidence    float64
	Reasoning     string
	FromCache     bool
	Caution       bool
	EnvSnapshot   sniffer.Snapshot
	Lessons       []string
}

// Router is stateless across calls except for its bounded result cache.
type Router struct {
	registry   SkillLister
	index      *index.Index
	feedback   *feedback.Store
	knowledge  *knowledge.Store
	sniffer    *sniffer.Sniffer
	bridge     *inference.Bridge
	bus        *events.Bus
	topK       int
	confDirect float64
	confCaut   float64

	cache *lruCache
}

// Config bundles the Router's tunables, mirroring config.RouterConfig.
type Config struct {
	TopK               int
	ConfidenceDispatch float64
	ConfidenceCaution  float64
	CacheSize          int
}

// New builds a Router over its required collaborators. knowledge may be nil
// if no KnowledgeStore is configured — lessons are simply omitted.
func New(registry SkillLister, idx *index.Index, feed *feedback.Store, know *knowledge.Store, snf *sniffer.Sniffer, bridge *inference.Bridge, bus *events.Bus, cfg Config) *Router {
	topK := cfg.TopK
	if topK <= 0 {
		topK = DefaultTopK
	}
	confDirect := cfg.ConfidenceDispatch
	if confDirect <= 0 {
		confDirect = DefaultConfidenceDispatch
	}
	confCaut := cfg.ConfidenceCaution
	if confCaut <= 0 {
		confCaut = DefaultConfidenceCaution
	}
	cacheSize := cfg.CacheSize
	if cacheSize <= 0 {
		cacheSize = 256
	}

	return &Router{
		registry: registry, index: idx, feedback: feed, knowledge: know, sniffer: snf, bridge: bridge, bus: bus,
		topK: topK, confDirect: confDirect, confCaut: confCaut,
		cache: newLRU(cacheSize),
	}
}

// candidate is one fused-and-boosted hybrid search hit.
type candidate struct {
	ID    string // "skill.command"
	Score float64
}

// Route resolves query into a RoutingResult. A cache hit returns
// immediately with FromCache=true, skipping hybrid search, knowledge
// lookup, sniffing, and the completion call entirely.
func (r *Router) Route(ctx context.Context, query string) (RoutingResult, error) {
	cacheKey := feedback.Normalize(query)
	if cached, ok := r.cache.get(cacheKey); ok {
		cached.FromCache = true
		return cached, nil
	}

	type assembled struct {
		menu    string
		lessons []knowledge.Result
		env     sniffer.Snapshot
	}
	asm := assembled{}
	var wg sync.WaitGroup
	wg.Add(3)
	go func() {
		defer wg.Done()
		asm.menu = contextbuilder.BuildHelp(r.registry.All())
	}()
	go func() {
		defer wg.Done()
		if r.knowledge != nil {
			if lessons, err := r.knowledge.Lookup(ctx, query, lessonDomain, lessonK); err == nil {
				asm.lessons = lessons
			}
		}
	}()
	go func() {
		defer wg.Done()
		if r.sniffer != nil {
			asm.env = r.sniffer.Snapshot(ctx)
		}
	}()
	wg.Wait()

	hits, err := r.index.Search(ctx, query, r.topK)
	if err != nil {
		return RoutingResult{}, err
	}

	candidates := make([]candidate, 0, len(hits))
	for _, h := range hits {
		skillName, _, _ := strings.Cut(h.ID, ".")
		boost := 0.0
		if r.feedback != nil {
			boost = r.feedback.Boost(query, skillName)
		}
		candidates = append(candidates, candidate{ID: h.ID, Score: h.Score + boost})
	}
	sort.Slice(candidates, func(i, j int) bool { return candidates[i].Score > candidates[j].Score })

	result := r.complete(ctx, query, asm.menu, asm.lessons, asm.env, candidates)
	result.EnvSnapshot = asm.env
	for _, l := range asm.lessons {
		result.Lessons = append(result.Lessons, l.Title)
	}
	r.applyConfidenceBand(&result)

	r.cache.put(cacheKey, result)
	r.publish(query, result)
	return result, nil
}

func (r *Router) publish(query string, result RoutingResult) {
	if r.bus == nil {
		return
	}
	r.bus.Publish(events.NewTypedEvent(events.SourceRouter, events.RoutePayload{
		Query: query, Skill: result.TargetSkill, Command: result.TargetCommand,
		Confidence: result.Confidence, FromCache: result.FromCache,
	}))
}

// completionResponse is the JSON shape the routing prompt asks the model
// to reply with.
type completionResponse struct {
	Skill      string  `json:"skill"`
	Command    string  `json:"command"`
	Brief      string  `json:"task_brief"`
	Confidence float64 `json:"confidence"`
	Reasoning  string  `json:"reasoning"`
}

func (r *Router) complete(ctx context.Context, query, menu string, lessons []knowledge.Result, env sniffer.Snapshot, candidates []candidate) RoutingResult {
	fallback := func(reason string) RoutingResult {
		if len(candidates) == 0 {
			return RoutingResult{TargetCommand: ClarifyCommand, Confidence: 0, Reasoning: reason}
		}
		top := candidates[0]
		skill, command, _ := strings.Cut(top.ID, ".")
		conf := clamp01(top.Score)
		if conf < DefaultConfidenceCaution {
			conf = DefaultConfidenceCaution
		}
		return RoutingResult{
			TargetSkill: skill, TargetCommand: command,
			TaskBrief:  "Handle the request: " + query,
			Confidence: conf, Reasoning: reason,
		}
	}

	if r.bridge == nil || len(candidates) == 0 {
		return fallback("no inference collaborator configured or no candidates matched")
	}

	prompt := buildRoutingPrompt(query, menu, lessons, env, candidates)
	completion, err := r.bridge.Complete(ctx, []inference.Message{
		{Role: inference.RoleSystem, Content: routingRubric},
		{Role: inference.RoleUser, Content: prompt},
	}, nil, nil)
	if err != nil {
		if kerr, ok := kernelerr.As(err); ok && kerr.Kind == kernelerr.InferenceFailure {
			return fallback("inference call failed, degraded to top-scored candidate")
		}
		return fallback(err.Error())
	}

	var parsed completionResponse
	if err := json.Unmarshal([]byte(extractJSON(completion.Text)), &parsed); err != nil {
		return fallback("could not parse routing response")
	}
	if parsed.Skill == "" || parsed.Command == "" {
		return fallback("routing response omitted a target")
	}

	return RoutingResult{
		TargetSkill: parsed.Skill, TargetCommand: parsed.Command,
		TaskBrief: parsed.Brief, Confidence: clamp01(parsed.Confidence), Reasoning: parsed.Reasoning,
	}
}

func (r *Router) applyConfidenceBand(result *RoutingResult) {
	switch {
	case result.Confidence >= r.confDirect:
		// direct dispatch, no caution flag
	case result.Confidence >= r.confCaut:
		result.Caution = true
	default:
		result.TargetCommand = ClarifyCommand
	}
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
