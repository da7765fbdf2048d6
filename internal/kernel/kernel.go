// Package kernel assembles the collaborators named in the kernel's
// external-interface contract — registry, index, feedback, knowledge,
// sniffer, inference bridge, dispatch, router, agent loop — from a loaded
// Config, so every CLI command and server entry point boots the same way.
package kernel

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/cloudwego/eino/components/embedding"

	"github.com/corvid-labs/skillkernel/internal/agentloop"
	"github.com/corvid-labs/skillkernel/internal/config"
	"github.com/corvid-labs/skillkernel/internal/dispatch"
	"github.com/corvid-labs/skillkernel/internal/events"
	"github.com/corvid-labs/skillkernel/internal/feedback"
	"github.com/corvid-labs/skillkernel/internal/index"
	"github.com/corvid-labs/skillkernel/internal/inference"
	"github.com/corvid-labs/skillkernel/internal/isolator"
	"github.com/corvid-labs/skillkernel/internal/knowledge"
	"github.com/corvid-labs/skillkernel/internal/registry"
	"github.com/corvid-labs/skillkernel/internal/router"
	"github.com/corvid-labs/skillkernel/internal/sniffer"
)

// Kernel is every long-lived collaborator wired together and ready to
// serve route/dispatch/agent-loop requests from any surface (CLI,
// gateway, MCP).
type Kernel struct {
	Config   *config.Config
	Bus      *events.Bus
	Registry *registry.Registry
	Index    *index.Index
	Feedback *feedback.Store
	Knowledge *knowledge.Store
	Sniffer  *sniffer.Sniffer
	Isolator *isolator.Isolator
	Bridge   *inference.Bridge
	Dispatch *dispatch.Dispatch
	Router   *router.Router
	Agent    *agentloop.Loop
}

// Boot resolves cfg's collaborators and wires them together. Embedding and
// inference providers are optional: if cfg.Embedding disables embeddings,
// the index and knowledge store fall back to keyword-only search; if no
// model provider resolves, the Router and Agent Loop are left nil and
// callers that don't need them (skill list/load, raw dispatch) still work.
func Boot(ctx context.Context, cfg *config.Config) (*Kernel, error) {
	k := &Kernel{Config: cfg}

	k.Bus = events.NewBus(cfg.Events.BufferSize)

	k.Registry = registry.New(cfg.Registry.Dirs, k.Bus, cfg.Registry.DebounceWindow.Duration())
	if err := k.Registry.DiscoverAll(ctx); err != nil {
		return nil, fmt.Errorf("discover skills: %w", err)
	}

	bridge, _, err := inference.NewFromConfig(ctx, *cfg)
	if err != nil {
		bridge = nil
	}
	k.Bridge = bridge

	var embedder embedding.Embedder
	if cfg.Embedding.IsEnabled() {
		if e, err := inference.NewEmbedder(ctx, cfg.Embedding); err == nil {
			embedder = e
		}
	}

	idx, err := index.Open(ctx, cfg.Index.Dir, embedder, cfg.Index.Alpha, k.Bus)
	if err != nil {
		return nil, fmt.Errorf("open index: %w", err)
	}
	k.Index = idx
	if err := reconcileIndex(ctx, k.Registry, k.Index); err != nil {
		return nil, fmt.Errorf("reconcile index: %w", err)
	}

	know, err := knowledge.Open(ctx, filepath.Join(cfg.Index.Dir, "knowledge"), embedder, cfg.Index.Alpha)
	if err != nil {
		return nil, fmt.Errorf("open knowledge store: %w", err)
	}
	k.Knowledge = know

	feed, err := feedback.Open(cfg.Feedback.Path, cfg.Feedback.DecayRate, cfg.Feedback.Floor)
	if err != nil {
		return nil, fmt.Errorf("open feedback store: %w", err)
	}
	k.Feedback = feed

	k.Sniffer = sniffer.New(".", cfg.Sniffer.ScratchpadPath, cfg.Sniffer.Budget.Duration())
	k.Isolator = isolator.New("")

	k.Dispatch = dispatch.New(k.Registry, k.Isolator, k.Feedback, k.Bus)

	if k.Bridge != nil {
		k.Router = router.New(k.Registry, k.Index, k.Feedback, k.Knowledge, k.Sniffer, k.Bridge, k.Bus, router.Config{
			TopK:               cfg.Index.TopK,
			ConfidenceDispatch: cfg.Router.ConfidenceDispatch,
			ConfidenceCaution:  cfg.Router.ConfidenceCaution,
			CacheSize:          cfg.Router.CacheSize,
		})

		k.Agent = agentloop.New(ctx, k.Registry, k.Knowledge, k.Sniffer, k.Bridge, k.Dispatch, k.Feedback, nil, k.Bus, agentloop.Config{
			Persona:     cfg.Agent.Persona,
			StepBudget:  cfg.Agent.StepBudget,
			StepTimeout: cfg.Agent.StepTimeout.Duration(),
			Reviewer:    cfg.Agent.Reviewer,
		})
	}

	return k, nil
}

// Close releases everything Boot opened that owns a background resource.
func (k *Kernel) Close() {
	if k.Registry != nil {
		k.Registry.Close()
	}
	if k.Bus != nil {
		k.Bus.Close()
	}
}

// reconcileIndex makes the holographic index agree with the registry's
// currently loaded skill set: upserts every loaded command's id and text,
// then drops any indexed id whose skill is no longer loaded.
func reconcileIndex(ctx context.Context, reg *registry.Registry, idx *index.Index) error {
	want := make(map[string]struct{})
	for _, skill := range reg.All() {
		for _, cmd := range skill.Commands {
			id := skill.Name + "." + cmd.Name
			want[id] = struct{}{}
			text := skill.Name + " " + cmd.Name + " " + cmd.Description + " " + skill.Description
			if err := idx.Upsert(ctx, id, text, map[string]any{"skill": skill.Name, "command": cmd.Name}); err != nil {
				return err
			}
		}
	}

	have, err := idx.IDs(ctx)
	if err != nil {
		return err
	}
	for _, id := range have {
		if _, ok := want[id]; !ok {
			if err := idx.Delete(ctx, id); err != nil {
				return err
			}
		}
	}
	return nil
}
