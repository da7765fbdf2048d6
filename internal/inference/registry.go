package inference

import (
	"context"
	"strings"
	"sync"

	"github.com/cloudwego/eino/components/model"

	"github.com/corvid-labs/skillkernel/internal/config"
	"github.com/corvid-labs/skillkernel/internal/kernelerr"
)

// createModel builds a model.ToolCallingChatModel for one provider config,
// dispatching on cfg.Driver.
func createModel(ctx context.Context, cfg config.ProviderConfig) (model.ToolCallingChatModel, error) {
	switch strings.ToLower(cfg.Driver) {
	case "anthropic":
		auth, err := ResolveAuth(cfg)
		if err != nil {
			return nil, kernelerr.Wrap(kernelerr.InferenceFailure, err, "resolve auth for %q", cfg.Driver)
		}
		return newAnthropic(ctx, cfg, auth)
	case "claude":
		auth, err := ResolveAuth(cfg)
		if err != nil {
			return nil, kernelerr.Wrap(kernelerr.InferenceFailure, err, "resolve auth for %q", cfg.Driver)
		}
		return newClaude(ctx, cfg, auth)
	case "openai":
		auth, err := ResolveAuth(cfg)
		if err != nil {
			return nil, kernelerr.Wrap(kernelerr.InferenceFailure, err, "resolve auth for %q", cfg.Driver)
		}
		return newOpenAI(ctx, cfg, auth)
	case "mistral":
		auth, err := ResolveAuth(cfg)
		if err != nil {
			return nil, kernelerr.Wrap(kernelerr.InferenceFailure, err, "resolve auth for %q", cfg.Driver)
		}
		return newMistral(ctx, cfg, auth)
	case "ollama":
		return newOllama(ctx, cfg)
	default:
		return nil, errUnknownDriver(cfg.Driver)
	}
}

// defaultContextWindows maps known model name prefixes to their context
// window size, used when a provider's config doesn't state one explicitly.
var defaultContextWindows = map[string]int{
	"claude-opus-4":    200000,
	"claude-sonnet-4":  200000,
	"claude-haiku":     200000,
	"gpt-4o":           128000,
	"gpt-4-turbo":      128000,
	"gpt-4":            8192,
	"gpt-3.5-turbo":    16385,
	"o1":               200000,
	"o3":               200000,
	"mistral-large":    128000,
	"mistral-small":    128000,
	"codestral":        256000,
	"open-mistral-nemo": 128000,
}

const fallbackContextWindow = 100000

type providerEntry struct {
	cfg   config.ProviderConfig
	once  sync.Once
	model model.ToolCallingChatModel
	err   error
}

// Registry is the Inference Bridge's named-provider directory: each entry is
// initialized lazily, on first use, and cached for the process lifetime.
type Registry struct {
	mu          sync.RWMutex
	providers   map[string]*providerEntry
	defaultName string
}

// NewRegistry builds a Registry from the kernel's models configuration. No
// provider is actually constructed until Get/Default is first called on it.
func NewRegistry(cfg config.ModelsConfig) *Registry {
	r := &Registry{providers: make(map[string]*providerEntry), defaultName: cfg.Default}
	for name, pc := range cfg.Providers {
		r.providers[name] = &providerEntry{cfg: pc}
	}
	return r
}

// Get returns the named provider's chat model, building it on first call.
func (r *Registry) Get(ctx context.Context, name string) (model.ToolCallingChatModel, error) {
	r.mu.RLock()
	entry, ok := r.providers[name]
	r.mu.RUnlock()
	if !ok {
		return nil, kernelerr.New(kernelerr.NotFound, "inference provider %q not configured", name)
	}
	entry.once.Do(func() { entry.model, entry.err = createModel(ctx, entry.cfg) })
	return entry.model, entry.err
}

// Default returns the configured default provider's chat model.
func (r *Registry) Default(ctx context.Context) (model.ToolCallingChatModel, error) {
	if r.defaultName == "" {
		return nil, kernelerr.New(kernelerr.InferenceFailure, "no default inference provider configured")
	}
	return r.Get(ctx, r.defaultName)
}

// DefaultName returns the configured default provider's name.
func (r *Registry) DefaultName() string { return r.defaultName }

// ContextWindow reports the context window size for a named provider:
// explicit config, then a model-name-prefix match, then a driver default,
// then a global fallback.
func (r *Registry) ContextWindow(name string) int {
	r.mu.RLock()
	entry, ok := r.providers[name]
	r.mu.RUnlock()
	if !ok {
		return fallbackContextWindow
	}
	return resolveContextWindow(entry.cfg)
}

// DefaultContextWindow reports the context window of the default provider.
func (r *Registry) DefaultContextWindow() int {
	return r.ContextWindow(r.defaultName)
}

func resolveContextWindow(cfg config.ProviderConfig) int {
	if cfg.ContextWindow > 0 {
		return cfg.ContextWindow
	}
	best, bestLen := 0, 0
	for prefix, size := range defaultContextWindows {
		if strings.HasPrefix(cfg.Model, prefix) && len(prefix) > bestLen {
			best, bestLen = size, len(prefix)
		}
	}
	if bestLen > 0 {
		return best
	}
	if strings.ToLower(cfg.Driver) == "ollama" {
		return 8192
	}
	return fallbackContextWindow
}
