package inference

import (
	"context"
	"os"
	"strings"

	"github.com/cloudwego/eino/components/embedding"

	einoollama "github.com/cloudwego/eino-ext/components/embedding/ollama"
	einoopenai "github.com/cloudwego/eino-ext/components/embedding/openai"

	"github.com/corvid-labs/skillkernel/internal/config"
	"github.com/corvid-labs/skillkernel/internal/kernelerr"
)

// NewEmbedder builds the embedding.Embedder the holographic index uses for
// its vector half. Supported drivers: "openai", "ollama".
func NewEmbedder(ctx context.Context, cfg config.EmbeddingConfig) (embedding.Embedder, error) {
	switch strings.ToLower(cfg.Driver) {
	case "openai":
		return newOpenAIEmbedder(ctx, cfg)
	case "ollama":
		return newOllamaEmbedder(ctx, cfg)
	default:
		return nil, kernelerr.New(kernelerr.InferenceFailure, "unsupported embedding driver %q (supported: openai, ollama)", cfg.Driver)
	}
}

func newOpenAIEmbedder(ctx context.Context, cfg config.EmbeddingConfig) (embedding.Embedder, error) {
	key := resolveEmbeddingAuth(cfg)
	if key == "" {
		return nil, kernelerr.New(kernelerr.InferenceFailure, "openai embedding: API key not configured (set embedding.auth.api_key or OPENAI_API_KEY)")
	}

	ec := &einoopenai.EmbeddingConfig{APIKey: key, Model: cfg.Model}
	if cfg.BaseURL != "" {
		ec.BaseURL = cfg.BaseURL
	}
	if cfg.Dims > 0 {
		dims := cfg.Dims
		ec.Dimensions = &dims
	}
	return einoopenai.NewEmbedder(ctx, ec)
}

func newOllamaEmbedder(ctx context.Context, cfg config.EmbeddingConfig) (embedding.Embedder, error) {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = defaultOllamaBaseURL
	}
	return einoollama.NewEmbedder(ctx, &einoollama.EmbeddingConfig{BaseURL: baseURL, Model: cfg.Model})
}

func resolveEmbeddingAuth(cfg config.EmbeddingConfig) string {
	if key := expand(cfg.Auth.APIKey); key != "" {
		return key
	}
	if strings.ToLower(cfg.Driver) == "openai" {
		return os.Getenv("OPENAI_API_KEY")
	}
	return ""
}
