package inference

import (
	"context"
	"time"

	einoopenai "github.com/cloudwego/eino-ext/components/model/openai"
	"github.com/cloudwego/eino/components/model"

	"github.com/corvid-labs/skillkernel/internal/config"
)

func newOpenAI(ctx context.Context, cfg config.ProviderConfig, auth ResolvedAuth) (model.ToolCallingChatModel, error) {
	mc := &einoopenai.ChatModelConfig{
		APIKey: auth.Value,
		Model:  cfg.Model,
	}
	if cfg.BaseURL != "" {
		mc.BaseURL = cfg.BaseURL
	}
	if cfg.MaxTokens > 0 {
		maxTokens := cfg.MaxTokens
		mc.MaxCompletionTokens = &maxTokens
	}
	if cfg.Timeout.Duration() > 0 {
		mc.Timeout = cfg.Timeout.Duration()
	} else {
		mc.Timeout = 60 * time.Second
	}
	if cfg.Options != nil {
		if temp, ok := cfg.Options["temperature"].(float64); ok {
			t := float32(temp)
			mc.Temperature = &t
		}
	}
	return einoopenai.NewChatModel(ctx, mc)
}

// newMistral reuses OpenAI's wire format since Mistral's hosted API is
// OpenAI-compatible; only the base URL and default model name differ.
func newMistral(ctx context.Context, cfg config.ProviderConfig, auth ResolvedAuth) (model.ToolCallingChatModel, error) {
	modelName := cfg.Model
	if modelName == "" {
		modelName = defaultMistralModel
	}
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = defaultMistralBaseURL
	}

	mc := &einoopenai.ChatModelConfig{
		APIKey:  auth.Value,
		Model:   modelName,
		BaseURL: baseURL,
	}
	if cfg.MaxTokens > 0 {
		maxTokens := cfg.MaxTokens
		mc.MaxCompletionTokens = &maxTokens
	}
	if cfg.Timeout.Duration() > 0 {
		mc.Timeout = cfg.Timeout.Duration()
	} else {
		mc.Timeout = 5 * time.Minute
	}
	if cfg.Options != nil {
		if temp, ok := cfg.Options["temperature"].(float64); ok {
			t := float32(temp)
			mc.Temperature = &t
		}
		if topP, ok := cfg.Options["top_p"].(float64); ok {
			p := float32(topP)
			mc.TopP = &p
		}
	}
	return einoopenai.NewChatModel(ctx, mc)
}

const (
	defaultMistralBaseURL = "https://api.mistral.ai/v1"
	defaultMistralModel   = "mistral-small-latest"
)
