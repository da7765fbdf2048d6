package inference

import (
	"context"

	einoclaude "github.com/cloudwego/eino-ext/components/model/claude"
	"github.com/cloudwego/eino/components/model"

	"github.com/corvid-labs/skillkernel/internal/config"
)

// newClaude builds the thin eino-ext wrapper around Anthropic's API. Unlike
// the "anthropic" driver (anthropic.go), it leans on eino-ext's own request
// translation rather than the hand-rolled one, at the cost of the manual
// streaming reassembly anthropicModel does for tool-use deltas.
func newClaude(ctx context.Context, cfg config.ProviderConfig, auth ResolvedAuth) (model.ToolCallingChatModel, error) {
	modelName := cfg.Model
	if modelName == "" {
		modelName = defaultAnthropicModel
	}

	mc := &einoclaude.Config{
		APIKey: auth.Value,
		Model:  modelName,
	}
	if cfg.BaseURL != "" {
		mc.BaseURL = &cfg.BaseURL
	}
	if cfg.MaxTokens > 0 {
		mc.MaxTokens = cfg.MaxTokens
	} else {
		mc.MaxTokens = defaultAnthropicMaxTokens
	}
	if cfg.Options != nil {
		if temp, ok := cfg.Options["temperature"].(float64); ok {
			t := float32(temp)
			mc.Temperature = &t
		}
	}

	return einoclaude.NewChatModel(ctx, mc)
}
