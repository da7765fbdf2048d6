package inference

import (
	"context"
	"io"
	"net/http"
	"strings"
	"time"

	einoollama "github.com/cloudwego/eino-ext/components/model/ollama"
	"github.com/cloudwego/eino/components/model"

	"github.com/corvid-labs/skillkernel/internal/config"
)

const defaultOllamaBaseURL = "http://localhost:11434"

func newOllama(ctx context.Context, cfg config.ProviderConfig) (model.ToolCallingChatModel, error) {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = defaultOllamaBaseURL
	}

	mc := &einoollama.ChatModelConfig{BaseURL: baseURL, Model: cfg.Model}
	if cfg.Timeout.Duration() > 0 {
		mc.Timeout = cfg.Timeout.Duration()
	} else {
		mc.Timeout = 300 * time.Second
	}

	opts := &einoollama.Options{}
	if cfg.MaxTokens > 0 {
		opts.NumPredict = cfg.MaxTokens
	}
	if len(cfg.Options) > 0 {
		if temp, ok := cfg.Options["temperature"].(float64); ok {
			opts.Temperature = float32(temp)
		}
		if numCtx, ok := cfg.Options["num_ctx"].(float64); ok {
			opts.NumCtx = int(numCtx)
		}
		if numPredict, ok := cfg.Options["num_predict"].(float64); ok {
			opts.NumPredict = int(numPredict)
		}
		if topP, ok := cfg.Options["top_p"].(float64); ok {
			opts.TopP = float32(topP)
		}
		if topK, ok := cfg.Options["top_k"].(float64); ok {
			opts.TopK = int(topK)
		}
	}
	mc.Options = opts

	// A reverse proxy in front of a local Ollama daemon sometimes answers
	// with a plain-text error body instead of JSON; catch that before eino
	// tries to decode it as a chat response.
	mc.HTTPClient = &http.Client{
		Timeout:   mc.Timeout,
		Transport: &ollamaTransport{inner: http.DefaultTransport},
	}

	return einoollama.NewChatModel(ctx, mc)
}

type ollamaTransport struct {
	inner http.RoundTripper
}

func (t *ollamaTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	resp, err := t.inner.RoundTrip(req)
	if err != nil {
		return nil, &errUnavailable{Driver: "ollama", Cause: err}
	}

	if resp.StatusCode >= 400 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		resp.Body.Close()
		return nil, &errUnavailable{Driver: "ollama", Body: strings.TrimSpace(string(body))}
	}

	ct := resp.Header.Get("Content-Type")
	if ct != "" && !strings.Contains(ct, "json") && !strings.Contains(ct, "ndjson") {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		resp.Body.Close()
		return nil, &errUnavailable{Driver: "ollama", Body: strings.TrimSpace(string(body))}
	}
	return resp, nil
}
