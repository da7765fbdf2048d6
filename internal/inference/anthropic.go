package inference

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/anthropics/anthropic-sdk-go/packages/param"
	"github.com/anthropics/anthropic-sdk-go/packages/ssestream"
	"github.com/cloudwego/eino/callbacks"
	"github.com/cloudwego/eino/components"
	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"

	"github.com/corvid-labs/skillkernel/internal/config"
)

const (
	defaultAnthropicModel     = "claude-sonnet-4-6"
	defaultAnthropicMaxTokens = 4096
)

// anthropicModel implements model.ToolCallingChatModel directly against
// Anthropic's SDK, bypassing eino-ext's thin wrapper so tool-use streaming
// deltas can be reassembled by hand.
type anthropicModel struct {
	client    anthropic.Client
	modelName string
	maxTokens int
	tools     []*schema.ToolInfo
}

func newAnthropic(_ context.Context, cfg config.ProviderConfig, auth ResolvedAuth) (model.ToolCallingChatModel, error) {
	modelName := cfg.Model
	if modelName == "" {
		modelName = defaultAnthropicModel
	}
	maxTokens := cfg.MaxTokens
	if maxTokens == 0 {
		maxTokens = defaultAnthropicMaxTokens
	}

	var opts []option.RequestOption
	switch auth.Kind {
	case AuthBearerToken:
		opts = append(opts, option.WithAuthToken(auth.Value))
	default:
		opts = append(opts, option.WithAPIKey(auth.Value))
	}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}
	if cfg.Timeout.Duration() > 0 {
		opts = append(opts, option.WithRequestTimeout(cfg.Timeout.Duration()))
	} else {
		opts = append(opts, option.WithRequestTimeout(60*time.Second))
	}

	return &anthropicModel{
		client:    anthropic.NewClient(opts...),
		modelName: modelName,
		maxTokens: maxTokens,
	}, nil
}

func (m *anthropicModel) Generate(ctx context.Context, messages []*schema.Message, opts ...model.Option) (outMsg *schema.Message, err error) {
	ctx = callbacks.EnsureRunInfo(ctx, "Anthropic", components.ComponentOfChatModel)
	cbInput := &model.CallbackInput{Messages: messages, Tools: m.tools, Config: &model.Config{Model: m.modelName}}
	ctx = callbacks.OnStart(ctx, cbInput)
	defer func() {
		if err != nil {
			callbacks.OnError(ctx, err)
		}
	}()

	params := m.buildParams(messages, opts)
	resp, err := m.client.Messages.New(ctx, params)
	if err != nil {
		return nil, handleError("anthropic", err)
	}
	outMsg = m.convertResponse(resp)

	callbacks.OnEnd(ctx, &model.CallbackOutput{
		Message: outMsg,
		Config:  cbInput.Config,
		TokenUsage: &model.TokenUsage{
			PromptTokens:     int(resp.Usage.InputTokens),
			CompletionTokens: int(resp.Usage.OutputTokens),
			TotalTokens:      int(resp.Usage.InputTokens + resp.Usage.OutputTokens),
		},
	})
	return outMsg, nil
}

func (m *anthropicModel) Stream(ctx context.Context, messages []*schema.Message, opts ...model.Option) (outStream *schema.StreamReader[*schema.Message], err error) {
	ctx = callbacks.EnsureRunInfo(ctx, "Anthropic", components.ComponentOfChatModel)
	cbInput := &model.CallbackInput{Messages: messages, Tools: m.tools, Config: &model.Config{Model: m.modelName}}
	ctx = callbacks.OnStart(ctx, cbInput)
	defer func() {
		if err != nil {
			callbacks.OnError(ctx, err)
		}
	}()

	params := m.buildParams(messages, opts)
	stream := m.client.Messages.NewStreaming(ctx, params)

	sr, sw := schema.Pipe[*model.CallbackOutput](10)
	go m.streamResponse(ctx, stream, sw, cbInput.Config)

	ctx, nsr := callbacks.OnEndWithStreamOutput(ctx, sr)
	outStream = schema.StreamReaderWithConvert(nsr, func(src *model.CallbackOutput) (*schema.Message, error) {
		if src.Message == nil {
			return nil, schema.ErrNoValue
		}
		return src.Message, nil
	})
	return outStream, nil
}

func (m *anthropicModel) WithTools(tools []*schema.ToolInfo) (model.ToolCallingChatModel, error) {
	return &anthropicModel{client: m.client, modelName: m.modelName, maxTokens: m.maxTokens, tools: tools}, nil
}

func (m *anthropicModel) buildParams(messages []*schema.Message, opts []model.Option) anthropic.MessageNewParams {
	options := model.GetCommonOptions(&model.Options{MaxTokens: &m.maxTokens}, opts...)
	maxTokens := m.maxTokens
	if options.MaxTokens != nil && *options.MaxTokens > 0 {
		maxTokens = *options.MaxTokens
	}

	params := anthropic.MessageNewParams{Model: anthropic.Model(m.modelName), MaxTokens: int64(maxTokens)}
	if options.Temperature != nil {
		params.Temperature = param.NewOpt(float64(*options.Temperature))
	}

	var msgs []anthropic.MessageParam
	for _, msg := range messages {
		if msg.Role == schema.System {
			params.System = append(params.System, anthropic.TextBlockParam{Text: msg.Content})
			continue
		}
		msgs = append(msgs, m.convertMessage(msg))
	}
	params.Messages = msgs

	if len(m.tools) > 0 {
		var tools []anthropic.ToolUnionParam
		for _, tool := range m.tools {
			toolParam := anthropic.ToolUnionParamOfTool(m.convertToolSchema(tool), tool.Name)
			if toolParam.OfTool != nil {
				toolParam.OfTool.Description = param.NewOpt(tool.Desc)
			}
			tools = append(tools, toolParam)
		}
		params.Tools = tools
	}
	return params
}

func (m *anthropicModel) convertToolSchema(tool *schema.ToolInfo) anthropic.ToolInputSchemaParam {
	out := anthropic.ToolInputSchemaParam{}
	if tool.ParamsOneOf == nil {
		return out
	}
	jsonSchema, err := tool.ParamsOneOf.ToJSONSchema()
	if err != nil || jsonSchema == nil {
		return out
	}
	raw, err := json.Marshal(jsonSchema)
	if err != nil {
		return out
	}
	var m2 map[string]any
	if json.Unmarshal(raw, &m2) != nil {
		return out
	}
	if props, ok := m2["properties"]; ok {
		out.Properties = props
	}
	if req, ok := m2["required"].([]any); ok {
		required := make([]string, 0, len(req))
		for _, r := range req {
			if s, ok := r.(string); ok {
				required = append(required, s)
			}
		}
		out.Required = required
	}
	return out
}

func (m *anthropicModel) convertMessage(msg *schema.Message) anthropic.MessageParam {
	switch msg.Role {
	case schema.User:
		return anthropic.NewUserMessage(anthropic.NewTextBlock(msg.Content))
	case schema.Assistant:
		var blocks []anthropic.ContentBlockParamUnion
		if msg.Content != "" {
			blocks = append(blocks, anthropic.NewTextBlock(msg.Content))
		}
		for _, tc := range msg.ToolCalls {
			var input any
			if err := json.Unmarshal([]byte(tc.Function.Arguments), &input); err != nil {
				input = tc.Function.Arguments
			}
			blocks = append(blocks, anthropic.NewToolUseBlock(tc.ID, input, tc.Function.Name))
		}
		return anthropic.NewAssistantMessage(blocks...)
	case schema.Tool:
		return anthropic.NewUserMessage(anthropic.NewToolResultBlock(msg.ToolCallID, msg.Content, false))
	default:
		return anthropic.NewUserMessage(anthropic.NewTextBlock(msg.Content))
	}
}

func (m *anthropicModel) convertResponse(resp *anthropic.Message) *schema.Message {
	out := &schema.Message{
		Role: schema.Assistant,
		ResponseMeta: &schema.ResponseMeta{
			Usage: &schema.TokenUsage{PromptTokens: int(resp.Usage.InputTokens), CompletionTokens: int(resp.Usage.OutputTokens)},
		},
	}
	for _, block := range resp.Content {
		switch block.Type {
		case "text":
			out.Content += block.Text
		case "tool_use":
			argsJSON, err := json.Marshal(block.Input)
			if err != nil {
				argsJSON = []byte("{}")
			}
			out.ToolCalls = append(out.ToolCalls, schema.ToolCall{
				ID:       block.ID,
				Function: schema.FunctionCall{Name: block.Name, Arguments: string(argsJSON)},
			})
		}
	}
	switch resp.StopReason {
	case anthropic.StopReasonToolUse:
		out.ResponseMeta.FinishReason = "tool_calls"
	case anthropic.StopReasonMaxTokens:
		out.ResponseMeta.FinishReason = "length"
	default:
		out.ResponseMeta.FinishReason = "stop"
	}
	return out
}

func (m *anthropicModel) streamResponse(ctx context.Context, stream *ssestream.Stream[anthropic.MessageStreamEventUnion], writer *schema.StreamWriter[*model.CallbackOutput], cfg *model.Config) {
	defer writer.Close()

	var currentToolCall *schema.ToolCall
	var toolArgsJSON strings.Builder
	var usage schema.TokenUsage
	var content strings.Builder

	send := func(msg *schema.Message, tu *model.TokenUsage, err error) bool {
		return writer.Send(&model.CallbackOutput{Message: msg, Config: cfg, TokenUsage: tu}, err)
	}
	finalMsg := func() *schema.Message {
		return &schema.Message{
			Role:         schema.Assistant,
			Content:      content.String(),
			ResponseMeta: &schema.ResponseMeta{Usage: &usage, FinishReason: "stop"},
		}
	}

	for stream.Next() {
		select {
		case <-ctx.Done():
			send(finalMsg(), toModelTokenUsage(&usage), ctx.Err())
			return
		default:
		}

		event := stream.Current()
		switch event.Type {
		case "message_start":
			usage.PromptTokens = int(event.Message.Usage.InputTokens)
		case "content_block_start":
			if cb := event.ContentBlock; cb.Type == "tool_use" {
				currentToolCall = &schema.ToolCall{ID: cb.ID, Function: schema.FunctionCall{Name: cb.Name}}
				toolArgsJSON.Reset()
			}
		case "content_block_delta":
			delta := event.Delta
			switch delta.Type {
			case "text_delta":
				content.WriteString(delta.Text)
				if send(&schema.Message{Role: schema.Assistant, Content: delta.Text}, nil, nil) {
					return
				}
			case "input_json_delta":
				toolArgsJSON.WriteString(delta.PartialJSON)
			}
		case "content_block_stop":
			if currentToolCall != nil {
				currentToolCall.Function.Arguments = toolArgsJSON.String()
				if send(&schema.Message{Role: schema.Assistant, ToolCalls: []schema.ToolCall{*currentToolCall}}, nil, nil) {
					return
				}
				currentToolCall = nil
			}
		case "message_delta":
			usage.CompletionTokens = int(event.Usage.OutputTokens)
		case "message_stop":
			send(finalMsg(), toModelTokenUsage(&usage), nil)
			return
		}
	}
	if err := stream.Err(); err != nil {
		send(finalMsg(), toModelTokenUsage(&usage), err)
	}
}

func toModelTokenUsage(u *schema.TokenUsage) *model.TokenUsage {
	if u == nil {
		return nil
	}
	return &model.TokenUsage{PromptTokens: u.PromptTokens, CompletionTokens: u.CompletionTokens, TotalTokens: u.PromptTokens + u.CompletionTokens}
}

var _ model.ToolCallingChatModel = (*anthropicModel)(nil)
