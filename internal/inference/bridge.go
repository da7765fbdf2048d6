// Package inference is the Inference Bridge: the kernel's only dependency
// on a concrete LLM provider. The Semantic Router and the Agent Loop reach a
// model only through the small Complete/Embed surface in this file and never
// import a provider SDK. Packages that take an embedder (index, vectorindex,
// knowledge) and the Agent Loop's built-in web search tool do import eino's
// interface packages directly.
package inference

import (
	"context"

	"github.com/cloudwego/eino/components/embedding"
	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"

	"github.com/corvid-labs/skillkernel/internal/config"
	"github.com/corvid-labs/skillkernel/internal/kernelerr"
	"github.com/corvid-labs/skillkernel/internal/manifest"
)

// Role mirrors the handful of message roles the kernel ever produces.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleTool      Role = "tool"
)

// Message is one turn of a completion request.
type Message struct {
	Role       Role
	Content    string
	ToolCallID string     // set on Role == RoleTool: which call this answers
	ToolCalls  []ToolCall // set on Role == RoleAssistant when it requested tools
}

// ToolCall is a single tool invocation an assistant message requested.
type ToolCall struct {
	ID        string
	Name      string
	Arguments string // raw JSON object
}

// ToolSpec describes one callable tool to offer the model, named after a
// "skill.command" id so a ToolCall.Name round-trips straight into Dispatch.
type ToolSpec struct {
	Name        string
	Description string
	Parameters  []manifest.ParamSpec
}

// Completion is the Inference collaborator's response to one Complete call.
type Completion struct {
	Text      string
	ToolCalls []ToolCall
}

// Bridge is the Inference collaborator: complete(messages, tools?,
// temperature?) and embed(texts[]), backed by a named chat model provider
// and an embedding model.
type Bridge struct {
	chat     model.ToolCallingChatModel
	embedder embedding.Embedder
}

// New builds a Bridge from an already-resolved chat model and embedder.
// Embedder may be nil if embeddings are disabled.
func New(chat model.ToolCallingChatModel, embedder embedding.Embedder) *Bridge {
	return &Bridge{chat: chat, embedder: embedder}
}

// NewFromConfig resolves the default chat provider from cfg.Models and, if
// enabled, an embedder from cfg.Embedding, and wires them into a Bridge.
func NewFromConfig(ctx context.Context, cfg config.Config) (*Bridge, *Registry, error) {
	reg := NewRegistry(cfg.Models)
	chat, err := reg.Default(ctx)
	if err != nil {
		return nil, reg, err
	}

	var embedder embedding.Embedder
	if cfg.Embedding.IsEnabled() {
		embedder, err = NewEmbedder(ctx, cfg.Embedding)
		if err != nil {
			return nil, reg, err
		}
	}
	return New(chat, embedder), reg, nil
}

// Complete runs one completion turn. tools and temperature are both
// optional: pass a nil tools slice for a tool-free turn, and a nil
// temperature to use the provider's own default.
func (b *Bridge) Complete(ctx context.Context, messages []Message, tools []ToolSpec, temperature *float32) (Completion, error) {
	chat := b.chat
	if len(tools) > 0 {
		withTools, err := chat.WithTools(toSchemaTools(tools))
		if err != nil {
			return Completion{}, kernelerr.Wrap(kernelerr.InferenceFailure, err, "bind tools")
		}
		chat = withTools
	}

	var opts []model.Option
	if temperature != nil {
		opts = append(opts, model.WithTemperature(*temperature))
	}

	resp, err := chat.Generate(ctx, toSchemaMessages(messages), opts...)
	if err != nil {
		if _, ok := kernelerr.As(err); ok {
			return Completion{}, err
		}
		return Completion{}, kernelerr.Wrap(kernelerr.InferenceFailure, err, "completion failed")
	}
	return fromSchemaMessage(resp), nil
}

// Embed returns one vector per input text, in the same order.
func (b *Bridge) Embed(ctx context.Context, texts []string) ([][]float64, error) {
	if b.embedder == nil {
		return nil, kernelerr.New(kernelerr.InferenceFailure, "no embedder configured")
	}
	vecs, err := b.embedder.EmbedStrings(ctx, texts)
	if err != nil {
		return nil, kernelerr.Wrap(kernelerr.InferenceFailure, err, "embed %d texts", len(texts))
	}
	return vecs, nil
}

func toSchemaMessages(messages []Message) []*schema.Message {
	out := make([]*schema.Message, 0, len(messages))
	for _, m := range messages {
		sm := &schema.Message{Role: toSchemaRole(m.Role), Content: m.Content, ToolCallID: m.ToolCallID}
		for _, tc := range m.ToolCalls {
			sm.ToolCalls = append(sm.ToolCalls, schema.ToolCall{
				ID:       tc.ID,
				Function: schema.FunctionCall{Name: tc.Name, Arguments: tc.Arguments},
			})
		}
		out = append(out, sm)
	}
	return out
}

func toSchemaRole(r Role) schema.RoleType {
	switch r {
	case RoleSystem:
		return schema.System
	case RoleAssistant:
		return schema.Assistant
	case RoleTool:
		return schema.Tool
	default:
		return schema.User
	}
}

func toSchemaTools(tools []ToolSpec) []*schema.ToolInfo {
	out := make([]*schema.ToolInfo, 0, len(tools))
	for _, t := range tools {
		info := &schema.ToolInfo{Name: t.Name, Desc: t.Description}
		if len(t.Parameters) > 0 {
			params := make(map[string]*schema.ParameterInfo, len(t.Parameters))
			for _, p := range t.Parameters {
				params[p.Name] = &schema.ParameterInfo{
					Type:     paramDataType(p.Type),
					Desc:     p.Description,
					Required: p.Required,
				}
			}
			info.ParamsOneOf = schema.NewParamsOneOfByParams(params)
		}
		out = append(out, info)
	}
	return out
}

func paramDataType(t string) schema.DataType {
	switch t {
	case "number":
		return schema.Number
	case "integer":
		return schema.Integer
	case "boolean":
		return schema.Boolean
	case "array":
		return schema.Array
	case "object":
		return schema.Object
	default:
		return schema.String
	}
}

func fromSchemaMessage(m *schema.Message) Completion {
	out := Completion{Text: m.Content}
	for _, tc := range m.ToolCalls {
		out.ToolCalls = append(out.ToolCalls, ToolCall{ID: tc.ID, Name: tc.Function.Name, Arguments: tc.Function.Arguments})
	}
	return out
}
