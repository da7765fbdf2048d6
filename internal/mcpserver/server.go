package mcpserver

import (
	"context"
	"encoding/json"
	"log/slog"

	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/corvid-labs/skillkernel/internal/dispatch"
	"github.com/corvid-labs/skillkernel/internal/registry"
)

// New builds an MCP server exposing every command of every loaded skill as
// a tool, routed through disp. If skillFilter is non-empty, only that
// skill's commands are exposed.
func New(reg *registry.Registry, disp *dispatch.Dispatch, skillFilter string) *mcpsdk.Server {
	server := mcpsdk.NewServer(&mcpsdk.Implementation{
		Name:    "skillkernel",
		Version: "0.1.0",
	}, nil)

	for _, skill := range reg.All() {
		if skillFilter != "" && skill.Name != skillFilter {
			continue
		}

		for _, cmd := range skill.Commands {
			tool := commandToMCPTool(skill.Name, cmd)
			skillName, commandName := skill.Name, cmd.Name

			server.AddTool(tool, func(ctx context.Context, req *mcpsdk.CallToolRequest) (*mcpsdk.CallToolResult, error) {
				var args map[string]any
				if len(req.Params.Arguments) > 0 {
					if err := json.Unmarshal(req.Params.Arguments, &args); err != nil {
						return &mcpsdk.CallToolResult{
							IsError: true,
							Content: []mcpsdk.Content{&mcpsdk.TextContent{Text: "invalid arguments: " + err.Error()}},
						}, nil
					}
				}

				res := disp.Execute(ctx, skillName, commandName, args, dispatch.DefaultTimeout, "")
				if !res.OK {
					slog.Debug("mcp tool error", "tool", skillName+"."+commandName, "trace_id", res.Trace.ID, "kind", res.Kind, "message", res.Message)
					return &mcpsdk.CallToolResult{
						IsError: true,
						Content: []mcpsdk.Content{&mcpsdk.TextContent{Text: res.Message}},
					}, nil
				}

				slog.Debug("mcp tool call", "tool", skillName+"."+commandName, "trace_id", res.Trace.ID, "duration", res.Trace.CompletedAt.Sub(res.Trace.StartedAt))

				payload, err := json.Marshal(res.Payload)
				if err != nil {
					payload = []byte(`"` + err.Error() + `"`)
				}
				return &mcpsdk.CallToolResult{
					Content: []mcpsdk.Content{&mcpsdk.TextContent{Text: string(payload)}},
				}, nil
			})

			slog.Debug("mcp tool registered", "tool", skillName+"."+commandName)
		}
	}

	return server
}
