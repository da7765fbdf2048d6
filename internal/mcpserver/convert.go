// Package mcpserver exposes every loaded skill's commands as MCP tools,
// invoked through Dispatch, so any MCP-speaking client can drive the
// kernel the same way the CLI and gateway do.
package mcpserver

import (
	"sort"

	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/corvid-labs/skillkernel/internal/manifest"
)

// commandToMCPTool converts a Command into an mcp.Tool with a JSON Schema
// input shape, named "{skill}.{command}" so CallToolRequest.Params.Name
// round-trips straight into Dispatch.Execute.
func commandToMCPTool(skillName string, cmd manifest.Command) *mcpsdk.Tool {
	props := make(map[string]any, len(cmd.Parameters))
	var required []string

	for _, p := range cmd.Parameters {
		prop := map[string]any{
			"type":        p.Type,
			"description": p.Description,
		}
		if p.Default != nil {
			prop["default"] = p.Default
		}
		props[p.Name] = prop
		if p.Required {
			required = append(required, p.Name)
		}
	}
	sort.Strings(required)

	inputSchema := map[string]any{
		"type":       "object",
		"properties": props,
	}
	if len(required) > 0 {
		inputSchema["required"] = required
	}

	return &mcpsdk.Tool{
		Name:        skillName + "." + cmd.Name,
		Description: cmd.Description,
		InputSchema: inputSchema,
	}
}
