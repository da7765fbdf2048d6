package commands

import (
	"context"
	"log/slog"
	"os"

	"github.com/urfave/cli/v3"

	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/corvid-labs/skillkernel/internal/mcpserver"
)

// NewMCPServeCommand returns the mcp-serve subcommand.
func NewMCPServeCommand() *cli.Command {
	return &cli.Command{
		Name:      "mcp-serve",
		Usage:     "Expose every loaded skill's commands as an MCP server (stdio)",
		ArgsUsage: "[skill filter]",
		Action:    runMCPServe,
	}
}

func runMCPServe(ctx context.Context, cmd *cli.Command) error {
	// stdout is reserved for the MCP stdio transport; logs go to stderr only.
	level := slog.LevelWarn
	if cmd.Bool("debug") {
		level = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))

	cfg := loadConfig(cmd)
	k, err := bootWithConfig(ctx, cfg)
	if err != nil {
		return err
	}
	defer k.Close()

	filter := cmd.Args().First()
	server := mcpserver.New(k.Registry, k.Dispatch, filter)
	return server.Run(ctx, &mcpsdk.StdioTransport{})
}
