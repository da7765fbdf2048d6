package commands

import (
	"context"
	"log/slog"
	"os"

	"github.com/urfave/cli/v3"

	"github.com/corvid-labs/skillkernel/internal/config"
	"github.com/corvid-labs/skillkernel/internal/kernel"
)

// setupLogging configures the default slog handler from the --debug flag,
// writing to stderr so stdout stays clean for command output (and free for
// the MCP stdio transport).
func setupLogging(cmd *cli.Command) {
	level := slog.LevelInfo
	if cmd.Bool("debug") {
		level = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))
}

// loadConfig reads the --config path, falling back to defaults with a
// warning if the file doesn't exist.
func loadConfig(cmd *cli.Command) *config.Config {
	cfg, err := config.Load(cmd.String("config"))
	if err != nil {
		slog.Warn("config not found, using defaults", "path", cmd.String("config"), "error", err)
		cfg = config.Default()
	}
	return cfg
}

// boot wires setupLogging, loadConfig, and kernel.Boot into the one-liner
// every verb needs before it can touch the Registry/Router/Dispatch.
func boot(ctx context.Context, cmd *cli.Command) (*kernel.Kernel, error) {
	setupLogging(cmd)
	cfg := loadConfig(cmd)
	return kernel.Boot(ctx, cfg)
}

// bootWithConfig is boot without the setupLogging/loadConfig steps, for
// verbs (mcp-serve) that must configure logging before touching config so
// stdout stays reserved for a non-logging transport.
func bootWithConfig(ctx context.Context, cfg *config.Config) (*kernel.Kernel, error) {
	return kernel.Boot(ctx, cfg)
}
