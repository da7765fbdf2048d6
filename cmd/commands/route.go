package commands

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/urfave/cli/v3"

	"github.com/corvid-labs/skillkernel/internal/kernelerr"
)

// NewRouteCommand returns the route subcommand.
func NewRouteCommand() *cli.Command {
	return &cli.Command{
		Name:      "route",
		Usage:     "Resolve a free-text query to a skill.command dispatch decision",
		ArgsUsage: "<query>",
		Action:    runRoute,
	}
}

func runRoute(ctx context.Context, cmd *cli.Command) error {
	query := cmd.Args().First()
	if query == "" {
		return kernelerr.New(kernelerr.InvalidArgs, "usage: skillkernel route <query>")
	}

	k, err := boot(ctx, cmd)
	if err != nil {
		return err
	}
	defer k.Close()

	if k.Router == nil {
		return kernelerr.New(kernelerr.InferenceFailure, "no inference provider configured, cannot route")
	}

	result, err := k.Router.Route(ctx, query)
	if err != nil {
		return err
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(result); err != nil {
		return fmt.Errorf("encode result: %w", err)
	}

	if result.TargetCommand == "clarify" {
		return kernelerr.New(kernelerr.NotFound, "no confident dispatch target, clarification needed")
	}
	return nil
}
