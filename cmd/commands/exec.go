package commands

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/urfave/cli/v3"

	"github.com/corvid-labs/skillkernel/internal/dispatch"
	"github.com/corvid-labs/skillkernel/internal/kernelerr"
)

// NewExecCommand returns the skill.command dispatch subcommand.
func NewExecCommand() *cli.Command {
	return &cli.Command{
		Name:      "exec",
		Usage:     "Dispatch <skill>.<command> directly, bypassing the router",
		ArgsUsage: "<skill>.<command> [key=value...]",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "args",
				Usage: "JSON object of command arguments (overrides key=value positional args)",
			},
			&cli.DurationFlag{
				Name:  "timeout",
				Usage: "Dispatch timeout",
				Value: dispatch.DefaultTimeout,
			},
		},
		Action: runExec,
	}
}

func runExec(ctx context.Context, cmd *cli.Command) error {
	id := cmd.Args().First()
	if id == "" {
		return kernelerr.New(kernelerr.InvalidArgs, "usage: skillkernel exec <skill>.<command> [key=value...]")
	}
	skillName, commandName, ok := strings.Cut(id, ".")
	if !ok || skillName == "" || commandName == "" {
		return kernelerr.New(kernelerr.InvalidArgs, "expected <skill>.<command>, got %q", id)
	}

	args, err := parseArgs(cmd)
	if err != nil {
		return err
	}

	k, err := boot(ctx, cmd)
	if err != nil {
		return err
	}
	defer k.Close()

	res := k.Dispatch.Execute(ctx, skillName, commandName, args, cmd.Duration("timeout"), "")
	k.Dispatch.Drain(5 * time.Second)

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if !res.OK {
		_ = enc.Encode(map[string]any{"ok": false, "kind": res.Kind, "message": res.Message})
		return kernelerr.New(res.Kind, "%s", res.Message)
	}
	if err := enc.Encode(map[string]any{"ok": true, "payload": res.Payload}); err != nil {
		return fmt.Errorf("encode result: %w", err)
	}
	return nil
}

// parseArgs builds the command argument map from --args JSON if given,
// otherwise from positional key=value pairs after the skill.command id.
func parseArgs(cmd *cli.Command) (map[string]any, error) {
	if raw := cmd.String("args"); raw != "" {
		var args map[string]any
		if err := json.Unmarshal([]byte(raw), &args); err != nil {
			return nil, kernelerr.Wrap(kernelerr.InvalidArgs, err, "invalid --args JSON")
		}
		return args, nil
	}

	args := make(map[string]any)
	for _, pair := range cmd.Args().Tail() {
		key, value, ok := strings.Cut(pair, "=")
		if !ok {
			return nil, kernelerr.New(kernelerr.InvalidArgs, "expected key=value, got %q", pair)
		}
		args[key] = coerceArg(value)
	}
	return args, nil
}

// coerceArg parses a positional value as JSON first (so "true", "3",
// "[1,2]" arrive as their native types) and falls back to the raw string
// when it isn't valid JSON.
func coerceArg(value string) any {
	var parsed any
	if err := json.Unmarshal([]byte(value), &parsed); err == nil {
		return parsed
	}
	return value
}
