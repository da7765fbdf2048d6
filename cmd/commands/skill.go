package commands

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/urfave/cli/v3"

	"github.com/corvid-labs/skillkernel/internal/kernelerr"
)

// NewSkillCommand returns the skill lifecycle subcommand group.
func NewSkillCommand() *cli.Command {
	return &cli.Command{
		Name:  "skill",
		Usage: "Inspect and manage the loaded skill set",
		Commands: []*cli.Command{
			{
				Name:   "list",
				Usage:  "List currently loaded skills",
				Action: runSkillList,
			},
			{
				Name:      "load",
				Usage:     "Load a skill from a directory",
				ArgsUsage: "<dir>",
				Action:    runSkillLoad,
			},
			{
				Name:      "unload",
				Usage:     "Unload a skill by name",
				ArgsUsage: "<name>",
				Action:    runSkillUnload,
			},
			{
				Name:      "reload",
				Usage:     "Reload a skill from its original directory",
				ArgsUsage: "<name>",
				Action:    runSkillReload,
			},
		},
	}
}

func runSkillList(ctx context.Context, cmd *cli.Command) error {
	k, err := boot(ctx, cmd)
	if err != nil {
		return err
	}
	defer k.Close()

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(k.Registry.All())
}

func runSkillLoad(ctx context.Context, cmd *cli.Command) error {
	dir := cmd.Args().First()
	if dir == "" {
		return kernelerr.New(kernelerr.InvalidArgs, "usage: skillkernel skill load <dir>")
	}
	k, err := boot(ctx, cmd)
	if err != nil {
		return err
	}
	defer k.Close()

	name := filepath.Base(dir)
	skill, err := k.Registry.Load(name, dir)
	if err != nil {
		return err
	}
	fmt.Fprintf(os.Stdout, "loaded %s (%d commands)\n", skill.Name, len(skill.Commands))
	return nil
}

func runSkillUnload(ctx context.Context, cmd *cli.Command) error {
	name := cmd.Args().First()
	if name == "" {
		return kernelerr.New(kernelerr.InvalidArgs, "usage: skillkernel skill unload <name>")
	}
	k, err := boot(ctx, cmd)
	if err != nil {
		return err
	}
	defer k.Close()

	if err := k.Registry.Unload(name); err != nil {
		return err
	}
	fmt.Fprintf(os.Stdout, "unloaded %s\n", name)
	return nil
}

func runSkillReload(ctx context.Context, cmd *cli.Command) error {
	name := cmd.Args().First()
	if name == "" {
		return kernelerr.New(kernelerr.InvalidArgs, "usage: skillkernel skill reload <name>")
	}
	k, err := boot(ctx, cmd)
	if err != nil {
		return err
	}
	defer k.Close()

	skill, err := k.Registry.Reload(name)
	if err != nil {
		return err
	}
	fmt.Fprintf(os.Stdout, "reloaded %s (%d commands)\n", skill.Name, len(skill.Commands))
	return nil
}
