package commands

import (
	"github.com/urfave/cli/v3"

	"github.com/corvid-labs/skillkernel/internal/config"
)

// NewRootCommand returns the top-level CLI command.
func NewRootCommand(version string) *cli.Command {
	return &cli.Command{
		Name:  "skillkernel",
		Usage: "Agentic skill kernel: route, dispatch, and hot-reload declarative skills",
		Version: version,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "Path to config file",
				Value:   config.ConfigPath(),
			},
			&cli.BoolFlag{
				Name:  "debug",
				Usage: "Enable debug logging",
			},
		},
		Commands: []*cli.Command{
			NewRouteCommand(),
			NewExecCommand(),
			NewSkillCommand(),
			NewIndexCommand(),
			NewGatewayCommand(),
			NewMCPServeCommand(),
			NewStatusCommand(),
		},
	}
}
