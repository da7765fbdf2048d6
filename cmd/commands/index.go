package commands

import (
	"context"
	"fmt"
	"os"

	"github.com/urfave/cli/v3"
)

// NewIndexCommand returns the index subcommand group.
func NewIndexCommand() *cli.Command {
	return &cli.Command{
		Name:  "index",
		Usage: "Inspect and reconcile the holographic tool index",
		Commands: []*cli.Command{
			{
				Name:   "reconcile",
				Usage:  "Reconcile the index against the currently loaded skill set",
				Action: runIndexReconcile,
			},
		},
	}
}

// runIndexReconcile simply re-runs Boot, whose Boot sequence already
// reconciles the index against the registry's discovered skills; this
// verb exists to expose that as an explicit, nameable operation rather
// than only an implicit side effect of every other verb's startup.
func runIndexReconcile(ctx context.Context, cmd *cli.Command) error {
	k, err := boot(ctx, cmd)
	if err != nil {
		return err
	}
	defer k.Close()

	ids, err := k.Index.IDs(ctx)
	if err != nil {
		return err
	}
	fmt.Fprintf(os.Stdout, "index reconciled: %d entries across %d skills\n", len(ids), len(k.Registry.All()))
	return nil
}
