package commands

import (
	"context"
	"fmt"

	"github.com/urfave/cli/v3"
	"github.com/winters27/streamnook/internal/core/logging"
	"github.com/winters27/streamnook/internal/engine"
)

type ClearCmd struct {
	flags *Flags
}

// NewClearCmd creates a new clear command.
func NewClearCmd(flags *Flags) *ClearCmd {
	return &ClearCmd{flags: flags}
}

// Register adds the clear command to the application.
func (cmd *ClearCmd) Register(app *cli.Command) *cli.Command {
	app.Commands = append(app.Commands, &cli.Command{
		Name:        "clear",
		Usage:       "Delete the persisted notification history",
		UsageText:   "streamnook clear",
		Description: "Removes the saved notification snapshot. A running engine is unaffected; it rewrites its state on the next change.",
		Action:      cmd.run,
	})
	return app
}

func (cmd *ClearCmd) run(ctx context.Context, c *cli.Command) error {
	persister := engine.NewPersister(engine.PersisterOptions{
		KV:     cmd.flags.KV,
		Logger: logging.Component("clear"),
	})

	if err := persister.Clear(ctx); err != nil {
		return fmt.Errorf("clear history: %w", err)
	}

	fmt.Fprintln(c.Root().Writer, "Notification history cleared")
	return nil
}
