package commands

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/urfave/cli/v3"
	"github.com/winters27/streamnook/internal/core/logging"
	"github.com/winters27/streamnook/internal/core/notify"
	"github.com/winters27/streamnook/internal/engine"
	"github.com/winters27/streamnook/pkg/iojson"
)

type HistoryCmd struct {
	flags *Flags

	// flags
	jsonOutput bool
	unreadOnly bool
}

// NewHistoryCmd creates a new history command.
func NewHistoryCmd(flags *Flags) *HistoryCmd {
	return &HistoryCmd{flags: flags}
}

// Register adds the history command to the application.
func (cmd *HistoryCmd) Register(app *cli.Command) *cli.Command {
	app.Commands = append(app.Commands, &cli.Command{
		Name:        "history",
		Usage:       "List the persisted notification history",
		UsageText:   "streamnook history [--json] [--unread]",
		Description: "Displays the notification history the engine saved on its last run, newest first. Entries past the retention window are excluded.",
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:        "json",
				Usage:       "output as JSON lines",
				Destination: &cmd.jsonOutput,
			},
			&cli.BoolFlag{
				Name:        "unread",
				Usage:       "only show unread entries",
				Destination: &cmd.unreadOnly,
			},
		},
		Action: cmd.run,
	})
	return app
}

func (cmd *HistoryCmd) run(ctx context.Context, c *cli.Command) error {
	persister := engine.NewPersister(engine.PersisterOptions{
		KV:        cmd.flags.KV,
		Retention: cmd.flags.Config.Engine.Retention(),
		Limit:     cmd.flags.Config.Engine.MaxNotifications,
		Logger:    logging.Component("history"),
	})

	entries := persister.Load(ctx)
	if cmd.unreadOnly {
		kept := entries[:0]
		for _, n := range entries {
			if !n.Read {
				kept = append(kept, n)
			}
		}
		entries = kept
	}

	if len(entries) == 0 {
		if !cmd.jsonOutput {
			fmt.Fprintf(os.Stderr, "No notifications found\n")
		}
		return nil
	}

	out := c.Root().Writer

	if cmd.jsonOutput {
		for _, n := range entries {
			if err := iojson.WriteLine(out, n); err != nil {
				return fmt.Errorf("encode notification: %w", err)
			}
		}
		return nil
	}

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "TIME\tKIND\tREAD\tSUMMARY")
	for _, n := range entries {
		read := ""
		if n.Read {
			read = "yes"
		}
		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%s\n",
			n.Timestamp.Format(time.DateTime), n.Kind, read, summarize(n))
	}
	return w.Flush()
}

// summarize renders the one-line human description of an entry.
func summarize(n notify.Notification) string {
	switch p := n.Payload.(type) {
	case notify.LivePayload:
		if p.Game != "" {
			return fmt.Sprintf("%s is live playing %s", p.Streamer, p.Game)
		}
		return fmt.Sprintf("%s is live", p.Streamer)
	case notify.WhisperPayload:
		return fmt.Sprintf("%s: %s", p.Sender, p.Message)
	case notify.UpdatePayload:
		return fmt.Sprintf("update available: %s -> %s", p.CurrentVersion, p.LatestVersion)
	case notify.DropsPayload:
		return fmt.Sprintf("drop claimed: %s", p.BenefitName)
	case notify.ChannelPointsPayload:
		return p.Summary
	case notify.BadgePayload:
		return fmt.Sprintf("badge %s (%s)", p.BadgeID, p.Status)
	default:
		return ""
	}
}
