package commands

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/google/uuid"
	"github.com/urfave/cli/v3"
	"github.com/winters27/streamnook/internal/engine"
	"github.com/winters27/streamnook/pkg/iojson"
)

// EmitCmd drops one event into the spool directory, where a running
// engine picks it up. Useful for scripting and for testing render paths
// without a backend.
type EmitCmd struct {
	flags  *Flags
	reader iojson.FileReader[engine.RawEvent]
}

// NewEmitCmd creates a new emit command.
func NewEmitCmd(flags *Flags) *EmitCmd {
	return &EmitCmd{flags: flags}
}

// Register adds the emit command to the application.
func (cmd *EmitCmd) Register(app *cli.Command) *cli.Command {
	app.Commands = append(app.Commands, &cli.Command{
		Name:        "emit",
		Usage:       "Drop an event into the spool directory",
		UsageText:   "streamnook emit [-f event.json]",
		Description: "Validates one JSON event and writes it into the configured sources.drop_dir for a running engine to consume.",
		Flags: []cli.Flag{
			cmd.reader.Flag(),
		},
		Action: cmd.run,
	})
	return app
}

func (cmd *EmitCmd) run(ctx context.Context, c *cli.Command) error {
	dir := cmd.flags.Config.Sources.DropDir
	if dir == "" {
		return fmt.Errorf("sources.drop_dir is not configured")
	}

	raw, err := cmd.reader.Read()
	if err != nil {
		return err
	}

	// Reject events the engine would drop, so mistakes surface here
	// instead of in the engine log.
	if _, err := engine.NewIngestor(nil).Normalize(raw); err != nil {
		return fmt.Errorf("invalid event: %w", err)
	}

	data, err := json.Marshal(raw)
	if err != nil {
		return fmt.Errorf("encode event: %w", err)
	}

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create spool dir: %w", err)
	}

	// Write-then-rename so the watcher never reads a partial file.
	name := uuid.NewString()
	tmp := filepath.Join(dir, name+".tmp")
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write spool file: %w", err)
	}
	final := filepath.Join(dir, name+".json")
	if err := os.Rename(tmp, final); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("publish spool file: %w", err)
	}

	// Echo the spooled event so render-path tests can diff what went in.
	if err := iojson.Write(c.Root().Writer, raw); err != nil {
		return err
	}
	fmt.Fprintf(c.Root().Writer, "Spooled %s\n", filepath.Base(final))
	return nil
}
