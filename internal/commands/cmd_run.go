package commands

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/urfave/cli/v3"
	"github.com/winters27/streamnook/internal/core/config"
	"github.com/winters27/streamnook/internal/core/logging"
	"github.com/winters27/streamnook/internal/core/notify"
	"github.com/winters27/streamnook/internal/engine"
	"github.com/winters27/streamnook/internal/sources/dropdir"
	"github.com/winters27/streamnook/internal/sources/pipe"
	"github.com/winters27/streamnook/internal/sources/updatecheck"
	"github.com/winters27/streamnook/pkg/iojson"
)

// RunCmd runs the engine: it subscribes the configured event sources and
// streams notifications, tray transitions, and sound cues to stdout as
// JSON lines for the desktop shell to render.
type RunCmd struct {
	flags   *Flags
	version string
}

// NewRunCmd creates a new run command.
func NewRunCmd(flags *Flags, version string) *RunCmd {
	return &RunCmd{flags: flags, version: version}
}

// Register adds the run command to the application.
func (cmd *RunCmd) Register(app *cli.Command) *cli.Command {
	app.Commands = append(app.Commands, &cli.Command{
		Name:        "run",
		Usage:       "Run the notification engine",
		UsageText:   "streamnook run",
		Description: "Reads backend events from stdin (and the configured spool directory), aggregates them, and emits render lines on stdout until interrupted.",
		Action:      cmd.Run,
	})
	return app
}

// Run is also the default action when no subcommand is given.
func (cmd *RunCmd) Run(ctx context.Context, c *cli.Command) error {
	cfg := cmd.flags.Config
	out := newEmitter(c.Root().Writer)

	eng, err := engine.New(engine.Options{
		KV:            cmd.flags.KV,
		Capacity:      cfg.Engine.MaxNotifications,
		IdleWindow:    cfg.Engine.IdleWindow(),
		Preview:       cfg.Engine.Preview(),
		Retention:     cfg.Engine.Retention(),
		EventCap:      cfg.Engine.ClusterEventCap,
		EnrichTimeout: cfg.Engine.EnrichTimeout(),
		Prefs:         func() engine.SoundPrefs { return soundPrefs(cfg.Sounds) },
		Method:        engine.Method(cfg.Sounds.Method),
		OnTrayChange:  out.tray,
		Logger:        logging.Component("engine"),
	})
	if err != nil {
		return fmt.Errorf("start engine: %w", err)
	}

	eng.Router().AddSink(engine.SinkFunc(out.notification))
	eng.Router().SetSoundCue(out.sound)

	if err := cmd.attachSources(eng); err != nil {
		_ = eng.Close()
		return err
	}

	sigCtx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()
	<-sigCtx.Done()

	return eng.Close()
}

func (cmd *RunCmd) attachSources(eng *engine.Engine) error {
	cfg := cmd.flags.Config

	if cfg.Sources.Allows("stdin") {
		src := pipe.New("stdin", os.Stdin, logging.Component("pipe"))
		if _, err := eng.Subscribe(src); err != nil {
			return fmt.Errorf("subscribe stdin: %w", err)
		}
	}

	if dir := cfg.Sources.DropDir; dir != "" && cfg.Sources.Allows("dropdir:"+dir) {
		src, err := dropdir.New(dir, logging.Component("dropdir"))
		if err != nil {
			return fmt.Errorf("open spool dir %s: %w", dir, err)
		}
		if _, err := eng.Subscribe(src); err != nil {
			return fmt.Errorf("subscribe spool dir: %w", err)
		}
	}

	if cfg.UpdateCheck.Enabled && cfg.Sources.Allows("update-check") {
		src := updatecheck.NewSource(cmd.flags.KV, cmd.version, cfg.UpdateCheck.Interval())
		if _, err := eng.Subscribe(src); err != nil {
			return fmt.Errorf("subscribe update check: %w", err)
		}
	}

	return nil
}

func soundPrefs(sc config.SoundConfig) engine.SoundPrefs {
	kinds := make(map[notify.Kind]bool, len(sc.Kinds))
	for k, v := range sc.Kinds {
		kinds[notify.Kind(k)] = v
	}
	methods := make(map[engine.Method]bool, len(sc.Methods))
	for m, v := range sc.Methods {
		methods[engine.Method(m)] = v
	}
	return engine.SoundPrefs{
		Enabled:      sc.Enabled,
		Style:        sc.Style,
		Kinds:        kinds,
		Methods:      methods,
		MutePatterns: sc.Mute,
	}
}

// streamLine is one stdout line of the render stream.
type streamLine struct {
	Type         string               `json:"type"`
	Notification *notify.Notification `json:"notification,omitempty"`
	State        string               `json:"state,omitempty"`
	Kind         notify.Kind          `json:"kind,omitempty"`
	Style        string               `json:"style,omitempty"`
}

// emitter serializes render lines; engine callbacks may arrive from timer
// goroutines as well as source pumps.
type emitter struct {
	mu sync.Mutex
	w  io.Writer
}

func newEmitter(w io.Writer) *emitter {
	return &emitter{w: w}
}

func (e *emitter) write(line streamLine) {
	e.mu.Lock()
	defer e.mu.Unlock()
	_ = iojson.WriteLine(e.w, line)
}

func (e *emitter) notification(n notify.Notification) {
	e.write(streamLine{Type: "notification", Notification: &n})
}

func (e *emitter) tray(s engine.TrayState) {
	e.write(streamLine{Type: "tray", State: s.String()})
}

func (e *emitter) sound(kind notify.Kind, style string) {
	e.write(streamLine{Type: "sound", Kind: kind, Style: style})
}
