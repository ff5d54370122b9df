package config

import (
	"errors"
	"fmt"
	"slices"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/winters27/streamnook/internal/core/notify"
)

// Validation errors.
var (
	ErrNonPositive    = errors.New("value must be positive")
	ErrInvalidPattern = errors.New("invalid glob pattern")
)

// knownMethods are the presentation methods sound cues can be gated on.
var knownMethods = map[string]struct{}{
	"island": {},
	"toast":  {},
	"native": {},
}

// Validate rejects configurations the engine cannot run with.
func (c Config) Validate() error {
	positives := map[string]int{
		"engine.max_notifications": c.Engine.MaxNotifications,
		"engine.idle_window_ms":    c.Engine.IdleWindowMS,
		"engine.preview_ms":        c.Engine.PreviewMS,
		"engine.retention_days":    c.Engine.RetentionDays,
		"engine.cluster_event_cap": c.Engine.ClusterEventCap,
		"engine.enrich_timeout_ms": c.Engine.EnrichTimeoutMS,
		"database.max_open_conns":  c.Database.MaxOpenConns,
		"database.max_idle_conns":  c.Database.MaxIdleConns,
		"database.busy_timeout":    c.Database.BusyTimeout,
	}
	for field, v := range positives {
		if v <= 0 {
			return fmt.Errorf("%s: %w", field, ErrNonPositive)
		}
	}

	if c.UpdateCheck.Enabled && c.UpdateCheck.IntervalHours <= 0 {
		return fmt.Errorf("update_check.interval_hours: %w", ErrNonPositive)
	}

	if c.Sounds.Method != "" {
		if _, ok := knownMethods[c.Sounds.Method]; !ok {
			return fmt.Errorf("sounds.method: unknown method %q", c.Sounds.Method)
		}
	}

	for method := range c.Sounds.Methods {
		if _, ok := knownMethods[method]; !ok {
			return fmt.Errorf("sounds.methods: unknown method %q", method)
		}
	}

	for kind := range c.Sounds.Kinds {
		if !slices.Contains(notify.Kinds(), notify.Kind(kind)) {
			return fmt.Errorf("sounds.kinds: unknown kind %q", kind)
		}
	}

	for _, pattern := range append(append([]string{}, c.Sources.Enabled...), c.Sounds.Mute...) {
		if !doublestar.ValidatePattern(pattern) {
			return fmt.Errorf("%w: %q", ErrInvalidPattern, pattern)
		}
	}

	return nil
}
