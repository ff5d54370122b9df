package engine

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/winters27/streamnook/internal/core/notify"
)

// RawEvent is the wire shape of one event pushed across the backend
// boundary: a kind tag plus a kind-specific payload. An ID is optional;
// backends that redeliver (at-least-once) supply one so the store can
// upsert instead of duplicating.
type RawEvent struct {
	ID      string          `json:"id,omitempty"`
	Kind    string          `json:"kind"`
	Payload json.RawMessage `json:"payload"`
}

// Source is one external push channel delivering raw events. Events()
// is closed when the source ends; Close releases its resources and is
// safe to call more than once.
type Source interface {
	ID() string
	Events() <-chan RawEvent
	Close() error
}

// Validation errors for inbound events.
var (
	ErrUnknownKind    = errors.New("unknown event kind")
	ErrMissingField   = errors.New("missing required field")
	ErrEmptyMagnitude = errors.New("points delta must be non-zero")
)

// Normalized is the outcome of validating one raw event: either a complete
// notification ready for the store, or a cluster contribution for a
// clusterable kind (which receives its id and timestamp at flush time).
type Normalized struct {
	Kind         notify.Kind
	Notification *notify.Notification
	Cluster      *ClusterEvent
}

// Ingestor validates raw events against the minimal required-field set for
// their declared kind and maps them to canonical partials. It holds no
// storage or UI state, so it is trivially testable with synthetic events.
type Ingestor struct {
	now   func() time.Time
	newID func() string
}

// NewIngestor creates an ingestor stamping events with the given clock.
func NewIngestor(clock Clock) *Ingestor {
	if clock == nil {
		clock = SystemClock()
	}
	return &Ingestor{
		now:   clock.Now,
		newID: uuid.NewString,
	}
}

// Raw payload shapes, per kind, as pushed by the backend.

type rawLive struct {
	Streamer     string `json:"streamer"`
	AvatarURL    string `json:"avatar_url"`
	Game         string `json:"game"`
	GameImageURL string `json:"game_image_url"`
	Title        string `json:"title"`
	Test         bool   `json:"test"`
}

type rawWhisper struct {
	Sender         string `json:"sender"`
	Message        string `json:"message"`
	ConversationID string `json:"conversation_id"`
}

type rawUpdate struct {
	CurrentVersion string `json:"current_version"`
	LatestVersion  string `json:"latest_version"`
}

type rawDrops struct {
	DropID         string `json:"drop_id"`
	BenefitName    string `json:"benefit_name"`
	RewardImageURL string `json:"reward_image_url"`
}

type rawChannelPoints struct {
	Channel string `json:"channel"`
	Points  int64  `json:"points"`
	Reason  string `json:"reason"`
	Balance int64  `json:"balance"`
}

type rawBadge struct {
	BadgeID string `json:"badge_id"`
	Status  string `json:"status"`
	Date    string `json:"date"`
}

// Normalize validates raw and maps it to a canonical partial. An event
// that fails validation is returned as an error; the caller logs it and
// ingestion continues.
func (ing *Ingestor) Normalize(raw RawEvent) (Normalized, error) {
	kind := notify.Kind(raw.Kind)
	if !kind.Valid() {
		return Normalized{}, fmt.Errorf("%w: %q", ErrUnknownKind, raw.Kind)
	}

	if kind.Clusterable() {
		ev, err := ing.normalizeCluster(kind, raw)
		if err != nil {
			return Normalized{}, err
		}
		return Normalized{Kind: kind, Cluster: ev}, nil
	}

	payload, err := ing.normalizePayload(kind, raw.Payload)
	if err != nil {
		return Normalized{}, err
	}

	id := raw.ID
	if id == "" {
		id = ing.newID()
	}

	return Normalized{
		Kind: kind,
		Notification: &notify.Notification{
			ID:        id,
			Kind:      kind,
			Timestamp: ing.now(),
			Payload:   payload,
		},
	}, nil
}

func (ing *Ingestor) normalizeCluster(kind notify.Kind, raw RawEvent) (*ClusterEvent, error) {
	var p rawChannelPoints
	if err := decode(kind, raw.Payload, &p); err != nil {
		return nil, err
	}
	if p.Points == 0 {
		return nil, fmt.Errorf("%s: %w", kind, ErrEmptyMagnitude)
	}
	return &ClusterEvent{
		Channel: p.Channel,
		Reason:  p.Reason,
		Points:  p.Points,
		Balance: p.Balance,
		At:      ing.now(),
	}, nil
}

func (ing *Ingestor) normalizePayload(kind notify.Kind, data json.RawMessage) (notify.Payload, error) {
	switch kind {
	case notify.KindLive:
		var p rawLive
		if err := decode(kind, data, &p); err != nil {
			return nil, err
		}
		if p.Streamer == "" {
			return nil, missing(kind, "streamer")
		}
		return notify.LivePayload{
			Streamer:     p.Streamer,
			AvatarURL:    p.AvatarURL,
			Game:         p.Game,
			GameImageURL: p.GameImageURL,
			Title:        p.Title,
			Test:         p.Test,
		}, nil

	case notify.KindWhisper:
		var p rawWhisper
		if err := decode(kind, data, &p); err != nil {
			return nil, err
		}
		if p.Sender == "" {
			return nil, missing(kind, "sender")
		}
		if p.Message == "" {
			return nil, missing(kind, "message")
		}
		return notify.WhisperPayload{
			Sender:         p.Sender,
			Message:        p.Message,
			ConversationID: p.ConversationID,
		}, nil

	case notify.KindUpdate:
		var p rawUpdate
		if err := decode(kind, data, &p); err != nil {
			return nil, err
		}
		if p.CurrentVersion == "" {
			return nil, missing(kind, "current_version")
		}
		if p.LatestVersion == "" {
			return nil, missing(kind, "latest_version")
		}
		return notify.UpdatePayload{
			CurrentVersion: p.CurrentVersion,
			LatestVersion:  p.LatestVersion,
		}, nil

	case notify.KindDrops:
		var p rawDrops
		if err := decode(kind, data, &p); err != nil {
			return nil, err
		}
		if p.BenefitName == "" {
			return nil, missing(kind, "benefit_name")
		}
		return notify.DropsPayload{
			DropID:         p.DropID,
			BenefitName:    p.BenefitName,
			RewardImageURL: p.RewardImageURL,
		}, nil

	case notify.KindBadge:
		var p rawBadge
		if err := decode(kind, data, &p); err != nil {
			return nil, err
		}
		if p.BadgeID == "" {
			return nil, missing(kind, "badge_id")
		}
		status := notify.BadgeStatus(p.Status)
		if !status.Valid() {
			return nil, fmt.Errorf("%s: %w: status %q", kind, ErrMissingField, p.Status)
		}
		return notify.BadgePayload{
			BadgeID: p.BadgeID,
			Status:  status,
			Date:    p.Date,
		}, nil

	case notify.KindChannelPoints:
		// Clusterable kinds never reach here; Normalize routes them first.
		return nil, fmt.Errorf("%s: clusterable kind in direct path", kind)

	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownKind, kind)
	}
}

func decode(kind notify.Kind, data json.RawMessage, dest any) error {
	if len(data) == 0 {
		return fmt.Errorf("%s: %w: payload", kind, ErrMissingField)
	}
	if err := json.Unmarshal(data, dest); err != nil {
		return fmt.Errorf("%s: decode payload: %w", kind, err)
	}
	return nil
}

func missing(kind notify.Kind, field string) error {
	return fmt.Errorf("%s: %w: %s", kind, ErrMissingField, field)
}
