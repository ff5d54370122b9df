package notify

import "fmt"

// Payload is the kind-specific data carried by a notification. The variant
// set is sealed: each kind maps to exactly one payload type, and consumers
// dispatch with an exhaustive type switch.
type Payload interface {
	payloadKind() Kind
}

// LivePayload announces a followed streamer going live.
type LivePayload struct {
	Streamer     string `json:"streamer"`
	AvatarURL    string `json:"avatar_url,omitempty"`
	Game         string `json:"game,omitempty"`
	GameImageURL string `json:"game_image_url,omitempty"`
	Title        string `json:"title,omitempty"`
	Test         bool   `json:"test,omitempty"`
}

// WhisperPayload carries a received direct message.
type WhisperPayload struct {
	Sender         string `json:"sender"`
	Message        string `json:"message"`
	ConversationID string `json:"conversation_id,omitempty"`
	AvatarURL      string `json:"avatar_url,omitempty"`
}

// UpdatePayload announces that a newer client version is available.
type UpdatePayload struct {
	CurrentVersion string `json:"current_version"`
	LatestVersion  string `json:"latest_version"`
}

// DropsPayload announces a claimed drop reward.
type DropsPayload struct {
	DropID         string `json:"drop_id,omitempty"`
	BenefitName    string `json:"benefit_name"`
	RewardImageURL string `json:"reward_image_url,omitempty"`
}

// PointsGroup is one line of a channel-points breakdown: the points earned
// under a single sub-key (channel name, or reason code when no channel
// identity is present).
type PointsGroup struct {
	Key    string `json:"key"`
	Points int64  `json:"points"`
	Count  int    `json:"count"`
}

// ChannelPointsPayload summarizes a burst of channel-points earnings.
type ChannelPointsPayload struct {
	Total     int64         `json:"total"`
	Breakdown []PointsGroup `json:"breakdown"`
	Summary   string        `json:"summary"`
	Balance   int64         `json:"balance,omitempty"`
}

// BadgeStatus is the availability state of an unlocked badge.
type BadgeStatus string

const (
	BadgeStatusNew        BadgeStatus = "new"
	BadgeStatusAvailable  BadgeStatus = "available"
	BadgeStatusComingSoon BadgeStatus = "coming_soon"
)

// Valid reports whether s is a known badge status.
func (s BadgeStatus) Valid() bool {
	switch s {
	case BadgeStatusNew, BadgeStatusAvailable, BadgeStatusComingSoon:
		return true
	}
	return false
}

// BadgePayload announces an unlocked or upcoming badge.
type BadgePayload struct {
	BadgeID string      `json:"badge_id"`
	Status  BadgeStatus `json:"status"`
	Date    string      `json:"date,omitempty"`
}

func (LivePayload) payloadKind() Kind          { return KindLive }
func (WhisperPayload) payloadKind() Kind       { return KindWhisper }
func (UpdatePayload) payloadKind() Kind        { return KindUpdate }
func (DropsPayload) payloadKind() Kind         { return KindDrops }
func (ChannelPointsPayload) payloadKind() Kind { return KindChannelPoints }
func (BadgePayload) payloadKind() Kind         { return KindBadge }

// payloadDecoder lets UnmarshalJSON decode into a concrete pointer and
// then recover the value-typed Payload.
type payloadDecoder interface {
	value() Payload
}

func (p *LivePayload) value() Payload          { return *p }
func (p *WhisperPayload) value() Payload       { return *p }
func (p *UpdatePayload) value() Payload        { return *p }
func (p *DropsPayload) value() Payload         { return *p }
func (p *ChannelPointsPayload) value() Payload { return *p }
func (p *BadgePayload) value() Payload         { return *p }

// emptyPayload returns a decodable zero payload for the given kind.
func emptyPayload(kind Kind) (payloadDecoder, error) {
	switch kind {
	case KindLive:
		return &LivePayload{}, nil
	case KindWhisper:
		return &WhisperPayload{}, nil
	case KindUpdate:
		return &UpdatePayload{}, nil
	case KindDrops:
		return &DropsPayload{}, nil
	case KindChannelPoints:
		return &ChannelPointsPayload{}, nil
	case KindBadge:
		return &BadgePayload{}, nil
	default:
		return nil, fmt.Errorf("unknown notification kind %q", kind)
	}
}
