// Package notify defines the canonical notification model shared by the
// aggregation engine and the presentation layers that consume it.
package notify

import (
	"encoding/json"
	"fmt"
	"time"
)

// Kind identifies the category of a notification. The set is closed;
// adding a kind requires updating the exhaustive switches in this package.
type Kind string

const (
	KindLive          Kind = "live"
	KindWhisper       Kind = "whisper"
	KindUpdate        Kind = "update"
	KindDrops         Kind = "drops"
	KindChannelPoints Kind = "channel_points"
	KindBadge         Kind = "badge"
)

// Kinds returns all known notification kinds.
func Kinds() []Kind {
	return []Kind{KindLive, KindWhisper, KindUpdate, KindDrops, KindChannelPoints, KindBadge}
}

// Valid reports whether k is a known kind.
func (k Kind) Valid() bool {
	switch k {
	case KindLive, KindWhisper, KindUpdate, KindDrops, KindChannelPoints, KindBadge:
		return true
	}
	return false
}

// Clusterable reports whether rapid-fire events of this kind are batched
// into a single summary notification instead of inserted individually.
// Only channel_points clusters today; drops intentionally does not.
func (k Kind) Clusterable() bool {
	return k == KindChannelPoints
}

// Notification is the normalized record stored and displayed, independent
// of the wire shape of the event that produced it.
type Notification struct {
	ID        string
	Kind      Kind
	Timestamp time.Time
	Read      bool
	Payload   Payload
}

// wireNotification is the JSON shape used for persistence and the stdout
// sink. Timestamps cross the boundary as epoch milliseconds.
type wireNotification struct {
	ID        string          `json:"id"`
	Kind      Kind            `json:"kind"`
	Timestamp int64           `json:"timestamp"`
	Read      bool            `json:"read"`
	Payload   json.RawMessage `json:"payload"`
}

// MarshalJSON encodes the notification with its kind-specific payload.
func (n Notification) MarshalJSON() ([]byte, error) {
	payload, err := json.Marshal(n.Payload)
	if err != nil {
		return nil, fmt.Errorf("marshal %s payload: %w", n.Kind, err)
	}
	return json.Marshal(wireNotification{
		ID:        n.ID,
		Kind:      n.Kind,
		Timestamp: n.Timestamp.UnixMilli(),
		Read:      n.Read,
		Payload:   payload,
	})
}

// UnmarshalJSON decodes a notification, dispatching the payload by kind.
func (n *Notification) UnmarshalJSON(data []byte) error {
	var wire wireNotification
	if err := json.Unmarshal(data, &wire); err != nil {
		return fmt.Errorf("unmarshal notification: %w", err)
	}

	payload, err := emptyPayload(wire.Kind)
	if err != nil {
		return err
	}
	if len(wire.Payload) > 0 {
		if err := json.Unmarshal(wire.Payload, payload); err != nil {
			return fmt.Errorf("unmarshal %s payload: %w", wire.Kind, err)
		}
	}

	n.ID = wire.ID
	n.Kind = wire.Kind
	n.Timestamp = time.UnixMilli(wire.Timestamp)
	n.Read = wire.Read
	n.Payload = payload.value()
	return nil
}
