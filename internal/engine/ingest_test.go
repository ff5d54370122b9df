package engine

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/winters27/streamnook/internal/core/notify"
)

func TestIngestor_Normalize(t *testing.T) {
	clock := newFakeClock()
	ing := NewIngestor(clock)

	t.Run("live event maps to a complete notification", func(t *testing.T) {
		norm, err := ing.Normalize(RawEvent{
			Kind: "live",
			Payload: mustJSON(map[string]any{
				"streamer": "ana",
				"game":     "chess",
				"title":    "road to GM",
			}),
		})
		require.NoError(t, err)
		require.NotNil(t, norm.Notification)
		assert.Nil(t, norm.Cluster)

		n := norm.Notification
		assert.NotEmpty(t, n.ID, "ingestor assigns an id when the backend omits one")
		assert.Equal(t, clock.Now(), n.Timestamp)
		assert.Equal(t, notify.LivePayload{Streamer: "ana", Game: "chess", Title: "road to GM"}, n.Payload)
	})

	t.Run("backend-supplied id is kept for upsert", func(t *testing.T) {
		norm, err := ing.Normalize(RawEvent{
			ID:      "whisper-77",
			Kind:    "whisper",
			Payload: mustJSON(map[string]any{"sender": "bob", "message": "hey"}),
		})
		require.NoError(t, err)
		assert.Equal(t, "whisper-77", norm.Notification.ID)
	})

	t.Run("channel_points routes to the cluster path without id or timestamp", func(t *testing.T) {
		norm, err := ing.Normalize(RawEvent{
			Kind: "channel_points",
			Payload: mustJSON(map[string]any{
				"channel": "ana",
				"points":  50,
				"reason":  "watch",
				"balance": 1050,
			}),
		})
		require.NoError(t, err)
		assert.Nil(t, norm.Notification)
		require.NotNil(t, norm.Cluster)
		assert.Equal(t, int64(50), norm.Cluster.Points)
		assert.Equal(t, "ana", norm.Cluster.Channel)
		assert.Equal(t, int64(1050), norm.Cluster.Balance)
	})

	t.Run("unknown kind is rejected", func(t *testing.T) {
		_, err := ing.Normalize(RawEvent{Kind: "poke", Payload: json.RawMessage(`{}`)})
		assert.ErrorIs(t, err, ErrUnknownKind)
	})

	t.Run("missing required fields are rejected per kind", func(t *testing.T) {
		cases := []struct {
			name string
			raw  RawEvent
		}{
			{"live without streamer", RawEvent{Kind: "live", Payload: mustJSON(map[string]any{"game": "chess"})}},
			{"whisper without sender", RawEvent{Kind: "whisper", Payload: mustJSON(map[string]any{"message": "hi"})}},
			{"whisper without message", RawEvent{Kind: "whisper", Payload: mustJSON(map[string]any{"sender": "bob"})}},
			{"update without latest version", RawEvent{Kind: "update", Payload: mustJSON(map[string]any{"current_version": "1.0.0"})}},
			{"drops without benefit", RawEvent{Kind: "drops", Payload: mustJSON(map[string]any{"drop_id": "d1"})}},
			{"badge without id", RawEvent{Kind: "badge", Payload: mustJSON(map[string]any{"status": "new"})}},
			{"badge with bogus status", RawEvent{Kind: "badge", Payload: mustJSON(map[string]any{"badge_id": "b1", "status": "retired"})}},
			{"empty payload", RawEvent{Kind: "live"}},
		}

		for _, tc := range cases {
			t.Run(tc.name, func(t *testing.T) {
				_, err := ing.Normalize(tc.raw)
				assert.ErrorIs(t, err, ErrMissingField)
			})
		}
	})

	t.Run("zero-magnitude points event is rejected", func(t *testing.T) {
		_, err := ing.Normalize(RawEvent{
			Kind:    "channel_points",
			Payload: mustJSON(map[string]any{"channel": "ana", "points": 0}),
		})
		assert.ErrorIs(t, err, ErrEmptyMagnitude)
	})

	t.Run("malformed payload json is rejected", func(t *testing.T) {
		_, err := ing.Normalize(RawEvent{Kind: "live", Payload: json.RawMessage(`{"streamer":`)})
		require.Error(t, err)
	})

	t.Run("every remaining kind normalizes", func(t *testing.T) {
		cases := map[string]json.RawMessage{
			"update": mustJSON(map[string]any{"current_version": "1.0.0", "latest_version": "1.1.0"}),
			"drops":  mustJSON(map[string]any{"benefit_name": "emote pack"}),
			"badge":  mustJSON(map[string]any{"badge_id": "founder", "status": "coming_soon", "date": "2026-09-01"}),
		}
		for kind, payload := range cases {
			norm, err := ing.Normalize(RawEvent{Kind: kind, Payload: payload})
			require.NoError(t, err, kind)
			require.NotNil(t, norm.Notification, kind)
			assert.Equal(t, notify.Kind(kind), norm.Notification.Kind)
		}
	})
}
