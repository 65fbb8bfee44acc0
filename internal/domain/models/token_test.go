package models_test

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/turtacn/contentsdk/internal/domain/models"
	"github.com/turtacn/contentsdk/pkg/constants"
)

func TestTokenInfo_ValidAt(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	tests := []struct {
		name   string
		token  *models.TokenInfo
		buffer time.Duration
		want   bool
	}{
		{"nil token", nil, 0, false},
		{"empty access token", &models.TokenInfo{ExpiresAt: now.Add(time.Hour)}, 0, false},
		{"well before expiry", &models.TokenInfo{AccessToken: "a", ExpiresAt: now.Add(time.Hour)}, 10 * time.Minute, true},
		{"inside buffer", &models.TokenInfo{AccessToken: "a", ExpiresAt: now.Add(5 * time.Minute)}, 10 * time.Minute, false},
		{"exactly at buffer edge", &models.TokenInfo{AccessToken: "a", ExpiresAt: now.Add(10 * time.Minute)}, 10 * time.Minute, false},
		{"expired", &models.TokenInfo{AccessToken: "a", ExpiresAt: now.Add(-time.Second)}, 0, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.token.ValidAt(now, tt.buffer))
		})
	}
}

func TestTokenResponse_ToTokenInfo(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	var resp models.TokenResponse
	require.NoError(t, json.Unmarshal([]byte(`{
		"access_token": "T1",
		"expires_in": 3600,
		"token_type": "Bearer",
		"restricted_to": [{"scope": "item_preview"}]
	}`), &resp))

	info := resp.ToTokenInfo(now, []string{"item_preview"})
	assert.Equal(t, "T1", info.AccessToken)
	assert.Equal(t, now.Add(time.Hour), info.ExpiresAt)
	assert.Equal(t, constants.TokenTypeBearer, info.TokenType)
	assert.Equal(t, []string{"item_preview"}, info.GrantedScopes)
	assert.JSONEq(t, `[{"scope": "item_preview"}]`, string(info.RestrictedTo))
}

func TestEventPage_DecodesFlexibleCursor(t *testing.T) {
	tests := []struct {
		name string
		body string
		want models.StreamPosition
	}{
		{"number", `{"next_stream_position": 1152922976252290886, "entries": []}`, "1152922976252290886"},
		{"string", `{"next_stream_position": "1152922976252290886", "entries": []}`, "1152922976252290886"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var page models.EventPage
			require.NoError(t, json.Unmarshal([]byte(tt.body), &page))
			assert.Equal(t, tt.want, page.NextStreamPosition)
			assert.True(t, page.Valid())
		})
	}
}

func TestEventPage_ToleratesBadCreatedAt(t *testing.T) {
	body := `{"next_stream_position": "9", "entries": [
		{"event_id": "a", "event_type": "ITEM_UPLOAD", "created_at": "2026-03-01T12:00:00-08:00"},
		{"event_id": "b", "event_type": "ITEM_COPY", "created_at": "yesterday"},
		{"event_id": "c", "created_at": 1700000000},
		{"event_id": "d", "created_at": null},
		{"event_id": "e"}
	]}`

	var page models.EventPage
	require.NoError(t, json.Unmarshal([]byte(body), &page))
	require.Len(t, page.Entries, 5)
	assert.True(t, page.Valid())

	want := time.Date(2026, 3, 1, 20, 0, 0, 0, time.UTC)
	assert.True(t, want.Equal(page.Entries[0].CreatedAt))
	assert.Equal(t, "b", page.Entries[1].EventID)
	assert.Equal(t, "ITEM_COPY", page.Entries[1].EventType)
	for _, ev := range page.Entries[1:] {
		assert.True(t, ev.CreatedAt.IsZero(), ev.EventID)
	}
}

func TestEventPage_Valid(t *testing.T) {
	var missingEntries models.EventPage
	require.NoError(t, json.Unmarshal([]byte(`{"next_stream_position": "5"}`), &missingEntries))
	assert.False(t, missingEntries.Valid())

	var missingCursor models.EventPage
	require.NoError(t, json.Unmarshal([]byte(`{"entries": []}`), &missingCursor))
	assert.False(t, missingCursor.Valid())
}

func TestRealtimeServers_Realtime(t *testing.T) {
	var servers models.RealtimeServers
	require.NoError(t, json.Unmarshal([]byte(`{
		"chunk_size": 1,
		"entries": [
			{"type": "other", "url": "https://ignored"},
			{"type": "realtime_server", "url": "https://realtime.example.com/subscribe?channel=1", "ttl": "10", "max_retries": "10", "retry_timeout": 610}
		]
	}`), &servers))

	info, ok := servers.Realtime()
	require.True(t, ok)
	assert.Equal(t, "https://realtime.example.com/subscribe?channel=1", info.URL)
	assert.Equal(t, 10, info.MaxRetries)
	assert.Equal(t, 610*time.Second, info.RetryTimeout)
	assert.Equal(t, 10*time.Second, info.TTL)

	var empty models.RealtimeServers
	require.NoError(t, json.Unmarshal([]byte(`{"entries": []}`), &empty))
	_, ok = empty.Realtime()
	assert.False(t, ok)
}

func TestParseLongPollSignal(t *testing.T) {
	assert.Equal(t, constants.SignalNewChange, models.ParseLongPollSignal([]byte(`{"message":"new_change"}`)))
	assert.Equal(t, constants.SignalReconnect, models.ParseLongPollSignal([]byte(`{"message":"reconnect"}`)))
	assert.Equal(t, constants.SignalOther, models.ParseLongPollSignal([]byte(`{"message":"timeout"}`)))
	assert.Equal(t, constants.SignalOther, models.ParseLongPollSignal([]byte(`not json`)))
}
