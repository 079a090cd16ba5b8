package audit

import (
	"bytes"
	"encoding/json"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestZerologLogger_Log(t *testing.T) {
	var buf bytes.Buffer
	l := NewJSONLogger(&buf)

	l.Log(LogEntry{
		Timestamp: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
		RequestID: "req-1",
		ClientID:  "netflix_integration",
		Action:    "POST /api/v1/subscriptions",
		Resource:  "/api/v1/subscriptions",
		Status:    http.StatusConflict,
		Duration:  3 * time.Millisecond,
		Metadata: map[string]any{
			"remote_addr":   "10.0.0.1:5555",
			"client_secret": "hunter2",
			"Authorization": "Bearer abc",
		},
	})

	var got map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &got))
	assert.Equal(t, "warn", got["level"])
	assert.Equal(t, "audit", got["component"])
	assert.Equal(t, "req-1", got["request_id"])
	assert.Equal(t, "netflix_integration", got["client_id"])
	assert.EqualValues(t, 409, got["status"])

	meta := got["metadata"].(map[string]any)
	assert.Equal(t, "10.0.0.1:5555", meta["remote_addr"])
	assert.Equal(t, redacted, meta["client_secret"])
	assert.Equal(t, redacted, meta["Authorization"])
	assert.NotContains(t, buf.String(), "hunter2")
}

func TestRedact_DoesNotMutateInput(t *testing.T) {
	in := map[string]any{"refresh_token": "abc", "plan": "basic"}
	out := Redact(in)
	assert.Equal(t, "abc", in["refresh_token"])
	assert.Equal(t, redacted, out["refresh_token"])
	assert.Equal(t, "basic", out["plan"])
}
