package alerting

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSlackLogDefaults(t *testing.T) {
	var received slackWebhook
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&received))
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	err := SlackLog("hello", &SlackConfig{WebhookURL: server.URL, Channel: "#ops"})
	require.NoError(t, err)

	assert.Equal(t, "hello", received.Text)
	assert.Equal(t, "#ops", received.Channel)
	assert.Equal(t, slackDefaultUsername, received.Username)
	assert.Equal(t, slackDefaultIconEmoji, received.IconEmoji)
}

func TestSlackLogErrorStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}))
	defer server.Close()

	err := SlackLog("hello", &SlackConfig{WebhookURL: server.URL})
	assert.Error(t, err)
}
