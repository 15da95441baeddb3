package notifier

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/slack-go/slack"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bench-history/tracker/config"
	"github.com/bench-history/tracker/types"
)

func report() *types.AlertReport {
	return &types.AlertReport{
		Comparison: &types.Comparison{
			Group:   "Benchmark",
			Current: &types.Entry{Commit: types.Commit{ID: "f7fc1d8ee3c3a1e43beab3e9b3a6bdd5c5bd4d4c"}},
		},
		Threshold:     2,
		FailThreshold: 2,
		Alerts: []types.Alert{
			{Group: "Benchmark", Bench: "mx_Register", Unit: "ms", Current: 500, Previous: 100, Ratio: 5, Severity: "critical"},
		},
	}
}

func TestNotifyAlertsPostsWebhook(t *testing.T) {
	var got slack.WebhookMessage
	calls := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		assert.Equal(t, http.MethodPost, r.Method)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	n := New(config.SlackConfig{WebhookURL: server.URL, Channel: "#perf", Username: "bench"}, "https://github.com/o/r", logrus.New())
	require.True(t, n.Enabled())
	require.NoError(t, n.NotifyAlerts(context.Background(), report()))

	assert.Equal(t, 1, calls)
	assert.Equal(t, "#perf", got.Channel)
	assert.Equal(t, "bench", got.Username)
	assert.Contains(t, got.Text, "Performance Alert")
	require.Len(t, got.Attachments, 1)
	assert.Equal(t, "danger", got.Attachments[0].Color)
	assert.Equal(t, "Benchmark: mx_Register", got.Attachments[0].Title)
}

func TestNotifyAlertsReturnsServerError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	n := New(config.SlackConfig{WebhookURL: server.URL}, "", logrus.New())
	assert.Error(t, n.NotifyAlerts(context.Background(), report()))
}

func TestNotifySkipsWhenDisabledOrQuiet(t *testing.T) {
	calls := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
	}))
	defer server.Close()

	disabled := New(config.SlackConfig{}, "", logrus.New())
	assert.False(t, disabled.Enabled())
	assert.NoError(t, disabled.NotifyAlerts(context.Background(), report()))

	quiet := report()
	quiet.Alerts = nil
	n := New(config.SlackConfig{WebhookURL: server.URL}, "", logrus.New())
	assert.NoError(t, n.NotifyAlerts(context.Background(), quiet))

	assert.Equal(t, 0, calls)
}
