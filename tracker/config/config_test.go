package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	assert.Equal(t, "dev/bench/data.js", cfg.DataFile)
	assert.Equal(t, "Benchmark", cfg.Group)
	assert.Equal(t, "200%", cfg.Alert.Threshold)
	assert.Equal(t, "200%", cfg.Alert.FailThreshold)
	assert.Equal(t, ":8081", cfg.Server.Addr)
	assert.Equal(t, 5432, cfg.Storage.PostgreSQL.Port)
	assert.Equal(t, "name", cfg.Prometheus.NameLabel)
	assert.NoError(t, cfg.Validate())
}

func TestLoadFromFile(t *testing.T) {
	t.Setenv("BENCH_PG_PASSWORD", "s3cret")

	content := `
data_file: gh-pages/dev/bench/data.js
repo_url: https://github.com/matrix-org/matrix-react-sdk
group: Cypress measurements
max_items: 500
reject_duplicate_commits: true
alert:
  threshold: 150%
  fail_threshold: 300%
  fail_on_alert: true
storage:
  postgresql:
    enabled: true
    host: db.internal
    password: ${BENCH_PG_PASSWORD}
notifications:
  slack:
    webhook_url: ${BENCH_SLACK_URL:-https://hooks.slack.com/services/T000/B000/XXX}
`
	path := filepath.Join(t.TempDir(), "bench.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))

	cfg, err := Load(path, logrus.New())
	require.NoError(t, err)

	assert.Equal(t, "gh-pages/dev/bench/data.js", cfg.DataFile)
	assert.Equal(t, "Cypress measurements", cfg.Group)
	assert.Equal(t, 500, cfg.MaxItems)
	assert.True(t, cfg.RejectDuplicateCommits)
	assert.True(t, cfg.Alert.FailOnAlert)
	assert.Equal(t, "300%", cfg.Alert.FailThreshold)
	assert.Equal(t, "s3cret", cfg.Storage.PostgreSQL.Password)
	assert.Equal(t, "db.internal", cfg.Storage.PostgreSQL.Host)
	assert.Equal(t, "bench_history", cfg.Storage.PostgreSQL.Database)
	assert.True(t, cfg.Notifications.Slack.Enabled())
	assert.Equal(t,
		"host=db.internal port=5432 user=postgres password=s3cret dbname=bench_history sslmode=disable",
		cfg.Storage.PostgreSQL.ConnectionString())
}

func TestLoadWithoutPathUsesDefaults(t *testing.T) {
	cfg, err := Load("", logrus.New())
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig(), cfg)
}

func TestParseRejectsInvalidConfig(t *testing.T) {
	tests := map[string]string{
		"bad format":           "format: xml",
		"negative max items":   "max_items: -1",
		"bad threshold":        "alert:\n  threshold: lots",
		"fail below alert":     "alert:\n  threshold: 200%\n  fail_threshold: 150%",
		"bad pattern":          "commit_id_pattern: '('",
		"bad lock timeout":     "lock_timeout: soon",
		"bad webhook":          "notifications:\n  slack:\n    webhook_url: not-a-url",
		"bad postgres port":    "storage:\n  postgresql:\n    enabled: true\n    port: 70000",
		"missing required env": "repo_url: ${BENCH_REPO_URL_MISSING:?repo url required}",
	}

	for name, content := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := Parse([]byte(content))
			assert.Error(t, err)
		})
	}
}

func TestParseRatio(t *testing.T) {
	tests := []struct {
		in   string
		want float64
	}{
		{"200%", 2.0},
		{"150%", 1.5},
		{" 2.5 ", 2.5},
		{"100%", 1.0},
	}
	for _, tt := range tests {
		got, err := ParseRatio(tt.in)
		require.NoError(t, err, tt.in)
		assert.InDelta(t, tt.want, got, 1e-9, tt.in)
	}

	for _, bad := range []string{"", "%", "abc%", "-10%", "0"} {
		_, err := ParseRatio(bad)
		assert.Error(t, err, bad)
	}
}

func TestPrometheusURL(t *testing.T) {
	cfg := PrometheusConfig{Address: "http://prom:9090", BasicAuth: BasicAuth{Username: "u", Password: "p"}}
	u, err := cfg.URL()
	require.NoError(t, err)
	assert.Equal(t, "http://u:p@prom:9090", u.String())

	_, err = (&PrometheusConfig{}).URL()
	assert.Error(t, err)
}
