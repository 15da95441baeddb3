package config

import (
	"fmt"
	"net/url"
)

// NotificationsConfig represents where alerts are sent
type NotificationsConfig struct {
	Slack SlackConfig `yaml:"slack"`
}

// SlackConfig represents a Slack incoming webhook
type SlackConfig struct {
	WebhookURL string `yaml:"webhook_url"`
	Channel    string `yaml:"channel"`
	Username   string `yaml:"username"`
	IconEmoji  string `yaml:"icon_emoji"`
}

// Enabled reports whether a webhook is configured
func (s SlackConfig) Enabled() bool {
	return s.WebhookURL != ""
}

// Validate checks notification targets
func (c *NotificationsConfig) Validate() error {
	if c.Slack.WebhookURL == "" {
		return nil
	}
	u, err := url.Parse(c.Slack.WebhookURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("slack webhook_url %q is not an absolute URL", c.Slack.WebhookURL)
	}
	return nil
}

// BasicAuth represents the basic authentication credentials for a server endpoint
type BasicAuth struct {
	Username string `yaml:"username"`
	Password string `yaml:"password"`
}

// PrometheusConfig describes where benches can be imported from
type PrometheusConfig struct {
	Address   string    `yaml:"address"`
	BasicAuth BasicAuth `yaml:"basic_auth"`
	Query     string    `yaml:"query"`
	NameLabel string    `yaml:"name_label"` // sample label used as bench name
	Unit      string    `yaml:"unit"`
	Timeout   string    `yaml:"timeout"`
}

func (c *PrometheusConfig) applyDefaults() {
	if c.NameLabel == "" {
		c.NameLabel = "name"
	}
	if c.Unit == "" {
		c.Unit = "ms"
	}
	if c.Timeout == "" {
		c.Timeout = "30s"
	}
}

// URL returns the server address with credentials applied
func (c *PrometheusConfig) URL() (*url.URL, error) {
	if c.Address == "" {
		return nil, fmt.Errorf("prometheus address is required")
	}
	u, err := url.Parse(c.Address)
	if err != nil {
		return nil, fmt.Errorf("invalid prometheus address: %w", err)
	}
	if c.BasicAuth.Username != "" && c.BasicAuth.Password != "" {
		u.User = url.UserPassword(c.BasicAuth.Username, c.BasicAuth.Password)
	}
	return u, nil
}
