package config

import (
	"fmt"
	"os"
	"regexp"
	"strconv"
	"strings"

	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"
)

// Config holds the settings of a benchmark history tracker
type Config struct {
	DataFile               string `yaml:"data_file"`
	Format                 string `yaml:"format"` // auto, script, json
	RepoURL                string `yaml:"repo_url"`
	Group                  string `yaml:"group"`
	MaxItems               int    `yaml:"max_items"` // 0 keeps every run
	CommitIDPattern        string `yaml:"commit_id_pattern"`
	RejectDuplicateCommits bool   `yaml:"reject_duplicate_commits"`
	LockTimeout            string `yaml:"lock_timeout"`

	Alert         AlertConfig         `yaml:"alert"`
	Server        ServerConfig        `yaml:"server"`
	Storage       StorageConfig       `yaml:"storage"`
	Notifications NotificationsConfig `yaml:"notifications"`
	Prometheus    PrometheusConfig    `yaml:"prometheus"`
}

// AlertConfig controls regression alerts between consecutive runs
type AlertConfig struct {
	Threshold     string `yaml:"threshold"`      // e.g. "200%"
	FailThreshold string `yaml:"fail_threshold"` // defaults to threshold
	FailOnAlert   bool   `yaml:"fail_on_alert"`
	CommentAlways bool   `yaml:"comment_always"`
}

// ServerConfig configures the HTTP API
type ServerConfig struct {
	Addr         string `yaml:"addr"`
	ReadTimeout  string `yaml:"read_timeout"`
	WriteTimeout string `yaml:"write_timeout"`
}

// DefaultConfig returns a configuration with every default applied
func DefaultConfig() *Config {
	cfg := &Config{}
	cfg.applyDefaults()
	return cfg
}

// LoadFromFile reads a YAML configuration, expanding environment references
func LoadFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	return Parse(data)
}

// Parse decodes YAML configuration text
func Parse(data []byte) (*Config, error) {
	substituted, err := SubstituteEnvVars(string(data))
	if err != nil {
		return nil, fmt.Errorf("failed to substitute environment variables: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal([]byte(substituted), &cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &cfg, nil
}

// Load reads path when given, otherwise returns defaults
func Load(path string, log logrus.FieldLogger) (*Config, error) {
	log = log.WithField("component", "config")

	if path == "" {
		log.Debug("No config path provided, using defaults")
		return DefaultConfig(), nil
	}

	cfg, err := LoadFromFile(path)
	if err != nil {
		return nil, err
	}

	log.WithFields(logrus.Fields{
		"data_file": cfg.DataFile,
		"group":     cfg.Group,
		"threshold": cfg.Alert.Threshold,
		"postgres":  cfg.Storage.PostgreSQL.Enabled,
	}).Info("Loaded configuration")
	return cfg, nil
}

func (c *Config) applyDefaults() {
	if c.DataFile == "" {
		c.DataFile = "dev/bench/data.js"
	}
	if c.Format == "" {
		c.Format = "auto"
	}
	if c.Group == "" {
		c.Group = "Benchmark"
	}
	if c.LockTimeout == "" {
		c.LockTimeout = "30s"
	}
	if c.Alert.Threshold == "" {
		c.Alert.Threshold = "200%"
	}
	if c.Alert.FailThreshold == "" {
		c.Alert.FailThreshold = c.Alert.Threshold
	}
	if c.Server.Addr == "" {
		c.Server.Addr = ":8081"
	}
	if c.Server.ReadTimeout == "" {
		c.Server.ReadTimeout = "30s"
	}
	if c.Server.WriteTimeout == "" {
		c.Server.WriteTimeout = "30s"
	}
	c.Storage.applyDefaults()
	c.Prometheus.applyDefaults()
}

// Validate checks the configuration for consistency
func (c *Config) Validate() error {
	if c.DataFile == "" {
		return fmt.Errorf("data_file is required")
	}
	switch strings.ToLower(c.Format) {
	case "auto", "script", "js", "json":
	default:
		return fmt.Errorf("format must be one of auto, script, json; got %q", c.Format)
	}
	if c.Group == "" {
		return fmt.Errorf("group is required")
	}
	if c.MaxItems < 0 {
		return fmt.Errorf("max_items must not be negative")
	}
	if c.CommitIDPattern != "" {
		if _, err := regexp.Compile(c.CommitIDPattern); err != nil {
			return fmt.Errorf("invalid commit_id_pattern: %w", err)
		}
	}
	if _, err := ParseDuration(c.LockTimeout); err != nil {
		return fmt.Errorf("invalid lock_timeout: %w", err)
	}

	alert, err := ParseRatio(c.Alert.Threshold)
	if err != nil {
		return fmt.Errorf("invalid alert threshold: %w", err)
	}
	fail, err := ParseRatio(c.Alert.FailThreshold)
	if err != nil {
		return fmt.Errorf("invalid fail threshold: %w", err)
	}
	if fail < alert {
		return fmt.Errorf("fail_threshold (%s) must not be lower than threshold (%s)", c.Alert.FailThreshold, c.Alert.Threshold)
	}

	if err := c.Storage.Validate(); err != nil {
		return fmt.Errorf("invalid storage configuration: %w", err)
	}
	if err := c.Notifications.Validate(); err != nil {
		return fmt.Errorf("invalid notifications configuration: %w", err)
	}
	return nil
}

// ParseRatio parses thresholds written as "200%" or "2.0" into a ratio
func ParseRatio(s string) (float64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, fmt.Errorf("empty ratio")
	}

	percent := strings.HasSuffix(s, "%")
	v, err := strconv.ParseFloat(strings.TrimSuffix(s, "%"), 64)
	if err != nil {
		return 0, fmt.Errorf("invalid ratio %q: %w", s, err)
	}
	if percent {
		v /= 100
	}
	if v <= 0 {
		return 0, fmt.Errorf("ratio %q must be positive", s)
	}
	return v, nil
}
