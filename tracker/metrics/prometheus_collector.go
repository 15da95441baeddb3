package metrics

import (
	"context"
	"fmt"
	"math"
	"sort"
	"time"

	prometheus "github.com/prometheus/client_golang/api"
	v1 "github.com/prometheus/client_golang/api/prometheus/v1"
	"github.com/prometheus/common/model"
	"github.com/sirupsen/logrus"

	"github.com/bench-history/tracker/config"
	"github.com/bench-history/tracker/types"
)

// PrometheusCollector turns an instant query into benches, one per sample
type PrometheusCollector struct {
	api       v1.API
	query     string
	nameLabel model.LabelName
	unit      string
	timeout   time.Duration
	log       logrus.FieldLogger
}

// NewPrometheusCollector creates a collector for cfg.Query
func NewPrometheusCollector(cfg config.PrometheusConfig, log logrus.FieldLogger) (*PrometheusCollector, error) {
	if cfg.Query == "" {
		return nil, fmt.Errorf("prometheus query is required")
	}
	address, err := cfg.URL()
	if err != nil {
		return nil, err
	}
	timeout, err := config.ParseDuration(cfg.Timeout)
	if err != nil {
		return nil, fmt.Errorf("invalid prometheus timeout: %w", err)
	}

	client, err := prometheus.NewClient(prometheus.Config{
		Address: address.String(),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create prometheus client: %w", err)
	}

	return &PrometheusCollector{
		api:       v1.NewAPI(client),
		query:     cfg.Query,
		nameLabel: model.LabelName(cfg.NameLabel),
		unit:      cfg.Unit,
		timeout:   timeout,
		log:       log.WithField("component", "prometheus_collector"),
	}, nil
}

// Collect runs the query at ts and returns the benches sorted by name
func (c *PrometheusCollector) Collect(ctx context.Context, ts time.Time) ([]types.Bench, error) {
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	result, warnings, err := c.api.Query(ctx, c.query, ts)
	if err != nil {
		return nil, fmt.Errorf("failed to query prometheus: %w", err)
	}
	for _, w := range warnings {
		c.log.WithField("warning", w).Warn("Prometheus query warning")
	}
	if result.Type() != model.ValVector {
		return nil, fmt.Errorf("expected vector type, got %s", result.Type())
	}

	vector := result.(model.Vector)
	benches := make([]types.Bench, 0, len(vector))
	for _, sample := range vector {
		value := float64(sample.Value)
		if math.IsNaN(value) || math.IsInf(value, 0) || value < 0 {
			c.log.WithField("metric", sample.Metric.String()).Debug("Skipping non-finite or negative sample")
			continue
		}

		name := string(sample.Metric[c.nameLabel])
		if name == "" {
			name = sample.Metric.String()
		}
		benches = append(benches, types.Bench{
			Name:  name,
			Value: value,
			Unit:  c.unit,
		})
	}
	sort.Slice(benches, func(i, j int) bool { return benches[i].Name < benches[j].Name })

	c.log.WithFields(logrus.Fields{
		"query":   c.query,
		"samples": len(vector),
		"benches": len(benches),
	}).Debug("Collected benches from Prometheus")
	return benches, nil
}
