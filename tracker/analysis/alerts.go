package analysis

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/bench-history/tracker/config"
	"github.com/bench-history/tracker/storage"
	"github.com/bench-history/tracker/types"
)

// Severity levels of an alert
const (
	SeverityMinor    = "minor"
	SeverityMajor    = "major"
	SeverityCritical = "critical"
)

// ParseThreshold parses a ratio such as "200%" into 2.0
func ParseThreshold(s string) (float64, error) {
	return config.ParseRatio(s)
}

// Compare pairs every bench of curr with the same-named bench of prev.
// Ratios above 1 mean curr is worse. prev may be nil.
func Compare(group string, prev *types.Entry, curr types.Entry) *types.Comparison {
	cmp := &types.Comparison{
		Group:    group,
		Current:  &curr,
		Previous: prev,
		Benches:  make([]types.BenchComparison, 0, len(curr.Benches)),
	}

	for _, b := range curr.Benches {
		bc := types.BenchComparison{
			Name:           b.Name,
			Unit:           b.Unit,
			Current:        b.Value,
			Range:          b.Range,
			BiggerIsBetter: BiggerIsBetter(curr.Tool, b.Unit),
		}
		if prev != nil {
			if pb, ok := prev.Bench(b.Name); ok {
				value := pb.Value
				bc.Previous = &value
				bc.PreviousRange = pb.Range
				bc.Ratio = ratio(pb.Value, b.Value, bc.BiggerIsBetter)
			}
		}
		cmp.Benches = append(cmp.Benches, bc)
	}
	return cmp
}

func ratio(prev, curr float64, bigger bool) *float64 {
	var r float64
	if bigger {
		if curr == 0 {
			return nil
		}
		r = prev / curr
	} else {
		if prev == 0 {
			return nil
		}
		r = curr / prev
	}
	return &r
}

// Severity classifies a ratio relative to the alert threshold
func Severity(ratio, threshold float64) string {
	switch {
	case ratio >= 2*threshold:
		return SeverityCritical
	case ratio >= 1.5*threshold:
		return SeverityMajor
	default:
		return SeverityMinor
	}
}

// Alerts returns one alert per bench whose ratio exceeds threshold
func Alerts(cmp *types.Comparison, threshold float64, now time.Time) []types.Alert {
	alerts := []types.Alert{}
	if cmp == nil || cmp.Current == nil {
		return alerts
	}

	var prevCommit string
	if cmp.Previous != nil {
		prevCommit = cmp.Previous.Commit.ID
	}

	for _, b := range cmp.Benches {
		if b.Ratio == nil || *b.Ratio <= threshold {
			continue
		}
		alerts = append(alerts, types.Alert{
			ID:         uuid.New().String(),
			Group:      cmp.Group,
			Bench:      b.Name,
			Unit:       b.Unit,
			CommitID:   cmp.Current.Commit.ID,
			PrevCommit: prevCommit,
			Current:    b.Current,
			Previous:   *b.Previous,
			Ratio:      *b.Ratio,
			Threshold:  threshold,
			Severity:   Severity(*b.Ratio, threshold),
			DetectedAt: now,
		})
	}
	return alerts
}

// ShouldFail reports whether any alert exceeds the fail threshold
func ShouldFail(alerts []types.Alert, failThreshold float64) bool {
	for _, a := range alerts {
		if a.Ratio > failThreshold {
			return true
		}
	}
	return false
}

// Analyzer checks new runs against the run before them
type Analyzer struct {
	Threshold     float64
	FailThreshold float64
	Now           func() time.Time
	log           logrus.FieldLogger
}

// NewAnalyzer builds an analyzer from alert settings. An empty fail
// threshold falls back to the alert threshold.
func NewAnalyzer(cfg config.AlertConfig, log logrus.FieldLogger) (*Analyzer, error) {
	threshold, err := ParseThreshold(cfg.Threshold)
	if err != nil {
		return nil, fmt.Errorf("invalid alert threshold: %w", err)
	}
	failThreshold := threshold
	if cfg.FailThreshold != "" {
		if failThreshold, err = ParseThreshold(cfg.FailThreshold); err != nil {
			return nil, fmt.Errorf("invalid fail threshold: %w", err)
		}
	}
	return &Analyzer{
		Threshold:     threshold,
		FailThreshold: failThreshold,
		Now:           time.Now,
		log:           log.WithField("component", "analyzer"),
	}, nil
}

// Report compares curr with prev and collects the alerts
func (a *Analyzer) Report(group string, prev *types.Entry, curr types.Entry) *types.AlertReport {
	cmp := Compare(group, prev, curr)
	alerts := Alerts(cmp, a.Threshold, a.Now())

	report := &types.AlertReport{
		Comparison:    cmp,
		Alerts:        alerts,
		Threshold:     a.Threshold,
		FailThreshold: a.FailThreshold,
		ShouldFail:    ShouldFail(alerts, a.FailThreshold),
	}

	if len(alerts) > 0 {
		a.log.WithFields(logrus.Fields{
			"group":       group,
			"commit":      curr.Commit.ShortID(),
			"alerts":      len(alerts),
			"should_fail": report.ShouldFail,
		}).Warn("Performance alert")
	}
	return report
}

// Latest compares the newest run of a group with the one before it
func (a *Analyzer) Latest(ctx context.Context, store storage.HistoryStore, group string) (*types.AlertReport, error) {
	entries, err := store.Entries(ctx, group, 2)
	if err != nil {
		return nil, err
	}
	if len(entries) == 0 {
		return nil, fmt.Errorf("group %q has no entries: %w", group, storage.ErrNotFound)
	}

	var prev *types.Entry
	if len(entries) > 1 {
		prev = &entries[1]
	}
	return a.Report(group, prev, entries[0]), nil
}

// Commit compares the run of a commit with the run before it
func (a *Analyzer) Commit(ctx context.Context, store storage.HistoryStore, group, commitID string) (*types.AlertReport, error) {
	entries, err := store.Entries(ctx, group, 0)
	if err != nil {
		return nil, err
	}
	for i, e := range entries {
		if e.Commit.ID != commitID {
			continue
		}
		var prev *types.Entry
		if i+1 < len(entries) {
			prev = &entries[i+1]
		}
		return a.Report(group, prev, e), nil
	}
	return nil, fmt.Errorf("commit %s in group %q: %w", commitID, group, storage.ErrNotFound)
}
