package types

import "time"

// BenchComparison pairs a current bench with its predecessor
type BenchComparison struct {
	Name           string   `json:"name"`
	Unit           string   `json:"unit"`
	Current        float64  `json:"current"`
	Previous       *float64 `json:"previous,omitempty"`
	Ratio          *float64 `json:"ratio,omitempty"` // > 1 means worse
	BiggerIsBetter bool     `json:"bigger_is_better"`
	Range          string   `json:"range,omitempty"`
	PreviousRange  string   `json:"previous_range,omitempty"`
}

// Comparison is the result of comparing a run with the run before it
type Comparison struct {
	Group    string            `json:"group"`
	Current  *Entry            `json:"current"`
	Previous *Entry            `json:"previous,omitempty"`
	Benches  []BenchComparison `json:"benches"`
}

// Alert is raised when a bench got worse by more than the threshold
type Alert struct {
	ID         string    `json:"id"`
	Group      string    `json:"group"`
	Bench      string    `json:"bench"`
	Unit       string    `json:"unit"`
	CommitID   string    `json:"commit_id"`
	PrevCommit string    `json:"previous_commit_id"`
	Current    float64   `json:"current"`
	Previous   float64   `json:"previous"`
	Ratio      float64   `json:"ratio"`
	Threshold  float64   `json:"threshold"`
	Severity   string    `json:"severity"` // minor, major, critical
	DetectedAt time.Time `json:"detected_at"`
}

// AlertReport bundles the alerts of one comparison
type AlertReport struct {
	Comparison    *Comparison `json:"comparison"`
	Alerts        []Alert     `json:"alerts"`
	Threshold     float64     `json:"threshold"`
	FailThreshold float64     `json:"fail_threshold"`
	ShouldFail    bool        `json:"should_fail"`
}

// HasAlerts reports whether any alert fired
func (r *AlertReport) HasAlerts() bool {
	return r != nil && len(r.Alerts) > 0
}
