package storage

import (
	"context"
	"errors"

	"github.com/bench-history/tracker/types"
)

var (
	// ErrNotFound is returned when a group or run does not exist
	ErrNotFound = errors.New("not found")
	// ErrOutOfOrder is returned when a run is older than the last run of its group
	ErrOutOfOrder = errors.New("entry date is earlier than the last recorded entry")
	// ErrInvalidEntry is returned when a run fails validation
	ErrInvalidEntry = errors.New("invalid entry")
	// ErrDuplicateCommit is returned when a commit was already recorded in the group
	ErrDuplicateCommit = errors.New("commit already recorded")
	// ErrLockTimeout is returned when the data file lock cannot be acquired in time
	ErrLockTimeout = errors.New("timed out waiting for data file lock")
)

// AppendResult describes the effect of an append
type AppendResult struct {
	Group    string       `json:"group"`
	Entry    types.Entry  `json:"entry"`
	Previous *types.Entry `json:"previous,omitempty"`
	Trimmed  int          `json:"trimmed"`
	Count    int          `json:"count"`
}

// HistoryStore is the read/append interface over a benchmark history
type HistoryStore interface {
	Snapshot(ctx context.Context) (*types.DataFile, error)
	Groups(ctx context.Context) ([]types.GroupSummary, error)
	Entries(ctx context.Context, group string, limit int) ([]types.Entry, error)
	Entry(ctx context.Context, group, commitID string) (*types.Entry, error)
	Latest(ctx context.Context, group string) (*types.Entry, error)
	Series(ctx context.Context, group, bench string) ([]types.SeriesPoint, error)
	Append(ctx context.Context, group string, entry types.Entry) (*AppendResult, error)
}

// summarize builds a listing row for a group
func summarize(name string, entries []types.Entry) types.GroupSummary {
	summary := types.GroupSummary{Name: name, EntryCount: len(entries), BenchNames: []string{}}
	if len(entries) == 0 {
		return summary
	}
	summary.FirstDate = entries[0].Date
	summary.LastDate = entries[len(entries)-1].Date

	seen := make(map[string]bool)
	for _, e := range entries {
		for _, b := range e.Benches {
			if !seen[b.Name] {
				seen[b.Name] = true
				summary.BenchNames = append(summary.BenchNames, b.Name)
			}
		}
	}
	return summary
}

// seriesOf extracts one bench over a group's runs, skipping runs without it
func seriesOf(entries []types.Entry, bench string) []types.SeriesPoint {
	points := []types.SeriesPoint{}
	for _, e := range entries {
		if b, ok := e.Bench(bench); ok {
			points = append(points, types.SeriesPoint{
				Date:     e.Date,
				CommitID: e.Commit.ID,
				Value:    b.Value,
				Unit:     b.Unit,
			})
		}
	}
	return points
}

// lastN returns the newest limit entries, newest first
func lastN(entries []types.Entry, limit int) []types.Entry {
	n := len(entries)
	if limit > 0 && limit < n {
		n = limit
	}
	out := make([]types.Entry, 0, n)
	for i := len(entries) - 1; i >= 0 && len(out) < n; i-- {
		out = append(out, entries[i])
	}
	return out
}
