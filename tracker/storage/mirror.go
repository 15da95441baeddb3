package storage

import (
	"context"
	"fmt"

	"github.com/bench-history/tracker/types"
)

// EntryMirror receives copies of recorded runs
type EntryMirror interface {
	InsertEntry(ctx context.Context, group string, entry types.Entry) (bool, error)
}

// MirrorResult counts what a sync did
type MirrorResult struct {
	Groups   int `json:"groups"`
	Inserted int `json:"inserted"`
	Skipped  int `json:"skipped"`
}

// Mirror copies every run of the history into dst. Runs dst already holds
// are skipped, so repeated syncs are safe.
func Mirror(ctx context.Context, src HistoryStore, dst EntryMirror) (*MirrorResult, error) {
	data, err := src.Snapshot(ctx)
	if err != nil {
		return nil, err
	}

	result := &MirrorResult{}
	for _, group := range data.Entries.Names() {
		result.Groups++
		for _, entry := range data.Entries.Get(group) {
			if err := ctx.Err(); err != nil {
				return result, err
			}
			inserted, err := dst.InsertEntry(ctx, group, entry)
			if err != nil {
				return result, fmt.Errorf("group %q commit %s: %w", group, entry.Commit.ShortID(), err)
			}
			if inserted {
				result.Inserted++
			} else {
				result.Skipped++
			}
		}
	}
	return result, nil
}
