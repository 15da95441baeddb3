package storage

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/gofrs/flock"
	"github.com/sirupsen/logrus"

	"github.com/bench-history/tracker/datafile"
	"github.com/bench-history/tracker/types"
	"github.com/bench-history/tracker/validator"
)

const lockRetryDelay = 50 * time.Millisecond

// FileStoreOptions configures a FileStore
type FileStoreOptions struct {
	Path                   string
	Format                 datafile.Format
	RepoURL                string
	MaxItems               int
	RejectDuplicateCommits bool
	LockTimeout            time.Duration
	Validator              *validator.Validator
	Now                    func() time.Time
}

// FileStore keeps a benchmark history in a single data file. Appends are
// serialised in-process and across processes by a lock file next to it.
type FileStore struct {
	opts FileStoreOptions
	lock *flock.Flock
	log  logrus.FieldLogger

	mu      sync.RWMutex
	data    *types.DataFile
	format  datafile.Format
	modTime time.Time
	size    int64
}

// NewFileStore creates a store for the data file at opts.Path
func NewFileStore(opts FileStoreOptions, log logrus.FieldLogger) (*FileStore, error) {
	if opts.Path == "" {
		return nil, fmt.Errorf("data file path is required")
	}
	if opts.Validator == nil {
		opts.Validator = validator.Default()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.LockTimeout <= 0 {
		opts.LockTimeout = 30 * time.Second
	}

	return &FileStore{
		opts: opts,
		lock: flock.New(opts.Path + ".lock"),
		log:  log.WithField("component", "file_store"),
	}, nil
}

// Path returns the data file location
func (s *FileStore) Path() string {
	return s.opts.Path
}

// Load (re)reads the data file. A missing file yields an empty history.
func (s *FileStore) Load(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.loadLocked()
}

func (s *FileStore) loadLocked() error {
	info, err := os.Stat(s.opts.Path)
	if errors.Is(err, os.ErrNotExist) {
		s.data = datafile.New(s.opts.RepoURL)
		s.format = s.targetFormat(datafile.FormatAuto)
		s.modTime, s.size = time.Time{}, 0
		s.log.WithField("path", s.opts.Path).Debug("Data file not found, starting empty history")
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to stat data file: %w", err)
	}

	data, format, err := datafile.ReadFile(s.opts.Path)
	if err != nil {
		return err
	}
	if data.RepoURL == "" {
		data.RepoURL = s.opts.RepoURL
	}

	s.data = data
	s.format = s.targetFormat(format)
	s.modTime, s.size = info.ModTime(), info.Size()

	s.log.WithFields(logrus.Fields{
		"path":   s.opts.Path,
		"groups": data.Entries.Len(),
	}).Debug("Loaded data file")
	return nil
}

func (s *FileStore) targetFormat(detected datafile.Format) datafile.Format {
	if s.opts.Format != datafile.FormatAuto {
		return s.opts.Format
	}
	if detected != datafile.FormatAuto {
		return detected
	}
	return datafile.FormatForPath(s.opts.Path)
}

// current returns the cached document, reloading it when the file changed
func (s *FileStore) current() (*types.DataFile, error) {
	s.mu.RLock()
	data, modTime, size := s.data, s.modTime, s.size
	s.mu.RUnlock()

	if data != nil {
		info, err := os.Stat(s.opts.Path)
		switch {
		case errors.Is(err, os.ErrNotExist) && modTime.IsZero():
			return data, nil
		case err == nil && info.ModTime().Equal(modTime) && info.Size() == size:
			return data, nil
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.loadLocked(); err != nil {
		return nil, err
	}
	return s.data, nil
}

// Snapshot returns the whole document
func (s *FileStore) Snapshot(ctx context.Context) (*types.DataFile, error) {
	return s.current()
}

// Format returns the format the file is written in
func (s *FileStore) Format() datafile.Format {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.format
}

// Groups lists every group with its run count and bench names
func (s *FileStore) Groups(ctx context.Context) ([]types.GroupSummary, error) {
	data, err := s.current()
	if err != nil {
		return nil, err
	}

	out := make([]types.GroupSummary, 0, data.Entries.Len())
	for _, name := range data.Entries.Names() {
		out = append(out, summarize(name, data.Entries.Get(name)))
	}
	return out, nil
}

// Entries returns the newest runs of a group, newest first
func (s *FileStore) Entries(ctx context.Context, group string, limit int) ([]types.Entry, error) {
	data, err := s.current()
	if err != nil {
		return nil, err
	}
	if !data.Entries.Has(group) {
		return nil, fmt.Errorf("group %q: %w", group, ErrNotFound)
	}
	return lastN(data.Entries.Get(group), limit), nil
}

// Entry returns the newest run of a group for a commit
func (s *FileStore) Entry(ctx context.Context, group, commitID string) (*types.Entry, error) {
	data, err := s.current()
	if err != nil {
		return nil, err
	}

	entries := data.Entries.Get(group)
	for i := len(entries) - 1; i >= 0; i-- {
		if entries[i].Commit.ID == commitID {
			e := entries[i]
			return &e, nil
		}
	}
	return nil, fmt.Errorf("commit %s in group %q: %w", commitID, group, ErrNotFound)
}

// Latest returns the last run of a group
func (s *FileStore) Latest(ctx context.Context, group string) (*types.Entry, error) {
	data, err := s.current()
	if err != nil {
		return nil, err
	}
	entries := data.Entries.Get(group)
	if len(entries) == 0 {
		return nil, fmt.Errorf("group %q: %w", group, ErrNotFound)
	}
	e := entries[len(entries)-1]
	return &e, nil
}

// Series returns one bench across a group's runs, oldest first
func (s *FileStore) Series(ctx context.Context, group, bench string) ([]types.SeriesPoint, error) {
	data, err := s.current()
	if err != nil {
		return nil, err
	}
	if !data.Entries.Has(group) {
		return nil, fmt.Errorf("group %q: %w", group, ErrNotFound)
	}
	return seriesOf(data.Entries.Get(group), bench), nil
}

// Append records a run at the end of a group and persists the file
func (s *FileStore) Append(ctx context.Context, group string, entry types.Entry) (*AppendResult, error) {
	if group == "" {
		return nil, fmt.Errorf("%w: group name is required", ErrInvalidEntry)
	}
	if report := s.opts.Validator.ValidateEntry(&entry); !report.Valid() {
		return nil, fmt.Errorf("%w: %v", ErrInvalidEntry, report.Err())
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.acquire(ctx); err != nil {
		return nil, err
	}
	defer func() {
		if err := s.lock.Unlock(); err != nil {
			s.log.WithError(err).Warn("Failed to release data file lock")
		}
	}()

	// Another process may have appended since the last read.
	if err := s.loadLocked(); err != nil {
		return nil, err
	}

	entries := s.data.Entries.Get(group)
	result := &AppendResult{Group: group, Entry: entry}

	if n := len(entries); n > 0 {
		last := entries[n-1]
		if entry.Date < last.Date {
			return nil, fmt.Errorf("%w: %d < %d in group %q", ErrOutOfOrder, entry.Date, last.Date, group)
		}
		result.Previous = &last
	}
	if s.opts.RejectDuplicateCommits {
		for _, e := range entries {
			if e.Commit.ID == entry.Commit.ID {
				return nil, fmt.Errorf("%w: %s in group %q", ErrDuplicateCommit, entry.Commit.ID, group)
			}
		}
	}

	updated := make([]types.Entry, len(entries), len(entries)+1)
	copy(updated, entries)
	updated = append(updated, entry)
	if limit := s.opts.MaxItems; limit > 0 && len(updated) > limit {
		result.Trimmed = len(updated) - limit
		updated = updated[result.Trimmed:]
	}
	result.Count = len(updated)

	next := &types.DataFile{
		LastUpdate: s.data.LastUpdate,
		RepoURL:    s.data.RepoURL,
		Entries:    s.data.Entries.Clone(),
	}
	next.Entries.Set(group, updated)

	now := s.opts.Now().UnixMilli()
	if entry.Date > now {
		now = entry.Date
	}
	if now > next.LastUpdate {
		next.LastUpdate = now
	}

	if err := datafile.WriteFile(s.opts.Path, next, s.format); err != nil {
		return nil, fmt.Errorf("failed to persist data file: %w", err)
	}
	if info, err := os.Stat(s.opts.Path); err == nil {
		s.modTime, s.size = info.ModTime(), info.Size()
	}
	s.data = next

	s.log.WithFields(logrus.Fields{
		"group":   group,
		"commit":  entry.Commit.ShortID(),
		"benches": len(entry.Benches),
		"trimmed": result.Trimmed,
	}).Info("Appended benchmark entry")

	return result, nil
}

func (s *FileStore) acquire(ctx context.Context) error {
	if err := os.MkdirAll(filepath.Dir(s.opts.Path), 0755); err != nil {
		return fmt.Errorf("failed to create data directory: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, s.opts.LockTimeout)
	defer cancel()

	locked, err := s.lock.TryLockContext(ctx, lockRetryDelay)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return ErrLockTimeout
		}
		return fmt.Errorf("failed to lock data file: %w", err)
	}
	if !locked {
		return ErrLockTimeout
	}
	return nil
}
