package types

import (
	"time"
)

// DataFile is the top-level benchmark history document
type DataFile struct {
	LastUpdate int64   `json:"lastUpdate"`
	RepoURL    string  `json:"repoUrl"`
	Entries    Entries `json:"entries"`
}

// Entry is one recorded CI run tied to a commit
type Entry struct {
	Commit  Commit  `json:"commit"`
	Date    int64   `json:"date"` // epoch millis
	Tool    string  `json:"tool"`
	Benches []Bench `json:"benches"`
}

// Commit holds the metadata of the commit a run measured
type Commit struct {
	Author    CommitUser `json:"author"`
	Committer CommitUser `json:"committer"`
	Distinct  *bool      `json:"distinct,omitempty"`
	ID        string     `json:"id"`
	Message   string     `json:"message"`
	Timestamp string     `json:"timestamp"`
	TreeID    string     `json:"tree_id,omitempty"`
	URL       string     `json:"url"`
}

// CommitUser is a commit author or committer
type CommitUser struct {
	Email    string `json:"email,omitempty"`
	Name     string `json:"name"`
	Username string `json:"username,omitempty"`
}

// Bench is a single named measurement
type Bench struct {
	Name  string  `json:"name"`
	Value float64 `json:"value"`
	Range string  `json:"range,omitempty"`
	Unit  string  `json:"unit"`
	Extra string  `json:"extra,omitempty"`
}

// Time returns the run date as a time.Time
func (e *Entry) Time() time.Time {
	return time.UnixMilli(e.Date)
}

// Bench returns the bench with the given name, if the run recorded it
func (e *Entry) Bench(name string) (Bench, bool) {
	for _, b := range e.Benches {
		if b.Name == name {
			return b, true
		}
	}
	return Bench{}, false
}

// BenchNames lists bench names in recorded order
func (e *Entry) BenchNames() []string {
	names := make([]string, 0, len(e.Benches))
	for _, b := range e.Benches {
		names = append(names, b.Name)
	}
	return names
}

// ShortID returns the abbreviated commit id
func (c Commit) ShortID() string {
	if len(c.ID) > 7 {
		return c.ID[:7]
	}
	return c.ID
}

// Group returns the entries recorded under name
func (d *DataFile) Group(name string) []Entry {
	return d.Entries.Get(name)
}

// SeriesPoint is one value of a bench over commit history
type SeriesPoint struct {
	Date     int64   `json:"date"`
	CommitID string  `json:"commit_id"`
	Value    float64 `json:"value"`
	Unit     string  `json:"unit"`
}

// GroupSummary describes a group in listings
type GroupSummary struct {
	Name       string   `json:"name"`
	EntryCount int      `json:"entry_count"`
	FirstDate  int64    `json:"first_date,omitempty"`
	LastDate   int64    `json:"last_date,omitempty"`
	BenchNames []string `json:"bench_names"`
}
