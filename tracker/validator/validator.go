package validator

import (
	"fmt"
	"math"
	"regexp"
	"strings"

	"github.com/bench-history/tracker/types"
)

// DefaultCommitIDPattern accepts SHA-1 and SHA-256 git object names
const DefaultCommitIDPattern = `^([0-9a-f]{40}|[0-9a-f]{64})$`

// Violation is a single failed check with its location in the document
type Violation struct {
	Path    string `json:"path"`
	Message string `json:"message"`
}

func (v Violation) String() string {
	return fmt.Sprintf("%s: %s", v.Path, v.Message)
}

// Report collects all violations found in a document
type Report struct {
	Violations []Violation `json:"violations"`
	Groups     int         `json:"groups"`
	Entries    int         `json:"entries"`
	Benches    int         `json:"benches"`
}

// Valid reports whether no violation was found
func (r *Report) Valid() bool {
	return len(r.Violations) == 0
}

// Err returns nil for a valid report, otherwise an error listing violations
func (r *Report) Err() error {
	if r.Valid() {
		return nil
	}
	msgs := make([]string, 0, len(r.Violations))
	for _, v := range r.Violations {
		msgs = append(msgs, v.String())
	}
	return fmt.Errorf("%d violation(s): %s", len(r.Violations), strings.Join(msgs, "; "))
}

func (r *Report) add(path, format string, args ...interface{}) {
	r.Violations = append(r.Violations, Violation{Path: path, Message: fmt.Sprintf(format, args...)})
}

// Validator checks benchmark history documents
type Validator struct {
	commitID *regexp.Regexp
}

// New creates a validator. An empty pattern selects DefaultCommitIDPattern.
func New(commitIDPattern string) (*Validator, error) {
	if commitIDPattern == "" {
		commitIDPattern = DefaultCommitIDPattern
	}
	re, err := regexp.Compile(commitIDPattern)
	if err != nil {
		return nil, fmt.Errorf("invalid commit id pattern: %w", err)
	}
	return &Validator{commitID: re}, nil
}

// Default returns a validator using DefaultCommitIDPattern
func Default() *Validator {
	v, _ := New("")
	return v
}

// Validate checks the whole document
func (v *Validator) Validate(data *types.DataFile) *Report {
	report := &Report{}
	if data == nil {
		report.add("", "document is empty")
		return report
	}

	if data.LastUpdate <= 0 {
		report.add("/lastUpdate", "must be a positive epoch millis value, got %d", data.LastUpdate)
	}
	if strings.TrimSpace(data.RepoURL) == "" {
		report.add("/repoUrl", "must not be empty")
	}

	for _, group := range data.Entries.Names() {
		report.Groups++
		entries := data.Entries.Get(group)
		prefix := "/entries/" + escapePointer(group)

		var lastDate int64
		for i := range entries {
			path := fmt.Sprintf("%s/%d", prefix, i)
			v.checkEntry(report, path, &entries[i])

			if i > 0 && entries[i].Date < lastDate {
				report.add(path+"/date", "out of order: %d is earlier than previous %d", entries[i].Date, lastDate)
			}
			lastDate = entries[i].Date
		}
	}

	return report
}

// ValidateEntry checks a single run before it is appended
func (v *Validator) ValidateEntry(entry *types.Entry) *Report {
	report := &Report{}
	v.checkEntry(report, "", entry)
	return report
}

func (v *Validator) checkEntry(report *Report, path string, entry *types.Entry) {
	report.Entries++

	if entry.Date <= 0 {
		report.add(path+"/date", "must be a positive epoch millis value, got %d", entry.Date)
	}
	if strings.TrimSpace(entry.Tool) == "" {
		report.add(path+"/tool", "must not be empty")
	}
	if !v.commitID.MatchString(entry.Commit.ID) {
		report.add(path+"/commit/id", "%q is not a valid revision id", entry.Commit.ID)
	}

	for j, bench := range entry.Benches {
		report.Benches++
		bpath := fmt.Sprintf("%s/benches/%d", path, j)

		if strings.TrimSpace(bench.Name) == "" {
			report.add(bpath+"/name", "must not be empty")
		}

		if strings.TrimSpace(bench.Unit) == "" {
			report.add(bpath+"/unit", "must not be empty")
		}
		switch {
		case math.IsNaN(bench.Value) || math.IsInf(bench.Value, 0):
			report.add(bpath+"/value", "must be finite")
		case bench.Value < 0:
			report.add(bpath+"/value", "must not be negative, got %v", bench.Value)
		}
	}
}

// escapePointer escapes a JSON pointer reference token
func escapePointer(s string) string {
	s = strings.ReplaceAll(s, "~", "~0")
	return strings.ReplaceAll(s, "/", "~1")
}
