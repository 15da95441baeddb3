package exporter

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/bench-history/tracker/types"
)

var unsafeFileChars = regexp.MustCompile(`[^A-Za-z0-9._-]+`)

// DataExporter writes benchmark history as CSV for spreadsheets and notebooks
type DataExporter struct {
	outputDir string
}

// NewDataExporter creates a new data exporter
func NewDataExporter(outputDir string) *DataExporter {
	return &DataExporter{
		outputDir: outputDir,
	}
}

// ExportAll writes one CSV file per group and returns the paths written.
// Groups whose file names collide get a numeric suffix in group order.
func (de *DataExporter) ExportAll(data *types.DataFile) ([]string, error) {
	if err := os.MkdirAll(de.outputDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create export directory: %w", err)
	}

	var paths []string
	used := make(map[string]bool)
	for _, group := range data.Entries.Names() {
		name := uniqueName(FileName(group), used)
		path := filepath.Join(de.outputDir, name+".csv")
		if err := de.exportGroupFile(path, data.Entries.Get(group)); err != nil {
			return paths, fmt.Errorf("failed to export group %q: %w", group, err)
		}
		paths = append(paths, path)
	}
	return paths, nil
}

func (de *DataExporter) exportGroupFile(path string, entries []types.Entry) error {
	file, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := ExportGroupCSV(file, entries); err != nil {
		file.Close()
		return err
	}
	return file.Close()
}

// ExportGroupCSV writes one row per bench of every run in entries
func ExportGroupCSV(w io.Writer, entries []types.Entry) error {
	writer := csv.NewWriter(w)

	header := []string{"Date", "Commit", "Tool", "Bench", "Value", "Unit", "Range", "Extra"}
	if err := writer.Write(header); err != nil {
		return err
	}

	for _, entry := range entries {
		date := time.UnixMilli(entry.Date).UTC().Format(time.RFC3339)
		for _, bench := range entry.Benches {
			row := []string{
				date,
				entry.Commit.ID,
				entry.Tool,
				bench.Name,
				strconv.FormatFloat(bench.Value, 'f', -1, 64),
				bench.Unit,
				bench.Range,
				bench.Extra,
			}
			if err := writer.Write(row); err != nil {
				return err
			}
		}
	}

	writer.Flush()
	return writer.Error()
}

// ExportSeriesCSV writes the values of a single bench over time
func ExportSeriesCSV(w io.Writer, points []types.SeriesPoint) error {
	writer := csv.NewWriter(w)

	if err := writer.Write([]string{"Date", "Commit", "Value", "Unit"}); err != nil {
		return err
	}
	for _, p := range points {
		row := []string{
			time.UnixMilli(p.Date).UTC().Format(time.RFC3339),
			p.CommitID,
			strconv.FormatFloat(p.Value, 'f', -1, 64),
			p.Unit,
		}
		if err := writer.Write(row); err != nil {
			return err
		}
	}

	writer.Flush()
	return writer.Error()
}

// FileName turns a group name into a safe file name
func FileName(group string) string {
	name := unsafeFileChars.ReplaceAllString(group, "_")
	if name == "" || name == "." || name == ".." {
		return "group"
	}
	return name
}

func uniqueName(name string, used map[string]bool) string {
	candidate := name
	for n := 2; used[strings.ToLower(candidate)]; n++ {
		candidate = fmt.Sprintf("%s_%d", name, n)
	}
	used[strings.ToLower(candidate)] = true
	return candidate
}
