package datafile

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/bench-history/tracker/types"
)

// ScriptPrefix is written before the JSON document in the script form
const ScriptPrefix = "window.BENCHMARK_DATA = "

const indent = "  "

// Format selects how a data file is framed on disk
type Format int

const (
	// FormatAuto infers the format from content or file extension
	FormatAuto Format = iota
	// FormatScript is the JavaScript assignment loaded by the chart page
	FormatScript
	// FormatJSON is the bare JSON document
	FormatJSON
)

func (f Format) String() string {
	switch f {
	case FormatScript:
		return "script"
	case FormatJSON:
		return "json"
	default:
		return "auto"
	}
}

// ParseFormat parses a format name as used in config and flags
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "auto":
		return FormatAuto, nil
	case "script", "js":
		return FormatScript, nil
	case "json":
		return FormatJSON, nil
	default:
		return FormatAuto, fmt.Errorf("unknown data file format: %s", s)
	}
}

// FormatForPath infers the format from a file extension
func FormatForPath(path string) Format {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		return FormatJSON
	default:
		return FormatScript
	}
}

// ErrMalformed is returned when the content is neither form
var ErrMalformed = errors.New("malformed benchmark data")

// New returns an empty document for a repository
func New(repoURL string) *types.DataFile {
	return &types.DataFile{RepoURL: repoURL}
}

// Parse reads a data file in either form
func Parse(r io.Reader) (*types.DataFile, Format, error) {
	raw, err := io.ReadAll(r)
	if err != nil {
		return nil, FormatAuto, fmt.Errorf("failed to read benchmark data: %w", err)
	}
	return ParseBytes(raw)
}

// ParseBytes is Parse over an in-memory buffer
func ParseBytes(raw []byte) (*types.DataFile, Format, error) {
	body, format, err := Unwrap(raw)
	if err != nil {
		return nil, format, err
	}

	var data types.DataFile
	if err := json.Unmarshal(body, &data); err != nil {
		return nil, format, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	return &data, format, nil
}

// Unwrap strips the script framing and returns the JSON body
func Unwrap(raw []byte) ([]byte, Format, error) {
	body := bytes.TrimSpace(raw)
	format := FormatJSON

	if idx := bytes.IndexByte(body, '='); idx >= 0 && !bytes.HasPrefix(body, []byte("{")) {
		lhs := bytes.TrimSpace(body[:idx])
		if !bytes.Equal(lhs, []byte("window.BENCHMARK_DATA")) {
			return nil, FormatScript, fmt.Errorf("%w: unexpected assignment to %q", ErrMalformed, lhs)
		}
		body = bytes.TrimSpace(body[idx+1:])
		body = bytes.TrimSuffix(body, []byte(";"))
		body = bytes.TrimSpace(body)
		format = FormatScript
	}

	if len(body) == 0 || body[0] != '{' {
		return nil, format, fmt.Errorf("%w: expected a JSON object", ErrMalformed)
	}
	return body, format, nil
}

// Encode writes the document in the given form. FormatAuto writes the
// script form. Output has no trailing newline.
func Encode(w io.Writer, data *types.DataFile, format Format) error {
	b, err := Marshal(data, format)
	if err != nil {
		return err
	}
	_, err = w.Write(b)
	return err
}

// Marshal returns the encoded document in the two-space layout of
// JSON.stringify(data, null, 2). Runs read from a document and left
// unedited are written back byte for byte.
func Marshal(data *types.DataFile, format Format) ([]byte, error) {
	if data == nil {
		return nil, fmt.Errorf("nil benchmark data")
	}

	repoURL, err := types.QuoteString(data.RepoURL)
	if err != nil {
		return nil, fmt.Errorf("failed to encode repoUrl: %w", err)
	}

	var buf bytes.Buffer
	if format != FormatJSON {
		buf.WriteString(ScriptPrefix)
	}
	fmt.Fprintf(&buf, "{\n%s\"lastUpdate\": %d,\n%s\"repoUrl\": %s,\n%s\"entries\": ",
		indent, data.LastUpdate, indent, repoURL, indent)
	if err := data.Entries.EncodeIndent(&buf, indent, indent); err != nil {
		return nil, fmt.Errorf("failed to encode benchmark data: %w", err)
	}
	buf.WriteString("\n}")
	return buf.Bytes(), nil
}

// ReadFile loads a data file from disk
func ReadFile(path string) (*types.DataFile, Format, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, FormatAuto, err
	}
	defer f.Close()

	data, format, err := Parse(f)
	if err != nil {
		return nil, format, fmt.Errorf("%s: %w", path, err)
	}
	return data, format, nil
}

// WriteFile atomically replaces path with the encoded document
func WriteFile(path string, data *types.DataFile, format Format) error {
	if format == FormatAuto {
		format = FormatForPath(path)
	}

	b, err := Marshal(data, format)
	if err != nil {
		return err
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create data directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(b); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write temp file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to sync temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close temp file: %w", err)
	}
	if err := os.Chmod(tmpName, 0644); err != nil {
		return fmt.Errorf("failed to chmod temp file: %w", err)
	}

	if err := os.Rename(tmpName, path); err != nil {
		return fmt.Errorf("failed to replace %s: %w", path, err)
	}
	return nil
}
