package schema

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidateDocument(t *testing.T) {
	v, err := NewSchemaValidator()
	require.NoError(t, err)

	good := `window.BENCHMARK_DATA = {
  "lastUpdate": 1650371224331,
  "repoUrl": "https://github.com/example/repo",
  "entries": {
    "Benchmark": [
      {
        "commit": {
          "author": {"name": "Alice"},
          "committer": {"name": "GitHub", "email": null},
          "id": "0b2e9dfa1c6a0f4f0e2b0a3c5d6e7f8091a2b3c4",
          "message": "m",
          "timestamp": "2022-04-19T12:04:45+01:00",
          "url": "https://github.com/example/repo/commit/0b2e9dfa"
        },
        "date": 1650366598054,
        "tool": "jsperformanceentry",
        "benches": [{"name": "mx_Register", "value": 12.5, "unit": "ms", "extra": "type: measure"}]
      }
    ]
  }
}`
	valid, errs, err := v.ValidateDocument([]byte(good))
	require.NoError(t, err)
	assert.True(t, valid, "schema errors: %v", errs)
	assert.Empty(t, errs)
}

func TestValidateDocumentReportsTypeErrors(t *testing.T) {
	v, err := NewSchemaValidator()
	require.NoError(t, err)

	bad := `{
  "lastUpdate": "yesterday",
  "repoUrl": "r",
  "entries": {
    "Benchmark": [
      {"commit": {"author": {"name": "a"}}, "date": 1, "tool": "go", "benches": [{"name": "x", "value": "fast", "unit": "ms"}]}
    ]
  }
}`
	valid, errs, err := v.ValidateDocument([]byte(bad))
	require.NoError(t, err)
	assert.False(t, valid)
	assert.NotEmpty(t, errs)

	joined := ""
	for _, e := range errs {
		joined += e + "\n"
	}
	assert.Contains(t, joined, "lastUpdate")
	assert.Contains(t, joined, "value")
	assert.Contains(t, joined, "committer")
}

func TestValidateDocumentRejectsUnframedGarbage(t *testing.T) {
	v, err := NewSchemaValidator()
	require.NoError(t, err)

	_, _, err = v.ValidateDocument([]byte("not json"))
	assert.Error(t, err)
}

func TestSourceIsEmbedded(t *testing.T) {
	assert.Contains(t, Source(), "\"entries\"")
}
