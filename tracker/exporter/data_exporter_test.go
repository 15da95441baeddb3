package exporter

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bench-history/tracker/types"
)

func entries() []types.Entry {
	return []types.Entry{
		{
			Commit: types.Commit{ID: "7a5e1b83b6a2d8e5f4c2e01f2bb58df9c38b1f6a"},
			Date:   1650369885000,
			Tool:   "go",
			Benches: []types.Bench{
				{Name: "BenchmarkFib10", Value: 135.5, Unit: "ns/op", Range: "± 2%", Extra: "8841192 times"},
				{Name: "BenchmarkFib20", Value: 16541, Unit: "ns/op"},
			},
		},
	}
}

func TestExportGroupCSV(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, ExportGroupCSV(&buf, entries()))

	assert.Equal(t, "Date,Commit,Tool,Bench,Value,Unit,Range,Extra\n"+
		"2022-04-19T12:04:45Z,7a5e1b83b6a2d8e5f4c2e01f2bb58df9c38b1f6a,go,BenchmarkFib10,135.5,ns/op,± 2%,8841192 times\n"+
		"2022-04-19T12:04:45Z,7a5e1b83b6a2d8e5f4c2e01f2bb58df9c38b1f6a,go,BenchmarkFib20,16541,ns/op,,\n",
		buf.String())
}

func TestExportSeriesCSV(t *testing.T) {
	var buf bytes.Buffer
	err := ExportSeriesCSV(&buf, []types.SeriesPoint{
		{Date: 1650369885000, CommitID: "abc", Value: 1.25, Unit: "ms"},
	})
	require.NoError(t, err)
	assert.Equal(t, "Date,Commit,Value,Unit\n2022-04-19T12:04:45Z,abc,1.25,ms\n", buf.String())
}

func TestExportAll(t *testing.T) {
	var data types.DataFile
	data.Entries.Set("Go Benchmark", entries())
	data.Entries.Set("../escape", nil)

	dir := filepath.Join(t.TempDir(), "exports")
	paths, err := NewDataExporter(dir).ExportAll(&data)
	require.NoError(t, err)
	require.Equal(t, []string{
		filepath.Join(dir, "Go_Benchmark.csv"),
		filepath.Join(dir, ".._escape.csv"),
	}, paths)

	content, err := os.ReadFile(paths[0])
	require.NoError(t, err)
	assert.Contains(t, string(content), "BenchmarkFib20")
}

func TestExportAllSuffixesCollidingNames(t *testing.T) {
	var data types.DataFile
	data.Entries.Set("Bench A", entries())
	data.Entries.Set("Bench/A", nil)
	data.Entries.Set("bench_a", nil)
	data.Entries.Set("Bench_A_2", nil)

	dir := t.TempDir()
	paths, err := NewDataExporter(dir).ExportAll(&data)
	require.NoError(t, err)
	require.Equal(t, []string{
		filepath.Join(dir, "Bench_A.csv"),
		filepath.Join(dir, "Bench_A_2.csv"),
		filepath.Join(dir, "bench_a_3.csv"),
		filepath.Join(dir, "Bench_A_2_2.csv"),
	}, paths)

	content, err := os.ReadFile(paths[0])
	require.NoError(t, err)
	assert.Contains(t, string(content), "BenchmarkFib20")
	content, err = os.ReadFile(paths[1])
	require.NoError(t, err)
	assert.NotContains(t, string(content), "BenchmarkFib20")
}

func TestFileName(t *testing.T) {
	assert.Equal(t, "Benchmark", FileName("Benchmark"))
	assert.Equal(t, "a_b", FileName("a/b"))
	assert.Equal(t, "group", FileName(".."))
	assert.Equal(t, "group", FileName(""))
}
