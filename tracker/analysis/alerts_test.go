package analysis

import (
	"context"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/bench-history/tracker/config"
	"github.com/bench-history/tracker/storage"
	"github.com/bench-history/tracker/types"
)

type MockHistoryStore struct {
	mock.Mock
	storage.HistoryStore
}

func (m *MockHistoryStore) Entries(ctx context.Context, group string, limit int) ([]types.Entry, error) {
	args := m.Called(ctx, group, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]types.Entry), args.Error(1)
}

func run(id, tool string, benches ...types.Bench) types.Entry {
	return types.Entry{
		Commit:  types.Commit{ID: id},
		Date:    1,
		Tool:    tool,
		Benches: benches,
	}
}

func TestBiggerIsBetter(t *testing.T) {
	tests := []struct {
		tool, unit string
		want       bool
	}{
		{"go", "ns/op", false},
		{"benchmarkjs", "ops/sec", true},
		{"benchmarkjs", "ms", true},
		{"pytest", "iter/sec", true},
		{"customSmallerIsBetter", "ms", false},
		{"customSmallerIsBetter", "req/s", true},
		{"jsperformanceentry", "ms", false},
		{"somethingElse", "ms", false},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, BiggerIsBetter(tt.tool, tt.unit), "%s %s", tt.tool, tt.unit)
	}
	assert.True(t, KnownTool("cargo"))
	assert.False(t, KnownTool("somethingElse"))
}

func TestCompareSmallerIsBetter(t *testing.T) {
	prev := run("a", "go", types.Bench{Name: "x", Value: 100, Unit: "ns/op"}, types.Bench{Name: "z", Value: 0, Unit: "ns/op"})
	curr := run("b", "go",
		types.Bench{Name: "x", Value: 250, Unit: "ns/op"},
		types.Bench{Name: "y", Value: 10, Unit: "ns/op"},
		types.Bench{Name: "z", Value: 5, Unit: "ns/op"},
	)

	cmp := Compare("Benchmark", &prev, curr)
	require.Len(t, cmp.Benches, 3)

	x := cmp.Benches[0]
	require.NotNil(t, x.Ratio)
	assert.InDelta(t, 2.5, *x.Ratio, 1e-9)
	assert.Equal(t, 100.0, *x.Previous)

	assert.Nil(t, cmp.Benches[1].Previous, "new bench has no predecessor")
	assert.Nil(t, cmp.Benches[1].Ratio)
	assert.Nil(t, cmp.Benches[2].Ratio, "zero predecessor yields no ratio")
}

func TestCompareBiggerIsBetter(t *testing.T) {
	prev := run("a", "benchmarkjs", types.Bench{Name: "x", Value: 3000, Unit: "ops/sec"})
	curr := run("b", "benchmarkjs", types.Bench{Name: "x", Value: 1000, Unit: "ops/sec"})

	cmp := Compare("Benchmark", &prev, curr)
	require.NotNil(t, cmp.Benches[0].Ratio)
	assert.InDelta(t, 3.0, *cmp.Benches[0].Ratio, 1e-9)
	assert.True(t, cmp.Benches[0].BiggerIsBetter)
}

func TestCompareWithoutPrevious(t *testing.T) {
	cmp := Compare("Benchmark", nil, run("b", "go", types.Bench{Name: "x", Value: 1, Unit: "ns/op"}))
	assert.Nil(t, cmp.Previous)
	assert.Nil(t, cmp.Benches[0].Ratio)
	assert.Empty(t, Alerts(cmp, 2.0, time.Now()))
}

func TestSeverity(t *testing.T) {
	assert.Equal(t, SeverityMinor, Severity(2.1, 2.0))
	assert.Equal(t, SeverityMajor, Severity(3.0, 2.0))
	assert.Equal(t, SeverityMajor, Severity(3.9, 2.0))
	assert.Equal(t, SeverityCritical, Severity(4.0, 2.0))
}

func TestAlerts(t *testing.T) {
	prev := run("a", "go",
		types.Bench{Name: "x", Value: 100, Unit: "ns/op"},
		types.Bench{Name: "y", Value: 100, Unit: "ns/op"},
		types.Bench{Name: "z", Value: 100, Unit: "ns/op"},
	)
	curr := run("b", "go",
		types.Bench{Name: "x", Value: 200, Unit: "ns/op"}, // exactly at threshold
		types.Bench{Name: "y", Value: 201, Unit: "ns/op"},
		types.Bench{Name: "z", Value: 500, Unit: "ns/op"},
	)
	now := time.Unix(100, 0)

	alerts := Alerts(Compare("Benchmark", &prev, curr), 2.0, now)
	require.Len(t, alerts, 2)

	assert.Equal(t, "y", alerts[0].Bench)
	assert.Equal(t, SeverityMinor, alerts[0].Severity)
	assert.Equal(t, "b", alerts[0].CommitID)
	assert.Equal(t, "a", alerts[0].PrevCommit)
	assert.Equal(t, now, alerts[0].DetectedAt)
	assert.NotEmpty(t, alerts[0].ID)

	assert.Equal(t, "z", alerts[1].Bench)
	assert.Equal(t, SeverityMajor, alerts[1].Severity)
	assert.NotEqual(t, alerts[0].ID, alerts[1].ID)

	assert.False(t, ShouldFail(alerts, 3.0))
	assert.True(t, ShouldFail(alerts, 2.4))
	assert.False(t, ShouldFail(nil, 1.0))
}

func TestNewAnalyzer(t *testing.T) {
	a, err := NewAnalyzer(config.AlertConfig{Threshold: "150%"}, logrus.New())
	require.NoError(t, err)
	assert.InDelta(t, 1.5, a.Threshold, 1e-9)
	assert.InDelta(t, 1.5, a.FailThreshold, 1e-9)

	a, err = NewAnalyzer(config.AlertConfig{Threshold: "150%", FailThreshold: "300%"}, logrus.New())
	require.NoError(t, err)
	assert.InDelta(t, 3.0, a.FailThreshold, 1e-9)

	_, err = NewAnalyzer(config.AlertConfig{Threshold: "x"}, logrus.New())
	assert.Error(t, err)
}

func TestAnalyzerLatest(t *testing.T) {
	a, err := NewAnalyzer(config.AlertConfig{Threshold: "200%"}, logrus.New())
	require.NoError(t, err)

	newest := run("c", "go", types.Bench{Name: "x", Value: 900, Unit: "ns/op"})
	older := run("b", "go", types.Bench{Name: "x", Value: 100, Unit: "ns/op"})

	store := new(MockHistoryStore)
	store.On("Entries", mock.Anything, "Benchmark", 2).Return([]types.Entry{newest, older}, nil)
	store.On("Entries", mock.Anything, "Empty", 2).Return([]types.Entry{}, nil)
	store.On("Entries", mock.Anything, "Missing", 2).Return(nil, storage.ErrNotFound)

	report, err := a.Latest(context.Background(), store, "Benchmark")
	require.NoError(t, err)
	assert.True(t, report.HasAlerts())
	assert.True(t, report.ShouldFail)
	assert.Equal(t, SeverityCritical, report.Alerts[0].Severity)
	assert.Equal(t, "b", report.Comparison.Previous.Commit.ID)

	_, err = a.Latest(context.Background(), store, "Empty")
	assert.ErrorIs(t, err, storage.ErrNotFound)
	_, err = a.Latest(context.Background(), store, "Missing")
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestAnalyzerCommit(t *testing.T) {
	a, err := NewAnalyzer(config.AlertConfig{Threshold: "200%"}, logrus.New())
	require.NoError(t, err)

	entries := []types.Entry{
		run("c", "go", types.Bench{Name: "x", Value: 100, Unit: "ns/op"}),
		run("b", "go", types.Bench{Name: "x", Value: 300, Unit: "ns/op"}),
		run("a", "go", types.Bench{Name: "x", Value: 100, Unit: "ns/op"}),
	}
	store := new(MockHistoryStore)
	store.On("Entries", mock.Anything, "Benchmark", 0).Return(entries, nil)

	report, err := a.Commit(context.Background(), store, "Benchmark", "b")
	require.NoError(t, err)
	require.Len(t, report.Alerts, 1)
	assert.Equal(t, "a", report.Alerts[0].PrevCommit)

	report, err = a.Commit(context.Background(), store, "Benchmark", "a")
	require.NoError(t, err)
	assert.Nil(t, report.Comparison.Previous)

	_, err = a.Commit(context.Background(), store, "Benchmark", "zzz")
	assert.ErrorIs(t, err, storage.ErrNotFound)
}
