package storage

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/bench-history/tracker/types"
)

type mockMirror struct {
	mock.Mock
}

func (m *mockMirror) InsertEntry(ctx context.Context, group string, entry types.Entry) (bool, error) {
	args := m.Called(ctx, group, entry)
	return args.Bool(0), args.Error(1)
}

type snapshotStore struct {
	HistoryStore
	data *types.DataFile
}

func (s snapshotStore) Snapshot(ctx context.Context) (*types.DataFile, error) {
	return s.data, nil
}

func TestMirrorCopiesEveryGroup(t *testing.T) {
	data := &types.DataFile{LastUpdate: 1, RepoURL: "r"}
	data.Entries.Set("Benchmark", []types.Entry{testEntry(1, 1_000), testEntry(2, 2_000)})
	data.Entries.Set("Other", []types.Entry{testEntry(3, 3_000)})

	dst := new(mockMirror)
	dst.On("InsertEntry", mock.Anything, "Benchmark", testEntry(1, 1_000)).Return(false, nil).Once()
	dst.On("InsertEntry", mock.Anything, "Benchmark", testEntry(2, 2_000)).Return(true, nil).Once()
	dst.On("InsertEntry", mock.Anything, "Other", testEntry(3, 3_000)).Return(true, nil).Once()

	result, err := Mirror(context.Background(), snapshotStore{data: data}, dst)
	require.NoError(t, err)
	assert.Equal(t, &MirrorResult{Groups: 2, Inserted: 2, Skipped: 1}, result)
	dst.AssertExpectations(t)
}

func TestMirrorStopsOnError(t *testing.T) {
	data := &types.DataFile{LastUpdate: 1, RepoURL: "r"}
	data.Entries.Set("Benchmark", []types.Entry{testEntry(1, 1_000), testEntry(2, 2_000)})

	boom := errors.New("connection reset")
	dst := new(mockMirror)
	dst.On("InsertEntry", mock.Anything, "Benchmark", mock.Anything).Return(false, boom).Once()

	_, err := Mirror(context.Background(), snapshotStore{data: data}, dst)
	assert.ErrorIs(t, err, boom)
	dst.AssertNumberOfCalls(t, "InsertEntry", 1)
}
