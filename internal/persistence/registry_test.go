package persistence

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestRegistry(t *testing.T) *Registry {
	t.Helper()
	r, err := OpenRegistry(filepath.Join(t.TempDir(), "experiments.db"))
	require.NoError(t, err)
	t.Cleanup(func() { r.Close() })
	return r
}

func TestCreateAndGet(t *testing.T) {
	ctx := context.Background()
	r := openTestRegistry(t)

	created, err := r.Create(ctx, Experiment{
		Name:        "keel",
		Type:        TypeBatch,
		Datasets:    []string{"iris", "wine"},
		Classifiers: []string{"SVC", "DT", "RF"},
		Metrics:     []string{"AUC", "Accuracy"},
		Path:        "/tmp/results",
	})
	require.NoError(t, err)
	assert.NotEmpty(t, created.ID)
	assert.Equal(t, StatusRunning, created.Status)

	got, err := r.Get(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, "keel", got.Name)
	assert.Equal(t, TypeBatch, got.Type)
	assert.Equal(t, StatusRunning, got.Status)
	assert.Equal(t, []string{"iris", "wine"}, got.Datasets)
	assert.Equal(t, []string{"SVC", "DT", "RF"}, got.Classifiers)
	assert.Equal(t, []string{"AUC", "Accuracy"}, got.Metrics)
	assert.Equal(t, "/tmp/results", got.Path)
	assert.WithinDuration(t, created.CreatedAt, got.CreatedAt, time.Millisecond)
	assert.Nil(t, got.FinishedAt)
}

func TestFinish(t *testing.T) {
	ctx := context.Background()
	r := openTestRegistry(t)

	ok, err := r.Create(ctx, Experiment{Name: "ok", Type: TypeIncremental})
	require.NoError(t, err)
	failed, err := r.Create(ctx, Experiment{Name: "failed", Type: TypeBatch})
	require.NoError(t, err)

	require.NoError(t, r.Finish(ctx, ok.ID, nil))
	require.NoError(t, r.Finish(ctx, failed.ID, errors.New("dataset not found")))

	got, err := r.Get(ctx, ok.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusFinished, got.Status)
	assert.NotNil(t, got.FinishedAt)
	assert.Empty(t, got.Datasets)

	got, err = r.Get(ctx, failed.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusFailed, got.Status)
	assert.Equal(t, "dataset not found", got.Error)

	assert.ErrorIs(t, r.Finish(ctx, "missing", nil), ErrExperimentNotFound)
}

func TestListNewestFirstAndDelete(t *testing.T) {
	ctx := context.Background()
	r := openTestRegistry(t)

	first, err := r.Create(ctx, Experiment{Name: "first", Type: TypeBatch})
	require.NoError(t, err)
	time.Sleep(2 * time.Millisecond)
	second, err := r.Create(ctx, Experiment{Name: "second", Type: TypeBatch})
	require.NoError(t, err)

	list, err := r.List(ctx)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, second.ID, list[0].ID)
	assert.Equal(t, first.ID, list[1].ID)

	require.NoError(t, r.Delete(ctx, first.ID))
	_, err = r.Get(ctx, first.ID)
	assert.ErrorIs(t, err, ErrExperimentNotFound)
	assert.ErrorIs(t, r.Delete(ctx, first.ID), ErrExperimentNotFound)
}

func TestReopenKeepsHistory(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "experiments.db")

	r, err := OpenRegistry(path)
	require.NoError(t, err)
	created, err := r.Create(ctx, Experiment{Name: "persisted", Type: TypeBatch})
	require.NoError(t, err)
	require.NoError(t, r.Close())

	r, err = OpenRegistry(path)
	require.NoError(t, err)
	defer r.Close()
	got, err := r.Get(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, "persisted", got.Name)
}
