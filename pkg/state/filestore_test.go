package state_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/entrhq/episodic/pkg/state"
	"github.com/entrhq/episodic/pkg/state/statetest"
)

func TestFileStore(t *testing.T) {
	statetest.Run(t, func(t *testing.T) state.Store {
		s, err := state.NewFileStore(t.TempDir())
		require.NoError(t, err)
		return s
	})
}

func TestFileStoreSurvivesReopen(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()
	at := time.Date(2025, 1, 6, 9, 0, 0, 0, time.UTC)

	s, err := state.NewFileStore(dir)
	require.NoError(t, err)
	require.NoError(t, s.Set(ctx, "weekly", state.Watermark{RolloverAt: at, Issued: 1}))
	_, err = s.AddIfAbsent(ctx, "monthly", []string{"W0001"})
	require.NoError(t, err)

	reopened, err := state.NewFileStore(dir)
	require.NoError(t, err)
	wm, err := reopened.Get(ctx, "weekly")
	require.NoError(t, err)
	assert.True(t, wm.RolloverAt.Equal(at))

	snap, err := reopened.Snapshot(ctx, "monthly")
	require.NoError(t, err)
	assert.Equal(t, []string{"W0001"}, snap.Identifiers)

	assert.FileExists(t, filepath.Join(dir, state.WatermarkFile))
	assert.FileExists(t, filepath.Join(dir, state.ShadowFile))
}

func TestFileStoreIdempotentAddDoesNotWrite(t *testing.T) {
	dir := t.TempDir()
	s, err := state.NewFileStore(dir)
	require.NoError(t, err)

	n, err := s.AddIfAbsent(context.Background(), "weekly", nil)
	require.NoError(t, err)
	assert.Equal(t, 0, n)
	assert.NoFileExists(t, filepath.Join(dir, state.ShadowFile))
}

func TestFileStoreCorruptDocument(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, state.WatermarkFile), []byte("{not json"), 0o644))

	s, err := state.NewFileStore(dir)
	require.NoError(t, err)
	_, err = s.Get(context.Background(), "weekly")
	assert.Error(t, err)
}

func TestAdvance(t *testing.T) {
	at := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)

	got, err := state.Advance(state.Watermark{}, state.Watermark{RolloverAt: at, ConsumedThrough: 4})
	require.NoError(t, err)
	assert.Equal(t, 4, got.ConsumedThrough)

	_, err = state.Advance(got, state.Watermark{})
	assert.ErrorIs(t, err, state.ErrWatermarkRegression)

	same, err := state.Advance(got, state.Watermark{RolloverAt: at})
	require.NoError(t, err, "equal time is not a regression")
	assert.Equal(t, 4, same.ConsumedThrough)
}

func TestShadowBufferAdd(t *testing.T) {
	b := state.EmptyBuffer()
	assert.Equal(t, 2, b.Add([]string{"a", "", "b", "a"}))
	assert.Equal(t, []string{"a", "b"}, b.Identifiers)
	assert.True(t, b.Contains("b"))
	assert.False(t, b.Contains("c"))
}

func TestShadowBufferDraftCoversAll(t *testing.T) {
	b := state.EmptyBuffer()
	b.Add([]string{"a", "b", "c"})
	assert.False(t, b.DraftCoversAll(), "placeholder draft")

	b.Draft = state.Draft{Abstract: "x", Impression: "y", Filled: true}
	assert.True(t, b.DraftCoversAll(), "no covers list means the whole buffer")

	b.Draft.Covers = []string{"a", "b"}
	assert.False(t, b.DraftCoversAll())

	b.Draft.Covers = []string{"a", "b", "c"}
	assert.True(t, b.DraftCoversAll())
}
