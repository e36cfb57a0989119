// Package statetest holds behaviour tests shared by every state.Store backend.
package statetest

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/entrhq/episodic/pkg/state"
)

// Run exercises a fresh store returned by open.
func Run(t *testing.T, open func(t *testing.T) state.Store) {
	t.Run("watermark unset", func(t *testing.T) {
		s := open(t)
		wm, err := s.Get(context.Background(), "weekly")
		require.NoError(t, err)
		assert.False(t, wm.IsSet())
	})

	t.Run("watermark set and get", func(t *testing.T) {
		s := open(t)
		ctx := context.Background()
		at := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

		require.NoError(t, s.Set(ctx, "weekly", state.Watermark{RolloverAt: at, ConsumedThrough: 5, Issued: 1}))
		wm, err := s.Get(ctx, "weekly")
		require.NoError(t, err)
		assert.True(t, wm.RolloverAt.Equal(at))
		assert.Equal(t, 5, wm.ConsumedThrough)
		assert.Equal(t, 1, wm.Issued)

		other, err := s.Get(ctx, "monthly")
		require.NoError(t, err)
		assert.False(t, other.IsSet())
	})

	t.Run("watermark only moves forward", func(t *testing.T) {
		s := open(t)
		ctx := context.Background()
		at := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

		require.NoError(t, s.Set(ctx, "weekly", state.Watermark{RolloverAt: at, ConsumedThrough: 5, Issued: 2}))
		err := s.Set(ctx, "weekly", state.Watermark{RolloverAt: at.Add(-time.Hour), Issued: 3})
		assert.ErrorIs(t, err, state.ErrWatermarkRegression)

		require.NoError(t, s.Set(ctx, "weekly", state.Watermark{RolloverAt: at.Add(time.Hour), ConsumedThrough: 3, Issued: 1}))
		wm, err := s.Get(ctx, "weekly")
		require.NoError(t, err)
		assert.True(t, wm.RolloverAt.Equal(at.Add(time.Hour)))
		assert.Equal(t, 5, wm.ConsumedThrough, "counters keep their maximum")
		assert.Equal(t, 2, wm.Issued)
	})

	t.Run("shadow add is idempotent and ordered", func(t *testing.T) {
		s := open(t)
		ctx := context.Background()

		n, err := s.AddIfAbsent(ctx, "monthly", []string{"W0002", "W0001"})
		require.NoError(t, err)
		assert.Equal(t, 2, n)

		n, err = s.AddIfAbsent(ctx, "monthly", []string{"W0001", "W0003", "W0003"})
		require.NoError(t, err)
		assert.Equal(t, 1, n)

		n, err = s.AddIfAbsent(ctx, "monthly", []string{"W0001"})
		require.NoError(t, err)
		assert.Equal(t, 0, n)

		snap, err := s.Snapshot(ctx, "monthly")
		require.NoError(t, err)
		assert.Equal(t, []string{"W0002", "W0001", "W0003"}, snap.Identifiers)
		assert.False(t, snap.Draft.Filled)
		assert.Contains(t, snap.Draft.Abstract, "3 pending")
	})

	t.Run("empty snapshot", func(t *testing.T) {
		s := open(t)
		snap, err := s.Snapshot(context.Background(), "annual")
		require.NoError(t, err)
		assert.Equal(t, 0, snap.Len())
		assert.NotNil(t, snap.Identifiers)
	})

	t.Run("reset clears only its level", func(t *testing.T) {
		s := open(t)
		ctx := context.Background()

		_, err := s.AddIfAbsent(ctx, "weekly", []string{"Loop0001"})
		require.NoError(t, err)
		_, err = s.AddIfAbsent(ctx, "monthly", []string{"W0001"})
		require.NoError(t, err)
		require.NoError(t, s.SetDraft(ctx, "weekly", state.Draft{Abstract: "a", Impression: "i", Filled: true}))

		require.NoError(t, s.Reset(ctx, "weekly"))

		weekly, err := s.Snapshot(ctx, "weekly")
		require.NoError(t, err)
		assert.Equal(t, 0, weekly.Len())
		assert.False(t, weekly.Draft.Filled)

		monthly, err := s.Snapshot(ctx, "monthly")
		require.NoError(t, err)
		assert.Equal(t, []string{"W0001"}, monthly.Identifiers)
	})

	t.Run("draft survives until new items arrive", func(t *testing.T) {
		s := open(t)
		ctx := context.Background()

		_, err := s.AddIfAbsent(ctx, "weekly", []string{"Loop0001"})
		require.NoError(t, err)
		draft := state.Draft{Abstract: "abstract", Impression: "impression", Keywords: []string{"k"}, Filled: true}
		require.NoError(t, s.SetDraft(ctx, "weekly", draft))

		_, err = s.AddIfAbsent(ctx, "weekly", []string{"Loop0001"})
		require.NoError(t, err)
		snap, err := s.Snapshot(ctx, "weekly")
		require.NoError(t, err)
		assert.Equal(t, draft, snap.Draft)

		_, err = s.AddIfAbsent(ctx, "weekly", []string{"Loop0002"})
		require.NoError(t, err)
		snap, err = s.Snapshot(ctx, "weekly")
		require.NoError(t, err)
		assert.False(t, snap.Draft.Filled)
	})

	t.Run("reset and set draft stamp the buffer", func(t *testing.T) {
		s := open(t)
		ctx := context.Background()

		require.NoError(t, s.Reset(ctx, "weekly"))
		snap, err := s.Snapshot(ctx, "weekly")
		require.NoError(t, err)
		assert.False(t, snap.UpdatedAt.IsZero(), "reset")

		require.NoError(t, s.SetDraft(ctx, "monthly", state.Draft{Abstract: "a", Impression: "i", Filled: true}))
		snap, err = s.Snapshot(ctx, "monthly")
		require.NoError(t, err)
		assert.False(t, snap.UpdatedAt.IsZero(), "set draft")
	})

	t.Run("draft keeps its covered identifiers", func(t *testing.T) {
		s := open(t)
		ctx := context.Background()

		_, err := s.AddIfAbsent(ctx, "weekly", []string{"Loop0001", "Loop0002"})
		require.NoError(t, err)
		require.NoError(t, s.SetDraft(ctx, "weekly", state.Draft{
			Abstract: "a", Impression: "i", Covers: []string{"Loop0001"}, Filled: true,
		}))
		snap, err := s.Snapshot(ctx, "weekly")
		require.NoError(t, err)
		assert.Equal(t, []string{"Loop0001"}, snap.Draft.Covers)
		assert.False(t, snap.DraftCoversAll())
	})

	t.Run("cancelled context", func(t *testing.T) {
		s := open(t)
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		_, err := s.Get(ctx, "weekly")
		assert.ErrorIs(t, err, context.Canceled)
	})
}
