package finalize

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/entrhq/episodic/pkg/cascade"
	"github.com/entrhq/episodic/pkg/digest"
	"github.com/entrhq/episodic/pkg/failure"
	"github.com/entrhq/episodic/pkg/level"
	"github.com/entrhq/episodic/pkg/source"
	"github.com/entrhq/episodic/pkg/trigger"
)

var now = time.Date(2025, 6, 2, 9, 30, 0, 0, time.UTC)

type recordingPromoter struct {
	calls []digest.Digest
	err   error
}

func (p *recordingPromoter) Promote(_ context.Context, l level.Level, d digest.Digest) (cascade.Result, error) {
	p.calls = append(p.calls, d)
	if p.err != nil {
		return cascade.Result{}, p.err
	}
	return cascade.Result{NextLevel: "monthly"}, nil
}

type fixture struct {
	ctx       context.Context
	layout    level.Layout
	weekly    level.Level
	builder   *digest.Builder
	promoter  *recordingPromoter
	finalizer *Finalizer
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	reg := level.Default()
	layout := level.NewLayout(t.TempDir())
	weekly, err := reg.Resolve("weekly")
	require.NoError(t, err)
	builder := digest.NewBuilder(layout, source.NewScanner(reg, layout, nil), nil, func() time.Time { return now })
	p := &recordingPromoter{}
	return &fixture{
		ctx:       context.Background(),
		layout:    layout,
		weekly:    weekly,
		builder:   builder,
		promoter:  p,
		finalizer: New(reg, builder, p, nil, func() time.Time { return now.Add(time.Hour) }),
	}
}

func (f *fixture) draft(t *testing.T, seq int) string {
	t.Helper()
	items := []source.Artifact{{Sequence: 1, Identifier: "Loop0001_a"}, {Sequence: 2, Identifier: "Loop0002_b"}}
	d := f.builder.Build(f.weekly, seq, items, digest.Payload{
		Title: digest.ProvisionalTitle(items),
		Overall: digest.Content{
			Abstract:   "two quiet days",
			Impression: "steady",
			Keywords:   []string{"calm"},
		},
	}, trigger.ReasonEarly)
	path, err := f.builder.WriteDraft(f.ctx, f.weekly, d)
	require.NoError(t, err)
	return path
}

func TestFinalizeCommitsAndPromotes(t *testing.T) {
	f := newFixture(t)
	draft := f.draft(t, 1)

	res, err := f.finalizer.Finalize(f.ctx, draft, "  Steady: progress? ", digest.PolicyAbort)
	require.NoError(t, err)

	assert.Equal(t, "W0001_Steady_progress", res.Receipt.Identifier)
	assert.Equal(t, f.layout.DigestPath(f.weekly, "W0001_Steady_progress"), res.Receipt.Path)
	require.NotNil(t, res.Promotion)
	require.Len(t, f.promoter.calls, 1)
	assert.Equal(t, "W0001_Steady_progress", f.promoter.calls[0].Metadata.Name)

	committed, err := digest.Load(res.Receipt.Path)
	require.NoError(t, err)
	assert.Equal(t, "Steady_progress", committed.Metadata.Title)
	require.NotNil(t, committed.Metadata.CompletedAt)
	assert.True(t, committed.Metadata.CompletedAt.Equal(now.Add(time.Hour)))
	assert.True(t, committed.Metadata.CreatedAt.Equal(now), "creation time is kept")
	assert.Equal(t, []string{"Loop0001_a", "Loop0002_b"}, committed.Metadata.InputIdentifiers)

	_, err = os.Stat(draft)
	assert.True(t, os.IsNotExist(err), "draft is removed after commit")
}

func TestFinalizeRejectsEmptyTitle(t *testing.T) {
	f := newFixture(t)
	draft := f.draft(t, 1)

	_, err := f.finalizer.Finalize(f.ctx, draft, ` ?*" `, digest.PolicyAbort)
	require.ErrorIs(t, err, failure.ErrMissingMetadata)
	assert.Empty(t, f.promoter.calls)
	_, statErr := os.Stat(draft)
	assert.NoError(t, statErr)
}

func TestFinalizeRejectsDraftWithoutLevel(t *testing.T) {
	f := newFixture(t)
	path := filepath.Join(t.TempDir(), "W0001.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"metadata":{"name":"W0001","sequenceNumber":1}}`), 0o644))

	_, err := f.finalizer.Finalize(f.ctx, path, "title", digest.PolicyAbort)
	require.ErrorIs(t, err, failure.ErrMissingMetadata)
	assert.ErrorIs(t, err, level.ErrUnknownLevel)
}

func TestFinalizeRejectsDraftWithoutSequence(t *testing.T) {
	f := newFixture(t)
	path := filepath.Join(t.TempDir(), "W.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"metadata":{"name":"W","level":"weekly"}}`), 0o644))

	_, err := f.finalizer.Finalize(f.ctx, path, "title", digest.PolicyAbort)
	assert.ErrorIs(t, err, failure.ErrMissingMetadata)
}

func TestFinalizeMissingDraft(t *testing.T) {
	f := newFixture(t)
	_, err := f.finalizer.Finalize(f.ctx, filepath.Join(t.TempDir(), "nope.json"), "title", digest.PolicyAbort)
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestFinalizeDuplicatePolicies(t *testing.T) {
	f := newFixture(t)
	first := f.draft(t, 1)
	_, err := f.finalizer.Finalize(f.ctx, first, "Same", digest.PolicyAbort)
	require.NoError(t, err)

	second := f.draft(t, 1)
	_, err = f.finalizer.Finalize(f.ctx, second, "Same", digest.PolicyAbort)
	require.ErrorIs(t, err, failure.ErrDuplicateArtifact)
	_, statErr := os.Stat(second)
	assert.NoError(t, statErr, "draft survives a refused commit")

	res, err := f.finalizer.Finalize(f.ctx, second, "Same", digest.PolicySkip)
	require.NoError(t, err)
	assert.True(t, res.Receipt.Skipped)
	assert.Nil(t, res.Promotion)
	_, statErr = os.Stat(second)
	assert.NoError(t, statErr, "draft survives a skipped commit")

	res, err = f.finalizer.Finalize(f.ctx, second, "Same", digest.PolicyOverwrite)
	require.NoError(t, err)
	assert.True(t, res.Receipt.Overwritten)
	assert.Len(t, f.promoter.calls, 2)
}

func TestFinalizeRejectsStaleDraft(t *testing.T) {
	f := newFixture(t)
	draft := f.draft(t, 1)

	items := []source.Artifact{{Sequence: 1, Identifier: "Loop0001_a"}}
	committed := f.builder.Build(f.weekly, 1, items, digest.Payload{
		Overall: digest.Content{Abstract: "a", Impression: "i", Keywords: []string{}},
	}, trigger.ReasonEarly)
	_, err := f.builder.Commit(f.ctx, f.weekly, committed, digest.PolicyAbort)
	require.NoError(t, err)

	_, err = f.finalizer.Finalize(f.ctx, draft, "Title", digest.PolicyOverwrite)
	require.ErrorIs(t, err, ErrStaleDraft)
	assert.NotErrorIs(t, err, failure.ErrNonMonotonic)
	assert.Contains(t, err.Error(), "committed as W0001")
	assert.Empty(t, f.promoter.calls)
	assert.NoFileExists(t, f.layout.DigestPath(f.weekly, "W0001_Title"))
}

func TestFinalizeReportsPromotionFailure(t *testing.T) {
	f := newFixture(t)
	f.promoter.err = errors.New("state unavailable")
	draft := f.draft(t, 1)

	res, err := f.finalizer.Finalize(f.ctx, draft, "Title", digest.PolicyAbort)
	require.Error(t, err)
	assert.ErrorIs(t, err, f.promoter.err)
	assert.Equal(t, "W0001_Title", res.Receipt.Identifier)
	_, statErr := os.Stat(res.Receipt.Path)
	assert.NoError(t, statErr, "the commit stands")
}
