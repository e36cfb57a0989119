// Package finalize turns an analyst-filled draft into a committed digest
// once it has a title, then promotes it like any other commit.
package finalize

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"time"

	"github.com/entrhq/episodic/pkg/cascade"
	"github.com/entrhq/episodic/pkg/digest"
	"github.com/entrhq/episodic/pkg/failure"
	"github.com/entrhq/episodic/pkg/level"
	"github.com/entrhq/episodic/pkg/logging"
	"github.com/entrhq/episodic/pkg/naming"
)

// ErrStaleDraft is returned when the draft's sequence number was committed
// under another name after the draft was written, e.g. by a regular run.
var ErrStaleDraft = errors.New("finalize: stale draft")

// Promoter runs the post-commit transition for a digest.
type Promoter interface {
	Promote(ctx context.Context, l level.Level, d digest.Digest) (cascade.Result, error)
}

// Result reports a finalization.
type Result struct {
	Digest  digest.Digest
	Receipt digest.Receipt
	// Promotion is nil when the commit was skipped.
	Promotion *cascade.Result
}

// Finalizer commits titled drafts.
type Finalizer struct {
	registry *level.Registry
	builder  *digest.Builder
	promoter Promoter
	log      *logging.Logger
	now      func() time.Time
}

// New returns a finalizer. A nil now uses time.Now.
func New(registry *level.Registry, builder *digest.Builder, promoter Promoter, logger *logging.Logger, now func() time.Time) *Finalizer {
	if logger == nil {
		logger = logging.Discard()
	}
	if now == nil {
		now = time.Now
	}
	return &Finalizer{registry: registry, builder: builder, promoter: promoter, log: logger, now: now}
}

// Finalize names the draft at draftPath after title, commits it under
// policy and promotes it. The draft is removed only after a successful
// commit; a skipped commit keeps it.
func (f *Finalizer) Finalize(ctx context.Context, draftPath, title string, policy digest.OverwritePolicy) (Result, error) {
	d, err := digest.Load(draftPath)
	if err != nil {
		var ferr *failure.Error
		if errors.As(err, &ferr) {
			return Result{}, err
		}
		return Result{}, fmt.Errorf("finalize: read draft: %w", err)
	}
	id := naming.Stem(draftPath)

	l, err := f.registry.Resolve(d.Metadata.Level)
	if err != nil {
		return Result{}, failure.New(failure.ErrMissingMetadata, d.Metadata.Level, id, err)
	}
	if d.Metadata.Sequence < 1 {
		return Result{}, failure.New(failure.ErrMissingMetadata, l.ID, id, errors.New("draft has no sequence number"))
	}
	sanitized := naming.SanitizeTitle(title)
	if sanitized == "" {
		return Result{}, failure.New(failure.ErrMissingMetadata, l.ID, id, fmt.Errorf("title %q is empty once sanitized", title))
	}

	completed := f.now().UTC()
	d.Metadata.Name = naming.Format(l.Prefix, l.Width, d.Metadata.Sequence, sanitized)
	d.Metadata.Title = sanitized
	d.Metadata.CompletedAt = &completed

	held, ok, err := f.builder.CommittedSequence(ctx, l, d.Metadata.Sequence)
	if err != nil {
		return Result{Digest: d}, err
	}
	if ok && held.Identifier != d.Metadata.Name {
		return Result{Digest: d}, fmt.Errorf("%w: sequence %d of %s was committed as %s after the draft was written; delete the draft or draft again",
			ErrStaleDraft, d.Metadata.Sequence, draftPath, held.Identifier)
	}

	receipt, err := f.builder.Commit(ctx, l, d, policy)
	if err != nil {
		return Result{Digest: d}, err
	}
	res := Result{Digest: d, Receipt: receipt}
	if receipt.Skipped {
		f.log.Infof("level %s: %s exists, draft %s kept", l.ID, receipt.Identifier, draftPath)
		return res, nil
	}

	if filepath.Clean(draftPath) != filepath.Clean(receipt.Path) {
		if err := f.builder.RemoveDraft(draftPath); err != nil {
			f.log.Warnf("level %s: could not remove draft %s: %v", l.ID, draftPath, err)
		}
	}

	promoted, err := f.promoter.Promote(ctx, l, d)
	if err != nil {
		return res, fmt.Errorf("finalize: %s committed but not promoted, the next run retries: %w", receipt.Identifier, err)
	}
	res.Promotion = &promoted
	f.log.Infof("level %s: finalized %s", l.ID, receipt.Identifier)
	return res, nil
}
