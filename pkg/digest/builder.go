package digest

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/entrhq/episodic/pkg/failure"
	"github.com/entrhq/episodic/pkg/fsutil"
	"github.com/entrhq/episodic/pkg/level"
	"github.com/entrhq/episodic/pkg/logging"
	"github.com/entrhq/episodic/pkg/naming"
	"github.com/entrhq/episodic/pkg/source"
	"github.com/entrhq/episodic/pkg/trigger"
)

// Receipt describes the outcome of a commit.
type Receipt struct {
	Path        string
	Identifier  string
	Overwritten bool
	// Skipped is set when PolicySkip left an existing artifact in place.
	Skipped bool
}

// Builder allocates sequence numbers, assembles digests and commits them.
type Builder struct {
	layout  level.Layout
	scanner *source.Scanner
	log     *logging.Logger
	now     func() time.Time
}

// NewBuilder returns a builder. A nil now uses time.Now.
func NewBuilder(layout level.Layout, scanner *source.Scanner, logger *logging.Logger, now func() time.Time) *Builder {
	if logger == nil {
		logger = logging.Discard()
	}
	if now == nil {
		now = time.Now
	}
	return &Builder{layout: layout, scanner: scanner, log: logger, now: now}
}

// AllocateNumber returns the next sequence number for l: one above both the
// highest committed artifact and issued, the highest number the level ever
// committed. Passing issued keeps numbers from being reused after deletion.
func (b *Builder) AllocateNumber(ctx context.Context, l level.Level, issued int) (int, error) {
	committed, err := b.scanner.Committed(ctx, l)
	if err != nil {
		return 0, err
	}
	return max(source.MaxSequence(committed), issued) + 1, nil
}

// Build assembles a digest. It reads the clock and touches nothing on disk.
func (b *Builder) Build(l level.Level, seq int, items []source.Artifact, p Payload, reason trigger.Reason) Digest {
	title := naming.SanitizeTitle(p.Title)
	perInput := make([]InputContent, len(p.PerInput))
	copy(perInput, p.PerInput)
	return Digest{
		Metadata: Metadata{
			Name:             naming.Format(l.Prefix, l.Width, seq, title),
			Level:            l.ID,
			Reason:           reason,
			InputIdentifiers: source.Identifiers(items),
			Sequence:         seq,
			CreatedAt:        b.now().UTC(),
			Title:            title,
			Version:          FormatVersion,
		},
		Overall:  p.Overall,
		PerInput: perInput,
	}
}

// checkIdentity confirms the metadata agrees with the level and the name.
func checkIdentity(l level.Level, d Digest) error {
	if err := d.Validate(); err != nil {
		return err
	}
	if d.Metadata.Level != l.ID {
		return fmt.Errorf("metadata.level is %q, committing to %q", d.Metadata.Level, l.ID)
	}
	parsed, err := naming.Parse(d.Metadata.Name, l.Prefix)
	if err != nil {
		return err
	}
	if parsed.Sequence != d.Metadata.Sequence {
		return fmt.Errorf("name %q carries sequence %d, metadata says %d", d.Metadata.Name, parsed.Sequence, d.Metadata.Sequence)
	}
	return nil
}

// CommittedSequence returns the committed artifact of l holding seq, if any.
func (b *Builder) CommittedSequence(ctx context.Context, l level.Level, seq int) (source.Artifact, bool, error) {
	committed, err := b.scanner.Committed(ctx, l)
	if err != nil {
		return source.Artifact{}, false, err
	}
	for _, a := range committed {
		if a.Sequence == seq {
			return a, true, nil
		}
	}
	return source.Artifact{}, false, nil
}

// Commit writes d under l's directory with an atomic replace.
//
// An artifact with the same identifier is handled by policy. Another
// artifact already holding d's sequence number is a non-monotonic error and
// is never renumbered. Nothing else in the durable state changes here.
func (b *Builder) Commit(ctx context.Context, l level.Level, d Digest, policy OverwritePolicy) (Receipt, error) {
	id := d.Metadata.Name
	reason := string(d.Metadata.Reason)
	if err := checkIdentity(l, d); err != nil {
		return Receipt{}, failure.New(failure.ErrMissingMetadata, l.ID, id, err).WithReason(reason)
	}

	committed, err := b.scanner.Committed(ctx, l)
	if err != nil {
		return Receipt{}, err
	}
	exists := false
	for _, a := range committed {
		switch {
		case a.Identifier == id:
			exists = true
		case a.Sequence == d.Metadata.Sequence:
			return Receipt{}, failure.New(failure.ErrNonMonotonic, l.ID, id,
				fmt.Errorf("sequence %d already taken by %s", a.Sequence, a.Identifier)).WithReason(reason)
		}
	}

	path := b.layout.DigestPath(l, id)
	receipt := Receipt{Path: path, Identifier: id}
	if exists {
		switch policy {
		case PolicySkip:
			b.log.Warnf("level %s: %s already committed, skipping", l.ID, id)
			receipt.Skipped = true
			return receipt, nil
		case PolicyOverwrite:
			b.log.Warnf("level %s: overwriting committed %s", l.ID, id)
			receipt.Overwritten = true
		default:
			return Receipt{}, failure.New(failure.ErrDuplicateArtifact, l.ID, id, nil).WithReason(reason)
		}
	}

	data, err := json.MarshalIndent(d, "", "  ")
	if err != nil {
		return Receipt{}, failure.New(failure.ErrIO, l.ID, id, err).WithReason(reason)
	}
	if err := fsutil.WriteFileAtomic(path, append(data, '\n'), 0o644); err != nil {
		return Receipt{}, failure.New(failure.ErrIO, l.ID, id, err).WithReason(reason)
	}
	b.log.Infof("level %s: committed %s (%s, %d inputs)", l.ID, id, reason, len(d.Metadata.InputIdentifiers))
	return receipt, nil
}

// WriteDraft stores d under l's draft directory, replacing an earlier draft
// of the same name. Drafts are not inputs to any level.
func (b *Builder) WriteDraft(ctx context.Context, l level.Level, d Digest) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	path := filepath.Join(b.layout.DraftDir(l), d.Metadata.Name+level.DigestExtension)
	data, err := json.MarshalIndent(d, "", "  ")
	if err != nil {
		return "", failure.New(failure.ErrIO, l.ID, d.Metadata.Name, err)
	}
	if err := fsutil.WriteFileAtomic(path, append(data, '\n'), 0o644); err != nil {
		return "", failure.New(failure.ErrIO, l.ID, d.Metadata.Name, err)
	}
	b.log.Infof("level %s: wrote draft %s", l.ID, path)
	return path, nil
}

// RemoveDraft deletes a draft. A missing draft is not an error.
func (b *Builder) RemoveDraft(path string) error {
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	return nil
}

// ProvisionalTitle names a batch before anyone has titled it, e.g. "Loop0001-Loop0005".
func ProvisionalTitle(items []source.Artifact) string {
	if len(items) == 0 {
		return ""
	}
	first := shortID(items[0].Identifier)
	if len(items) == 1 {
		return first
	}
	return first + "-" + shortID(items[len(items)-1].Identifier)
}

func shortID(id string) string {
	if i := strings.IndexByte(id, '_'); i > 0 {
		return id[:i]
	}
	return id
}
