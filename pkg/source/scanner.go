// Package source lists the artifacts a level consumes: raw records for the
// lowest level, committed digests of the level below for every other one.
package source

import (
	"cmp"
	"context"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"time"

	"github.com/gobwas/glob"

	"github.com/entrhq/episodic/pkg/failure"
	"github.com/entrhq/episodic/pkg/fsutil"
	"github.com/entrhq/episodic/pkg/level"
	"github.com/entrhq/episodic/pkg/logging"
	"github.com/entrhq/episodic/pkg/naming"
	"github.com/entrhq/episodic/pkg/state"
)

// Artifact is a raw record or a committed digest eligible as rollup input.
type Artifact struct {
	Sequence int
	// Identifier is the file name without its extension.
	Identifier string
	Path       string
	ModifiedAt time.Time
}

// Scanner lists artifacts. It never writes.
type Scanner struct {
	registry *level.Registry
	layout   level.Layout
	log      *logging.Logger
}

// NewScanner returns a scanner over layout. A nil logger discards output.
func NewScanner(registry *level.Registry, layout level.Layout, logger *logging.Logger) *Scanner {
	if logger == nil {
		logger = logging.Discard()
	}
	return &Scanner{registry: registry, layout: layout, log: logger}
}

// Scan returns l's pending inputs ordered by sequence number.
//
// With an unset watermark every input is pending. Otherwise an input is
// pending when it was modified after the last rollover, or when its sequence
// number is above the last consumed one.
func (s *Scanner) Scan(ctx context.Context, l level.Level, wm state.Watermark) ([]Artifact, error) {
	dir, prefix, ext := s.layout.SourceDir(s.registry, l)
	all, err := s.list(ctx, l.ID, dir, prefix, ext)
	if err != nil {
		return nil, err
	}
	if !wm.IsSet() {
		return all, nil
	}
	pending := all[:0:0]
	for _, a := range all {
		if Pending(a, wm) {
			pending = append(pending, a)
		}
	}
	return pending, nil
}

// Pending applies the watermark filter used by Scan to one artifact.
func Pending(a Artifact, wm state.Watermark) bool {
	if !wm.IsSet() {
		return true
	}
	if a.ModifiedAt.After(wm.RolloverAt) {
		return true
	}
	return wm.ConsumedThrough > 0 && a.Sequence > wm.ConsumedThrough
}

// Committed returns every committed digest of l itself, ordered by sequence number.
func (s *Scanner) Committed(ctx context.Context, l level.Level) ([]Artifact, error) {
	return s.list(ctx, l.ID, s.layout.LevelDir(l), l.Prefix, level.DigestExtension)
}

// Inputs returns every input of l regardless of watermark.
func (s *Scanner) Inputs(ctx context.Context, l level.Level) ([]Artifact, error) {
	return s.Scan(ctx, l, state.Watermark{})
}

func (s *Scanner) list(ctx context.Context, levelID, dir, prefix, ext string) ([]Artifact, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	entries, err := os.ReadDir(dir)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, failure.New(failure.ErrScan, levelID, dir, err)
	}

	pattern, err := glob.Compile(glob.QuoteMeta(prefix) + "*" + glob.QuoteMeta(ext))
	if err != nil {
		return nil, failure.New(failure.ErrScan, levelID, dir, err)
	}

	var out []Artifact
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || fsutil.IsTemp(name) || !pattern.Match(name) {
			continue
		}
		stem := name[:len(name)-len(ext)]
		parsed, err := naming.Parse(stem, prefix)
		if err != nil {
			s.log.Debugf("skipping %s in %s: %v", name, dir, err)
			continue
		}
		info, err := e.Info()
		if errors.Is(err, fs.ErrNotExist) {
			continue
		}
		if err != nil {
			return nil, failure.New(failure.ErrScan, levelID, stem, err)
		}
		out = append(out, Artifact{
			Sequence:   parsed.Sequence,
			Identifier: stem,
			Path:       filepath.Join(dir, name),
			ModifiedAt: info.ModTime(),
		})
	}

	slices.SortFunc(out, func(a, b Artifact) int {
		if c := cmp.Compare(a.Sequence, b.Sequence); c != 0 {
			return c
		}
		return cmp.Compare(a.Identifier, b.Identifier)
	})
	return out, nil
}

// Identifiers returns the identifiers of arts in order.
func Identifiers(arts []Artifact) []string {
	ids := make([]string, len(arts))
	for i, a := range arts {
		ids[i] = a.Identifier
	}
	return ids
}

// MaxSequence returns the highest sequence number in arts, or 0.
func MaxSequence(arts []Artifact) int {
	highest := 0
	for _, a := range arts {
		highest = max(highest, a.Sequence)
	}
	return highest
}
