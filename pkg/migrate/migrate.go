// Package migrate renames artifacts written with a narrower sequence width
// to the configured width, e.g. Loop001_x.txt to Loop0001_x.txt.
package migrate

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"

	"github.com/gobwas/glob"

	"github.com/entrhq/episodic/pkg/fsutil"
	"github.com/entrhq/episodic/pkg/naming"
)

// Rename is one planned or applied rename.
type Rename struct {
	From string
	To   string
	// Skipped is set by Apply when the rename was not performed.
	Skipped bool
	Reason  string
}

// Plan lists the renames for one directory.
type Plan struct {
	Dir     string
	Renames []Rename
}

// Pending returns the renames Apply would still perform.
func (p Plan) Pending() int {
	n := 0
	for _, r := range p.Renames {
		if !r.Skipped {
			n++
		}
	}
	return n
}

// PlanDir finds files in dir whose sequence has fewer than width digits.
// A missing directory yields an empty plan.
func PlanDir(dir, prefix string, width int, ext string) (Plan, error) {
	plan := Plan{Dir: dir}
	if width < 1 {
		return plan, fmt.Errorf("migrate: width must be positive, got %d", width)
	}
	entries, err := os.ReadDir(dir)
	if errors.Is(err, fs.ErrNotExist) {
		return plan, nil
	}
	if err != nil {
		return plan, fmt.Errorf("migrate: read %s: %w", dir, err)
	}
	pattern, err := glob.Compile(glob.QuoteMeta(prefix) + "*" + glob.QuoteMeta(ext))
	if err != nil {
		return plan, fmt.Errorf("migrate: pattern for %q: %w", prefix, err)
	}
	for _, e := range entries {
		if e.IsDir() || fsutil.IsTemp(e.Name()) || !pattern.Match(e.Name()) {
			continue
		}
		stem := e.Name()[:len(e.Name())-len(ext)]
		name, err := naming.Parse(stem, prefix)
		if err != nil || name.Digits >= width {
			continue
		}
		plan.Renames = append(plan.Renames, Rename{
			From: e.Name(),
			To:   naming.Format(prefix, width, name.Sequence, name.Title) + ext,
		})
	}
	sort.Slice(plan.Renames, func(i, j int) bool { return plan.Renames[i].From < plan.Renames[j].From })
	return plan, nil
}

// Apply performs the renames in plan. A rename whose target exists is skipped
// and reported; the first filesystem error stops the run.
func Apply(plan Plan) (Plan, error) {
	done := Plan{Dir: plan.Dir, Renames: make([]Rename, 0, len(plan.Renames))}
	for _, r := range plan.Renames {
		from := filepath.Join(plan.Dir, r.From)
		to := filepath.Join(plan.Dir, r.To)
		exists, err := fsutil.Exists(to)
		if err != nil {
			return done, fmt.Errorf("migrate: stat %s: %w", to, err)
		}
		if exists {
			r.Skipped = true
			r.Reason = "target exists"
			done.Renames = append(done.Renames, r)
			continue
		}
		if err := os.Rename(from, to); err != nil {
			return done, fmt.Errorf("migrate: rename %s: %w", r.From, err)
		}
		done.Renames = append(done.Renames, r)
	}
	return done, nil
}
