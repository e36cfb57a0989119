package rollup

import (
	"context"
	"time"

	"github.com/entrhq/episodic/pkg/failure"
	"github.com/entrhq/episodic/pkg/level"
	"github.com/entrhq/episodic/pkg/source"
	"github.com/entrhq/episodic/pkg/state"
	"github.com/entrhq/episodic/pkg/trigger"
)

// LevelReport is the read-only view of one level produced by Check.
type LevelReport struct {
	Level     level.Level
	Watermark state.Watermark
	// Scanned are the inputs pending under the current watermark.
	Scanned []source.Artifact
	// Shadow is the number of identifiers in the shadow buffer.
	Shadow   int
	Decision trigger.Decision
	// NextDue and Remaining are zero when the level never rolled over.
	NextDue   time.Time
	Remaining time.Duration
}

// Due reports whether the level would fire now.
func (r LevelReport) Due() bool { return r.Decision.Fire }

// HasWindow reports whether a periodic window is running.
func (r LevelReport) HasWindow() bool { return r.Watermark.IsSet() }

// Check evaluates every level without writing anything.
func (e *Engine) Check(ctx context.Context) ([]LevelReport, error) {
	chain := e.registry.Chain()
	reports := make([]LevelReport, 0, len(chain))
	for _, l := range chain {
		wm, err := e.store.Get(ctx, l.ID)
		if err != nil {
			return reports, failure.New(failure.ErrIO, l.ID, "", err)
		}
		scanned, err := e.scanner.Scan(ctx, l, wm)
		if err != nil {
			return reports, err
		}
		snap, err := e.store.Snapshot(ctx, l.ID)
		if err != nil {
			return reports, failure.New(failure.ErrIO, l.ID, "", err)
		}
		r := LevelReport{
			Level:     l,
			Watermark: wm,
			Scanned:   scanned,
			Shadow:    snap.Len(),
			Decision:  e.evaluator.Evaluate(l, scanned, wm),
		}
		if due, ok := e.evaluator.NextDue(l, wm); ok {
			r.NextDue = due
			r.Remaining, _ = e.evaluator.Remaining(l, wm)
		}
		reports = append(reports, r)
	}
	return reports, nil
}

// AnyDue reports whether at least one report fires.
func AnyDue(reports []LevelReport) bool {
	for _, r := range reports {
		if r.Due() {
			return true
		}
	}
	return false
}
