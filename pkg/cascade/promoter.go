// Package cascade moves a level from Firing back to Idle after its digest
// is committed, and hands the new digest to the next level up.
package cascade

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/entrhq/episodic/pkg/failure"
	"github.com/entrhq/episodic/pkg/level"
	"github.com/entrhq/episodic/pkg/logging"
	"github.com/entrhq/episodic/pkg/source"
	"github.com/entrhq/episodic/pkg/state"
)

var ErrEmptyShadow = errors.New("cascade: level has no pending items")

// State is a level's position in the rollup cycle. Firing only exists while
// a rollup is in flight and is never persisted.
type State int

const (
	StateIdle State = iota
	StatePending
	StateFiring
)

func (s State) String() string {
	switch s {
	case StatePending:
		return "pending"
	case StateFiring:
		return "firing"
	default:
		return "idle"
	}
}

// Finalized describes a committed digest awaiting promotion.
type Finalized struct {
	Level      level.Level
	Identifier string
	Sequence   int
	// ConsumedThrough is the highest input sequence number in the digest.
	ConsumedThrough int
}

// Result reports what a promotion changed.
type Result struct {
	Watermark state.Watermark
	NextLevel string
	// Seeded counts identifiers newly added to the next level's shadow.
	Seeded int
	// SeedErr is set when seeding the next level failed. The current level
	// was still cleared and its watermark advanced; the next scan retries.
	SeedErr error
}

// Promoter performs the Firing to Idle transition.
type Promoter struct {
	registry   *level.Registry
	scanner    *source.Scanner
	watermarks state.WatermarkStore
	shadows    state.ShadowStore
	log        *logging.Logger
	now        func() time.Time
}

// NewPromoter returns a promoter. A nil now uses time.Now.
func NewPromoter(registry *level.Registry, scanner *source.Scanner, watermarks state.WatermarkStore, shadows state.ShadowStore, logger *logging.Logger, now func() time.Time) *Promoter {
	if logger == nil {
		logger = logging.Discard()
	}
	if now == nil {
		now = time.Now
	}
	return &Promoter{
		registry:   registry,
		scanner:    scanner,
		watermarks: watermarks,
		shadows:    shadows,
		log:        logger,
		now:        now,
	}
}

// State derives l's state from its shadow.
func (p *Promoter) State(ctx context.Context, l level.Level) (State, error) {
	snap, err := p.shadows.Snapshot(ctx, l.ID)
	if err != nil {
		return StateIdle, err
	}
	if snap.Len() > 0 {
		return StatePending, nil
	}
	return StateIdle, nil
}

// OnFinalized runs after f's digest is durably committed. In order it
// clears the level's shadow, advances its watermark and seeds the next
// level's shadow. A level with an empty shadow is refused untouched.
// Seeding failures land in Result.SeedErr and never undo the first two steps.
func (p *Promoter) OnFinalized(ctx context.Context, f Finalized) (Result, error) {
	l := f.Level
	snap, err := p.shadows.Snapshot(ctx, l.ID)
	if err != nil {
		return Result{}, failure.New(failure.ErrIO, l.ID, f.Identifier, err)
	}
	if snap.Len() == 0 {
		return Result{}, fmt.Errorf("%w: %s", ErrEmptyShadow, l.ID)
	}

	cur, err := p.watermarks.Get(ctx, l.ID)
	if err != nil {
		return Result{}, failure.New(failure.ErrIO, l.ID, f.Identifier, err)
	}

	if err := p.shadows.Reset(ctx, l.ID); err != nil {
		return Result{}, failure.New(failure.ErrIO, l.ID, f.Identifier, err)
	}

	at := p.now().UTC()
	if cur.IsSet() && at.Before(cur.RolloverAt) {
		p.log.Warnf("level %s: clock is behind the stored watermark, keeping %s", l.ID, cur.RolloverAt.Format(time.RFC3339))
		at = cur.RolloverAt
	}
	next := state.Watermark{RolloverAt: at, ConsumedThrough: f.ConsumedThrough, Issued: f.Sequence}
	if err := p.watermarks.Set(ctx, l.ID, next); err != nil {
		return Result{}, failure.New(failure.ErrIO, l.ID, f.Identifier, err)
	}
	advanced, _ := state.Advance(cur, next)
	p.log.Infof("level %s: promoted %s, cleared %d pending, watermark %s", l.ID, f.Identifier, snap.Len(), at.Format(time.RFC3339))

	res := Result{Watermark: advanced}
	upper, ok := p.registry.Next(l)
	if !ok {
		return res, nil
	}
	res.NextLevel = upper.ID
	res.Seeded, res.SeedErr = p.seed(ctx, upper)
	if res.SeedErr != nil {
		p.log.Warnf("level %s: seeding %s failed, next scan retries: %v", l.ID, upper.ID, res.SeedErr)
	}
	return res, nil
}

// seed adds upper's pending inputs to its shadow.
func (p *Promoter) seed(ctx context.Context, upper level.Level) (int, error) {
	wm, err := p.watermarks.Get(ctx, upper.ID)
	if err != nil {
		return 0, err
	}
	arts, err := p.scanner.Scan(ctx, upper, wm)
	if err != nil {
		return 0, err
	}
	added, err := p.shadows.AddIfAbsent(ctx, upper.ID, source.Identifiers(arts))
	if err != nil {
		return 0, err
	}
	if added > 0 {
		p.log.Infof("level %s: seeded %d new item(s)", upper.ID, added)
	}
	return added, nil
}
