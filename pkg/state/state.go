// Package state persists the per-level rollup bookkeeping: watermarks and
// shadow buffers. Both survive process restarts and change only after a
// digest has been durably committed.
package state

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"time"
)

var ErrWatermarkRegression = errors.New("state: watermark cannot move backwards")

var timeNow = time.Now // injected for testability

// Watermark is the per-level record of the last successful rollover.
// A zero RolloverAt means the level never rolled over.
type Watermark struct {
	RolloverAt time.Time `json:"rollover_at"`
	// ConsumedThrough is the highest input sequence number rolled into the level.
	ConsumedThrough int `json:"consumed_through,omitempty"`
	// Issued is the highest sequence number the level has committed.
	Issued int `json:"issued,omitempty"`
}

// IsSet reports whether the level has rolled over at least once.
func (w Watermark) IsSet() bool { return !w.RolloverAt.IsZero() }

// Advance merges next into cur. The rollover time may not move backwards;
// the counters keep their maximum.
func Advance(cur, next Watermark) (Watermark, error) {
	if next.RolloverAt.IsZero() {
		return cur, fmt.Errorf("%w: empty rollover time", ErrWatermarkRegression)
	}
	if cur.IsSet() && next.RolloverAt.Before(cur.RolloverAt) {
		return cur, fmt.Errorf("%w: %s is before %s", ErrWatermarkRegression,
			next.RolloverAt.Format(time.RFC3339), cur.RolloverAt.Format(time.RFC3339))
	}
	out := Watermark{
		RolloverAt:      next.RolloverAt.UTC(),
		ConsumedThrough: max(cur.ConsumedThrough, next.ConsumedThrough),
		Issued:          max(cur.Issued, next.Issued),
	}
	return out, nil
}

// Draft is the analyst's working content for a level's pending items.
type Draft struct {
	Abstract   string   `json:"abstract"`
	Impression string   `json:"impression"`
	Keywords   []string `json:"keywords"`
	Type       string   `json:"type,omitempty"`
	// Covers lists the identifiers the content was written for. Empty means
	// the whole buffer at the time SetDraft was called.
	Covers []string `json:"covers,omitempty"`
	// Filled is false while the content is still the placeholder.
	Filled bool `json:"filled"`
}

// PlaceholderDraft is the unanalyzed draft for pending items.
func PlaceholderDraft(pending int) Draft {
	abstract := "<no pending items>"
	if pending > 0 {
		abstract = fmt.Sprintf("<%d pending item(s) awaiting analysis>", pending)
	}
	return Draft{
		Abstract:   abstract,
		Impression: "<awaiting analysis>",
		Keywords:   []string{},
	}
}

// ShadowBuffer is the ordered, duplicate-free set of identifiers collected
// for a level since its last rollover.
type ShadowBuffer struct {
	Identifiers []string  `json:"pending_identifiers"`
	Draft       Draft     `json:"draft_overall_content"`
	UpdatedAt   time.Time `json:"updated_at,omitempty"`
}

// EmptyBuffer returns a reset buffer.
func EmptyBuffer() ShadowBuffer {
	return ShadowBuffer{Identifiers: []string{}, Draft: PlaceholderDraft(0)}
}

// Len returns the number of pending identifiers.
func (b ShadowBuffer) Len() int { return len(b.Identifiers) }

// Contains reports whether id is pending.
func (b ShadowBuffer) Contains(id string) bool { return slices.Contains(b.Identifiers, id) }

// DraftCoversAll reports whether the draft holds analyst content for
// exactly the pending identifiers.
func (b ShadowBuffer) DraftCoversAll() bool {
	if !b.Draft.Filled {
		return false
	}
	return len(b.Draft.Covers) == 0 || slices.Equal(b.Draft.Covers, b.Identifiers)
}

// Add appends the identifiers not already present, preserving order, and
// returns how many were added. Any addition resets the draft placeholder,
// since earlier analysis no longer covers every pending item.
func (b *ShadowBuffer) Add(ids []string) int {
	seen := make(map[string]struct{}, len(b.Identifiers)+len(ids))
	for _, id := range b.Identifiers {
		seen[id] = struct{}{}
	}
	added := 0
	for _, id := range ids {
		if id == "" {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		b.Identifiers = append(b.Identifiers, id)
		added++
	}
	if added > 0 {
		b.Draft = PlaceholderDraft(len(b.Identifiers))
		b.UpdatedAt = timeNow().UTC()
	}
	return added
}

// WatermarkStore holds one watermark per level.
type WatermarkStore interface {
	// Get returns the level's watermark; the zero Watermark when never set.
	Get(ctx context.Context, level string) (Watermark, error)
	// Set advances the level's watermark. See Advance for the rules.
	Set(ctx context.Context, level string, wm Watermark) error
}

// ShadowStore holds one shadow buffer per level.
type ShadowStore interface {
	// AddIfAbsent appends new identifiers and returns how many were added.
	// Re-adding a present identifier is a no-op.
	AddIfAbsent(ctx context.Context, level string, ids []string) (int, error)
	Snapshot(ctx context.Context, level string) (ShadowBuffer, error)
	// Reset clears the identifiers and restores the placeholder draft.
	Reset(ctx context.Context, level string) error
	// SetDraft stores analyst content for the pending identifiers.
	SetDraft(ctx context.Context, level string, d Draft) error
}

// Store is a backend holding both kinds of state.
type Store interface {
	WatermarkStore
	ShadowStore
	Close() error
}
