package trigger

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/entrhq/episodic/pkg/level"
	"github.com/entrhq/episodic/pkg/source"
	"github.com/entrhq/episodic/pkg/state"
)

var now = time.Date(2025, 6, 15, 12, 0, 0, 0, time.UTC)

func fixedClock() time.Time { return now }

func weekly() level.Level {
	return level.Level{ID: "weekly", Prefix: "W", Width: 4, EarlyThreshold: 5, PeriodWindow: 7 * level.Day, Next: "monthly"}
}

func artifacts(n int) []source.Artifact {
	out := make([]source.Artifact, n)
	for i := range out {
		out[i] = source.Artifact{Sequence: i + 1, Identifier: fmt.Sprintf("Loop%04d", i+1), ModifiedAt: now.Add(-time.Hour)}
	}
	return out
}

func ids(arts []source.Artifact) []string { return source.Identifiers(arts) }

func TestEvaluate(t *testing.T) {
	tests := []struct {
		name       string
		scanned    []source.Artifact
		wm         state.Watermark
		wantFire   bool
		wantReason Reason
		wantItems  int
	}{
		{
			name:       "early takes exactly the threshold",
			scanned:    artifacts(7),
			wantFire:   true,
			wantReason: ReasonEarly,
			wantItems:  5,
		},
		{
			name:       "early at the threshold",
			scanned:    artifacts(5),
			wm:         state.Watermark{RolloverAt: now.Add(-time.Hour)},
			wantFire:   true,
			wantReason: ReasonEarly,
			wantItems:  5,
		},
		{
			name:       "early wins over an elapsed window",
			scanned:    artifacts(6),
			wm:         state.Watermark{RolloverAt: now.Add(-30 * level.Day)},
			wantFire:   true,
			wantReason: ReasonEarly,
			wantItems:  5,
		},
		{
			name:       "periodic fallback below threshold",
			scanned:    artifacts(2),
			wm:         state.Watermark{RolloverAt: now.Add(-8 * level.Day)},
			wantFire:   true,
			wantReason: ReasonPeriodic,
			wantItems:  2,
		},
		{
			name:       "periodic fires exactly at the window",
			scanned:    artifacts(1),
			wm:         state.Watermark{RolloverAt: now.Add(-7 * level.Day)},
			wantFire:   true,
			wantReason: ReasonPeriodic,
			wantItems:  1,
		},
		{
			name:    "window not elapsed",
			scanned: artifacts(4),
			wm:      state.Watermark{RolloverAt: now.Add(-6 * level.Day)},
		},
		{
			name: "elapsed window with nothing pending",
			wm:   state.Watermark{RolloverAt: now.Add(-8 * level.Day)},
		},
		{
			name:    "no watermark means no periodic window",
			scanned: artifacts(4),
		},
	}

	e := NewEvaluator(fixedClock)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := e.Evaluate(weekly(), tt.scanned, tt.wm)
			assert.Equal(t, tt.wantFire, d.Fire)
			assert.Equal(t, tt.wantReason, d.Reason)
			assert.Len(t, d.Items, tt.wantItems)
		})
	}
}

func TestEarlyTakesOldestAndLeavesExcess(t *testing.T) {
	e := NewEvaluator(fixedClock)
	scanned := artifacts(7)

	d := e.Evaluate(weekly(), scanned, state.Watermark{})
	require.True(t, d.Fire)
	assert.Equal(t, []string{"Loop0001", "Loop0002", "Loop0003", "Loop0004", "Loop0005"}, ids(d.Items))

	d.Items[0].Identifier = "mutated"
	assert.Equal(t, "Loop0001", scanned[0].Identifier, "decision must not alias the scan")
}

func TestEvaluateIsDeterministic(t *testing.T) {
	e := NewEvaluator(fixedClock)
	wm := state.Watermark{RolloverAt: now.Add(-10 * level.Day)}
	scanned := artifacts(3)

	first := e.Evaluate(weekly(), scanned, wm)
	for i := 0; i < 10; i++ {
		assert.Equal(t, first, e.Evaluate(weekly(), scanned, wm))
	}
}

func TestNoDoubleFireAfterRollover(t *testing.T) {
	e := NewEvaluator(fixedClock)
	wm := state.Watermark{RolloverAt: now, ConsumedThrough: 5}

	d := e.Evaluate(weekly(), nil, wm)
	assert.False(t, d.Fire)
}

func TestNextDueAndRemaining(t *testing.T) {
	e := NewEvaluator(fixedClock)

	_, ok := e.NextDue(weekly(), state.Watermark{})
	assert.False(t, ok)

	wm := state.Watermark{RolloverAt: now.Add(-5 * level.Day)}
	due, ok := e.NextDue(weekly(), wm)
	require.True(t, ok)
	assert.Equal(t, now.Add(2*level.Day), due)

	left, ok := e.Remaining(weekly(), wm)
	require.True(t, ok)
	assert.Equal(t, 2*level.Day, left)

	left, ok = e.Remaining(weekly(), state.Watermark{RolloverAt: now.Add(-9 * level.Day)})
	require.True(t, ok)
	assert.Equal(t, time.Duration(0), left)
}

func TestParseReason(t *testing.T) {
	r, err := ParseReason("periodic")
	require.NoError(t, err)
	assert.Equal(t, ReasonPeriodic, r)

	_, err = ParseReason("sometimes")
	assert.Error(t, err)
}
