// Package trigger decides whether a level should roll up now.
package trigger

import (
	"fmt"
	"time"

	"github.com/entrhq/episodic/pkg/level"
	"github.com/entrhq/episodic/pkg/source"
	"github.com/entrhq/episodic/pkg/state"
)

// Reason records why a rollup fired.
type Reason string

const (
	ReasonEarly    Reason = "early"
	ReasonPeriodic Reason = "periodic"
	ReasonManual   Reason = "manual"
)

// ParseReason validates a stored reason.
func ParseReason(s string) (Reason, error) {
	switch r := Reason(s); r {
	case ReasonEarly, ReasonPeriodic, ReasonManual:
		return r, nil
	default:
		return "", fmt.Errorf("trigger: unknown reason %q", s)
	}
}

// Decision is the outcome of Evaluate. Items is empty unless Fire is set.
type Decision struct {
	Fire   bool
	Reason Reason
	Items  []source.Artifact
}

// Evaluator applies the early and periodic rules. It holds no state besides
// its clock, so identical inputs at the same instant give identical decisions.
type Evaluator struct {
	now func() time.Time
}

// NewEvaluator returns an evaluator reading now. A nil now uses time.Now.
func NewEvaluator(now func() time.Time) *Evaluator {
	if now == nil {
		now = time.Now
	}
	return &Evaluator{now: now}
}

// Evaluate decides for l given its scanned pending inputs and watermark.
//
// The early rule wins when at least EarlyThreshold inputs are pending and
// takes exactly the oldest EarlyThreshold of them. Otherwise the periodic
// rule fires with every pending input once the window since the last
// rollover has elapsed. A level that never rolled over has no window.
func (e *Evaluator) Evaluate(l level.Level, scanned []source.Artifact, wm state.Watermark) Decision {
	if l.EarlyThreshold > 0 && len(scanned) >= l.EarlyThreshold {
		return Decision{
			Fire:   true,
			Reason: ReasonEarly,
			Items:  append([]source.Artifact(nil), scanned[:l.EarlyThreshold]...),
		}
	}
	if wm.IsSet() && len(scanned) > 0 && e.now().Sub(wm.RolloverAt) >= l.PeriodWindow {
		return Decision{
			Fire:   true,
			Reason: ReasonPeriodic,
			Items:  append([]source.Artifact(nil), scanned...),
		}
	}
	return Decision{}
}

// NextDue returns when l's periodic window elapses, if l ever rolled over.
func (e *Evaluator) NextDue(l level.Level, wm state.Watermark) (time.Time, bool) {
	if !wm.IsSet() {
		return time.Time{}, false
	}
	return wm.RolloverAt.Add(l.PeriodWindow), true
}

// Remaining returns the time left until NextDue, clamped at zero.
func (e *Evaluator) Remaining(l level.Level, wm state.Watermark) (time.Duration, bool) {
	due, ok := e.NextDue(l, wm)
	if !ok {
		return 0, false
	}
	return max(due.Sub(e.now()), 0), true
}
