// Package rollup drives the Scan, Decide, Analyze, Commit, Promote pipeline
// across the level chain, lowest level first.
package rollup

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/entrhq/episodic/pkg/analyst"
	"github.com/entrhq/episodic/pkg/cascade"
	"github.com/entrhq/episodic/pkg/digest"
	"github.com/entrhq/episodic/pkg/failure"
	"github.com/entrhq/episodic/pkg/level"
	"github.com/entrhq/episodic/pkg/logging"
	"github.com/entrhq/episodic/pkg/metrics"
	"github.com/entrhq/episodic/pkg/naming"
	"github.com/entrhq/episodic/pkg/source"
	"github.com/entrhq/episodic/pkg/state"
	"github.com/entrhq/episodic/pkg/trigger"
)

// Deps are the collaborators of an Engine. Registry and Store are required.
type Deps struct {
	Registry *level.Registry
	Layout   level.Layout
	Store    state.Store
	// Analyst defaults to analyst.Placeholder.
	Analyst analyst.Analyst
	Metrics *metrics.Recorder
	Logger  *logging.Logger
	// Now defaults to time.Now.
	Now func() time.Time
}

// Options control a run.
type Options struct {
	Policy digest.OverwritePolicy
	// Draft writes analyst-filled digests to the draft directory instead of
	// committing them. Watermarks do not move.
	Draft bool
	// Level restricts the run to one level id.
	Level string
}

// Outcome describes one fired rollup.
type Outcome struct {
	Level       string
	Reason      trigger.Reason
	Identifier  string
	Path        string
	Inputs      []string
	Draft       bool
	Skipped     bool
	Overwritten bool
	// Promotion is set once the commit was promoted.
	Promotion *cascade.Result
}

// Engine runs rollups over the level chain. It is not safe for concurrent
// use; one invocation per corpus is expected.
type Engine struct {
	registry  *level.Registry
	layout    level.Layout
	store     state.Store
	scanner   *source.Scanner
	evaluator *trigger.Evaluator
	builder   *digest.Builder
	promoter  *cascade.Promoter
	analyst   analyst.Analyst
	metrics   *metrics.Recorder
	log       *logging.Logger
	now       func() time.Time
}

// New wires an engine from deps.
func New(deps Deps) (*Engine, error) {
	if deps.Registry == nil {
		return nil, errors.New("rollup: registry is required")
	}
	if deps.Store == nil {
		return nil, errors.New("rollup: state store is required")
	}
	if deps.Analyst == nil {
		deps.Analyst = analyst.Placeholder{}
	}
	if deps.Logger == nil {
		deps.Logger = logging.Discard()
	}
	if deps.Now == nil {
		deps.Now = time.Now
	}

	scanner := source.NewScanner(deps.Registry, deps.Layout, deps.Logger.Named("scanner"))
	return &Engine{
		registry:  deps.Registry,
		layout:    deps.Layout,
		store:     deps.Store,
		scanner:   scanner,
		evaluator: trigger.NewEvaluator(deps.Now),
		builder:   digest.NewBuilder(deps.Layout, scanner, deps.Logger.Named("builder"), deps.Now),
		promoter:  cascade.NewPromoter(deps.Registry, scanner, deps.Store, deps.Store, deps.Logger.Named("cascade"), deps.Now),
		analyst:   deps.Analyst,
		metrics:   deps.Metrics,
		log:       deps.Logger,
		now:       deps.Now,
	}, nil
}

// Registry returns the level chain the engine runs over.
func (e *Engine) Registry() *level.Registry { return e.registry }

// Builder returns the digest builder, shared with the finalizer.
func (e *Engine) Builder() *digest.Builder { return e.builder }

// Shadow returns the shadow buffer of levelID.
func (e *Engine) Shadow(ctx context.Context, levelID string) (state.ShadowBuffer, error) {
	if _, err := e.registry.Resolve(levelID); err != nil {
		return state.ShadowBuffer{}, err
	}
	return e.store.Snapshot(ctx, levelID)
}

// levels returns the chain, or just the named level.
func (e *Engine) levels(only string) ([]level.Level, error) {
	if only == "" {
		return e.registry.Chain(), nil
	}
	l, err := e.registry.Resolve(only)
	if err != nil {
		return nil, err
	}
	return []level.Level{l}, nil
}

// Run processes each level lowest first. A level keeps firing until its
// evaluation comes back empty, so a backlog drains in one run. In draft
// mode each level produces at most one draft. The first error stops the
// run; outcomes completed before it are returned with it.
func (e *Engine) Run(ctx context.Context, opts Options) ([]Outcome, error) {
	levels, err := e.levels(opts.Level)
	if err != nil {
		return nil, err
	}

	var outcomes []Outcome
	for _, l := range levels {
		done, err := e.runLevel(ctx, l, opts)
		outcomes = append(outcomes, done...)
		if err != nil {
			e.metrics.Failure(l.ID, failure.KindName(err))
			e.log.Errorf("level %s: %v", l.ID, err)
			return outcomes, err
		}
	}
	e.recordPending(ctx)
	return outcomes, nil
}

func (e *Engine) runLevel(ctx context.Context, l level.Level, opts Options) ([]Outcome, error) {
	if !opts.Draft {
		if err := e.recover(ctx, l); err != nil {
			return nil, err
		}
	}

	var outcomes []Outcome
	fired := make(map[string]struct{})
	for {
		if err := ctx.Err(); err != nil {
			return outcomes, err
		}
		wm, err := e.store.Get(ctx, l.ID)
		if err != nil {
			return outcomes, failure.New(failure.ErrIO, l.ID, "", err)
		}
		scanned, err := e.scanner.Scan(ctx, l, wm)
		if err != nil {
			return outcomes, err
		}
		if err := e.sync(ctx, l, scanned); err != nil {
			return outcomes, err
		}

		dec := e.evaluator.Evaluate(l, scanned, wm)
		if !dec.Fire {
			e.log.Debugf("level %s: %d pending, nothing due", l.ID, len(scanned))
			return outcomes, nil
		}
		if id, again := firedBefore(dec.Items, fired); again {
			// Inputs with modification times ahead of the clock stay pending
			// after promotion and would fire forever.
			e.log.Warnf("level %s: %s was already rolled up in this run, stopping the level", l.ID, id)
			return outcomes, nil
		}

		e.log.Infof("level %s: firing %s with %d item(s) from sequence %d", l.ID, dec.Reason, len(dec.Items), dec.Items[0].Sequence)
		payload, err := e.analyze(ctx, l, dec.Reason, dec.Items)
		if err != nil {
			return outcomes, err
		}
		out, err := e.emit(ctx, l, wm, dec.Reason, dec.Items, payload, opts)
		if err != nil {
			return outcomes, err
		}
		outcomes = append(outcomes, out)
		for _, a := range dec.Items {
			fired[a.Identifier] = struct{}{}
		}
		if out.Draft || out.Skipped {
			return outcomes, nil
		}
	}
}

func firedBefore(items []source.Artifact, fired map[string]struct{}) (string, bool) {
	for _, a := range items {
		if _, ok := fired[a.Identifier]; ok {
			return a.Identifier, true
		}
	}
	return "", false
}

// RollupManual rolls up everything in levelID's shadow regardless of the
// trigger rules. A filled shadow draft written for exactly the pending
// identifiers is used as the overall content; otherwise the analyst is
// asked. title, when set, names the digest.
func (e *Engine) RollupManual(ctx context.Context, levelID, title string, opts Options) (Outcome, error) {
	l, err := e.registry.Resolve(levelID)
	if err != nil {
		return Outcome{}, err
	}
	out, err := e.rollupManual(ctx, l, title, opts)
	if err != nil {
		e.metrics.Failure(l.ID, failure.KindName(err))
		return out, err
	}
	e.recordPending(ctx)
	return out, nil
}

func (e *Engine) rollupManual(ctx context.Context, l level.Level, title string, opts Options) (Outcome, error) {
	if !opts.Draft {
		if err := e.recover(ctx, l); err != nil {
			return Outcome{}, err
		}
	}
	wm, err := e.store.Get(ctx, l.ID)
	if err != nil {
		return Outcome{}, failure.New(failure.ErrIO, l.ID, "", err)
	}
	scanned, err := e.scanner.Scan(ctx, l, wm)
	if err != nil {
		return Outcome{}, err
	}
	if err := e.sync(ctx, l, scanned); err != nil {
		return Outcome{}, err
	}
	snap, err := e.store.Snapshot(ctx, l.ID)
	if err != nil {
		return Outcome{}, failure.New(failure.ErrIO, l.ID, "", err)
	}
	if snap.Len() == 0 {
		return Outcome{}, fmt.Errorf("%w: %s", cascade.ErrEmptyShadow, l.ID)
	}

	items, err := e.resolve(ctx, l, snap.Identifiers)
	if err != nil {
		return Outcome{}, err
	}

	var payload *digest.Payload
	if snap.Draft.Filled && !snap.DraftCoversAll() {
		e.log.Infof("level %s: shadow draft covers %d of %d pending item(s), asking the analyst", l.ID, len(snap.Draft.Covers), snap.Len())
	}
	if snap.DraftCoversAll() {
		e.log.Infof("level %s: using the filled shadow draft", l.ID)
		payload = &digest.Payload{
			Overall: digest.Content{
				Abstract:   snap.Draft.Abstract,
				Impression: snap.Draft.Impression,
				Keywords:   append([]string{}, snap.Draft.Keywords...),
				Type:       snap.Draft.Type,
			},
		}
		if err := payload.Validate(); err != nil {
			return Outcome{}, failure.New(failure.ErrMissingMetadata, l.ID, "", err).WithReason(string(trigger.ReasonManual))
		}
	} else {
		payload, err = e.analyze(ctx, l, trigger.ReasonManual, items)
		if err != nil {
			return Outcome{}, err
		}
	}
	if title != "" {
		payload.Title = title
	}
	return e.emit(ctx, l, wm, trigger.ReasonManual, items, payload, opts)
}

// resolve maps shadow identifiers back to l's inputs on disk.
func (e *Engine) resolve(ctx context.Context, l level.Level, ids []string) ([]source.Artifact, error) {
	all, err := e.scanner.Inputs(ctx, l)
	if err != nil {
		return nil, err
	}
	byID := make(map[string]source.Artifact, len(all))
	for _, a := range all {
		byID[a.Identifier] = a
	}
	items := make([]source.Artifact, 0, len(ids))
	for _, id := range ids {
		a, ok := byID[id]
		if !ok {
			return nil, failure.New(failure.ErrScan, l.ID, id, errors.New("pending identifier has no input on disk"))
		}
		items = append(items, a)
	}
	return items, nil
}

// Promote clears l's shadow, advances its watermark and seeds the next
// level for the committed digest d. The shadow is synced first so a digest
// committed outside a run still finds its inputs pending.
func (e *Engine) Promote(ctx context.Context, l level.Level, d digest.Digest) (cascade.Result, error) {
	wm, err := e.store.Get(ctx, l.ID)
	if err != nil {
		return cascade.Result{}, failure.New(failure.ErrIO, l.ID, d.Metadata.Name, err)
	}
	scanned, err := e.scanner.Scan(ctx, l, wm)
	if err != nil {
		return cascade.Result{}, err
	}
	if err := e.sync(ctx, l, scanned); err != nil {
		return cascade.Result{}, err
	}
	return e.promoter.OnFinalized(ctx, cascade.Finalized{
		Level:           l,
		Identifier:      d.Metadata.Name,
		Sequence:        d.Metadata.Sequence,
		ConsumedThrough: e.consumedThrough(l, d.Metadata.InputIdentifiers),
	})
}

// consumedThrough returns the highest sequence number among ids.
func (e *Engine) consumedThrough(l level.Level, ids []string) int {
	_, prefix, _ := e.layout.SourceDir(e.registry, l)
	highest := 0
	for _, id := range ids {
		n, err := naming.Parse(id, prefix)
		if err != nil {
			e.log.Warnf("level %s: input %q has no sequence number: %v", l.ID, id, err)
			continue
		}
		highest = max(highest, n.Sequence)
	}
	return highest
}

// recover promotes a digest that was committed but never promoted, which
// happens when the process dies between the two steps.
func (e *Engine) recover(ctx context.Context, l level.Level) error {
	wm, err := e.store.Get(ctx, l.ID)
	if err != nil {
		return failure.New(failure.ErrIO, l.ID, "", err)
	}
	committed, err := e.scanner.Committed(ctx, l)
	if err != nil {
		return err
	}
	if len(committed) == 0 {
		return nil
	}
	latest := committed[len(committed)-1]
	if latest.Sequence <= wm.Issued {
		return nil
	}
	d, err := digest.Load(latest.Path)
	if err != nil {
		return failure.New(failure.ErrMissingMetadata, l.ID, latest.Identifier, err)
	}
	if wm.IsSet() && !d.Metadata.CreatedAt.After(wm.RolloverAt) {
		return nil
	}

	e.log.Warnf("level %s: %s was committed but never promoted, promoting now", l.ID, latest.Identifier)
	res, err := e.Promote(ctx, l, d)
	if errors.Is(err, cascade.ErrEmptyShadow) {
		return e.adopt(ctx, l, wm, d)
	}
	if err != nil {
		return err
	}
	e.metrics.Rollup(l.ID, string(d.Metadata.Reason), len(d.Metadata.InputIdentifiers), res.Watermark.RolloverAt)
	return nil
}

// adopt records d in the watermark when none of its inputs are pending,
// e.g. digests carried over from a corpus with no state.
func (e *Engine) adopt(ctx context.Context, l level.Level, cur state.Watermark, d digest.Digest) error {
	at := e.now().UTC()
	if cur.IsSet() && at.Before(cur.RolloverAt) {
		at = cur.RolloverAt
	}
	next := state.Watermark{
		RolloverAt:      at,
		ConsumedThrough: e.consumedThrough(l, d.Metadata.InputIdentifiers),
		Issued:          d.Metadata.Sequence,
	}
	if err := e.store.Set(ctx, l.ID, next); err != nil {
		return failure.New(failure.ErrIO, l.ID, d.Metadata.Name, err)
	}
	e.log.Infof("level %s: adopted %s without pending inputs", l.ID, d.Metadata.Name)
	return nil
}

// sync adds scanned identifiers to l's shadow.
func (e *Engine) sync(ctx context.Context, l level.Level, scanned []source.Artifact) error {
	if len(scanned) == 0 {
		return nil
	}
	added, err := e.store.AddIfAbsent(ctx, l.ID, source.Identifiers(scanned))
	if err != nil {
		return failure.New(failure.ErrIO, l.ID, "", err)
	}
	if added > 0 {
		e.log.Debugf("level %s: %d new pending item(s)", l.ID, added)
	}
	return nil
}

// analyze loads the content of items and asks the analyst for a payload.
func (e *Engine) analyze(ctx context.Context, l level.Level, reason trigger.Reason, items []source.Artifact) (*digest.Payload, error) {
	req := analyst.Request{Level: l.ID, Reason: reason, Items: make([]analyst.Item, 0, len(items))}
	for _, a := range items {
		content, err := e.content(l, a)
		if err != nil {
			return nil, err
		}
		req.Items = append(req.Items, analyst.Item{Identifier: a.Identifier, Content: content, ModifiedAt: a.ModifiedAt})
	}

	payload, err := e.analyst.Analyze(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("level %s: analyze: %w", l.ID, err)
	}
	if payload == nil {
		return nil, failure.New(failure.ErrMissingMetadata, l.ID, "", errors.New("analyst returned no payload")).WithReason(string(reason))
	}
	if err := payload.Validate(); err != nil {
		return nil, failure.New(failure.ErrMissingMetadata, l.ID, "", err).WithReason(string(reason))
	}
	return payload, nil
}

// content reads a raw record verbatim or renders a lower-level digest.
func (e *Engine) content(l level.Level, a source.Artifact) (string, error) {
	if l.Source.Kind == level.SourceRaw {
		raw, err := os.ReadFile(a.Path)
		if err != nil {
			return "", failure.New(failure.ErrScan, l.ID, a.Identifier, err)
		}
		return string(raw), nil
	}
	d, err := digest.Load(a.Path)
	if err != nil {
		return "", failure.New(failure.ErrScan, l.ID, a.Identifier, err)
	}
	return digest.Render(d), nil
}

// emit builds the digest and either drafts it or commits and promotes it.
func (e *Engine) emit(ctx context.Context, l level.Level, wm state.Watermark, reason trigger.Reason, items []source.Artifact, payload *digest.Payload, opts Options) (Outcome, error) {
	seq, err := e.builder.AllocateNumber(ctx, l, wm.Issued)
	if err != nil {
		return Outcome{}, err
	}
	if opts.Draft && payload.Title == "" {
		payload.Title = digest.ProvisionalTitle(items)
	}
	d := e.builder.Build(l, seq, items, *payload, reason)
	out := Outcome{
		Level:      l.ID,
		Reason:     reason,
		Identifier: d.Metadata.Name,
		Inputs:     d.Metadata.InputIdentifiers,
	}

	if opts.Draft {
		path, err := e.builder.WriteDraft(ctx, l, d)
		if err != nil {
			return out, err
		}
		draft := state.Draft{
			Abstract:   d.Overall.Abstract,
			Impression: d.Overall.Impression,
			Keywords:   append([]string{}, d.Overall.Keywords...),
			Type:       d.Overall.Type,
			Covers:     append([]string{}, d.Metadata.InputIdentifiers...),
			Filled:     true,
		}
		if err := e.store.SetDraft(ctx, l.ID, draft); err != nil {
			return out, failure.New(failure.ErrIO, l.ID, d.Metadata.Name, err)
		}
		out.Path = path
		out.Draft = true
		return out, nil
	}

	receipt, err := e.builder.Commit(ctx, l, d, opts.Policy)
	if err != nil {
		return out, err
	}
	out.Path = receipt.Path
	out.Skipped = receipt.Skipped
	out.Overwritten = receipt.Overwritten
	if receipt.Skipped {
		return out, nil
	}

	res, err := e.Promote(ctx, l, d)
	if err != nil {
		return out, fmt.Errorf("level %s: %s committed but not promoted, the next run retries: %w", l.ID, d.Metadata.Name, err)
	}
	out.Promotion = &res
	e.metrics.Rollup(l.ID, string(reason), len(items), res.Watermark.RolloverAt)
	return out, nil
}

// Refresh adds every level's pending inputs to its shadow and returns how
// many identifiers each level gained.
func (e *Engine) Refresh(ctx context.Context) (map[string]int, error) {
	added := make(map[string]int)
	for _, l := range e.registry.Chain() {
		wm, err := e.store.Get(ctx, l.ID)
		if err != nil {
			return added, failure.New(failure.ErrIO, l.ID, "", err)
		}
		scanned, err := e.scanner.Scan(ctx, l, wm)
		if err != nil {
			return added, err
		}
		n, err := e.store.AddIfAbsent(ctx, l.ID, source.Identifiers(scanned))
		if err != nil {
			return added, failure.New(failure.ErrIO, l.ID, "", err)
		}
		added[l.ID] = n
		if n > 0 {
			e.log.Infof("level %s: %d new pending item(s)", l.ID, n)
		}
	}
	e.recordPending(ctx)
	return added, nil
}

func (e *Engine) recordPending(ctx context.Context) {
	if e.metrics == nil {
		return
	}
	for _, l := range e.registry.Chain() {
		snap, err := e.store.Snapshot(ctx, l.ID)
		if err != nil {
			e.log.Debugf("level %s: pending gauge skipped: %v", l.ID, err)
			continue
		}
		e.metrics.Pending(l.ID, snap.Len())
	}
}
