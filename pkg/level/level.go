// Package level describes the rollup hierarchy: an ordered chain of levels,
// each fed by raw records or by the level directly below it.
package level

import (
	"errors"
	"fmt"
	"time"
)

var ErrUnknownLevel = errors.New("level: unknown level")

// Day is the unit period windows are configured in.
const Day = 24 * time.Hour

// SourceKind says where a level's inputs come from.
type SourceKind int

const (
	SourceRaw SourceKind = iota
	SourceLevel
)

func (k SourceKind) String() string {
	if k == SourceRaw {
		return "raw"
	}
	return "level"
}

// Source identifies a level's inputs. Level is set only for SourceLevel.
type Source struct {
	Kind  SourceKind
	Level string
}

// RawSpec describes the raw records feeding the lowest level.
type RawSpec struct {
	Dir       string
	Prefix    string
	Width     int
	Extension string
}

// Level is one immutable tier of the hierarchy.
type Level struct {
	ID             string
	Source         Source
	Prefix         string
	Width          int
	Dir            string
	EarlyThreshold int
	PeriodWindow   time.Duration
	// Next is the id of the coarser level, empty at the top of the chain.
	Next string
}

// IsTop reports whether l has no next level.
func (l Level) IsTop() bool { return l.Next == "" }

// Spec is the per-level input to NewRegistry. Position in the slice decides
// the chain order, so sources and next links are derived, not configured.
type Spec struct {
	ID             string
	Prefix         string
	Width          int
	Dir            string
	EarlyThreshold int
	PeriodWindow   time.Duration
}

// Registry is the validated chain of levels. It is immutable after NewRegistry.
type Registry struct {
	raw    RawSpec
	levels []Level
	index  map[string]int
}

// NewRegistry validates specs and links them into a chain, lowest first.
func NewRegistry(raw RawSpec, specs []Spec) (*Registry, error) {
	if err := validateRaw(raw); err != nil {
		return nil, err
	}
	if len(specs) == 0 {
		return nil, errors.New("level: at least one level is required")
	}

	r := &Registry{raw: raw, index: make(map[string]int, len(specs))}
	dirs := make(map[string]string, len(specs))
	for i, s := range specs {
		if err := validateSpec(s); err != nil {
			return nil, err
		}
		if _, dup := r.index[s.ID]; dup {
			return nil, fmt.Errorf("level: duplicate level id %q", s.ID)
		}
		if other, dup := dirs[s.Dir]; dup {
			return nil, fmt.Errorf("level: levels %q and %q share directory %q", other, s.ID, s.Dir)
		}
		dirs[s.Dir] = s.ID

		l := Level{
			ID:             s.ID,
			Source:         Source{Kind: SourceRaw},
			Prefix:         s.Prefix,
			Width:          s.Width,
			Dir:            s.Dir,
			EarlyThreshold: s.EarlyThreshold,
			PeriodWindow:   s.PeriodWindow,
		}
		if i > 0 {
			l.Source = Source{Kind: SourceLevel, Level: specs[i-1].ID}
			r.levels[i-1].Next = s.ID
		}
		r.index[s.ID] = i
		r.levels = append(r.levels, l)
	}
	return r, nil
}

func validateRaw(raw RawSpec) error {
	switch {
	case raw.Dir == "":
		return errors.New("level: raw records need a directory")
	case raw.Prefix == "":
		return errors.New("level: raw records need a prefix")
	case raw.Width < 1:
		return fmt.Errorf("level: raw record width must be positive, got %d", raw.Width)
	case raw.Extension == "":
		return errors.New("level: raw records need an extension")
	}
	return nil
}

func validateSpec(s Spec) error {
	switch {
	case s.ID == "":
		return errors.New("level: level id is required")
	case s.Prefix == "":
		return fmt.Errorf("level %s: prefix is required", s.ID)
	case s.Width < 1:
		return fmt.Errorf("level %s: width must be positive, got %d", s.ID, s.Width)
	case s.Dir == "":
		return fmt.Errorf("level %s: directory is required", s.ID)
	case s.EarlyThreshold < 1:
		return fmt.Errorf("level %s: early threshold must be positive, got %d", s.ID, s.EarlyThreshold)
	case s.PeriodWindow <= 0:
		return fmt.Errorf("level %s: period window must be positive, got %s", s.ID, s.PeriodWindow)
	}
	return nil
}

// Resolve returns the level with the given id.
func (r *Registry) Resolve(id string) (Level, error) {
	i, ok := r.index[id]
	if !ok {
		return Level{}, fmt.Errorf("%w: %q", ErrUnknownLevel, id)
	}
	return r.levels[i], nil
}

// Chain returns every level, lowest first. The slice is a copy.
func (r *Registry) Chain() []Level {
	out := make([]Level, len(r.levels))
	copy(out, r.levels)
	return out
}

// Next returns the level above l.
func (r *Registry) Next(l Level) (Level, bool) {
	if l.IsTop() {
		return Level{}, false
	}
	next, err := r.Resolve(l.Next)
	return next, err == nil
}

// Lower returns the level feeding l, if l is not fed by raw records.
func (r *Registry) Lower(l Level) (Level, bool) {
	if l.Source.Kind != SourceLevel {
		return Level{}, false
	}
	lower, err := r.Resolve(l.Source.Level)
	return lower, err == nil
}

// Raw returns the raw record description.
func (r *Registry) Raw() RawSpec { return r.raw }

// IDs returns the level ids, lowest first.
func (r *Registry) IDs() []string {
	ids := make([]string, len(r.levels))
	for i, l := range r.levels {
		ids[i] = l.ID
	}
	return ids
}
