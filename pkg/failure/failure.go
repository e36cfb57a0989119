// Package failure defines the error classes reported by the rollup pipeline.
//
// Every class has a sentinel so callers can branch with errors.Is, and the
// concrete *Error carries the level, the reason and the offending identifier
// that a report needs.
package failure

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrScan means a backing location exists but could not be read.
	ErrScan = errors.New("scan error")
	// ErrDuplicateArtifact means the target identifier is already committed.
	ErrDuplicateArtifact = errors.New("duplicate artifact")
	// ErrMissingMetadata means a digest or payload lacks a required field.
	ErrMissingMetadata = errors.New("missing metadata")
	// ErrIO means a write failed; the final location was not touched.
	ErrIO = errors.New("io error")
	// ErrNonMonotonic means an allocated sequence number collides with an
	// existing artifact, which only happens under concurrent invocations.
	ErrNonMonotonic = errors.New("non-monotonic sequence")
)

// Error is a classified pipeline failure.
type Error struct {
	Kind       error
	Level      string
	Reason     string
	Identifier string
	Err        error
}

// New returns a classified error for level. err may be nil.
func New(kind error, level, identifier string, err error) *Error {
	return &Error{Kind: kind, Level: level, Identifier: identifier, Err: err}
}

// WithReason records the trigger reason or operation the failure happened under.
func (e *Error) WithReason(reason string) *Error {
	e.Reason = reason
	return e
}

func (e *Error) Error() string {
	var b strings.Builder
	b.WriteString(e.Kind.Error())
	var fields []string
	if e.Level != "" {
		fields = append(fields, "level="+e.Level)
	}
	if e.Reason != "" {
		fields = append(fields, "reason="+e.Reason)
	}
	if e.Identifier != "" {
		fields = append(fields, "identifier="+e.Identifier)
	}
	if len(fields) > 0 {
		fmt.Fprintf(&b, " [%s]", strings.Join(fields, " "))
	}
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

// Unwrap exposes both the class sentinel and the underlying cause.
func (e *Error) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}

// KindName returns a short label for err's class, or "unknown".
func KindName(err error) string {
	switch {
	case errors.Is(err, ErrScan):
		return "scan"
	case errors.Is(err, ErrDuplicateArtifact):
		return "duplicate_artifact"
	case errors.Is(err, ErrMissingMetadata):
		return "missing_metadata"
	case errors.Is(err, ErrNonMonotonic):
		return "non_monotonic"
	case errors.Is(err, ErrIO):
		return "io"
	default:
		return "unknown"
	}
}
