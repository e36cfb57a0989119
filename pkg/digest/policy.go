package digest

import (
	"fmt"
	"strings"
)

// OverwritePolicy says what a commit does when the target already exists.
type OverwritePolicy int

const (
	// PolicyAbort fails with a duplicate-artifact error.
	PolicyAbort OverwritePolicy = iota
	// PolicyOverwrite atomically replaces the existing artifact.
	PolicyOverwrite
	// PolicySkip keeps the existing artifact and reports the commit as skipped.
	PolicySkip
)

func (p OverwritePolicy) String() string {
	switch p {
	case PolicyOverwrite:
		return "overwrite"
	case PolicySkip:
		return "skip"
	default:
		return "abort"
	}
}

// ParseOverwritePolicy accepts abort, overwrite or skip. Empty means abort.
func ParseOverwritePolicy(s string) (OverwritePolicy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "abort":
		return PolicyAbort, nil
	case "overwrite":
		return PolicyOverwrite, nil
	case "skip":
		return PolicySkip, nil
	default:
		return PolicyAbort, fmt.Errorf("invalid overwrite policy %q (must be abort, overwrite, or skip)", s)
	}
}
