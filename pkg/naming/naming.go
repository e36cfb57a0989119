// Package naming parses and formats artifact identifiers of the shape
// <prefix><zero-padded sequence>[_<title>].
package naming

import (
	"errors"
	"fmt"
	"path/filepath"
	"strconv"
	"strings"
)

// MaxTitleRunes caps sanitized titles.
const MaxTitleRunes = 50

var ErrMalformed = errors.New("naming: malformed identifier")

// Name is a parsed identifier.
type Name struct {
	Prefix   string
	Sequence int
	// Digits is the number of digits the sequence was written with.
	Digits int
	Title  string
}

// Parse splits stem into prefix, sequence and title. The digits must follow
// the prefix directly and be followed by the end of the stem or by "_".
func Parse(stem, prefix string) (Name, error) {
	if prefix == "" || !strings.HasPrefix(stem, prefix) {
		return Name{}, fmt.Errorf("%w: %q does not start with %q", ErrMalformed, stem, prefix)
	}
	rest := stem[len(prefix):]
	end := 0
	for end < len(rest) && rest[end] >= '0' && rest[end] <= '9' {
		end++
	}
	if end == 0 {
		return Name{}, fmt.Errorf("%w: %q has no sequence number after %q", ErrMalformed, stem, prefix)
	}
	title := ""
	switch {
	case end == len(rest):
	case rest[end] == '_':
		title = rest[end+1:]
	default:
		return Name{}, fmt.Errorf("%w: %q has trailing characters after the sequence number", ErrMalformed, stem)
	}
	seq, err := strconv.Atoi(rest[:end])
	if err != nil {
		return Name{}, fmt.Errorf("%w: %q: %v", ErrMalformed, stem, err)
	}
	if seq < 1 {
		return Name{}, fmt.Errorf("%w: %q has sequence number 0", ErrMalformed, stem)
	}
	return Name{Prefix: prefix, Sequence: seq, Digits: end, Title: title}, nil
}

// Short returns the identifier without its title, e.g. "W0001".
func Short(prefix string, width, seq int) string {
	return fmt.Sprintf("%s%0*d", prefix, width, seq)
}

// Format returns the full identifier. An empty title yields Short.
func Format(prefix string, width, seq int, title string) string {
	id := Short(prefix, width, seq)
	if title == "" {
		return id
	}
	return id + "_" + title
}

// Stem strips the directory and the extension from path.
func Stem(path string) string {
	base := filepath.Base(path)
	return strings.TrimSuffix(base, filepath.Ext(base))
}

// SanitizeTitle makes title safe for use in a file name: reserved characters
// are dropped, whitespace runs become "_", surrounding underscores are
// trimmed and the result is capped at MaxTitleRunes without a trailing "_".
func SanitizeTitle(title string) string {
	cleaned := strings.Map(func(r rune) rune {
		if strings.ContainsRune(`<>:"/\|?*`, r) {
			return -1
		}
		return r
	}, title)
	cleaned = strings.Join(strings.Fields(cleaned), "_")
	cleaned = strings.Trim(cleaned, "_")
	if runes := []rune(cleaned); len(runes) > MaxTitleRunes {
		cleaned = strings.TrimRight(string(runes[:MaxTitleRunes]), "_")
	}
	return cleaned
}
