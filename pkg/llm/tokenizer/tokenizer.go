// Package tokenizer counts and trims tokens client-side so prompts stay
// inside a model's context window.
package tokenizer

import (
	"fmt"

	"github.com/pkoukk/tiktoken-go"
)

// DefaultEncoding matches the gpt-4 and gpt-4o families closely enough for budgeting.
const DefaultEncoding = "cl100k_base"

// Tokenizer wraps a tiktoken encoding. A nil *Tokenizer falls back to the
// four-bytes-per-token estimate, so callers can keep going when the
// encoding cannot be loaded.
type Tokenizer struct {
	enc *tiktoken.Tiktoken
}

// New loads DefaultEncoding. Loading may need network access the first time.
func New() (*Tokenizer, error) {
	enc, err := tiktoken.GetEncoding(DefaultEncoding)
	if err != nil {
		return nil, fmt.Errorf("load %s encoding: %w", DefaultEncoding, err)
	}
	return &Tokenizer{enc: enc}, nil
}

// CountTokens returns the number of tokens in text.
func (t *Tokenizer) CountTokens(text string) int {
	if t == nil || t.enc == nil {
		return (len(text) + 3) / 4
	}
	return len(t.enc.Encode(text, nil, nil))
}

// Truncate cuts text to at most limit tokens. It reports whether it cut.
func (t *Tokenizer) Truncate(text string, limit int) (string, bool) {
	if limit <= 0 {
		return "", text != ""
	}
	if t == nil || t.enc == nil {
		if len(text) <= limit*4 {
			return text, false
		}
		runes := []rune(text)
		cut := 0
		size := 0
		for cut < len(runes) && size+len(string(runes[cut])) <= limit*4 {
			size += len(string(runes[cut]))
			cut++
		}
		return string(runes[:cut]), true
	}
	tokens := t.enc.Encode(text, nil, nil)
	if len(tokens) <= limit {
		return text, false
	}
	return t.enc.Decode(tokens[:limit]), true
}
