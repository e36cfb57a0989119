package analyst

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/entrhq/episodic/pkg/digest"
	"github.com/entrhq/episodic/pkg/failure"
	"github.com/entrhq/episodic/pkg/llm"
	"github.com/entrhq/episodic/pkg/llm/tokenizer"
	"github.com/entrhq/episodic/pkg/logging"
)

// DefaultMaxInputTokens bounds the user prompt when no budget is configured.
const DefaultMaxInputTokens = 100000

const systemPrompt = `You condense journal material into a rollup digest.
Reply with a single JSON object and nothing else:
{
  "title": "short title, at most 50 characters",
  "overallContent": {"abstract": "...", "impression": "...", "keywords": ["at most 5"], "type": "..."},
  "perInputContent": [{"identifier": "<identifier as given>", "abstract": "...", "impression": "...", "keywords": ["at most 5"], "type": "..."}]
}
Write one perInputContent entry per input, using the identifiers exactly as given.`

// LLM asks a language model for digest content.
type LLM struct {
	provider  llm.Provider
	tokenizer *tokenizer.Tokenizer
	maxTokens int
	log       *logging.Logger
}

// LLMOption configures an LLM analyst.
type LLMOption func(*LLM)

// WithTokenizer sets the tokenizer used for budgeting. Nil keeps the estimate.
func WithTokenizer(t *tokenizer.Tokenizer) LLMOption {
	return func(a *LLM) { a.tokenizer = t }
}

// WithMaxInputTokens caps the prompt size.
func WithMaxInputTokens(n int) LLMOption {
	return func(a *LLM) {
		if n > 0 {
			a.maxTokens = n
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l *logging.Logger) LLMOption {
	return func(a *LLM) {
		if l != nil {
			a.log = l
		}
	}
}

// NewLLM returns an analyst backed by provider.
func NewLLM(provider llm.Provider, opts ...LLMOption) *LLM {
	a := &LLM{provider: provider, maxTokens: DefaultMaxInputTokens, log: logging.Discard()}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Analyze implements Analyst.
func (a *LLM) Analyze(ctx context.Context, req Request) (*digest.Payload, error) {
	if len(req.Items) == 0 {
		return nil, errors.New("analyst: empty batch")
	}
	prompt := a.buildPrompt(req)
	a.log.Debugf("level %s: asking %s about %d item(s), ~%d tokens", req.Level, a.provider.GetModel(), len(req.Items), a.tokenizer.CountTokens(prompt))

	reply, err := a.provider.Complete(ctx, []llm.Message{
		llm.SystemMessage(systemPrompt),
		llm.UserMessage(prompt),
	})
	if err != nil {
		return nil, fmt.Errorf("analyst: %w", err)
	}

	p, err := parsePayload(reply.Content)
	if err != nil {
		return nil, failure.New(failure.ErrMissingMetadata, req.Level, "", err).WithReason(string(req.Reason))
	}
	return p, nil
}

// buildPrompt lists every item, giving each an equal share of the budget.
func (a *LLM) buildPrompt(req Request) string {
	share := a.maxTokens / len(req.Items)
	var b strings.Builder
	fmt.Fprintf(&b, "Level: %s\nReason: %s\nInputs: %d\n", req.Level, req.Reason, len(req.Items))
	for _, it := range req.Items {
		body, cut := a.tokenizer.Truncate(it.Content, share)
		fmt.Fprintf(&b, "\n=== %s (modified %s) ===\n%s\n", it.Identifier, it.ModifiedAt.UTC().Format("2006-01-02 15:04"), body)
		if cut {
			a.log.Debugf("level %s: truncated %s to %d tokens", req.Level, it.Identifier, share)
			b.WriteString("[truncated]\n")
		}
	}
	return b.String()
}

// parsePayload extracts the JSON object from a reply, tolerating code fences
// and surrounding prose, then checks its shape.
func parsePayload(reply string) (*digest.Payload, error) {
	start := strings.IndexByte(reply, '{')
	end := strings.LastIndexByte(reply, '}')
	if start < 0 || end < start {
		return nil, errors.New("reply contains no JSON object")
	}
	var p digest.Payload
	if err := json.Unmarshal([]byte(reply[start:end+1]), &p); err != nil {
		return nil, fmt.Errorf("decode reply: %w", err)
	}
	if err := p.Validate(); err != nil {
		return nil, err
	}
	return &p, nil
}
