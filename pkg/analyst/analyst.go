// Package analyst is the boundary to whoever writes a digest's content: a
// language model, a human, or the placeholder used until one of them does.
package analyst

import (
	"context"
	"fmt"
	"time"

	"github.com/entrhq/episodic/pkg/digest"
	"github.com/entrhq/episodic/pkg/trigger"
)

// Item is one input handed to the analyst.
type Item struct {
	Identifier string
	Content    string
	ModifiedAt time.Time
}

// Request is a batch to analyze.
type Request struct {
	Level  string
	Reason trigger.Reason
	Items  []Item
}

// Analyst produces digest content for a batch. The returned payload is only
// checked for shape; its quality is the analyst's business.
type Analyst interface {
	Analyze(ctx context.Context, req Request) (*digest.Payload, error)
}

// Placeholder fills every field with a marker so the pipeline can commit
// before any real analysis exists.
type Placeholder struct{}

// Analyze implements Analyst.
func (Placeholder) Analyze(ctx context.Context, req Request) (*digest.Payload, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	p := &digest.Payload{
		Overall: digest.Content{
			Abstract:   fmt.Sprintf("<%d %s item(s) awaiting analysis>", len(req.Items), req.Level),
			Impression: "<awaiting analysis>",
			Keywords:   []string{},
			Type:       "placeholder",
		},
		PerInput: make([]digest.InputContent, 0, len(req.Items)),
	}
	for _, it := range req.Items {
		p.PerInput = append(p.PerInput, digest.InputContent{
			Identifier: it.Identifier,
			Content: digest.Content{
				Abstract:   "<awaiting analysis>",
				Impression: "<awaiting analysis>",
				Keywords:   []string{},
				Type:       "placeholder",
			},
		})
	}
	return p, nil
}
