// Package digest builds, validates and persists rollup artifacts.
package digest

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/entrhq/episodic/pkg/failure"
	"github.com/entrhq/episodic/pkg/trigger"
)

// FormatVersion is written into every digest's metadata.
const FormatVersion = "1.0"

// MaxKeywords bounds every keyword list.
const MaxKeywords = 5

var validate = validator.New(validator.WithRequiredStructEnabled())

// Content is analyst-supplied analysis of a batch or of one input.
type Content struct {
	Abstract   string   `json:"abstract" validate:"required"`
	Impression string   `json:"impression" validate:"required"`
	Keywords   []string `json:"keywords" validate:"max=5,dive,required"`
	Type       string   `json:"type,omitempty"`
}

// InputContent is the analysis of a single input.
type InputContent struct {
	Identifier string `json:"identifier" validate:"required"`
	Content
}

// Metadata identifies a digest and its inputs.
type Metadata struct {
	Name             string         `json:"name" validate:"required"`
	Level            string         `json:"level" validate:"required"`
	Reason           trigger.Reason `json:"reason" validate:"required,oneof=early periodic manual"`
	InputIdentifiers []string       `json:"inputIdentifiers" validate:"required,min=1,dive,required"`
	Sequence         int            `json:"sequenceNumber" validate:"required,min=1"`
	CreatedAt        time.Time      `json:"createdAt"`
	CompletedAt      *time.Time     `json:"completedAt,omitempty"`
	Title            string         `json:"title,omitempty"`
	Version          string         `json:"version"`
}

// Digest is the immutable artifact committed for one rollup.
type Digest struct {
	Metadata Metadata       `json:"metadata"`
	Overall  Content        `json:"overallContent"`
	PerInput []InputContent `json:"perInputContent" validate:"dive"`
}

// Payload is what an analyst returns for a batch.
type Payload struct {
	Title    string         `json:"title,omitempty"`
	Overall  Content        `json:"overallContent"`
	PerInput []InputContent `json:"perInputContent" validate:"dive"`
}

// Validate checks the payload shape. It does not judge content quality.
func (p *Payload) Validate() error {
	if err := validate.Struct(p); err != nil {
		return describe(err)
	}
	return nil
}

// Validate checks that d carries every field a commit needs.
func (d *Digest) Validate() error {
	if err := validate.Struct(d); err != nil {
		return describe(err)
	}
	if d.Metadata.CreatedAt.IsZero() {
		return errors.New("metadata.createdAt is required")
	}
	inputs := make(map[string]struct{}, len(d.Metadata.InputIdentifiers))
	for _, id := range d.Metadata.InputIdentifiers {
		inputs[id] = struct{}{}
	}
	for _, pi := range d.PerInput {
		if _, ok := inputs[pi.Identifier]; !ok {
			return fmt.Errorf("perInputContent names %q which is not an input", pi.Identifier)
		}
	}
	return nil
}

// describe flattens validator output into one readable error.
func describe(err error) error {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err
	}
	parts := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		if fe.Param() != "" {
			parts = append(parts, fmt.Sprintf("%s failed %s=%s", fe.Namespace(), fe.Tag(), fe.Param()))
		} else {
			parts = append(parts, fmt.Sprintf("%s failed %s", fe.Namespace(), fe.Tag()))
		}
	}
	return errors.New(strings.Join(parts, "; "))
}

// Load reads a committed digest or a draft.
func Load(path string) (Digest, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return Digest{}, err
	}
	var d Digest
	if err := json.Unmarshal(raw, &d); err != nil {
		return Digest{}, failure.New(failure.ErrMissingMetadata, "", path, err)
	}
	return d, nil
}

// Render turns a digest into analyst input text for the next level.
func Render(d Digest) string {
	var b strings.Builder
	fmt.Fprintf(&b, "# %s\n", d.Metadata.Name)
	writeContent(&b, d.Overall)
	for _, pi := range d.PerInput {
		fmt.Fprintf(&b, "\n## %s\n", pi.Identifier)
		writeContent(&b, pi.Content)
	}
	return b.String()
}

func writeContent(b *strings.Builder, c Content) {
	fmt.Fprintf(b, "Abstract: %s\n", c.Abstract)
	fmt.Fprintf(b, "Impression: %s\n", c.Impression)
	if len(c.Keywords) > 0 {
		fmt.Fprintf(b, "Keywords: %s\n", strings.Join(c.Keywords, ", "))
	}
}
