// Package richtext converts the legacy markdown fields to HTML.
package richtext

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
	"github.com/yuin/goldmark/renderer/html"
)

// Converter turns lightweight markup into HTML.
type Converter interface {
	ToHTML(markup string) (string, error)
}

// Markdown converts GitHub-flavoured markdown. Raw HTML embedded in the
// legacy text is passed through since the legacy editor produced some.
type Markdown struct {
	md goldmark.Markdown
}

// NewMarkdown returns a ready converter. It is safe for concurrent use.
func NewMarkdown() *Markdown {
	return &Markdown{
		md: goldmark.New(
			goldmark.WithExtensions(extension.GFM),
			goldmark.WithRendererOptions(
				html.WithHardWraps(),
				html.WithUnsafe(),
			),
		),
	}
}

// ToHTML converts markup. Blank input yields "".
func (m *Markdown) ToHTML(markup string) (string, error) {
	if strings.TrimSpace(markup) == "" {
		return "", nil
	}
	var buf bytes.Buffer
	if err := m.md.Convert([]byte(markup), &buf); err != nil {
		return "", fmt.Errorf("convert markdown: %w", err)
	}
	return strings.TrimSpace(buf.String()), nil
}
