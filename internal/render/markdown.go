package render

import (
	"fmt"
	"log/slog"
	"regexp"
	"strings"

	htmltomarkdown "github.com/JohannesKaufmann/html-to-markdown/v2"
	"github.com/charmbracelet/glamour"
)

// Markdown turns message text into terminal output. It always re-renders the
// full text, since partial markdown (an unterminated fence) cannot be
// rendered incrementally.
type Markdown func(text string) string

// Plain returns text unchanged.
func Plain(text string) string { return text }

// NewGlamour returns a Markdown backed by a glamour renderer wrapped at
// width. With color off the notty style is used.
func NewGlamour(width int, color bool) (Markdown, error) {
	style := glamour.WithStandardStyle("notty")
	if color {
		style = glamour.WithAutoStyle()
	}
	r, err := glamour.NewTermRenderer(style, glamour.WithWordWrap(width))
	if err != nil {
		return nil, fmt.Errorf("create markdown renderer: %w", err)
	}
	return func(text string) string {
		out, err := r.Render(text)
		if err != nil {
			slog.Debug("markdown render failed", "error", err)
			return text
		}
		return strings.Trim(out, "\n")
	}, nil
}

var htmlTag = regexp.MustCompile(`(?i)<(html|body|div|p|table|ul|ol|pre|a|h[1-6])[\s>]`)

// LooksLikeHTML reports whether text contains block-level HTML markup.
func LooksLikeHTML(text string) bool {
	return htmlTag.MatchString(text)
}

// HTMLToMarkdown converts HTML tool output to markdown, returning the input
// unchanged when conversion fails.
func HTMLToMarkdown(text string) string {
	md, err := htmltomarkdown.ConvertString(text)
	if err != nil {
		slog.Debug("html conversion failed", "error", err)
		return text
	}
	return strings.TrimSpace(md)
}
