// ABOUTME: Markdown to HTML rendering of message content for API clients
// ABOUTME: Uses goldmark with GitHub-flavored extensions; raw HTML in content is not passed through

package gateway

import (
	"bytes"
	"html"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
)

var markdown = goldmark.New(
	goldmark.WithExtensions(extension.GFM),
)

// renderMarkdown converts message content to HTML.
// On failure the escaped raw text is returned in a paragraph.
func renderMarkdown(content string) string {
	var buf bytes.Buffer
	if err := markdown.Convert([]byte(content), &buf); err != nil {
		return "<p>" + html.EscapeString(content) + "</p>"
	}
	return buf.String()
}
