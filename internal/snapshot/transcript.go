// ABOUTME: HTML transcript rendering for conversations.
// ABOUTME: Message text is markdown; goldmark converts each body to HTML.

package snapshot

import (
	"fmt"
	"html"
	"io"

	"github.com/yuin/goldmark"

	"github.com/2389/parley/internal/store"
)

const transcriptHeader = `<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
<title>Transcript: %s</title>
<style>
body { font-family: sans-serif; max-width: 48rem; margin: 2rem auto; }
.message { border-left: 3px solid #ccc; padding: 0.25rem 1rem; margin: 1rem 0; }
.message.robot { border-color: #7b5cd6; }
.message.system_debug { border-color: #999; color: #666; }
.meta { font-size: 0.8rem; color: #888; }
</style>
</head>
<body>
<h1>%s</h1>
`

// TranscriptRenderer renders a conversation's messages as an HTML document.
type TranscriptRenderer struct {
	md goldmark.Markdown
}

// NewTranscriptRenderer creates a renderer with default markdown settings.
func NewTranscriptRenderer() *TranscriptRenderer {
	return &TranscriptRenderer{md: goldmark.New()}
}

// Render writes the transcript for a conversation to w. Messages must be in
// chronological order; structured content is rendered via its text fallback.
func (r *TranscriptRenderer) Render(w io.Writer, conv *store.Conversation, msgs []*store.Message) error {
	title := "Conversation " + conv.ID
	if _, err := fmt.Fprintf(w, transcriptHeader, html.EscapeString(title), html.EscapeString(title)); err != nil {
		return err
	}

	for _, m := range msgs {
		author := m.Author()
		if author == "" {
			author = string(m.FromRole)
		}
		_, err := fmt.Fprintf(w, "<div class=\"message %s\">\n<div class=\"meta\">%s (%s &rarr; %s) &middot; %s</div>\n",
			html.EscapeString(string(m.FromRole)),
			html.EscapeString(author),
			html.EscapeString(string(m.FromRole)),
			html.EscapeString(string(m.ToRole)),
			m.CreatedAt.Format("2006-01-02 15:04:05"))
		if err != nil {
			return err
		}
		if err := r.md.Convert([]byte(m.Content.String()), w); err != nil {
			return fmt.Errorf("render message %s: %w", m.ID, err)
		}
		if _, err := io.WriteString(w, "</div>\n"); err != nil {
			return err
		}
	}

	_, err := io.WriteString(w, "</body>\n</html>\n")
	return err
}
