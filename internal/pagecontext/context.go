package pagecontext

import (
	"strings"
	"unicode"
)

const (
	// DefaultMaxChars bounds the page text attached to a prompt.
	DefaultMaxChars = 1500
	Ellipsis        = "..."

	// SuggestedQuery prefills an empty panel input once page context is attached.
	SuggestedQuery = "Summarize this page content"
)

// PageContext is the extracted text of the page the panel is open on.
type PageContext struct {
	Title   string `json:"title"`
	Content string `json:"content"`
	URL     string `json:"url"`
}

// New normalizes content whitespace and truncates it to maxChars characters
// followed by an ellipsis. maxChars <= 0 uses DefaultMaxChars.
func New(title, content, url string, maxChars int) PageContext {
	return PageContext{
		Title:   strings.TrimSpace(title),
		Content: Truncate(CollapseWhitespace(content), maxChars),
		URL:     strings.TrimSpace(url),
	}
}

// Truncate cuts s to maxChars runes and appends Ellipsis when it was longer.
func Truncate(s string, maxChars int) string {
	if maxChars <= 0 {
		maxChars = DefaultMaxChars
	}
	count := 0
	for i := range s {
		if count == maxChars {
			return s[:i] + Ellipsis
		}
		count++
	}
	return s
}

// CollapseWhitespace replaces each whitespace run with one space and trims.
func CollapseWhitespace(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	pendingSpace := false
	for _, r := range s {
		if unicode.IsSpace(r) {
			pendingSpace = b.Len() > 0
			continue
		}
		if pendingSpace {
			b.WriteByte(' ')
			pendingSpace = false
		}
		b.WriteRune(r)
	}
	return b.String()
}

// PromptSuffix is appended to the system prompt when a page context is live.
func (p PageContext) PromptSuffix() string {
	return ` You have access to the following page content: Title: "` + p.Title +
		`", Content: "` + p.Content + `", URL: ` + p.URL
}

// Summary is the one-line preview shown in the panel context box.
func (p PageContext) Summary() string {
	return `"` + p.Title + `": ` + p.Content
}
