package render

import (
	"regexp"
	"strings"
)

var (
	codeBlockPattern  = regexp.MustCompile("```(\\w+)?\\n([\\s\\S]*?)```")
	boldPattern       = regexp.MustCompile(`\*\*(.*?)\*\*`)
	italicPattern     = regexp.MustCompile(`\*(.*?)\*`)
	inlineCodePattern = regexp.MustCompile("`(.*?)`")

	htmlEscaper = strings.NewReplacer(
		"&", "&amp;",
		"<", "&lt;",
		">", "&gt;",
		`"`, "&quot;",
		"'", "&#039;",
	)
)

// Markdown converts the panel's markdown dialect into an HTML fragment.
// Recognized constructs are fenced code blocks, pipe tables, bold, italic,
// inline code and line breaks. Anything else passes through as literal text.
func Markdown(markdown string) string {
	return Parse(markdown).HTML()
}

// EscapeHTML escapes the five HTML-significant characters. It is not
// idempotent: escaping twice escapes the ampersands of the first pass.
func EscapeHTML(s string) string {
	return htmlEscaper.Replace(s)
}

// Parse splits markdown into fenced code, table and text segments.
// Concatenating the Source of every segment reproduces the input.
func Parse(markdown string) Document {
	var doc Document
	last := 0
	for _, m := range codeBlockPattern.FindAllStringSubmatchIndex(markdown, -1) {
		if m[0] > last {
			doc.Segments = append(doc.Segments, splitTables(markdown[last:m[0]])...)
		}
		seg := Segment{
			Kind:   KindCode,
			Source: markdown[m[0]:m[1]],
			Code:   markdown[m[4]:m[5]],
		}
		if m[2] >= 0 {
			seg.Lang = markdown[m[2]:m[3]]
		}
		doc.Segments = append(doc.Segments, seg)
		last = m[1]
	}
	if last < len(markdown) {
		doc.Segments = append(doc.Segments, splitTables(markdown[last:])...)
	}
	return doc
}

func formatInline(text string) string {
	text = boldPattern.ReplaceAllString(text, "<strong>$1</strong>")
	text = italicPattern.ReplaceAllString(text, "<em>$1</em>")
	text = inlineCodePattern.ReplaceAllString(text, "<code>$1</code>")
	return strings.ReplaceAll(text, "\n", "<br>")
}

func codeBlockHTML(lang, code string) string {
	var b strings.Builder
	b.Grow(len(code) + 32)
	b.WriteString("<pre><code")
	if lang != "" {
		b.WriteString(` class="language-`)
		b.WriteString(lang)
		b.WriteString(`"`)
	}
	b.WriteString(">")
	b.WriteString(EscapeHTML(code))
	b.WriteString("</code></pre>")
	return b.String()
}
