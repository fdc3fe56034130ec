package voice

import (
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"
)

// DefaultSegmentMaxChars bounds one synthesized utterance.
const DefaultSegmentMaxChars = 200

const codeOmitted = "Code block omitted for speech."

var (
	speechFencedCodePattern   = regexp.MustCompile("```[\\s\\S]*?```")
	speechInlineCodePattern   = regexp.MustCompile("`([^`]+)`")
	speechMarkdownLinkPattern = regexp.MustCompile(`\[([^\]]+)\]\([^)]+\)`)
	sentencePattern           = regexp.MustCompile(`[^.!?]+[.!?]+`)
)

// CleanForSpeech strips markdown so an answer reads naturally aloud.
func CleanForSpeech(raw string) string {
	raw = strings.ReplaceAll(raw, "**", "")
	raw = strings.ReplaceAll(raw, "*", "")
	raw = speechFencedCodePattern.ReplaceAllString(raw, codeOmitted)
	raw = speechInlineCodePattern.ReplaceAllString(raw, "$1")
	raw = speechMarkdownLinkPattern.ReplaceAllString(raw, "$1")

	var b strings.Builder
	b.Grow(len(raw))
	prevSpace := true
	for _, r := range raw {
		switch {
		case r == '\u200d' || r == '\ufe0f' || r == '\u20e3':
			continue
		case unicode.IsSpace(r):
			if !prevSpace {
				b.WriteByte(' ')
				prevSpace = true
			}
		case unicode.IsControl(r):
			continue
		case unicode.Is(unicode.So, r):
			// emoji
			continue
		default:
			b.WriteRune(r)
			prevSpace = false
		}
	}
	return strings.TrimSpace(b.String())
}

// Segments splits cleaned text on sentence boundaries and packs sentences
// into segments shorter than maxChars characters.
func Segments(text string, maxChars int) []string {
	if maxChars <= 1 {
		maxChars = DefaultSegmentMaxChars
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}

	var segments []string
	var current strings.Builder
	flush := func() {
		if s := strings.TrimSpace(current.String()); s != "" {
			segments = append(segments, s)
		}
		current.Reset()
	}
	for _, sentence := range sentences(text) {
		for _, piece := range splitLong(sentence, maxChars) {
			if utf8.RuneCountInString(current.String())+utf8.RuneCountInString(piece) < maxChars {
				current.WriteString(piece)
				continue
			}
			flush()
			current.WriteString(piece)
		}
	}
	flush()
	return segments
}

// sentences keeps any trailing text that lacks terminal punctuation.
func sentences(text string) []string {
	locs := sentencePattern.FindAllStringIndex(text, -1)
	if len(locs) == 0 {
		return []string{text}
	}
	out := make([]string, 0, len(locs)+1)
	end := 0
	for _, loc := range locs {
		out = append(out, text[loc[0]:loc[1]])
		end = loc[1]
	}
	if rest := text[end:]; strings.TrimSpace(rest) != "" {
		out = append(out, rest)
	}
	return out
}

// splitLong breaks a sentence that cannot fit a segment on whitespace. A
// single word longer than the limit is cut by characters.
func splitLong(sentence string, maxChars int) []string {
	if utf8.RuneCountInString(sentence) < maxChars {
		return []string{sentence}
	}
	// Cut pieces carry a leading space and must stay under maxChars.
	step := maxChars - 2
	if step < 1 {
		step = 1
	}
	var out []string
	var current []rune
	for _, word := range strings.Fields(sentence) {
		w := []rune(word)
		for len(w) >= maxChars {
			if len(current) > 0 {
				out = append(out, string(current))
				current = nil
			}
			out = append(out, " "+string(w[:step]))
			w = w[step:]
		}
		candidate := len(current) + 1 + len(w)
		if len(current) > 0 && candidate >= maxChars {
			out = append(out, string(current))
			current = nil
		}
		current = append(current, ' ')
		current = append(current, w...)
	}
	if len(current) > 0 {
		out = append(out, string(current))
	}
	return out
}
