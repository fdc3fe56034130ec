package voice

import (
	"strings"
	"sync"
)

// Transcript accumulates interim recognition results until recognition ends.
type Transcript struct {
	mu      sync.Mutex
	partial string
}

// Partial replaces the interim text.
func (t *Transcript) Partial(text string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.partial = text
}

// Finalize ends recognition and returns the query to submit, if any. Final
// text wins over the last interim result.
func (t *Transcript) Finalize(text string) (string, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if strings.TrimSpace(text) == "" {
		text = t.partial
	}
	t.partial = ""
	text = strings.TrimSpace(text)
	return text, text != ""
}

// Reset drops any interim text.
func (t *Transcript) Reset() {
	t.Partial("")
}
