package voice

import (
	"context"
	"sync"
	"time"
)

// MockSynthesizer records segments and "plays" each for Delay. It is the
// stand-in used when no client player is attached.
type MockSynthesizer struct {
	Delay time.Duration

	mu     sync.Mutex
	spoken []Segment
}

func NewMockSynthesizer(delay time.Duration) *MockSynthesizer {
	return &MockSynthesizer{Delay: delay}
}

func (m *MockSynthesizer) Speak(ctx context.Context, seg Segment) error {
	if m.Delay > 0 {
		timer := time.NewTimer(m.Delay)
		defer timer.Stop()
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-timer.C:
		}
	}
	m.mu.Lock()
	m.spoken = append(m.spoken, seg)
	m.mu.Unlock()
	return nil
}

// Spoken returns the segments played so far, in order.
func (m *MockSynthesizer) Spoken() []Segment {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Segment, len(m.spoken))
	copy(out, m.spoken)
	return out
}
