package voice

import (
	"context"
	"sync"
	"time"
)

// AckSynthesizer hands segments to a remote player and waits for it to
// report each one done.
type AckSynthesizer struct {
	send    func(ctx context.Context, seg Segment) error
	timeout time.Duration

	mu      sync.Mutex
	pending map[int]chan struct{}
}

func NewAckSynthesizer(send func(ctx context.Context, seg Segment) error, timeout time.Duration) *AckSynthesizer {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &AckSynthesizer{
		send:    send,
		timeout: timeout,
		pending: make(map[int]chan struct{}),
	}
}

func (a *AckSynthesizer) Speak(ctx context.Context, seg Segment) error {
	ack := make(chan struct{})
	a.mu.Lock()
	a.pending[seg.Seq] = ack
	a.mu.Unlock()
	defer func() {
		a.mu.Lock()
		delete(a.pending, seg.Seq)
		a.mu.Unlock()
	}()

	if err := a.send(ctx, seg); err != nil {
		return err
	}

	timer := time.NewTimer(a.timeout)
	defer timer.Stop()
	select {
	case <-ack:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return ErrAckTimeout
	}
}

// Ack marks segment seq as played. It reports false for unknown or stale seqs.
func (a *AckSynthesizer) Ack(seq int) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	ch, ok := a.pending[seq]
	if !ok {
		return false
	}
	delete(a.pending, seq)
	close(ch)
	return true
}
