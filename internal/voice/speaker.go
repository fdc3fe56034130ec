package voice

import (
	"context"
	"errors"
	"sync"
)

// Speaker plays at most one utterance at a time. Starting a new one cancels
// the utterance in progress and waits for it to stop first.
type Speaker struct {
	synth    Synthesizer
	maxChars int

	speakMu sync.Mutex
	mu      sync.Mutex
	current *Utterance
	nextSeq int
}

func NewSpeaker(synth Synthesizer, maxChars int) *Speaker {
	if maxChars <= 1 {
		maxChars = DefaultSegmentMaxChars
	}
	return &Speaker{synth: synth, maxChars: maxChars}
}

// Utterance is a running sequence of segments.
type Utterance struct {
	TurnID   string
	Segments []Segment

	cancel context.CancelFunc
	done   chan struct{}
	reason EndReason
	spoken int
	err    error
}

// Done is closed once the utterance finished, was canceled, or failed.
func (u *Utterance) Done() <-chan struct{} { return u.done }

// Wait blocks until the utterance ends and reports why.
func (u *Utterance) Wait() (EndReason, error) {
	<-u.done
	return u.reason, u.err
}

// Spoken is the number of segments that played to completion. Valid after Done.
func (u *Utterance) Spoken() int {
	<-u.done
	return u.spoken
}

// Speak cleans and segments text and starts speaking it. Text that cleans to
// nothing yields an utterance that is already completed.
func (s *Speaker) Speak(ctx context.Context, turnID, text string) *Utterance {
	s.speakMu.Lock()
	defer s.speakMu.Unlock()

	s.mu.Lock()
	prev := s.current
	s.mu.Unlock()
	if prev != nil {
		prev.cancel()
		<-prev.done
	}

	parts := Segments(CleanForSpeech(text), s.maxChars)
	uctx, cancel := context.WithCancel(ctx)
	u := &Utterance{TurnID: turnID, cancel: cancel, done: make(chan struct{})}

	s.mu.Lock()
	for _, p := range parts {
		u.Segments = append(u.Segments, Segment{TurnID: turnID, Seq: s.nextSeq, Text: p})
		s.nextSeq++
	}
	s.current = u
	s.mu.Unlock()

	go s.run(uctx, u)
	return u
}

func (s *Speaker) run(ctx context.Context, u *Utterance) {
	defer func() {
		u.cancel()
		s.mu.Lock()
		if s.current == u {
			s.current = nil
		}
		s.mu.Unlock()
		close(u.done)
	}()

	u.reason = EndCompleted
	for _, seg := range u.Segments {
		if ctx.Err() != nil {
			u.reason = EndCanceled
			return
		}
		if err := s.synth.Speak(ctx, seg); err != nil {
			if ctx.Err() != nil || errors.Is(err, context.Canceled) {
				u.reason = EndCanceled
				return
			}
			u.reason = EndFailed
			u.err = err
			return
		}
		u.spoken++
	}
}

// Stop cancels the current utterance, if any, and reports whether one was playing.
func (s *Speaker) Stop() bool {
	s.mu.Lock()
	u := s.current
	s.mu.Unlock()
	if u == nil {
		return false
	}
	u.cancel()
	<-u.done
	return true
}

func (s *Speaker) Speaking() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current != nil
}
