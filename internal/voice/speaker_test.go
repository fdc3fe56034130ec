package voice

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"
)

func TestSpeakerPlaysSegmentsInOrder(t *testing.T) {
	synth := NewMockSynthesizer(0)
	s := NewSpeaker(synth, 30)

	u := s.Speak(context.Background(), "turn-1", "First sentence here. Second sentence here. Third one.")
	reason, err := u.Wait()
	if err != nil || reason != EndCompleted {
		t.Fatalf("Wait() = %q, %v, want completed", reason, err)
	}
	spoken := synth.Spoken()
	if len(spoken) != len(u.Segments) || len(spoken) < 2 {
		t.Fatalf("spoken %d of %d segments", len(spoken), len(u.Segments))
	}
	for i, seg := range spoken {
		if seg.Seq != i || seg.TurnID != "turn-1" {
			t.Fatalf("segment %d = %+v", i, seg)
		}
	}
	if s.Speaking() {
		t.Fatalf("Speaking() = true after completion")
	}
}

func TestSpeakerNewUtteranceCancelsPrevious(t *testing.T) {
	synth := NewMockSynthesizer(50 * time.Millisecond)
	s := NewSpeaker(synth, 200)

	long := strings.Repeat("A sentence to read aloud. ", 20)
	first := s.Speak(context.Background(), "turn-1", long)
	second := s.Speak(context.Background(), "turn-2", "Short reply.")

	select {
	case <-first.Done():
	default:
		t.Fatalf("first utterance should have stopped before second started")
	}
	if reason, _ := first.Wait(); reason != EndCanceled {
		t.Fatalf("first reason = %q, want canceled", reason)
	}
	if reason, err := second.Wait(); reason != EndCompleted || err != nil {
		t.Fatalf("second = %q, %v", reason, err)
	}
	last := synth.Spoken()[len(synth.Spoken())-1]
	if last.TurnID != "turn-2" || last.Seq <= first.Segments[0].Seq {
		t.Fatalf("last spoken = %+v", last)
	}
}

func TestSpeakerStop(t *testing.T) {
	s := NewSpeaker(NewMockSynthesizer(time.Second), 200)
	if s.Stop() {
		t.Fatalf("Stop() with nothing playing should report false")
	}
	u := s.Speak(context.Background(), "t", "Hello there.")
	if !s.Speaking() {
		t.Fatalf("Speaking() = false while playing")
	}
	if !s.Stop() {
		t.Fatalf("Stop() = false while playing")
	}
	if reason, _ := u.Wait(); reason != EndCanceled {
		t.Fatalf("reason = %q, want canceled", reason)
	}
	if u.Spoken() != 0 {
		t.Fatalf("Spoken() = %d, want 0", u.Spoken())
	}
}

func TestSpeakerEmptyTextCompletes(t *testing.T) {
	s := NewSpeaker(NewMockSynthesizer(0), 200)
	u := s.Speak(context.Background(), "t", "**  **")
	if reason, _ := u.Wait(); reason != EndCompleted || len(u.Segments) != 0 {
		t.Fatalf("reason = %q, segments = %d", reason, len(u.Segments))
	}
}

type failingSynth struct{ err error }

func (f failingSynth) Speak(context.Context, Segment) error { return f.err }

func TestSpeakerReportsSynthFailure(t *testing.T) {
	boom := errors.New("device busy")
	u := NewSpeaker(failingSynth{err: boom}, 200).Speak(context.Background(), "t", "Hi.")
	reason, err := u.Wait()
	if reason != EndFailed || !errors.Is(err, boom) {
		t.Fatalf("Wait() = %q, %v", reason, err)
	}
}

func TestAckSynthesizer(t *testing.T) {
	sent := make(chan Segment, 4)
	a := NewAckSynthesizer(func(_ context.Context, seg Segment) error {
		sent <- seg
		return nil
	}, time.Second)

	done := make(chan error, 1)
	go func() { done <- a.Speak(context.Background(), Segment{Seq: 7, Text: "hi"}) }()

	seg := <-sent
	if a.Ack(99) {
		t.Fatalf("Ack(unknown) = true")
	}
	if !a.Ack(seg.Seq) {
		t.Fatalf("Ack(%d) = false", seg.Seq)
	}
	if err := <-done; err != nil {
		t.Fatalf("Speak() error = %v", err)
	}
	if a.Ack(seg.Seq) {
		t.Fatalf("second Ack should be stale")
	}
}

func TestAckSynthesizerTimeout(t *testing.T) {
	a := NewAckSynthesizer(func(context.Context, Segment) error { return nil }, 20*time.Millisecond)
	if err := a.Speak(context.Background(), Segment{Seq: 1}); !errors.Is(err, ErrAckTimeout) {
		t.Fatalf("Speak() error = %v, want ErrAckTimeout", err)
	}
}

func TestTranscriptFinalize(t *testing.T) {
	var tr Transcript
	tr.Partial("what is")
	tr.Partial("what is go ")
	got, ok := tr.Finalize("")
	if !ok || got != "what is go" {
		t.Fatalf("Finalize() = %q, %v", got, ok)
	}
	if _, ok := tr.Finalize("  "); ok {
		t.Fatalf("Finalize() after reset should have nothing to submit")
	}
	tr.Partial("draft")
	if got, _ := tr.Finalize("final words"); got != "final words" {
		t.Fatalf("Finalize() = %q, want final text", got)
	}
}
