package voice

import (
	"context"
	"errors"
)

var (
	ErrUnsupported = errors.New("voice features are not available")
	ErrAckTimeout  = errors.New("speech segment was not acknowledged")
)

// Segment is one piece of an utterance handed to a synthesizer.
type Segment struct {
	TurnID string `json:"turn_id"`
	Seq    int    `json:"seq"`
	Text   string `json:"text"`
}

// Synthesizer speaks one segment and returns once it has finished playing.
// It must return promptly when ctx is canceled.
type Synthesizer interface {
	Speak(ctx context.Context, seg Segment) error
}

type EndReason string

const (
	EndCompleted EndReason = "completed"
	EndCanceled  EndReason = "canceled"
	EndFailed    EndReason = "failed"
)
