package assistant

import (
	"context"
	"errors"
	"log"
	"sync"
	"time"

	"github.com/ent0n29/webmind/internal/observability"
	"github.com/ent0n29/webmind/internal/protocol"
	"github.com/ent0n29/webmind/internal/session"
	"github.com/ent0n29/webmind/internal/voice"
)

// RunConnection serves one websocket connection for sess until inbound is
// closed or ctx ends. Answers to voice queries are read back through the
// client, one acknowledged segment at a time.
func (s *Service) RunConnection(ctx context.Context, sess *session.Session, inbound <-chan any, outbound chan<- any) error {
	ctx, cancel := context.WithCancel(ctx)
	sessionID := sess.ID
	send := func(msg any) bool {
		select {
		case <-ctx.Done():
			return false
		case outbound <- msg:
			return true
		}
	}

	// Answer send times for voice turns that have not spoken a segment yet.
	var firstMu sync.Mutex
	awaitingFirst := make(map[string]time.Time)
	markFirst := func(turnID string) {
		firstMu.Lock()
		defer firstMu.Unlock()
		if at, ok := awaitingFirst[turnID]; ok {
			delete(awaitingFirst, turnID)
			s.metrics.ObserveStage(observability.StageFirstSegment, time.Since(at))
		}
	}

	synth := voice.NewAckSynthesizer(func(segCtx context.Context, seg voice.Segment) error {
		markFirst(seg.TurnID)
		err := queueSegment(ctx, segCtx, outbound, protocol.SpeechSegment{
			Type:      protocol.TypeSpeechSegment,
			SessionID: sessionID,
			TurnID:    seg.TurnID,
			Seq:       seg.Seq,
			Text:      seg.Text,
		})
		if err != nil {
			return err
		}
		s.metrics.SpeechSegments.Inc()
		return nil
	}, s.cfg.SpeechAckTimeout)
	speaker := voice.NewSpeaker(synth, s.cfg.SpeechSegmentMaxChars)

	var wg sync.WaitGroup
	defer func() {
		cancel()
		speaker.Stop()
		wg.Wait()
	}()

	sendError := func(code, detail string, retryable bool) {
		send(protocol.ErrorEvent{
			Type:      protocol.TypeErrorEvent,
			SessionID: sessionID,
			Code:      code,
			Source:    "assistant",
			Retryable: retryable,
			Detail:    detail,
		})
	}

	startQuery := func(text string, fromVoice bool) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ans, err := s.Query(ctx, sessionID, text, fromVoice)
			if err != nil {
				var qerr *QueryError
				switch {
				case errors.As(err, &qerr) && qerr.Kind == KindSuperseded:
					// A newer query owns the display.
				case errors.As(err, &qerr):
					sendError(string(qerr.Kind), qerr.Message, qerr.Retryable())
				case errors.Is(err, context.Canceled):
				case errors.Is(err, session.ErrNotFound), errors.Is(err, session.ErrEnded):
					sendError("session_unavailable", err.Error(), false)
				default:
					sendError("internal", err.Error(), true)
				}
				return
			}
			if !send(protocol.AssistantAnswer{
				Type:           protocol.TypeAssistantAnswer,
				SessionID:      sessionID,
				ChatID:         ans.ChatID,
				TurnID:         ans.TurnID,
				Query:          ans.Query,
				Answer:         ans.Markdown,
				HTML:           ans.HTML,
				HasPageContext: ans.HasPageContext,
			}) {
				return
			}
			if !fromVoice {
				return
			}
			firstMu.Lock()
			awaitingFirst[ans.TurnID] = time.Now()
			firstMu.Unlock()
			u := speaker.Speak(ctx, ans.TurnID, ans.Markdown)
			reason, err := u.Wait()
			firstMu.Lock()
			delete(awaitingFirst, ans.TurnID)
			firstMu.Unlock()
			if err != nil {
				log.Printf("speech ended early: session=%s turn=%s err=%v", sessionID, ans.TurnID, err)
			}
			send(protocol.SpeechEnd{
				Type:      protocol.TypeSpeechEnd,
				SessionID: sessionID,
				TurnID:    ans.TurnID,
				Reason:    string(reason),
			})
		}()
	}

	send(protocol.SystemEvent{
		Type:      protocol.TypeSystemEvent,
		SessionID: sessionID,
		Code:      "session_ready",
		Detail:    voiceDetail(s.cfg.VoiceEnabled),
	})

	var transcript voice.Transcript
	for {
		var msg any
		select {
		case <-ctx.Done():
			return nil
		case m, ok := <-inbound:
			if !ok {
				return nil
			}
			msg = m
		}
		if err := s.sessions.Touch(sessionID); err != nil {
			sendError("session_unavailable", err.Error(), false)
			return err
		}

		switch m := msg.(type) {
		case protocol.ClientQuery:
			if m.SessionID != "" && m.SessionID != sessionID {
				sendError("invalid_session", "session_id does not match connection", false)
				continue
			}
			startQuery(m.Text, m.FromVoice)
		case protocol.ClientTranscript:
			if !s.cfg.VoiceEnabled {
				qerr := newVoiceUnsupported()
				sendError(string(qerr.Kind), qerr.Message, false)
				continue
			}
			if !m.Final {
				transcript.Partial(m.Text)
				continue
			}
			if text, ok := transcript.Finalize(m.Text); ok {
				startQuery(text, true)
			}
		case protocol.ClientControl:
			switch m.Action {
			case protocol.ActionCancelQuery:
				if s.CancelQuery(sessionID) {
					send(protocol.SystemEvent{Type: protocol.TypeSystemEvent, SessionID: sessionID, Code: "query_canceled"})
				}
			case protocol.ActionCancelSpeech:
				speaker.Stop()
			case protocol.ActionSpeechDone:
				synth.Ack(m.Seq)
			}
		}
	}
}

func voiceDetail(enabled bool) string {
	if enabled {
		return "voice_enabled"
	}
	return "voice_disabled"
}

// queueSegment blocks until msg is queued, the connection ends, or the
// utterance owning the segment is stopped.
func queueSegment(connCtx, segCtx context.Context, outbound chan<- any, msg any) error {
	select {
	case <-connCtx.Done():
		return context.Canceled
	case <-segCtx.Done():
		return segCtx.Err()
	case outbound <- msg:
		return nil
	}
}
