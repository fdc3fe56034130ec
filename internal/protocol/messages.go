package protocol

import (
	"encoding/json"
	"errors"
	"fmt"
)

// MessageType identifies websocket payload variants.
type MessageType string

const (
	TypeClientQuery      MessageType = "client_query"
	TypeClientTranscript MessageType = "client_transcript"
	TypeClientControl    MessageType = "client_control"
	TypeAssistantAnswer  MessageType = "assistant_answer"
	TypeSpeechSegment    MessageType = "speech_segment"
	TypeSpeechEnd        MessageType = "speech_end"
	TypeSystemEvent      MessageType = "system_event"
	TypeErrorEvent       MessageType = "error_event"
)

// Control actions.
const (
	ActionCancelQuery  = "cancel_query"
	ActionCancelSpeech = "cancel_speech"
	ActionSpeechDone   = "speech_done"
)

var ErrUnsupportedType = errors.New("unsupported message type")

type Envelope struct {
	Type MessageType `json:"type"`
}

type ClientQuery struct {
	Type      MessageType `json:"type"`
	SessionID string      `json:"session_id,omitempty"`
	Text      string      `json:"text"`
	FromVoice bool        `json:"from_voice"`
}

// ClientTranscript carries speech recognition output; Final marks the end of recognition.
type ClientTranscript struct {
	Type      MessageType `json:"type"`
	SessionID string      `json:"session_id,omitempty"`
	Text      string      `json:"text"`
	Final     bool        `json:"final"`
}

type ClientControl struct {
	Type      MessageType `json:"type"`
	SessionID string      `json:"session_id,omitempty"`
	Action    string      `json:"action"`
	Seq       int         `json:"seq"`
}

type AssistantAnswer struct {
	Type           MessageType `json:"type"`
	SessionID      string      `json:"session_id"`
	ChatID         string      `json:"chat_id"`
	TurnID         string      `json:"turn_id"`
	Query          string      `json:"query"`
	Answer         string      `json:"answer"`
	HTML           string      `json:"html"`
	HasPageContext bool        `json:"has_page_context"`
}

type SpeechSegment struct {
	Type      MessageType `json:"type"`
	SessionID string      `json:"session_id"`
	TurnID    string      `json:"turn_id"`
	Seq       int         `json:"seq"`
	Text      string      `json:"text"`
}

type SpeechEnd struct {
	Type      MessageType `json:"type"`
	SessionID string      `json:"session_id"`
	TurnID    string      `json:"turn_id"`
	Reason    string      `json:"reason"`
}

type SystemEvent struct {
	Type      MessageType `json:"type"`
	SessionID string      `json:"session_id"`
	Code      string      `json:"code"`
	Detail    string      `json:"detail,omitempty"`
}

type ErrorEvent struct {
	Type      MessageType `json:"type"`
	SessionID string      `json:"session_id"`
	Code      string      `json:"code"`
	Source    string      `json:"source"`
	Retryable bool        `json:"retryable"`
	Detail    string      `json:"detail"`
}

func ParseClientMessage(raw []byte) (any, error) {
	var env Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, fmt.Errorf("invalid envelope: %w", err)
	}

	switch env.Type {
	case TypeClientQuery:
		var msg ClientQuery
		if err := json.Unmarshal(raw, &msg); err != nil {
			return nil, err
		}
		return msg, nil
	case TypeClientTranscript:
		var msg ClientTranscript
		if err := json.Unmarshal(raw, &msg); err != nil {
			return nil, err
		}
		return msg, nil
	case TypeClientControl:
		var msg ClientControl
		if err := json.Unmarshal(raw, &msg); err != nil {
			return nil, err
		}
		switch msg.Action {
		case ActionCancelQuery, ActionCancelSpeech:
		case ActionSpeechDone:
			if msg.Seq < 0 {
				return nil, errors.New("invalid client_control: negative seq")
			}
		default:
			return nil, fmt.Errorf("invalid client_control action %q", msg.Action)
		}
		return msg, nil
	default:
		return nil, ErrUnsupportedType
	}
}
