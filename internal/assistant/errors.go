package assistant

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/ent0n29/webmind/internal/groq"
	"github.com/ent0n29/webmind/internal/voice"
)

// ErrorKind classifies why a query produced no answer.
type ErrorKind string

const (
	KindInvalidRequest    ErrorKind = "invalid_request"
	KindMissingCredential ErrorKind = "missing_credential"
	KindUpstream          ErrorKind = "upstream"
	KindEmptyResponse     ErrorKind = "empty_response"
	KindVoiceUnsupported  ErrorKind = "voice_unsupported"
	KindSuperseded        ErrorKind = "superseded"
)

var ErrSuperseded = errors.New("query superseded by a newer one")

func (k ErrorKind) HTTPStatus() int {
	switch k {
	case KindInvalidRequest:
		return http.StatusBadRequest
	case KindMissingCredential:
		return http.StatusPreconditionFailed
	case KindUpstream, KindEmptyResponse:
		return http.StatusBadGateway
	case KindVoiceUnsupported:
		return http.StatusNotImplemented
	case KindSuperseded:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

// QueryError is a terminal failure of one query. Message is shown to the user as is.
type QueryError struct {
	Kind    ErrorKind
	Message string
	Err     error
}

func (e *QueryError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Kind, e.Err)
	}
	return string(e.Kind)
}

func (e *QueryError) Unwrap() error { return e.Err }

// Retryable reports whether sending the same query again could succeed.
func (e *QueryError) Retryable() bool {
	var statusErr *groq.StatusError
	if errors.As(e.Err, &statusErr) {
		return statusErr.Retryable()
	}
	return e.Kind == KindUpstream && errors.Is(e.Err, context.DeadlineExceeded)
}

func newInvalidRequest() *QueryError {
	return &QueryError{Kind: KindInvalidRequest, Message: "Please enter a question."}
}

func newMissingCredential() *QueryError {
	return &QueryError{Kind: KindMissingCredential, Message: "Please set your Groq API key in the extension popup.", Err: groq.ErrMissingAPIKey}
}

func newVoiceUnsupported() *QueryError {
	return &QueryError{Kind: KindVoiceUnsupported, Message: "Voice features are not available.", Err: voice.ErrUnsupported}
}

func newSuperseded() *QueryError {
	return &QueryError{Kind: KindSuperseded, Message: "Request superseded by a newer query.", Err: ErrSuperseded}
}

// classifyCompletionError maps a completer failure to the message the panel shows.
func classifyCompletionError(err error) *QueryError {
	switch {
	case errors.Is(err, groq.ErrMissingAPIKey):
		return newMissingCredential()
	case errors.Is(err, groq.ErrEmptyResponse), errors.Is(err, groq.ErrMalformedResponse):
		return &QueryError{Kind: KindEmptyResponse, Message: "Sorry, I couldn't process your request.", Err: err}
	default:
		return &QueryError{Kind: KindUpstream, Message: "Error: " + err.Error(), Err: err}
	}
}

// codeOf is the wire code for err, used in error events and metrics.
func codeOf(err error) string {
	var qerr *QueryError
	if errors.As(err, &qerr) {
		return string(qerr.Kind)
	}
	return "internal"
}
