package assistant

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/ent0n29/webmind/internal/groq"
	"github.com/ent0n29/webmind/internal/history"
	"github.com/ent0n29/webmind/internal/observability"
	"github.com/ent0n29/webmind/internal/policy"
	"github.com/ent0n29/webmind/internal/reliability"
	"github.com/ent0n29/webmind/internal/render"
	"github.com/ent0n29/webmind/internal/session"
	"github.com/ent0n29/webmind/internal/settings"
	"github.com/ent0n29/webmind/internal/voice"
)

// Completer sends one chat-completion request.
type Completer interface {
	Complete(ctx context.Context, apiKey, model string, messages []groq.Message) (groq.Completion, error)
}

type Config struct {
	// FallbackAPIKey is used when no key has been stored in settings.
	FallbackAPIKey        string
	DefaultModel          string
	VoiceEnabled          bool
	SpeechSegmentMaxChars int
	SpeechAckTimeout      time.Duration

	// MaxRetries repeats a completion that failed with a retryable status.
	MaxRetries   int
	RetryBackoff time.Duration
	// RedactHistory masks keys and PII before a chat is persisted.
	RedactHistory bool
}

// Answer is a completed query, ready for display.
type Answer struct {
	ChatID         string   `json:"chat_id"`
	TurnID         string   `json:"turn_id"`
	Query          string   `json:"query"`
	Markdown       string   `json:"answer"`
	HTML           string   `json:"html"`
	HasPageContext bool     `json:"has_page_context"`
	SpeechSegments []string `json:"speech_segments,omitempty"`
}

// Service answers panel queries. A new query for a session cancels the one
// still in flight for it.
type Service struct {
	cfg       Config
	completer Completer
	sessions  *session.Manager
	history   history.Store
	settings  settings.Store
	metrics   *observability.Metrics

	mu       sync.Mutex
	inflight map[string]*inflightQuery
}

type inflightQuery struct {
	cancel     context.CancelFunc
	superseded bool
	canceled   bool
}

func NewService(cfg Config, completer Completer, sessions *session.Manager, hist history.Store, st settings.Store, metrics *observability.Metrics) *Service {
	if cfg.SpeechSegmentMaxChars <= 0 {
		cfg.SpeechSegmentMaxChars = voice.DefaultSegmentMaxChars
	}
	if strings.TrimSpace(cfg.DefaultModel) == "" {
		cfg.DefaultModel = groq.DefaultModel
	}
	return &Service{
		cfg:       cfg,
		completer: completer,
		sessions:  sessions,
		history:   hist,
		settings:  st,
		metrics:   metrics,
		inflight:  make(map[string]*inflightQuery),
	}
}

func (s *Service) VoiceEnabled() bool { return s.cfg.VoiceEnabled }

// Query answers one question in the context of a session.
func (s *Service) Query(ctx context.Context, sessionID, query string, fromVoice bool) (Answer, error) {
	started := time.Now()
	ans, err := s.query(ctx, sessionID, query, fromVoice)
	outcome := "answered"
	switch {
	case err == nil:
		s.metrics.ObserveStage(observability.StageQueryTotal, time.Since(started))
	case errors.Is(err, session.ErrNotFound), errors.Is(err, session.ErrEnded):
		outcome = "session_unavailable"
	case errors.Is(err, context.Canceled):
		outcome = "canceled"
	default:
		outcome = codeOf(err)
	}
	s.metrics.Queries.WithLabelValues(outcome).Inc()
	if outcome == string(KindSuperseded) {
		s.metrics.ObserveQueryEvent(observability.EventSuperseded)
	}
	return ans, err
}

func (s *Service) query(ctx context.Context, sessionID, query string, fromVoice bool) (Answer, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return Answer{}, newInvalidRequest()
	}
	if fromVoice && !s.cfg.VoiceEnabled {
		return Answer{}, newVoiceUnsupported()
	}

	sess, err := s.sessions.Get(sessionID)
	if err != nil {
		return Answer{}, err
	}
	if sess.Status != session.StatusActive {
		return Answer{}, session.ErrEnded
	}

	st, err := s.settings.Get(ctx)
	if err != nil {
		return Answer{}, fmt.Errorf("load settings: %w", err)
	}
	apiKey := strings.TrimSpace(st.APIKey)
	if apiKey == "" {
		apiKey = strings.TrimSpace(s.cfg.FallbackAPIKey)
	}
	if apiKey == "" {
		return Answer{}, newMissingCredential()
	}
	model := strings.TrimSpace(st.Model)
	if model == "" {
		model = s.cfg.DefaultModel
	}

	messages := BuildMessages(st.SystemPrompt(), sess, query)
	qctx, q := s.begin(ctx, sessionID)

	started := time.Now()
	var completion groq.Completion
	attempts := 0
	err = reliability.Do(qctx, s.retryPolicy(), func(ctx context.Context) error {
		attempts++
		if attempts > 1 {
			s.metrics.ObserveQueryEvent(observability.EventCompletionRetry)
		}
		var cerr error
		completion, cerr = s.completer.Complete(ctx, apiKey, model, messages)
		return cerr
	})
	if err == nil {
		s.metrics.ObserveCompletionLatency(time.Since(started))
	}

	renderStarted := time.Now()
	html := ""
	if err == nil {
		html = render.Markdown(completion.Content)
		s.metrics.ObserveStage(observability.StageRender, time.Since(renderStarted))
	}

	// The thread is only written while this query is still the latest one.
	s.mu.Lock()
	q.cancel()
	if s.inflight[sessionID] == q {
		delete(s.inflight, sessionID)
	}
	superseded, canceled := q.superseded, q.canceled
	var recorded *session.Session
	var recordErr error
	if err == nil && !superseded && !canceled {
		recorded, recordErr = s.sessions.RecordExchange(sessionID, query, completion.Content)
	}
	s.mu.Unlock()

	switch {
	case superseded:
		return Answer{}, newSuperseded()
	case canceled:
		return Answer{}, context.Canceled
	case err != nil:
		if ctxErr := ctx.Err(); ctxErr != nil && errors.Is(err, ctxErr) {
			return Answer{}, ctxErr
		}
		qerr := classifyCompletionError(err)
		s.metrics.ProviderErrors.WithLabelValues("groq", providerCode(err)).Inc()
		log.Printf("query failed: session=%s kind=%s err=%v", sessionID, qerr.Kind, err)
		return Answer{}, qerr
	case recordErr != nil:
		return Answer{}, recordErr
	}

	ans := Answer{
		ChatID:         recorded.ChatID,
		TurnID:         uuid.NewString(),
		Query:          query,
		Markdown:       completion.Content,
		HTML:           html,
		HasPageContext: sess.PageContext != nil,
	}
	// The exchange is already in the thread; a client hanging up now must not drop it from history.
	if err := s.history.Save(context.WithoutCancel(ctx), s.historyRecord(ans)); err != nil {
		log.Printf("history save failed: session=%s chat=%s err=%v", sessionID, ans.ChatID, err)
	}
	if fromVoice {
		ans.SpeechSegments = voice.Segments(voice.CleanForSpeech(ans.Markdown), s.cfg.SpeechSegmentMaxChars)
	}
	return ans, nil
}

func (s *Service) retryPolicy() reliability.Policy {
	return reliability.Policy{
		Retries: s.cfg.MaxRetries,
		Base:    s.cfg.RetryBackoff,
		Max:     8 * s.cfg.RetryBackoff,
		Retryable: func(err error) bool {
			var statusErr *groq.StatusError
			return errors.As(err, &statusErr) && statusErr.Retryable()
		},
	}
}

func (s *Service) historyRecord(ans Answer) history.ChatRecord {
	query, answer := ans.Query, ans.Markdown
	if s.cfg.RedactHistory {
		query, _ = policy.RedactPII(query)
		answer, _ = policy.RedactPII(answer)
	}
	return history.NewRecord(ans.ChatID, query, answer, ans.HasPageContext)
}

// begin registers a query as the session's latest, superseding any older one.
func (s *Service) begin(ctx context.Context, sessionID string) (context.Context, *inflightQuery) {
	qctx, cancel := context.WithCancel(ctx)
	q := &inflightQuery{cancel: cancel}

	s.mu.Lock()
	defer s.mu.Unlock()
	if prev := s.inflight[sessionID]; prev != nil {
		prev.superseded = true
		prev.cancel()
	}
	s.inflight[sessionID] = q
	return qctx, q
}

// CancelQuery aborts the session's in-flight query, if any.
func (s *Service) CancelQuery(sessionID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	q := s.inflight[sessionID]
	if q == nil {
		return false
	}
	q.canceled = true
	q.cancel()
	delete(s.inflight, sessionID)
	return true
}

// InFlight reports whether a query is running for the session.
func (s *Service) InFlight(sessionID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.inflight[sessionID] != nil
}

// BuildMessages assembles the completion request: the system prompt with any
// page context, prior turns in conversation mode, then the query.
func BuildMessages(systemPrompt string, sess *session.Session, query string) []groq.Message {
	if sess.PageContext != nil {
		systemPrompt += sess.PageContext.PromptSuffix()
	}
	messages := []groq.Message{{Role: groq.RoleSystem, Content: systemPrompt}}
	if sess.ConversationMode {
		for _, m := range sess.Prior() {
			role := groq.RoleUser
			if m.Role == session.RoleAssistant {
				role = groq.RoleAssistant
			}
			messages = append(messages, groq.Message{Role: role, Content: m.Content})
		}
	}
	return append(messages, groq.Message{Role: groq.RoleUser, Content: query})
}

// ExplainPrefill is the query the context-menu action opens the panel with.
func ExplainPrefill(selection string) (string, error) {
	selection = strings.TrimSpace(selection)
	if selection == "" {
		return "", newInvalidRequest()
	}
	return `Explain: "` + selection + `"`, nil
}

func providerCode(err error) string {
	var statusErr *groq.StatusError
	switch {
	case errors.As(err, &statusErr):
		return fmt.Sprintf("http_%d", statusErr.StatusCode)
	case errors.Is(err, groq.ErrEmptyResponse):
		return "empty_response"
	case errors.Is(err, groq.ErrMalformedResponse):
		return "malformed_response"
	case errors.Is(err, context.DeadlineExceeded):
		return "timeout"
	default:
		return "transport"
	}
}
