package assistant

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ent0n29/webmind/internal/groq"
	"github.com/ent0n29/webmind/internal/history"
	"github.com/ent0n29/webmind/internal/observability"
	"github.com/ent0n29/webmind/internal/pagecontext"
	"github.com/ent0n29/webmind/internal/session"
	"github.com/ent0n29/webmind/internal/settings"
)

var metricsSeq atomic.Int64

func newTestMetrics() *observability.Metrics {
	return observability.NewMetrics(fmt.Sprintf("test_assistant_%d", metricsSeq.Add(1)))
}

type fakeCompleter struct {
	mu      sync.Mutex
	calls   [][]groq.Message
	apiKeys []string
	models  []string
	fn      func(ctx context.Context, call int, messages []groq.Message) (groq.Completion, error)
}

func (f *fakeCompleter) Complete(ctx context.Context, apiKey, model string, messages []groq.Message) (groq.Completion, error) {
	f.mu.Lock()
	call := len(f.calls)
	f.calls = append(f.calls, messages)
	f.apiKeys = append(f.apiKeys, apiKey)
	f.models = append(f.models, model)
	f.mu.Unlock()
	if f.fn != nil {
		return f.fn(ctx, call, messages)
	}
	return groq.Completion{Content: "Answer to " + messages[len(messages)-1].Content}, nil
}

func (f *fakeCompleter) call(i int) []groq.Message {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[i]
}

type fixture struct {
	svc      *Service
	sessions *session.Manager
	history  *history.InMemoryStore
	settings *settings.KVStore
	fake     *fakeCompleter
}

func newFixture(t *testing.T, cfg Config, apiKey string) *fixture {
	t.Helper()
	f := &fixture{
		sessions: session.NewManager(time.Minute),
		history:  history.NewInMemoryStore(history.DefaultCapacity),
		settings: settings.NewInMemoryStore(),
		fake:     &fakeCompleter{},
	}
	if apiKey != "" {
		if _, err := f.settings.Update(context.Background(), settings.Update{APIKey: &apiKey}); err != nil {
			t.Fatalf("settings Update() error = %v", err)
		}
	}
	f.svc = NewService(cfg, f.fake, f.sessions, f.history, f.settings, newTestMetrics())
	return f
}

func TestQueryAnswersAndSavesHistory(t *testing.T) {
	f := newFixture(t, Config{}, "gsk-stored")
	f.fake.fn = func(context.Context, int, []groq.Message) (groq.Completion, error) {
		return groq.Completion{Content: "Use **bold** and `code`\n"}, nil
	}
	sess := f.sessions.Create(false)

	ans, err := f.svc.Query(context.Background(), sess.ID, "  how?  ", false)
	if err != nil {
		t.Fatalf("Query() error = %v", err)
	}
	if ans.HTML != "Use <strong>bold</strong> and <code>code</code><br>" {
		t.Fatalf("HTML = %q", ans.HTML)
	}
	if ans.Query != "how?" || ans.ChatID != sess.ChatID || ans.TurnID == "" {
		t.Fatalf("unexpected answer: %+v", ans)
	}
	if ans.SpeechSegments != nil {
		t.Fatalf("typed query should not carry speech segments")
	}

	msgs := f.fake.call(0)
	if len(msgs) != 2 || msgs[0].Content != settings.DefaultSystemPrompt || msgs[1].Content != "how?" {
		t.Fatalf("messages = %+v", msgs)
	}
	if f.fake.apiKeys[0] != "gsk-stored" || f.fake.models[0] != "llama3-70b-8192" {
		t.Fatalf("credential/model = %q/%q", f.fake.apiKeys[0], f.fake.models[0])
	}

	records, _ := f.history.List(context.Background(), 0)
	if len(records) != 1 || records[0].Query != "how?" || records[0].ID != sess.ChatID || records[0].HasPageContext {
		t.Fatalf("history = %+v", records)
	}
}

func TestQueryIncludesPageContextAndConversation(t *testing.T) {
	f := newFixture(t, Config{}, "k")
	sess := f.sessions.Create(true)
	pc := pagecontext.New("Go", "A language.", "https://go.dev", 0)
	if _, err := f.sessions.SetPageContext(sess.ID, pc); err != nil {
		t.Fatalf("SetPageContext() error = %v", err)
	}

	if _, err := f.svc.Query(context.Background(), sess.ID, "q1", false); err != nil {
		t.Fatalf("Query(q1) error = %v", err)
	}
	ans, err := f.svc.Query(context.Background(), sess.ID, "q2", false)
	if err != nil {
		t.Fatalf("Query(q2) error = %v", err)
	}
	if !ans.HasPageContext {
		t.Fatalf("HasPageContext = false")
	}

	msgs := f.fake.call(1)
	wantSystem := settings.DefaultSystemPrompt + pc.PromptSuffix()
	if msgs[0].Role != groq.RoleSystem || msgs[0].Content != wantSystem {
		t.Fatalf("system message = %+v", msgs[0])
	}
	var got []string
	for _, m := range msgs[1:] {
		got = append(got, string(m.Role)+":"+m.Content)
	}
	want := "user:q1,assistant:Answer to q1,user:q2"
	if strings.Join(got, ",") != want {
		t.Fatalf("history messages = %q, want %q", strings.Join(got, ","), want)
	}
}

func TestQueryErrors(t *testing.T) {
	cases := []struct {
		name      string
		cfg       Config
		apiKey    string
		query     string
		fromVoice bool
		fail      error
		kind      ErrorKind
		message   string
	}{
		{name: "empty query", apiKey: "k", query: "   ", kind: KindInvalidRequest, message: "Please enter a question."},
		{name: "missing credential", query: "hi", kind: KindMissingCredential, message: "Please set your Groq API key in the extension popup."},
		{
			name:    "upstream status",
			apiKey:  "k",
			query:   "hi",
			fail:    &groq.StatusError{StatusCode: http.StatusUnauthorized, Message: "Invalid API Key"},
			kind:    KindUpstream,
			message: "Error: API request failed: 401 (Invalid API Key)",
		},
		{name: "empty response", apiKey: "k", query: "hi", fail: groq.ErrEmptyResponse, kind: KindEmptyResponse, message: "Sorry, I couldn't process your request."},
		{name: "malformed response", apiKey: "k", query: "hi", fail: fmt.Errorf("%w: eof", groq.ErrMalformedResponse), kind: KindEmptyResponse, message: "Sorry, I couldn't process your request."},
		{name: "voice disabled", apiKey: "k", query: "hi", fromVoice: true, kind: KindVoiceUnsupported, message: "Voice features are not available."},
	}
	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			f := newFixture(t, tc.cfg, tc.apiKey)
			if tc.fail != nil {
				f.fake.fn = func(context.Context, int, []groq.Message) (groq.Completion, error) {
					return groq.Completion{}, tc.fail
				}
			}
			sess := f.sessions.Create(false)
			_, err := f.svc.Query(context.Background(), sess.ID, tc.query, tc.fromVoice)
			var qerr *QueryError
			if !errors.As(err, &qerr) {
				t.Fatalf("error = %v, want *QueryError", err)
			}
			if qerr.Kind != tc.kind || qerr.Message != tc.message {
				t.Fatalf("error = %q/%q, want %q/%q", qerr.Kind, qerr.Message, tc.kind, tc.message)
			}
			records, _ := f.history.List(context.Background(), 0)
			if len(records) != 0 {
				t.Fatalf("failed query saved history: %+v", records)
			}
		})
	}
}

func TestQueryUsesFallbackCredential(t *testing.T) {
	f := newFixture(t, Config{FallbackAPIKey: "gsk-env", DefaultModel: "mixtral"}, "")
	sess := f.sessions.Create(false)
	if _, err := f.svc.Query(context.Background(), sess.ID, "hi", false); err != nil {
		t.Fatalf("Query() error = %v", err)
	}
	if f.fake.apiKeys[0] != "gsk-env" {
		t.Fatalf("api key = %q, want fallback", f.fake.apiKeys[0])
	}
	// The stored model default wins over the service default.
	if f.fake.models[0] != "llama3-70b-8192" {
		t.Fatalf("model = %q", f.fake.models[0])
	}
}

func TestQueryUnknownSession(t *testing.T) {
	f := newFixture(t, Config{}, "k")
	if _, err := f.svc.Query(context.Background(), "missing", "hi", false); !errors.Is(err, session.ErrNotFound) {
		t.Fatalf("error = %v, want ErrNotFound", err)
	}
}

func TestQueryLatestSupersedesEarlier(t *testing.T) {
	f := newFixture(t, Config{}, "k")
	started := make(chan struct{})
	f.fake.fn = func(ctx context.Context, call int, messages []groq.Message) (groq.Completion, error) {
		if call == 0 {
			close(started)
			<-ctx.Done()
			return groq.Completion{}, fmt.Errorf("send request: %w", ctx.Err())
		}
		return groq.Completion{Content: "fresh"}, nil
	}
	sess := f.sessions.Create(false)

	firstErr := make(chan error, 1)
	go func() {
		_, err := f.svc.Query(context.Background(), sess.ID, "slow", false)
		firstErr <- err
	}()
	<-started

	ans, err := f.svc.Query(context.Background(), sess.ID, "fast", false)
	if err != nil {
		t.Fatalf("second Query() error = %v", err)
	}
	if ans.Markdown != "fresh" {
		t.Fatalf("answer = %q", ans.Markdown)
	}

	var qerr *QueryError
	if err := <-firstErr; !errors.As(err, &qerr) || qerr.Kind != KindSuperseded || !errors.Is(err, ErrSuperseded) {
		t.Fatalf("first Query() error = %v, want superseded", err)
	}

	records, _ := f.history.List(context.Background(), 0)
	if len(records) != 1 || records[0].Query != "fast" {
		t.Fatalf("history = %+v, want only the latest query", records)
	}
	got, _ := f.sessions.Get(sess.ID)
	if len(got.Messages) != 2 || got.Messages[0].Content != "fast" {
		t.Fatalf("thread = %+v", got.Messages)
	}
	if f.svc.InFlight(sess.ID) {
		t.Fatalf("InFlight() = true after both queries finished")
	}
}

func TestCancelQuery(t *testing.T) {
	f := newFixture(t, Config{}, "k")
	started := make(chan struct{})
	f.fake.fn = func(ctx context.Context, _ int, _ []groq.Message) (groq.Completion, error) {
		close(started)
		<-ctx.Done()
		return groq.Completion{}, ctx.Err()
	}
	sess := f.sessions.Create(false)

	errCh := make(chan error, 1)
	go func() {
		_, err := f.svc.Query(context.Background(), sess.ID, "hi", false)
		errCh <- err
	}()
	<-started
	if !f.svc.CancelQuery(sess.ID) {
		t.Fatalf("CancelQuery() = false with a query in flight")
	}
	if err := <-errCh; !errors.Is(err, context.Canceled) {
		t.Fatalf("error = %v, want context.Canceled", err)
	}
	if f.svc.CancelQuery(sess.ID) {
		t.Fatalf("CancelQuery() = true with nothing in flight")
	}
}

func TestQueryFromVoiceCarriesSpeechSegments(t *testing.T) {
	f := newFixture(t, Config{VoiceEnabled: true, SpeechSegmentMaxChars: 40}, "k")
	f.fake.fn = func(context.Context, int, []groq.Message) (groq.Completion, error) {
		return groq.Completion{Content: "**First** point here. Second point here.\n```go\nx := 1\n```"}, nil
	}
	sess := f.sessions.Create(false)
	ans, err := f.svc.Query(context.Background(), sess.ID, "explain", true)
	if err != nil {
		t.Fatalf("Query() error = %v", err)
	}
	want := []string{"First point here. Second point here.", "Code block omitted for speech."}
	if strings.Join(ans.SpeechSegments, "|") != strings.Join(want, "|") {
		t.Fatalf("SpeechSegments = %q, want %q", ans.SpeechSegments, want)
	}
}

func TestExplainPrefill(t *testing.T) {
	got, err := ExplainPrefill("  closures  ")
	if err != nil || got != `Explain: "closures"` {
		t.Fatalf("ExplainPrefill() = %q, %v", got, err)
	}
	if _, err := ExplainPrefill(" "); err == nil {
		t.Fatalf("ExplainPrefill(blank) expected error")
	}
}

func TestErrorKindHTTPStatus(t *testing.T) {
	cases := map[ErrorKind]int{
		KindInvalidRequest:    http.StatusBadRequest,
		KindMissingCredential: http.StatusPreconditionFailed,
		KindUpstream:          http.StatusBadGateway,
		KindEmptyResponse:     http.StatusBadGateway,
		KindVoiceUnsupported:  http.StatusNotImplemented,
		KindSuperseded:        http.StatusConflict,
	}
	for kind, want := range cases {
		if got := kind.HTTPStatus(); got != want {
			t.Fatalf("%s.HTTPStatus() = %d, want %d", kind, got, want)
		}
	}
}

func TestQueryRetriesRetryableStatus(t *testing.T) {
	f := newFixture(t, Config{MaxRetries: 2, RetryBackoff: time.Millisecond}, "k")
	f.fake.fn = func(_ context.Context, call int, _ []groq.Message) (groq.Completion, error) {
		if call == 0 {
			return groq.Completion{}, &groq.StatusError{StatusCode: http.StatusServiceUnavailable}
		}
		return groq.Completion{Content: "recovered"}, nil
	}
	sess := f.sessions.Create(false)

	ans, err := f.svc.Query(context.Background(), sess.ID, "q", false)
	if err != nil {
		t.Fatalf("Query() error = %v", err)
	}
	if ans.Markdown != "recovered" || len(f.fake.calls) != 2 {
		t.Fatalf("answer = %q after %d calls", ans.Markdown, len(f.fake.calls))
	}
}

func TestQueryDoesNotRetryAuthFailure(t *testing.T) {
	f := newFixture(t, Config{MaxRetries: 3, RetryBackoff: time.Millisecond}, "k")
	f.fake.fn = func(context.Context, int, []groq.Message) (groq.Completion, error) {
		return groq.Completion{}, &groq.StatusError{StatusCode: http.StatusUnauthorized}
	}
	sess := f.sessions.Create(false)

	_, err := f.svc.Query(context.Background(), sess.ID, "q", false)
	var qerr *QueryError
	if !errors.As(err, &qerr) || qerr.Kind != KindUpstream {
		t.Fatalf("error = %v, want upstream QueryError", err)
	}
	if len(f.fake.calls) != 1 {
		t.Fatalf("calls = %d, want 1", len(f.fake.calls))
	}
}

func TestQueryRedactsHistoryWhenEnabled(t *testing.T) {
	f := newFixture(t, Config{RedactHistory: true}, "k")
	f.fake.fn = func(context.Context, int, []groq.Message) (groq.Completion, error) {
		return groq.Completion{Content: "Write to sam@example.com"}, nil
	}
	sess := f.sessions.Create(false)

	ans, err := f.svc.Query(context.Background(), sess.ID, "my mail is sam@example.com", false)
	if err != nil {
		t.Fatalf("Query() error = %v", err)
	}
	if !strings.Contains(ans.Markdown, "sam@example.com") {
		t.Fatalf("the displayed answer should not be redacted: %q", ans.Markdown)
	}
	records, _ := f.history.List(context.Background(), 0)
	if len(records) != 1 {
		t.Fatalf("history = %+v", records)
	}
	if strings.Contains(records[0].Query, "@") || strings.Contains(records[0].Answer, "@") {
		t.Fatalf("history was not redacted: %+v", records[0])
	}
}

// ctxHistory refuses saves on a cancelled context, like the SQL stores do.
type ctxHistory struct {
	*history.InMemoryStore
}

func (h ctxHistory) Save(ctx context.Context, record history.ChatRecord) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return h.InMemoryStore.Save(ctx, record)
}

func TestQuerySavesHistoryAfterClientHangsUp(t *testing.T) {
	store := ctxHistory{history.NewInMemoryStore(history.DefaultCapacity)}
	sessions := session.NewManager(time.Minute)
	st := settings.NewInMemoryStore()
	key := "k"
	if _, err := st.Update(context.Background(), settings.Update{APIKey: &key}); err != nil {
		t.Fatalf("settings Update() error = %v", err)
	}

	ctx, hangUp := context.WithCancel(context.Background())
	fake := &fakeCompleter{fn: func(context.Context, int, []groq.Message) (groq.Completion, error) {
		hangUp()
		return groq.Completion{Content: "late answer"}, nil
	}}
	svc := NewService(Config{}, fake, sessions, store, st, newTestMetrics())
	sess := sessions.Create(false)

	if _, err := svc.Query(ctx, sess.ID, "question", false); err != nil {
		t.Fatalf("Query() error = %v", err)
	}
	records, _ := store.List(context.Background(), 0)
	if len(records) != 1 || records[0].Answer != "late answer" {
		t.Fatalf("history = %+v, want the answered exchange", records)
	}
}
