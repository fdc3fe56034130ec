package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"github.com/spf13/pflag"

	"github.com/ent0n29/webmind/internal/protocol"
)

type options struct {
	baseURL        string
	turns          int
	voice          bool
	conversation   bool
	startDelay     time.Duration
	interTurnDelay time.Duration
	turnTimeout    time.Duration
	texts          []string
	verbose        bool
}

type createSessionResponse struct {
	SessionID string `json:"session_id"`
}

type wsEnvelope struct {
	Type   string `json:"type"`
	TurnID string `json:"turn_id,omitempty"`
	Code   string `json:"code,omitempty"`
	Detail string `json:"detail,omitempty"`
	Seq    int    `json:"seq,omitempty"`
	Reason string `json:"reason,omitempty"`
}

// turnResult is the client-side view of one query round trip.
type turnResult struct {
	answer time.Duration
	speech time.Duration
	err    string
}

var defaultQueries = []string{
	"Reply in three words: what is Go?",
	"Reply in one sentence: what is a goroutine?",
	"Summarize this page content",
	"Reply with a two row markdown table of Go keywords.",
}

func main() {
	cfg, err := parseFlags(os.Args[1:])
	if errors.Is(err, pflag.ErrHelp) {
		return
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "perfpanel: %v\n", err)
		os.Exit(2)
	}
	if err := run(cfg); err != nil {
		fmt.Fprintf(os.Stderr, "perfpanel: %v\n", err)
		os.Exit(1)
	}
}

func parseFlags(args []string) (options, error) {
	var cfg options
	var textsRaw string
	var startDelayMS int
	var interTurnMS int
	var turnTimeoutMS int

	fs := pflag.NewFlagSet("perfpanel", pflag.ContinueOnError)
	fs.StringVar(&cfg.baseURL, "base-url", "http://127.0.0.1:8787", "webmind base URL")
	fs.IntVar(&cfg.turns, "turns", 8, "number of queries to replay")
	fs.BoolVar(&cfg.voice, "voice", false, "send queries as final transcripts and ack every speech segment")
	fs.BoolVar(&cfg.conversation, "conversation", false, "open the session in conversation mode")
	fs.IntVar(&startDelayMS, "start-delay-ms", 200, "delay before the first query in milliseconds")
	fs.IntVar(&interTurnMS, "inter-turn-ms", 150, "delay between queries in milliseconds")
	fs.IntVar(&turnTimeoutMS, "turn-timeout-ms", 30000, "timeout waiting for each answer in milliseconds")
	fs.StringVar(&textsRaw, "texts", "", "queries separated by '|' (optional)")
	fs.BoolVar(&cfg.verbose, "verbose", true, "print replay progress")
	if err := fs.Parse(args); err != nil {
		return options{}, err
	}

	cfg.baseURL = strings.TrimRight(strings.TrimSpace(cfg.baseURL), "/")
	if cfg.baseURL == "" {
		return options{}, fmt.Errorf("base-url is required")
	}
	if cfg.turns <= 0 {
		return options{}, fmt.Errorf("turns must be > 0")
	}
	if startDelayMS < 0 {
		startDelayMS = 0
	}
	if interTurnMS < 0 {
		interTurnMS = 0
	}
	if turnTimeoutMS < 1000 {
		turnTimeoutMS = 1000
	}
	cfg.startDelay = time.Duration(startDelayMS) * time.Millisecond
	cfg.interTurnDelay = time.Duration(interTurnMS) * time.Millisecond
	cfg.turnTimeout = time.Duration(turnTimeoutMS) * time.Millisecond

	if strings.TrimSpace(textsRaw) == "" {
		cfg.texts = append([]string(nil), defaultQueries...)
	} else {
		for _, part := range strings.Split(textsRaw, "|") {
			if t := strings.TrimSpace(part); t != "" {
				cfg.texts = append(cfg.texts, t)
			}
		}
		if len(cfg.texts) == 0 {
			return options{}, fmt.Errorf("texts produced no non-empty queries")
		}
	}
	return cfg, nil
}

func run(cfg options) error {
	ctx, cancel := context.WithTimeout(context.Background(), 8*time.Minute)
	defer cancel()

	httpClient := &http.Client{Timeout: 45 * time.Second}
	sessionID, err := createSession(ctx, httpClient, cfg)
	if err != nil {
		return fmt.Errorf("create session: %w", err)
	}
	defer func() {
		_ = endSession(context.Background(), httpClient, cfg.baseURL, sessionID)
	}()

	if cfg.verbose {
		fmt.Printf("perfpanel: session=%s turns=%d voice=%v\n", sessionID, cfg.turns, cfg.voice)
	}

	wsURL, err := wsURLForSession(cfg.baseURL, sessionID)
	if err != nil {
		return fmt.Errorf("build ws URL: %w", err)
	}
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, wsURL, nil)
	if err != nil {
		return fmt.Errorf("open websocket: %w", err)
	}
	defer conn.Close()

	if cfg.startDelay > 0 {
		time.Sleep(cfg.startDelay)
	}

	frames := make(chan wsEnvelope, 64)
	readErrCh := make(chan error, 1)
	go readLoop(conn, frames, readErrCh)

	results := make([]turnResult, 0, cfg.turns)
	for i := 0; i < cfg.turns; i++ {
		text := cfg.texts[i%len(cfg.texts)]
		if cfg.verbose {
			fmt.Printf("perfpanel: turn %d/%d text=%q\n", i+1, cfg.turns, text)
		}
		res, err := replayTurn(conn, sessionID, text, cfg, frames, readErrCh)
		if err != nil {
			return fmt.Errorf("turn %d: %w", i+1, err)
		}
		if cfg.verbose {
			if res.err != "" {
				fmt.Printf("perfpanel:   error %s\n", res.err)
			} else {
				fmt.Printf("perfpanel:   answer=%s speech=%s\n", res.answer.Round(time.Millisecond), res.speech.Round(time.Millisecond))
			}
		}
		results = append(results, res)
		if cfg.interTurnDelay > 0 && i < cfg.turns-1 {
			time.Sleep(cfg.interTurnDelay)
		}
	}

	fmt.Println(summarize(results))
	if err := printServerLatency(ctx, httpClient, cfg.baseURL); err != nil {
		fmt.Fprintf(os.Stderr, "perfpanel: server latency unavailable: %v\n", err)
	}
	return nil
}

func replayTurn(conn *websocket.Conn, sessionID, text string, cfg options, frames <-chan wsEnvelope, readErrCh <-chan error) (turnResult, error) {
	var msg any = protocol.ClientQuery{Type: protocol.TypeClientQuery, SessionID: sessionID, Text: text}
	if cfg.voice {
		msg = protocol.ClientTranscript{Type: protocol.TypeClientTranscript, SessionID: sessionID, Text: text, Final: true}
	}
	started := time.Now()
	if err := conn.WriteJSON(msg); err != nil {
		return turnResult{}, err
	}

	timer := time.NewTimer(cfg.turnTimeout)
	defer timer.Stop()
	var res turnResult
	for {
		select {
		case err := <-readErrCh:
			return turnResult{}, fmt.Errorf("ws read: %w", err)
		case <-timer.C:
			return turnResult{}, fmt.Errorf("timeout after %s", cfg.turnTimeout)
		case env := <-frames:
			switch env.Type {
			case string(protocol.TypeAssistantAnswer):
				res.answer = time.Since(started)
				if !cfg.voice {
					return res, nil
				}
			case string(protocol.TypeSpeechSegment):
				ack := protocol.ClientControl{Type: protocol.TypeClientControl, SessionID: sessionID, Action: protocol.ActionSpeechDone, Seq: env.Seq}
				if err := conn.WriteJSON(ack); err != nil {
					return turnResult{}, err
				}
			case string(protocol.TypeSpeechEnd):
				res.speech = time.Since(started)
				return res, nil
			case string(protocol.TypeErrorEvent):
				res.err = env.Code + ": " + env.Detail
				return res, nil
			}
		}
	}
}

func createSession(ctx context.Context, client *http.Client, cfg options) (string, error) {
	payload, err := json.Marshal(map[string]bool{"conversation_mode": cfg.conversation})
	if err != nil {
		return "", err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, cfg.baseURL+"/v1/panel/session", bytes.NewReader(payload))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")

	res, err := client.Do(req)
	if err != nil {
		return "", err
	}
	defer res.Body.Close()
	body, err := io.ReadAll(io.LimitReader(res.Body, 1<<20))
	if err != nil {
		return "", err
	}
	if res.StatusCode != http.StatusCreated {
		return "", fmt.Errorf("HTTP %d: %s", res.StatusCode, strings.TrimSpace(string(body)))
	}

	var out createSessionResponse
	if err := json.Unmarshal(body, &out); err != nil {
		return "", err
	}
	if strings.TrimSpace(out.SessionID) == "" {
		return "", fmt.Errorf("missing session_id in response")
	}
	return out.SessionID, nil
}

func endSession(ctx context.Context, client *http.Client, baseURL, sessionID string) error {
	sessionID = strings.TrimSpace(sessionID)
	if sessionID == "" {
		return nil
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, baseURL+"/v1/panel/session/"+url.PathEscape(sessionID)+"/end", nil)
	if err != nil {
		return err
	}
	res, err := client.Do(req)
	if err != nil {
		return err
	}
	defer res.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(res.Body, 1<<20))
	return nil
}

func printServerLatency(ctx context.Context, client *http.Client, baseURL string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, baseURL+"/v1/perf/latency", nil)
	if err != nil {
		return err
	}
	res, err := client.Do(req)
	if err != nil {
		return err
	}
	defer res.Body.Close()
	if res.StatusCode != http.StatusOK {
		return fmt.Errorf("HTTP %d", res.StatusCode)
	}
	var snap struct {
		Stages []struct {
			Stage string  `json:"stage"`
			Count int     `json:"samples"`
			P50   float64 `json:"p50_ms"`
			P95   float64 `json:"p95_ms"`
		} `json:"stages"`
	}
	if err := json.NewDecoder(res.Body).Decode(&snap); err != nil {
		return err
	}
	for _, st := range snap.Stages {
		fmt.Printf("server %-24s n=%-4d p50=%.1fms p95=%.1fms\n", st.Stage, st.Count, st.P50, st.P95)
	}
	return nil
}

func wsURLForSession(baseURL, sessionID string) (string, error) {
	u, err := url.Parse(strings.TrimSpace(baseURL))
	if err != nil {
		return "", err
	}
	switch strings.ToLower(u.Scheme) {
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	default:
		return "", fmt.Errorf("unsupported base-url scheme %q", u.Scheme)
	}
	if strings.TrimSpace(u.Host) == "" {
		return "", fmt.Errorf("base-url host is required")
	}
	u.Path = strings.TrimRight(u.Path, "/") + "/v1/panel/session/ws"
	q := u.Query()
	q.Set("session_id", sessionID)
	u.RawQuery = q.Encode()
	return u.String(), nil
}

func readLoop(conn *websocket.Conn, frames chan<- wsEnvelope, readErrCh chan<- error) {
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			select {
			case readErrCh <- err:
			default:
			}
			return
		}
		var env wsEnvelope
		if err := json.Unmarshal(data, &env); err != nil {
			continue
		}
		frames <- env
	}
}

// summarize reports client-side percentiles over successful turns.
func summarize(results []turnResult) string {
	var answers, speech []time.Duration
	failed := 0
	for _, r := range results {
		if r.err != "" {
			failed++
			continue
		}
		answers = append(answers, r.answer)
		if r.speech > 0 {
			speech = append(speech, r.speech)
		}
	}
	var b strings.Builder
	fmt.Fprintf(&b, "perfpanel: turns=%d failed=%d", len(results), failed)
	if len(answers) > 0 {
		fmt.Fprintf(&b, " answer_p50=%s answer_p95=%s", percentile(answers, 0.50), percentile(answers, 0.95))
	}
	if len(speech) > 0 {
		fmt.Fprintf(&b, " speech_p50=%s speech_p95=%s", percentile(speech, 0.50), percentile(speech, 0.95))
	}
	return b.String()
}

// percentile uses nearest rank over a sorted copy.
func percentile(values []time.Duration, q float64) time.Duration {
	if len(values) == 0 {
		return 0
	}
	sorted := append([]time.Duration(nil), values...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })
	idx := int(q*float64(len(sorted))+0.5) - 1
	if idx < 0 {
		idx = 0
	}
	if idx >= len(sorted) {
		idx = len(sorted) - 1
	}
	return sorted[idx].Round(time.Millisecond)
}
