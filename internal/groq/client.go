package groq

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/ent0n29/webmind/internal/reliability"
)

const (
	DefaultURL         = "https://api.groq.com/openai/v1/chat/completions"
	DefaultModel       = "llama3-70b-8192"
	DefaultTemperature = 0.7
	DefaultMaxTokens   = 800
	DefaultTimeout     = 60 * time.Second
)

var (
	ErrMissingAPIKey     = errors.New("missing api key")
	ErrEmptyResponse     = errors.New("response has no choices")
	ErrMalformedResponse = errors.New("malformed response")
)

type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message is one entry of the chat-completion messages array.
type Message struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// Completion is the parsed assistant reply.
type Completion struct {
	Content          string
	Model            string
	PromptTokens     int
	CompletionTokens int
}

// StatusError reports a non-2xx answer from the completions endpoint.
type StatusError struct {
	StatusCode int
	Message    string
}

func (e *StatusError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("API request failed: %d (%s)", e.StatusCode, e.Message)
	}
	return fmt.Sprintf("API request failed: %d", e.StatusCode)
}

// Retryable reports whether a later attempt could succeed. The client itself
// never retries; callers wrap Complete in reliability.Do.
func (e *StatusError) Retryable() bool {
	return reliability.IsRetryableHTTPStatus(e.StatusCode)
}

type Config struct {
	URL         string
	Timeout     time.Duration
	Temperature float64
	MaxTokens   int
	HTTPClient  *http.Client
}

// Client calls a Groq-compatible chat-completions endpoint, one attempt per call.
type Client struct {
	url         string
	temperature float64
	maxTokens   int
	client      *http.Client
}

func NewClient(cfg Config) *Client {
	if strings.TrimSpace(cfg.URL) == "" {
		cfg.URL = DefaultURL
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.Temperature == 0 {
		cfg.Temperature = DefaultTemperature
	}
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = DefaultMaxTokens
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: cfg.Timeout}
	}
	return &Client{
		url:         strings.TrimSpace(cfg.URL),
		temperature: cfg.Temperature,
		maxTokens:   cfg.MaxTokens,
		client:      httpClient,
	}
}

type chatRequest struct {
	Model       string    `json:"model"`
	Messages    []Message `json:"messages"`
	Temperature float64   `json:"temperature"`
	MaxTokens   int       `json:"max_tokens"`
}

type chatResponse struct {
	Model   string `json:"model"`
	Choices []struct {
		Message struct {
			Role    string `json:"role"`
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
	Usage *struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
	} `json:"usage"`
}

type errorResponse struct {
	Error struct {
		Message string `json:"message"`
		Type    string `json:"type"`
	} `json:"error"`
}

// Complete sends messages to model and returns the first choice's content.
func (c *Client) Complete(ctx context.Context, apiKey, model string, messages []Message) (Completion, error) {
	apiKey = strings.TrimSpace(apiKey)
	if apiKey == "" {
		return Completion{}, ErrMissingAPIKey
	}
	if strings.TrimSpace(model) == "" {
		model = DefaultModel
	}

	payload, err := json.Marshal(chatRequest{
		Model:       model,
		Messages:    messages,
		Temperature: c.temperature,
		MaxTokens:   c.maxTokens,
	})
	if err != nil {
		return Completion{}, fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(payload))
	if err != nil {
		return Completion{}, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+apiKey)

	res, err := c.client.Do(req)
	if err != nil {
		return Completion{}, fmt.Errorf("send request: %w", err)
	}
	defer res.Body.Close()

	if res.StatusCode < 200 || res.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(res.Body, 4<<10))
		statusErr := &StatusError{StatusCode: res.StatusCode}
		var errResp errorResponse
		if json.Unmarshal(body, &errResp) == nil {
			statusErr.Message = errResp.Error.Message
		}
		return Completion{}, statusErr
	}

	body, err := io.ReadAll(res.Body)
	if err != nil {
		return Completion{}, fmt.Errorf("read response: %w", err)
	}

	var parsed chatResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return Completion{}, fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}
	if len(parsed.Choices) == 0 {
		return Completion{}, ErrEmptyResponse
	}
	content := parsed.Choices[0].Message.Content
	if strings.TrimSpace(content) == "" {
		return Completion{}, ErrEmptyResponse
	}

	out := Completion{Content: content, Model: parsed.Model}
	if parsed.Usage != nil {
		out.PromptTokens = parsed.Usage.PromptTokens
		out.CompletionTokens = parsed.Usage.CompletionTokens
	}
	return out, nil
}
