package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config contains all runtime settings for the panel companion service.
type Config struct {
	BindAddr                 string
	ShutdownTimeout          time.Duration
	SessionInactivityTimeout time.Duration
	MetricsNamespace         string

	AllowAnyOrigin bool
	AllowedOrigins []string

	GroqAPIURL       string
	GroqAPIKey       string
	GroqDefaultModel string
	GroqTimeout      time.Duration
	GroqTemperature  float64
	GroqMaxTokens    int
	GroqMaxRetries   int
	GroqRetryBackoff time.Duration

	DatabaseURL         string
	SQLitePath          string
	BoltDir             string
	HistoryCapacity     int
	HistoryRedactPII    bool
	PageContextMaxChars int

	VoiceEnabled          bool
	SpeechSegmentMaxChars int
	SpeechAckTimeout      time.Duration
}

// Load reads environment variables and applies safe defaults.
func Load() (Config, error) {
	cfg := Config{
		BindAddr:         envOrDefault("APP_BIND_ADDR", "127.0.0.1:8787"),
		MetricsNamespace: envOrDefault("APP_METRICS_NAMESPACE", "webmind"),
		AllowAnyOrigin:   false,
		AllowedOrigins:   listFromEnv("APP_ALLOWED_ORIGINS"),
		GroqAPIURL:       envOrDefault("GROQ_API_URL", "https://api.groq.com/openai/v1/chat/completions"),
		GroqAPIKey:       stringsTrimSpace("GROQ_API_KEY"),
		GroqDefaultModel: envOrDefault("GROQ_DEFAULT_MODEL", "llama3-70b-8192"),
		GroqTimeout:      60 * time.Second,
		GroqTemperature:  0.7,
		GroqMaxTokens:    800,
		GroqRetryBackoff: 500 * time.Millisecond,
		DatabaseURL:      stringsTrimSpace("DATABASE_URL"),
		SQLitePath:       stringsTrimSpace("SQLITE_PATH"),
		BoltDir:          stringsTrimSpace("BOLT_DIR"),
		// Capacity of the persisted chat list.
		HistoryCapacity:          20,
		PageContextMaxChars:      1500,
		VoiceEnabled:             true,
		SpeechSegmentMaxChars:    200,
		SpeechAckTimeout:         30 * time.Second,
		ShutdownTimeout:          15 * time.Second,
		SessionInactivityTimeout: 30 * time.Minute,
	}
	var err error
	cfg.ShutdownTimeout, err = durationFromEnv("APP_SHUTDOWN_TIMEOUT", cfg.ShutdownTimeout)
	if err != nil {
		return Config{}, err
	}
	cfg.SessionInactivityTimeout, err = durationFromEnv("APP_SESSION_INACTIVITY_TIMEOUT", cfg.SessionInactivityTimeout)
	if err != nil {
		return Config{}, err
	}
	cfg.AllowAnyOrigin, err = boolFromEnv("APP_ALLOW_ANY_ORIGIN", cfg.AllowAnyOrigin)
	if err != nil {
		return Config{}, err
	}
	cfg.GroqTimeout, err = durationFromEnv("GROQ_TIMEOUT", cfg.GroqTimeout)
	if err != nil {
		return Config{}, err
	}
	cfg.GroqTemperature, err = floatFromEnv("GROQ_TEMPERATURE", cfg.GroqTemperature)
	if err != nil {
		return Config{}, err
	}
	cfg.GroqMaxTokens, err = intFromEnv("GROQ_MAX_TOKENS", cfg.GroqMaxTokens)
	if err != nil {
		return Config{}, err
	}
	cfg.GroqMaxRetries, err = intFromEnv("GROQ_MAX_RETRIES", cfg.GroqMaxRetries)
	if err != nil {
		return Config{}, err
	}
	cfg.GroqRetryBackoff, err = durationFromEnv("GROQ_RETRY_BACKOFF", cfg.GroqRetryBackoff)
	if err != nil {
		return Config{}, err
	}
	cfg.HistoryCapacity, err = intFromEnv("HISTORY_CAPACITY", cfg.HistoryCapacity)
	if err != nil {
		return Config{}, err
	}
	cfg.HistoryRedactPII, err = boolFromEnv("HISTORY_REDACT_PII", cfg.HistoryRedactPII)
	if err != nil {
		return Config{}, err
	}
	cfg.PageContextMaxChars, err = intFromEnv("PAGE_CONTEXT_MAX_CHARS", cfg.PageContextMaxChars)
	if err != nil {
		return Config{}, err
	}
	cfg.VoiceEnabled, err = boolFromEnv("VOICE_ENABLED", cfg.VoiceEnabled)
	if err != nil {
		return Config{}, err
	}
	cfg.SpeechSegmentMaxChars, err = intFromEnv("SPEECH_SEGMENT_MAX_CHARS", cfg.SpeechSegmentMaxChars)
	if err != nil {
		return Config{}, err
	}
	cfg.SpeechAckTimeout, err = durationFromEnv("SPEECH_ACK_TIMEOUT", cfg.SpeechAckTimeout)
	if err != nil {
		return Config{}, err
	}

	if cfg.SessionInactivityTimeout < 5*time.Second {
		return Config{}, fmt.Errorf("APP_SESSION_INACTIVITY_TIMEOUT must be at least 5s")
	}
	if cfg.GroqTimeout <= 0 {
		return Config{}, fmt.Errorf("GROQ_TIMEOUT must be positive")
	}
	if cfg.GroqTemperature < 0 || cfg.GroqTemperature > 2 {
		return Config{}, fmt.Errorf("GROQ_TEMPERATURE must be between 0 and 2")
	}
	if cfg.GroqMaxTokens <= 0 {
		return Config{}, fmt.Errorf("GROQ_MAX_TOKENS must be positive")
	}
	if cfg.GroqMaxRetries < 0 || cfg.GroqMaxRetries > 5 {
		return Config{}, fmt.Errorf("GROQ_MAX_RETRIES must be between 0 and 5")
	}
	if cfg.GroqMaxRetries > 0 && cfg.GroqRetryBackoff <= 0 {
		return Config{}, fmt.Errorf("GROQ_RETRY_BACKOFF must be positive when retries are enabled")
	}
	if cfg.HistoryCapacity <= 0 {
		return Config{}, fmt.Errorf("HISTORY_CAPACITY must be positive")
	}
	if cfg.PageContextMaxChars <= 0 {
		return Config{}, fmt.Errorf("PAGE_CONTEXT_MAX_CHARS must be positive")
	}
	if cfg.SpeechSegmentMaxChars < 20 {
		return Config{}, fmt.Errorf("SPEECH_SEGMENT_MAX_CHARS must be at least 20")
	}
	if cfg.SpeechAckTimeout <= 0 {
		return Config{}, fmt.Errorf("SPEECH_ACK_TIMEOUT must be positive")
	}

	return cfg, nil
}

func envOrDefault(key, fallback string) string {
	v := stringsTrimSpace(key)
	if v == "" {
		return fallback
	}
	return v
}

func stringsTrimSpace(key string) string {
	return strings.TrimSpace(os.Getenv(key))
}

func listFromEnv(key string) []string {
	var out []string
	for _, part := range strings.Split(stringsTrimSpace(key), ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func durationFromEnv(key string, fallback time.Duration) (time.Duration, error) {
	v := stringsTrimSpace(key)
	if v == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("%s parse error: %w", key, err)
	}
	return d, nil
}

func intFromEnv(key string, fallback int) (int, error) {
	v := stringsTrimSpace(key)
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%s parse error: %w", key, err)
	}
	return n, nil
}

func floatFromEnv(key string, fallback float64) (float64, error) {
	v := stringsTrimSpace(key)
	if v == "" {
		return fallback, nil
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0, fmt.Errorf("%s parse error: %w", key, err)
	}
	return f, nil
}

func boolFromEnv(key string, fallback bool) (bool, error) {
	v := strings.ToLower(stringsTrimSpace(key))
	if v == "" {
		return fallback, nil
	}
	switch v {
	case "1", "true", "t", "yes", "y", "on":
		return true, nil
	case "0", "false", "f", "no", "n", "off":
		return false, nil
	default:
		return false, fmt.Errorf("%s parse error: expected bool", key)
	}
}
