package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
)

const defaultSystemPrompt = "You are an experienced hiring manager running a mock job interview. " +
	"Ask one question at a time, follow up on the candidate's answers, and keep replies short."

// ServerConfig holds configuration for the interview coach server and CLI.
type ServerConfig struct {
	Addr   string
	DBPath string

	Store          string
	PostgresDSN    string
	DynamoTable    string
	DynamoRegion   string
	DynamoEndpoint string

	Provider               string
	APIKey                 string
	ChatCompletionsURL     string
	Model                  string
	RequestTimeoutSeconds  int
	StreamWallTimeSeconds  int
	MaxMessageChars        int
	DummyScript            string
	SystemPrompt           string
	HistoryWindow          int
	CircuitThreshold       int
	CircuitCooldownSeconds int
	AllowedOrigins         []string
	DebugLogging           bool
}

// LoadServerConfig reads server configuration from environment variables.
func LoadServerConfig() (ServerConfig, error) {
	provider := envOrDefault("LLM_PROVIDER", "openai")
	if provider != "openai" && provider != "dummy" {
		return ServerConfig{}, fmt.Errorf("LLM_PROVIDER must be openai or dummy, got %q", provider)
	}
	apiKey := os.Getenv("LLM_API_KEY")
	if provider == "openai" && apiKey == "" {
		return ServerConfig{}, fmt.Errorf("LLM_API_KEY is required in environment when LLM_PROVIDER=openai")
	}

	cfg := ServerConfig{
		Addr:                   envOrDefault("COACH_ADDR", ":8080"),
		DBPath:                 envOrDefault("COACH_DB_PATH", "/state/coach.db"),
		Store:                  envOrDefault("COACH_STORE", "sqlite"),
		PostgresDSN:            os.Getenv("COACH_POSTGRES_DSN"),
		DynamoTable:            envOrDefault("COACH_DYNAMO_TABLE", "interview_conversations"),
		DynamoRegion:           envOrDefault("COACH_DYNAMO_REGION", "us-east-1"),
		DynamoEndpoint:         os.Getenv("COACH_DYNAMO_ENDPOINT"),
		Provider:               provider,
		APIKey:                 apiKey,
		ChatCompletionsURL:     envOrDefault("LLM_CHAT_COMPLETIONS_URL", "https://api.openai.com/v1/chat/completions"),
		Model:                  envOrDefault("LLM_MODEL", "gpt-4o-mini"),
		RequestTimeoutSeconds:  envIntOrDefault("LLM_REQUEST_TIMEOUT_SECONDS", 60),
		StreamWallTimeSeconds:  envIntOrDefault("LLM_STREAM_WALL_TIME_SECONDS", 120),
		MaxMessageChars:        envIntOrDefault("COACH_MAX_MESSAGE_CHARS", 8000),
		DummyScript:            envOrDefault("LLM_DUMMY_SCRIPT", ""),
		SystemPrompt:           envOrDefault("COACH_SYSTEM_PROMPT", defaultSystemPrompt),
		HistoryWindow:          envIntOrDefault("COACH_HISTORY_WINDOW", 20),
		CircuitThreshold:       envIntOrDefault("COACH_CIRCUIT_THRESHOLD", 3),
		CircuitCooldownSeconds: envIntOrDefault("COACH_CIRCUIT_COOLDOWN_SECONDS", 30),
		AllowedOrigins:         envListOrDefault("COACH_ALLOWED_ORIGINS", []string{"*"}),
		DebugLogging:           envBoolOrDefault("COACH_DEBUG", false),
	}

	switch cfg.Store {
	case "memory", "sqlite", "dynamodb":
	case "postgres":
		if cfg.PostgresDSN == "" {
			return ServerConfig{}, fmt.Errorf("COACH_POSTGRES_DSN is required in environment when COACH_STORE=postgres")
		}
	default:
		return ServerConfig{}, fmt.Errorf("COACH_STORE must be one of sqlite, postgres, dynamodb, memory, got %q", cfg.Store)
	}

	positive := []struct {
		key   string
		value int
	}{
		{"LLM_REQUEST_TIMEOUT_SECONDS", cfg.RequestTimeoutSeconds},
		{"LLM_STREAM_WALL_TIME_SECONDS", cfg.StreamWallTimeSeconds},
		{"COACH_CIRCUIT_THRESHOLD", cfg.CircuitThreshold},
		{"COACH_CIRCUIT_COOLDOWN_SECONDS", cfg.CircuitCooldownSeconds},
	}
	for _, p := range positive {
		if p.value <= 0 {
			return ServerConfig{}, fmt.Errorf("%s must be > 0, got %d", p.key, p.value)
		}
	}
	if cfg.HistoryWindow < 0 {
		return ServerConfig{}, fmt.Errorf("COACH_HISTORY_WINDOW must be >= 0, got %d", cfg.HistoryWindow)
	}
	if cfg.MaxMessageChars < 0 {
		return ServerConfig{}, fmt.Errorf("COACH_MAX_MESSAGE_CHARS must be >= 0, got %d", cfg.MaxMessageChars)
	}
	return cfg, nil
}

func envOrDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envIntOrDefault(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}

func envBoolOrDefault(key string, fallback bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	return v == "1" || strings.EqualFold(v, "true")
}

func envListOrDefault(key string, fallback []string) []string {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	var out []string
	for _, part := range strings.Split(v, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	if len(out) == 0 {
		return fallback
	}
	return out
}
