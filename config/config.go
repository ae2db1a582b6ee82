// Package config provides the agentloop runtime configuration.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

// Supported model providers.
const (
	ProviderOpenAI    = "openai"
	ProviderAnthropic = "anthropic"
	ProviderOllama    = "ollama"
)

// DefaultOllamaBaseURL is the OpenAI compatible endpoint of a local Ollama server.
const DefaultOllamaBaseURL = "http://localhost:11434/v1"

// Config holds all runtime configuration.
type Config struct {
	Provider       string
	Model          string
	BaseURL        string
	APIKey         string
	DBPath         string // empty => in-memory store
	ConversationID string
	MaxCycles      int
	ParallelTools  bool
	Stream         bool
	HumanAddr      string // empty => console confirmation
	SearchCorpus   string
	Instructions   string
	LogLevel       string
	LogFormat      string

	// DotEnvLoaded reports whether a .env file was found.
	DotEnvLoaded bool
}

// Load reads a .env file from the working directory, if present, and then
// the AGENTLOOP_* environment variables. Variables already set in the
// environment take precedence over the .env file.
func Load() (*Config, error) {
	loaded := true
	if err := godotenv.Load(); err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("load .env: %w", err)
		}
		loaded = false
	}

	provider := strings.ToLower(getEnv("AGENTLOOP_PROVIDER", ProviderOllama))

	baseURL := getEnv("AGENTLOOP_BASE_URL", "")
	if baseURL == "" && provider == ProviderOllama {
		baseURL = DefaultOllamaBaseURL
	}

	cfg := &Config{
		Provider:       provider,
		Model:          getEnv("AGENTLOOP_MODEL", "qwen3:8b"),
		BaseURL:        baseURL,
		APIKey:         getEnv("AGENTLOOP_API_KEY", ""),
		DBPath:         getEnv("AGENTLOOP_DB_PATH", ""),
		ConversationID: getEnv("AGENTLOOP_CONVERSATION_ID", "default"),
		MaxCycles:      getEnvInt("AGENTLOOP_MAX_CYCLES", 10),
		ParallelTools:  getEnvBool("AGENTLOOP_PARALLEL_TOOLS", false),
		Stream:         getEnvBool("AGENTLOOP_STREAM", true),
		HumanAddr:      getEnv("AGENTLOOP_HUMAN_ADDR", ""),
		SearchCorpus:   getEnv("AGENTLOOP_SEARCH_CORPUS", ""),
		Instructions:   getEnv("AGENTLOOP_INSTRUCTIONS", ""),
		LogLevel:       getEnv("AGENTLOOP_LOG_LEVEL", "warn"),
		LogFormat:      getEnv("AGENTLOOP_LOG_FORMAT", "text"),
		DotEnvLoaded:   loaded,
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// Validate checks that the configuration is usable.
func (c *Config) Validate() error {
	switch c.Provider {
	case ProviderOpenAI, ProviderAnthropic, ProviderOllama:
	default:
		return fmt.Errorf("AGENTLOOP_PROVIDER must be one of openai, anthropic, ollama (got %q)", c.Provider)
	}
	if c.Model == "" {
		return fmt.Errorf("AGENTLOOP_MODEL cannot be empty")
	}
	if c.ConversationID == "" {
		return fmt.Errorf("AGENTLOOP_CONVERSATION_ID cannot be empty")
	}
	if c.MaxCycles <= 0 {
		return fmt.Errorf("AGENTLOOP_MAX_CYCLES must be > 0")
	}
	switch c.LogFormat {
	case "text", "json":
	default:
		return fmt.Errorf("AGENTLOOP_LOG_FORMAT must be text or json (got %q)", c.LogFormat)
	}
	return nil
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "1", "true", "yes", "on":
		return true
	case "0", "false", "no", "off":
		return false
	default:
		return fallback
	}
}

func getEnvInt(key string, fallback int) int {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	n, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil {
		return fallback
	}
	return n
}
