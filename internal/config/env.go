// Package config provides centralized configuration management.
// All environment lookups live here instead of scattered os.Getenv calls.
package config

import (
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"time"
)

// Settings holds all taskpilot environment configuration.
type Settings struct {
	// MaxConcurrent bounds simultaneous task attempts (TASKPILOT_MAX_CONCURRENT)
	MaxConcurrent int

	// TaskTimeout bounds a single task attempt (TASKPILOT_TIMEOUT_SECONDS)
	TaskTimeout time.Duration

	// AutoRetry enables retrying failed attempts (TASKPILOT_AUTO_RETRY)
	AutoRetry bool

	// MaxRetries is the number of extra attempts after the first (TASKPILOT_MAX_RETRIES)
	MaxRetries int

	// PauseOnError halts the whole plan on the first exhausted failure (TASKPILOT_PAUSE_ON_ERROR)
	PauseOnError bool

	// Model is the default LLM model for plan generation (TASKPILOT_MODEL)
	Model string

	// Provider selects the plan-generation backend (TASKPILOT_PROVIDER)
	Provider string

	// AnthropicKey is the Anthropic API key (ANTHROPIC_API_KEY)
	AnthropicKey string

	// AnthropicBaseURL overrides the Anthropic API base URL (ANTHROPIC_BASE_URL)
	AnthropicBaseURL string

	// OpenAIKey is the OpenAI API key (OPENAI_API_KEY)
	OpenAIKey string

	// OpenAIBaseURL overrides the OpenAI API base URL (OPENAI_BASE_URL)
	OpenAIBaseURL string
}

var (
	settings *Settings
	envOnce  sync.Once
)

// Env returns the singleton environment configuration.
// Thread-safe, loads once on first call.
func Env() *Settings {
	envOnce.Do(func() {
		settings = &Settings{
			MaxConcurrent:    getEnvInt("TASKPILOT_MAX_CONCURRENT", 1),
			TaskTimeout:      time.Duration(getEnvInt("TASKPILOT_TIMEOUT_SECONDS", 120)) * time.Second,
			AutoRetry:        getEnvBool("TASKPILOT_AUTO_RETRY", true),
			MaxRetries:       getEnvInt("TASKPILOT_MAX_RETRIES", 2),
			PauseOnError:     getEnvBool("TASKPILOT_PAUSE_ON_ERROR", true),
			Model:            getEnvDefault("TASKPILOT_MODEL", "claude-sonnet-4-20250514"),
			Provider:         getEnvDefault("TASKPILOT_PROVIDER", "anthropic"),
			AnthropicKey:     os.Getenv("ANTHROPIC_API_KEY"),
			AnthropicBaseURL: os.Getenv("ANTHROPIC_BASE_URL"),
			OpenAIKey:        os.Getenv("OPENAI_API_KEY"),
			OpenAIBaseURL:    os.Getenv("OPENAI_BASE_URL"),
		}
		if settings.MaxConcurrent < 1 {
			settings.MaxConcurrent = 1
		}
		if settings.MaxRetries < 0 {
			settings.MaxRetries = 0
		}
	})
	return settings
}

// ResetEnv resets the cached environment (for testing).
func ResetEnv() {
	envOnce = sync.Once{}
	settings = nil
	pathsOnce = sync.Once{}
	paths = nil
}

func getEnvDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	switch os.Getenv(key) {
	case "1", "true", "yes":
		return true
	case "0", "false", "no":
		return false
	}
	return fallback
}

// Paths holds standard taskpilot directory paths.
type Paths struct {
	// Home is the taskpilot home directory (~/.taskpilot)
	Home string

	// Data is the data directory (~/.taskpilot/data)
	Data string

	// HistoryDB is the run-history database path (~/.taskpilot/data/history.db)
	HistoryDB string
}

var (
	paths     *Paths
	pathsOnce sync.Once
)

// GetPaths returns the singleton paths configuration.
func GetPaths() *Paths {
	pathsOnce.Do(func() {
		home, err := os.UserHomeDir()
		if err != nil {
			home = "."
		}
		root := filepath.Join(home, ".taskpilot")
		paths = &Paths{
			Home:      root,
			Data:      filepath.Join(root, "data"),
			HistoryDB: filepath.Join(root, "data", "history.db"),
		}
	})
	return paths
}

// EnsureDir creates a directory if it doesn't exist.
func EnsureDir(path string) error {
	return os.MkdirAll(path, 0755)
}
