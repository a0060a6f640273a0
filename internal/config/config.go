package config

import (
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

// Config holds all configuration for the application.
type Config struct {
	Port string
	Env  string

	// Storage. DatabaseURL selects Postgres; when empty, SQLitePath is used.
	DatabaseURL string
	SQLitePath  string

	// RedisURL backs the resumable stream context. When empty, resume is
	// unsupported and chat falls back to one-shot streaming.
	RedisURL string

	// Model provider (OpenAI-compatible).
	LLMBaseURL     string
	LLMAPIKey      string
	ChatModel      string
	ReasoningModel string
	TitleModel     string
	VisionModel    string

	// Embedded widget surface.
	EmbedAllowedOrigins []string // exact scheme+host matches
	EmbedCapGeneral     int
	EmbedCapCSV         int
	EmbedCapImage       int

	// Expertise documents (GitHub-hosted).
	ExpertiseRepo  string // owner/repo
	ExpertiseToken string
}

// Load reads configuration from environment variables.
// In development, it loads from .env file if present.
// In production, it panics on missing required variables.
func Load() *Config {
	// Load .env file if it exists (for development)
	_ = godotenv.Load()

	cfg := &Config{
		Port:            getEnv("PORT", "8080"),
		Env:             getEnv("ENV", "development"),
		DatabaseURL:     os.Getenv("DATABASE_URL"),
		SQLitePath:      getEnv("SQLITE_PATH", "nisa.db"),
		RedisURL:        os.Getenv("REDIS_URL"),
		LLMBaseURL:      getEnv("LLM_BASE_URL", "https://api.openai.com/v1"),
		LLMAPIKey:       os.Getenv("LLM_API_KEY"),
		ChatModel:       getEnv("CHAT_MODEL", "gpt-4o"),
		ReasoningModel:  getEnv("REASONING_MODEL", "o3-mini"),
		TitleModel:      getEnv("TITLE_MODEL", "gpt-4o-mini"),
		VisionModel:     getEnv("VISION_MODEL", "gpt-4o-mini"),
		EmbedCapGeneral: getEnvInt("EMBED_CAP_GENERAL", 50000),
		EmbedCapCSV:     getEnvInt("EMBED_CAP_CSV", 100000),
		EmbedCapImage:   getEnvInt("EMBED_CAP_IMAGE", 75000),
		ExpertiseRepo:   os.Getenv("EXPERTISE_REPO"),
		ExpertiseToken:  os.Getenv("EXPERTISE_TOKEN"),
	}

	// Parse embed origins (comma-separated, exact scheme+host)
	if origins := os.Getenv("EMBED_ALLOWED_ORIGINS"); origins != "" {
		for _, entry := range strings.Split(origins, ",") {
			entry = strings.TrimSpace(entry)
			if entry != "" {
				cfg.EmbedAllowedOrigins = append(cfg.EmbedAllowedOrigins, entry)
			}
		}
	}

	// In production, require the provider key and a real database
	if cfg.Env == "production" {
		if cfg.LLMAPIKey == "" {
			panic("LLM_API_KEY is required in production")
		}
		if cfg.DatabaseURL == "" {
			panic("DATABASE_URL is required in production")
		}
	}

	return cfg
}

// IsDevelopment returns true if running in development mode.
func (c *Config) IsDevelopment() bool {
	return c.Env == "development"
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if n, err := strconv.Atoi(value); err == nil {
			return n
		}
	}
	return defaultValue
}
