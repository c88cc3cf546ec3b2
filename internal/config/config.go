package config

import (
	"time"

	"github.com/heishia/thread-auto/pkg/config"
)

// Config stores environment configuration for Thread Auto.
type Config struct {
	Port                string
	DatabaseURL         string
	APIKey              string
	LLMProvider         string
	LLMModel            string
	LLMAPIKey           string
	LLMAPIURL           string
	EmbeddingProvider   string
	EmbeddingModel      string
	EmbeddingAPIKey     string
	EmbeddingAPIURL     string
	EmbeddingDimensions int
	ResearchProvider    string
	ResearchAPIKey      string
	ResearchAPIURL      string
	ResearchModel       string
	ThreadsAccessToken  string
	ThreadsUserID       string
	ThreadsAPIURL       string
	AutoGenEnabled      bool
	AutoGenInterval     time.Duration
	AutoGenBatchSize    int
	ReminderEnabled     bool
	StyleRefLimit       int
}

// LoadConfig loads the Thread Auto configuration from environment variables.
// DATABASE_URL is optional: without it the service runs on in-memory stores
// and loses state on restart.
func LoadConfig() Config {
	return Config{
		Port:                config.GetEnv("PORT", "18090"),
		DatabaseURL:         config.GetEnv("DATABASE_URL", ""),
		APIKey:              config.GetEnv("THREADAUTO_API_KEY", ""),
		LLMProvider:         config.GetEnv("LLM_PROVIDER", "gemini"),
		LLMModel:            config.GetEnv("LLM_MODEL", "gemini-2.5-pro"),
		LLMAPIKey:           config.GetEnv("LLM_API_KEY", ""),
		LLMAPIURL:           config.GetEnv("LLM_API_URL", ""),
		EmbeddingProvider:   config.GetEnv("EMBEDDING_PROVIDER", config.GetEnv("LLM_PROVIDER", "gemini")),
		EmbeddingModel:      config.GetEnv("EMBEDDING_MODEL", "text-embedding-004"),
		EmbeddingAPIKey:     config.GetEnv("EMBEDDING_API_KEY", config.GetEnv("LLM_API_KEY", "")),
		EmbeddingAPIURL:     config.GetEnv("EMBEDDING_API_URL", ""),
		EmbeddingDimensions: config.GetEnvInt("EMBEDDING_DIMENSIONS", 0),
		ResearchProvider:    config.GetEnv("RESEARCH_PROVIDER", "perplexity"),
		ResearchAPIKey:      config.GetEnv("RESEARCH_API_KEY", ""),
		ResearchAPIURL:      config.GetEnv("RESEARCH_API_URL", ""),
		ResearchModel:       config.GetEnv("RESEARCH_MODEL", "sonar"),
		ThreadsAccessToken:  config.GetEnv("THREADS_ACCESS_TOKEN", ""),
		ThreadsUserID:       config.GetEnv("THREADS_USER_ID", ""),
		ThreadsAPIURL:       config.GetEnv("THREADS_API_URL", ""),
		AutoGenEnabled:      config.GetEnvBool("AUTOGEN_ENABLED", false),
		AutoGenInterval:     config.GetEnvDuration("AUTOGEN_INTERVAL", 6*time.Hour),
		AutoGenBatchSize:    config.GetEnvInt("AUTOGEN_BATCH_SIZE", 4),
		ReminderEnabled:     config.GetEnvBool("REMINDER_ENABLED", true),
		StyleRefLimit:       config.GetEnvInt("STYLE_REF_LIMIT", 5),
	}
}
