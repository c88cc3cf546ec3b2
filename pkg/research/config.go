package research

import (
	"context"
	"fmt"

	"github.com/heishia/thread-auto/pkg/config"
)

const (
	providerPerplexity = "perplexity"
	providerNone       = "none"
)

// Config holds environment configuration for research providers.
type Config struct {
	Provider string
	APIKey   string
	APIURL   string
	Model    string
}

// LoadConfig loads research configuration from the environment.
func LoadConfig() Config {
	return Config{
		Provider: config.GetEnv("RESEARCH_PROVIDER", providerPerplexity),
		APIKey:   config.GetEnv("RESEARCH_API_KEY", ""),
		APIURL:   config.GetEnv("RESEARCH_API_URL", ""),
		Model:    config.GetEnv("RESEARCH_MODEL", "sonar"),
	}
}

// NewProvider creates a research provider from configuration. The "none"
// provider disables the research step entirely.
func NewProvider(cfg Config) (Researcher, error) {
	switch cfg.Provider {
	case providerPerplexity:
		return NewPerplexityProvider(cfg.APIKey, cfg.APIURL, cfg.Model)
	case providerNone:
		return NoopResearcher{}, nil
	default:
		return nil, fmt.Errorf("unsupported research provider: %s", cfg.Provider)
	}
}

// NoopResearcher skips research and always returns an empty summary.
type NoopResearcher struct{}

func (NoopResearcher) Research(ctx context.Context, topic string) (string, error) {
	return "", nil
}
