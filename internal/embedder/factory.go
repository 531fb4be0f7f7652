package embedder

import (
	"fmt"
	"os"
	"strings"
	"time"
)

// Config holds embedder configuration
type Config struct {
	Provider  string // local, openai, jina, ollama; empty or "auto" detects from API keys
	Model     string
	BaseURL   string
	APIKey    string
	Timeout   time.Duration
	CacheSize int
	RateLimit float64 // Requests per second for remote providers, 0 disables
	Burst     int
}

// New creates an embedder with explicit configuration
func New(cfg Config) (Embedder, error) {
	var cache *Cache
	if cfg.CacheSize > 0 {
		cache = NewCache(cfg.CacheSize)
	}

	opts := ProviderOptions{
		APIKey:  cfg.APIKey,
		Model:   cfg.Model,
		BaseURL: cfg.BaseURL,
		Timeout: cfg.Timeout,
		Cache:   cache,
		Limiter: NewRateLimiter(cfg.RateLimit, cfg.Burst),
	}

	switch DetectProvider(cfg.Provider) {
	case ProviderJina:
		return NewJinaProvider(opts)
	case ProviderOpenAI:
		return NewOpenAIProvider(opts)
	case ProviderOllama:
		return NewOllamaProvider(opts)
	case ProviderLocal:
		if cfg.Model != "" && cfg.Model != DefaultLocalModel {
			return nil, fmt.Errorf("%w: local provider has no model %s", ErrUnsupportedModel, cfg.Model)
		}
		return NewLocalProvider(cache)
	default:
		return nil, fmt.Errorf("%w: unknown provider %s", ErrUnsupportedModel, cfg.Provider)
	}
}

// DetectProvider resolves the configured provider name.
// Priority:
// 1. An explicit provider name
// 2. Available API keys: JINA_API_KEY, OPENAI_API_KEY
// 3. local
func DetectProvider(provider string) string {
	provider = strings.ToLower(strings.TrimSpace(provider))
	if provider != "" && provider != "auto" {
		return provider
	}

	if lookupEnv(EnvJinaAPIKey) != "" {
		return ProviderJina
	}
	if lookupEnv(EnvOpenAIAPIKey) != "" {
		return ProviderOpenAI
	}

	return ProviderLocal
}

func lookupEnv(key string) string {
	return strings.TrimSpace(os.Getenv(key))
}
