// Package config loads cycoach settings from an optional YAML file and
// CYCOACH_* environment variables.
package config

import (
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/cg-ch/cycoach/internal/embedder"
	"github.com/cg-ch/cycoach/internal/indexer"
	"github.com/cg-ch/cycoach/internal/lexical"
	"github.com/cg-ch/cycoach/internal/logging"
	"github.com/cg-ch/cycoach/internal/searcher"
)

// EnvPrefix is prepended to every environment override, e.g. CYCOACH_VAULT_PATH
const EnvPrefix = "CYCOACH"

// ErrInvalidConfig is returned by Validate for settings that cannot run
var ErrInvalidConfig = errors.New("invalid configuration")

// Config holds all application configuration.
type Config struct {
	VaultPath string          `mapstructure:"vault_path"`
	DBPath    string          `mapstructure:"db_path"`
	Log       LogConfig       `mapstructure:"log"`
	Embedding EmbeddingConfig `mapstructure:"embedding"`
	Ingest    IngestConfig    `mapstructure:"ingest"`
	Search    SearchConfig    `mapstructure:"search"`
	Lexical   LexicalConfig   `mapstructure:"lexical"`
	Watch     WatchConfig     `mapstructure:"watch"`
	Metrics   MetricsConfig   `mapstructure:"metrics"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

type EmbeddingConfig struct {
	Provider  string        `mapstructure:"provider"`
	Model     string        `mapstructure:"model"`
	BaseURL   string        `mapstructure:"base_url"`
	APIKey    string        `mapstructure:"api_key"`
	Timeout   time.Duration `mapstructure:"timeout"`
	CacheSize int           `mapstructure:"cache_size"`
	RateLimit float64       `mapstructure:"rate_limit"`
	Burst     int           `mapstructure:"burst"`
}

type IngestConfig struct {
	Extensions      []string      `mapstructure:"extensions"`
	ChangeDetection string        `mapstructure:"change_detection"`
	Workers         int           `mapstructure:"workers"`
	StoreTimeout    time.Duration `mapstructure:"store_timeout"`
}

type SearchConfig struct {
	DefaultLimit        int           `mapstructure:"default_limit"`
	VectorWeight        float64       `mapstructure:"vector_weight"`
	LexicalWeight       float64       `mapstructure:"lexical_weight"`
	LinearScanThreshold int           `mapstructure:"linear_scan_threshold"`
	EmbedTimeout        time.Duration `mapstructure:"embed_timeout"`
	CacheSize           int           `mapstructure:"cache_size"`
}

type LexicalConfig struct {
	K1 float64 `mapstructure:"k1"`
	B  float64 `mapstructure:"b"`
}

type WatchConfig struct {
	Debounce time.Duration `mapstructure:"debounce"`
}

type MetricsConfig struct {
	Addr string `mapstructure:"addr"`
}

// SetDefaults registers a default for every key so env overrides and
// Unmarshal see the full key set.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("vault_path", filepath.Join("memory", "vault"))
	v.SetDefault("db_path", filepath.Join("memory", "db.sqlite"))

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", logging.FormatConsole)

	v.SetDefault("embedding.provider", embedder.ProviderLocal)
	v.SetDefault("embedding.model", "")
	v.SetDefault("embedding.base_url", "")
	v.SetDefault("embedding.api_key", "")
	v.SetDefault("embedding.timeout", embedder.DefaultTimeout)
	v.SetDefault("embedding.cache_size", embedder.DefaultCacheSize)
	v.SetDefault("embedding.rate_limit", 5.0)
	v.SetDefault("embedding.burst", 10)

	ingest := indexer.DefaultConfig()
	v.SetDefault("ingest.extensions", ingest.Extensions)
	v.SetDefault("ingest.change_detection", ingest.ChangeDetection)
	v.SetDefault("ingest.workers", ingest.Workers)
	v.SetDefault("ingest.store_timeout", ingest.StoreTimeout)

	search := searcher.DefaultConfig()
	v.SetDefault("search.default_limit", search.DefaultLimit)
	v.SetDefault("search.vector_weight", search.VectorWeight)
	v.SetDefault("search.lexical_weight", search.LexicalWeight)
	v.SetDefault("search.linear_scan_threshold", search.LinearScanThreshold)
	v.SetDefault("search.embed_timeout", search.EmbedTimeout)
	v.SetDefault("search.cache_size", search.CacheSize)

	params := lexical.DefaultParams()
	v.SetDefault("lexical.k1", params.K1)
	v.SetDefault("lexical.b", params.B)

	v.SetDefault("watch.debounce", 2*time.Second)
	v.SetDefault("metrics.addr", "")
}

// Load reads configuration from path, or from ./cycoach.yaml or
// $HOME/.cycoach/cycoach.yaml when path is empty. A missing default file is
// not an error; a missing explicit file is. Environment variables override
// file values.
func Load(path string) (*Config, error) {
	v := viper.New()
	SetDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("cycoach")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		if home, err := os.UserHomeDir(); err == nil {
			v.AddConfigPath(filepath.Join(home, ".cycoach"))
		}
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("reading config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshalling config: %w", err)
	}

	return &cfg, nil
}

// Validate checks configuration. Warnings describe settings that run but
// are probably unintended; the error reports settings that cannot run.
func (c *Config) Validate() ([]string, error) {
	var warnings []string
	var problems []string

	if c.VaultPath == "" {
		problems = append(problems, "vault_path is empty")
	}
	if c.DBPath == "" {
		problems = append(problems, "db_path is empty")
	}

	if _, err := logging.ParseLevel(c.Log.Level); err != nil {
		problems = append(problems, err.Error())
	}
	if c.Log.Format != logging.FormatConsole && c.Log.Format != logging.FormatJSON {
		problems = append(problems, fmt.Sprintf("log.format %q must be %s or %s", c.Log.Format, logging.FormatConsole, logging.FormatJSON))
	}

	switch c.Embedding.Provider {
	case "", "auto", embedder.ProviderLocal, embedder.ProviderOllama:
	case embedder.ProviderOpenAI, embedder.ProviderJina:
		if c.Embedding.APIKey == "" && !hasProviderKey(c.Embedding.Provider) {
			warnings = append(warnings, fmt.Sprintf("embedding provider '%s' is configured but no api key is set", c.Embedding.Provider))
		}
	default:
		problems = append(problems, fmt.Sprintf("unknown embedding.provider %q", c.Embedding.Provider))
	}
	if c.Embedding.RateLimit < 0 {
		problems = append(problems, fmt.Sprintf("embedding.rate_limit %.2f is negative", c.Embedding.RateLimit))
	}

	switch c.Ingest.ChangeDetection {
	case indexer.ChangeDetectionMtime, indexer.ChangeDetectionHash:
	default:
		problems = append(problems, fmt.Sprintf("ingest.change_detection %q must be %s or %s",
			c.Ingest.ChangeDetection, indexer.ChangeDetectionMtime, indexer.ChangeDetectionHash))
	}
	if len(c.Ingest.Extensions) == 0 {
		warnings = append(warnings, "ingest.extensions is empty, defaulting to .md")
	}

	if c.Search.VectorWeight < 0 || c.Search.LexicalWeight < 0 {
		problems = append(problems, "search weights must not be negative")
	} else if sum := c.Search.VectorWeight + c.Search.LexicalWeight; math.Abs(sum-1) > 1e-9 {
		warnings = append(warnings, fmt.Sprintf("search weights sum to %.2f, scores will not lie in [-1, 1]", sum))
	}
	if c.Search.DefaultLimit > searcher.MaxLimit {
		warnings = append(warnings, fmt.Sprintf("search.default_limit %d is above the maximum %d", c.Search.DefaultLimit, searcher.MaxLimit))
	}

	if c.Lexical.K1 < 0 {
		problems = append(problems, fmt.Sprintf("lexical.k1 %.2f is negative", c.Lexical.K1))
	}
	if c.Lexical.B < 0 || c.Lexical.B > 1 {
		problems = append(problems, fmt.Sprintf("lexical.b %.2f is outside [0, 1]", c.Lexical.B))
	}

	if c.Watch.Debounce < 0 {
		problems = append(problems, "watch.debounce is negative")
	}

	if len(problems) > 0 {
		return warnings, fmt.Errorf("%w: %s", ErrInvalidConfig, strings.Join(problems, "; "))
	}
	return warnings, nil
}

func hasProviderKey(provider string) bool {
	switch provider {
	case embedder.ProviderJina:
		return os.Getenv(embedder.EnvJinaAPIKey) != ""
	case embedder.ProviderOpenAI:
		return os.Getenv(embedder.EnvOpenAIAPIKey) != ""
	}
	return false
}

// EmbedderConfig returns the embedding provider settings
func (c *Config) EmbedderConfig() embedder.Config {
	return embedder.Config{
		Provider:  c.Embedding.Provider,
		Model:     c.Embedding.Model,
		BaseURL:   c.Embedding.BaseURL,
		APIKey:    c.Embedding.APIKey,
		Timeout:   c.Embedding.Timeout,
		CacheSize: c.Embedding.CacheSize,
		RateLimit: c.Embedding.RateLimit,
		Burst:     c.Embedding.Burst,
	}
}

// IndexerConfig returns the ingest settings
func (c *Config) IndexerConfig() indexer.Config {
	cfg := indexer.DefaultConfig()
	if len(c.Ingest.Extensions) > 0 {
		cfg.Extensions = c.Ingest.Extensions
	}
	cfg.ChangeDetection = c.Ingest.ChangeDetection
	if c.Ingest.Workers > 0 {
		cfg.Workers = c.Ingest.Workers
	}
	if c.Embedding.Timeout > 0 {
		cfg.EmbedTimeout = c.Embedding.Timeout
	}
	if c.Ingest.StoreTimeout > 0 {
		cfg.StoreTimeout = c.Ingest.StoreTimeout
	}
	return cfg
}

// SearcherConfig returns the ranking settings
func (c *Config) SearcherConfig() searcher.Config {
	return searcher.Config{
		DefaultLimit:        c.Search.DefaultLimit,
		MaxLimit:            searcher.MaxLimit,
		VectorWeight:        c.Search.VectorWeight,
		LexicalWeight:       c.Search.LexicalWeight,
		LinearScanThreshold: c.Search.LinearScanThreshold,
		EmbedTimeout:        c.Search.EmbedTimeout,
		CacheSize:           c.Search.CacheSize,
	}
}

// LexicalParams returns the BM25 constants
func (c *Config) LexicalParams() lexical.Params {
	return lexical.Params{K1: c.Lexical.K1, B: c.Lexical.B}
}

// LoggingConfig returns the logger settings; output is always stderr
func (c *Config) LoggingConfig() logging.Config {
	return logging.Config{
		Level:  c.Log.Level,
		Format: c.Log.Format,
		Output: os.Stderr,
	}
}
