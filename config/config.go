// Package config loads layered cinetech configuration:
// built-in defaults, then an optional YAML file, then CINETECH_* env vars.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"

	"github.com/DarioTortorici/cinetech/logging"
)

// ConfigPathEnvVar overrides the config file search path.
const ConfigPathEnvVar = "CINETECH_CONFIG"

// DefaultConfigPaths lists where config files are searched, in order.
var DefaultConfigPaths = []string{
	"cinetech.yaml",
	"cinetech.yml",
	"/etc/cinetech/config.yaml",
}

// Config is the root configuration tree.
type Config struct {
	LLM       LLMConfig       `koanf:"llm"`
	Embedding EmbeddingConfig `koanf:"embedding"`
	Index     IndexConfig     `koanf:"index"`
	Memory    MemoryConfig    `koanf:"memory"`
	Tools     ToolsConfig     `koanf:"tools"`
	TMDB      TMDBConfig      `koanf:"tmdb"`
	Favorites FavoritesConfig `koanf:"favorites"`
	Ingest    IngestConfig    `koanf:"ingest"`
	Logging   logging.Config  `koanf:"logging"`
}

// LLMConfig configures the generation model.
type LLMConfig struct {
	APIKey        string        `koanf:"api_key"`
	Model         string        `koanf:"model"`
	MaxTokens     int64         `koanf:"max_tokens"`
	Timeout       time.Duration `koanf:"timeout"`
	MaxRetries    int           `koanf:"max_retries"`
	MaxToolRounds int           `koanf:"max_tool_rounds"`

	// GroundingBudget caps the character size of the grounding block.
	GroundingBudget int `koanf:"grounding_budget"`
}

// EmbeddingConfig configures the embedding provider.
type EmbeddingConfig struct {
	APIKey     string        `koanf:"api_key"`
	BaseURL    string        `koanf:"base_url"`
	Model      string        `koanf:"model"`
	Dimensions int           `koanf:"dimensions"`
	Timeout    time.Duration `koanf:"timeout"`
	MaxRetries int           `koanf:"max_retries"`
}

// IndexConfig configures the semantic index.
type IndexConfig struct {
	// Path persists the vector store on disk; empty keeps it in memory.
	Path string `koanf:"path"`

	// MaxK bounds the k accepted by a search.
	MaxK int `koanf:"max_k"`

	// OverfetchFactor multiplies k when filters must be applied
	// client-side.
	OverfetchFactor int `koanf:"overfetch_factor"`

	// OverfetchAttempts bounds how many times the fetch size is enlarged
	// before accepting a smaller-than-k result.
	OverfetchAttempts int `koanf:"overfetch_attempts"`
}

// MemoryConfig bounds per-session conversation memory.
type MemoryConfig struct {
	// MaxTurns is the total turn budget per session.
	MaxTurns int `koanf:"max_turns"`

	// KeepRecent is the number of most recent turns always preserved
	// verbatim when trimming.
	KeepRecent int `koanf:"keep_recent"`

	// SummaryBudget caps the rolling summary length in characters.
	SummaryBudget int `koanf:"summary_budget"`
}

// ToolsConfig bounds tool dispatch.
type ToolsConfig struct {
	Timeout    time.Duration `koanf:"timeout"`
	MaxRetries int           `koanf:"max_retries"`
}

// TMDBConfig configures the metadata provider client.
type TMDBConfig struct {
	BaseURL      string        `koanf:"base_url"`
	APIKey       string        `koanf:"api_key"`
	Timeout      time.Duration `koanf:"timeout"`
	CacheEntries int64         `koanf:"cache_entries"`
	CacheTTL     time.Duration `koanf:"cache_ttl"`

	// BreakerThreshold is the consecutive-failure count that opens the
	// circuit breaker.
	BreakerThreshold uint32        `koanf:"breaker_threshold"`
	BreakerCooldown  time.Duration `koanf:"breaker_cooldown"`
}

// FavoritesConfig configures the favorites store.
type FavoritesConfig struct {
	Path string `koanf:"path"`
}

// IngestConfig configures the startup ingestion boundary.
type IngestConfig struct {
	// DataPath points at a JSON batch of documents to load at startup.
	DataPath string `koanf:"data_path"`

	// FetchCount, when positive and DataPath is empty, builds the batch
	// from the metadata provider's top-rated listing instead.
	FetchCount int `koanf:"fetch_count"`

	// EmbedBatchSize bounds how many texts go into one embedding call.
	EmbedBatchSize int `koanf:"embed_batch_size"`
}

func defaultConfig() *Config {
	return &Config{
		LLM: LLMConfig{
			Model:           "claude-sonnet-4-20250514",
			MaxTokens:       4096,
			Timeout:         60 * time.Second,
			MaxRetries:      2,
			MaxToolRounds:   4,
			GroundingBudget: 4000,
		},
		Embedding: EmbeddingConfig{
			Model:      "text-embedding-3-small",
			Dimensions: 1536,
			Timeout:    10 * time.Second,
			MaxRetries: 3,
		},
		Index: IndexConfig{
			Path:              "",
			MaxK:              20,
			OverfetchFactor:   3,
			OverfetchAttempts: 3,
		},
		Memory: MemoryConfig{
			MaxTurns:      40,
			KeepRecent:    10,
			SummaryBudget: 1500,
		},
		Tools: ToolsConfig{
			Timeout:    15 * time.Second,
			MaxRetries: 2,
		},
		TMDB: TMDBConfig{
			BaseURL:          "https://api.themoviedb.org/3",
			Timeout:          10 * time.Second,
			CacheEntries:     10_000,
			CacheTTL:         15 * time.Minute,
			BreakerThreshold: 5,
			BreakerCooldown:  30 * time.Second,
		},
		Favorites: FavoritesConfig{
			Path: "favorites.json",
		},
		Ingest: IngestConfig{
			DataPath:       "",
			FetchCount:     0,
			EmbedBatchSize: 64,
		},
		Logging: logging.Config{
			Level:  "info",
			Format: "json",
		},
	}
}

// Load builds the configuration with precedence ENV > file > defaults.
func Load() (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(structs.Provider(defaultConfig(), "koanf"), nil); err != nil {
		return nil, fmt.Errorf("load defaults: %w", err)
	}

	if path := findConfigFile(); path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("load config file %s: %w", path, err)
		}
	}

	if err := k.Load(env.Provider("CINETECH_", ".", envTransform), nil); err != nil {
		return nil, fmt.Errorf("load environment: %w", err)
	}

	cfg := &Config{}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("unmarshal configuration: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration invalid: %w", err)
	}
	return cfg, nil
}

// Validate rejects configurations that would only fail at request time.
// Dimensionality and budget mismatches are fatal here, never per-request.
func (c *Config) Validate() error {
	if c.Embedding.Dimensions <= 0 {
		return fmt.Errorf("embedding.dimensions must be positive, got %d", c.Embedding.Dimensions)
	}
	if c.Index.MaxK <= 0 {
		return fmt.Errorf("index.max_k must be positive, got %d", c.Index.MaxK)
	}
	if c.Index.OverfetchFactor < 1 {
		return fmt.Errorf("index.overfetch_factor must be >= 1, got %d", c.Index.OverfetchFactor)
	}
	if c.Memory.KeepRecent <= 0 {
		return fmt.Errorf("memory.keep_recent must be positive, got %d", c.Memory.KeepRecent)
	}
	if c.Memory.MaxTurns < c.Memory.KeepRecent {
		return fmt.Errorf("memory.max_turns (%d) must be >= memory.keep_recent (%d)",
			c.Memory.MaxTurns, c.Memory.KeepRecent)
	}
	if c.LLM.MaxToolRounds < 1 {
		return fmt.Errorf("llm.max_tool_rounds must be >= 1, got %d", c.LLM.MaxToolRounds)
	}
	if c.LLM.GroundingBudget <= 0 {
		return fmt.Errorf("llm.grounding_budget must be positive, got %d", c.LLM.GroundingBudget)
	}
	return nil
}

func findConfigFile() string {
	if envPath := os.Getenv(ConfigPathEnvVar); envPath != "" {
		if _, err := os.Stat(envPath); err == nil {
			return envPath
		}
	}
	for _, path := range DefaultConfigPaths {
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}
	return ""
}

// envTransform maps CINETECH_LLM_API_KEY to llm.api_key and so on.
// The first underscore separates the section; the rest stay joined.
func envTransform(key string) string {
	key = strings.ToLower(strings.TrimPrefix(key, "CINETECH_"))
	parts := strings.SplitN(key, "_", 2)
	if len(parts) != 2 {
		return ""
	}
	return parts[0] + "." + parts[1]
}
