package config

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"runtime"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds the newsrag pipeline configuration.
type Config struct {
	HTTP      HTTPConfig      `yaml:"http"`
	Database  DatabaseConfig  `yaml:"database"`
	LLM       LLMConfig       `yaml:"llm"`
	Retrieval RetrievalConfig `yaml:"retrieval"`
	Gate      GateConfig      `yaml:"gate"`
	WebSearch WebSearchConfig `yaml:"websearch"`
	Context   ContextConfig   `yaml:"context"`
	Cache     CacheConfig     `yaml:"cache"`
	Auth      AuthConfig      `yaml:"auth"`
	Logging   LoggingConfig   `yaml:"logging"`
}

// AuthConfig holds API authentication settings.
type AuthConfig struct {
	APIKeys []string `yaml:"api_keys"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level string `yaml:"level"` // debug, info, warn, error (default: determined by env)
}

// HTTPConfig holds HTTP server settings.
type HTTPConfig struct {
	Port            int `yaml:"port"`
	ReadTimeoutSec  int `yaml:"read_timeout_sec"`
	WriteTimeoutSec int `yaml:"write_timeout_sec"`
	ShutdownSec     int `yaml:"shutdown_timeout_sec"`
}

// DatabaseConfig holds the internal document store connection settings.
type DatabaseConfig struct {
	Addrs            []string `yaml:"addrs"`
	Password         string   `yaml:"password"`
	Index            string   `yaml:"index"`
	ReadinessTimeout int      `yaml:"readiness_timeout_sec"`
}

// LLMConfig holds model API settings for analysis, embeddings, generation
// and verification.
type LLMConfig struct {
	APIKey         string `yaml:"api_key"`
	BaseURL        string `yaml:"base_url"`
	ChatModel      string `yaml:"chat_model"`
	EmbeddingModel string `yaml:"embedding_model"`
	VerifyAnswers  bool   `yaml:"verify_answers"`
	MaxSubQueries  int    `yaml:"max_sub_queries"`
}

// RetrievalConfig holds hybrid search and fusion settings.
type RetrievalConfig struct {
	TopK int `yaml:"top_k"` // per-list depth of lexical and dense retrieval
	TopN int `yaml:"top_n"` // fused results kept per sub-query
	RRFK int `yaml:"rrf_k"` // rank-fusion smoothing constant
}

// GateConfig holds relevance gate thresholds.
type GateConfig struct {
	Threshold  float64 `yaml:"threshold"`
	Floor      float64 `yaml:"floor"`
	MinResults int     `yaml:"min_results"`
}

// WebSearchConfig holds the external provider chain settings.
type WebSearchConfig struct {
	Providers          []string `yaml:"providers"` // chain priority order
	TopK               int      `yaml:"top_k"`
	ProviderTimeoutSec int      `yaml:"provider_timeout_sec"`
	Workers            int      `yaml:"workers"`
	RecallMode         bool     `yaml:"recall_mode"`
	RecencyWindowHours int      `yaml:"recency_window_hours"`
	RecencyBoost       float64  `yaml:"recency_boost"`

	Naver NaverConfig `yaml:"naver"`
}

// NaverConfig holds Naver Open API credentials.
type NaverConfig struct {
	ClientID     string `yaml:"client_id"`
	ClientSecret string `yaml:"client_secret"`
}

// ContextConfig holds context assembly settings.
type ContextConfig struct {
	CharBudget int `yaml:"char_budget"`
}

// CacheConfig holds answer cache settings.
type CacheConfig struct {
	Capacity int `yaml:"capacity"`
	TTLSec   int `yaml:"ttl_sec"`
}

// TTL returns the cache entry lifetime as a duration.
func (c CacheConfig) TTL() time.Duration {
	return time.Duration(c.TTLSec) * time.Second
}

// ProviderTimeout returns the per-provider call timeout as a duration.
func (c WebSearchConfig) ProviderTimeout() time.Duration {
	return time.Duration(c.ProviderTimeoutSec) * time.Second
}

// RecencyWindow returns the recency boost window as a duration.
func (c WebSearchConfig) RecencyWindow() time.Duration {
	return time.Duration(c.RecencyWindowHours) * time.Hour
}

// Load reads configuration from a YAML file by environment name (local, dev, prod).
func Load(env string) (Config, error) {
	configPath := findConfigPath(env)

	data, err := os.ReadFile(filepath.Clean(configPath))
	if err != nil {
		return Config{}, fmt.Errorf("failed to read config %s: %w", configPath, err)
	}

	// Substitute env variables of the form ${VAR}
	data = expandEnvVars(data)

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("failed to parse config: %w", err)
	}

	cfg.ApplyDefaults()

	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("invalid config: %w", err)
	}

	return cfg, nil
}

// MustLoad loads configuration or panics.
func MustLoad(env string) Config {
	cfg, err := Load(env)
	if err != nil {
		panic(err)
	}
	return cfg
}

// GetEnv returns the current environment from the ENV variable, defaulting to "local".
func GetEnv() string {
	if env := os.Getenv("ENV"); env != "" {
		return env
	}
	return "local"
}

// ApplyDefaults fills empty fields with default values.
func (c *Config) ApplyDefaults() {
	if c.HTTP.ReadTimeoutSec <= 0 {
		c.HTTP.ReadTimeoutSec = 10
	}
	if c.HTTP.WriteTimeoutSec <= 0 {
		c.HTTP.WriteTimeoutSec = 30
	}
	if c.HTTP.ShutdownSec <= 0 {
		c.HTTP.ShutdownSec = 10
	}
	if c.Database.Index == "" {
		c.Database.Index = "news-idx"
	}
	if c.Database.ReadinessTimeout <= 0 {
		c.Database.ReadinessTimeout = 10
	}
	if c.LLM.ChatModel == "" {
		c.LLM.ChatModel = "gpt-4o-mini"
	}
	if c.LLM.EmbeddingModel == "" {
		c.LLM.EmbeddingModel = "text-embedding-3-small"
	}
	if c.LLM.MaxSubQueries <= 0 {
		c.LLM.MaxSubQueries = 3
	}
	if c.Retrieval.TopK <= 0 {
		c.Retrieval.TopK = 10
	}
	if c.Retrieval.TopN <= 0 {
		c.Retrieval.TopN = 5
	}
	if c.Retrieval.RRFK <= 0 {
		c.Retrieval.RRFK = 60
	}
	if c.Gate.Threshold <= 0 {
		c.Gate.Threshold = 0.02
	}
	if c.Gate.Floor <= 0 {
		c.Gate.Floor = 0.01
	}
	if c.Gate.MinResults <= 0 {
		c.Gate.MinResults = 2
	}
	if len(c.WebSearch.Providers) == 0 {
		c.WebSearch.Providers = []string{"naver", "duckduckgo"}
	}
	if c.WebSearch.TopK <= 0 {
		c.WebSearch.TopK = 5
	}
	if c.WebSearch.ProviderTimeoutSec <= 0 {
		c.WebSearch.ProviderTimeoutSec = 5
	}
	if c.WebSearch.Workers <= 0 {
		c.WebSearch.Workers = 4
	}
	if c.WebSearch.RecencyWindowHours <= 0 {
		c.WebSearch.RecencyWindowHours = 72
	}
	if c.WebSearch.RecencyBoost <= 0 {
		c.WebSearch.RecencyBoost = 0.2
	}
	if c.Context.CharBudget <= 0 {
		c.Context.CharBudget = 6000
	}
	if c.Cache.Capacity <= 0 {
		c.Cache.Capacity = 1000
	}
	if c.Cache.TTLSec <= 0 {
		c.Cache.TTLSec = 3600
	}
}

// Validate checks the configuration for correctness.
func (c *Config) Validate() error {
	if c.HTTP.Port <= 0 || c.HTTP.Port > 65535 {
		return fmt.Errorf("http.port must be between 1 and 65535, got %d", c.HTTP.Port)
	}
	if len(c.Database.Addrs) == 0 {
		return fmt.Errorf("database.addrs is required")
	}
	if c.Gate.Floor > c.Gate.Threshold {
		return fmt.Errorf("gate.floor (%g) must not exceed gate.threshold (%g)",
			c.Gate.Floor, c.Gate.Threshold)
	}
	for _, p := range c.WebSearch.Providers {
		switch p {
		case "naver", "duckduckgo":
			// ok
		default:
			return fmt.Errorf("websearch.providers contains unknown provider %q", p)
		}
	}
	return nil
}

// findConfigPath locates the config file.
func findConfigPath(env string) string {
	filename := fmt.Sprintf("%s.yaml", env)

	// 1. Check ./config/
	if path := filepath.Join("config", filename); fileExists(path) {
		return path
	}

	// 2. Check relative to the source file
	_, b, _, _ := runtime.Caller(0)
	projectRoot := filepath.Dir(filepath.Dir(filepath.Dir(b))) // internal/config -> project root
	if path := filepath.Join(projectRoot, "config", filename); fileExists(path) {
		return path
	}

	// 3. Fallback to ./config/
	return filepath.Join("config", filename)
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// expandEnvVars replaces ${VAR} and ${VAR:-default} with environment variable values.
var envVarRegex = regexp.MustCompile(`\$\{([^}]+)\}`)

func expandEnvVars(data []byte) []byte {
	return envVarRegex.ReplaceAllFunc(data, func(match []byte) []byte {
		expr := string(match[2 : len(match)-1]) // strip ${ and }
		varName, defaultVal, hasDefault := strings.Cut(expr, ":-")
		val := os.Getenv(varName)
		if val == "" && hasDefault {
			val = defaultVal
		}
		return []byte(val)
	})
}
