package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all configuration for the assistant.
type Config struct {
	General   GeneralConfig   `mapstructure:"general"`
	Server    ServerConfig    `mapstructure:"server"`
	LLM       LLMConfig       `mapstructure:"llm"`
	Agent     AgentConfig     `mapstructure:"agent"`
	Knowledge KnowledgeConfig `mapstructure:"knowledge"`
	Vector    VectorConfig    `mapstructure:"vector"`
	WebSearch WebSearchConfig `mapstructure:"web_search"`
	Session   SessionConfig   `mapstructure:"session"`
	Telemetry TelemetryConfig `mapstructure:"telemetry"`
	Resync    ResyncConfig    `mapstructure:"resync"`
}

// GeneralConfig contains general application settings
type GeneralConfig struct {
	Debug          bool          `mapstructure:"debug"`
	LogLevel       string        `mapstructure:"log_level"`
	DefaultTimeout time.Duration `mapstructure:"default_timeout"`
}

// ServerConfig contains HTTP server settings
type ServerConfig struct {
	Address        string        `mapstructure:"address"`
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
}

// LLMConfig contains LLM provider configurations
type LLMConfig struct {
	Providers map[string]LLMProvider `mapstructure:"providers"`
	Routing   LLMRoutingConfig       `mapstructure:"routing"`
	Embedding EmbeddingConfig        `mapstructure:"embedding"`
}

// LLMProvider represents a single LLM provider configuration
type LLMProvider struct {
	Type       string              `mapstructure:"type"` // openai, anthropic, etc.
	APIKey     string              `mapstructure:"api_key"`
	BaseURL    string              `mapstructure:"base_url"`
	Models     map[string]LLMModel `mapstructure:"models"`
	MaxRetries int                 `mapstructure:"max_retries"`
	Timeout    time.Duration       `mapstructure:"timeout"`
}

// LLMModel represents a specific model configuration
type LLMModel struct {
	Name            string  `mapstructure:"name"`
	APIName         string  `mapstructure:"api_name"`
	MaxTokens       int     `mapstructure:"max_tokens"`
	Temperature     float64 `mapstructure:"temperature"`
	CostPer1K       float64 `mapstructure:"cost_per_1k_input"`
	CostPer1KOutput float64 `mapstructure:"cost_per_1k_output"`
}

// LLMRoutingConfig defines which model to use for different stages
type LLMRoutingConfig struct {
	Planning string `mapstructure:"planning"` // query analysis and plan generation
	Chat     string `mapstructure:"chat"`     // tool routing and final synthesis
	Fallback string `mapstructure:"fallback"` // fallback model
}

// EmbeddingConfig selects the embedding model used for the vector index
type EmbeddingConfig struct {
	Model     string `mapstructure:"model"`
	BatchSize int    `mapstructure:"batch_size"`
}

// AgentConfig bounds the tool-routing loop
type AgentConfig struct {
	MaxToolCalls  int           `mapstructure:"max_tool_calls"` // hard iteration cap
	ToolTimeout   time.Duration `mapstructure:"tool_timeout"`
	PlanTimeout   time.Duration `mapstructure:"plan_timeout"`
	PlanCacheSize int           `mapstructure:"plan_cache_size"`
}

// KnowledgeConfig locates the pieces knowledge base
type KnowledgeConfig struct {
	Path string `mapstructure:"path"` // SQLite database file
}

// VectorConfig locates the embedding index
type VectorConfig struct {
	Path string `mapstructure:"path"` // persisted index file
	TopK int    `mapstructure:"top_k"`
}

// WebSearchConfig selects and authenticates the live search provider
type WebSearchConfig struct {
	Provider         string        `mapstructure:"provider"` // openai or perplexity
	OpenAIAPIKey     string        `mapstructure:"openai_api_key"`
	OpenAIModel      string        `mapstructure:"openai_model"`
	PerplexityAPIKey string        `mapstructure:"perplexity_api_key"`
	PerplexityModel  string        `mapstructure:"perplexity_model"`
	Timeout          time.Duration `mapstructure:"timeout"`
}

// SessionConfig selects the conversation session backend
type SessionConfig struct {
	Store string        `mapstructure:"store"` // inmemory or redis
	TTL   time.Duration `mapstructure:"ttl"`
	Redis RedisConfig   `mapstructure:"redis"`
}

// RedisConfig contains Redis connection settings
type RedisConfig struct {
	Host     string `mapstructure:"host"`
	Port     string `mapstructure:"port"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// Validate checks required redis settings when the redis store is selected.
func (r RedisConfig) Validate() error {
	if r.Host == "" || r.Port == "" {
		return fmt.Errorf("redis not configured (session.redis.host/port)")
	}
	return nil
}

/// Addr returns host:port for the redis client.
func (r RedisConfig) Addr() string {
	return fmt.Sprintf("%s:%s", r.Host, r.Port)
}

// TelemetryConfig contains monitoring settings
type TelemetryConfig struct {
	Enabled      bool `mapstructure:"enabled"`
	CostTracking bool `mapstructure:"cost_tracking"`
}

// ResyncConfig drives the periodic KB/index drift check
type ResyncConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	CronSpec string `mapstructure:"cron_spec"`
}

// LoadConfig reads the config file (JSON) and environment overrides.
// It panics on an unreadable or unparseable config: serving with a
// half-initialized configuration is worse than refusing to start.
func LoadConfig(path string) *Config {
	viper.SetConfigName("config")
	viper.SetConfigType("json")

	viper.SetDefault("general.log_level", "info")
	viper.SetDefault("general.default_timeout", "30s")
	viper.SetDefault("server.address", ":10010")
	viper.SetDefault("server.request_timeout", "120s")
	viper.SetDefault("agent.max_tool_calls", 5)
	viper.SetDefault("agent.tool_timeout", "20s")
	viper.SetDefault("agent.plan_timeout", "30s")
	viper.SetDefault("agent.plan_cache_size", 64)
	viper.SetDefault("knowledge.path", "data/pieces.db")
	viper.SetDefault("vector.path", "data/pieces_index.json")
	viper.SetDefault("vector.top_k", 6)
	viper.SetDefault("web_search.provider", "openai")
	viper.SetDefault("web_search.openai_model", "gpt-4o")
	viper.SetDefault("web_search.perplexity_model", "sonar")
	viper.SetDefault("web_search.timeout", "15s")
	viper.SetDefault("session.store", "inmemory")
	viper.SetDefault("session.ttl", "24h")
	viper.SetDefault("llm.embedding.model", "text-embedding-3-small")
	viper.SetDefault("llm.embedding.batch_size", 64)
	viper.SetDefault("resync.cron_spec", "0 3 * * *")

	if path == "" {
		viper.AddConfigPath("./config")
		viper.AddConfigPath(".")
		exe, _ := os.Executable()
		exeDir := filepath.Dir(exe)
		viper.AddConfigPath(exeDir)
		viper.AddConfigPath(filepath.Join(exeDir, ".."))
	} else {
		viper.SetConfigFile(path)
	}

	viper.SetEnvPrefix("FLOWPILOT")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err != nil {
		panic(fmt.Errorf("fatal error config file: %w", err))
	}

	var config Config
	if err := viper.Unmarshal(&config); err != nil {
		panic(fmt.Errorf("fatal error config file: %w", err))
	}

	if config.Session.Store == "redis" {
		if err := config.Session.Redis.Validate(); err != nil {
			panic(err)
		}
	}

	return &config
}
