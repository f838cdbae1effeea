// Package config loads docbot settings from .env, an optional docbot.yaml and
// DOCBOT_* environment variables.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const (
	// EnvPrefix is prepended to every environment override, e.g. DOCBOT_SERVER_ADDR.
	EnvPrefix = "DOCBOT"
	// DefaultConfigName is the config file looked up in the working directory.
	DefaultConfigName = "docbot"
)

type ServerConfig struct {
	Addr string `mapstructure:"addr" yaml:"addr"`
	Mode string `mapstructure:"mode" yaml:"mode"`
}

type PathsConfig struct {
	Data     string `mapstructure:"data" yaml:"data"`
	Webhooks string `mapstructure:"webhooks" yaml:"webhooks"`
	Storage  string `mapstructure:"storage" yaml:"storage"`
}

type AuthConfig struct {
	KeysFile string `mapstructure:"keys_file" yaml:"keys_file"`
	// Mode is "sha256" (hashed allow-list) or "plaintext" (legacy).
	Mode string `mapstructure:"mode" yaml:"mode"`
}

type IndexConfig struct {
	Backend      string  `mapstructure:"backend" yaml:"backend"`
	ChunkSize    int     `mapstructure:"chunk_size" yaml:"chunk_size"`
	ChunkOverlap int     `mapstructure:"chunk_overlap" yaml:"chunk_overlap"`
	TopK         int     `mapstructure:"top_k" yaml:"top_k"`
	MinScore     float64 `mapstructure:"min_score" yaml:"min_score"`
}

type EmbedderConfig struct {
	Type       string `mapstructure:"type" yaml:"type"`
	Dimensions int    `mapstructure:"dimensions" yaml:"dimensions"`
	OllamaURL  string `mapstructure:"ollama_url" yaml:"ollama_url"`
	Model      string `mapstructure:"model" yaml:"model"`
	BatchSize  int    `mapstructure:"batch_size" yaml:"batch_size"`
}

type LLMConfig struct {
	Provider string `mapstructure:"provider" yaml:"provider"`
	Model    string `mapstructure:"model" yaml:"model"`
	APIKey   string `mapstructure:"api_key" yaml:"-"`
}

type ChromaConfig struct {
	URL        string `mapstructure:"url" yaml:"url"`
	Collection string `mapstructure:"collection" yaml:"collection"`
}

type WebhookConfig struct {
	Timeout  time.Duration `mapstructure:"timeout" yaml:"timeout"`
	MaxBytes int64         `mapstructure:"max_bytes" yaml:"max_bytes"`
}

type RateLimitConfig struct {
	RPS   float64 `mapstructure:"rps" yaml:"rps"`
	Burst int     `mapstructure:"burst" yaml:"burst"`
}

type WatchConfig struct {
	Enabled  bool          `mapstructure:"enabled" yaml:"enabled"`
	Debounce time.Duration `mapstructure:"debounce" yaml:"debounce"`
}

type LogConfig struct {
	Level  string `mapstructure:"level" yaml:"level"`
	Format string `mapstructure:"format" yaml:"format"`
	File   string `mapstructure:"file" yaml:"file"`
}

// Config is the root configuration structure.
type Config struct {
	Server     ServerConfig    `mapstructure:"server" yaml:"server"`
	Paths      PathsConfig     `mapstructure:"paths" yaml:"paths"`
	Auth       AuthConfig      `mapstructure:"auth" yaml:"auth"`
	Index      IndexConfig     `mapstructure:"index" yaml:"index"`
	Embedder   EmbedderConfig  `mapstructure:"embedder" yaml:"embedder"`
	LLM        LLMConfig       `mapstructure:"llm" yaml:"llm"`
	Chroma     ChromaConfig    `mapstructure:"chroma" yaml:"chroma"`
	Webhook    WebhookConfig   `mapstructure:"webhook" yaml:"webhook"`
	RateLimit  RateLimitConfig `mapstructure:"rate_limit" yaml:"rate_limit"`
	Watch      WatchConfig     `mapstructure:"watch" yaml:"watch"`
	Log        LogConfig       `mapstructure:"log" yaml:"log"`
	PDFLicense string          `mapstructure:"pdf_license" yaml:"-"`
}

// SetDefaults registers every default on v.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("server.addr", ":8080")
	v.SetDefault("server.mode", "release")

	v.SetDefault("paths.data", "data")
	v.SetDefault("paths.webhooks", "data_webhooks")
	v.SetDefault("paths.storage", "storage")

	v.SetDefault("auth.keys_file", "api_keys.txt")
	v.SetDefault("auth.mode", "sha256")

	v.SetDefault("index.backend", "file")
	v.SetDefault("index.chunk_size", 1000)
	v.SetDefault("index.chunk_overlap", 100)
	v.SetDefault("index.top_k", 2)
	v.SetDefault("index.min_score", 0.05)

	v.SetDefault("embedder.type", "hashing")
	v.SetDefault("embedder.dimensions", 512)
	v.SetDefault("embedder.ollama_url", "http://localhost:11434")
	v.SetDefault("embedder.model", "nomic-embed-text:v1.5")
	v.SetDefault("embedder.batch_size", 32)

	v.SetDefault("llm.provider", "")
	v.SetDefault("llm.model", "gemini-2.5-flash")
	v.SetDefault("llm.api_key", "")

	v.SetDefault("chroma.url", "http://localhost:8000")
	v.SetDefault("chroma.collection", "docbot")

	v.SetDefault("webhook.timeout", 60*time.Second)
	v.SetDefault("webhook.max_bytes", int64(50<<20))

	v.SetDefault("rate_limit.rps", 5.0)
	v.SetDefault("rate_limit.burst", 10)

	v.SetDefault("watch.enabled", false)
	v.SetDefault("watch.debounce", 2*time.Second)

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")
	v.SetDefault("log.file", "")

	v.SetDefault("pdf_license", "")
}

// Load reads .env (if present), then the config file, then environment
// overrides. An empty path looks for docbot.yaml in the working directory;
// a missing default file is not an error.
func Load(path string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	v := viper.New()
	SetDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName(DefaultConfigName)
		v.AddConfigPath(".")
	}
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	applyEnvFallbacks(&cfg)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// applyEnvFallbacks honours the unprefixed variables the service has always read.
func applyEnvFallbacks(cfg *Config) {
	if cfg.LLM.APIKey == "" {
		cfg.LLM.APIKey = os.Getenv("GEMINI_API_KEY")
	}
	if cfg.PDFLicense == "" {
		cfg.PDFLicense = os.Getenv("UNIDOC_LICENSE_KEY")
	}
	if cfg.LLM.Provider == "" {
		if cfg.LLM.APIKey != "" {
			cfg.LLM.Provider = "gemini"
		} else {
			cfg.LLM.Provider = "extractive"
		}
	}
}

// Validate rejects settings the services cannot start with.
func (c *Config) Validate() error {
	switch c.Auth.Mode {
	case "sha256", "plaintext":
	default:
		return fmt.Errorf("auth.mode must be sha256 or plaintext, got %q", c.Auth.Mode)
	}
	switch c.Index.Backend {
	case "file", "sqlite", "chroma":
	default:
		return fmt.Errorf("index.backend must be file, sqlite or chroma, got %q", c.Index.Backend)
	}
	switch c.Embedder.Type {
	case "hashing", "ollama":
	default:
		return fmt.Errorf("embedder.type must be hashing or ollama, got %q", c.Embedder.Type)
	}
	switch c.LLM.Provider {
	case "extractive":
	case "gemini":
		if c.LLM.APIKey == "" {
			return fmt.Errorf("llm.provider gemini requires GEMINI_API_KEY")
		}
	default:
		return fmt.Errorf("llm.provider must be extractive or gemini, got %q", c.LLM.Provider)
	}
	if c.Index.ChunkSize <= 0 {
		return fmt.Errorf("index.chunk_size must be greater than zero")
	}
	if c.Index.ChunkOverlap < 0 || c.Index.ChunkOverlap >= c.Index.ChunkSize {
		return fmt.Errorf("index.chunk_overlap must be between zero and index.chunk_size")
	}
	if c.Embedder.Type == "hashing" && c.Embedder.Dimensions <= 0 {
		return fmt.Errorf("embedder.dimensions must be greater than zero")
	}
	if c.Index.TopK <= 0 {
		c.Index.TopK = 2
	}
	return nil
}
