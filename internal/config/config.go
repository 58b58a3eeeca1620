// Package config provides unified configuration loading for the content pipeline.
// Supports YAML files, environment variables, and programmatic overrides.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Storage modes
const (
	StorageModeLocal  = "local"
	StorageModeRemote = "remote"
)

// Cache drivers
const (
	CacheDriverMemory  = "memory"
	CacheDriverStorage = "storage"
	CacheDriverRedis   = "redis"
)

// Config holds all configuration for the content pipeline.
type Config struct {
	Server        ServerConfig        `yaml:"server"`
	Storage       StorageConfig       `yaml:"storage"`
	Cache         CacheConfig         `yaml:"cache"`
	LLM           LLMConfig           `yaml:"llm"`
	Extraction    ExtractionConfig    `yaml:"extraction"`
	History       HistoryConfig       `yaml:"history"`
	Watch         WatchConfig         `yaml:"watch"`
	Observability ObservabilityConfig `yaml:"observability"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host             string        `yaml:"host"`
	Port             int           `yaml:"port"`
	ReadTimeout      time.Duration `yaml:"read_timeout"`
	WriteTimeout     time.Duration `yaml:"write_timeout"`
	IdleTimeout      time.Duration `yaml:"idle_timeout"`
	GracefulShutdown time.Duration `yaml:"graceful_shutdown"`
	SourcePath       string        `yaml:"source_path"`
	// SourceRoot, when set, lets API clients name any PDF beneath it.
	SourceRoot string `yaml:"source_root"`
	// APIToken is the bearer token required on /v1 routes. Empty disables
	// authentication.
	APIToken string `yaml:"api_token"`
}

// StorageConfig selects and configures the storage backend.
type StorageConfig struct {
	Mode      string       `yaml:"mode"` // local or remote
	LocalRoot string       `yaml:"local_root"`
	Remote    RemoteConfig `yaml:"remote"`
}

// RemoteConfig holds object store settings.
type RemoteConfig struct {
	URL            string        `yaml:"url"`
	Bucket         string        `yaml:"bucket"`
	Region         string        `yaml:"region"`
	ConnectTimeout time.Duration `yaml:"connect_timeout"`
}

// CacheConfig holds dynamic cache settings.
type CacheConfig struct {
	Driver string        `yaml:"driver"` // memory, storage or redis
	TTL    time.Duration `yaml:"ttl"`
	Redis  RedisConfig   `yaml:"redis"`
}

// RedisConfig holds Redis-specific settings.
type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	PoolSize int    `yaml:"pool_size"`
	Prefix   string `yaml:"prefix"`
}

// LLMConfig holds enrichment service settings.
type LLMConfig struct {
	APIKey         string        `yaml:"api_key"`
	BaseURL        string        `yaml:"base_url"`
	Model          string        `yaml:"model"`
	RequestTimeout time.Duration `yaml:"request_timeout"`
	MaxAttempts    int           `yaml:"max_attempts"`
	InitialBackoff time.Duration `yaml:"initial_backoff"`
	MaxBackoff     time.Duration `yaml:"max_backoff"`
}

// ExtractionConfig selects the PDF text engine.
type ExtractionConfig struct {
	Engine string `yaml:"engine"` // fitz or plain
}

// HistoryConfig holds run history settings.
type HistoryConfig struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path"`
}

// WatchConfig holds source watcher settings.
type WatchConfig struct {
	Debounce time.Duration `yaml:"debounce"`
}

// ObservabilityConfig holds logging settings.
type ObservabilityConfig struct {
	LogLevel  string `yaml:"log_level"`
	LogFormat string `yaml:"log_format"`
	Debug     bool   `yaml:"debug"`
}

// Load reads configuration from a YAML file and applies environment overrides.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config file: %w", err)
		}

		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config file: %w", err)
		}

		cfg.Storage.LocalRoot = ResolveRelativePath(path, cfg.Storage.LocalRoot)
		cfg.Server.SourceRoot = ResolveRelativePath(path, cfg.Server.SourceRoot)
		cfg.History.Path = ResolveRelativePath(path, cfg.History.Path)
	}

	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}

	return cfg, nil
}

// DefaultConfig returns a configuration with sensible defaults for development.
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host:             "0.0.0.0",
			Port:             8090,
			ReadTimeout:      30 * time.Second,
			WriteTimeout:     5 * time.Minute,
			IdleTimeout:      120 * time.Second,
			GracefulShutdown: 10 * time.Second,
		},
		Storage: StorageConfig{
			Mode:      StorageModeLocal,
			LocalRoot: "data",
			Remote: RemoteConfig{
				URL:            "nats://localhost:4222",
				Bucket:         "content-pipeline",
				Region:         "us-east-1",
				ConnectTimeout: 5 * time.Second,
			},
		},
		Cache: CacheConfig{
			Driver: CacheDriverStorage,
			TTL:    24 * time.Hour,
			Redis: RedisConfig{
				Addr:     "localhost:6379",
				PoolSize: 10,
				Prefix:   "cp:",
			},
		},
		LLM: LLMConfig{
			BaseURL:        "https://api.openai.com/v1",
			Model:          "gpt-4o-mini",
			RequestTimeout: 60 * time.Second,
			MaxAttempts:    5,
			InitialBackoff: time.Second,
			MaxBackoff:     16 * time.Second,
		},
		Extraction: ExtractionConfig{
			Engine: "fitz",
		},
		History: HistoryConfig{
			Enabled: true,
			Path:    "data/history.db",
		},
		Watch: WatchConfig{
			Debounce: 500 * time.Millisecond,
		},
		Observability: ObservabilityConfig{
			LogLevel:  "info",
			LogFormat: "console",
		},
	}
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", c.Server.Port)
	}

	switch c.Storage.Mode {
	case StorageModeLocal:
	case StorageModeRemote:
		if c.Storage.Remote.URL == "" || c.Storage.Remote.Bucket == "" {
			return fmt.Errorf("remote storage requires url and bucket")
		}
	default:
		return fmt.Errorf("invalid storage mode: %s", c.Storage.Mode)
	}

	if c.Storage.LocalRoot == "" {
		return fmt.Errorf("storage local_root is required")
	}

	switch c.Cache.Driver {
	case CacheDriverMemory, CacheDriverStorage, CacheDriverRedis:
	default:
		return fmt.Errorf("invalid cache driver: %s", c.Cache.Driver)
	}

	if c.Cache.TTL <= 0 {
		return fmt.Errorf("cache ttl must be positive")
	}

	if c.LLM.MaxAttempts < 1 {
		return fmt.Errorf("llm max_attempts must be at least 1")
	}

	if c.Extraction.Engine != "fitz" && c.Extraction.Engine != "plain" {
		return fmt.Errorf("invalid extraction engine: %s", c.Extraction.Engine)
	}

	return nil
}

// UseRemoteStorage reports whether the remote object store is configured.
func (c *Config) UseRemoteStorage() bool {
	return c.Storage.Mode == StorageModeRemote
}

// applyEnvOverrides applies environment variable overrides to config.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("SERVER_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Server.Port = port
		}
	}

	if v := os.Getenv("SERVER_HOST"); v != "" {
		cfg.Server.Host = v
	}

	if v := os.Getenv("SOURCE_PDF_PATH"); v != "" {
		cfg.Server.SourcePath = v
	}

	if v := os.Getenv("SOURCE_ROOT"); v != "" {
		cfg.Server.SourceRoot = v
	}

	if v := os.Getenv("API_TOKEN"); v != "" {
		cfg.Server.APIToken = v
	}

	if v := os.Getenv("OPENAI_API_KEY"); v != "" {
		cfg.LLM.APIKey = v
	}

	if v := os.Getenv("OPENAI_BASE_URL"); v != "" {
		cfg.LLM.BaseURL = v
	}

	if v := os.Getenv("LLM_MODEL"); v != "" {
		cfg.LLM.Model = v
	}

	if v := os.Getenv("S3_BUCKET_NAME"); v != "" {
		cfg.Storage.Remote.Bucket = v
	}

	if v := os.Getenv("S3_REGION"); v != "" {
		cfg.Storage.Remote.Region = v
	}

	if v := os.Getenv("STORAGE_REMOTE_URL"); v != "" {
		cfg.Storage.Remote.URL = v
	}

	if v := os.Getenv("STORAGE_LOCAL_ROOT"); v != "" {
		cfg.Storage.LocalRoot = v
	}

	if v := os.Getenv("STORAGE_MODE"); v != "" {
		cfg.Storage.Mode = strings.ToLower(v)
	}

	// S3_USE_LOCAL wins over STORAGE_MODE so a developer can always force local.
	if v := os.Getenv("S3_USE_LOCAL"); v == "true" {
		cfg.Storage.Mode = StorageModeLocal
	}

	if v := os.Getenv("REDIS_URL"); v != "" {
		cfg.Cache.Driver = CacheDriverRedis
		cfg.Cache.Redis.Addr = strings.TrimPrefix(v, "redis://")
	}

	if v := os.Getenv("EXTRACTION_ENGINE"); v != "" {
		cfg.Extraction.Engine = v
	}

	if v := os.Getenv("HISTORY_PATH"); v != "" {
		cfg.History.Path = v
	}

	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.Observability.LogLevel = v
	}

	if v := os.Getenv("LOG_FORMAT"); v != "" {
		cfg.Observability.LogFormat = v
	}

	if v := os.Getenv("DEBUG"); v == "true" || v == "1" {
		cfg.Observability.Debug = true
	}
}

// ResolveRelativePath resolves a path relative to the config file location.
func ResolveRelativePath(configPath, targetPath string) string {
	if targetPath == "" || filepath.IsAbs(targetPath) {
		return targetPath
	}
	configDir := filepath.Dir(configPath)
	return filepath.Join(configDir, targetPath)
}
