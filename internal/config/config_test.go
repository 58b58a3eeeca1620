package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfig_Valid(t *testing.T) {
	cfg := DefaultConfig()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, StorageModeLocal, cfg.Storage.Mode)
	assert.Equal(t, 5, cfg.LLM.MaxAttempts)
	assert.Equal(t, time.Second, cfg.LLM.InitialBackoff)
	assert.Equal(t, 24*time.Hour, cfg.Cache.TTL)
}

func TestLoad_YAMLAndRelativePaths(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "pipeline.yaml")
	yamlDoc := `
server:
  port: 9100
storage:
  mode: local
  local_root: store
cache:
  driver: memory
  ttl: 1h
extraction:
  engine: plain
history:
  path: runs.db
`
	require.NoError(t, os.WriteFile(path, []byte(yamlDoc), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 9100, cfg.Server.Port)
	assert.Equal(t, filepath.Join(dir, "store"), cfg.Storage.LocalRoot)
	assert.Equal(t, filepath.Join(dir, "runs.db"), cfg.History.Path)
	assert.Equal(t, CacheDriverMemory, cfg.Cache.Driver)
	assert.Equal(t, time.Hour, cfg.Cache.TTL)
	assert.Equal(t, "plain", cfg.Extraction.Engine)
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "sk-test")
	t.Setenv("S3_BUCKET_NAME", "resumes")
	t.Setenv("S3_REGION", "eu-west-1")
	t.Setenv("STORAGE_MODE", "remote")
	t.Setenv("REDIS_URL", "redis://cache:6379")
	t.Setenv("DEBUG", "true")
	t.Setenv("API_TOKEN", "secret")
	t.Setenv("SOURCE_ROOT", "/srv/resumes")

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "sk-test", cfg.LLM.APIKey)
	assert.Equal(t, "resumes", cfg.Storage.Remote.Bucket)
	assert.Equal(t, "eu-west-1", cfg.Storage.Remote.Region)
	assert.True(t, cfg.UseRemoteStorage())
	assert.Equal(t, CacheDriverRedis, cfg.Cache.Driver)
	assert.Equal(t, "cache:6379", cfg.Cache.Redis.Addr)
	assert.True(t, cfg.Observability.Debug)
	assert.Equal(t, "secret", cfg.Server.APIToken)
	assert.Equal(t, "/srv/resumes", cfg.Server.SourceRoot)
}

func TestLoad_UseLocalWinsOverMode(t *testing.T) {
	t.Setenv("STORAGE_MODE", "remote")
	t.Setenv("S3_USE_LOCAL", "true")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.False(t, cfg.UseRemoteStorage())
}

func TestValidate_Errors(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"bad port", func(c *Config) { c.Server.Port = 0 }},
		{"bad storage mode", func(c *Config) { c.Storage.Mode = "s3" }},
		{"remote without bucket", func(c *Config) {
			c.Storage.Mode = StorageModeRemote
			c.Storage.Remote.Bucket = ""
		}},
		{"bad cache driver", func(c *Config) { c.Cache.Driver = "memcached" }},
		{"zero ttl", func(c *Config) { c.Cache.TTL = 0 }},
		{"no attempts", func(c *Config) { c.LLM.MaxAttempts = 0 }},
		{"bad engine", func(c *Config) { c.Extraction.Engine = "ocr" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}
