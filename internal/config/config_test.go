package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	for _, key := range []string{"PORT", "RESULT_STORE", "CORS_ALLOWED_ORIGINS", "WORKER_CONCURRENCY", "REDIS_STREAM"} {
		t.Setenv(key, "")
	}

	cfg := Load()
	assert.Equal(t, "8080", cfg.Port)
	assert.Equal(t, ResultStoreMemory, cfg.ResultStore)
	assert.Equal(t, []string{"*"}, cfg.CORSAllowedOrigins)
	assert.Equal(t, 4, cfg.WorkerConcurrency)
	assert.Equal(t, "pipeline_tasks", cfg.RedisStream)
	assert.Equal(t, 120*time.Second, cfg.ExtractorTimeout())
	assert.NoError(t, cfg.Validate())
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("RESULT_STORE", "MinIO")
	t.Setenv("MINIO_ENDPOINT", "localhost:9000")
	t.Setenv("CORS_ALLOWED_ORIGINS", " https://a.gov.br, ,https://b.gov.br ")
	t.Setenv("WORKER_CONCURRENCY", "not-a-number")
	t.Setenv("QUALITY_THRESHOLD_GOOD", "0.75")
	t.Setenv("MINIO_USE_SSL", "true")

	cfg := Load()
	assert.Equal(t, ResultStoreMinio, cfg.ResultStore)
	assert.Equal(t, []string{"https://a.gov.br", "https://b.gov.br"}, cfg.CORSAllowedOrigins)
	assert.Equal(t, 4, cfg.WorkerConcurrency)
	assert.Equal(t, 0.75, cfg.QualityThresholdGood)
	assert.True(t, cfg.MinioUseSSL)
	assert.NoError(t, cfg.Validate())
}

func TestValidate(t *testing.T) {
	base := Config{ResultStore: ResultStoreMemory, WorkerConcurrency: 1, QueueCapacity: 1, MaxFileSize: 1}

	cases := map[string]func(*Config){
		"redis without addr": func(c *Config) { c.ResultStore = ResultStoreRedis },
		"minio without host": func(c *Config) { c.ResultStore = ResultStoreMinio },
		"unknown store":      func(c *Config) { c.ResultStore = "s3" },
		"no workers":         func(c *Config) { c.WorkerConcurrency = 0 },
		"no queue":           func(c *Config) { c.QueueCapacity = 0 },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			cfg := base
			mutate(&cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestLoadDotEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, ".env")
	content := "# comment\n" +
		"export PIPELINE_TEST_A=plain # trailing\n" +
		"PIPELINE_TEST_B=\"line\\nbreak\"\n" +
		"PIPELINE_TEST_C='kept # literally'\n" +
		"PIPELINE_TEST_D=from-file\n" +
		"not a pair\n"
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	t.Setenv("PIPELINE_TEST_D", "from-env")
	for _, key := range []string{"PIPELINE_TEST_A", "PIPELINE_TEST_B", "PIPELINE_TEST_C"} {
		key := key
		t.Cleanup(func() { _ = os.Unsetenv(key) })
	}

	loaded, err := LoadDotEnv(filepath.Join(dir, "missing.env"), path)
	require.NoError(t, err)
	assert.Equal(t, []string{path}, loaded)

	assert.Equal(t, "plain", os.Getenv("PIPELINE_TEST_A"))
	assert.Equal(t, "line\nbreak", os.Getenv("PIPELINE_TEST_B"))
	assert.Equal(t, "kept # literally", os.Getenv("PIPELINE_TEST_C"))
	assert.Equal(t, "from-env", os.Getenv("PIPELINE_TEST_D"))
}
