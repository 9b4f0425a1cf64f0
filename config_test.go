package main

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func clearConfigEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{
		"WISEFLOW_CONFIG", "PORT", "DB_PATH", "JWT_SECRET", "STORAGE_DIR", "STORAGE_BUCKET",
		"STATIC_DIR", "PUBLIC_URL", "PERSIST_TIMEOUT", "TRASH_RETENTION", "ALLOWED_ORIGINS",
		"SMTP_HOST", "SMTP_PORT", "SMTP_USERNAME", "SMTP_PASSWORD", "SMTP_FROM",
	} {
		t.Setenv(key, "")
	}
}

func TestLoadConfigDefaults(t *testing.T) {
	clearConfigEnv(t)

	cfg, err := LoadConfig(filepath.Join(t.TempDir(), "missing.env"))
	require.NoError(t, err)

	assert.Equal(t, "3001", cfg.Port)
	assert.Equal(t, "./wiseflow.db", cfg.DBPath)
	assert.Equal(t, "wiseflow", cfg.StorageBucket)
	assert.Equal(t, "http://localhost:3001", cfg.PublicURL)
	assert.Equal(t, 10*time.Second, cfg.PersistTimeout)
	assert.Equal(t, 720*time.Hour, cfg.TrashRetention)
	assert.Equal(t, []string{"*"}, cfg.AllowedOrigins)
}

func TestLoadConfigLayers(t *testing.T) {
	clearConfigEnv(t)
	dir := t.TempDir()

	yamlPath := filepath.Join(dir, "wiseflow.yaml")
	require.NoError(t, os.WriteFile(yamlPath, []byte(`
port: "8080"
storage_bucket: uploads
persist_timeout: 3s
allowed_origins: [https://a.example.com]
smtp:
  host: smtp.example.com
  port: "587"
`), 0o600))
	t.Setenv("WISEFLOW_CONFIG", yamlPath)
	t.Setenv("STORAGE_BUCKET", "from-env")
	t.Setenv("ALLOWED_ORIGINS", "https://b.example.com, https://c.example.com")

	cfg, err := LoadConfig(filepath.Join(dir, "missing.env"))
	require.NoError(t, err)

	assert.Equal(t, "8080", cfg.Port)
	assert.Equal(t, "from-env", cfg.StorageBucket)
	assert.Equal(t, 3*time.Second, cfg.PersistTimeout)
	assert.Equal(t, []string{"https://b.example.com", "https://c.example.com"}, cfg.AllowedOrigins)
	assert.Equal(t, "smtp.example.com", cfg.SMTP.Host)
	assert.Equal(t, "http://localhost:8080", cfg.PublicURL)
}

func TestLoadConfigRejectsBadDuration(t *testing.T) {
	clearConfigEnv(t)
	t.Setenv("TRASH_RETENTION", "a month")

	_, err := LoadConfig(filepath.Join(t.TempDir(), "missing.env"))
	assert.ErrorContains(t, err, "TRASH_RETENTION")
}

func TestLoadEnvKeepsExistingValues(t *testing.T) {
	clearConfigEnv(t)
	t.Setenv("PORT", "9000")

	envFile := filepath.Join(t.TempDir(), ".env")
	require.NoError(t, os.WriteFile(envFile, []byte(`
# local settings
PORT=4000
export JWT_SECRET="s3cret"
not a setting
`), 0o600))

	require.NoError(t, LoadEnv(envFile))
	assert.Equal(t, "9000", os.Getenv("PORT"))
	assert.Equal(t, "s3cret", os.Getenv("JWT_SECRET"))
}
