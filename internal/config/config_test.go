package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultIsValid(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, "fs", cfg.Blob.Driver)
	assert.Equal(t, "sqlite", cfg.Storage.Driver)
	assert.Equal(t, ".txt", cfg.Parse.Extension)
	assert.GreaterOrEqual(t, cfg.Parse.Workers, 1)
}

func TestLoadMissingFileFallsBackToDefaults(t *testing.T) {
	t.Setenv("FERMENTLAB_STORAGE_DRIVER", "")
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)
	assert.Equal(t, Default().KEGG, cfg.KEGG)
}

func TestSaveLoadRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "conf", "gcreport.yaml")
	cfg := Default()
	cfg.Parse.Workers = 3
	cfg.Parse.Recursive = true
	cfg.Blob.Driver = "s3"
	cfg.Blob.S3.Bucket = "lab-artifacts"
	cfg.Blob.S3.AccessKeyID = "never-written"
	require.NoError(t, cfg.Save(path))

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.NotContains(t, string(raw), "never-written")

	loaded, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 3, loaded.Parse.Workers)
	assert.True(t, loaded.Parse.Recursive)
	assert.Equal(t, "lab-artifacts", loaded.Blob.S3.Bucket)
	assert.Empty(t, loaded.Blob.S3.AccessKeyID)
}

func TestLoadPartialFileKeepsOtherDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "gcreport.yaml")
	require.NoError(t, os.WriteFile(path, []byte("storage:\n  driver: postgres\n  postgres_dsn: postgres://lab/gc\n"), 0o644))
	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "postgres", cfg.Storage.Driver)
	assert.Equal(t, "postgres://lab/gc", cfg.Storage.PostgresDSN)
	assert.Equal(t, "fs", cfg.Blob.Driver)
}

func TestLoadRejectsBadYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "gcreport.yaml")
	require.NoError(t, os.WriteFile(path, []byte("parse: [unterminated"), 0o644))
	_, err := Load(path)
	assert.Error(t, err)
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("FERMENTLAB_BLOB_DRIVER", "s3")
	t.Setenv("FERMENTLAB_BLOB_S3_BUCKET", "env-bucket")
	t.Setenv("FERMENTLAB_BLOB_S3_PATH_STYLE", "true")
	t.Setenv("FERMENTLAB_STORAGE_DRIVER", "memory")
	t.Setenv("FERMENTLAB_LOG_LEVEL", "debug")
	t.Setenv("FERMENTLAB_WORKERS", "7")
	t.Setenv("FERMENTLAB_KEGG_URL", "http://kegg.test")

	cfg, err := Load(filepath.Join(t.TempDir(), "none.yaml"))
	require.NoError(t, err)
	assert.Equal(t, "s3", cfg.Blob.Driver)
	assert.Equal(t, "env-bucket", cfg.Blob.S3.Bucket)
	assert.True(t, cfg.Blob.S3.PathStyle)
	assert.Equal(t, "memory", cfg.Storage.Driver)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, 7, cfg.Parse.Workers)
	assert.Equal(t, "http://kegg.test", cfg.KEGG.BaseURL)
	require.NoError(t, cfg.Validate())
}

func TestEnvOverridesRejectBadNumbers(t *testing.T) {
	t.Setenv("FERMENTLAB_WORKERS", "many")
	_, err := Load(filepath.Join(t.TempDir(), "none.yaml"))
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	cases := map[string]func(*Config){
		"log level":       func(c *Config) { c.Log.Level = "shout" },
		"blob driver":     func(c *Config) { c.Blob.Driver = "ftp" },
		"s3 bucket":       func(c *Config) { c.Blob.Driver = "s3" },
		"storage driver":  func(c *Config) { c.Storage.Driver = "mongo" },
		"workers":         func(c *Config) { c.Parse.Workers = 0 },
		"extension":       func(c *Config) { c.Parse.Extension = "txt" },
		"kegg base url":   func(c *Config) { c.KEGG.BaseURL = "" },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			cfg := Default()
			mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestKEGGTimeout(t *testing.T) {
	cfg := Default()
	cfg.KEGG.Timeout = "5s"
	assert.Equal(t, 5*time.Second, cfg.KEGGTimeout())
	cfg.KEGG.Timeout = "soon"
	assert.Equal(t, 30*time.Second, cfg.KEGGTimeout())
}
