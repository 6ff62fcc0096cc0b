// Package config loads gcreport settings from YAML with environment overrides.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"fermentlab/internal/blob"
	"fermentlab/internal/logging"
	"fermentlab/internal/persistence"
)

// DefaultPath is read when no --config flag is given.
const DefaultPath = "gcreport.yaml"

// Config holds every setting of the command line tool.
type Config struct {
	Log     logging.Config     `yaml:"log"`
	Blob    blob.Config        `yaml:"blob"`
	Storage persistence.Config `yaml:"storage"`
	Parse   ParseConfig        `yaml:"parse"`
	KEGG    KEGGConfig         `yaml:"kegg"`
	Metrics MetricsConfig      `yaml:"metrics"`
}

// ParseConfig tunes report discovery and the worker pool.
type ParseConfig struct {
	Workers   int    `yaml:"workers"`
	Extension string `yaml:"extension"`
	Recursive bool   `yaml:"recursive"`
}

// KEGGConfig points at the KEGG REST service.
type KEGGConfig struct {
	BaseURL string `yaml:"base_url"`
	Timeout string `yaml:"timeout"`
}

// MetricsConfig names the textfile written after each batch; empty disables it.
type MetricsConfig struct {
	Textfile string `yaml:"textfile"`
}

// Default returns the built-in settings.
func Default() *Config {
	return &Config{
		Log:     logging.Config{Level: "info", Format: "console"},
		Blob:    blob.Config{Driver: string(blob.DriverFilesystem), FSRoot: "gc_output"},
		Storage: persistence.Config{Driver: string(persistence.DriverSQLite), SQLitePath: filepath.Join("gc_output", "gcreport.db")},
		Parse:   ParseConfig{Workers: runtime.NumCPU(), Extension: ".txt"},
		KEGG:    KEGGConfig{BaseURL: "https://rest.kegg.jp", Timeout: "30s"},
	}
}

// Load reads path on top of the defaults. A missing file is not an error.
// Environment overrides apply in both cases.
func Load(path string) (*Config, error) {
	cfg := Default()
	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config: %w", err)
		}
	case os.IsNotExist(err):
	default:
		return nil, fmt.Errorf("failed to read config: %w", err)
	}
	if err := cfg.applyEnvOverrides(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Save writes the configuration as YAML.
func (c *Config) Save(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	return nil
}

func (c *Config) applyEnvOverrides() error {
	str := map[string]*string{
		"FERMENTLAB_LOG_LEVEL":          &c.Log.Level,
		"FERMENTLAB_LOG_FORMAT":         &c.Log.Format,
		"FERMENTLAB_BLOB_DRIVER":        &c.Blob.Driver,
		"FERMENTLAB_BLOB_FS_ROOT":       &c.Blob.FSRoot,
		"FERMENTLAB_BLOB_S3_BUCKET":     &c.Blob.S3.Bucket,
		"FERMENTLAB_BLOB_S3_REGION":     &c.Blob.S3.Region,
		"FERMENTLAB_BLOB_S3_ENDPOINT":   &c.Blob.S3.Endpoint,
		"FERMENTLAB_BLOB_S3_PREFIX":     &c.Blob.S3.Prefix,
		"FERMENTLAB_STORAGE_DRIVER":     &c.Storage.Driver,
		"FERMENTLAB_SQLITE_PATH":        &c.Storage.SQLitePath,
		"FERMENTLAB_POSTGRES_DSN":       &c.Storage.PostgresDSN,
		"FERMENTLAB_KEGG_URL":           &c.KEGG.BaseURL,
		"FERMENTLAB_METRICS_TEXTFILE":   &c.Metrics.Textfile,
		"FERMENTLAB_BLOB_S3_ACCESS_KEY": &c.Blob.S3.AccessKeyID,
		"FERMENTLAB_BLOB_S3_SECRET_KEY": &c.Blob.S3.SecretAccessKey,
	}
	for name, dst := range str {
		if v := os.Getenv(name); v != "" {
			*dst = v
		}
	}
	if v := os.Getenv("FERMENTLAB_BLOB_S3_PATH_STYLE"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("FERMENTLAB_BLOB_S3_PATH_STYLE: %w", err)
		}
		c.Blob.S3.PathStyle = b
	}
	if v := os.Getenv("FERMENTLAB_WORKERS"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("FERMENTLAB_WORKERS: %w", err)
		}
		c.Parse.Workers = n
	}
	return nil
}

// KEGGTimeout returns the KEGG request timeout, 30s when unset or invalid.
func (c *Config) KEGGTimeout() time.Duration {
	d, err := time.ParseDuration(c.KEGG.Timeout)
	if err != nil || d <= 0 {
		return 30 * time.Second
	}
	return d
}

var (
	validBlobDrivers    = []string{"fs", "s3", "memory"}
	validStorageDrivers = []string{"none", "memory", "sqlite", "postgres"}
)

// Validate reports the first setting that cannot work.
func (c *Config) Validate() error {
	if _, err := logging.ParseLevel(c.Log.Level); err != nil {
		return err
	}
	if !oneOf(c.Blob.Driver, validBlobDrivers) {
		return fmt.Errorf("invalid blob driver: %s (valid: %v)", c.Blob.Driver, validBlobDrivers)
	}
	if c.Blob.Driver == "s3" && c.Blob.S3.Bucket == "" {
		return fmt.Errorf("blob driver s3 requires a bucket (set FERMENTLAB_BLOB_S3_BUCKET)")
	}
	if !oneOf(c.Storage.Driver, validStorageDrivers) {
		return fmt.Errorf("invalid storage driver: %s (valid: %v)", c.Storage.Driver, validStorageDrivers)
	}
	if c.Parse.Workers < 1 {
		return fmt.Errorf("parse.workers must be at least 1, got %d", c.Parse.Workers)
	}
	if !strings.HasPrefix(c.Parse.Extension, ".") {
		return fmt.Errorf("parse.extension must start with a dot, got %q", c.Parse.Extension)
	}
	if c.KEGG.BaseURL == "" {
		return fmt.Errorf("kegg.base_url must be set")
	}
	return nil
}

func oneOf(v string, valid []string) bool {
	for _, s := range valid {
		if v == s {
			return true
		}
	}
	return false
}
