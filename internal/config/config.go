// Package config loads markercompare settings from an optional YAML file
// with environment variable overrides.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"markercompare/internal/blob"
	"markercompare/internal/logging"
	"markercompare/internal/persistence"
)

// Environment variables layered over the file.
const (
	EnvHTTPAddr    = "MARKERCOMPARE_HTTP_ADDR"
	EnvLogLevel    = "MARKERCOMPARE_LOG_LEVEL"
	EnvBlobDriver  = "MARKERCOMPARE_BLOB_DRIVER"
	EnvBlobFSRoot  = "MARKERCOMPARE_BLOB_FS_ROOT"
	EnvS3Bucket    = "MARKERCOMPARE_BLOB_S3_BUCKET"
	EnvS3Region    = "MARKERCOMPARE_BLOB_S3_REGION"
	EnvS3Endpoint  = "MARKERCOMPARE_BLOB_S3_ENDPOINT"
	EnvS3PathStyle = "MARKERCOMPARE_BLOB_S3_PATH_STYLE"
	EnvGCSBucket   = "MARKERCOMPARE_BLOB_GCS_BUCKET"
	EnvGCSEndpoint = "MARKERCOMPARE_BLOB_GCS_ENDPOINT"
)

// Config is the full application configuration.
type Config struct {
	HTTP    HTTPConfig         `yaml:"http"`
	Storage persistence.Config `yaml:"storage"`
	Blob    blob.Config        `yaml:"blob"`
	Logging logging.Config     `yaml:"logging"`
	Grid    GridConfig         `yaml:"grid"`
	Compare CompareConfig      `yaml:"compare"`
	// SkipTables are placeholder tables ignored when aggregating cases.
	SkipTables []string `yaml:"skip_tables"`
}

// HTTPConfig configures the API server.
type HTTPConfig struct {
	Addr string `yaml:"addr"`
	// MaxUploadMB caps multipart upload bodies.
	MaxUploadMB int64 `yaml:"max_upload_mb"`
}

// GridConfig configures the row layout written to tables.
type GridConfig struct {
	Spacer       bool `yaml:"spacer"`
	QuoteNumeric bool `yaml:"quote_numeric"`
	FillerRows   int  `yaml:"filler_rows"`
}

// CompareConfig configures the comparison engine.
type CompareConfig struct {
	SkipUncalled bool `yaml:"skip_uncalled"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		HTTP: HTTPConfig{Addr: ":8080", MaxUploadMB: 10},
		Storage: persistence.Config{
			Driver:     persistence.DriverSQLite,
			SQLitePath: persistence.DefaultSQLitePath,
		},
		Blob: blob.Config{
			Driver: blob.DriverFilesystem,
			FSRoot: "./blobdata",
			S3:     blob.S3Config{Region: "us-east-1"},
		},
		Logging:    logging.Config{Level: "info", Format: "json"},
		Grid:       GridConfig{FillerRows: 2},
		SkipTables: []string{"Sheet1"},
	}
}

// Load reads the YAML file at path over the defaults and applies environment
// overrides. An empty or missing path yields the defaults plus environment.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
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
	}
	cfg.applyEnvOverrides()
	return cfg, nil
}

// Save writes cfg to path as YAML.
func (c *Config) Save(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	return nil
}

func (c *Config) applyEnvOverrides() {
	setString := func(dst *string, key string) {
		if v := os.Getenv(key); v != "" {
			*dst = v
		}
	}
	setString(&c.HTTP.Addr, EnvHTTPAddr)
	setString(&c.Logging.Level, EnvLogLevel)

	if v := os.Getenv(persistence.EnvDriver); v != "" {
		c.Storage.Driver = persistence.Driver(v)
	}
	setString(&c.Storage.SQLitePath, persistence.EnvSQLitePath)
	setString(&c.Storage.PostgresDSN, persistence.EnvPostgresDSN)

	if v := os.Getenv(EnvBlobDriver); v != "" {
		c.Blob.Driver = blob.Driver(v)
	}
	setString(&c.Blob.FSRoot, EnvBlobFSRoot)
	setString(&c.Blob.S3.Bucket, EnvS3Bucket)
	setString(&c.Blob.S3.Region, EnvS3Region)
	setString(&c.Blob.S3.Endpoint, EnvS3Endpoint)
	if v := os.Getenv(EnvS3PathStyle); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			c.Blob.S3.PathStyle = b
		}
	}
	setString(&c.Blob.GCS.Bucket, EnvGCSBucket)
	setString(&c.Blob.GCS.Endpoint, EnvGCSEndpoint)
	setString(&c.Blob.GCS.CredentialsFile, "GOOGLE_APPLICATION_CREDENTIALS")
}

// Validate checks driver names and driver specific requirements.
func (c *Config) Validate() error {
	var problems []string
	switch c.Storage.Driver {
	case persistence.DriverMemory, persistence.DriverSQLite:
	case persistence.DriverPostgres:
		if c.Storage.PostgresDSN == "" {
			problems = append(problems, "storage.postgres_dsn required for postgres driver")
		}
	default:
		problems = append(problems, fmt.Sprintf("unknown storage driver %q", c.Storage.Driver))
	}
	switch c.Blob.Driver {
	case blob.DriverMemory:
	case blob.DriverFilesystem:
		if c.Blob.FSRoot == "" {
			problems = append(problems, "blob.fs_root required for fs driver")
		}
	case blob.DriverS3:
		if c.Blob.S3.Bucket == "" {
			problems = append(problems, "blob.s3.bucket required for s3 driver")
		}
	case blob.DriverGCS:
		if c.Blob.GCS.Bucket == "" {
			problems = append(problems, "blob.gcs.bucket required for gcs driver")
		}
	default:
		problems = append(problems, fmt.Sprintf("unknown blob driver %q", c.Blob.Driver))
	}
	if c.HTTP.Addr == "" {
		problems = append(problems, "http.addr required")
	}
	if c.HTTP.MaxUploadMB <= 0 {
		problems = append(problems, "http.max_upload_mb must be positive")
	}
	if c.Grid.FillerRows < 0 {
		problems = append(problems, "grid.filler_rows must not be negative")
	}
	if len(problems) > 0 {
		return fmt.Errorf("invalid config: %s", strings.Join(problems, "; "))
	}
	return nil
}
