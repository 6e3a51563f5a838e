package blob

import (
	"context"
	"fmt"
	"os"

	gcsstore "markercompare/internal/infra/blob/gcs"
	s3store "markercompare/internal/infra/blob/s3"
)

// Config selects a blob backend.
type Config struct {
	Driver Driver    `yaml:"driver"`
	FSRoot string    `yaml:"fs_root"`
	S3     S3Config  `yaml:"s3"`
	GCS    GCSConfig `yaml:"gcs"`
}

// ConfigFromEnv reads the blob selection from environment variables.
//
//	MARKERCOMPARE_BLOB_DRIVER: fs|s3|gcs|memory (default fs)
//	MARKERCOMPARE_BLOB_FS_ROOT: directory root when driver=fs (default ./blobdata)
//	(driver specific variables are documented in the infra packages)
func ConfigFromEnv() Config {
	cfg := Config{
		Driver: Driver(os.Getenv("MARKERCOMPARE_BLOB_DRIVER")),
		FSRoot: os.Getenv("MARKERCOMPARE_BLOB_FS_ROOT"),
		S3:     s3store.ConfigFromEnv(),
		GCS:    gcsstore.ConfigFromEnv(),
	}
	if cfg.Driver == "" {
		cfg.Driver = DriverFilesystem
	}
	return cfg
}

// Open constructs the Store named by cfg.Driver.
func Open(ctx context.Context, cfg Config) (Store, error) {
	switch cfg.Driver {
	case DriverFilesystem, "":
		return NewFilesystem(cfg.FSRoot)
	case DriverS3:
		return NewS3(ctx, cfg.S3)
	case DriverGCS:
		return NewGCS(ctx, cfg.GCS)
	case DriverMemory:
		return NewMemory(), nil
	default:
		return nil, fmt.Errorf("unknown blob driver %s", cfg.Driver)
	}
}
