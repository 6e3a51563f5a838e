// Package blob re-exports the report archive abstractions and wraps the
// infra-backed implementations. Other packages depend on blob.Store only.
package blob

import (
	"context"

	"markercompare/internal/blob/core"
	fsstore "markercompare/internal/infra/blob/fs"
	gcsstore "markercompare/internal/infra/blob/gcs"
	memorystore "markercompare/internal/infra/blob/memory"
	s3store "markercompare/internal/infra/blob/s3"
)

type (
	// Driver identifies a blob backend driver.
	Driver = core.Driver
	// PutOptions configures a blob write.
	PutOptions = core.PutOptions
	// Info describes stored blob metadata.
	Info = core.Info
	// Store is the interface for blob storage backends.
	Store = core.Store
	// S3Config configures the S3 driver.
	S3Config = s3store.Config
	// GCSConfig configures the GCS driver.
	GCSConfig = gcsstore.Config
)

const (
	DriverFilesystem = core.DriverFilesystem
	DriverS3         = core.DriverS3
	DriverGCS        = core.DriverGCS
	DriverMemory     = core.DriverMemory
)

var (
	ErrExists     = core.ErrExists
	ErrNotFound   = core.ErrNotFound
	ErrInvalidKey = core.ErrInvalidKey
)

// ReportKey builds the archive key of one report file.
func ReportKey(bucket, batch, caseFolder, file string) string {
	return core.ReportKey(bucket, batch, caseFolder, file)
}

// BatchPrefix returns the key prefix of one intake batch.
func BatchPrefix(bucket, batch string) string { return core.BatchPrefix(bucket, batch) }

// NewFilesystem constructs a filesystem-backed Store rooted at root.
func NewFilesystem(root string) (Store, error) { return fsstore.New(root) }

// NewMemory returns an in-memory Store suitable for tests.
func NewMemory() Store { return memorystore.New() }

// NewS3 constructs an S3-backed Store.
func NewS3(ctx context.Context, cfg S3Config) (Store, error) { return s3store.New(ctx, cfg) }

// NewGCS constructs a Google Cloud Storage backed Store.
func NewGCS(ctx context.Context, cfg GCSConfig) (Store, error) { return gcsstore.New(ctx, cfg) }

// NewMockS3ForTests exposes the in-process S3 fake for cross-package tests.
func NewMockS3ForTests() Store { return s3store.NewMockForTests() }
