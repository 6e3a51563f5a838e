// Package core defines the archive abstraction for raw instrument reports.
// Every ingested report file is written once under a key derived from its
// intake batch and case folder.
package core

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"
	"time"
)

// Driver identifies a concrete blob storage backend implementation.
type Driver string

const (
	DriverFilesystem Driver = "fs"     // local filesystem (default, dev)
	DriverS3         Driver = "s3"     // S3 / MinIO compatible
	DriverGCS        Driver = "gcs"    // Google Cloud Storage
	DriverMemory     Driver = "memory" // in-memory (tests)
)

// PutOptions specifies optional parameters for Put.
type PutOptions struct {
	ContentType string
	Metadata    map[string]string
}

// Info describes a stored blob.
type Info struct {
	Key          string            `json:"key"`
	Size         int64             `json:"size_bytes"`
	ContentType  string            `json:"content_type,omitempty"`
	Checksum     string            `json:"checksum,omitempty"`
	Metadata     map[string]string `json:"metadata,omitempty"`
	LastModified time.Time         `json:"last_modified"`
}

// Store archives report payloads. Put is create-only.
type Store interface {
	Put(ctx context.Context, key string, r io.Reader, opts PutOptions) (Info, error)
	Get(ctx context.Context, key string) (Info, io.ReadCloser, error)
	Head(ctx context.Context, key string) (Info, error)
	// Delete returns (false, nil) when key does not exist.
	Delete(ctx context.Context, key string) (bool, error)
	// List returns blobs under prefix ordered by key.
	List(ctx context.Context, prefix string) ([]Info, error)
	Driver() Driver
}

var (
	// ErrExists is returned by Put when the key is already taken.
	ErrExists = errors.New("blobstore: key already exists")
	// ErrNotFound is returned by Get and Head for unknown keys.
	ErrNotFound = errors.New("blobstore: key not found")
	// ErrInvalidKey is returned for empty, absolute or escaping keys.
	ErrInvalidKey = errors.New("blobstore: invalid key")
)

// ReportPrefix is the top-level key segment for archived reports.
const ReportPrefix = "reports"

// ReportKey builds the archive key of one report file:
// reports/<bucket>/<batch>/<caseFolder>/<file>.
func ReportKey(bucket, batch, caseFolder, file string) string {
	parts := []string{ReportPrefix, bucket, batch}
	if caseFolder != "" {
		parts = append(parts, caseFolder)
	}
	parts = append(parts, path.Base(strings.ReplaceAll(file, "\\", "/")))
	return path.Join(parts...)
}

// BatchPrefix returns the key prefix holding every report of one batch.
func BatchPrefix(bucket, batch string) string {
	return path.Join(ReportPrefix, bucket, batch) + "/"
}

// CleanKey validates key and returns its normalised slash form.
func CleanKey(key string) (string, error) {
	if strings.TrimSpace(key) == "" {
		return "", fmt.Errorf("%w: empty", ErrInvalidKey)
	}
	if strings.HasPrefix(key, "/") || strings.Contains(key, "..") {
		return "", fmt.Errorf("%w: %q", ErrInvalidKey, key)
	}
	return path.Clean(strings.ReplaceAll(key, "\\", "/")), nil
}

// CloneMetadata copies a metadata map; nil stays nil.
func CloneMetadata(in map[string]string) map[string]string {
	if in == nil {
		return nil
	}
	out := make(map[string]string, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}
