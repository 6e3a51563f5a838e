// Package gcs archives report blobs in a Google Cloud Storage bucket.
package gcs

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"sort"

	"cloud.google.com/go/storage"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"

	"markercompare/internal/blob/core"
)

const checksumMetaKey = "sha256"

// Config selects the bucket and optional client options (emulator endpoint,
// credentials file).
type Config struct {
	Bucket          string `yaml:"bucket"`
	Endpoint        string `yaml:"endpoint"`
	CredentialsFile string `yaml:"credentials_file"`
}

// ConfigFromEnv reads MARKERCOMPARE_BLOB_GCS_BUCKET, MARKERCOMPARE_BLOB_GCS_ENDPOINT
// and GOOGLE_APPLICATION_CREDENTIALS.
func ConfigFromEnv() Config {
	return Config{
		Bucket:          os.Getenv("MARKERCOMPARE_BLOB_GCS_BUCKET"),
		Endpoint:        os.Getenv("MARKERCOMPARE_BLOB_GCS_ENDPOINT"),
		CredentialsFile: os.Getenv("GOOGLE_APPLICATION_CREDENTIALS"),
	}
}

// Store implements core.Store on one GCS bucket.
type Store struct {
	client *storage.Client
	bucket *storage.BucketHandle
	name   string
}

// New opens a storage client for cfg.Bucket.
func New(ctx context.Context, cfg Config) (*Store, error) {
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("gcs bucket required")
	}
	var opts []option.ClientOption
	if cfg.Endpoint != "" {
		opts = append(opts, option.WithEndpoint(cfg.Endpoint), option.WithoutAuthentication())
	} else if cfg.CredentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(cfg.CredentialsFile))
	}
	client, err := storage.NewClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("gcs client: %w", err)
	}
	return &Store{client: client, bucket: client.Bucket(cfg.Bucket), name: cfg.Bucket}, nil
}

// Driver returns the blob driver identifier.
func (s *Store) Driver() core.Driver { return core.DriverGCS }

// Close releases the storage client.
func (s *Store) Close() error { return s.client.Close() }

// Put writes r under key with a does-not-exist precondition.
func (s *Store) Put(ctx context.Context, key string, r io.Reader, opts core.PutOptions) (core.Info, error) {
	clean, err := core.CleanKey(key)
	if err != nil {
		return core.Info{}, err
	}
	body, err := io.ReadAll(r)
	if err != nil {
		return core.Info{}, err
	}
	sum := sha256.Sum256(body)
	meta := core.CloneMetadata(opts.Metadata)
	if meta == nil {
		meta = map[string]string{}
	}
	meta[checksumMetaKey] = hex.EncodeToString(sum[:])

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	// writer attributes must be set before the first Write
	w := s.bucket.Object(clean).If(storage.Conditions{DoesNotExist: true}).NewWriter(ctx)
	w.ContentType = opts.ContentType
	w.Metadata = meta
	if _, err := w.Write(body); err != nil {
		cancel()
		_ = w.Close()
		return core.Info{}, fmt.Errorf("put %s: %w", clean, err)
	}
	if err := w.Close(); err != nil {
		var gerr *googleapi.Error
		if errors.As(err, &gerr) && gerr.Code == http.StatusPreconditionFailed {
			return core.Info{}, fmt.Errorf("put %s: %w", clean, core.ErrExists)
		}
		return core.Info{}, fmt.Errorf("put %s: %w", clean, err)
	}
	return toInfo(w.Attrs()), nil
}

// Get opens a reader on key.
func (s *Store) Get(ctx context.Context, key string) (core.Info, io.ReadCloser, error) {
	info, err := s.Head(ctx, key)
	if err != nil {
		return core.Info{}, nil, err
	}
	rc, err := s.bucket.Object(key).NewReader(ctx)
	if err != nil {
		return core.Info{}, nil, mapErr("get", key, err)
	}
	return info, rc, nil
}

// Head returns object attributes.
func (s *Store) Head(ctx context.Context, key string) (core.Info, error) {
	attrs, err := s.bucket.Object(key).Attrs(ctx)
	if err != nil {
		return core.Info{}, mapErr("head", key, err)
	}
	return toInfo(attrs), nil
}

// Delete removes key, reporting whether it existed.
func (s *Store) Delete(ctx context.Context, key string) (bool, error) {
	err := s.bucket.Object(key).Delete(ctx)
	if errors.Is(err, storage.ErrObjectNotExist) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("delete %s: %w", key, err)
	}
	return true, nil
}

// List iterates objects under prefix.
func (s *Store) List(ctx context.Context, prefix string) ([]core.Info, error) {
	var infos []core.Info
	it := s.bucket.Objects(ctx, &storage.Query{Prefix: prefix})
	for {
		attrs, err := it.Next()
		if errors.Is(err, iterator.Done) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("list %s: %w", prefix, err)
		}
		infos = append(infos, toInfo(attrs))
	}
	sort.Slice(infos, func(i, j int) bool { return infos[i].Key < infos[j].Key })
	return infos, nil
}

func mapErr(op, key string, err error) error {
	if errors.Is(err, storage.ErrObjectNotExist) {
		return fmt.Errorf("%s %s: %w", op, key, core.ErrNotFound)
	}
	return fmt.Errorf("%s %s: %w", op, key, err)
}

func toInfo(attrs *storage.ObjectAttrs) core.Info {
	if attrs == nil {
		return core.Info{}
	}
	info := core.Info{
		Key:          attrs.Name,
		Size:         attrs.Size,
		ContentType:  attrs.ContentType,
		LastModified: attrs.Updated,
	}
	for k, v := range attrs.Metadata {
		if k == checksumMetaKey {
			info.Checksum = v
			continue
		}
		if info.Metadata == nil {
			info.Metadata = map[string]string{}
		}
		info.Metadata[k] = v
	}
	return info
}
