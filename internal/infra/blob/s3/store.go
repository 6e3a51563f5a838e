// Package s3 archives report blobs in an S3-compatible bucket (AWS S3 or MinIO).
package s3

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
	"strings"
	"time"

	aws "github.com/aws/aws-sdk-go-v2/aws"
	awshttp "github.com/aws/aws-sdk-go-v2/aws/transport/http"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"markercompare/internal/blob/core"
)

// checksumMetaKey stores the sha256 of the payload as user metadata.
const checksumMetaKey = "sha256"

// Store implements core.Store on a single bucket. Keys map to object keys.
type Store struct {
	client *s3.Client
	bucket string
}

// Config holds explicit construction parameters.
type Config struct {
	Region    string `yaml:"region"`
	Bucket    string `yaml:"bucket"`
	Endpoint  string `yaml:"endpoint"` // optional; enables a custom endpoint (e.g. MinIO)
	PathStyle bool   `yaml:"path_style"`
}

// Environment variables:
//
//	MARKERCOMPARE_BLOB_S3_BUCKET=<bucket> (required)
//	MARKERCOMPARE_BLOB_S3_REGION=<region> (default us-east-1)
//	MARKERCOMPARE_BLOB_S3_ENDPOINT=<url> (optional, for MinIO)
//	MARKERCOMPARE_BLOB_S3_PATH_STYLE=true|false (default false)
//	AWS_ACCESS_KEY_ID / AWS_SECRET_ACCESS_KEY / AWS_SESSION_TOKEN (optional)

// New creates an S3 blob store from cfg using the default credentials chain.
func New(ctx context.Context, cfg Config) (*Store, error) {
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("s3 bucket required")
	}
	region := cfg.Region
	if region == "" {
		region = "us-east-1"
	}
	awsCfg, err := config.LoadDefaultConfig(ctx, config.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}
	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		o.UsePathStyle = cfg.PathStyle
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
	})
	return &Store{client: client, bucket: cfg.Bucket}, nil
}

// ConfigFromEnv reads the S3 settings from the process environment.
func ConfigFromEnv() Config {
	return Config{
		Bucket:    os.Getenv("MARKERCOMPARE_BLOB_S3_BUCKET"),
		Region:    os.Getenv("MARKERCOMPARE_BLOB_S3_REGION"),
		Endpoint:  os.Getenv("MARKERCOMPARE_BLOB_S3_ENDPOINT"),
		PathStyle: strings.EqualFold(os.Getenv("MARKERCOMPARE_BLOB_S3_PATH_STYLE"), "true"),
	}
}

// Driver returns the blob driver identifier.
func (s *Store) Driver() core.Driver { return core.DriverS3 }

// Bucket returns the configured bucket name.
func (s *Store) Bucket() string { return s.bucket }

// Put uploads r under key unless the key already exists.
func (s *Store) Put(ctx context.Context, key string, r io.Reader, opts core.PutOptions) (core.Info, error) {
	clean, err := core.CleanKey(key)
	if err != nil {
		return core.Info{}, err
	}
	if _, err := s.Head(ctx, clean); err == nil {
		return core.Info{}, fmt.Errorf("put %s: %w", clean, core.ErrExists)
	} else if !errors.Is(err, core.ErrNotFound) {
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
	input := &s3.PutObjectInput{
		Bucket:   aws.String(s.bucket),
		Key:      aws.String(clean),
		Body:     strings.NewReader(string(body)),
		Metadata: meta,
	}
	if opts.ContentType != "" {
		input.ContentType = aws.String(opts.ContentType)
	}
	if _, err := s.client.PutObject(ctx, input); err != nil {
		return core.Info{}, fmt.Errorf("put %s: %w", clean, err)
	}
	return core.Info{
		Key:          clean,
		Size:         int64(len(body)),
		ContentType:  opts.ContentType,
		Checksum:     meta[checksumMetaKey],
		Metadata:     stripChecksum(meta),
		LastModified: time.Now().UTC(),
	}, nil
}

// Get downloads key; the caller closes the reader.
func (s *Store) Get(ctx context.Context, key string) (core.Info, io.ReadCloser, error) {
	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{Bucket: aws.String(s.bucket), Key: aws.String(key)})
	if err != nil {
		return core.Info{}, nil, mapNotFound("get", key, err)
	}
	info := toInfo(key, out.ContentLength, out.ContentType, out.Metadata, out.LastModified)
	return info, out.Body, nil
}

// Head returns object metadata.
func (s *Store) Head(ctx context.Context, key string) (core.Info, error) {
	out, err := s.client.HeadObject(ctx, &s3.HeadObjectInput{Bucket: aws.String(s.bucket), Key: aws.String(key)})
	if err != nil {
		return core.Info{}, mapNotFound("head", key, err)
	}
	return toInfo(key, out.ContentLength, out.ContentType, out.Metadata, out.LastModified), nil
}

// Delete removes key, reporting whether it existed.
func (s *Store) Delete(ctx context.Context, key string) (bool, error) {
	if _, err := s.Head(ctx, key); err != nil {
		if errors.Is(err, core.ErrNotFound) {
			return false, nil
		}
		return false, err
	}
	if _, err := s.client.DeleteObject(ctx, &s3.DeleteObjectInput{Bucket: aws.String(s.bucket), Key: aws.String(key)}); err != nil {
		return false, fmt.Errorf("delete %s: %w", key, err)
	}
	return true, nil
}

// List pages through ListObjectsV2 collecting keys under prefix.
func (s *Store) List(ctx context.Context, prefix string) ([]core.Info, error) {
	var infos []core.Info
	p := s3.NewListObjectsV2Paginator(s.client, &s3.ListObjectsV2Input{Bucket: aws.String(s.bucket), Prefix: aws.String(prefix)})
	for p.HasMorePages() {
		out, err := p.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("list %s: %w", prefix, err)
		}
		for _, obj := range out.Contents {
			infos = append(infos, core.Info{
				Key:          aws.ToString(obj.Key),
				Size:         aws.ToInt64(obj.Size),
				LastModified: aws.ToTime(obj.LastModified),
			})
		}
	}
	sort.Slice(infos, func(i, j int) bool { return infos[i].Key < infos[j].Key })
	return infos, nil
}

func mapNotFound(op, key string, err error) error {
	var re *awshttp.ResponseError
	if errors.As(err, &re) && re.HTTPStatusCode() == http.StatusNotFound {
		return fmt.Errorf("%s %s: %w", op, key, core.ErrNotFound)
	}
	return fmt.Errorf("%s %s: %w", op, key, err)
}

func toInfo(key string, size *int64, contentType *string, md map[string]string, lastModified *time.Time) core.Info {
	info := core.Info{
		Key:          key,
		Size:         aws.ToInt64(size),
		ContentType:  aws.ToString(contentType),
		Checksum:     md[checksumMetaKey],
		Metadata:     stripChecksum(md),
		LastModified: time.Now().UTC(),
	}
	if lastModified != nil {
		info.LastModified = *lastModified
	}
	return info
}

func stripChecksum(md map[string]string) map[string]string {
	out := make(map[string]string, len(md))
	for k, v := range md {
		if k == checksumMetaKey {
			continue
		}
		out[k] = v
	}
	if len(out) == 0 {
		return nil
	}
	return out
}
