// Package archive keeps the raw output of every extraction call in object
// storage so that malformed replies can be inspected after the fact.
package archive

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"path"
	"strings"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"nexus/api/internal/reconcile"
)

type Config struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	UseSSL    bool
}

// objectPutter is the slice of the MinIO client the archive writes through.
type objectPutter interface {
	PutObject(ctx context.Context, bucketName, objectName string, reader io.Reader, objectSize int64, opts minio.PutObjectOptions) (minio.UploadInfo, error)
}

type MinIO struct {
	client objectPutter
	bucket string
}

// NewMinIO connects to the endpoint and creates the bucket when missing.
func NewMinIO(ctx context.Context, cfg Config) (*MinIO, error) {
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("create minio client: %w", err)
	}

	exists, err := client.BucketExists(ctx, cfg.Bucket)
	if err != nil {
		return nil, fmt.Errorf("check bucket %s: %w", cfg.Bucket, err)
	}
	if !exists {
		if err := client.MakeBucket(ctx, cfg.Bucket, minio.MakeBucketOptions{}); err != nil {
			return nil, fmt.Errorf("create bucket %s: %w", cfg.Bucket, err)
		}
	}
	return &MinIO{client: client, bucket: cfg.Bucket}, nil
}

// Store writes one extraction record as JSON.
func (m *MinIO) Store(ctx context.Context, record reconcile.Record) error {
	payload, err := json.MarshalIndent(record, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal extraction record: %w", err)
	}
	_, err = m.client.PutObject(ctx, m.bucket, ObjectName(record), bytes.NewReader(payload), int64(len(payload)), minio.PutObjectOptions{
		ContentType: "application/json",
	})
	if err != nil {
		return fmt.Errorf("put extraction record: %w", err)
	}
	return nil
}

// ObjectName is extractions/<project>/<chat>/<timestamp>.json.
func ObjectName(record reconcile.Record) string {
	stamp := record.CreatedAt.UTC().Format("20060102T150405.000000000Z")
	return path.Join("extractions", safeSegment(record.ProjectID), safeSegment(record.ChatID), stamp+".json")
}

func safeSegment(value string) string {
	value = strings.Map(func(r rune) rune {
		if r == '/' || r == '\\' {
			return '_'
		}
		return r
	}, value)
	if value == "" || value == "." || value == ".." {
		return "_"
	}
	return value
}
