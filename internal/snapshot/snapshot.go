// Package snapshot exports assembled menu trees to S3-compatible storage.
package snapshot

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"time"

	"github.com/google/uuid"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"navtree/api/internal/tree"
)

const contentType = "application/json"

// Uploader stores an object and returns where it ended up.
type Uploader interface {
	Upload(ctx context.Context, key string, body []byte, contentType string) (string, error)
}

// Config holds the S3 connection settings.
type Config struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	UseSSL    bool
}

// MinioUploader writes snapshots to a bucket through minio-go.
type MinioUploader struct {
	client *minio.Client
	bucket string
}

// NewMinioUploader connects to the endpoint and creates the bucket if needed.
func NewMinioUploader(ctx context.Context, cfg Config) (*MinioUploader, error) {
	if cfg.Endpoint == "" || cfg.Bucket == "" {
		return nil, fmt.Errorf("snapshot storage needs an endpoint and a bucket")
	}
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("create s3 client: %w", err)
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
	return &MinioUploader{client: client, bucket: cfg.Bucket}, nil
}

func (u *MinioUploader) Upload(ctx context.Context, key string, body []byte, contentType string) (string, error) {
	info, err := u.client.PutObject(ctx, u.bucket, key, bytes.NewReader(body), int64(len(body)), minio.PutObjectOptions{
		ContentType: contentType,
	})
	if err != nil {
		return "", fmt.Errorf("upload %s: %w", key, err)
	}
	return fmt.Sprintf("s3://%s/%s", info.Bucket, info.Key), nil
}

// Document is the JSON body of a snapshot object.
type Document struct {
	Tenant     string      `json:"tenant"`
	ExportedAt time.Time   `json:"exportedAt"`
	Count      int         `json:"count"`
	Tree       []tree.Node `json:"tree"`
}

// Result describes a stored snapshot.
type Result struct {
	Key        string    `json:"key"`
	Location   string    `json:"location"`
	Count      int       `json:"count"`
	ExportedAt time.Time `json:"exportedAt"`
}

type Exporter struct {
	uploader Uploader
	now      func() time.Time
	newID    func() string
}

func NewExporter(uploader Uploader) *Exporter {
	return &Exporter{
		uploader: uploader,
		now:      func() time.Time { return time.Now().UTC() },
		newID:    func() string { return uuid.NewString() },
	}
}

// Export serialises forest and uploads it under a fresh key for tenant.
func (e *Exporter) Export(ctx context.Context, tenant string, forest []tree.Node) (Result, error) {
	at := e.now()
	doc := Document{
		Tenant:     tenant,
		ExportedAt: at,
		Count:      tree.Count(forest),
		Tree:       forest,
	}
	body, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return Result{}, fmt.Errorf("marshal snapshot: %w", err)
	}

	key := Key(tenant, at, e.newID())
	location, err := e.uploader.Upload(ctx, key, body, contentType)
	if err != nil {
		return Result{}, err
	}
	return Result{Key: key, Location: location, Count: doc.Count, ExportedAt: at}, nil
}

// Key names a snapshot object: menus/<tenant>/<UTC timestamp>-<id>.json.
// The empty tenant is stored as "default".
func Key(tenant string, at time.Time, id string) string {
	if tenant == "" {
		tenant = "default"
	}
	return fmt.Sprintf("menus/%s/%s-%s.json", url.PathEscape(tenant), at.UTC().Format("20060102T150405Z"), id)
}
