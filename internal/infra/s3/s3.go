package s3

import (
	"context"
	"fmt"
	"io"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

type Config struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	UseSSL    bool
}

func NewClient(cfg Config) (*minio.Client, error) {
	if cfg.Endpoint == "" {
		return nil, fmt.Errorf("s3 endpoint is required")
	}

	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("create s3 client: %w", err)
	}

	return client, nil
}

// Bucket is a single bucket; it is created on first write.
type Bucket struct {
	client *minio.Client
	name   string

	ensureOnce sync.Once
	ensureErr  error
}

func NewBucket(client *minio.Client, name string) *Bucket {
	return &Bucket{
		client: client,
		name:   strings.TrimSpace(name),
	}
}

func (b *Bucket) EnsureBucket(ctx context.Context) error {
	if b.client == nil {
		return fmt.Errorf("s3 client is nil")
	}
	if b.name == "" {
		return fmt.Errorf("s3 bucket is empty")
	}

	b.ensureOnce.Do(func() {
		exists, err := b.client.BucketExists(ctx, b.name)
		if err != nil {
			b.ensureErr = err
			return
		}
		if exists {
			return
		}
		b.ensureErr = b.client.MakeBucket(ctx, b.name, minio.MakeBucketOptions{})
	})

	if b.ensureErr != nil {
		return fmt.Errorf("ensure s3 bucket %q: %w", b.name, b.ensureErr)
	}

	return nil
}

func (b *Bucket) Put(ctx context.Context, key string, body io.Reader, size int64, contentType string) error {
	if b.client == nil {
		return fmt.Errorf("s3 client is nil")
	}
	if key == "" || body == nil || size <= 0 {
		return fmt.Errorf("invalid object payload")
	}
	if err := b.EnsureBucket(ctx); err != nil {
		return err
	}

	if _, err := b.client.PutObject(ctx, b.name, key, body, size, minio.PutObjectOptions{
		ContentType: contentType,
	}); err != nil {
		return fmt.Errorf("put object to s3: %w", err)
	}

	return nil
}

func (b *Bucket) PresignGet(ctx context.Context, key string, ttl time.Duration) (string, error) {
	if b.client == nil {
		return "", fmt.Errorf("s3 client is nil")
	}
	if key == "" {
		return "", fmt.Errorf("object key is required")
	}
	if ttl <= 0 {
		ttl = 15 * time.Minute
	}

	presigned, err := b.client.PresignedGetObject(ctx, b.name, key, ttl, url.Values{})
	if err != nil {
		return "", fmt.Errorf("presign get object: %w", err)
	}

	return presigned.String(), nil
}
