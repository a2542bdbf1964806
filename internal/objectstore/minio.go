package objectstore

import (
	"bytes"
	"context"
	"fmt"
	"path"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// Options locates the bucket. Region is passed through so the client never
// has to look up the bucket location.
type Options struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	Region    string
	UseSSL    bool
	// BasePath is prepended to every key passed to Put.
	BasePath string
}

// MinIOStore uploads objects to an S3-compatible backend.
type MinIOStore struct {
	Client   *minio.Client
	Bucket   string
	BasePath string
}

// NewMinIOStore initializes a MinIO client and ensures the bucket exists.
func NewMinIOStore(ctx context.Context, opts Options) (*MinIOStore, error) {
	if opts.Endpoint == "" || opts.Bucket == "" {
		return nil, fmt.Errorf("endpoint and bucket required")
	}
	client, err := minio.New(opts.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(opts.AccessKey, opts.SecretKey, ""),
		Secure: opts.UseSSL,
		Region: opts.Region,
	})
	if err != nil {
		return nil, err
	}
	exists, err := client.BucketExists(ctx, opts.Bucket)
	if err != nil {
		return nil, fmt.Errorf("check bucket %s: %w", opts.Bucket, err)
	}
	if !exists {
		if err := client.MakeBucket(ctx, opts.Bucket, minio.MakeBucketOptions{Region: opts.Region}); err != nil {
			return nil, fmt.Errorf("make bucket %s: %w", opts.Bucket, err)
		}
	}
	return &MinIOStore{Client: client, Bucket: opts.Bucket, BasePath: opts.BasePath}, nil
}

// ObjectKey returns the full object key Put writes for key.
func (m *MinIOStore) ObjectKey(key string) string {
	if m.BasePath == "" {
		return key
	}
	return path.Join(m.BasePath, key)
}

// Put uploads data to bucket/BasePath/key.
func (m *MinIOStore) Put(ctx context.Context, key string, data []byte, contentType string) error {
	_, err := m.Client.PutObject(ctx, m.Bucket, m.ObjectKey(key), bytes.NewReader(data), int64(len(data)), minio.PutObjectOptions{
		ContentType: contentType,
	})
	if err != nil {
		return fmt.Errorf("put %s/%s: %w", m.Bucket, m.ObjectKey(key), err)
	}
	return nil
}
