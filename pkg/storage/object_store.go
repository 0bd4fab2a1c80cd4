package storage

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

// MinioConfig configures the S3-compatible uploader.
type MinioConfig struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	UseSSL    bool
	// PublicBaseURL overrides the scheme and host of returned URLs, for
	// deployments where clients reach the bucket through a proxy.
	PublicBaseURL string
}

// MinioStore uploads images to MinIO/S3 compatible storage.
type MinioStore struct {
	client  *minio.Client
	bucket  string
	baseURL *url.URL
	now     func() time.Time

	mu          sync.Mutex
	bucketReady bool
}

// NewMinioStore builds the client. The bucket is checked on first upload.
func NewMinioStore(cfg MinioConfig) (*MinioStore, error) {
	if strings.TrimSpace(cfg.Endpoint) == "" {
		return nil, fmt.Errorf("%w: minio endpoint is required", ErrConfig)
	}
	if strings.TrimSpace(cfg.Bucket) == "" {
		return nil, fmt.Errorf("%w: minio bucket is required", ErrConfig)
	}
	if cfg.AccessKey == "" || cfg.SecretKey == "" {
		return nil, fmt.Errorf("%w: minio credentials are required", ErrConfig)
	}
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("init minio client: %w", err)
	}
	base := client.EndpointURL()
	if strings.TrimSpace(cfg.PublicBaseURL) != "" {
		base, err = url.Parse(strings.TrimRight(cfg.PublicBaseURL, "/"))
		if err != nil {
			return nil, fmt.Errorf("%w: invalid public base url: %v", ErrConfig, err)
		}
	}
	return &MinioStore{
		client:  client,
		bucket:  cfg.Bucket,
		baseURL: base,
		now:     time.Now,
	}, nil
}

// Upload puts the object and returns its public URL.
func (m *MinioStore) Upload(ctx context.Context, filename string, r io.Reader, size int64, contentType string) (string, error) {
	if err := m.ensureBucket(ctx); err != nil {
		return "", err
	}
	key := objectKey(m.now(), SanitizeName(filename))
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	_, err := m.client.PutObject(ctx, m.bucket, key, r, size, minio.PutObjectOptions{ContentType: contentType})
	if err != nil {
		return "", fmt.Errorf("put object: %w", err)
	}
	return m.objectURL(key), nil
}

// ensureBucket creates the bucket with anonymous read access when missing.
func (m *MinioStore) ensureBucket(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.bucketReady {
		return nil
	}
	exists, err := m.client.BucketExists(ctx, m.bucket)
	if err != nil {
		return fmt.Errorf("check bucket: %w", err)
	}
	if !exists {
		if err := m.client.MakeBucket(ctx, m.bucket, minio.MakeBucketOptions{}); err != nil {
			return fmt.Errorf("create bucket: %w", err)
		}
		if err := m.client.SetBucketPolicy(ctx, m.bucket, publicReadPolicy(m.bucket)); err != nil {
			return fmt.Errorf("set bucket policy: %w", err)
		}
	}
	m.bucketReady = true
	return nil
}

func (m *MinioStore) objectURL(key string) string {
	u := *m.baseURL
	u.Path = strings.TrimRight(u.Path, "/") + "/" + m.bucket + "/" + key
	return u.String()
}

func publicReadPolicy(bucket string) string {
	return fmt.Sprintf(`{"Version":"2012-10-17","Statement":[{"Effect":"Allow","Principal":{"AWS":["*"]},"Action":["s3:GetObject"],"Resource":["arn:aws:s3:::%s/*"]}]}`, bucket)
}
