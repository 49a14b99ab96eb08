package artifact

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"path"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// S3Config holds object store connection settings.
type S3Config struct {
	Endpoint  string `yaml:"endpoint"`
	AccessKey string `yaml:"access_key"`
	SecretKey string `yaml:"secret_key"`
	Bucket    string `yaml:"bucket"`
	Region    string `yaml:"region"`
	Prefix    string `yaml:"prefix"`
	UseSSL    bool   `yaml:"use_ssl"`
}

// Validate checks required fields.
func (c S3Config) Validate() error {
	switch {
	case c.Endpoint == "":
		return fmt.Errorf("artifacts.s3.endpoint is required")
	case c.Bucket == "":
		return fmt.Errorf("artifacts.s3.bucket is required")
	}
	return nil
}

// S3Store keeps artifacts as objects in a MinIO/S3 bucket.
type S3Store struct {
	client *minio.Client
	bucket string
	prefix string
}

// NewS3Store connects to the object store and ensures the bucket exists.
func NewS3Store(ctx context.Context, cfg S3Config) (*S3Store, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:     credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure:    cfg.UseSSL,
		Region:    cfg.Region,
		Transport: newTransport(),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create minio client: %w", err)
	}

	exists, err := client.BucketExists(ctx, cfg.Bucket)
	if err != nil {
		return nil, fmt.Errorf("failed to check bucket %s: %w", cfg.Bucket, err)
	}
	if !exists {
		if err := client.MakeBucket(ctx, cfg.Bucket, minio.MakeBucketOptions{Region: cfg.Region}); err != nil {
			return nil, fmt.Errorf("failed to create bucket %s: %w", cfg.Bucket, err)
		}
	}

	return &S3Store{client: client, bucket: cfg.Bucket, prefix: cfg.Prefix}, nil
}

func (s *S3Store) key(n int) string {
	return path.Join(s.prefix, ChapterKey(n))
}

// Read returns the text of chapter n.
func (s *S3Store) Read(ctx context.Context, n int) (string, error) {
	obj, err := s.client.GetObject(ctx, s.bucket, s.key(n), minio.GetObjectOptions{})
	if err != nil {
		return "", s.mapError(n, err)
	}
	defer obj.Close()

	data, err := io.ReadAll(obj)
	if err != nil {
		return "", s.mapError(n, err)
	}
	return string(data), nil
}

// Write replaces the object for chapter n in a single put.
func (s *S3Store) Write(ctx context.Context, n int, text string) error {
	data := []byte(text)
	_, err := s.client.PutObject(
		ctx,
		s.bucket,
		s.key(n),
		bytes.NewReader(data),
		int64(len(data)),
		minio.PutObjectOptions{ContentType: "text/plain; charset=utf-8"},
	)
	if err != nil {
		return fmt.Errorf("failed to put chapter %d: %w", n, err)
	}
	return nil
}

// Exists reports whether the object for chapter n exists.
func (s *S3Store) Exists(ctx context.Context, n int) (bool, error) {
	_, err := s.client.StatObject(ctx, s.bucket, s.key(n), minio.StatObjectOptions{})
	if err == nil {
		return true, nil
	}
	if isNoSuchKey(err) {
		return false, nil
	}
	return false, fmt.Errorf("failed to stat chapter %d: %w", n, err)
}

func (s *S3Store) mapError(n int, err error) error {
	if isNoSuchKey(err) {
		return fmt.Errorf("%w: chapter %d", ErrArtifactNotFound, n)
	}
	return fmt.Errorf("failed to get chapter %d: %w", n, err)
}

func isNoSuchKey(err error) bool {
	resp := minio.ToErrorResponse(err)
	return resp.Code == "NoSuchKey" || resp.StatusCode == http.StatusNotFound
}

func newTransport() *http.Transport {
	dialer := &net.Dialer{
		Timeout:   5 * time.Second,
		KeepAlive: 30 * time.Second,
	}
	return &http.Transport{
		Proxy:                 http.ProxyFromEnvironment,
		DialContext:           dialer.DialContext,
		ForceAttemptHTTP2:     true,
		MaxIdleConns:          20,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   5 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
	}
}
