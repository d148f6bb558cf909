package storage

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/url"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"github.com/smurching/cloudnotes/internal/types"
)

type MinioStore struct {
	client *minio.Client
	bucket string
}

type Config struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	Region    string
	UseSSL    bool
}

// NewMinioStore connects to the bucket and creates it when missing. The region
// must be set so presigning never has to look up the bucket location.
func NewMinioStore(ctx context.Context, config *Config) (*MinioStore, error) {
	if config.Region == "" {
		return nil, fmt.Errorf("%w: storage region is required", types.ErrInvalidInput)
	}

	client, err := minio.New(config.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(config.AccessKey, config.SecretKey, ""),
		Secure: config.UseSSL,
		Region: config.Region,
	})
	if err != nil {
		return nil, err
	}

	s := &MinioStore{
		client: client,
		bucket: config.Bucket,
	}

	exists, err := client.BucketExists(ctx, config.Bucket)
	if err != nil {
		return nil, fmt.Errorf("failed to check bucket: %w", err)
	}

	if !exists {
		err = client.MakeBucket(ctx, config.Bucket, minio.MakeBucketOptions{Region: config.Region})
		if err != nil {
			return nil, fmt.Errorf("failed to create bucket: %w", err)
		}
	}

	return s, nil
}

func (s *MinioStore) Get(ctx context.Context, key string) ([]byte, error) {
	object, err := s.client.GetObject(ctx, s.bucket, key, minio.GetObjectOptions{})
	if err != nil {
		return nil, s.wrapError("get", key, err)
	}
	defer object.Close()

	data, err := io.ReadAll(object)
	if err != nil {
		return nil, s.wrapError("get", key, err)
	}

	return data, nil
}

func (s *MinioStore) Put(ctx context.Context, key string, data []byte, contentType string) error {
	_, err := s.client.PutObject(
		ctx,
		s.bucket,
		key,
		bytes.NewReader(data),
		int64(len(data)),
		minio.PutObjectOptions{ContentType: contentType},
	)
	if err != nil {
		return s.wrapError("put", key, err)
	}
	return nil
}

// Delete stats the object first because S3 deletes of missing keys succeed.
func (s *MinioStore) Delete(ctx context.Context, key string) error {
	if _, err := s.client.StatObject(ctx, s.bucket, key, minio.StatObjectOptions{}); err != nil {
		return s.wrapError("delete", key, err)
	}

	if err := s.client.RemoveObject(ctx, s.bucket, key, minio.RemoveObjectOptions{}); err != nil {
		return s.wrapError("delete", key, err)
	}
	return nil
}

func (s *MinioStore) SignedURL(key string, op types.Operation, ttl time.Duration) (types.SignedURL, error) {
	expiresAt := time.Now().Add(ttl)
	ctx := context.Background()

	var (
		presignedUrl *url.URL
		err          error
	)
	switch op {
	case types.OperationWrite:
		presignedUrl, err = s.client.PresignedPutObject(ctx, s.bucket, key, ttl)
	case types.OperationRead:
		presignedUrl, err = s.client.PresignedGetObject(ctx, s.bucket, key, ttl, url.Values{})
	default:
		return types.SignedURL{}, fmt.Errorf("%w: unknown operation %q", types.ErrInvalidInput, op)
	}
	if err != nil {
		return types.SignedURL{}, fmt.Errorf("failed to presign %s url for %s: %w", op, key, err)
	}

	return types.SignedURL{
		Key:       key,
		Operation: op,
		URL:       presignedUrl.String(),
		ExpiresAt: expiresAt,
	}, nil
}

func (s *MinioStore) List(ctx context.Context, prefix string) ([]ObjectInfo, error) {
	objects := s.client.ListObjects(
		ctx,
		s.bucket,
		minio.ListObjectsOptions{Prefix: prefix, Recursive: true},
	)

	var files []ObjectInfo
	for obj := range objects {
		if obj.Err != nil {
			return nil, s.wrapError("list", prefix, obj.Err)
		}

		files = append(files, ObjectInfo{
			Name:     obj.Key,
			Size:     obj.Size,
			Modified: obj.LastModified,
		})
	}

	return files, nil
}

func (s *MinioStore) wrapError(op, key string, err error) error {
	if isNotFound(err) {
		return fmt.Errorf("%s %s: %w", op, key, types.ErrNotFound)
	}
	return fmt.Errorf("%s %s: %w: %v", op, key, types.ErrStore, err)
}

func isNotFound(err error) bool {
	switch minio.ToErrorResponse(err).Code {
	case "NoSuchKey", "NoSuchObject", "NotFound":
		return true
	}
	return false
}
