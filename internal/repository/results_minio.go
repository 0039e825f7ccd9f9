package repository

import (
	"bytes"
	"context"
	"fmt"
	"io"

	"github.com/iago/licitacao-pipeline/internal/domain"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

type MinioConfig struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	UseSSL    bool
}

// MinioResultStore keeps one JSON object per task in a bucket.
type MinioResultStore struct {
	client *minio.Client
	bucket string
}

func NewMinioResultStore(cfg MinioConfig) (*MinioResultStore, error) {
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("create minio client: %w", err)
	}
	return &MinioResultStore{client: client, bucket: cfg.Bucket}, nil
}

// EnsureBucket creates the bucket if it doesn't exist.
func (s *MinioResultStore) EnsureBucket(ctx context.Context) error {
	exists, err := s.client.BucketExists(ctx, s.bucket)
	if err != nil {
		return fmt.Errorf("check bucket: %w", err)
	}
	if !exists {
		if err := s.client.MakeBucket(ctx, s.bucket, minio.MakeBucketOptions{}); err != nil {
			return fmt.Errorf("create bucket: %w", err)
		}
	}
	return nil
}

func (s *MinioResultStore) Put(ctx context.Context, key string, result domain.PipelineResult) (string, error) {
	data, err := encodeResult(result)
	if err != nil {
		return "", err
	}
	_, err = s.client.PutObject(ctx, s.bucket, key, bytes.NewReader(data), int64(len(data)), minio.PutObjectOptions{
		ContentType: "application/json",
	})
	if err != nil {
		return "", fmt.Errorf("upload result: %w", err)
	}
	return key, nil
}

func (s *MinioResultStore) Get(ctx context.Context, location string) (domain.PipelineResult, error) {
	object, err := s.client.GetObject(ctx, s.bucket, location, minio.GetObjectOptions{})
	if err != nil {
		return domain.PipelineResult{}, s.mapError(err)
	}
	defer object.Close()

	data, err := io.ReadAll(object)
	if err != nil {
		return domain.PipelineResult{}, s.mapError(err)
	}
	return decodeResult(data)
}

func (s *MinioResultStore) mapError(err error) error {
	if minio.ToErrorResponse(err).Code == "NoSuchKey" {
		return ErrNotFound
	}
	return fmt.Errorf("download result: %w", err)
}
