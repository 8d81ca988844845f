package db

import (
	"context"
	"fmt"
	"time"

	"spectra-monitor/pkg/config"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// ArchiveBucketName holds cold log batches written by the retention reaper.
const ArchiveBucketName = "spectra-log-archive"

type MinioClient struct {
	*minio.Client
}

func NewMinioClient(cfg *config.Config) (*MinioClient, error) {
	client, err := minio.New(cfg.MinioEndpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.MinioAccessKey, cfg.MinioSecretKey, ""),
		Secure: cfg.MinioUseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create MinIO client: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if _, err := client.ListBuckets(ctx); err != nil {
		return nil, fmt.Errorf("failed to list MinIO buckets: %w", err)
	}

	if err := client.MakeBucket(ctx, ArchiveBucketName, minio.MakeBucketOptions{}); err != nil {
		// The bucket may already exist, which is fine.
		exists, errBucketExists := client.BucketExists(ctx, ArchiveBucketName)
		if errBucketExists != nil || !exists {
			return nil, fmt.Errorf("failed to create archive bucket: %w", err)
		}
	}

	return &MinioClient{client}, nil
}

func (m *MinioClient) HealthCheck(ctx context.Context) error {
	_, err := m.ListBuckets(ctx)
	return err
}
