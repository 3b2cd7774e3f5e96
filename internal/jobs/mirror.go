package jobs

import (
	"context"
	"fmt"
	"os"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// Mirror receives a copy of every completed artifact.
type Mirror interface {
	Upload(ctx context.Context, jobID, path string) error
}

// MinioConfig holds the connection settings of a MinioMirror.
type MinioConfig struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	Region    string
	UseSSL    bool
}

// MinioMirror uploads artifacts to <bucket>/<id>.pdf in S3-compatible
// storage.
type MinioMirror struct {
	client *minio.Client
	bucket string
}

// NewMinioMirror connects to the endpoint and creates the bucket if needed.
func NewMinioMirror(ctx context.Context, cfg MinioConfig) (*MinioMirror, error) {
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
		Region: cfg.Region,
	})
	if err != nil {
		return nil, fmt.Errorf("minio connection: %w", err)
	}

	exists, err := client.BucketExists(ctx, cfg.Bucket)
	if err != nil {
		return nil, fmt.Errorf("minio bucket check: %w", err)
	}
	if !exists {
		if err := client.MakeBucket(ctx, cfg.Bucket, minio.MakeBucketOptions{Region: cfg.Region}); err != nil {
			return nil, fmt.Errorf("minio make bucket: %w", err)
		}
	}
	return &MinioMirror{client: client, bucket: cfg.Bucket}, nil
}

// ObjectName returns the object key of a job's artifact.
func ObjectName(jobID string) string {
	return jobID + ".pdf"
}

func (m *MinioMirror) Upload(ctx context.Context, jobID, path string) error {
	file, err := os.Open(path)
	if err != nil {
		return err
	}
	defer file.Close()

	stat, err := file.Stat()
	if err != nil {
		return err
	}

	_, err = m.client.PutObject(ctx, m.bucket, ObjectName(jobID), file, stat.Size(), minio.PutObjectOptions{
		ContentType: "application/pdf",
	})
	if err != nil {
		return fmt.Errorf("minio put %s: %w", ObjectName(jobID), err)
	}
	return nil
}
