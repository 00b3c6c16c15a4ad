package miniostore

import (
	"context"
	"fmt"
	"log"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// Store publishes finished videos to a MinIO (S3-compatible) bucket.
type Store struct {
	client *minio.Client
	bucket string
	logger *log.Logger
}

// Options configure the MinIO connection.
type Options struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	UseSSL    bool
}

// NewStore connects to MinIO and ensures the target bucket exists.
func NewStore(ctx context.Context, opts Options, logger *log.Logger) (*Store, error) {
	if opts.Endpoint == "" {
		return nil, fmt.Errorf("minio endpoint is required")
	}
	client, err := minio.New(opts.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(opts.AccessKey, opts.SecretKey, ""),
		Secure: opts.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create minio client: %w", err)
	}

	bucket := opts.Bucket
	if bucket == "" {
		bucket = "clarivid-videos"
	}
	exists, err := client.BucketExists(ctx, bucket)
	if err != nil {
		return nil, fmt.Errorf("failed to check bucket %s: %w", bucket, err)
	}
	if !exists {
		if err := client.MakeBucket(ctx, bucket, minio.MakeBucketOptions{}); err != nil {
			return nil, fmt.Errorf("failed to create bucket %s: %w", bucket, err)
		}
	}
	return &Store{client: client, bucket: bucket, logger: logger}, nil
}

// PublishVideo uploads the stitched video and returns its object URL.
func (s *Store) PublishVideo(ctx context.Context, jobID, localPath string) (string, error) {
	objectName := fmt.Sprintf("%s/final.mp4", jobID)
	_, err := s.client.FPutObject(ctx, s.bucket, objectName, localPath, minio.PutObjectOptions{
		ContentType: "video/mp4",
	})
	if err != nil {
		return "", fmt.Errorf("failed to upload video: %w", err)
	}
	url := fmt.Sprintf("%s/%s/%s", s.client.EndpointURL(), s.bucket, objectName)
	s.logger.Printf("Uploaded %s to bucket %s", objectName, s.bucket)
	return url, nil
}
