package storage

import (
	"bytes"
	"context"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/s3"

	"github.com/homefeed/listing-ingestion-service/internal/config"
)

// imageCacheControl keeps compressed listing photos cacheable for a year.
// Keys derive from the source filename, so re-uploading a changed source
// image overwrites the same object.
const imageCacheControl = "public, max-age=31536000"

// S3Storage implements ObjectStore using AWS S3 (or an S3-compatible
// endpoint for local testing).
type S3Storage struct {
	client    *s3.S3
	bucket    string
	urlPrefix string
}

// NewS3Storage creates an S3-backed object store.
func NewS3Storage(cfg config.ImageConfig) (*S3Storage, error) {
	awsConfig := &aws.Config{
		Region: aws.String(cfg.Region),
	}

	// For local testing with MinIO/LocalStack
	if cfg.Endpoint != "" {
		awsConfig.Endpoint = aws.String(cfg.Endpoint)
		awsConfig.S3ForcePathStyle = aws.Bool(true)
	}

	sess, err := session.NewSession(awsConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create AWS session: %w", err)
	}

	urlPrefix := fmt.Sprintf("https://%s.s3.%s.amazonaws.com/", cfg.Bucket, cfg.Region)
	if cfg.Endpoint != "" {
		urlPrefix = fmt.Sprintf("%s/%s/", strings.TrimRight(cfg.Endpoint, "/"), cfg.Bucket)
	}

	return &S3Storage{
		client:    s3.New(sess),
		bucket:    cfg.Bucket,
		urlPrefix: urlPrefix,
	}, nil
}

// Put uploads a publicly readable object with a long-lived cache directive
// and returns its public URL.
func (s *S3Storage) Put(ctx context.Context, key string, body []byte, contentType string) (string, error) {
	_, err := s.client.PutObjectWithContext(ctx, &s3.PutObjectInput{
		Bucket:       aws.String(s.bucket),
		Key:          aws.String(key),
		Body:         bytes.NewReader(body),
		ContentType:  aws.String(contentType),
		CacheControl: aws.String(imageCacheControl),
		ACL:          aws.String(s3.ObjectCannedACLPublicRead),
	})
	if err != nil {
		return "", fmt.Errorf("failed to put object %s: %w", key, err)
	}

	return s.urlPrefix + key, nil
}

// Delete removes an object by key.
func (s *S3Storage) Delete(ctx context.Context, key string) error {
	_, err := s.client.DeleteObjectWithContext(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return fmt.Errorf("failed to delete object %s: %w", key, err)
	}
	return nil
}

// KeyFromURL resolves a public URL back to a bucket-relative key. URLs that
// do not match this store's prefix return false and are skipped by callers.
func (s *S3Storage) KeyFromURL(publicURL string) (string, bool) {
	if !strings.HasPrefix(publicURL, s.urlPrefix) {
		return "", false
	}
	key := strings.TrimPrefix(publicURL, s.urlPrefix)
	if key == "" {
		return "", false
	}
	return key, true
}
