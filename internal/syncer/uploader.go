package syncer

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/google/uuid"
	"github.com/sethvargo/go-retry"
)

// Uploader pushes one local photo to remote blob storage and returns its
// durable remote URL.
type Uploader interface {
	Upload(ctx context.Context, localPath string) (string, error)
}

// S3Uploader uploads photos to an S3 bucket.
type S3Uploader struct {
	client *s3.Client
	bucket string
	region string
	// urlBase overrides the default virtual-hosted URL when the bucket
	// sits behind a CDN. Empty means plain S3 URLs.
	urlBase string
}

// NewS3Uploader builds an uploader from the ambient AWS credential chain.
func NewS3Uploader(ctx context.Context, region, bucket, urlBase string) (*S3Uploader, error) {
	cfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}
	return &S3Uploader{
		client:  s3.NewFromConfig(cfg),
		bucket:  bucket,
		region:  region,
		urlBase: strings.TrimSuffix(urlBase, "/"),
	}, nil
}

// Upload reads the file and puts it under finds/{uuid}{ext}. Transient
// failures are retried with fibonacci backoff before giving up; the
// caller's continue-on-error loop handles the final failure.
func (u *S3Uploader) Upload(ctx context.Context, localPath string) (string, error) {
	data, err := os.ReadFile(localPath)
	if err != nil {
		return "", fmt.Errorf("failed to read %s: %w", localPath, err)
	}

	ext := strings.ToLower(filepath.Ext(localPath))
	key := fmt.Sprintf("finds/%s%s", uuid.NewString(), ext)

	backoff := retry.WithMaxRetries(3, retry.NewFibonacci(500*time.Millisecond))
	err = retry.Do(ctx, backoff, func(ctx context.Context) error {
		_, err := u.client.PutObject(ctx, &s3.PutObjectInput{
			Bucket:      aws.String(u.bucket),
			Key:         aws.String(key),
			Body:        bytes.NewReader(data),
			ContentType: aws.String(contentTypeForExt(ext)),
		})
		if err != nil {
			return retry.RetryableError(err)
		}
		return nil
	})
	if err != nil {
		return "", fmt.Errorf("failed to upload %s: %w", localPath, err)
	}

	if u.urlBase != "" {
		return fmt.Sprintf("%s/%s", u.urlBase, key), nil
	}
	return fmt.Sprintf("https://%s.s3.%s.amazonaws.com/%s", u.bucket, u.region, key), nil
}

func contentTypeForExt(ext string) string {
	switch ext {
	case ".png":
		return "image/png"
	case ".webp":
		return "image/webp"
	case ".heic":
		return "image/heic"
	default:
		return "image/jpeg"
	}
}
