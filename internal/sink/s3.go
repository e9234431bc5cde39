package sink

import (
	"context"
	"fmt"
	"os"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	awscreds "github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/rescale/drivectl/internal/config"
	"github.com/rescale/drivectl/internal/http"
)

// Static keys for S3 destinations. When unset the default AWS chain is used
// (environment, shared config, instance role).
const (
	envS3AccessKey = "DRIVE_S3_ACCESS_KEY_ID"
	envS3SecretKey = "DRIVE_S3_SECRET_ACCESS_KEY"
)

type s3Uploader struct {
	client *s3.Client
	bucket string
	key    string
}

func newS3Uploader(ctx context.Context, cfg *config.Config, d Destination) (*s3Uploader, error) {
	if cfg == nil {
		cfg = config.NewConfig()
	}
	httpClient, err := http.CreateOptimizedClient(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create HTTP client: %w", err)
	}

	opts := []func(*awsconfig.LoadOptions) error{
		awsconfig.WithRegion(cfg.S3Region),
		awsconfig.WithHTTPClient(httpClient),
	}
	if ak, sk := os.Getenv(envS3AccessKey), os.Getenv(envS3SecretKey); ak != "" && sk != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			awscreds.NewStaticCredentialsProvider(ak, sk, ""),
		))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.S3Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.S3Endpoint)
			o.UsePathStyle = true
		}
	})
	return &s3Uploader{client: client, bucket: d.Bucket, key: d.Key}, nil
}

func (u *s3Uploader) upload(ctx context.Context, f *os.File, size int64) error {
	_, err := u.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(u.bucket),
		Key:           aws.String(u.key),
		Body:          f,
		ContentLength: aws.Int64(size),
		ContentType:   aws.String("application/zip"),
	})
	if err != nil {
		return fmt.Errorf("failed to upload to S3: %w", err)
	}
	return nil
}
