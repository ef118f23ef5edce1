package storage

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/rs/zerolog"

	"dmchat/internal/pkg/logx"
)

// uploadPartSize is the multipart chunk size; attachments larger than this are split.
const uploadPartSize = 8 * 1024 * 1024

// s3Client implements the StorageService interface, handling interactions with S3-compatible storage.
type s3Client struct {
	publicURLs
	cfg      ServiceConfig
	s3Client *s3.Client
	uploader *manager.Uploader
	logger   zerolog.Logger
}

// newS3Client initializes the S3 client using a custom configuration that supports S3-compatible endpoints.
func newS3Client(ctx context.Context, cfg ServiceConfig) (*s3Client, error) {
	logger := logx.Component("storage")

	// Load Configuration
	sdkCfg, err := config.LoadDefaultConfig(ctx,
		config.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
			cfg.S3AccessKeyID,
			cfg.S3SecretAccessKey,
			"",
		)),
		config.WithRegion("auto"),
	)
	if err != nil {
		logger.Error().Err(err).Msg("Failed to load AWS SDK config")
		return nil, errors.New("failed to initialize S3 client configuration")
	}

	// Create S3 Client with Custom Endpoint Resolver.
	client := s3.NewFromConfig(sdkCfg, func(o *s3.Options) {
		o.BaseEndpoint = aws.String(cfg.S3Endpoint)
		o.UsePathStyle = true
	})

	return &s3Client{
		publicURLs: publicURLs{base: cfg.PublicBaseURL},
		cfg:        cfg,
		s3Client:   client,
		uploader: manager.NewUploader(client, func(u *manager.Uploader) {
			u.PartSize = uploadPartSize
		}),
		logger: logger,
	}, nil
}

// Upload streams body to the bucket under key through the multipart uploader.
func (c *s3Client) Upload(ctx context.Context, key string, body io.Reader, size int64, contentType string) (string, error) {
	input := &s3.PutObjectInput{
		Bucket:      &c.cfg.S3BucketName,
		Key:         &key,
		Body:        body,
		ContentType: &contentType,
	}
	if size > 0 && size <= uploadPartSize {
		input.ContentLength = &size
	}

	if _, err := c.uploader.Upload(ctx, input); err != nil {
		c.logger.Error().Err(err).Str("key", key).Int64("size", size).Msg("S3 upload failed")
		return "", fmt.Errorf("upload %s: %w", key, err)
	}

	return c.URL(key), nil
}

// Delete removes the file specified by the given key from the bucket.
func (c *s3Client) Delete(ctx context.Context, key string) error {
	_, err := c.s3Client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: &c.cfg.S3BucketName,
		Key:    &key,
	})

	if err != nil {
		var nf *types.NoSuchKey
		if errors.As(err, &nf) {
			return nil
		}
		c.logger.Error().Err(err).Str("key", key).Msg("S3 delete failed")
		return fmt.Errorf("delete %s: %w", key, err)
	}

	return nil
}
