package objectstore

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/anna0613/linebot-control-plane/internal/config"
)

// S3Store implements Store over an S3-compatible bucket (AWS S3 or
// MinIO), grounded on the AWS SDK Go v2 client construction pattern used
// elsewhere in the retrieval pack for the same purpose.
type S3Store struct {
	client     *s3.Client
	publicBase string
}

// NewS3Store builds an S3Store from config.
func NewS3Store(ctx context.Context, cfg config.ObjectStoreConfig, publicBase string) (*S3Store, error) {
	awsOpts := []func(*awsconfig.LoadOptions) error{
		awsconfig.WithRegion(cfg.Region),
	}
	if cfg.AccessKey != "" && cfg.SecretKey != "" {
		awsOpts = append(awsOpts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, ""),
		))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsOpts...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
		o.UsePathStyle = cfg.UsePathStyle
	})

	return &S3Store{client: client, publicBase: strings.TrimSuffix(publicBase, "/")}, nil
}

func (s *S3Store) Put(ctx context.Context, bucket, path string, data []byte, contentType string) error {
	input := &s3.PutObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(path),
		Body:   bytes.NewReader(data),
	}
	if contentType != "" {
		input.ContentType = aws.String(contentType)
	}
	if _, err := s.client.PutObject(ctx, input); err != nil {
		return fmt.Errorf("s3 put %s/%s: %w", bucket, path, err)
	}
	return nil
}

func (s *S3Store) Get(ctx context.Context, bucket, path string) ([]byte, error) {
	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(path),
	})
	if err != nil {
		return nil, fmt.Errorf("s3 get %s/%s: %w", bucket, path, err)
	}
	defer out.Body.Close()
	return io.ReadAll(out.Body)
}

// PublicURL returns a proxy URL served by this system's media endpoint,
// per spec §6 ("the URL may be a proxy endpoint ... LINE never sees it").
func (s *S3Store) PublicURL(bucket, path string) string {
	return fmt.Sprintf("%s/media/%s/%s", s.publicBase, bucket, path)
}
