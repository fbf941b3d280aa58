package blobstore

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// ClientOptions select the S3 endpoint and credentials. The zero value uses
// the default AWS credential chain and endpoint resolution.
type ClientOptions struct {
	// Endpoint overrides the S3 endpoint, e.g. a MinIO or LocalStack URL.
	Endpoint string
	Region   string
	// ForcePathStyle addresses buckets as endpoint/bucket instead of bucket.endpoint.
	ForcePathStyle bool
	// AccessKeyID and SecretAccessKey replace the credential chain when both are set.
	AccessKeyID     string
	SecretAccessKey string
	// MaxAttempts overrides the SDK's retry attempts when positive.
	MaxAttempts int
}

// NewClient builds an S3 client. It is meant to be called once per process
// and shared by every invocation.
func NewClient(ctx context.Context, opts ClientOptions) (*s3.Client, error) {
	var loadOpts []func(*awsconfig.LoadOptions) error
	if opts.Region != "" {
		loadOpts = append(loadOpts, awsconfig.WithRegion(opts.Region))
	}
	if opts.AccessKeyID != "" && opts.SecretAccessKey != "" {
		loadOpts = append(loadOpts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(opts.AccessKeyID, opts.SecretAccessKey, ""),
		))
	}
	if opts.MaxAttempts > 0 {
		loadOpts = append(loadOpts, awsconfig.WithRetryMaxAttempts(opts.MaxAttempts))
	}

	cfg, err := awsconfig.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}
	if cfg.Region == "" {
		cfg.Region = "us-east-1"
	}

	return s3.NewFromConfig(cfg, func(o *s3.Options) {
		if opts.Endpoint != "" {
			o.BaseEndpoint = aws.String(opts.Endpoint)
		}
		o.UsePathStyle = opts.ForcePathStyle
	}), nil
}
