// Command bootstrap is the Lambda custom runtime entrypoint for the S3 object
// custom resource.
package main

import (
	"context"
	"os"

	"github.com/gurre/s3object/blobstore"
	"github.com/gurre/s3object/cfn"
	"github.com/gurre/s3object/config"
	"github.com/gurre/s3object/log"
	"github.com/gurre/s3object/runtime"
	"github.com/gurre/s3object/s3object"
)

func main() {
	ctx := context.Background()

	cfg, err := config.Load()
	if err != nil {
		log.New(log.LevelError, os.Stdout).Error(ctx, "invalid configuration", "error", err)
		os.Exit(1)
	}
	logger := log.New(log.ParseLevel(cfg.LogLevel), os.Stdout)

	client, err := blobstore.NewClient(ctx, blobstore.ClientOptions{
		Endpoint:        cfg.S3.Endpoint,
		Region:          cfg.S3.Region,
		ForcePathStyle:  cfg.S3.ForcePathStyle,
		AccessKeyID:     cfg.S3.AccessKeyID,
		SecretAccessKey: cfg.S3.SecretAccessKey,
		MaxAttempts:     cfg.S3.MaxAttempts,
	})
	if err != nil {
		logger.Error(ctx, "failed to create S3 client", "error", err)
		os.Exit(1)
	}

	h := s3object.NewHandler(
		blobstore.New(client, blobstore.WithContentTypeDetection(cfg.DetectContentType)),
		cfn.NewHTTPReporter(cfg.ResponseTimeout),
		logger,
	)
	runtime.Start[cfn.Event, cfn.Response](h, logger)
}
