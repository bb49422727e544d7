// Copyright 2025 AxonFlow
// SPDX-License-Identifier: BUSL-1.1

package artifact

import (
	"bytes"
	"context"
	"fmt"
	"io"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"maestro/platform/shared/logger"
)

// S3Blobstore mirrors stamped artifacts to an S3 (or S3-compatible, e.g.
// MinIO) bucket under their canonical path as the object key.
type S3Blobstore struct {
	client *s3.Client
	bucket string
	log    *logger.Logger
}

// NewS3Blobstore loads the AWS SDK's default config for region (empty
// uses the SDK's own resolution chain) and targets bucket.
func NewS3Blobstore(ctx context.Context, region, bucket string) (*S3Blobstore, error) {
	var opts []func(*config.LoadOptions) error
	if region != "" {
		opts = append(opts, config.WithRegion(region))
	}

	cfg, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	return &S3Blobstore{
		client: s3.NewFromConfig(cfg),
		bucket: bucket,
		log:    logger.New("artifact.s3"),
	}, nil
}

// Put implements Blobstore.
func (b *S3Blobstore) Put(ctx context.Context, canonicalPath string, data []byte) error {
	_, err := b.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket: aws.String(b.bucket),
		Key:    aws.String(canonicalPath),
		Body:   bytes.NewReader(data),
	})
	if err != nil {
		return fmt.Errorf("failed to put artifact %s: %w", canonicalPath, err)
	}
	b.log.Info("", "", "artifact uploaded to s3", map[string]any{"bucket": b.bucket, "key": canonicalPath})
	return nil
}

// Get implements Blobstore.
func (b *S3Blobstore) Get(ctx context.Context, canonicalPath string) ([]byte, error) {
	out, err := b.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(b.bucket),
		Key:    aws.String(canonicalPath),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to get artifact %s: %w", canonicalPath, err)
	}
	defer out.Body.Close()

	return io.ReadAll(out.Body)
}
