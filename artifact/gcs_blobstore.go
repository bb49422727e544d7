// Copyright 2025 AxonFlow
// SPDX-License-Identifier: BUSL-1.1

package artifact

import (
	"bytes"
	"context"
	"fmt"
	"io"

	"cloud.google.com/go/storage"

	"maestro/platform/shared/logger"
)

// GCSBlobstore mirrors stamped artifacts to a Google Cloud Storage
// bucket under their canonical path as the object name.
type GCSBlobstore struct {
	client *storage.Client
	bucket string
	log    *logger.Logger
}

// NewGCSBlobstore creates a GCS client using application-default
// credentials and targets bucket.
func NewGCSBlobstore(ctx context.Context, bucket string) (*GCSBlobstore, error) {
	client, err := storage.NewClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCS client: %w", err)
	}

	return &GCSBlobstore{
		client: client,
		bucket: bucket,
		log:    logger.New("artifact.gcs"),
	}, nil
}

// Put implements Blobstore.
func (b *GCSBlobstore) Put(ctx context.Context, canonicalPath string, data []byte) error {
	w := b.client.Bucket(b.bucket).Object(canonicalPath).NewWriter(ctx)
	if _, err := io.Copy(w, bytes.NewReader(data)); err != nil {
		_ = w.Close()
		return fmt.Errorf("failed to write artifact %s: %w", canonicalPath, err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("failed to finalize artifact %s: %w", canonicalPath, err)
	}
	b.log.Info("", "", "artifact uploaded to gcs", map[string]any{"bucket": b.bucket, "object": canonicalPath})
	return nil
}

// Get implements Blobstore.
func (b *GCSBlobstore) Get(ctx context.Context, canonicalPath string) ([]byte, error) {
	r, err := b.client.Bucket(b.bucket).Object(canonicalPath).NewReader(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to open artifact %s: %w", canonicalPath, err)
	}
	defer r.Close()

	return io.ReadAll(r)
}
