// Copyright 2025 AxonFlow
// SPDX-License-Identifier: BUSL-1.1

package artifact

import (
	"bytes"
	"context"
	"fmt"
	"io"

	"github.com/Azure/azure-sdk-for-go/sdk/azidentity"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob"

	"maestro/platform/shared/logger"
)

// AzureBlobstore mirrors stamped artifacts to an Azure Blob Storage
// container under their canonical path as the blob name.
type AzureBlobstore struct {
	client    *azblob.Client
	container string
	log       *logger.Logger
}

// NewAzureBlobstore authenticates to serviceURL via the default Azure
// credential chain and targets container.
func NewAzureBlobstore(serviceURL, container string) (*AzureBlobstore, error) {
	cred, err := azidentity.NewDefaultAzureCredential(nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create azure credential: %w", err)
	}

	client, err := azblob.NewClient(serviceURL, cred, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create azure blob client: %w", err)
	}

	return &AzureBlobstore{
		client:    client,
		container: container,
		log:       logger.New("artifact.azure"),
	}, nil
}

// Put implements Blobstore.
func (b *AzureBlobstore) Put(ctx context.Context, canonicalPath string, data []byte) error {
	_, err := b.client.UploadStream(ctx, b.container, canonicalPath, bytes.NewReader(data), nil)
	if err != nil {
		return fmt.Errorf("failed to upload artifact %s: %w", canonicalPath, err)
	}
	b.log.Info("", "", "artifact uploaded to azure blob", map[string]any{"container": b.container, "blob": canonicalPath})
	return nil
}

// Get implements Blobstore.
func (b *AzureBlobstore) Get(ctx context.Context, canonicalPath string) ([]byte, error) {
	resp, err := b.client.DownloadStream(ctx, b.container, canonicalPath, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to download artifact %s: %w", canonicalPath, err)
	}
	defer resp.Body.Close()

	return io.ReadAll(resp.Body)
}
