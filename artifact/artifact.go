// Copyright 2025 AxonFlow
// SPDX-License-Identifier: BUSL-1.1

package artifact

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"time"
)

// Artifact is a single produced file, canonicalized under
// artifacts/{iteration_id}/{node_id}/{name}. Immutable after stamping.
type Artifact struct {
	IterationID    string
	NodeID         string
	Name           string
	CanonicalPath  string
	SHA256         string
	Capability     string
	ContractVersion int
	CreatedAt      time.Time
	OriginalPath   string
}

// Meta is the sidecar {path}.meta.json payload.
type Meta struct {
	IterationID     string    `json:"iteration_id"`
	NodeID          string    `json:"node_id"`
	Capability      string    `json:"capability,omitempty"`
	ContractVersion int       `json:"contract_version,omitempty"`
	SHA256          string    `json:"sha256"`
	OriginalPath    string    `json:"original_path"`
	Timestamp       time.Time `json:"timestamp"`
}

// CanonicalPath returns artifacts/{iteration}/{node}/{basename}.
func CanonicalPath(iterationID, nodeID, name string) string {
	return path.Join("artifacts", iterationID, nodeID, filepath.Base(name))
}

// Stamp computes the SHA-256 digest of the file at originalPath (rooted
// at root) and returns the Artifact record plus its Meta sidecar. It
// does not move or copy the file, and nothing in this module passes the
// file to a Blobstore; the file stays at originalPath.
func Stamp(root, iterationID, nodeID, capability string, contractVersion int, relPath string) (Artifact, Meta, error) {
	abs := filepath.Join(root, filepath.FromSlash(relPath))
	data, err := os.ReadFile(abs)
	if err != nil {
		return Artifact{}, Meta{}, fmt.Errorf("failed to read artifact %s: %w", relPath, err)
	}

	sum := sha256.Sum256(data)
	digest := hex.EncodeToString(sum[:])
	now := time.Now().UTC()

	a := Artifact{
		IterationID:     iterationID,
		NodeID:          nodeID,
		Name:            filepath.Base(relPath),
		CanonicalPath:   CanonicalPath(iterationID, nodeID, relPath),
		SHA256:          digest,
		Capability:      capability,
		ContractVersion: contractVersion,
		CreatedAt:       now,
		OriginalPath:    relPath,
	}

	m := Meta{
		IterationID:     iterationID,
		NodeID:          nodeID,
		Capability:      capability,
		ContractVersion: contractVersion,
		SHA256:          digest,
		OriginalPath:    relPath,
		Timestamp:       now,
	}

	return a, m, nil
}

// MetaJSON renders m as the {path}.meta.json sidecar contents.
func (m Meta) MetaJSON() ([]byte, error) {
	return json.MarshalIndent(m, "", "  ")
}

// Blobstore is the pluggable remote-storage interface artifacts can be
// mirrored to. No particular backend is mandated — S3Blobstore,
// GCSBlobstore, and AzureBlobstore are interchangeable implementations.
type Blobstore interface {
	Put(ctx context.Context, canonicalPath string, data []byte) error
	Get(ctx context.Context, canonicalPath string) ([]byte, error)
}
