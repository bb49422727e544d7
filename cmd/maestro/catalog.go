// Copyright 2025 AxonFlow
// SPDX-License-Identifier: BUSL-1.1

package main

import (
	"sync"

	"maestro/platform/config"
)

// manifestCatalog is the in-memory workflow catalog backing
// server.ManifestCatalog: every manifest this process was started
// with, keyed by its declared name.
type manifestCatalog struct {
	mu        sync.RWMutex
	manifests map[string]*config.Manifest
}

func newManifestCatalog(manifests ...*config.Manifest) *manifestCatalog {
	c := &manifestCatalog{manifests: make(map[string]*config.Manifest, len(manifests))}
	for _, m := range manifests {
		c.manifests[m.Name] = m
	}
	return c
}

func (c *manifestCatalog) Get(workflowID string) (*config.Manifest, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	m, ok := c.manifests[workflowID]
	return m, ok
}

func (c *manifestCatalog) List() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	ids := make([]string, 0, len(c.manifests))
	for id := range c.manifests {
		ids = append(ids, id)
	}
	return ids
}
