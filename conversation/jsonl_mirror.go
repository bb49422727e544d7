// Copyright 2025 AxonFlow
// SPDX-License-Identifier: BUSL-1.1

package conversation

import (
	"encoding/json"
	"fmt"
	"os"
	"sync"
)

// JSONLMirror appends one JSON object per line to a file, flushing per
// event — the default on-disk mirror for the conversation store, no
// particular storage engine required.
type JSONLMirror struct {
	mu   sync.Mutex
	file *os.File
}

// NewJSONLMirror opens (creating if necessary) path for append.
func NewJSONLMirror(path string) (*JSONLMirror, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("failed to open conversation mirror %s: %w", path, err)
	}
	return &JSONLMirror{file: f}, nil
}

// Append implements Mirror.
func (m *JSONLMirror) Append(msg Message) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("failed to marshal message: %w", err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if _, err := m.file.Write(append(data, '\n')); err != nil {
		return fmt.Errorf("failed to write message: %w", err)
	}
	return m.file.Sync()
}

// Close closes the underlying file.
func (m *JSONLMirror) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.file.Close()
}
