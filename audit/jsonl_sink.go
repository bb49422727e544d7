// Copyright 2025 AxonFlow
// SPDX-License-Identifier: BUSL-1.1

package audit

import (
	"bufio"
	"encoding/json"
	"os"
	"path/filepath"
	"sync"

	maerr "maestro/platform/shared/errors"
)

// JSONLSink appends one JSON object per line to a file, flushing after
// every write so a crash never loses an already-accepted event.
type JSONLSink struct {
	mu   sync.Mutex
	path string
	f    *os.File
	w    *bufio.Writer
}

// NewJSONLSink opens (creating if necessary) the JSONL file at path
// for append.
func NewJSONLSink(path string) (*JSONLSink, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, maerr.Wrap(maerr.KindInternal, err, "failed to create audit log directory")
		}
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, maerr.Wrap(maerr.KindInternal, err, "failed to open audit log file")
	}
	return &JSONLSink{path: path, f: f, w: bufio.NewWriter(f)}, nil
}

// Write appends e as one JSON line and flushes immediately.
func (s *JSONLSink) Write(e Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	b, err := json.Marshal(e)
	if err != nil {
		return maerr.Wrap(maerr.KindInternal, err, "failed to marshal audit event")
	}
	if _, err := s.w.Write(append(b, '\n')); err != nil {
		return maerr.Wrap(maerr.KindInternal, err, "failed to write audit event")
	}
	if err := s.w.Flush(); err != nil {
		return maerr.Wrap(maerr.KindInternal, err, "failed to flush audit event")
	}
	return s.f.Sync()
}

// Scan reads the file from the start, emitting every event matching f
// on the returned channel. The read happens in a background goroutine
// so callers can range over the channel without buffering the whole
// file in memory.
func (s *JSONLSink) Scan(f Filter) (<-chan Event, error) {
	rf, err := os.Open(s.path)
	if err != nil {
		return nil, maerr.Wrap(maerr.KindInternal, err, "failed to open audit log for scan")
	}

	out := make(chan Event)
	go func() {
		defer rf.Close()
		defer close(out)

		scanner := bufio.NewScanner(rf)
		scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

		count := 0
		for scanner.Scan() {
			line := scanner.Bytes()
			if len(line) == 0 {
				continue
			}
			var e Event
			if err := json.Unmarshal(line, &e); err != nil {
				continue
			}
			if !f.Match(e) {
				continue
			}
			out <- e
			count++
			if f.Limit > 0 && count >= f.Limit {
				return
			}
		}
	}()
	return out, nil
}

// Close flushes and closes the underlying file.
func (s *JSONLSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.w.Flush(); err != nil {
		return maerr.Wrap(maerr.KindInternal, err, "failed to flush audit log on close")
	}
	return s.f.Close()
}
