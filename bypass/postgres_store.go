// Copyright 2025 AxonFlow
// SPDX-License-Identifier: BUSL-1.1

package bypass

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "github.com/lib/pq"

	"maestro/platform/shared/logger"
)

// PostgresStore persists bypass requests to a relational table, upserting
// on every state transition. Connection retry and schema bootstrap follow
// the same pattern as contract.PostgresStore.
type PostgresStore struct {
	db  *sql.DB
	log *logger.Logger
}

// NewPostgresStore opens dbURL, retrying with backoff, and ensures the
// bypass_requests table exists.
func NewPostgresStore(dbURL string) (*PostgresStore, error) {
	db, err := openWithRetry(dbURL, 5)
	if err != nil {
		return nil, err
	}

	s := &PostgresStore{db: db, log: logger.New("bypass.postgres")}
	if err := s.initSchema(); err != nil {
		return nil, fmt.Errorf("failed to initialize bypass schema: %w", err)
	}
	s.log.Info("", "", "postgres bypass store initialized", nil)
	return s, nil
}

func openWithRetry(dsn string, maxRetries int) (*sql.DB, error) {
	var db *sql.DB
	var err error

	for attempt := 1; attempt <= maxRetries; attempt++ {
		db, err = sql.Open("postgres", dsn)
		if err == nil {
			if err = db.Ping(); err == nil {
				return db, nil
			}
		}
		if attempt < maxRetries {
			time.Sleep(time.Duration(attempt) * time.Second)
		}
	}
	return nil, fmt.Errorf("failed to connect to postgres after %d attempts: %w", maxRetries, err)
}

func (s *PostgresStore) initSchema() error {
	_, err := s.db.Exec(`
CREATE TABLE IF NOT EXISTS bypass_requests (
	id          TEXT PRIMARY KEY,
	workflow_id TEXT NOT NULL,
	phase       TEXT NOT NULL,
	gate        TEXT NOT NULL,
	status      TEXT NOT NULL,
	request_date TIMESTAMPTZ NOT NULL,
	record      JSONB NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_bypass_requests_phase_gate ON bypass_requests(phase, gate);
CREATE INDEX IF NOT EXISTS idx_bypass_requests_status ON bypass_requests(status);
`)
	return err
}

// Put implements Store via an upsert keyed on id, storing the full
// record as JSON alongside a few indexed columns for querying.
func (s *PostgresStore) Put(req BypassRequest) error {
	record, err := json.Marshal(req)
	if err != nil {
		return fmt.Errorf("failed to marshal bypass request: %w", err)
	}

	_, err = s.db.Exec(`
INSERT INTO bypass_requests (id, workflow_id, phase, gate, status, request_date, record)
VALUES ($1, $2, $3, $4, $5, $6, $7)
ON CONFLICT (id) DO UPDATE SET
	status = EXCLUDED.status,
	record = EXCLUDED.record
`, req.ID, req.WorkflowID, req.Phase, req.Gate, req.Status, req.RequestDate, record)
	if err != nil {
		return fmt.Errorf("failed to upsert bypass request: %w", err)
	}
	return nil
}

// Get implements Store.
func (s *PostgresStore) Get(id string) (BypassRequest, bool, error) {
	var record []byte
	err := s.db.QueryRow(`SELECT record FROM bypass_requests WHERE id = $1`, id).Scan(&record)
	if err == sql.ErrNoRows {
		return BypassRequest{}, false, nil
	}
	if err != nil {
		return BypassRequest{}, false, fmt.Errorf("failed to query bypass request: %w", err)
	}

	var req BypassRequest
	if err := json.Unmarshal(record, &req); err != nil {
		return BypassRequest{}, false, fmt.Errorf("failed to unmarshal bypass request: %w", err)
	}
	return req, true, nil
}

// List implements Store, returning every persisted request ordered by
// request date.
func (s *PostgresStore) List() ([]BypassRequest, error) {
	rows, err := s.db.Query(`SELECT record FROM bypass_requests ORDER BY request_date ASC`)
	if err != nil {
		return nil, fmt.Errorf("failed to list bypass requests: %w", err)
	}
	defer rows.Close()

	var out []BypassRequest
	for rows.Next() {
		var record []byte
		if err := rows.Scan(&record); err != nil {
			return nil, fmt.Errorf("failed to scan bypass request row: %w", err)
		}
		var req BypassRequest
		if err := json.Unmarshal(record, &req); err != nil {
			return nil, fmt.Errorf("failed to unmarshal bypass request: %w", err)
		}
		out = append(out, req)
	}
	return out, rows.Err()
}

// Close closes the underlying database connection.
func (s *PostgresStore) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}
