// Copyright 2025 AxonFlow
// SPDX-License-Identifier: BUSL-1.1

package contract

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "github.com/lib/pq"

	"maestro/platform/shared/logger"
)

// PostgresStore persists contract versions to a Postgres relational
// table. It is one of two interchangeable SQL-backed Store
// implementations (see MySQLStore) behind the same contract.Store
// interface — the registry is driver-agnostic.
type PostgresStore struct {
	db  *sql.DB
	log *logger.Logger
}

// NewPostgresStore opens dbURL, retrying with backoff to tolerate a
// database container that is still resolving DNS or accepting
// connections at process start, then ensures the contracts table exists.
func NewPostgresStore(dbURL string) (*PostgresStore, error) {
	db, err := openWithRetry("postgres", dbURL, 5)
	if err != nil {
		return nil, err
	}

	s := &PostgresStore{db: db, log: logger.New("contract.postgres")}
	if err := s.initSchema(); err != nil {
		return nil, fmt.Errorf("failed to initialize contract schema: %w", err)
	}
	s.log.Info("", "", "postgres contract store initialized", nil)
	return s, nil
}

func openWithRetry(driver, dsn string, maxRetries int) (*sql.DB, error) {
	var db *sql.DB
	var err error

	for attempt := 1; attempt <= maxRetries; attempt++ {
		db, err = sql.Open(driver, dsn)
		if err == nil {
			if err = db.Ping(); err == nil {
				return db, nil
			}
		}
		if attempt < maxRetries {
			time.Sleep(time.Duration(attempt) * time.Second)
		}
	}
	return nil, fmt.Errorf("failed to connect to %s after %d attempts: %w", driver, maxRetries, err)
}

func (s *PostgresStore) initSchema() error {
	_, err := s.db.Exec(`
CREATE TABLE IF NOT EXISTS contracts (
	phase        TEXT NOT NULL,
	version      INTEGER NOT NULL,
	deliverables JSONB NOT NULL,
	metrics      JSONB NOT NULL,
	owners       JSONB NOT NULL,
	created_at   TIMESTAMPTZ NOT NULL DEFAULT now(),
	PRIMARY KEY (phase, version)
)`)
	return err
}

// Save implements Store. It fails if (phase, version) already exists,
// preserving contract immutability.
func (s *PostgresStore) Save(c Contract) error {
	deliverables, err := json.Marshal(c.Deliverables)
	if err != nil {
		return fmt.Errorf("failed to marshal deliverables: %w", err)
	}
	metrics, err := json.Marshal(c.RequiredMetrics)
	if err != nil {
		return fmt.Errorf("failed to marshal metrics: %w", err)
	}
	owners, err := json.Marshal(c.OwnerPersonaIDs)
	if err != nil {
		return fmt.Errorf("failed to marshal owners: %w", err)
	}

	_, err = s.db.Exec(
		`INSERT INTO contracts (phase, version, deliverables, metrics, owners) VALUES ($1, $2, $3, $4, $5)`,
		c.Phase, c.Version, deliverables, metrics, owners,
	)
	if err != nil {
		return fmt.Errorf("failed to insert contract version: %w", err)
	}
	return nil
}

// Load implements Store, returning every version persisted for phase.
func (s *PostgresStore) Load(phase string) ([]Contract, error) {
	rows, err := s.db.Query(
		`SELECT phase, version, deliverables, metrics, owners FROM contracts WHERE phase = $1`,
		phase,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query contracts: %w", err)
	}
	defer rows.Close()

	var out []Contract
	for rows.Next() {
		var c Contract
		var deliverables, metrics, owners []byte
		if err := rows.Scan(&c.Phase, &c.Version, &deliverables, &metrics, &owners); err != nil {
			return nil, fmt.Errorf("failed to scan contract row: %w", err)
		}
		if err := json.Unmarshal(deliverables, &c.Deliverables); err != nil {
			return nil, fmt.Errorf("failed to unmarshal deliverables: %w", err)
		}
		if err := json.Unmarshal(metrics, &c.RequiredMetrics); err != nil {
			return nil, fmt.Errorf("failed to unmarshal metrics: %w", err)
		}
		if err := json.Unmarshal(owners, &c.OwnerPersonaIDs); err != nil {
			return nil, fmt.Errorf("failed to unmarshal owners: %w", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}
