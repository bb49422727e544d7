// Copyright 2025 AxonFlow
// SPDX-License-Identifier: BUSL-1.1

package contract

import (
	"database/sql"
	"encoding/json"
	"fmt"

	_ "github.com/go-sql-driver/mysql"

	"maestro/platform/shared/logger"
)

// MySQLStore is the second SQL-backed Store implementation, proving the
// registry's persistence layer is driver-agnostic: anything satisfying
// Store works, relational or not.
type MySQLStore struct {
	db  *sql.DB
	log *logger.Logger
}

// NewMySQLStore opens dsn, retrying with backoff, and ensures the
// contracts table exists.
func NewMySQLStore(dsn string) (*MySQLStore, error) {
	db, err := openWithRetry("mysql", dsn, 5)
	if err != nil {
		return nil, err
	}

	s := &MySQLStore{db: db, log: logger.New("contract.mysql")}
	if err := s.initSchema(); err != nil {
		return nil, fmt.Errorf("failed to initialize contract schema: %w", err)
	}
	s.log.Info("", "", "mysql contract store initialized", nil)
	return s, nil
}

func (s *MySQLStore) initSchema() error {
	_, err := s.db.Exec(`
CREATE TABLE IF NOT EXISTS contracts (
	phase        VARCHAR(128) NOT NULL,
	version      INT NOT NULL,
	deliverables JSON NOT NULL,
	metrics      JSON NOT NULL,
	owners       JSON NOT NULL,
	created_at   TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
	PRIMARY KEY (phase, version)
)`)
	return err
}

// Save implements Store.
func (s *MySQLStore) Save(c Contract) error {
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
		`INSERT INTO contracts (phase, version, deliverables, metrics, owners) VALUES (?, ?, ?, ?, ?)`,
		c.Phase, c.Version, deliverables, metrics, owners,
	)
	if err != nil {
		return fmt.Errorf("failed to insert contract version: %w", err)
	}
	return nil
}

// Load implements Store.
func (s *MySQLStore) Load(phase string) ([]Contract, error) {
	rows, err := s.db.Query(
		`SELECT phase, version, deliverables, metrics, owners FROM contracts WHERE phase = ?`,
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
