// Copyright 2025 AxonFlow
// SPDX-License-Identifier: BUSL-1.1

package audit

import (
	"time"

	"github.com/gocql/gocql"

	maerr "maestro/platform/shared/errors"
)

// CassandraSink persists the audit stream to a wide-column Cassandra
// (or Scylla) table, an alternative to JSONLSink for deployments that
// already run a Cassandra cluster for other append-only logs. No
// particular storage engine is mandated by the event log, so either
// sink satisfies it.
type CassandraSink struct {
	session *gocql.Session
	table   string
}

// CassandraConfig configures the cluster connection backing a
// CassandraSink.
type CassandraConfig struct {
	Hosts       []string
	Keyspace    string
	Table       string
	Consistency gocql.Consistency
	Timeout     time.Duration
}

// NewCassandraSink connects to the cluster described by cfg and
// returns a sink writing into cfg.Table (default "audit_events"). The
// table is not created by this package; it must already exist.
func NewCassandraSink(cfg CassandraConfig) (*CassandraSink, error) {
	cluster := gocql.NewCluster(cfg.Hosts...)
	cluster.Keyspace = cfg.Keyspace
	if cfg.Consistency == 0 {
		cluster.Consistency = gocql.Quorum
	} else {
		cluster.Consistency = cfg.Consistency
	}
	if cfg.Timeout > 0 {
		cluster.Timeout = cfg.Timeout
	} else {
		cluster.Timeout = 5 * time.Second
	}

	session, err := cluster.CreateSession()
	if err != nil {
		return nil, maerr.Wrap(maerr.KindInternal, err, "failed to create cassandra session for audit sink")
	}

	table := cfg.Table
	if table == "" {
		table = "audit_events"
	}
	return &CassandraSink{session: session, table: table}, nil
}

// Write inserts e as a row keyed by (workflow_id, timestamp, event_type).
func (s *CassandraSink) Write(e Event) error {
	payload, err := encodePayload(e.Payload)
	if err != nil {
		return err
	}
	q := `INSERT INTO ` + s.table + ` (workflow_id, timestamp, event_type, actor, phase, node_id, bypass_id, payload) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`
	if err := s.session.Query(q, e.WorkflowID, e.Timestamp, e.EventType, e.Actor, e.Phase, e.NodeID, e.BypassID, payload).Exec(); err != nil {
		return maerr.Wrap(maerr.KindInternal, err, "failed to insert audit event into cassandra")
	}
	return nil
}

// Scan queries events matching f. Cassandra's lack of arbitrary
// ad-hoc WHERE clauses means a workflow_id-scoped query is used when
// one is given; otherwise the sink falls back to a full table scan,
// which is appropriate only for operator tooling, not hot-path reads.
func (s *CassandraSink) Scan(f Filter) (<-chan Event, error) {
	var iter *gocql.Iter
	if f.WorkflowID != "" {
		iter = s.session.Query(`SELECT workflow_id, timestamp, event_type, actor, phase, node_id, bypass_id, payload FROM `+s.table+` WHERE workflow_id = ?`, f.WorkflowID).Iter()
	} else {
		iter = s.session.Query(`SELECT workflow_id, timestamp, event_type, actor, phase, node_id, bypass_id, payload FROM ` + s.table).Iter()
	}

	out := make(chan Event)
	go func() {
		defer close(out)
		defer iter.Close()

		count := 0
		var workflowID, eventType, actor, phase, nodeID, bypassID, payload string
		var timestamp time.Time
		for iter.Scan(&workflowID, &timestamp, &eventType, &actor, &phase, &nodeID, &bypassID, &payload) {
			e := Event{
				Timestamp:  timestamp,
				EventType:  eventType,
				Actor:      actor,
				WorkflowID: workflowID,
				Phase:      phase,
				NodeID:     nodeID,
				BypassID:   bypassID,
				Payload:    decodePayload(payload),
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

// Close shuts down the underlying Cassandra session.
func (s *CassandraSink) Close() error {
	s.session.Close()
	return nil
}
