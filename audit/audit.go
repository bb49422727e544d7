// Copyright 2025 AxonFlow
// SPDX-License-Identifier: BUSL-1.1

// Package audit implements the Audit/Event Log: an append-only stream
// of typed events — one object per gate bypass, workflow, or node
// transition — written through a pluggable Sink and flushed per event,
// with a queryable scan API over whichever Sink supports it.
package audit

import (
	"sync"
	"time"

	maerr "maestro/platform/shared/errors"
	"maestro/platform/shared/logger"
	"maestro/platform/workflow"
)

// Event is one entry on the audit stream.
type Event struct {
	Timestamp  time.Time      `json:"timestamp"`
	EventType  string         `json:"event_type"`
	Actor      string         `json:"actor"`
	WorkflowID string         `json:"workflow_id,omitempty"`
	Phase      string         `json:"phase,omitempty"`
	NodeID     string         `json:"node_id,omitempty"`
	BypassID   string         `json:"bypass_id,omitempty"`
	Payload    map[string]any `json:"payload,omitempty"`
}

// Filter is the query shape accepted by Scan.
type Filter struct {
	EventType  string
	Actor      string
	WorkflowID string
	Phase      string
	Since      time.Time
	Limit      int
}

// Match reports whether e satisfies f.
func (f Filter) Match(e Event) bool {
	if f.EventType != "" && e.EventType != f.EventType {
		return false
	}
	if f.Actor != "" && e.Actor != f.Actor {
		return false
	}
	if f.WorkflowID != "" && e.WorkflowID != f.WorkflowID {
		return false
	}
	if f.Phase != "" && e.Phase != f.Phase {
		return false
	}
	if !f.Since.IsZero() && !e.Timestamp.After(f.Since) {
		return false
	}
	return true
}

// Sink is the pluggable persistence backend for the audit stream. No
// particular storage engine is mandated — JSONLSink and CassandraSink
// are interchangeable, matching the spec's "an append-only log is
// sufficient" stance.
type Sink interface {
	Write(e Event) error
}

// Scanner is implemented by a Sink that can also answer Scan queries.
// Not every Sink need support it (a write-only forwarder, for
// instance); Logger.Scan reports an error when its Sink does not.
type Scanner interface {
	Scan(f Filter) (<-chan Event, error)
}

// Logger is the Audit/Event Log. Record enqueues an event for
// asynchronous, per-event-flushed delivery to the configured Sink; a
// full queue falls back to a direct synchronous write rather than
// drop the event, since the audit trail must never silently lose an
// entry.
type Logger struct {
	sink     Sink
	queue    chan Event
	wg       sync.WaitGroup
	shutdown chan struct{}
	once     sync.Once
	log      *logger.Logger
}

const defaultQueueSize = 1000

// New returns a Logger writing through sink, with a background worker
// draining the queue and flushing one event at a time.
func New(sink Sink) *Logger {
	l := &Logger{
		sink:     sink,
		queue:    make(chan Event, defaultQueueSize),
		shutdown: make(chan struct{}),
		log:      logger.New("audit"),
	}
	l.wg.Add(1)
	go l.drain()
	return l
}

func (l *Logger) drain() {
	defer l.wg.Done()
	for {
		select {
		case e := <-l.queue:
			l.write(e)
		case <-l.shutdown:
			for {
				select {
				case e := <-l.queue:
					l.write(e)
				default:
					return
				}
			}
		}
	}
}

func (l *Logger) write(e Event) {
	if err := l.sink.Write(e); err != nil {
		l.log.Error("", "", "failed to write audit event", map[string]any{"event_type": e.EventType, "error": err.Error()})
	}
}

// Append enqueues e for delivery, stamping its timestamp if unset. A
// full queue is handled by writing directly rather than dropping the
// event, matching the append-only log's "never silently lose an
// entry" invariant.
func (l *Logger) Append(e Event) error {
	if e.Timestamp.IsZero() {
		e.Timestamp = time.Now().UTC()
	}
	select {
	case l.queue <- e:
		return nil
	default:
		l.write(e)
		return nil
	}
}

// Record implements bypass.AuditSink: it adapts the bypass manager's
// (eventType, actor, subject, payload) call shape into an Event, with
// subject (the bypass request id) carried as BypassID.
func (l *Logger) Record(eventType, actor, subject string, payload map[string]any) error {
	return l.Append(Event{EventType: eventType, Actor: actor, BypassID: subject, Payload: payload})
}

// BridgeWorkflowEvents forwards every event off events onto the audit
// log until the channel closes, so the DAG Workflow Engine's
// started/completed/failed stream is captured the same way bypass
// transitions are. Run it in its own goroutine.
func (l *Logger) BridgeWorkflowEvents(events <-chan workflow.Event) {
	for e := range events {
		payload := map[string]any{"completed": e.Completed, "total": e.Total}
		if e.Err != "" {
			payload["error"] = e.Err
		}
		_ = l.Append(Event{
			Timestamp:  e.Timestamp,
			EventType:  string(e.Type),
			Actor:      "system",
			WorkflowID: e.WorkflowID,
			NodeID:     e.NodeID,
			Payload:    payload,
		})
	}
}

// Scan returns a lazy sequence of events matching f. The channel is
// closed once every matching event (or, with f.Limit set, the first
// f.Limit matches) has been delivered.
func (l *Logger) Scan(f Filter) (<-chan Event, error) {
	scanner, ok := l.sink.(Scanner)
	if !ok {
		return nil, maerr.New(maerr.KindValidation, "audit sink does not support scanning")
	}
	return scanner.Scan(f)
}

// Close stops the background worker after flushing whatever remains
// queued.
func (l *Logger) Close() error {
	l.once.Do(func() { close(l.shutdown) })
	l.wg.Wait()
	if closer, ok := l.sink.(interface{ Close() error }); ok {
		return closer.Close()
	}
	return nil
}
