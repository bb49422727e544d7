// Copyright 2025 AxonFlow
// SPDX-License-Identifier: BUSL-1.1

package server

import (
	"encoding/json"
	"net/http"

	"github.com/gorilla/mux"

	"maestro/platform/audit"
	maerr "maestro/platform/shared/errors"
)

// auditAppendRequest is the body of POST /audit/{iteration}.
type auditAppendRequest struct {
	EventType string         `json:"event_type"`
	Actor     string         `json:"actor"`
	NodeID    string         `json:"node_id,omitempty"`
	Payload   map[string]any `json:"payload,omitempty"`
}

// auditAppendHandler appends one operator-submitted audit event scoped
// to the named iteration (the same iteration id used in the artifact
// canonical path, `artifacts/{iteration_id}/{node_id}/{basename}`).
func (s *Server) auditAppendHandler(w http.ResponseWriter, r *http.Request) {
	iteration := mux.Vars(r)["iteration"]

	var req auditAppendRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, maerr.Wrap(maerr.KindValidation, err, "malformed request body"))
		return
	}
	if req.EventType == "" || req.Actor == "" {
		writeError(w, maerr.New(maerr.KindValidation, "event_type and actor are required"))
		return
	}

	if err := s.auditLog.Append(audit.Event{
		EventType:  req.EventType,
		Actor:      req.Actor,
		WorkflowID: iteration,
		NodeID:     req.NodeID,
		Payload:    req.Payload,
	}); err != nil {
		writeError(w, maerr.Wrap(maerr.KindInternal, err, "failed to append audit event"))
		return
	}

	writeJSON(w, http.StatusAccepted, map[string]any{"status": "recorded"})
}

// auditReportHandler answers GET /audit/{iteration}/report with every
// event recorded against iteration plus a per-event-type tally.
func (s *Server) auditReportHandler(w http.ResponseWriter, r *http.Request) {
	iteration := mux.Vars(r)["iteration"]

	events, err := s.auditLog.Scan(audit.Filter{WorkflowID: iteration})
	if err != nil {
		writeError(w, maerr.Wrap(maerr.KindInternal, err, "failed to scan audit log"))
		return
	}

	records := make([]audit.Event, 0)
	byType := make(map[string]int)
	for e := range events {
		records = append(records, e)
		byType[e.EventType]++
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"iteration": iteration,
		"events":    records,
		"by_type":   byType,
		"total":     len(records),
	})
}
