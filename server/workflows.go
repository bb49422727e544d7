// Copyright 2025 AxonFlow
// SPDX-License-Identifier: BUSL-1.1

package server

import (
	"encoding/json"
	"net/http"

	"github.com/gorilla/mux"

	maerr "maestro/platform/shared/errors"
)

// listWorkflowsHandler answers GET /workflows with the catalog of
// known workflow ids.
func (s *Server) listWorkflowsHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"workflows": s.manifests.List()})
}

// getWorkflowHandler answers GET /workflows/{id} with the full
// manifest definition of one workflow.
func (s *Server) getWorkflowHandler(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	m, ok := s.manifests.Get(id)
	if !ok {
		writeError(w, maerr.New(maerr.KindValidation, "unknown workflow id").WithDetails(map[string]any{"workflow_id": id}))
		return
	}
	writeJSON(w, http.StatusOK, m)
}

// executeRequest is the body of POST /workflows/{id}/execute.
type executeRequest struct {
	Requirement     string         `json:"requirement"`
	InitialContext  map[string]any `json:"initial_context,omitempty"`
}

// executeWorkflowHandler answers POST /workflows/{id}/execute,
// starting a new execution and returning its id immediately; the
// caller polls GET /executions/{id} or subscribes to the WS stream
// for progress.
func (s *Server) executeWorkflowHandler(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	if _, ok := s.manifests.Get(id); !ok {
		writeError(w, maerr.New(maerr.KindValidation, "unknown workflow id").WithDetails(map[string]any{"workflow_id": id}))
		return
	}

	var req executeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, maerr.Wrap(maerr.KindValidation, err, "malformed request body"))
		return
	}
	if req.Requirement == "" {
		writeError(w, maerr.New(maerr.KindValidation, "requirement must not be empty"))
		return
	}

	executionID := s.registry.Start(r.Context(), id, req.Requirement)

	if s.auditLog != nil {
		_ = s.auditLog.Record("execution_submitted", "api", executionID, map[string]any{
			"workflow_id": id,
			"requirement": req.Requirement,
		})
	}

	writeJSON(w, http.StatusAccepted, map[string]any{
		"execution_id": executionID,
		"status":       "running",
	})
}

// getExecutionHandler answers GET /executions/{id} with the current
// progress snapshot of one execution.
func (s *Server) getExecutionHandler(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	status, ok := s.registry.Get(id)
	if !ok {
		writeError(w, maerr.New(maerr.KindValidation, "unknown execution id").WithDetails(map[string]any{"execution_id": id}))
		return
	}
	writeJSON(w, http.StatusOK, status)
}
