// Copyright 2025 AxonFlow
// SPDX-License-Identifier: BUSL-1.1

// Package server implements the REST and WebSocket surface external
// collaborators use to drive the Phased Autonomous Executor: listing
// and executing workflows, polling execution status, and subscribing
// to a live event stream over `WS /ws/workflow/{id}`.
package server

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/rs/cors"

	"maestro/platform/audit"
	"maestro/platform/config"
	maerr "maestro/platform/shared/errors"
	"maestro/platform/shared/logger"
)

// ManifestCatalog looks up a known workflow definition by id.
type ManifestCatalog interface {
	Get(workflowID string) (*config.Manifest, bool)
	List() []string
}

// Server wires the HTTP router, the execution registry, and the audit
// log behind the REST/WS surface named in the external interfaces.
type Server struct {
	router    *mux.Router
	registry  *ExecutionRegistry
	manifests ManifestCatalog
	auditLog  *audit.Logger
	settings  config.Settings
	log       *logger.Logger
}

// New returns a Server ready to mount its routes. runner drives one
// workflow to completion; see ExecutionRegistry.Start. manifests
// answers the read-only workflow catalog behind GET /workflows.
func New(settings config.Settings, manifests ManifestCatalog, auditLog *audit.Logger, runner WorkflowRunner) *Server {
	s := &Server{
		router:    mux.NewRouter(),
		registry:  NewExecutionRegistry(runner),
		manifests: manifests,
		auditLog:  auditLog,
		settings:  settings,
		log:       logger.New("server"),
	}
	s.routes()
	return s
}

func (s *Server) routes() {
	s.router.HandleFunc("/health", s.healthHandler).Methods(http.MethodGet)
	s.router.HandleFunc("/workflows", s.listWorkflowsHandler).Methods(http.MethodGet)
	s.router.HandleFunc("/workflows/{id}", s.getWorkflowHandler).Methods(http.MethodGet)
	s.router.HandleFunc("/workflows/{id}/execute", s.executeWorkflowHandler).Methods(http.MethodPost)
	s.router.HandleFunc("/executions/{id}", s.getExecutionHandler).Methods(http.MethodGet)
	s.router.HandleFunc("/ws/workflow/{id}", s.wsHandler)
	s.router.HandleFunc("/audit/{iteration}", s.auditAppendHandler).Methods(http.MethodPost)
	s.router.HandleFunc("/audit/{iteration}/report", s.auditReportHandler).Methods(http.MethodGet)
}

// Handler returns the fully wrapped HTTP handler (router plus CORS),
// suitable for http.ListenAndServe.
func (s *Server) Handler() http.Handler {
	c := cors.New(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"*"},
		AllowCredentials: true,
	})
	return c.Handler(s.router)
}

func (s *Server) healthHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":    "healthy",
		"service":   "maestro",
		"timestamp": time.Now().UTC(),
	})
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

// writeError renders err as the spec's {kind, message, details?,
// retryable?} shape, mapping its Kind to an HTTP status the way the
// teacher's sendErrorResponse renders a flat {success, error} body.
func writeError(w http.ResponseWriter, err error) {
	me, ok := err.(*maerr.Error)
	if !ok {
		writeJSON(w, http.StatusInternalServerError, map[string]any{
			"kind": maerr.KindInternal, "message": err.Error(),
		})
		return
	}

	status := http.StatusInternalServerError
	switch me.Kind {
	case maerr.KindValidation, maerr.KindConfig:
		status = http.StatusBadRequest
	case maerr.KindContractViolation, maerr.KindBypassRequired, maerr.KindBypassRejected, maerr.KindBypassExpired:
		status = http.StatusConflict
	case maerr.KindDependencyError, maerr.KindNodeFailure, maerr.KindNodeTimeout:
		status = http.StatusUnprocessableEntity
	case maerr.KindCancellation:
		status = http.StatusGone
	}

	writeJSON(w, status, map[string]any{
		"kind":      me.Kind,
		"message":   me.Message,
		"details":   me.Details,
		"retryable": me.Retryable,
	})
}
