// Copyright 2025 AxonFlow
// SPDX-License-Identifier: BUSL-1.1

package server

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"

	"maestro/platform/audit"
	"maestro/platform/config"
	"maestro/platform/executor"
	maerr "maestro/platform/shared/errors"
	"maestro/platform/workflow"
)

type fakeCatalog struct {
	manifests map[string]*config.Manifest
}

func (c *fakeCatalog) Get(id string) (*config.Manifest, bool) {
	m, ok := c.manifests[id]
	return m, ok
}

func (c *fakeCatalog) List() []string {
	ids := make([]string, 0, len(c.manifests))
	for id := range c.manifests {
		ids = append(ids, id)
	}
	return ids
}

func newTestCatalog() *fakeCatalog {
	return &fakeCatalog{manifests: map[string]*config.Manifest{
		"demo": {Version: "1", Name: "demo", Nodes: []config.ManifestNode{{ID: "n1", Kind: "action"}}},
	}}
}

// immediateSuccessRunner runs a single-node workflow in a background
// goroutine, pacing its events with short sleeps, and reports it as passed, without any real executor machinery.
func immediateSuccessRunner(ctx context.Context, workflowID, requirement string) ExecutionHandle {
	events := make(chan workflow.Event, 4)
	done := make(chan RunOutcome, 1)

	go func() {
		// Paced rather than instantaneous so a test subscribing over WS
		// has a chance to attach before the run reaches a terminal state.
		events <- workflow.Event{Type: workflow.EventWorkflowStarted, WorkflowID: workflowID, Timestamp: time.Now().UTC()}
		time.Sleep(20 * time.Millisecond)
		events <- workflow.Event{Type: workflow.EventNodeStarted, WorkflowID: workflowID, NodeID: "n1", Timestamp: time.Now().UTC()}
		time.Sleep(20 * time.Millisecond)
		events <- workflow.Event{Type: workflow.EventNodeCompleted, WorkflowID: workflowID, NodeID: "n1", Completed: 1, Total: 1, Timestamp: time.Now().UTC()}
		events <- workflow.Event{Type: workflow.EventWorkflowCompleted, WorkflowID: workflowID, Timestamp: time.Now().UTC()}
		close(events)
		done <- RunOutcome{Outcome: executor.Outcome{
			Status: "completed",
			Phases: []executor.PhaseOutcome{{Passed: true}},
		}}
	}()

	return ExecutionHandle{Events: events, Done: done}
}

func newTestServer(t *testing.T) *Server {
	t.Helper()
	sink, err := audit.NewJSONLSink(filepath.Join(t.TempDir(), "audit.jsonl"))
	require.NoError(t, err)
	auditLog := audit.New(sink)
	t.Cleanup(func() { _ = auditLog.Close() })

	settings := config.Settings{JWTSecretKey: "test-secret"}
	return New(settings, newTestCatalog(), auditLog, immediateSuccessRunner)
}

func TestHealthHandlerReportsHealthy(t *testing.T) {
	s := newTestServer(t)
	rr := httptest.NewRecorder()
	s.Handler().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/health", nil))

	require.Equal(t, http.StatusOK, rr.Code)
	var body map[string]any
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	require.Equal(t, "healthy", body["status"])
}

func TestListAndGetWorkflowHandlers(t *testing.T) {
	s := newTestServer(t)

	rr := httptest.NewRecorder()
	s.Handler().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/workflows", nil))
	require.Equal(t, http.StatusOK, rr.Code)
	require.Contains(t, rr.Body.String(), "demo")

	rr = httptest.NewRecorder()
	s.Handler().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/workflows/demo", nil))
	require.Equal(t, http.StatusOK, rr.Code)

	rr = httptest.NewRecorder()
	s.Handler().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/workflows/missing", nil))
	require.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestExecuteRejectsEmptyRequirement(t *testing.T) {
	s := newTestServer(t)

	req := httptest.NewRequest(http.MethodPost, "/workflows/demo/execute", strings.NewReader(`{"requirement":""}`))
	rr := httptest.NewRecorder()
	s.Handler().ServeHTTP(rr, req)

	require.Equal(t, http.StatusBadRequest, rr.Code)
	var body map[string]any
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	require.Equal(t, string(maerr.KindValidation), body["kind"])
}

func TestExecuteThenPollReachesCompleted(t *testing.T) {
	s := newTestServer(t)

	req := httptest.NewRequest(http.MethodPost, "/workflows/demo/execute", strings.NewReader(`{"requirement":"build a thing"}`))
	rr := httptest.NewRecorder()
	s.Handler().ServeHTTP(rr, req)
	require.Equal(t, http.StatusAccepted, rr.Code)

	var started map[string]any
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &started))
	require.Equal(t, "running", started["status"])
	executionID, _ := started["execution_id"].(string)
	require.NotEmpty(t, executionID)

	require.Eventually(t, func() bool {
		rr := httptest.NewRecorder()
		s.Handler().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/executions/"+executionID, nil))
		if rr.Code != http.StatusOK {
			return false
		}
		var status ExecutionStatus
		require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &status))
		return status.Status == "completed"
	}, 2*time.Second, 10*time.Millisecond)
}

func TestGetExecutionUnknownIDReturnsValidationError(t *testing.T) {
	s := newTestServer(t)
	rr := httptest.NewRecorder()
	s.Handler().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/executions/does-not-exist", nil))
	require.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestWSRejectsMissingTokenWithClose4001(t *testing.T) {
	s := newTestServer(t)
	srv := httptest.NewServer(s.Handler())
	defer srv.Close()

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws/workflow/demo"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	defer conn.Close()

	_, _, err = conn.ReadMessage()
	closeErr, ok := err.(*websocket.CloseError)
	require.True(t, ok, "expected a close error, got %v", err)
	require.Equal(t, closeInvalidToken, closeErr.Code)
}

func TestWSAcceptsValidTokenAndStreamsEvents(t *testing.T) {
	s := newTestServer(t)
	srv := httptest.NewServer(s.Handler())
	defer srv.Close()

	token := signTestToken(t, "test-secret", "operator-1")

	req := httptest.NewRequest(http.MethodPost, "/workflows/demo/execute", strings.NewReader(`{"requirement":"build a thing"}`))
	rr := httptest.NewRecorder()
	s.Handler().ServeHTTP(rr, req)
	var started map[string]any
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &started))
	executionID := started["execution_id"].(string)

	q := url.Values{}
	q.Set("token", token)
	q.Set("execution_id", executionID)
	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws/workflow/demo?" + q.Encode()

	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	defer conn.Close()

	var msg wsMessage
	require.NoError(t, conn.ReadJSON(&msg))
	require.Equal(t, "demo", msg.WorkflowID)
}

func TestAuditAppendAndReportRoundTrip(t *testing.T) {
	s := newTestServer(t)

	req := httptest.NewRequest(http.MethodPost, "/audit/iter-1", strings.NewReader(
		`{"event_type":"manual_note","actor":"operator","payload":{"reason":"spot check"}}`))
	rr := httptest.NewRecorder()
	s.Handler().ServeHTTP(rr, req)
	require.Equal(t, http.StatusAccepted, rr.Code)

	require.Eventually(t, func() bool {
		rr := httptest.NewRecorder()
		s.Handler().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/audit/iter-1/report", nil))
		if rr.Code != http.StatusOK {
			return false
		}
		var body map[string]any
		require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
		total, _ := body["total"].(float64)
		return total == 1
	}, time.Second, 10*time.Millisecond)
}

func signTestToken(t *testing.T, secret, subject string) string {
	t.Helper()
	claims := jwt.MapClaims{"sub": subject, "exp": time.Now().Add(time.Hour).Unix()}
	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := tok.SignedString([]byte(secret))
	require.NoError(t, err)
	return signed
}
