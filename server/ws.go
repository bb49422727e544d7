// Copyright 2025 AxonFlow
// SPDX-License-Identifier: BUSL-1.1

package server

import (
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"

	"maestro/platform/workflow"
)

// closeInvalidToken is the close code the external interface spec
// assigns to a WS connection rejected for a missing or invalid token.
const closeInvalidToken = 4001

var upgrader = &websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// wsMessage is one push frame sent over WS /ws/workflow/{workflow_id}.
type wsMessage struct {
	Type        string         `json:"type"`
	Timestamp   time.Time      `json:"timestamp"`
	WorkflowID  string         `json:"workflow_id"`
	ExecutionID string         `json:"execution_id,omitempty"`
	NodeID      string         `json:"node_id,omitempty"`
	Data        map[string]any `json:"data,omitempty"`
}

// wsHandler upgrades the connection and streams every event published
// for the named workflow's execution. The execution id is resolved
// from the ?execution_id= query parameter. Without that parameter the
// connection stays open and receives nothing; an execution id the
// registry does not know closes the connection with a normal-closure
// frame.
func (s *Server) wsHandler(w http.ResponseWriter, r *http.Request) {
	workflowID := mux.Vars(r)["id"]

	if _, err := validateToken(r.URL.Query().Get("token"), s.settings.JWTSecretKey); err != nil {
		conn, upErr := upgrader.Upgrade(w, r, nil)
		if upErr != nil {
			return
		}
		closeMsg := websocket.FormatCloseMessage(closeInvalidToken, "missing or invalid token")
		_ = conn.WriteControl(websocket.CloseMessage, closeMsg, time.Now().Add(time.Second))
		_ = conn.Close()
		return
	}

	executionID := r.URL.Query().Get("execution_id")

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Warn("", "", "websocket upgrade failed", map[string]any{"error": err.Error()})
		return
	}
	defer conn.Close()

	var events <-chan workflow.Event
	if executionID != "" {
		var ok bool
		events, ok = s.registry.Subscribe(executionID, 32)
		if !ok {
			closeMsg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "unknown execution id")
			_ = conn.WriteControl(websocket.CloseMessage, closeMsg, time.Now().Add(time.Second))
			return
		}
	}

	for ev := range events {
		msg := wsMessage{
			Type:        string(ev.Type),
			Timestamp:   ev.Timestamp,
			WorkflowID:  workflowID,
			ExecutionID: executionID,
			NodeID:      ev.NodeID,
		}
		if ev.Err != "" || ev.Total > 0 {
			msg.Data = map[string]any{}
			if ev.Err != "" {
				msg.Data["error"] = ev.Err
			}
			if ev.Total > 0 {
				msg.Data["completed"] = ev.Completed
				msg.Data["total"] = ev.Total
			}
		}
		if err := conn.WriteJSON(msg); err != nil {
			return
		}
	}
}
