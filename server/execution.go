// Copyright 2025 AxonFlow
// SPDX-License-Identifier: BUSL-1.1

package server

import (
	"context"
	"sync"

	"github.com/google/uuid"

	"maestro/platform/executor"
	"maestro/platform/workflow"
)

// ExecutionHandle is what a WorkflowRunner hands back immediately: a
// live event stream plus a channel that receives exactly one
// RunOutcome once the run reaches a terminal state.
type ExecutionHandle struct {
	Events <-chan workflow.Event
	Done   <-chan RunOutcome
}

// RunOutcome is the terminal result of one workflow run.
type RunOutcome struct {
	Outcome executor.Outcome
	Err     error
}

// WorkflowRunner starts workflowID's phased execution against
// requirement and returns immediately with a handle onto its
// in-progress event stream and eventual outcome.
type WorkflowRunner func(ctx context.Context, workflowID, requirement string) ExecutionHandle

// NodeState is the per-node status surfaced by GET /executions/{id}.
type NodeState struct {
	NodeID string `json:"node_id"`
	Status string `json:"status"`
}

// ExecutionStatus is the live (and eventually terminal) state of one
// workflow run.
type ExecutionStatus struct {
	ExecutionID      string      `json:"execution_id"`
	WorkflowID       string      `json:"workflow_id"`
	Status           string      `json:"status"` // running | completed | failed
	CompletedNodes   int         `json:"completed_nodes"`
	TotalNodes       int         `json:"total_nodes"`
	ProgressPercent  float64     `json:"progress_percent"`
	NodeStates       []NodeState `json:"node_states"`
	Err              string      `json:"error,omitempty"`
}

// execution is the registry's internal mutable record for one run.
type execution struct {
	mu     sync.RWMutex
	status ExecutionStatus
	nodes  map[string]string

	subsMu sync.Mutex
	subs   []chan workflow.Event
	done   bool
}

func (e *execution) snapshot() ExecutionStatus {
	e.mu.RLock()
	defer e.mu.RUnlock()
	cp := e.status
	cp.NodeStates = make([]NodeState, 0, len(e.nodes))
	for id, st := range e.nodes {
		cp.NodeStates = append(cp.NodeStates, NodeState{NodeID: id, Status: st})
	}
	return cp
}

// subscribe attaches a new listener. A run that has already reached a
// terminal state before this call returns an already-closed channel
// rather than one a late subscriber would wait on forever.
func (e *execution) subscribe(buffer int) <-chan workflow.Event {
	ch := make(chan workflow.Event, buffer)
	e.subsMu.Lock()
	defer e.subsMu.Unlock()
	if e.done {
		close(ch)
		return ch
	}
	e.subs = append(e.subs, ch)
	return ch
}

func (e *execution) broadcast(ev workflow.Event) {
	e.subsMu.Lock()
	defer e.subsMu.Unlock()
	for _, ch := range e.subs {
		select {
		case ch <- ev:
		default:
		}
	}
}

func (e *execution) closeSubscribers() {
	e.subsMu.Lock()
	defer e.subsMu.Unlock()
	e.done = true
	for _, ch := range e.subs {
		close(ch)
	}
	e.subs = nil
}

// ExecutionRegistry tracks every in-flight and completed execution this
// server process has started, and fans out each one's live event
// stream to whatever number of WS subscribers have attached.
type ExecutionRegistry struct {
	runner WorkflowRunner

	mu         sync.RWMutex
	executions map[string]*execution
}

// NewExecutionRegistry returns a registry driving new runs through runner.
func NewExecutionRegistry(runner WorkflowRunner) *ExecutionRegistry {
	return &ExecutionRegistry{runner: runner, executions: make(map[string]*execution)}
}

// Start kicks off a new execution of workflowID and returns its id
// immediately; the run proceeds in the background.
func (r *ExecutionRegistry) Start(ctx context.Context, workflowID, requirement string) string {
	executionID := uuid.NewString()
	exec := &execution{
		status: ExecutionStatus{ExecutionID: executionID, WorkflowID: workflowID, Status: "running"},
		nodes:  make(map[string]string),
	}

	r.mu.Lock()
	r.executions[executionID] = exec
	r.mu.Unlock()

	handle := r.runner(ctx, workflowID, requirement)

	go func() {
		for ev := range handle.Events {
			r.apply(exec, ev)
			exec.broadcast(ev)
		}
	}()

	go func() {
		result := <-handle.Done
		exec.mu.Lock()
		if result.Err != nil {
			exec.status.Status = "failed"
			exec.status.Err = result.Err.Error()
		} else {
			exec.status.Status = "completed"
		}
		exec.status.TotalNodes = len(result.Outcome.Phases)
		completed := 0
		for _, p := range result.Outcome.Phases {
			if p.Passed {
				completed++
			}
		}
		exec.status.CompletedNodes = completed
		if exec.status.TotalNodes > 0 {
			exec.status.ProgressPercent = 100 * float64(completed) / float64(exec.status.TotalNodes)
		}
		exec.mu.Unlock()
		exec.closeSubscribers()
	}()

	return executionID
}

func (r *ExecutionRegistry) apply(exec *execution, ev workflow.Event) {
	exec.mu.Lock()
	defer exec.mu.Unlock()

	if ev.Total > 0 {
		exec.status.TotalNodes = ev.Total
	}
	exec.status.CompletedNodes = ev.Completed
	if exec.status.TotalNodes > 0 {
		exec.status.ProgressPercent = 100 * float64(exec.status.CompletedNodes) / float64(exec.status.TotalNodes)
	}
	if ev.NodeID != "" {
		switch ev.Type {
		case workflow.EventNodeCompleted:
			exec.nodes[ev.NodeID] = "completed"
		case workflow.EventNodeFailed:
			exec.nodes[ev.NodeID] = "failed"
		case workflow.EventNodeStarted:
			exec.nodes[ev.NodeID] = "running"
		}
	}
}

// Get returns the current status of executionID.
func (r *ExecutionRegistry) Get(executionID string) (ExecutionStatus, bool) {
	r.mu.RLock()
	exec, ok := r.executions[executionID]
	r.mu.RUnlock()
	if !ok {
		return ExecutionStatus{}, false
	}
	return exec.snapshot(), true
}

// Subscribe attaches a new WS listener to executionID's live event
// stream. The channel closes once the run reaches a terminal state.
func (r *ExecutionRegistry) Subscribe(executionID string, buffer int) (<-chan workflow.Event, bool) {
	r.mu.RLock()
	exec, ok := r.executions[executionID]
	r.mu.RUnlock()
	if !ok {
		return nil, false
	}
	return exec.subscribe(buffer), true
}
