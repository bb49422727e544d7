// Copyright 2025 AxonFlow
// SPDX-License-Identifier: BUSL-1.1

package workflow

import (
	"context"
	"sync"
	"time"

	maerr "maestro/platform/shared/errors"
	"maestro/platform/shared/logger"
)

// NodeState is a node's position in its lifecycle.
type NodeState string

const (
	StatePending   NodeState = "pending"
	StateReady     NodeState = "ready"
	StateRunning   NodeState = "running"
	StateCompleted NodeState = "completed"
	StateFailed    NodeState = "failed"
	StateSkipped   NodeState = "skipped"
	StateCancelled NodeState = "cancelled"
)

const (
	defaultNodeTimeout        = 600 * time.Second
	defaultConcurrencyCap     = 8
	defaultInitialBackoffMS   = 500
	defaultMaxBackoffMS       = 30_000
	cancellationGracePeriod   = 30 * time.Second
)

// NodeExecutor runs a single node's work (invoking the Persona
// Executor for action/phase nodes, publishing a contract for
// interface nodes, and so on). Implementations must honor ctx
// cancellation promptly.
type NodeExecutor interface {
	Execute(ctx context.Context, node Node) error
}

// NodeResult is the terminal outcome of one node.
type NodeResult struct {
	NodeID    string
	State     NodeState
	Attempts  int
	Err       error
	StartedAt time.Time
	EndedAt   time.Time
}

// Status is the workflow's overall terminal outcome.
type Status string

const (
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
	StatusCancelled Status = "cancelled"
)

// Result is what Executor.Run returns.
type Result struct {
	WorkflowID string
	Status     Status
	Nodes      map[string]*NodeResult
}

// Executor drives a WorkflowDAG wave by wave: within a wave, nodes run
// concurrently up to a configured cap; across waves, execution is
// strictly sequential — the next wave starts only once every node in
// the current wave has reached a terminal state.
type Executor struct {
	dag          *WorkflowDAG
	workflowID   string
	concurrency  int // 0 means min(wave size, 8)
	bus          *Bus
	metrics      *Metrics
	log          *logger.Logger
	nodeExecutor NodeExecutor
}

// NewExecutor returns an Executor for dag, identified by workflowID for
// event/audit correlation.
func NewExecutor(workflowID string, dag *WorkflowDAG) *Executor {
	return &Executor{
		dag:        dag,
		workflowID: workflowID,
		bus:        NewBus(),
		log:        logger.New("workflow"),
	}
}

// WithConcurrency overrides the default per-wave concurrency cap
// (min(wave size, 8)).
func (e *Executor) WithConcurrency(n int) *Executor {
	e.concurrency = n
	return e
}

// WithMetrics attaches a Metrics collector.
func (e *Executor) WithMetrics(m *Metrics) *Executor {
	e.metrics = m
	return e
}

// Events returns a subscriber channel for this executor's event stream.
func (e *Executor) Events(buffer int) <-chan Event {
	return e.bus.Subscribe(buffer)
}

// Run executes the DAG to completion or until ctx is cancelled.
func (e *Executor) Run(ctx context.Context, exec NodeExecutor) (*Result, error) {
	e.nodeExecutor = exec
	waves, err := e.dag.TopologicalGroups()
	if err != nil {
		return nil, err
	}

	nodes := make(map[string]*Node, len(waves))
	for _, n := range e.dag.Nodes() {
		cp := n
		nodes[n.ID] = &cp
	}

	results := make(map[string]*NodeResult, len(nodes))
	var mu sync.Mutex // guards results

	total := len(nodes)
	completed := 0

	e.bus.Publish(Event{Type: EventWorkflowStarted, WorkflowID: e.workflowID, Timestamp: now()})

	for waveIdx, wave := range waves {
		if ctx.Err() != nil {
			e.skipRemaining(wave, waves[waveIdx+1:], results, &mu)
			e.bus.Publish(Event{Type: EventWorkflowCancelled, WorkflowID: e.workflowID, Timestamp: now()})
			return &Result{WorkflowID: e.workflowID, Status: StatusCancelled, Nodes: results}, nil
		}

		// Nodes whose dependency failed/skipped/cancelled are themselves
		// marked failed with a dependency_error, without ever running.
		runnable := make([]string, 0, len(wave))
		for _, id := range wave {
			n := nodes[id]
			if depErr := e.dependencyFailure(n, results, &mu); depErr != nil {
				mu.Lock()
				results[id] = &NodeResult{NodeID: id, State: StateFailed, Err: depErr, StartedAt: now(), EndedAt: now()}
				mu.Unlock()
				e.bus.Publish(Event{Type: EventNodeFailed, WorkflowID: e.workflowID, NodeID: id, Timestamp: now(), Err: depErr.Error()})
				completed++
				continue
			}
			runnable = append(runnable, id)
		}

		if e.metrics != nil {
			e.metrics.waveDispatched(len(runnable))
		}

		concurrency := e.concurrency
		if concurrency <= 0 {
			concurrency = len(runnable)
			if concurrency > defaultConcurrencyCap {
				concurrency = defaultConcurrencyCap
			}
		}
		if concurrency < 1 {
			concurrency = 1
		}

		sem := make(chan struct{}, concurrency)
		var wg sync.WaitGroup
		for _, id := range runnable {
			wg.Add(1)
			sem <- struct{}{}
			go func(n *Node) {
				defer wg.Done()
				defer func() { <-sem }()
				res := e.runNode(ctx, n)
				mu.Lock()
				results[n.ID] = res
				mu.Unlock()
			}(nodes[id])
		}

		done := make(chan struct{})
		go func() { wg.Wait(); close(done) }()

		select {
		case <-done:
		case <-ctx.Done():
			select {
			case <-done:
			case <-time.After(cancellationGracePeriod):
				// Force-fail nodes that did not honor cancellation in time.
				mu.Lock()
				for _, id := range runnable {
					if _, ok := results[id]; !ok {
						results[id] = &NodeResult{NodeID: id, State: StateFailed, Err: maerr.New(maerr.KindCancellation, "node did not honor cancellation within grace period"), StartedAt: now(), EndedAt: now()}
					}
				}
				mu.Unlock()
			}
		}

		for _, id := range runnable {
			r := results[id]
			completed++
			switch r.State {
			case StateCompleted:
				e.bus.Publish(Event{Type: EventNodeCompleted, WorkflowID: e.workflowID, NodeID: id, Timestamp: now()})
			default:
				e.bus.Publish(Event{Type: EventNodeFailed, WorkflowID: e.workflowID, NodeID: id, Timestamp: now(), Err: errString(r.Err)})
			}
		}
		e.bus.Publish(Event{Type: EventProgress, WorkflowID: e.workflowID, Completed: completed, Total: total, Timestamp: now()})

		if ctx.Err() != nil {
			e.skipRemaining(nil, waves[waveIdx+1:], results, &mu)
			e.bus.Publish(Event{Type: EventWorkflowCancelled, WorkflowID: e.workflowID, Timestamp: now()})
			return &Result{WorkflowID: e.workflowID, Status: StatusCancelled, Nodes: results}, nil
		}
	}

	status := StatusCompleted
	for _, r := range results {
		if r.State != StateCompleted {
			status = StatusFailed
			break
		}
	}

	if status == StatusCompleted {
		e.bus.Publish(Event{Type: EventWorkflowCompleted, WorkflowID: e.workflowID, Timestamp: now()})
	} else {
		e.bus.Publish(Event{Type: EventWorkflowFailed, WorkflowID: e.workflowID, Timestamp: now()})
	}

	return &Result{WorkflowID: e.workflowID, Status: status, Nodes: results}, nil
}

// dependencyFailure returns a dependency_error if any of n's
// dependencies did not complete successfully.
func (e *Executor) dependencyFailure(n *Node, results map[string]*NodeResult, mu *sync.Mutex) error {
	mu.Lock()
	defer mu.Unlock()
	for _, dep := range n.DependsOn {
		r, ok := results[dep]
		if !ok || r.State != StateCompleted {
			return maerr.Newf(maerr.KindDependencyError, "node %s: dependency %s did not complete", n.ID, dep)
		}
	}
	return nil
}

// runNode executes one node with retry/backoff and a per-node timeout.
func (e *Executor) runNode(ctx context.Context, n *Node) *NodeResult {
	timeout := time.Duration(n.Config.TimeoutSeconds) * time.Second
	if timeout <= 0 {
		timeout = defaultNodeTimeout
	}

	initialBackoff := time.Duration(n.Config.Retry.InitialBackoffMS) * time.Millisecond
	if initialBackoff <= 0 {
		initialBackoff = defaultInitialBackoffMS * time.Millisecond
	}
	maxBackoff := time.Duration(n.Config.Retry.MaxBackoffMS) * time.Millisecond
	if maxBackoff <= 0 {
		maxBackoff = defaultMaxBackoffMS * time.Millisecond
	}

	started := now()
	var lastErr error

	for attempt := 0; attempt <= n.Config.Retry.MaxRetries; attempt++ {
		if ctx.Err() != nil {
			return &NodeResult{NodeID: n.ID, State: StateSkipped, Attempts: attempt, Err: ctx.Err(), StartedAt: started, EndedAt: now()}
		}

		e.bus.Publish(Event{Type: EventNodeStarted, WorkflowID: e.workflowID, NodeID: n.ID, Timestamp: now()})
		if e.metrics != nil {
			e.metrics.nodeStarted(n.Kind)
		}

		nodeCtx, cancel := context.WithTimeout(ctx, timeout)
		attemptStart := time.Now()
		err := e.nodeExecutor.Execute(nodeCtx, *n)
		cancel()
		elapsed := time.Since(attemptStart).Seconds()

		if err == nil {
			if e.metrics != nil {
				e.metrics.nodeCompleted(n.Kind, elapsed)
			}
			return &NodeResult{NodeID: n.ID, State: StateCompleted, Attempts: attempt + 1, StartedAt: started, EndedAt: now()}
		}

		lastErr = err
		if nodeCtx.Err() == context.DeadlineExceeded {
			lastErr = maerr.Wrap(maerr.KindNodeTimeout, err, "node exceeded its configured timeout")
		}

		if e.metrics != nil {
			e.metrics.nodeFailed(n.Kind, string(classify(lastErr)), elapsed)
		}

		if attempt == n.Config.Retry.MaxRetries {
			break
		}

		e.log.Warn("", "", "node failed, retrying after backoff", map[string]any{
			"node_id": n.ID, "attempt": attempt + 1, "error": lastErr.Error(),
		})

		backoff := initialBackoff * time.Duration(1<<uint(attempt))
		if backoff > maxBackoff {
			backoff = maxBackoff
		}
		select {
		case <-time.After(backoff):
		case <-ctx.Done():
			return &NodeResult{NodeID: n.ID, State: StateSkipped, Attempts: attempt + 1, Err: ctx.Err(), StartedAt: started, EndedAt: now()}
		}
	}

	return &NodeResult{NodeID: n.ID, State: StateFailed, Attempts: n.Config.Retry.MaxRetries + 1, Err: lastErr, StartedAt: started, EndedAt: now()}
}

func (e *Executor) skipRemaining(currentWave []string, remainingWaves [][]string, results map[string]*NodeResult, mu *sync.Mutex) {
	mu.Lock()
	defer mu.Unlock()
	for _, id := range currentWave {
		if _, ok := results[id]; !ok {
			results[id] = &NodeResult{NodeID: id, State: StateSkipped, StartedAt: now(), EndedAt: now()}
		}
	}
	for _, wave := range remainingWaves {
		for _, id := range wave {
			if _, ok := results[id]; !ok {
				results[id] = &NodeResult{NodeID: id, State: StateSkipped, StartedAt: now(), EndedAt: now()}
			}
		}
	}
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}

func classify(err error) maerr.Kind {
	if e, ok := err.(*maerr.Error); ok {
		return e.Kind
	}
	return maerr.KindNodeFailure
}

// now is a seam so tests could substitute a fixed clock if ever needed;
// production code always uses the wall clock.
func now() time.Time { return time.Now() }
