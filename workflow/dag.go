// Copyright 2025 AxonFlow
// SPDX-License-Identifier: BUSL-1.1

// Package workflow implements the DAG Workflow Engine: a typed-node
// dependency graph, topological wave scheduling with interface-first
// promotion, and a concurrent wave executor with retry/backoff,
// per-node timeouts, and cooperative cancellation.
package workflow

import (
	"sort"

	maerr "maestro/platform/shared/errors"
)

// NodeKind is one of the five node types a workflow DAG may contain.
type NodeKind string

const (
	NodeAction       NodeKind = "action"
	NodePhase        NodeKind = "phase"
	NodeCheckpoint   NodeKind = "checkpoint"
	NodeNotification NodeKind = "notification"
	NodeInterface    NodeKind = "interface"
)

// RetryPolicy controls per-node retry/backoff. Zero value means no retries.
type RetryPolicy struct {
	MaxRetries     int
	InitialBackoffMS int
	MaxBackoffMS     int
}

// NodeConfig carries the node's execution parameters.
type NodeConfig struct {
	Command            string
	PersonaID          string
	TimeoutSeconds     int
	Retry              RetryPolicy
	RequiredCapability string
	Gates              []string
	EstimatedEffort    string
	ContractVersion    int
	Params             map[string]any
}

// Node is one vertex of a WorkflowDAG.
type Node struct {
	ID        string
	Kind      NodeKind
	Phase     string
	DependsOn []string
	Config    NodeConfig
}

// WorkflowDAG is a typed-node dependency graph. Nodes and dependencies
// are added incrementally; every add_dependency call re-validates the
// graph remains acyclic.
type WorkflowDAG struct {
	nodes map[string]*Node
	order []string // insertion order, for stable iteration when ids tie
}

// NewWorkflowDAG returns an empty DAG.
func NewWorkflowDAG() *WorkflowDAG {
	return &WorkflowDAG{nodes: make(map[string]*Node)}
}

// AddNode registers a node. IDs must be unique within the workflow.
func (d *WorkflowDAG) AddNode(n Node) error {
	if n.ID == "" {
		return maerr.New(maerr.KindValidation, "node id must not be empty")
	}
	if _, exists := d.nodes[n.ID]; exists {
		return maerr.Newf(maerr.KindValidation, "duplicate node id %q", n.ID)
	}
	cp := n
	d.nodes[n.ID] = &cp
	d.order = append(d.order, n.ID)
	return nil
}

// AddDependency records that node depends on dependsOn, then verifies
// the resulting graph is still acyclic. On cycle detection the
// dependency is rolled back and a ValidationError naming the offending
// cycle is returned.
func (d *WorkflowDAG) AddDependency(node, dependsOn string) error {
	n, ok := d.nodes[node]
	if !ok {
		return maerr.Newf(maerr.KindValidation, "unknown node %q", node)
	}
	if _, ok := d.nodes[dependsOn]; !ok {
		return maerr.Newf(maerr.KindValidation, "node %q depends on unknown node %q", node, dependsOn)
	}
	for _, existing := range n.DependsOn {
		if existing == dependsOn {
			return nil
		}
	}
	n.DependsOn = append(n.DependsOn, dependsOn)

	if cycle := d.findCycle(); cycle != nil {
		// roll back
		n.DependsOn = n.DependsOn[:len(n.DependsOn)-1]
		return maerr.Newf(maerr.KindValidation, "adding dependency %s -> %s introduces a cycle: %v", node, dependsOn, cycle).
			WithDetails(map[string]any{"cycle": cycle})
	}
	return nil
}

// nodeColor tracks DFS visitation state for cycle detection.
type nodeColor int

const (
	white nodeColor = iota
	gray
	black
)

// findCycle runs DFS over the dependency graph and returns the
// offending cycle (node ids, closing back on the first repeated id) or
// nil if the graph is acyclic.
func (d *WorkflowDAG) findCycle() []string {
	colors := make(map[string]nodeColor, len(d.nodes))
	var path []string

	var visit func(id string) []string
	visit = func(id string) []string {
		colors[id] = gray
		path = append(path, id)
		defer func() { path = path[:len(path)-1] }()

		n := d.nodes[id]
		for _, dep := range n.DependsOn {
			switch colors[dep] {
			case gray:
				// found the back-edge; return the cycle starting at dep
				start := 0
				for i, p := range path {
					if p == dep {
						start = i
						break
					}
				}
				cycle := append([]string{}, path[start:]...)
				cycle = append(cycle, dep)
				return cycle
			case white:
				if c := visit(dep); c != nil {
					return c
				}
			}
		}
		colors[id] = black
		return nil
	}

	for _, id := range d.order {
		if colors[id] == white {
			if c := visit(id); c != nil {
				return c
			}
		}
	}
	return nil
}

// Node returns the node with the given id, if present.
func (d *WorkflowDAG) Node(id string) (Node, bool) {
	n, ok := d.nodes[id]
	if !ok {
		return Node{}, false
	}
	return *n, true
}

// Nodes returns all nodes in insertion order.
func (d *WorkflowDAG) Nodes() []Node {
	out := make([]Node, 0, len(d.order))
	for _, id := range d.order {
		out = append(out, *d.nodes[id])
	}
	return out
}

// TopologicalGroups computes the wave decomposition of the DAG via
// Kahn's algorithm: each wave holds every node whose dependencies are
// already satisfied by prior waves. Readiness-based leveling already
// gives interface nodes the earliest wave their own dependencies
// permit, independent of unrelated slower branches, which is what
// locks their contracts ahead of downstream work. Within a wave, nodes
// are ordered by id ascending for stable, replayable scheduling.
func (d *WorkflowDAG) TopologicalGroups() ([][]string, error) {
	if cycle := d.findCycle(); cycle != nil {
		return nil, maerr.Newf(maerr.KindValidation, "workflow DAG contains a cycle: %v", cycle).
			WithDetails(map[string]any{"cycle": cycle})
	}

	indegree := make(map[string]int, len(d.nodes))
	dependents := make(map[string][]string, len(d.nodes))
	for id, n := range d.nodes {
		indegree[id] = len(n.DependsOn)
		for _, dep := range n.DependsOn {
			dependents[dep] = append(dependents[dep], id)
		}
	}

	remaining := len(d.nodes)
	var waves [][]string

	for remaining > 0 {
		var wave []string
		for id, deg := range indegree {
			if deg == 0 {
				wave = append(wave, id)
			}
		}
		if len(wave) == 0 {
			return nil, maerr.New(maerr.KindValidation, "workflow DAG cannot be fully ordered (residual cycle)")
		}
		sort.Strings(wave)

		for _, id := range wave {
			delete(indegree, id)
			for _, dep := range dependents[id] {
				indegree[dep]--
			}
		}
		waves = append(waves, wave)
		remaining -= len(wave)
	}

	return waves, nil
}
