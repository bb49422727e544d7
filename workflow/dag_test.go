// Copyright 2025 AxonFlow
// SPDX-License-Identifier: BUSL-1.1

package workflow

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAddDependencyRejectsCycle(t *testing.T) {
	d := NewWorkflowDAG()
	require.NoError(t, d.AddNode(Node{ID: "a"}))
	require.NoError(t, d.AddNode(Node{ID: "b"}))
	require.NoError(t, d.AddDependency("b", "a"))

	err := d.AddDependency("a", "b")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "cycle")

	// the rejected edge must not have been applied
	n, _ := d.Node("a")
	assert.Empty(t, n.DependsOn)
}

func TestAddDependencyUnknownNodeIsValidationError(t *testing.T) {
	d := NewWorkflowDAG()
	require.NoError(t, d.AddNode(Node{ID: "a"}))
	err := d.AddDependency("a", "ghost")
	require.Error(t, err)
}

func TestTopologicalGroupsLinearChain(t *testing.T) {
	d := NewWorkflowDAG()
	require.NoError(t, d.AddNode(Node{ID: "a"}))
	require.NoError(t, d.AddNode(Node{ID: "b"}))
	require.NoError(t, d.AddNode(Node{ID: "c"}))
	require.NoError(t, d.AddDependency("b", "a"))
	require.NoError(t, d.AddDependency("c", "b"))

	waves, err := d.TopologicalGroups()
	require.NoError(t, err)
	require.Equal(t, [][]string{{"a"}, {"b"}, {"c"}}, waves)
}

func TestTopologicalGroupsOrdersWaveByIDAscending(t *testing.T) {
	d := NewWorkflowDAG()
	for _, id := range []string{"z", "y", "x"} {
		require.NoError(t, d.AddNode(Node{ID: id}))
	}

	waves, err := d.TopologicalGroups()
	require.NoError(t, err)
	require.Len(t, waves, 1)
	assert.Equal(t, []string{"x", "y", "z"}, waves[0])
}

func TestTopologicalGroupsInterfaceNodeBeforeDependents(t *testing.T) {
	d := NewWorkflowDAG()
	require.NoError(t, d.AddNode(Node{ID: "iface", Kind: NodeInterface}))
	require.NoError(t, d.AddNode(Node{ID: "backend", Kind: NodeAction}))
	require.NoError(t, d.AddNode(Node{ID: "frontend", Kind: NodeAction}))
	require.NoError(t, d.AddDependency("backend", "iface"))
	require.NoError(t, d.AddDependency("frontend", "iface"))

	waves, err := d.TopologicalGroups()
	require.NoError(t, err)

	waveOf := func(id string) int {
		for i, w := range waves {
			for _, n := range w {
				if n == id {
					return i
				}
			}
		}
		t.Fatalf("node %s not found in any wave", id)
		return -1
	}

	ifaceWave := waveOf("iface")
	assert.Less(t, ifaceWave, waveOf("backend"))
	assert.Less(t, ifaceWave, waveOf("frontend"))
}

func TestDuplicateNodeIDRejected(t *testing.T) {
	d := NewWorkflowDAG()
	require.NoError(t, d.AddNode(Node{ID: "a"}))
	err := d.AddNode(Node{ID: "a"})
	require.Error(t, err)
}
