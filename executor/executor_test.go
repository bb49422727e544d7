// Copyright 2025 AxonFlow
// SPDX-License-Identifier: BUSL-1.1

package executor

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"maestro/platform/bypass"
	"maestro/platform/contract"
	"maestro/platform/conversation"
	"maestro/platform/llmclient"
	"maestro/platform/persona"
	"maestro/platform/phase"
	"maestro/platform/policy"
)

// step is one scripted Generate call: it optionally writes a file (to
// simulate the external LLM collaborator producing output) before
// returning resp.
type step struct {
	writeFile    string
	writeContent string
	resp         llmclient.Response
	err          error
}

// scriptedClient replays steps in order across every Generate call the
// persona executor makes (one per generation call, one per structured
// extraction call, in strict sequence).
type scriptedClient struct {
	steps []step
	idx   int
}

func (c *scriptedClient) Generate(_ context.Context, _ llmclient.Request) (llmclient.Response, error) {
	i := c.idx
	c.idx++
	s := c.steps[i]
	if s.writeFile != "" {
		_ = os.MkdirAll(filepath.Dir(s.writeFile), 0o755)
		_ = os.WriteFile(s.writeFile, []byte(s.writeContent), 0o644)
	}
	return s.resp, s.err
}

func (c *scriptedClient) Stream(ctx context.Context, req llmclient.Request, handler func(llmclient.Chunk)) (llmclient.Response, error) {
	resp, err := c.Generate(ctx, req)
	if err != nil {
		return llmclient.Response{}, err
	}
	handler(llmclient.Chunk{Text: resp.Text, Done: true})
	return resp, nil
}

const substantialDoc = `# Notes

This document records the work done for this phase in reasonable
detail, covering the approach taken, the alternatives considered, and
the rationale behind the final decision that was made here today.
`

func blankPolicy(t *testing.T) *policy.Policy {
	t.Helper()
	path := filepath.Join(t.TempDir(), "policy.yaml")
	doc := "phases: {}\nbypass_rules:\n  bypassable_gates: []\n  non_bypassable_gates: []\n  audit_trail:\n    log_location: logs/bypasses.jsonl\n    alert_threshold: 0.10\n"
	require.NoError(t, os.WriteFile(path, []byte(doc), 0o644))
	pol, err := policy.Load(path)
	require.NoError(t, err)
	return pol
}

// setup registers one contract per phase, each naming a single
// markdown deliverable, and returns the registry plus the root
// directory under which each phase's persona writes its output.
// substantialDoc is under the substance token floor, so it scores 0.4
// and is only partial against the default 0.8 threshold; unconfigured
// gates default to warning severity, so that does not block a phase.
func setup(t *testing.T) (*contract.Registry, string) {
	t.Helper()
	reg := contract.New()
	for _, p := range phase.Sequence {
		_, err := reg.Create(string(p), contract.Contract{
			Deliverables: []contract.Deliverable{
				{Name: string(p) + "_doc", ArtifactPatterns: []string{"*.md"}, MinQualityScore: 0.5},
			},
			OwnerPersonaIDs: []string{"worker"},
		})
		require.NoError(t, err)
	}
	return reg, t.TempDir()
}

func outputDirFor(root string) OutputDirFunc {
	return func(p phase.Phase) string { return filepath.Join(root, string(p)) }
}

var onePersonaPlan PersonaPlanFunc = func(p phase.Phase) []persona.Persona {
	return []persona.Persona{{ID: "worker", Role: "Builder", Expertise: "general", SystemPrompt: "You build things."}}
}

func TestRunCompletesAllPhasesWhenEveryGatePasses(t *testing.T) {
	reg, root := setup(t)
	pol := blankPolicy(t)
	conv := conversation.New()

	var steps []step
	for _, p := range phase.Sequence {
		steps = append(steps,
			step{
				writeFile:    filepath.Join(root, string(p), string(p)+"_doc.md"),
				writeContent: substantialDoc,
				resp:         llmclient.Response{Text: "wrote the doc"},
			},
			step{resp: llmclient.Response{Text: `{"summary": "done", "decisions": [], "questions": [], "assumptions": [], "concerns": []}`}},
		)
	}
	llm := &scriptedClient{steps: steps}

	personaExec := persona.New(llm, conv, reg, root, "iter-1")
	validator := phase.New(reg, pol)
	exec := New(validator, personaExec, nil, conv)

	outcome, err := exec.Run(context.Background(), "wf-1", "build a widget service", outputDirFor(root), onePersonaPlan, nil)
	require.NoError(t, err)
	assert.Equal(t, "completed", outcome.Status)
	require.Len(t, outcome.Phases, len(phase.Sequence))
	for _, po := range outcome.Phases {
		assert.True(t, po.Passed, "phase %s should have passed", po.Phase)
		assert.False(t, po.Bypassed)
	}
}

func blockingPolicy(t *testing.T, phaseName, gate string) *policy.Policy {
	t.Helper()
	path := filepath.Join(t.TempDir(), "policy.yaml")
	doc := "phases:\n  " + phaseName + ":\n    gates:\n      " + gate + ":\n        threshold: 0.5\n        severity: blocking\n" +
		"bypass_rules:\n  bypassable_gates:\n    - gate: " + gate + "\n      phase: " + phaseName +
		"\n      requires_adr: false\n      approval_level: tech_lead\n  non_bypassable_gates: []\n  audit_trail:\n    log_location: logs/bypasses.jsonl\n    alert_threshold: 0.10\n"
	require.NoError(t, os.WriteFile(path, []byte(doc), 0o644))
	pol, err := policy.Load(path)
	require.NoError(t, err)
	return pol
}

func TestRunFailsWhenDeliverableNeverMaterializesAfterRemediation(t *testing.T) {
	reg, root := setup(t)
	pol := blockingPolicy(t, "requirements", "requirements_doc")
	conv := conversation.New()

	// The requirements phase's persona never writes its deliverable, no
	// matter how many times it's re-invoked across remediation attempts.
	var steps []step
	for i := 0; i < 3; i++ {
		steps = append(steps,
			step{resp: llmclient.Response{Text: "thinking..."}},
			step{resp: llmclient.Response{Text: `{"summary": "no output yet", "decisions": [], "questions": [], "assumptions": [], "concerns": ["blocked"]}`}},
		)
	}
	llm := &scriptedClient{steps: steps}

	personaExec := persona.New(llm, conv, reg, root, "iter-1")
	validator := phase.New(reg, pol)
	exec := New(validator, personaExec, nil, conv).WithMaxRemediationIterations(3)

	outcome, err := exec.Run(context.Background(), "wf-2", "build a widget service", outputDirFor(root), onePersonaPlan, nil)
	require.Error(t, err)
	assert.Equal(t, "failed", outcome.Status)
	assert.Equal(t, phase.PhaseRequirements, outcome.FailedPhase)
}

func TestRunPassesBlockingViolationWithActiveBypass(t *testing.T) {
	reg, root := setup(t)

	// requirements_doc is blocking severity, and the persona's output
	// never clears the deliverable's 0.5 minimum quality score (it's
	// too short to clear the substance scorer's length floor), so the
	// only way this phase can advance is an active bypass.
	pol := blockingPolicy(t, "requirements", "requirements_doc")
	conv := conversation.New()

	var steps []step
	steps = append(steps,
		step{
			writeFile:    filepath.Join(root, "requirements", "requirements_doc.md"),
			writeContent: "# TODO\n",
			resp:         llmclient.Response{Text: "wrote a stub"},
		},
		step{resp: llmclient.Response{Text: `{"summary": "partial", "decisions": [], "questions": [], "assumptions": [], "concerns": []}`}},
	)
	for _, p := range phase.Sequence[1:] {
		steps = append(steps,
			step{
				writeFile:    filepath.Join(root, string(p), string(p)+"_doc.md"),
				writeContent: substantialDoc,
				resp:         llmclient.Response{Text: "wrote the doc"},
			},
			step{resp: llmclient.Response{Text: `{"summary": "done", "decisions": [], "questions": [], "assumptions": [], "concerns": []}`}},
		)
	}
	llm := &scriptedClient{steps: steps}

	personaExec := persona.New(llm, conv, reg, root, "iter-1")
	validator := phase.New(reg, pol)
	bypassMgr := bypass.New(pol, bypass.NewMemoryStore())

	req, err := bypassMgr.CreateRequest(bypass.CreateParams{
		WorkflowID: "wf-3", Phase: "requirements", Gate: "requirements_doc",
		CurrentValue: 0.3, RequiredThreshold: 0.5, RequestedBy: "alice",
	})
	require.NoError(t, err)
	_, err = bypassMgr.Approve(req.ID, "bob", "", nil, nil)
	require.NoError(t, err)

	exec := New(validator, personaExec, bypassMgr, conv).WithMaxRemediationIterations(2)

	outcome, err := exec.Run(context.Background(), "wf-3", "build a widget service", outputDirFor(root), onePersonaPlan, nil)
	require.NoError(t, err)
	assert.Equal(t, "completed", outcome.Status)
	require.NotEmpty(t, outcome.Phases)
	assert.True(t, outcome.Phases[0].Bypassed)
}
