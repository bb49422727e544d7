// Copyright 2025 AxonFlow
// SPDX-License-Identifier: BUSL-1.1

package persona

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"maestro/platform/contract"
	"maestro/platform/conversation"
	"maestro/platform/llmclient"
)

// sequencedClient returns a different canned response per call in
// order, so a test can control both the generation call and the
// subsequent structured-extraction call independently. writeFile, when
// set for a given call index, is written to disk from within Generate
// itself, simulating the external LLM collaborator producing an output
// file as part of that call — this has to happen between Execute's
// pre- and post-snapshot, not before Execute is even invoked.
type sequencedClient struct {
	responses    []llmclient.Response
	errs         []error
	writeFiles   map[int]string
	writeContent map[int]string
	calls        int
}

func (c *sequencedClient) Generate(_ context.Context, _ llmclient.Request) (llmclient.Response, error) {
	i := c.calls
	c.calls++
	if path, ok := c.writeFiles[i]; ok {
		_ = os.MkdirAll(filepath.Dir(path), 0o755)
		_ = os.WriteFile(path, []byte(c.writeContent[i]), 0o644)
	}
	if i < len(c.errs) && c.errs[i] != nil {
		return llmclient.Response{}, c.errs[i]
	}
	if i < len(c.responses) {
		return c.responses[i], nil
	}
	return llmclient.Response{}, nil
}

func (c *sequencedClient) Stream(ctx context.Context, req llmclient.Request, handler func(llmclient.Chunk)) (llmclient.Response, error) {
	resp, err := c.Generate(ctx, req)
	if err != nil {
		return llmclient.Response{}, err
	}
	handler(llmclient.Chunk{Text: resp.Text, Done: true})
	return resp, nil
}

func setupRegistry(t *testing.T, phase string) *contract.Registry {
	t.Helper()
	reg := contract.New()
	_, err := reg.Create(phase, contract.Contract{
		Phase: phase,
		Deliverables: []contract.Deliverable{
			{Name: "design_doc", ArtifactPatterns: []string{"*.md"}, MinQualityScore: 0.5},
		},
		OwnerPersonaIDs: []string{"architect"},
	})
	require.NoError(t, err)
	return reg
}

func TestExecuteHappyPathStampsArtifactsAndAppendsWork(t *testing.T) {
	root := t.TempDir()
	reg := setupRegistry(t, "design")
	conv := conversation.New()

	llm := &sequencedClient{
		responses: []llmclient.Response{
			{Text: "design doc content"},
			{Text: `{"summary": "wrote the design doc", "decisions": [{"decision": "use REST", "rationale": "simplicity"}], "questions": [], "assumptions": ["single region"], "concerns": []}`},
		},
		writeFiles:   map[int]string{0: filepath.Join(root, "design_doc.md")},
		writeContent: map[int]string{0: "# Design\n\nSome content here.\n"},
	}

	exec := New(llm, conv, reg, root, "iter-1")

	p := Persona{ID: "architect", Role: "Architect", Expertise: "system design", SystemPrompt: "You are an architect."}
	execCtx, err := exec.Execute(context.Background(), p, "build a widget service", "design")
	require.NoError(t, err)

	assert.Equal(t, []string{"design_doc.md"}, execCtx.Files)
	require.Len(t, execCtx.Artifacts, 1)
	assert.Equal(t, "design_doc.md", execCtx.Artifacts[0].Name)
	assert.NotEmpty(t, execCtx.Artifacts[0].SHA256)
	assert.Equal(t, "design", execCtx.Artifacts[0].Capability)

	assert.Equal(t, "wrote the design doc", execCtx.Work.Summary)
	require.Len(t, execCtx.Work.Decisions, 1)
	assert.Equal(t, "use REST", execCtx.Work.Decisions[0].Decision)
	assert.Equal(t, []string{"design_doc.md"}, execCtx.Work.FilesCreated)

	appended := conv.Filter(conversation.Filter{Phase: "design", Kind: conversation.KindPersonaWork})
	require.Len(t, appended, 1)
	assert.Equal(t, "architect", appended[0].Source)
	assert.Equal(t, execCtx.MessageID, appended[0].ID)
}

func TestExecuteFallsBackToFileListOnExtractionParseFailure(t *testing.T) {
	root := t.TempDir()
	reg := setupRegistry(t, "design")
	conv := conversation.New()

	llm := &sequencedClient{
		responses: []llmclient.Response{
			{Text: "design doc content"},
			{Text: "not valid json at all"},
		},
		writeFiles:   map[int]string{0: filepath.Join(root, "design_doc.md")},
		writeContent: map[int]string{0: "# Design\n"},
	}

	exec := New(llm, conv, reg, root, "iter-1")

	p := Persona{ID: "architect", Role: "Architect", Expertise: "system design", SystemPrompt: "You are an architect."}
	execCtx, err := exec.Execute(context.Background(), p, "build a widget service", "design")
	require.NoError(t, err)

	assert.Contains(t, execCtx.Work.Summary, "design_doc.md")
	assert.Equal(t, []string{"design_doc.md"}, execCtx.Work.FilesCreated)
	assert.Empty(t, execCtx.Work.Decisions)
}

func TestExecuteWithNoNewFilesProducesEmptyArtifacts(t *testing.T) {
	root := t.TempDir()
	reg := setupRegistry(t, "design")
	conv := conversation.New()

	llm := &sequencedClient{responses: []llmclient.Response{
		{Text: "nothing written"},
		{Text: `{"summary": "no files produced", "decisions": [], "questions": [], "assumptions": [], "concerns": ["blocked on upstream decision"]}`},
	}}

	exec := New(llm, conv, reg, root, "iter-1")

	p := Persona{ID: "architect", Role: "Architect", Expertise: "system design", SystemPrompt: "You are an architect."}
	execCtx, err := exec.Execute(context.Background(), p, "build a widget service", "design")
	require.NoError(t, err)

	assert.Empty(t, execCtx.Files)
	assert.Empty(t, execCtx.Artifacts)
	assert.Equal(t, []string{"blocked on upstream decision"}, execCtx.Work.Concerns)
}

func TestExecutePropagatesGenerationFailure(t *testing.T) {
	root := t.TempDir()
	reg := setupRegistry(t, "design")
	conv := conversation.New()

	llm := &sequencedClient{errs: []error{assert.AnError}}

	exec := New(llm, conv, reg, root, "iter-1")
	p := Persona{ID: "architect", Role: "Architect", Expertise: "system design", SystemPrompt: "You are an architect."}
	_, err := exec.Execute(context.Background(), p, "build a widget service", "design")
	require.Error(t, err)
}
