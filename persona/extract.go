// Copyright 2025 AxonFlow
// SPDX-License-Identifier: BUSL-1.1

package persona

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"maestro/platform/conversation"
	"maestro/platform/llmclient"
)

// extractedWork is the fixed JSON schema the second LLM call is asked
// to fill in. It mirrors conversation.PersonaWorkPayload minus
// FilesCreated, which the executor fills from the snapshot diff, and
// Dependencies, which nothing fills in.
type extractedWork struct {
	Summary     string                  `json:"summary"`
	Decisions   []conversation.Decision `json:"decisions"`
	Questions   []conversation.Question `json:"questions"`
	Assumptions []string                `json:"assumptions"`
	Concerns    []string                `json:"concerns"`
}

// extract asks the LLM collaborator to summarize rawOutput into a
// structured persona-work payload. On parse failure it falls back to a
// minimal message built from the added file list, matching the
// fallback discipline used by the group-chat orchestrator's synthesis step.
func (e *Executor) extract(ctx context.Context, p Persona, rawOutput string, addedFiles []string) conversation.PersonaWorkPayload {
	var sb strings.Builder
	fmt.Fprintf(&sb, "You are %s. Summarize the work you just produced.\n\nYour output:\n%s\n\n", p.ID, rawOutput)
	sb.WriteString("Respond as JSON: " +
		`{"summary": string, "decisions": [{"decision": string, "rationale": string, "alternatives": [string], "trade_offs": [string]}], ` +
		`"questions": [{"id": string, "for": string, "question": string, "context": string}], "assumptions": [string], "concerns": [string]}`)

	resp, err := e.llm.Generate(ctx, llmclient.Request{Prompt: sb.String()})
	if err != nil {
		e.log.Warn("", "", "structured extraction call failed, falling back to file-list summary", map[string]any{"error": err.Error(), "persona": p.ID})
		return fallbackWork(addedFiles)
	}

	var parsed extractedWork
	if jsonErr := json.Unmarshal([]byte(resp.Text), &parsed); jsonErr != nil {
		e.log.Warn("", "", "persona-work extraction response was not valid JSON, falling back to file-list summary", map[string]any{"error": jsonErr.Error(), "persona": p.ID})
		return fallbackWork(addedFiles)
	}

	return conversation.PersonaWorkPayload{
		Summary:      parsed.Summary,
		Decisions:    parsed.Decisions,
		FilesCreated: addedFiles,
		Questions:    parsed.Questions,
		Assumptions:  parsed.Assumptions,
		Concerns:     parsed.Concerns,
	}
}

// fallbackWork synthesizes a minimal persona-work payload from nothing
// but the files the persona's execution produced.
func fallbackWork(addedFiles []string) conversation.PersonaWorkPayload {
	summary := "produced no files"
	if len(addedFiles) > 0 {
		summary = fmt.Sprintf("produced %d file(s): %s", len(addedFiles), strings.Join(addedFiles, ", "))
	}
	return conversation.PersonaWorkPayload{
		Summary:      summary,
		FilesCreated: addedFiles,
	}
}
