// Copyright 2025 AxonFlow
// SPDX-License-Identifier: BUSL-1.1

package discussion

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"maestro/platform/conversation"
	"maestro/platform/llmclient"
)

// checkConsensus asks the LLM collaborator to judge whether recent
// converged on topic, using a fixed JSON schema for the response. On
// parse failure, it conservatively reports no consensus rather than
// silently treating garbage output as agreement.
func (o *Orchestrator) checkConsensus(ctx context.Context, topic string, recent []conversation.Message) (ConsensusResult, error) {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Topic: %s\n\nDiscussion so far:\n", topic)
	for _, m := range recent {
		if m.Discussion != nil {
			fmt.Fprintf(&sb, "[%s] %s\n", m.Source, m.Discussion.Content)
		}
	}
	sb.WriteString("\nHas the group reached consensus? Respond as JSON: " +
		`{"reached": bool, "confidence": 0..1, "rationale": string, "outstanding": [string]}`)

	resp, err := o.llm.Generate(ctx, llmclient.Request{Prompt: sb.String()})
	if err != nil {
		return ConsensusResult{}, fmt.Errorf("consensus check failed: %w", err)
	}

	var parsed ConsensusResult
	if jsonErr := json.Unmarshal([]byte(resp.Text), &parsed); jsonErr != nil {
		o.log.Warn("", "", "consensus check response was not valid JSON, treating as unresolved", map[string]any{"error": jsonErr.Error()})
		return ConsensusResult{Reached: false, Rationale: "unparseable consensus response"}, nil
	}
	return parsed, nil
}

// synthesize asks the LLM collaborator to summarize the full discussion
// into decisions, action items, and open questions. Falls back to a
// minimal summary-only synthesis on parse failure.
func (o *Orchestrator) synthesize(ctx context.Context, topic string, full []conversation.Message) (Synthesis, error) {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Topic: %s\n\nFull conversation:\n", topic)
	for _, m := range full {
		switch {
		case m.Discussion != nil:
			fmt.Fprintf(&sb, "[%s] %s\n", m.Source, m.Discussion.Content)
		case m.PersonaWork != nil:
			fmt.Fprintf(&sb, "[%s] %s\n", m.Source, m.PersonaWork.Summary)
		}
	}
	sb.WriteString("\nSynthesize this discussion as JSON: " +
		`{"summary": string, "decisions": [string], "action_items": [string], "open_questions": [string]}`)

	resp, err := o.llm.Generate(ctx, llmclient.Request{Prompt: sb.String()})
	if err != nil {
		return Synthesis{}, fmt.Errorf("synthesis failed: %w", err)
	}

	var parsed Synthesis
	if jsonErr := json.Unmarshal([]byte(resp.Text), &parsed); jsonErr != nil {
		o.log.Warn("", "", "synthesis response was not valid JSON, falling back to summary-only", map[string]any{"error": jsonErr.Error()})
		return Synthesis{Summary: resp.Text}, nil
	}
	return parsed, nil
}

// ResolvePendingQuestions scans persona-work messages in phase for
// questions without a matching answer, routes each to its target
// persona via the LLM collaborator, and appends the reply as an answer
// message linked by question id. Stops after max questions.
func (o *Orchestrator) ResolvePendingQuestions(ctx context.Context, phase string, max int) error {
	workMessages := o.conv.Filter(conversation.Filter{Phase: phase, Kind: conversation.KindPersonaWork})
	answers := o.conv.Filter(conversation.Filter{Phase: phase, Kind: conversation.KindAnswer})

	answered := make(map[string]bool, len(answers))
	for _, a := range answers {
		answered[a.Answer.QuestionID] = true
	}

	resolved := 0
	for _, m := range workMessages {
		for _, q := range m.PersonaWork.Questions {
			if answered[q.ID] || resolved >= max {
				continue
			}

			ctxStr := o.conv.ContextFor(q.For, recentMessageWindow)
			prompt := fmt.Sprintf("You are %s. Another team member asked: %q (context: %s)\nConversation context:\n%s\nAnswer concisely.",
				q.For, q.Question, q.Context, ctxStr)

			resp, err := o.llm.Generate(ctx, llmclient.Request{Prompt: prompt})
			if err != nil {
				return fmt.Errorf("failed to resolve question %s: %w", q.ID, err)
			}

			if _, err := o.conv.Append(conversation.Message{
				Source: q.For,
				Phase:  phase,
				Kind:   conversation.KindAnswer,
				Answer: &conversation.AnswerPayload{QuestionID: q.ID, AnswerText: resp.Text, Author: q.For},
			}); err != nil {
				return err
			}

			answered[q.ID] = true
			resolved++
		}
	}
	return nil
}
