// Copyright 2025 AxonFlow
// SPDX-License-Identifier: BUSL-1.1

package discussion

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"maestro/platform/conversation"
	"maestro/platform/llmclient"
)

func TestRunRequiresAtLeastTwoParticipants(t *testing.T) {
	o := New(conversation.New(), llmclient.NewCannedClient(llmclient.Response{Text: "ok"}))
	_, err := o.Run(context.Background(), "design", "topic", "req", []Participant{{PersonaID: "a"}})
	require.Error(t, err)
}

func TestRunReachesConsensusAndSynthesizes(t *testing.T) {
	conv := conversation.New()
	llm := llmclient.NewCannedClient(llmclient.Response{Text: "I agree with the approach."}).
		WithResponse(`Topic: auth approach

Discussion so far:
[a] I agree with the approach.
[b] I agree with the approach.

Has the group reached consensus? Respond as JSON: {"reached": bool, "confidence": 0..1, "rationale": string, "outstanding": [string]}`,
			llmclient.Response{Text: `{"reached": true, "confidence": 0.9, "rationale": "both agree", "outstanding": []}`})

	o := New(conv, llm).WithMaxRounds(3)

	outcome, err := o.Run(context.Background(), "design", "auth approach", "build auth", []Participant{
		{PersonaID: "a", Expertise: "backend"},
		{PersonaID: "b", Expertise: "frontend"},
	})
	require.NoError(t, err)
	assert.True(t, outcome.ConsensusReached)
	assert.Equal(t, 1, outcome.Rounds)
}

func TestRunStopsAtMaxRoundsWithoutConsensus(t *testing.T) {
	conv := conversation.New()
	llm := llmclient.NewCannedClient(llmclient.Response{Text: "not sure yet"})
	// default consensus-check response (unparseable -> Reached=false)

	o := New(conv, llm).WithMaxRounds(2)

	outcome, err := o.Run(context.Background(), "design", "topic", "req", []Participant{
		{PersonaID: "a"}, {PersonaID: "b"},
	})
	require.NoError(t, err)
	assert.False(t, outcome.ConsensusReached)
	assert.Equal(t, 2, outcome.Rounds)
}

func TestResolvePendingQuestionsAppendsAnswer(t *testing.T) {
	conv := conversation.New()
	llm := llmclient.NewCannedClient(llmclient.Response{Text: "Use JWT."})
	o := New(conv, llm)

	_, err := conv.Append(conversation.Message{
		Source: "backend_developer",
		Phase:  "design",
		Kind:   conversation.KindPersonaWork,
		PersonaWork: &conversation.PersonaWorkPayload{
			Summary:   "drafted auth",
			Questions: []conversation.Question{{ID: "q1", For: "frontend_developer", Question: "JWT or cookies?"}},
		},
	})
	require.NoError(t, err)

	require.NoError(t, o.ResolvePendingQuestions(context.Background(), "design", 10))

	answers := conv.Filter(conversation.Filter{Kind: conversation.KindAnswer})
	require.Len(t, answers, 1)
	assert.Equal(t, "q1", answers[0].Answer.QuestionID)
	assert.Equal(t, "frontend_developer", answers[0].Answer.Author)
}
