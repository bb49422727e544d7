// Copyright 2025 AxonFlow
// SPDX-License-Identifier: BUSL-1.1

// Package discussion implements the Group-Chat Orchestrator: a
// multi-round structured discussion among personas with consensus
// detection, synthesis, and cross-agent question/answer routing.
package discussion

import (
	"context"
	"fmt"

	"maestro/platform/conversation"
	"maestro/platform/llmclient"
	"maestro/platform/shared/logger"
)

const (
	defaultMaxRounds         = 5
	defaultConsensusThreshold = 0.7
	recentMessageWindow      = 20
)

// Participant is one persona taking part in a discussion.
type Participant struct {
	PersonaID string
	Expertise string
}

// ConsensusResult is the outcome of a consensus_check call.
type ConsensusResult struct {
	Reached    bool
	Confidence float64
	Rationale  string
	Outstanding []string
}

// Synthesis is the outcome of synthesizing a completed discussion.
type Synthesis struct {
	Summary       string
	Decisions     []string
	ActionItems   []string
	OpenQuestions []string
}

// Outcome is what Run returns.
type Outcome struct {
	Consensus        ConsensusResult
	ConsensusReached bool
	Rounds           int
	Messages         []conversation.Message
}

// Orchestrator runs multi-round group discussions over a shared
// conversation, calling out to an LLM collaborator for each
// participant's turn and for consensus/synthesis judgments.
type Orchestrator struct {
	conv              *conversation.Store
	llm               llmclient.Client
	maxRounds         int
	consensusThreshold float64
	log               *logger.Logger
}

// New returns an Orchestrator backed by conv and llm, with
// spec-documented defaults (max_rounds=5, consensus_threshold=0.7).
func New(conv *conversation.Store, llm llmclient.Client) *Orchestrator {
	return &Orchestrator{
		conv:               conv,
		llm:                llm,
		maxRounds:          defaultMaxRounds,
		consensusThreshold: defaultConsensusThreshold,
		log:                logger.New("discussion"),
	}
}

// WithMaxRounds overrides the default round cap.
func (o *Orchestrator) WithMaxRounds(n int) *Orchestrator {
	o.maxRounds = n
	return o
}

// WithConsensusThreshold overrides the default consensus confidence bar.
func (o *Orchestrator) WithConsensusThreshold(t float64) *Orchestrator {
	o.consensusThreshold = t
	return o
}

// Run drives a multi-round discussion among participants (N >= 2) about
// topic, in the context of requirement, within phase.
func (o *Orchestrator) Run(ctx context.Context, phase, topic, requirement string, participants []Participant) (Outcome, error) {
	if len(participants) < 2 {
		return Outcome{}, fmt.Errorf("group discussion requires at least 2 participants, got %d", len(participants))
	}

	if _, err := o.conv.Append(conversation.Message{
		Source: "system",
		Phase:  phase,
		Kind:   conversation.KindSystem,
		System: &conversation.SystemPayload{Content: "Opening discussion: " + topic, Level: conversation.SystemLevelInfo},
	}); err != nil {
		return Outcome{}, err
	}

	var lastConsensus ConsensusResult
	round := 0

	for round = 1; round <= o.maxRounds; round++ {
		recent := o.conv.Filter(conversation.Filter{Phase: phase, Kind: conversation.KindDiscussion, Limit: recentMessageWindow})

		for _, p := range participants {
			prompt := buildTurnPrompt(topic, requirement, p, recent, round)
			resp, err := o.llm.Generate(ctx, llmclient.Request{Prompt: prompt})
			if err != nil {
				return Outcome{}, fmt.Errorf("persona %s failed to respond in round %d: %w", p.PersonaID, round, err)
			}

			if _, err := o.conv.Append(conversation.Message{
				Source: p.PersonaID,
				Phase:  phase,
				Kind:   conversation.KindDiscussion,
				Discussion: &conversation.DiscussionPayload{
					Content:     resp.Text,
					MessageType: conversation.MessageTypeDiscussion,
					Metadata:    map[string]any{"round": round},
				},
			}); err != nil {
				return Outcome{}, err
			}
		}

		recent = o.conv.Filter(conversation.Filter{Phase: phase, Kind: conversation.KindDiscussion, Limit: recentMessageWindow})
		consensus, err := o.checkConsensus(ctx, topic, recent)
		if err != nil {
			return Outcome{}, err
		}
		lastConsensus = consensus

		if consensus.Reached && consensus.Confidence >= o.consensusThreshold {
			break
		}
	}

	if round > o.maxRounds {
		round = o.maxRounds
	}

	allMessages := o.conv.Filter(conversation.Filter{Phase: phase})
	synthesis, err := o.synthesize(ctx, topic, allMessages)
	if err != nil {
		return Outcome{}, err
	}

	if _, err := o.conv.Append(conversation.Message{
		Source: "system",
		Phase:  phase,
		Kind:   conversation.KindSystem,
		System: &conversation.SystemPayload{Content: synthesis.Summary, Level: conversation.SystemLevelInfo},
	}); err != nil {
		return Outcome{}, err
	}

	return Outcome{
		Consensus:        lastConsensus,
		ConsensusReached: lastConsensus.Reached && lastConsensus.Confidence >= o.consensusThreshold,
		Rounds:           round,
		Messages:         allMessages,
	}, nil
}

func buildTurnPrompt(topic, requirement string, p Participant, recent []conversation.Message, round int) string {
	var b []byte
	b = append(b, fmt.Sprintf("Topic: %s\nRequirement: %s\nYour expertise: %s\nRound: %d\n\nRecent discussion:\n", topic, requirement, p.Expertise, round)...)
	for _, m := range recent {
		if m.Discussion != nil {
			b = append(b, fmt.Sprintf("[%s] %s\n", m.Source, m.Discussion.Content)...)
		}
	}
	return string(b)
}
