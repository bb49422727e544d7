// Copyright 2025 AxonFlow
// SPDX-License-Identifier: BUSL-1.1

// Package persona implements the Persona Executor: runs a single
// persona's turn against a prompt built from the phase contract and
// conversation, invokes the external LLM collaborator, stamps any
// files the collaborator produced as canonical artifacts, and records
// a structured persona-work message back onto the conversation.
package persona

import (
	"context"
	"fmt"
	"time"

	"maestro/platform/artifact"
	"maestro/platform/contract"
	"maestro/platform/conversation"
	"maestro/platform/llmclient"
	maerr "maestro/platform/shared/errors"
	"maestro/platform/shared/logger"
)

const defaultContextWindow = 10

// Persona is a static descriptor of one role the executor can run as.
type Persona struct {
	ID           string
	Role         string
	Expertise    string
	SystemPrompt string
}

// ExecutionContext is what Execute returns: the persona's turn, timed
// and with its produced artifacts and extracted metadata attached.
type ExecutionContext struct {
	PersonaID  string
	Phase      string
	Started    time.Time
	Finished   time.Time
	Duration   time.Duration
	Files      []string
	Artifacts  []artifact.Artifact
	Work       conversation.PersonaWorkPayload
	MessageID  string
}

// Executor runs personas against an output directory, an LLM
// collaborator, and a shared conversation.
type Executor struct {
	llm        llmclient.Client
	conv       *conversation.Store
	registry   *contract.Registry
	outputRoot string
	iterationID string
	log        *logger.Logger
	contextWindow int
}

// New returns an Executor rooted at outputRoot (the phase output
// directory tree passed to artifact.TakeSnapshot), identifying the
// current run as iterationID for artifact stamping.
func New(llm llmclient.Client, conv *conversation.Store, registry *contract.Registry, outputRoot, iterationID string) *Executor {
	return &Executor{
		llm:           llm,
		conv:          conv,
		registry:      registry,
		outputRoot:    outputRoot,
		iterationID:   iterationID,
		log:           logger.New("persona"),
		contextWindow: defaultContextWindow,
	}
}

// WithContextWindow overrides how many prior persona-work messages
// ContextFor includes in the constructed prompt.
func (e *Executor) WithContextWindow(n int) *Executor {
	e.contextWindow = n
	return e
}

// Execute runs p's turn for requirement within phase: pre-snapshot,
// prompt construction, LLM invocation, post-snapshot diff, artifact
// stamping, structured extraction, and conversation append — the
// Persona Executor's six-step process.
func (e *Executor) Execute(ctx context.Context, p Persona, requirement, phase string) (ExecutionContext, error) {
	started := time.Now().UTC()

	pre, err := artifact.TakeSnapshot(e.outputRoot)
	if err != nil {
		return ExecutionContext{}, maerr.Wrap(maerr.KindInternal, err, "failed to take pre-execution snapshot")
	}

	deliverables, err := e.registry.RequiredDeliverables(phase)
	if err != nil {
		return ExecutionContext{}, maerr.Wrap(maerr.KindInternal, err, "failed to load phase contract for prompt construction")
	}

	prompt := e.buildPrompt(p, requirement, phase, deliverables)

	resp, err := e.llm.Generate(ctx, llmclient.Request{Prompt: prompt})
	if err != nil {
		return ExecutionContext{}, maerr.Wrap(maerr.KindNodeFailure, err, fmt.Sprintf("persona %s failed to execute in phase %s", p.ID, phase))
	}

	post, err := artifact.TakeSnapshot(e.outputRoot)
	if err != nil {
		return ExecutionContext{}, maerr.Wrap(maerr.KindInternal, err, "failed to take post-execution snapshot")
	}

	added := artifact.Diff(pre, post)

	contractVersion := 0
	if len(deliverables) > 0 {
		if c, cerr := e.registry.Get(phase, 0); cerr == nil {
			contractVersion = c.Version
		}
	}

	artifacts := make([]artifact.Artifact, 0, len(added))
	for _, rel := range added {
		a, _, serr := artifact.Stamp(e.outputRoot, e.iterationID, p.ID, phase, contractVersion, rel)
		if serr != nil {
			return ExecutionContext{}, maerr.Wrap(maerr.KindInternal, serr, fmt.Sprintf("failed to stamp artifact %s", rel))
		}
		artifacts = append(artifacts, a)
	}

	work := e.extract(ctx, p, resp.Text, added)

	msgID, err := e.conv.Append(conversation.Message{
		Source:      p.ID,
		Phase:       phase,
		Kind:        conversation.KindPersonaWork,
		PersonaWork: &work,
	})
	if err != nil {
		return ExecutionContext{}, maerr.Wrap(maerr.KindInternal, err, "failed to append persona-work message")
	}

	finished := time.Now().UTC()
	return ExecutionContext{
		PersonaID: p.ID,
		Phase:     phase,
		Started:   started,
		Finished:  finished,
		Duration:  finished.Sub(started),
		Files:     added,
		Artifacts: artifacts,
		Work:      work,
		MessageID: msgID,
	}, nil
}

func (e *Executor) buildPrompt(p Persona, requirement, phase string, deliverables []contract.Deliverable) string {
	var b []byte
	b = append(b, fmt.Sprintf("%s\n\nRole: %s\nExpertise: %s\n\nRequirement: %s\nPhase: %s\n\n",
		p.SystemPrompt, p.Role, p.Expertise, requirement, phase)...)

	b = append(b, "Deliverables expected for this phase:\n"...)
	for _, d := range deliverables {
		b = append(b, fmt.Sprintf("- %s (min quality %.2f)\n", d.Name, d.MinQualityScore)...)
	}

	b = append(b, "\nConversation context:\n"...)
	b = append(b, e.conv.ContextFor(p.ID, e.contextWindow)...)

	b = append(b, fmt.Sprintf("\nProduce the deliverables above under the output directory, writing one file per deliverable where applicable. "+
		"Phase instructions: complete the work for %s and name files so their content matches the expected deliverable.\n", phase)...)

	return string(b)
}
