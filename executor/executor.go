// Copyright 2025 AxonFlow
// SPDX-License-Identifier: BUSL-1.1

// Package executor implements the Phased Autonomous Executor: the
// top-level loop that walks the phase sequence, gating entry and exit
// on the Phase State Machine, running personas and (optionally) group
// discussions in between, and resolving a blocking exit-gate violation
// either by remediation or an active bypass before giving up.
package executor

import (
	"context"
	"strings"
	"time"

	"maestro/platform/bypass"
	"maestro/platform/conversation"
	"maestro/platform/discussion"
	"maestro/platform/persona"
	"maestro/platform/phase"
	maerr "maestro/platform/shared/errors"
	"maestro/platform/shared/logger"
	"maestro/platform/workflow"
)

const (
	defaultMaxRemediationIterations = 3
	defaultResolveQuestionsMax      = 10
)

// PersonaPlanFunc returns the personas whose turn must run in phase p,
// derived by the caller from the phase contract's owner persona ids
// plus any capability-routed additions.
type PersonaPlanFunc func(p phase.Phase) []persona.Persona

// DiscussionPlanFunc optionally returns the participants for phase p's
// group discussion. Returning fewer than two participants (or a nil
// DiscussionPlanFunc) skips the discussion step for that phase.
type DiscussionPlanFunc func(p phase.Phase) []discussion.Participant

// OutputDirFunc resolves the output directory tree backing phase p.
type OutputDirFunc func(p phase.Phase) string

// PhaseOutcome records how one phase in the sequence resolved.
type PhaseOutcome struct {
	Phase      phase.Phase
	Passed     bool
	Bypassed   bool
	Iterations int
	Gate       phase.GateResult
	Executions []persona.ExecutionContext
}

// Outcome is the top-level result of running the full phase sequence
// for one requirement.
type Outcome struct {
	Status      string // "completed" or "failed"
	FailedPhase phase.Phase
	Phases      []PhaseOutcome
}

// Executor composes the Phase State Machine, Persona Executor,
// Group-Chat Orchestrator, and Bypass Manager into the Phased
// Autonomous Executor's top-level loop.
type Executor struct {
	validator   *phase.Validator
	personaExec *persona.Executor
	discussion  *discussion.Orchestrator
	bypassMgr   *bypass.Manager
	conv        *conversation.Store
	bus         *workflow.Bus
	log         *logger.Logger

	maxRemediation int
	resolveMax     int
}

// New returns an Executor driving validator and personaExec, with an
// optional bypassMgr (nil means no phase's blocking violations can
// ever be cleared by bypass, only by remediation).
func New(validator *phase.Validator, personaExec *persona.Executor, bypassMgr *bypass.Manager, conv *conversation.Store) *Executor {
	return &Executor{
		validator:      validator,
		personaExec:    personaExec,
		bypassMgr:      bypassMgr,
		conv:           conv,
		bus:            workflow.NewBus(),
		log:            logger.New("executor"),
		maxRemediation: defaultMaxRemediationIterations,
		resolveMax:     defaultResolveQuestionsMax,
	}
}

// WithDiscussion attaches a group-chat orchestrator for phase kickoff
// discussions and pending-question resolution.
func (e *Executor) WithDiscussion(o *discussion.Orchestrator) *Executor {
	e.discussion = o
	return e
}

// WithMaxRemediationIterations overrides the default remediation cap (3).
func (e *Executor) WithMaxRemediationIterations(n int) *Executor {
	e.maxRemediation = n
	return e
}

// WithResolveQuestionsMax overrides the default per-phase pending
// question resolution cap (10).
func (e *Executor) WithResolveQuestionsMax(n int) *Executor {
	e.resolveMax = n
	return e
}

// Events returns a subscriber channel for this run's event stream.
func (e *Executor) Events(buffer int) <-chan workflow.Event {
	return e.bus.Subscribe(buffer)
}

// Run drives the full phase sequence for requirement: entry gate,
// optional group discussion, persona execution, pending-question
// resolution, then an exit-gate/remediation loop capped at
// maxRemediation iterations. A phase whose exit gate still has a
// blocking violation after exhausting remediation fails the workflow
// unless every blocking violation is covered by an active bypass. An
// entry gate's blocking violations are checked against the bypasses of
// the predecessor phase the same way.
func (e *Executor) Run(ctx context.Context, workflowID, requirement string, outputDir OutputDirFunc, personaPlan PersonaPlanFunc, discussionPlan DiscussionPlanFunc) (Outcome, error) {
	e.bus.Publish(workflow.Event{Type: workflow.EventWorkflowStarted, WorkflowID: workflowID, Timestamp: time.Now().UTC()})

	outcome := Outcome{Status: "completed"}

	for _, p := range phase.Sequence {
		predDir := ""
		if pred, ok := phase.Predecessor(p); ok {
			predDir = outputDir(pred)
		}

		entry, err := e.validator.EntryGate(p, predDir)
		if err != nil {
			return e.fail(outcome, p, workflowID, err)
		}
		if !entry.Pass {
			pred, _ := phase.Predecessor(p)
			if !e.allViolationsBypassed(pred, entry.Violations) {
				return e.fail(outcome, p, workflowID, maerr.Newf(maerr.KindContractViolation, "phase %s entry gate failed", p))
			}
		}

		if e.discussion != nil && discussionPlan != nil {
			if participants := discussionPlan(p); len(participants) >= 2 {
				if _, derr := e.discussion.Run(ctx, string(p), "phase kickoff: "+requirement, requirement, participants); derr != nil {
					return e.fail(outcome, p, workflowID, derr)
				}
			}
		}

		var executions []persona.ExecutionContext
		for _, ps := range personaPlan(p) {
			execCtx, perr := e.personaExec.Execute(ctx, ps, requirement, string(p))
			if perr != nil {
				return e.fail(outcome, p, workflowID, perr)
			}
			executions = append(executions, execCtx)
		}

		if e.discussion != nil {
			if rerr := e.discussion.ResolvePendingQuestions(ctx, string(p), e.resolveMax); rerr != nil {
				return e.fail(outcome, p, workflowID, rerr)
			}
		}

		dir := outputDir(p)
		var result phase.GateResult
		var allBypassed bool
		iterUsed := 0

		for iter := 1; iter <= e.maxRemediation; iter++ {
			iterUsed = iter
			result, err = e.validator.ExitGate(p, dir, iter)
			if err != nil {
				return e.fail(outcome, p, workflowID, err)
			}
			if result.Passed {
				break
			}

			allBypassed = e.allViolationsBypassed(p, result.Violations)
			if allBypassed || iter == e.maxRemediation {
				break
			}

			for _, ps := range personaPlan(p) {
				remediation := requirement + "\n\nAddress these gate findings:\n" + joinRecommendations(result.Recommendations)
				execCtx, rerr := e.personaExec.Execute(ctx, ps, remediation, string(p))
				if rerr != nil {
					return e.fail(outcome, p, workflowID, rerr)
				}
				executions = append(executions, execCtx)
			}
		}

		passed := result.Passed || allBypassed
		outcome.Phases = append(outcome.Phases, PhaseOutcome{
			Phase:      p,
			Passed:     passed,
			Bypassed:   allBypassed && !result.Passed,
			Iterations: iterUsed,
			Gate:       result,
			Executions: executions,
		})

		if !passed {
			return e.fail(outcome, p, workflowID, maerr.Newf(maerr.KindContractViolation,
				"phase %s exit gate failed after %d remediation iterations", p, e.maxRemediation))
		}
	}

	e.bus.Publish(workflow.Event{Type: workflow.EventWorkflowCompleted, WorkflowID: workflowID, Timestamp: time.Now().UTC()})
	e.log.Info("", "", "workflow completed", map[string]any{"workflow_id": workflowID})
	return outcome, nil
}

// allViolationsBypassed reports whether every blocking violation in
// violations is covered by an active bypass request for phase p. With
// no bypass manager configured, nothing is ever covered.
func (e *Executor) allViolationsBypassed(p phase.Phase, violations []phase.Violation) bool {
	if e.bypassMgr == nil {
		return phase.AllViolationsCovered(violations, nil)
	}
	requests, err := e.bypassMgr.List()
	if err != nil {
		return false
	}
	covered := bypass.ActiveCoverage(requests, string(p))
	return phase.AllViolationsCovered(violations, covered)
}

func (e *Executor) fail(outcome Outcome, p phase.Phase, workflowID string, err error) (Outcome, error) {
	outcome.Status = "failed"
	outcome.FailedPhase = p
	e.bus.Publish(workflow.Event{Type: workflow.EventWorkflowFailed, WorkflowID: workflowID, NodeID: string(p), Timestamp: time.Now().UTC(), Err: err.Error()})
	e.log.Error("", "", "workflow failed", map[string]any{"workflow_id": workflowID, "phase": string(p), "error": err.Error()})
	return outcome, err
}

func joinRecommendations(lines []string) string {
	var sb strings.Builder
	for _, l := range lines {
		sb.WriteString("- ")
		sb.WriteString(l)
		sb.WriteString("\n")
	}
	return sb.String()
}
