// Copyright 2025 AxonFlow
// SPDX-License-Identifier: BUSL-1.1

package main

import (
	"context"
	"path/filepath"

	"maestro/platform/audit"
	"maestro/platform/bypass"
	"maestro/platform/config"
	"maestro/platform/contract"
	"maestro/platform/conversation"
	"maestro/platform/discussion"
	"maestro/platform/executor"
	"maestro/platform/llmclient"
	"maestro/platform/persona"
	"maestro/platform/phase"
	"maestro/platform/policy"
	maerr "maestro/platform/shared/errors"
	"maestro/platform/shared/logger"
)

// app bundles the subsystems one manifest's executions share across
// every run of that workflow; each run builds its own executor through
// buildExecutor and plans phases through the methods below.
type app struct {
	settings config.Settings
	manifest *config.Manifest
	policy   *policy.Policy
	registry *contract.Registry
	conv     *conversation.Store
	bypassMgr *bypass.Manager
	auditLog *audit.Logger
	llm      llmclient.Client
	log      *logger.Logger
}

// newApp wires one manifest's supporting subsystems: contract registry,
// conversation store, bypass manager, and an LLM client. Store
// selection (in-memory vs. a real backend) is made here from environment
// variables by contractRegistry, conversationStore, and bypassStore,
// composing storage backends at the command layer rather than inside
// the domain packages.
func newApp(settings config.Settings, manifest *config.Manifest, pol *policy.Policy, auditLog *audit.Logger, llm llmclient.Client) *app {
	registry := contractRegistry()
	conv := conversationStore()

	bypassMgr := bypass.New(pol, bypassStore())
	if auditLog != nil {
		bypassMgr = bypassMgr.WithAudit(auditLog)
	}

	return &app{
		settings:  settings,
		manifest:  manifest,
		policy:    pol,
		registry:  registry,
		conv:      conv,
		bypassMgr: bypassMgr,
		auditLog:  auditLog,
		llm:       llm,
		log:       logger.New("cmd.maestro"),
	}
}

// buildExecutor wires a Phased Autonomous Executor for one iteration
// and returns it; callers subscribe to its event bus via Events.
func (a *app) buildExecutor(iterationID string) *executor.Executor {
	validator := phase.New(a.registry, a.policy)
	personaExec := persona.New(a.llm, a.conv, a.registry, filepath.Join(a.settings.TemplatesPath, "..", "artifacts"), iterationID)

	exec := executor.New(validator, personaExec, a.bypassMgr, a.conv).
		WithMaxRemediationIterations(a.settings.MaxRemediationRounds)

	if participants := a.discussionParticipants(); len(participants) > 0 {
		exec = exec.WithDiscussion(discussion.New(a.conv, a.llm))
	}

	return exec
}

func (a *app) discussionParticipants() []discussion.Participant {
	var out []discussion.Participant
	for _, n := range a.manifest.Nodes {
		if n.Kind == "phase" && n.Persona != "" {
			out = append(out, discussion.Participant{PersonaID: n.Persona, Expertise: n.Params["expertise"]})
		}
	}
	return out
}

// personaPlan returns every action node's persona bound to phase p.
func (a *app) personaPlan(p phase.Phase) []persona.Persona {
	var out []persona.Persona
	for _, n := range a.manifest.Nodes {
		if n.Kind != "action" || n.Phase != string(p) || n.Persona == "" {
			continue
		}
		out = append(out, personaFromNode(n))
	}
	return out
}

// discussionPlan returns the phase's group-chat participants, derived
// from every action node bound to that phase. Fewer than two
// participants means the executor skips the discussion step.
func (a *app) discussionPlan(p phase.Phase) []discussion.Participant {
	var out []discussion.Participant
	for _, per := range a.personaPlan(p) {
		out = append(out, discussion.Participant{PersonaID: per.ID, Expertise: per.Expertise})
	}
	return out
}

// outputDir resolves phase p's deliverable directory under the
// configured templates path's sibling `artifacts` tree.
func (a *app) outputDir(p phase.Phase) string {
	return filepath.Join(a.settings.TemplatesPath, "..", "artifacts", string(p))
}

func personaFromNode(n config.ManifestNode) persona.Persona {
	return persona.Persona{
		ID:           n.Persona,
		Role:         n.Params["role"],
		Expertise:    n.Params["expertise"],
		SystemPrompt: n.Params["system_prompt"],
	}
}

// loadApp reads the manifest and policy named by settings and returns
// the wired app, or a ConfigError if either is malformed.
func loadApp(ctx context.Context, settings config.Settings, auditLog *audit.Logger, llm llmclient.Client) (*app, error) {
	manifest, err := config.LoadManifest(settings.EnginePath)
	if err != nil {
		return nil, err
	}

	pol, err := policy.Load(filepath.Join(settings.TemplatesPath, "..", "policy.yaml"))
	if err != nil {
		return nil, maerr.Wrap(maerr.KindConfig, err, "failed to load policy")
	}

	return newApp(settings, manifest, pol, auditLog, llm), nil
}
