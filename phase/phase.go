// Copyright 2025 AxonFlow
// SPDX-License-Identifier: BUSL-1.1

// Package phase implements the Phase State Machine & Gate Validator:
// the linear requirements → design → implementation → testing →
// deployment sequence, its entry/exit gates, and the policy-driven
// pass/fail/remediate decision at each boundary.
package phase

import (
	"maestro/platform/artifact"
	"maestro/platform/contract"
	"maestro/platform/policy"
	"maestro/platform/shared/logger"
)

// Phase is one stage of the linear delivery sequence.
type Phase string

const (
	PhaseRequirements  Phase = "requirements"
	PhaseDesign        Phase = "design"
	PhaseImplementation Phase = "implementation"
	PhaseTesting       Phase = "testing"
	PhaseDeployment    Phase = "deployment"
)

// Sequence is the fixed phase order the executor walks.
var Sequence = []Phase{PhaseRequirements, PhaseDesign, PhaseImplementation, PhaseTesting, PhaseDeployment}

// Predecessor returns the phase immediately before p in Sequence, and
// false if p is the first phase.
func Predecessor(p Phase) (Phase, bool) {
	for i, ph := range Sequence {
		if ph == p {
			if i == 0 {
				return "", false
			}
			return Sequence[i-1], true
		}
	}
	return "", false
}

// Violation annotates one failing or degraded deliverable with the
// policy severity that governs whether it blocks the gate.
type Violation struct {
	Gate         string
	Deliverable  string
	Severity     policy.Severity
	Message      string
	CurrentValue float64
	Threshold    float64
}

// EntryResult is the outcome of entry_gate.
type EntryResult struct {
	Pass       bool
	Violations []Violation
}

// GateResult is the outcome of exit_gate.
type GateResult struct {
	Passed          bool
	Score           float64
	Violations      []Violation
	Recommendations []string
}

// Validator checks phase entry/exit conditions against the Contract
// Registry (4.B) and the Artifact Validator (4.C), applying threshold
// and severity overrides from Policy (4.A).
type Validator struct {
	registry *contract.Registry
	pol      *policy.Policy
	log      *logger.Logger
}

// New returns a Validator wired to registry and pol.
func New(registry *contract.Registry, pol *policy.Policy) *Validator {
	return &Validator{registry: registry, pol: pol, log: logger.New("phase")}
}

// EntryGate checks that the predecessor phase's artifacts exist under
// predecessorOutputDir and meet its contract. The first phase in
// Sequence has no predecessor and always passes.
func (v *Validator) EntryGate(p Phase, predecessorOutputDir string) (EntryResult, error) {
	predecessor, ok := Predecessor(p)
	if !ok {
		return EntryResult{Pass: true}, nil
	}

	c, err := v.registry.Get(string(predecessor), 0)
	if err != nil {
		return EntryResult{}, err
	}

	snap, err := artifact.TakeSnapshot(predecessorOutputDir)
	if err != nil {
		return EntryResult{}, err
	}

	result, err := v.validateAgainst(predecessor, c, predecessorOutputDir, snap, allFiles(snap))
	if err != nil {
		return EntryResult{}, err
	}

	entry := EntryResult{Pass: true}
	for name, dr := range result.Deliverables {
		if dr.Status == artifact.StatusSatisfied {
			continue
		}
		sev := v.pol.SeverityOf(string(predecessor), name)
		entry.Violations = append(entry.Violations, Violation{
			Gate:        name,
			Deliverable: name,
			Severity:    sev,
			Message:     "predecessor phase " + string(predecessor) + " deliverable " + name + " is " + string(dr.Status),
		})
		if sev == policy.SeverityBlocking {
			entry.Pass = false
		}
	}
	return entry, nil
}

// ExitGate validates outputDir (the phase's full accumulated output,
// not just this iteration's diff) against the phase contract and
// policy thresholds, producing a pass/fail score and recommendations.
func (v *Validator) ExitGate(p Phase, outputDir string, iteration int) (GateResult, error) {
	c, err := v.registry.Get(string(p), 0)
	if err != nil {
		return GateResult{}, err
	}

	snap, err := artifact.TakeSnapshot(outputDir)
	if err != nil {
		return GateResult{}, err
	}

	result, err := v.validateAgainst(p, c, outputDir, snap, allFiles(snap))
	if err != nil {
		return GateResult{}, err
	}

	gate := GateResult{Passed: true, Score: result.QualityScore}

	for _, d := range c.Deliverables {
		dr, ok := result.Deliverables[d.Name]
		if !ok {
			continue // inapplicable to this project type
		}
		if dr.Status == artifact.StatusSatisfied {
			continue
		}

		sev := v.pol.SeverityOf(string(p), d.Name)
		threshold := v.effectiveThreshold(p, d)
		gate.Violations = append(gate.Violations, Violation{
			Gate:         d.Name,
			Deliverable:  d.Name,
			Severity:     sev,
			Message:      "deliverable " + d.Name + " is " + string(dr.Status),
			CurrentValue: dr.Score,
			Threshold:    threshold,
		})

		for _, issue := range dr.Issues {
			gate.Recommendations = append(gate.Recommendations, d.Name+": "+issue)
		}
		if dr.Status == artifact.StatusMissing {
			gate.Recommendations = append(gate.Recommendations, "produce a file matching one of the patterns for "+d.Name)
		}

		if sev == policy.SeverityBlocking {
			gate.Passed = false
		}
	}

	v.log.Info("", "", "exit gate evaluated", map[string]any{
		"phase": string(p), "iteration": iteration, "passed": gate.Passed, "score": gate.Score,
	})

	return gate, nil
}

// effectiveThreshold is the stricter of the contract's declared
// minimum quality score and the policy's configured threshold for this
// phase/deliverable, so an operator-tightened policy can never be
// silently loosened by an older contract version.
func (v *Validator) effectiveThreshold(p Phase, d contract.Deliverable) float64 {
	policyThreshold := v.pol.Threshold(string(p), d.Name)
	if d.MinQualityScore > policyThreshold {
		return d.MinQualityScore
	}
	return policyThreshold
}

func (v *Validator) validateAgainst(p Phase, c contract.Contract, root string, snap artifact.Snapshot, files []string) (artifact.ValidationResult, error) {
	specs := v.toDeliverableSpecs(p, c.Deliverables)
	projectType := artifact.InferProjectType(snap)
	return artifact.Validate(specs, artifact.DefaultDeliverablePatterns, root, files, projectType)
}

// toDeliverableSpecs converts the contract's deliverables to artifact's
// validation input, substituting each deliverable's MinQualityScore with
// effectiveThreshold so a tightened policy threshold is what Validate
// actually checks scores against, not just the contract's own minimum.
func (v *Validator) toDeliverableSpecs(p Phase, deliverables []contract.Deliverable) []artifact.DeliverableSpec {
	specs := make([]artifact.DeliverableSpec, len(deliverables))
	for i, d := range deliverables {
		specs[i] = artifact.DeliverableSpec{
			Name:             d.Name,
			ArtifactPatterns: d.ArtifactPatterns,
			MinQualityScore:  v.effectiveThreshold(p, d),
			Optional:         d.Optional,
		}
	}
	return specs
}

func allFiles(snap artifact.Snapshot) []string {
	files := make([]string, 0, len(snap))
	for f := range snap {
		files = append(files, f)
	}
	return files
}

// AllViolationsCovered reports whether every blocking violation in
// violations has a matching entry (by gate name) in covered — the
// condition under which a phase may advance despite a failing
// exit_gate, per an approved bypass covering each blocking gate.
func AllViolationsCovered(violations []Violation, covered map[string]bool) bool {
	for _, v := range violations {
		if v.Severity == policy.SeverityBlocking && !covered[v.Gate] {
			return false
		}
	}
	return true
}
