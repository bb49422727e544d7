// Copyright 2025 AxonFlow
// SPDX-License-Identifier: BUSL-1.1

// Package policy loads the phase SLO and bypass-rule configuration and
// exposes typed threshold lookups to the gate validator and bypass
// manager. It is the single source of truth for "how strict is this
// gate" and "can this gate ever be bypassed".
package policy

import (
	"fmt"
	"os"
	"sync"

	"gopkg.in/yaml.v3"

	maerr "maestro/platform/shared/errors"
	"maestro/platform/shared/logger"
)

// Severity classifies how a gate violation should be treated.
type Severity string

const (
	SeverityBlocking Severity = "blocking"
	SeverityWarning  Severity = "warning"
	SeverityInfo     Severity = "info"
)

// Gate is one named quality gate within a phase.
type Gate struct {
	Name      string   `yaml:"name"`
	Threshold float64  `yaml:"threshold"`
	Severity  Severity `yaml:"severity"`
}

// BypassRule declares whether a gate may be bypassed and under what approval.
type BypassRule struct {
	Gate           string `yaml:"gate"`
	Phase          string `yaml:"phase"`
	RequiresADR    bool   `yaml:"requires_adr"`
	ApprovalLevel  string `yaml:"approval_level"`
}

// file mirrors the on-disk phase SLO / bypass policy document (spec §6).
type file struct {
	Phases map[string]struct {
		Gates map[string]struct {
			Threshold float64  `yaml:"threshold"`
			Severity  Severity `yaml:"severity"`
		} `yaml:"gates"`
	} `yaml:"phases"`
	BypassRules struct {
		BypassableGates    []BypassRule `yaml:"bypassable_gates"`
		NonBypassableGates []string     `yaml:"non_bypassable_gates"`
		AuditTrail         struct {
			LogLocation    string  `yaml:"log_location"`
			AlertThreshold float64 `yaml:"alert_threshold"`
		} `yaml:"audit_trail"`
	} `yaml:"bypass_rules"`
}

// defaultThreshold and defaultSeverity back every lookup for a
// phase/gate pair absent from the loaded document, per spec §4.A's
// "missing entries fall back to a documented default table" rule.
const (
	defaultThreshold = 0.8
	defaultSeverity  = SeverityWarning
)

// Policy answers phase/gate questions for the gate validator and bypass
// manager. Safe for concurrent reads; Load always builds a new Policy
// and never changes an existing one.
type Policy struct {
	mu              sync.RWMutex
	gates           map[string]map[string]Gate // phase -> gate -> Gate
	bypassable      map[string]BypassRule       // "phase/gate" -> rule
	nonBypassable   map[string]bool             // gate -> true (phase-agnostic per spec's non_bypassable_gates[])
	auditLogPath    string
	alertThreshold  float64
	loggedFallbacks map[string]bool
	log             *logger.Logger
}

// Load reads and parses a YAML policy document from path.
func Load(path string) (*Policy, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, maerr.Wrap(maerr.KindConfig, err, fmt.Sprintf("failed to read policy file %s", path))
	}

	var f file
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, maerr.Wrap(maerr.KindConfig, err, "failed to parse policy file")
	}

	return fromFile(&f)
}

func fromFile(f *file) (*Policy, error) {
	p := &Policy{
		gates:           make(map[string]map[string]Gate),
		bypassable:      make(map[string]BypassRule),
		nonBypassable:   make(map[string]bool),
		loggedFallbacks: make(map[string]bool),
		log:             logger.New("policy"),
	}

	for phase, pd := range f.Phases {
		gm := make(map[string]Gate, len(pd.Gates))
		for name, g := range pd.Gates {
			if g.Severity == "" {
				return nil, maerr.New(maerr.KindConfig, fmt.Sprintf("phase %q gate %q missing severity", phase, name))
			}
			gm[name] = Gate{Name: name, Threshold: g.Threshold, Severity: g.Severity}
		}
		p.gates[phase] = gm
	}

	for _, rule := range f.BypassRules.BypassableGates {
		if rule.Gate == "" || rule.Phase == "" {
			return nil, maerr.New(maerr.KindConfig, "bypassable_gates entry missing gate or phase")
		}
		p.bypassable[key(rule.Phase, rule.Gate)] = rule
	}
	for _, gate := range f.BypassRules.NonBypassableGates {
		p.nonBypassable[gate] = true
	}

	p.auditLogPath = f.BypassRules.AuditTrail.LogLocation
	p.alertThreshold = f.BypassRules.AuditTrail.AlertThreshold
	if p.alertThreshold == 0 {
		p.alertThreshold = 0.10
	}

	return p, nil
}

func key(phase, gate string) string { return phase + "/" + gate }

// Threshold returns the numeric threshold for phase/gate, falling back to
// defaultThreshold (logged once) when unconfigured.
func (p *Policy) Threshold(phase, gate string) float64 {
	p.mu.RLock()
	if gm, ok := p.gates[phase]; ok {
		if g, ok := gm[gate]; ok {
			p.mu.RUnlock()
			return g.Threshold
		}
	}
	p.mu.RUnlock()
	p.logFallback(phase, gate, "threshold")
	return defaultThreshold
}

// SeverityOf returns the severity for phase/gate, falling back to
// defaultSeverity (logged once) when unconfigured.
func (p *Policy) SeverityOf(phase, gate string) Severity {
	p.mu.RLock()
	if gm, ok := p.gates[phase]; ok {
		if g, ok := gm[gate]; ok {
			p.mu.RUnlock()
			return g.Severity
		}
	}
	p.mu.RUnlock()
	p.logFallback(phase, gate, "severity")
	return defaultSeverity
}

// CanBypass reports whether gate in phase may ever be bypassed.
func (p *Policy) CanBypass(gate, phase string) bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.nonBypassable[gate] {
		return false
	}
	_, ok := p.bypassable[key(phase, gate)]
	return ok
}

// BypassRequirements returns the approval requirements for gate in phase.
// The second return value is false if the gate is not bypassable at all.
func (p *Policy) BypassRequirements(gate, phase string) (BypassRule, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.nonBypassable[gate] {
		return BypassRule{}, false
	}
	rule, ok := p.bypassable[key(phase, gate)]
	return rule, ok
}

// AuditLogPath returns the configured bypass audit-trail log location.
func (p *Policy) AuditLogPath() string { return p.auditLogPath }

// AlertThreshold returns the bypass-rate alert threshold (default 0.10).
func (p *Policy) AlertThreshold() float64 { return p.alertThreshold }

func (p *Policy) logFallback(phase, gate, what string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	k := phase + "/" + gate + "/" + what
	if p.loggedFallbacks[k] {
		return
	}
	p.loggedFallbacks[k] = true
	p.log.Warn("", "", "policy lookup fell back to default", map[string]any{
		"phase": phase, "gate": gate, "field": what,
	})
}
