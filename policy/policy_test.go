// Copyright 2025 AxonFlow
// SPDX-License-Identifier: BUSL-1.1

package policy

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	maerr "maestro/platform/shared/errors"
)

const testPolicyYAML = `
phases:
  implementation:
    gates:
      test_coverage:
        threshold: 0.80
        severity: blocking
      lint_score:
        threshold: 0.90
        severity: warning
bypass_rules:
  bypassable_gates:
    - gate: test_coverage
      phase: implementation
      requires_adr: true
      approval_level: tech_lead
  non_bypassable_gates:
    - security_scan
  audit_trail:
    log_location: logs/phase_gate_bypasses.jsonl
    alert_threshold: 0.15
`

func loadTestPolicy(t *testing.T) *Policy {
	t.Helper()
	var f file
	require.NoError(t, yaml.Unmarshal([]byte(testPolicyYAML), &f))
	p, err := fromFile(&f)
	require.NoError(t, err)
	return p
}

func TestThresholdAndSeverity(t *testing.T) {
	p := loadTestPolicy(t)

	assert.Equal(t, 0.80, p.Threshold("implementation", "test_coverage"))
	assert.Equal(t, SeverityBlocking, p.SeverityOf("implementation", "test_coverage"))
	assert.Equal(t, 0.90, p.Threshold("implementation", "lint_score"))
	assert.Equal(t, SeverityWarning, p.SeverityOf("implementation", "lint_score"))
}

func TestThresholdFallsBackToDefault(t *testing.T) {
	p := loadTestPolicy(t)

	assert.Equal(t, defaultThreshold, p.Threshold("design", "unknown_gate"))
	assert.Equal(t, defaultSeverity, p.SeverityOf("design", "unknown_gate"))
}

func TestCanBypass(t *testing.T) {
	p := loadTestPolicy(t)

	assert.True(t, p.CanBypass("test_coverage", "implementation"))
	assert.False(t, p.CanBypass("security_scan", "implementation"), "non-bypassable gates must never be bypassable")
	assert.False(t, p.CanBypass("test_coverage", "design"), "bypass rules are scoped to a specific phase")
}

func TestBypassRequirements(t *testing.T) {
	p := loadTestPolicy(t)

	rule, ok := p.BypassRequirements("test_coverage", "implementation")
	require.True(t, ok)
	assert.True(t, rule.RequiresADR)
	assert.Equal(t, "tech_lead", rule.ApprovalLevel)

	_, ok = p.BypassRequirements("security_scan", "implementation")
	assert.False(t, ok)
}

func TestAlertThreshold(t *testing.T) {
	p := loadTestPolicy(t)
	assert.Equal(t, 0.15, p.AlertThreshold())
	assert.Equal(t, "logs/phase_gate_bypasses.jsonl", p.AuditLogPath())
}

func TestLoadMalformedPolicyIsConfigError(t *testing.T) {
	_, err := Load("/nonexistent/path/policy.yaml")
	require.Error(t, err)
	assert.True(t, errors.Is(err, maerr.KindOnly(maerr.KindConfig)))

	path := filepath.Join(t.TempDir(), "policy.yaml")
	require.NoError(t, os.WriteFile(path, []byte("phases: [unclosed\n"), 0o644))
	_, err = Load(path)
	require.Error(t, err)
	assert.True(t, errors.Is(err, maerr.KindOnly(maerr.KindConfig)))
}
