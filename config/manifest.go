// Copyright 2025 AxonFlow
// SPDX-License-Identifier: BUSL-1.1

package config

import (
	"fmt"
	"os"
	"regexp"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	maerr "maestro/platform/shared/errors"
)

// Manifest is the root structure of an execution manifest: the DAG of
// nodes plus the phase definitions a workflow is checked against as it runs.
type Manifest struct {
	Version string                `yaml:"version"`
	Name    string                `yaml:"name"`
	Nodes   []ManifestNode        `yaml:"nodes"`
	Phases  []ManifestPhase       `yaml:"phases"`
}

// ManifestNode describes one DAG node before it is compiled into a
// workflow.Node: its kind, upstream dependencies, and persona binding.
type ManifestNode struct {
	ID        string            `yaml:"id"`
	Kind      string            `yaml:"kind"` // action | phase | checkpoint | notification | interface
	Phase     string            `yaml:"phase,omitempty"`
	DependsOn []string          `yaml:"depends_on,omitempty"`
	Persona   string            `yaml:"persona,omitempty"`
	TimeoutS  int               `yaml:"timeout_seconds,omitempty"`
	MaxRetry  int               `yaml:"max_retries,omitempty"`
	Params    map[string]string `yaml:"params,omitempty"`
}

// ManifestPhase describes one phase's gate configuration: the contracts
// checked on entry and on exit, plus one minimum substance score.
type ManifestPhase struct {
	Name           string   `yaml:"name"`
	EntryContracts []string `yaml:"entry_contracts,omitempty"`
	ExitContracts  []string `yaml:"exit_contracts,omitempty"`
	MinSubstance   float64  `yaml:"min_substance_score,omitempty"`
}

// LoadManifest reads and parses a YAML execution manifest from path,
// expanding ${VAR}/${VAR:-default} references against the environment
// before unmarshaling.
func LoadManifest(path string) (*Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, maerr.Wrap(maerr.KindConfig, err, fmt.Sprintf("failed to read manifest %s", path))
	}

	var m Manifest
	if err := yaml.Unmarshal([]byte(expandEnvVars(string(data))), &m); err != nil {
		return nil, maerr.Wrap(maerr.KindConfig, err, fmt.Sprintf("failed to parse manifest %s", path))
	}

	if err := validateManifest(&m); err != nil {
		return nil, err
	}

	return &m, nil
}

func validateManifest(m *Manifest) error {
	if m.Version == "" {
		return maerr.New(maerr.KindConfig, "manifest must specify a version")
	}
	if len(m.Nodes) == 0 {
		return maerr.New(maerr.KindConfig, "manifest must declare at least one node")
	}

	validKinds := map[string]bool{
		"action": true, "phase": true, "checkpoint": true,
		"notification": true, "interface": true,
	}
	seen := make(map[string]bool, len(m.Nodes))
	for _, n := range m.Nodes {
		if n.ID == "" {
			return maerr.New(maerr.KindConfig, "node missing id")
		}
		if seen[n.ID] {
			return maerr.New(maerr.KindConfig, fmt.Sprintf("duplicate node id %q", n.ID))
		}
		seen[n.ID] = true
		if !validKinds[n.Kind] {
			return maerr.New(maerr.KindConfig, fmt.Sprintf("node %q has invalid kind %q", n.ID, n.Kind))
		}
	}
	for _, n := range m.Nodes {
		for _, dep := range n.DependsOn {
			if !seen[dep] {
				return maerr.New(maerr.KindConfig, fmt.Sprintf("node %q depends on unknown node %q", n.ID, dep))
			}
		}
	}
	return nil
}

// envVarRegex matches ${VAR_NAME} or $VAR_NAME patterns, optionally with
// a ${VAR_NAME:-default} fallback.
var envVarRegex = regexp.MustCompile(`\$\{([^}]+)\}|\$([A-Za-z_][A-Za-z0-9_]*)`)

func expandEnvVars(content string) string {
	return envVarRegex.ReplaceAllStringFunc(content, func(match string) string {
		var varName string
		if strings.HasPrefix(match, "${") {
			varName = match[2 : len(match)-1]
		} else {
			varName = match[1:]
		}

		defaultVal := ""
		if idx := strings.Index(varName, ":-"); idx != -1 {
			defaultVal = varName[idx+2:]
			varName = varName[:idx]
		}

		if value := os.Getenv(varName); value != "" {
			return value
		}
		return defaultVal
	})
}

// NodeTimeout resolves the effective per-node timeout: the manifest's
// explicit value, or the DEFAULT_NODE_TIMEOUT_SECONDS setting.
func (n ManifestNode) NodeTimeout(settings Settings) time.Duration {
	if n.TimeoutS > 0 {
		return time.Duration(n.TimeoutS) * time.Second
	}
	return settings.DefaultNodeTimeout
}
