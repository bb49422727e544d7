// Copyright 2025 AxonFlow
// SPDX-License-Identifier: BUSL-1.1

package artifact

import (
	"path/filepath"
	"strings"
)

// DeliverablePatterns maps a deliverable name to the case-insensitive
// glob/substring patterns a produced file must match. Patterns without
// glob metacharacters are treated as case-insensitive substrings.
type DeliverablePatterns map[string][]string

// DefaultDeliverablePatterns is the documented default rule table used
// when a contract doesn't carry its own patterns for a deliverable.
var DefaultDeliverablePatterns = DeliverablePatterns{
	"requirements_doc": {"*requirements*.md", "*user_stories*.md"},
	"design_doc":        {"*design*.md", "*architecture*.md"},
	"api_spec":          {"*openapi*.yaml", "*openapi*.json", "*swagger*"},
	"source_code":       {"*.go", "*.py", "*.ts", "*.js", "*.java"},
	"test_suite":        {"*_test.go", "*test*.py", "*.spec.ts", "*.test.js"},
	"deployment_config": {"*dockerfile*", "*docker-compose*", "*.tf", "*k8s*.yaml"},
}

// MatchPatterns reports whether file matches any of patterns. A pattern
// containing a glob metacharacter (*, ?, [) is matched via filepath.Match
// against the lowercased basename; otherwise it's treated as a
// lowercased substring match against the full lowercased path.
func MatchPatterns(file string, patterns []string) bool {
	lowerFile := strings.ToLower(file)
	lowerBase := strings.ToLower(filepath.Base(file))

	for _, p := range patterns {
		lowerPattern := strings.ToLower(p)
		if strings.ContainsAny(lowerPattern, "*?[") {
			if ok, _ := filepath.Match(lowerPattern, lowerBase); ok {
				return true
			}
			continue
		}
		if strings.Contains(lowerFile, lowerPattern) {
			return true
		}
	}
	return false
}

// MapFilesToDeliverable returns every file in files that matches any
// pattern registered for deliverable.
func (dp DeliverablePatterns) MapFilesToDeliverable(deliverable string, files []string) []string {
	patterns := dp[deliverable]
	if patterns == nil {
		return nil
	}
	var matched []string
	for _, f := range files {
		if MatchPatterns(f, patterns) {
			matched = append(matched, f)
		}
	}
	return matched
}
