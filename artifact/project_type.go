// Copyright 2025 AxonFlow
// SPDX-License-Identifier: BUSL-1.1

package artifact

import (
	"path/filepath"
	"strings"
)

// ProjectType labels the inferred shape of a generated project.
type ProjectType string

const (
	ProjectBackendOnly  ProjectType = "backend-only"
	ProjectFrontendOnly ProjectType = "frontend-only"
	ProjectFullStack    ProjectType = "full-stack"
	ProjectLibrary      ProjectType = "library"
	ProjectDocsOnly     ProjectType = "docs-only"
)

var (
	backendSignatures  = []string{"go.mod", "requirements.txt", "pom.xml", "main.go", "app.py"}
	frontendSignatures = []string{"package.json", "index.html", ".tsx", ".jsx", "vite.config"}
)

// InferProjectType scans snap for canonical directory/extension
// signatures and labels the project accordingly. Deliverable
// requirements inapplicable to the inferred type are silently dropped
// from validation by InapplicableDeliverables.
func InferProjectType(snap Snapshot) ProjectType {
	hasBackend, hasFrontend, hasCode, hasDocsOnly := false, false, false, true

	for f := range snap {
		lower := strings.ToLower(f)
		base := strings.ToLower(filepath.Base(f))
		ext := strings.ToLower(filepath.Ext(f))

		for _, sig := range backendSignatures {
			if base == sig || strings.HasSuffix(lower, sig) {
				hasBackend = true
			}
		}
		for _, sig := range frontendSignatures {
			if base == sig || strings.Contains(lower, sig) {
				hasFrontend = true
			}
		}
		if ext != "" && ext != ".md" && ext != ".txt" {
			hasDocsOnly = false
		}
		if isCodeExt(ext) {
			hasCode = true
		}
	}

	switch {
	case hasDocsOnly:
		return ProjectDocsOnly
	case hasBackend && hasFrontend:
		return ProjectFullStack
	case hasFrontend:
		return ProjectFrontendOnly
	case hasBackend:
		return ProjectBackendOnly
	case hasCode:
		return ProjectLibrary
	default:
		return ProjectDocsOnly
	}
}

func isCodeExt(ext string) bool {
	switch ext {
	case ".go", ".py", ".ts", ".js", ".java", ".rb", ".rs":
		return true
	default:
		return false
	}
}

// inapplicable maps a project type to deliverable names that don't
// apply to it (e.g. a library has no deployment_config).
var inapplicable = map[ProjectType]map[string]bool{
	ProjectLibrary:  {"deployment_config": true, "api_spec": true},
	ProjectDocsOnly: {"deployment_config": true, "api_spec": true, "test_suite": true, "source_code": true},
}

// InapplicableDeliverables reports whether deliverable should be
// silently dropped from validation for the given project type.
func InapplicableDeliverables(pt ProjectType, deliverable string) bool {
	return inapplicable[pt][deliverable]
}
