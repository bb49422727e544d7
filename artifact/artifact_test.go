// Copyright 2025 AxonFlow
// SPDX-License-Identifier: BUSL-1.1

package artifact

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDiffReturnsAddedFiles(t *testing.T) {
	pre := Snapshot{"a.go": {}, "b.go": {}}
	post := Snapshot{"a.go": {}, "b.go": {}, "c.go": {}}

	assert.Equal(t, []string{"c.go"}, Diff(pre, post))
}

func TestTakeSnapshotCapturesRelativePaths(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "sub"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "sub", "f.md"), []byte("hello"), 0o644))

	snap, err := TakeSnapshot(dir)
	require.NoError(t, err)

	_, ok := snap["sub/f.md"]
	assert.True(t, ok)
}

func TestMatchPatternsGlobAndSubstring(t *testing.T) {
	assert.True(t, MatchPatterns("docs/REQUIREMENTS.md", []string{"*requirements*.md"}))
	assert.True(t, MatchPatterns("src/api/openapi.yaml", []string{"openapi"}))
	assert.False(t, MatchPatterns("src/main.go", []string{"*requirements*.md"}))
}

func TestScoreFileStubMarkerCapsScore(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "stub.md")
	require.NoError(t, os.WriteFile(path, []byte("TODO: implement\n\n\n"), 0o644))

	res, err := ScoreFile(path)
	require.NoError(t, err)
	assert.LessOrEqual(t, res.Quality, 0.2)
}

func TestScoreFileEmptyFileIsZero(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "empty.md")
	require.NoError(t, os.WriteFile(path, nil, 0o644))

	res, err := ScoreFile(path)
	require.NoError(t, err)
	assert.Equal(t, 0.0, res.Quality)
}

func TestScoreFileSubstantialContentScoresHigh(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "full.md")
	content := "This document enumerates the complete set of user stories for the payments service.\n" +
		"Each story lists its acceptance criteria and the non-functional requirements it depends on.\n" +
		"Authentication covers password login, single sign-on, and multi-factor enrolment flows.\n" +
		"Authorization defines roles for customers, merchants, support staff, and administrators.\n" +
		"Rate limiting and audit logging are specified per endpoint with concrete numeric targets.\n" +
		"Error handling, retries, and idempotency keys are described for every payment operation.\n"
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	res, err := ScoreFile(path)
	require.NoError(t, err)
	assert.Greater(t, res.Quality, 0.8)
}

func TestInferProjectTypeFullStack(t *testing.T) {
	snap := Snapshot{"go.mod": {}, "main.go": {}, "package.json": {}, "index.html": {}}
	assert.Equal(t, ProjectFullStack, InferProjectType(snap))
}

func TestInferProjectTypeDocsOnly(t *testing.T) {
	snap := Snapshot{"README.md": {}, "docs/notes.md": {}}
	assert.Equal(t, ProjectDocsOnly, InferProjectType(snap))
}

func TestValidateEmptyOutputDirAllMissing(t *testing.T) {
	deliverables := []DeliverableSpec{
		{Name: "requirements_doc", ArtifactPatterns: []string{"*requirements*.md"}, MinQualityScore: 0.6},
	}

	result, err := Validate(deliverables, DefaultDeliverablePatterns, t.TempDir(), nil, ProjectDocsOnly)
	require.NoError(t, err)
	assert.Equal(t, 0.0, result.QualityScore)
	assert.Equal(t, StatusMissing, result.Deliverables["requirements_doc"].Status)
}

func TestValidateSatisfiedDeliverableScoresOne(t *testing.T) {
	dir := t.TempDir()
	content := "This requirements document lists every user story for the payments service.\n" +
		"Each story carries acceptance criteria, the roles allowed to perform it, and its error cases.\n" +
		"Non-functional requirements cover latency targets, rate limits, audit logging, and data retention.\n" +
		"Every section is complete and describes the feature end to end in full."
	require.NoError(t, os.WriteFile(filepath.Join(dir, "requirements.md"), []byte(content), 0o644))

	deliverables := []DeliverableSpec{
		{Name: "requirements_doc", ArtifactPatterns: []string{"*requirements*.md"}, MinQualityScore: 0.6},
	}

	result, err := Validate(deliverables, DefaultDeliverablePatterns, dir, []string{"requirements.md"}, ProjectDocsOnly)
	require.NoError(t, err)
	assert.Equal(t, StatusSatisfied, result.Deliverables["requirements_doc"].Status)
	assert.Equal(t, 1.0, result.QualityScore)
}

func TestStampComputesDigest(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "out.go"), []byte("package main\n"), 0o644))

	a, m, err := Stamp(dir, "iter-1", "node-1", "backend", 2, "out.go")
	require.NoError(t, err)
	assert.Equal(t, "artifacts/iter-1/node-1/out.go", a.CanonicalPath)
	assert.NotEmpty(t, a.SHA256)
	assert.Equal(t, a.SHA256, m.SHA256)
}
