// Copyright 2025 AxonFlow
// SPDX-License-Identifier: BUSL-1.1

package artifact

import (
	"path/filepath"
)

// DeliverableStatus is the outcome of validating one contract deliverable.
type DeliverableStatus string

const (
	StatusSatisfied DeliverableStatus = "satisfied"
	StatusPartial   DeliverableStatus = "partial"
	StatusMissing   DeliverableStatus = "missing"
)

// DeliverableResult is the per-deliverable outcome of ValidationResult.
type DeliverableResult struct {
	Deliverable string
	Status      DeliverableStatus
	Score       float64
	FilesMatched []string
	Issues      []string
}

// ValidationResult is the overall outcome of validating a snapshot diff
// against a contract.
type ValidationResult struct {
	Deliverables map[string]DeliverableResult
	QualityScore float64
}

// DeliverableSpec mirrors contract.Deliverable for validation purposes,
// defined locally so artifact does not import contract (both are leaf
// packages consumed by phase; phase converts contract.Deliverable to
// DeliverableSpec at the call site).
type DeliverableSpec struct {
	Name            string
	ArtifactPatterns []string
	MinQualityScore float64
	Optional        bool
}

// Validate scores addedFiles (from Diff) against the contract's
// deliverables using patterns, producing a per-deliverable result plus
// an overall quality_score = mean(deliverable_scores) × completeness_ratio.
// projectRoot is used to resolve addedFiles to disk for substance scoring.
func Validate(deliverables []DeliverableSpec, patterns DeliverablePatterns, projectRoot string, addedFiles []string, projectType ProjectType) (ValidationResult, error) {
	result := ValidationResult{Deliverables: make(map[string]DeliverableResult, len(deliverables))}

	var scores []float64
	satisfiedCount := 0

	for _, d := range deliverables {
		if InapplicableDeliverables(projectType, d.Name) {
			continue
		}

		pats := d.ArtifactPatterns
		if len(pats) == 0 {
			pats = patterns[d.Name]
		}

		var matched []string
		for _, f := range addedFiles {
			if MatchPatterns(f, pats) {
				matched = append(matched, f)
			}
		}

		dr := DeliverableResult{Deliverable: d.Name, FilesMatched: matched}

		if len(matched) == 0 {
			if d.Optional {
				dr.Status = StatusSatisfied
				dr.Score = 1
			} else {
				dr.Status = StatusMissing
				dr.Score = 0
				dr.Issues = append(dr.Issues, "no file matched any pattern for "+d.Name)
			}
			result.Deliverables[d.Name] = dr
			if !d.Optional {
				scores = append(scores, dr.Score)
			}
			continue
		}

		best := 0.0
		for _, f := range matched {
			res, err := ScoreFile(filepath.Join(projectRoot, filepath.FromSlash(f)))
			if err != nil {
				dr.Issues = append(dr.Issues, "failed to score "+f+": "+err.Error())
				continue
			}
			if res.Quality > best {
				best = res.Quality
			}
			if res.Severity != "" {
				dr.Issues = append(dr.Issues, string(res.Severity)+" substance issue in "+f)
			}
		}

		dr.Score = best
		minScore := d.MinQualityScore
		if minScore == 0 {
			minScore = 0.6
		}
		if best >= minScore {
			dr.Status = StatusSatisfied
			satisfiedCount++
		} else {
			dr.Status = StatusPartial
			dr.Issues = append(dr.Issues, "score below minimum threshold")
		}

		result.Deliverables[d.Name] = dr
		scores = append(scores, dr.Score)
	}

	if len(scores) == 0 {
		result.QualityScore = 0
		return result, nil
	}

	sum := 0.0
	for _, s := range scores {
		sum += s
	}
	mean := sum / float64(len(scores))
	completeness := float64(satisfiedCount) / float64(len(scores))
	result.QualityScore = mean * completeness

	return result, nil
}
