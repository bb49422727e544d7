// Copyright 2025 AxonFlow
// SPDX-License-Identifier: BUSL-1.1

package contract

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	maerr "maestro/platform/shared/errors"
)

func sampleContract() Contract {
	return Contract{
		Deliverables: []Deliverable{
			{Name: "requirements_doc", ArtifactPatterns: []string{"*requirements*.md"}, MinQualityScore: 0.7},
		},
		RequiredMetrics: map[string]float64{"test_coverage": 0.8},
		OwnerPersonaIDs: []string{"requirements_analyst"},
	}
}

func TestCreateAssignsMonotonicVersions(t *testing.T) {
	r := New()

	v1, err := r.Create("requirements", sampleContract())
	require.NoError(t, err)
	assert.Equal(t, 1, v1)

	v2, err := r.Create("requirements", sampleContract())
	require.NoError(t, err)
	assert.Equal(t, 2, v2)
}

func TestGetWithoutVersionReturnsLatest(t *testing.T) {
	r := New()
	_, err := r.Create("design", sampleContract())
	require.NoError(t, err)

	c2 := sampleContract()
	c2.Deliverables[0].MinQualityScore = 0.9
	_, err = r.Create("design", c2)
	require.NoError(t, err)

	latest, err := r.Get("design", 0)
	require.NoError(t, err)
	assert.Equal(t, 2, latest.Version)
	assert.Equal(t, 0.9, latest.Deliverables[0].MinQualityScore)
}

func TestGetUnknownPhaseIsValidationError(t *testing.T) {
	r := New()
	_, err := r.Get("nonexistent", 0)
	require.Error(t, err)
	assert.True(t, errors.Is(err, maerr.KindOnly(maerr.KindValidation)))
}

func TestDuplicateDeliverableNameRejected(t *testing.T) {
	r := New()
	c := sampleContract()
	c.Deliverables = append(c.Deliverables, Deliverable{Name: "requirements_doc"})

	_, err := r.Create("requirements", c)
	require.Error(t, err)
}

func TestListVersionsAscending(t *testing.T) {
	r := New()
	for i := 0; i < 3; i++ {
		_, err := r.Create("testing", sampleContract())
		require.NoError(t, err)
	}

	assert.Equal(t, []int{1, 2, 3}, r.ListVersions("testing"))
}

func TestOldVersionsNeverMutate(t *testing.T) {
	r := New()
	_, err := r.Create("implementation", sampleContract())
	require.NoError(t, err)

	c2 := sampleContract()
	c2.Deliverables[0].MinQualityScore = 0.99
	_, err = r.Create("implementation", c2)
	require.NoError(t, err)

	v1, err := r.Get("implementation", 1)
	require.NoError(t, err)
	assert.Equal(t, 0.7, v1.Deliverables[0].MinQualityScore)
}
