// Copyright 2025 AxonFlow
// SPDX-License-Identifier: BUSL-1.1

package main

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"

	maerr "maestro/platform/shared/errors"
)

func TestExitCodeForMapsKindsToSpecExitCodes(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want int
	}{
		{"validation", maerr.New(maerr.KindValidation, "bad input"), exitValidationFailure},
		{"config", maerr.New(maerr.KindConfig, "bad manifest"), exitValidationFailure},
		{"contract violation", maerr.New(maerr.KindContractViolation, "gate failed"), exitGateFailure},
		{"bypass required", maerr.New(maerr.KindBypassRequired, "no covering bypass"), exitGateFailure},
		{"cancellation", maerr.New(maerr.KindCancellation, "stopped"), exitCancelled},
		{"node failure", maerr.New(maerr.KindNodeFailure, "agent crashed"), exitInternal},
		{"internal", maerr.New(maerr.KindInternal, "panic recovered"), exitInternal},
		{"plain error", errors.New("boom"), exitInternal},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, exitCodeFor(tc.err))
		})
	}
}
