// Copyright 2025 AxonFlow
// SPDX-License-Identifier: BUSL-1.1

package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"maestro/platform/audit"
	"maestro/platform/config"
	maerr "maestro/platform/shared/errors"
)

// Exit codes for the CLI driver, named in the external interfaces.
const (
	exitSuccess           = 0
	exitValidationFailure = 2
	exitGateFailure       = 3
	exitCancelled         = 4
	exitInternal          = 11
)

func runWorkflowCmd() *cobra.Command {
	var requirement string

	cmd := &cobra.Command{
		Use:   "run [workflow-id]",
		Short: "Drive one workflow to completion from the command line",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			os.Exit(runOnce(cmd.Context(), args[0], requirement))
			return nil
		},
	}
	cmd.Flags().StringVar(&requirement, "requirement", "", "the requirement driving this run")
	return cmd
}

// runOnce executes workflowID against requirement and returns the
// process exit code the spec assigns to the run's outcome.
func runOnce(ctx context.Context, workflowID, requirement string) int {
	if requirement == "" {
		fmt.Fprintln(os.Stderr, "error: --requirement is required")
		return exitValidationFailure
	}

	settings, err := config.LoadSettings(ctx, nil)
	if err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		return exitInternal
	}

	sink, err := audit.NewJSONLSink("audit.jsonl")
	if err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		return exitInternal
	}
	auditLog := audit.New(sink)
	defer auditLog.Close()

	llm := llmProvider(ctx)

	a, err := loadApp(ctx, settings, auditLog, llm)
	if err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		return exitCodeFor(err)
	}

	iterationID := time.Now().UTC().Format("20060102T150405")
	exec := a.buildExecutor(iterationID)
	go auditLog.BridgeWorkflowEvents(exec.Events(64))

	_, runErr := exec.Run(ctx, workflowID, requirement, a.outputDir, a.personaPlan, a.discussionPlan)
	if runErr != nil {
		fmt.Fprintln(os.Stderr, "error:", runErr)
		return exitCodeFor(runErr)
	}

	fmt.Println("workflow completed")
	return exitSuccess
}

func exitCodeFor(err error) int {
	var me *maerr.Error
	if !errors.As(err, &me) {
		return exitInternal
	}

	switch me.Kind {
	case maerr.KindValidation, maerr.KindConfig:
		return exitValidationFailure
	case maerr.KindContractViolation, maerr.KindBypassRequired, maerr.KindBypassRejected, maerr.KindBypassExpired:
		return exitGateFailure
	case maerr.KindCancellation:
		return exitCancelled
	default:
		return exitInternal
	}
}
