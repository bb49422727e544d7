// Copyright 2025 AxonFlow
// SPDX-License-Identifier: BUSL-1.1

package main

import (
	"context"
	"fmt"
	"net/http"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"maestro/platform/audit"
	"maestro/platform/config"
	"maestro/platform/server"
	"maestro/platform/shared/logger"
)

func serveCmd() *cobra.Command {
	var port string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the REST/WS server driving the Phased Autonomous Executor",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context(), port)
		},
	}
	cmd.Flags().StringVar(&port, "port", "8080", "listen port")
	return cmd
}

func runServe(ctx context.Context, port string) error {
	log := logger.New("cmd.maestro.serve")

	settings, err := config.LoadSettings(ctx, nil)
	if err != nil {
		return fmt.Errorf("load settings: %w", err)
	}

	sink, err := audit.NewJSONLSink(filepath.Join(settings.TemplatesPath, "..", "audit.jsonl"))
	if err != nil {
		return fmt.Errorf("open audit sink: %w", err)
	}
	auditLog := audit.New(sink)
	defer auditLog.Close()

	llm := llmProvider(ctx)

	a, err := loadApp(ctx, settings, auditLog, llm)
	if err != nil {
		return fmt.Errorf("load app: %w", err)
	}

	catalog := newManifestCatalog(a.manifest)

	runner := func(ctx context.Context, workflowID, requirement string) server.ExecutionHandle {
		iterationID := time.Now().UTC().Format("20060102T150405")
		exec := a.buildExecutor(iterationID)

		// Two independent subscriptions on the same bus: one feeds the
		// WS registry, the other feeds the audit bridge, so neither
		// consumer steals events from the other.
		wsEvents := exec.Events(64)
		go auditLog.BridgeWorkflowEvents(exec.Events(64))

		done := make(chan server.RunOutcome, 1)
		go func() {
			outcome, runErr := exec.Run(ctx, workflowID, requirement, a.outputDir, a.personaPlan, a.discussionPlan)
			done <- server.RunOutcome{Outcome: outcome, Err: runErr}
		}()

		return server.ExecutionHandle{Events: wsEvents, Done: done}
	}

	srv := server.New(settings, catalog, auditLog, runner)

	log.Info("", "", "starting server", map[string]any{"port": port})
	return http.ListenAndServe(":"+port, srv.Handler())
}
