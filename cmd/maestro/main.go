// Copyright 2025 AxonFlow
// SPDX-License-Identifier: BUSL-1.1

// Command maestro drives the Phased Autonomous Executor: serve exposes
// it over REST/WS, run drives one workflow directly from the shell.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var version = "1.0.0"

func main() {
	rootCmd := &cobra.Command{
		Use:     "maestro",
		Short:   "Maestro phased autonomous executor",
		Long:    `maestro drives manifest-defined, phase-gated workflows through personas, group discussion, and bypass-governed exit gates.`,
		Version: version,
	}

	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(runWorkflowCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
