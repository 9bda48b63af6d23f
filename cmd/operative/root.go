package main

import (
	"os"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "operative",
	Short: "Multi-agent task orchestration runtime",
	Long: `Operative coordinates a swarm of task agents: it tracks their
liveness, delegates queued work over a typed message bus, shares
versioned memory between them, and drives multi-step workflows through
a dependency graph.

Core capabilities:
- Typed message protocol with addressed and broadcast delivery
- Agent registry with heartbeat-based liveness
- Priority task queue with retries and at-most-one assignment
- Versioned shared memory with optimistic concurrency
- Workflow engine that pipes step outputs into later step inputs`,
}

// Execute runs the root command
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(workflowCmd)
	rootCmd.AddCommand(cleanupCmd)
	rootCmd.AddCommand(versionCmd)
}
