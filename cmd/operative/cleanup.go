package main

import (
	"bufio"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/Nihal-Srivastava05/Operative-sub000/internal/state"
	"github.com/Nihal-Srivastava05/Operative-sub000/pkg/models"
)

var (
	cleanupForce     bool
	cleanupDryRun    bool
	cleanupOlderThan time.Duration
)

var cleanupCmd = &cobra.Command{
	Use:   "cleanup",
	Short: "Purge terminated agents, finished tasks, and old executions",
	Long: `Remove stale durable state:
  - Terminated agent records past the retention window
  - Terminal tasks (completed, failed, cancelled) past the window
  - Finished workflow executions past the window
  - Expired shared-memory entries

Examples:
  operative cleanup                    # Interactive cleanup with confirmation
  operative cleanup --force            # Skip confirmation prompt
  operative cleanup --dry-run          # Show what would be removed
  operative cleanup --older-than 1h    # Override the retention window`,
	RunE: runCleanupCmd,
}

func init() {
	cleanupCmd.Flags().BoolVarP(&cleanupForce, "force", "f", false, "Skip confirmation prompt")
	cleanupCmd.Flags().BoolVar(&cleanupDryRun, "dry-run", false, "Show what would be removed without removing")
	cleanupCmd.Flags().DurationVar(&cleanupOlderThan, "older-than", 24*time.Hour, "Retention window for purged records")
}

func runCleanupCmd(cmd *cobra.Command, args []string) error {
	dbPath := statusDBPath()
	if _, err := os.Stat(dbPath); os.IsNotExist(err) {
		fmt.Println("No state database found; nothing to clean.")
		return nil
	}

	db, err := state.Open(dbPath)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer db.Close()
	if err := db.Migrate(); err != nil {
		return fmt.Errorf("migrate database: %w", err)
	}

	terminated, err := countAgents(db, models.AgentStatusTerminated)
	if err != nil {
		return err
	}
	terminalTasks, err := countTerminalTasks(db)
	if err != nil {
		return err
	}
	finished, err := countFinishedExecutions(db)
	if err != nil {
		return err
	}

	fmt.Printf("Eligible for cleanup (older than %s):\n", cleanupOlderThan)
	fmt.Printf("  terminated agents:    up to %d\n", terminated)
	fmt.Printf("  terminal tasks:       up to %d\n", terminalTasks)
	fmt.Printf("  finished executions:  up to %d\n", finished)

	if cleanupDryRun {
		fmt.Println("Dry run; nothing removed.")
		return nil
	}
	if !cleanupForce && !confirm("Proceed with cleanup?") {
		fmt.Println("Aborted.")
		return nil
	}

	agents, err := db.PurgeTerminatedAgents(cleanupOlderThan)
	if err != nil {
		return fmt.Errorf("purge agents: %w", err)
	}
	tasks, err := db.PurgeTerminalTasks(cleanupOlderThan)
	if err != nil {
		return fmt.Errorf("purge tasks: %w", err)
	}
	executions, err := db.PurgeFinishedExecutions(cleanupOlderThan)
	if err != nil {
		return fmt.Errorf("purge executions: %w", err)
	}
	entries, err := db.PurgeExpiredEntries(time.Now())
	if err != nil {
		return fmt.Errorf("purge memory entries: %w", err)
	}

	fmt.Printf("Removed %d agents, %d tasks, %d executions, %d expired memory entries.\n",
		agents, tasks, executions, entries)
	return nil
}

func countAgents(db *state.DB, status models.AgentStatus) (int, error) {
	agents, err := db.ListAgents(&status)
	if err != nil {
		return 0, fmt.Errorf("list agents: %w", err)
	}
	return len(agents), nil
}

func countTerminalTasks(db *state.DB) (int, error) {
	total := 0
	for _, status := range []models.TaskStatus{models.TaskStatusCompleted, models.TaskStatusFailed, models.TaskStatusCancelled} {
		tasks, err := db.ListTasksByStatus(status)
		if err != nil {
			return 0, fmt.Errorf("list tasks: %w", err)
		}
		total += len(tasks)
	}
	return total, nil
}

func countFinishedExecutions(db *state.DB) (int, error) {
	total := 0
	for _, status := range []models.WorkflowStatus{models.WorkflowStatusCompleted, models.WorkflowStatusFailed, models.WorkflowStatusCancelled} {
		s := status
		executions, err := db.ListExecutions(&s)
		if err != nil {
			return 0, fmt.Errorf("list executions: %w", err)
		}
		total += len(executions)
	}
	return total, nil
}

func confirm(prompt string) bool {
	fmt.Printf("%s [y/N]: ", prompt)
	reader := bufio.NewReader(os.Stdin)
	answer, err := reader.ReadString('\n')
	if err != nil {
		return false
	}
	answer = strings.ToLower(strings.TrimSpace(answer))
	return answer == "y" || answer == "yes"
}
