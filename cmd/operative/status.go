package main

import (
	"fmt"
	"os"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/Nihal-Srivastava05/Operative-sub000/internal/config"
	"github.com/Nihal-Srivastava05/Operative-sub000/internal/state"
	"github.com/Nihal-Srivastava05/Operative-sub000/pkg/models"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show registry, queue, and workflow state",
	Long: `Display the durable state of the runtime.

Shows:
  - Registered agents and their liveness
  - Open and recently finished tasks
  - Workflow executions`,
	RunE: runStatus,
}

func runStatus(cmd *cobra.Command, args []string) error {
	dbPath := statusDBPath()
	if _, err := os.Stat(dbPath); os.IsNotExist(err) {
		fmt.Println("No state database found. Run 'operative run' to start the coordinator.")
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

	if err := printAgents(db); err != nil {
		return err
	}
	if err := printTasks(db); err != nil {
		return err
	}
	return printExecutions(db)
}

// statusDBPath resolves the database the same way the coordinator does.
func statusDBPath() string {
	if cfg, err := config.Load(); err == nil && cfg.Storage.Path != "" {
		return cfg.Storage.Path
	}
	return state.ProjectDBPath(".")
}

func printAgents(db *state.DB) error {
	agents, err := db.ListAgents(nil)
	if err != nil {
		return fmt.Errorf("list agents: %w", err)
	}

	bold := color.New(color.Bold)
	bold.Println("Agents")
	if len(agents) == 0 {
		fmt.Println("  (none)")
		return nil
	}
	for _, agent := range agents {
		fmt.Printf("  %-28s %-12s %-10s %s  last seen %s\n",
			agent.Identity.ID,
			agent.Identity.DefinitionID,
			string(agent.Identity.ContextType),
			colorAgentStatus(agent.Status),
			humanAge(time.Since(agent.LastHeartbeat)))
	}
	return nil
}

func printTasks(db *state.DB) error {
	open, err := db.ListOpenTasks()
	if err != nil {
		return fmt.Errorf("list tasks: %w", err)
	}

	bold := color.New(color.Bold)
	bold.Println("Tasks")
	if len(open) == 0 {
		fmt.Println("  (no open tasks)")
		return nil
	}
	for _, task := range open {
		line := fmt.Sprintf("  %-28s %-12s %-8s %s", task.ID, colorTaskStatus(task.Status), string(task.Priority), truncate(task.Description, 48))
		if task.AssignedAgentID != "" {
			line += "  -> " + task.AssignedAgentID
		}
		if task.RetryCount > 0 {
			line += fmt.Sprintf("  (retries %d/%d)", task.RetryCount, task.MaxRetries)
		}
		fmt.Println(line)
	}
	return nil
}

func printExecutions(db *state.DB) error {
	executions, err := db.ListExecutions(nil)
	if err != nil {
		return fmt.Errorf("list executions: %w", err)
	}

	bold := color.New(color.Bold)
	bold.Println("Workflow executions")
	if len(executions) == 0 {
		fmt.Println("  (none)")
		return nil
	}
	for _, exec := range executions {
		line := fmt.Sprintf("  %-28s %-12s %s", exec.ID, colorWorkflowStatus(exec.Status), exec.WorkflowID)
		if exec.CurrentStep != "" {
			line += "  step " + exec.CurrentStep
		}
		if exec.Error != "" {
			line += "  " + color.RedString(truncate(exec.Error, 40))
		}
		fmt.Println(line)
	}
	return nil
}

func colorAgentStatus(status models.AgentStatus) string {
	switch status {
	case models.AgentStatusIdle:
		return color.GreenString(string(status))
	case models.AgentStatusBusy:
		return color.CyanString(string(status))
	case models.AgentStatusError:
		return color.RedString(string(status))
	default:
		return color.New(color.Faint).Sprint(string(status))
	}
}

func colorTaskStatus(status models.TaskStatus) string {
	switch status {
	case models.TaskStatusCompleted:
		return color.GreenString(string(status))
	case models.TaskStatusInProgress, models.TaskStatusAssigned:
		return color.CyanString(string(status))
	case models.TaskStatusFailed:
		return color.RedString(string(status))
	case models.TaskStatusCancelled:
		return color.New(color.Faint).Sprint(string(status))
	default:
		return color.YellowString(string(status))
	}
}

func colorWorkflowStatus(status models.WorkflowStatus) string {
	switch status {
	case models.WorkflowStatusCompleted:
		return color.GreenString(string(status))
	case models.WorkflowStatusRunning:
		return color.CyanString(string(status))
	case models.WorkflowStatusFailed:
		return color.RedString(string(status))
	case models.WorkflowStatusCancelled:
		return color.New(color.Faint).Sprint(string(status))
	default:
		return color.YellowString(string(status))
	}
}

func humanAge(d time.Duration) string {
	switch {
	case d < time.Minute:
		return fmt.Sprintf("%ds ago", int(d.Seconds()))
	case d < time.Hour:
		return fmt.Sprintf("%dm ago", int(d.Minutes()))
	default:
		return fmt.Sprintf("%dh ago", int(d.Hours()))
	}
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max-3] + "..."
}
