package main

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/Nihal-Srivastava05/Operative-sub000/internal/agent"
	"github.com/Nihal-Srivastava05/Operative-sub000/internal/bus"
	"github.com/Nihal-Srivastava05/Operative-sub000/internal/config"
	"github.com/Nihal-Srivastava05/Operative-sub000/internal/protocol"
	"github.com/Nihal-Srivastava05/Operative-sub000/internal/runtime"
	"github.com/Nihal-Srivastava05/Operative-sub000/internal/workflow"
	"github.com/Nihal-Srivastava05/Operative-sub000/pkg/models"
)

var (
	workflowInput   string
	workflowWorkers int
)

var workflowCmd = &cobra.Command{
	Use:   "workflow",
	Short: "Validate and run workflow definitions",
}

var workflowValidateCmd = &cobra.Command{
	Use:   "validate <file>",
	Short: "Check a workflow definition without running it",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		def, err := workflow.LoadDefinition(args[0])
		if err != nil {
			return err
		}
		fmt.Printf("workflow %s is valid (%d steps)\n", def.ID, len(def.Steps))
		return nil
	},
}

var workflowRunCmd = &cobra.Command{
	Use:   "run <file>",
	Short: "Execute a workflow definition with local echo workers",
	Long: `Load a YAML workflow definition and execute it end to end.

Steps are served by in-process echo workers that accept any
delegation and return the task description; this exercises the full
dependency graph, delegation traffic, and output plumbing without
needing real agents. Use --input to pass a JSON input value.

Examples:
  operative workflow run workflows/report.yaml
  operative workflow run workflows/report.yaml --input '{"topic":"raft"}'`,
	Args: cobra.ExactArgs(1),
	RunE: runWorkflowCmd,
}

func init() {
	workflowRunCmd.Flags().StringVar(&workflowInput, "input", "", "JSON input value for the execution")
	workflowRunCmd.Flags().IntVar(&workflowWorkers, "workers", 2, "Number of in-process echo workers")
	workflowCmd.AddCommand(workflowValidateCmd)
	workflowCmd.AddCommand(workflowRunCmd)
}

func runWorkflowCmd(cmd *cobra.Command, args []string) error {
	def, err := workflow.LoadDefinition(args[0])
	if err != nil {
		return err
	}

	var input any
	if workflowInput != "" {
		if err := json.Unmarshal([]byte(workflowInput), &input); err != nil {
			return fmt.Errorf("parse --input: %w", err)
		}
	}

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	rt, err := runtime.New(cfg, runtime.Options{StorePath: runStorePath})
	if err != nil {
		return err
	}
	defer rt.Stop()

	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()
	rt.Start(ctx)

	definitions := stepDefinitions(def)
	for i := 0; i < workflowWorkers; i++ {
		for _, definitionID := range definitions {
			identity := models.AgentIdentity{
				ID:           protocol.NewInstanceID(),
				DefinitionID: definitionID,
				ContextType:  models.ContextTypeBackground,
			}
			w := agent.NewWorker(bus.New(rt.Transport()), identity, nil, echoHandler)
			if err := w.Start(ctx); err != nil {
				return fmt.Errorf("start worker: %w", err)
			}
			defer w.Stop("workflow finished")
			if _, err := rt.Registry().Register(identity, nil); err != nil {
				return fmt.Errorf("register worker: %w", err)
			}
		}
	}

	exec, err := rt.Workflows().Execute(ctx, def, input)
	if err != nil {
		return err
	}

	fmt.Printf("execution %s finished: %s\n", exec.ID, exec.Status)
	if exec.Error != "" {
		fmt.Printf("error: %s\n", exec.Error)
	}
	if exec.Output != nil {
		encoded, err := json.MarshalIndent(exec.Output, "", "  ")
		if err == nil {
			fmt.Printf("output:\n%s\n", encoded)
		}
	}
	return nil
}

// stepDefinitions collects the distinct definition ids the workflow
// targets; steps without one share a generic pool.
func stepDefinitions(def *models.WorkflowDefinition) []string {
	seen := make(map[string]bool)
	var out []string
	for _, step := range def.Steps {
		definitionID := step.DefinitionID
		if definitionID == "" {
			definitionID = "worker"
		}
		if !seen[definitionID] {
			seen[definitionID] = true
			out = append(out, definitionID)
		}
	}
	return out
}

// echoHandler completes any task by echoing its description and context.
func echoHandler(ctx context.Context, task protocol.DelegatePayload) (any, error) {
	return map[string]any{
		"task":    task.Description,
		"context": task.Context,
	}, nil
}
