package models

import "time"

// WorkflowStatus represents the state of one workflow execution.
type WorkflowStatus string

const (
	// WorkflowStatusPending indicates the execution has been created but not started.
	WorkflowStatusPending WorkflowStatus = "pending"
	// WorkflowStatusRunning indicates steps are being executed.
	WorkflowStatusRunning WorkflowStatus = "running"
	// WorkflowStatusCompleted indicates all steps finished successfully.
	WorkflowStatusCompleted WorkflowStatus = "completed"
	// WorkflowStatusFailed indicates a step failed or the graph was unsatisfiable.
	WorkflowStatusFailed WorkflowStatus = "failed"
	// WorkflowStatusCancelled indicates the execution was cancelled.
	WorkflowStatusCancelled WorkflowStatus = "cancelled"
)

// Valid returns true if the status is a known value.
func (s WorkflowStatus) Valid() bool {
	switch s {
	case WorkflowStatusPending, WorkflowStatusRunning, WorkflowStatusCompleted,
		WorkflowStatusFailed, WorkflowStatusCancelled:
		return true
	default:
		return false
	}
}

// Terminal returns true if the status is final for an execution.
func (s WorkflowStatus) Terminal() bool {
	switch s {
	case WorkflowStatusCompleted, WorkflowStatusFailed, WorkflowStatusCancelled:
		return true
	default:
		return false
	}
}

// WorkflowStep is one node in a workflow's dependency graph.
type WorkflowStep struct {
	// ID uniquely identifies the step within its workflow.
	ID string `json:"id" yaml:"id"`
	// DefinitionID restricts the step's task to agents of this definition.
	DefinitionID string `json:"definition_id,omitempty" yaml:"definition_id,omitempty"`
	// Task is the task description submitted for this step.
	Task string `json:"task" yaml:"task"`
	// DependsOn lists step IDs that must complete before this step runs.
	DependsOn []string `json:"depends_on,omitempty" yaml:"depends_on,omitempty"`
	// InputMapping pulls values from prior step outputs by dotted path,
	// keyed by the name they should appear under in this step's input.
	InputMapping map[string]string `json:"input_mapping,omitempty" yaml:"input_mapping,omitempty"`
	// OutputAs names the key the step's output is stored under.
	OutputAs string `json:"output_as,omitempty" yaml:"output_as,omitempty"`
	// ContinueOnError is reserved. The engine currently aborts the whole
	// execution on the first step failure regardless of this flag.
	ContinueOnError bool `json:"continue_on_error,omitempty" yaml:"continue_on_error,omitempty"`
}

// WorkflowDefinition is a static graph of steps executed against one input.
type WorkflowDefinition struct {
	// ID uniquely identifies the workflow.
	ID string `json:"id" yaml:"id"`
	// Name is a human-readable label.
	Name string `json:"name,omitempty" yaml:"name,omitempty"`
	// Description explains what the workflow does.
	Description string `json:"description,omitempty" yaml:"description,omitempty"`
	// Steps is the full step graph.
	Steps []WorkflowStep `json:"steps" yaml:"steps"`
}

// Step returns the step with the given id, or nil if absent.
func (d *WorkflowDefinition) Step(id string) *WorkflowStep {
	for i := range d.Steps {
		if d.Steps[i].ID == id {
			return &d.Steps[i]
		}
	}
	return nil
}

// WorkflowExecution tracks one run of a workflow definition.
// It is owned by the workflow engine; one execution per Execute call.
type WorkflowExecution struct {
	// ID uniquely identifies this execution.
	ID string `json:"id"`
	// WorkflowID is the definition that was executed.
	WorkflowID string `json:"workflow_id"`
	// Status is the current lifecycle state.
	Status WorkflowStatus `json:"status"`
	// CurrentStep is the most recently started step, for observability.
	CurrentStep string `json:"current_step,omitempty"`
	// StepOutputs maps output names to step results.
	StepOutputs map[string]any `json:"step_outputs,omitempty"`
	// Input is the value the execution was started with.
	Input any `json:"input,omitempty"`
	// Output is the final output once completed.
	Output any `json:"output,omitempty"`
	// Error holds the failure cause if the execution failed.
	Error string `json:"error,omitempty"`
	// CreatedAt is when the execution record was created.
	CreatedAt time.Time `json:"created_at"`
	// StartedAt is when step execution began.
	StartedAt *time.Time `json:"started_at,omitempty"`
	// CompletedAt is when the execution reached a terminal status.
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}
