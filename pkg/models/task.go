package models

import "time"

// TaskStatus represents the current state of a queued task.
type TaskStatus string

const (
	// TaskStatusPending indicates the task is waiting for an agent.
	TaskStatusPending TaskStatus = "pending"
	// TaskStatusAssigned indicates the task was delegated to an agent.
	TaskStatusAssigned TaskStatus = "assigned"
	// TaskStatusInProgress indicates the assigned agent accepted the task.
	TaskStatusInProgress TaskStatus = "in_progress"
	// TaskStatusCompleted indicates the task finished successfully.
	TaskStatusCompleted TaskStatus = "completed"
	// TaskStatusFailed indicates the task failed permanently.
	TaskStatusFailed TaskStatus = "failed"
	// TaskStatusCancelled indicates the task was cancelled before completion.
	TaskStatusCancelled TaskStatus = "cancelled"
)

// Valid returns true if the status is a known value.
func (s TaskStatus) Valid() bool {
	switch s {
	case TaskStatusPending, TaskStatusAssigned, TaskStatusInProgress,
		TaskStatusCompleted, TaskStatusFailed, TaskStatusCancelled:
		return true
	default:
		return false
	}
}

// Terminal returns true if the status is final. A task in a terminal
// status is immutable.
func (s TaskStatus) Terminal() bool {
	switch s {
	case TaskStatusCompleted, TaskStatusFailed, TaskStatusCancelled:
		return true
	default:
		return false
	}
}

// TaskPriority orders tasks for priority-sorted queries.
type TaskPriority string

const (
	// TaskPriorityLow is background work.
	TaskPriorityLow TaskPriority = "low"
	// TaskPriorityNormal is the default priority.
	TaskPriorityNormal TaskPriority = "normal"
	// TaskPriorityHigh is urgent work.
	TaskPriorityHigh TaskPriority = "high"
)

// Valid returns true if the priority is a known value.
func (p TaskPriority) Valid() bool {
	switch p {
	case TaskPriorityLow, TaskPriorityNormal, TaskPriorityHigh:
		return true
	default:
		return false
	}
}

// Weight returns a sortable weight for the priority. Higher is more urgent.
func (p TaskPriority) Weight() int {
	switch p {
	case TaskPriorityHigh:
		return 2
	case TaskPriorityNormal:
		return 1
	default:
		return 0
	}
}

// QueuedTask is a unit of work tracked by the task queue.
// It is mutated only by the queue; agents influence it solely through
// accept/result/error messages that the queue interprets.
type QueuedTask struct {
	// ID is the unique identifier for this task.
	ID string `json:"id"`
	// Description is the work to be performed.
	Description string `json:"description"`
	// Priority orders the task in priority-sorted views.
	Priority TaskPriority `json:"priority"`
	// Status is the current lifecycle state.
	Status TaskStatus `json:"status"`
	// AssignedAgentID is the instance the task was delegated to, if any.
	AssignedAgentID string `json:"assigned_agent_id,omitempty"`
	// TargetDefinitionID restricts assignment to agents of this definition.
	TargetDefinitionID string `json:"target_definition_id,omitempty"`
	// Context carries arbitrary structured input for the task.
	Context map[string]any `json:"context,omitempty"`
	// Result holds the agent-reported output once completed.
	Result any `json:"result,omitempty"`
	// Error holds the failure message if the task failed.
	Error string `json:"error,omitempty"`
	// RetryCount is the number of retries attempted so far.
	RetryCount int `json:"retry_count"`
	// MaxRetries bounds how many times a recoverable failure is retried.
	MaxRetries int `json:"max_retries"`
	// Timeout is an advisory execution budget. The queue persists it but
	// does not enforce it; enforcement belongs to the executor.
	Timeout time.Duration `json:"timeout,omitempty"`
	// CreatedBy identifies the caller that requested the work.
	CreatedBy string `json:"created_by,omitempty"`
	// CreatedAt is when the task was created.
	CreatedAt time.Time `json:"created_at"`
	// AssignedAt is when the task was last delegated to an agent.
	AssignedAt *time.Time `json:"assigned_at,omitempty"`
	// StartedAt is when the assigned agent accepted the task.
	StartedAt *time.Time `json:"started_at,omitempty"`
	// CompletedAt is when the task reached a terminal status.
	CompletedAt *time.Time `json:"completed_at,omitempty"`
	// ParentTaskID links a task to the task or workflow that spawned it.
	ParentTaskID string `json:"parent_task_id,omitempty"`
}
