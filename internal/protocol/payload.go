package protocol

import (
	"time"

	"github.com/Nihal-Srivastava05/Operative-sub000/pkg/models"
)

// Payload is the sealed set of message payload variants. Each message
// type has exactly one payload shape; the unexported method ties a
// payload to the type it belongs to so a mismatched pair cannot be
// constructed into a Message.
type Payload interface {
	messageType() MessageType
}

// DelegatePayload asks a specific agent to execute a task.
type DelegatePayload struct {
	// TaskID is the queue's identifier for the task.
	TaskID string `json:"task_id"`
	// Description is the work to perform.
	Description string `json:"description"`
	// Priority is the task's queue priority.
	Priority models.TaskPriority `json:"priority,omitempty"`
	// Context carries structured input for the task.
	Context map[string]any `json:"context,omitempty"`
	// Timeout is the advisory execution budget for the task.
	Timeout time.Duration `json:"timeout,omitempty"`
}

func (DelegatePayload) messageType() MessageType { return TypeTaskDelegate }

// AcceptPayload acknowledges that the agent started working on a task.
type AcceptPayload struct {
	TaskID string `json:"task_id"`
}

func (AcceptPayload) messageType() MessageType { return TypeTaskAccept }

// ResultPayload reports successful completion of a task.
type ResultPayload struct {
	TaskID string `json:"task_id"`
	// Result is the agent-produced output.
	Result any `json:"result,omitempty"`
}

func (ResultPayload) messageType() MessageType { return TypeTaskResult }

// ErrorPayload reports a task failure.
type ErrorPayload struct {
	TaskID string `json:"task_id"`
	// Error describes what went wrong.
	Error string `json:"error"`
	// Recoverable indicates the queue may retry the task.
	Recoverable bool `json:"recoverable"`
}

func (ErrorPayload) messageType() MessageType { return TypeTaskError }

// TerminatePayload asks an agent to abandon a task.
type TerminatePayload struct {
	TaskID string `json:"task_id"`
	Reason string `json:"reason,omitempty"`
}

func (TerminatePayload) messageType() MessageType { return TypeTaskTerminate }

// StatusPayload carries an informational task progress update.
type StatusPayload struct {
	TaskID string            `json:"task_id"`
	Status models.TaskStatus `json:"status"`
	Detail string            `json:"detail,omitempty"`
}

func (StatusPayload) messageType() MessageType { return TypeTaskStatus }

// HeartbeatPayload is a periodic liveness touch from an agent.
type HeartbeatPayload struct {
	Status        models.AgentStatus `json:"status,omitempty"`
	CurrentTaskID string             `json:"current_task_id,omitempty"`
}

func (HeartbeatPayload) messageType() MessageType { return TypeAgentHeartbeat }

// MemoryOperation names the kind of change a memory event describes.
type MemoryOperation string

const (
	// MemoryOpWrite is a create or update of an entry.
	MemoryOpWrite MemoryOperation = "write"
	// MemoryOpDelete is a removal of an entry.
	MemoryOpDelete MemoryOperation = "delete"
)

// MemoryChangedPayload announces a shared-memory change to other processes.
type MemoryChangedPayload struct {
	Namespace string          `json:"namespace"`
	Key       string          `json:"key"`
	Operation MemoryOperation `json:"operation"`
	OldValue  any             `json:"old_value,omitempty"`
	NewValue  any             `json:"new_value,omitempty"`
	// Version is the entry version after the change (0 for deletes).
	Version int64 `json:"version,omitempty"`
}

func (MemoryChangedPayload) messageType() MessageType { return TypeMemoryChanged }

// ReadyPayload announces that a freshly spawned agent is reachable.
type ReadyPayload struct {
	Capabilities []string `json:"capabilities,omitempty"`
}

func (ReadyPayload) messageType() MessageType { return TypeLifecycleReady }

// ShutdownPayload announces that an agent is going away.
type ShutdownPayload struct {
	Reason string `json:"reason,omitempty"`
}

func (ShutdownPayload) messageType() MessageType { return TypeLifecycleShutdown }
