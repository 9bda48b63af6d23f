// Package state provides SQLite-backed durable storage for the
// orchestration runtime.
package state

import (
	"io"
	"time"

	"github.com/Nihal-Srivastava05/Operative-sub000/pkg/models"
)

// AgentStateStore handles agent-record persistence.
type AgentStateStore interface {
	PutAgent(a *models.RegisteredAgent) error
	GetAgent(id string) (*models.RegisteredAgent, error)
	ListAgents(status *models.AgentStatus) ([]models.RegisteredAgent, error)
	ListLiveAgents() ([]models.RegisteredAgent, error)
	DeleteAgent(id string) error
	PurgeTerminatedAgents(olderThan time.Duration) (int64, error)
}

// MemoryStore handles shared-memory entry persistence.
type MemoryStore interface {
	PutEntry(e *models.MemoryEntry) error
	GetEntry(namespace, key string) (*models.MemoryEntry, error)
	DeleteEntry(namespace, key string) (bool, error)
	ListEntries(namespacePrefix string) ([]models.MemoryEntry, error)
	PurgeExpiredEntries(now time.Time) (int64, error)
}

// TaskStore handles task-record persistence.
type TaskStore interface {
	PutTask(t *models.QueuedTask) error
	GetTask(id string) (*models.QueuedTask, error)
	ListTasksByStatus(status models.TaskStatus) ([]models.QueuedTask, error)
	ListOpenTasks() ([]models.QueuedTask, error)
	DeleteTask(id string) error
	PurgeTerminalTasks(olderThan time.Duration) (int64, error)
}

// WorkflowStore handles workflow-execution persistence.
type WorkflowStore interface {
	PutExecution(e *models.WorkflowExecution) error
	GetExecution(id string) (*models.WorkflowExecution, error)
	ListExecutions(status *models.WorkflowStatus) ([]models.WorkflowExecution, error)
	PurgeFinishedExecutions(olderThan time.Duration) (int64, error)
}

// Migrator handles database schema migrations.
// Separating this allows clients to depend only on migration functionality.
type Migrator interface {
	// Migrate applies all pending schema migrations.
	Migrate() error
}

// Store defines the full durable-storage contract the runtime consumes.
// This interface allows components to work with any storage backend
// without depending on the concrete SQLite implementation.
// It composes focused sub-interfaces for better modularity.
type Store interface {
	io.Closer
	Migrator
	AgentStateStore
	MemoryStore
	TaskStore
	WorkflowStore
}

// Compile-time verification that DB implements all interfaces.
var (
	_ Store           = (*DB)(nil)
	_ Migrator        = (*DB)(nil)
	_ AgentStateStore = (*DB)(nil)
	_ MemoryStore     = (*DB)(nil)
	_ TaskStore       = (*DB)(nil)
	_ WorkflowStore   = (*DB)(nil)
)
