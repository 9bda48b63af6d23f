package models

import "time"

// ContextType identifies the kind of execution environment an agent runs in.
type ContextType string

const (
	// ContextTypeTab is an agent hosted in a foreground tab context.
	ContextTypeTab ContextType = "tab"
	// ContextTypeBackground is an agent hosted in a background document.
	ContextTypeBackground ContextType = "background"
	// ContextTypeWorker is an agent hosted in a dedicated worker.
	ContextTypeWorker ContextType = "worker"
	// ContextTypeCoordinator is the coordinator process itself.
	ContextTypeCoordinator ContextType = "coordinator"
)

// Valid returns true if the context type is a known value.
func (c ContextType) Valid() bool {
	switch c {
	case ContextTypeTab, ContextTypeBackground, ContextTypeWorker, ContextTypeCoordinator:
		return true
	default:
		return false
	}
}

// AgentStatus represents the current state of a registered agent.
type AgentStatus string

const (
	// AgentStatusIdle indicates the agent is available for assignment.
	AgentStatusIdle AgentStatus = "idle"
	// AgentStatusBusy indicates the agent is working on a task.
	AgentStatusBusy AgentStatus = "busy"
	// AgentStatusError indicates the agent is unhealthy (e.g. stale heartbeat).
	AgentStatusError AgentStatus = "error"
	// AgentStatusTerminated indicates the agent instance is gone for good.
	AgentStatusTerminated AgentStatus = "terminated"
)

// Valid returns true if the status is a known value.
func (s AgentStatus) Valid() bool {
	switch s {
	case AgentStatusIdle, AgentStatusBusy, AgentStatusError, AgentStatusTerminated:
		return true
	default:
		return false
	}
}

// Terminal returns true if the status is final for an agent instance.
// Terminated instances are never resurrected; a new spawn gets a new id.
func (s AgentStatus) Terminal() bool {
	return s == AgentStatusTerminated
}

// AgentIdentity identifies one running agent instance.
// It is created at spawn time and is immutable for the life of the instance.
type AgentIdentity struct {
	// ID is the opaque instance id, unique per process lifetime.
	ID string `json:"id"`
	// DefinitionID references the stored behavior profile the agent runs.
	DefinitionID string `json:"definition_id"`
	// ContextType is the kind of execution environment hosting the agent.
	ContextType ContextType `json:"context_type"`
	// LocationHints holds optional environment-specific addresses.
	LocationHints map[string]string `json:"location_hints,omitempty"`
}

// RegisteredAgent is the registry's record of a known agent instance.
// It is owned exclusively by the registry and mutated only through it.
type RegisteredAgent struct {
	// Identity is the immutable identity of the instance.
	Identity AgentIdentity `json:"identity"`
	// Capabilities lists what kinds of work the agent can perform.
	Capabilities []string `json:"capabilities,omitempty"`
	// Status is the current liveness/availability state.
	Status AgentStatus `json:"status"`
	// LastHeartbeat is the time of the most recent liveness touch.
	LastHeartbeat time.Time `json:"last_heartbeat"`
	// CurrentTaskID is the task the agent is working on, if busy.
	CurrentTaskID string `json:"current_task_id,omitempty"`
	// RegisteredAt is when the instance registered.
	RegisteredAt time.Time `json:"registered_at"`
}

// HasCapability returns true if the agent advertises the given capability.
func (a *RegisteredAgent) HasCapability(capability string) bool {
	for _, c := range a.Capabilities {
		if c == capability {
			return true
		}
	}
	return false
}
