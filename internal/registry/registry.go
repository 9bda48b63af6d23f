// Package registry tracks known agent instances and their liveness.
// It is the single source of truth the task queue consults when picking
// delegation targets.
package registry

import (
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/Nihal-Srivastava05/Operative-sub000/internal/bus"
	"github.com/Nihal-Srivastava05/Operative-sub000/internal/protocol"
	"github.com/Nihal-Srivastava05/Operative-sub000/internal/state"
	"github.com/Nihal-Srivastava05/Operative-sub000/pkg/models"
)

// DefaultHeartbeatTimeout is how long an agent may go without a
// heartbeat before the staleness sweep demotes it to error.
const DefaultHeartbeatTimeout = 90 * time.Second

// DefaultRetention is how long terminated records are kept in durable
// storage before cleanup may purge them.
const DefaultRetention = 24 * time.Hour

// Registry manages agent records and heartbeat-based liveness.
// It provides thread-safe storage and retrieval of agent state; records
// are mutated only through its methods.
type Registry struct {
	// agents maps instance ids to live records.
	agents map[string]*models.RegisteredAgent
	// store persists records across process restarts.
	store state.AgentStateStore
	// heartbeatTimeout is the staleness threshold for the sweep.
	heartbeatTimeout time.Duration
	// unsubscribe detaches the bus subscriptions.
	unsubscribe []func()
	// mu protects agents.
	mu sync.RWMutex
}

// Stats aggregates registry contents for observability.
type Stats struct {
	Total         int                        `json:"total"`
	ByStatus      map[models.AgentStatus]int `json:"by_status"`
	ByContextType map[models.ContextType]int `json:"by_context_type"`
}

// New creates a Registry backed by the given store.
func New(store state.AgentStateStore) *Registry {
	return &Registry{
		agents:           make(map[string]*models.RegisteredAgent),
		store:            store,
		heartbeatTimeout: DefaultHeartbeatTimeout,
	}
}

// SetHeartbeatTimeout overrides the staleness threshold.
func (r *Registry) SetHeartbeatTimeout(d time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if d > 0 {
		r.heartbeatTimeout = d
	}
}

// BindBus subscribes the registry to heartbeat and shutdown traffic on
// the system channel.
func (r *Registry) BindBus(b *bus.Bus) {
	unsub := b.Subscribe(bus.ChannelSystem, func(msg protocol.Message) {
		switch payload := msg.Payload.(type) {
		case protocol.HeartbeatPayload:
			r.RecordHeartbeat(msg.Source.ID, HeartbeatOptions{
				Status:        payload.Status,
				CurrentTaskID: payload.CurrentTaskID,
			})
		case protocol.ShutdownPayload:
			r.Unregister(msg.Source.ID)
		}
	}, &bus.Filter{Types: []protocol.MessageType{protocol.TypeAgentHeartbeat, protocol.TypeLifecycleShutdown}})
	r.unsubscribe = append(r.unsubscribe, unsub)
}

// Close detaches bus subscriptions.
func (r *Registry) Close() {
	for _, unsub := range r.unsubscribe {
		unsub()
	}
	r.unsubscribe = nil
}

// Register adds or overwrites a record for the identity and persists it.
// A registered agent starts idle.
func (r *Registry) Register(identity models.AgentIdentity, capabilities []string) (*models.RegisteredAgent, error) {
	now := time.Now()
	agent := &models.RegisteredAgent{
		Identity:      identity,
		Capabilities:  capabilities,
		Status:        models.AgentStatusIdle,
		LastHeartbeat: now,
		RegisteredAt:  now,
	}

	r.mu.Lock()
	r.agents[identity.ID] = agent
	r.mu.Unlock()

	if err := r.store.PutAgent(agent); err != nil {
		return nil, fmt.Errorf("register agent %s: %w", identity.ID, err)
	}
	return agent, nil
}

// Unregister marks the instance terminated in durable storage and
// removes it from the live index. Termination is final for an instance
// id; a new spawn gets a new id. Returns whether the agent existed.
func (r *Registry) Unregister(id string) bool {
	r.mu.Lock()
	agent, exists := r.agents[id]
	if exists {
		delete(r.agents, id)
	}
	r.mu.Unlock()

	if !exists {
		return false
	}

	agent.Status = models.AgentStatusTerminated
	agent.CurrentTaskID = ""
	agent.LastHeartbeat = time.Now()
	if err := r.store.PutAgent(agent); err != nil {
		log.Printf("[registry] persist terminated agent %s: %v", id, err)
	}
	return true
}

// UpdateStatus updates an agent's status, bumps its heartbeat, and
// persists the record. Returns false if the agent is unknown.
func (r *Registry) UpdateStatus(id string, status models.AgentStatus, currentTaskID string) bool {
	r.mu.Lock()
	agent, exists := r.agents[id]
	if !exists {
		r.mu.Unlock()
		return false
	}
	agent.Status = status
	agent.CurrentTaskID = currentTaskID
	agent.LastHeartbeat = time.Now()
	snapshot := *agent
	r.mu.Unlock()

	if err := r.store.PutAgent(&snapshot); err != nil {
		log.Printf("[registry] persist status for agent %s: %v", id, err)
	}
	return true
}

// HeartbeatOptions carries the optional fields of a heartbeat.
type HeartbeatOptions struct {
	// Status, if non-empty, replaces the agent's status.
	Status models.AgentStatus
	// CurrentTaskID, if non-empty, replaces the agent's current task.
	CurrentTaskID string
}

// RecordHeartbeat is a lighter-weight liveness touch. It persists only
// when the heartbeat also changes status or task; a bare touch stays in
// memory and is captured by the next persisting write.
func (r *Registry) RecordHeartbeat(id string, opts HeartbeatOptions) bool {
	r.mu.Lock()
	agent, exists := r.agents[id]
	if !exists {
		r.mu.Unlock()
		return false
	}

	changed := false
	if opts.Status != "" && opts.Status != agent.Status {
		agent.Status = opts.Status
		changed = true
	}
	if opts.CurrentTaskID != "" && opts.CurrentTaskID != agent.CurrentTaskID {
		agent.CurrentTaskID = opts.CurrentTaskID
		changed = true
	}
	agent.LastHeartbeat = time.Now()
	snapshot := *agent
	r.mu.Unlock()

	if changed {
		if err := r.store.PutAgent(&snapshot); err != nil {
			log.Printf("[registry] persist heartbeat for agent %s: %v", id, err)
		}
	}
	return true
}

// Get retrieves a copy of the record for an instance id, or nil.
func (r *Registry) Get(id string) *models.RegisteredAgent {
	r.mu.RLock()
	defer r.mu.RUnlock()
	agent, exists := r.agents[id]
	if !exists {
		return nil
	}
	snapshot := *agent
	return &snapshot
}

// All returns a copy of every live record.
func (r *Registry) All() []models.RegisteredAgent {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]models.RegisteredAgent, 0, len(r.agents))
	for _, agent := range r.agents {
		out = append(out, *agent)
	}
	return out
}

// Count returns the number of live records.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.agents)
}

// ByDefinition returns agents running the given definition.
func (r *Registry) ByDefinition(definitionID string) []models.RegisteredAgent {
	return r.filter(func(a *models.RegisteredAgent) bool {
		return a.Identity.DefinitionID == definitionID
	})
}

// ByContextType returns agents hosted in the given context kind.
func (r *Registry) ByContextType(contextType models.ContextType) []models.RegisteredAgent {
	return r.filter(func(a *models.RegisteredAgent) bool {
		return a.Identity.ContextType == contextType
	})
}

// ByStatus returns agents with the given status.
func (r *Registry) ByStatus(status models.AgentStatus) []models.RegisteredAgent {
	return r.filter(func(a *models.RegisteredAgent) bool {
		return a.Status == status
	})
}

// ByCapability returns agents advertising the given capability.
func (r *Registry) ByCapability(capability string) []models.RegisteredAgent {
	return r.filter(func(a *models.RegisteredAgent) bool {
		return a.HasCapability(capability)
	})
}

// IdleAgents returns agents available for assignment. Only idle agents
// are assignment targets; error and busy agents are skipped.
func (r *Registry) IdleAgents() []models.RegisteredAgent {
	return r.ByStatus(models.AgentStatusIdle)
}

// BusyAgents returns agents currently working on a task.
func (r *Registry) BusyAgents() []models.RegisteredAgent {
	return r.ByStatus(models.AgentStatusBusy)
}

// GetStats aggregates the live index by status and context type.
func (r *Registry) GetStats() Stats {
	r.mu.RLock()
	defer r.mu.RUnlock()

	stats := Stats{
		Total:         len(r.agents),
		ByStatus:      make(map[models.AgentStatus]int),
		ByContextType: make(map[models.ContextType]int),
	}
	for _, agent := range r.agents {
		stats.ByStatus[agent.Status]++
		stats.ByContextType[agent.Identity.ContextType]++
	}
	return stats
}

func (r *Registry) filter(keep func(*models.RegisteredAgent) bool) []models.RegisteredAgent {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []models.RegisteredAgent
	for _, agent := range r.agents {
		if keep(agent) {
			out = append(out, *agent)
		}
	}
	return out
}

// SweepStale demotes every non-terminated agent whose heartbeat is
// older than the timeout to error status. This is a state transition
// only, not an unregister; the queue excludes error agents on its own
// because only idle agents are assignment targets. Returns the demoted
// instance ids.
func (r *Registry) SweepStale(now time.Time) []string {
	r.mu.Lock()
	var demoted []string
	var snapshots []models.RegisteredAgent
	for id, agent := range r.agents {
		if agent.Status.Terminal() || agent.Status == models.AgentStatusError {
			continue
		}
		if now.Sub(agent.LastHeartbeat) > r.heartbeatTimeout {
			agent.Status = models.AgentStatusError
			demoted = append(demoted, id)
			snapshots = append(snapshots, *agent)
		}
	}
	r.mu.Unlock()

	for i := range snapshots {
		if err := r.store.PutAgent(&snapshots[i]); err != nil {
			log.Printf("[registry] persist stale demotion for agent %s: %v", snapshots[i].Identity.ID, err)
		}
	}
	if len(demoted) > 0 {
		log.Printf("[registry] demoted %d stale agents to error: %v", len(demoted), demoted)
	}
	return demoted
}

// Restore loads all non-terminated records from durable storage into
// the live index. Every restored record is marked error: a persisted
// "idle" from a previous process lifetime cannot be trusted until a
// fresh heartbeat is observed.
func (r *Registry) Restore() (int, error) {
	records, err := r.store.ListLiveAgents()
	if err != nil {
		return 0, fmt.Errorf("restore registry: %w", err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	for i := range records {
		record := records[i]
		record.Status = models.AgentStatusError
		r.agents[record.Identity.ID] = &record
	}
	return len(records), nil
}

// PurgeTerminated removes terminated records older than the retention
// window from durable storage.
func (r *Registry) PurgeTerminated(olderThan time.Duration) (int64, error) {
	return r.store.PurgeTerminatedAgents(olderThan)
}
