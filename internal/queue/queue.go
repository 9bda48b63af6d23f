package queue

import (
	"context"
	"fmt"
	"log"
	"sort"
	"sync"
	"time"

	"github.com/Nihal-Srivastava05/Operative-sub000/internal/bus"
	"github.com/Nihal-Srivastava05/Operative-sub000/internal/protocol"
	"github.com/Nihal-Srivastava05/Operative-sub000/internal/registry"
	"github.com/Nihal-Srivastava05/Operative-sub000/internal/state"
	"github.com/Nihal-Srivastava05/Operative-sub000/pkg/models"
)

// DefaultMaxRetries bounds retries for tasks that do not set their own.
const DefaultMaxRetries = 3

// DefaultAssignInterval is how often the run loop sweeps pending tasks
// when nothing nudges it sooner.
const DefaultAssignInterval = 2 * time.Second

// DefaultEventBuffer is the emitter buffer size.
const DefaultEventBuffer = 64

// Queue owns all task state. Agents never mutate a task directly; they
// report accept/result/error over the bus and the queue interprets the
// messages against its own records.
type Queue struct {
	// store persists task records across restarts.
	store state.TaskStore
	// registry supplies assignment targets.
	registry *registry.Registry
	// bus carries delegation and lifecycle traffic; nil until bound.
	bus *bus.Bus
	// tasks maps task ids to live records.
	tasks map[string]*models.QueuedTask
	// order holds task ids in insertion order; the assignment sweep
	// walks it front to back.
	order []string
	// events emits lifecycle notifications.
	events *EventEmitter
	// trigger nudges the run loop when there may be work to assign.
	trigger chan struct{}
	// assignInterval is the sweep period of the run loop.
	assignInterval time.Duration
	// unsubscribe detaches bus subscriptions.
	unsubscribe []func()
	// mu protects tasks and order.
	mu sync.RWMutex
}

// Stats aggregates queue contents for observability.
type Stats struct {
	Total        int                       `json:"total"`
	ByStatus     map[models.TaskStatus]int `json:"by_status"`
	TotalRetries int                       `json:"total_retries"`
	// OldestPendingAge is how long the oldest pending task has waited,
	// zero when nothing is pending.
	OldestPendingAge time.Duration `json:"oldest_pending_age"`
}

// New creates a Queue over the given store and registry.
func New(store state.TaskStore, reg *registry.Registry) *Queue {
	return &Queue{
		store:          store,
		registry:       reg,
		tasks:          make(map[string]*models.QueuedTask),
		events:         NewEventEmitter(DefaultEventBuffer),
		trigger:        make(chan struct{}, 1),
		assignInterval: DefaultAssignInterval,
	}
}

// SetAssignInterval overrides the sweep period.
func (q *Queue) SetAssignInterval(d time.Duration) {
	if d > 0 {
		q.assignInterval = d
	}
}

// Events returns the queue's lifecycle event channel.
func (q *Queue) Events() <-chan Event {
	return q.events.Events()
}

// BindBus attaches the queue to the bus: it publishes task:delegate and
// task:terminate, and consumes accept/result/error replies.
func (q *Queue) BindBus(b *bus.Bus) {
	q.mu.Lock()
	q.bus = b
	q.mu.Unlock()

	unsub := b.Subscribe(bus.ChannelTasks, func(msg protocol.Message) {
		switch payload := msg.Payload.(type) {
		case protocol.AcceptPayload:
			q.handleAccept(msg.Source.ID, payload)
		case protocol.ResultPayload:
			q.handleResult(msg.Source.ID, payload)
		case protocol.ErrorPayload:
			q.handleError(msg.Source.ID, payload)
		}
	}, &bus.Filter{Types: []protocol.MessageType{
		protocol.TypeTaskAccept,
		protocol.TypeTaskResult,
		protocol.TypeTaskError,
	}})
	q.unsubscribe = append(q.unsubscribe, unsub)
}

// Close detaches bus subscriptions and closes the event channel.
func (q *Queue) Close() {
	for _, unsub := range q.unsubscribe {
		unsub()
	}
	q.unsubscribe = nil
	q.events.Close()
}

// CreateOptions carries the fields of a new task.
type CreateOptions struct {
	// Description is the work to perform. Required.
	Description string
	// Priority defaults to normal.
	Priority models.TaskPriority
	// TargetDefinitionID restricts assignment to agents of one definition.
	TargetDefinitionID string
	// Context carries structured input for the task.
	Context map[string]any
	// MaxRetries bounds recoverable-failure retries; nil uses the default.
	MaxRetries *int
	// Timeout is the advisory execution budget.
	Timeout time.Duration
	// CreatedBy identifies the caller requesting the work.
	CreatedBy string
	// ParentTaskID links the task to the work that spawned it.
	ParentTaskID string
}

// CreateTask adds a pending task to the queue and nudges the assignment
// sweep.
func (q *Queue) CreateTask(opts CreateOptions) (*models.QueuedTask, error) {
	if opts.Description == "" {
		return nil, fmt.Errorf("create task: description is required")
	}
	priority := opts.Priority
	if priority == "" {
		priority = models.TaskPriorityNormal
	}
	if !priority.Valid() {
		return nil, fmt.Errorf("create task: invalid priority %q", priority)
	}
	maxRetries := DefaultMaxRetries
	if opts.MaxRetries != nil {
		maxRetries = *opts.MaxRetries
	}

	task := &models.QueuedTask{
		ID:                 protocol.NewID("task"),
		Description:        opts.Description,
		Priority:           priority,
		Status:             models.TaskStatusPending,
		TargetDefinitionID: opts.TargetDefinitionID,
		Context:            opts.Context,
		MaxRetries:         maxRetries,
		Timeout:            opts.Timeout,
		CreatedBy:          opts.CreatedBy,
		CreatedAt:          time.Now(),
		ParentTaskID:       opts.ParentTaskID,
	}

	q.mu.Lock()
	q.tasks[task.ID] = task
	q.order = append(q.order, task.ID)
	snapshot := *task
	q.mu.Unlock()

	if err := q.store.PutTask(&snapshot); err != nil {
		return nil, fmt.Errorf("persist task %s: %w", task.ID, err)
	}

	q.events.Emit(Event{Type: EventTaskCreated, TaskID: task.ID, Timestamp: time.Now()})
	q.nudge()
	return &snapshot, nil
}

// assignment pairs a claimed task with its chosen agent for the
// post-sweep side effects.
type assignment struct {
	task  models.QueuedTask
	agent models.RegisteredAgent
}

// AssignPending sweeps pending tasks in insertion order and delegates
// each to an idle agent. Within one sweep an agent is claimed at most
// once, so a task is never assigned to an agent another task already
// took. Returns the assigned task ids.
func (q *Queue) AssignPending() []string {
	idle := q.registry.IdleAgents()
	if len(idle) == 0 {
		return nil
	}

	claimed := make(map[string]bool)
	pick := func(definitionID string) *models.RegisteredAgent {
		for i := range idle {
			if claimed[idle[i].Identity.ID] {
				continue
			}
			if definitionID != "" && idle[i].Identity.DefinitionID != definitionID {
				continue
			}
			return &idle[i]
		}
		return nil
	}

	now := time.Now()
	var assignments []assignment

	q.mu.Lock()
	for _, id := range q.order {
		task, exists := q.tasks[id]
		if !exists || task.Status != models.TaskStatusPending {
			continue
		}
		agent := pick(task.TargetDefinitionID)
		if agent == nil {
			continue
		}
		claimed[agent.Identity.ID] = true

		task.Status = models.TaskStatusAssigned
		task.AssignedAgentID = agent.Identity.ID
		assignedAt := now
		task.AssignedAt = &assignedAt
		assignments = append(assignments, assignment{task: *task, agent: *agent})
	}
	q.mu.Unlock()

	var assigned []string
	for _, a := range assignments {
		assigned = append(assigned, a.task.ID)

		if err := q.store.PutTask(&a.task); err != nil {
			log.Printf("[queue] persist assignment for task %s: %v", a.task.ID, err)
		}
		q.registry.UpdateStatus(a.agent.Identity.ID, models.AgentStatusBusy, a.task.ID)
		q.delegate(a.task, a.agent.Identity.ID)
		q.events.Emit(Event{
			Type:      EventTaskAssigned,
			TaskID:    a.task.ID,
			AgentID:   a.agent.Identity.ID,
			Timestamp: time.Now(),
		})
	}
	return assigned
}

// delegate publishes the task:delegate message for an assignment.
func (q *Queue) delegate(task models.QueuedTask, agentID string) {
	q.mu.RLock()
	b := q.bus
	q.mu.RUnlock()
	if b == nil {
		return
	}
	_, err := b.Publish(bus.ChannelTasks, protocol.TypeTaskDelegate, protocol.ToAgent(agentID), protocol.DelegatePayload{
		TaskID:      task.ID,
		Description: task.Description,
		Priority:    task.Priority,
		Context:     task.Context,
		Timeout:     task.Timeout,
	}, bus.PublishOptions{})
	if err != nil {
		log.Printf("[queue] publish delegate for task %s: %v", task.ID, err)
	}
}

// handleAccept moves an assigned task to in_progress.
func (q *Queue) handleAccept(agentID string, payload protocol.AcceptPayload) {
	q.mu.Lock()
	task, exists := q.tasks[payload.TaskID]
	if !exists || task.Status != models.TaskStatusAssigned {
		q.mu.Unlock()
		log.Printf("[queue] ignoring accept from %s for task %s: unknown or not assigned", agentID, payload.TaskID)
		return
	}
	task.Status = models.TaskStatusInProgress
	startedAt := time.Now()
	task.StartedAt = &startedAt
	snapshot := *task
	q.mu.Unlock()

	if err := q.store.PutTask(&snapshot); err != nil {
		log.Printf("[queue] persist accept for task %s: %v", snapshot.ID, err)
	}
	q.events.Emit(Event{Type: EventTaskStarted, TaskID: snapshot.ID, AgentID: agentID, Timestamp: time.Now()})
}

// handleResult completes a task and frees its agent.
func (q *Queue) handleResult(agentID string, payload protocol.ResultPayload) {
	q.mu.Lock()
	task, exists := q.tasks[payload.TaskID]
	if !exists || task.Status.Terminal() {
		q.mu.Unlock()
		log.Printf("[queue] ignoring result from %s for task %s: unknown or terminal", agentID, payload.TaskID)
		return
	}
	task.Status = models.TaskStatusCompleted
	task.Result = payload.Result
	completedAt := time.Now()
	task.CompletedAt = &completedAt
	snapshot := *task
	q.mu.Unlock()

	if err := q.store.PutTask(&snapshot); err != nil {
		log.Printf("[queue] persist result for task %s: %v", snapshot.ID, err)
	}
	q.registry.UpdateStatus(agentID, models.AgentStatusIdle, "")
	q.events.Emit(Event{Type: EventTaskCompleted, TaskID: snapshot.ID, AgentID: agentID, Timestamp: time.Now()})
	q.nudge()
}

// handleError retries a recoverable failure while the retry budget
// lasts; anything else fails the task. The reporting agent goes back to
// idle either way.
func (q *Queue) handleError(agentID string, payload protocol.ErrorPayload) {
	q.mu.Lock()
	task, exists := q.tasks[payload.TaskID]
	if !exists || task.Status.Terminal() {
		q.mu.Unlock()
		log.Printf("[queue] ignoring error from %s for task %s: unknown or terminal", agentID, payload.TaskID)
		return
	}

	retried := payload.Recoverable && task.RetryCount < task.MaxRetries
	if retried {
		task.Status = models.TaskStatusPending
		task.RetryCount++
		task.AssignedAgentID = ""
		task.AssignedAt = nil
		task.StartedAt = nil
	} else {
		task.Status = models.TaskStatusFailed
		task.Error = payload.Error
		completedAt := time.Now()
		task.CompletedAt = &completedAt
	}
	snapshot := *task
	q.mu.Unlock()

	if err := q.store.PutTask(&snapshot); err != nil {
		log.Printf("[queue] persist error for task %s: %v", snapshot.ID, err)
	}
	q.registry.UpdateStatus(agentID, models.AgentStatusIdle, "")

	if retried {
		q.events.Emit(Event{Type: EventTaskRetried, TaskID: snapshot.ID, AgentID: agentID, Message: payload.Error, Timestamp: time.Now()})
	} else {
		q.events.Emit(Event{Type: EventTaskFailed, TaskID: snapshot.ID, AgentID: agentID, Message: payload.Error, Timestamp: time.Now()})
	}
	q.nudge()
}

// CancelTask cancels a pending or assigned task. An in_progress task
// cannot be cancelled, only terminated by its agent. Returns whether
// the cancellation was applied.
func (q *Queue) CancelTask(id string) bool {
	q.mu.Lock()
	task, exists := q.tasks[id]
	if !exists || (task.Status != models.TaskStatusPending && task.Status != models.TaskStatusAssigned) {
		q.mu.Unlock()
		return false
	}
	agentID := task.AssignedAgentID
	task.Status = models.TaskStatusCancelled
	task.AssignedAgentID = ""
	completedAt := time.Now()
	task.CompletedAt = &completedAt
	snapshot := *task
	b := q.bus
	q.mu.Unlock()

	if err := q.store.PutTask(&snapshot); err != nil {
		log.Printf("[queue] persist cancel for task %s: %v", snapshot.ID, err)
	}
	if agentID != "" {
		if b != nil {
			if _, err := b.Publish(bus.ChannelTasks, protocol.TypeTaskTerminate, protocol.ToAgent(agentID), protocol.TerminatePayload{
				TaskID: id,
				Reason: "cancelled",
			}, bus.PublishOptions{}); err != nil {
				log.Printf("[queue] publish terminate for task %s: %v", id, err)
			}
		}
		q.registry.UpdateStatus(agentID, models.AgentStatusIdle, "")
	}
	q.events.Emit(Event{Type: EventTaskCancelled, TaskID: id, AgentID: agentID, Timestamp: time.Now()})
	return true
}

// Get retrieves a copy of a task, or nil.
func (q *Queue) Get(id string) *models.QueuedTask {
	q.mu.RLock()
	defer q.mu.RUnlock()
	task, exists := q.tasks[id]
	if !exists {
		return nil
	}
	snapshot := *task
	return &snapshot
}

// ByStatus returns copies of tasks with the given status, in insertion
// order.
func (q *Queue) ByStatus(status models.TaskStatus) []models.QueuedTask {
	q.mu.RLock()
	defer q.mu.RUnlock()
	var out []models.QueuedTask
	for _, id := range q.order {
		if task, exists := q.tasks[id]; exists && task.Status == status {
			out = append(out, *task)
		}
	}
	return out
}

// Pending returns pending tasks in insertion order.
func (q *Queue) Pending() []models.QueuedTask {
	return q.ByStatus(models.TaskStatusPending)
}

// PendingByPriority returns pending tasks ordered by priority weight,
// FIFO within a priority.
func (q *Queue) PendingByPriority() []models.QueuedTask {
	out := q.Pending()
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Priority.Weight() > out[j].Priority.Weight()
	})
	return out
}

// GetStats aggregates the queue by status.
func (q *Queue) GetStats() Stats {
	q.mu.RLock()
	defer q.mu.RUnlock()

	stats := Stats{
		Total:    len(q.tasks),
		ByStatus: make(map[models.TaskStatus]int),
	}
	now := time.Now()
	for _, task := range q.tasks {
		stats.ByStatus[task.Status]++
		stats.TotalRetries += task.RetryCount
		if task.Status == models.TaskStatusPending {
			if age := now.Sub(task.CreatedAt); age > stats.OldestPendingAge {
				stats.OldestPendingAge = age
			}
		}
	}
	return stats
}

// Run drives the assignment sweep until the context is cancelled. The
// sweep fires on a ticker and whenever the trigger channel is nudged by
// task creation or a freed agent.
func (q *Queue) Run(ctx context.Context) {
	ticker := time.NewTicker(q.assignInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			q.AssignPending()
		case <-q.trigger:
			q.AssignPending()
		}
	}
}

// Restore loads open tasks from durable storage. Tasks that were
// assigned or in progress under a previous process lifetime whose agent
// is no longer registered go back to pending; their retry count is
// untouched because the failure was ours, not the task's.
func (q *Queue) Restore() (int, error) {
	records, err := q.store.ListOpenTasks()
	if err != nil {
		return 0, fmt.Errorf("restore queue: %w", err)
	}

	var reset []models.QueuedTask
	q.mu.Lock()
	for i := range records {
		task := records[i]
		if task.AssignedAgentID != "" && q.registry.Get(task.AssignedAgentID) == nil {
			task.Status = models.TaskStatusPending
			task.AssignedAgentID = ""
			task.AssignedAt = nil
			task.StartedAt = nil
			reset = append(reset, task)
		}
		record := task
		q.tasks[task.ID] = &record
		q.order = append(q.order, task.ID)
	}
	q.mu.Unlock()

	for i := range reset {
		if err := q.store.PutTask(&reset[i]); err != nil {
			log.Printf("[queue] persist reset for task %s: %v", reset[i].ID, err)
		}
	}
	if len(records) > 0 {
		q.nudge()
	}
	return len(records), nil
}

// CleanupTerminal drops terminal tasks older than the retention window
// from memory and durable storage. Returns the purged count.
func (q *Queue) CleanupTerminal(olderThan time.Duration) (int64, error) {
	cutoff := time.Now().Add(-olderThan)

	q.mu.Lock()
	kept := q.order[:0]
	for _, id := range q.order {
		task, exists := q.tasks[id]
		if exists && task.Status.Terminal() && task.CompletedAt != nil && task.CompletedAt.Before(cutoff) {
			delete(q.tasks, id)
			continue
		}
		kept = append(kept, id)
	}
	q.order = kept
	q.mu.Unlock()

	return q.store.PurgeTerminalTasks(olderThan)
}

// nudge signals the run loop without blocking.
func (q *Queue) nudge() {
	select {
	case q.trigger <- struct{}{}:
	default:
	}
}
