// Package workflow executes multi-step task graphs: each step becomes a
// queue task, dependencies gate dispatch, and outputs flow into the
// inputs of later steps.
package workflow

import (
	"context"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/Nihal-Srivastava05/Operative-sub000/internal/graph"
	"github.com/Nihal-Srivastava05/Operative-sub000/internal/protocol"
	"github.com/Nihal-Srivastava05/Operative-sub000/internal/queue"
	"github.com/Nihal-Srivastava05/Operative-sub000/internal/state"
	"github.com/Nihal-Srivastava05/Operative-sub000/pkg/models"
)

// DefaultPollInterval is how often a dispatched step's task is checked
// for a terminal status.
const DefaultPollInterval = 250 * time.Millisecond

// Engine runs workflow definitions against the task queue. One Execute
// call owns one execution from start to terminal status.
type Engine struct {
	// queue receives one task per dispatched step.
	queue *queue.Queue
	// store persists executions at every transition.
	store state.WorkflowStore
	// executions maps execution ids to live records.
	executions map[string]*models.WorkflowExecution
	// cancelled flags executions that should stop before their next batch.
	cancelled map[string]bool
	// pollInterval is the task polling period.
	pollInterval time.Duration
	// mu protects executions and cancelled.
	mu sync.RWMutex
}

// New creates an Engine over the given queue and store.
func New(q *queue.Queue, store state.WorkflowStore) *Engine {
	return &Engine{
		queue:        q,
		store:        store,
		executions:   make(map[string]*models.WorkflowExecution),
		cancelled:    make(map[string]bool),
		pollInterval: DefaultPollInterval,
	}
}

// SetPollInterval overrides the task polling period.
func (e *Engine) SetPollInterval(d time.Duration) {
	if d > 0 {
		e.pollInterval = d
	}
}

// stepResult carries one finished step out of a batch.
type stepResult struct {
	stepID    string
	outputKey string
	value     any
	err       error
}

// Execute runs a definition to a terminal status and returns the final
// execution record. A structurally invalid definition (no steps,
// duplicate ids, unknown dependencies, cycles) fails before an
// execution is created. Step failures terminate the execution with
// status failed; they are reported on the record, not as an error.
func (e *Engine) Execute(ctx context.Context, def *models.WorkflowDefinition, input any) (*models.WorkflowExecution, error) {
	if def == nil || len(def.Steps) == 0 {
		return nil, fmt.Errorf("workflow %s has no steps", defID(def))
	}
	g := graph.New()
	if err := g.Build(def.Steps); err != nil {
		return nil, fmt.Errorf("workflow %s: %w", def.ID, err)
	}

	exec := &models.WorkflowExecution{
		ID:          protocol.NewID("wf"),
		WorkflowID:  def.ID,
		Status:      models.WorkflowStatusPending,
		StepOutputs: make(map[string]any),
		Input:       input,
		CreatedAt:   time.Now(),
	}
	e.mu.Lock()
	e.executions[exec.ID] = exec
	e.mu.Unlock()
	e.persist(exec)

	startedAt := time.Now()
	e.update(exec.ID, func(x *models.WorkflowExecution) {
		x.Status = models.WorkflowStatusRunning
		x.StartedAt = &startedAt
	})

	for {
		if e.isCancelled(exec.ID) {
			return e.finish(exec.ID, models.WorkflowStatusCancelled, "execution cancelled"), nil
		}
		if g.Pending() == 0 {
			break
		}

		ready := g.Ready()
		if len(ready) == 0 {
			// Unsatisfiable graph. The cycle check makes this unreachable
			// in practice, but the engine must never spin.
			return e.finish(exec.ID, models.WorkflowStatusFailed,
				fmt.Sprintf("workflow deadlocked: %d steps remain but none are ready", g.Pending())), nil
		}

		outputs := e.outputsSnapshot(exec.ID)
		results := make([]stepResult, len(ready))
		var wg sync.WaitGroup
		for i, stepID := range ready {
			g.MarkStarted(stepID)
			e.update(exec.ID, func(x *models.WorkflowExecution) { x.CurrentStep = stepID })

			step := g.Step(stepID)
			wg.Add(1)
			go func(i int, step *models.WorkflowStep) {
				defer wg.Done()
				results[i] = e.runStep(ctx, exec.ID, step, input, outputs)
			}(i, step)
		}
		wg.Wait()

		var failure error
		for _, r := range results {
			if r.err != nil {
				if failure == nil {
					failure = fmt.Errorf("step %s: %w", r.stepID, r.err)
				}
				continue
			}
			g.MarkComplete(r.stepID)
			e.update(exec.ID, func(x *models.WorkflowExecution) { x.StepOutputs[r.outputKey] = r.value })
		}
		if failure != nil {
			return e.finish(exec.ID, models.WorkflowStatusFailed, failure.Error()), nil
		}
	}

	e.update(exec.ID, func(x *models.WorkflowExecution) {
		x.Output = finalOutput(def, x.StepOutputs)
	})
	return e.finish(exec.ID, models.WorkflowStatusCompleted, ""), nil
}

// runStep submits one step's task and polls it to a terminal status.
func (e *Engine) runStep(ctx context.Context, execID string, step *models.WorkflowStep, input any, outputs map[string]any) stepResult {
	outputKey := step.OutputAs
	if outputKey == "" {
		outputKey = step.ID
	}
	result := stepResult{stepID: step.ID, outputKey: outputKey}

	taskContext := make(map[string]any)
	if input != nil {
		taskContext["input"] = input
	}
	for name, path := range step.InputMapping {
		// Unresolvable paths are omitted, not errors; the step decides
		// whether it can work without them.
		if value, ok := lookupPath(outputs, path); ok {
			taskContext[name] = value
		}
	}

	task, err := e.queue.CreateTask(queue.CreateOptions{
		Description:        step.Task,
		TargetDefinitionID: step.DefinitionID,
		Context:            taskContext,
		CreatedBy:          execID,
		ParentTaskID:       execID,
	})
	if err != nil {
		result.err = err
		return result
	}

	ticker := time.NewTicker(e.pollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			result.err = ctx.Err()
			return result
		case <-ticker.C:
			current := e.queue.Get(task.ID)
			if current == nil {
				result.err = fmt.Errorf("task %s disappeared", task.ID)
				return result
			}
			switch current.Status {
			case models.TaskStatusCompleted:
				result.value = current.Result
				return result
			case models.TaskStatusFailed:
				result.err = fmt.Errorf("task failed: %s", current.Error)
				return result
			case models.TaskStatusCancelled:
				result.err = fmt.Errorf("task cancelled")
				return result
			}
		}
	}
}

// Cancel flags a running execution to stop before its next batch.
// Steps already dispatched run to completion; they are not terminated
// retroactively. Returns false for unknown or terminal executions.
func (e *Engine) Cancel(executionID string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	exec, exists := e.executions[executionID]
	if !exists || exec.Status.Terminal() {
		return false
	}
	e.cancelled[executionID] = true
	return true
}

// Get retrieves a copy of an execution, or nil.
func (e *Engine) Get(executionID string) *models.WorkflowExecution {
	e.mu.RLock()
	defer e.mu.RUnlock()
	exec, exists := e.executions[executionID]
	if !exists {
		return nil
	}
	snapshot := *exec
	return &snapshot
}

// List returns copies of all known executions.
func (e *Engine) List() []models.WorkflowExecution {
	e.mu.RLock()
	defer e.mu.RUnlock()
	out := make([]models.WorkflowExecution, 0, len(e.executions))
	for _, exec := range e.executions {
		out = append(out, *exec)
	}
	return out
}

// PurgeFinished drops terminal executions older than the retention
// window from memory and durable storage.
func (e *Engine) PurgeFinished(olderThan time.Duration) (int64, error) {
	cutoff := time.Now().Add(-olderThan)

	e.mu.Lock()
	for id, exec := range e.executions {
		if exec.Status.Terminal() && exec.CompletedAt != nil && exec.CompletedAt.Before(cutoff) {
			delete(e.executions, id)
			delete(e.cancelled, id)
		}
	}
	e.mu.Unlock()

	return e.store.PurgeFinishedExecutions(olderThan)
}

// isCancelled reports whether the execution was flagged for cancellation.
func (e *Engine) isCancelled(executionID string) bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.cancelled[executionID]
}

// outputsSnapshot copies the accumulated step outputs for input mapping.
func (e *Engine) outputsSnapshot(executionID string) map[string]any {
	e.mu.RLock()
	defer e.mu.RUnlock()
	exec, exists := e.executions[executionID]
	if !exists {
		return nil
	}
	out := make(map[string]any, len(exec.StepOutputs))
	for k, v := range exec.StepOutputs {
		out[k] = v
	}
	return out
}

// update applies a mutation under the lock and persists the result.
func (e *Engine) update(executionID string, apply func(*models.WorkflowExecution)) {
	e.mu.Lock()
	exec, exists := e.executions[executionID]
	if !exists {
		e.mu.Unlock()
		return
	}
	apply(exec)
	snapshot := *exec
	e.mu.Unlock()
	e.persist(&snapshot)
}

// finish moves an execution to a terminal status and returns a copy.
func (e *Engine) finish(executionID string, status models.WorkflowStatus, message string) *models.WorkflowExecution {
	completedAt := time.Now()
	e.update(executionID, func(x *models.WorkflowExecution) {
		x.Status = status
		x.CurrentStep = ""
		x.CompletedAt = &completedAt
		if status != models.WorkflowStatusCompleted {
			x.Error = message
		}
	})
	return e.Get(executionID)
}

// persist writes an execution snapshot to durable storage.
func (e *Engine) persist(exec *models.WorkflowExecution) {
	if err := e.store.PutExecution(exec); err != nil {
		log.Printf("[workflow] persist execution %s: %v", exec.ID, err)
	}
}

// finalOutput picks the execution output: the last-declared step's
// output value when that step named one, otherwise the whole map.
func finalOutput(def *models.WorkflowDefinition, outputs map[string]any) any {
	last := def.Steps[len(def.Steps)-1]
	if last.OutputAs != "" {
		if value, ok := outputs[last.OutputAs]; ok {
			return value
		}
	}
	return outputs
}

// lookupPath resolves a dotted path ("research.topic") through nested
// string-keyed maps.
func lookupPath(m map[string]any, path string) (any, bool) {
	if m == nil {
		return nil, false
	}
	parts := strings.Split(path, ".")
	var current any = m
	for _, part := range parts {
		node, ok := current.(map[string]any)
		if !ok {
			return nil, false
		}
		current, ok = node[part]
		if !ok {
			return nil, false
		}
	}
	return current, true
}

func defID(def *models.WorkflowDefinition) string {
	if def == nil {
		return "<nil>"
	}
	return def.ID
}
