// Package graph provides a dependency graph for workflow step
// scheduling.
package graph

import (
	"errors"
	"fmt"
	"sync"

	"github.com/Nihal-Srivastava05/Operative-sub000/pkg/models"
)

// ErrCycleDetected indicates a circular dependency among workflow steps.
var ErrCycleDetected = errors.New("circular dependency detected")

// DependencyGraph is a directed acyclic graph of workflow steps.
// Steps are nodes, and edges represent "blocked by" relationships.
type DependencyGraph struct {
	// nodes maps step ID to the step itself.
	nodes map[string]*models.WorkflowStep
	// order holds step IDs in declaration order so Ready is deterministic.
	order []string
	// edges maps step ID to IDs of steps it depends on (is blocked by).
	edges map[string][]string
	// started tracks steps that have been dispatched.
	started map[string]bool
	// completed tracks steps that have finished.
	completed map[string]bool
	mu        sync.RWMutex
}

// New creates a new empty dependency graph.
func New() *DependencyGraph {
	return &DependencyGraph{
		nodes:     make(map[string]*models.WorkflowStep),
		edges:     make(map[string][]string),
		started:   make(map[string]bool),
		completed: make(map[string]bool),
	}
}

// Build constructs the graph from a slice of steps. Returns an error if
// a step ID repeats, a dependency references an unknown step, or the
// dependencies form a cycle.
func (g *DependencyGraph) Build(steps []models.WorkflowStep) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	for i := range steps {
		step := &steps[i]
		if _, exists := g.nodes[step.ID]; exists {
			return fmt.Errorf("duplicate step id %s", step.ID)
		}
		g.nodes[step.ID] = step
		g.order = append(g.order, step.ID)
		g.edges[step.ID] = nil
	}

	for i := range steps {
		step := &steps[i]
		for _, depID := range step.DependsOn {
			if _, exists := g.nodes[depID]; !exists {
				return fmt.Errorf("step %s depends on unknown step %s", step.ID, depID)
			}
			g.edges[step.ID] = append(g.edges[step.ID], depID)
		}
	}

	if g.hasCycleLocked() {
		return ErrCycleDetected
	}
	return nil
}

// HasCycle returns true if the graph contains a circular dependency.
// Uses depth-first search with coloring to detect back edges.
func (g *DependencyGraph) HasCycle() bool {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.hasCycleLocked()
}

// hasCycleLocked is the internal implementation that assumes the lock is held.
func (g *DependencyGraph) hasCycleLocked() bool {
	// Color states: 0 = white (unvisited), 1 = gray (in progress), 2 = black (done).
	colors := make(map[string]int, len(g.nodes))

	var visit func(id string) bool
	visit = func(id string) bool {
		colors[id] = 1 // Mark as in progress.

		for _, depID := range g.edges[id] {
			switch colors[depID] {
			case 1:
				// Found a back edge - cycle detected.
				return true
			case 0:
				if visit(depID) {
					return true
				}
			}
			// color == 2 means already processed, skip.
		}

		colors[id] = 2 // Mark as done.
		return false
	}

	for _, id := range g.order {
		if colors[id] == 0 {
			if visit(id) {
				return true
			}
		}
	}
	return false
}

// TopologicalSort returns step IDs in an order where all dependencies
// come before the steps that depend on them.
// Returns an error if the graph contains a cycle.
func (g *DependencyGraph) TopologicalSort() ([]string, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()

	if g.hasCycleLocked() {
		return nil, ErrCycleDetected
	}

	visited := make(map[string]bool, len(g.nodes))
	var result []string

	var visit func(id string)
	visit = func(id string) {
		if visited[id] {
			return
		}
		visited[id] = true

		// Visit all dependencies first.
		for _, depID := range g.edges[id] {
			visit(depID)
		}
		result = append(result, id)
	}

	for _, id := range g.order {
		visit(id)
	}
	return result, nil
}

// Ready returns the IDs of steps whose dependencies are all complete
// and that have not been started, in declaration order. These steps can
// run in parallel.
func (g *DependencyGraph) Ready() []string {
	g.mu.RLock()
	defer g.mu.RUnlock()

	var ready []string
	for _, id := range g.order {
		if g.started[id] || g.completed[id] {
			continue
		}
		satisfied := true
		for _, depID := range g.edges[id] {
			if !g.completed[depID] {
				satisfied = false
				break
			}
		}
		if satisfied {
			ready = append(ready, id)
		}
	}
	return ready
}

// MarkStarted records that a step was dispatched, removing it from
// subsequent Ready sets.
func (g *DependencyGraph) MarkStarted(stepID string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.started[stepID] = true
}

// MarkComplete records that a step finished, unblocking its dependents.
func (g *DependencyGraph) MarkComplete(stepID string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.completed[stepID] = true
}

// Step returns the step for a given ID, or nil if not found.
func (g *DependencyGraph) Step(stepID string) *models.WorkflowStep {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.nodes[stepID]
}

// Size returns the number of steps in the graph.
func (g *DependencyGraph) Size() int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return len(g.nodes)
}

// Pending returns the number of steps that have not completed.
func (g *DependencyGraph) Pending() int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return len(g.nodes) - len(g.completed)
}

// Dependencies returns the IDs of steps the given step depends on.
func (g *DependencyGraph) Dependencies(stepID string) []string {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.edges[stepID]
}

// Dependents returns the IDs of steps that depend on the given step.
func (g *DependencyGraph) Dependents(stepID string) []string {
	g.mu.RLock()
	defer g.mu.RUnlock()

	var dependents []string
	for _, id := range g.order {
		for _, depID := range g.edges[id] {
			if depID == stepID {
				dependents = append(dependents, id)
				break
			}
		}
	}
	return dependents
}
