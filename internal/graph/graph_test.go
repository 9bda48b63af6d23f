package graph

import (
	"errors"
	"testing"

	"github.com/Nihal-Srivastava05/Operative-sub000/pkg/models"
)

func step(id string, deps ...string) models.WorkflowStep {
	return models.WorkflowStep{ID: id, Task: "work for " + id, DependsOn: deps}
}

func TestBuildRejectsUnknownDependency(t *testing.T) {
	g := New()
	err := g.Build([]models.WorkflowStep{step("a", "ghost")})
	if err == nil {
		t.Fatal("expected error for unknown dependency")
	}
}

func TestBuildRejectsDuplicateStep(t *testing.T) {
	g := New()
	if err := g.Build([]models.WorkflowStep{step("a"), step("a")}); err == nil {
		t.Fatal("expected error for duplicate step id")
	}
}

func TestBuildRejectsCycle(t *testing.T) {
	g := New()
	err := g.Build([]models.WorkflowStep{
		step("a", "c"),
		step("b", "a"),
		step("c", "b"),
	})
	if !errors.Is(err, ErrCycleDetected) {
		t.Fatalf("expected ErrCycleDetected, got %v", err)
	}
}

func TestSelfDependencyIsACycle(t *testing.T) {
	g := New()
	if err := g.Build([]models.WorkflowStep{step("a", "a")}); !errors.Is(err, ErrCycleDetected) {
		t.Fatalf("expected ErrCycleDetected, got %v", err)
	}
}

func TestReadyProgression(t *testing.T) {
	g := New()
	if err := g.Build([]models.WorkflowStep{
		step("a"),
		step("b", "a"),
		step("c", "a"),
		step("d", "b", "c"),
	}); err != nil {
		t.Fatalf("build: %v", err)
	}

	ready := g.Ready()
	if len(ready) != 1 || ready[0] != "a" {
		t.Fatalf("only the root should be ready, got %v", ready)
	}

	g.MarkStarted("a")
	if got := g.Ready(); len(got) != 0 {
		t.Errorf("started step must leave the ready set, got %v", got)
	}

	g.MarkComplete("a")
	ready = g.Ready()
	if len(ready) != 2 || ready[0] != "b" || ready[1] != "c" {
		t.Fatalf("b and c should unblock in declaration order, got %v", ready)
	}

	g.MarkStarted("b")
	g.MarkStarted("c")
	g.MarkComplete("b")
	if got := g.Ready(); len(got) != 0 {
		t.Errorf("d still waits on c, got %v", got)
	}

	g.MarkComplete("c")
	ready = g.Ready()
	if len(ready) != 1 || ready[0] != "d" {
		t.Fatalf("d should be ready last, got %v", ready)
	}

	g.MarkStarted("d")
	g.MarkComplete("d")
	if g.Pending() != 0 {
		t.Errorf("expected no pending steps, got %d", g.Pending())
	}
}

func TestTopologicalSort(t *testing.T) {
	g := New()
	if err := g.Build([]models.WorkflowStep{
		step("d", "b", "c"),
		step("b", "a"),
		step("c", "a"),
		step("a"),
	}); err != nil {
		t.Fatalf("build: %v", err)
	}

	order, err := g.TopologicalSort()
	if err != nil {
		t.Fatalf("sort: %v", err)
	}
	position := make(map[string]int, len(order))
	for i, id := range order {
		position[id] = i
	}
	for _, id := range []string{"a", "b", "c", "d"} {
		for _, dep := range g.Dependencies(id) {
			if position[dep] > position[id] {
				t.Errorf("dependency %s sorts after %s in %v", dep, id, order)
			}
		}
	}
}

func TestDependents(t *testing.T) {
	g := New()
	if err := g.Build([]models.WorkflowStep{
		step("a"),
		step("b", "a"),
		step("c", "a"),
	}); err != nil {
		t.Fatalf("build: %v", err)
	}

	dependents := g.Dependents("a")
	if len(dependents) != 2 {
		t.Errorf("expected 2 dependents of a, got %v", dependents)
	}
	if got := g.Dependents("c"); len(got) != 0 {
		t.Errorf("leaf should have no dependents, got %v", got)
	}
}
