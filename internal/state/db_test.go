package state

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/Nihal-Srivastava05/Operative-sub000/pkg/models"
)

func openTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := Open(filepath.Join(t.TempDir(), "state.db"))
	if err != nil {
		t.Fatalf("open database: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	if err := db.Migrate(); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return db
}

func TestMigrateIdempotent(t *testing.T) {
	db := openTestDB(t)
	// A second migration pass must be a no-op.
	if err := db.Migrate(); err != nil {
		t.Fatalf("second migrate: %v", err)
	}
}

func TestAgentRoundTrip(t *testing.T) {
	db := openTestDB(t)

	now := time.Now().Truncate(time.Millisecond)
	agent := &models.RegisteredAgent{
		Identity: models.AgentIdentity{
			ID:            "agent-1",
			DefinitionID:  "researcher",
			ContextType:   models.ContextTypeTab,
			LocationHints: map[string]string{"tab_id": "42"},
		},
		Capabilities:  []string{"search", "summarize"},
		Status:        models.AgentStatusIdle,
		LastHeartbeat: now,
		RegisteredAt:  now,
	}

	if err := db.PutAgent(agent); err != nil {
		t.Fatalf("put agent: %v", err)
	}

	got, err := db.GetAgent("agent-1")
	if err != nil {
		t.Fatalf("get agent: %v", err)
	}
	if got == nil {
		t.Fatal("expected agent record")
	}
	if got.Identity.DefinitionID != "researcher" {
		t.Errorf("definition lost: %q", got.Identity.DefinitionID)
	}
	if got.Identity.LocationHints["tab_id"] != "42" {
		t.Errorf("location hints lost: %v", got.Identity.LocationHints)
	}
	if len(got.Capabilities) != 2 {
		t.Errorf("capabilities lost: %v", got.Capabilities)
	}
	if !got.LastHeartbeat.Equal(now) {
		t.Errorf("heartbeat time mismatch: got %v want %v", got.LastHeartbeat, now)
	}

	// Overwrite via upsert.
	agent.Status = models.AgentStatusBusy
	agent.CurrentTaskID = "task-1"
	if err := db.PutAgent(agent); err != nil {
		t.Fatalf("update agent: %v", err)
	}
	got, err = db.GetAgent("agent-1")
	if err != nil {
		t.Fatalf("get agent: %v", err)
	}
	if got.Status != models.AgentStatusBusy || got.CurrentTaskID != "task-1" {
		t.Errorf("upsert did not overwrite: %+v", got)
	}

	missing, err := db.GetAgent("agent-404")
	if err != nil {
		t.Fatalf("get missing agent: %v", err)
	}
	if missing != nil {
		t.Error("expected nil for unknown agent")
	}
}

func TestListLiveAgents(t *testing.T) {
	db := openTestDB(t)
	now := time.Now()

	for _, a := range []*models.RegisteredAgent{
		{Identity: models.AgentIdentity{ID: "a-1", DefinitionID: "d", ContextType: models.ContextTypeTab}, Status: models.AgentStatusIdle, LastHeartbeat: now, RegisteredAt: now},
		{Identity: models.AgentIdentity{ID: "a-2", DefinitionID: "d", ContextType: models.ContextTypeTab}, Status: models.AgentStatusBusy, LastHeartbeat: now, RegisteredAt: now},
		{Identity: models.AgentIdentity{ID: "a-3", DefinitionID: "d", ContextType: models.ContextTypeTab}, Status: models.AgentStatusTerminated, LastHeartbeat: now, RegisteredAt: now},
	} {
		if err := db.PutAgent(a); err != nil {
			t.Fatalf("put agent: %v", err)
		}
	}

	live, err := db.ListLiveAgents()
	if err != nil {
		t.Fatalf("list live agents: %v", err)
	}
	if len(live) != 2 {
		t.Errorf("expected 2 live agents, got %d", len(live))
	}

	idle := models.AgentStatusIdle
	idleAgents, err := db.ListAgents(&idle)
	if err != nil {
		t.Fatalf("list idle agents: %v", err)
	}
	if len(idleAgents) != 1 || idleAgents[0].Identity.ID != "a-1" {
		t.Errorf("unexpected idle list: %v", idleAgents)
	}
}

func TestPurgeTerminatedAgents(t *testing.T) {
	db := openTestDB(t)

	old := time.Now().Add(-48 * time.Hour)
	recent := time.Now()

	db.PutAgent(&models.RegisteredAgent{
		Identity: models.AgentIdentity{ID: "a-old", DefinitionID: "d", ContextType: models.ContextTypeTab},
		Status:   models.AgentStatusTerminated, LastHeartbeat: old, RegisteredAt: old,
	})
	db.PutAgent(&models.RegisteredAgent{
		Identity: models.AgentIdentity{ID: "a-new", DefinitionID: "d", ContextType: models.ContextTypeTab},
		Status:   models.AgentStatusTerminated, LastHeartbeat: recent, RegisteredAt: recent,
	})

	count, err := db.PurgeTerminatedAgents(24 * time.Hour)
	if err != nil {
		t.Fatalf("purge: %v", err)
	}
	if count != 1 {
		t.Errorf("expected 1 purged, got %d", count)
	}

	remaining, err := db.GetAgent("a-new")
	if err != nil || remaining == nil {
		t.Errorf("recent terminated agent should survive purge: %v %v", remaining, err)
	}
}

func TestMemoryEntryRoundTrip(t *testing.T) {
	db := openTestDB(t)

	now := time.Now().Truncate(time.Millisecond)
	expires := now.Add(time.Hour)
	entry := &models.MemoryEntry{
		Namespace: "shared",
		Key:       "plan",
		Value:     map[string]any{"steps": float64(3)},
		Version:   1,
		CreatedBy: "agent-1",
		UpdatedBy: "agent-1",
		CreatedAt: now,
		UpdatedAt: now,
		ExpiresAt: &expires,
	}

	if err := db.PutEntry(entry); err != nil {
		t.Fatalf("put entry: %v", err)
	}

	got, err := db.GetEntry("shared", "plan")
	if err != nil {
		t.Fatalf("get entry: %v", err)
	}
	if got == nil {
		t.Fatal("expected entry")
	}
	value, ok := got.Value.(map[string]any)
	if !ok {
		t.Fatalf("value type lost: %T", got.Value)
	}
	if value["steps"] != float64(3) {
		t.Errorf("value lost: %v", value)
	}
	if got.ExpiresAt == nil || !got.ExpiresAt.Equal(expires) {
		t.Errorf("expiry lost: %v", got.ExpiresAt)
	}

	deleted, err := db.DeleteEntry("shared", "plan")
	if err != nil || !deleted {
		t.Fatalf("delete entry: deleted=%v err=%v", deleted, err)
	}
	deleted, err = db.DeleteEntry("shared", "plan")
	if err != nil {
		t.Fatalf("second delete: %v", err)
	}
	if deleted {
		t.Error("second delete should report no row")
	}
}

func TestListEntriesByPrefix(t *testing.T) {
	db := openTestDB(t)
	now := time.Now()

	for _, e := range []*models.MemoryEntry{
		{Namespace: "session:1", Key: "a", Value: 1.0, Version: 1, CreatedAt: now, UpdatedAt: now},
		{Namespace: "session:2", Key: "b", Value: 2.0, Version: 1, CreatedAt: now, UpdatedAt: now},
		{Namespace: "global", Key: "c", Value: 3.0, Version: 1, CreatedAt: now, UpdatedAt: now},
	} {
		if err := db.PutEntry(e); err != nil {
			t.Fatalf("put entry: %v", err)
		}
	}

	entries, err := db.ListEntries("session:")
	if err != nil {
		t.Fatalf("list entries: %v", err)
	}
	if len(entries) != 2 {
		t.Errorf("expected 2 session entries, got %d", len(entries))
	}

	all, err := db.ListEntries("")
	if err != nil {
		t.Fatalf("list all: %v", err)
	}
	if len(all) != 3 {
		t.Errorf("expected 3 entries, got %d", len(all))
	}
}

func TestPurgeExpiredEntries(t *testing.T) {
	db := openTestDB(t)
	now := time.Now()
	past := now.Add(-time.Minute)
	future := now.Add(time.Hour)

	db.PutEntry(&models.MemoryEntry{Namespace: "ns", Key: "dead", Value: 1.0, Version: 1, CreatedAt: now, UpdatedAt: now, ExpiresAt: &past})
	db.PutEntry(&models.MemoryEntry{Namespace: "ns", Key: "live", Value: 2.0, Version: 1, CreatedAt: now, UpdatedAt: now, ExpiresAt: &future})
	db.PutEntry(&models.MemoryEntry{Namespace: "ns", Key: "forever", Value: 3.0, Version: 1, CreatedAt: now, UpdatedAt: now})

	count, err := db.PurgeExpiredEntries(now)
	if err != nil {
		t.Fatalf("purge expired: %v", err)
	}
	if count != 1 {
		t.Errorf("expected 1 purged, got %d", count)
	}
}

func TestTaskRoundTrip(t *testing.T) {
	db := openTestDB(t)

	now := time.Now().Truncate(time.Millisecond)
	started := now.Add(time.Second)
	task := &models.QueuedTask{
		ID:                 "task-1",
		Description:        "summarize the page",
		Priority:           models.TaskPriorityHigh,
		Status:             models.TaskStatusInProgress,
		AssignedAgentID:    "agent-1",
		TargetDefinitionID: "researcher",
		Context:            map[string]any{"url": "https://example.com"},
		RetryCount:         1,
		MaxRetries:         3,
		Timeout:            30 * time.Second,
		CreatedBy:          "coordinator",
		CreatedAt:          now,
		StartedAt:          &started,
		ParentTaskID:       "task-0",
	}

	if err := db.PutTask(task); err != nil {
		t.Fatalf("put task: %v", err)
	}

	got, err := db.GetTask("task-1")
	if err != nil {
		t.Fatalf("get task: %v", err)
	}
	if got == nil {
		t.Fatal("expected task")
	}
	if got.Priority != models.TaskPriorityHigh || got.RetryCount != 1 {
		t.Errorf("fields lost: %+v", got)
	}
	if got.Timeout != 30*time.Second {
		t.Errorf("timeout lost: %v", got.Timeout)
	}
	if got.StartedAt == nil || !got.StartedAt.Equal(started) {
		t.Errorf("started_at lost: %v", got.StartedAt)
	}
	if got.Context["url"] != "https://example.com" {
		t.Errorf("context lost: %v", got.Context)
	}
}

func TestListOpenTasks(t *testing.T) {
	db := openTestDB(t)
	now := time.Now()
	done := now

	for i, status := range []models.TaskStatus{
		models.TaskStatusPending, models.TaskStatusAssigned, models.TaskStatusInProgress,
		models.TaskStatusCompleted, models.TaskStatusFailed,
	} {
		task := &models.QueuedTask{
			ID:          string(rune('a'+i)) + "-task",
			Description: "work",
			Priority:    models.TaskPriorityNormal,
			Status:      status,
			CreatedAt:   now.Add(time.Duration(i) * time.Millisecond),
		}
		if status.Terminal() {
			task.CompletedAt = &done
		}
		if err := db.PutTask(task); err != nil {
			t.Fatalf("put task: %v", err)
		}
	}

	open, err := db.ListOpenTasks()
	if err != nil {
		t.Fatalf("list open: %v", err)
	}
	if len(open) != 3 {
		t.Errorf("expected 3 open tasks, got %d", len(open))
	}
}

func TestPurgeTerminalTasks(t *testing.T) {
	db := openTestDB(t)
	now := time.Now()
	old := now.Add(-48 * time.Hour)

	db.PutTask(&models.QueuedTask{ID: "t-old", Description: "d", Priority: models.TaskPriorityNormal, Status: models.TaskStatusCompleted, CreatedAt: old, CompletedAt: &old})
	db.PutTask(&models.QueuedTask{ID: "t-new", Description: "d", Priority: models.TaskPriorityNormal, Status: models.TaskStatusCompleted, CreatedAt: now, CompletedAt: &now})
	db.PutTask(&models.QueuedTask{ID: "t-open", Description: "d", Priority: models.TaskPriorityNormal, Status: models.TaskStatusPending, CreatedAt: old})

	count, err := db.PurgeTerminalTasks(24 * time.Hour)
	if err != nil {
		t.Fatalf("purge: %v", err)
	}
	if count != 1 {
		t.Errorf("expected 1 purged, got %d", count)
	}

	open, err := db.GetTask("t-open")
	if err != nil || open == nil {
		t.Error("open task must never be purged")
	}
}

func TestExecutionRoundTrip(t *testing.T) {
	db := openTestDB(t)

	now := time.Now().Truncate(time.Millisecond)
	execution := &models.WorkflowExecution{
		ID:          "exec-1",
		WorkflowID:  "wf-research",
		Status:      models.WorkflowStatusRunning,
		CurrentStep: "fetch",
		StepOutputs: map[string]any{"fetch": "page text"},
		Input:       "https://example.com",
		CreatedAt:   now,
		StartedAt:   &now,
	}

	if err := db.PutExecution(execution); err != nil {
		t.Fatalf("put execution: %v", err)
	}

	got, err := db.GetExecution("exec-1")
	if err != nil {
		t.Fatalf("get execution: %v", err)
	}
	if got == nil {
		t.Fatal("expected execution")
	}
	if got.Status != models.WorkflowStatusRunning || got.CurrentStep != "fetch" {
		t.Errorf("fields lost: %+v", got)
	}
	if got.StepOutputs["fetch"] != "page text" {
		t.Errorf("step outputs lost: %v", got.StepOutputs)
	}
	if got.Input != "https://example.com" {
		t.Errorf("input lost: %v", got.Input)
	}

	running := models.WorkflowStatusRunning
	list, err := db.ListExecutions(&running)
	if err != nil {
		t.Fatalf("list executions: %v", err)
	}
	if len(list) != 1 {
		t.Errorf("expected 1 running execution, got %d", len(list))
	}
}
