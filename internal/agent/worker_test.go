package agent

import (
	"context"
	"errors"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/Nihal-Srivastava05/Operative-sub000/internal/bus"
	"github.com/Nihal-Srivastava05/Operative-sub000/internal/protocol"
	"github.com/Nihal-Srivastava05/Operative-sub000/internal/queue"
	"github.com/Nihal-Srivastava05/Operative-sub000/internal/registry"
	"github.com/Nihal-Srivastava05/Operative-sub000/internal/state"
	"github.com/Nihal-Srivastava05/Operative-sub000/pkg/models"
)

// env is a full coordinator-side stack for exercising the worker
// against real delegation traffic.
type env struct {
	transport *bus.LocalTransport
	registry  *registry.Registry
	queue     *queue.Queue
}

func newEnv(t *testing.T) *env {
	t.Helper()
	db, err := state.Open(filepath.Join(t.TempDir(), "state.db"))
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	if err := db.Migrate(); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	reg := registry.New(db)
	q := queue.New(db, reg)
	q.SetAssignInterval(5 * time.Millisecond)

	transport := bus.NewLocalTransport()
	coordBus := bus.New(transport)
	coordBus.Bind(models.AgentIdentity{ID: "coord-1", DefinitionID: "coordinator", ContextType: models.ContextTypeCoordinator})
	q.BindBus(coordBus)
	reg.BindBus(coordBus)

	ctx, cancel := context.WithCancel(context.Background())
	go q.Run(ctx)
	t.Cleanup(func() {
		cancel()
		q.Close()
		reg.Close()
	})
	return &env{transport: transport, registry: reg, queue: q}
}

func (e *env) startWorker(t *testing.T, id string, handler Handler) *Worker {
	t.Helper()
	identity := models.AgentIdentity{ID: id, DefinitionID: "worker", ContextType: models.ContextTypeBackground}
	w := NewWorker(bus.New(e.transport), identity, []string{"general"}, handler)
	w.SetHeartbeatInterval(10 * time.Millisecond)
	if err := w.Start(context.Background()); err != nil {
		t.Fatalf("start worker: %v", err)
	}
	if _, err := e.registry.Register(identity, []string{"general"}); err != nil {
		t.Fatalf("register worker: %v", err)
	}
	return w
}

func eventually(t *testing.T, timeout time.Duration, cond func() bool, message string) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal(message)
}

func TestWorkerRoundTrip(t *testing.T) {
	e := newEnv(t)
	w := e.startWorker(t, "agent-1", func(ctx context.Context, task protocol.DelegatePayload) (any, error) {
		return "handled: " + task.Description, nil
	})
	defer w.Stop("test done")

	task, err := e.queue.CreateTask(queue.CreateOptions{Description: "summarize"})
	if err != nil {
		t.Fatalf("create task: %v", err)
	}

	eventually(t, 2*time.Second, func() bool {
		current := e.queue.Get(task.ID)
		return current != nil && current.Status == models.TaskStatusCompleted
	}, "task never completed")

	got := e.queue.Get(task.ID)
	if got.Result != "handled: summarize" {
		t.Errorf("result lost: %v", got.Result)
	}
	if got.StartedAt == nil || got.CompletedAt == nil {
		t.Errorf("lifecycle timestamps missing: %+v", got)
	}

	eventually(t, time.Second, func() bool {
		agent := e.registry.Get("agent-1")
		return agent != nil && agent.Status == models.AgentStatusIdle
	}, "worker never reported idle again")
}

func TestWorkerHeartbeatsReachRegistry(t *testing.T) {
	e := newEnv(t)
	w := e.startWorker(t, "agent-1", func(ctx context.Context, task protocol.DelegatePayload) (any, error) {
		return nil, nil
	})
	defer w.Stop("test done")

	before := e.registry.Get("agent-1").LastHeartbeat
	eventually(t, time.Second, func() bool {
		return e.registry.Get("agent-1").LastHeartbeat.After(before)
	}, "heartbeat never advanced")
}

func TestWorkerRecoverableFailureIsRetried(t *testing.T) {
	e := newEnv(t)

	var attempts atomic.Int32
	w := e.startWorker(t, "agent-1", func(ctx context.Context, task protocol.DelegatePayload) (any, error) {
		if attempts.Add(1) == 1 {
			return nil, Recoverable(errors.New("transient glitch"))
		}
		return "second try worked", nil
	})
	defer w.Stop("test done")

	task, err := e.queue.CreateTask(queue.CreateOptions{Description: "flaky"})
	if err != nil {
		t.Fatalf("create task: %v", err)
	}

	eventually(t, 2*time.Second, func() bool {
		current := e.queue.Get(task.ID)
		return current != nil && current.Status == models.TaskStatusCompleted
	}, "task never completed after retry")

	got := e.queue.Get(task.ID)
	if got.RetryCount != 1 {
		t.Errorf("expected one retry, got %d", got.RetryCount)
	}
	if got.Result != "second try worked" {
		t.Errorf("result lost: %v", got.Result)
	}
}

func TestWorkerUnrecoverableFailure(t *testing.T) {
	e := newEnv(t)
	w := e.startWorker(t, "agent-1", func(ctx context.Context, task protocol.DelegatePayload) (any, error) {
		return nil, errors.New("malformed input")
	})
	defer w.Stop("test done")

	task, _ := e.queue.CreateTask(queue.CreateOptions{Description: "doomed"})
	eventually(t, 2*time.Second, func() bool {
		current := e.queue.Get(task.ID)
		return current != nil && current.Status == models.TaskStatusFailed
	}, "task never failed")

	got := e.queue.Get(task.ID)
	if got.RetryCount != 0 {
		t.Errorf("unrecoverable failure must not retry, got %d retries", got.RetryCount)
	}
	if got.Error != "malformed input" {
		t.Errorf("error message lost: %q", got.Error)
	}
}

func TestWorkerPanicFailsTask(t *testing.T) {
	e := newEnv(t)
	w := e.startWorker(t, "agent-1", func(ctx context.Context, task protocol.DelegatePayload) (any, error) {
		panic("handler bug")
	})
	defer w.Stop("test done")

	task, _ := e.queue.CreateTask(queue.CreateOptions{Description: "explosive"})
	eventually(t, 2*time.Second, func() bool {
		current := e.queue.Get(task.ID)
		return current != nil && current.Status == models.TaskStatusFailed
	}, "panicking handler should fail the task")
}

func TestWorkerHonorsTerminate(t *testing.T) {
	e := newEnv(t)

	cancelled := make(chan struct{})
	started := make(chan struct{}, 1)
	w := e.startWorker(t, "agent-1", func(ctx context.Context, task protocol.DelegatePayload) (any, error) {
		started <- struct{}{}
		<-ctx.Done()
		close(cancelled)
		return nil, ctx.Err()
	})
	defer w.Stop("test done")

	task, _ := e.queue.CreateTask(queue.CreateOptions{Description: "long running"})
	select {
	case <-started:
	case <-time.After(2 * time.Second):
		t.Fatal("task never started")
	}

	// The task is in_progress now, so CancelTask refuses; terminate is
	// only sent for assigned tasks. Simulate coordinator-side terminate
	// directly.
	coordBus := bus.New(e.transport)
	coordBus.Bind(models.AgentIdentity{ID: "coord-2", DefinitionID: "coordinator", ContextType: models.ContextTypeCoordinator})
	if _, err := coordBus.Publish(bus.ChannelTasks, protocol.TypeTaskTerminate, protocol.ToAgent("agent-1"), protocol.TerminatePayload{TaskID: task.ID, Reason: "operator abort"}, bus.PublishOptions{}); err != nil {
		t.Fatalf("publish terminate: %v", err)
	}

	select {
	case <-cancelled:
	case <-time.After(2 * time.Second):
		t.Fatal("terminate never cancelled the handler")
	}
}

func TestWorkerStopAnnouncesShutdown(t *testing.T) {
	e := newEnv(t)
	w := e.startWorker(t, "agent-1", func(ctx context.Context, task protocol.DelegatePayload) (any, error) {
		return nil, nil
	})

	if e.registry.Get("agent-1") == nil {
		t.Fatal("worker should be registered")
	}
	w.Stop("going away")

	eventually(t, time.Second, func() bool {
		return e.registry.Get("agent-1") == nil
	}, "shutdown should unregister the worker")
}

func TestRecoverableClassification(t *testing.T) {
	base := errors.New("boom")
	if IsRecoverable(base) {
		t.Error("plain errors are not recoverable")
	}
	if !IsRecoverable(Recoverable(base)) {
		t.Error("wrapped errors are recoverable")
	}
	if !errors.Is(Recoverable(base), base) {
		t.Error("wrapping must preserve the cause")
	}
	if Recoverable(nil) != nil {
		t.Error("nil stays nil")
	}
}
