// Package agent implements the agent-side worker runtime: the loop
// that receives delegated tasks over the bus, runs a handler, and
// reports results, heartbeats, and lifecycle transitions back to the
// coordinator.
package agent

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/Nihal-Srivastava05/Operative-sub000/internal/bus"
	"github.com/Nihal-Srivastava05/Operative-sub000/internal/protocol"
	"github.com/Nihal-Srivastava05/Operative-sub000/pkg/models"
)

// DefaultHeartbeatInterval is how often a running worker announces
// liveness on the system channel.
const DefaultHeartbeatInterval = 30 * time.Second

// Handler executes one delegated task. The context is cancelled when
// the coordinator terminates the task or the worker stops.
type Handler func(ctx context.Context, task protocol.DelegatePayload) (any, error)

// Worker is one agent instance: it binds an identity to a bus,
// announces readiness, and serves delegations until stopped.
type Worker struct {
	identity     models.AgentIdentity
	bus          *bus.Bus
	handler      Handler
	capabilities []string

	heartbeatInterval time.Duration

	// status and currentTaskID mirror what the worker reports upstream.
	status        models.AgentStatus
	currentTaskID string
	// cancelTask aborts the running handler on task:terminate.
	cancelTask context.CancelFunc

	unsubscribe []func()
	stop        context.CancelFunc
	wg          sync.WaitGroup
	mu          sync.Mutex
}

// NewWorker creates a Worker for the identity. The bus is bound to the
// identity on Start.
func NewWorker(b *bus.Bus, identity models.AgentIdentity, capabilities []string, handler Handler) *Worker {
	return &Worker{
		identity:          identity,
		bus:               b,
		handler:           handler,
		capabilities:      capabilities,
		heartbeatInterval: DefaultHeartbeatInterval,
		status:            models.AgentStatusIdle,
	}
}

// SetHeartbeatInterval overrides the heartbeat period.
func (w *Worker) SetHeartbeatInterval(d time.Duration) {
	if d > 0 {
		w.heartbeatInterval = d
	}
}

// Identity returns the worker's identity.
func (w *Worker) Identity() models.AgentIdentity {
	return w.identity
}

// Status returns the worker's self-reported status.
func (w *Worker) Status() models.AgentStatus {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.status
}

// Start binds the identity, announces lifecycle:ready, and begins
// serving delegations and heartbeats. It returns immediately; task
// handlers run on their own goroutines.
func (w *Worker) Start(ctx context.Context) error {
	w.bus.Bind(w.identity)

	runCtx, cancel := context.WithCancel(ctx)
	w.mu.Lock()
	w.stop = cancel
	w.mu.Unlock()

	unsub := w.bus.Subscribe(bus.ChannelTasks, func(msg protocol.Message) {
		switch payload := msg.Payload.(type) {
		case protocol.DelegatePayload:
			w.onDelegate(runCtx, payload)
		case protocol.TerminatePayload:
			w.onTerminate(payload)
		}
	}, &bus.Filter{Types: []protocol.MessageType{protocol.TypeTaskDelegate, protocol.TypeTaskTerminate}})
	w.unsubscribe = append(w.unsubscribe, unsub)

	if _, err := w.bus.Publish(bus.ChannelSystem, protocol.TypeLifecycleReady, protocol.Broadcast(), protocol.ReadyPayload{Capabilities: w.capabilities}, bus.PublishOptions{}); err != nil {
		cancel()
		return err
	}

	w.wg.Add(1)
	go w.heartbeatLoop(runCtx)
	return nil
}

// Stop announces lifecycle:shutdown and tears the worker down. Any
// running handler is cancelled.
func (w *Worker) Stop(reason string) {
	w.mu.Lock()
	stop := w.stop
	cancelTask := w.cancelTask
	w.mu.Unlock()

	if cancelTask != nil {
		cancelTask()
	}
	if stop != nil {
		stop()
	}
	for _, unsub := range w.unsubscribe {
		unsub()
	}
	w.unsubscribe = nil
	w.wg.Wait()

	if _, err := w.bus.Publish(bus.ChannelSystem, protocol.TypeLifecycleShutdown, protocol.Broadcast(), protocol.ShutdownPayload{Reason: reason}, bus.PublishOptions{}); err != nil {
		log.Printf("[worker %s] publish shutdown: %v", w.identity.ID, err)
	}
}

// onDelegate accepts a task and runs the handler on its own goroutine.
func (w *Worker) onDelegate(ctx context.Context, payload protocol.DelegatePayload) {
	w.mu.Lock()
	if w.status == models.AgentStatusBusy {
		w.mu.Unlock()
		// The queue should never double-book; if it happens, refuse
		// recoverably so the task goes back to pending.
		w.publishError(payload.TaskID, "worker busy", true)
		return
	}
	taskCtx, cancel := context.WithCancel(ctx)
	w.status = models.AgentStatusBusy
	w.currentTaskID = payload.TaskID
	w.cancelTask = cancel
	w.mu.Unlock()

	if _, err := w.bus.Publish(bus.ChannelTasks, protocol.TypeTaskAccept, protocol.Coordinator(), protocol.AcceptPayload{TaskID: payload.TaskID}, bus.PublishOptions{}); err != nil {
		log.Printf("[worker %s] publish accept: %v", w.identity.ID, err)
	}

	w.wg.Add(1)
	go func() {
		defer w.wg.Done()
		defer cancel()

		result, err := w.runHandler(taskCtx, payload)

		w.mu.Lock()
		w.status = models.AgentStatusIdle
		w.currentTaskID = ""
		w.cancelTask = nil
		w.mu.Unlock()

		if err != nil {
			w.publishError(payload.TaskID, err.Error(), IsRecoverable(err))
			return
		}
		if _, err := w.bus.Publish(bus.ChannelTasks, protocol.TypeTaskResult, protocol.Coordinator(), protocol.ResultPayload{TaskID: payload.TaskID, Result: result}, bus.PublishOptions{}); err != nil {
			log.Printf("[worker %s] publish result: %v", w.identity.ID, err)
		}
	}()
}

// runHandler invokes the handler, containing panics as task failures.
func (w *Worker) runHandler(ctx context.Context, payload protocol.DelegatePayload) (result any, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = &taskPanicError{value: r}
		}
	}()
	return w.handler(ctx, payload)
}

// onTerminate cancels the running handler if the terminate targets it.
func (w *Worker) onTerminate(payload protocol.TerminatePayload) {
	w.mu.Lock()
	cancel := w.cancelTask
	match := w.currentTaskID == payload.TaskID
	w.mu.Unlock()

	if match && cancel != nil {
		cancel()
	}
}

// heartbeatLoop announces liveness until the worker stops.
func (w *Worker) heartbeatLoop(ctx context.Context) {
	defer w.wg.Done()
	ticker := time.NewTicker(w.heartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			w.mu.Lock()
			payload := protocol.HeartbeatPayload{Status: w.status, CurrentTaskID: w.currentTaskID}
			w.mu.Unlock()
			if _, err := w.bus.Publish(bus.ChannelSystem, protocol.TypeAgentHeartbeat, protocol.Broadcast(), payload, bus.PublishOptions{}); err != nil {
				log.Printf("[worker %s] publish heartbeat: %v", w.identity.ID, err)
			}
		}
	}
}

func (w *Worker) publishError(taskID, message string, recoverable bool) {
	if _, err := w.bus.Publish(bus.ChannelTasks, protocol.TypeTaskError, protocol.Coordinator(), protocol.ErrorPayload{
		TaskID:      taskID,
		Error:       message,
		Recoverable: recoverable,
	}, bus.PublishOptions{}); err != nil {
		log.Printf("[worker %s] publish error: %v", w.identity.ID, err)
	}
}
