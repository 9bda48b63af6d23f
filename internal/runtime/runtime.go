// Package runtime assembles the orchestration stack: storage, bus,
// registry, shared memory, task queue, and workflow engine, wired into
// one explicit context object. Nothing here is a singleton; two
// Runtimes in one process stay fully isolated.
package runtime

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/Nihal-Srivastava05/Operative-sub000/internal/bus"
	"github.com/Nihal-Srivastava05/Operative-sub000/internal/config"
	"github.com/Nihal-Srivastava05/Operative-sub000/internal/memory"
	"github.com/Nihal-Srivastava05/Operative-sub000/internal/protocol"
	"github.com/Nihal-Srivastava05/Operative-sub000/internal/queue"
	"github.com/Nihal-Srivastava05/Operative-sub000/internal/registry"
	"github.com/Nihal-Srivastava05/Operative-sub000/internal/state"
	"github.com/Nihal-Srivastava05/Operative-sub000/internal/workflow"
	"github.com/Nihal-Srivastava05/Operative-sub000/pkg/models"
)

// Options carries the construction parameters not covered by config.
type Options struct {
	// StorePath is the SQLite path; empty falls back to the config's
	// storage path, then to the project default under .operative/.
	StorePath string
	// Transport is the bus transport; nil creates a process-local one.
	Transport bus.Transport
	// LogPath enables file-backed debug logging when non-empty.
	LogPath string
}

// Runtime owns the coordinator-side components and their lifecycles.
type Runtime struct {
	cfg       *config.Config
	db        *state.DB
	transport bus.Transport
	bus       *bus.Bus
	registry  *registry.Registry
	memory    *memory.Store
	queue     *queue.Queue
	engine    *workflow.Engine
	logger    *DebugLogger

	cancel context.CancelFunc
	wg     sync.WaitGroup
	mu     sync.Mutex
}

// New builds a Runtime from config and options. The returned runtime is
// fully wired and restored from durable state but not yet running;
// call Start.
func New(cfg *config.Config, opts Options) (*Runtime, error) {
	if cfg == nil {
		cfg = config.Default()
	}

	storePath := opts.StorePath
	if storePath == "" {
		storePath = cfg.Storage.Path
	}
	if storePath == "" {
		storePath = state.ProjectDBPath(".")
	}

	db, err := state.Open(storePath)
	if err != nil {
		return nil, fmt.Errorf("open state store: %w", err)
	}
	if err := db.Migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate state store: %w", err)
	}

	logger, err := NewDebugLogger(opts.LogPath)
	if err != nil {
		db.Close()
		return nil, err
	}

	transport := opts.Transport
	if transport == nil {
		transport = bus.NewLocalTransport()
	}

	coordBus := bus.New(transport)
	coordBus.SetRecentLogSize(cfg.Bus.RecentLogSize)
	coordBus.Bind(models.AgentIdentity{
		ID:           protocol.NewID("coord"),
		DefinitionID: "coordinator",
		ContextType:  models.ContextTypeCoordinator,
	})

	reg := registry.New(db)
	reg.SetHeartbeatTimeout(cfg.Registry.HeartbeatTimeout)
	reg.BindBus(coordBus)
	restored, err := reg.Restore()
	if err != nil {
		db.Close()
		return nil, err
	}
	logger.Log("restored %d agent records", restored)

	mem := memory.New(db)
	mem.BindBus(coordBus)

	q := queue.New(db, reg)
	q.SetAssignInterval(cfg.Queue.AssignInterval)
	q.BindBus(coordBus)
	reloaded, err := q.Restore()
	if err != nil {
		db.Close()
		return nil, err
	}
	logger.Log("restored %d open tasks", reloaded)

	engine := workflow.New(q, db)
	engine.SetPollInterval(cfg.Workflow.PollInterval)

	return &Runtime{
		cfg:       cfg,
		db:        db,
		transport: transport,
		bus:       coordBus,
		registry:  reg,
		memory:    mem,
		queue:     q,
		engine:    engine,
		logger:    logger,
	}, nil
}

// Start launches the background loops: task assignment, registry
// staleness sweeps, and periodic retention cleanup.
func (r *Runtime) Start(ctx context.Context) {
	runCtx, cancel := context.WithCancel(ctx)
	r.mu.Lock()
	r.cancel = cancel
	r.mu.Unlock()

	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		r.queue.Run(runCtx)
	}()

	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		ticker := time.NewTicker(r.cfg.Registry.SweepInterval)
		defer ticker.Stop()
		for {
			select {
			case <-runCtx.Done():
				return
			case <-ticker.C:
				if demoted := r.registry.SweepStale(time.Now()); len(demoted) > 0 {
					r.logger.Log("demoted stale agents: %v", demoted)
				}
			}
		}
	}()

	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		ticker := time.NewTicker(r.cfg.Queue.CleanupInterval)
		defer ticker.Stop()
		for {
			select {
			case <-runCtx.Done():
				return
			case <-ticker.C:
				r.cleanup()
			}
		}
	}()
}

// cleanup applies the retention windows to every durable collection.
func (r *Runtime) cleanup() {
	if n, err := r.queue.CleanupTerminal(r.cfg.Queue.TaskRetention); err != nil {
		r.logger.Log("cleanup tasks: %v", err)
	} else if n > 0 {
		r.logger.Log("purged %d terminal tasks", n)
	}
	if n, err := r.registry.PurgeTerminated(r.cfg.Registry.Retention); err != nil {
		r.logger.Log("cleanup agents: %v", err)
	} else if n > 0 {
		r.logger.Log("purged %d terminated agents", n)
	}
	if n, err := r.engine.PurgeFinished(r.cfg.Queue.TaskRetention); err != nil {
		r.logger.Log("cleanup executions: %v", err)
	} else if n > 0 {
		r.logger.Log("purged %d finished executions", n)
	}
	if n, err := r.db.PurgeExpiredEntries(time.Now()); err != nil {
		r.logger.Log("cleanup memory: %v", err)
	} else if n > 0 {
		r.logger.Log("purged %d expired memory entries", n)
	}
}

// Stop shuts the runtime down in reverse construction order.
func (r *Runtime) Stop() {
	r.mu.Lock()
	cancel := r.cancel
	r.cancel = nil
	r.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	r.wg.Wait()

	r.queue.Close()
	r.memory.Close()
	r.registry.Close()
	r.logger.Close()
	r.db.Close()
}

// Config returns the effective configuration.
func (r *Runtime) Config() *config.Config { return r.cfg }

// DB returns the durable store.
func (r *Runtime) DB() *state.DB { return r.db }

// Transport returns the bus transport, for attaching in-process agents.
func (r *Runtime) Transport() bus.Transport { return r.transport }

// Bus returns the coordinator's bus.
func (r *Runtime) Bus() *bus.Bus { return r.bus }

// Registry returns the agent registry.
func (r *Runtime) Registry() *registry.Registry { return r.registry }

// Memory returns the shared memory store.
func (r *Runtime) Memory() *memory.Store { return r.memory }

// Queue returns the task queue.
func (r *Runtime) Queue() *queue.Queue { return r.queue }

// Workflows returns the workflow engine.
func (r *Runtime) Workflows() *workflow.Engine { return r.engine }
