// Package spawner defines the boundary for bringing new agent
// execution contexts to life. The mechanism behind Spawn (a browser
// tab, a subprocess, a goroutine) is host-specific; the runtime only
// depends on the interface and the readiness handshake.
package spawner

import (
	"context"
	"errors"
	"time"

	"github.com/Nihal-Srivastava05/Operative-sub000/internal/bus"
	"github.com/Nihal-Srivastava05/Operative-sub000/internal/protocol"
	"github.com/Nihal-Srivastava05/Operative-sub000/pkg/models"
)

// ErrReadyTimeout indicates a spawned agent never announced readiness.
var ErrReadyTimeout = errors.New("timed out waiting for agent ready")

// SpawnConfig carries the optional parameters of a spawn request.
type SpawnConfig struct {
	// ContextType is the kind of execution context to create.
	ContextType models.ContextType
	// Capabilities the new agent should advertise.
	Capabilities []string
	// LocationHints are host-specific placement hints.
	LocationHints map[string]string
}

// Spawner creates new agent execution contexts.
type Spawner interface {
	// Spawn starts a new agent for the definition and returns its
	// identity. The agent is not necessarily reachable yet; callers
	// follow up with WaitReady.
	Spawn(ctx context.Context, definitionID string, cfg SpawnConfig) (models.AgentIdentity, error)
}

// WaitReady blocks until the instance announces lifecycle:ready on the
// system channel, the timeout elapses, or the context is cancelled.
// One shot: a timeout is the caller's cue to give up on the spawn, not
// to retry the wait.
func WaitReady(ctx context.Context, b *bus.Bus, instanceID string, timeout time.Duration) (protocol.ReadyPayload, error) {
	ready := make(chan protocol.ReadyPayload, 1)
	unsubscribe := b.Subscribe(bus.ChannelSystem, func(msg protocol.Message) {
		if payload, ok := msg.Payload.(protocol.ReadyPayload); ok {
			select {
			case ready <- payload:
			default:
			}
		}
	}, &bus.Filter{
		Types:    []protocol.MessageType{protocol.TypeLifecycleReady},
		SourceID: instanceID,
	})
	defer unsubscribe()

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case payload := <-ready:
		return payload, nil
	case <-timer.C:
		return protocol.ReadyPayload{}, ErrReadyTimeout
	case <-ctx.Done():
		return protocol.ReadyPayload{}, ctx.Err()
	}
}
