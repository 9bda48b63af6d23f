package spawner

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/Nihal-Srivastava05/Operative-sub000/internal/bus"
	"github.com/Nihal-Srivastava05/Operative-sub000/internal/protocol"
	"github.com/Nihal-Srivastava05/Operative-sub000/pkg/models"
)

func testBuses(t *testing.T) (*bus.Bus, *bus.Bus) {
	t.Helper()
	transport := bus.NewLocalTransport()

	coordBus := bus.New(transport)
	coordBus.Bind(models.AgentIdentity{ID: "coord-1", DefinitionID: "coordinator", ContextType: models.ContextTypeCoordinator})

	agentBus := bus.New(transport)
	agentBus.Bind(models.AgentIdentity{ID: "agent-1", DefinitionID: "researcher", ContextType: models.ContextTypeTab})
	return coordBus, agentBus
}

func TestWaitReady(t *testing.T) {
	coordBus, agentBus := testBuses(t)

	go func() {
		time.Sleep(10 * time.Millisecond)
		agentBus.Publish(bus.ChannelSystem, protocol.TypeLifecycleReady, protocol.Broadcast(), protocol.ReadyPayload{Capabilities: []string{"search"}}, bus.PublishOptions{})
	}()

	payload, err := WaitReady(context.Background(), coordBus, "agent-1", time.Second)
	if err != nil {
		t.Fatalf("wait ready: %v", err)
	}
	if len(payload.Capabilities) != 1 || payload.Capabilities[0] != "search" {
		t.Errorf("ready payload lost capabilities: %+v", payload)
	}
}

func TestWaitReadyTimeout(t *testing.T) {
	coordBus, _ := testBuses(t)

	_, err := WaitReady(context.Background(), coordBus, "agent-1", 20*time.Millisecond)
	if !errors.Is(err, ErrReadyTimeout) {
		t.Fatalf("expected ErrReadyTimeout, got %v", err)
	}
}

func TestWaitReadyIgnoresOtherSources(t *testing.T) {
	coordBus, agentBus := testBuses(t)

	go func() {
		time.Sleep(5 * time.Millisecond)
		// Ready from the wrong instance must not satisfy the wait.
		agentBus.Publish(bus.ChannelSystem, protocol.TypeLifecycleReady, protocol.Broadcast(), protocol.ReadyPayload{}, bus.PublishOptions{})
	}()

	_, err := WaitReady(context.Background(), coordBus, "agent-other", 50*time.Millisecond)
	if !errors.Is(err, ErrReadyTimeout) {
		t.Fatalf("expected timeout when only other agents report ready, got %v", err)
	}
}

func TestWaitReadyHonorsContext(t *testing.T) {
	coordBus, _ := testBuses(t)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(5 * time.Millisecond)
		cancel()
	}()

	_, err := WaitReady(ctx, coordBus, "agent-1", time.Second)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context cancellation, got %v", err)
	}
}
