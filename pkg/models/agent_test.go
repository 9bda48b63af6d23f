package models

import "testing"

func TestContextTypeValid(t *testing.T) {
	valid := []ContextType{ContextTypeTab, ContextTypeBackground, ContextTypeWorker, ContextTypeCoordinator}
	for _, c := range valid {
		if !c.Valid() {
			t.Errorf("expected %q to be valid", c)
		}
	}

	if ContextType("popup").Valid() {
		t.Error("expected unknown context type to be invalid")
	}
	if ContextType("").Valid() {
		t.Error("expected empty context type to be invalid")
	}
}

func TestAgentStatusValid(t *testing.T) {
	valid := []AgentStatus{AgentStatusIdle, AgentStatusBusy, AgentStatusError, AgentStatusTerminated}
	for _, s := range valid {
		if !s.Valid() {
			t.Errorf("expected %q to be valid", s)
		}
	}

	if AgentStatus("sleeping").Valid() {
		t.Error("expected unknown status to be invalid")
	}
}

func TestAgentStatusTerminal(t *testing.T) {
	if !AgentStatusTerminated.Terminal() {
		t.Error("terminated should be terminal")
	}

	for _, s := range []AgentStatus{AgentStatusIdle, AgentStatusBusy, AgentStatusError} {
		if s.Terminal() {
			t.Errorf("%q should not be terminal", s)
		}
	}
}

func TestHasCapability(t *testing.T) {
	agent := &RegisteredAgent{
		Identity:     AgentIdentity{ID: "agent-1", DefinitionID: "researcher"},
		Capabilities: []string{"search", "summarize"},
	}

	if !agent.HasCapability("search") {
		t.Error("expected agent to have search capability")
	}
	if agent.HasCapability("translate") {
		t.Error("expected agent to lack translate capability")
	}

	empty := &RegisteredAgent{}
	if empty.HasCapability("anything") {
		t.Error("agent with no capabilities should match nothing")
	}
}
