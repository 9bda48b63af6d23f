package protocol

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/Nihal-Srivastava05/Operative-sub000/pkg/models"
)

// MessageType identifies the payload shape a message carries.
type MessageType string

const (
	// TypeTaskDelegate asks a specific agent to execute a task.
	TypeTaskDelegate MessageType = "task:delegate"
	// TypeTaskAccept acknowledges that an agent started a task.
	TypeTaskAccept MessageType = "task:accept"
	// TypeTaskResult reports successful task completion.
	TypeTaskResult MessageType = "task:result"
	// TypeTaskError reports a task failure.
	TypeTaskError MessageType = "task:error"
	// TypeTaskTerminate asks an agent to abandon a task.
	TypeTaskTerminate MessageType = "task:terminate"
	// TypeTaskStatus carries an informational progress update.
	TypeTaskStatus MessageType = "task:status"
	// TypeAgentHeartbeat is a periodic liveness touch.
	TypeAgentHeartbeat MessageType = "agent:heartbeat"
	// TypeMemoryChanged announces a shared-memory change.
	TypeMemoryChanged MessageType = "memory:changed"
	// TypeLifecycleReady announces a newly reachable agent.
	TypeLifecycleReady MessageType = "lifecycle:ready"
	// TypeLifecycleShutdown announces a departing agent.
	TypeLifecycleShutdown MessageType = "lifecycle:shutdown"
)

// Valid returns true if the message type is a known value.
func (t MessageType) Valid() bool {
	switch t {
	case TypeTaskDelegate, TypeTaskAccept, TypeTaskResult, TypeTaskError,
		TypeTaskTerminate, TypeTaskStatus, TypeAgentHeartbeat,
		TypeMemoryChanged, TypeLifecycleReady, TypeLifecycleShutdown:
		return true
	default:
		return false
	}
}

// TargetKind is the closed set of message addressing modes.
type TargetKind string

const (
	// TargetBroadcast delivers to every subscriber on the channel.
	TargetBroadcast TargetKind = "broadcast"
	// TargetCoordinator delivers to the coordinator process.
	TargetCoordinator TargetKind = "coordinator"
	// TargetAgent delivers to one specific agent instance.
	TargetAgent TargetKind = "agent"
	// TargetDefinition delivers to any agent of a given definition.
	TargetDefinition TargetKind = "definition"
)

// Target addresses a message. Use the constructors; a zero Target is
// not valid.
type Target struct {
	Kind TargetKind `json:"kind"`
	// ID is the agent instance id for TargetAgent, or the definition id
	// for TargetDefinition. Empty otherwise.
	ID string `json:"id,omitempty"`
}

// Broadcast targets every subscriber on the channel.
func Broadcast() Target { return Target{Kind: TargetBroadcast} }

// Coordinator targets the coordinator process.
func Coordinator() Target { return Target{Kind: TargetCoordinator} }

// ToAgent targets one specific agent instance.
func ToAgent(instanceID string) Target { return Target{Kind: TargetAgent, ID: instanceID} }

// ToDefinition targets any agent running the given definition.
func ToDefinition(definitionID string) Target { return Target{Kind: TargetDefinition, ID: definitionID} }

// Matches returns true if a message with this target is addressed to the
// given identity.
func (t Target) Matches(identity models.AgentIdentity) bool {
	switch t.Kind {
	case TargetBroadcast:
		return true
	case TargetCoordinator:
		return identity.ContextType == models.ContextTypeCoordinator
	case TargetAgent:
		return t.ID == identity.ID
	case TargetDefinition:
		return t.ID == identity.DefinitionID
	default:
		return false
	}
}

// Message is an immutable value object exchanged between agents.
type Message struct {
	// ID uniquely identifies the message.
	ID string `json:"id"`
	// CorrelationID links a reply to the message it answers.
	CorrelationID string `json:"correlation_id,omitempty"`
	// Type determines the payload shape.
	Type MessageType `json:"type"`
	// Source identifies the publisher.
	Source models.AgentIdentity `json:"source"`
	// Target addresses the message.
	Target Target `json:"target"`
	// Payload is the variant matching Type.
	Payload Payload `json:"payload"`
	// Timestamp is when the message was published.
	Timestamp time.Time `json:"timestamp"`
	// TTL, if non-zero, bounds how long the message may be delivered.
	TTL time.Duration `json:"ttl,omitempty"`
}

// Errors returned by message construction and validation.
var (
	ErrPayloadMismatch = errors.New("payload does not match message type")
	ErrMissingField    = errors.New("message missing required field")
)

// NewMessage constructs a message, rejecting a payload whose declared
// type disagrees with the requested message type. This is the only way
// an ill-typed message can be attempted, and it fails here rather than
// at delivery.
func NewMessage(typ MessageType, source models.AgentIdentity, target Target, payload Payload) (Message, error) {
	if payload == nil {
		return Message{}, fmt.Errorf("%w: nil payload for %s", ErrPayloadMismatch, typ)
	}
	if payload.messageType() != typ {
		return Message{}, fmt.Errorf("%w: %s payload used for %s message", ErrPayloadMismatch, payload.messageType(), typ)
	}
	return Message{
		ID:        NewMessageID(),
		Type:      typ,
		Source:    source,
		Target:    target,
		Payload:   payload,
		Timestamp: time.Now(),
	}, nil
}

// Expired returns true if the message's TTL has passed at the given
// time. Expired messages must be dropped, never delivered.
func (m Message) Expired(now time.Time) bool {
	return m.TTL > 0 && now.After(m.Timestamp.Add(m.TTL))
}

// Validate checks the required fields of an inbound message.
func (m Message) Validate() error {
	if m.ID == "" {
		return fmt.Errorf("%w: id", ErrMissingField)
	}
	if !m.Type.Valid() {
		return fmt.Errorf("%w: unknown type %q", ErrMissingField, m.Type)
	}
	if m.Source.ID == "" {
		return fmt.Errorf("%w: source id", ErrMissingField)
	}
	if m.Timestamp.IsZero() {
		return fmt.Errorf("%w: timestamp", ErrMissingField)
	}
	if m.Payload == nil {
		return fmt.Errorf("%w: payload", ErrMissingField)
	}
	if m.Payload.messageType() != m.Type {
		return fmt.Errorf("%w: %s payload on %s message", ErrPayloadMismatch, m.Payload.messageType(), m.Type)
	}
	return nil
}

// envelope is the wire form of a message; the payload is decoded in a
// second pass once the type tag is known.
type envelope struct {
	ID            string               `json:"id"`
	CorrelationID string               `json:"correlation_id,omitempty"`
	Type          MessageType          `json:"type"`
	Source        models.AgentIdentity `json:"source"`
	Target        Target               `json:"target"`
	Payload       json.RawMessage      `json:"payload"`
	Timestamp     time.Time            `json:"timestamp"`
	TTL           time.Duration        `json:"ttl,omitempty"`
}

// UnmarshalJSON decodes the envelope and then the payload variant keyed
// by the type tag.
func (m *Message) UnmarshalJSON(data []byte) error {
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return fmt.Errorf("decode message envelope: %w", err)
	}

	payload, err := decodePayload(env.Type, env.Payload)
	if err != nil {
		return err
	}

	m.ID = env.ID
	m.CorrelationID = env.CorrelationID
	m.Type = env.Type
	m.Source = env.Source
	m.Target = env.Target
	m.Payload = payload
	m.Timestamp = env.Timestamp
	m.TTL = env.TTL
	return nil
}

// decodePayload decodes a raw payload into the variant for the type.
func decodePayload(typ MessageType, raw json.RawMessage) (Payload, error) {
	if len(raw) == 0 {
		return nil, fmt.Errorf("%w: payload", ErrMissingField)
	}

	var payload Payload
	switch typ {
	case TypeTaskDelegate:
		payload = &DelegatePayload{}
	case TypeTaskAccept:
		payload = &AcceptPayload{}
	case TypeTaskResult:
		payload = &ResultPayload{}
	case TypeTaskError:
		payload = &ErrorPayload{}
	case TypeTaskTerminate:
		payload = &TerminatePayload{}
	case TypeTaskStatus:
		payload = &StatusPayload{}
	case TypeAgentHeartbeat:
		payload = &HeartbeatPayload{}
	case TypeMemoryChanged:
		payload = &MemoryChangedPayload{}
	case TypeLifecycleReady:
		payload = &ReadyPayload{}
	case TypeLifecycleShutdown:
		payload = &ShutdownPayload{}
	default:
		return nil, fmt.Errorf("%w: unknown type %q", ErrMissingField, typ)
	}

	if err := json.Unmarshal(raw, payload); err != nil {
		return nil, fmt.Errorf("decode %s payload: %w", typ, err)
	}
	return deref(payload), nil
}

// deref converts the pointer used for decoding back to the value form
// used everywhere else.
func deref(p Payload) Payload {
	switch v := p.(type) {
	case *DelegatePayload:
		return *v
	case *AcceptPayload:
		return *v
	case *ResultPayload:
		return *v
	case *ErrorPayload:
		return *v
	case *TerminatePayload:
		return *v
	case *StatusPayload:
		return *v
	case *HeartbeatPayload:
		return *v
	case *MemoryChangedPayload:
		return *v
	case *ReadyPayload:
		return *v
	case *ShutdownPayload:
		return *v
	default:
		return p
	}
}
