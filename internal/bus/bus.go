// Package bus implements the publish/subscribe message bus agents use to
// communicate. Delivery is best-effort and at-most-once per subscriber:
// no acknowledgement, no persistence, no redelivery. Callers needing
// reliability build it above this layer.
package bus

import (
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/Nihal-Srivastava05/Operative-sub000/internal/protocol"
	"github.com/Nihal-Srivastava05/Operative-sub000/pkg/models"
)

// Standard channel names.
const (
	// ChannelSystem carries lifecycle and heartbeat traffic.
	ChannelSystem = "system"
	// ChannelTasks carries task delegation and lifecycle replies.
	ChannelTasks = "tasks"
	// ChannelMemory carries shared-memory change events.
	ChannelMemory = "memory"
)

// DefaultRecentLogSize bounds the rolling diagnostic log of recent messages.
const DefaultRecentLogSize = 100

// ErrNotBound is returned when Publish is called before an identity is
// bound. Publishing without an identity is a programming error; it fails
// loudly instead of silently dropping.
var ErrNotBound = errors.New("bus: publish before identity bound")

// Handler receives messages delivered on a subscribed channel.
type Handler func(msg protocol.Message)

// PublishOptions carries the optional fields of a publish.
type PublishOptions struct {
	// TTL bounds how long the message may be delivered. Zero means no expiry.
	TTL time.Duration
	// CorrelationID links this message to the one it answers.
	CorrelationID string
}

// subscription is one registered handler on a channel.
type subscription struct {
	id      int
	handler Handler
	filter  *Filter
}

// Bus is one process's endpoint on the message fabric. It is bound to at
// most one agent identity; messages published by that identity are never
// delivered back to this bus's own subscribers.
type Bus struct {
	mu        sync.RWMutex
	identity  *models.AgentIdentity
	transport Transport
	subs      map[string][]*subscription
	nextSubID int
	recent    *recentLog
}

// New creates a bus attached to the given transport. A nil transport is
// allowed for standalone use; published messages are then only recorded
// in the recent log.
func New(transport Transport) *Bus {
	b := &Bus{
		transport: transport,
		subs:      make(map[string][]*subscription),
		recent:    newRecentLog(DefaultRecentLogSize),
	}
	if transport != nil {
		transport.Attach(b)
	}
	return b
}

// SetRecentLogSize resizes the rolling diagnostic log.
func (b *Bus) SetRecentLogSize(n int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.recent = newRecentLog(n)
}

// Bind associates the bus with the publishing identity. It must be
// called before Publish.
func (b *Bus) Bind(identity models.AgentIdentity) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.identity = &identity
}

// Identity returns the bound identity, or false if none is bound.
func (b *Bus) Identity() (models.AgentIdentity, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.identity == nil {
		return models.AgentIdentity{}, false
	}
	return *b.identity, true
}

// Subscribe registers a handler for messages on the channel. The
// returned function removes the subscription; calling it more than once
// is safe.
func (b *Bus) Subscribe(channel string, handler Handler, filter *Filter) func() {
	b.mu.Lock()
	b.nextSubID++
	sub := &subscription{id: b.nextSubID, handler: handler, filter: filter}
	b.subs[channel] = append(b.subs[channel], sub)
	b.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			b.mu.Lock()
			defer b.mu.Unlock()
			subs := b.subs[channel]
			for i, s := range subs {
				if s.id == sub.id {
					b.subs[channel] = append(subs[:i], subs[i+1:]...)
					break
				}
			}
			if len(b.subs[channel]) == 0 {
				delete(b.subs, channel)
			}
		})
	}
}

// Publish constructs a message from the bound identity and hands it to
// the transport for fan-out. The publisher's own subscribers never see
// the message; the recent log records it regardless.
func (b *Bus) Publish(channel string, typ protocol.MessageType, target protocol.Target, payload protocol.Payload, opts PublishOptions) (protocol.Message, error) {
	b.mu.RLock()
	identity := b.identity
	transport := b.transport
	b.mu.RUnlock()

	if identity == nil {
		return protocol.Message{}, ErrNotBound
	}

	msg, err := protocol.NewMessage(typ, *identity, target, payload)
	if err != nil {
		return protocol.Message{}, fmt.Errorf("publish on %s: %w", channel, err)
	}
	msg.TTL = opts.TTL
	msg.CorrelationID = opts.CorrelationID

	b.recent.add(msg)

	if transport != nil {
		if err := transport.Publish(channel, msg); err != nil {
			return protocol.Message{}, fmt.Errorf("publish on %s: %w", channel, err)
		}
	}
	return msg, nil
}

// deliver dispatches an inbound message to matching local subscribers.
// Expired messages, the bus's own messages, and messages addressed to a
// different identity are dropped.
func (b *Bus) deliver(channel string, msg protocol.Message) {
	if msg.Expired(time.Now()) {
		log.Printf("[bus] dropping expired message %s on %s", msg.ID, channel)
		return
	}

	b.mu.RLock()
	identity := b.identity
	subs := make([]*subscription, len(b.subs[channel]))
	copy(subs, b.subs[channel])
	b.mu.RUnlock()

	if identity != nil {
		// Self-delivery is never performed.
		if msg.Source.ID == identity.ID {
			return
		}
		if !msg.Target.Matches(*identity) {
			return
		}
	}

	b.recent.add(msg)

	for _, sub := range subs {
		if sub.filter != nil && !sub.filter.Matches(msg) {
			continue
		}
		b.invoke(sub, msg)
	}
}

// invoke runs one handler, containing panics so a misbehaving subscriber
// cannot take down delivery to the rest.
func (b *Bus) invoke(sub *subscription, msg protocol.Message) {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("[bus] handler panic on message %s: %v", msg.ID, r)
		}
	}()
	sub.handler(msg)
}

// Receive decodes and validates raw inbound data from a wire transport.
// Malformed input is logged and discarded, never delivered to handlers.
func (b *Bus) Receive(channel string, data []byte) {
	var msg protocol.Message
	if err := json.Unmarshal(data, &msg); err != nil {
		log.Printf("[bus] discarding malformed message on %s: %v", channel, err)
		return
	}
	if err := msg.Validate(); err != nil {
		log.Printf("[bus] discarding invalid message on %s: %v", channel, err)
		return
	}
	b.deliver(channel, msg)
}

// Recent returns a copy of the rolling message log, oldest first. It
// includes the bus's own published messages.
func (b *Bus) Recent() []protocol.Message {
	return b.recent.snapshot()
}
