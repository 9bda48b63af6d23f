// Package protocol defines the typed message protocol agents use to
// communicate over the bus: identifiers, message types, payload variants,
// targets, and expiry rules.
package protocol

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// NewID returns a globally-unique identifier with the given prefix.
// The unix-milli time component keeps ids roughly sortable by creation
// time; the uuid suffix makes collisions operationally impossible.
func NewID(prefix string) string {
	return fmt.Sprintf("%s-%d-%s", prefix, time.Now().UnixMilli(), uuid.New().String()[:8])
}

// NewMessageID returns a unique message identifier.
func NewMessageID() string {
	return NewID("msg")
}

// NewInstanceID returns a unique agent instance identifier.
func NewInstanceID() string {
	return NewID("agent")
}
