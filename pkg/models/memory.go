package models

import (
	"time"
)

// MemoryEntry is one versioned value in the shared memory store.
type MemoryEntry struct {
	// Namespace groups related keys.
	Namespace string `json:"namespace"`
	// Key is the entry key within its namespace.
	Key string `json:"key"`
	// Value is the stored value. The store treats it as opaque.
	Value any `json:"value"`
	// Version increments by exactly 1 on every accepted write, starting at 1.
	Version int64 `json:"version"`
	// CreatedBy identifies the writer that created the entry.
	CreatedBy string `json:"created_by,omitempty"`
	// UpdatedBy identifies the most recent writer.
	UpdatedBy string `json:"updated_by,omitempty"`
	// CreatedAt is when the entry was first written.
	CreatedAt time.Time `json:"created_at"`
	// UpdatedAt is when the entry was last written.
	UpdatedAt time.Time `json:"updated_at"`
	// ExpiresAt, if set, is when the entry becomes logically deleted.
	ExpiresAt *time.Time `json:"expires_at,omitempty"`
}

// CompositeKey returns the namespace-qualified key ("namespace:key").
func (e *MemoryEntry) CompositeKey() string {
	return e.Namespace + ":" + e.Key
}

// Expired returns true if the entry's TTL has passed at the given time.
// Entries past their expiry are treated as absent by all read paths.
func (e *MemoryEntry) Expired(now time.Time) bool {
	return e.ExpiresAt != nil && now.After(*e.ExpiresAt)
}
