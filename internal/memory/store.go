// Package memory implements the shared memory store: namespaced,
// versioned, TTL-capable key-value state with cross-process change
// notification. Optimistic concurrency is the only conflict-resolution
// mechanism; there is no locking. Callers doing read-modify-write loop:
// read, compute, write with the version just read, retry on rejection.
package memory

import (
	"fmt"
	"log"
	"sort"
	"sync"
	"time"

	"github.com/Nihal-Srivastava05/Operative-sub000/internal/bus"
	"github.com/Nihal-Srivastava05/Operative-sub000/internal/protocol"
	"github.com/Nihal-Srivastava05/Operative-sub000/internal/state"
	"github.com/Nihal-Srivastava05/Operative-sub000/pkg/models"
)

// Wildcard subscribes a change handler to every namespace.
const Wildcard = "*"

// WriteOptions carries the optional fields of a write.
type WriteOptions struct {
	// TTL, if non-zero, expires the entry that long after the write.
	TTL time.Duration
	// ExpectedVersion, if set, makes the write conditional: it is
	// rejected unless the stored version matches. Use 0 for "entry must
	// not exist".
	ExpectedVersion *int64
	// IfNotExists rejects the write when an entry already exists.
	IfNotExists bool
}

// WriteResult reports the outcome of a write. A version conflict is a
// structured failure, not an error: Applied is false, Conflict is true,
// and CurrentVersion carries the version the caller must re-read.
type WriteResult struct {
	Applied        bool
	Conflict       bool
	CurrentVersion int64
	Entry          *models.MemoryEntry
}

// ChangeEvent describes one observed mutation.
type ChangeEvent struct {
	Namespace string
	Key       string
	Operation protocol.MemoryOperation
	OldValue  any
	NewValue  any
	Version   int64
	// Remote is true when the event arrived over the bus from another
	// process rather than a local write.
	Remote bool
}

// ChangeHandler receives change events for a subscribed namespace.
type ChangeHandler func(event ChangeEvent)

// QueryOptions restricts and pages an enumeration of entries.
type QueryOptions struct {
	NamespacePrefix string
	IncludeExpired  bool
	Limit           int
	Offset          int
}

// changeSub is one registered change handler.
type changeSub struct {
	id      int
	handler ChangeHandler
}

// Store is the shared memory store. Local writes notify local handlers
// synchronously before returning, so a writer never misses its own
// effect; remote writes arrive as bus events.
type Store struct {
	db          state.MemoryStore
	bus         *bus.Bus
	handlers    map[string][]*changeSub
	nextSubID   int
	unsubscribe func()
	mu          sync.RWMutex
}

// New creates a Store over the given durable backend.
func New(db state.MemoryStore) *Store {
	return &Store{
		db:       db,
		handlers: make(map[string][]*changeSub),
	}
}

// BindBus attaches the store to the bus: local changes are broadcast on
// the memory channel, and remote change events are dispatched to local
// handlers.
func (s *Store) BindBus(b *bus.Bus) {
	s.mu.Lock()
	s.bus = b
	s.mu.Unlock()

	s.unsubscribe = b.Subscribe(bus.ChannelMemory, func(msg protocol.Message) {
		payload, ok := msg.Payload.(protocol.MemoryChangedPayload)
		if !ok {
			return
		}
		s.dispatch(ChangeEvent{
			Namespace: payload.Namespace,
			Key:       payload.Key,
			Operation: payload.Operation,
			OldValue:  payload.OldValue,
			NewValue:  payload.NewValue,
			Version:   payload.Version,
			Remote:    true,
		})
	}, &bus.Filter{Types: []protocol.MessageType{protocol.TypeMemoryChanged}})
}

// Close detaches the bus subscription.
func (s *Store) Close() {
	if s.unsubscribe != nil {
		s.unsubscribe()
		s.unsubscribe = nil
	}
}

// Read returns the value for the key, or false if absent. An entry past
// its expiry is treated as absent and purged as a side effect.
func (s *Store) Read(namespace, key string) (any, bool, error) {
	entry, err := s.liveEntry(namespace, key)
	if err != nil {
		return nil, false, err
	}
	if entry == nil {
		return nil, false, nil
	}
	return entry.Value, true, nil
}

// ReadOr returns the value for the key, or the supplied default when
// the entry is absent or expired.
func (s *Store) ReadOr(namespace, key string, fallback any) (any, error) {
	value, found, err := s.Read(namespace, key)
	if err != nil {
		return nil, err
	}
	if !found {
		return fallback, nil
	}
	return value, nil
}

// Write stores a value. The stored version increments by exactly 1 on
// every accepted write, starting at 1. A stale ExpectedVersion or an
// IfNotExists violation rejects the write with no state change.
func (s *Store) Write(namespace, key string, value any, opts WriteOptions) (WriteResult, error) {
	existing, err := s.liveEntry(namespace, key)
	if err != nil {
		return WriteResult{}, err
	}

	var currentVersion int64
	if existing != nil {
		currentVersion = existing.Version
	}

	if opts.IfNotExists && existing != nil {
		return WriteResult{Conflict: true, CurrentVersion: currentVersion}, nil
	}
	if opts.ExpectedVersion != nil && *opts.ExpectedVersion != currentVersion {
		return WriteResult{Conflict: true, CurrentVersion: currentVersion}, nil
	}

	now := time.Now()
	writer := s.writerID()
	entry := &models.MemoryEntry{
		Namespace: namespace,
		Key:       key,
		Value:     value,
		Version:   currentVersion + 1,
		CreatedBy: writer,
		UpdatedBy: writer,
		CreatedAt: now,
		UpdatedAt: now,
	}
	var oldValue any
	if existing != nil {
		entry.CreatedBy = existing.CreatedBy
		entry.CreatedAt = existing.CreatedAt
		oldValue = existing.Value
	}
	if opts.TTL > 0 {
		expires := now.Add(opts.TTL)
		entry.ExpiresAt = &expires
	}

	if err := s.db.PutEntry(entry); err != nil {
		return WriteResult{}, fmt.Errorf("write %s:%s: %w", namespace, key, err)
	}

	s.broadcast(protocol.MemoryChangedPayload{
		Namespace: namespace,
		Key:       key,
		Operation: protocol.MemoryOpWrite,
		OldValue:  oldValue,
		NewValue:  value,
		Version:   entry.Version,
	})
	s.dispatch(ChangeEvent{
		Namespace: namespace,
		Key:       key,
		Operation: protocol.MemoryOpWrite,
		OldValue:  oldValue,
		NewValue:  value,
		Version:   entry.Version,
	})

	return WriteResult{Applied: true, CurrentVersion: entry.Version, Entry: entry}, nil
}

// Delete removes an entry. Returns false if it was absent.
func (s *Store) Delete(namespace, key string) (bool, error) {
	existing, err := s.liveEntry(namespace, key)
	if err != nil {
		return false, err
	}
	if existing == nil {
		return false, nil
	}

	deleted, err := s.db.DeleteEntry(namespace, key)
	if err != nil {
		return false, fmt.Errorf("delete %s:%s: %w", namespace, key, err)
	}
	if !deleted {
		return false, nil
	}

	s.broadcast(protocol.MemoryChangedPayload{
		Namespace: namespace,
		Key:       key,
		Operation: protocol.MemoryOpDelete,
		OldValue:  existing.Value,
	})
	s.dispatch(ChangeEvent{
		Namespace: namespace,
		Key:       key,
		Operation: protocol.MemoryOpDelete,
		OldValue:  existing.Value,
	})
	return true, nil
}

// Has reports whether a live entry exists for the key.
func (s *Store) Has(namespace, key string) (bool, error) {
	entry, err := s.liveEntry(namespace, key)
	if err != nil {
		return false, err
	}
	return entry != nil, nil
}

// GetMetadata returns everything about an entry except its value, or
// nil if the entry is absent or expired.
func (s *Store) GetMetadata(namespace, key string) (*models.MemoryEntry, error) {
	entry, err := s.liveEntry(namespace, key)
	if err != nil || entry == nil {
		return nil, err
	}
	meta := *entry
	meta.Value = nil
	return &meta, nil
}

// Keys returns the live keys in a namespace, sorted.
func (s *Store) Keys(namespace string) ([]string, error) {
	entries, err := s.db.ListEntries(namespace)
	if err != nil {
		return nil, fmt.Errorf("keys in %s: %w", namespace, err)
	}

	now := time.Now()
	var keys []string
	for i := range entries {
		if entries[i].Namespace != namespace {
			continue
		}
		if entries[i].Expired(now) {
			continue
		}
		keys = append(keys, entries[i].Key)
	}
	sort.Strings(keys)
	return keys, nil
}

// Query enumerates entries by namespace prefix with paging. Expired
// entries are excluded unless IncludeExpired is set.
func (s *Store) Query(opts QueryOptions) ([]models.MemoryEntry, error) {
	entries, err := s.db.ListEntries(opts.NamespacePrefix)
	if err != nil {
		return nil, fmt.Errorf("query entries: %w", err)
	}

	now := time.Now()
	var filtered []models.MemoryEntry
	for i := range entries {
		if !opts.IncludeExpired && entries[i].Expired(now) {
			continue
		}
		filtered = append(filtered, entries[i])
	}

	if opts.Offset > 0 {
		if opts.Offset >= len(filtered) {
			return nil, nil
		}
		filtered = filtered[opts.Offset:]
	}
	if opts.Limit > 0 && opts.Limit < len(filtered) {
		filtered = filtered[:opts.Limit]
	}
	return filtered, nil
}

// OnChange registers a handler for changes in a namespace, or every
// namespace with the Wildcard. The returned function removes the
// subscription; calling it more than once is safe.
func (s *Store) OnChange(namespace string, handler ChangeHandler) func() {
	s.mu.Lock()
	s.nextSubID++
	sub := &changeSub{id: s.nextSubID, handler: handler}
	s.handlers[namespace] = append(s.handlers[namespace], sub)
	s.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			s.mu.Lock()
			defer s.mu.Unlock()
			subs := s.handlers[namespace]
			for i, existing := range subs {
				if existing.id == sub.id {
					s.handlers[namespace] = append(subs[:i], subs[i+1:]...)
					break
				}
			}
			if len(s.handlers[namespace]) == 0 {
				delete(s.handlers, namespace)
			}
		})
	}
}

// liveEntry loads an entry and applies expiry: an expired entry is
// purged and reported as absent.
func (s *Store) liveEntry(namespace, key string) (*models.MemoryEntry, error) {
	entry, err := s.db.GetEntry(namespace, key)
	if err != nil {
		return nil, fmt.Errorf("read %s:%s: %w", namespace, key, err)
	}
	if entry == nil {
		return nil, nil
	}
	if entry.Expired(time.Now()) {
		if _, err := s.db.DeleteEntry(namespace, key); err != nil {
			log.Printf("[memory] purge expired entry %s:%s: %v", namespace, key, err)
		}
		return nil, nil
	}
	return entry, nil
}

// writerID returns the bound bus identity's instance id, if any.
func (s *Store) writerID() string {
	s.mu.RLock()
	b := s.bus
	s.mu.RUnlock()
	if b == nil {
		return ""
	}
	identity, ok := b.Identity()
	if !ok {
		return ""
	}
	return identity.ID
}

// broadcast publishes a change event for other processes. Broadcast
// failures are logged, not propagated: the local write already took
// effect.
func (s *Store) broadcast(payload protocol.MemoryChangedPayload) {
	s.mu.RLock()
	b := s.bus
	s.mu.RUnlock()
	if b == nil {
		return
	}
	if _, err := b.Publish(bus.ChannelMemory, protocol.TypeMemoryChanged, protocol.Broadcast(), payload, bus.PublishOptions{}); err != nil {
		log.Printf("[memory] broadcast change %s:%s: %v", payload.Namespace, payload.Key, err)
	}
}

// dispatch invokes scoped and wildcard handlers synchronously.
func (s *Store) dispatch(event ChangeEvent) {
	s.mu.RLock()
	subs := make([]*changeSub, 0, len(s.handlers[event.Namespace])+len(s.handlers[Wildcard]))
	subs = append(subs, s.handlers[event.Namespace]...)
	subs = append(subs, s.handlers[Wildcard]...)
	s.mu.RUnlock()

	for _, sub := range subs {
		s.invoke(sub, event)
	}
}

// invoke runs one handler, containing panics so a misbehaving handler
// cannot break the write path.
func (s *Store) invoke(sub *changeSub, event ChangeEvent) {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("[memory] change handler panic on %s:%s: %v", event.Namespace, event.Key, r)
		}
	}()
	sub.handler(event)
}
