package memory

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/Nihal-Srivastava05/Operative-sub000/internal/bus"
	"github.com/Nihal-Srivastava05/Operative-sub000/internal/protocol"
	"github.com/Nihal-Srivastava05/Operative-sub000/internal/state"
	"github.com/Nihal-Srivastava05/Operative-sub000/pkg/models"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	db, err := state.Open(filepath.Join(t.TempDir(), "state.db"))
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	if err := db.Migrate(); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return New(db)
}

func version(v int64) *int64 { return &v }

func TestWriteVersioning(t *testing.T) {
	s := openTestStore(t)

	// First write creates version 1.
	res, err := s.Write("shared", "x", 1, WriteOptions{})
	if err != nil {
		t.Fatalf("write: %v", err)
	}
	if !res.Applied || res.CurrentVersion != 1 {
		t.Fatalf("first write: expected applied at version 1, got %+v", res)
	}

	// A conditional write against the current version succeeds.
	res, err = s.Write("shared", "x", 2, WriteOptions{ExpectedVersion: version(1)})
	if err != nil {
		t.Fatalf("write: %v", err)
	}
	if !res.Applied || res.CurrentVersion != 2 {
		t.Fatalf("second write: expected applied at version 2, got %+v", res)
	}

	// Reusing the stale version is rejected without changing anything.
	res, err = s.Write("shared", "x", 3, WriteOptions{ExpectedVersion: version(1)})
	if err != nil {
		t.Fatalf("write: %v", err)
	}
	if res.Applied || !res.Conflict {
		t.Fatalf("stale write should be rejected, got %+v", res)
	}
	if res.CurrentVersion != 2 {
		t.Errorf("conflict should report current version 2, got %d", res.CurrentVersion)
	}

	value, found, err := s.Read("shared", "x")
	if err != nil || !found {
		t.Fatalf("read back: found=%v err=%v", found, err)
	}
	if value != float64(2) {
		t.Errorf("rejected write must not change the value, got %v", value)
	}
}

func TestWriteIfNotExists(t *testing.T) {
	s := openTestStore(t)

	res, err := s.Write("ns", "k", "first", WriteOptions{IfNotExists: true})
	if err != nil || !res.Applied {
		t.Fatalf("initial create should apply: %+v err=%v", res, err)
	}

	res, err = s.Write("ns", "k", "second", WriteOptions{IfNotExists: true})
	if err != nil {
		t.Fatalf("write: %v", err)
	}
	if res.Applied || !res.Conflict || res.CurrentVersion != 1 {
		t.Errorf("create over existing entry should conflict, got %+v", res)
	}
}

func TestExpectedVersionZeroMeansAbsent(t *testing.T) {
	s := openTestStore(t)

	// Version 0 asserts the entry does not exist yet.
	res, err := s.Write("ns", "k", "v", WriteOptions{ExpectedVersion: version(0)})
	if err != nil || !res.Applied {
		t.Fatalf("expected create to apply: %+v err=%v", res, err)
	}

	res, err = s.Write("ns", "k", "v2", WriteOptions{ExpectedVersion: version(0)})
	if err != nil {
		t.Fatalf("write: %v", err)
	}
	if res.Applied || !res.Conflict {
		t.Errorf("version 0 against an existing entry should conflict, got %+v", res)
	}
}

func TestReadMissingAndDefault(t *testing.T) {
	s := openTestStore(t)

	_, found, err := s.Read("ns", "missing")
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if found {
		t.Error("missing key should not be found")
	}

	value, err := s.ReadOr("ns", "missing", "fallback")
	if err != nil {
		t.Fatalf("read or: %v", err)
	}
	if value != "fallback" {
		t.Errorf("expected fallback, got %v", value)
	}
}

func TestTTLExpiryTreatedAsAbsent(t *testing.T) {
	s := openTestStore(t)

	if _, err := s.Write("ns", "short", "v", WriteOptions{TTL: time.Millisecond}); err != nil {
		t.Fatalf("write: %v", err)
	}
	time.Sleep(5 * time.Millisecond)

	if _, found, _ := s.Read("ns", "short"); found {
		t.Error("expired entry should read as absent")
	}
	if has, _ := s.Has("ns", "short"); has {
		t.Error("expired entry should not be reported by Has")
	}

	// A write over the expired entry starts a fresh version lineage.
	res, err := s.Write("ns", "short", "v2", WriteOptions{})
	if err != nil || !res.Applied {
		t.Fatalf("rewrite: %+v err=%v", res, err)
	}
	if res.CurrentVersion != 1 {
		t.Errorf("write over expired entry should restart at version 1, got %d", res.CurrentVersion)
	}
}

func TestDelete(t *testing.T) {
	s := openTestStore(t)
	s.Write("ns", "k", "v", WriteOptions{})

	deleted, err := s.Delete("ns", "k")
	if err != nil || !deleted {
		t.Fatalf("delete: deleted=%v err=%v", deleted, err)
	}

	deleted, err = s.Delete("ns", "k")
	if err != nil {
		t.Fatalf("delete: %v", err)
	}
	if deleted {
		t.Error("second delete should report absence")
	}
}

func TestKeysAndMetadata(t *testing.T) {
	s := openTestStore(t)
	s.Write("ns", "b", 2, WriteOptions{})
	s.Write("ns", "a", 1, WriteOptions{})
	s.Write("ns2", "c", 3, WriteOptions{})

	keys, err := s.Keys("ns")
	if err != nil {
		t.Fatalf("keys: %v", err)
	}
	if len(keys) != 2 || keys[0] != "a" || keys[1] != "b" {
		t.Errorf("expected sorted keys [a b], got %v", keys)
	}

	meta, err := s.GetMetadata("ns", "a")
	if err != nil || meta == nil {
		t.Fatalf("metadata: %+v err=%v", meta, err)
	}
	if meta.Value != nil {
		t.Error("metadata must not carry the value")
	}
	if meta.Version != 1 {
		t.Errorf("expected version 1, got %d", meta.Version)
	}
}

func TestQueryPrefixAndPaging(t *testing.T) {
	s := openTestStore(t)
	s.Write("app:alpha", "k1", 1, WriteOptions{})
	s.Write("app:alpha", "k2", 2, WriteOptions{})
	s.Write("app:beta", "k1", 3, WriteOptions{})
	s.Write("other", "k1", 4, WriteOptions{})

	entries, err := s.Query(QueryOptions{NamespacePrefix: "app:"})
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	if len(entries) != 3 {
		t.Fatalf("expected 3 entries under app:, got %d", len(entries))
	}

	page, err := s.Query(QueryOptions{NamespacePrefix: "app:", Offset: 1, Limit: 1})
	if err != nil {
		t.Fatalf("query page: %v", err)
	}
	if len(page) != 1 {
		t.Fatalf("expected 1 entry in page, got %d", len(page))
	}
	if page[0].Key != "k2" {
		t.Errorf("paging broke ordering, got %s:%s", page[0].Namespace, page[0].Key)
	}

	empty, err := s.Query(QueryOptions{NamespacePrefix: "app:", Offset: 10})
	if err != nil {
		t.Fatalf("query past end: %v", err)
	}
	if len(empty) != 0 {
		t.Errorf("offset past the end should return nothing, got %d", len(empty))
	}
}

func TestOnChangeScoping(t *testing.T) {
	s := openTestStore(t)

	var scoped, wildcard []ChangeEvent
	s.OnChange("ns", func(e ChangeEvent) { scoped = append(scoped, e) })
	unsub := s.OnChange(Wildcard, func(e ChangeEvent) { wildcard = append(wildcard, e) })

	s.Write("ns", "k", 1, WriteOptions{})
	s.Write("other", "k", 2, WriteOptions{})
	s.Delete("ns", "k")

	if len(scoped) != 2 {
		t.Fatalf("scoped handler: expected 2 events, got %d", len(scoped))
	}
	if scoped[0].Operation != protocol.MemoryOpWrite || scoped[1].Operation != protocol.MemoryOpDelete {
		t.Errorf("unexpected operations: %+v", scoped)
	}
	if scoped[1].OldValue != float64(1) {
		t.Errorf("delete event should carry old value, got %v", scoped[1].OldValue)
	}
	if len(wildcard) != 3 {
		t.Errorf("wildcard handler: expected 3 events, got %d", len(wildcard))
	}

	// Handlers run before Write returns, so a writer observes its own effect.
	for _, e := range scoped {
		if e.Remote {
			t.Error("local change should not be marked remote")
		}
	}

	unsub()
	unsub() // idempotent
	s.Write("ns", "k2", 3, WriteOptions{})
	if len(wildcard) != 3 {
		t.Error("unsubscribed handler should not fire")
	}
	if len(scoped) != 3 {
		t.Error("scoped handler should keep firing")
	}
}

func TestRemoteChangeEvents(t *testing.T) {
	db, err := state.Open(filepath.Join(t.TempDir(), "state.db"))
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	defer db.Close()
	if err := db.Migrate(); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	transport := bus.NewLocalTransport()

	coordBus := bus.New(transport)
	coordBus.Bind(models.AgentIdentity{ID: "coord-1", DefinitionID: "coordinator", ContextType: models.ContextTypeCoordinator})
	coordStore := New(db)
	coordStore.BindBus(coordBus)
	defer coordStore.Close()

	agentBus := bus.New(transport)
	agentBus.Bind(models.AgentIdentity{ID: "agent-1", DefinitionID: "researcher", ContextType: models.ContextTypeTab})
	agentStore := New(db)
	agentStore.BindBus(agentBus)
	defer agentStore.Close()

	var coordEvents, agentEvents []ChangeEvent
	coordStore.OnChange(Wildcard, func(e ChangeEvent) { coordEvents = append(coordEvents, e) })
	agentStore.OnChange(Wildcard, func(e ChangeEvent) { agentEvents = append(agentEvents, e) })

	res, err := agentStore.Write("shared", "plan", "draft", WriteOptions{})
	if err != nil || !res.Applied {
		t.Fatalf("write: %+v err=%v", res, err)
	}

	// The writer sees a local event; the other process sees a remote one.
	if len(agentEvents) != 1 || agentEvents[0].Remote {
		t.Fatalf("writer should see one local event, got %+v", agentEvents)
	}
	if len(coordEvents) != 1 {
		t.Fatalf("peer should see one event, got %d", len(coordEvents))
	}
	remote := coordEvents[0]
	if !remote.Remote {
		t.Error("peer event should be marked remote")
	}
	if remote.Namespace != "shared" || remote.Key != "plan" || remote.Version != 1 {
		t.Errorf("remote event fields wrong: %+v", remote)
	}
	if remote.NewValue != "draft" {
		t.Errorf("remote event should carry the new value, got %v", remote.NewValue)
	}

	// The writer's identity is recorded on the entry.
	entry, err := db.GetEntry("shared", "plan")
	if err != nil || entry == nil {
		t.Fatalf("entry: %v", err)
	}
	if entry.UpdatedBy != "agent-1" {
		t.Errorf("expected writer identity recorded, got %q", entry.UpdatedBy)
	}
}
