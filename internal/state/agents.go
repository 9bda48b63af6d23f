package state

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/Nihal-Srivastava05/Operative-sub000/pkg/models"
)

// PutAgent inserts or overwrites an agent record.
func (db *DB) PutAgent(a *models.RegisteredAgent) error {
	hints, err := encodeJSON(a.Identity.LocationHints)
	if err != nil {
		return fmt.Errorf("put agent %s: %w", a.Identity.ID, err)
	}
	capabilities, err := encodeJSON(a.Capabilities)
	if err != nil {
		return fmt.Errorf("put agent %s: %w", a.Identity.ID, err)
	}

	_, err = db.Exec(`
		INSERT INTO agent_states (id, definition_id, context_type, location_hints, capabilities, status, last_heartbeat, current_task_id, registered_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			definition_id = excluded.definition_id,
			context_type = excluded.context_type,
			location_hints = excluded.location_hints,
			capabilities = excluded.capabilities,
			status = excluded.status,
			last_heartbeat = excluded.last_heartbeat,
			current_task_id = excluded.current_task_id,
			registered_at = excluded.registered_at
	`, a.Identity.ID, a.Identity.DefinitionID, string(a.Identity.ContextType), hints, capabilities,
		string(a.Status), formatTime(a.LastHeartbeat), a.CurrentTaskID, formatTime(a.RegisteredAt))
	if err != nil {
		return fmt.Errorf("put agent %s: %w", a.Identity.ID, err)
	}
	return nil
}

// GetAgent retrieves an agent record by instance id.
// Returns nil if no record exists.
func (db *DB) GetAgent(id string) (*models.RegisteredAgent, error) {
	row := db.QueryRow(`
		SELECT id, definition_id, context_type, location_hints, capabilities, status, last_heartbeat, current_task_id, registered_at
		FROM agent_states WHERE id = ?
	`, id)

	agent, err := scanAgent(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get agent %s: %w", id, err)
	}
	return agent, nil
}

// ListAgents returns all agent records, optionally filtered by status.
func (db *DB) ListAgents(status *models.AgentStatus) ([]models.RegisteredAgent, error) {
	query := `
		SELECT id, definition_id, context_type, location_hints, capabilities, status, last_heartbeat, current_task_id, registered_at
		FROM agent_states
	`
	var rows *sql.Rows
	var err error
	if status != nil {
		rows, err = db.Query(query+" WHERE status = ?", string(*status))
	} else {
		rows, err = db.Query(query)
	}
	if err != nil {
		return nil, fmt.Errorf("list agents: %w", err)
	}
	defer rows.Close()

	return collectAgents(rows)
}

// ListLiveAgents returns all agent records that are not terminated.
func (db *DB) ListLiveAgents() ([]models.RegisteredAgent, error) {
	rows, err := db.Query(`
		SELECT id, definition_id, context_type, location_hints, capabilities, status, last_heartbeat, current_task_id, registered_at
		FROM agent_states WHERE status != ?
	`, string(models.AgentStatusTerminated))
	if err != nil {
		return nil, fmt.Errorf("list live agents: %w", err)
	}
	defer rows.Close()

	return collectAgents(rows)
}

// DeleteAgent removes an agent record by id.
func (db *DB) DeleteAgent(id string) error {
	_, err := db.Exec("DELETE FROM agent_states WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("delete agent %s: %w", id, err)
	}
	return nil
}

// PurgeTerminatedAgents deletes terminated records whose last heartbeat
// is older than the retention window. Returns the number deleted.
func (db *DB) PurgeTerminatedAgents(olderThan time.Duration) (int64, error) {
	cutoff := formatTime(time.Now().Add(-olderThan))
	result, err := db.Exec(`
		DELETE FROM agent_states WHERE status = ? AND last_heartbeat < ?
	`, string(models.AgentStatusTerminated), cutoff)
	if err != nil {
		return 0, fmt.Errorf("purge terminated agents: %w", err)
	}

	count, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("get rows affected: %w", err)
	}
	return count, nil
}

// rowScanner abstracts sql.Row and sql.Rows for shared scan logic.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanAgent(row rowScanner) (*models.RegisteredAgent, error) {
	var a models.RegisteredAgent
	var contextType, lastHeartbeat, registeredAt string
	var hints, capabilities, currentTaskID sql.NullString

	err := row.Scan(&a.Identity.ID, &a.Identity.DefinitionID, &contextType, &hints, &capabilities,
		&a.Status, &lastHeartbeat, &currentTaskID, &registeredAt)
	if err != nil {
		return nil, err
	}

	a.Identity.ContextType = models.ContextType(contextType)
	if err := decodeJSON(hints, &a.Identity.LocationHints); err != nil {
		return nil, err
	}
	if err := decodeJSON(capabilities, &a.Capabilities); err != nil {
		return nil, err
	}
	a.CurrentTaskID = currentTaskID.String
	a.LastHeartbeat, _ = parseTime(lastHeartbeat)
	a.RegisteredAt, _ = parseTime(registeredAt)
	return &a, nil
}

func collectAgents(rows *sql.Rows) ([]models.RegisteredAgent, error) {
	var agents []models.RegisteredAgent
	for rows.Next() {
		a, err := scanAgent(rows)
		if err != nil {
			return nil, fmt.Errorf("scan agent: %w", err)
		}
		agents = append(agents, *a)
	}
	return agents, rows.Err()
}
