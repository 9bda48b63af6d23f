package state

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/Nihal-Srivastava05/Operative-sub000/pkg/models"
)

// PutTask inserts or overwrites a task record.
func (db *DB) PutTask(t *models.QueuedTask) error {
	context, err := encodeJSON(t.Context)
	if err != nil {
		return fmt.Errorf("put task %s: %w", t.ID, err)
	}
	result, err := encodeJSON(t.Result)
	if err != nil {
		return fmt.Errorf("put task %s: %w", t.ID, err)
	}

	_, err = db.Exec(`
		INSERT INTO task_queue (id, description, priority, status, assigned_agent_id, target_definition_id,
			context, result, error, retry_count, max_retries, timeout_ms, created_by,
			created_at, assigned_at, started_at, completed_at, parent_task_id)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			description = excluded.description,
			priority = excluded.priority,
			status = excluded.status,
			assigned_agent_id = excluded.assigned_agent_id,
			target_definition_id = excluded.target_definition_id,
			context = excluded.context,
			result = excluded.result,
			error = excluded.error,
			retry_count = excluded.retry_count,
			max_retries = excluded.max_retries,
			timeout_ms = excluded.timeout_ms,
			created_by = excluded.created_by,
			assigned_at = excluded.assigned_at,
			started_at = excluded.started_at,
			completed_at = excluded.completed_at,
			parent_task_id = excluded.parent_task_id
	`, t.ID, t.Description, string(t.Priority), string(t.Status), t.AssignedAgentID, t.TargetDefinitionID,
		context, result, t.Error, t.RetryCount, t.MaxRetries, t.Timeout.Milliseconds(), t.CreatedBy,
		formatTime(t.CreatedAt), formatNullableTime(t.AssignedAt), formatNullableTime(t.StartedAt),
		formatNullableTime(t.CompletedAt), t.ParentTaskID)
	if err != nil {
		return fmt.Errorf("put task %s: %w", t.ID, err)
	}
	return nil
}

// GetTask retrieves a task by id. Returns nil if no record exists.
func (db *DB) GetTask(id string) (*models.QueuedTask, error) {
	row := db.QueryRow(taskSelect+" WHERE id = ?", id)

	task, err := scanTask(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get task %s: %w", id, err)
	}
	return task, nil
}

// ListTasksByStatus returns all tasks with the given status, oldest first.
func (db *DB) ListTasksByStatus(status models.TaskStatus) ([]models.QueuedTask, error) {
	rows, err := db.Query(taskSelect+" WHERE status = ? ORDER BY created_at", string(status))
	if err != nil {
		return nil, fmt.Errorf("list tasks by status: %w", err)
	}
	defer rows.Close()
	return collectTasks(rows)
}

// ListOpenTasks returns all tasks that have not reached a terminal
// status, oldest first.
func (db *DB) ListOpenTasks() ([]models.QueuedTask, error) {
	rows, err := db.Query(taskSelect+" WHERE status IN (?, ?, ?) ORDER BY created_at",
		string(models.TaskStatusPending), string(models.TaskStatusAssigned), string(models.TaskStatusInProgress))
	if err != nil {
		return nil, fmt.Errorf("list open tasks: %w", err)
	}
	defer rows.Close()
	return collectTasks(rows)
}

// DeleteTask removes a task record by id.
func (db *DB) DeleteTask(id string) error {
	_, err := db.Exec("DELETE FROM task_queue WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("delete task %s: %w", id, err)
	}
	return nil
}

// PurgeTerminalTasks deletes completed, failed, and cancelled tasks
// older than the retention window. Returns the number deleted.
func (db *DB) PurgeTerminalTasks(olderThan time.Duration) (int64, error) {
	cutoff := formatTime(time.Now().Add(-olderThan))
	result, err := db.Exec(`
		DELETE FROM task_queue WHERE status IN (?, ?, ?) AND completed_at IS NOT NULL AND completed_at < ?
	`, string(models.TaskStatusCompleted), string(models.TaskStatusFailed), string(models.TaskStatusCancelled), cutoff)
	if err != nil {
		return 0, fmt.Errorf("purge terminal tasks: %w", err)
	}
	count, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("get rows affected: %w", err)
	}
	return count, nil
}

const taskSelect = `
	SELECT id, description, priority, status, assigned_agent_id, target_definition_id,
		context, result, error, retry_count, max_retries, timeout_ms, created_by,
		created_at, assigned_at, started_at, completed_at, parent_task_id
	FROM task_queue
`

func scanTask(row rowScanner) (*models.QueuedTask, error) {
	var t models.QueuedTask
	var assignedAgentID, targetDefinitionID, context, result, taskErr, createdBy, parentTaskID sql.NullString
	var createdAt string
	var assignedAt, startedAt, completedAt sql.NullString
	var timeoutMS int64

	err := row.Scan(&t.ID, &t.Description, &t.Priority, &t.Status, &assignedAgentID, &targetDefinitionID,
		&context, &result, &taskErr, &t.RetryCount, &t.MaxRetries, &timeoutMS, &createdBy,
		&createdAt, &assignedAt, &startedAt, &completedAt, &parentTaskID)
	if err != nil {
		return nil, err
	}

	t.AssignedAgentID = assignedAgentID.String
	t.TargetDefinitionID = targetDefinitionID.String
	if err := decodeJSON(context, &t.Context); err != nil {
		return nil, err
	}
	if err := decodeJSON(result, &t.Result); err != nil {
		return nil, err
	}
	t.Error = taskErr.String
	t.CreatedBy = createdBy.String
	t.Timeout = time.Duration(timeoutMS) * time.Millisecond
	t.CreatedAt, _ = parseTime(createdAt)
	t.AssignedAt = parseNullableTime(assignedAt)
	t.StartedAt = parseNullableTime(startedAt)
	t.CompletedAt = parseNullableTime(completedAt)
	t.ParentTaskID = parentTaskID.String
	return &t, nil
}

func collectTasks(rows *sql.Rows) ([]models.QueuedTask, error) {
	var tasks []models.QueuedTask
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, fmt.Errorf("scan task: %w", err)
		}
		tasks = append(tasks, *t)
	}
	return tasks, rows.Err()
}
