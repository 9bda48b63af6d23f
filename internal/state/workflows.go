package state

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/Nihal-Srivastava05/Operative-sub000/pkg/models"
)

// PutExecution inserts or overwrites a workflow execution record.
func (db *DB) PutExecution(e *models.WorkflowExecution) error {
	stepOutputs, err := encodeJSON(e.StepOutputs)
	if err != nil {
		return fmt.Errorf("put execution %s: %w", e.ID, err)
	}
	input, err := encodeJSON(e.Input)
	if err != nil {
		return fmt.Errorf("put execution %s: %w", e.ID, err)
	}
	output, err := encodeJSON(e.Output)
	if err != nil {
		return fmt.Errorf("put execution %s: %w", e.ID, err)
	}

	_, err = db.Exec(`
		INSERT INTO workflow_executions (id, workflow_id, status, current_step, step_outputs, input, output, error, created_at, started_at, completed_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			workflow_id = excluded.workflow_id,
			status = excluded.status,
			current_step = excluded.current_step,
			step_outputs = excluded.step_outputs,
			input = excluded.input,
			output = excluded.output,
			error = excluded.error,
			started_at = excluded.started_at,
			completed_at = excluded.completed_at
	`, e.ID, e.WorkflowID, string(e.Status), e.CurrentStep, stepOutputs, input, output, e.Error,
		formatTime(e.CreatedAt), formatNullableTime(e.StartedAt), formatNullableTime(e.CompletedAt))
	if err != nil {
		return fmt.Errorf("put execution %s: %w", e.ID, err)
	}
	return nil
}

// GetExecution retrieves a workflow execution by id.
// Returns nil if no record exists.
func (db *DB) GetExecution(id string) (*models.WorkflowExecution, error) {
	row := db.QueryRow(executionSelect+" WHERE id = ?", id)

	execution, err := scanExecution(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get execution %s: %w", id, err)
	}
	return execution, nil
}

// ListExecutions returns all executions, optionally filtered by status,
// oldest first.
func (db *DB) ListExecutions(status *models.WorkflowStatus) ([]models.WorkflowExecution, error) {
	var rows *sql.Rows
	var err error
	if status != nil {
		rows, err = db.Query(executionSelect+" WHERE status = ? ORDER BY created_at", string(*status))
	} else {
		rows, err = db.Query(executionSelect + " ORDER BY created_at")
	}
	if err != nil {
		return nil, fmt.Errorf("list executions: %w", err)
	}
	defer rows.Close()

	var executions []models.WorkflowExecution
	for rows.Next() {
		e, err := scanExecution(rows)
		if err != nil {
			return nil, fmt.Errorf("scan execution: %w", err)
		}
		executions = append(executions, *e)
	}
	return executions, rows.Err()
}

// PurgeFinishedExecutions deletes terminal executions older than the
// retention window. Returns the number deleted.
func (db *DB) PurgeFinishedExecutions(olderThan time.Duration) (int64, error) {
	cutoff := formatTime(time.Now().Add(-olderThan))
	result, err := db.Exec(`
		DELETE FROM workflow_executions WHERE status IN (?, ?, ?) AND completed_at IS NOT NULL AND completed_at < ?
	`, string(models.WorkflowStatusCompleted), string(models.WorkflowStatusFailed), string(models.WorkflowStatusCancelled), cutoff)
	if err != nil {
		return 0, fmt.Errorf("purge finished executions: %w", err)
	}
	count, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("get rows affected: %w", err)
	}
	return count, nil
}

const executionSelect = `
	SELECT id, workflow_id, status, current_step, step_outputs, input, output, error, created_at, started_at, completed_at
	FROM workflow_executions
`

func scanExecution(row rowScanner) (*models.WorkflowExecution, error) {
	var e models.WorkflowExecution
	var currentStep, stepOutputs, input, output, execErr sql.NullString
	var createdAt string
	var startedAt, completedAt sql.NullString

	err := row.Scan(&e.ID, &e.WorkflowID, &e.Status, &currentStep, &stepOutputs, &input, &output, &execErr,
		&createdAt, &startedAt, &completedAt)
	if err != nil {
		return nil, err
	}

	e.CurrentStep = currentStep.String
	if err := decodeJSON(stepOutputs, &e.StepOutputs); err != nil {
		return nil, err
	}
	if err := decodeJSON(input, &e.Input); err != nil {
		return nil, err
	}
	if err := decodeJSON(output, &e.Output); err != nil {
		return nil, err
	}
	e.Error = execErr.String
	e.CreatedAt, _ = parseTime(createdAt)
	e.StartedAt = parseNullableTime(startedAt)
	e.CompletedAt = parseNullableTime(completedAt)
	return &e, nil
}
