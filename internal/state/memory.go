package state

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/Nihal-Srivastava05/Operative-sub000/pkg/models"
)

// PutEntry inserts or overwrites a memory entry.
func (db *DB) PutEntry(e *models.MemoryEntry) error {
	value, err := encodeJSON(e.Value)
	if err != nil {
		return fmt.Errorf("put entry %s: %w", e.CompositeKey(), err)
	}

	_, err = db.Exec(`
		INSERT INTO memory (namespace, key, value, version, created_by, updated_by, created_at, updated_at, expires_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(namespace, key) DO UPDATE SET
			value = excluded.value,
			version = excluded.version,
			updated_by = excluded.updated_by,
			updated_at = excluded.updated_at,
			expires_at = excluded.expires_at
	`, e.Namespace, e.Key, value, e.Version, e.CreatedBy, e.UpdatedBy,
		formatTime(e.CreatedAt), formatTime(e.UpdatedAt), formatNullableTime(e.ExpiresAt))
	if err != nil {
		return fmt.Errorf("put entry %s: %w", e.CompositeKey(), err)
	}
	return nil
}

// GetEntry retrieves a memory entry. Returns nil if no entry exists.
// Expiry is the caller's concern; the row is returned as stored.
func (db *DB) GetEntry(namespace, key string) (*models.MemoryEntry, error) {
	row := db.QueryRow(`
		SELECT namespace, key, value, version, created_by, updated_by, created_at, updated_at, expires_at
		FROM memory WHERE namespace = ? AND key = ?
	`, namespace, key)

	entry, err := scanEntry(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get entry %s:%s: %w", namespace, key, err)
	}
	return entry, nil
}

// DeleteEntry removes a memory entry. Returns true if a row was deleted.
func (db *DB) DeleteEntry(namespace, key string) (bool, error) {
	result, err := db.Exec("DELETE FROM memory WHERE namespace = ? AND key = ?", namespace, key)
	if err != nil {
		return false, fmt.Errorf("delete entry %s:%s: %w", namespace, key, err)
	}
	count, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("get rows affected: %w", err)
	}
	return count > 0, nil
}

// ListEntries returns entries whose namespace starts with the given
// prefix, ordered by namespace then key. An empty prefix returns all.
func (db *DB) ListEntries(namespacePrefix string) ([]models.MemoryEntry, error) {
	rows, err := db.Query(`
		SELECT namespace, key, value, version, created_by, updated_by, created_at, updated_at, expires_at
		FROM memory WHERE namespace LIKE ? || '%' ORDER BY namespace, key
	`, namespacePrefix)
	if err != nil {
		return nil, fmt.Errorf("list entries: %w", err)
	}
	defer rows.Close()

	var entries []models.MemoryEntry
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, fmt.Errorf("scan entry: %w", err)
		}
		entries = append(entries, *e)
	}
	return entries, rows.Err()
}

// PurgeExpiredEntries deletes entries whose expiry has passed.
// Returns the number deleted.
func (db *DB) PurgeExpiredEntries(now time.Time) (int64, error) {
	result, err := db.Exec(`
		DELETE FROM memory WHERE expires_at IS NOT NULL AND expires_at < ?
	`, formatTime(now))
	if err != nil {
		return 0, fmt.Errorf("purge expired entries: %w", err)
	}
	count, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("get rows affected: %w", err)
	}
	return count, nil
}

func scanEntry(row rowScanner) (*models.MemoryEntry, error) {
	var e models.MemoryEntry
	var value, createdBy, updatedBy, expiresAt sql.NullString
	var createdAt, updatedAt string

	err := row.Scan(&e.Namespace, &e.Key, &value, &e.Version, &createdBy, &updatedBy,
		&createdAt, &updatedAt, &expiresAt)
	if err != nil {
		return nil, err
	}

	if err := decodeJSON(value, &e.Value); err != nil {
		return nil, err
	}
	e.CreatedBy = createdBy.String
	e.UpdatedBy = updatedBy.String
	e.CreatedAt, _ = parseTime(createdAt)
	e.UpdatedAt, _ = parseTime(updatedAt)
	e.ExpiresAt = parseNullableTime(expiresAt)
	return &e, nil
}
