// Settings persistence: folded directly into StateStore rather than kept as
// a standalone repository type, since the settings table is just another
// StateStore-owned table and get_setting/put_setting/list_settings are
// StateStore operations per the component contract.
package statestore

import (
	"database/sql"
	"strings"
	"time"

	"github.com/aristath/trading-core/internal/apierrors"
)

// GetSetting returns the ConfigurationEntry for key, or nil if unset.
func (s *Store) GetSetting(key string) (*ConfigurationEntry, error) {
	row := s.db.Conn().QueryRow(`SELECT key, value, updated_at FROM settings WHERE key = ?`, key)

	var entry ConfigurationEntry
	var updatedAt string
	if err := row.Scan(&entry.Key, &entry.Value, &updatedAt); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, apierrors.NewStorageError("get_setting", err)
	}
	if t, err := time.Parse(time.RFC3339, updatedAt); err == nil {
		entry.UpdatedAt = t
	}
	return &entry, nil
}

// PutSetting upserts key/value, stamping updated_at.
func (s *Store) PutSetting(key, value string) error {
	return s.withWriteTx(func(tx *sql.Tx) error {
		_, err := tx.Exec(`
			INSERT INTO settings (key, value, updated_at) VALUES (?, ?, ?)
			ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`,
			key, value, time.Now().UTC().Format(time.RFC3339))
		if err != nil {
			return apierrors.NewStorageError("put_setting", err)
		}
		return nil
	})
}

// ListSettings returns every ConfigurationEntry whose key starts with
// prefix (empty prefix returns all).
func (s *Store) ListSettings(prefix string) ([]ConfigurationEntry, error) {
	query := `SELECT key, value, updated_at FROM settings`
	var args []interface{}
	if prefix != "" {
		query += ` WHERE key LIKE ? ESCAPE '\'`
		args = append(args, strings.NewReplacer(`\`, `\\`, "%", `\%`, "_", `\_`).Replace(prefix)+"%")
	}
	query += ` ORDER BY key ASC`

	rows, err := s.db.Conn().Query(query, args...)
	if err != nil {
		return nil, apierrors.NewStorageError("list_settings", err)
	}
	defer rows.Close()

	var out []ConfigurationEntry
	for rows.Next() {
		var entry ConfigurationEntry
		var updatedAt string
		if err := rows.Scan(&entry.Key, &entry.Value, &updatedAt); err != nil {
			return nil, apierrors.NewStorageError("list_settings:scan", err)
		}
		if t, err := time.Parse(time.RFC3339, updatedAt); err == nil {
			entry.UpdatedAt = t
		}
		out = append(out, entry)
	}
	return out, rows.Err()
}

// DeleteSetting removes key if present; deleting an absent key is a no-op.
func (s *Store) DeleteSetting(key string) error {
	return s.withWriteTx(func(tx *sql.Tx) error {
		_, err := tx.Exec(`DELETE FROM settings WHERE key = ?`, key)
		if err != nil {
			return apierrors.NewStorageError("delete_setting", err)
		}
		return nil
	})
}
