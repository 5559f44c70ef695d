package statestore

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/aristath/trading-core/internal/apierrors"
)

// DefaultExecutionHistoryLimit is the retention ceiling applied by
// RecordExecution when maxHistory is not overridden by the caller.
const DefaultExecutionHistoryLimit = 100

// RecordExecution appends one immutable ExecutionRecord and then prunes
// entries for rec.TaskName beyond maxHistory (most recent first). A
// maxHistory of 0 uses DefaultExecutionHistoryLimit.
func (s *Store) RecordExecution(rec ExecutionRecord, maxHistory int) error {
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	if rec.Timestamp.IsZero() {
		rec.Timestamp = time.Now().UTC()
	}
	if maxHistory <= 0 {
		maxHistory = DefaultExecutionHistoryLimit
	}

	symbolsJSON, err := json.Marshal(rec.Symbols)
	if err != nil {
		return apierrors.NewValidationError("symbols", err.Error())
	}

	return s.withWriteTx(func(tx *sql.Tx) error {
		_, err := tx.Exec(`
			INSERT INTO execution_history (id, task_name, task_id, execution_type, user,
				timestamp, symbols_json, symbol_count, status, error, duration_seconds)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			rec.ID, rec.TaskName, rec.TaskID, rec.ExecutionType, rec.User,
			rec.Timestamp.Format(time.RFC3339), string(symbolsJSON), len(rec.Symbols),
			rec.Status, rec.Error, rec.DurationSeconds)
		if err != nil {
			return apierrors.NewStorageError("record_execution", err)
		}

		_, err = tx.Exec(`
			DELETE FROM execution_history
			WHERE task_name = ? AND id NOT IN (
				SELECT id FROM execution_history WHERE task_name = ?
				ORDER BY timestamp DESC LIMIT ?
			)`, rec.TaskName, rec.TaskName, maxHistory)
		if err != nil {
			return apierrors.NewStorageError("record_execution:prune", err)
		}
		return nil
	})
}

// QueryExecution returns execution records matching filter, newest first.
func (s *Store) QueryExecution(filter ExecutionFilter) ([]ExecutionRecord, error) {
	query := `SELECT id, task_name, task_id, execution_type, user, timestamp, symbols_json,
		status, error, duration_seconds FROM execution_history WHERE 1=1`
	var args []interface{}
	if filter.TaskName != "" {
		query += " AND task_name = ?"
		args = append(args, filter.TaskName)
	}
	if filter.Status != "" {
		query += " AND status = ?"
		args = append(args, filter.Status)
	}
	query += " ORDER BY timestamp DESC"
	if filter.Limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", filter.Limit)
	}

	rows, err := s.db.Conn().Query(query, args...)
	if err != nil {
		return nil, apierrors.NewStorageError("query_execution", err)
	}
	defer rows.Close()

	var out []ExecutionRecord
	for rows.Next() {
		var (
			rec                      ExecutionRecord
			timestamp, symbolsJSON   string
			user, errMsg             sql.NullString
		)
		if err := rows.Scan(&rec.ID, &rec.TaskName, &rec.TaskID, &rec.ExecutionType, &user,
			&timestamp, &symbolsJSON, &rec.Status, &errMsg, &rec.DurationSeconds); err != nil {
			return nil, apierrors.NewStorageError("query_execution:scan", err)
		}
		if user.Valid {
			rec.User = user.String
		}
		if errMsg.Valid {
			rec.Error = errMsg.String
		}
		if t, err := time.Parse(time.RFC3339, timestamp); err == nil {
			rec.Timestamp = t
		}
		_ = json.Unmarshal([]byte(symbolsJSON), &rec.Symbols)
		out = append(out, rec)
	}
	return out, rows.Err()
}
