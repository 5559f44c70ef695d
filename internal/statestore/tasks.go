package statestore

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/aristath/trading-core/internal/apierrors"
)

// Enqueue persists a new pending task and returns its id.
func (s *Store) Enqueue(task Task) (string, error) {
	if task.ID == "" {
		task.ID = uuid.NewString()
	}
	if task.QueueKey == "" {
		task.QueueKey = task.Type
	}
	if task.ScheduledAt.IsZero() {
		task.ScheduledAt = time.Now().UTC()
	}
	if task.MaxAttempts == 0 {
		task.MaxAttempts = 1
	}
	task.Status = TaskPending

	payloadJSON, err := json.Marshal(task.Payload)
	if err != nil {
		return "", apierrors.NewValidationError("payload", err.Error())
	}

	err = s.withWriteTx(func(tx *sql.Tx) error {
		_, err := tx.Exec(`
			INSERT INTO tasks (id, type, payload_json, status, priority, queue_key,
				scheduled_at, attempts, max_attempts)
			VALUES (?, ?, ?, ?, ?, ?, ?, 0, ?)`,
			task.ID, task.Type, string(payloadJSON), string(task.Status), task.Priority,
			task.QueueKey, task.ScheduledAt.Format(time.RFC3339), task.MaxAttempts)
		if err != nil {
			return apierrors.NewStorageError("enqueue", err)
		}
		return nil
	})
	if err != nil {
		return "", err
	}
	return task.ID, nil
}

// ClaimNext atomically moves the highest-priority pending, due task in
// queueKey to running and stamps started_at. Returns nil, nil if no task is
// claimable.
func (s *Store) ClaimNext(queueKey string) (*Task, error) {
	var claimed *Task

	err := s.withWriteTx(func(tx *sql.Tx) error {
		now := time.Now().UTC()
		row := tx.QueryRow(`
			SELECT id FROM tasks
			WHERE queue_key = ? AND status = 'pending' AND scheduled_at <= ?
			ORDER BY priority DESC, scheduled_at ASC
			LIMIT 1`, queueKey, now.Format(time.RFC3339))

		var id string
		if err := row.Scan(&id); err != nil {
			if err == sql.ErrNoRows {
				return nil
			}
			return apierrors.NewStorageError("claim_next:select", err)
		}

		res, err := tx.Exec(`
			UPDATE tasks SET status = 'running', started_at = ?
			WHERE id = ? AND status = 'pending'`, now.Format(time.RFC3339), id)
		if err != nil {
			return apierrors.NewStorageError("claim_next:update", err)
		}
		n, _ := res.RowsAffected()
		if n == 0 {
			// Lost a race within the same process (shouldn't happen under
			// the write mutex, but tolerated defensively).
			return nil
		}

		t, err := scanTaskByID(tx, id)
		if err != nil {
			return apierrors.NewStorageError("claim_next:reread", err)
		}
		claimed = t
		return nil
	})
	if err != nil {
		return nil, err
	}
	return claimed, nil
}

// MarkCompleted transitions a running task to completed and stamps
// completed_at.
func (s *Store) MarkCompleted(id string) error {
	return s.withWriteTx(func(tx *sql.Tx) error {
		res, err := tx.Exec(`
			UPDATE tasks SET status = 'completed', completed_at = ?, last_error = NULL
			WHERE id = ?`, time.Now().UTC().Format(time.RFC3339), id)
		if err != nil {
			return apierrors.NewStorageError("mark_completed", err)
		}
		n, _ := res.RowsAffected()
		if n == 0 {
			return apierrors.NewNotFoundError("task", id)
		}
		return nil
	})
}

// MarkFailed records errMsg and either reschedules the task to pending
// (with a bumped attempts count and a new scheduled_at) or moves it to the
// terminal failed state, stamping completed_at.
func (s *Store) MarkFailed(id string, errMsg string, reschedule *time.Time) error {
	return s.withWriteTx(func(tx *sql.Tx) error {
		if reschedule != nil {
			res, err := tx.Exec(`
				UPDATE tasks SET status = 'pending', attempts = attempts + 1,
					last_error = ?, scheduled_at = ?, started_at = NULL
				WHERE id = ?`, errMsg, reschedule.Format(time.RFC3339), id)
			if err != nil {
				return apierrors.NewStorageError("mark_failed:reschedule", err)
			}
			n, _ := res.RowsAffected()
			if n == 0 {
				return apierrors.NewNotFoundError("task", id)
			}
			return nil
		}

		res, err := tx.Exec(`
			UPDATE tasks SET status = 'failed', attempts = attempts + 1,
				last_error = ?, completed_at = ?
			WHERE id = ?`, errMsg, time.Now().UTC().Format(time.RFC3339), id)
		if err != nil {
			return apierrors.NewStorageError("mark_failed", err)
		}
		n, _ := res.RowsAffected()
		if n == 0 {
			return apierrors.NewNotFoundError("task", id)
		}
		return nil
	})
}

// ReapStale transitions any running task whose started_at is older than
// maxAge back to pending, clearing started_at. Returns the count reaped.
// Timestamps are compared at one-second precision, so a task whose
// started_at falls in the cutoff's own second counts as stale.
// Called unconditionally at startup, before scheduler workers start.
func (s *Store) ReapStale(maxAge time.Duration) (int, error) {
	var reaped int
	err := s.withWriteTx(func(tx *sql.Tx) error {
		cutoff := time.Now().UTC().Add(-maxAge).Format(time.RFC3339)
		res, err := tx.Exec(`
			UPDATE tasks SET status = 'pending', started_at = NULL
			WHERE status = 'running' AND started_at IS NOT NULL AND started_at <= ?`, cutoff)
		if err != nil {
			return apierrors.NewStorageError("reap_stale", err)
		}
		n, _ := res.RowsAffected()
		reaped = int(n)
		return nil
	})
	return reaped, err
}

// GetTask fetches one task by id.
func (s *Store) GetTask(id string) (*Task, error) {
	t, err := scanTaskByID(s.db.Conn(), id)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, apierrors.NewNotFoundError("task", id)
		}
		return nil, apierrors.NewStorageError("get_task", err)
	}
	return t, nil
}

// ListTasks returns tasks of the given type and status (either may be
// empty to mean "any"), most recently scheduled first.
func (s *Store) ListTasks(taskType string, status TaskStatus, limit int) ([]Task, error) {
	query := `SELECT id, type, payload_json, status, priority, queue_key, scheduled_at,
		started_at, completed_at, attempts, max_attempts, last_error FROM tasks WHERE 1=1`
	var args []interface{}
	if taskType != "" {
		query += " AND type = ?"
		args = append(args, taskType)
	}
	if status != "" {
		query += " AND status = ?"
		args = append(args, string(status))
	}
	query += " ORDER BY scheduled_at DESC"
	if limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", limit)
	}

	rows, err := s.db.Conn().Query(query, args...)
	if err != nil {
		return nil, apierrors.NewStorageError("list_tasks", err)
	}
	defer rows.Close()

	var out []Task
	for rows.Next() {
		t, err := scanTask(rows.Scan)
		if err != nil {
			return nil, apierrors.NewStorageError("list_tasks:scan", err)
		}
		out = append(out, *t)
	}
	return out, rows.Err()
}

// QueueStat is one queue_key's pending/running/failed task counts, for the
// health surface's queue-depth metric.
type QueueStat struct {
	QueueKey string `json:"queue_key"`
	Pending  int    `json:"pending"`
	Running  int    `json:"running"`
	Failed   int    `json:"failed"`
}

// QueueStats aggregates task counts per queue_key and status, across every
// non-terminal-or-recently-terminal task in the store.
func (s *Store) QueueStats() ([]QueueStat, error) {
	rows, err := s.db.Conn().Query(`
		SELECT queue_key, status, COUNT(*) FROM tasks
		WHERE status IN ('pending', 'running', 'failed')
		GROUP BY queue_key, status`)
	if err != nil {
		return nil, apierrors.NewStorageError("queue_stats", err)
	}
	defer rows.Close()

	byKey := make(map[string]*QueueStat)
	var order []string
	for rows.Next() {
		var queueKey, status string
		var count int
		if err := rows.Scan(&queueKey, &status, &count); err != nil {
			return nil, apierrors.NewStorageError("queue_stats:scan", err)
		}
		stat, ok := byKey[queueKey]
		if !ok {
			stat = &QueueStat{QueueKey: queueKey}
			byKey[queueKey] = stat
			order = append(order, queueKey)
		}
		switch status {
		case "pending":
			stat.Pending = count
		case "running":
			stat.Running = count
		case "failed":
			stat.Failed = count
		}
	}
	if err := rows.Err(); err != nil {
		return nil, apierrors.NewStorageError("queue_stats:rows", err)
	}

	out := make([]QueueStat, 0, len(order))
	for _, k := range order {
		out = append(out, *byKey[k])
	}
	return out, nil
}

type querier interface {
	QueryRow(query string, args ...interface{}) *sql.Row
}

func scanTaskByID(q querier, id string) (*Task, error) {
	row := q.QueryRow(`
		SELECT id, type, payload_json, status, priority, queue_key, scheduled_at,
			started_at, completed_at, attempts, max_attempts, last_error
		FROM tasks WHERE id = ?`, id)
	return scanTask(row.Scan)
}

func scanTask(scan scanFunc) (*Task, error) {
	var (
		id, taskType, payloadJSON, status, queueKey, scheduledAt string
		startedAt, completedAt, lastError                        sql.NullString
		priority, attempts, maxAttempts                          int
	)
	if err := scan(&id, &taskType, &payloadJSON, &status, &priority, &queueKey, &scheduledAt,
		&startedAt, &completedAt, &attempts, &maxAttempts, &lastError); err != nil {
		return nil, err
	}

	t := &Task{
		ID: id, Type: taskType, Status: TaskStatus(status), Priority: priority,
		QueueKey: queueKey, Attempts: attempts, MaxAttempts: maxAttempts,
	}
	_ = json.Unmarshal([]byte(payloadJSON), &t.Payload)
	if parsed, err := time.Parse(time.RFC3339, scheduledAt); err == nil {
		t.ScheduledAt = parsed
	}
	t.StartedAt = parseOptionalTime(startedAt)
	t.CompletedAt = parseOptionalTime(completedAt)
	if lastError.Valid {
		t.LastError = lastError.String
	}
	return t, nil
}
