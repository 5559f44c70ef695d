package statestore

import (
	"database/sql"

	"github.com/aristath/trading-core/internal/apierrors"
)

// PutTaskSpec upserts one row of the control plane's periodic task
// configuration.
func (s *Store) PutTaskSpec(spec TaskSpec) error {
	return s.withWriteTx(func(tx *sql.Tx) error {
		_, err := tx.Exec(`
			INSERT INTO background_tasks_config (task_name, enabled, frequency_seconds, use_claude, priority)
			VALUES (?, ?, ?, ?, ?)
			ON CONFLICT(task_name) DO UPDATE SET
				enabled = excluded.enabled,
				frequency_seconds = excluded.frequency_seconds,
				use_claude = excluded.use_claude,
				priority = excluded.priority`,
			spec.TaskName, boolToInt(spec.Enabled), spec.FrequencySeconds, boolToInt(spec.UseClaude), spec.Priority)
		if err != nil {
			return apierrors.NewStorageError("put_task_spec", err)
		}
		return nil
	})
}

// ListTaskSpecs returns every configured periodic task, in no particular
// order; callers that need determinism should sort by TaskName.
func (s *Store) ListTaskSpecs() ([]TaskSpec, error) {
	rows, err := s.db.Conn().Query(`
		SELECT task_name, enabled, frequency_seconds, use_claude, priority FROM background_tasks_config`)
	if err != nil {
		return nil, apierrors.NewStorageError("list_task_specs", err)
	}
	defer rows.Close()

	var out []TaskSpec
	for rows.Next() {
		var spec TaskSpec
		var enabled, useClaude int
		if err := rows.Scan(&spec.TaskName, &enabled, &spec.FrequencySeconds, &useClaude, &spec.Priority); err != nil {
			return nil, apierrors.NewStorageError("list_task_specs:scan", err)
		}
		spec.Enabled = enabled != 0
		spec.UseClaude = useClaude != 0
		out = append(out, spec)
	}
	return out, rows.Err()
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
