package statestore

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/aristath/trading-core/internal/apierrors"
)

// CreateIntent inserts a new pending Intent for symbol and returns it.
func (s *Store) CreateIntent(symbol string, signal map[string]interface{}, source string) (*Intent, error) {
	intent := &Intent{
		ID:               uuid.NewString(),
		Symbol:           symbol,
		CreatedAt:        time.Now().UTC(),
		Signal:           signal,
		OrderCommands:    []map[string]interface{}{},
		ExecutionReports: []map[string]interface{}{},
		Status:           IntentPending,
		Source:           source,
	}

	signalJSON, err := marshalOptional(intent.Signal)
	if err != nil {
		return nil, apierrors.NewValidationError("signal", err.Error())
	}
	ordersJSON, _ := json.Marshal(intent.OrderCommands)
	reportsJSON, _ := json.Marshal(intent.ExecutionReports)

	err = s.withWriteTx(func(tx *sql.Tx) error {
		_, err := tx.Exec(`
			INSERT INTO intents (id, symbol, created_at, signal_json, order_commands_json,
				execution_reports_json, status, source)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
			intent.ID, intent.Symbol, intent.CreatedAt.Format(time.RFC3339), signalJSON,
			string(ordersJSON), string(reportsJSON), string(intent.Status), intent.Source)
		if err != nil {
			return apierrors.NewStorageError("create_intent", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return intent, nil
}

// UpdateIntent persists every mutable field of intent (risk decision, order
// commands, execution reports, status, timestamps). The row must already
// exist.
func (s *Store) UpdateIntent(intent Intent) error {
	riskJSON, err := marshalOptional(intent.RiskDecision)
	if err != nil {
		return apierrors.NewValidationError("risk_decision", err.Error())
	}
	ordersJSON, err := json.Marshal(intent.OrderCommands)
	if err != nil {
		return apierrors.NewValidationError("order_commands", err.Error())
	}
	reportsJSON, err := json.Marshal(intent.ExecutionReports)
	if err != nil {
		return apierrors.NewValidationError("execution_reports", err.Error())
	}

	return s.withWriteTx(func(tx *sql.Tx) error {
		res, err := tx.Exec(`
			UPDATE intents SET
				risk_decision_json = ?, order_commands_json = ?, execution_reports_json = ?,
				status = ?, approved_at = ?, executed_at = ?
			WHERE id = ?`,
			riskJSON, string(ordersJSON), string(reportsJSON), string(intent.Status),
			formatOptionalTime(intent.ApprovedAt), formatOptionalTime(intent.ExecutedAt), intent.ID)
		if err != nil {
			return apierrors.NewStorageError("update_intent", err)
		}
		n, _ := res.RowsAffected()
		if n == 0 {
			return apierrors.NewNotFoundError("intent", intent.ID)
		}
		return nil
	})
}

// GetIntent fetches one intent by id.
func (s *Store) GetIntent(id string) (*Intent, error) {
	row := s.db.Conn().QueryRow(`
		SELECT id, symbol, created_at, signal_json, risk_decision_json, order_commands_json,
			execution_reports_json, status, approved_at, executed_at, source
		FROM intents WHERE id = ?`, id)
	intent, err := scanIntent(row.Scan)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, apierrors.NewNotFoundError("intent", id)
		}
		return nil, apierrors.NewStorageError("get_intent", err)
	}
	return intent, nil
}

// ListIntents returns intents matching filter, newest first.
func (s *Store) ListIntents(filter IntentFilter) ([]Intent, error) {
	query := `SELECT id, symbol, created_at, signal_json, risk_decision_json, order_commands_json,
		execution_reports_json, status, approved_at, executed_at, source FROM intents WHERE 1=1`
	var args []interface{}
	if filter.Symbol != "" {
		query += " AND symbol = ?"
		args = append(args, filter.Symbol)
	}
	if filter.Status != "" {
		query += " AND status = ?"
		args = append(args, string(filter.Status))
	}
	query += " ORDER BY created_at DESC"
	if filter.Limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", filter.Limit)
	}

	rows, err := s.db.Conn().Query(query, args...)
	if err != nil {
		return nil, apierrors.NewStorageError("list_intents", err)
	}
	defer rows.Close()

	var out []Intent
	for rows.Next() {
		intent, err := scanIntent(rows.Scan)
		if err != nil {
			return nil, apierrors.NewStorageError("list_intents:scan", err)
		}
		out = append(out, *intent)
	}
	return out, rows.Err()
}

type scanFunc func(dest ...interface{}) error

func scanIntent(scan scanFunc) (*Intent, error) {
	var (
		id, symbol, createdAt, status, source     string
		signalJSON, riskJSON, ordersJSON, reportsJSON string
		approvedAt, executedAt                     sql.NullString
	)
	if err := scan(&id, &symbol, &createdAt, &signalJSON, &riskJSON, &ordersJSON,
		&reportsJSON, &status, &approvedAt, &executedAt, &source); err != nil {
		return nil, err
	}

	intent := &Intent{ID: id, Symbol: symbol, Status: IntentStatus(status), Source: source}
	if t, err := time.Parse(time.RFC3339, createdAt); err == nil {
		intent.CreatedAt = t
	}
	if signalJSON != "" {
		_ = json.Unmarshal([]byte(signalJSON), &intent.Signal)
	}
	if riskJSON != "" {
		_ = json.Unmarshal([]byte(riskJSON), &intent.RiskDecision)
	}
	_ = json.Unmarshal([]byte(ordersJSON), &intent.OrderCommands)
	_ = json.Unmarshal([]byte(reportsJSON), &intent.ExecutionReports)
	intent.ApprovedAt = parseOptionalTime(approvedAt)
	intent.ExecutedAt = parseOptionalTime(executedAt)
	return intent, nil
}

func marshalOptional(v map[string]interface{}) (interface{}, error) {
	if v == nil {
		return nil, nil
	}
	b, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

func formatOptionalTime(t *time.Time) interface{} {
	if t == nil {
		return nil
	}
	return t.Format(time.RFC3339)
}

func parseOptionalTime(ns sql.NullString) *time.Time {
	if !ns.Valid || strings.TrimSpace(ns.String) == "" {
		return nil
	}
	t, err := time.Parse(time.RFC3339, ns.String)
	if err != nil {
		return nil
	}
	return &t
}
