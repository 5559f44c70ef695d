package statestore

import (
	"database/sql"
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/aristath/trading-core/internal/apierrors"
)

// CreateCheckpoint snapshots the current portfolio and all intents under
// name, returning the checkpoint id.
func (s *Store) CreateCheckpoint(name string, metadata map[string]interface{}) (string, error) {
	portfolio, err := s.GetPortfolio()
	if err != nil {
		return "", err
	}
	if portfolio == nil {
		portfolio = &PortfolioSnapshot{AsOf: time.Now().UTC()}
	}
	intents, err := s.ListIntents(IntentFilter{})
	if err != nil {
		return "", err
	}

	portfolioJSON, err := json.Marshal(portfolio)
	if err != nil {
		return "", apierrors.NewValidationError("portfolio", err.Error())
	}
	intentsJSON, err := json.Marshal(intents)
	if err != nil {
		return "", apierrors.NewValidationError("intents", err.Error())
	}
	metadataJSON, err := json.Marshal(metadata)
	if err != nil {
		return "", apierrors.NewValidationError("metadata", err.Error())
	}

	id := uuid.NewString()
	err = s.withWriteTx(func(tx *sql.Tx) error {
		_, err := tx.Exec(`
			INSERT INTO checkpoints (id, name, timestamp, metadata_json, portfolio_json, intents_json)
			VALUES (?, ?, ?, ?, ?, ?)`,
			id, name, time.Now().UTC().Format(time.RFC3339), string(metadataJSON),
			string(portfolioJSON), string(intentsJSON))
		if err != nil {
			return apierrors.NewStorageError("create_checkpoint", err)
		}
		return nil
	})
	if err != nil {
		return "", err
	}
	return id, nil
}

// RestoreCheckpoint replaces the current portfolio with the one captured in
// checkpoint id. Intents are historical and are not replayed back into the
// live intents table; callers needing the full intents-at-checkpoint view
// should read Checkpoint.Intents via GetCheckpoint. Returns false if id does
// not exist.
func (s *Store) RestoreCheckpoint(id string) (bool, error) {
	cp, err := s.GetCheckpoint(id)
	if err != nil {
		if _, ok := asNotFound(err); ok {
			return false, nil
		}
		return false, err
	}
	if err := s.PutPortfolio(cp.Portfolio); err != nil {
		return false, err
	}
	return true, nil
}

// GetCheckpoint fetches one checkpoint by id.
func (s *Store) GetCheckpoint(id string) (*Checkpoint, error) {
	row := s.db.Conn().QueryRow(`
		SELECT id, name, timestamp, metadata_json, portfolio_json, intents_json
		FROM checkpoints WHERE id = ?`, id)

	var cp Checkpoint
	var timestamp, metadataJSON, portfolioJSON, intentsJSON string
	if err := row.Scan(&cp.ID, &cp.Name, &timestamp, &metadataJSON, &portfolioJSON, &intentsJSON); err != nil {
		if err == sql.ErrNoRows {
			return nil, apierrors.NewNotFoundError("checkpoint", id)
		}
		return nil, apierrors.NewStorageError("get_checkpoint", err)
	}
	if t, err := time.Parse(time.RFC3339, timestamp); err == nil {
		cp.Timestamp = t
	}
	_ = json.Unmarshal([]byte(metadataJSON), &cp.Metadata)
	_ = json.Unmarshal([]byte(portfolioJSON), &cp.Portfolio)
	_ = json.Unmarshal([]byte(intentsJSON), &cp.Intents)
	return &cp, nil
}

func asNotFound(err error) (*apierrors.NotFoundError, bool) {
	nf, ok := err.(*apierrors.NotFoundError)
	return nf, ok
}
