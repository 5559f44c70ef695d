package statestore

import (
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	"github.com/aristath/trading-core/internal/apierrors"
)

// GetPortfolio returns the single current snapshot, or nil if none has been
// written yet.
func (s *Store) GetPortfolio() (*PortfolioSnapshot, error) {
	row := s.db.Conn().QueryRow(`
		SELECT as_of, cash_json, holdings_json, exposure_total, risk_aggregates_json
		FROM portfolio WHERE id = 1`)

	var asOf, cashJSON, holdingsJSON, riskJSON string
	var exposureTotal float64
	if err := row.Scan(&asOf, &cashJSON, &holdingsJSON, &exposureTotal, &riskJSON); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, apierrors.NewStorageError("get_portfolio", err)
	}

	snap := &PortfolioSnapshot{ExposureTotal: exposureTotal}
	if t, err := time.Parse(time.RFC3339, asOf); err == nil {
		snap.AsOf = t
	}
	if err := json.Unmarshal([]byte(cashJSON), &snap.Cash); err != nil {
		return nil, apierrors.NewStorageError("get_portfolio:decode_cash", err)
	}
	if err := json.Unmarshal([]byte(holdingsJSON), &snap.Holdings); err != nil {
		return nil, apierrors.NewStorageError("get_portfolio:decode_holdings", err)
	}
	if err := json.Unmarshal([]byte(riskJSON), &snap.RiskAggregates); err != nil {
		return nil, apierrors.NewStorageError("get_portfolio:decode_risk", err)
	}
	return snap, nil
}

// PutPortfolio replaces the single snapshot row wholesale. It emits no
// event; callers that need to notify the rest of the system publish
// PortfolioUpdated themselves after a successful write.
func (s *Store) PutPortfolio(snap PortfolioSnapshot) error {
	cashJSON, err := json.Marshal(snap.Cash)
	if err != nil {
		return apierrors.NewValidationError("cash", err.Error())
	}
	holdingsJSON, err := json.Marshal(snap.Holdings)
	if err != nil {
		return apierrors.NewValidationError("holdings", err.Error())
	}
	riskJSON, err := json.Marshal(snap.RiskAggregates)
	if err != nil {
		return apierrors.NewValidationError("risk_aggregates", err.Error())
	}
	if snap.AsOf.IsZero() {
		snap.AsOf = time.Now().UTC()
	}

	return s.withWriteTx(func(tx *sql.Tx) error {
		_, err := tx.Exec(`
			INSERT INTO portfolio (id, as_of, cash_json, holdings_json, exposure_total, risk_aggregates_json)
			VALUES (1, ?, ?, ?, ?, ?)
			ON CONFLICT(id) DO UPDATE SET
				as_of = excluded.as_of,
				cash_json = excluded.cash_json,
				holdings_json = excluded.holdings_json,
				exposure_total = excluded.exposure_total,
				risk_aggregates_json = excluded.risk_aggregates_json`,
			snap.AsOf.Format(time.RFC3339), string(cashJSON), string(holdingsJSON),
			snap.ExposureTotal, string(riskJSON))
		if err != nil {
			return apierrors.NewStorageError("put_portfolio", err)
		}
		return nil
	})
}
