package statestore

import (
	"database/sql"
	"time"

	"github.com/aristath/trading-core/internal/apierrors"
)

// FetchKind distinguishes the two tracked fetch cadences per symbol.
type FetchKind string

const (
	FetchKindNews     FetchKind = "news"
	FetchKindEarnings FetchKind = "earnings"
)

// GetLastFetch returns the last recorded fetch time for (symbol, kind), or
// the zero time if never recorded.
func (s *Store) GetLastFetch(symbol string, kind FetchKind) (time.Time, error) {
	column := "last_news_fetch"
	if kind == FetchKindEarnings {
		column = "last_earnings_fetch"
	}

	row := s.db.Conn().QueryRow(`SELECT `+column+` FROM news_fetch_tracking WHERE symbol = ?`, symbol)
	var ts sql.NullString
	if err := row.Scan(&ts); err != nil {
		if err == sql.ErrNoRows {
			return time.Time{}, nil
		}
		return time.Time{}, apierrors.NewStorageError("get_last_fetch", err)
	}
	if !ts.Valid || ts.String == "" {
		return time.Time{}, nil
	}
	t, err := time.Parse(time.RFC3339, ts.String)
	if err != nil {
		return time.Time{}, apierrors.NewStorageError("get_last_fetch:parse", err)
	}
	return t, nil
}

// SetLastFetch records ts as the last fetch time for (symbol, kind).
func (s *Store) SetLastFetch(symbol string, kind FetchKind, ts time.Time) error {
	column := "last_news_fetch"
	if kind == FetchKindEarnings {
		column = "last_earnings_fetch"
	}

	return s.withWriteTx(func(tx *sql.Tx) error {
		_, err := tx.Exec(`
			INSERT INTO news_fetch_tracking (symbol, `+column+`) VALUES (?, ?)
			ON CONFLICT(symbol) DO UPDATE SET `+column+` = excluded.`+column,
			symbol, ts.Format(time.RFC3339))
		if err != nil {
			return apierrors.NewStorageError("set_last_fetch", err)
		}
		return nil
	})
}
