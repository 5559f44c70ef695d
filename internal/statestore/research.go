// Research-artifact persistence: news, earnings, fundamentals, and
// recommendations. These are write-once value records produced by task
// handlers; StateStore only stores and lists them.
package statestore

import (
	"database/sql"
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/aristath/trading-core/internal/apierrors"
)

// SaveNewsItem persists item, assigning an id if absent.
func (s *Store) SaveNewsItem(item NewsItem) (string, error) {
	if item.ID == "" {
		item.ID = uuid.NewString()
	}
	if item.FetchedAt.IsZero() {
		item.FetchedAt = time.Now().UTC()
	}
	citationsJSON, _ := json.Marshal(item.Citations)

	err := s.withWriteTx(func(tx *sql.Tx) error {
		_, err := tx.Exec(`
			INSERT INTO news_items (id, symbol, title, summary, content, source, sentiment,
				relevance_score, published_at, fetched_at, citations_json)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			item.ID, item.Symbol, item.Title, item.Summary, item.Content, item.Source,
			item.Sentiment, item.RelevanceScore, item.PublishedAt.Format(time.RFC3339),
			item.FetchedAt.Format(time.RFC3339), string(citationsJSON))
		if err != nil {
			return apierrors.NewStorageError("save_news_item", err)
		}
		return nil
	})
	if err != nil {
		return "", err
	}
	return item.ID, nil
}

// ListNews returns up to limit news items for symbol, newest-published first.
func (s *Store) ListNews(symbol string, limit int) ([]NewsItem, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.Conn().Query(`
		SELECT id, symbol, title, summary, content, source, sentiment, relevance_score,
			published_at, fetched_at, citations_json
		FROM news_items WHERE symbol = ? ORDER BY published_at DESC LIMIT ?`, symbol, limit)
	if err != nil {
		return nil, apierrors.NewStorageError("list_news", err)
	}
	defer rows.Close()

	var out []NewsItem
	for rows.Next() {
		var item NewsItem
		var summary, content, source, sentiment, citationsJSON, publishedAt, fetchedAt sql.NullString
		var relevance sql.NullFloat64
		if err := rows.Scan(&item.ID, &item.Symbol, &item.Title, &summary, &content, &source,
			&sentiment, &relevance, &publishedAt, &fetchedAt, &citationsJSON); err != nil {
			return nil, apierrors.NewStorageError("list_news:scan", err)
		}
		item.Summary, item.Content, item.Source, item.Sentiment = summary.String, content.String, source.String, sentiment.String
		item.RelevanceScore = relevance.Float64
		if t, err := time.Parse(time.RFC3339, publishedAt.String); err == nil {
			item.PublishedAt = t
		}
		if t, err := time.Parse(time.RFC3339, fetchedAt.String); err == nil {
			item.FetchedAt = t
		}
		_ = json.Unmarshal([]byte(citationsJSON.String), &item.Citations)
		out = append(out, item)
	}
	return out, rows.Err()
}

// SaveEarningsReport persists rep. A duplicate (symbol, fiscal_period)
// produces a ConflictError.
func (s *Store) SaveEarningsReport(rep EarningsReport) (string, error) {
	if rep.ID == "" {
		rep.ID = uuid.NewString()
	}
	if rep.FetchedAt.IsZero() {
		rep.FetchedAt = time.Now().UTC()
	}

	err := s.withWriteTx(func(tx *sql.Tx) error {
		_, err := tx.Exec(`
			INSERT INTO earnings_reports (id, symbol, fiscal_period, fiscal_year, fiscal_quarter,
				report_date, eps_actual, eps_estimated, revenue_actual, revenue_estimated,
				surprise_pct, guidance, next_earnings_date, fetched_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			rep.ID, rep.Symbol, rep.FiscalPeriod, rep.FiscalYear, rep.FiscalQuarter,
			rep.ReportDate.Format(time.RFC3339), rep.EPSActual, rep.EPSEstimated,
			rep.RevenueActual, rep.RevenueEstimated, rep.SurprisePct, rep.Guidance,
			formatOptionalTime(rep.NextEarningsDate), rep.FetchedAt.Format(time.RFC3339))
		if err != nil {
			if isUniqueConstraintErr(err) {
				return apierrors.NewConflictError("earnings_report", rep.Symbol+"/"+rep.FiscalPeriod)
			}
			return apierrors.NewStorageError("save_earnings_report", err)
		}
		return nil
	})
	if err != nil {
		return "", err
	}
	return rep.ID, nil
}

// ListEarnings returns up to limit earnings reports for symbol, most recent
// report_date first.
func (s *Store) ListEarnings(symbol string, limit int) ([]EarningsReport, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.Conn().Query(`
		SELECT id, symbol, fiscal_period, fiscal_year, fiscal_quarter, report_date,
			eps_actual, eps_estimated, revenue_actual, revenue_estimated, surprise_pct,
			guidance, next_earnings_date, fetched_at
		FROM earnings_reports WHERE symbol = ? ORDER BY report_date DESC LIMIT ?`, symbol, limit)
	if err != nil {
		return nil, apierrors.NewStorageError("list_earnings", err)
	}
	defer rows.Close()

	var out []EarningsReport
	for rows.Next() {
		rep, err := scanEarnings(rows.Scan)
		if err != nil {
			return nil, apierrors.NewStorageError("list_earnings:scan", err)
		}
		out = append(out, *rep)
	}
	return out, rows.Err()
}

// UpcomingEarnings returns earnings reports whose next_earnings_date falls
// within windowDays from now, across all symbols.
func (s *Store) UpcomingEarnings(windowDays int) ([]EarningsReport, error) {
	now := time.Now().UTC()
	until := now.AddDate(0, 0, windowDays)
	rows, err := s.db.Conn().Query(`
		SELECT id, symbol, fiscal_period, fiscal_year, fiscal_quarter, report_date,
			eps_actual, eps_estimated, revenue_actual, revenue_estimated, surprise_pct,
			guidance, next_earnings_date, fetched_at
		FROM earnings_reports
		WHERE next_earnings_date IS NOT NULL AND next_earnings_date BETWEEN ? AND ?
		ORDER BY next_earnings_date ASC`, now.Format(time.RFC3339), until.Format(time.RFC3339))
	if err != nil {
		return nil, apierrors.NewStorageError("upcoming_earnings", err)
	}
	defer rows.Close()

	var out []EarningsReport
	for rows.Next() {
		rep, err := scanEarnings(rows.Scan)
		if err != nil {
			return nil, apierrors.NewStorageError("upcoming_earnings:scan", err)
		}
		out = append(out, *rep)
	}
	return out, rows.Err()
}

func scanEarnings(scan scanFunc) (*EarningsReport, error) {
	var rep EarningsReport
	var reportDate, fetchedAt string
	var nextEarningsDate sql.NullString
	var guidance sql.NullString
	if err := scan(&rep.ID, &rep.Symbol, &rep.FiscalPeriod, &rep.FiscalYear, &rep.FiscalQuarter,
		&reportDate, &rep.EPSActual, &rep.EPSEstimated, &rep.RevenueActual, &rep.RevenueEstimated,
		&rep.SurprisePct, &guidance, &nextEarningsDate, &fetchedAt); err != nil {
		return nil, err
	}
	rep.Guidance = guidance.String
	if t, err := time.Parse(time.RFC3339, reportDate); err == nil {
		rep.ReportDate = t
	}
	if t, err := time.Parse(time.RFC3339, fetchedAt); err == nil {
		rep.FetchedAt = t
	}
	rep.NextEarningsDate = parseOptionalTime(nextEarningsDate)
	return &rep, nil
}

// SaveFundamentalAnalysis persists a, keyed uniquely by (symbol, analysis_date).
func (s *Store) SaveFundamentalAnalysis(a FundamentalAnalysis) (string, error) {
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	if a.AnalysisDate.IsZero() {
		a.AnalysisDate = time.Now().UTC()
	}
	dataJSON, err := json.Marshal(a.AnalysisData)
	if err != nil {
		return "", apierrors.NewValidationError("analysis_data", err.Error())
	}

	err = s.withWriteTx(func(tx *sql.Tx) error {
		_, err := tx.Exec(`
			INSERT INTO fundamental_analysis (id, symbol, analysis_date, pe_ratio, pb_ratio,
				roe, roa, debt_to_equity, current_ratio, profit_margins, revenue_growth,
				earnings_growth, dividend_yield, market_cap, sector_pe, industry_rank,
				overall_score, recommendation, analysis_data_json)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			a.ID, a.Symbol, a.AnalysisDate.Format(time.RFC3339), a.PERatio, a.PBRatio,
			a.ROE, a.ROA, a.DebtToEquity, a.CurrentRatio, a.ProfitMargins, a.RevenueGrowth,
			a.EarningsGrowth, a.DividendYield, a.MarketCap, a.SectorPE, a.IndustryRank,
			a.OverallScore, a.Recommendation, string(dataJSON))
		if err != nil {
			if isUniqueConstraintErr(err) {
				return apierrors.NewConflictError("fundamental_analysis", a.Symbol+"/"+a.AnalysisDate.Format("2006-01-02"))
			}
			return apierrors.NewStorageError("save_fundamental_analysis", err)
		}
		return nil
	})
	if err != nil {
		return "", err
	}
	return a.ID, nil
}

// GetFundamentalAnalysis returns up to limit fundamentals rows for symbol,
// most recent analysis_date first.
func (s *Store) GetFundamentalAnalysis(symbol string, limit int) ([]FundamentalAnalysis, error) {
	if limit <= 0 {
		limit = 10
	}
	rows, err := s.db.Conn().Query(`
		SELECT id, symbol, analysis_date, pe_ratio, pb_ratio, roe, roa, debt_to_equity,
			current_ratio, profit_margins, revenue_growth, earnings_growth, dividend_yield,
			market_cap, sector_pe, industry_rank, overall_score, recommendation, analysis_data_json
		FROM fundamental_analysis WHERE symbol = ? ORDER BY analysis_date DESC LIMIT ?`, symbol, limit)
	if err != nil {
		return nil, apierrors.NewStorageError("get_fundamental_analysis", err)
	}
	defer rows.Close()

	var out []FundamentalAnalysis
	for rows.Next() {
		var a FundamentalAnalysis
		var analysisDate, dataJSON string
		if err := rows.Scan(&a.ID, &a.Symbol, &analysisDate, &a.PERatio, &a.PBRatio, &a.ROE,
			&a.ROA, &a.DebtToEquity, &a.CurrentRatio, &a.ProfitMargins, &a.RevenueGrowth,
			&a.EarningsGrowth, &a.DividendYield, &a.MarketCap, &a.SectorPE, &a.IndustryRank,
			&a.OverallScore, &a.Recommendation, &dataJSON); err != nil {
			return nil, apierrors.NewStorageError("get_fundamental_analysis:scan", err)
		}
		if t, err := time.Parse(time.RFC3339, analysisDate); err == nil {
			a.AnalysisDate = t
		}
		_ = json.Unmarshal([]byte(dataJSON), &a.AnalysisData)
		out = append(out, a)
	}
	return out, rows.Err()
}

// SaveRecommendation persists rec and returns its id.
func (s *Store) SaveRecommendation(rec Recommendation) (string, error) {
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now().UTC()
	}
	altJSON, err := json.Marshal(rec.AlternativeSuggestions)
	if err != nil {
		return "", apierrors.NewValidationError("alternative_suggestions", err.Error())
	}

	err = s.withWriteTx(func(tx *sql.Tx) error {
		_, err := tx.Exec(`
			INSERT INTO recommendations (id, symbol, recommendation_type, confidence_score,
				target_price, stop_loss, quantity, reasoning, analysis_type, time_horizon,
				risk_level, potential_impact, alternative_suggestions_json, created_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			rec.ID, rec.Symbol, rec.RecommendationType, rec.ConfidenceScore, rec.TargetPrice,
			rec.StopLoss, rec.Quantity, rec.Reasoning, rec.AnalysisType, rec.TimeHorizon,
			rec.RiskLevel, rec.PotentialImpact, string(altJSON), rec.CreatedAt.Format(time.RFC3339))
		if err != nil {
			return apierrors.NewStorageError("save_recommendation", err)
		}
		return nil
	})
	if err != nil {
		return "", err
	}
	return rec.ID, nil
}

// ListRecommendations returns up to limit recommendations, most recent
// first, optionally filtered by symbol.
func (s *Store) ListRecommendations(symbol string, limit int) ([]Recommendation, error) {
	if limit <= 0 {
		limit = 50
	}
	query := `SELECT id, symbol, recommendation_type, confidence_score, target_price, stop_loss,
		quantity, reasoning, analysis_type, time_horizon, risk_level, potential_impact,
		alternative_suggestions_json, created_at, executed_at, outcome, actual_return
		FROM recommendations WHERE 1=1`
	var args []interface{}
	if symbol != "" {
		query += " AND symbol = ?"
		args = append(args, symbol)
	}
	query += " ORDER BY created_at DESC LIMIT ?"
	args = append(args, limit)

	rows, err := s.db.Conn().Query(query, args...)
	if err != nil {
		return nil, apierrors.NewStorageError("list_recommendations", err)
	}
	defer rows.Close()

	var out []Recommendation
	for rows.Next() {
		rec, err := scanRecommendation(rows.Scan)
		if err != nil {
			return nil, apierrors.NewStorageError("list_recommendations:scan", err)
		}
		out = append(out, *rec)
	}
	return out, rows.Err()
}

// UpdateRecommendationOutcome stamps a recommendation's realized outcome and
// actual_return once the position it informed has closed.
func (s *Store) UpdateRecommendationOutcome(id, outcome string, actualReturn *float64) error {
	return s.withWriteTx(func(tx *sql.Tx) error {
		res, err := tx.Exec(`UPDATE recommendations SET outcome = ?, actual_return = ? WHERE id = ?`,
			outcome, actualReturn, id)
		if err != nil {
			return apierrors.NewStorageError("update_recommendation_outcome", err)
		}
		n, _ := res.RowsAffected()
		if n == 0 {
			return apierrors.NewNotFoundError("recommendation", id)
		}
		return nil
	})
}

func scanRecommendation(scan scanFunc) (*Recommendation, error) {
	var rec Recommendation
	var createdAt string
	var executedAt sql.NullString
	var altJSON string
	var outcome sql.NullString
	var actualReturn sql.NullFloat64
	if err := scan(&rec.ID, &rec.Symbol, &rec.RecommendationType, &rec.ConfidenceScore,
		&rec.TargetPrice, &rec.StopLoss, &rec.Quantity, &rec.Reasoning, &rec.AnalysisType,
		&rec.TimeHorizon, &rec.RiskLevel, &rec.PotentialImpact, &altJSON, &createdAt,
		&executedAt, &outcome, &actualReturn); err != nil {
		return nil, err
	}
	if t, err := time.Parse(time.RFC3339, createdAt); err == nil {
		rec.CreatedAt = t
	}
	rec.ExecutedAt = parseOptionalTime(executedAt)
	_ = json.Unmarshal([]byte(altJSON), &rec.AlternativeSuggestions)
	rec.Outcome = outcome.String
	if actualReturn.Valid {
		v := actualReturn.Float64
		rec.ActualReturn = &v
	}
	return &rec, nil
}

func isUniqueConstraintErr(err error) bool {
	if err == nil {
		return false
	}
	return containsAny(err.Error(), "UNIQUE constraint", "unique constraint")
}

func containsAny(s string, substrs ...string) bool {
	for _, sub := range substrs {
		if len(s) >= len(sub) {
			for i := 0; i+len(sub) <= len(s); i++ {
				if s[i:i+len(sub)] == sub {
					return true
				}
			}
		}
	}
	return false
}
