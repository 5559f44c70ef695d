package statestore

import "time"

// PortfolioSnapshot is a full, snapshot-replaced view of current holdings
// and cash. There is exactly one row in the backing store; PutPortfolio
// replaces it wholesale.
type PortfolioSnapshot struct {
	AsOf           time.Time              `json:"as_of"`
	Cash           map[string]float64     `json:"cash"`
	Holdings       []Holding              `json:"holdings"`
	ExposureTotal  float64                `json:"exposure_total"`
	RiskAggregates map[string]interface{} `json:"risk_aggregates"`
}

// Holding is one position line within a PortfolioSnapshot.
type Holding struct {
	Symbol    string                 `json:"symbol"`
	Qty       float64                `json:"qty"`
	AvgPrice  float64                `json:"avg_price"`
	LastPrice float64                `json:"last_price"`
	PnL       float64                `json:"pnl"`
	Exposure  float64                `json:"exposure"`
	Tags      map[string]interface{} `json:"tags,omitempty"`
}

// IntentStatus is the closed set of lifecycle states for an Intent.
type IntentStatus string

const (
	IntentPending  IntentStatus = "pending"
	IntentApproved IntentStatus = "approved"
	IntentExecuted IntentStatus = "executed"
	IntentRejected IntentStatus = "rejected"
)

// Intent records one trading decision from signal through execution.
type Intent struct {
	ID                string                   `json:"id"`
	Symbol            string                   `json:"symbol"`
	CreatedAt         time.Time                `json:"created_at"`
	Signal            map[string]interface{}   `json:"signal,omitempty"`
	RiskDecision       map[string]interface{}  `json:"risk_decision,omitempty"`
	OrderCommands     []map[string]interface{} `json:"order_commands"`
	ExecutionReports  []map[string]interface{} `json:"execution_reports"`
	Status            IntentStatus             `json:"status"`
	ApprovedAt        *time.Time               `json:"approved_at,omitempty"`
	ExecutedAt        *time.Time               `json:"executed_at,omitempty"`
	Source            string                   `json:"source"`
}

// IntentFilter narrows ListIntents results; zero values mean "any".
type IntentFilter struct {
	Symbol string
	Status IntentStatus
	Limit  int
}

// TaskStatus is the closed set of lifecycle states for a Task.
type TaskStatus string

const (
	TaskPending   TaskStatus = "pending"
	TaskRunning   TaskStatus = "running"
	TaskCompleted TaskStatus = "completed"
	TaskFailed    TaskStatus = "failed"
	TaskCancelled TaskStatus = "cancelled"
)

// Task is a unit of deferred work claimed and executed by the scheduler.
type Task struct {
	ID          string                 `json:"id"`
	Type        string                 `json:"type"`
	Payload     map[string]interface{} `json:"payload"`
	Status      TaskStatus             `json:"status"`
	Priority    int                    `json:"priority"`
	QueueKey    string                 `json:"queue_key"`
	ScheduledAt time.Time              `json:"scheduled_at"`
	StartedAt   *time.Time             `json:"started_at,omitempty"`
	CompletedAt *time.Time             `json:"completed_at,omitempty"`
	Attempts    int                    `json:"attempts"`
	MaxAttempts int                    `json:"max_attempts"`
	LastError   string                 `json:"last_error,omitempty"`
}

// ExecutionRecord is an immutable, append-only record of one task attempt.
type ExecutionRecord struct {
	ID               string    `json:"id"`
	TaskName         string    `json:"task_name"`
	TaskID           string    `json:"task_id"`
	ExecutionType    string    `json:"execution_type"` // "scheduled" | "manual"
	User             string    `json:"user,omitempty"`
	Timestamp        time.Time `json:"timestamp"`
	Symbols          []string  `json:"symbols"`
	Status           string    `json:"status"`
	Error            string    `json:"error,omitempty"`
	DurationSeconds  float64   `json:"duration_seconds"`
}

// ExecutionFilter narrows QueryExecution results; zero values mean "any".
type ExecutionFilter struct {
	TaskName string
	Status   string
	Limit    int
}

// NewsItem is one fetched news article attached to a symbol.
type NewsItem struct {
	ID              string    `json:"id"`
	Symbol          string    `json:"symbol"`
	Title           string    `json:"title"`
	Summary         string    `json:"summary,omitempty"`
	Content         string    `json:"content,omitempty"`
	Source          string    `json:"source,omitempty"`
	Sentiment       string    `json:"sentiment,omitempty"`
	RelevanceScore  float64   `json:"relevance_score,omitempty"`
	PublishedAt     time.Time `json:"published_at"`
	FetchedAt       time.Time `json:"fetched_at"`
	Citations       []string  `json:"citations,omitempty"`
}

// EarningsReport is one fiscal-period earnings record for a symbol.
type EarningsReport struct {
	ID                string     `json:"id"`
	Symbol            string     `json:"symbol"`
	FiscalPeriod      string     `json:"fiscal_period"`
	FiscalYear        int        `json:"fiscal_year"`
	FiscalQuarter     int        `json:"fiscal_quarter"`
	ReportDate        time.Time  `json:"report_date"`
	EPSActual         float64    `json:"eps_actual"`
	EPSEstimated      float64    `json:"eps_estimated"`
	RevenueActual     float64    `json:"revenue_actual"`
	RevenueEstimated  float64    `json:"revenue_estimated"`
	SurprisePct       float64    `json:"surprise_pct"`
	Guidance          string     `json:"guidance,omitempty"`
	NextEarningsDate  *time.Time `json:"next_earnings_date,omitempty"`
	FetchedAt         time.Time  `json:"fetched_at"`
}

// FundamentalAnalysis is one dated fundamentals snapshot for a symbol.
type FundamentalAnalysis struct {
	ID               string                 `json:"id"`
	Symbol           string                 `json:"symbol"`
	AnalysisDate     time.Time              `json:"analysis_date"`
	PERatio          float64                `json:"pe_ratio"`
	PBRatio          float64                `json:"pb_ratio"`
	ROE              float64                `json:"roe"`
	ROA              float64                `json:"roa"`
	DebtToEquity     float64                `json:"debt_to_equity"`
	CurrentRatio     float64                `json:"current_ratio"`
	ProfitMargins    float64                `json:"profit_margins"`
	RevenueGrowth    float64                `json:"revenue_growth"`
	EarningsGrowth   float64                `json:"earnings_growth"`
	DividendYield    float64                `json:"dividend_yield"`
	MarketCap        float64                `json:"market_cap"`
	SectorPE         float64                `json:"sector_pe"`
	IndustryRank     int                    `json:"industry_rank"`
	OverallScore     float64                `json:"overall_score"`
	Recommendation   string                 `json:"recommendation"`
	AnalysisData     map[string]interface{} `json:"analysis_data,omitempty"`
}

// Recommendation is one handler-produced trading suggestion.
type Recommendation struct {
	ID                      string                   `json:"id"`
	Symbol                  string                   `json:"symbol"`
	RecommendationType      string                   `json:"recommendation_type"`
	ConfidenceScore         float64                  `json:"confidence_score"`
	TargetPrice             float64                  `json:"target_price,omitempty"`
	StopLoss                float64                  `json:"stop_loss,omitempty"`
	Quantity                float64                  `json:"quantity,omitempty"`
	Reasoning               string                   `json:"reasoning,omitempty"`
	AnalysisType            string                   `json:"analysis_type,omitempty"`
	TimeHorizon             string                   `json:"time_horizon,omitempty"`
	RiskLevel               string                   `json:"risk_level,omitempty"`
	PotentialImpact         string                   `json:"potential_impact,omitempty"`
	AlternativeSuggestions  []map[string]interface{} `json:"alternative_suggestions,omitempty"`
	CreatedAt               time.Time                `json:"created_at"`
	ExecutedAt              *time.Time               `json:"executed_at,omitempty"`
	Outcome                 string                   `json:"outcome,omitempty"`
	ActualReturn            *float64                 `json:"actual_return,omitempty"`
}

// Checkpoint is a named, restorable snapshot of portfolio and intents.
type Checkpoint struct {
	ID        string                 `json:"id"`
	Name      string                 `json:"name"`
	Timestamp time.Time              `json:"timestamp"`
	Metadata  map[string]interface{} `json:"metadata,omitempty"`
	Portfolio PortfolioSnapshot      `json:"portfolio"`
	Intents   []Intent               `json:"intents"`
}

// TaskSpec is one row of the control-plane's periodic task configuration:
// what to submit, how often, and at what priority.
type TaskSpec struct {
	TaskName         string `json:"task_name"`
	Enabled          bool   `json:"enabled"`
	FrequencySeconds int    `json:"frequency_seconds"`
	UseClaude        bool   `json:"use_claude"`
	Priority         int    `json:"priority"`
}

// ConfigurationEntry is one key/value row in the settings table.
type ConfigurationEntry struct {
	Key       string    `json:"key"`
	Value     string    `json:"value"`
	UpdatedAt time.Time `json:"updated_at"`
}
