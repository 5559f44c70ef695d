package events

// EventData is implemented by every typed event payload, letting
// EmitTyped/GetTypedData move between the concrete struct and the
// JSON-roundtrippable map carried on Event.Data.
type EventData interface {
	EventType() EventType
}

// TaskEventData describes a task crossing a lifecycle boundary
// (submitted, completed, or failed).
type TaskEventData struct {
	TaskID   string `json:"task_id"`
	TaskType string `json:"task_type"`
	QueueKey string `json:"queue_key"`
	Attempt  int    `json:"attempt,omitempty"`
	Error    string `json:"error,omitempty"`
}

func (d *TaskEventData) EventType() EventType {
	return TaskSubmitted
}

// IntentEventData describes an intent crossing a lifecycle boundary.
type IntentEventData struct {
	IntentID string `json:"intent_id"`
	Symbol   string `json:"symbol"`
	Signal   string `json:"signal"`
	Source   string `json:"source"`
	Reason   string `json:"reason,omitempty"`
}

func (d *IntentEventData) EventType() EventType {
	return IntentCreated
}

// RecommendationEventData describes a freshly persisted recommendation.
type RecommendationEventData struct {
	Symbol     string  `json:"symbol"`
	Action     string  `json:"action"`
	Confidence float64 `json:"confidence"`
}

func (d *RecommendationEventData) EventType() EventType {
	return RecommendationCreated
}

// PortfolioEventData describes a portfolio snapshot write.
type PortfolioEventData struct {
	AsOf         string  `json:"as_of"`
	TotalValue   float64 `json:"total_value"`
	HoldingCount int     `json:"holding_count"`
}

func (d *PortfolioEventData) EventType() EventType {
	return PortfolioUpdated
}

// CheckpointEventData describes a checkpoint create/restore.
type CheckpointEventData struct {
	CheckpointID string `json:"checkpoint_id"`
	Name         string `json:"name"`
}

func (d *CheckpointEventData) EventType() EventType {
	return CheckpointCreated
}

// BackupEventData describes a backup attempt outcome.
type BackupEventData struct {
	Path  string `json:"path"`
	Label string `json:"label"`
	Error string `json:"error,omitempty"`
}

func (d *BackupEventData) EventType() EventType {
	return BackupCreated
}

// CircuitEventData describes an APIClientCore circuit breaker transition.
type CircuitEventData struct {
	ClientName string `json:"client_name"`
	Reason     string `json:"reason,omitempty"`
}

func (d *CircuitEventData) EventType() EventType {
	return CircuitOpened
}

// ExecutionFailedEventData describes a task execution-history failure entry.
type ExecutionFailedEventData struct {
	TaskName string `json:"task_name"`
	Error    string `json:"error"`
}

func (d *ExecutionFailedEventData) EventType() EventType {
	return ExecutionFailed
}

// SettingsChangedEventData describes a settings-table mutation.
type SettingsChangedEventData struct {
	Key      string `json:"key"`
	OldValue string `json:"old_value,omitempty"`
	NewValue string `json:"new_value"`
}

func (d *SettingsChangedEventData) EventType() EventType {
	return SettingsChanged
}

// ErrorEventData describes an out-of-band error worth broadcasting.
type ErrorEventData struct {
	Component string `json:"component"`
	Message   string `json:"message"`
}

func (d *ErrorEventData) EventType() EventType {
	return ErrorOccurred
}
