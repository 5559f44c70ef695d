// Package events provides typed, in-process publish/subscribe for the
// orchestration substrate. Every EventType has an associated concrete Go
// struct; Event.Data carries the JSON-roundtrippable map form for storage
// and logging, and GetTypedData/EmitTyped convert between the two.
package events

import (
	"encoding/json"
	"time"
)

// EventType is the closed set of event kinds the substrate publishes.
type EventType string

const (
	// Task lifecycle.
	TaskSubmitted EventType = "TASK_SUBMITTED"
	TaskCompleted EventType = "TASK_COMPLETED"
	TaskFailed    EventType = "TASK_FAILED"

	// Intent lifecycle.
	IntentCreated  EventType = "INTENT_CREATED"
	IntentApproved EventType = "INTENT_APPROVED"
	IntentExecuted EventType = "INTENT_EXECUTED"
	IntentRejected EventType = "INTENT_REJECTED"

	// Research/portfolio artifacts.
	RecommendationCreated EventType = "RECOMMENDATION_CREATED"
	PortfolioUpdated      EventType = "PORTFOLIO_UPDATED"
	CheckpointCreated     EventType = "CHECKPOINT_CREATED"
	CheckpointRestored    EventType = "CHECKPOINT_RESTORED"

	// BackupManager.
	BackupCreated EventType = "BACKUP_CREATED"
	BackupFailed  EventType = "BACKUP_FAILED"

	// APIClientCore.
	CircuitOpened EventType = "CIRCUIT_OPENED"
	CircuitClosed EventType = "CIRCUIT_CLOSED"

	// Cross-cutting.
	ExecutionFailed EventType = "EXECUTION_FAILED"
	SettingsChanged EventType = "SETTINGS_CHANGED"
	ErrorOccurred   EventType = "ERROR_OCCURRED"
)

// Event is an immutable, published notification.
type Event struct {
	ID        string                 `json:"id"`
	Type      EventType              `json:"type"`
	Timestamp time.Time              `json:"timestamp"`
	Source    string                 `json:"source"`
	Data      map[string]interface{} `json:"data"`
}

// GetTypedData converts the legacy map form back to its concrete struct for
// the event's type, or nil if the type has no typed struct or conversion
// fails.
func (e *Event) GetTypedData() EventData {
	if e.Data == nil {
		return nil
	}

	switch e.Type {
	case TaskSubmitted, TaskCompleted, TaskFailed:
		var data TaskEventData
		if err := convertMapToStruct(e.Data, &data); err == nil {
			return &data
		}
	case IntentCreated, IntentApproved, IntentExecuted, IntentRejected:
		var data IntentEventData
		if err := convertMapToStruct(e.Data, &data); err == nil {
			return &data
		}
	case RecommendationCreated:
		var data RecommendationEventData
		if err := convertMapToStruct(e.Data, &data); err == nil {
			return &data
		}
	case PortfolioUpdated:
		var data PortfolioEventData
		if err := convertMapToStruct(e.Data, &data); err == nil {
			return &data
		}
	case CheckpointCreated, CheckpointRestored:
		var data CheckpointEventData
		if err := convertMapToStruct(e.Data, &data); err == nil {
			return &data
		}
	case BackupCreated, BackupFailed:
		var data BackupEventData
		if err := convertMapToStruct(e.Data, &data); err == nil {
			return &data
		}
	case CircuitOpened, CircuitClosed:
		var data CircuitEventData
		if err := convertMapToStruct(e.Data, &data); err == nil {
			return &data
		}
	case ExecutionFailed:
		var data ExecutionFailedEventData
		if err := convertMapToStruct(e.Data, &data); err == nil {
			return &data
		}
	case SettingsChanged:
		var data SettingsChangedEventData
		if err := convertMapToStruct(e.Data, &data); err == nil {
			return &data
		}
	case ErrorOccurred:
		var data ErrorEventData
		if err := convertMapToStruct(e.Data, &data); err == nil {
			return &data
		}
	}

	return nil
}

func convertMapToStruct(m map[string]interface{}, v interface{}) error {
	jsonBytes, err := json.Marshal(m)
	if err != nil {
		return err
	}
	return json.Unmarshal(jsonBytes, v)
}

func convertEventDataToMap(data EventData) map[string]interface{} {
	if data == nil {
		return nil
	}
	jsonBytes, err := json.Marshal(data)
	if err != nil {
		return nil
	}
	var result map[string]interface{}
	if err := json.Unmarshal(jsonBytes, &result); err != nil {
		return nil
	}
	return result
}
