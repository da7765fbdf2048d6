package events

import (
	"encoding/json"
	"time"
)

// EventPayload is the interface all typed payloads implement.
type EventPayload interface {
	EventType() EventType
}

// =============================================================================
// REGISTRY EVENTS
// =============================================================================

// SkillChangePayload describes a coalesced skill lifecycle notification.
type SkillChangePayload struct {
	SkillName    string `json:"skill_name"`
	Version      int    `json:"version"`
	CommandCount int    `json:"command_count"`
}

func (SkillChangePayload) EventType() EventType { return EventSkillLoaded }

// =============================================================================
// HOLOGRAPHIC INDEX EVENTS
// =============================================================================

type IndexUpsertedPayload struct {
	ID string `json:"id"`
}

func (IndexUpsertedPayload) EventType() EventType { return EventIndexUpserted }

type IndexReconciledPayload struct {
	Removed   int `json:"removed"`
	Reindexed int `json:"reindexed"`
}

func (IndexReconciledPayload) EventType() EventType { return EventIndexReconciled }

// =============================================================================
// DISPATCH EVENTS
// =============================================================================

type DispatchPayload struct {
	Skill    string        `json:"skill"`
	Command  string        `json:"command"`
	Mode     string        `json:"mode"`
	Duration time.Duration `json:"duration,omitempty"`
	Kind     string        `json:"kind,omitempty"`
	Error    string        `json:"error,omitempty"`
}

func (DispatchPayload) EventType() EventType { return EventDispatchStarted }

// =============================================================================
// FEEDBACK EVENTS
// =============================================================================

type FeedbackPayload struct {
	Query   string  `json:"query"`
	Skill   string   `json:"skill"`
	Success bool    `json:"success"`
	Score   float64 `json:"score"`
}

func (FeedbackPayload) EventType() EventType { return EventFeedbackRecorded }

// =============================================================================
// ROUTER EVENTS
// =============================================================================

type RoutePayload struct {
	Query      string  `json:"query"`
	Skill      string  `json:"skill"`
	Command    string  `json:"command"`
	Confidence float64 `json:"confidence"`
	FromCache  bool    `json:"from_cache"`
}

func (RoutePayload) EventType() EventType { return EventRouteResolved }

// =============================================================================
// AGENT LOOP EVENTS
// =============================================================================

type AgentStepPayload struct {
	Step    int    `json:"step"`
	State   string `json:"state"` // observe | orient | act
	ToolUsed string `json:"tool_used,omitempty"`
}

func (AgentStepPayload) EventType() EventType { return EventAgentStepStarted }

// =============================================================================
// TYPED EVENT CONSTRUCTORS
// =============================================================================

func NewTypedEvent(source EventSource, payload EventPayload) Event {
	return Event{
		ID:        generateEventID(),
		Type:      payload.EventType(),
		Timestamp: time.Now(),
		Source:    source,
		Payload:   toMap(payload),
	}
}

func NewTypedEventWithTrace(source EventSource, payload EventPayload, traceID string) Event {
	return Event{
		ID:        generateEventID(),
		TraceID:   traceID,
		Type:      payload.EventType(),
		Timestamp: time.Now(),
		Source:    source,
		Payload:   toMap(payload),
	}
}

func toMap(v any) map[string]any {
	var result map[string]any
	data, err := json.Marshal(v)
	if err != nil {
		return nil
	}
	if err := json.Unmarshal(data, &result); err != nil {
		return nil
	}
	return result
}

// =============================================================================
// TYPED PAYLOAD EXTRACTORS
// =============================================================================

func ExtractPayload[T EventPayload](e Event) (T, bool) {
	var result T
	data, err := json.Marshal(e.Payload)
	if err != nil {
		return result, false
	}
	if err := json.Unmarshal(data, &result); err != nil {
		return result, false
	}
	return result, true
}
