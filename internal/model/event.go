package model

import "time"

// EventKind classifies pipeline events.
type EventKind string

const (
	EventStageStart  EventKind = "stage_start"
	EventStageEnd    EventKind = "stage_end"
	EventToken       EventKind = "token"
	EventError       EventKind = "error"
	EventPolicyBlock EventKind = "policy_block"
	EventPolicyPass  EventKind = "policy_pass"
)

// Stage names used in events and metrics.
const (
	StageHunter     = "hunter"
	StageEnricher   = "enricher"
	StageContactor  = "contactor"
	StageScorer     = "scorer"
	StageWriter     = "writer"
	StageCompliance = "compliance"
	StageSequencer  = "sequencer"
	StageCurator    = "curator"
)

// Event is one entry of the pipeline's observability stream.
type Event struct {
	Timestamp time.Time      `json:"ts"`
	RecordID  string         `json:"record_id,omitempty"`
	Stage     string         `json:"stage"`
	Kind      EventKind      `json:"type"`
	Message   string         `json:"message"`
	Payload   map[string]any `json:"payload,omitempty"`
}

// NewEvent builds an Event stamped with the current UTC time.
func NewEvent(recordID, stage string, kind EventKind, msg string, payload map[string]any) Event {
	return Event{
		Timestamp: time.Now().UTC(),
		RecordID:  recordID,
		Stage:     stage,
		Kind:      kind,
		Message:   msg,
		Payload:   payload,
	}
}
