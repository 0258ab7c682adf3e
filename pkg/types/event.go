package types

import "time"

type EventType string

const (
	EventMonitorsExtracted EventType = "MonitorsExtracted"
	EventRecordSkipped     EventType = "RecordSkipped"
	EventDuplicateID       EventType = "DuplicateID"
	EventSentinelCollision EventType = "SentinelCollision"
	EventTemplatePatched   EventType = "TemplatePatched"
	EventTemplateUnchanged EventType = "TemplateUnchanged"
	EventTemplateDrift     EventType = "TemplateDrift"
)

type Event struct {
	Type      EventType      `json:"type"`
	Timestamp time.Time      `json:"ts"`
	RunID     string         `json:"run_id,omitempty"`
	MonitorID string         `json:"monitor_id,omitempty"`
	Path      string         `json:"path,omitempty"`
	Details   map[string]any `json:"details,omitempty"`
}
