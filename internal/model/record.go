// Package model defines the canonical parsed event record shared by the
// ingestion pipeline and the in-memory view. Records are immutable once
// constructed; Clone produces an independent copy for export and detail views.
package model

import "time"

// Severity levels as emitted by event providers. Values outside 0..5 are
// clamped to LevelVerbose for any per-level table lookup.
const (
	LevelLogAlways   = 0
	LevelCritical    = 1
	LevelError       = 2
	LevelWarning     = 3
	LevelInformation = 4
	LevelVerbose     = 5

	// LevelCount is the size of every per-level table.
	LevelCount = 6
)

// DataPair is one name→value entry from the record's event data section.
// Insertion order is preserved.
type DataPair struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

// Record is a single parsed event log entry.
type Record struct {
	// Channel is the log channel this record was queried from
	// (e.g. "Application", "System").
	Channel string `json:"channel"`

	// EventID is the numeric identifier for this event type.
	EventID uint32 `json:"event_id"`

	// Level is the severity (0 = LogAlways .. 5 = Verbose).
	Level uint8 `json:"level"`

	// Provider is the event provider / source name.
	Provider string `json:"provider"`

	// Timestamp of the event in UTC.
	Timestamp time.Time `json:"timestamp"`

	// Computer is the machine name where the event was generated.
	Computer string `json:"computer"`

	// Message is the formatted message string. May be empty when the
	// provider metadata is unavailable.
	Message string `json:"message"`

	ProcessID uint32 `json:"process_id"`
	ThreadID  uint32 `json:"thread_id"`
	Task      uint16 `json:"task"`
	Opcode    uint8  `json:"opcode"`

	// Keywords is the provider keywords bitmask.
	Keywords uint64 `json:"keywords"`

	// ActivityID is the correlation activity ID, if present.
	ActivityID string `json:"activity_id,omitempty"`

	// PrincipalID identifies the security principal that produced the
	// event, if present.
	PrincipalID string `json:"principal_id,omitempty"`

	// EventData holds the parsed name→value pairs in payload order.
	EventData []DataPair `json:"event_data"`

	// RawPayload is the original serialized form, retained for the
	// detail view and raw-text search.
	RawPayload string `json:"raw_payload"`
}

var levelNames = [LevelCount]string{
	"LogAlways", "Critical", "Error", "Warning", "Information", "Verbose",
}

// ClampLevel maps a raw severity to a valid per-level table index.
func ClampLevel(level uint8) int {
	if level >= LevelCount {
		return LevelCount - 1
	}
	return int(level)
}

// LevelName returns the display name for a severity value.
func LevelName(level uint8) string {
	return levelNames[ClampLevel(level)]
}

// LevelName returns the display name for the record's severity.
func (r *Record) LevelName() string {
	return LevelName(r.Level)
}

// DisplayMessage returns a one-line summary for table display. Falls back
// to the first event data value when the formatted message is empty.
func (r *Record) DisplayMessage() string {
	if r.Message != "" {
		return r.Message
	}
	if len(r.EventData) > 0 {
		return r.EventData[0].Value
	}
	return "(no message)"
}

// Clone returns a deep copy of the record.
func (r *Record) Clone() *Record {
	c := *r
	c.EventData = make([]DataPair, len(r.EventData))
	copy(c.EventData, r.EventData)
	return &c
}
