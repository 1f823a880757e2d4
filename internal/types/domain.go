package types

import (
	"encoding/json"
	"time"
)

// Severity is the level attached to every telemetry event by its publisher.
type Severity string

const (
	SeverityDebug   Severity = "debug"
	SeverityInfo    Severity = "info"
	SeverityWarning Severity = "warning"
	SeverityError   Severity = "error"
	SeverityFatal   Severity = "fatal"
)

// Valid reports whether s is one of the known severity levels.
func (s Severity) Valid() bool {
	switch s {
	case SeverityDebug, SeverityInfo, SeverityWarning, SeverityError, SeverityFatal:
		return true
	default:
		return false
	}
}

// Critical reports whether s is on the alerting path (error or fatal).
func (s Severity) Critical() bool {
	return s == SeverityError || s == SeverityFatal
}

// Endpoint describes the client that produced an event. On the wire its
// fields are flattened into the event object with an "endpoint_" prefix.
type Endpoint struct {
	ID             string `json:"endpoint_id,omitempty" validate:"required_with=Language Platform OS OSVersion Runtime RuntimeVersion Country UserAgent DeviceType,max=64"`
	Language       string `json:"endpoint_language,omitempty" validate:"omitempty,max=10"`
	Platform       string `json:"endpoint_platform,omitempty" validate:"omitempty,max=50"`
	OS             string `json:"endpoint_os,omitempty" validate:"omitempty,max=50"`
	OSVersion      string `json:"endpoint_os_version,omitempty" validate:"omitempty,max=20"`
	Runtime        string `json:"endpoint_runtime,omitempty" validate:"omitempty,max=50"`
	RuntimeVersion string `json:"endpoint_runtime_version,omitempty" validate:"omitempty,max=20"`
	Country        string `json:"endpoint_country,omitempty" validate:"omitempty,len=2"`
	UserAgent      string `json:"endpoint_user_agent,omitempty"`
	DeviceType     string `json:"endpoint_device_type,omitempty" validate:"omitempty,max=20"`
}

// Event is one telemetry occurrence as published on the notification
// channel. Timestamps are epoch milliseconds.
//
// An Event is owned by exactly one stage at a time (listener, queue, worker).
// After validation the only field a stage may change is Processed.
type Event struct {
	ID         string         `json:"id" validate:"required,max=64"`
	Severity   Severity       `json:"severity" validate:"required,oneof=debug info warning error fatal"`
	Type       string         `json:"type,omitempty" validate:"omitempty,max=100"`
	Stack      string         `json:"stack,omitempty"`
	Timestamp  int64          `json:"timestamp"`
	ReceivedAt int64          `json:"received_at"`
	Resource   string         `json:"resource" validate:"required"`
	Referrer   string         `json:"referrer,omitempty"`
	AppName    string         `json:"app_name" validate:"required,max=255"`
	AppVersion string         `json:"app_version,omitempty" validate:"omitempty,max=50"`
	AppStage   string         `json:"app_stage,omitempty" validate:"omitempty,max=50"`
	Tags       map[string]any `json:"tags,omitempty"`
	Endpoint

	// Processed is set by the worker immediately before persistence.
	Processed bool `json:"processed,omitempty"`

	// Raw holds the payload exactly as received, kept for forensic replay.
	Raw json.RawMessage `json:"-"`
}

// Alert is the critical-path view of an Event whose severity is error or
// fatal. It is never mutated after derivation.
type Alert struct {
	ID        string          `json:"id" validate:"required,max=64"`
	Severity  Severity        `json:"severity" validate:"required,oneof=error fatal"`
	Resource  string          `json:"resource" validate:"required"`
	Payload   json.RawMessage `json:"payload"`
	DerivedAt time.Time       `json:"derived_at"`
}

