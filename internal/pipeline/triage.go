package pipeline

import (
	"encoding/json"
	"time"

	"eventpipe/internal/types"
)

// IsCritical is the alert-triage rule: an event is alerted on iff its
// severity is error or fatal.
func IsCritical(s types.Severity) bool {
	return s.Critical()
}

// DeriveAlert builds the alert view of a validated event. The returned
// alert shares no memory with ev. When ev was not decoded from the wire the
// payload is its JSON encoding.
func DeriveAlert(ev *types.Event, now time.Time) *types.Alert {
	var payload []byte
	if len(ev.Raw) > 0 {
		payload = make([]byte, len(ev.Raw))
		copy(payload, ev.Raw)
	} else if b, err := json.Marshal(ev); err == nil {
		payload = b
	}
	return &types.Alert{
		ID:        ev.ID,
		Severity:  ev.Severity,
		Resource:  ev.Resource,
		Payload:   payload,
		DerivedAt: now.UTC(),
	}
}
