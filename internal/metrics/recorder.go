// Package metrics records pipeline counters. Components depend on the
// Recorder interface; the process wires a Prometheus recorder, optionally
// fanned out to CloudWatch.
//
// Recorder methods never return errors and never block on I/O: a metrics
// backend outage must not slow down ingestion.
package metrics

import "time"

// Recorder is the set of measurements the pipeline emits.
type Recorder interface {
	NotificationReceived(channel string)
	Enqueued(queue string)
	Dropped(queue, reason string)
	Persisted(kind string, latency time.Duration)
	PersistFailed(kind string)
	AlertDerived()
	Reconnected()
	ForwardFailed(target string)
	QueueDepth(queue string, depth int)
}

// Nop discards all measurements.
type Nop struct{}

var _ Recorder = Nop{}

func (Nop) NotificationReceived(string)     {}
func (Nop) Enqueued(string)                 {}
func (Nop) Dropped(string, string)          {}
func (Nop) Persisted(string, time.Duration) {}
func (Nop) PersistFailed(string)            {}
func (Nop) AlertDerived()                   {}
func (Nop) Reconnected()                    {}
func (Nop) ForwardFailed(string)            {}
func (Nop) QueueDepth(string, int)          {}

// Multi sends every measurement to each recorder in order.
type Multi []Recorder

var _ Recorder = Multi(nil)

func (m Multi) NotificationReceived(channel string) {
	for _, r := range m {
		r.NotificationReceived(channel)
	}
}

func (m Multi) Enqueued(queue string) {
	for _, r := range m {
		r.Enqueued(queue)
	}
}

func (m Multi) Dropped(queue, reason string) {
	for _, r := range m {
		r.Dropped(queue, reason)
	}
}

func (m Multi) Persisted(kind string, latency time.Duration) {
	for _, r := range m {
		r.Persisted(kind, latency)
	}
}

func (m Multi) PersistFailed(kind string) {
	for _, r := range m {
		r.PersistFailed(kind)
	}
}

func (m Multi) AlertDerived() {
	for _, r := range m {
		r.AlertDerived()
	}
}

func (m Multi) Reconnected() {
	for _, r := range m {
		r.Reconnected()
	}
}

func (m Multi) ForwardFailed(target string) {
	for _, r := range m {
		r.ForwardFailed(target)
	}
}

func (m Multi) QueueDepth(queue string, depth int) {
	for _, r := range m {
		r.QueueDepth(queue, depth)
	}
}

// OrNop returns r, or Nop when r is nil.
func OrNop(r Recorder) Recorder {
	if r == nil {
		return Nop{}
	}
	return r
}
