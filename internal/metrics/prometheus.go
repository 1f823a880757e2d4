package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const promNamespace = "eventpipe"

// Prometheus exposes pipeline measurements as Prometheus collectors.
type Prometheus struct {
	received       *prometheus.CounterVec
	enqueued       *prometheus.CounterVec
	dropped        *prometheus.CounterVec
	persisted      *prometheus.CounterVec
	persistFailed  *prometheus.CounterVec
	persistLatency *prometheus.HistogramVec
	alertsDerived  prometheus.Counter
	reconnects     prometheus.Counter
	forwardFailed  *prometheus.CounterVec
	queueDepth     *prometheus.GaugeVec
}

var _ Recorder = (*Prometheus)(nil)

// NewPrometheus creates the collectors and registers them with reg.
// Registration fails if the same collectors are already registered.
func NewPrometheus(reg prometheus.Registerer) (*Prometheus, error) {
	p := &Prometheus{
		received: prometheus.NewCounterVec(
			prometheus.CounterOpts{Namespace: promNamespace, Subsystem: "listener", Name: "notifications_received_total", Help: "Notifications read from the transport, by channel."},
			[]string{"channel"},
		),
		enqueued: prometheus.NewCounterVec(
			prometheus.CounterOpts{Namespace: promNamespace, Subsystem: "queue", Name: "enqueued_total", Help: "Items accepted into a bounded queue."},
			[]string{"queue"},
		),
		dropped: prometheus.NewCounterVec(
			prometheus.CounterOpts{Namespace: promNamespace, Subsystem: "queue", Name: "dropped_total", Help: "Items discarded before persistence, by reason."},
			[]string{"queue", "reason"},
		),
		persisted: prometheus.NewCounterVec(
			prometheus.CounterOpts{Namespace: promNamespace, Subsystem: "store", Name: "persisted_total", Help: "Items written to the durable store."},
			[]string{"kind"},
		),
		persistFailed: prometheus.NewCounterVec(
			prometheus.CounterOpts{Namespace: promNamespace, Subsystem: "store", Name: "persist_failures_total", Help: "Failed persistence transactions."},
			[]string{"kind"},
		),
		persistLatency: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{Namespace: promNamespace, Subsystem: "store", Name: "persist_duration_seconds", Help: "Per-item transaction latency.", Buckets: prometheus.DefBuckets},
			[]string{"kind"},
		),
		alertsDerived: prometheus.NewCounter(
			prometheus.CounterOpts{Namespace: promNamespace, Subsystem: "alerts", Name: "derived_total", Help: "Alerts derived from critical events."},
		),
		reconnects: prometheus.NewCounter(
			prometheus.CounterOpts{Namespace: promNamespace, Subsystem: "transport", Name: "reconnects_total", Help: "Successful transport reconnects."},
		),
		forwardFailed: prometheus.NewCounterVec(
			prometheus.CounterOpts{Namespace: promNamespace, Subsystem: "fanout", Name: "forward_failures_total", Help: "Best-effort forwarding failures."},
			[]string{"target"},
		),
		queueDepth: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{Namespace: promNamespace, Subsystem: "queue", Name: "depth", Help: "Items buffered in a bounded queue."},
			[]string{"queue"},
		),
	}

	for _, c := range []prometheus.Collector{
		p.received, p.enqueued, p.dropped, p.persisted, p.persistFailed,
		p.persistLatency, p.alertsDerived, p.reconnects, p.forwardFailed, p.queueDepth,
	} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return p, nil
}

func (p *Prometheus) NotificationReceived(channel string) {
	p.received.WithLabelValues(channel).Inc()
}

func (p *Prometheus) Enqueued(queue string) {
	p.enqueued.WithLabelValues(queue).Inc()
}

func (p *Prometheus) Dropped(queue, reason string) {
	p.dropped.WithLabelValues(queue, reason).Inc()
}

func (p *Prometheus) Persisted(kind string, latency time.Duration) {
	p.persisted.WithLabelValues(kind).Inc()
	p.persistLatency.WithLabelValues(kind).Observe(latency.Seconds())
}

func (p *Prometheus) PersistFailed(kind string) {
	p.persistFailed.WithLabelValues(kind).Inc()
}

func (p *Prometheus) AlertDerived() { p.alertsDerived.Inc() }

func (p *Prometheus) Reconnected() { p.reconnects.Inc() }

func (p *Prometheus) ForwardFailed(target string) {
	p.forwardFailed.WithLabelValues(target).Inc()
}

func (p *Prometheus) QueueDepth(queue string, depth int) {
	p.queueDepth.WithLabelValues(queue).Set(float64(depth))
}
