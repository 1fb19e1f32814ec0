package replication

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics are the bridge's Prometheus instruments.
type Metrics struct {
	Pushed       prometheus.Counter
	PushFailures prometheus.Counter
	Pulled       prometheus.Counter
	PullRejected prometheus.Counter
	QueueDepth   prometheus.Gauge
}

// NewMetrics creates the instruments and registers them with reg.
// A nil reg leaves them unregistered.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		Pushed: f.NewCounter(prometheus.CounterOpts{
			Namespace: "tripbook",
			Subsystem: "replication",
			Name:      "pushed_total",
			Help:      "Changes accepted by the remote store.",
		}),
		PushFailures: f.NewCounter(prometheus.CounterOpts{
			Namespace: "tripbook",
			Subsystem: "replication",
			Name:      "push_failures_total",
			Help:      "Failed push attempts, including ones later retried.",
		}),
		Pulled: f.NewCounter(prometheus.CounterOpts{
			Namespace: "tripbook",
			Subsystem: "replication",
			Name:      "pulled_total",
			Help:      "Remote changes applied to the local store.",
		}),
		PullRejected: f.NewCounter(prometheus.CounterOpts{
			Namespace: "tripbook",
			Subsystem: "replication",
			Name:      "pull_rejected_total",
			Help:      "Remote changes the local store refused for good and skipped.",
		}),
		QueueDepth: f.NewGauge(prometheus.GaugeOpts{
			Namespace: "tripbook",
			Subsystem: "replication",
			Name:      "queue_depth",
			Help:      "Records waiting to be pushed.",
		}),
	}
}
