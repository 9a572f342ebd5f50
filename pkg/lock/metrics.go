package lock

import "github.com/prometheus/client_golang/prometheus"

type Metrics struct {
	Acquires    *prometheus.CounterVec
	Retries     prometheus.Counter
	Held        prometheus.Gauge
	WaitSeconds prometheus.Histogram
}

// NewMetrics registers the lock collectors on reg. A nil reg leaves them
// unregistered.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		Acquires: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "zconfig",
			Subsystem: "lock",
			Name:      "acquires_total",
			Help:      "Lock acquisitions by result.",
		}, []string{"result"}),
		Retries: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "zconfig",
			Subsystem: "lock",
			Name:      "retries_total",
			Help:      "Acquire attempts retried under the retry policy.",
		}),
		Held: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "zconfig",
			Subsystem: "lock",
			Name:      "held",
			Help:      "Locks currently held by this instance.",
		}),
		WaitSeconds: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "zconfig",
			Subsystem: "lock",
			Name:      "wait_seconds",
			Help:      "Time from acquire call to lock held.",
			Buckets:   prometheus.DefBuckets,
		}),
	}
	if reg != nil {
		reg.MustRegister(m.Acquires, m.Retries, m.Held, m.WaitSeconds)
	}
	return m
}
