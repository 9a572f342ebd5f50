package resource

import "github.com/prometheus/client_golang/prometheus"

type Metrics struct {
	Downloads       *prometheus.CounterVec
	DownloadSeconds *prometheus.HistogramVec
	CacheHits       prometheus.Counter
	BlobReadBytes   prometheus.Counter
}

// NewMetrics registers the resource collectors on reg. A nil reg leaves them
// unregistered.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		Downloads: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "zconfig",
			Subsystem: "resource",
			Name:      "downloads_total",
			Help:      "Remote resource downloads by scheme and result.",
		}, []string{"scheme", "result"}),
		DownloadSeconds: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "zconfig",
			Subsystem: "resource",
			Name:      "download_duration_seconds",
			Help:      "Time spent downloading remote resources.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"scheme"}),
		CacheHits: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "zconfig",
			Subsystem: "resource",
			Name:      "cache_hits_total",
			Help:      "Remote resources served from the local cache.",
		}),
		BlobReadBytes: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "zconfig",
			Subsystem: "resource",
			Name:      "blob_read_bytes_total",
			Help:      "Bytes returned by blob partial reads.",
		}),
	}
	if reg != nil {
		reg.MustRegister(m.Downloads, m.DownloadSeconds, m.CacheHits, m.BlobReadBytes)
	}
	return m
}
