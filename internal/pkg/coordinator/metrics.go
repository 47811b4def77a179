package coordinator

import (
	"github.com/prometheus/client_golang/prometheus"
)

type metrics struct {
	refreshes     *prometheus.CounterVec
	duration      prometheus.Histogram
	fetchFailures *prometheus.CounterVec
	doorOpens     *prometheus.CounterVec
	logins        prometheus.Counter
	lastSuccess   prometheus.Gauge
}

func newMetrics() *metrics {
	return &metrics{
		refreshes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "ufanet_refresh_total",
			Help: "Refresh cycles by result.",
		}, []string{"result"}),
		duration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "ufanet_refresh_duration_seconds",
			Help:    "Time taken by a refresh cycle.",
			Buckets: prometheus.DefBuckets,
		}),
		fetchFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "ufanet_fetch_failures_total",
			Help: "Resource fetches that degraded to an empty collection.",
		}, []string{"resource"}),
		doorOpens: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "ufanet_door_open_total",
			Help: "Door open commands by result.",
		}, []string{"result"}),
		logins: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "ufanet_logins_total",
			Help: "Successful logins to the vendor API.",
		}),
		lastSuccess: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "ufanet_last_success_timestamp_seconds",
			Help: "Unix time of the last published snapshot.",
		}),
	}
}

func (m *metrics) collectors() []prometheus.Collector {
	return []prometheus.Collector{m.refreshes, m.duration, m.fetchFailures, m.doorOpens, m.logins, m.lastSuccess}
}

func result(ok bool) string {
	if ok {
		return "success"
	}
	return "failure"
}
