package middlewares

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
)

var (
	requestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "ufanet_http_requests_total",
		Help: "HTTP requests served, by route and status",
	}, []string{"method", "route", "status"})

	requestDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "ufanet_http_request_duration_seconds",
		Help:    "HTTP request latency, by route",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "route"})
)

// RegisterMetrics adds the HTTP collectors to reg
func RegisterMetrics(reg prometheus.Registerer) {
	reg.MustRegister(requestsTotal, requestDuration, panicsTotal)
}

type MetricsMw struct {
	next http.Handler
}

func NewMetricsMw() mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return &MetricsMw{next: next}
	}
}

func (mw *MetricsMw) ServeHTTP(rw http.ResponseWriter, r *http.Request) {
	start := time.Now()
	rec := newStatusRecorder(rw, false)

	mw.next.ServeHTTP(rec, r)

	route := routeName(r)
	requestsTotal.WithLabelValues(r.Method, route, strconv.Itoa(rec.statusCode)).Inc()
	requestDuration.WithLabelValues(r.Method, route).Observe(time.Since(start).Seconds())
}

// the path template keeps the label set bounded
func routeName(r *http.Request) string {
	if route := mux.CurrentRoute(r); route != nil {
		if tmpl, err := route.GetPathTemplate(); err == nil {
			return tmpl
		}
	}
	return "other"
}
