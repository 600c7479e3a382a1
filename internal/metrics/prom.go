package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Collectors groups the pipeline's Prometheus instruments. A nil *Collectors
// is valid and records nothing.
type Collectors struct {
	Rooms          *prometheus.CounterVec
	SourceRequests *prometheus.CounterVec
	LookupDuration *prometheus.HistogramVec
	RunDuration    prometheus.Gauge
	LastRecords    prometheus.Gauge
	LastSuccess    prometheus.Gauge
}

func NewCollectors(reg prometheus.Registerer) *Collectors {
	c := &Collectors{
		Rooms: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "leadfunnel",
			Name:      "rooms_total",
			Help:      "Rooms processed, by terminal outcome.",
		}, []string{"outcome"}),
		SourceRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "leadfunnel",
			Name:      "source_requests_total",
			Help:      "Chat platform API calls, by operation and result.",
		}, []string{"op", "status"}),
		LookupDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "leadfunnel",
			Name:      "lookup_duration_seconds",
			Help:      "Booking and transaction lookup latency.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"kind", "status"}),
		RunDuration: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "leadfunnel",
			Name:      "last_run_duration_seconds",
			Help:      "Wall time of the last completed run.",
		}),
		LastRecords: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "leadfunnel",
			Name:      "last_run_records",
			Help:      "Funnel records emitted by the last completed run.",
		}),
		LastSuccess: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "leadfunnel",
			Name:      "last_success_timestamp_seconds",
			Help:      "Unix time of the last run that wrote its report.",
		}),
	}
	if reg != nil {
		reg.MustRegister(c.Rooms, c.SourceRequests, c.LookupDuration, c.RunDuration, c.LastRecords, c.LastSuccess)
	}
	return c
}

func (c *Collectors) Room(outcome string) {
	if c == nil {
		return
	}
	c.Rooms.WithLabelValues(outcome).Inc()
}

func (c *Collectors) Source(op, status string) {
	if c == nil {
		return
	}
	c.SourceRequests.WithLabelValues(op, status).Inc()
}

func (c *Collectors) Lookup(kind, status string, d time.Duration) {
	if c == nil {
		return
	}
	c.LookupDuration.WithLabelValues(kind, status).Observe(d.Seconds())
}

func (c *Collectors) Run(d time.Duration, records int, written bool) {
	if c == nil {
		return
	}
	c.RunDuration.Set(d.Seconds())
	c.LastRecords.Set(float64(records))
	if written {
		c.LastSuccess.SetToCurrentTime()
	}
}
