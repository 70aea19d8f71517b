// Package metrics exposes poll and decode counters through a
// registry-owning prometheus collector. All recording helpers are safe
// on a nil *Collector so instrumented packages never need to check
// whether metrics are enabled.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type Collector struct {
	reg *prometheus.Registry

	PollSuccess  *prometheus.CounterVec // agency label
	PollFailure  *prometheus.CounterVec
	PollDuration *prometheus.HistogramVec

	LiveTrains     *prometheus.GaugeVec
	DroppedRecords *prometheus.CounterVec // agency, level labels
	StaleBatches   *prometheus.CounterVec

	SnapCacheHits   prometheus.Counter
	SnapCacheMisses prometheus.Counter
}

func NewCollector() *Collector {
	reg := prometheus.NewRegistry()

	c := &Collector{
		reg: reg,
		PollSuccess: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "trainwatch_poll_success_total",
			Help: "Successful feed poll cycles per agency.",
		}, []string{"agency"}),
		PollFailure: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "trainwatch_poll_failure_total",
			Help: "Failed feed poll cycles per agency.",
		}, []string{"agency"}),
		PollDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "trainwatch_poll_duration_seconds",
			Help:    "Duration of one fetch-decrypt-decode cycle.",
			Buckets: prometheus.ExponentialBuckets(0.05, 2, 12),
		}, []string{"agency"}),
		LiveTrains: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "trainwatch_live_trains",
			Help: "Trains in the latest accepted batch per agency.",
		}, []string{"agency"}),
		DroppedRecords: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "trainwatch_dropped_records_total",
			Help: "Feed records dropped during decoding, by degradation level.",
		}, []string{"agency", "level"}),
		StaleBatches: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "trainwatch_stale_batches_total",
			Help: "Poll results discarded for being older than the held batch.",
		}, []string{"agency"}),
		SnapCacheHits: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "trainwatch_snap_cache_hits_total",
			Help: "Track snap results served from the memo cache.",
		}),
		SnapCacheMisses: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "trainwatch_snap_cache_misses_total",
			Help: "Track snap results computed fresh.",
		}),
	}

	reg.MustRegister(
		c.PollSuccess, c.PollFailure, c.PollDuration,
		c.LiveTrains, c.DroppedRecords, c.StaleBatches,
		c.SnapCacheHits, c.SnapCacheMisses,
	)
	return c
}

// ObservePoll records one poll cycle's outcome and duration.
func (c *Collector) ObservePoll(agency string, d time.Duration, err error) {
	if c == nil {
		return
	}
	c.PollDuration.WithLabelValues(agency).Observe(d.Seconds())
	if err != nil {
		c.PollFailure.WithLabelValues(agency).Inc()
		return
	}
	c.PollSuccess.WithLabelValues(agency).Inc()
}

// SetLiveTrains records the accepted batch size for an agency.
func (c *Collector) SetLiveTrains(agency string, n int) {
	if c == nil {
		return
	}
	c.LiveTrains.WithLabelValues(agency).Set(float64(n))
}

// RecordDrop counts a dropped feed record. Level is the degradation
// level that absorbed the error: field, stop or train.
func (c *Collector) RecordDrop(agency, level string) {
	if c == nil {
		return
	}
	c.DroppedRecords.WithLabelValues(agency, level).Inc()
}

// RecordStaleBatch counts a poll result the store refused.
func (c *Collector) RecordStaleBatch(agency string) {
	if c == nil {
		return
	}
	c.StaleBatches.WithLabelValues(agency).Inc()
}

// RecordSnap counts one snap lookup against the memo cache.
func (c *Collector) RecordSnap(hit bool) {
	if c == nil {
		return
	}
	if hit {
		c.SnapCacheHits.Inc()
		return
	}
	c.SnapCacheMisses.Inc()
}

func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.reg, promhttp.HandlerOpts{})
}
