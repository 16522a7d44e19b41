// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package metrics

import (
	"context"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/zzackllack/anibridge/internal/availability"
	"github.com/zzackllack/anibridge/internal/database"
	"github.com/zzackllack/anibridge/internal/domain"
	"github.com/zzackllack/anibridge/internal/models"
	"github.com/zzackllack/anibridge/internal/scheduler"
	"github.com/zzackllack/anibridge/internal/strmproxy"
)

// MetricsManager owns the Prometheus registry exposed at /metrics. It wraps
// the Go/process collectors every binary should ship alongside a jobCollector
// covering the scheduler and cache/proxy instrumentation this bridge adds on
// top of the database metrics collector.
type MetricsManager struct {
	registry     *prometheus.Registry
	jobCollector *jobCollector
}

// NewMetricsManager builds the registry. jobs is used to report job counts by
// lifecycle state; cache, sched and proxy may be nil (e.g. in a future
// alternate entrypoint that doesn't wire a STRM proxy), in which case the
// corresponding metrics are omitted from the scrape.
func NewMetricsManager(jobs *models.JobStore, cache *availability.Cache, sched *scheduler.Scheduler, proxy *strmproxy.Handler) *MetricsManager {
	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector())
	registry.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	registry.MustRegister(database.NewMetricsCollector())

	jc := newJobCollector(jobs, cache, sched, proxy)
	registry.MustRegister(jc)

	return &MetricsManager{registry: registry, jobCollector: jc}
}

// GetRegistry returns the registry served by the metrics HTTP server.
func (m *MetricsManager) GetRegistry() *prometheus.Registry {
	return m.registry
}

// jobCollector is a single prometheus.Collector exposing the bridge-specific
// gauges: job counts by
// lifecycle state, probe-cache hit ratio, STRM proxy refresh counts, and
// worker-pool utilization. Bundling them in one collector (rather than one
// per concern) keeps Describe/Collect trivial and matches
// database.MetricsCollector's shape.
type jobCollector struct {
	jobs  *models.JobStore
	cache *availability.Cache
	sched *scheduler.Scheduler
	proxy *strmproxy.Handler

	jobsByStatusDesc *prometheus.Desc
	cacheHitsDesc    *prometheus.Desc
	cacheMissesDesc  *prometheus.Desc
	proxyRefreshDesc *prometheus.Desc
	poolInFlightDesc *prometheus.Desc
	poolCapacityDesc *prometheus.Desc
}

func newJobCollector(jobs *models.JobStore, cache *availability.Cache, sched *scheduler.Scheduler, proxy *strmproxy.Handler) *jobCollector {
	return &jobCollector{
		jobs:  jobs,
		cache: cache,
		sched: sched,
		proxy: proxy,
		jobsByStatusDesc: prometheus.NewDesc(
			"anibridge_jobs_total",
			"Number of jobs currently in each lifecycle state",
			[]string{"status"},
			nil,
		),
		cacheHitsDesc: prometheus.NewDesc(
			"anibridge_availability_cache_hits_total",
			"Cumulative number of availability cache hits",
			nil,
			nil,
		),
		cacheMissesDesc: prometheus.NewDesc(
			"anibridge_availability_cache_misses_total",
			"Cumulative number of availability cache misses that required a live probe",
			nil,
			nil,
		),
		proxyRefreshDesc: prometheus.NewDesc(
			"anibridge_strmproxy_refresh_total",
			"Cumulative number of STRM proxy refresh-on-failure retries",
			nil,
			nil,
		),
		poolInFlightDesc: prometheus.NewDesc(
			"anibridge_worker_pool_in_flight",
			"Number of jobs currently holding a worker pool slot",
			nil,
			nil,
		),
		poolCapacityDesc: prometheus.NewDesc(
			"anibridge_worker_pool_capacity",
			"Configured worker pool size",
			nil,
			nil,
		),
	}
}

func (c *jobCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.jobsByStatusDesc
	ch <- c.cacheHitsDesc
	ch <- c.cacheMissesDesc
	ch <- c.proxyRefreshDesc
	ch <- c.poolInFlightDesc
	ch <- c.poolCapacityDesc
}

func (c *jobCollector) Collect(ch chan<- prometheus.Metric) {
	if c.jobs != nil {
		if counts, err := c.jobs.CountByStatus(context.Background()); err == nil {
			for _, status := range domain.AllJobStatuses() {
				ch <- prometheus.MustNewConstMetric(
					c.jobsByStatusDesc, prometheus.GaugeValue,
					float64(counts[status]), string(status),
				)
			}
		}
	}

	if c.cache != nil {
		hits, misses := c.cache.Stats()
		ch <- prometheus.MustNewConstMetric(c.cacheHitsDesc, prometheus.CounterValue, float64(hits))
		ch <- prometheus.MustNewConstMetric(c.cacheMissesDesc, prometheus.CounterValue, float64(misses))
	}

	if c.proxy != nil {
		ch <- prometheus.MustNewConstMetric(c.proxyRefreshDesc, prometheus.CounterValue, float64(c.proxy.RefreshCount()))
	}

	if c.sched != nil {
		ch <- prometheus.MustNewConstMetric(c.poolInFlightDesc, prometheus.GaugeValue, float64(c.sched.InFlight()))
		ch <- prometheus.MustNewConstMetric(c.poolCapacityDesc, prometheus.GaugeValue, float64(c.sched.MaxConcurrency()))
	}
}
