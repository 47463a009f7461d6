// Copyright © 2024 CloudSpan <oss@cloudspan.dev>
//
// Permission is hereby granted, free of charge, to any person obtaining a copy
// of this software and associated documentation files (the "Software"), to deal
// in the Software without restriction, including without limitation the rights
// to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
// copies of the Software, and to permit persons to whom the Software is
// furnished to do so, subject to the following conditions:
//
// The above copyright notice and this permission notice shall be included in
// all copies or substantial portions of the Software.
//
// THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
// IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
// FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
// AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
// LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
// OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN
// THE SOFTWARE.

// Package metricsint holds the one prometheus registry the engine, the event
// bus and the HTTP layer all write into. A dedicated registry keeps the
// /metrics output to exactly what this process registers.
package metricsint

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type Metrics struct {
	registry *prometheus.Registry

	FilesCopied     prometheus.Counter
	FilesFailed     prometheus.Counter
	FilesSkipped    prometheus.Counter
	BytesMoved      prometheus.Counter
	JobsCreated     *prometheus.CounterVec // by priority
	JobsFinished    *prometheus.CounterVec // by terminal status
	ActiveJobs      prometheus.Gauge
	QueuedFiles     prometheus.Gauge
	ActiveTransfers prometheus.Gauge

	EventsPublished prometheus.Counter
	EventsDropped   prometheus.Counter
	Subscribers     prometheus.Gauge

	HTTPRequests *prometheus.CounterVec // by code
	CatalogSize  *prometheus.GaugeVec   // by provider
}

func New() *Metrics {
	reg := prometheus.NewRegistry()
	m := &Metrics{
		registry: reg,
		FilesCopied: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "cloudspan_engine_files_copied_total",
			Help: "File transfers that reached VERIFIED.",
		}),
		FilesFailed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "cloudspan_engine_files_failed_total",
			Help: "File transfers that exhausted their attempts.",
		}),
		FilesSkipped: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "cloudspan_engine_files_skipped_total",
			Help: "File transfers skipped because their job was cancelled.",
		}),
		BytesMoved: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "cloudspan_engine_bytes_moved_total",
			Help: "Bytes written to destination providers.",
		}),
		JobsCreated: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "cloudspan_engine_jobs_created_total",
			Help: "Jobs admitted to the ready queue.",
		}, []string{"priority"}),
		JobsFinished: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "cloudspan_engine_jobs_finished_total",
			Help: "Jobs that reached a terminal status.",
		}, []string{"status"}),
		ActiveJobs: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "cloudspan_engine_active_jobs",
			Help: "Jobs currently pending or running.",
		}),
		QueuedFiles: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "cloudspan_engine_queued_files",
			Help: "File transfers waiting for a worker.",
		}),
		ActiveTransfers: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "cloudspan_engine_active_transfers",
			Help: "File transfers in flight right now.",
		}),
		EventsPublished: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "cloudspan_events_published_total",
			Help: "Events appended to the ring.",
		}),
		EventsDropped: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "cloudspan_events_dropped_total",
			Help: "Events shed from slow subscriber queues.",
		}),
		Subscribers: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "cloudspan_events_subscribers",
			Help: "Open push-channel subscriptions.",
		}),
		HTTPRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "cloudspan_http_requests_total",
			Help: "Control API requests by status code.",
		}, []string{"code"}),
		CatalogSize: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "cloudspan_catalog_objects",
			Help: "Objects in the catalog per provider.",
		}, []string{"provider"}),
	}
	reg.MustRegister(
		m.FilesCopied, m.FilesFailed, m.FilesSkipped, m.BytesMoved,
		m.JobsCreated, m.JobsFinished, m.ActiveJobs, m.QueuedFiles, m.ActiveTransfers,
		m.EventsPublished, m.EventsDropped, m.Subscribers,
		m.HTTPRequests, m.CatalogSize,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// Handler serves the registry for GET /metrics.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
