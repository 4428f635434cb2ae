/*
Copyright (c) Facebook, Inc. and its affiliates.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

// Package metrics exports a running Session's latency and status snapshot
// as Prometheus gauges for scraping.
package metrics

import (
	"context"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	log "github.com/sirupsen/logrus"

	"github.com/pwarproject/pwar/protocol"
	"github.com/pwarproject/pwar/session"
)

// Source is whatever supplies a metrics scrape; *session.Session is the only
// implementation, but keeping this as an interface lets tests substitute a
// stub snapshot source.
type Source interface {
	GetLatencyMetrics() (protocol.Metrics, uint32, session.StatusKind)
}

// Exporter periodically reads a Source's snapshot into a set of Prometheus
// gauges and serves them over HTTP.
type Exporter struct {
	registry *prometheus.Registry
	source   Source
	interval time.Duration

	audioProcMin, audioProcMax, audioProcAvg prometheus.Gauge
	jitterMin, jitterMax, jitterAvg          prometheus.Gauge
	rttMin, rttMax, rttAvg                   prometheus.Gauge
	underruns                                prometheus.Gauge
	remoteBlockSize                          prometheus.Gauge
	status                                   prometheus.Gauge
}

// NewExporter returns an Exporter reading source every interval, registering
// its gauges under the "pwar" namespace.
func NewExporter(source Source, interval time.Duration) *Exporter {
	reg := prometheus.NewRegistry()
	gauge := func(name, help string) prometheus.Gauge {
		g := prometheus.NewGauge(prometheus.GaugeOpts{Namespace: "pwar", Name: name, Help: help})
		reg.MustRegister(g)
		return g
	}
	return &Exporter{
		registry:         reg,
		source:           source,
		interval:         interval,
		audioProcMin:     gauge("audio_proc_min_ns", "minimum observed audio callback duration, in nanoseconds"),
		audioProcMax:     gauge("audio_proc_max_ns", "maximum observed audio callback duration, in nanoseconds"),
		audioProcAvg:     gauge("audio_proc_avg_ns", "mean observed audio callback duration, in nanoseconds"),
		jitterMin:        gauge("jitter_min_ns", "minimum observed inter-arrival jitter, in nanoseconds"),
		jitterMax:        gauge("jitter_max_ns", "maximum observed inter-arrival jitter, in nanoseconds"),
		jitterAvg:        gauge("jitter_avg_ns", "mean observed inter-arrival jitter, in nanoseconds"),
		rttMin:           gauge("rtt_min_ns", "minimum observed round-trip time, in nanoseconds"),
		rttMax:           gauge("rtt_max_ns", "maximum observed round-trip time, in nanoseconds"),
		rttAvg:           gauge("rtt_avg_ns", "mean observed round-trip time, in nanoseconds"),
		underruns:        gauge("underruns_total", "count of underruns in the most recently closed report window"),
		remoteBlockSize:  gauge("remote_block_size_samples", "most recently observed remote block size, in samples"),
		status:           gauge("status", "0 if OK, 1 if no response from peer"),
	}
}

// Handler returns the /metrics HTTP handler for this Exporter's registry.
func (e *Exporter) Handler() http.Handler {
	return promhttp.HandlerFor(e.registry, promhttp.HandlerOpts{EnableOpenMetrics: true})
}

// Run scrapes the Source every interval until ctx is cancelled.
func (e *Exporter) Run(ctx context.Context) {
	ticker := time.NewTicker(e.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			e.scrape()
		}
	}
}

func (e *Exporter) scrape() {
	m, remoteBlockSize, status := e.source.GetLatencyMetrics()
	e.audioProcMin.Set(float64(m.AudioProcMinNS))
	e.audioProcMax.Set(float64(m.AudioProcMaxNS))
	e.audioProcAvg.Set(float64(m.AudioProcAvgNS))
	e.jitterMin.Set(float64(m.JitterMinNS))
	e.jitterMax.Set(float64(m.JitterMaxNS))
	e.jitterAvg.Set(float64(m.JitterAvgNS))
	e.rttMin.Set(float64(m.RTTMinNS))
	e.rttMax.Set(float64(m.RTTMaxNS))
	e.rttAvg.Set(float64(m.RTTAvgNS))
	e.underruns.Set(float64(m.Underruns))
	e.remoteBlockSize.Set(float64(remoteBlockSize))
	if status == session.StatusOK {
		e.status.Set(0)
	} else {
		e.status.Set(1)
	}
	log.Debugf("metrics: scraped snapshot, status=%s", status.String())
}
