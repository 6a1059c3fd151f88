// RTLBLE - An rtl-sdr receiver for Bluetooth Low Energy advertisements.
// Copyright (C) 2024 The rtlble Authors
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published
// by the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU Affero General Public License for more details.
//
// You should have received a copy of the GNU Affero General Public License
// along with this program.  If not, see <http://www.gnu.org/licenses/>.

package main

import (
	"net/http"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	log "github.com/sirupsen/logrus"

	"github.com/bemasher/rtlble/decode"
)

// Metrics counts decoder activity per channel.
type Metrics struct {
	packets   *prometheus.CounterVec
	truncated *prometheus.CounterVec
	failures  *prometheus.CounterVec
	samples   *prometheus.CounterVec
	emitted   *prometheus.CounterVec
}

func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	labels := []string{"channel"}

	return &Metrics{
		packets: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "rtlble_packets_total",
				Help: "Packets synchronized and framed",
			},
			labels,
		),
		truncated: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "rtlble_packets_truncated_total",
				Help: "Packets shorter than their header's length field",
			},
			labels,
		),
		failures: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "rtlble_sync_failures_total",
				Help: "Segments in which no access address was found",
			},
			labels,
		),
		samples: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "rtlble_samples_total",
				Help: "Complex samples processed",
			},
			labels,
		),
		emitted: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "rtlble_packets_emitted_total",
				Help: "Packets passing the filter chain",
			},
			labels,
		),
	}
}

// Observe adds a chunk's report to the channel's counters.
func (m *Metrics) Observe(channel int, r decode.Report) {
	ch := strconv.Itoa(channel)

	m.packets.WithLabelValues(ch).Add(float64(r.Found))
	m.truncated.WithLabelValues(ch).Add(float64(r.Truncated))
	m.failures.WithLabelValues(ch).Add(float64(r.Failed))
	m.samples.WithLabelValues(ch).Add(float64(r.Samples))
}

func (m *Metrics) Emitted(channel int) {
	m.emitted.WithLabelValues(strconv.Itoa(channel)).Inc()
}

// ServeMetrics exposes the registry's metrics on addr in the background.
func ServeMetrics(addr string, gatherer prometheus.Gatherer) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))

	go func() {
		log.WithField("addr", addr).Info("serving metrics")
		if err := http.ListenAndServe(addr, mux); err != nil {
			log.WithError(err).Error("metrics server stopped")
		}
	}()
}
