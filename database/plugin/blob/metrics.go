// Copyright 2026 Blink Labs Software
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package blob

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics counts blob operations. A nil *Metrics is valid and records
// nothing.
type Metrics struct {
	ops   *prometheus.CounterVec
	bytes *prometheus.CounterVec
}

// NewMetrics registers the blob metrics for a plugin, or returns nil when
// registry is nil
func NewMetrics(registry prometheus.Registerer, pluginName string) *Metrics {
	if registry == nil {
		return nil
	}
	factory := promauto.With(
		prometheus.WrapRegistererWith(prometheus.Labels{"plugin": pluginName}, registry),
	)
	return &Metrics{
		ops: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "daogov_blob_ops_total",
				Help: "blob store operations by type and result",
			},
			[]string{"op", "result"},
		),
		bytes: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "daogov_blob_bytes_total",
				Help: "bytes read and written by the blob store",
			},
			[]string{"op"},
		),
	}
}

// Observe records an operation. n is the number of bytes moved.
func (m *Metrics) Observe(op string, n int, err error) {
	if m == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.ops.WithLabelValues(op, result).Inc()
	if n > 0 {
		m.bytes.WithLabelValues(op).Add(float64(n))
	}
}
