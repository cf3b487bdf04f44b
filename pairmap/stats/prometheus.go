// Copyright © 2023-2024 Wei Shen <shenwei356@gmail.com>
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

package stats

import (
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
)

// PrometheusSink exports stage timings as prometheus metrics.
type PrometheusSink struct {
	registry *prometheus.Registry

	calls  *prometheus.CounterVec
	items  *prometheus.CounterVec
	host   *prometheus.CounterVec
	device *prometheus.CounterVec
	batch  *prometheus.HistogramVec
}

// NewPrometheusSink creates a sink with its own registry.
func NewPrometheusSink(namespace string) *PrometheusSink {
	p := &PrometheusSink{
		registry: prometheus.NewRegistry(),
		calls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "stage_calls_total",
			Help:      "The number of calls of a pipeline stage.",
		}, []string{"stage"}),
		items: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "stage_items_total",
			Help:      "The number of items processed by a pipeline stage.",
		}, []string{"stage"}),
		host: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "stage_host_seconds_total",
			Help:      "Host time spent in a pipeline stage.",
		}, []string{"stage"}),
		device: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "stage_device_seconds_total",
			Help:      "Device time spent in a pipeline stage.",
		}, []string{"stage"}),
		batch: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "stage_items",
			Help:      "The number of items of one call of a pipeline stage.",
			Buckets:   []float64{0, 1, 16, 256, 1024, 4096, 16384, 65536, 262144},
		}, []string{"stage"}),
	}
	p.registry.MustRegister(p.calls, p.items, p.host, p.device, p.batch)
	return p
}

// Add records one call of a stage.
func (p *PrometheusSink) Add(stage string, items uint64, hostSeconds, deviceSeconds float64) {
	p.calls.WithLabelValues(stage).Inc()
	p.items.WithLabelValues(stage).Add(float64(items))
	p.host.WithLabelValues(stage).Add(hostSeconds)
	p.device.WithLabelValues(stage).Add(deviceSeconds)
	p.batch.WithLabelValues(stage).Observe(float64(items))
}

// Registry returns the registry holding the metrics.
func (p *PrometheusSink) Registry() *prometheus.Registry { return p.registry }

// WriteTextfile writes all metrics in the text exposition format,
// e.g., for the node exporter textfile collector.
func (p *PrometheusSink) WriteTextfile(file string) error {
	return errors.Wrapf(prometheus.WriteToTextfile(file, p.registry), "write metrics: %s", file)
}
