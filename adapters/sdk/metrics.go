// Copyright 2025 AxonFlow
// SPDX-License-Identifier: BUSL-1.1
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package sdk

import (
	"sort"
	"sync"
	"sync/atomic"
	"time"
)

// AdapterMetrics tracks operation counts and latencies for one adapter
type AdapterMetrics struct {
	adapterType string

	// Counters
	executesTotal int64
	probesTotal   int64
	errorsTotal   int64
	connectsTotal int64
	closesTotal   int64

	// Durations (nanoseconds)
	executeDurationTotal int64
	executeCount         int64

	// Current state
	connected int32

	executeLatencies *LatencyHistogram
}

// NewAdapterMetrics creates a new metrics collector
func NewAdapterMetrics(adapterType string) *AdapterMetrics {
	return &AdapterMetrics{
		adapterType:      adapterType,
		executeLatencies: NewLatencyHistogram(),
	}
}

// RecordExecute records a query dispatch
func (m *AdapterMetrics) RecordExecute(duration time.Duration, err error) {
	atomic.AddInt64(&m.executesTotal, 1)
	atomic.AddInt64(&m.executeDurationTotal, int64(duration))
	atomic.AddInt64(&m.executeCount, 1)

	if err != nil {
		atomic.AddInt64(&m.errorsTotal, 1)
	}

	m.executeLatencies.Record(duration)
}

// RecordProbe records a health probe
func (m *AdapterMetrics) RecordProbe(err error) {
	atomic.AddInt64(&m.probesTotal, 1)
	if err != nil {
		atomic.AddInt64(&m.errorsTotal, 1)
	}
}

// RecordConnect records a connect operation
func (m *AdapterMetrics) RecordConnect() {
	atomic.AddInt64(&m.connectsTotal, 1)
	atomic.StoreInt32(&m.connected, 1)
}

// RecordClose records a close operation
func (m *AdapterMetrics) RecordClose() {
	atomic.AddInt64(&m.closesTotal, 1)
	atomic.StoreInt32(&m.connected, 0)
}

// RecordError records an error outside Execute
func (m *AdapterMetrics) RecordError() {
	atomic.AddInt64(&m.errorsTotal, 1)
}

// GetStats returns a point-in-time snapshot
func (m *AdapterMetrics) GetStats() *MetricsSnapshot {
	executeCount := atomic.LoadInt64(&m.executeCount)

	var avgExecuteLatency time.Duration
	if executeCount > 0 {
		avgExecuteLatency = time.Duration(atomic.LoadInt64(&m.executeDurationTotal) / executeCount)
	}

	return &MetricsSnapshot{
		AdapterType:       m.adapterType,
		ExecutesTotal:     atomic.LoadInt64(&m.executesTotal),
		ProbesTotal:       atomic.LoadInt64(&m.probesTotal),
		ErrorsTotal:       atomic.LoadInt64(&m.errorsTotal),
		ConnectsTotal:     atomic.LoadInt64(&m.connectsTotal),
		ClosesTotal:       atomic.LoadInt64(&m.closesTotal),
		Connected:         atomic.LoadInt32(&m.connected) == 1,
		AvgExecuteLatency: avgExecuteLatency,
		ExecuteLatencyP50: m.executeLatencies.Percentile(0.5),
		ExecuteLatencyP95: m.executeLatencies.Percentile(0.95),
		ExecuteLatencyP99: m.executeLatencies.Percentile(0.99),
	}
}

// Reset resets all metrics
func (m *AdapterMetrics) Reset() {
	atomic.StoreInt64(&m.executesTotal, 0)
	atomic.StoreInt64(&m.probesTotal, 0)
	atomic.StoreInt64(&m.errorsTotal, 0)
	atomic.StoreInt64(&m.connectsTotal, 0)
	atomic.StoreInt64(&m.closesTotal, 0)
	atomic.StoreInt64(&m.executeDurationTotal, 0)
	atomic.StoreInt64(&m.executeCount, 0)

	m.executeLatencies.Reset()
}

// MetricsSnapshot represents a point-in-time snapshot of adapter metrics
type MetricsSnapshot struct {
	AdapterType       string        `json:"adapter_type"`
	ExecutesTotal     int64         `json:"executes_total"`
	ProbesTotal       int64         `json:"probes_total"`
	ErrorsTotal       int64         `json:"errors_total"`
	ConnectsTotal     int64         `json:"connects_total"`
	ClosesTotal       int64         `json:"closes_total"`
	Connected         bool          `json:"connected"`
	AvgExecuteLatency time.Duration `json:"avg_execute_latency"`
	ExecuteLatencyP50 time.Duration `json:"execute_latency_p50"`
	ExecuteLatencyP95 time.Duration `json:"execute_latency_p95"`
	ExecuteLatencyP99 time.Duration `json:"execute_latency_p99"`
}

// LatencyHistogram provides simple percentile calculations over a bounded
// sample window
type LatencyHistogram struct {
	samples []time.Duration
	maxSize int
	mu      sync.Mutex
}

// NewLatencyHistogram creates a new latency histogram
func NewLatencyHistogram() *LatencyHistogram {
	return &LatencyHistogram{
		samples: make([]time.Duration, 0, 1000),
		maxSize: 10000,
	}
}

// Record adds a latency sample
func (h *LatencyHistogram) Record(d time.Duration) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if len(h.samples) >= h.maxSize {
		// Drop the older half when full
		h.samples = h.samples[len(h.samples)/2:]
	}
	h.samples = append(h.samples, d)
}

// Percentile calculates the given percentile (0..1)
func (h *LatencyHistogram) Percentile(p float64) time.Duration {
	h.mu.Lock()
	defer h.mu.Unlock()

	if len(h.samples) == 0 {
		return 0
	}

	sorted := make([]time.Duration, len(h.samples))
	copy(sorted, h.samples)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })

	idx := int(float64(len(sorted)-1) * p)
	return sorted[idx]
}

// Reset clears all samples
func (h *LatencyHistogram) Reset() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.samples = h.samples[:0]
}

// Count returns the number of samples
func (h *LatencyHistogram) Count() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.samples)
}

// OperationTimer provides convenient timing for operations
type OperationTimer struct {
	start time.Time
}

// NewTimer starts a new timer
func NewTimer() *OperationTimer {
	return &OperationTimer{start: time.Now()}
}

// Duration returns the elapsed time since the timer was started
func (t *OperationTimer) Duration() time.Duration {
	return time.Since(t.start)
}

// RecordTo records the duration to the given callback
func (t *OperationTimer) RecordTo(record func(time.Duration, error), err error) {
	record(t.Duration(), err)
}
