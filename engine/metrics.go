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

package engine

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Prometheus metrics
var (
	promQueriesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "insightmesh_engine_queries_total",
			Help: "Total number of queries processed by the engine",
		},
		[]string{"mode", "category", "status"},
	)
	promSourceCalls = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "insightmesh_engine_source_calls_total",
			Help: "Total number of engine and federated server calls",
		},
		[]string{"source", "status"},
	)
	promSourceDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "insightmesh_engine_source_duration_milliseconds",
			Help:    "Engine and federated server call duration in milliseconds",
			Buckets: []float64{10, 50, 100, 200, 500, 1000, 2000, 5000, 10000},
		},
		[]string{"source"},
	)
	promFallbacks = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "insightmesh_engine_fallbacks_total",
			Help: "Total number of queries answered by a fallback engine",
		},
	)
	promActiveStreams = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "insightmesh_engine_active_streams",
			Help: "Number of streaming queries currently in flight",
		},
	)
)

func init() {
	// Register Prometheus metrics
	prometheus.MustRegister(promQueriesTotal)
	prometheus.MustRegister(promSourceCalls)
	prometheus.MustRegister(promSourceDuration)
	prometheus.MustRegister(promFallbacks)
	prometheus.MustRegister(promActiveStreams)
}

// observeQuery counts one finished query.
func observeQuery(mode string, category QueryCategory, success bool) {
	promQueriesTotal.WithLabelValues(mode, string(category), statusLabel(success)).Inc()
}

// observeSourceCall records one engine or server call.
func observeSourceCall(source string, success bool, executionTimeMs int64) {
	promSourceCalls.WithLabelValues(source, statusLabel(success)).Inc()
	promSourceDuration.WithLabelValues(source).Observe(float64(executionTimeMs))
}

func statusLabel(success bool) string {
	if success {
		return "success"
	}
	return "failure"
}
