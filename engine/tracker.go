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
	"sync"
	"time"
)

// historyLimit bounds the per-(category, source) outcome history.
const historyLimit = 100

// PerformanceTracker accumulates query and per-source statistics.
// It is bookkeeping only: nothing in the routing path reads it, so
// recorded outcomes never influence future decisions.
type PerformanceTracker struct {
	mu           sync.Mutex
	totalQueries int64
	perCategory  map[string]int64
	perEngine    map[string]*EngineStats
	history      map[string][]OutcomeSample
}

// NewPerformanceTracker creates an empty tracker.
func NewPerformanceTracker() *PerformanceTracker {
	return &PerformanceTracker{
		perCategory: make(map[string]int64),
		perEngine:   make(map[string]*EngineStats),
		history:     make(map[string][]OutcomeSample),
	}
}

// RecordQuery counts one classified query.
func (t *PerformanceTracker) RecordQuery(category QueryCategory) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.totalQueries++
	t.perCategory[string(category)]++
}

// RecordOutcome folds one engine or server call into the running
// averages and appends it to the bounded history. The averages update
// incrementally: avg' = (avg*(n-1) + x) / n over the new call count.
func (t *PerformanceTracker) RecordOutcome(category QueryCategory, source string, success bool, executionTimeMs int64, confidence float64) {
	t.mu.Lock()
	defer t.mu.Unlock()

	stats, ok := t.perEngine[source]
	if !ok {
		stats = &EngineStats{}
		t.perEngine[source] = stats
	}

	stats.TotalCalls++
	if success {
		stats.SuccessfulCalls++
	}

	n := float64(stats.TotalCalls)
	bit := 0.0
	if success {
		bit = 1.0
	}
	stats.SuccessRate = (stats.SuccessRate*(n-1) + bit) / n
	stats.AvgExecutionTimeMs = (stats.AvgExecutionTimeMs*(n-1) + float64(executionTimeMs)) / n

	key := string(category) + "::" + source
	samples := append(t.history[key], OutcomeSample{
		Success:         success,
		ExecutionTimeMs: executionTimeMs,
		Confidence:      confidence,
		Timestamp:       time.Now(),
	})
	if len(samples) > historyLimit {
		samples = samples[len(samples)-historyLimit:]
	}
	t.history[key] = samples
}

// Snapshot returns a deep copy of the current metrics. Mutating the
// snapshot never touches tracker state.
func (t *PerformanceTracker) Snapshot() *PerformanceMetrics {
	t.mu.Lock()
	defer t.mu.Unlock()

	metrics := &PerformanceMetrics{
		TotalQueries: t.totalQueries,
		PerCategory:  make(map[string]int64, len(t.perCategory)),
		PerEngine:    make(map[string]*EngineStats, len(t.perEngine)),
		History:      make(map[string][]OutcomeSample, len(t.history)),
	}

	for category, count := range t.perCategory {
		metrics.PerCategory[category] = count
	}
	for source, stats := range t.perEngine {
		copied := *stats
		metrics.PerEngine[source] = &copied
	}
	for key, samples := range t.history {
		metrics.History[key] = append([]OutcomeSample(nil), samples...)
	}

	return metrics
}
