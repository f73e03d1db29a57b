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

import "time"

// QueryCategory labels the kind of query the classifier detected.
type QueryCategory string

const (
	CategorySemanticSearch     QueryCategory = "semantic-search"
	CategoryStructuredQuery    QueryCategory = "structured-query"
	CategoryHybridWorkflow     QueryCategory = "hybrid-workflow"
	CategoryAgentOrchestration QueryCategory = "agent-orchestration"
	CategoryDocumentAnalysis   QueryCategory = "document-analysis"
)

// categoryPriority is the fixed tie-break order when two categories
// match the same number of patterns.
var categoryPriority = []QueryCategory{
	CategorySemanticSearch,
	CategoryStructuredQuery,
	CategoryHybridWorkflow,
	CategoryAgentOrchestration,
	CategoryDocumentAnalysis,
}

// The fixed engine set addressed by the direct router.
const (
	EngineSemanticSearch       = "semantic-search"
	EngineStructuredData       = "structured-data"
	EngineDocumentIntelligence = "document-intelligence"
	EngineAgentOrchestrator    = "agent-orchestrator"
)

// RoutingDecision is the classifier+planner verdict for one query.
type RoutingDecision struct {
	Category            QueryCategory `json:"category"`
	PrimaryEngine       string        `json:"primary_engine"`
	SecondaryEngines    []string      `json:"secondary_engines,omitempty"`
	Confidence          float64       `json:"confidence"`
	ParallelExecution   bool          `json:"parallel_execution"`
	EstimatedDurationMs int64         `json:"estimated_duration_ms"`
	Reasoning           string        `json:"reasoning,omitempty"`
}

// EngineResult is the outcome of a single engine invocation. The
// executor stamps ExecutionTimeMs around the real call; engines do not
// time themselves.
type EngineResult struct {
	EngineName      string      `json:"engine_name"`
	Success         bool        `json:"success"`
	Payload         interface{} `json:"payload,omitempty"`
	Confidence      float64     `json:"confidence"`
	ExecutionTimeMs int64       `json:"execution_time_ms"`
	Error           string      `json:"error,omitempty"`
}

// FederatedResult is the outcome of a single federation server call.
type FederatedResult struct {
	ServerName      string      `json:"server_name"`
	Success         bool        `json:"success"`
	Payload         interface{} `json:"payload,omitempty"`
	Confidence      float64     `json:"confidence"`
	ExecutionTimeMs int64       `json:"execution_time_ms"`
	Error           string      `json:"error,omitempty"`
}

// RankedResult is one entry of the aggregator's scored ordering.
type RankedResult struct {
	Source          string  `json:"source"`
	Score           float64 `json:"score"`
	Confidence      float64 `json:"confidence"`
	ExecutionTimeMs int64   `json:"execution_time_ms"`
	Success         bool    `json:"success"`
	Error           string  `json:"error,omitempty"`
}

// PerformanceSummary describes one batch. Counts cover every result;
// the execution-time statistics cover only the successful subset.
type PerformanceSummary struct {
	Queried            int     `json:"queried"`
	Succeeded          int     `json:"succeeded"`
	Failed             int     `json:"failed"`
	AvgExecutionTimeMs float64 `json:"avg_execution_time_ms"`
	MinExecutionTimeMs int64   `json:"min_execution_time_ms"`
	MaxExecutionTimeMs int64   `json:"max_execution_time_ms"`
}

// RoutingMetadata is stamped onto every combined result.
// EstimateRatio is estimated duration divided by actual wall clock.
type RoutingMetadata struct {
	Category      QueryCategory `json:"category"`
	EnginesUsed   []string      `json:"engines_used,omitempty"`
	Parallel      bool          `json:"parallel"`
	WallClockMs   int64         `json:"wall_clock_ms"`
	EstimateRatio float64       `json:"estimate_ratio,omitempty"`
	FallbackUsed  bool          `json:"fallback_used,omitempty"`
}

// AggregatedResult is the single answer produced for every query,
// routed or federated. Business failures set Success=false and Error;
// they are not Go errors.
type AggregatedResult struct {
	Success        bool                   `json:"success"`
	PrimarySource  string                 `json:"primary_source,omitempty"`
	PrimaryPayload interface{}            `json:"primary_payload,omitempty"`
	Supplementary  map[string]interface{} `json:"supplementary,omitempty"`
	RankedResults  []RankedResult         `json:"ranked_results,omitempty"`
	Performance    *PerformanceSummary    `json:"performance,omitempty"`
	Confidence     float64                `json:"confidence"`
	Error          string                 `json:"error,omitempty"`
	Routing        *RoutingMetadata       `json:"routing,omitempty"`
}

// EngineStats is the tracker's per-source accumulator snapshot.
type EngineStats struct {
	TotalCalls         int64   `json:"total_calls"`
	SuccessfulCalls    int64   `json:"successful_calls"`
	SuccessRate        float64 `json:"success_rate"`
	AvgExecutionTimeMs float64 `json:"avg_execution_time_ms"`
}

// OutcomeSample is one bounded-history entry.
type OutcomeSample struct {
	Success         bool      `json:"success"`
	ExecutionTimeMs int64     `json:"execution_time_ms"`
	Confidence      float64   `json:"confidence"`
	Timestamp       time.Time `json:"timestamp"`
}

// PerformanceMetrics is a read-only tracker snapshot. History keys are
// "category::source".
type PerformanceMetrics struct {
	TotalQueries int64                      `json:"total_queries"`
	PerCategory  map[string]int64           `json:"per_category"`
	PerEngine    map[string]*EngineStats    `json:"per_engine"`
	History      map[string][]OutcomeSample `json:"history,omitempty"`
}

// StreamEventType discriminates streaming progress events.
type StreamEventType string

const (
	StreamEventClassification StreamEventType = "classification"
	StreamEventServerStarted  StreamEventType = "server_started"
	StreamEventServerResult   StreamEventType = "server_result"
	StreamEventEngineResult   StreamEventType = "engine_result"
	StreamEventComplete       StreamEventType = "complete"
)

// StreamEvent is one element of a streaming query's event sequence.
// The complete event carries the same AggregatedResult the
// non-streaming call would have returned.
type StreamEvent struct {
	Type      StreamEventType   `json:"type"`
	Timestamp time.Time         `json:"timestamp"`
	Source    string            `json:"source,omitempty"`
	Decision  *RoutingDecision  `json:"decision,omitempty"`
	Result    *FederatedResult  `json:"result,omitempty"`
	Engine    *EngineResult     `json:"engine_result,omitempty"`
	Aggregate *AggregatedResult `json:"aggregate,omitempty"`
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
