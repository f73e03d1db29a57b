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
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// RoutingConfig carries every tuning table the engine consults:
// classification patterns, fallback keywords, capability keywords,
// engine base times, category timeout budgets, and aggregation weights.
// Tables may be loaded from a YAML file or supplied programmatically.
type RoutingConfig struct {
	// CategoryPatterns maps each category to the substrings whose
	// presence in a lower-cased query counts toward that category.
	CategoryPatterns map[QueryCategory][]string `yaml:"category_patterns"`

	// FallbackKeywords drive the zero-score heuristic.
	FallbackKeywords FallbackKeywords `yaml:"fallback_keywords"`

	// CapabilityKeywords maps a server capability tag to the query
	// keywords that make servers carrying that tag relevant.
	CapabilityKeywords map[string][]string `yaml:"capability_keywords"`

	// EngineBaseTimesMs is the static per-engine duration estimate.
	EngineBaseTimesMs map[string]int64 `yaml:"engine_base_times_ms"`

	// CategoryTimeoutsMs is the shared federation budget per category.
	CategoryTimeoutsMs map[QueryCategory]int64 `yaml:"category_timeouts_ms"`

	// AggregationWeights blend time, confidence, and payload quality
	// into one rank score.
	AggregationWeights AggregationWeights `yaml:"aggregation_weights"`

	// CoordinationOverheadMs is added to parallel duration estimates.
	CoordinationOverheadMs int64 `yaml:"coordination_overhead_ms"`

	// FallbackConfidence is the pre-bonus confidence assigned when
	// classification falls through to the keyword heuristic.
	FallbackConfidence float64 `yaml:"fallback_confidence"`

	// DefaultServerPairs maps a context domain to the servers tried
	// when no registered server scores above zero. The "default" entry
	// is the last resort.
	DefaultServerPairs map[string][]string `yaml:"default_server_pairs"`

	// HealthIntervalSeconds is the health monitor cadence.
	HealthIntervalSeconds int `yaml:"health_interval_seconds"`
}

// FallbackKeywords are evaluated in fixed order (document, business,
// automation, data) when no category pattern matches.
type FallbackKeywords struct {
	Document   []string `yaml:"document"`
	Business   []string `yaml:"business"`
	Automation []string `yaml:"automation"`
	Data       []string `yaml:"data"`
}

// AggregationWeights are the rank-score blend factors.
type AggregationWeights struct {
	Time       float64 `yaml:"time"`
	Confidence float64 `yaml:"confidence"`
	Quality    float64 `yaml:"quality"`
}

// DefaultRoutingConfig returns the stock tables.
func DefaultRoutingConfig() *RoutingConfig {
	return &RoutingConfig{
		CategoryPatterns: map[QueryCategory][]string{
			CategorySemanticSearch: {
				"find", "search", "look up", "similar", "about",
				"related to", "tell me", "what do we know",
			},
			CategoryStructuredQuery: {
				"how many", "count", "sum", "total", "average",
				"top 10", "list all", "group by", "breakdown",
			},
			CategoryHybridWorkflow: {
				"analyze", "report on", "trend", "forecast",
				"dashboard", "kpi", "performance review",
			},
			CategoryAgentOrchestration: {
				"automate", "schedule", "orchestrate", "trigger",
				"workflow", "set up a", "every time",
			},
			CategoryDocumentAnalysis: {
				"document", "contract", "pdf", "extract", "parse",
				"clause", "attachment",
			},
		},
		FallbackKeywords: FallbackKeywords{
			Document:   []string{"doc", "file", "scanned", "paperwork", "page"},
			Business:   []string{"revenue", "sales", "customer", "deal", "profit", "churn", "quarter"},
			Automation: []string{"automatically", "recurring", "remind", "notify"},
			Data:       []string{"table", "database", "rows", "records", "sql", "metric"},
		},
		CapabilityKeywords: map[string][]string{
			"risk":      {"risk", "exposure", "indicator", "compliance", "alert"},
			"deal":      {"deal", "opportunity", "pipeline", "quote"},
			"chat":      {"conversation", "chat", "message", "discussion"},
			"finance":   {"revenue", "invoice", "billing", "cost", "budget"},
			"documents": {"document", "pdf", "contract", "attachment", "clause"},
			"analytics": {"trend", "metric", "kpi", "dashboard", "forecast"},
			"knowledge": {"find", "search", "about", "how", "explain"},
		},
		EngineBaseTimesMs: map[string]int64{
			EngineSemanticSearch:       1200,
			EngineStructuredData:       800,
			EngineDocumentIntelligence: 2000,
			EngineAgentOrchestrator:    3000,
		},
		CategoryTimeoutsMs: map[QueryCategory]int64{
			CategorySemanticSearch:     8000,
			CategoryStructuredQuery:    5000,
			CategoryHybridWorkflow:     20000,
			CategoryAgentOrchestration: 30000,
			CategoryDocumentAnalysis:   15000,
		},
		AggregationWeights: AggregationWeights{
			Time:       0.3,
			Confidence: 0.4,
			Quality:    0.3,
		},
		CoordinationOverheadMs: 250,
		FallbackConfidence:     0.30,
		DefaultServerPairs: map[string][]string{
			"default": {"semantic-index", "warehouse"},
			"sales":   {"crm", "warehouse"},
			"support": {"helpdesk", "semantic-index"},
		},
		HealthIntervalSeconds: 60,
	}
}

// LoadRoutingConfig reads a YAML file over the defaults. Tables present
// in the file replace or extend the stock entries; everything else
// keeps its default.
func LoadRoutingConfig(path string) (*RoutingConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read routing config %s: %w", path, err)
	}

	config := DefaultRoutingConfig()
	if err := yaml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("failed to parse routing config %s: %w", path, err)
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid routing config %s: %w", path, err)
	}

	return config, nil
}

// Validate rejects configurations the engine cannot route with.
func (c *RoutingConfig) Validate() error {
	if len(c.CategoryPatterns) == 0 {
		return fmt.Errorf("category_patterns must not be empty")
	}

	w := c.AggregationWeights
	if w.Time < 0 || w.Confidence < 0 || w.Quality < 0 {
		return fmt.Errorf("aggregation weights must be non-negative")
	}
	if w.Time+w.Confidence+w.Quality == 0 {
		return fmt.Errorf("aggregation weights must not all be zero")
	}

	if c.FallbackConfidence < 0 || c.FallbackConfidence > 1 {
		return fmt.Errorf("fallback_confidence must be in [0,1]")
	}
	if c.CoordinationOverheadMs < 0 {
		return fmt.Errorf("coordination_overhead_ms must be non-negative")
	}

	return nil
}
