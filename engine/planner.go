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
	"strings"
)

// primaryEngineByCategory is the static category-to-primary map.
var primaryEngineByCategory = map[QueryCategory]string{
	CategorySemanticSearch:     EngineSemanticSearch,
	CategoryStructuredQuery:    EngineStructuredData,
	CategoryDocumentAnalysis:   EngineDocumentIntelligence,
	CategoryAgentOrchestration: EngineAgentOrchestrator,
	CategoryHybridWorkflow:     EngineAgentOrchestrator,
}

// recencyKeywords widen a semantic search with structured data when the
// user asks about a time window.
var recencyKeywords = []string{
	"recent", "latest", "current", "today",
	"this week", "this month", "this quarter",
}

// explanatoryKeywords widen a structured query with semantic context.
var explanatoryKeywords = []string{"why", "explain", "context", "insight"}

// parallelConfidenceCeiling: below this classification confidence the
// plan hedges by running secondaries in parallel with the primary.
const parallelConfidenceCeiling = 0.8

// ExecutionPlanner turns a classification into a routing decision:
// primary engine, secondary engines, execution mode, and a duration
// estimate from the configured base times.
type ExecutionPlanner struct {
	config *RoutingConfig
}

// NewExecutionPlanner creates a planner over the given tables.
func NewExecutionPlanner(config *RoutingConfig) *ExecutionPlanner {
	return &ExecutionPlanner{config: config}
}

// Plan builds the routing decision for a classified query.
func (p *ExecutionPlanner) Plan(query string, classification *Classification) *RoutingDecision {
	primary := primaryEngineByCategory[classification.Category]
	secondaries := p.secondaryEngines(query, classification.Category, primary)
	parallel := len(secondaries) > 0 && classification.Confidence < parallelConfidenceCeiling

	decision := &RoutingDecision{
		Category:            classification.Category,
		PrimaryEngine:       primary,
		SecondaryEngines:    secondaries,
		Confidence:          classification.Confidence,
		ParallelExecution:   parallel,
		EstimatedDurationMs: p.estimateDuration(primary, secondaries, parallel),
	}
	decision.Reasoning = fmt.Sprintf("%s; primary %s with %d secondary engine(s), parallel=%t",
		classification.Reasoning, primary, len(secondaries), parallel)
	return decision
}

// secondaryEngines applies the per-category widening rules. The result
// never contains the primary and never contains duplicates.
func (p *ExecutionPlanner) secondaryEngines(query string, category QueryCategory, primary string) []string {
	lowered := strings.ToLower(query)

	var wanted []string
	switch category {
	case CategorySemanticSearch:
		wanted = append(wanted, EngineDocumentIntelligence)
		if containsAny(lowered, recencyKeywords) {
			wanted = append(wanted, EngineStructuredData)
		}
	case CategoryStructuredQuery:
		if containsAny(lowered, explanatoryKeywords) {
			wanted = append(wanted, EngineSemanticSearch)
		}
	case CategoryDocumentAnalysis:
		wanted = append(wanted, EngineSemanticSearch)
	case CategoryHybridWorkflow:
		wanted = append(wanted, EngineSemanticSearch, EngineStructuredData)
	case CategoryAgentOrchestration:
		// Orchestration runs alone.
	}

	seen := map[string]bool{primary: true}
	secondaries := make([]string, 0, len(wanted))
	for _, engine := range wanted {
		if seen[engine] {
			continue
		}
		seen[engine] = true
		secondaries = append(secondaries, engine)
	}
	return secondaries
}

// estimateDuration predicts wall-clock from the configured base times.
// Parallel plans cost the slowest engine plus coordination overhead;
// sequential plans cost the sum of all engines.
func (p *ExecutionPlanner) estimateDuration(primary string, secondaries []string, parallel bool) int64 {
	base := p.config.EngineBaseTimesMs

	if parallel {
		longest := base[primary]
		for _, engine := range secondaries {
			if base[engine] > longest {
				longest = base[engine]
			}
		}
		return longest + p.config.CoordinationOverheadMs
	}

	total := base[primary]
	for _, engine := range secondaries {
		total += base[engine]
	}
	return total
}
