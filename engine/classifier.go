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
	"sort"
	"strings"

	"axonflow/insightmesh/adapters/base"
)

// serverScoreThreshold is the fraction of the best server score a server
// must reach to stay on the federation priority list.
const serverScoreThreshold = 0.7

// documentContextKeys mark a query as document work regardless of its text.
var documentContextKeys = []string{"document", "documents", "file", "attachment"}

// Classification is the classifier verdict for one query.
type Classification struct {
	Category   QueryCategory `json:"category"`
	Confidence float64       `json:"confidence"`
	Reasoning  string        `json:"reasoning"`
}

// QueryClassifier scores queries against the configured pattern tables.
// It holds no mutable state and is safe for concurrent use.
type QueryClassifier struct {
	config *RoutingConfig
}

// NewQueryClassifier creates a classifier over the given tables.
func NewQueryClassifier(config *RoutingConfig) *QueryClassifier {
	return &QueryClassifier{config: config}
}

// Classify assigns a category and confidence to the query. Matching is
// case-insensitive substring containment against the configured patterns.
// Ties break by the fixed category priority order. When nothing matches,
// a keyword heuristic over the query and context picks the category.
func (c *QueryClassifier) Classify(query string, queryContext map[string]interface{}) *Classification {
	lowered := strings.ToLower(query)

	totalPatterns := 0
	scores := make(map[QueryCategory]int, len(c.config.CategoryPatterns))
	for category, patterns := range c.config.CategoryPatterns {
		totalPatterns += len(patterns)
		for _, pattern := range patterns {
			if strings.Contains(lowered, pattern) {
				scores[category]++
			}
		}
	}

	best := QueryCategory("")
	bestScore := 0
	for _, category := range categoryPriority {
		if scores[category] > bestScore {
			best = category
			bestScore = scores[category]
		}
	}

	if bestScore == 0 {
		return c.fallbackClassification(lowered, queryContext)
	}

	confidence := 0.0
	if totalPatterns > 0 {
		confidence = float64(bestScore) / float64(totalPatterns)
	}
	confidence = applyContextBonuses(confidence, queryContext)

	return &Classification{
		Category:   best,
		Confidence: confidence,
		Reasoning:  fmt.Sprintf("matched %d of %d patterns, strongest category %s", bestScore, totalPatterns, best),
	}
}

// fallbackClassification handles queries no pattern matched. The checks
// run in fixed order; the first hit wins.
func (c *QueryClassifier) fallbackClassification(lowered string, queryContext map[string]interface{}) *Classification {
	category := CategorySemanticSearch
	reason := "no patterns or keywords matched, defaulting to semantic search"

	switch {
	case hasAnyKey(queryContext, documentContextKeys) || containsAny(lowered, c.config.FallbackKeywords.Document):
		category = CategoryDocumentAnalysis
		reason = "document context or keywords detected"
	case containsAny(lowered, c.config.FallbackKeywords.Business):
		category = CategoryHybridWorkflow
		reason = "business keywords detected"
	case containsAny(lowered, c.config.FallbackKeywords.Automation):
		category = CategoryAgentOrchestration
		reason = "automation keywords detected"
	case containsAny(lowered, c.config.FallbackKeywords.Data):
		category = CategoryStructuredQuery
		reason = "data keywords detected"
	}

	return &Classification{
		Category:   category,
		Confidence: applyContextBonuses(c.config.FallbackConfidence, queryContext),
		Reasoning:  "fallback: " + reason,
	}
}

// PrioritizeServers ranks the given servers for a federated query. Each
// server scores the number of capability keywords found in the query,
// summed across its tags. Servers at or above 70% of the best score stay,
// ordered by score desc, then descriptor priority asc, then name. When no
// server scores, the context domain picks a configured default pair.
func (c *QueryClassifier) PrioritizeServers(query string, queryContext map[string]interface{}, servers []*base.ServerDescriptor) []string {
	lowered := strings.ToLower(query)

	type scored struct {
		name     string
		score    int
		priority int
	}

	candidates := make([]scored, 0, len(servers))
	maxScore := 0
	for _, desc := range servers {
		score := 0
		for _, tag := range desc.CapabilityTags {
			for _, keyword := range c.config.CapabilityKeywords[tag] {
				if strings.Contains(lowered, keyword) {
					score++
				}
			}
		}
		if score > maxScore {
			maxScore = score
		}
		candidates = append(candidates, scored{name: desc.Name, score: score, priority: desc.Priority})
	}

	if maxScore == 0 {
		return c.defaultServerPair(queryContext)
	}

	threshold := serverScoreThreshold * float64(maxScore)
	kept := candidates[:0]
	for _, cand := range candidates {
		if cand.score > 0 && float64(cand.score) >= threshold {
			kept = append(kept, cand)
		}
	}

	sort.Slice(kept, func(i, j int) bool {
		if kept[i].score != kept[j].score {
			return kept[i].score > kept[j].score
		}
		if kept[i].priority != kept[j].priority {
			return kept[i].priority < kept[j].priority
		}
		return kept[i].name < kept[j].name
	})

	names := make([]string, len(kept))
	for i, cand := range kept {
		names[i] = cand.name
	}
	return names
}

// defaultServerPair resolves the fallback server list for the context
// domain, or the "default" pair when the domain has none configured.
func (c *QueryClassifier) defaultServerPair(queryContext map[string]interface{}) []string {
	if domain, ok := queryContext["domain"].(string); ok {
		if pair, ok := c.config.DefaultServerPairs[domain]; ok {
			return append([]string(nil), pair...)
		}
	}
	return append([]string(nil), c.config.DefaultServerPairs["default"]...)
}

// applyContextBonuses adds the personalization bonuses and clamps.
func applyContextBonuses(confidence float64, queryContext map[string]interface{}) float64 {
	if _, ok := queryContext["user_preferences"]; ok {
		confidence += 0.1
	}
	if _, ok := queryContext["historical_performance"]; ok {
		confidence += 0.1
	}
	return clamp01(confidence)
}

// containsAny reports whether any keyword occurs in the string.
func containsAny(s string, keywords []string) bool {
	for _, keyword := range keywords {
		if strings.Contains(s, keyword) {
			return true
		}
	}
	return false
}

// hasAnyKey reports whether the context carries any of the keys.
func hasAnyKey(queryContext map[string]interface{}, keys []string) bool {
	for _, key := range keys {
		if _, ok := queryContext[key]; ok {
			return true
		}
	}
	return false
}
