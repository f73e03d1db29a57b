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
	"reflect"
	"sort"
	"strings"
)

// ResultAggregator ranks federated results and picks a primary answer.
// Aggregate is a pure function of its input: the same result set always
// produces the same aggregate, and inputs are never mutated.
type ResultAggregator struct {
	weights AggregationWeights
}

// NewResultAggregator creates an aggregator with the given rank weights.
func NewResultAggregator(weights AggregationWeights) *ResultAggregator {
	return &ResultAggregator{weights: weights}
}

// Aggregate combines one dispatch batch. Successful results are scored
// by speed, confidence, and payload quality; the best becomes the
// primary answer and the rest supplementary data. A batch with no
// successes yields a failure listing every server and its error.
func (a *ResultAggregator) Aggregate(results []*FederatedResult) *AggregatedResult {
	if len(results) == 0 {
		return &AggregatedResult{
			Success: false,
			Error:   NewRoutingError(ErrKindAggregationEmpty, "", "no results to aggregate", nil).Error(),
		}
	}

	var successes, failures []*FederatedResult
	for _, result := range results {
		if result.Success {
			successes = append(successes, result)
		} else {
			failures = append(failures, result)
		}
	}

	aggregate := &AggregatedResult{
		Performance: summarize(federatedTimings(results)),
	}

	if len(successes) == 0 {
		aggregate.Error = allFailedMessage(failures)
		aggregate.RankedResults = rankFailures(failures)
		return aggregate
	}

	ranked := a.rank(successes)
	top := ranked[0]

	aggregate.Success = true
	aggregate.PrimarySource = top.Source
	aggregate.RankedResults = ranked
	aggregate.Confidence = meanFederatedConfidence(successes)

	supplementary := make(map[string]interface{})
	for _, result := range successes {
		if result.ServerName == top.Source {
			aggregate.PrimaryPayload = result.Payload
			continue
		}
		supplementary[result.ServerName] = result.Payload
	}
	if len(supplementary) > 0 {
		aggregate.Supplementary = supplementary
	}

	return aggregate
}

// rank scores the successful results and sorts them best first. Ties
// break by server name so ranking stays deterministic.
func (a *ResultAggregator) rank(successes []*FederatedResult) []RankedResult {
	var maxExec int64
	for _, result := range successes {
		if result.ExecutionTimeMs > maxExec {
			maxExec = result.ExecutionTimeMs
		}
	}

	ranked := make([]RankedResult, len(successes))
	for i, result := range successes {
		timeScore := 1.0
		if maxExec > 0 {
			timeScore = 1.0 - float64(result.ExecutionTimeMs)/float64(maxExec)
		}
		quality := qualityScore(result.Payload)
		score := a.weights.Time*timeScore + a.weights.Confidence*result.Confidence + a.weights.Quality*quality

		ranked[i] = RankedResult{
			Source:          result.ServerName,
			Score:           score,
			Confidence:      result.Confidence,
			ExecutionTimeMs: result.ExecutionTimeMs,
			Success:         true,
		}
	}

	sort.SliceStable(ranked, func(i, j int) bool {
		if ranked[i].Score != ranked[j].Score {
			return ranked[i].Score > ranked[j].Score
		}
		return ranked[i].Source < ranked[j].Source
	})
	return ranked
}

// qualityScore estimates how substantial a payload is. Maps score the
// fraction of non-empty fields, sequences and strings score by length,
// anything else scores a neutral 0.5.
func qualityScore(payload interface{}) float64 {
	switch p := payload.(type) {
	case nil:
		return 0
	case map[string]interface{}:
		if len(p) == 0 {
			return 0
		}
		nonEmpty := 0
		for _, value := range p {
			if value == nil || value == "" {
				continue
			}
			nonEmpty++
		}
		return float64(nonEmpty) / float64(len(p))
	case []interface{}:
		return sequenceQuality(len(p))
	case string:
		return capAt1(float64(len(p)) / 1000.0)
	default:
		rv := reflect.ValueOf(payload)
		if rv.Kind() == reflect.Slice || rv.Kind() == reflect.Array {
			return sequenceQuality(rv.Len())
		}
		return 0.5
	}
}

func sequenceQuality(length int) float64 {
	return capAt1(float64(length) / 10.0)
}

func capAt1(v float64) float64 {
	if v > 1 {
		return 1
	}
	return v
}

// allFailedMessage lists every failed server and its error, sorted by
// server name.
func allFailedMessage(failures []*FederatedResult) string {
	parts := make([]string, len(failures))
	for i, result := range failures {
		parts[i] = fmt.Sprintf("%s: %s", result.ServerName, result.Error)
	}
	sort.Strings(parts)
	return "all servers failed: " + strings.Join(parts, "; ")
}

// rankFailures lists failed servers as zero-score entries, sorted by
// name, so callers still see who was asked and what went wrong.
func rankFailures(failures []*FederatedResult) []RankedResult {
	ranked := make([]RankedResult, len(failures))
	for i, result := range failures {
		ranked[i] = RankedResult{
			Source:          result.ServerName,
			Confidence:      result.Confidence,
			ExecutionTimeMs: result.ExecutionTimeMs,
			Error:           result.Error,
		}
	}
	sort.Slice(ranked, func(i, j int) bool { return ranked[i].Source < ranked[j].Source })
	return ranked
}

func meanFederatedConfidence(results []*FederatedResult) float64 {
	if len(results) == 0 {
		return 0
	}
	total := 0.0
	for _, result := range results {
		total += result.Confidence
	}
	return clamp01(total / float64(len(results)))
}

// federatedTimings projects federated results onto timings.
func federatedTimings(results []*FederatedResult) []timing {
	timings := make([]timing, len(results))
	for i, result := range results {
		timings[i] = timing{success: result.Success, timeMs: result.ExecutionTimeMs}
	}
	return timings
}
