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
	"context"
	"fmt"
	"log"
	"os"
	"strings"
	"sync"
	"time"
)

// RouteExecutor runs a routing decision against the engine registry:
// primary first, then secondaries (concurrently in parallel mode), and
// combines everything into one AggregatedResult.
type RouteExecutor struct {
	engines *EngineRegistry
	logger  *log.Logger
}

// NewRouteExecutor creates an executor over the given registry.
func NewRouteExecutor(engines *EngineRegistry) *RouteExecutor {
	return &RouteExecutor{
		engines: engines,
		logger:  log.New(os.Stdout, "[ROUTE_EXECUTOR] ", log.LstdFlags),
	}
}

// Execute runs the plan. emit, when non-nil, receives an engine_result
// event as each engine finishes; in parallel mode events arrive in
// completion order. The returned slice holds every per-engine result in
// invocation order (primary first) for stats recording.
func (x *RouteExecutor) Execute(ctx context.Context, query string, queryContext map[string]interface{}, decision *RoutingDecision, emit func(StreamEvent)) (*AggregatedResult, []*EngineResult) {
	start := time.Now()

	x.logger.Printf("Executing %s route: primary=%s secondaries=%v parallel=%t",
		decision.Category, decision.PrimaryEngine, decision.SecondaryEngines, decision.ParallelExecution)

	primary := x.invoke(ctx, decision.PrimaryEngine, query, queryContext)
	x.emitResult(emit, primary)

	secondaries := make([]*EngineResult, len(decision.SecondaryEngines))
	if decision.ParallelExecution {
		var wg sync.WaitGroup
		for i, name := range decision.SecondaryEngines {
			wg.Add(1)
			go func(i int, name string) {
				defer wg.Done()
				secondaries[i] = x.invoke(ctx, name, query, queryContext)
				x.emitResult(emit, secondaries[i])
			}(i, name)
		}
		wg.Wait()
	} else {
		for i, name := range decision.SecondaryEngines {
			secondaries[i] = x.invoke(ctx, name, query, queryContext)
			x.emitResult(emit, secondaries[i])
		}
	}

	results := append([]*EngineResult{primary}, secondaries...)
	aggregate := x.combine(primary, secondaries, results)
	fellBack := aggregate.Routing != nil && aggregate.Routing.FallbackUsed

	wallClock := time.Since(start).Milliseconds()
	aggregate.Routing = &RoutingMetadata{
		Category:      decision.Category,
		EnginesUsed:   enginesInvoked(results),
		Parallel:      decision.ParallelExecution,
		WallClockMs:   wallClock,
		EstimateRatio: estimateRatio(decision.EstimatedDurationMs, wallClock),
		FallbackUsed:  fellBack,
	}

	return aggregate, results
}

// invoke runs one engine and normalizes the outcome into an
// EngineResult. Missing engines and call errors become failed results,
// never panics or nil entries.
func (x *RouteExecutor) invoke(ctx context.Context, name, query string, queryContext map[string]interface{}) *EngineResult {
	engine, ok := x.engines.Get(name)
	if !ok {
		return &EngineResult{
			EngineName: name,
			Success:    false,
			Error:      NewRoutingError(ErrKindEngineUnavailable, name, "engine not registered", nil).Error(),
		}
	}

	start := time.Now()
	result, err := engine.Execute(ctx, query, queryContext)
	elapsed := time.Since(start).Milliseconds()

	if err != nil {
		return &EngineResult{
			EngineName:      name,
			Success:         false,
			ExecutionTimeMs: elapsed,
			Error:           NewRoutingError(ErrKindEngineExecution, name, err.Error(), nil).Error(),
		}
	}
	if result == nil {
		return &EngineResult{
			EngineName:      name,
			Success:         false,
			ExecutionTimeMs: elapsed,
			Error:           NewRoutingError(ErrKindEngineExecution, name, "engine returned no result", nil).Error(),
		}
	}

	result.EngineName = name
	result.ExecutionTimeMs = elapsed
	result.Confidence = clamp01(result.Confidence)
	return result
}

// combine merges the per-engine results. Primary success keeps the
// primary payload and attaches successful secondaries as supplementary
// data; primary failure promotes the most confident successful
// secondary; no successes yields a failure carrying every error.
func (x *RouteExecutor) combine(primary *EngineResult, secondaries []*EngineResult, all []*EngineResult) *AggregatedResult {
	aggregate := &AggregatedResult{
		Performance: summarize(engineTimings(all)),
	}

	var succeeded []*EngineResult
	for _, result := range all {
		if result.Success {
			succeeded = append(succeeded, result)
		}
	}

	if primary.Success {
		aggregate.Success = true
		aggregate.PrimarySource = primary.EngineName
		aggregate.PrimaryPayload = primary.Payload
		aggregate.Supplementary = supplementaryPayloads(secondaries, "")
		aggregate.Confidence = meanConfidence(succeeded)
		return aggregate
	}

	fallback := bestSecondary(secondaries)
	if fallback != nil {
		x.logger.Printf("Primary engine %s failed, falling back to %s", primary.EngineName, fallback.EngineName)
		aggregate.Success = true
		aggregate.PrimarySource = fallback.EngineName
		aggregate.PrimaryPayload = fallback.Payload
		aggregate.Supplementary = supplementaryPayloads(secondaries, fallback.EngineName)
		aggregate.Confidence = meanConfidence(succeeded)
		aggregate.Routing = &RoutingMetadata{FallbackUsed: true}
		return aggregate
	}

	var secondaryErrs []string
	for _, result := range secondaries {
		secondaryErrs = append(secondaryErrs, fmt.Sprintf("%s: %s", result.EngineName, result.Error))
	}
	msg := fmt.Sprintf("primary engine %s failed: %s", primary.EngineName, primary.Error)
	if len(secondaryErrs) > 0 {
		msg += "; secondary failures: " + strings.Join(secondaryErrs, "; ")
	}

	aggregate.Success = false
	aggregate.Error = msg
	aggregate.Confidence = 0
	return aggregate
}

// emitResult forwards a finished engine result to the stream, if any.
func (x *RouteExecutor) emitResult(emit func(StreamEvent), result *EngineResult) {
	if emit == nil {
		return
	}
	emit(StreamEvent{
		Type:      StreamEventEngineResult,
		Timestamp: time.Now(),
		Source:    result.EngineName,
		Engine:    result,
	})
}

// bestSecondary picks the highest-confidence successful secondary.
// Earlier entries win ties.
func bestSecondary(secondaries []*EngineResult) *EngineResult {
	var best *EngineResult
	for _, result := range secondaries {
		if !result.Success {
			continue
		}
		if best == nil || result.Confidence > best.Confidence {
			best = result
		}
	}
	return best
}

// supplementaryPayloads collects successful secondary payloads keyed by
// engine name, skipping the engine promoted to primary.
func supplementaryPayloads(secondaries []*EngineResult, promoted string) map[string]interface{} {
	supplementary := make(map[string]interface{})
	for _, result := range secondaries {
		if !result.Success || result.EngineName == promoted {
			continue
		}
		supplementary[result.EngineName] = result.Payload
	}
	if len(supplementary) == 0 {
		return nil
	}
	return supplementary
}

// meanConfidence averages the confidence of the given results.
func meanConfidence(results []*EngineResult) float64 {
	if len(results) == 0 {
		return 0
	}
	total := 0.0
	for _, result := range results {
		total += result.Confidence
	}
	return clamp01(total / float64(len(results)))
}

// enginesInvoked lists engine names in invocation order.
func enginesInvoked(results []*EngineResult) []string {
	names := make([]string, len(results))
	for i, result := range results {
		names[i] = result.EngineName
	}
	return names
}

// estimateRatio divides the planner estimate by the measured wall
// clock, flooring the denominator at 1ms.
func estimateRatio(estimatedMs, actualMs int64) float64 {
	if actualMs < 1 {
		actualMs = 1
	}
	return float64(estimatedMs) / float64(actualMs)
}

// timing is the success/duration pair the performance summary runs on.
type timing struct {
	success bool
	timeMs  int64
}

// engineTimings projects engine results onto timings.
func engineTimings(results []*EngineResult) []timing {
	timings := make([]timing, len(results))
	for i, result := range results {
		timings[i] = timing{success: result.Success, timeMs: result.ExecutionTimeMs}
	}
	return timings
}

// summarize builds the performance block. Counts cover every call;
// the duration stats cover the successful subset.
func summarize(timings []timing) *PerformanceSummary {
	summary := &PerformanceSummary{Queried: len(timings)}

	var total int64
	for _, t := range timings {
		if !t.success {
			summary.Failed++
			continue
		}
		if summary.Succeeded == 0 || t.timeMs < summary.MinExecutionTimeMs {
			summary.MinExecutionTimeMs = t.timeMs
		}
		if t.timeMs > summary.MaxExecutionTimeMs {
			summary.MaxExecutionTimeMs = t.timeMs
		}
		total += t.timeMs
		summary.Succeeded++
	}
	if summary.Succeeded > 0 {
		summary.AvgExecutionTimeMs = float64(total) / float64(summary.Succeeded)
	}
	return summary
}
