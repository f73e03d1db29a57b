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
	"errors"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/google/uuid"

	"axonflow/insightmesh/adapters/base"
	"axonflow/insightmesh/adapters/registry"
)

// FederationDispatcher fans a query out to the healthy servers the
// classifier prioritized, under one shared per-category time budget,
// and hands the full result set to the aggregator.
type FederationDispatcher struct {
	classifier *QueryClassifier
	registry   *registry.ServerRegistry
	aggregator *ResultAggregator
	config     *RoutingConfig
	logger     *log.Logger
}

// dispatchTarget is one resolved server in a dispatch batch.
type dispatchTarget struct {
	name   string
	server base.FederatedServer
}

// NewFederationDispatcher wires the dispatcher to its collaborators.
func NewFederationDispatcher(classifier *QueryClassifier, reg *registry.ServerRegistry, aggregator *ResultAggregator, config *RoutingConfig) *FederationDispatcher {
	return &FederationDispatcher{
		classifier: classifier,
		registry:   reg,
		aggregator: aggregator,
		config:     config,
		logger:     log.New(os.Stdout, "[FEDERATION] ", log.LstdFlags),
	}
}

// Dispatch runs one federated query end to end: classify, select and
// filter servers, fan out, aggregate. The per-server results and the
// classification come back alongside the aggregate for stats recording.
func (d *FederationDispatcher) Dispatch(ctx context.Context, query string, queryContext map[string]interface{}) (*AggregatedResult, []*FederatedResult, *Classification) {
	classification, targets, budget := d.prepare(query, queryContext)

	if len(targets) == 0 {
		return d.noHealthyServers(classification), nil, classification
	}

	start := time.Now()
	results := d.fanOut(ctx, query, queryContext, classification, targets, budget, nil)
	aggregate := d.aggregator.Aggregate(results)
	d.stampRouting(aggregate, classification, targets, time.Since(start).Milliseconds())

	return aggregate, results, classification
}

// DispatchStream runs one federated query and reports progress as it
// happens: the classification, a server_started event per dispatched
// server, server_result events in true completion order, and a final
// complete event carrying the aggregate. The channel buffer holds the
// whole event sequence, so an abandoned consumer never strands the
// producer goroutine.
func (d *FederationDispatcher) DispatchStream(ctx context.Context, query string, queryContext map[string]interface{}) <-chan StreamEvent {
	classification, targets, budget := d.prepare(query, queryContext)
	events := make(chan StreamEvent, 2*len(targets)+4)

	go func() {
		defer close(events)
		emit := func(event StreamEvent) { events <- event }

		emit(StreamEvent{
			Type:      StreamEventClassification,
			Timestamp: time.Now(),
			Decision: &RoutingDecision{
				Category:   classification.Category,
				Confidence: classification.Confidence,
				Reasoning:  classification.Reasoning,
			},
		})

		if len(targets) == 0 {
			emit(StreamEvent{
				Type:      StreamEventComplete,
				Timestamp: time.Now(),
				Aggregate: d.noHealthyServers(classification),
			})
			return
		}

		start := time.Now()
		results := d.fanOut(ctx, query, queryContext, classification, targets, budget, emit)
		aggregate := d.aggregator.Aggregate(results)
		d.stampRouting(aggregate, classification, targets, time.Since(start).Milliseconds())

		emit(StreamEvent{
			Type:      StreamEventComplete,
			Timestamp: time.Now(),
			Aggregate: aggregate,
		})
	}()

	return events
}

// prepare classifies the query, resolves the prioritized healthy
// targets, and looks up the category budget.
func (d *FederationDispatcher) prepare(query string, queryContext map[string]interface{}) (*Classification, []dispatchTarget, time.Duration) {
	classification := d.classifier.Classify(query, queryContext)

	priority := d.classifier.PrioritizeServers(query, queryContext, d.registry.Snapshot())

	healthy := make(map[string]bool)
	for _, name := range d.registry.HealthyNames() {
		healthy[name] = true
	}

	targets := make([]dispatchTarget, 0, len(priority))
	for _, name := range priority {
		if !healthy[name] {
			continue
		}
		server, err := d.registry.Get(name)
		if err != nil {
			continue
		}
		targets = append(targets, dispatchTarget{name: name, server: server})
	}

	budgetMs := d.config.CategoryTimeoutsMs[classification.Category]
	if budgetMs <= 0 {
		budgetMs = 30000
	}

	d.logger.Printf("Dispatching %s query to %d of %d prioritized server(s), budget %dms",
		classification.Category, len(targets), len(priority), budgetMs)

	return classification, targets, time.Duration(budgetMs) * time.Millisecond
}

// fanOut dispatches one goroutine per target under a shared deadline
// and collects results in completion order. Targets still running at
// cutoff become synthetic failures; their goroutines finish into the
// buffered channel and are dropped.
func (d *FederationDispatcher) fanOut(ctx context.Context, query string, queryContext map[string]interface{}, classification *Classification, targets []dispatchTarget, budget time.Duration, emit func(StreamEvent)) []*FederatedResult {
	batchCtx, cancel := context.WithTimeout(ctx, budget)
	defer cancel()

	start := time.Now()

	done := make(chan *FederatedResult, len(targets))
	requestID := uuid.New().String()

	for _, target := range targets {
		if emit != nil {
			emit(StreamEvent{
				Type:      StreamEventServerStarted,
				Timestamp: time.Now(),
				Source:    target.name,
			})
		}
		go func(target dispatchTarget) {
			done <- d.call(batchCtx, requestID, query, queryContext, classification, target)
		}(target)
	}

	results := make([]*FederatedResult, 0, len(targets))
	received := make(map[string]bool, len(targets))

	collect := func(result *FederatedResult) {
		received[result.ServerName] = true
		results = append(results, result)
		if emit != nil {
			emit(StreamEvent{
				Type:      StreamEventServerResult,
				Timestamp: time.Now(),
				Source:    result.ServerName,
				Result:    result,
			})
		}
	}

	expired := false
	for len(results) < len(targets) && !expired {
		select {
		case result := <-done:
			collect(result)
		case <-batchCtx.Done():
			expired = true
			// Keep anything that finished before the deadline fired.
			for drained := false; !drained && len(results) < len(targets); {
				select {
				case result := <-done:
					collect(result)
				default:
					drained = true
				}
			}
		}
	}

	// Stragglers become synthetic failures: "timeout" when the budget
	// ran out, "cancelled" when the caller gave up first. Either way
	// the recorded time is the real wall clock at cutoff, not the
	// budget.
	cutoffMs := time.Since(start).Milliseconds()
	reason := "timeout"
	if errors.Is(batchCtx.Err(), context.Canceled) {
		reason = "cancelled"
	}
	for _, target := range targets {
		if !received[target.name] {
			d.logger.Printf("Server %s missed the %v budget, recording %s", target.name, budget, reason)
			collect(&FederatedResult{
				ServerName:      target.name,
				Success:         false,
				ExecutionTimeMs: cutoffMs,
				Error:           reason,
			})
		}
	}

	return results
}

// call executes one server request and normalizes the outcome. Deadline
// errors are reported as plain "timeout" so per-server failures read
// the same as synthetic ones.
func (d *FederationDispatcher) call(ctx context.Context, requestID, query string, queryContext map[string]interface{}, classification *Classification, target dispatchTarget) *FederatedResult {
	start := time.Now()
	response, err := target.server.Execute(ctx, &base.QueryRequest{
		RequestID: requestID,
		Query:     query,
		Category:  string(classification.Category),
		Context:   queryContext,
	})
	elapsed := time.Since(start).Milliseconds()

	if err != nil {
		msg := err.Error()
		if errors.Is(err, context.DeadlineExceeded) {
			msg = "timeout"
		}
		return &FederatedResult{
			ServerName:      target.name,
			Success:         false,
			ExecutionTimeMs: elapsed,
			Error:           msg,
		}
	}
	if response == nil {
		return &FederatedResult{
			ServerName:      target.name,
			Success:         false,
			ExecutionTimeMs: elapsed,
			Error:           "server returned no response",
		}
	}

	return &FederatedResult{
		ServerName:      target.name,
		Success:         true,
		Payload:         response.Payload,
		Confidence:      clamp01(response.Confidence),
		ExecutionTimeMs: elapsed,
	}
}

// noHealthyServers is the structured failure for an empty target list.
func (d *FederationDispatcher) noHealthyServers(classification *Classification) *AggregatedResult {
	d.logger.Printf("No healthy servers for %s query", classification.Category)
	return &AggregatedResult{
		Success: false,
		Error: NewRoutingError(ErrKindNoHealthyServers, "",
			fmt.Sprintf("no healthy servers available for category %s", classification.Category), nil).Error(),
		Routing: &RoutingMetadata{Category: classification.Category},
	}
}

// stampRouting attaches dispatch metadata to a finished aggregate.
func (d *FederationDispatcher) stampRouting(aggregate *AggregatedResult, classification *Classification, targets []dispatchTarget, wallClockMs int64) {
	names := make([]string, len(targets))
	for i, target := range targets {
		names[i] = target.name
	}
	aggregate.Routing = &RoutingMetadata{
		Category:    classification.Category,
		EnginesUsed: names,
		Parallel:    true,
		WallClockMs: wallClockMs,
	}
}
