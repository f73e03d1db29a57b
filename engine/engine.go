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
	"strings"
	"time"

	"github.com/google/uuid"

	"axonflow/insightmesh/adapters/base"
	"axonflow/insightmesh/adapters/registry"
	"axonflow/insightmesh/shared/logger"
)

// Engine is the routing and federation core. Every piece of state hangs
// off the instance; independent engines in one process do not share
// anything except process-wide Prometheus collectors.
type Engine struct {
	config     *RoutingConfig
	classifier *QueryClassifier
	planner    *ExecutionPlanner
	executor   *RouteExecutor
	engines    *EngineRegistry
	servers    *registry.ServerRegistry
	dispatcher *FederationDispatcher
	tracker    *PerformanceTracker
	monitor    *registry.HealthMonitor
	logger     *logger.Logger
}

// New builds an engine from the given config. A nil config uses the
// defaults; a nil logger gets a fresh structured logger.
func New(config *RoutingConfig, log *logger.Logger) (*Engine, error) {
	if config == nil {
		config = DefaultRoutingConfig()
	}
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid routing config: %w", err)
	}
	if log == nil {
		log = logger.New("engine")
	}

	engines := NewEngineRegistry()
	servers := registry.NewServerRegistry()
	classifier := NewQueryClassifier(config)
	aggregator := NewResultAggregator(config.AggregationWeights)

	return &Engine{
		config:     config,
		classifier: classifier,
		planner:    NewExecutionPlanner(config),
		executor:   NewRouteExecutor(engines),
		engines:    engines,
		servers:    servers,
		dispatcher: NewFederationDispatcher(classifier, servers, aggregator, config),
		tracker:    NewPerformanceTracker(),
		monitor:    registry.NewHealthMonitor(servers, time.Duration(config.HealthIntervalSeconds)*time.Second),
		logger:     log,
	}, nil
}

// RegisterEngine adds a query engine to the routable set.
func (e *Engine) RegisterEngine(engine QueryEngine) error {
	return e.engines.Register(engine)
}

// RegisterServer adds a federation server.
func (e *Engine) RegisterServer(desc *base.ServerDescriptor, server base.FederatedServer) error {
	return e.servers.Register(desc, server)
}

// DeregisterServer removes a federation server from the candidate set.
func (e *Engine) DeregisterServer(name string) error {
	return e.servers.Deregister(name)
}

// Servers returns descriptor copies for every registered server.
func (e *Engine) Servers() []*base.ServerDescriptor {
	return e.servers.Snapshot()
}

// ServerRegistry exposes the registry for wiring code.
func (e *Engine) ServerRegistry() *registry.ServerRegistry {
	return e.servers
}

// StartHealthMonitor launches the background probe loop. It stops when
// the context is cancelled.
func (e *Engine) StartHealthMonitor(ctx context.Context) {
	e.monitor.Start(ctx)
}

// CheckServerHealth probes every registered server once, synchronously.
func (e *Engine) CheckServerHealth(ctx context.Context) {
	e.monitor.CheckNow(ctx)
}

// RouteQuery classifies the query, plans the engine set, executes the
// plan, and returns the combined result. Business failures come back in
// the result, not as Go errors.
func (e *Engine) RouteQuery(ctx context.Context, query string, queryContext map[string]interface{}) (*AggregatedResult, error) {
	if strings.TrimSpace(query) == "" {
		return nil, fmt.Errorf("query must not be empty")
	}

	requestID := uuid.New().String()
	start := time.Now()

	classification := e.classifier.Classify(query, queryContext)
	decision := e.planner.Plan(query, classification)

	e.logger.Info(requestID, "routing", "Query classified", map[string]interface{}{
		"category":   string(classification.Category),
		"confidence": classification.Confidence,
		"primary":    decision.PrimaryEngine,
		"parallel":   decision.ParallelExecution,
	})

	aggregate, results := e.executor.Execute(ctx, query, queryContext, decision, nil)

	e.recordEngineResults(classification.Category, results)
	observeQuery("route", classification.Category, aggregate.Success)
	if aggregate.Routing != nil && aggregate.Routing.FallbackUsed {
		promFallbacks.Inc()
	}

	e.logger.InfoWithDuration(requestID, "routing", "Query complete",
		float64(time.Since(start).Milliseconds()), map[string]interface{}{
			"success":        aggregate.Success,
			"primary_source": aggregate.PrimarySource,
		})

	return aggregate, nil
}

// RouteQueryStream is RouteQuery with progress events: classification,
// one engine_result per engine as it finishes, then complete. The
// channel buffer holds the full sequence and the producer always closes
// it, so abandoning the stream cannot wedge the engine.
func (e *Engine) RouteQueryStream(ctx context.Context, query string, queryContext map[string]interface{}) (<-chan StreamEvent, error) {
	if strings.TrimSpace(query) == "" {
		return nil, fmt.Errorf("query must not be empty")
	}

	classification := e.classifier.Classify(query, queryContext)
	decision := e.planner.Plan(query, classification)

	events := make(chan StreamEvent, len(decision.SecondaryEngines)+4)

	promActiveStreams.Inc()
	go func() {
		defer close(events)
		defer promActiveStreams.Dec()

		events <- StreamEvent{
			Type:      StreamEventClassification,
			Timestamp: time.Now(),
			Decision:  decision,
		}

		emit := func(event StreamEvent) { events <- event }
		aggregate, results := e.executor.Execute(ctx, query, queryContext, decision, emit)

		e.recordEngineResults(classification.Category, results)
		observeQuery("route_stream", classification.Category, aggregate.Success)
		if aggregate.Routing != nil && aggregate.Routing.FallbackUsed {
			promFallbacks.Inc()
		}

		events <- StreamEvent{
			Type:      StreamEventComplete,
			Timestamp: time.Now(),
			Aggregate: aggregate,
		}
	}()

	return events, nil
}

// FederatedQuery fans the query out to the prioritized healthy servers
// and returns the aggregated answer.
func (e *Engine) FederatedQuery(ctx context.Context, query string, queryContext map[string]interface{}) (*AggregatedResult, error) {
	if strings.TrimSpace(query) == "" {
		return nil, fmt.Errorf("query must not be empty")
	}

	requestID := uuid.New().String()
	start := time.Now()

	aggregate, results, classification := e.dispatcher.Dispatch(ctx, query, queryContext)

	e.recordFederatedResults(classification.Category, results)
	observeQuery("federated", classification.Category, aggregate.Success)

	e.logger.InfoWithDuration(requestID, "federation", "Federated query complete",
		float64(time.Since(start).Milliseconds()), map[string]interface{}{
			"category":       string(classification.Category),
			"servers":        len(results),
			"success":        aggregate.Success,
			"primary_source": aggregate.PrimarySource,
		})

	return aggregate, nil
}

// FederatedQueryStream is FederatedQuery with progress events. Stats
// are recorded from the event flow itself, so they stay correct even
// when the consumer walks away mid-stream.
func (e *Engine) FederatedQueryStream(ctx context.Context, query string, queryContext map[string]interface{}) (<-chan StreamEvent, error) {
	if strings.TrimSpace(query) == "" {
		return nil, fmt.Errorf("query must not be empty")
	}

	inner := e.dispatcher.DispatchStream(ctx, query, queryContext)
	events := make(chan StreamEvent, cap(inner))

	promActiveStreams.Inc()
	go func() {
		defer close(events)
		defer promActiveStreams.Dec()

		var category QueryCategory
		abandoned := false
		for event := range inner {
			switch event.Type {
			case StreamEventClassification:
				if event.Decision != nil {
					category = event.Decision.Category
					e.tracker.RecordQuery(category)
				}
			case StreamEventServerResult:
				if event.Result != nil {
					result := event.Result
					e.tracker.RecordOutcome(category, result.ServerName, result.Success, result.ExecutionTimeMs, result.Confidence)
					observeSourceCall(result.ServerName, result.Success, result.ExecutionTimeMs)
				}
			case StreamEventComplete:
				if event.Aggregate != nil {
					observeQuery("federated_stream", category, event.Aggregate.Success)
				}
			}

			if abandoned {
				continue
			}
			select {
			case events <- event:
			case <-ctx.Done():
				abandoned = true
			}
		}
	}()

	return events, nil
}

// GetStats returns a read-only snapshot of the accumulated statistics.
func (e *Engine) GetStats() *PerformanceMetrics {
	return e.tracker.Snapshot()
}

// Close disconnects every registered server.
func (e *Engine) Close(ctx context.Context) {
	e.servers.CloseAll(ctx)
}

func (e *Engine) recordEngineResults(category QueryCategory, results []*EngineResult) {
	e.tracker.RecordQuery(category)
	for _, result := range results {
		e.tracker.RecordOutcome(category, result.EngineName, result.Success, result.ExecutionTimeMs, result.Confidence)
		observeSourceCall(result.EngineName, result.Success, result.ExecutionTimeMs)
	}
}

func (e *Engine) recordFederatedResults(category QueryCategory, results []*FederatedResult) {
	e.tracker.RecordQuery(category)
	for _, result := range results {
		e.tracker.RecordOutcome(category, result.ServerName, result.Success, result.ExecutionTimeMs, result.Confidence)
		observeSourceCall(result.ServerName, result.Success, result.ExecutionTimeMs)
	}
}
